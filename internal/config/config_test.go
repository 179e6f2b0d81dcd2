package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("DB_USER", "campus")
	t.Setenv("DB_NAME", "campus_auth")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, cfg.SessionMaxAge, cfg.SessionIdleTTL)
	assert.Equal(t, 5, cfg.Login.MaxFailures)
	assert.Equal(t, time.Hour, cfg.Login.Window)
	assert.Equal(t, 10, cfg.Login.HistorySize)
	assert.Equal(t, 24*time.Hour, cfg.Login.HistoryTTL)
	assert.Equal(t, cfg.JWTSecret, cfg.EncryptionKey)
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	t.Setenv("DB_USER", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadFromEnv_ShortSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "short")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromEnv_IdleCappedBySessionCeiling(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("SESSION_MAX_AGE", "24h")
	t.Setenv("SESSION_IDLE_TTL", "48h")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.SessionIdleTTL)
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX", "0")
	t.Setenv("RATE_LIMIT_WINDOW", "10ms")

	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Max)
	assert.Equal(t, time.Second, rl.Window)
}

func TestDSN(t *testing.T) {
	c := Config{DBUser: "u", DBPass: "p", DBHost: "db", DBPort: "3306", DBName: "n"}
	assert.Contains(t, c.DSN(), "u:p@tcp(db:3306)/n?")
	c.DBPass = ""
	assert.Contains(t, c.DSN(), "u@tcp(db:3306)/n?")
}

func TestLoadFromEnv_TrustedProxies(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, ,192.168.1.0/24")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.0/24"}, cfg.TrustedProxies)

	t.Setenv("TRUSTED_PROXIES", "not-a-cidr")
	_, err = LoadFromEnv()
	assert.Error(t, err)
}
