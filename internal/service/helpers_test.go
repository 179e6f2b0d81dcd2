package service

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/repository"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	mr       *miniredis.Miniredis
	clock    *clock
	issuer   *TokenIssuer
	sessions *SessionStore
	refresh  *repository.TokenRepo
	sessRepo *repository.SessionRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// jwt validates against the injected clock, so start at wall time
	clk := &clock{t: time.Now().UTC().Truncate(time.Second)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := repository.Keyspace{}

	refresh := repository.NewTokenRepo(rdb, keys)
	issuer, err := NewTokenIssuer(TokenConfig{
		AccessSecret: testSecret,
		Issuer:       "campus-auth",
		Audience:     "campus-app",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   7 * 24 * time.Hour,
	}, refresh, repository.NewBlacklistRepo(rdb, keys), log)
	require.NoError(t, err)
	issuer.WithClock(clk.Now)

	sessRepo := repository.NewSessionRepo(rdb, keys)
	sessions := NewSessionStore(SessionConfig{
		MaxAge:           7 * 24 * time.Hour,
		IdleTTL:          7 * 24 * time.Hour,
		LoginMaxFailures: 5,
		LoginWindow:      time.Hour,
		LoginHistorySize: 10,
		LoginHistoryTTL:  24 * time.Hour,
	}, sessRepo, repository.NewLoginAttemptRepo(rdb, keys), issuer, log).WithClock(clk.Now)

	return &fixture{mr: mr, clock: clk, issuer: issuer, sessions: sessions, refresh: refresh, sessRepo: sessRepo}
}

func student() model.Principal {
	return model.Principal{
		ID: "u1", Email: "ana@uni.edu", Type: model.PrincipalStudent, IsVerified: true,
		UniversityID: "uni-1", UniversityName: "State University", UniversityDomain: "uni.edu",
	}
}
