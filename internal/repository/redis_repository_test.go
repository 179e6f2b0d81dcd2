package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/utils"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestKeyspace(t *testing.T) {
	k := Keyspace{}
	assert.Equal(t, "session:u1:fp", k.Session("u1", "fp"))
	assert.Equal(t, "refresh_token:u1:*", k.RefreshTokenPattern("u1"))
	assert.Equal(t, "login_attempts:a@b.edu:1.2.3.4", k.LoginAttempts("A@B.edu", "1.2.3.4"))

	p := Keyspace{Prefix: "test"}
	assert.Equal(t, "test:blacklist:h", p.Blacklist("h"))
	assert.Equal(t, `test:session:u\*1:*`, p.SessionPattern("u*1"))

	wild := Keyspace{Prefix: "t[a]*"}
	assert.Equal(t, `t\[a\]\*:refresh_token:u1:*`, wild.RefreshTokenPattern("u1"))
	assert.Equal(t, `t\[a\]\*:session:u1:*`, wild.SessionPattern("u1"))
}

func TestSessionRepo_ListForUserStaysInsidePrefix(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	mine := NewSessionRepo(rdb, Keyspace{Prefix: "campus*"})
	other := NewSessionRepo(rdb, Keyspace{Prefix: "campus-b"})

	require.NoError(t, mine.Save(ctx, model.SessionRecord{SessionID: "s1", UserID: "u1", DeviceFingerprint: "d1", IsActive: true}, time.Hour))
	require.NoError(t, other.Save(ctx, model.SessionRecord{SessionID: "s2", UserID: "u1", DeviceFingerprint: "d2", IsActive: true}, time.Hour))

	list, err := mine.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].SessionID)
}

func TestTokenRepo_OverwriteAndRevokeAll(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := NewTokenRepo(rdb, Keyspace{})
	ctx := context.Background()

	rec := model.RefreshTokenRecord{UserID: "u1", DeviceFingerprint: "d1", TokenHash: "h1"}
	require.NoError(t, repo.StoreRefresh(ctx, rec, time.Hour))
	rec.TokenHash = "h2"
	require.NoError(t, repo.StoreRefresh(ctx, rec, time.Hour))

	got, err := repo.GetRefresh(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "h2", got.TokenHash)
	assert.Equal(t, time.Hour, mr.TTL("refresh_token:u1:d1"))

	require.NoError(t, repo.StoreRefresh(ctx, model.RefreshTokenRecord{UserID: "u1", DeviceFingerprint: "d2"}, time.Hour))
	require.NoError(t, repo.StoreRefresh(ctx, model.RefreshTokenRecord{UserID: "u2", DeviceFingerprint: "d1"}, time.Hour))

	n, err := repo.RevokeAllForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.GetRefresh(ctx, "u1", "d1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetRefresh(ctx, "u2", "d1")
	assert.NoError(t, err)
}

func TestTokenRepo_StoreDownIsUnavailable(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := NewTokenRepo(rdb, Keyspace{})
	mr.Close()

	_, err := repo.GetRefresh(context.Background(), "u1", "d1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestBlacklistRepo_ExpiresWithTTL(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := NewBlacklistRepo(rdb, Keyspace{})
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, "hash", time.Minute))
	ok, err := repo.Contains(ctx, "hash")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = repo.Contains(ctx, "hash")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionRepo_SaveGetTouchDelete(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := NewSessionRepo(rdb, Keyspace{})
	ctx := context.Background()
	login := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	s := model.SessionRecord{
		SessionID: "s1", UserID: "u1", DeviceFingerprint: "d1",
		Device:    model.DeviceMetadata{UserAgent: "ua", Platform: "macOS"},
		IPAddress: "10.0.0.1", LoginTime: login, LastActivity: login, IsActive: true,
	}
	require.NoError(t, repo.Save(ctx, s, time.Hour))
	assert.True(t, mr.Exists("session_meta:u1:d1"))

	got, err := repo.Get(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "macOS", got.Device.Platform)
	assert.True(t, got.LoginTime.Equal(login))

	later := login.Add(10 * time.Minute)
	require.NoError(t, repo.Touch(ctx, "u1", "d1", later, 2*time.Hour))
	got, err = repo.Get(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(later))
	assert.Equal(t, 2*time.Hour, mr.TTL("session:u1:d1"))
	assert.Equal(t, 2*time.Hour, mr.TTL("session_meta:u1:d1"))

	require.NoError(t, repo.Delete(ctx, "u1", "d1"))
	_, err = repo.Get(ctx, "u1", "d1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Touch(ctx, "u1", "d1", later, time.Hour), ErrNotFound)
	assert.False(t, mr.Exists("session:u1:d1"))
}

func TestSessionRepo_SealsAddress(t *testing.T) {
	mr, rdb := newRedis(t)
	box, err := utils.NewSecretBox("at-rest")
	require.NoError(t, err)
	repo := NewSessionRepo(rdb, Keyspace{}).WithSealer(box)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, model.SessionRecord{
		SessionID: "s1", UserID: "u1", DeviceFingerprint: "d1", IPAddress: "203.0.113.7", IsActive: true,
	}, time.Hour))
	raw, err := mr.Get("session:u1:d1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "203.0.113.7")

	got, err := repo.Get(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", got.IPAddress)

	other, err := utils.NewSecretBox("rotated")
	require.NoError(t, err)
	got, err = NewSessionRepo(rdb, Keyspace{}).WithSealer(other).Get(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.Empty(t, got.IPAddress)
}

func TestSessionRepo_ListForUser(t *testing.T) {
	_, rdb := newRedis(t)
	repo := NewSessionRepo(rdb, Keyspace{Prefix: "p"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Save(ctx, model.SessionRecord{
			SessionID: fmt.Sprintf("s%d", i), UserID: "u1", DeviceFingerprint: fmt.Sprintf("d%d", i), IsActive: true,
		}, time.Hour))
	}
	require.NoError(t, repo.Save(ctx, model.SessionRecord{SessionID: "x", UserID: "u10", DeviceFingerprint: "d0"}, time.Hour))

	list, err := repo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 3)
	for _, s := range list {
		assert.Equal(t, "u1", s.UserID)
	}
}

func TestLoginAttemptRepo_BoundedHistory(t *testing.T) {
	mr, rdb := newRedis(t)
	repo := NewLoginAttemptRepo(rdb, Keyspace{})
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		require.NoError(t, repo.Push(ctx, model.LoginAttempt{
			Email: "a@uni.edu", IPAddress: "1.1.1.1", Timestamp: base.Add(time.Duration(i) * time.Minute),
		}, 10, 24*time.Hour))
	}
	got, err := repo.Recent(ctx, "a@uni.edu", "1.1.1.1")
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.True(t, got[0].Timestamp.Equal(base.Add(14*time.Minute)), "newest first")
	assert.True(t, got[9].Timestamp.Equal(base.Add(5*time.Minute)), "oldest dropped")
	assert.Equal(t, 24*time.Hour, mr.TTL("login_attempts:a@uni.edu:1.1.1.1"))
}

func TestRateCounter_FixedWindow(t *testing.T) {
	mr, rdb := newRedis(t)
	rc := NewRateCounter(rdb, Keyspace{})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, ttl, err := rc.Incr(ctx, "u1", "GET /v1/me", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	}

	mr.FastForward(time.Minute + time.Second)
	n, _, err := rc.Incr(ctx, "u1", "GET /v1/me", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "new window after expiry")
}
