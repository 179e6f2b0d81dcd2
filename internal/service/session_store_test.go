package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/repository"
)

func TestCreateSession_ValidAndTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.sessions.CreateSession(ctx, "u1", "d1", model.DeviceMetadata{UserAgent: "ua"}, "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.SessionID)
	assert.True(t, s.IsActive)
	assert.Equal(t, 7*24*time.Hour, f.mr.TTL("session:u1:d1"))

	ok, err := f.sessions.IsSessionValid(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.sessions.IsSessionValid(ctx, "u1", "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsSessionValid_ExpiresAfterCeilingAndStaysGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := student()

	_, err := f.issuer.IssueTokenPair(ctx, p, p.Tenant(), "d1")
	require.NoError(t, err)
	_, err = f.sessions.CreateSession(ctx, p.ID, "d1", model.DeviceMetadata{}, "10.0.0.1")
	require.NoError(t, err)

	f.clock.Advance(7*24*time.Hour + time.Minute)

	ok, err := f.sessions.IsSessionValid(ctx, p.ID, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, f.mr.Exists("session:u1:d1"))
	assert.False(t, f.mr.Exists("session_meta:u1:d1"))
	assert.False(t, f.mr.Exists("refresh_token:u1:d1"), "paired refresh token revoked")

	for i := 0; i < 3; i++ {
		ok, err = f.sessions.IsSessionValid(ctx, p.ID, "d1")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestTouch_UpdatesActivityAndCapsTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.CreateSession(ctx, "u1", "d1", model.DeviceMetadata{}, "10.0.0.1")
	require.NoError(t, err)

	f.clock.Advance(6 * 24 * time.Hour)
	require.NoError(t, f.sessions.Touch(ctx, "u1", "d1"))

	s, err := f.sessions.GetSession(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.True(t, s.LastActivity.Equal(f.clock.Now()))
	assert.Equal(t, 24*time.Hour, f.mr.TTL("session:u1:d1"), "ttl never extends past the ceiling")

	require.NoError(t, f.sessions.InvalidateSession(ctx, "u1", "d1"))
	assert.ErrorIs(t, f.sessions.Touch(ctx, "u1", "d1"), ErrInvalidSession)
	assert.False(t, f.mr.Exists("session:u1:d1"), "touch does not resurrect")
}

func TestInvalidateSession_RevokesRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := student()

	pair, err := f.issuer.IssueTokenPair(ctx, p, p.Tenant(), "d1")
	require.NoError(t, err)
	_, err = f.sessions.CreateSession(ctx, p.ID, "d1", model.DeviceMetadata{}, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, f.sessions.InvalidateSession(ctx, p.ID, "d1"))

	ok, err := f.sessions.IsSessionValid(ctx, p.ID, "d1")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.issuer.VerifyRefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestInvalidateAllSessions_LeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := student()

	devices := []string{"d1", "d2", "d3"}
	var refresh []string
	for _, d := range devices {
		pair, err := f.issuer.IssueTokenPair(ctx, p, p.Tenant(), d)
		require.NoError(t, err)
		refresh = append(refresh, pair.RefreshToken)
		_, err = f.sessions.CreateSession(ctx, p.ID, d, model.DeviceMetadata{}, "10.0.0.1")
		require.NoError(t, err)
	}
	// another principal's device must survive
	_, err := f.sessions.CreateSession(ctx, "u2", "d1", model.DeviceMetadata{}, "10.0.0.2")
	require.NoError(t, err)

	require.NoError(t, f.sessions.InvalidateAllSessions(ctx, p.ID))

	active, err := f.sessions.ListActiveSessions(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
	for _, tok := range refresh {
		_, err := f.issuer.VerifyRefreshToken(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	ok, err := f.sessions.IsSessionValid(ctx, "u2", "d1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListActiveSessions_OrderAndLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s1, err := f.sessions.CreateSession(ctx, "u1", "d1", model.DeviceMetadata{Platform: "iOS"}, "10.0.0.1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	s2, err := f.sessions.CreateSession(ctx, "u1", "d2", model.DeviceMetadata{Platform: "Windows"}, "10.0.0.2")
	require.NoError(t, err)

	list, err := f.sessions.ListActiveSessions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, s2.SessionID, list[0].SessionID)
	assert.Equal(t, "iOS", list[1].Device.Platform)

	found, err := f.sessions.FindSessionByID(ctx, "u1", s1.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "d1", found.DeviceFingerprint)

	_, err = f.sessions.FindSessionByID(ctx, "u2", s1.SessionID)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestIsRateLimited_SlidingWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fail := func() {
		require.NoError(t, f.sessions.RecordLoginAttempt(ctx, model.LoginAttempt{
			Email: "ana@uni.edu", IPAddress: "1.1.1.1", FailureReason: "invalid_credentials",
		}))
	}

	for i := 0; i < 4; i++ {
		fail()
		f.clock.Advance(10 * time.Minute)
	}
	limited, _, err := f.sessions.IsRateLimited(ctx, "ana@uni.edu", "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, limited, "four failures stay under the limit")

	fail() // fifth failure, 40 minutes after the first
	limited, retry, err := f.sessions.IsRateLimited(ctx, "ana@uni.edu", "1.1.1.1")
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Equal(t, 20*time.Minute, retry)

	// other address is unaffected
	limited, _, err = f.sessions.IsRateLimited(ctx, "ana@uni.edu", "2.2.2.2")
	require.NoError(t, err)
	assert.False(t, limited)

	// once the first failure is older than the window it stops counting
	f.clock.Advance(21 * time.Minute)
	limited, _, err = f.sessions.IsRateLimited(ctx, "ana@uni.edu", "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestIsRateLimited_SuccessesDoNotCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, f.sessions.RecordLoginAttempt(ctx, model.LoginAttempt{
			Email: "ana@uni.edu", IPAddress: "1.1.1.1", Success: true,
		}))
	}
	limited, _, err := f.sessions.IsRateLimited(ctx, "ana@uni.edu", "1.1.1.1")
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestSessionStore_OutageSurfaces(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()
	_, err := f.sessions.IsSessionValid(context.Background(), "u1", "d1")
	assert.ErrorIs(t, err, repository.ErrUnavailable)
	_, _, err = f.sessions.IsRateLimited(context.Background(), "a@uni.edu", "1.1.1.1")
	assert.ErrorIs(t, err, repository.ErrUnavailable)
}

// login -> refresh -> replay of the original refresh token fails.
func TestScenario_LoginRefreshReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := student()

	first, err := f.issuer.IssueTokenPair(ctx, p, p.Tenant(), "d1")
	require.NoError(t, err)
	_, err = f.sessions.CreateSession(ctx, p.ID, "d1", model.DeviceMetadata{}, "10.0.0.1")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	second, err := f.issuer.RefreshAccessToken(ctx, first.RefreshToken, p, "d1")
	require.NoError(t, err)
	_, err = f.issuer.VerifyAccessToken(ctx, second.AccessToken)
	require.NoError(t, err)

	_, err = f.issuer.RefreshAccessToken(ctx, first.RefreshToken, p, "d1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
