package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/iliyamo/campus-auth/internal/model"
	"github.com/iliyamo/campus-auth/internal/repository"
	"github.com/iliyamo/campus-auth/internal/utils"
)

// ErrInvalidSession means the device has no live session: never created,
// revoked, or aged past the ceiling.  Callers answer 401.
var ErrInvalidSession = errors.New("invalid session")

// SessionRepository is the session persistence used by SessionStore.
type SessionRepository interface {
	Save(ctx context.Context, s model.SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, userID, fingerprint string) (*model.SessionRecord, error)
	Touch(ctx context.Context, userID, fingerprint string, at time.Time, ttl time.Duration) error
	Delete(ctx context.Context, userID, fingerprint string) error
	ListForUser(ctx context.Context, userID string) ([]model.SessionRecord, error)
}

// LoginAttemptRepository is the login history persistence used by SessionStore.
type LoginAttemptRepository interface {
	Push(ctx context.Context, a model.LoginAttempt, size int, ttl time.Duration) error
	Recent(ctx context.Context, email, address string) ([]model.LoginAttempt, error)
}

// RefreshRevoker is the slice of TokenIssuer the session store needs to keep
// a session and its refresh token lifecycle-coupled.
type RefreshRevoker interface {
	RevokeRefreshToken(ctx context.Context, userID, fingerprint string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// SessionConfig holds the session ceiling and login limiting parameters.
type SessionConfig struct {
	MaxAge  time.Duration // ceiling measured from login
	IdleTTL time.Duration // TTL re-applied on each touch, capped by MaxAge

	LoginMaxFailures int
	LoginWindow      time.Duration
	LoginHistorySize int
	LoginHistoryTTL  time.Duration
}

// SessionStore owns per-device sessions and login attempt accounting.
// Per (principal, fingerprint) a session is Absent or Active; Expired and
// Revoked are represented by deleting the record.
type SessionStore struct {
	cfg      SessionConfig
	sessions SessionRepository
	attempts LoginAttemptRepository
	tokens   RefreshRevoker
	log      *slog.Logger
	now      func() time.Time
}

func NewSessionStore(cfg SessionConfig, sessions SessionRepository, attempts LoginAttemptRepository, tokens RefreshRevoker, log *slog.Logger) *SessionStore {
	if cfg.IdleTTL <= 0 || cfg.IdleTTL > cfg.MaxAge {
		cfg.IdleTTL = cfg.MaxAge
	}
	if log == nil {
		log = slog.Default()
	}
	return &SessionStore{cfg: cfg, sessions: sessions, attempts: attempts, tokens: tokens, log: log, now: time.Now}
}

// WithClock replaces the time source.  Tests only.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	s.now = now
	return s
}

// MaxAge is the session ceiling.
func (s *SessionStore) MaxAge() time.Duration { return s.cfg.MaxAge }

// CreateSession opens (or replaces) the session for one device with a TTL
// equal to the session ceiling.
func (s *SessionStore) CreateSession(ctx context.Context, userID, fingerprint string, device model.DeviceMetadata, address string) (*model.SessionRecord, error) {
	now := s.now().UTC()
	rec := model.SessionRecord{
		SessionID:         utils.NewSessionID(),
		UserID:            userID,
		DeviceFingerprint: fingerprint,
		Device:            device,
		IPAddress:         address,
		LoginTime:         now,
		LastActivity:      now,
		IsActive:          true,
	}
	if err := s.sessions.Save(ctx, rec, s.cfg.MaxAge); err != nil {
		return nil, err
	}
	s.log.Info("session created", "user_id", userID, "session_id", rec.SessionID)
	return &rec, nil
}

// IsSessionValid reports whether the device has a live session.  A record
// that is inactive or past the ceiling is deleted together with its refresh
// token before returning false, so a later check cannot resurrect it.
func (s *SessionStore) IsSessionValid(ctx context.Context, userID, fingerprint string) (bool, error) {
	rec, err := s.sessions.Get(ctx, userID, fingerprint)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.IsActive && !rec.ExpiredAt(s.now(), s.cfg.MaxAge) {
		return true, nil
	}
	if err := s.InvalidateSession(ctx, userID, fingerprint); err != nil {
		return false, err
	}
	s.log.Info("session expired", "user_id", userID, "session_id", rec.SessionID)
	return false, nil
}

// Touch records activity and re-applies the TTL, never beyond the ceiling.
// It returns ErrInvalidSession when the session vanished since validation.
func (s *SessionStore) Touch(ctx context.Context, userID, fingerprint string) error {
	rec, err := s.sessions.Get(ctx, userID, fingerprint)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidSession
	}
	if err != nil {
		return err
	}
	now := s.now().UTC()
	ttl := s.cfg.IdleTTL
	if left := rec.LoginTime.Add(s.cfg.MaxAge).Sub(now); left < ttl {
		ttl = left
	}
	if ttl <= 0 {
		return ErrInvalidSession
	}
	err = s.sessions.Touch(ctx, userID, fingerprint, now, ttl)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidSession
	}
	return err
}

// GetSession returns the live session for one device.
func (s *SessionStore) GetSession(ctx context.Context, userID, fingerprint string) (*model.SessionRecord, error) {
	rec, err := s.sessions.Get(ctx, userID, fingerprint)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidSession
	}
	return rec, err
}

// ListActiveSessions returns the principal's live sessions, most recently
// active first.
func (s *SessionStore) ListActiveSessions(ctx context.Context, userID string) ([]model.SessionRecord, error) {
	all, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]model.SessionRecord, 0, len(all))
	for _, rec := range all {
		if rec.IsActive && !rec.ExpiredAt(now, s.cfg.MaxAge) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

// FindSessionByID looks a session up by its public id among the principal's
// live sessions.
func (s *SessionStore) FindSessionByID(ctx context.Context, userID, sessionID string) (*model.SessionRecord, error) {
	list, err := s.ListActiveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].SessionID == sessionID {
			return &list[i], nil
		}
	}
	return nil, ErrInvalidSession
}

// InvalidateSession deletes one device's session and its refresh token.
// The refresh token goes first: if the second delete fails, the leftover
// session can no longer be renewed.
func (s *SessionStore) InvalidateSession(ctx context.Context, userID, fingerprint string) error {
	if err := s.tokens.RevokeRefreshToken(ctx, userID, fingerprint); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, userID, fingerprint)
}

// InvalidateAllSessions logs the principal out of every device.
func (s *SessionStore) InvalidateAllSessions(ctx context.Context, userID string) error {
	if err := s.tokens.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return err
	}
	all, err := s.sessions.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, rec := range all {
		if err := s.sessions.Delete(ctx, userID, rec.DeviceFingerprint); err != nil {
			return err
		}
	}
	s.log.Info("all sessions invalidated", "user_id", userID, "count", len(all))
	return nil
}

// RecordLoginAttempt appends to the bounded (email, address) history.
func (s *SessionStore) RecordLoginAttempt(ctx context.Context, a model.LoginAttempt) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now().UTC()
	}
	return s.attempts.Push(ctx, a, s.cfg.LoginHistorySize, s.cfg.LoginHistoryTTL)
}

// IsRateLimited counts failed attempts in the trailing window and reports
// whether the threshold is reached.  retryAfter is when the oldest counted
// failure leaves the window, i.e. when one more attempt becomes possible.
func (s *SessionStore) IsRateLimited(ctx context.Context, email, address string) (limited bool, retryAfter time.Duration, err error) {
	history, err := s.attempts.Recent(ctx, email, address)
	if err != nil {
		return false, 0, err
	}
	now := s.now()
	cutoff := now.Add(-s.cfg.LoginWindow)
	var failures []time.Time
	for _, a := range history {
		if !a.Success && a.Timestamp.After(cutoff) {
			failures = append(failures, a.Timestamp)
		}
	}
	if len(failures) < s.cfg.LoginMaxFailures {
		return false, 0, nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].After(failures[j]) })
	// With failures newest first, the attempt that must age out for the
	// count to drop below the threshold is the max-th newest.
	pivot := failures[s.cfg.LoginMaxFailures-1]
	retryAfter = pivot.Add(s.cfg.LoginWindow).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return true, retryAfter, nil
}
