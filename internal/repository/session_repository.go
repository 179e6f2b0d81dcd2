package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-auth/internal/model"
)

// SessionRepo persists SessionRecords.  The record lives at session:{p}:{fp}
// and its device metadata at session_meta:{p}:{fp}; both are always written,
// expired and deleted together.
type SessionRepo struct {
	rdb    redis.UniversalClient
	keys   Keyspace
	sealer Sealer
}

// Sealer encrypts small fields before they reach the store.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(encoded string) ([]byte, error)
}

func NewSessionRepo(rdb redis.UniversalClient, keys Keyspace) *SessionRepo {
	return &SessionRepo{rdb: rdb, keys: keys}
}

// WithSealer stores the originating address encrypted with s.
func (r *SessionRepo) WithSealer(s Sealer) *SessionRepo {
	r.sealer = s
	return r
}

func (r *SessionRepo) sealAddress(addr string) (string, error) {
	if r.sealer == nil || addr == "" {
		return addr, nil
	}
	return r.sealer.Seal([]byte(addr))
}

// openAddress returns "" for an address that no longer decrypts, e.g.
// after the key was rotated.
func (r *SessionRepo) openAddress(stored string) string {
	if r.sealer == nil || stored == "" {
		return stored
	}
	b, err := r.sealer.Open(stored)
	if err != nil {
		return ""
	}
	return string(b)
}

// sessionRow is the stored form of the session key; device metadata is kept
// under its own key.
type sessionRow struct {
	SessionID         string    `json:"session_id"`
	UserID            string    `json:"user_id"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	IPAddress         string    `json:"ip_address"`
	LoginTime         time.Time `json:"login_time"`
	LastActivity      time.Time `json:"last_activity"`
	IsActive          bool      `json:"is_active"`
}

// Save writes the session and its metadata with ttl, replacing any session
// already open on that device.
func (r *SessionRepo) Save(ctx context.Context, s model.SessionRecord, ttl time.Duration) error {
	addr, err := r.sealAddress(s.IPAddress)
	if err != nil {
		return fmt.Errorf("seal session address: %w", err)
	}
	row, err := json.Marshal(sessionRow{
		SessionID:         s.SessionID,
		UserID:            s.UserID,
		DeviceFingerprint: s.DeviceFingerprint,
		IPAddress:         addr,
		LoginTime:         s.LoginTime,
		LastActivity:      s.LastActivity,
		IsActive:          s.IsActive,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	meta, err := json.Marshal(s.Device)
	if err != nil {
		return fmt.Errorf("marshal session meta: %w", err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.keys.Session(s.UserID, s.DeviceFingerprint), row, ttl)
		p.Set(ctx, r.keys.SessionMeta(s.UserID, s.DeviceFingerprint), meta, ttl)
		return nil
	})
	if err != nil {
		return unavailable("save session", err)
	}
	return nil
}

// Get loads one session with its metadata.
func (r *SessionRepo) Get(ctx context.Context, userID, fingerprint string) (*model.SessionRecord, error) {
	vals, err := r.rdb.MGet(ctx, r.keys.Session(userID, fingerprint), r.keys.SessionMeta(userID, fingerprint)).Result()
	if err != nil {
		return nil, unavailable("get session", err)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, ErrNotFound
	}
	var row sessionRow
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		return nil, ErrNotFound
	}
	s := &model.SessionRecord{
		SessionID:         row.SessionID,
		UserID:            row.UserID,
		DeviceFingerprint: row.DeviceFingerprint,
		IPAddress:         r.openAddress(row.IPAddress),
		LoginTime:         row.LoginTime,
		LastActivity:      row.LastActivity,
		IsActive:          row.IsActive,
	}
	if m, ok := vals[1].(string); ok {
		_ = json.Unmarshal([]byte(m), &s.Device)
	}
	return s, nil
}

// Touch records activity at `at` and re-applies ttl to both keys.  It
// reports ErrNotFound when the session vanished in the meantime, so a touch
// never resurrects a deleted session.
func (r *SessionRepo) Touch(ctx context.Context, userID, fingerprint string, at time.Time, ttl time.Duration) error {
	key := r.keys.Session(userID, fingerprint)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("touch session", err)
	}
	var row sessionRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return ErrNotFound
	}
	row.LastActivity = at
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	var set *redis.BoolCmd
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		set = p.SetXX(ctx, key, b, ttl)
		p.Expire(ctx, r.keys.SessionMeta(userID, fingerprint), ttl)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("touch session", err)
	}
	if !set.Val() {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session and its metadata.  Absent keys are not an error.
func (r *SessionRepo) Delete(ctx context.Context, userID, fingerprint string) error {
	err := r.rdb.Del(ctx, r.keys.Session(userID, fingerprint), r.keys.SessionMeta(userID, fingerprint)).Err()
	if err != nil {
		return unavailable("delete session", err)
	}
	return nil
}

// ListForUser returns every stored session of a principal, active or not.
func (r *SessionRepo) ListForUser(ctx context.Context, userID string) ([]model.SessionRecord, error) {
	keys, err := scanKeys(ctx, r.rdb, r.keys.SessionPattern(userID))
	if err != nil {
		return nil, unavailable("scan sessions", err)
	}
	seen := make(map[string]bool, len(keys))
	out := make([]model.SessionRecord, 0, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		fp := key[len(r.keys.Session(userID, "")):]
		s, err := r.Get(ctx, userID, fp)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}
