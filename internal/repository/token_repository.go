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

// TokenRepo persists refresh-token bindings in Redis.  There is exactly one
// record per (principal, device fingerprint); Store overwrites.
type TokenRepo struct {
	rdb  redis.UniversalClient
	keys Keyspace
}

func NewTokenRepo(rdb redis.UniversalClient, keys Keyspace) *TokenRepo {
	return &TokenRepo{rdb: rdb, keys: keys}
}

// StoreRefresh writes rec with the given TTL, replacing any prior record for
// the same device.
func (r *TokenRepo) StoreRefresh(ctx context.Context, rec model.RefreshTokenRecord, ttl time.Duration) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}
	if err := r.rdb.Set(ctx, r.keys.RefreshToken(rec.UserID, rec.DeviceFingerprint), b, ttl).Err(); err != nil {
		return unavailable("store refresh", err)
	}
	return nil
}

// GetRefresh loads the live record for a device.  ErrNotFound means the
// binding was revoked, rotated away or expired.
func (r *TokenRepo) GetRefresh(ctx context.Context, userID, fingerprint string) (*model.RefreshTokenRecord, error) {
	b, err := r.rdb.Get(ctx, r.keys.RefreshToken(userID, fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get refresh", err)
	}
	var rec model.RefreshTokenRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		// a record we cannot read cannot be matched; treat it as gone
		return nil, ErrNotFound
	}
	return &rec, nil
}

// RevokeRefresh deletes the binding for one device.  Deleting an absent key
// is not an error.
func (r *TokenRepo) RevokeRefresh(ctx context.Context, userID, fingerprint string) error {
	if err := r.rdb.Del(ctx, r.keys.RefreshToken(userID, fingerprint)).Err(); err != nil {
		return unavailable("revoke refresh", err)
	}
	return nil
}

// RevokeAllForUser deletes every binding whose key begins with the principal
// and returns how many were removed.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	keys, err := scanKeys(ctx, r.rdb, r.keys.RefreshTokenPattern(userID))
	if err != nil {
		return 0, unavailable("scan refresh", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, unavailable("revoke all refresh", err)
	}
	return int(n), nil
}

// BlacklistRepo stores hashes of explicitly revoked access tokens.
type BlacklistRepo struct {
	rdb  redis.UniversalClient
	keys Keyspace
}

func NewBlacklistRepo(rdb redis.UniversalClient, keys Keyspace) *BlacklistRepo {
	return &BlacklistRepo{rdb: rdb, keys: keys}
}

// Add records tokenHash for ttl.  The entry expires with the token.
func (r *BlacklistRepo) Add(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, r.keys.Blacklist(tokenHash), "1", ttl).Err(); err != nil {
		return unavailable("blacklist add", err)
	}
	return nil
}

// Contains reports whether tokenHash is blacklisted.
func (r *BlacklistRepo) Contains(ctx context.Context, tokenHash string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.keys.Blacklist(tokenHash)).Result()
	if err != nil {
		return false, unavailable("blacklist check", err)
	}
	return n > 0, nil
}

// scanKeys collects every key matching pattern with SCAN rather than KEYS so
// a large keyspace never blocks the server.
func scanKeys(ctx context.Context, rdb redis.UniversalClient, pattern string) ([]string, error) {
	var (
		out    []string
		cursor uint64
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			return out, nil
		}
	}
}
