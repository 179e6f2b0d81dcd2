package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-auth/internal/model"
)

// LoginAttemptRepo keeps a bounded most-recent-first history of login
// attempts per (email, address), independent of whether the email resolves
// to a principal.
type LoginAttemptRepo struct {
	rdb  redis.UniversalClient
	keys Keyspace
}

func NewLoginAttemptRepo(rdb redis.UniversalClient, keys Keyspace) *LoginAttemptRepo {
	return &LoginAttemptRepo{rdb: rdb, keys: keys}
}

// Push prepends a, trims the list to size entries and re-applies ttl, all in
// one MULTI so concurrent pushes cannot grow the list past size.
func (r *LoginAttemptRepo) Push(ctx context.Context, a model.LoginAttempt, size int, ttl time.Duration) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal login attempt: %w", err)
	}
	key := r.keys.LoginAttempts(a.Email, a.IPAddress)
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, b)
		p.LTrim(ctx, key, 0, int64(size-1))
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return unavailable("record login attempt", err)
	}
	return nil
}

// Recent returns the stored history, newest first.
func (r *LoginAttemptRepo) Recent(ctx context.Context, email, address string) ([]model.LoginAttempt, error) {
	raw, err := r.rdb.LRange(ctx, r.keys.LoginAttempts(email, address), 0, -1).Result()
	if err != nil {
		return nil, unavailable("load login attempts", err)
	}
	out := make([]model.LoginAttempt, 0, len(raw))
	for _, s := range raw {
		var a model.LoginAttempt
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
