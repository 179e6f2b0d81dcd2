package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter and arms its expiry on the first
// hit of a window.  A key that somehow lost its TTL is re-armed so it cannot
// block forever.  Returns {count, pttl_ms}.
var fixedWindowScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return { n, ttl }
`)

// RateCounter is an atomic per-key request counter.
type RateCounter struct {
	rdb  redis.UniversalClient
	keys Keyspace
}

func NewRateCounter(rdb redis.UniversalClient, keys Keyspace) *RateCounter {
	return &RateCounter{rdb: rdb, keys: keys}
}

// Incr atomically increments the counter for (subject, route) and returns the
// post-increment count and the time left in the current window.
func (r *RateCounter) Incr(ctx context.Context, subject, route string, window time.Duration) (int64, time.Duration, error) {
	key := r.keys.RateLimit(subject, route)
	vals, err := fixedWindowScript.Run(ctx, r.rdb, []string{key}, window.Milliseconds()).Result()
	if err != nil {
		return 0, 0, unavailable("rate limit incr", err)
	}
	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 2 {
		return 0, 0, fmt.Errorf("rate limit incr: unexpected script result %#v", vals)
	}
	return asInt64(arr[0]), time.Duration(asInt64(arr[1])) * time.Millisecond, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
