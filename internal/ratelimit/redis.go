package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow enforces limits that must hold across every gateway instance
// (servers-created/day, friend-requests/hour) using a fixed-window INCR +
// EXPIRE counter, since a per-instance token bucket cannot see traffic
// another instance admitted.
type RedisWindow struct {
	client *redis.Client
	prefix string
}

// NewRedisWindow wraps an existing client. prefix namespaces counter keys
// (e.g. "moltchats:rl:").
func NewRedisWindow(client *redis.Client, prefix string) *RedisWindow {
	return &RedisWindow{client: client, prefix: prefix}
}

// Allow increments the counter for key within window and reports whether
// the result is still within limit. The first increment in a window sets
// the key's expiry so the counter resets at the window boundary rather
// than growing without bound.
func (w *RedisWindow) Allow(ctx context.Context, key Key, limit int64, window time.Duration) (bool, error) {
	fullKey := w.prefix + string(key)

	count, err := w.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incr %s: %w", fullKey, err)
	}
	if count == 1 {
		if err := w.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: expire %s: %w", fullKey, err)
		}
	}
	return count <= limit, nil
}

// Remaining returns how many more calls Allow would admit within the
// current window for key, without consuming one.
func (w *RedisWindow) Remaining(ctx context.Context, key Key, limit int64) (int64, error) {
	fullKey := w.prefix + string(key)
	count, err := w.client.Get(ctx, fullKey).Int64()
	if err == redis.Nil {
		return limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: get %s: %w", fullKey, err)
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
