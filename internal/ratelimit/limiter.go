// Package ratelimit throttles repeated attempts per key in a fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter counts attempts per key.
type Limiter interface {
	// Allow records an attempt and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
	// Reset forgets all attempts for key.
	Reset(ctx context.Context, key string) error
}

type redisLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter allows limit attempts per key every window. Keys are namespaced by prefix.
func NewRedisLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) Limiter {
	return &redisLimiter{rdb: rdb, prefix: prefix, limit: int64(limit), window: window}
}

func (l *redisLimiter) key(k string) string {
	return "ratelimit:" + l.prefix + ":" + k
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	k := l.key(key)
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr %s: %w", k, err)
	}
	if n == 1 {
		// window starts with the first attempt
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("redis expire %s: %w", k, err)
		}
	}
	return n <= l.limit, nil
}

func (l *redisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

type noop struct{}

// Noop never limits. Used when Redis is not configured.
func Noop() Limiter { return noop{} }

func (noop) Allow(context.Context, string) (bool, error) { return true, nil }
func (noop) Reset(context.Context, string) error          { return nil }
