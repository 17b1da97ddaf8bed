// Package ratelimit implements a fixed-window request limiter backed by
// Redis INCR+EXPIRE, used to throttle deployment intake per client.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter limits intake requests per key (typically a client IP) using a
// fixed window counter in Redis.
type Limiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
}

// New creates a Limiter. max is the number of requests allowed per key
// within window.
func New(rdb *redis.Client, max int, window time.Duration) *Limiter {
	return &Limiter{redis: rdb, max: max, window: window}
}

// Result holds the outcome of a Check.
type Result struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// Check returns whether key is currently allowed, without recording a hit.
func (l *Limiter) Check(ctx context.Context, key string) (*Result, error) {
	count, err := l.redis.Get(ctx, redisKey(key)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}

	if count >= l.max {
		ttl, err := l.redis.TTL(ctx, redisKey(key)).Result()
		if err != nil {
			return nil, fmt.Errorf("getting rate limit TTL: %w", err)
		}
		return &Result{Allowed: false, RetryAt: time.Now().Add(ttl)}, nil
	}

	return &Result{Allowed: true, Remaining: l.max - count}, nil
}

// Allow records a hit for key and reports whether it was allowed under the
// configured limit. It increments the counter and, on the first hit of a
// window, sets the window's expiry.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	k := redisKey(key)

	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("setting rate limit expiry: %w", err)
		}
	}

	return count <= int64(l.max), nil
}

func redisKey(key string) string {
	return fmt.Sprintf("deployify:intake_ratelimit:%s", key)
}
