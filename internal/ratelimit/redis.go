package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements Limiter with a fixed-window counter in Redis,
// for limits that must hold across instances. Each key gets a counter
// that expires after the window; the first request in a window starts it.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter creates a fixed-window limiter allowing limit requests
// per window for each key. Counters are stored under "<prefix>:<key>".
// The client is shared and owned by the caller.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

// Allow increments the counter for key and reports whether it is still
// within the limit. A Redis failure fails open (true with the error) so an
// outage does not block traffic.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	full := r.prefix + ":" + key

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, full)
	// NX so only the first request in a window arms the expiry; a crash
	// between INCR and EXPIRE cannot leave an immortal counter.
	pipe.ExpireNX(ctx, full, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("ratelimit: incr %q: %w", full, err)
	}

	return incr.Val() <= r.limit, nil
}

// Window returns the counter window, used by callers to derive Retry-After.
func (r *RedisLimiter) Window() time.Duration { return r.window }

// Close is a no-op; the Redis client is shared and closed by its owner.
func (r *RedisLimiter) Close() error { return nil }
