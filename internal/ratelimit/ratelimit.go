// Package ratelimit provides a pluggable rate limiting interface.
//
// Two implementations ship: an in-memory token bucket (MemoryLimiter) for
// per-process limits such as outbound provider quotas, and a Redis-backed
// fixed-window counter (RedisLimiter) for limits that must hold across
// instances. The Limiter interface is the contract for both.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed.
	// The key is opaque — callers construct it (e.g. "twelvedata" or
	// "chat:<subject>"). Returning an error signals a limiter malfunction;
	// callers should treat errors as fail-open (permit the request) rather
	// than blocking traffic.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// waitPollInterval is how often WaitAllow re-checks the limiter while queued.
const waitPollInterval = 100 * time.Millisecond

// WaitAllow polls the limiter until a slot frees, the context is done, or
// maxWait elapses. It returns true as soon as a token is granted and false
// when the wait budget runs out. maxWait <= 0 degrades to a single Allow
// check. Limiter malfunctions fail open, matching the interface contract.
func WaitAllow(ctx context.Context, l Limiter, key string, maxWait time.Duration) (bool, error) {
	ok, err := l.Allow(ctx, key)
	if err != nil {
		return true, err
	}
	if ok || maxWait <= 0 {
		return ok, nil
	}

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	tick := time.NewTicker(waitPollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-tick.C:
			ok, err := l.Allow(ctx, key)
			if err != nil {
				return true, err
			}
			if ok {
				return true, nil
			}
		}
	}
}
