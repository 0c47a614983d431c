package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/telemetry"
)

// FetchFunc loads a value from the upstream on a cache miss. The returned
// value is marshaled to JSON for storage; errors should be *model.Failure
// so the taxonomy survives the cache (anything else is coerced).
type FetchFunc func(ctx context.Context) (any, error)

// Accessor is the cache-aside entry point used by services. It deduplicates
// concurrent fetches per key, stores short-lived negative entries for
// failing keys, and serves retained stale entries when a refresh fails.
type Accessor struct {
	store        Store
	logger       *slog.Logger
	negativeTTL  time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	requests     metric.Int64Counter
}

// NewAccessor wraps store. negativeTTL bounds how long a fetch failure is
// remembered; fetchTimeout bounds the detached upstream call a flight makes
// on behalf of all its waiters.
func NewAccessor(store Store, negativeTTL, fetchTimeout time.Duration, logger *slog.Logger) *Accessor {
	meter := telemetry.Meter("ichiba/cache")
	requests, _ := meter.Int64Counter("ichiba.cache.requests",
		metric.WithDescription("Cache lookups by outcome"),
	)
	return &Accessor{
		store:        store,
		logger:       logger,
		negativeTTL:  negativeTTL,
		fetchTimeout: fetchTimeout,
		requests:     requests,
	}
}

// GetOrFetch returns the entry for spec, calling fetch on a miss. Concurrent
// callers for the same canonical key share one fetch. A fresh negative entry
// returns its recorded failure without touching the upstream. When fetch
// fails and a stale entry is still retained, the stale entry is served with
// Stale=true and a nil error.
func (a *Accessor) GetOrFetch(ctx context.Context, spec KeySpec, ttl time.Duration, fetch FetchFunc) (Entry, error) {
	key := spec.Key()

	// Fast path: a fresh entry needs no flight.
	e, ok, err := a.store.Get(ctx, key)
	if err != nil {
		// A broken store degrades to fetch-always, it must not break reads.
		a.logger.Warn("cache read failed", "key", key, "error", err)
	}
	if ok && !e.Stale {
		if e.Negative() {
			a.count(ctx, spec.Operation, "negative")
			return e, e.Failure
		}
		a.count(ctx, spec.Operation, "hit")
		return e, nil
	}

	ch := a.group.DoChan(key, func() (any, error) {
		filled, ferr := a.fill(key, ttl, fetch)
		return filled, ferr
	})

	select {
	case <-ctx.Done():
		// The flight keeps running for the remaining waiters.
		return Entry{}, model.NewFailure(model.KindTimeout, true, "cache: wait for %q: %v", key, ctx.Err())
	case res := <-ch:
		filled, _ := res.Val.(Entry)
		switch {
		case res.Err != nil:
			a.count(ctx, spec.Operation, "negative")
			return filled, res.Err
		case filled.Stale:
			a.count(ctx, spec.Operation, "stale")
		default:
			a.count(ctx, spec.Operation, "miss")
		}
		return filled, nil
	}
}

// Invalidate drops the entry for spec. Used when a caller knows the cached
// value is no longer meaningful (e.g. after a provider-side correction).
func (a *Accessor) Invalidate(ctx context.Context, spec KeySpec) error {
	return a.store.Delete(ctx, spec.Key())
}

// fill runs inside a singleflight group: re-check the store, fetch, and
// write back. Returns the entry to serve and, for unmasked failures, the
// failure as the error.
func (a *Accessor) fill(key string, ttl time.Duration, fetch FetchFunc) (Entry, error) {
	// Detach from the first caller's context: singleflight reuses it, and a
	// canceled caller would poison every waiter.
	ctx, cancel := context.WithTimeout(context.Background(), a.fetchTimeout)
	defer cancel()

	// Double-check inside the flight; a previous flight may have just
	// filled the key.
	var stale Entry
	var hasStale bool
	if e, ok, err := a.store.Get(ctx, key); err == nil && ok {
		if !e.Stale {
			if e.Negative() {
				return e, e.Failure
			}
			return e, nil
		}
		stale, hasStale = e, true
	}

	payload, err := fetch(ctx)
	if err != nil {
		failure := model.AsFailure(err)
		if hasStale && !stale.Negative() {
			a.logger.Warn("serving stale entry after failed refresh",
				"key", key, "kind", failure.Kind, "error", failure.Message)
			return stale, nil
		}

		neg := Entry{Key: key, Failure: failure, StoredAt: time.Now(), TTL: a.negativeTTL}
		if serr := a.store.Set(ctx, neg); serr != nil {
			a.logger.Warn("cache negative write failed", "key", key, "error", serr)
		}
		return neg, failure
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("cache: encode payload for %q: %w", key, err)
	}

	e := Entry{Key: key, Value: raw, StoredAt: time.Now(), TTL: ttl}
	if serr := a.store.Set(ctx, e); serr != nil {
		a.logger.Warn("cache write failed", "key", key, "error", serr)
	}
	return e, nil
}

func (a *Accessor) count(ctx context.Context, operation, outcome string) {
	a.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.operation", operation),
		attribute.String("cache.outcome", outcome),
	))
}
