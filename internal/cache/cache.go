// Package cache implements the cache-aside layer between services and the
// upstream market-data providers.
//
// Every cacheable upstream call is identified by a KeySpec, canonicalized so
// equivalent requests (parameter order, case, whitespace) map to the same
// key. The Accessor wraps a Store with single-flight fetch deduplication,
// short-lived negative entries for failing keys, and stale-if-error reads
// from the retention window past expiry.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
)

// KeySpec identifies one cacheable upstream call.
type KeySpec struct {
	Provider  string            // e.g. "twelvedata", "fmp", "tavily", "analysis"
	Operation string            // e.g. "price", "fundamentals", "news"
	Params    map[string]string // request parameters, canonicalized into the key
}

// Key returns the canonical cache key: "provider:operation:k=v,k=v" with
// params sorted by name, trimmed, and case-folded. Values are query-escaped
// so separators inside values cannot collide with the key syntax.
func (s KeySpec) Key() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(s.Provider)))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(strings.TrimSpace(s.Operation)))

	if len(s.Params) == 0 {
		return b.String()
	}

	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteByte(':')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		v := strings.ToLower(strings.TrimSpace(s.Params[name]))
		b.WriteString(strings.ToLower(strings.TrimSpace(name)))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(v))
	}
	return b.String()
}

// Entry is one cached value. Either Value (a JSON payload) or Failure (a
// negative entry recording a recent fetch failure) is set, never both.
type Entry struct {
	Key      string
	Value    []byte
	Failure  *model.Failure
	StoredAt time.Time
	TTL      time.Duration

	// Stale is set on read when the entry is past its TTL but still within
	// the store's retention window. Stale entries are only served when a
	// refresh fails.
	Stale bool
}

// Negative reports whether the entry records a failure instead of a payload.
func (e Entry) Negative() bool { return e.Failure != nil }

// fresh reports whether the entry is within its TTL at now.
func (e Entry) fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) <= e.TTL
}

// Store is the persistence half of the cache layer. Implementations must
// retain expired entries for their configured retention window, returning
// them with Stale=true, and drop them entirely afterwards.
type Store interface {
	// Get returns the entry for key. ok is false when the key is absent or
	// past TTL+retention.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)

	// Set stores an entry under e.Key.
	Set(ctx context.Context, e Entry) error

	// Delete removes an entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}

// Decode unmarshals an entry's payload into T. Negative entries decode to
// their recorded failure.
func Decode[T any](e Entry) (T, error) {
	var v T
	if e.Failure != nil {
		return v, e.Failure
	}
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return v, fmt.Errorf("cache: decode %s: %w", e.Key, err)
	}
	return v, nil
}
