package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashita-ai/ichiba/internal/model"
)

// RedisStore is a Store backed by Redis, for deployments where multiple
// instances must share one cache. Entries are stored as JSON envelopes with
// a Redis expiry of TTL+retention; staleness within the retention window is
// computed from the recorded store time on read.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// redisEnvelope is the wire form of an Entry in Redis.
type redisEnvelope struct {
	Value    json.RawMessage `json:"value,omitempty"`
	Failure  *model.Failure  `json:"failure,omitempty"`
	StoredAt time.Time       `json:"stored_at"`
	TTLMS    int64           `json:"ttl_ms"`
}

// NewRedisStore creates a store writing keys under "<prefix>:". The client
// is shared and owned by the caller; Close does not close it.
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, retention: retention}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + key
}

// Get returns the entry for key, marking it stale when past TTL. Keys past
// TTL+retention have expired in Redis and read as absent.
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis get %q: %w", key, err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// A corrupt entry is unreadable; drop it and report a miss.
		_ = s.client.Del(ctx, s.redisKey(key)).Err()
		return Entry{}, false, nil
	}

	e := Entry{
		Key:      key,
		Value:    env.Value,
		Failure:  env.Failure,
		StoredAt: env.StoredAt,
		TTL:      time.Duration(env.TTLMS) * time.Millisecond,
	}
	if !e.fresh(time.Now()) {
		e.Stale = true
	}
	return e, true, nil
}

// Set stores an entry with a Redis expiry of TTL+retention.
func (s *RedisStore) Set(ctx context.Context, e Entry) error {
	env := redisEnvelope{
		Value:    e.Value,
		Failure:  e.Failure,
		StoredAt: e.StoredAt,
		TTLMS:    e.TTL.Milliseconds(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", e.Key, err)
	}

	expiry := e.TTL + s.retention
	if err := s.client.Set(ctx, s.redisKey(e.Key), raw, expiry).Err(); err != nil {
		return fmt.Errorf("cache: redis set %q: %w", e.Key, err)
	}
	return nil
}

// Delete removes an entry. Deleting an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: redis del %q: %w", key, err)
	}
	return nil
}

// Close is a no-op; the Redis client is shared and closed by its owner.
func (s *RedisStore) Close() error { return nil }
