package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. It is the default when no Redis
// address is configured and is sufficient for a single instance.
//
// Entries are kept for TTL+retention; a background goroutine sweeps the
// map every minute. Call Close to stop it.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	retention time.Duration
	done      chan struct{}
	stopOnce  sync.Once
}

// NewMemoryStore creates a store that retains expired entries for retention
// past their TTL so the accessor can serve them stale when a refresh fails.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:   make(map[string]Entry),
		retention: retention,
		done:      make(chan struct{}),
	}
	go s.evictLoop()
	return s
}

// Get returns the entry for key. Entries past TTL but within retention come
// back with Stale=true; entries past retention are treated as absent.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}

	now := time.Now()
	if e.fresh(now) {
		return e, true, nil
	}
	if now.Sub(e.StoredAt) <= e.TTL+s.retention {
		e.Stale = true
		return e, true, nil
	}
	return Entry{}, false, nil
}

// Set stores an entry under e.Key.
func (s *MemoryStore) Set(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Stale = false
	s.entries[e.Key] = e
	return nil
}

// Delete removes an entry.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close stops the background eviction goroutine. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.done) })
	return nil
}

// evictLoop removes entries past retention every minute.
func (s *MemoryStore) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *MemoryStore) evictExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if now.Sub(e.StoredAt) > e.TTL+s.retention {
			delete(s.entries, k)
		}
	}
}
