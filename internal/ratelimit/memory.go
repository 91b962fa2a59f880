package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. Each process (or server
// instance) has its own table, so running N instances admits up to N*Limit
// requests per identity per window.
type MemoryStore struct {
	limit   int
	window  time.Duration
	clock   Clock
	entries sync.Map // string -> *entry
}

type entry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
	evicted bool
}

// NewMemoryStore creates an in-memory store admitting limit requests per window.
func NewMemoryStore(limit int, window time.Duration, opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		limit:  limit,
		window: window,
		clock:  o.clock,
	}
}

// CheckAndIncrement implements Store. It never returns an error.
func (s *MemoryStore) CheckAndIncrement(_ context.Context, key string) (bool, error) {
	now := s.clock()
	s.evictExpired(now)

	for {
		v, _ := s.entries.LoadOrStore(key, &entry{})
		e := v.(*entry)

		e.mu.Lock()
		if e.evicted {
			// Lost a race with eviction; the key now maps to a new entry.
			e.mu.Unlock()
			continue
		}

		if e.count == 0 || !now.Before(e.resetAt) {
			e.count = 1
			e.resetAt = now.Add(s.window)
			e.mu.Unlock()
			return true, nil
		}

		if e.count >= s.limit {
			e.mu.Unlock()
			return false, nil
		}

		e.count++
		e.mu.Unlock()
		return true, nil
	}
}

// evictExpired drops every entry whose window has ended. Entries locked
// by an in-flight check are skipped; that check refreshes them anyway.
func (s *MemoryStore) evictExpired(now time.Time) {
	s.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		if !e.mu.TryLock() {
			return true
		}
		if e.count > 0 && !now.Before(e.resetAt) {
			e.evicted = true
			s.entries.CompareAndDelete(k, e)
		}
		e.mu.Unlock()
		return true
	})
}

// Len returns the number of tracked identities.
func (s *MemoryStore) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
