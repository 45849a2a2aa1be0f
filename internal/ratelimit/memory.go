package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in process memory. It is correct for a single server instance only;
// multi-instance deployments need RedisStore so every instance shares one budget.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

type memoryEntry struct {
	Entry
	window time.Duration
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

// Name implements Store.
func (s *MemoryStore) Name() string { return "memory" }

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, cfg Config, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &memoryEntry{Entry: Entry{Key: key}}
		s.entries[key] = e
	}
	e.window = cfg.Window
	return advance(&e.Entry, cfg, now), nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Lookup returns a copy of the entry for key, or nil.
func (s *MemoryStore) Lookup(key string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	cp := e.Entry
	if e.BlockedUntil != nil {
		until := *e.BlockedUntil
		cp.BlockedUntil = &until
	}
	return &cp
}

// Snapshot implements Store.
func (s *MemoryStore) Snapshot(_ context.Context, now time.Time) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Tracked: len(s.entries)}
	for _, e := range s.entries {
		if e.BlockedUntil != nil && now.Before(*e.BlockedUntil) {
			snap.Blocked++
		}
	}
	return snap, nil
}

// Sweep evicts entries whose window and block have both elapsed.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for k, e := range s.entries {
		if expired(&e.Entry, e.window, now) {
			delete(s.entries, k)
			evicted++
		}
	}
	return evicted, nil
}
