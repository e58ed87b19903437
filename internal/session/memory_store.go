package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process session store used in tests and when
// Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]memoryEntry
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[int64]memoryEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, senderID int64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[senderID]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.entries, senderID)
		return nil, ErrNotFound
	}
	st := entry.state
	return &st, nil
}

func (s *MemoryStore) Put(_ context.Context, senderID int64, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[senderID] = memoryEntry{
		state:     *st,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, senderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, senderID)
	return nil
}

// Sweep drops expired entries. Called periodically by the maintenance worker.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
