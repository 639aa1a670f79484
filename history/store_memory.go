package history

import (
	"context"
	"sync"
)

// MemoryStore keeps invocation records in memory. Used by tests and by
// serve mode when no database path is configured.
type MemoryStore struct {
	mu   sync.Mutex
	recs []Record
	// cap bounds memory use; zero means unbounded.
	cap int
}

// NewMemoryStore creates a memory store holding at most capacity records.
// Older records are dropped first. capacity <= 0 means unbounded.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{cap: capacity}
}

// Append stores one record.
func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	if s.cap > 0 && len(s.recs) > s.cap {
		s.recs = s.recs[len(s.recs)-s.cap:]
	}
	return nil
}

// Recent returns the latest records, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	n := len(s.recs)
	if limit > n {
		limit = n
	}
	out := make([]Record, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
