package idempotency

import (
	"context"
	"sync"
	"time"

	"regulonlabs.com/casedesk/internal/models"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.IdempotencyRecord
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.IdempotencyRecord),
		now:     time.Now,
	}
}

// Lookup returns the record for key, or (nil, nil) when absent or expired.
func (s *MemoryStore) Lookup(_ context.Context, key string) (*models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	if s.now().Sub(rec.CreatedAt) > RetentionWindow {
		delete(s.records, key)
		return nil, nil
	}
	out := rec
	return &out, nil
}

// Record inserts rec if its key is absent. When the key already exists the
// original record wins and is returned to the caller.
func (s *MemoryStore) Record(_ context.Context, rec models.IdempotencyRecord) (*models.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok {
		out := existing
		return &out, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.records[rec.Key] = rec
	out := rec
	return &out, nil
}
