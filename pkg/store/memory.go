package store

import (
	"context"
	"sync"

	"github.com/auditflow/auditflow/internal/model"
)

// MemoryStore keeps records in memory. It backs dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records []*model.EventRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Init is a no-op.
func (s *MemoryStore) Init(ctx context.Context) error { return nil }

// WriteBatch appends all records.
func (s *MemoryStore) WriteBatch(ctx context.Context, records []*model.EventRecord) (WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return WriteResult{Stored: len(records)}, nil
}

// Records returns a snapshot of everything written so far.
func (s *MemoryStore) Records() []*model.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.EventRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
