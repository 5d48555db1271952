// Package memory provides in-process implementations of the storage interfaces.
package memory

import (
	"context"
	"sort"
	"sync"

	"migration-sentinel/internal/domain"
	"migration-sentinel/internal/storage"
)

// RecordStore is an in-memory implementation of storage.RecordStore.
// Records are kept in arrival order.
type RecordStore struct {
	mu    sync.RWMutex
	data  map[string]*domain.Record // keyed by record_id
	order []string
}

// NewRecordStore creates a new in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		data: make(map[string]*domain.Record),
	}
}

// Append adds a new record. Returns ErrDuplicateKey if record_id exists.
func (s *RecordStore) Append(_ context.Context, r *domain.Record) error {
	if err := storage.ValidateRecord(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RecordID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	s.data[r.RecordID] = &copy
	s.order = append(s.order, r.RecordID)
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *RecordStore) GetByID(_ context.Context, recordID string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[recordID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// GetByToken retrieves all records for a token, ordered by recorded_at ASC.
func (s *RecordStore) GetByToken(_ context.Context, tokenID string) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Record
	for _, r := range s.data {
		if r.TokenID == tokenID {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].RecordedAt != result[j].RecordedAt {
			return result[i].RecordedAt < result[j].RecordedAt
		}
		return result[i].RecordID < result[j].RecordID
	})

	return result, nil
}

// Recent returns up to n records, newest first.
func (s *RecordStore) Recent(n int) []*domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Record
	for i := len(s.order) - 1; i >= 0 && len(result) < n; i-- {
		copy := *s.data[s.order[i]]
		result = append(result, &copy)
	}
	return result
}

// Len returns the number of stored records.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

var (
	_ storage.RecordStore  = (*RecordStore)(nil)
	_ storage.RecordReader = (*RecordStore)(nil)
)
