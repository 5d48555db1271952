// Package dedup remembers which tokens have already been handled.
package dedup

import (
	"context"
	"time"

	"migration-sentinel/internal/cache"
)

// Store is the seen-set. MarkIfNew atomically inserts token and reports
// whether it was absent; a token is reported new at most once per retention.
type Store interface {
	MarkIfNew(ctx context.Context, token string) (bool, error)
	Close() error
}

// DefaultCapacity bounds the in-memory seen-set.
const DefaultCapacity = 100_000

// MemoryStore is a process-local seen-set.
type MemoryStore struct {
	seen *cache.LRU[string, struct{}]
}

// NewMemoryStore creates a MemoryStore. A zero ttl keeps tokens until
// capacity eviction, which with a large capacity approximates process lifetime.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{seen: cache.NewLRU[string, struct{}](capacity, ttl)}
}

// MarkIfNew implements Store.
func (s *MemoryStore) MarkIfNew(_ context.Context, token string) (bool, error) {
	return s.seen.PutIfAbsent(token, struct{}{}), nil
}

// Len returns the number of remembered tokens.
func (s *MemoryStore) Len() int {
	return s.seen.Len()
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
