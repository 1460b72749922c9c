package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/catalog"
)

// MemoryStore is a CounterStore backed by a process-local map. A single mutex
// serializes increments, which gives the same atomicity the PostgreSQL
// implementation gets from a conditional UPDATE.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[CounterKey]int64
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[CounterKey]int64)}
}

func (s *MemoryStore) Current(_ context.Context, key CounterKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

func (s *MemoryStore) IncrementIfBelow(_ context.Context, key CounterKey, ceiling int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.counters[key]
	if ceiling != catalog.Unlimited && current >= ceiling {
		return false, nil
	}
	s.counters[key] = current + 1
	return true, nil
}

func (s *MemoryStore) ResetAccount(_ context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.counters {
		if key.AccountID == accountID {
			delete(s.counters, key)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteWindowsBefore(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.counters {
		if key.WindowStart.Equal(epochWindow) {
			continue
		}
		if key.WindowStart.Before(before) {
			delete(s.counters, key)
		}
	}
	return nil
}
