package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store backed by a process-local map. Intended for tests
// and single-node development setups. It enforces the same row constraints
// the database schema does: unique non-failed lineage per provider, and at
// most one active row per account.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*Subscription
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]*Subscription)}
}

func (s *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.rows {
		if row.Provider == sub.Provider &&
			row.ProviderOriginalTransactionID == sub.ProviderOriginalTransactionID &&
			row.Status != StatusFailed {
			return ErrDuplicateRow
		}
	}
	if err := s.checkOneActive(sub); err != nil {
		return err
	}

	cp := *sub
	s.rows[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) Update(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[sub.ID]; !ok {
		return ErrNotFound
	}
	if err := s.checkOneActive(sub); err != nil {
		return err
	}
	cp := *sub
	s.rows[sub.ID] = &cp
	return nil
}

// checkOneActive rejects a write that would leave the account with two active
// rows, mirroring the partial unique index on the subscriptions table.
// Callers hold s.mu.
func (s *MemoryStore) checkOneActive(sub *Subscription) error {
	if sub.Status != StatusActive {
		return nil
	}
	for _, row := range s.rows {
		if row.AccountID == sub.AccountID && row.Status == StatusActive && row.ID != sub.ID {
			return ErrActiveRowExists
		}
	}
	return nil
}

func (s *MemoryStore) GetByLineage(_ context.Context, provider Provider, lineageID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fallback *Subscription
	for _, row := range s.rows {
		if row.Provider != provider || row.ProviderOriginalTransactionID != lineageID {
			continue
		}
		if row.Status != StatusFailed {
			cp := *row
			return &cp, nil
		}
		if fallback == nil || row.UpdatedAt.After(fallback.UpdatedAt) {
			fallback = row
		}
	}
	if fallback != nil {
		cp := *fallback
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ActiveByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	rows, err := s.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *MemoryStore) ListActiveByAccount(_ context.Context, accountID uuid.UUID) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Subscription
	for _, row := range s.rows {
		if row.AccountID == accountID && row.Status == StatusActive {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) LatestByAccount(_ context.Context, accountID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *Subscription
	for _, row := range s.rows {
		if row.AccountID != accountID {
			continue
		}
		if latest == nil || row.UpdatedAt.After(latest.UpdatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) ListPendingBefore(_ context.Context, cutoff time.Time) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Subscription
	for _, row := range s.rows {
		if row.Status == StatusPending && row.UpdatedAt.Before(cutoff) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}
