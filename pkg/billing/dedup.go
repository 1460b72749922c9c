package billing

import (
	"context"
	"sync"
	"time"
)

// DedupSet tracks processed notification ids with bounded retention.
// Retention only needs to exceed the provider's redelivery horizon; an id
// aging out after that is harmless because the lineage lookup in the
// reconciler absorbs true duplicates anyway.
type DedupSet interface {
	// MarkSeen records the id and reports whether this was its first
	// appearance within the retention window.
	MarkSeen(ctx context.Context, id string) (first bool, err error)
}

// MemoryDedupSet is a process-local DedupSet for tests and single-node
// deployments.
type MemoryDedupSet struct {
	retention time.Duration
	now       func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryDedupSet creates a dedup set that forgets ids after retention.
func NewMemoryDedupSet(retention time.Duration) *MemoryDedupSet {
	return &MemoryDedupSet{
		retention: retention,
		now:       time.Now,
		seen:      make(map[string]time.Time),
	}
}

func (s *MemoryDedupSet) MarkSeen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, at := range s.seen {
		if now.Sub(at) > s.retention {
			delete(s.seen, key)
		}
	}

	if _, ok := s.seen[id]; ok {
		return false, nil
	}
	s.seen[id] = now
	return true, nil
}
