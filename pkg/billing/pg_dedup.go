package billing

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGDedupSet tracks notification ids in the billing_events table. The primary
// key makes MarkSeen atomic; deployments without Redis use this instead.
type PGDedupSet struct {
	pool *pgxpool.Pool
}

// NewPGDedupSet wraps a pgx pool as a dedup set.
func NewPGDedupSet(pool *pgxpool.Pool) *PGDedupSet {
	return &PGDedupSet{pool: pool}
}

func (s *PGDedupSet) MarkSeen(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO billing_events (notification_id)
		VALUES ($1)
		ON CONFLICT (notification_id) DO NOTHING`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GC drops ids older than the retention window. The reconciler's lineage
// checks absorb any duplicate that slips through after its id aged out.
func (s *PGDedupSet) GC(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)
	_, err := s.pool.Exec(ctx, `
		DELETE FROM billing_events
		WHERE seen_at < $1`, cutoff)
	return err
}
