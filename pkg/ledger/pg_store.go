package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbitnotes/entitlements/pkg/catalog"
	"github.com/orbitnotes/entitlements/pkg/pg"
)

// PGStore is the PostgreSQL-backed CounterStore. The increment is a single
// conditional upsert, so the ceiling check and the write happen in one
// round trip under the row lock the database already takes.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pgx pool as a counter store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Current(ctx context.Context, key CounterKey) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count FROM usage_counters
		WHERE account_id = $1 AND resource_kind = $2 AND window_start = $3`,
		key.AccountID, key.Kind, key.WindowStart).Scan(&count)
	if pg.IsNotFoundError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PGStore) IncrementIfBelow(ctx context.Context, key CounterKey, ceiling int64) (bool, error) {
	// A zero ceiling can never admit a unit; the upsert below would otherwise
	// insert the first row unconditionally.
	if ceiling == 0 {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO usage_counters (account_id, resource_kind, window_start, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (account_id, resource_kind, window_start)
		DO UPDATE SET count = usage_counters.count + 1
		WHERE $4::bigint = $5 OR usage_counters.count < $4`,
		key.AccountID, key.Kind, key.WindowStart, ceiling, catalog.Unlimited)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGStore) ResetAccount(ctx context.Context, accountID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM usage_counters WHERE account_id = $1`, accountID)
	return err
}

func (s *PGStore) DeleteWindowsBefore(ctx context.Context, before time.Time) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM usage_counters
		WHERE window_start > to_timestamp(0) AND window_start < $1`, before)
	return err
}
