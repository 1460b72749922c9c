package catalog

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource loads plans from the plans table. Plan rows are treated as
// immutable seed data; the catalog snapshots them once at startup.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource wraps a pgx pool as a plan source.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

func (s *PGSource) Load(ctx context.Context) (map[string]Plan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, billing_interval, ceilings, created_at
		FROM plans`)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	defer rows.Close()

	plans := make(map[string]Plan)
	for rows.Next() {
		var (
			plan        Plan
			rawCeilings []byte
		)
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.Interval, &rawCeilings, &plan.CreatedAt); err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}
		if err := json.Unmarshal(rawCeilings, &plan.Ceilings); err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}
		plans[plan.ID] = plan
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return plans, nil
}
