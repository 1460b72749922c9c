package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orbitnotes/entitlements/pkg/pg"
)

// PGStore is the PostgreSQL-backed Store. Lineage uniqueness among non-failed
// rows is enforced by a partial unique index, so concurrent creators race on
// the database rather than on application state.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a pgx pool as a subscription Store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const subscriptionColumns = `id, account_id, plan_id, status, provider,
	provider_transaction_id, provider_original_transaction_id,
	start_at, end_at, validation_status, last_validated_at,
	is_trial, is_intro_offer, receipt_blob, note, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		sub.ID, sub.AccountID, sub.PlanID, sub.Status, sub.Provider,
		sub.ProviderTransactionID, sub.ProviderOriginalTransactionID,
		sub.StartAt, sub.EndAt, sub.ValidationStatus, sub.LastValidatedAt,
		sub.IsTrial, sub.IsIntroOffer, sub.ReceiptBlob, sub.Note,
		sub.CreatedAt, sub.UpdatedAt)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(ErrDuplicateRow, err)
	}
	return err
}

func (s *PGStore) Update(ctx context.Context, sub *Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			plan_id = $2, status = $3,
			provider_transaction_id = $4,
			start_at = $5, end_at = $6,
			validation_status = $7, last_validated_at = $8,
			is_trial = $9, is_intro_offer = $10,
			receipt_blob = $11, note = $12, updated_at = $13
		WHERE id = $1`,
		sub.ID, sub.PlanID, sub.Status,
		sub.ProviderTransactionID,
		sub.StartAt, sub.EndAt,
		sub.ValidationStatus, sub.LastValidatedAt,
		sub.IsTrial, sub.IsIntroOffer,
		sub.ReceiptBlob, sub.Note, sub.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) GetByLineage(ctx context.Context, provider Provider, lineageID string) (*Subscription, error) {
	// Non-failed rows sort first so a retried lineage resolves to the live row.
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE provider = $1 AND provider_original_transaction_id = $2
		ORDER BY (status = 'failed'), updated_at DESC
		LIMIT 1`, provider, lineageID)
	return scanSubscription(row)
}

func (s *PGStore) ActiveByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1 AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1`, accountID)
	return scanSubscription(row)
}

func (s *PGStore) ListActiveByAccount(ctx context.Context, accountID uuid.UUID) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1 AND status = 'active'
		ORDER BY updated_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func (s *PGStore) LatestByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, accountID)
	return scanSubscription(row)
}

func (s *PGStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE status = 'pending' AND updated_at < $1
		ORDER BY updated_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.AccountID, &sub.PlanID, &sub.Status, &sub.Provider,
		&sub.ProviderTransactionID, &sub.ProviderOriginalTransactionID,
		&sub.StartAt, &sub.EndAt, &sub.ValidationStatus, &sub.LastValidatedAt,
		&sub.IsTrial, &sub.IsIntroOffer, &sub.ReceiptBlob, &sub.Note,
		&sub.CreatedAt, &sub.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func scanSubscriptions(rows pgx.Rows) ([]*Subscription, error) {
	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
