package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for subscription rows. Implementations
// must guarantee the uniqueness of (provider, original transaction id) among
// non-failed rows; the reconciler relies on it to route renewals to the
// existing row.
type Store interface {
	// Create inserts a new row. Returns ErrDuplicateRow when a non-failed row
	// for the same (provider, lineage) already exists.
	Create(ctx context.Context, sub *Subscription) error

	// Update persists changes to an existing row, keyed by ID.
	// Returns ErrNotFound when the row does not exist.
	Update(ctx context.Context, sub *Subscription) error

	// GetByLineage returns the row for a purchase lineage, preferring the
	// non-failed row when both exist. Returns ErrNotFound when no row exists.
	GetByLineage(ctx context.Context, provider Provider, lineageID string) (*Subscription, error)

	// ActiveByAccount returns the single active row for an account, or
	// ErrNotFound. More than one active row is an invariant violation the
	// reconciler repairs via ListActiveByAccount.
	ActiveByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// ListActiveByAccount returns every active row for an account, newest
	// activation first. Used by the reconciler's supersession and defensive
	// invariant checks.
	ListActiveByAccount(ctx context.Context, accountID uuid.UUID) ([]*Subscription, error)

	// LatestByAccount returns the account's most recently updated row of any
	// status, or ErrNotFound. Used by resubscribe to locate the canceled row.
	LatestByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// ListPendingBefore returns rows stuck in pending whose last update is
	// older than the cutoff, for the retry sweep.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
}
