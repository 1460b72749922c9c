package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CounterStore persists usage counters. IncrementIfBelow is the critical
// contract: the read-modify-write must be atomic per key so that the boundary
// count cannot be crossed by concurrent consumers.
type CounterStore interface {
	// Current returns the counter value, or 0 when no row exists yet.
	Current(ctx context.Context, key CounterKey) (int64, error)

	// IncrementIfBelow increments the counter only while it is below the
	// ceiling, in one atomic operation. A ceiling of catalog.Unlimited always
	// increments. Returns false when the ceiling blocked the increment.
	IncrementIfBelow(ctx context.Context, key CounterKey, ceiling int64) (bool, error)

	// ResetAccount deletes every counter for an account. Called when a
	// different plan lineage becomes active.
	ResetAccount(ctx context.Context, accountID uuid.UUID) error

	// DeleteWindowsBefore garbage-collects stale windowed rows. Rows in the
	// fixed epoch window are never deleted. Stale rows are harmless; this
	// only reclaims space.
	DeleteWindowsBefore(ctx context.Context, before time.Time) error
}
