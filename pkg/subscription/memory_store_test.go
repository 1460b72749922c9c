package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitnotes/entitlements/pkg/subscription"
)

func newRow(accountID uuid.UUID, lineage string, status subscription.Status, updatedAt time.Time) *subscription.Subscription {
	return &subscription.Subscription{
		ID:                            uuid.New(),
		AccountID:                     accountID,
		PlanID:                        "pro_monthly",
		Status:                        status,
		Provider:                      subscription.ProviderApple,
		ProviderOriginalTransactionID: lineage,
		StartAt:                       updatedAt,
		CreatedAt:                     updatedAt,
		UpdatedAt:                     updatedAt,
	}
}

func TestMemoryStoreLineageUniqueness(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, newRow(accountID, "txn-1", subscription.StatusActive, now)))

	err := store.Create(ctx, newRow(accountID, "txn-1", subscription.StatusActive, now))
	require.ErrorIs(t, err, subscription.ErrDuplicateRow)

	// Failed rows do not occupy the lineage; a fresh attempt may coexist.
	require.NoError(t, store.Create(ctx, newRow(accountID, "txn-2", subscription.StatusFailed, now)))
	require.NoError(t, store.Create(ctx, newRow(accountID, "txn-2", subscription.StatusPending, now)))
}

func TestMemoryStoreOneActivePerAccount(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, newRow(accountID, "txn-1", subscription.StatusActive, now)))

	err := store.Create(ctx, newRow(accountID, "txn-2", subscription.StatusActive, now))
	require.ErrorIs(t, err, subscription.ErrActiveRowExists)

	// Flipping an existing row to active collides the same way.
	canceled := newRow(accountID, "txn-3", subscription.StatusCanceled, now)
	require.NoError(t, store.Create(ctx, canceled))
	canceled.Status = subscription.StatusActive
	require.ErrorIs(t, store.Update(ctx, canceled), subscription.ErrActiveRowExists)

	// Other accounts are unaffected.
	require.NoError(t, store.Create(ctx, newRow(uuid.New(), "txn-4", subscription.StatusActive, now)))
}

func TestMemoryStoreGetByLineagePrefersNonFailed(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Now().UTC()

	failed := newRow(accountID, "txn-1", subscription.StatusFailed, now)
	require.NoError(t, store.Create(ctx, failed))
	live := newRow(accountID, "txn-1", subscription.StatusActive, now.Add(time.Minute))
	require.NoError(t, store.Create(ctx, live))

	got, err := store.GetByLineage(ctx, subscription.ProviderApple, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	_, err = store.GetByLineage(ctx, subscription.ProviderCard, "txn-1")
	require.ErrorIs(t, err, subscription.ErrNotFound, "lineages are scoped per provider")
}

func TestMemoryStoreGetByLineageFallsBackToFailedRow(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Now().UTC()

	older := newRow(accountID, "txn-1", subscription.StatusFailed, now.Add(-time.Hour))
	newer := newRow(accountID, "txn-1", subscription.StatusFailed, now)
	require.NoError(t, store.Create(ctx, older))
	require.NoError(t, store.Create(ctx, newer))

	got, err := store.GetByLineage(ctx, subscription.ProviderApple, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID, "the most recent failed attempt wins")
}

func TestMemoryStoreActiveByAccount(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Now().UTC()

	_, err := store.ActiveByAccount(ctx, accountID)
	require.ErrorIs(t, err, subscription.ErrNotFound)

	require.NoError(t, store.Create(ctx, newRow(accountID, "txn-1", subscription.StatusCanceled, now)))
	require.NoError(t, store.Create(ctx, newRow(uuid.New(), "txn-2", subscription.StatusActive, now)))

	_, err = store.ActiveByAccount(ctx, accountID)
	require.ErrorIs(t, err, subscription.ErrNotFound, "other accounts' rows never leak")

	active := newRow(accountID, "txn-3", subscription.StatusActive, now)
	require.NoError(t, store.Create(ctx, active))

	got, err := store.ActiveByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)
}

func TestMemoryStoreLatestByAccount(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()
	now := time.Now().UTC()

	_, err := store.LatestByAccount(ctx, accountID)
	require.ErrorIs(t, err, subscription.ErrNotFound)

	require.NoError(t, store.Create(ctx, newRow(accountID, "txn-1", subscription.StatusExpired, now.Add(-time.Hour))))
	latest := newRow(accountID, "txn-2", subscription.StatusCanceled, now)
	require.NoError(t, store.Create(ctx, latest))

	got, err := store.LatestByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID)
}

func TestMemoryStoreListPendingBefore(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	stuck := newRow(uuid.New(), "txn-1", subscription.StatusPending, now.Add(-48*time.Hour))
	require.NoError(t, store.Create(ctx, stuck))
	require.NoError(t, store.Create(ctx, newRow(uuid.New(), "txn-2", subscription.StatusPending, now)))
	require.NoError(t, store.Create(ctx, newRow(uuid.New(), "txn-3", subscription.StatusFailed, now.Add(-48*time.Hour))))

	rows, err := store.ListPendingBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stuck.ID, rows[0].ID)
}

func TestMemoryStoreUpdateUnknownRow(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()

	err := store.Update(context.Background(), newRow(uuid.New(), "txn-1", subscription.StatusActive, time.Now().UTC()))
	require.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	ctx := context.Background()
	accountID := uuid.New()

	row := newRow(accountID, "txn-1", subscription.StatusActive, time.Now().UTC())
	require.NoError(t, store.Create(ctx, row))

	got, err := store.ActiveByAccount(ctx, accountID)
	require.NoError(t, err)
	got.Status = subscription.StatusExpired

	again, err := store.ActiveByAccount(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, again.Status, "callers mutate copies, never the stored row")
}
