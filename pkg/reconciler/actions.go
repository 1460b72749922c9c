package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// Account actions are expressed as synthetic provider events and go through
// Apply like everything else, so they respect the same ordering, locking and
// invariant machinery as real provider traffic.

// SwitchPlan moves the account to a different plan immediately. The old
// active subscription, if any, is superseded and the usage counters reset.
func (r *Reconciler) SwitchPlan(ctx context.Context, accountID uuid.UUID, planID string) (*subscription.Subscription, error) {
	now := r.now()
	return r.Apply(ctx, subscription.ProviderEvent{
		Provider:      subscription.ProviderManual,
		Outcome:       subscription.OutcomeValidated,
		AccountID:     accountID,
		ProductID:     planID,
		TransactionID: "switch-" + uuid.NewString(),
		LineageID:     "switch-" + uuid.NewString(),
		PurchasedAt:   now,
		OccurredAt:    now,
		Note:          fmt.Sprintf("plan switch to %s requested by account", planID),
	})
}

// Cancel ends the account's active subscription. Access persists until the
// row's known expiry elapses; usage counters are untouched.
func (r *Reconciler) Cancel(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	active, err := r.store.ActiveByAccount(ctx, accountID)
	if errors.Is(err, subscription.ErrNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}

	now := r.now()
	return r.Apply(ctx, subscription.ProviderEvent{
		Provider:   active.Provider,
		Outcome:    subscription.OutcomeCanceled,
		AccountID:  accountID,
		LineageID:  active.ProviderOriginalTransactionID,
		OccurredAt: now,
		Note:       "canceled by account request",
	})
}

// Resubscribe reactivates the account's canceled subscription before its
// expiry elapses. The same row flips back to active and usage counters are
// retained. Lapsed or absent subscriptions return ErrNotResubscribable.
func (r *Reconciler) Resubscribe(ctx context.Context, accountID uuid.UUID) (*subscription.Subscription, error) {
	latest, err := r.store.LatestByAccount(ctx, accountID)
	if errors.Is(err, subscription.ErrNotFound) {
		return nil, ErrNotResubscribable
	}
	if err != nil {
		return nil, err
	}
	now := r.now()
	if latest.Status != subscription.StatusCanceled || latest.ExpiredAt(now) {
		return nil, fmt.Errorf("%w: latest subscription is %s", ErrNotResubscribable, latest.Status)
	}

	return r.Apply(ctx, subscription.ProviderEvent{
		Provider:   latest.Provider,
		Outcome:    subscription.OutcomeValidated,
		AccountID:  accountID,
		ProductID:  latest.PlanID,
		LineageID:  latest.ProviderOriginalTransactionID,
		ExpiresAt:  latest.EndAt,
		OccurredAt: now,
		Note:       "resubscribed by account request",
	})
}

// Override applies a manual support action. The note is mandatory and ends up
// on the row as the audit trail.
func (r *Reconciler) Override(ctx context.Context, accountID uuid.UUID, planID string, outcome subscription.Outcome, note string) (*subscription.Subscription, error) {
	if note == "" {
		return nil, subscription.ErrMissingNote
	}

	now := r.now()
	ev := subscription.ProviderEvent{
		Provider:   subscription.ProviderManual,
		Outcome:    outcome,
		AccountID:  accountID,
		ProductID:  planID,
		OccurredAt: now,
		Note:       note,
	}

	// Overrides of an existing manual grant reuse its lineage; anything else
	// starts a fresh manual lineage.
	latest, err := r.store.LatestByAccount(ctx, accountID)
	if err == nil && latest.Provider == subscription.ProviderManual {
		ev.LineageID = latest.ProviderOriginalTransactionID
	} else if err != nil && !errors.Is(err, subscription.ErrNotFound) {
		return nil, err
	} else {
		ev.LineageID = "manual-" + uuid.NewString()
		ev.PurchasedAt = now
	}

	return r.Apply(ctx, ev)
}
