package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/catalog"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// Ledger is the usage-counter surface the reconciler needs: a full reset when
// the account's effective plan lineage changes.
type Ledger interface {
	Reset(ctx context.Context, accountID uuid.UUID) error
}

// Change describes one applied state transition, delivered to hooks.
type Change struct {
	Subscription *subscription.Subscription
	// Previous is the status before the event. Empty for a freshly created row.
	Previous subscription.Status
	Created  bool
}

// Hook receives applied changes. Hooks run on their own goroutine with a
// context detached from the request, so a slow consumer cannot stall
// reconciliation.
type Hook func(ctx context.Context, change Change)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNow overrides the clock, used by tests.
func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithHook registers a change hook. May be passed multiple times.
func WithHook(hook Hook) Option {
	return func(r *Reconciler) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

// Reconciler is the single writer of subscription state.
type Reconciler struct {
	store   subscription.Store
	catalog *catalog.Catalog
	ledger  Ledger
	locks   *accountLocks
	hooks   []Hook
	now     func() time.Time
	log     *slog.Logger
}

// New creates a Reconciler. Panics on nil dependencies to fail fast during
// initialization.
func New(store subscription.Store, cat *catalog.Catalog, ledger Ledger, opts ...Option) *Reconciler {
	if store == nil {
		panic("reconciler: subscription.Store is required")
	}
	if cat == nil {
		panic("reconciler: catalog is required")
	}
	if ledger == nil {
		panic("reconciler: Ledger is required")
	}

	r := &Reconciler{
		store:   store,
		catalog: cat,
		ledger:  ledger,
		locks:   newAccountLocks(),
		now:     func() time.Time { return time.Now().UTC() },
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply reconciles one provider event against stored state and returns the
// row it resulted in. Events are serialized per account; events for different
// accounts proceed concurrently. Stale events return ErrStaleEvent, lifecycle
// violations return ErrInvalidTransition; both leave state untouched.
func (r *Reconciler) Apply(ctx context.Context, ev subscription.ProviderEvent) (*subscription.Subscription, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.Outcome == subscription.OutcomeValidated && ev.ProductID != "" {
		if _, err := r.catalog.GetPlan(ev.ProductID); err != nil {
			return nil, errors.Join(ErrUnknownPlan, err)
		}
	}

	release := r.locks.acquire(ev.AccountID)
	defer release()

	var (
		sub     *subscription.Subscription
		prev    subscription.Status
		created bool
	)

	row, err := r.store.GetByLineage(ctx, ev.Provider, ev.LineageID)
	switch {
	case errors.Is(err, subscription.ErrNotFound):
		sub = r.newRow(ev)
		created = true
	case err != nil:
		return nil, err
	default:
		prev, err = r.applyEvent(row, ev)
		if err != nil {
			return nil, err
		}
		sub = row
	}

	// Demotions are written first: the store's one-active-row constraint
	// must never see a second active row for the account, even between
	// statements.
	demoted, err := r.supersede(ctx, sub)
	if err != nil {
		return nil, err
	}

	if created {
		err = r.store.Create(ctx, sub)
	} else {
		err = r.store.Update(ctx, sub)
	}
	if err != nil {
		return nil, err
	}

	// A renewal of the already-active lineage keeps its counters; a new row
	// or a takeover from another lineage starts the plan's quotas fresh.
	if sub.Status == subscription.StatusActive && (created || demoted) {
		if err := r.ledger.Reset(ctx, sub.AccountID); err != nil {
			return nil, fmt.Errorf("reset usage counters: %w", err)
		}
	}

	r.log.InfoContext(ctx, "subscription reconciled",
		slog.String("account_id", sub.AccountID.String()),
		slog.String("lineage_id", sub.ProviderOriginalTransactionID),
		slog.String("from", string(prev)),
		slog.String("to", string(sub.Status)),
		slog.Bool("created", created))

	r.notify(ctx, Change{Subscription: sub, Previous: prev, Created: created})
	return sub, nil
}

// newRow builds the row a fresh lineage produces. The caller persists it
// after supersession has cleared the way.
func (r *Reconciler) newRow(ev subscription.ProviderEvent) *subscription.Subscription {
	now := r.now()
	startAt := ev.PurchasedAt
	if startAt.IsZero() {
		startAt = now
	}
	occurredAt := ev.OccurredAt

	return &subscription.Subscription{
		ID:                            uuid.New(),
		AccountID:                     ev.AccountID,
		PlanID:                        ev.ProductID,
		Status:                        statusForNewRow(ev.Outcome),
		Provider:                      ev.Provider,
		ProviderTransactionID:         ev.TransactionID,
		ProviderOriginalTransactionID: ev.LineageID,
		StartAt:                       startAt,
		EndAt:                         ev.ExpiresAt,
		ValidationStatus:              validationStatusFor(ev.Outcome, subscription.ValidationPending),
		LastValidatedAt:               &occurredAt,
		IsTrial:                       ev.IsTrial,
		IsIntroOffer:                  ev.IsIntroOffer,
		ReceiptBlob:                   ev.ReceiptBlob,
		Note:                          ev.Note,
		CreatedAt:                     now,
		UpdatedAt:                     now,
	}
}

// applyEvent folds the event into the row in memory and reports the status it
// transitioned from. The caller persists the row.
func (r *Reconciler) applyEvent(row *subscription.Subscription, ev subscription.ProviderEvent) (subscription.Status, error) {
	if row.LastValidatedAt != nil && ev.OccurredAt.Before(*row.LastValidatedAt) {
		return "", fmt.Errorf("%w: event at %s, row validated at %s",
			ErrStaleEvent, ev.OccurredAt.Format(time.RFC3339), row.LastValidatedAt.Format(time.RFC3339))
	}

	to, ok := nextStatus(row.Status, ev.Outcome)
	if !ok {
		return "", fmt.Errorf("%w: %s + %s", ErrInvalidTransition, row.Status, ev.Outcome)
	}

	prev := row.Status
	row.Status = to
	if ev.ProductID != "" {
		row.PlanID = ev.ProductID
	}
	if ev.TransactionID != "" {
		row.ProviderTransactionID = ev.TransactionID
	}
	if ev.ExpiresAt != nil {
		row.EndAt = ev.ExpiresAt
	}
	if ev.ReceiptBlob != "" {
		row.ReceiptBlob = ev.ReceiptBlob
	}
	if ev.Note != "" {
		row.Note = ev.Note
	}
	row.ValidationStatus = validationStatusFor(ev.Outcome, row.ValidationStatus)
	occurredAt := ev.OccurredAt
	row.LastValidatedAt = &occurredAt
	// Trial and intro flags only change on a fresh validation; cancellation
	// and failure events do not carry them.
	if ev.Outcome == subscription.OutcomeValidated {
		row.IsTrial = ev.IsTrial
		row.IsIntroOffer = ev.IsIntroOffer
	}
	row.UpdatedAt = r.now()
	return prev, nil
}

// supersede demotes every other active row of the account before the winning
// row is persisted, so the one-active-row invariant holds at every point in
// the write sequence. Reports whether any row was demoted.
func (r *Reconciler) supersede(ctx context.Context, sub *subscription.Subscription) (bool, error) {
	if sub.Status != subscription.StatusActive {
		return false, nil
	}

	others, err := r.store.ListActiveByAccount(ctx, sub.AccountID)
	if err != nil {
		return false, err
	}

	demoted := false
	now := r.now()
	for _, other := range others {
		if other.ID == sub.ID {
			continue
		}
		prev := other.Status
		other.Status = subscription.StatusCanceled
		other.Note = fmt.Sprintf("superseded by %s subscription %s", sub.Provider, sub.ProviderOriginalTransactionID)
		other.UpdatedAt = now
		if err := r.store.Update(ctx, other); err != nil {
			return false, err
		}
		demoted = true

		r.log.InfoContext(ctx, "active subscription superseded",
			slog.String("account_id", sub.AccountID.String()),
			slog.String("demoted_lineage_id", other.ProviderOriginalTransactionID),
			slog.String("by_lineage_id", sub.ProviderOriginalTransactionID))
		r.notify(ctx, Change{Subscription: other, Previous: prev})
	}
	return demoted, nil
}

func (r *Reconciler) notify(ctx context.Context, change Change) {
	// Hooks get their own copy; the caller keeps mutating the original.
	cp := *change.Subscription
	change.Subscription = &cp
	detached := context.WithoutCancel(ctx)
	for _, hook := range r.hooks {
		go hook(detached, change)
	}
}

func validationStatusFor(outcome subscription.Outcome, current subscription.ValidationStatus) subscription.ValidationStatus {
	switch outcome {
	case subscription.OutcomeValidated:
		return subscription.ValidationValidated
	case subscription.OutcomeFailed:
		return subscription.ValidationFailed
	default:
		return current
	}
}
