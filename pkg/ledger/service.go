package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/catalog"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// PlanResolver resolves the plan id an account is currently entitled to.
// It must always resolve: accounts without an active subscription are on the
// implicit default plan, never in an undefined quota state.
type PlanResolver func(ctx context.Context, accountID uuid.UUID) (string, error)

// SubscriptionPlanResolver resolves through the subscription store, falling
// back to the catalog's default plan when the account has no active row.
func SubscriptionPlanResolver(store subscription.Store, defaultPlanID string) PlanResolver {
	return func(ctx context.Context, accountID uuid.UUID) (string, error) {
		sub, err := store.ActiveByAccount(ctx, accountID)
		if errors.Is(err, subscription.ErrNotFound) {
			return defaultPlanID, nil
		}
		if err != nil {
			return "", errors.Join(ErrFailedToResolvePlan, err)
		}
		return sub.PlanID, nil
	}
}

// Option configures a Service.
type Option func(*Service)

// WithNow overrides the clock, used by tests exercising window rollover.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWindowAnchor sets the location whose midnight anchors daily windows.
// The default is UTC.
func WithWindowAnchor(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.anchor = loc
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// Service is the Usage Ledger.
type Service struct {
	catalog  *catalog.Catalog
	store    CounterStore
	resolver PlanResolver
	anchor   *time.Location
	now      func() time.Time
	log      *slog.Logger
}

// New creates a ledger over the given catalog, counter store and resolver.
// Panics on nil dependencies to fail fast during initialization.
func New(cat *catalog.Catalog, store CounterStore, resolver PlanResolver, opts ...Option) *Service {
	if cat == nil {
		panic("ledger: catalog is required")
	}
	if store == nil {
		panic("ledger: CounterStore is required")
	}
	if resolver == nil {
		panic("ledger: PlanResolver is required")
	}

	s := &Service{
		catalog:  cat,
		store:    store,
		resolver: resolver,
		anchor:   time.UTC,
		now:      func() time.Time { return time.Now().UTC() },
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// windowStart returns the counter window for a resource kind at the given
// instant. Only AI insights roll over daily; everything else accumulates in
// the fixed epoch window.
func (s *Service) windowStart(kind catalog.ResourceKind, now time.Time) time.Time {
	if kind != catalog.ResourceAIInsight {
		return epochWindow
	}
	local := now.In(s.anchor)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.anchor).UTC()
}

func (s *Service) key(ctx context.Context, accountID uuid.UUID, kind catalog.ResourceKind) (CounterKey, int64, error) {
	planID, err := s.resolver(ctx, accountID)
	if err != nil {
		return CounterKey{}, 0, err
	}
	ceiling, err := s.catalog.Ceiling(planID, kind)
	if err != nil {
		return CounterKey{}, 0, err
	}
	return CounterKey{
		AccountID:   accountID,
		Kind:        kind,
		WindowStart: s.windowStart(kind, s.now()),
	}, ceiling, nil
}

// CheckQuota reports whether the account is within quota for the resource.
// It reads the counter without incrementing it.
func (s *Service) CheckQuota(ctx context.Context, accountID uuid.UUID, kind catalog.ResourceKind) (Quota, error) {
	key, ceiling, err := s.key(ctx, accountID, kind)
	if err != nil {
		return Quota{}, err
	}
	current, err := s.store.Current(ctx, key)
	if err != nil {
		return Quota{}, err
	}
	return newQuota(current, ceiling), nil
}

// Consume records one unit of usage, re-checking the ceiling atomically.
// Returns ErrQuotaExceeded when the account is at its ceiling.
func (s *Service) Consume(ctx context.Context, accountID uuid.UUID, kind catalog.ResourceKind) error {
	key, ceiling, err := s.key(ctx, accountID, kind)
	if err != nil {
		return err
	}
	ok, err := s.store.IncrementIfBelow(ctx, key, ceiling)
	if err != nil {
		return err
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}

// Snapshot returns the account's plan and usage for every metered resource.
func (s *Service) Snapshot(ctx context.Context, accountID uuid.UUID) (Usage, error) {
	planID, err := s.resolver(ctx, accountID)
	if err != nil {
		return Usage{}, err
	}
	plan, err := s.catalog.GetPlan(planID)
	if err != nil {
		return Usage{}, err
	}

	usage := Usage{
		PlanID:    planID,
		Resources: make(map[catalog.ResourceKind]Quota, len(plan.Ceilings)),
	}
	now := s.now()
	for kind, ceiling := range plan.Ceilings {
		current, err := s.store.Current(ctx, CounterKey{
			AccountID:   accountID,
			Kind:        kind,
			WindowStart: s.windowStart(kind, now),
		})
		if err != nil {
			return Usage{}, err
		}
		usage.Resources[kind] = newQuota(current, ceiling)
	}
	return usage, nil
}

// Reset clears all counters for an account. The reconciler calls this when a
// different plan lineage becomes active so the new plan's ceilings apply from
// the switch point. Same-lineage renewals never reset.
func (s *Service) Reset(ctx context.Context, accountID uuid.UUID) error {
	return s.store.ResetAccount(ctx, accountID)
}

// GC removes windowed counter rows older than the retention period.
func (s *Service) GC(ctx context.Context, retention time.Duration) error {
	cutoff := s.now().Add(-retention)
	// The epoch window must survive GC; it anchors non-windowed counters.
	if !cutoff.After(epochWindow) {
		return nil
	}
	return s.store.DeleteWindowsBefore(ctx, cutoff)
}

func newQuota(current, ceiling int64) Quota {
	if ceiling == catalog.Unlimited {
		return Quota{Allowed: true, Current: current, Ceiling: ceiling, Remaining: -1}
	}
	remaining := ceiling - current
	if remaining < 0 {
		remaining = 0
	}
	return Quota{
		Allowed:   current < ceiling,
		Current:   current,
		Ceiling:   ceiling,
		Remaining: remaining,
	}
}
