package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ResourceKind is a countable account resource governed by plan ceilings.
type ResourceKind string

const (
	ResourceNote      ResourceKind = "note"
	ResourceTask      ResourceKind = "task"
	ResourceGalaxy    ResourceKind = "galaxy"
	ResourceAIInsight ResourceKind = "aiInsight"
)

// Kinds lists every resource kind the engine meters.
func Kinds() []ResourceKind {
	return []ResourceKind{ResourceNote, ResourceTask, ResourceGalaxy, ResourceAIInsight}
}

// Unlimited indicates no ceiling for a resource (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// BillingInterval is the billing frequency of a plan.
type BillingInterval string

const (
	IntervalNone    BillingInterval = "none" // free plans with no billing
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// Plan is one immutable plan version.
type Plan struct {
	ID        string
	Name      string
	Interval  BillingInterval
	Ceilings  map[ResourceKind]int64
	CreatedAt time.Time
}

// Ceiling returns the plan's ceiling for a resource kind.
func (p Plan) Ceiling(kind ResourceKind) (int64, error) {
	ceiling, ok := p.Ceilings[kind]
	if !ok {
		return 0, ErrUnknownResource
	}
	return ceiling, nil
}

// Source loads plan definitions into the catalog.
type Source interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog resolves plan ids to plans. The default plan is the implicit
// zero-cost plan accounts without an active subscription fall back to, so a
// quota check always resolves to a plan.
type Catalog struct {
	plans         map[string]Plan
	defaultPlanID string
}

// New loads plans from the source and validates them. The default plan id
// must resolve so there is never an undefined quota state.
func New(ctx context.Context, src Source, defaultPlanID string) (*Catalog, error) {
	if src == nil {
		panic("catalog: Source is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}
	if _, ok := plans[defaultPlanID]; !ok {
		return nil, errors.Join(ErrInvalidPlanConfiguration,
			fmt.Errorf("default plan %q is not in the catalog", defaultPlanID))
	}

	return &Catalog{plans: plans, defaultPlanID: defaultPlanID}, nil
}

// GetPlan returns a plan by id, or ErrPlanNotFound.
func (c *Catalog) GetPlan(planID string) (Plan, error) {
	plan, ok := c.plans[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// Ceiling resolves a plan's ceiling for a resource kind in one call.
func (c *Catalog) Ceiling(planID string, kind ResourceKind) (int64, error) {
	plan, err := c.GetPlan(planID)
	if err != nil {
		return 0, err
	}
	return plan.Ceiling(kind)
}

// DefaultPlanID returns the id of the implicit free plan.
func (c *Catalog) DefaultPlanID() string {
	return c.defaultPlanID
}

// DefaultPlan returns the implicit free plan.
func (c *Catalog) DefaultPlan() Plan {
	return c.plans[c.defaultPlanID]
}

// Plans returns every plan in the catalog, sorted by id.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, plan := range c.plans {
		out = append(out, plan)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("catalog has no plans"))
	}
	for planID, plan := range plans {
		if plan.ID != planID {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan id mismatch: map key %s != plan.ID %s", planID, plan.ID))
		}
		for kind, ceiling := range plan.Ceilings {
			if ceiling < Unlimited {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has invalid ceiling %d for %s", planID, ceiling, kind))
			}
		}
	}
	return nil
}
