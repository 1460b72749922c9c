package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/catalog"
)

// Quota is the answer to a quota check.
type Quota struct {
	Allowed bool
	Current int64
	// Ceiling is catalog.Unlimited (-1) when the plan has no limit.
	Ceiling int64
	// Remaining is -1 for unlimited ceilings.
	Remaining int64
}

// CounterKey addresses one usage counter row.
type CounterKey struct {
	AccountID   uuid.UUID
	Kind        catalog.ResourceKind
	WindowStart time.Time
}

// Usage is the per-plan usage snapshot returned to the HTTP surface.
type Usage struct {
	PlanID    string
	Resources map[catalog.ResourceKind]Quota
}

// epochWindow is the fixed window start for resources without a reset window.
var epochWindow = time.Unix(0, 0).UTC()
