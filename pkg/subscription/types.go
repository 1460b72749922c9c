package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a subscription row.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusFailed   Status = "failed"
)

// Provider identifies the payment authority a subscription originates from.
// Manual events are support/compensation actions that flow through the same
// state machine as provider events.
type Provider string

const (
	ProviderApple  Provider = "apple"
	ProviderCard   Provider = "card"
	ProviderManual Provider = "manual"
)

// ValidationStatus tracks the receipt validation state independently from the
// subscription lifecycle: a row can be active while a re-validation is pending.
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValidated ValidationStatus = "validated"
	ValidationFailed    ValidationStatus = "failed"
)

// Subscription is one purchase lineage for one account. Renewals and
// re-validations of the same lineage update the row in place; a brand-new
// purchase starts a new row. Rows are never hard-deleted: failed and expired
// rows are retained for audit and dispute resolution.
type Subscription struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	PlanID    string
	Status    Status
	Provider  Provider

	// ProviderTransactionID is the most recent transaction in the lineage;
	// ProviderOriginalTransactionID anchors the lineage itself (Apple renewal
	// chains share it). Unique among non-failed rows.
	ProviderTransactionID         string
	ProviderOriginalTransactionID string

	StartAt time.Time
	// EndAt is nil when the provider reported no expiry.
	EndAt *time.Time

	ValidationStatus ValidationStatus
	LastValidatedAt  *time.Time

	IsTrial      bool
	IsIntroOffer bool

	// ReceiptBlob keeps the opaque provider receipt so a stuck lineage can be
	// re-validated without the client resubmitting. Empty for card/manual rows.
	ReceiptBlob string

	// Note is a free-text audit trail: supersession reasons, manual override
	// justifications, failure diagnostics.
	Note string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the row currently grants entitlements.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsTerminal reports whether the row is absorbing for its lineage.
// A terminal lineage can only be superseded by a brand-new purchase.
func (s *Subscription) IsTerminal() bool {
	return s.Status == StatusExpired || s.Status == StatusFailed
}

// ExpiredAt reports whether the subscription's known expiry has elapsed at
// the given instant. Rows without a known expiry never expire implicitly.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	return s.EndAt != nil && now.After(*s.EndAt)
}
