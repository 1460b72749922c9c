package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the normalized result a provider event carries. Both payment
// authorities and manual support actions are reduced to this vocabulary so
// the reconciler has a single code path.
type Outcome string

const (
	// OutcomeValidated means the provider confirmed the purchase or renewal.
	OutcomeValidated Outcome = "validated"
	// OutcomeFailed means the purchase is invalid: bad receipt, failed
	// signature, or a billing failure reported by the card processor.
	OutcomeFailed Outcome = "failed"
	// OutcomeCanceled means the account or provider ended the subscription;
	// access persists until the known expiry elapses.
	OutcomeCanceled Outcome = "canceled"
	// OutcomeExpired means the provider reported the lineage as lapsed.
	OutcomeExpired Outcome = "expired"
)

// ProviderEvent is the provider-agnostic fact handed to the reconciler.
// Receipt validation, card webhooks, and manual overrides all produce this
// shape; the reconciler never sees provider payloads.
type ProviderEvent struct {
	Provider  Provider
	Outcome   Outcome
	AccountID uuid.UUID

	// ProductID maps to a plan id in the catalog.
	ProductID string

	// TransactionID identifies this particular transaction; LineageID is the
	// original transaction id shared by every renewal in the chain.
	TransactionID string
	LineageID     string

	PurchasedAt time.Time
	// ExpiresAt is nil when the provider reported no expiry.
	ExpiresAt *time.Time

	IsTrial      bool
	IsIntroOffer bool

	// Environment tags which provider environment issued the transaction
	// (e.g. "Production" or "Sandbox" for Apple).
	Environment string

	// OccurredAt orders events within a lineage; stale retransmissions are
	// detected by comparing it against the row's LastValidatedAt.
	OccurredAt time.Time

	// ReceiptBlob is retained on the row so the lineage can be re-validated
	// later. Only set by the receipt validator.
	ReceiptBlob string

	// Note is mandatory for manual events and optional otherwise.
	Note string
}

// Validate reports whether the event carries enough information to be
// reconciled. Manual events additionally require an audit note: a support
// override without a recorded reason is indistinguishable from the ad hoc
// database edits this event type exists to replace.
func (e ProviderEvent) Validate() error {
	if e.AccountID == uuid.Nil {
		return ErrMissingAccountID
	}
	if e.LineageID == "" {
		return ErrMissingLineageID
	}
	switch e.Outcome {
	case OutcomeValidated, OutcomeFailed, OutcomeCanceled, OutcomeExpired:
	default:
		return ErrUnknownOutcome
	}
	switch e.Provider {
	case ProviderApple, ProviderCard, ProviderManual:
	default:
		return ErrUnknownProvider
	}
	if e.Provider == ProviderManual && e.Note == "" {
		return ErrMissingNote
	}
	return nil
}
