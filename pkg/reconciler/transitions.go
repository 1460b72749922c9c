package reconciler

import "github.com/orbitnotes/entitlements/pkg/subscription"

// transitions is the lifecycle table: current status and event outcome to the
// next status. Absent entries are invalid transitions. Expired is absorbing
// except for the idempotent re-report of expiry; a lineage that lapsed can
// only come back as a brand-new purchase, which creates a new row. Failed
// rows are revived directly to active when a later validation succeeds, which
// collapses the retry round trip through pending.
var transitions = map[subscription.Status]map[subscription.Outcome]subscription.Status{
	subscription.StatusPending: {
		subscription.OutcomeValidated: subscription.StatusActive,
		subscription.OutcomeFailed:    subscription.StatusFailed,
		subscription.OutcomeCanceled:  subscription.StatusCanceled,
		subscription.OutcomeExpired:   subscription.StatusExpired,
	},
	subscription.StatusActive: {
		subscription.OutcomeValidated: subscription.StatusActive,
		subscription.OutcomeFailed:    subscription.StatusFailed,
		subscription.OutcomeCanceled:  subscription.StatusCanceled,
		subscription.OutcomeExpired:   subscription.StatusExpired,
	},
	subscription.StatusCanceled: {
		subscription.OutcomeValidated: subscription.StatusActive,
		subscription.OutcomeCanceled:  subscription.StatusCanceled,
		subscription.OutcomeExpired:   subscription.StatusExpired,
		subscription.OutcomeFailed:    subscription.StatusFailed,
	},
	subscription.StatusExpired: {
		subscription.OutcomeExpired: subscription.StatusExpired,
	},
	subscription.StatusFailed: {
		subscription.OutcomeValidated: subscription.StatusActive,
		subscription.OutcomeFailed:    subscription.StatusFailed,
	},
}

// nextStatus resolves the transition table.
func nextStatus(from subscription.Status, outcome subscription.Outcome) (subscription.Status, bool) {
	to, ok := transitions[from][outcome]
	return to, ok
}

// statusForNewRow maps an event outcome to the status a freshly created row
// takes. Failed validations still create a row so the rejection is auditable
// and retryable.
func statusForNewRow(outcome subscription.Outcome) subscription.Status {
	switch outcome {
	case subscription.OutcomeValidated:
		return subscription.StatusActive
	case subscription.OutcomeCanceled:
		return subscription.StatusCanceled
	case subscription.OutcomeExpired:
		return subscription.StatusExpired
	default:
		return subscription.StatusFailed
	}
}
