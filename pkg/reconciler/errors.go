package reconciler

import "errors"

var (
	// ErrStaleEvent marks an event older than the row's last applied event.
	// Callers absorb it: the state already reflects something newer.
	ErrStaleEvent = errors.New("event is older than the subscription's last applied event")

	// ErrInvalidTransition marks an event the lifecycle state machine does not
	// permit from the row's current status.
	ErrInvalidTransition = errors.New("invalid subscription state transition")

	ErrNoActiveSubscription = errors.New("account has no active subscription")
	ErrNotResubscribable    = errors.New("no canceled subscription to reactivate")
	ErrNotRetryable         = errors.New("lineage is not in a failed state")
	ErrUnknownPlan          = errors.New("event references an unknown plan")
)
