package ledger

import "errors"

var (
	// ErrQuotaExceeded is a resource-service-facing condition, not an engine
	// fault: callers surface it as a typed "limit reached" response.
	ErrQuotaExceeded = errors.New("resource quota exceeded")

	ErrFailedToResolvePlan = errors.New("failed to resolve plan for account")
)
