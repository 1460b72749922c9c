package receipt

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyReceipt  = errors.New("receipt blob is empty")
	ErrNoTransaction = errors.New("verified receipt contains no transactions")
)

// ValidationError reports a failure to obtain a terminal answer from the
// receipt authority. Retryable errors (network faults, 5xx, rate limits,
// Apple's "temporarily unavailable" statuses) may be re-queued with backoff;
// the subscription's validation state stays pending in the meantime.
type ValidationError struct {
	Retryable bool
	// AppleStatus is the verifyReceipt status code, 0 for transport-level
	// failures.
	AppleStatus int
	Err         error
}

func (e *ValidationError) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	if e.AppleStatus != 0 {
		return fmt.Sprintf("receipt validation failed (%s, apple status %d): %v", kind, e.AppleStatus, e.Err)
	}
	return fmt.Sprintf("receipt validation failed (%s): %v", kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient validation failure.
func IsRetryable(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) && verr.Retryable
}
