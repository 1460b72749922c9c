package receipt

import (
	"context"

	"github.com/google/uuid"

	"github.com/orbitnotes/entitlements/pkg/retry"
	"github.com/orbitnotes/entitlements/pkg/subscription"
)

// RetryingValidator retries transient validation failures with exponential
// backoff and a capped attempt count. After exhaustion the last retryable
// error is returned and the subscription stays pending; the caller surfaces
// "validation in progress" rather than silently dropping the purchase.
type RetryingValidator struct {
	inner    *Validator
	attempts int
	backoff  retry.BackoffStrategy
}

// NewRetryingValidator wraps a base validator with the config's retry policy.
func NewRetryingValidator(inner *Validator, cfg Config) *RetryingValidator {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingValidator{
		inner:    inner,
		attempts: attempts,
		backoff: retry.ExponentialBackoff{
			InitialInterval: cfg.InitialBackoff,
			MaxInterval:     cfg.MaxBackoff,
			Multiplier:      2,
			JitterFactor:    0.1,
		},
	}
}

// Validate submits the receipt, retrying only the transient failure class.
func (r *RetryingValidator) Validate(ctx context.Context, receiptBlob string, accountID uuid.UUID) (subscription.ProviderEvent, error) {
	var ev subscription.ProviderEvent
	err := retry.Do(ctx, r.attempts, r.backoff, IsRetryable, func(ctx context.Context) error {
		var err error
		ev, err = r.inner.Validate(ctx, receiptBlob, accountID)
		return err
	})
	return ev, err
}
