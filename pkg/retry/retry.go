package retry

import (
	"context"
	"time"
)

// Do runs op up to attempts times, sleeping per the strategy between tries.
// A retry happens only when retryable reports the error as transient; other
// errors are returned immediately. The context aborts waits between attempts.
func Do(ctx context.Context, attempts int, strategy BackoffStrategy, retryable func(error) bool, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if strategy == nil {
		strategy = DefaultBackoff()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(strategy.NextInterval(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
