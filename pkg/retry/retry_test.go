package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitnotes/entitlements/pkg/retry"
)

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	backoff := retry.ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     5 * time.Second,
		Multiplier:      2,
		JitterFactor:    0,
	}

	assert.Equal(t, time.Second, backoff.NextInterval(1))
	assert.Equal(t, 2*time.Second, backoff.NextInterval(2))
	assert.Equal(t, 4*time.Second, backoff.NextInterval(3))
	assert.Equal(t, 5*time.Second, backoff.NextInterval(4), "capped at max")
	assert.Equal(t, time.Duration(0), backoff.NextInterval(0))
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	t.Parallel()

	backoff := retry.ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2,
		JitterFactor:    0.1,
	}

	for range 100 {
		got := backoff.NextInterval(2)
		assert.GreaterOrEqual(t, got, 1800*time.Millisecond)
		assert.LessOrEqual(t, got, 2200*time.Millisecond)
	}
}

func TestDoRetriesOnlyRetryable(t *testing.T) {
	t.Parallel()

	errTransient := errors.New("transient")
	errTerminal := errors.New("terminal")
	isTransient := func(err error) bool { return errors.Is(err, errTransient) }
	instant := retry.FixedBackoff{Interval: time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := retry.Do(context.Background(), 3, instant, isTransient, func(context.Context) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("terminal error stops immediately", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := retry.Do(context.Background(), 5, instant, isTransient, func(context.Context) error {
			calls++
			return errTerminal
		})
		require.ErrorIs(t, err, errTerminal)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhaustion returns last error", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := retry.Do(context.Background(), 4, instant, isTransient, func(context.Context) error {
			calls++
			return errTransient
		})
		require.ErrorIs(t, err, errTransient)
		assert.Equal(t, 4, calls)
	})

	t.Run("canceled context aborts the wait", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := retry.Do(ctx, 3, retry.FixedBackoff{Interval: time.Hour}, isTransient, func(context.Context) error {
			return errTransient
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
