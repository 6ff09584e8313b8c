package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vaidashi/fulfillment-tracker/pkg/errors"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     attempts,
		BackoffStrategy: &ConstantBackoff{Interval: time.Millisecond},
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return apperrors.NewTemporaryError("relay unavailable")
		}
		return nil
	}, fastConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpOnNonRetryableError(t *testing.T) {
	cfg := fastConfig(5)
	cfg.RetryableErrors = []error{apperrors.ErrTimeout}

	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return apperrors.NewInvalidInputError("bad recipient")
	}, cfg)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRetryIfOverridesSentinelList(t *testing.T) {
	cfg := fastConfig(4)
	cfg.RetryableErrors = []error{apperrors.ErrTimeout}
	cfg.RetryIf = apperrors.IsRetryable

	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return apperrors.NewTemporaryError("503")
	}, cfg)

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, apperrors.ErrTemporaryFailure)
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, func() error { return nil }, fastConfig(3))

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithDiscardInvokesDiscard(t *testing.T) {
	boom := errors.New("publish failed")
	discarded := false

	err := RetryWithDiscard(context.Background(), func() error { return boom }, fastConfig(2), func(err error) error {
		discarded = true
		return err
	})

	require.Error(t, err)
	assert.True(t, discarded)
	assert.ErrorIs(t, err, boom)
}

func TestBackoffStrategies(t *testing.T) {
	exp := &ExponentialBackoff{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, exp.NextBackoff(1))
	assert.Equal(t, 400*time.Millisecond, exp.NextBackoff(3))
	assert.Equal(t, time.Second, exp.NextBackoff(10))

	lin := &LinearBackoff{InitialInterval: time.Second, Step: time.Second, MaxInterval: 3 * time.Second}
	assert.Equal(t, 2*time.Second, lin.NextBackoff(2))
	assert.Equal(t, 3*time.Second, lin.NextBackoff(7))
}
