package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      4 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, config.Delays())
	assert.Zero(t, config.JitterFactor)
	assert.Nil(t, config.RetryableErrors)
}

func TestRetryConfig_Delays(t *testing.T) {
	config := RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, config.Delays())

	assert.Nil(t, RetryConfig{MaxAttempts: 1}.Delays())
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_ExactBound(t *testing.T) {
	for _, maxAttempts := range []int{1, 3, 4} {
		var attempts int32
		var retries []int
		config := fastConfig(maxAttempts)
		config.OnRetry = func(attempt int, err error, delay time.Duration) {
			retries = append(retries, attempt)
		}

		testError := errors.New("persistent error")
		err := RetryWithBackoff(context.Background(), config, func() error {
			atomic.AddInt32(&attempts, 1)
			return testError
		})

		require.Error(t, err)
		assert.Equal(t, int32(maxAttempts), attempts)
		assert.Len(t, retries, maxAttempts-1)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.ErrorIs(t, err, testError)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	config := fastConfig(3)
	nonRetryable := errors.New("invalid_grant")
	config.RetryableErrors = func(err error) bool {
		return !errors.Is(err, nonRetryable)
	}

	attempts := 0
	err := RetryWithBackoff(context.Background(), config, func() error {
		attempts++
		return nonRetryable
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, nonRetryable, err)
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	config := fastConfig(5)
	config.InitialDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	err := RetryWithBackoff(ctx, config, func() error {
		attempts++
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = RetryWithBackoff(context.Background(), RetryConfig{}, func() error {
		attempts++
		return errors.New("fail")
	})
	assert.Equal(t, 1, attempts)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestRandomInt64n(t *testing.T) {
	assert.Zero(t, randomInt64n(0))
	assert.Zero(t, randomInt64n(-5))
	for i := 0; i < 100; i++ {
		v := randomInt64n(10)
		assert.GreaterOrEqual(t, v, int64(0))
		assert.Less(t, v, int64(10))
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(32)
	require.NoError(t, err)
	b, err := GenerateToken(32)
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}
