package resilience_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/resilience"
)

var errEndpoint = errors.New("endpoint unavailable")

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	var transitions []resilience.State
	cb := resilience.NewCircuitBreaker("translate", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange: func(name string, s resilience.State) {
			transitions = append(transitions, s)
		},
	})

	fail := func() error { return errEndpoint }
	assert.ErrorIs(t, cb.Execute(fail), errEndpoint)
	assert.ErrorIs(t, cb.Execute(fail), errEndpoint)
	assert.Equal(t, resilience.StateOpen, cb.GetState())

	err := cb.Execute(func() error { return nil })
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, resilience.StateClosed, cb.GetState())
	assert.Equal(t, []resilience.State{
		resilience.StateOpen,
		resilience.StateHalfOpen,
		resilience.StateClosed,
	}, transitions)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	var calls atomic.Int32
	err := resilience.Retry(context.Background(), "send", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		ShouldRetry:  func(err error) bool { return !errors.Is(err, context.Canceled) },
	}, func() error {
		calls.Add(1)
		return context.Canceled
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	err := resilience.Retry(context.Background(), "send", resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	}, func() error {
		if calls.Add(1) < 3 {
			return errEndpoint
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
