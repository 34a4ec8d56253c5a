package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = RetryConfig{MaxAttempts: 3, Backoff: Backoff{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), "op", fast, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "op failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestRetryPermanent(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := Retry(context.Background(), "op", fast, func() error {
		calls++
		return Permanent(boom)
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
	assert.Nil(t, Permanent(nil))
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "op", fast, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	b := Backoff{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.1}
	assert.InDelta(t, float64(100*time.Millisecond), float64(b.Delay(1)), float64(10*time.Millisecond))
	assert.InDelta(t, float64(400*time.Millisecond), float64(b.Delay(3)), float64(40*time.Millisecond))
	assert.Equal(t, time.Second, b.Delay(10))
	assert.InDelta(t, float64(100*time.Millisecond), float64(Backoff{}.Delay(0)), float64(10*time.Millisecond))
}

func TestRetryClassifier(t *testing.T) {
	corrupt := errors.New("corrupt")
	cfg := fast
	cfg.Retryable = func(err error) bool { return !errors.Is(err, corrupt) }
	calls := 0
	err := Retry(context.Background(), "load", cfg, func() error {
		calls++
		return fmt.Errorf("reading: %w", corrupt)
	})
	assert.ErrorIs(t, err, corrupt)
	assert.Equal(t, 1, calls)
	assert.True(t, IsPermanent(Permanent(corrupt)))
	assert.False(t, IsPermanent(corrupt))
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})
	fail := errors.New("fail")

	assert.ErrorIs(t, cb.Execute(func() error { return fail }), fail)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return fail }), fail)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1})
	_ = cb.Execute(func() error { return errors.New("fail") })
	assert.Equal(t, StateOpen, cb.GetState())
	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, "closed", cb.GetState().String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}

func TestCircuitBreakerCountsAndClassifier(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	miss := errors.New("miss")
	cb := NewCircuitBreaker("cache", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, miss)
		},
	})
	cb.now = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return miss }), miss)
	}
	assert.Equal(t, StateClosed, cb.GetState(), "classified non-failures never trip the breaker")

	down := errors.New("connection refused")
	_ = cb.Execute(func() error { return down })
	_ = cb.Execute(func() error { return down })
	require.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	counts := cb.Counts()
	assert.Equal(t, 2, counts.ConsecutiveFailures)
	assert.EqualValues(t, 2, counts.TotalFailures)
	assert.EqualValues(t, 1, counts.Rejected)

	clock = clock.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(func() error { return down }), down)
	assert.Equal(t, StateOpen, cb.GetState(), "a failed probe reopens")
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Zero(t, cb.Counts().ConsecutiveFailures)
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1})
	err := cb.Execute(func() error { return fmt.Errorf("get: %w", context.Canceled) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)

	err = WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return nil })
	assert.NoError(t, err)

	err = WithTimeout(context.Background(), 0, "unbounded", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return nil
	})
	assert.NoError(t, err)
}

func TestBounded(t *testing.T) {
	v, err := Bounded(context.Background(), time.Second, "answer", func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Bounded(context.Background(), 10*time.Millisecond, "stuck", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 7, ctx.Err()
	})
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Zero(t, v)

	parent, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Bounded(parent, time.Second, "cancelled", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}
