package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/errors"
)

type outcome[T any] struct {
	val T
	err error
}

// Bounded runs fn with a context cancelled after timeout and returns its
// result. When the limit is hit the error matches both apperrors.ErrTimeout
// and context.DeadlineExceeded, as does any error fn returns once the
// deadline has passed; fn keeps running in the background until it
// observes the cancelled context. A non-positive timeout runs fn inline.
func Bounded[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := fn(bounded)
		done <- outcome[T]{v, err}
	}()

	select {
	case out := <-done:
		if out.err == nil || bounded.Err() == nil {
			return out.val, out.err
		}
	case <-bounded.Done():
	}
	var zero T
	if ctx.Err() != nil {
		return zero, fmt.Errorf("%s: %w", name, ctx.Err())
	}
	return zero, fmt.Errorf("%s: %w after %v: %w", name, apperrors.ErrTimeout, timeout, context.DeadlineExceeded)
}

// WithTimeout is Bounded for functions without a result.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := Bounded(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
