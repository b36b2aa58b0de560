package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/review-stats/pkg/errors"
)

// Bounded runs a store call under limit and stops waiting for it once the
// limit passes, even if fn ignores its context. An expired call fails with
// an error matching both ErrStoreTimeout and context.DeadlineExceeded; a
// cancelled parent surfaces as the parent's error. limit <= 0 runs fn
// directly.
func Bounded(ctx context.Context, op string, limit time.Duration, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	cause := fmt.Errorf("%s: %w after %v: %w", op, apperrors.ErrStoreTimeout, limit, context.DeadlineExceeded)
	callCtx, cancel := context.WithTimeoutCause(ctx, limit, cause)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return context.Cause(callCtx)
		}
		return err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, context.Cause(ctx))
		}
		return context.Cause(callCtx)
	}
}
