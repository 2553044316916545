package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// WithTimeout runs fn with a deadline of d and returns ErrTimeout once it
// passes, even if fn ignores its context. fn keeps running in the background
// in that case and its result is discarded. A non-positive d disables the
// deadline.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{val: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		// A call that noticed its own deadline reports the same error as
		// one that was abandoned.
		if r.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, eris.Wrapf(ErrTimeout, "after %s", d)
		}
		return r.val, r.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, eris.Wrapf(ErrTimeout, "after %s", d)
	}
}
