package dbx

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
)

// Retrier re-runs operations that fail with a transient storage error.
// The delay before attempt n+1 is BaseDelay*n. Only the number of attempts
// is bounded; callers wanting a wall-clock deadline set one on ctx.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// OnRetry is called before sleeping, with the attempt that just failed.
	OnRetry func(ctx context.Context, attempt int, delay time.Duration, err error)
}

// NewRetrier returns a Retrier, substituting defaults for non-positive values.
func NewRetrier(maxAttempts int, baseDelay time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Retrier{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

// Do runs fn until it succeeds, fails with a non-transient error, or the
// attempt budget is spent. The error of the last attempt is returned
// classified.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	attempt := 0
	var lastErr error
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		if attempt >= maxAttempts {
			return 0, true
		}
		delay := r.BaseDelay * time.Duration(attempt)
		if r.OnRetry != nil {
			r.OnRetry(ctx, attempt, delay, lastErr)
		}
		return delay, false
	})

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := Classify(fn(ctx))
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			lastErr = err
			return retry.RetryableError(err)
		}
		return err
	})
}

// Retry is Do for operations that produce a value.
func Retry[T any](ctx context.Context, r *Retrier, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
