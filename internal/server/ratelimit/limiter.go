// Package ratelimit throttles repeated attempts per key with a fixed window.
package ratelimit

import (
	"context"
	"time"
)

// Limiter counts attempts for key. When the limit for the current window is
// exhausted Allow returns false together with the time left in the window.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error)
	Reset(ctx context.Context, key string) error
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string, time.Time) (bool, time.Duration, error) {
	return true, 0, nil
}

func (Unlimited) Reset(context.Context, string) error { return nil }
