package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterAllowAndReset(t *testing.T) {
	lim := NewMemory(2, time.Second)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		allowed, retry, err := lim.Allow(ctx, "user@example.com", now)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, retry)
	}

	allowed, retry, err := lim.Allow(ctx, "user@example.com", now.Add(400*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 600*time.Millisecond, retry)

	allowed, _, _ = lim.Allow(ctx, "other@example.com", now)
	assert.True(t, allowed, "keys are independent")

	allowed, _, _ = lim.Allow(ctx, "user@example.com", now.Add(time.Second))
	assert.True(t, allowed, "window elapsed")
}

func TestMemoryLimiterReset(t *testing.T) {
	lim := NewMemory(1, time.Minute)
	ctx := context.Background()
	now := time.Now()

	allowed, _, _ := lim.Allow(ctx, "k", now)
	require.True(t, allowed)
	allowed, _, _ = lim.Allow(ctx, "k", now)
	require.False(t, allowed)

	require.NoError(t, lim.Reset(ctx, "k"))
	allowed, _, _ = lim.Allow(ctx, "k", now)
	assert.True(t, allowed)
}

func TestMemoryLimiterCleanup(t *testing.T) {
	lim := NewMemory(1, time.Second)
	now := time.Now()

	_, _, _ = lim.Allow(context.Background(), "a", now)
	require.Len(t, lim.entries, 1)

	_, _, _ = lim.Allow(context.Background(), "b", now.Add(2*time.Second))
	assert.Len(t, lim.entries, 1, "expired entries are swept")
	assert.Contains(t, lim.entries, "b")
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 100; i++ {
		ok, _, err := l.Allow(context.Background(), "k", time.Now())
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.NoError(t, l.Reset(context.Background(), "k"))
}
