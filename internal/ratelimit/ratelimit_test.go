package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limits Limits) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := New(client, limits)
	fixed := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	return l
}

func TestAllowUnderLimit(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 3, PerMinute: 100})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx)
		require.NoError(t, err)
		assert.True(t, allowed, "send %d should pass", i+1)
	}
}

func TestAllowDeniedAtSecondLimit(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 2, PerMinute: 100})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, wait, err := l.Allow(ctx)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, time.Second, wait)
}

func TestAllowDeniedAtMinuteLimit(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 100, PerMinute: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := l.Allow(ctx)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, wait, err := l.Allow(ctx)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 30*time.Second, wait, "waits out the rest of the minute")
}

func TestWaitReturnsImmediatelyWhenAllowed(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 5, PerMinute: 100})
	assert.NoError(t, l.Wait(context.Background()))
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 1, PerMinute: 1})

	_, _, err := l.Allow(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitAllowsOnRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := New(client, Limits{PerSecond: 1, PerMinute: 1})
	mr.Close()

	// Deliveries must not stall when Redis is down.
	assert.NoError(t, l.Wait(context.Background()))
}

func TestUsageCounters(t *testing.T) {
	l := newTestLimiter(t, Limits{PerSecond: 10, PerMinute: 50})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _, err := l.Allow(ctx)
		require.NoError(t, err)
	}

	usage, err := l.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), usage["second_current"])
	assert.Equal(t, int64(4), usage["minute_current"])
	assert.Equal(t, int64(10), usage["second_limit"])
	assert.Equal(t, int64(50), usage["minute_limit"])
}
