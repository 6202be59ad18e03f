package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, limit int, window time.Duration, now *time.Time) *SlidingWindowLimiter {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewSlidingWindowLimiter(rdb, KeyRateLimitPrefix("test"), limit, window).
		WithClock(func() time.Time { return *now })
}

func TestSlidingWindowLimiter_RejectsAfterLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	l := newLimiter(t, 3, time.Minute, &now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, _, err := l.Allow(ctx, "staff-1")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
		now = now.Add(time.Second)
	}

	ok, _, retry, err := l.Allow(ctx, "staff-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 57*time.Second, retry)

	// other callers are unaffected
	ok, _, _, err = l.Allow(ctx, "staff-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSlidingWindowLimiter_RecoversAfterWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	l := newLimiter(t, 2, time.Minute, &now)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, _, err := l.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, _, _, err := l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)

	now = now.Add(time.Minute + time.Millisecond)

	ok, current, _, err := l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), current)
}
