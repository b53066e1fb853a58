package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLimiterSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := Limiter{Client: client, Prefix: "rl:scan:"}
	ctx := context.Background()
	window := 2 * time.Second

	for i := 0; i < 2; i++ {
		allowed, remaining, _, err := limiter.Allow(ctx, "card-1", window, 2)
		require.NoError(t, err)
		require.True(t, allowed, "scan %d should pass", i+1)
		require.Equal(t, 1-i, remaining)
	}

	allowed, remaining, _, err := limiter.Allow(ctx, "card-1", window, 2)
	require.NoError(t, err)
	require.False(t, allowed, "third scan inside the window must be throttled")
	require.Zero(t, remaining)

	// A different card is an independent bucket.
	allowed, _, _, err = limiter.Allow(ctx, "card-2", window, 2)
	require.NoError(t, err)
	require.True(t, allowed)

	mr.FastForward(window)

	allowed, _, _, err = limiter.Allow(ctx, "card-1", window, 2)
	require.NoError(t, err)
	require.True(t, allowed, "window expiry must reopen the bucket")
}

func TestLimiterDisabledWithoutClient(t *testing.T) {
	allowed, remaining, _, err := Limiter{}.Allow(context.Background(), "x", time.Second, 5)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 5, remaining)
}
