package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter is a sliding-window counter over a Redis sorted set. Each call
// records one event; events older than the window are pruned before counting.
// It throttles abuse-prone endpoints such as loyalty card scans.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records an event under key and reports whether the caller is still
// within max events per window. A nil client or non-positive limit disables
// throttling entirely.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}

	at := time.Now()
	reset = at.Add(window)
	windowStart := strconv.FormatInt(at.Add(-window).UnixNano(), 10)

	bucket := l.Prefix + key

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, bucket, "-inf", windowStart)
	pipe.ZAdd(ctx, bucket, redis.Z{Score: float64(at.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	seen := int(count.Val())
	remaining = max - seen
	if remaining < 0 {
		remaining = 0
	}
	return seen <= max, remaining, reset, nil
}
