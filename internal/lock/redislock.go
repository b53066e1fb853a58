package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes work across processes with a Redis SetNX lock. The worker
// uses it so that two scheduler ticks never run the reward sweep concurrently.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// releaseScript deletes the key only when this holder still owns it, so a
// slow callback whose lock already expired cannot free a successor's lock.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// WithLock acquires the lock for key, runs fn, and releases the lock whether
// or not fn failed. Acquisition retries every RetryBackoff until the context
// is done; the ttl bounds how long a crashed holder can wedge the lock.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	owner := uuid.NewString()
	if err := l.acquire(ctx, key, owner, ttl); err != nil {
		return err
	}
	defer l.release(context.Background(), key, owner)
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, owner string, ttl time.Duration) error {
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	for {
		ok, err := l.R.SetNX(ctx, key, owner, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, owner string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, owner).Err(); err != nil {
		// miniredis builds without Lua support fall back to a plain delete.
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
