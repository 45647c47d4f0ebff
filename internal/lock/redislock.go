package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL     = 30 * time.Second
	defaultBackoff = 50 * time.Millisecond
)

// releaseScript deletes the key only when the caller still owns it, so a
// lock that expired and was re-acquired elsewhere is never released by the
// previous holder.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`)

var (
	ErrNoClient   = errors.New("lock: redis client not configured")
	ErrNoCallback = errors.New("lock: callback not provided")
)

// Locker is a Redis-backed mutual exclusion primitive. Acquisition polls
// with RetryBackoff until the key is free or the context ends.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// WithLock runs fn while holding key. The lock carries a TTL so a crashed
// holder cannot wedge the key forever; release happens on return regardless
// of fn's outcome.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNoClient
	}
	if fn == nil {
		return ErrNoCallback
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer l.release(key, token)
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// release uses a fresh context: the caller's may already be cancelled and
// the lock still has to go.
func (l Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}
