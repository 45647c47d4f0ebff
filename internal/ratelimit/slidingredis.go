package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is a sliding window rate limiter over Redis sorted sets. Each
// request is a member scored by its arrival time; the window slides by
// trimming members older than the window before counting.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow records one request under key and reports whether it fits inside
// the window. A nil client or non-positive limit disables limiting.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Result, error) {
	now := l.now()
	reset := now.Add(window)
	if l.Client == nil || max <= 0 || window <= 0 {
		return Result{Allowed: true, Remaining: max, ResetAt: reset}, nil
	}

	redisKey := l.Prefix + ":" + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{ResetAt: reset}, err
	}

	current := int(countCmd.Val())
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   current <= max,
		Remaining: remaining,
		ResetAt:   reset,
	}, nil
}
