package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Limiter{Client: client, Prefix: "rl"}, mr
}

func TestLimiterSlidingWindow(t *testing.T) {
	limiter, mr := newTestLimiter(t)

	ctx := context.Background()
	window := 2 * time.Second
	limit := 2

	for i := 0; i < limit; i++ {
		res, err := limiter.Allow(ctx, "1.2.3.4", window, limit)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
		if res.Remaining != limit-(i+1) {
			t.Fatalf("unexpected remaining: %d", res.Remaining)
		}
	}

	res, err := limiter.Allow(ctx, "1.2.3.4", window, limit)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected request over the limit to be rejected")
	}
	if res.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", res.Remaining)
	}

	mr.FastForward(window)

	res, err = limiter.Allow(ctx, "1.2.3.4", window, limit)
	if err != nil {
		t.Fatalf("allow after window: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected request after window to be allowed")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	if res, _ := limiter.Allow(ctx, "a", time.Minute, 1); !res.Allowed {
		t.Fatal("expected first request for key a to be allowed")
	}
	if res, _ := limiter.Allow(ctx, "a", time.Minute, 1); res.Allowed {
		t.Fatal("expected second request for key a to be rejected")
	}
	if res, _ := limiter.Allow(ctx, "b", time.Minute, 1); !res.Allowed {
		t.Fatal("expected request for key b to be allowed")
	}
}

func TestLimiterDisabledWithoutClient(t *testing.T) {
	limiter := Limiter{}
	res, err := limiter.Allow(context.Background(), "any", time.Second, 5)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !res.Allowed || res.Remaining != 5 {
		t.Fatalf("expected pass-through result, got %+v", res)
	}
}
