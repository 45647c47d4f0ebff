package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/loyalty-api/internal/tenant"
)

// Idem enforces Idempotency-Key semantics for write endpoints. The first
// request claims the key in Redis; duplicates within the TTL are rejected
// with a 409 so the client retries against the idempotent domain operation
// instead of racing it.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

// idemKey scopes the claimed key by tenant and user so colliding keys from
// different callers stay independent.
func idemKey(ctx context.Context, raw string) string {
	scope := "idem"
	if slug, ok := tenant.From(ctx); ok {
		scope = tenant.PrefixKey(slug, "idem")
	}
	if uid, ok := UserID(ctx); ok {
		raw = uid + ":" + raw
	}
	sum := sha256.Sum256([]byte(raw))
	return scope + ":" + hex.EncodeToString(sum[:])
}

// Middleware claims the request's Idempotency-Key before invoking next.
// Requests without the header pass through untouched.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		key := idemKey(ctx, header)
		claimed, err := i.R.SetNX(ctx, key, "claimed", i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", nil)
			return
		}
		if !claimed {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		defer func() {
			// keep the claim alive even if the handler panics mid-flight
			_ = i.R.Expire(context.Background(), key, i.TTL).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
