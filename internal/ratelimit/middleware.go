package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/loyalty-api/internal/common"
)

// Config derives the limit key and thresholds per request.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler applies the limiter in front of an http.Handler. Limiter errors
// fail open: a broken Redis must not take the API down with it.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}

		res, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			headers.Set("Retry-After", strconv.Itoa(max(int(time.Until(res.ResetAt).Seconds()), 0)))
			common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited, "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
