package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	handler := Handler{
		Limiter: limiter,
		Config: Config{
			Key:    func(r *http.Request) string { return r.RemoteAddr },
			Window: time.Minute,
			Max:    1,
		},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := handler.Middleware(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	first := httptest.NewRecorder()
	srv.ServeHTTP(first, req)
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("missing limit header: %q", first.Header().Get("X-RateLimit-Limit"))
	}

	second := httptest.NewRecorder()
	srv.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if !strings.Contains(second.Body.String(), "RATE_LIMITED") {
		t.Fatalf("expected RATE_LIMITED error body, got %s", second.Body.String())
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestMiddlewareFailsOpenOnLimiterError(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	mr.Close()

	var sawErr bool
	handler := Handler{
		Limiter: limiter,
		Config: Config{
			Key:    func(r *http.Request) string { return "k" },
			Window: time.Minute,
			Max:    1,
		},
		OnError: func(error) { sawErr = true },
	}

	rec := httptest.NewRecorder()
	handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected fail-open 200, got %d", rec.Code)
	}
	if !sawErr {
		t.Fatal("expected limiter error to be reported")
	}
}
