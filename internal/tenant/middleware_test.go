package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func resolveThrough(t *testing.T, r *Resolver, req *http.Request) (string, bool) {
	t.Helper()
	var slug string
	var ok bool
	handler := r.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		slug, ok = From(req.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return slug, ok
}

func TestResolveFromHeader(t *testing.T) {
	r := NewResolver("", "shop.example", "default")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Tenant-ID", "acme")

	slug, ok := resolveThrough(t, r, req)
	if !ok || slug != "acme" {
		t.Fatalf("expected acme, got %q ok=%v", slug, ok)
	}
}

func TestResolveFromSubdomain(t *testing.T) {
	r := NewResolver("", "shop.example", "default")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "acme.shop.example:8080"

	slug, ok := resolveThrough(t, r, req)
	if !ok || slug != "acme" {
		t.Fatalf("expected acme, got %q ok=%v", slug, ok)
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	r := NewResolver("", "shop.example", "default")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "shop.example"

	slug, ok := resolveThrough(t, r, req)
	if !ok || slug != "default" {
		t.Fatalf("expected default, got %q ok=%v", slug, ok)
	}
}

func TestResolveForeignHostIgnored(t *testing.T) {
	r := NewResolver("", "shop.example", "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "evil.other.example"

	if _, ok := resolveThrough(t, r, req); ok {
		t.Fatal("expected no tenant for foreign host")
	}
}

func TestPrefixKey(t *testing.T) {
	if got := PrefixKey("acme", "settle:u1"); got != "acme:settle:u1" {
		t.Fatalf("unexpected key: %q", got)
	}
	if got := PrefixKey("", "settle:u1"); got != "settle:u1" {
		t.Fatalf("unexpected key without tenant: %q", got)
	}
}
