package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"
)

const defaultHeader = "X-Tenant-ID"

type contextKey struct{}

// Resolver maps incoming requests to a tenant slug. The header wins;
// otherwise the first subdomain under RootDomain is used; otherwise the
// request falls back to DefaultTenant.
type Resolver struct {
	HeaderName    string
	RootDomain    string
	DefaultTenant string
}

func NewResolver(headerName, rootDomain, defaultTenant string) *Resolver {
	if strings.TrimSpace(headerName) == "" {
		headerName = defaultHeader
	}
	return &Resolver{
		HeaderName:    headerName,
		RootDomain:    strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultTenant: strings.TrimSpace(defaultTenant),
	}
}

// Middleware injects the resolved tenant into the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		slug := r.Resolve(req)
		if slug == "" {
			slug = r.DefaultTenant
		}
		if slug != "" {
			req = req.WithContext(WithTenant(req.Context(), slug))
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve returns the tenant slug for a request, or "" when neither the
// header nor the host carries one.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if slug := strings.TrimSpace(req.Header.Get(r.HeaderName)); slug != "" {
		return slug
	}
	return r.subdomain(stripPort(req.Host))
}

func (r *Resolver) subdomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || host == r.RootDomain {
		return ""
	}
	if r.RootDomain != "" {
		rest, ok := strings.CutSuffix(host, "."+r.RootDomain)
		if !ok {
			return ""
		}
		host = rest
	}
	slug, _, _ := strings.Cut(host, ".")
	return slug
}

func stripPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	// bracketed IPv6 literal
	if strings.HasPrefix(hostport, "[") {
		if idx := strings.Index(hostport, "]"); idx > 1 {
			return hostport[1:idx]
		}
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	if host, _, ok := strings.Cut(hostport, ":"); ok && strings.Count(hostport, ":") == 1 {
		return host
	}
	return hostport
}

// WithTenant stores the tenant slug on the context.
func WithTenant(ctx context.Context, slug string) context.Context {
	return context.WithValue(ctx, contextKey{}, slug)
}

// From returns the tenant slug from the context, if one was resolved.
func From(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	slug, ok := ctx.Value(contextKey{}).(string)
	slug = strings.TrimSpace(slug)
	return slug, ok && slug != ""
}

// PrefixKey namespaces a cache or lock key by tenant.
func PrefixKey(slug, key string) string {
	if slug == "" {
		return key
	}
	return slug + ":" + key
}
