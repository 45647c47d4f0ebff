package obs

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/loyalty-api/internal/common"
	"github.com/noah-isme/loyalty-api/internal/tenant"
)

// NewLogger builds the root zerolog logger. format is "json" (default) or
// "console"; an unparseable level falls back to info.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	default:
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// RequestLogger emits one structured log line per request, correlated with
// the request id, trace context, tenant, and authenticated user.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)

		evt := l.Logger.Info().
			Str("method", r.Method).
			Str("route", routeOf(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", recorder.bytes).
			Str("request_id", middleware.GetReqID(r.Context()))

		if spanCtx := trace.SpanContextFromContext(r.Context()); spanCtx.IsValid() {
			evt = evt.
				Str("trace_id", spanCtx.TraceID().String()).
				Str("span_id", spanCtx.SpanID().String())
		}
		if userID, ok := common.UserID(r.Context()); ok && userID != "" {
			evt = evt.Str("user_id", userID)
		}
		if slug, ok := tenant.From(r.Context()); ok {
			evt = evt.Str("tenant_id", slug)
		}
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("remote_addr", ip)
		}
		if ua := r.UserAgent(); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
