package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/loyalty-api/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Tokens       Tokens
	AccessCookie string
}

// RequireAuth enforces that a valid token is present before executing the next handler.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			if errors.Is(err, errNoToken) {
				common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
				return
			}
			var appErr *common.AppError
			if errors.As(err, &appErr) {
				status := appErr.HTTPStatus
				if status == 0 {
					status = http.StatusUnauthorized
				}
				common.JSONError(w, status, appErr.Code, appErr.Message, appErr.Details)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	token := m.extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	userID, err := m.Tokens.Parse(token)
	if err != nil {
		return r.Context(), err
	}
	return common.WithUserID(r.Context(), userID), nil
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	return ""
}
