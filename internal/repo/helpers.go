package repo

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/loyalty-api/internal/common"
	"github.com/noah-isme/loyalty-api/internal/tenant"
)

// DefaultTenant scopes rows when no tenant was resolved for the request.
const DefaultTenant = "default"

func tenantSlug(ctx context.Context) string {
	if t, ok := tenant.From(ctx); ok && t != "" {
		return t
	}
	return DefaultTenant
}

// uniqueViolation maps a unique constraint error to a conflict AppError,
// leaving other errors untouched.
func uniqueViolation(err error, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return &common.AppError{
			Code:       common.CodeConflict,
			Message:    message,
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	}
	return err
}
