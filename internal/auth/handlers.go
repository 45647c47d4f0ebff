package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/loyalty-api/internal/common"
)

// Account is the stored credential view the login handler verifies against.
type Account struct {
	ID           string
	PasswordHash string
}

// AccountReader loads accounts by email.
type AccountReader interface {
	AccountByEmail(ctx context.Context, email string) (Account, error)
}

// ErrAccountNotFound signals an unknown email. The handler maps it to the
// same response as a bad password so probes cannot enumerate accounts.
var ErrAccountNotFound = errors.New("auth: account not found")

// Handler issues access tokens.
type Handler struct {
	Accounts AccountReader
	Tokens   Tokens
	Verify   func(password, hash string) (bool, error)
	Validate *validator.Validate
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Accounts == nil || h.Verify == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "auth service not configured", nil)
		return
	}
	var payload loginInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "email and password are required", nil)
			return
		}
	}
	account, err := h.Accounts.AccountByEmail(r.Context(), payload.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "invalid credentials", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "temporary failure, retry the request", nil)
		return
	}
	ok, err := h.Verify(payload.Password, account.PasswordHash)
	if err != nil || !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "invalid credentials", nil)
		return
	}
	token, expires, err := h.Tokens.Sign(account.ID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "could not issue token", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"accessToken": token,
		"expiresAt":   expires.UTC().Format(time.RFC3339),
	}})
}
