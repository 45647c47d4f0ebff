package loyalty

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/loyalty-api/internal/common"
	"github.com/noah-isme/loyalty-api/internal/obs"
)

// RequestedPointsRecorder persists the redemption a shopper asked for so a
// re-driven settlement debits the same amount.
type RequestedPointsRecorder interface {
	SetRequestedPoints(ctx context.Context, orderID uuid.UUID, points int64) error
}

// Handler exposes the loyalty HTTP surface: quoting, settlement, and the
// ledger history.
type Handler struct {
	Svc      *Service
	Settler  *Settler
	Orders   RequestedPointsRecorder
	Validate *validator.Validate
}

// FinalizeInput is the request to settle a paid order's loyalty accounting.
type FinalizeInput struct {
	OrderID    uuid.UUID `json:"orderId" validate:"required"`
	PointsUsed int64     `json:"pointsUsed" validate:"gte=0"`
}

// Apply handles POST /loyalty/apply. It prices the cart and suggests a point
// redemption without mutating anything.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "loyalty service not configured", nil)
		return
	}
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var payload ApplyInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request", validationDetails(err))
			return
		}
	}
	out, err := h.Svc.Apply(r.Context(), userID, payload)
	if err != nil {
		h.countQuote("error")
		h.writeError(w, err)
		return
	}
	h.countQuote("ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Finalize handles POST /loyalty/finalize. Replayed settlements return the
// recorded receipt with the same success shape.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	if h.Settler == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "settler not configured", nil)
		return
	}
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	var payload FinalizeInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request", validationDetails(err))
			return
		}
	}
	// Record the requested redemption first so the worker re-drives the same
	// amount if this call dies between here and settlement.
	if h.Orders != nil {
		if err := h.Orders.SetRequestedPoints(r.Context(), payload.OrderID, payload.PointsUsed); err != nil {
			h.writeError(w, err)
			return
		}
	}
	receipt, err := h.Settler.Settle(r.Context(), payload.OrderID, payload.PointsUsed)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": receipt})
}

// Ledger handles GET /loyalty/ledger, returning the caller's point history.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "loyalty service not configured", nil)
		return
	}
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > 100 {
		perPage = 100
	}
	entries, err := h.Svc.History(r.Context(), userID, int32(perPage), int32(common.Offset(page, perPage)))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []LedgerEntry{}
	}
	var balance int64
	if h.Svc.Balance != nil {
		balance, err = h.Svc.Balance.UserPoints(r.Context(), userID)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"balance": balance,
		"entries": entries,
		"page":    page,
		"perPage": perPage,
	}})
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, ok := common.UserID(r.Context())
	if !ok || raw == "" {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "invalid user identity", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unknown error", nil)
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrUserNotFound), errors.Is(err, ErrProductNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, err.Error(), nil)
	case errors.Is(err, ErrOrderNotPaid):
		common.JSONError(w, http.StatusConflict, "ORDER_NOT_PAID", "order is not in a settleable state", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
	default:
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			status := appErr.HTTPStatus
			if status == 0 {
				status = http.StatusBadRequest
			}
			code := appErr.Code
			if code == "" {
				code = "BAD_REQUEST"
			}
			common.JSONError(w, status, code, appErr.Message, appErr.Details)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "temporary failure, retry the request", nil)
	}
}

func (h *Handler) countQuote(result string) {
	if obs.QuoteTotal != nil {
		obs.QuoteTotal.WithLabelValues(result).Inc()
	}
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return map[string]any{"fields": fields}
}
