package pos

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/loyalty-api/internal/catalog"
	"github.com/noah-isme/loyalty-api/internal/common"
)

// Handler exposes the register endpoints. Terminal identity comes from the
// URL so every register operates on its own cart.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type scanInput struct {
	SKU string `json:"sku" validate:"required"`
	Qty int    `json:"qty" validate:"omitempty,gt=0"`
}

type qtyInput struct {
	Qty int `json:"qty" validate:"required,gt=0"`
}

type quoteInput struct {
	MemberID *uuid.UUID `json:"memberId,omitempty"`
}

// Routes mounts the POS surface on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/terminals/{terminalID}", func(r chi.Router) {
		r.Get("/cart", h.GetCart)
		r.Delete("/cart", h.ClearCart)
		r.Post("/scan", h.Scan)
		r.Post("/quote", h.Quote)
		r.Put("/items/{productID}", h.SetQty)
		r.Delete("/items/{productID}", h.Remove)
	})
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")
	var payload scanInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request", nil)
			return
		}
	}
	qty := payload.Qty
	if qty == 0 {
		qty = 1
	}
	cart, err := h.Svc.Scan(r.Context(), terminalID, payload.SKU, qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

func (h *Handler) SetQty(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	var payload qtyInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "invalid request", nil)
			return
		}
	}
	cart, err := h.Svc.SetQty(r.Context(), terminalID, productID, payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	cart, err := h.Svc.Remove(r.Context(), terminalID, productID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.Svc.Get(r.Context(), chi.URLParam(r, "terminalID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cart})
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Clear(r.Context(), chi.URLParam(r, "terminalID")); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]bool{"cleared": true}})
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")
	var payload quoteInput
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
			return
		}
	}
	result, err := h.Svc.Quote(r.Context(), terminalID, payload.MemberID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unknown error", nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "temporary failure, retry the request", nil)
	}
}
