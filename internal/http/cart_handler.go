package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_pharmacy/internal/cart"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartStore interface {
	Load(ctx context.Context, scope domain.Scope) ([]domain.CartView, error)
	Add(ctx context.Context, scope domain.Scope, medicineID int64, quantity int) error
	SetQuantity(ctx context.Context, scope domain.Scope, medicineID int64, quantity int) error
	Remove(ctx context.Context, scope domain.Scope, medicineID int64) error
	Clear(ctx context.Context, scope domain.Scope) error
}

type CartHandler struct {
	carts    CartStore
	validate *validator.Validate
	log      *zap.Logger
	timeout  time.Duration
}

func NewCartHandler(carts CartStore, log *zap.Logger, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		validate: validator.New(),
		log:      log,
		timeout:  timeout,
	}
}

// MedicineRef accepts the id as a JSON number or string.
type MedicineRef string

func (m *MedicineRef) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = MedicineRef(s)
		return nil
	}
	*m = MedicineRef(bytes.TrimSpace(b))
	return nil
}

type AddItemRequestDTO struct {
	MedicineID MedicineRef `json:"medicine_id"`
	Quantity   int         `json:"quantity" validate:"lte=999"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type CartResponseDTO struct {
	Items []domain.CartView `json:"items"`
	Total decimal.Decimal   `json:"total"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.respondCart(ctx, w, scopeOf(r))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if code, msg, ok := decodeAndValidate(r, h.validate, &req); !ok {
		respondError(w, http.StatusBadRequest, code, msg)
		return
	}

	scope := scopeOf(r)
	// ids that do not resolve leave the cart as it is
	if id, ok := cart.ParseMedicineID(string(req.MedicineID)); ok {
		if err := h.carts.Add(ctx, scope, id, req.Quantity); err != nil {
			respondServiceError(ctx, h.log, w, err)
			return
		}
	}
	h.respondCart(ctx, w, scope)
}

// PUT /api/v1/cart/items/{medicine_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := cart.ParseMedicineID(chi.URLParam(r, "medicine_id"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_medicine_id", "medicine_id must be a positive integer")
		return
	}

	var req UpdateQuantityRequestDTO
	if code, msg, ok := decodeAndValidate(r, h.validate, &req); !ok {
		respondError(w, http.StatusBadRequest, code, msg)
		return
	}

	scope := scopeOf(r)
	if err := h.carts.SetQuantity(ctx, scope, id, *req.Quantity); err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	h.respondCart(ctx, w, scope)
}

// DELETE /api/v1/cart/items/{medicine_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := cart.ParseMedicineID(chi.URLParam(r, "medicine_id"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_medicine_id", "medicine_id must be a positive integer")
		return
	}

	scope := scopeOf(r)
	if err := h.carts.Remove(ctx, scope, id); err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	h.respondCart(ctx, w, scope)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.Clear(ctx, scopeOf(r)); err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{Items: []domain.CartView{}, Total: decimal.Zero})
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, scope domain.Scope) {
	views, err := h.carts.Load(ctx, scope)
	if err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, CartResponseDTO{Items: views, Total: cart.Total(views)})
}

func scopeOf(r *http.Request) domain.Scope {
	return domain.ScopeFor(getIdentityFromContext(r.Context()))
}
