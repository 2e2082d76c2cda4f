package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type OrderSubmitter interface {
	Submit(ctx context.Context, id *domain.Identity, view []domain.CartView, address string) (*domain.Order, error)
}

type CheckoutHandler struct {
	carts     CartStore
	submitter OrderSubmitter
	validate  *validator.Validate
	log       *zap.Logger
	timeout   time.Duration
}

func NewCheckoutHandler(carts CartStore, submitter OrderSubmitter, log *zap.Logger, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		carts:     carts,
		submitter: submitter,
		validate:  validator.New(),
		log:       log,
		timeout:   timeout,
	}
}

type CheckoutRequestDTO struct {
	ShippingAddress string `json:"shipping_address" validate:"max=500"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutRequestDTO
	if code, msg, ok := decodeAndValidate(r, h.validate, &req); !ok {
		respondError(w, http.StatusBadRequest, code, msg)
		return
	}

	id := getIdentityFromContext(r.Context())
	view, err := h.carts.Load(ctx, domain.ScopeFor(id))
	if err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}

	order, err := h.submitter.Submit(ctx, id, view, req.ShippingAddress)
	if err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, convertOrder(*order))
}
