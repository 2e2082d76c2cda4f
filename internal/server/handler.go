// Package server is the backend side of the order REST contract.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_pharmacy/internal/backend"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/metrics"
	"github.com/fjod/go_pharmacy/internal/store"
	"github.com/fjod/go_pharmacy/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
	CreateOrder(ctx context.Context, in store.NewOrder) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersByEmail(ctx context.Context, email string) ([]domain.Order, error)
	Transition(ctx context.Context, cmd domain.Command, orderID int64) (*domain.Order, error)
}

type MedicineDTO struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stockQuantity"`
	ImageURL      string          `json:"imageUrl,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

type Handler struct {
	repo    Repository
	log     *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewHandler(repo Repository, log *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{repo: repo, log: log, metrics: m, timeout: timeout}
}

func (h *Handler) ListMedicines(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	meds, err := h.repo.ListMedicines(ctx)
	if err != nil {
		h.fail(ctx, w, "list medicines", err)
		return
	}

	out := make([]MedicineDTO, 0, len(meds))
	for _, m := range meds {
		out = append(out, MedicineDTO{
			ID:            m.ID,
			Name:          m.Name,
			Price:         m.Price,
			StockQuantity: m.Stock,
			ImageURL:      m.ImageURL,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req backend.CreateOrderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := store.NewOrder{
		UserID:          req.UserID,
		ShippingAddress: req.ShippingAddress,
		Items:           make([]store.NewOrderItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, store.NewOrderItem{MedicineID: it.MedicineID, Quantity: it.Quantity})
	}

	order, err := h.repo.CreateOrder(ctx, in)
	h.metrics.OrderCreated(err)
	if err != nil {
		h.fail(ctx, w, "create order", err)
		return
	}

	if !req.TotalAmount.IsZero() && !req.TotalAmount.Equal(order.TotalAmount) {
		logger.Info(ctx, h.log, "client total differs from snapshot total",
			zap.Int64("order_id", order.ID),
			zap.String("client_total", req.TotalAmount.String()),
			zap.String("order_total", order.TotalAmount.String()))
	}
	respondJSON(w, http.StatusOK, backend.OrderFromDomain(*order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.repo.GetOrder(ctx, id)
	if err != nil {
		h.fail(ctx, w, "get order", err)
		return
	}
	respondJSON(w, http.StatusOK, backend.OrderFromDomain(*order))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.repo.ListOrders(ctx)
	if err != nil {
		h.fail(ctx, w, "list orders", err)
		return
	}
	respondJSON(w, http.StatusOK, toDTOs(list))
}

func (h *Handler) ListOrdersByEmail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	email := chi.URLParam(r, "email")
	if email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}
	list, err := h.repo.ListOrdersByEmail(ctx, email)
	if err != nil {
		h.fail(ctx, w, "list orders by email", err)
		return
	}
	respondJSON(w, http.StatusOK, toDTOs(list))
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cmd, ok := domain.ParseCommand(chi.URLParam(r, "command"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown command")
		return
	}
	id, ok := orderID(w, r)
	if !ok {
		return
	}

	order, err := h.repo.Transition(ctx, cmd, id)
	if err != nil {
		h.fail(ctx, w, string(cmd)+" order", err)
		return
	}
	logger.Info(ctx, h.log, "order status changed",
		zap.Int64("order_id", id), zap.String("command", string(cmd)), zap.String("status", order.StatusName))
	respondJSON(w, http.StatusOK, backend.OrderFromDomain(*order))
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(ctx, h.log, op+" failed", zap.Error(err))
		respondError(w, status, "internal server error")
		return
	}
	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		oversold *store.OversoldError
		illegal  *store.IllegalTransitionError
	)
	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.As(err, &oversold):
		return http.StatusConflict
	case errors.As(err, &illegal),
		errors.Is(err, store.ErrUserRequired),
		errors.Is(err, store.ErrInvalidUser),
		errors.Is(err, store.ErrInvalidQuantity),
		errors.Is(err, store.ErrNoItems):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func toDTOs(list []domain.Order) []backend.OrderDTO {
	out := make([]backend.OrderDTO, 0, len(list))
	for _, o := range list {
		out = append(out, backend.OrderFromDomain(o))
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Int("status", status), zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}
