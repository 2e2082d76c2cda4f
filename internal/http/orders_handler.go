package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderBoard interface {
	History(ctx context.Context, id *domain.Identity) ([]domain.Order, error)
	Order(ctx context.Context, id *domain.Identity, orderID int64) (*domain.Order, error)
	Triage(ctx context.Context) (orders.Buckets, error)
	Apply(ctx context.Context, cmd domain.Command, orderID int64) (orders.Buckets, error)
}

type OrdersHandler struct {
	board   OrderBoard
	log     *zap.Logger
	timeout time.Duration
}

func NewOrdersHandler(board OrderBoard, log *zap.Logger, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		board:   board,
		log:     log,
		timeout: timeout,
	}
}

type OrderItemDTO struct {
	MedicineID   int64           `json:"medicine_id"`
	MedicineName string          `json:"medicine_name"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

type OrderResponseDTO struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	UserName        string          `json:"user_name"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	StatusID        int             `json:"status_id"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shipping_address"`
	Items           []OrderItemDTO  `json:"items"`
	CreatedAt       string          `json:"created_at"`
}

type BucketsDTO struct {
	Pending    []OrderResponseDTO `json:"pending"`
	Processing []OrderResponseDTO `json:"processing"`
	Completed  []OrderResponseDTO `json:"completed"`
	Cancelled  []OrderResponseDTO `json:"cancelled"`
	Other      []OrderResponseDTO `json:"other"`
}

type ApplyResponseDTO struct {
	Orders *BucketsDTO `json:"orders,omitempty"`
	Error  string      `json:"error,omitempty"`
	Code   string      `json:"code,omitempty"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.board.History(ctx, getIdentityFromContext(r.Context()))
	if err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrders(list))
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetMyOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a positive integer")
		return
	}

	order, err := h.board.Order(ctx, getIdentityFromContext(r.Context()), orderID)
	if err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(*order))
}

// GET /api/v1/staff/orders
func (h *OrdersHandler) Board(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buckets, err := h.board.Triage(ctx)
	if err != nil {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertBuckets(buckets))
}

// PUT /api/v1/staff/orders/{order_id}/{command}
func (h *OrdersHandler) ApplyCommand(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, err := strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || orderID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a positive integer")
		return
	}
	cmd, ok := domain.ParseCommand(chi.URLParam(r, "command"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown_command", "command must be confirm, complete or cancel")
		return
	}

	buckets, err := h.board.Apply(ctx, cmd, orderID)
	if err == nil {
		dto := convertBuckets(buckets)
		respondJSON(w, http.StatusOK, ApplyResponseDTO{Orders: &dto})
		return
	}

	status, body := classify(err)
	if status >= http.StatusInternalServerError {
		respondServiceError(ctx, h.log, w, err)
		return
	}
	resp := ApplyResponseDTO{Error: body.Error, Code: body.Code}
	if buckets.Pending != nil {
		dto := convertBuckets(buckets)
		resp.Orders = &dto
	}
	respondJSON(w, status, resp)
}

func convertOrder(o domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Details))
	for _, d := range o.Details {
		items = append(items, OrderItemDTO{
			MedicineID:   d.MedicineID,
			MedicineName: d.MedicineName,
			Quantity:     d.Quantity,
			Price:        d.UnitPrice,
		})
	}
	dto := OrderResponseDTO{
		ID:              o.ID,
		UserID:          o.UserID,
		UserName:        o.UserName,
		TotalAmount:     o.TotalAmount,
		StatusID:        int(o.Status),
		Status:          o.StatusName,
		ShippingAddress: o.ShippingAddress,
		Items:           items,
	}
	if dto.Status == "" {
		dto.Status = o.Status.String()
	}
	if !o.CreatedAt.IsZero() {
		dto.CreatedAt = o.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func convertOrders(list []domain.Order) []OrderResponseDTO {
	dtos := make([]OrderResponseDTO, 0, len(list))
	for _, o := range list {
		dtos = append(dtos, convertOrder(o))
	}
	return dtos
}

func convertBuckets(b orders.Buckets) BucketsDTO {
	return BucketsDTO{
		Pending:    convertOrders(b.Pending),
		Processing: convertOrders(b.Processing),
		Completed:  convertOrders(b.Completed),
		Cancelled:  convertOrders(b.Cancelled),
		Other:      convertOrders(b.Other),
	}
}
