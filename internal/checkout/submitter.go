// Package checkout turns a loaded cart into a backend order and clears the
// cart only once the backend has accepted it.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fjod/go_pharmacy/internal/backend"
	"github.com/fjod/go_pharmacy/internal/cart"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/metrics"
	"github.com/fjod/go_pharmacy/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSignInRequired       = errors.New("you must sign in to place an order")
	ErrAddressRequired      = errors.New("shipping address is required")
	ErrCartEmpty            = errors.New("cart is empty")
	ErrSubmissionInProgress = errors.New("an order submission is already in progress")
)

// ValidationError marks a submission refused before any network call.
type ValidationError struct {
	Reason error
}

func (e *ValidationError) Error() string {
	return e.Reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (*domain.Order, error)
}

type CartClearer interface {
	Clear(ctx context.Context, scope domain.Scope) error
}

type Submitter struct {
	orders  OrderCreator
	carts   CartClearer
	log     *zap.Logger
	metrics *metrics.Metrics

	inFlight sync.Map // domain.Scope -> submission token
}

func NewSubmitter(orders OrderCreator, carts CartClearer, log *zap.Logger, m *metrics.Metrics) *Submitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{orders: orders, carts: carts, log: log, metrics: m}
}

// Submit places an order for the given view. On any failure the cart is
// left exactly as it was.
func (s *Submitter) Submit(ctx context.Context, id *domain.Identity, view []domain.CartView, address string) (*domain.Order, error) {
	address = strings.TrimSpace(address)
	if err := Validate(id, view, address); err != nil {
		s.metrics.OrderSubmission("invalid")
		return nil, err
	}

	scope := domain.ScopeFor(id)
	token := uuid.NewString()
	if _, busy := s.inFlight.LoadOrStore(scope, token); busy {
		s.metrics.OrderSubmission("in_flight")
		return nil, ErrSubmissionInProgress
	}
	defer s.inFlight.CompareAndDelete(scope, token)

	req := backend.CreateOrderRequest{
		UserID:          id.UserID,
		ShippingAddress: address,
		Items:           make([]backend.CreateOrderItem, 0, len(view)),
		TotalAmount:     cart.Total(view),
	}
	for _, v := range view {
		req.Items = append(req.Items, backend.CreateOrderItem{MedicineID: v.MedicineID, Quantity: v.Quantity})
	}

	order, err := s.orders.CreateOrder(ctx, req)
	if err != nil {
		s.metrics.OrderSubmission("rejected")
		logger.Warn(ctx, s.log, "order submission failed",
			zap.String("scope", scope.String()), zap.String("submission", token), zap.Error(err))
		return nil, fmt.Errorf("submit order: %w", err)
	}

	if err := s.carts.Clear(ctx, scope); err != nil {
		// the order is durable at this point and cannot be taken back
		s.metrics.OrderSubmission("clear_failed")
		logger.Error(ctx, s.log, "order placed but cart not cleared",
			zap.String("scope", scope.String()), zap.Int64("order_id", order.ID), zap.Error(err))
		return order, nil
	}

	s.metrics.OrderSubmission("placed")
	logger.Info(ctx, s.log, "order placed",
		zap.String("scope", scope.String()), zap.Int64("order_id", order.ID),
		zap.String("total", order.TotalAmount.String()))
	return order, nil
}

// Validate checks every precondition and reports all that fail.
func Validate(id *domain.Identity, view []domain.CartView, address string) error {
	var errs []error
	if id == nil || id.UserID <= 0 {
		errs = append(errs, &ValidationError{Reason: ErrSignInRequired})
	}
	if strings.TrimSpace(address) == "" {
		errs = append(errs, &ValidationError{Reason: ErrAddressRequired})
	}
	if len(view) == 0 {
		errs = append(errs, &ValidationError{Reason: ErrCartEmpty})
	}
	return errors.Join(errs...)
}
