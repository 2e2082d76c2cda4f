// Package orders serves order history to customers and the triage board
// staff use to move orders through their lifecycle.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_pharmacy/internal/backend"
	"github.com/fjod/go_pharmacy/internal/checkout"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/metrics"
	"github.com/fjod/go_pharmacy/pkg/logger"
	"go.uber.org/zap"
)

type Backend interface {
	OrdersByEmail(ctx context.Context, email string) ([]domain.Order, error)
	AllOrders(ctx context.Context) ([]domain.Order, error)
	Order(ctx context.Context, id int64) (*domain.Order, error)
	Transition(ctx context.Context, cmd domain.Command, orderID int64) error
}

// ErrBoardStale means the command went through but the board could not be
// reloaded afterwards.
var ErrBoardStale = errors.New("command applied, board reload failed")

// ErrOrderNotFound hides orders that do not exist and orders owned by
// someone else alike.
var ErrOrderNotFound = errors.New("order not found")

type Buckets struct {
	Pending    []domain.Order `json:"pending"`
	Processing []domain.Order `json:"processing"`
	Completed  []domain.Order `json:"completed"`
	Cancelled  []domain.Order `json:"cancelled"`
	Other      []domain.Order `json:"other"`
}

// Partition groups orders by status name, preserving their order.
func Partition(list []domain.Order) Buckets {
	b := Buckets{
		Pending:    []domain.Order{},
		Processing: []domain.Order{},
		Completed:  []domain.Order{},
		Cancelled:  []domain.Order{},
		Other:      []domain.Order{},
	}
	for _, o := range list {
		switch domain.ParseStatus(o.StatusName) {
		case domain.StatusPending:
			b.Pending = append(b.Pending, o)
		case domain.StatusProcessing:
			b.Processing = append(b.Processing, o)
		case domain.StatusCompleted:
			b.Completed = append(b.Completed, o)
		case domain.StatusCancelled:
			b.Cancelled = append(b.Cancelled, o)
		default:
			b.Other = append(b.Other, o)
		}
	}
	return b
}

// TransitionRejectedError is returned when the backend refused a staff
// command. Message is the backend's own text.
type TransitionRejectedError struct {
	Command    domain.Command
	OrderID    int64
	StatusCode int
	Message    string
	Err        error
}

func (e *TransitionRejectedError) Error() string {
	return fmt.Sprintf("%s order %d rejected: %s", e.Command, e.OrderID, e.Message)
}

func (e *TransitionRejectedError) Unwrap() error {
	return e.Err
}

type Board struct {
	backend Backend
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewBoard(b Backend, log *zap.Logger, m *metrics.Metrics) *Board {
	if log == nil {
		log = zap.NewNop()
	}
	return &Board{backend: b, log: log, metrics: m}
}

// History lists the orders placed by the signed-in customer.
func (b *Board) History(ctx context.Context, id *domain.Identity) ([]domain.Order, error) {
	if id == nil || strings.TrimSpace(id.Email) == "" {
		return nil, checkout.ErrSignInRequired
	}
	list, err := b.backend.OrdersByEmail(ctx, strings.TrimSpace(id.Email))
	if err != nil {
		return nil, fmt.Errorf("order history: %w", err)
	}
	return list, nil
}

// Order returns one order placed by the signed-in customer. Staff may
// read any order.
func (b *Board) Order(ctx context.Context, id *domain.Identity, orderID int64) (*domain.Order, error) {
	if id == nil || (id.UserID <= 0 && strings.TrimSpace(id.Email) == "") {
		return nil, checkout.ErrSignInRequired
	}
	order, err := b.backend.Order(ctx, orderID)
	if backend.IsNotFound(err) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", orderID, err)
	}
	if !id.IsStaff() && !ownedBy(order, id) {
		logger.Debug(ctx, b.log, "order requested by non-owner", zap.Int64("order_id", orderID))
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func ownedBy(o *domain.Order, id *domain.Identity) bool {
	email := strings.TrimSpace(id.Email)
	if email != "" && o.OwnerEmail != "" {
		return strings.EqualFold(o.OwnerEmail, email)
	}
	return id.UserID > 0 && o.UserID == id.UserID
}

func (b *Board) Triage(ctx context.Context) (Buckets, error) {
	list, err := b.backend.AllOrders(ctx)
	if err != nil {
		return Buckets{}, fmt.Errorf("list orders: %w", err)
	}
	return Partition(list), nil
}

// Apply sends cmd for orderID without checking the current status locally
// and then always reloads the board. The returned buckets are the fresh
// ones even when the command was rejected; they are zero only when the
// reload itself failed.
func (b *Board) Apply(ctx context.Context, cmd domain.Command, orderID int64) (Buckets, error) {
	cmdErr := b.backend.Transition(ctx, cmd, orderID)
	outcome := "ok"
	if cmdErr != nil {
		var te *backend.TransportError
		if errors.As(cmdErr, &te) && te.Rejected() {
			outcome = "rejected"
			cmdErr = &TransitionRejectedError{
				Command:    cmd,
				OrderID:    orderID,
				StatusCode: te.StatusCode,
				Message:    te.Detail,
				Err:        te,
			}
		} else {
			outcome = "error"
			cmdErr = fmt.Errorf("%s order %d: %w", cmd, orderID, cmdErr)
		}
		logger.Warn(ctx, b.log, "status command failed",
			zap.String("command", string(cmd)), zap.Int64("order_id", orderID), zap.Error(cmdErr))
	}
	b.metrics.OrderTransition(string(cmd), outcome)

	buckets, err := b.Triage(ctx)
	if err != nil {
		logger.Warn(ctx, b.log, "reload after status command failed", zap.Error(err))
		if cmdErr != nil {
			return Buckets{}, cmdErr
		}
		return Buckets{}, fmt.Errorf("%w: %w", ErrBoardStale, err)
	}
	return buckets, cmdErr
}
