package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_pharmacy/internal/domain"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserRequired    = errors.New("user id is required")
	ErrInvalidUser     = errors.New("invalid user id")
	ErrInvalidQuantity = errors.New("item quantity must be positive")
	ErrNoItems         = errors.New("order has no known medicines")
)

// OversoldError rejects a line asking for more than is in stock.
type OversoldError struct {
	MedicineID int64
	Name       string
	Requested  int
	Available  int
}

func (e *OversoldError) Error() string {
	return fmt.Sprintf("only %d of %s (id %d) in stock, %d requested", e.Available, e.Name, e.MedicineID, e.Requested)
}

// IllegalTransitionError means the order exists but cmd does not apply to
// its current status.
type IllegalTransitionError struct {
	Command domain.Command
	From    domain.OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	sources := domain.Sources(e.Command)
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.String())
	}
	return fmt.Sprintf("cannot %s an order in status %s, only %s orders", e.Command, e.From, strings.Join(names, " or "))
}
