package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderDetail is a name and price snapshot taken when the order was placed.
type OrderDetail struct {
	MedicineID   int64
	MedicineName string
	Quantity     int
	UnitPrice    decimal.Decimal
}

type Order struct {
	ID              int64
	UserID          int64
	UserName        string
	OwnerEmail      string
	ShippingAddress string
	CreatedAt       time.Time
	Status          OrderStatus
	StatusName      string
	TotalAmount     decimal.Decimal
	Details         []OrderDetail
}

// CalculateTotal sums the snapshot prices of the order details.
func (o *Order) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, d := range o.Details {
		total = total.Add(d.UnitPrice.Mul(decimal.NewFromInt(int64(d.Quantity))))
	}
	return total
}
