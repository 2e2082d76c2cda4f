package domain

import "github.com/shopspring/decimal"

// Medicine is the catalog record the cart is reconciled against.
type Medicine struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Stock    int
	ImageURL string
}
