package domain

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CartLine is the persisted form of one cart entry.
type CartLine struct {
	MedicineID int64 `json:"id"`
	Quantity   int   `json:"quantity"`
}

// CartView is a CartLine enriched with live catalog data. It is rebuilt on
// every load and never persisted.
type CartView struct {
	MedicineID int64           `json:"medicine_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	ImageURL   string          `json:"image_url"`
	Stock      int             `json:"stock"`
	Quantity   int             `json:"quantity"`
}

func (v CartView) Subtotal() decimal.Decimal {
	return v.UnitPrice.Mul(decimal.NewFromInt(int64(v.Quantity)))
}

type Identity struct {
	UserID   int64
	Email    string
	FullName string
	Role     string
}

const RoleStaff = "staff"

func (i *Identity) IsStaff() bool {
	return i != nil && strings.EqualFold(i.Role, RoleStaff)
}

// Scope is the partition key a cart is persisted under.
type Scope string

const GuestScope Scope = "cart:guest"

// ScopeFor derives the cart scope from an identity. The email keys the
// scope when present, the user id otherwise; only an identity with
// neither shares the guest scope.
func ScopeFor(id *Identity) Scope {
	if id == nil {
		return GuestScope
	}
	if email := strings.ToLower(strings.TrimSpace(id.Email)); email != "" {
		return Scope("cart:user:" + email)
	}
	if id.UserID > 0 {
		return Scope("cart:uid:" + strconv.FormatInt(id.UserID, 10))
	}
	return GuestScope
}

func (s Scope) String() string {
	return string(s)
}
