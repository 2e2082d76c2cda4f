package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestScopeFor(t *testing.T) {
	assert.Equal(t, GuestScope, ScopeFor(nil))
	assert.Equal(t, GuestScope, ScopeFor(&Identity{}))
	assert.Equal(t, Scope("cart:uid:3"), ScopeFor(&Identity{UserID: 3}))
	assert.Equal(t, Scope("cart:user:ann@example.com"), ScopeFor(&Identity{Email: " Ann@Example.com "}))
}

func TestScopeFor_DistinctIdentitiesNeverShare(t *testing.T) {
	a := ScopeFor(&Identity{Email: "a@example.com"})
	b := ScopeFor(&Identity{Email: "b@example.com"})
	guestLike := ScopeFor(&Identity{Email: "guest"})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, GuestScope, guestLike)

	// users known only by id
	u3 := ScopeFor(&Identity{UserID: 3})
	u4 := ScopeFor(&Identity{UserID: 4})
	assert.NotEqual(t, u3, u4)
	assert.NotEqual(t, GuestScope, u3)
	assert.NotEqual(t, GuestScope, u4)
}

func TestIdentity_IsStaff(t *testing.T) {
	var nobody *Identity
	assert.False(t, nobody.IsStaff())
	assert.True(t, (&Identity{Role: "Staff"}).IsStaff())
	assert.False(t, (&Identity{Role: "customer"}).IsStaff())
}

func TestOrder_CalculateTotal(t *testing.T) {
	o := Order{Details: []OrderDetail{
		{MedicineID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(1000)},
		{MedicineID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(5000)},
	}}
	assert.True(t, decimal.NewFromInt(7000).Equal(o.CalculateTotal()))
}
