package checkout

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fjod/go_pharmacy/internal/backend"
	"github.com/fjod/go_pharmacy/internal/cart"
	"github.com/fjod/go_pharmacy/internal/cart/storage"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	calls   atomic.Int32
	err     error
	last    backend.CreateOrderRequest
	release chan struct{}
	entered chan struct{}
}

func (f *fakeOrders) CreateOrder(_ context.Context, req backend.CreateOrderRequest) (*domain.Order, error) {
	f.calls.Add(1)
	f.last = req
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Order{ID: 100, Status: domain.StatusPending, TotalAmount: req.TotalAmount}, nil
}

type staticDirectory []domain.Medicine

func (d staticDirectory) All(context.Context) ([]domain.Medicine, error) { return d, nil }

var customer = &domain.Identity{UserID: 5, Email: "lan@x.com", FullName: "Lan"}

type fixture struct {
	store  *storage.MemoryStorage
	carts  *cart.Service
	orders *fakeOrders
	sub    *Submitter
	scope  domain.Scope
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := storage.NewMemoryStorage()
	dir := staticDirectory{
		{ID: 1, Name: "A", Price: decimal.NewFromInt(1000), Stock: 10},
		{ID: 2, Name: "B", Price: decimal.NewFromInt(2500), Stock: 10},
	}
	carts := cart.NewService(st, dir, nil, nil)
	orders := &fakeOrders{}
	f := &fixture{
		store:  st,
		carts:  carts,
		orders: orders,
		sub:    NewSubmitter(orders, carts, nil, nil),
		scope:  domain.ScopeFor(customer),
	}
	ctx := context.Background()
	require.NoError(t, carts.Add(ctx, f.scope, 1, 2))
	require.NoError(t, carts.Add(ctx, f.scope, 2, 2))
	return f
}

func (f *fixture) view(t *testing.T) []domain.CartView {
	t.Helper()
	v, err := f.carts.Load(context.Background(), f.scope)
	require.NoError(t, err)
	return v
}

func TestSubmit_SuccessClearsCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.sub.Submit(ctx, customer, f.view(t), "  12 Tran Phu ")
	require.NoError(t, err)
	assert.Equal(t, int64(100), order.ID)

	assert.Equal(t, int64(5), f.orders.last.UserID)
	assert.Equal(t, "12 Tran Phu", f.orders.last.ShippingAddress)
	assert.Equal(t, []backend.CreateOrderItem{{MedicineID: 1, Quantity: 2}, {MedicineID: 2, Quantity: 2}}, f.orders.last.Items)
	assert.True(t, decimal.NewFromInt(7000).Equal(f.orders.last.TotalAmount))

	_, err = f.store.Get(ctx, f.scope)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubmit_FailureLeavesCartUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before, err := f.store.Get(ctx, f.scope)
	require.NoError(t, err)

	f.orders.err = &backend.TransportError{Op: "create order", StatusCode: http.StatusBadRequest, Detail: "Invalid user id"}

	_, err = f.sub.Submit(ctx, customer, f.view(t), "12 Tran Phu")
	var te *backend.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Invalid user id", te.Detail)

	after, err := f.store.Get(ctx, f.scope)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSubmit_EmptyAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before, _ := f.store.Get(ctx, f.scope)

	_, err := f.sub.Submit(ctx, customer, f.view(t), "   ")
	assert.ErrorIs(t, err, ErrAddressRequired)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	assert.Equal(t, int32(0), f.orders.calls.Load())
	after, _ := f.store.Get(ctx, f.scope)
	assert.Equal(t, before, after)
}

func TestSubmit_ValidationReasons(t *testing.T) {
	view := []domain.CartView{{MedicineID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}

	tests := []struct {
		name    string
		id      *domain.Identity
		view    []domain.CartView
		address string
		want    []error
		notWant []error
	}{
		{"guest", nil, view, "addr", []error{ErrSignInRequired}, []error{ErrAddressRequired, ErrCartEmpty}},
		{"empty cart", customer, nil, "addr", []error{ErrCartEmpty}, []error{ErrSignInRequired, ErrAddressRequired}},
		{"everything missing", nil, nil, "", []error{ErrSignInRequired, ErrAddressRequired, ErrCartEmpty}, nil},
		{"identity without user id", &domain.Identity{Email: "x@y"}, view, "addr", []error{ErrSignInRequired}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &fakeOrders{}
			sub := NewSubmitter(orders, nil, nil, nil)

			_, err := sub.Submit(context.Background(), tt.id, tt.view, tt.address)
			require.Error(t, err)
			for _, w := range tt.want {
				assert.ErrorIs(t, err, w)
			}
			for _, w := range tt.notWant {
				assert.NotErrorIs(t, err, w)
			}
			assert.Equal(t, int32(0), orders.calls.Load())
		})
	}
}

func TestSubmit_RejectsConcurrentSubmission(t *testing.T) {
	f := newFixture(t)
	f.orders.entered = make(chan struct{})
	f.orders.release = make(chan struct{})
	view := f.view(t)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = f.sub.Submit(context.Background(), customer, view, "addr")
	}()
	<-f.orders.entered

	_, err := f.sub.Submit(context.Background(), customer, view, "addr")
	assert.ErrorIs(t, err, ErrSubmissionInProgress)

	close(f.orders.release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.Equal(t, int32(1), f.orders.calls.Load())

	// the guard is released once the first call returns
	f.orders.entered = nil
	_, err = f.sub.Submit(context.Background(), customer, view, "addr")
	assert.NoError(t, err)
}

type failingClearer struct{}

func (failingClearer) Clear(context.Context, domain.Scope) error { return errors.New("storage down") }

func TestSubmit_ClearFailureStillReportsOrder(t *testing.T) {
	orders := &fakeOrders{}
	sub := NewSubmitter(orders, failingClearer{}, nil, nil)
	view := []domain.CartView{{MedicineID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}

	order, err := sub.Submit(context.Background(), customer, view, "addr")
	require.NoError(t, err)
	assert.Equal(t, int64(100), order.ID)
}
