package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/fjod/go_pharmacy/internal/cart/storage"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	m     sync.RWMutex
	meds  []domain.Medicine
	err   error
	calls int
}

func (d *mockDirectory) All(context.Context) ([]domain.Medicine, error) {
	d.m.Lock()
	defer d.m.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.meds, nil
}

func (d *mockDirectory) fail(err error) {
	d.m.Lock()
	defer d.m.Unlock()
	d.err = err
}

func med(id int64, price int64, stock int) domain.Medicine {
	return domain.Medicine{ID: id, Name: "med", Price: decimal.NewFromInt(price), Stock: stock}
}

func newTestService(meds ...domain.Medicine) (*Service, *storage.MemoryStorage, *mockDirectory) {
	st := storage.NewMemoryStorage()
	dir := &mockDirectory{meds: meds}
	return NewService(st, dir, nil, nil), st, dir
}

func storedLines(t *testing.T, st storage.Storage, scope domain.Scope) []domain.CartLine {
	t.Helper()
	raw, err := st.Get(context.Background(), scope)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	var lines []domain.CartLine
	require.NoError(t, json.Unmarshal(raw, &lines))
	return lines
}

func TestService_AddAndLoad(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(med(1, 1000, 10), med(2, 2500, 10))
	scope := domain.ScopeFor(&domain.Identity{Email: "a@x.com"})

	require.NoError(t, svc.Add(ctx, scope, 1, 2))
	require.NoError(t, svc.Add(ctx, scope, 2, 2))
	require.NoError(t, svc.Add(ctx, scope, 1, 1))

	assert.Equal(t, []domain.CartLine{{MedicineID: 1, Quantity: 3}, {MedicineID: 2, Quantity: 2}}, storedLines(t, st, scope))

	views, err := svc.Load(ctx, scope)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, 3, views[0].Quantity)
	assert.True(t, decimal.NewFromInt(8000).Equal(Total(views)))
}

func TestService_StoredFormat(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(med(7, 100, 5))

	require.NoError(t, svc.Add(ctx, domain.GuestScope, 7, 2))

	raw, err := st.Get(ctx, domain.GuestScope)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":7,"quantity":2}]`, string(raw))
}

func TestService_ScopeIsolation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(med(1, 10, 10), med(2, 10, 10))

	alice := domain.ScopeFor(&domain.Identity{Email: "alice@x.com"})
	bob := domain.ScopeFor(&domain.Identity{Email: "bob@x.com"})

	require.NoError(t, svc.Add(ctx, alice, 1, 1))
	require.NoError(t, svc.Add(ctx, domain.GuestScope, 2, 4))

	aliceView, err := svc.Load(ctx, alice)
	require.NoError(t, err)
	bobView, err := svc.Load(ctx, bob)
	require.NoError(t, err)
	guestView, err := svc.Load(ctx, domain.GuestScope)
	require.NoError(t, err)

	require.Len(t, aliceView, 1)
	assert.Equal(t, int64(1), aliceView[0].MedicineID)
	assert.Empty(t, bobView)
	require.Len(t, guestView, 1)
	assert.Equal(t, int64(2), guestView[0].MedicineID)
}

func TestService_LoadDropsUnknownMedicines(t *testing.T) {
	ctx := context.Background()
	svc, st, dir := newTestService(med(1, 10, 10), med(2, 10, 10))

	require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 1))
	require.NoError(t, svc.Add(ctx, domain.GuestScope, 2, 1))

	dir.meds = []domain.Medicine{med(1, 10, 10)}

	views, err := svc.Load(ctx, domain.GuestScope)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].MedicineID)

	// the stored entry is left alone
	assert.Len(t, storedLines(t, st, domain.GuestScope), 2)
}

func TestService_LoadClampsDisplayedQuantity(t *testing.T) {
	ctx := context.Background()
	svc, st, dir := newTestService(med(1, 10, 10))

	require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 8))
	dir.meds = []domain.Medicine{med(1, 10, 5)}

	views, err := svc.Load(ctx, domain.GuestScope)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 5, views[0].Quantity)
	assert.Equal(t, 8, storedLines(t, st, domain.GuestScope)[0].Quantity)
}

func TestService_LoadCatalogFailureGivesEmptyView(t *testing.T) {
	ctx := context.Background()
	svc, st, dir := newTestService(med(1, 10, 10))

	require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 1))
	dir.fail(errors.New("catalog down"))

	views, err := svc.Load(ctx, domain.GuestScope)
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Len(t, storedLines(t, st, domain.GuestScope), 1)
}

func TestService_LoadEmptyCartSkipsCatalog(t *testing.T) {
	svc, _, dir := newTestService(med(1, 10, 10))

	views, err := svc.Load(context.Background(), domain.GuestScope)
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
	assert.Equal(t, 0, dir.calls)
}

func TestService_LoadCorruptEntryIsEmpty(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(med(1, 10, 10))
	require.NoError(t, st.Set(ctx, domain.GuestScope, []byte("not json")))

	views, err := svc.Load(ctx, domain.GuestScope)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestService_AddClampsToStock(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(med(7, 10, 3))

	require.NoError(t, svc.Add(ctx, domain.GuestScope, 7, 2))
	require.NoError(t, svc.Add(ctx, domain.GuestScope, 7, 2))

	assert.Equal(t, []domain.CartLine{{MedicineID: 7, Quantity: 3}}, storedLines(t, st, domain.GuestScope))
}

func TestService_AddEdgeCases(t *testing.T) {
	ctx := context.Background()

	t.Run("non positive id is a no-op", func(t *testing.T) {
		svc, st, dir := newTestService(med(1, 10, 10))
		require.NoError(t, svc.Add(ctx, domain.GuestScope, 0, 1))
		require.NoError(t, svc.Add(ctx, domain.GuestScope, -4, 1))
		assert.Nil(t, storedLines(t, st, domain.GuestScope))
		assert.Equal(t, 0, dir.calls)
	})

	t.Run("non positive quantity counts as one", func(t *testing.T) {
		svc, st, _ := newTestService(med(1, 10, 10))
		require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 0))
		require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, -3))
		assert.Equal(t, []domain.CartLine{{MedicineID: 1, Quantity: 2}}, storedLines(t, st, domain.GuestScope))
	})

	t.Run("catalog failure stores unbounded", func(t *testing.T) {
		svc, st, dir := newTestService(med(1, 10, 2))
		dir.fail(errors.New("down"))
		require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 5))
		assert.Equal(t, 5, storedLines(t, st, domain.GuestScope)[0].Quantity)
	})
}

func TestService_SetQuantity(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		stock int
		set   int
		want  int
	}{
		{"within stock", 10, 4, 4},
		{"above stock", 10, 25, 10},
		{"below one", 10, 0, 1},
		{"negative", 10, -2, 1},
		{"out of stock keeps minimum", 0, 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, dir := newTestService(med(1, 10, 10))
			require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 2))
			dir.meds = []domain.Medicine{med(1, 10, tt.stock)}

			require.NoError(t, svc.SetQuantity(ctx, domain.GuestScope, 1, tt.set))
			assert.Equal(t, tt.want, storedLines(t, st, domain.GuestScope)[0].Quantity)
		})
	}
}

func TestService_SetQuantityNoops(t *testing.T) {
	ctx := context.Background()

	t.Run("line absent", func(t *testing.T) {
		svc, st, _ := newTestService(med(1, 10, 10), med(2, 10, 10))
		require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 1))
		require.NoError(t, svc.SetQuantity(ctx, domain.GuestScope, 2, 5))
		assert.Equal(t, []domain.CartLine{{MedicineID: 1, Quantity: 1}}, storedLines(t, st, domain.GuestScope))
	})

	t.Run("medicine unknown", func(t *testing.T) {
		svc, st, dir := newTestService(med(1, 10, 10))
		require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 1))
		dir.meds = nil
		require.NoError(t, svc.SetQuantity(ctx, domain.GuestScope, 1, 5))
		assert.Equal(t, 1, storedLines(t, st, domain.GuestScope)[0].Quantity)
	})

	t.Run("catalog failure is returned", func(t *testing.T) {
		svc, st, dir := newTestService(med(1, 10, 10))
		require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 1))
		dir.fail(errors.New("down"))
		require.Error(t, svc.SetQuantity(ctx, domain.GuestScope, 1, 5))
		assert.Equal(t, 1, storedLines(t, st, domain.GuestScope)[0].Quantity)
	})
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(med(1, 10, 10), med(2, 10, 10))

	require.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 1))
	require.NoError(t, svc.Add(ctx, domain.GuestScope, 2, 1))

	require.NoError(t, svc.Remove(ctx, domain.GuestScope, 1))
	require.NoError(t, svc.Remove(ctx, domain.GuestScope, 1))
	assert.Equal(t, []domain.CartLine{{MedicineID: 2, Quantity: 1}}, storedLines(t, st, domain.GuestScope))

	require.NoError(t, svc.Clear(ctx, domain.GuestScope))
	_, err := st.Get(ctx, domain.GuestScope)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, svc.Clear(ctx, domain.GuestScope))
}

func TestTotal(t *testing.T) {
	views := []domain.CartView{
		{MedicineID: 1, UnitPrice: decimal.NewFromInt(1000), Quantity: 2},
		{MedicineID: 2, UnitPrice: decimal.NewFromInt(2500), Quantity: 2},
	}
	assert.True(t, decimal.NewFromInt(7000).Equal(Total(views)))
	assert.True(t, decimal.Zero.Equal(Total(nil)))
}

func TestParseMedicineID(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
		ok   bool
	}{
		{"7", 7, true},
		{" 12 ", 12, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		id, ok := ParseMedicineID(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, id, tt.raw)
	}
}

func TestService_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(med(1, 10, 1000))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Add(ctx, domain.GuestScope, 1, 1))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, storedLines(t, st, domain.GuestScope)[0].Quantity)
}

func TestService_StorageErrorsAreReturned(t *testing.T) {
	ctx := context.Background()
	svc := NewService(failingStorage{}, &mockDirectory{meds: []domain.Medicine{med(1, 10, 10)}}, nil, nil)

	_, err := svc.Load(ctx, domain.GuestScope)
	assert.ErrorIs(t, err, errStorage)
	assert.ErrorIs(t, svc.Add(ctx, domain.GuestScope, 1, 1), errStorage)
	assert.ErrorIs(t, svc.Clear(ctx, domain.GuestScope), errStorage)
}

var errStorage = errors.New("storage down")

type failingStorage struct{}

func (failingStorage) Get(context.Context, domain.Scope) ([]byte, error) { return nil, errStorage }
func (failingStorage) Set(context.Context, domain.Scope, []byte) error  { return errStorage }
func (failingStorage) Delete(context.Context, domain.Scope) error       { return errStorage }
