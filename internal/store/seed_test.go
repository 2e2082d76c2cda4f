package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedJSON = `{
	"users": [{"email": "lan@x.com", "fullName": "Lan"}],
	"medicines": [
		{"name": "Paracetamol", "price": 1000, "stockQuantity": 10},
		{"name": "Vitamin C", "price": "500", "stockQuantity": 3, "imageUrl": "vitc.png"}
	]
}`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadSeed(t *testing.T) {
	s, err := LoadSeed(writeSeed(t, seedJSON))
	require.NoError(t, err)
	require.Len(t, s.Users, 1)
	require.Len(t, s.Medicines, 2)
	assert.True(t, decimal.NewFromInt(500).Equal(s.Medicines[1].Price))

	_, err = LoadSeed(writeSeed(t, `{"medicines":[{"price":1}]}`))
	assert.Error(t, err)

	_, err = LoadSeed(writeSeed(t, `{`))
	assert.Error(t, err)

	_, err = LoadSeed(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestApplySeed(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	s, err := LoadSeed(writeSeed(t, seedJSON))
	require.NoError(t, err)

	users, meds, err := repo.ApplySeed(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 1, users)
	assert.Equal(t, 2, meds)

	// a restart does not duplicate the catalog
	_, meds, err = repo.ApplySeed(ctx, s)
	require.NoError(t, err)
	assert.Zero(t, meds)

	list, err := repo.ListMedicines(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "vitc.png", list[1].ImageURL)

	order, err := repo.CreateOrder(ctx, NewOrder{
		UserID:          1,
		ShippingAddress: "12 Tran Phu",
		Items:           []NewOrderItem{{MedicineID: list[0].ID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2000).Equal(order.TotalAmount))
}
