package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStorageContract checks the behaviour every backend must share.
func runStorageContract(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()
	alice := domain.Scope("cart:user:alice@example.com")
	bob := domain.Scope("cart:user:bob@example.com")

	t.Run("missing scope", func(t *testing.T) {
		v, err := s.Get(ctx, domain.Scope("cart:user:nobody@example.com"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, alice, []byte(`[{"id":1,"quantity":2}]`)))
		v, err := s.Get(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, `[{"id":1,"quantity":2}]`, string(v))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, alice, []byte(`[{"id":1,"quantity":5}]`)))
		v, err := s.Get(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, `[{"id":1,"quantity":5}]`, string(v))
	})

	t.Run("scopes are isolated", func(t *testing.T) {
		_, err := s.Get(ctx, bob)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Set(ctx, bob, []byte(`[]`)))
		v, err := s.Get(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, `[{"id":1,"quantity":5}]`, string(v))
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, alice))
		require.NoError(t, s.Delete(ctx, alice))
		_, err := s.Get(ctx, alice)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.Get(ctx, bob)
		assert.NoError(t, err)
	})
}

func TestMemoryStorage(t *testing.T) {
	runStorageContract(t, NewMemoryStorage())
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	value := []byte("abc")
	require.NoError(t, s.Set(ctx, domain.GuestScope, value))
	value[0] = 'x'

	got, err := s.Get(ctx, domain.GuestScope)
	require.NoError(t, err)
	got[1] = 'y'

	again, err := s.Get(ctx, domain.GuestScope)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestSQLiteStorage(t *testing.T) {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "carts.db"))
	require.NoError(t, err)
	defer s.Close()

	runStorageContract(t, s)
}

func TestSQLiteStorage_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carts.db")
	ctx := context.Background()

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, domain.GuestScope, []byte(`[{"id":9,"quantity":1}]`)))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get(ctx, domain.GuestScope)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":9,"quantity":1}]`, string(v))
}

func TestBadgerStorage(t *testing.T) {
	s, err := NewBadgerStorage("")
	require.NoError(t, err)
	defer s.Close()

	runStorageContract(t, s)
}
