package storage

import (
	"context"
	"sync"

	"github.com/fjod/go_pharmacy/internal/domain"
)

// MemoryStorage keeps carts in process memory. Used for tests and
// single-instance deployments.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[domain.Scope][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[domain.Scope][]byte)}
}

func (m *MemoryStorage) Get(_ context.Context, scope domain.Scope) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[scope]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryStorage) Set(_ context.Context, scope domain.Scope, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.values[scope] = v
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, scope domain.Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, scope)
	return nil
}
