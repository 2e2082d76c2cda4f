// Package storage holds the key-value backends a cart can be persisted in.
// Every backend stores one opaque value per scope; serialization belongs to
// the cart package.
package storage

import (
	"context"
	"errors"

	"github.com/fjod/go_pharmacy/internal/domain"
)

var ErrNotFound = errors.New("cart not found")

type Storage interface {
	// Get returns ErrNotFound when nothing is stored for scope.
	Get(ctx context.Context, scope domain.Scope) ([]byte, error)
	Set(ctx context.Context, scope domain.Scope, value []byte) error
	// Delete is idempotent.
	Delete(ctx context.Context, scope domain.Scope) error
}
