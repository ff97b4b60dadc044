// Package store defines the persistence boundary for carts and purchases.
// Implementations live in the pack (file-backed) and postgres subpackages.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"boltline/backend/internal/cart"
	"boltline/backend/internal/purchase"
)

// Repository persists carts and purchases keyed by their aggregate id.
//
// UpdateCart and UpdatePurchase run fn under the store's write lock on a
// loaded copy of the aggregate; the mutated copy is persisted only when fn
// returns nil, so a failing fn leaves the stored state untouched.
type Repository interface {
	InsertCart(ctx context.Context, c cart.Cart) error
	CartByID(ctx context.Context, id uuid.UUID) (cart.Cart, error)
	UpdateCart(ctx context.Context, id uuid.UUID, fn func(*cart.Cart) error) (cart.Cart, error)
	RemoveCart(ctx context.Context, id uuid.UUID) error
	CartIDs(ctx context.Context) ([]uuid.UUID, error)
	CartsByIDs(ctx context.Context, ids []uuid.UUID) ([]cart.Cart, error)

	InsertPurchase(ctx context.Context, p purchase.Purchase) error
	PurchaseByID(ctx context.Context, id uuid.UUID) (purchase.Purchase, error)
	UpdatePurchase(ctx context.Context, id uuid.UUID, fn func(*purchase.Purchase) error) (purchase.Purchase, error)
	PurchaseIDs(ctx context.Context) ([]uuid.UUID, error)
	PurchasesByIDs(ctx context.Context, ids []uuid.UUID) ([]purchase.Purchase, error)
	PurchasesByInterval(ctx context.Context, from, to time.Time) ([]purchase.Purchase, error)
}
