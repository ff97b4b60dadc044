package cache

import (
	"context"
	"time"

	"boltline/backend/internal/domain"
)

// InfoCache caches serialized cart and purchase info views keyed by the
// aggregate id. Mutations must call Invalidate so readers never see a stale
// view.
type InfoCache interface {
	GetCartInfo(ctx context.Context, id string) (*domain.CartInfo, bool, error)
	SetCartInfo(ctx context.Context, id string, value *domain.CartInfo, ttl time.Duration) error
	GetPurchaseInfo(ctx context.Context, id string) (*domain.PurchaseInfo, bool, error)
	SetPurchaseInfo(ctx context.Context, id string, value *domain.PurchaseInfo, ttl time.Duration) error
	Invalidate(ctx context.Context, id string) error
}

type NoopInfoCache struct{}

func (NoopInfoCache) GetCartInfo(_ context.Context, _ string) (*domain.CartInfo, bool, error) {
	return nil, false, nil
}

func (NoopInfoCache) SetCartInfo(_ context.Context, _ string, _ *domain.CartInfo, _ time.Duration) error {
	return nil
}

func (NoopInfoCache) GetPurchaseInfo(_ context.Context, _ string) (*domain.PurchaseInfo, bool, error) {
	return nil, false, nil
}

func (NoopInfoCache) SetPurchaseInfo(_ context.Context, _ string, _ *domain.PurchaseInfo, _ time.Duration) error {
	return nil
}

func (NoopInfoCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
