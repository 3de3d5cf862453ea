package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/firestore"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

// Registry wires every Firestore repository around one provider. RunInTx opens a Firestore
// transaction whose handle travels in the context so all repositories join it.
type Registry struct {
	provider   *pfirestore.Provider
	orders     *OrderRepository
	inventory  *InventoryRepository
	loyalty    *LoyaltyRepository
	promotions *PromotionRepository
	catalog    *CatalogRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the Firestore registry.
func NewRegistry(provider *pfirestore.Provider, clock func() time.Time) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	inventory, err := NewInventoryRepository(provider, clock)
	if err != nil {
		return nil, err
	}
	loyalty, err := NewLoyaltyRepository(provider)
	if err != nil {
		return nil, err
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:   provider,
		orders:     orders,
		inventory:  inventory,
		loyalty:    loyalty,
		promotions: promotions,
		catalog:    catalog,
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository  { return r.inventory }
func (r *Registry) Loyalty() repositories.LoyaltyRepository      { return r.loyalty }
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }
func (r *Registry) Catalog() repositories.CatalogRepository      { return r.catalog }

// CatalogWriter exposes variant seeding for operator tooling.
func (r *Registry) CatalogWriter() *CatalogRepository { return r.catalog }

// RunInTx implements repositories.UnitOfWork.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

// Ping issues a single-document query to prove connectivity.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.orders.orders.Query(ctx, func(q firestore.Query) firestore.Query { return q.Limit(1) })
	return err
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
