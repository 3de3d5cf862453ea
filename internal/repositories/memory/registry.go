package memory

import (
	"context"
	"time"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

// Registry wires the memory repositories around one Store.
type Registry struct {
	store      *Store
	orders     *OrderRepository
	inventory  *InventoryRepository
	loyalty    *LoyaltyRepository
	promotions *PromotionRepository
	catalog    *CatalogRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs a registry backed by store. A nil store gets a fresh one.
func NewRegistry(store *Store, clock func() time.Time) *Registry {
	if store == nil {
		store = NewStore()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		store:      store,
		orders:     &OrderRepository{store: store},
		inventory:  &InventoryRepository{store: store, now: clock},
		loyalty:    &LoyaltyRepository{store: store},
		promotions: &PromotionRepository{store: store},
		catalog:    &CatalogRepository{store: store},
	}
}

func (r *Registry) Close(context.Context) error { return nil }
func (r *Registry) Ping(context.Context) error  { return nil }

func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Inventory() repositories.InventoryRepository  { return r.inventory }
func (r *Registry) Loyalty() repositories.LoyaltyRepository      { return r.loyalty }
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }
func (r *Registry) Catalog() repositories.CatalogRepository      { return r.catalog }
func (r *Registry) CatalogSeeder() *CatalogRepository            { return r.catalog }

// RunInTx implements repositories.UnitOfWork.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.store.RunInTx(ctx, fn)
}
