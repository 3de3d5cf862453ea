package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

// Registry wires the Postgres repositories around one pool.
type Registry struct {
	pool       *pgxpool.Pool
	uow        *unitOfWork
	orders     *OrderRepository
	inventory  *InventoryRepository
	loyalty    *LoyaltyRepository
	promotions *PromotionRepository
	catalog    *CatalogRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises the registry.
type RegistryOption func(*Registry)

// WithMaxAttempts bounds transaction retries on serialization failures.
func WithMaxAttempts(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.uow.maxAttempts = n
		}
	}
}

// NewRegistry constructs the registry. The pool is owned by the registry and closed by Close.
func NewRegistry(pool *pgxpool.Pool, clock func() time.Time, opts ...RegistryOption) (*Registry, error) {
	if pool == nil {
		return nil, errors.New("postgres registry: pool is required")
	}
	if clock == nil {
		clock = time.Now
	}
	b := base{pool: pool}
	uow := &unitOfWork{pool: pool, maxAttempts: defaultMaxAttempts}
	r := &Registry{
		pool:       pool,
		uow:        uow,
		orders:     &OrderRepository{base: b},
		inventory:  &InventoryRepository{base: b, uow: uow, now: clock},
		loyalty:    &LoyaltyRepository{base: b, uow: uow},
		promotions: &PromotionRepository{base: b},
		catalog:    &CatalogRepository{base: b},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
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
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) Ping(ctx context.Context) error {
	return wrapError("ping", r.pool.Ping(ctx))
}

func (r *Registry) Close(context.Context) error {
	r.pool.Close()
	return nil
}
