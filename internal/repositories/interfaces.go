package repositories

import (
	"context"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
// Every backend (firestore, postgres, memory) provides one.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Orders() OrderRepository
	Inventory() InventoryRepository
	Loyalty() LoyaltyRepository
	Promotions() PromotionRepository
	Catalog() CatalogRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transactional boundary. Implementations
// retry fn when the backend reports a write conflict, so fn must be free of side effects
// outside the repositories it calls.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists orders. Orders are never deleted.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings. Results are ordered by creation time, newest first.
type OrderListFilter struct {
	BuyerID       string
	Statuses      []domain.OrderStatus
	CreatedBefore *time.Time
	Pagination    domain.Pagination
}

// InventoryRepository manages per-branch stock.
type InventoryRepository interface {
	// DecrementAll takes every line from stock or none of them. Shortages are reported with
	// an *InventoryError carrying one InventoryShortage per short line.
	DecrementAll(ctx context.Context, branchID string, lines []domain.StockLine) ([]domain.InventoryRecord, error)
	// RestoreAll returns units to stock unconditionally, creating missing records.
	RestoreAll(ctx context.Context, branchID string, lines []domain.StockLine) error
	Get(ctx context.Context, branchID, variantID string) (domain.InventoryRecord, error)
	Set(ctx context.Context, record domain.InventoryRecord) error
}

// LoyaltyRepository stores the append-only loyalty ledger and per-user balances.
type LoyaltyRepository interface {
	// Record appends entry and applies its delta to the user's balance.
	Record(ctx context.Context, entry domain.LoyaltyEntry) error
	Account(ctx context.Context, userID string) (domain.LoyaltyAccount, error)
	ListEntries(ctx context.Context, userID string, limit int) ([]domain.LoyaltyEntry, error)
}

// PromotionRepository maintains promotion definitions keyed by normalised code.
type PromotionRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	Upsert(ctx context.Context, promotion domain.Promotion) error
}

// CatalogRepository reads variant data owned by the catalog.
type CatalogRepository interface {
	FindVariants(ctx context.Context, variantIDs []string) (map[string]domain.CatalogVariant, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
