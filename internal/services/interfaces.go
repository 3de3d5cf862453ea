package services

import (
	"context"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/payments"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderStatus        = domain.OrderStatus
	PaymentMethod      = domain.PaymentMethod
	PaymentAttempt     = domain.PaymentAttempt
	ShippingSnapshot   = domain.ShippingSnapshot
	Promotion          = domain.Promotion
	PromotionSnapshot  = domain.PromotionSnapshot
	InventoryRecord    = domain.InventoryRecord
	StockLine          = domain.StockLine
	LoyaltyEntry       = domain.LoyaltyEntry
	LoyaltyAccount     = domain.LoyaltyAccount
	CatalogVariant     = domain.CatalogVariant
	SystemHealthReport = domain.SystemHealthReport
	OrderListFilter    = repositories.OrderListFilter
)

// OrderService is the settlement engine: it owns every order state change and the ledger
// mutations that go with it.
type OrderService interface {
	PreparePayment(ctx context.Context, cmd PreparePaymentCommand) (PaymentAttempt, error)
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error)
	Transition(ctx context.Context, cmd TransitionCommand) (Order, error)
	Refund(ctx context.Context, cmd RefundCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	ExpireStalePending(ctx context.Context, cmd ExpirePendingCommand) (ExpirePendingResult, error)
}

// CallbackReconciler settles signed redirect gateway callbacks exactly once.
type CallbackReconciler interface {
	HandleReturn(ctx context.Context, params map[string]string) (ReturnOutcome, error)
	HandleIPN(ctx context.Context, params map[string]string) (IPNAck, error)
}

// InventoryService is the stock ledger.
type InventoryService interface {
	ReserveAndDecrement(ctx context.Context, branchID string, lines []StockLine) ([]InventoryRecord, error)
	Restore(ctx context.Context, branchID string, lines []StockLine) error
	SetStock(ctx context.Context, cmd SetStockCommand) (InventoryRecord, error)
	GetStock(ctx context.Context, branchID, variantID string) (InventoryRecord, error)
	// PublishLowStock notifies about records at or below the low-stock threshold. Call it after
	// the transaction that produced records committed.
	PublishLowStock(ctx context.Context, records []InventoryRecord)
}

// LoyaltyService is the loyalty points ledger.
type LoyaltyService interface {
	PointsFor(total int64) int64
	Accrue(ctx context.Context, userID, orderID string, points int64) error
	Reverse(ctx context.Context, userID, orderID string, points int64, reason domain.LoyaltyReason) error
	Summary(ctx context.Context, userID string, limit int) (LoyaltySummary, error)
}

// PromotionService resolves buyer supplied codes and maintains promotion definitions.
type PromotionService interface {
	Resolve(ctx context.Context, cmd ResolvePromotionsCommand) (PromotionResolution, error)
	Upsert(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error)
}

// SystemService exposes diagnostic information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CatalogReader looks up current variant data. Results only seed order lines; settlement never
// re-reads them.
type CatalogReader interface {
	FindVariants(ctx context.Context, variantIDs []string) (map[string]CatalogVariant, error)
}

// PaymentProviders resolves the provider for a payment method.
type PaymentProviders interface {
	Provider(method PaymentMethod) (payments.Provider, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// InventoryEventPublisher accepts stock notifications for downstream processing.
type InventoryEventPublisher interface {
	PublishInventoryEvent(ctx context.Context, event InventoryEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	BuyerID        string         `json:"buyerId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// InventoryEvent reports stock that fell to or below the low-stock threshold.
type InventoryEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	BranchID   string    `json:"branchId"`
	VariantID  string    `json:"variantId"`
	Stock      int64     `json:"stock"`
	Threshold  int64     `json:"threshold"`
	OccurredAt time.Time `json:"occurredAt"`
}

// SettlementConfig holds the knobs the engine reads on every call.
type SettlementConfig struct {
	// Currency is the store currency. Amounts are whole units of it.
	Currency string
	// PointsPerCurrencyUnit is the amount of currency that earns one loyalty point.
	PointsPerCurrencyUnit int64
	// LowStockThreshold triggers inventory.low_stock events. Zero disables them.
	LowStockThreshold int64
	// PendingTTL is the age after which pending orders are cancelled by the expiry sweep. Zero
	// disables the sweep.
	PendingTTL time.Duration
	// ReturnSuccessURL and ReturnFailureURL are where gateway return redirects land.
	ReturnSuccessURL string
	ReturnFailureURL string
}

// CartLine is one line of the buyer's cart as sent at checkout.
type CartLine struct {
	VariantID string
	ProductID string
	Name      string
	ImageURL  string
	UnitPrice int64
	Quantity  int
}

// PreparePaymentCommand prices a cart so a client-confirmed provider can start a payment.
type PreparePaymentCommand struct {
	BuyerID        string
	Lines          []CartLine
	PromotionCodes []string
	PaymentMethod  PaymentMethod
	Locale         string
	IdempotencyKey string
}

// CheckoutCommand turns a cart into an order.
type CheckoutCommand struct {
	BuyerID        string
	Lines          []CartLine
	Shipping       ShippingSnapshot
	BranchID       string
	PaymentMethod  PaymentMethod
	PromotionCodes []string
	// PaymentToken is the provider proof for client-confirmed methods.
	PaymentToken   string
	Locale         string
	ClientIP       string
	BankCode       string
	IdempotencyKey string
}

// CheckoutResult is returned to the buyer after checkout.
type CheckoutResult struct {
	Order              Order
	Payment            PaymentAttempt
	RejectedPromotions []PromotionRejection
}

// ConfirmPaymentCommand settles a pending order. Params carries gateway callback parameters;
// Token carries a client proof.
type ConfirmPaymentCommand struct {
	OrderID string
	Params  map[string]string
	Token   string
	ActorID string
}

// ConfirmPaymentResult reports the outcome of a confirmation.
type ConfirmPaymentResult struct {
	Order Order
	// AlreadySettled is true when the order had left pending_payment before this call.
	AlreadySettled bool
}

// TransitionCommand is an operator status change. A non-empty ExpectedStatus makes the change
// conditional: it fails with ErrOrderConflict when the order moved on in the meantime.
type TransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	ExpectedStatus OrderStatus
	Reason         string
	ActorID        string
}

// RefundCommand returns units of a completed order. Items maps variant id to quantity.
type RefundCommand struct {
	OrderID string
	Items   map[string]int
	Reason  string
	ActorID string
}

// OrderReadOptions restricts reads to a buyer. An empty BuyerID reads as an operator.
type OrderReadOptions struct {
	BuyerID string
}

// ExpirePendingCommand cancels pending orders created before Cutoff. A zero cutoff derives
// it from SettlementConfig.PendingTTL.
type ExpirePendingCommand struct {
	Cutoff  time.Time
	Limit   int
	ActorID string
}

// ExpirePendingResult lists the orders the sweep cancelled.
type ExpirePendingResult struct {
	Cancelled []string
	Skipped   int
}

// ReturnOutcome is where a gateway return lands the buyer.
type ReturnOutcome struct {
	OrderID     string
	Success     bool
	RedirectURL string
}

// IPNAck is the gateway acknowledgement body.
type IPNAck struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// SetStockCommand is an operator stock override.
type SetStockCommand struct {
	BranchID  string
	VariantID string
	Stock     int64
	ActorID   string
}

// LoyaltySummary is a user's balance with recent ledger entries.
type LoyaltySummary struct {
	Account LoyaltyAccount
	Entries []LoyaltyEntry
}

// ResolvePromotionsCommand resolves codes for a buyer and subtotal.
type ResolvePromotionsCommand struct {
	Codes    []string
	BuyerID  string
	Subtotal int64
}

// PromotionResolution is the applied subset of codes and the reasons the rest were rejected.
type PromotionResolution struct {
	Applied  []PromotionSnapshot
	Discount int64
	Rejected []PromotionRejection
}

// UpsertPromotionCommand creates or replaces a promotion.
type UpsertPromotionCommand struct {
	Promotion Promotion
	ActorID   string
}
