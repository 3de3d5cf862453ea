package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPendingPayment indicates the order awaits an asynchronous payment confirmation.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusProcessing indicates payment is settled and stock has been taken.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipping indicates the order left the branch.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusCompleted indicates the buyer received the order.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was abandoned or reversed.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusPartiallyRefunded indicates some units of a completed order were returned.
	OrderStatusPartiallyRefunded OrderStatus = "partially_refunded"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusProcessing, OrderStatusShipping,
		OrderStatusCompleted, OrderStatusCancelled, OrderStatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// PaymentMethod identifies a payment provider.
type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "cod"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodVNPay        PaymentMethod = "vnpay"
	PaymentMethodWallet       PaymentMethod = "wallet"
)

// Order is the settled record of a checkout. Money amounts are whole units of Currency.
type Order struct {
	ID               string
	BuyerID          string
	Lines            []OrderLine
	Shipping         ShippingSnapshot
	PaymentMethod    PaymentMethod
	PaymentRef       string
	BranchID         string
	Currency         string
	Subtotal         int64
	Discount         int64
	Total            int64
	Promotions       []PromotionSnapshot
	Status           OrderStatus
	StatusReason     string
	StockDecremented bool
	LoyaltyPoints    int64
	LoyaltyAccrued   bool
	RefundHistory    []RefundRecord
	StatusHistory    []StatusChange
	CreatedAt        time.Time
	UpdatedAt        time.Time
	PaidAt           *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
}

// OrderLine is a purchased variant with its price frozen at checkout.
type OrderLine struct {
	VariantID        string
	ProductID        string
	Name             string
	ImageURL         string
	UnitPrice        int64
	Quantity         int
	RefundedQuantity int
}

// Remaining returns the units of the line that have not been refunded.
func (l OrderLine) Remaining() int {
	return l.Quantity - l.RefundedQuantity
}

// ShippingSnapshot is the delivery address copied into the order at checkout.
type ShippingSnapshot struct {
	Recipient   string
	Phone       string
	AddressLine string
	Ward        string
	District    string
	City        string
	Note        string
}

// PromotionType distinguishes percentage and fixed amount promotions.
type PromotionType string

const (
	PromotionTypePercentage PromotionType = "percentage"
	PromotionTypeFixed      PromotionType = "fixed"
)

// Promotion is a discount code. Value is a percent for percentage promotions and a whole-unit
// amount for fixed ones.
type Promotion struct {
	Code            string
	Type            PromotionType
	Value           float64
	MinimumPurchase int64
	ExpiresAt       time.Time
	OwnerID         string
	Active          bool
	UpdatedAt       time.Time
}

// PromotionSnapshot is the copy of a promotion stored on an order with the amount it removed.
type PromotionSnapshot struct {
	Code   string
	Type   PromotionType
	Value  float64
	Amount int64
}

// RefundRecord captures one partial refund.
type RefundRecord struct {
	ID         string
	Items      map[string]int
	Amount     int64
	Points     int64
	Reason     string
	ActorID    string
	RefundedAt time.Time
}

// StatusChange is an entry of the order status history.
type StatusChange struct {
	From    OrderStatus
	To      OrderStatus
	Reason  string
	ActorID string
	At      time.Time
}

// InventoryRecord holds the stock of one variant at one branch.
type InventoryRecord struct {
	VariantID string
	BranchID  string
	Stock     int64
	UpdatedAt time.Time
}

// StockLine is a quantity of a variant to take from or return to stock.
type StockLine struct {
	VariantID string
	Name      string
	Quantity  int
}

// LoyaltyReason enumerates why a loyalty entry was written.
type LoyaltyReason string

const (
	LoyaltyReasonOrderCompleted LoyaltyReason = "order_completed"
	LoyaltyReasonOrderCancelled LoyaltyReason = "order_cancelled"
	LoyaltyReasonOrderRefunded  LoyaltyReason = "order_refunded"
)

// LoyaltyEntry is an append-only ledger row. Delta is signed.
type LoyaltyEntry struct {
	ID        string
	UserID    string
	OrderID   string
	Delta     int64
	Reason    LoyaltyReason
	CreatedAt time.Time
}

// LoyaltyAccount is the running balance of a user.
type LoyaltyAccount struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// PaymentAttemptStatus tracks the provider side outcome of a payment.
type PaymentAttemptStatus string

const (
	PaymentAttemptInitiated PaymentAttemptStatus = "initiated"
	PaymentAttemptConfirmed PaymentAttemptStatus = "confirmed"
	PaymentAttemptFailed    PaymentAttemptStatus = "failed"
)

// PaymentAttempt is the transient result of a provider call. It is never persisted on its own.
type PaymentAttempt struct {
	Method        PaymentMethod
	ProviderRef   string
	Amount        int64
	Currency      string
	Status        PaymentAttemptStatus
	ClientSecret  string
	ApprovalURL   string
	RedirectURL   string
	Instructions  *BankTransferInstructions
	FailureReason string
}

// BankTransferInstructions tell the buyer where to send a transfer.
type BankTransferInstructions struct {
	BankName      string
	AccountName   string
	AccountNumber string
	Reference     string
	Amount        int64
	Currency      string
}

// CatalogVariant is the subset of catalog data frozen into order lines.
type CatalogVariant struct {
	VariantID string
	ProductID string
	Name      string
	ImageURL  string
	Price     int64
	Active    bool
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck is the outcome of probing one dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
