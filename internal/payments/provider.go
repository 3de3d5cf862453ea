package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

// Timing describes when a provider proves that money moved, which decides when stock is taken.
type Timing int

const (
	// TimingImmediate providers need no proof; the order settles at creation (cash on delivery).
	TimingImmediate Timing = iota
	// TimingClientConfirmed providers hand the client a secret or approval link and accept a
	// provider-issued token during checkout (card, wallet).
	TimingClientConfirmed
	// TimingDeferred providers confirm out of band, through a callback or an operator (bank
	// transfer, signed redirect).
	TimingDeferred
)

// DecrementsEagerly reports whether orders paid this way take stock in the creating transaction.
func (t Timing) DecrementsEagerly() bool {
	return t != TimingDeferred
}

func (t Timing) String() string {
	switch t {
	case TimingImmediate:
		return "immediate"
	case TimingClientConfirmed:
		return "client_confirmed"
	case TimingDeferred:
		return "deferred"
	default:
		return fmt.Sprintf("timing(%d)", int(t))
	}
}

var (
	// ErrUnsupportedProvider is returned when no provider is registered for a method.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrConfirmUnsupported is returned by providers whose payments are only confirmed by an operator.
	ErrConfirmUnsupported = errors.New("payments: confirmation not supported")
	// ErrInvalidRequest signals a request missing data the provider needs.
	ErrInvalidRequest = errors.New("payments: invalid request")
	// ErrPaymentDeclined indicates the provider reports the payment as not successful.
	ErrPaymentDeclined = errors.New("payments: payment declined")
	// ErrAmountMismatch indicates the provider settled a different amount or currency than the order.
	ErrAmountMismatch = errors.New("payments: amount mismatch")
	// ErrSignatureInvalid indicates a callback failed integrity verification.
	ErrSignatureInvalid = errors.New("payments: signature invalid")
)

// InitiateRequest carries what a provider needs to start a payment for an order total.
type InitiateRequest struct {
	OrderID        string
	BuyerID        string
	Amount         int64
	Currency       string
	Description    string
	Locale         string
	ClientIP       string
	BankCode       string
	IdempotencyKey string
	Metadata       map[string]string
}

// ConfirmRequest carries the proof a provider checks before reporting a payment as confirmed.
// Token is the client-confirmed proof (payment intent id, approved wallet order id); Params
// holds the flat callback parameters of redirect gateways.
type ConfirmRequest struct {
	OrderID        string
	Token          string
	Amount         int64
	Currency       string
	Params         map[string]string
	IdempotencyKey string
}

// RefundRequest returns money for a confirmed payment.
type RefundRequest struct {
	Reference      string
	Amount         int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

// Provider is implemented once per payment method.
type Provider interface {
	Method() domain.PaymentMethod
	Timing() Timing
	Initiate(ctx context.Context, req InitiateRequest) (domain.PaymentAttempt, error)
	Confirm(ctx context.Context, req ConfirmRequest) (domain.PaymentAttempt, error)
}

// Refunder is implemented by providers that can return captured money. The settlement engine
// uses it to compensate a capture whose order could not be persisted.
type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) error
}

// Registry resolves providers by payment method.
type Registry struct {
	providers map[domain.PaymentMethod]Provider
}

// NewRegistry indexes providers by their method. Registering two providers for one method is an error.
func NewRegistry(providers ...Provider) (*Registry, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	index := make(map[domain.PaymentMethod]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("payments: nil provider registration")
		}
		method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(p.Method()))))
		if method == "" {
			return nil, errors.New("payments: provider method is required")
		}
		if _, exists := index[method]; exists {
			return nil, fmt.Errorf("payments: duplicate provider for method %q", method)
		}
		index[method] = p
	}
	return &Registry{providers: index}, nil
}

// Provider returns the provider for method.
func (r *Registry) Provider(method domain.PaymentMethod) (Provider, error) {
	if r == nil {
		return nil, errors.New("payments: registry is nil")
	}
	key := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method))))
	p, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, method)
	}
	return p, nil
}

// Methods lists the registered methods.
func (r *Registry) Methods() []domain.PaymentMethod {
	if r == nil {
		return nil
	}
	out := make([]domain.PaymentMethod, 0, len(r.providers))
	for m := range r.providers {
		out = append(out, m)
	}
	return out
}

// requireAmount guards providers that move money: a gateway cannot charge nothing.
func requireAmount(req InitiateRequest) error {
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return requireCurrency(req)
}

// requireSettleableAmount admits fully discounted orders for the offline methods.
func requireSettleableAmount(req InitiateRequest) error {
	if req.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidRequest)
	}
	return requireCurrency(req)
}

func requireCurrency(req InitiateRequest) error {
	if strings.TrimSpace(req.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidRequest)
	}
	return nil
}

func initiatedAttempt(method domain.PaymentMethod, req InitiateRequest) domain.PaymentAttempt {
	return domain.PaymentAttempt{
		Method:   method,
		Amount:   req.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:   domain.PaymentAttemptInitiated,
	}
}
