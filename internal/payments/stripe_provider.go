package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

// StripeProvider takes card payments through Payment Intents. The client confirms the intent with
// the Stripe widget; checkout only accepts an intent Stripe reports as succeeded for the exact
// order total. VND is a zero-decimal currency for Stripe so amounts pass through unscaled.
type StripeProvider struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

var (
	_ Provider = (*StripeProvider)(nil)
	_ Refunder = (*StripeProvider)(nil)
)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}

	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (p *StripeProvider) Method() domain.PaymentMethod { return domain.PaymentMethodCard }
func (p *StripeProvider) Timing() Timing               { return TimingClientConfirmed }

// Initiate creates a Payment Intent for the order total and returns its client secret.
func (p *StripeProvider) Initiate(ctx context.Context, req InitiateRequest) (domain.PaymentAttempt, error) {
	if p == nil {
		return domain.PaymentAttempt{}, errors.New("stripe: provider is nil")
	}
	if err := requireAmount(req); err != nil {
		return domain.PaymentAttempt{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(strings.TrimSpace(req.Currency))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripe.String(desc)
	}
	params.Metadata = make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}
	if req.BuyerID != "" {
		params.Metadata["buyerId"] = req.BuyerID
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return domain.PaymentAttempt{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	attempt := initiatedAttempt(domain.PaymentMethodCard, req)
	attempt.ProviderRef = intent.ID
	attempt.ClientSecret = intent.ClientSecret
	return attempt, nil
}

// Confirm accepts the intent id returned by the client only when Stripe reports it succeeded for
// the expected amount and currency.
func (p *StripeProvider) Confirm(ctx context.Context, req ConfirmRequest) (domain.PaymentAttempt, error) {
	if p == nil {
		return domain.PaymentAttempt{}, errors.New("stripe: provider is nil")
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return domain.PaymentAttempt{}, fmt.Errorf("%w: payment intent id is required", ErrInvalidRequest)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Get(token, params)
	if err != nil {
		return domain.PaymentAttempt{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}

	attempt := domain.PaymentAttempt{
		Method:      domain.PaymentMethodCard,
		ProviderRef: intent.ID,
		Amount:      intent.Amount,
		Currency:    strings.ToUpper(string(intent.Currency)),
		Status:      domain.PaymentAttemptFailed,
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		attempt.FailureReason = string(intent.Status)
		return attempt, fmt.Errorf("%w: payment intent %s is %s", ErrPaymentDeclined, intent.ID, intent.Status)
	}
	if intent.Amount != req.Amount || !strings.EqualFold(string(intent.Currency), req.Currency) {
		attempt.FailureReason = "amount_mismatch"
		return attempt, fmt.Errorf("%w: intent %s settled %d %s, expected %d %s",
			ErrAmountMismatch, intent.ID, intent.Amount, intent.Currency, req.Amount, req.Currency)
	}

	p.logger(ctx, "payments.stripe.intent.verified", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.OrderID,
	})

	attempt.Status = domain.PaymentAttemptConfirmed
	return attempt, nil
}

// Refund returns money captured by a Payment Intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return fmt.Errorf("%w: payment intent id is required", ErrInvalidRequest)
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if _, err := p.api.refunds.New(params); err != nil {
		return fmt.Errorf("stripe: refund payment intent: %w", err)
	}
	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.Reference,
		"amount":        req.Amount,
	})
	return nil
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
