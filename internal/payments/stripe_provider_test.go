package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

type fakeStripeIntents struct {
	created *stripe.PaymentIntentParams
	intent  *stripe.PaymentIntent
	err     error
}

func (f *fakeStripeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.created = params
	if f.err != nil {
		return nil, f.err
	}
	return f.intent, nil
}

func (f *fakeStripeIntents) Get(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.intent == nil || f.intent.ID != id {
		return nil, errors.New("no such payment intent")
	}
	return f.intent, nil
}

type fakeStripeRefunds struct {
	params *stripe.RefundParams
}

func (f *fakeStripeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = params
	return &stripe.Refund{ID: "re_1"}, nil
}

func newTestStripeProvider(t *testing.T, intents *fakeStripeIntents, refunds *fakeStripeRefunds) *StripeProvider {
	t.Helper()
	p, err := NewStripeProvider(StripeProviderConfig{Clients: &stripeClients{intents: intents, refunds: refunds}})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}
	return p
}

func TestStripeInitiateReturnsClientSecret(t *testing.T) {
	intents := &fakeStripeIntents{intent: &stripe.PaymentIntent{ID: "pi_1", ClientSecret: "pi_1_secret", Amount: 150000, Currency: "vnd"}}
	p := newTestStripeProvider(t, intents, &fakeStripeRefunds{})

	attempt, err := p.Initiate(context.Background(), InitiateRequest{BuyerID: "u1", Amount: 150000, Currency: "VND", IdempotencyKey: "idem-1"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if attempt.ClientSecret != "pi_1_secret" || attempt.ProviderRef != "pi_1" {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if got := *intents.created.Amount; got != 150000 {
		t.Fatalf("expected exact total as intent amount, got %d", got)
	}
	if got := *intents.created.Currency; got != "vnd" {
		t.Fatalf("expected lower-case currency, got %q", got)
	}
	if intents.created.Metadata["buyerId"] != "u1" {
		t.Fatalf("expected buyer metadata, got %v", intents.created.Metadata)
	}
}

func TestStripeConfirmRequiresSucceededIntentForExactAmount(t *testing.T) {
	cases := []struct {
		name    string
		intent  *stripe.PaymentIntent
		amount  int64
		wantErr error
	}{
		{
			name:   "succeeded",
			intent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 150000, Currency: "vnd"},
			amount: 150000,
		},
		{
			name:    "requires action",
			intent:  &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusRequiresAction, Amount: 150000, Currency: "vnd"},
			amount:  150000,
			wantErr: ErrPaymentDeclined,
		},
		{
			name:    "amount differs",
			intent:  &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 1000, Currency: "vnd"},
			amount:  150000,
			wantErr: ErrAmountMismatch,
		},
		{
			name:    "currency differs",
			intent:  &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded, Amount: 150000, Currency: "usd"},
			amount:  150000,
			wantErr: ErrAmountMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestStripeProvider(t, &fakeStripeIntents{intent: tc.intent}, &fakeStripeRefunds{})
			attempt, err := p.Confirm(context.Background(), ConfirmRequest{Token: "pi_1", Amount: tc.amount, Currency: "VND"})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if attempt.Status != domain.PaymentAttemptFailed {
					t.Fatalf("expected failed attempt, got %s", attempt.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("confirm: %v", err)
			}
			if attempt.Status != domain.PaymentAttemptConfirmed || attempt.ProviderRef != "pi_1" {
				t.Fatalf("unexpected attempt: %+v", attempt)
			}
		})
	}
}

func TestStripeConfirmRequiresToken(t *testing.T) {
	p := newTestStripeProvider(t, &fakeStripeIntents{}, &fakeStripeRefunds{})
	if _, err := p.Confirm(context.Background(), ConfirmRequest{Amount: 1, Currency: "VND"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestStripeRefundTargetsIntent(t *testing.T) {
	refunds := &fakeStripeRefunds{}
	p := newTestStripeProvider(t, &fakeStripeIntents{}, refunds)

	if err := p.Refund(context.Background(), RefundRequest{Reference: "pi_9", Reason: "requested_by_customer"}); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunds.params == nil || *refunds.params.PaymentIntent != "pi_9" {
		t.Fatalf("expected refund for pi_9, got %+v", refunds.params)
	}
	if refunds.params.Amount != nil {
		t.Fatalf("expected full refund without amount")
	}
	if *refunds.params.Reason != "requested_by_customer" {
		t.Fatalf("unexpected reason %q", *refunds.params.Reason)
	}
}
