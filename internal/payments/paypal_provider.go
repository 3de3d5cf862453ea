package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

const (
	paypalSandboxURL   = "https://api-m.sandbox.paypal.com"
	paypalStatusDone   = "COMPLETED"
	paypalMaxErrorBody = 4 << 10
)

// PayPalConfig configures the wallet provider.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	// Currency is the wallet currency. PayPal does not settle VND.
	Currency string
	// ExchangeRate is the number of store currency units per wallet currency unit.
	ExchangeRate decimal.Decimal
	// HTTPClient is the transport used for token and API calls.
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// PayPalProvider takes wallet payments through PayPal Orders v2. The buyer approves the order in
// the PayPal widget and checkout captures it before the order is persisted.
type PayPalProvider struct {
	baseURL  string
	currency string
	rate     decimal.Decimal
	client   *http.Client
	logger   func(context.Context, string, map[string]any)
}

var (
	_ Provider = (*PayPalProvider)(nil)
	_ Refunder = (*PayPalProvider)(nil)
)

// NewPayPalProvider builds a provider whose HTTP client obtains tokens with the client
// credentials grant.
func NewPayPalProvider(cfg PayPalConfig) (*PayPalProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}
	if !cfg.ExchangeRate.IsPositive() {
		return nil, errors.New("paypal: exchange rate must be positive")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = paypalSandboxURL
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "USD"
	}
	base := cfg.HTTPClient
	if base == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		base = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &PayPalProvider{
		baseURL:  baseURL,
		currency: currency,
		rate:     cfg.ExchangeRate,
		client:   cc.Client(tokenCtx),
		logger:   logger,
	}, nil
}

func (p *PayPalProvider) Method() domain.PaymentMethod { return domain.PaymentMethodWallet }
func (p *PayPalProvider) Timing() Timing               { return TimingClientConfirmed }

// Convert renders a store currency amount in the wallet currency rounded to cents.
func (p *PayPalProvider) Convert(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Div(p.rate).Round(2)
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalCapture struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount paypalAmount `json:"amount"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// Initiate creates a PayPal order for the converted total and returns the approval link.
func (p *PayPalProvider) Initiate(ctx context.Context, req InitiateRequest) (domain.PaymentAttempt, error) {
	if err := requireAmount(req); err != nil {
		return domain.PaymentAttempt{}, err
	}
	unit := map[string]any{
		"amount": paypalAmount{CurrencyCode: p.currency, Value: p.Convert(req.Amount).StringFixed(2)},
	}
	if req.OrderID != "" {
		unit["reference_id"] = req.OrderID
	}
	if req.BuyerID != "" {
		unit["custom_id"] = req.BuyerID
	}
	if req.Description != "" {
		unit["description"] = req.Description
	}
	body := map[string]any{
		"intent":         "CAPTURE",
		"purchase_units": []any{unit},
	}

	var order paypalOrder
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", req.IdempotencyKey, body, &order); err != nil {
		return domain.PaymentAttempt{}, fmt.Errorf("paypal: create order: %w", err)
	}

	attempt := initiatedAttempt(domain.PaymentMethodWallet, req)
	attempt.ProviderRef = order.ID
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			attempt.ApprovalURL = link.Href
			break
		}
	}

	p.logger(ctx, "payments.paypal.order.created", map[string]any{
		"paypalOrder": order.ID,
		"amount":      req.Amount,
	})
	return attempt, nil
}

// Confirm captures the approved PayPal order and checks the captured amount.
func (p *PayPalProvider) Confirm(ctx context.Context, req ConfirmRequest) (domain.PaymentAttempt, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return domain.PaymentAttempt{}, fmt.Errorf("%w: approved order id is required", ErrInvalidRequest)
	}

	var order paypalOrder
	err := p.do(ctx, http.MethodPost, "/v2/checkout/orders/"+token+"/capture", req.IdempotencyKey, struct{}{}, &order)
	if err != nil {
		var apiErr *paypalAPIError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusUnprocessableEntity {
			return domain.PaymentAttempt{}, fmt.Errorf("%w: %v", ErrPaymentDeclined, err)
		}
		return domain.PaymentAttempt{}, fmt.Errorf("paypal: capture order: %w", err)
	}

	attempt := domain.PaymentAttempt{
		Method:   domain.PaymentMethodWallet,
		Amount:   req.Amount,
		Currency: p.currency,
		Status:   domain.PaymentAttemptFailed,
	}
	var capture *paypalCapture
	for i := range order.PurchaseUnits {
		if captures := order.PurchaseUnits[i].Payments.Captures; len(captures) > 0 {
			capture = &captures[0]
			break
		}
	}
	if order.Status != paypalStatusDone || capture == nil || capture.Status != paypalStatusDone {
		attempt.FailureReason = strings.ToLower(order.Status)
		return attempt, fmt.Errorf("%w: order %s is %s", ErrPaymentDeclined, order.ID, order.Status)
	}
	attempt.ProviderRef = capture.ID

	captured, err := decimal.NewFromString(capture.Amount.Value)
	want := p.Convert(req.Amount)
	if err != nil || !captured.Equal(want) || !strings.EqualFold(capture.Amount.CurrencyCode, p.currency) {
		attempt.FailureReason = "amount_mismatch"
		return attempt, fmt.Errorf("%w: captured %s %s, expected %s %s",
			ErrAmountMismatch, capture.Amount.Value, capture.Amount.CurrencyCode, want.StringFixed(2), p.currency)
	}

	attempt.Status = domain.PaymentAttemptConfirmed
	p.logger(ctx, "payments.paypal.order.captured", map[string]any{
		"paypalOrder": order.ID,
		"capture":     capture.ID,
	})
	return attempt, nil
}

// Refund returns a capture. A zero amount refunds the whole capture.
func (p *PayPalProvider) Refund(ctx context.Context, req RefundRequest) error {
	ref := strings.TrimSpace(req.Reference)
	if ref == "" {
		return fmt.Errorf("%w: capture id is required", ErrInvalidRequest)
	}
	body := map[string]any{}
	if req.Amount > 0 {
		body["amount"] = paypalAmount{CurrencyCode: p.currency, Value: p.Convert(req.Amount).StringFixed(2)}
	}
	if req.Reason != "" {
		body["note_to_payer"] = req.Reason
	}
	if err := p.do(ctx, http.MethodPost, "/v2/payments/captures/"+ref+"/refund", req.IdempotencyKey, body, nil); err != nil {
		return fmt.Errorf("paypal: refund capture: %w", err)
	}
	p.logger(ctx, "payments.paypal.capture.refunded", map[string]any{
		"capture": ref,
		"amount":  req.Amount,
	})
	return nil
}

type paypalAPIError struct {
	status int
	body   string
}

func (e *paypalAPIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

func (p *PayPalProvider) do(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("PayPal-Request-Id", key)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, paypalMaxErrorBody))
		return &paypalAPIError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
