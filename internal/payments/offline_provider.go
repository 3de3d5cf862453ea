package payments

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

// CashOnDeliveryProvider settles at checkout. Money is collected by the courier.
type CashOnDeliveryProvider struct{}

var _ Provider = CashOnDeliveryProvider{}

func (CashOnDeliveryProvider) Method() domain.PaymentMethod { return domain.PaymentMethodCOD }
func (CashOnDeliveryProvider) Timing() Timing               { return TimingImmediate }

func (CashOnDeliveryProvider) Initiate(_ context.Context, req InitiateRequest) (domain.PaymentAttempt, error) {
	if err := requireSettleableAmount(req); err != nil {
		return domain.PaymentAttempt{}, err
	}
	return initiatedAttempt(domain.PaymentMethodCOD, req), nil
}

func (CashOnDeliveryProvider) Confirm(_ context.Context, req ConfirmRequest) (domain.PaymentAttempt, error) {
	return domain.PaymentAttempt{
		Method:   domain.PaymentMethodCOD,
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Status:   domain.PaymentAttemptConfirmed,
	}, nil
}

// BankTransferConfig identifies the account buyers transfer to.
type BankTransferConfig struct {
	BankName      string
	AccountName   string
	AccountNumber string
	// ReferencePrefix is prepended to the order id in the transfer memo.
	ReferencePrefix string
}

// BankTransferProvider returns transfer instructions. Receipt is confirmed by an operator moving
// the order to processing, never by the provider.
type BankTransferProvider struct {
	cfg BankTransferConfig
}

var _ Provider = (*BankTransferProvider)(nil)

// NewBankTransferProvider validates the account details.
func NewBankTransferProvider(cfg BankTransferConfig) (*BankTransferProvider, error) {
	if strings.TrimSpace(cfg.AccountNumber) == "" {
		return nil, fmt.Errorf("%w: bank transfer account number is required", ErrInvalidRequest)
	}
	return &BankTransferProvider{cfg: cfg}, nil
}

func (p *BankTransferProvider) Method() domain.PaymentMethod { return domain.PaymentMethodBankTransfer }
func (p *BankTransferProvider) Timing() Timing               { return TimingDeferred }

func (p *BankTransferProvider) Initiate(_ context.Context, req InitiateRequest) (domain.PaymentAttempt, error) {
	if err := requireSettleableAmount(req); err != nil {
		return domain.PaymentAttempt{}, err
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.PaymentAttempt{}, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	attempt := initiatedAttempt(domain.PaymentMethodBankTransfer, req)
	attempt.ProviderRef = p.cfg.ReferencePrefix + req.OrderID
	attempt.Instructions = &domain.BankTransferInstructions{
		BankName:      p.cfg.BankName,
		AccountName:   p.cfg.AccountName,
		AccountNumber: p.cfg.AccountNumber,
		Reference:     attempt.ProviderRef,
		Amount:        attempt.Amount,
		Currency:      attempt.Currency,
	}
	return attempt, nil
}

func (p *BankTransferProvider) Confirm(context.Context, ConfirmRequest) (domain.PaymentAttempt, error) {
	return domain.PaymentAttempt{}, ErrConfirmUnsupported
}
