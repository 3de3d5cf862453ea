package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/signature"
)

// Parameter names of the VNPay redirect protocol.
const (
	VNPayParamVersion           = "vnp_Version"
	VNPayParamCommand           = "vnp_Command"
	VNPayParamTmnCode           = "vnp_TmnCode"
	VNPayParamAmount            = "vnp_Amount"
	VNPayParamCurrCode          = "vnp_CurrCode"
	VNPayParamTxnRef            = "vnp_TxnRef"
	VNPayParamOrderInfo         = "vnp_OrderInfo"
	VNPayParamOrderType         = "vnp_OrderType"
	VNPayParamLocale            = "vnp_Locale"
	VNPayParamReturnURL         = "vnp_ReturnUrl"
	VNPayParamIPAddr            = "vnp_IpAddr"
	VNPayParamCreateDate        = "vnp_CreateDate"
	VNPayParamExpireDate        = "vnp_ExpireDate"
	VNPayParamBankCode          = "vnp_BankCode"
	VNPayParamResponseCode      = "vnp_ResponseCode"
	VNPayParamTransactionStatus = "vnp_TransactionStatus"
	VNPayParamTransactionNo     = "vnp_TransactionNo"

	vnpayTimeLayout   = "20060102150405"
	vnpaySuccessCode  = "00"
	vnpayAmountFactor = 100
)

var vnpayLocales = language.NewMatcher([]language.Tag{language.Vietnamese, language.English})

// VNPayConfig configures the signed redirect gateway.
type VNPayConfig struct {
	TmnCode     string
	HashSecret  string
	PayURL      string
	ReturnURL   string
	Version     string
	OrderType   string
	ExpireAfter time.Duration
	Location    *time.Location
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// VNPayProvider builds signed redirect URLs and verifies the gateway's callbacks. Orders paid
// this way stay pending until a verified callback arrives.
type VNPayProvider struct {
	cfg    VNPayConfig
	codec  signature.Codec
	loc    *time.Location
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

var _ Provider = (*VNPayProvider)(nil)

// NewVNPayProvider validates cfg and applies defaults.
func NewVNPayProvider(cfg VNPayConfig) (*VNPayProvider, error) {
	cfg.TmnCode = strings.TrimSpace(cfg.TmnCode)
	cfg.PayURL = strings.TrimSpace(cfg.PayURL)
	cfg.ReturnURL = strings.TrimSpace(cfg.ReturnURL)
	switch {
	case cfg.TmnCode == "":
		return nil, errors.New("vnpay: tmn code is required")
	case cfg.HashSecret == "":
		return nil, errors.New("vnpay: hash secret is required")
	case cfg.PayURL == "":
		return nil, errors.New("vnpay: pay url is required")
	case cfg.ReturnURL == "":
		return nil, errors.New("vnpay: return url is required")
	}
	if _, err := url.Parse(cfg.PayURL); err != nil {
		return nil, fmt.Errorf("vnpay: invalid pay url: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = "2.1.0"
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "other"
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}

	loc := cfg.Location
	if loc == nil {
		var err error
		loc, err = time.LoadLocation("Asia/Ho_Chi_Minh")
		if err != nil {
			loc = time.FixedZone("ICT", 7*60*60)
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &VNPayProvider{
		cfg:    cfg,
		codec:  signature.Codec{SkipEmpty: true},
		loc:    loc,
		clock:  clock,
		logger: logger,
	}, nil
}

func (p *VNPayProvider) Method() domain.PaymentMethod { return domain.PaymentMethodVNPay }
func (p *VNPayProvider) Timing() Timing               { return TimingDeferred }

// Initiate returns the signed redirect URL for the order. The transaction reference is the order id.
func (p *VNPayProvider) Initiate(ctx context.Context, req InitiateRequest) (domain.PaymentAttempt, error) {
	if err := requireAmount(req); err != nil {
		return domain.PaymentAttempt{}, err
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.PaymentAttempt{}, fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}

	now := p.clock().In(p.loc)
	info := strings.TrimSpace(req.Description)
	if info == "" {
		info = "Thanh toan don hang " + orderID
	}
	ip := strings.TrimSpace(req.ClientIP)
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := map[string]string{
		VNPayParamVersion:    p.cfg.Version,
		VNPayParamCommand:    "pay",
		VNPayParamTmnCode:    p.cfg.TmnCode,
		VNPayParamAmount:     strconv.FormatInt(req.Amount*vnpayAmountFactor, 10),
		VNPayParamCurrCode:   "VND",
		VNPayParamTxnRef:     orderID,
		VNPayParamOrderInfo:  info,
		VNPayParamOrderType:  p.cfg.OrderType,
		VNPayParamLocale:     vnpayLocale(req.Locale),
		VNPayParamReturnURL:  p.cfg.ReturnURL,
		VNPayParamIPAddr:     ip,
		VNPayParamCreateDate: now.Format(vnpayTimeLayout),
		VNPayParamExpireDate: now.Add(p.cfg.ExpireAfter).Format(vnpayTimeLayout),
	}
	if bank := strings.TrimSpace(req.BankCode); bank != "" {
		params[VNPayParamBankCode] = bank
	}
	params[signature.FieldSecureHash] = p.codec.SignParams(params, p.cfg.HashSecret)

	attempt := initiatedAttempt(domain.PaymentMethodVNPay, req)
	attempt.ProviderRef = orderID
	attempt.RedirectURL = p.cfg.PayURL + "?" + p.codec.Encode(params)

	p.logger(ctx, "payments.vnpay.redirect.created", map[string]any{
		"orderId": orderID,
		"amount":  req.Amount,
	})
	return attempt, nil
}

// VerifySignature reports whether callback params carry a valid secure hash.
func (p *VNPayProvider) VerifySignature(params map[string]string) bool {
	return p.codec.Verify(params, params[signature.FieldSecureHash], p.cfg.HashSecret)
}

// Confirm validates callback params: signature, reference, amount and the gateway result codes.
// It never calls the gateway.
func (p *VNPayProvider) Confirm(ctx context.Context, req ConfirmRequest) (domain.PaymentAttempt, error) {
	params := req.Params
	if len(params) == 0 {
		return domain.PaymentAttempt{}, fmt.Errorf("%w: callback parameters are required", ErrInvalidRequest)
	}
	if !p.VerifySignature(params) {
		return domain.PaymentAttempt{}, ErrSignatureInvalid
	}

	attempt := domain.PaymentAttempt{
		Method:      domain.PaymentMethodVNPay,
		ProviderRef: params[VNPayParamTransactionNo],
		Currency:    "VND",
		Status:      domain.PaymentAttemptFailed,
	}

	if req.OrderID != "" && params[VNPayParamTxnRef] != req.OrderID {
		return attempt, fmt.Errorf("%w: reference %q does not match order %q", ErrInvalidRequest, params[VNPayParamTxnRef], req.OrderID)
	}

	raw, err := strconv.ParseInt(params[VNPayParamAmount], 10, 64)
	if err != nil || raw%vnpayAmountFactor != 0 {
		attempt.FailureReason = "invalid_amount"
		return attempt, fmt.Errorf("%w: unreadable amount %q", ErrAmountMismatch, params[VNPayParamAmount])
	}
	attempt.Amount = raw / vnpayAmountFactor
	if attempt.Amount != req.Amount {
		attempt.FailureReason = "amount_mismatch"
		return attempt, fmt.Errorf("%w: gateway reported %d, order total %d", ErrAmountMismatch, attempt.Amount, req.Amount)
	}

	code := params[VNPayParamResponseCode]
	status := params[VNPayParamTransactionStatus]
	if code != vnpaySuccessCode || status != vnpaySuccessCode {
		attempt.FailureReason = "response_" + code
		p.logger(ctx, "payments.vnpay.declined", map[string]any{
			"orderId":           req.OrderID,
			"responseCode":      code,
			"transactionStatus": status,
		})
		return attempt, fmt.Errorf("%w: response code %q transaction status %q", ErrPaymentDeclined, code, status)
	}

	attempt.Status = domain.PaymentAttemptConfirmed
	return attempt, nil
}

func vnpayLocale(preferred string) string {
	tag, _ := language.MatchStrings(vnpayLocales, preferred)
	base, _ := tag.Base()
	if base.String() == "en" {
		return "en"
	}
	return "vn"
}
