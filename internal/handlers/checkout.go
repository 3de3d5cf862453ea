package handlers

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/auth"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/httpx"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/idempotency"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

// CheckoutHandlers turns buyer carts into orders.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency guards POST /checkout with the supplied idempotency middleware.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireBuyer())
	}
	group.Post("/checkout/payments", h.preparePayment)
	if h.idempotency != nil {
		group = group.With(h.idempotency)
	}
	group.Post("/checkout", h.checkout)
}

type cartLineRequest struct {
	VariantID string `json:"variantId"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	BranchID       string            `json:"branchId"`
	PaymentMethod  string            `json:"paymentMethod"`
	Lines          []cartLineRequest `json:"lines"`
	Shipping       shippingPayload   `json:"shipping"`
	PromotionCodes []string          `json:"promotionCodes"`
	PaymentToken   string            `json:"paymentToken"`
	Locale         string            `json:"locale"`
	BankCode       string            `json:"bankCode"`
}

type bankInstructionsPayload struct {
	BankName      string `json:"bankName"`
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

type checkoutResponse struct {
	OrderID            string                        `json:"orderId"`
	Status             string                        `json:"status"`
	Total              int64                         `json:"total"`
	Currency           string                        `json:"currency"`
	RedirectURL        string                        `json:"redirectUrl,omitempty"`
	ApprovalURL        string                        `json:"approvalUrl,omitempty"`
	ClientSecret       string                        `json:"clientSecret,omitempty"`
	Instructions       *bankInstructionsPayload      `json:"instructions,omitempty"`
	RejectedPromotions []services.PromotionRejection `json:"rejectedPromotions"`
}

func (h *CheckoutHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "checkout")
		return
	}
	buyerID := auth.BuyerID(ctx)
	if buyerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req checkoutRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	locale := strings.TrimSpace(req.Locale)
	if locale == "" {
		if identity, ok := auth.IdentityFromContext(ctx); ok {
			locale = identity.Locale
		}
	}

	result, err := h.orders.Checkout(ctx, services.CheckoutCommand{
		BuyerID:        buyerID,
		Lines:          toCartLines(req.Lines),
		Shipping:       domain.ShippingSnapshot(req.Shipping),
		BranchID:       strings.TrimSpace(req.BranchID),
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		PromotionCodes: req.PromotionCodes,
		PaymentToken:   strings.TrimSpace(req.PaymentToken),
		Locale:         locale,
		ClientIP:       clientIP(r),
		BankCode:       strings.TrimSpace(req.BankCode),
		IdempotencyKey: idempotency.KeyFromContext(ctx),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	resp := checkoutResponse{
		OrderID:            result.Order.ID,
		Status:             string(result.Order.Status),
		Total:              result.Order.Total,
		Currency:           result.Order.Currency,
		RedirectURL:        result.Payment.RedirectURL,
		ApprovalURL:        result.Payment.ApprovalURL,
		ClientSecret:       result.Payment.ClientSecret,
		RejectedPromotions: result.RejectedPromotions,
	}
	if resp.RejectedPromotions == nil {
		resp.RejectedPromotions = []services.PromotionRejection{}
	}
	if in := result.Payment.Instructions; in != nil {
		resp.Instructions = &bankInstructionsPayload{
			BankName:      in.BankName,
			AccountName:   in.AccountName,
			AccountNumber: in.AccountNumber,
			Reference:     in.Reference,
			Amount:        in.Amount,
			Currency:      in.Currency,
		}
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

type preparePaymentRequest struct {
	PaymentMethod  string            `json:"paymentMethod"`
	Lines          []cartLineRequest `json:"lines"`
	PromotionCodes []string          `json:"promotionCodes"`
	Locale         string            `json:"locale"`
}

type preparePaymentResponse struct {
	Method       string `json:"method"`
	ProviderRef  string `json:"providerRef"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	ClientSecret string `json:"clientSecret,omitempty"`
	ApprovalURL  string `json:"approvalUrl,omitempty"`
}

func (h *CheckoutHandlers) preparePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "checkout")
		return
	}
	buyerID := auth.BuyerID(ctx)
	if buyerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req preparePaymentRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	attempt, err := h.orders.PreparePayment(ctx, services.PreparePaymentCommand{
		BuyerID:        buyerID,
		Lines:          toCartLines(req.Lines),
		PromotionCodes: req.PromotionCodes,
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Locale:         strings.TrimSpace(req.Locale),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, preparePaymentResponse{
		Method:       string(attempt.Method),
		ProviderRef:  attempt.ProviderRef,
		Amount:       attempt.Amount,
		Currency:     attempt.Currency,
		Status:       string(attempt.Status),
		ClientSecret: attempt.ClientSecret,
		ApprovalURL:  attempt.ApprovalURL,
	})
}

func toCartLines(lines []cartLineRequest) []services.CartLine {
	out := make([]services.CartLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, services.CartLine{
			VariantID: strings.TrimSpace(line.VariantID),
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      line.Name,
			ImageURL:  line.ImageURL,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return out
}

// clientIP reads RemoteAddr, which chi's RealIP middleware has already rewritten.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
