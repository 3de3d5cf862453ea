package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/httpx"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

// GatewayHandlers receives the redirect gateway's browser return and server notification.
// Neither route is authenticated; the gateway signature is the only trust anchor.
type GatewayHandlers struct {
	reconciler services.CallbackReconciler
	limiter    rateLimiter
	logger     *zap.Logger
}

// GatewayOption customises GatewayHandlers.
type GatewayOption func(*GatewayHandlers)

// WithGatewayRateLimit throttles callbacks per client address. Non-positive values disable it.
func WithGatewayRateLimit(perSecond, burst int) GatewayOption {
	return func(h *GatewayHandlers) {
		h.limiter = newKeyedRateLimiter(perSecond, burst, time.Now)
	}
}

// WithGatewayLogger sets the logger used for callback failures.
func WithGatewayLogger(logger *zap.Logger) GatewayOption {
	return func(h *GatewayHandlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewGatewayHandlers constructs the callback handlers.
func NewGatewayHandlers(reconciler services.CallbackReconciler, opts ...GatewayOption) *GatewayHandlers {
	h := &GatewayHandlers{reconciler: reconciler, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the callback endpoints.
func (h *GatewayHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/payments/vnpay/return", h.handleReturn)
	r.Get("/payments/vnpay/ipn", h.handleIPN)
}

func (h *GatewayHandlers) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}
	if h.reconciler == nil {
		writeUnavailable(ctx, w, "payment callbacks")
		return
	}
	outcome, err := h.reconciler.HandleReturn(ctx, callbackParams(r))
	if err != nil {
		h.logger.Error("gateway return failed",
			zap.String("orderId", outcome.OrderID),
			zap.Error(err),
		)
	}
	if outcome.RedirectURL == "" {
		writeServiceError(ctx, w, err)
		return
	}
	http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
}

func (h *GatewayHandlers) handleIPN(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}
	if h.reconciler == nil {
		writeUnavailable(ctx, w, "payment callbacks")
		return
	}
	ack, err := h.reconciler.HandleIPN(ctx, callbackParams(r))
	if err != nil {
		h.logger.Error("gateway ipn failed", zap.Error(err))
	}
	httpx.WriteJSON(w, http.StatusOK, ack)
}

func (h *GatewayHandlers) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil || h.limiter.Allow(clientIP(r)) {
		return true
	}
	w.Header().Set("Retry-After", "1")
	httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many callback requests", http.StatusTooManyRequests))
	return false
}

// callbackParams flattens the query to its first value per key. Values are kept byte for byte
// because the gateway signs them as sent.
func callbackParams(r *http.Request) map[string]string {
	query := r.URL.Query()
	params := make(map[string]string, len(query))
	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	return params
}
