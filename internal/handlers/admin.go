package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/auth"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/httpx"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

const maxAdminRequestBody = 32 * 1024

// AdminHandlers serves back-office operations. Requests reach them only after the HMAC
// middleware recorded the signing operator.
type AdminHandlers struct {
	orders     services.OrderService
	inventory  services.InventoryService
	promotions services.PromotionService
}

// NewAdminHandlers constructs the back-office handlers.
func NewAdminHandlers(orders services.OrderService, inventory services.InventoryService, promotions services.PromotionService) *AdminHandlers {
	return &AdminHandlers{orders: orders, inventory: inventory, promotions: promotions}
}

// Routes registers admin endpoints relative to the admin group.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderId}", h.getOrder)
	r.Post("/orders/{orderId}:transition", h.transitionOrder)
	r.Post("/orders/{orderId}:refund", h.refundOrder)
	r.Get("/inventory/{branchId}/{variantId}", h.getStock)
	r.Put("/inventory/{branchId}/{variantId}", h.setStock)
	r.Put("/promotions/{code}", h.upsertPromotion)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	filter, ok := parseOrderListQuery(w, r)
	if !ok {
		return
	}
	filter.BuyerID = strings.TrimSpace(r.URL.Query().Get("buyerId"))
	if raw := strings.TrimSpace(r.URL.Query().Get("createdBefore")); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "createdBefore must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedBefore = &before
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderList(page, true))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"), services.OrderReadOptions{})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order, true))
}

type transitionRequest struct {
	Status         string `json:"status"`
	ExpectedStatus string `json:"expectedStatus"`
	Reason         string `json:"reason"`
}

func (h *AdminHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	operator, ok := requireOperator(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
		return
	}
	target := domain.OrderStatus(strings.TrimSpace(req.Status))
	if !target.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is not a known order status", http.StatusBadRequest))
		return
	}
	expected := domain.OrderStatus(strings.TrimSpace(req.ExpectedStatus))
	if expected != "" && !expected.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expectedStatus is not a known order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Transition(ctx, services.TransitionCommand{
		OrderID:        chi.URLParam(r, "orderId"),
		TargetStatus:   target,
		ExpectedStatus: expected,
		Reason:         strings.TrimSpace(req.Reason),
		ActorID:        operator,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order, true))
}

type refundRequest struct {
	Items  map[string]int `json:"items"`
	Reason string         `json:"reason"`
}

func (h *AdminHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	operator, ok := requireOperator(w, r)
	if !ok {
		return
	}
	var req refundRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
		return
	}
	if len(req.Items) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "items must name at least one variant", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Refund(ctx, services.RefundCommand{
		OrderID: chi.URLParam(r, "orderId"),
		Items:   req.Items,
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: operator,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order, true))
}

type stockPayload struct {
	BranchID  string `json:"branchId"`
	VariantID string `json:"variantId"`
	Stock     int64  `json:"stock"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type setStockRequest struct {
	Stock *int64 `json:"stock"`
}

func (h *AdminHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeUnavailable(ctx, w, "inventory")
		return
	}
	record, err := h.inventory.GetStock(ctx, chi.URLParam(r, "branchId"), chi.URLParam(r, "variantId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildStockPayload(record))
}

func (h *AdminHandlers) setStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		writeUnavailable(ctx, w, "inventory")
		return
	}
	operator, ok := requireOperator(w, r)
	if !ok {
		return
	}
	var req setStockRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
		return
	}
	if req.Stock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "stock is required", http.StatusBadRequest))
		return
	}

	record, err := h.inventory.SetStock(ctx, services.SetStockCommand{
		BranchID:  chi.URLParam(r, "branchId"),
		VariantID: chi.URLParam(r, "variantId"),
		Stock:     *req.Stock,
		ActorID:   operator,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildStockPayload(record))
}

func buildStockPayload(record domain.InventoryRecord) stockPayload {
	return stockPayload{
		BranchID:  record.BranchID,
		VariantID: record.VariantID,
		Stock:     record.Stock,
		UpdatedAt: formatTime(record.UpdatedAt),
	}
}

type promotionRequest struct {
	Type            string  `json:"type"`
	Value           float64 `json:"value"`
	MinimumPurchase int64   `json:"minimumPurchase"`
	ExpiresAt       string  `json:"expiresAt"`
	OwnerID         string  `json:"ownerId"`
	Active          *bool   `json:"active"`
}

type promotionPayload struct {
	Code            string  `json:"code"`
	Type            string  `json:"type"`
	Value           float64 `json:"value"`
	MinimumPurchase int64   `json:"minimumPurchase"`
	ExpiresAt       string  `json:"expiresAt,omitempty"`
	OwnerID         string  `json:"ownerId,omitempty"`
	Active          bool    `json:"active"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

func (h *AdminHandlers) upsertPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		writeUnavailable(ctx, w, "promotion")
		return
	}
	operator, ok := requireOperator(w, r)
	if !ok {
		return
	}
	var req promotionRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
		return
	}

	promo := domain.Promotion{
		Code:            chi.URLParam(r, "code"),
		Type:            domain.PromotionType(strings.ToLower(strings.TrimSpace(req.Type))),
		Value:           req.Value,
		MinimumPurchase: req.MinimumPurchase,
		OwnerID:         strings.TrimSpace(req.OwnerID),
		Active:          req.Active == nil || *req.Active,
	}
	if raw := strings.TrimSpace(req.ExpiresAt); raw != "" {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expiresAt must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		promo.ExpiresAt = expiresAt
	}

	saved, err := h.promotions.Upsert(ctx, services.UpsertPromotionCommand{Promotion: promo, ActorID: operator})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, promotionPayload{
		Code:            saved.Code,
		Type:            string(saved.Type),
		Value:           saved.Value,
		MinimumPurchase: saved.MinimumPurchase,
		ExpiresAt:       formatTime(saved.ExpiresAt),
		OwnerID:         saved.OwnerID,
		Active:          saved.Active,
		UpdatedAt:       formatTime(saved.UpdatedAt),
	})
}

func requireOperator(w http.ResponseWriter, r *http.Request) (string, bool) {
	operator, ok := auth.OperatorFromContext(r.Context())
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "operator signature required", http.StatusUnauthorized))
		return "", false
	}
	return operator, true
}
