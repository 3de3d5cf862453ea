package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/auth"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/httpx"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/pagination"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

const (
	defaultLoyaltyEntries = 20
	maxLoyaltyEntries     = 100
)

var orderPageOptions = pagination.Options{
	DefaultPageSize: repositories.DefaultOrderPageSize,
	MaxPageSize:     repositories.MaxOrderPageSize,
}

// OrderHandlers exposes the buyer's own orders and loyalty balance.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	loyalty services.LoyaltyService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, loyalty services.LoyaltyService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, loyalty: loyalty}
}

// Routes registers /orders and /me/loyalty.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = r.With(h.authn.RequireBuyer())
	}
	group.Get("/orders", h.listOrders)
	group.Get("/orders/{orderId}", h.getOrder)
	group.Get("/me/loyalty", h.getLoyalty)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	buyerID := auth.BuyerID(ctx)
	if buyerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	filter, ok := parseOrderListQuery(w, r)
	if !ok {
		return
	}
	filter.BuyerID = buyerID

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderList(page, false))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}
	buyerID := auth.BuyerID(ctx)
	if buyerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderId"), services.OrderReadOptions{BuyerID: buyerID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order, false))
}

type loyaltyEntryPayload struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId,omitempty"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"createdAt"`
}

type loyaltyResponse struct {
	Balance   int64                 `json:"balance"`
	UpdatedAt string                `json:"updatedAt,omitempty"`
	Entries   []loyaltyEntryPayload `json:"entries"`
}

func (h *OrderHandlers) getLoyalty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.loyalty == nil {
		writeUnavailable(ctx, w, "loyalty")
		return
	}
	buyerID := auth.BuyerID(ctx)
	if buyerID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	limit := defaultLoyaltyEntries
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(parsed, maxLoyaltyEntries)
	}

	summary, err := h.loyalty.Summary(ctx, buyerID, limit)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := loyaltyResponse{
		Balance:   summary.Account.Balance,
		UpdatedAt: formatTime(summary.Account.UpdatedAt),
		Entries:   make([]loyaltyEntryPayload, 0, len(summary.Entries)),
	}
	for _, entry := range summary.Entries {
		resp.Entries = append(resp.Entries, loyaltyEntryPayload{
			ID:        entry.ID,
			OrderID:   entry.OrderID,
			Delta:     entry.Delta,
			Reason:    string(entry.Reason),
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// parseOrderListQuery reads status, pageSize and pageToken, writing a 400 on bad input.
func parseOrderListQuery(w http.ResponseWriter, r *http.Request) (services.OrderListFilter, bool) {
	ctx := r.Context()
	params, err := pagination.FromRequest(r, orderPageOptions)
	if err != nil {
		message := "invalid paging parameters"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			message = "pageToken is invalid"
		} else if errors.Is(err, pagination.ErrInvalidPageSize) {
			message = "pageSize must be a positive integer"
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
		return services.OrderListFilter{}, false
	}
	statuses, ok := parseStatuses(r.URL.Query()["status"])
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown status", http.StatusBadRequest))
		return services.OrderListFilter{}, false
	}
	return services.OrderListFilter{
		Statuses: statuses,
		Pagination: domain.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}, true
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
