package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/auth"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/httpx"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

const (
	maxInternalRequestBody = 4 * 1024
	maxExpireBatch         = 500
	schedulerActor         = "scheduler"
)

// InternalHandlers serves scheduler-triggered maintenance behind OIDC.
type InternalHandlers struct {
	orders services.OrderService
}

// NewInternalHandlers constructs the internal maintenance handlers.
func NewInternalHandlers(orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{orders: orders}
}

// Routes registers internal endpoints relative to the internal group.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:expire-pending", h.expirePending)
}

type expirePendingRequest struct {
	Cutoff string `json:"cutoff"`
	Limit  int    `json:"limit"`
}

type expirePendingResponse struct {
	Cancelled []string `json:"cancelled"`
	Skipped   int      `json:"skipped"`
}

func (h *InternalHandlers) expirePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return
	}

	// Cloud Scheduler may post an empty body.
	var req expirePendingRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, maxInternalRequestBody, &req) {
			return
		}
	}

	cmd := services.ExpirePendingCommand{Limit: req.Limit, ActorID: schedulerActor}
	if identity, ok := auth.ServiceIdentityFromContext(ctx); ok && identity.Email != "" {
		cmd.ActorID = identity.Email
	}
	if raw := strings.TrimSpace(req.Cutoff); raw != "" {
		cutoff, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cutoff must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.Cutoff = cutoff
	}
	if cmd.Limit < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must not be negative", http.StatusBadRequest))
		return
	}
	cmd.Limit = min(cmd.Limit, maxExpireBatch)

	result, err := h.orders.ExpireStalePending(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := expirePendingResponse{Cancelled: result.Cancelled, Skipped: result.Skipped}
	if resp.Cancelled == nil {
		resp.Cancelled = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
