package handlers

import (
	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/services"
)

type orderLinePayload struct {
	VariantID        string `json:"variantId"`
	ProductID        string `json:"productId,omitempty"`
	Name             string `json:"name"`
	ImageURL         string `json:"imageUrl,omitempty"`
	UnitPrice        int64  `json:"unitPrice"`
	Quantity         int    `json:"quantity"`
	RefundedQuantity int    `json:"refundedQuantity,omitempty"`
}

type shippingPayload struct {
	Recipient   string `json:"recipient"`
	Phone       string `json:"phone"`
	AddressLine string `json:"addressLine"`
	Ward        string `json:"ward,omitempty"`
	District    string `json:"district,omitempty"`
	City        string `json:"city,omitempty"`
	Note        string `json:"note,omitempty"`
}

type promotionSnapshotPayload struct {
	Code   string  `json:"code"`
	Type   string  `json:"type"`
	Value  float64 `json:"value"`
	Amount int64   `json:"amount"`
}

type refundPayload struct {
	ID         string         `json:"id"`
	Items      map[string]int `json:"items"`
	Amount     int64          `json:"amount"`
	Points     int64          `json:"points"`
	Reason     string         `json:"reason,omitempty"`
	RefundedAt string         `json:"refundedAt"`
}

type statusChangePayload struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Reason  string `json:"reason,omitempty"`
	ActorID string `json:"actorId,omitempty"`
	At      string `json:"at"`
}

type orderPayload struct {
	ID            string                     `json:"id"`
	BuyerID       string                     `json:"buyerId"`
	Status        string                     `json:"status"`
	StatusReason  string                     `json:"statusReason,omitempty"`
	PaymentMethod string                     `json:"paymentMethod"`
	PaymentRef    string                     `json:"paymentRef,omitempty"`
	BranchID      string                     `json:"branchId"`
	Currency      string                     `json:"currency"`
	Subtotal      int64                      `json:"subtotal"`
	Discount      int64                      `json:"discount"`
	Total         int64                      `json:"total"`
	LoyaltyPoints int64                      `json:"loyaltyPoints"`
	Lines         []orderLinePayload         `json:"lines"`
	Shipping      shippingPayload            `json:"shipping"`
	Promotions    []promotionSnapshotPayload `json:"promotions,omitempty"`
	Refunds       []refundPayload            `json:"refunds,omitempty"`
	History       []statusChangePayload      `json:"history,omitempty"`
	CreatedAt     string                     `json:"createdAt"`
	UpdatedAt     string                     `json:"updatedAt,omitempty"`
	PaidAt        string                     `json:"paidAt,omitempty"`
	CompletedAt   string                     `json:"completedAt,omitempty"`
	CancelledAt   string                     `json:"cancelledAt,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// buildOrderPayload renders an order. includeHistory is set for operators only; the status
// history carries operator ids.
func buildOrderPayload(order services.Order, includeHistory bool) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		BuyerID:       order.BuyerID,
		Status:        string(order.Status),
		StatusReason:  order.StatusReason,
		PaymentMethod: string(order.PaymentMethod),
		PaymentRef:    order.PaymentRef,
		BranchID:      order.BranchID,
		Currency:      order.Currency,
		Subtotal:      order.Subtotal,
		Discount:      order.Discount,
		Total:         order.Total,
		LoyaltyPoints: order.LoyaltyPoints,
		Lines:         make([]orderLinePayload, 0, len(order.Lines)),
		Shipping:      shippingPayload(order.Shipping),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
		PaidAt:        formatTimePtr(order.PaidAt),
		CompletedAt:   formatTimePtr(order.CompletedAt),
		CancelledAt:   formatTimePtr(order.CancelledAt),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload(line))
	}
	for _, promo := range order.Promotions {
		payload.Promotions = append(payload.Promotions, promotionSnapshotPayload{
			Code:   promo.Code,
			Type:   string(promo.Type),
			Value:  promo.Value,
			Amount: promo.Amount,
		})
	}
	for _, refund := range order.RefundHistory {
		payload.Refunds = append(payload.Refunds, refundPayload{
			ID:         refund.ID,
			Items:      refund.Items,
			Amount:     refund.Amount,
			Points:     refund.Points,
			Reason:     refund.Reason,
			RefundedAt: formatTime(refund.RefundedAt),
		})
	}
	if includeHistory {
		for _, change := range order.StatusHistory {
			payload.History = append(payload.History, statusChangePayload{
				From:    string(change.From),
				To:      string(change.To),
				Reason:  change.Reason,
				ActorID: change.ActorID,
				At:      formatTime(change.At),
			})
		}
	}
	return payload
}

func buildOrderList(page domain.CursorPage[services.Order], includeHistory bool) orderListResponse {
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order, includeHistory))
	}
	return orderListResponse{Items: items, NextPageToken: page.NextPageToken}
}

func parseStatuses(values []string) ([]domain.OrderStatus, bool) {
	var out []domain.OrderStatus
	for _, raw := range values {
		for _, part := range splitCSV(raw) {
			status := domain.OrderStatus(part)
			if !status.Valid() {
				return nil, false
			}
			out = append(out, status)
		}
	}
	return out, true
}
