package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	pfirestore "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/firestore"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders in the orders collection.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection)}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

// Update overwrites the order. Inside a transaction the caller must have read the order first,
// which is what makes concurrent transitions conflict.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	if _, inTx := pfirestore.TransactionFromContext(ctx); !inTx {
		if _, err := r.orders.Get(ctx, order.ID); err != nil {
			return err
		}
	}
	return r.orders.Set(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, hasCursor, err := repositories.DecodeOrderCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := repositories.NormalizePageSize(filter.Pagination.PageSize)

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.BuyerID != "" {
			q = q.Where("buyerId", "==", filter.BuyerID)
		}
		switch len(filter.Statuses) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Statuses[0]))
		default:
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.CreatedBefore != nil {
			q = q.Where("createdAt", "<", filter.CreatedBefore.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if hasCursor {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if len(page.Items) > size {
		page.Items = page.Items[:size]
		token, err := repositories.EncodeOrderCursor(page.Items[size-1])
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type orderDocument struct {
	BuyerID          string              `firestore:"buyerId"`
	Lines            []orderLineDocument `firestore:"lines"`
	Shipping         shippingDocument    `firestore:"shipping"`
	PaymentMethod    string              `firestore:"paymentMethod"`
	PaymentRef       string              `firestore:"paymentRef,omitempty"`
	BranchID         string              `firestore:"branchId"`
	Currency         string              `firestore:"currency"`
	Subtotal         int64               `firestore:"subtotal"`
	Discount         int64               `firestore:"discount"`
	Total            int64               `firestore:"total"`
	Promotions       []promotionSnapDoc  `firestore:"promotions,omitempty"`
	Status           string              `firestore:"status"`
	StatusReason     string              `firestore:"statusReason,omitempty"`
	StockDecremented bool                `firestore:"stockDecremented"`
	LoyaltyPoints    int64               `firestore:"loyaltyPoints"`
	LoyaltyAccrued   bool                `firestore:"loyaltyAccrued"`
	RefundHistory    []refundDocument    `firestore:"refundHistory,omitempty"`
	StatusHistory    []statusDocument    `firestore:"statusHistory,omitempty"`
	CreatedAt        time.Time           `firestore:"createdAt"`
	UpdatedAt        time.Time           `firestore:"updatedAt"`
	PaidAt           *time.Time          `firestore:"paidAt,omitempty"`
	CompletedAt      *time.Time          `firestore:"completedAt,omitempty"`
	CancelledAt      *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderLineDocument struct {
	VariantID        string `firestore:"variantId"`
	ProductID        string `firestore:"productId,omitempty"`
	Name             string `firestore:"name"`
	ImageURL         string `firestore:"imageUrl,omitempty"`
	UnitPrice        int64  `firestore:"unitPrice"`
	Quantity         int    `firestore:"quantity"`
	RefundedQuantity int    `firestore:"refundedQuantity"`
}

type shippingDocument struct {
	Recipient   string `firestore:"recipient"`
	Phone       string `firestore:"phone"`
	AddressLine string `firestore:"addressLine"`
	Ward        string `firestore:"ward,omitempty"`
	District    string `firestore:"district,omitempty"`
	City        string `firestore:"city,omitempty"`
	Note        string `firestore:"note,omitempty"`
}

type promotionSnapDoc struct {
	Code   string  `firestore:"code"`
	Type   string  `firestore:"type"`
	Value  float64 `firestore:"value"`
	Amount int64   `firestore:"amount"`
}

type refundDocument struct {
	ID         string         `firestore:"id"`
	Items      map[string]int `firestore:"items"`
	Amount     int64          `firestore:"amount"`
	Points     int64          `firestore:"points"`
	Reason     string         `firestore:"reason,omitempty"`
	ActorID    string         `firestore:"actorId,omitempty"`
	RefundedAt time.Time      `firestore:"refundedAt"`
}

type statusDocument struct {
	From    string    `firestore:"from"`
	To      string    `firestore:"to"`
	Reason  string    `firestore:"reason,omitempty"`
	ActorID string    `firestore:"actorId,omitempty"`
	At      time.Time `firestore:"at"`
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		BuyerID:          o.BuyerID,
		Shipping:         shippingDocument(o.Shipping),
		PaymentMethod:    string(o.PaymentMethod),
		PaymentRef:       o.PaymentRef,
		BranchID:         o.BranchID,
		Currency:         o.Currency,
		Subtotal:         o.Subtotal,
		Discount:         o.Discount,
		Total:            o.Total,
		Status:           string(o.Status),
		StatusReason:     o.StatusReason,
		StockDecremented: o.StockDecremented,
		LoyaltyPoints:    o.LoyaltyPoints,
		LoyaltyAccrued:   o.LoyaltyAccrued,
		CreatedAt:        o.CreatedAt.UTC(),
		UpdatedAt:        o.UpdatedAt.UTC(),
		PaidAt:           utcPtr(o.PaidAt),
		CompletedAt:      utcPtr(o.CompletedAt),
		CancelledAt:      utcPtr(o.CancelledAt),
	}
	for _, l := range o.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument(l))
	}
	for _, p := range o.Promotions {
		doc.Promotions = append(doc.Promotions, promotionSnapDoc{Code: p.Code, Type: string(p.Type), Value: p.Value, Amount: p.Amount})
	}
	for _, r := range o.RefundHistory {
		doc.RefundHistory = append(doc.RefundHistory, refundDocument{
			ID: r.ID, Items: r.Items, Amount: r.Amount, Points: r.Points,
			Reason: r.Reason, ActorID: r.ActorID, RefundedAt: r.RefundedAt.UTC(),
		})
	}
	for _, s := range o.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusDocument{
			From: string(s.From), To: string(s.To), Reason: s.Reason, ActorID: s.ActorID, At: s.At.UTC(),
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	o := domain.Order{
		ID:               id,
		BuyerID:          d.BuyerID,
		Shipping:         domain.ShippingSnapshot(d.Shipping),
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		PaymentRef:       d.PaymentRef,
		BranchID:         d.BranchID,
		Currency:         d.Currency,
		Subtotal:         d.Subtotal,
		Discount:         d.Discount,
		Total:            d.Total,
		Status:           domain.OrderStatus(d.Status),
		StatusReason:     d.StatusReason,
		StockDecremented: d.StockDecremented,
		LoyaltyPoints:    d.LoyaltyPoints,
		LoyaltyAccrued:   d.LoyaltyAccrued,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
		PaidAt:           utcPtr(d.PaidAt),
		CompletedAt:      utcPtr(d.CompletedAt),
		CancelledAt:      utcPtr(d.CancelledAt),
	}
	for _, l := range d.Lines {
		o.Lines = append(o.Lines, domain.OrderLine(l))
	}
	for _, p := range d.Promotions {
		o.Promotions = append(o.Promotions, domain.PromotionSnapshot{Code: p.Code, Type: domain.PromotionType(p.Type), Value: p.Value, Amount: p.Amount})
	}
	for _, r := range d.RefundHistory {
		o.RefundHistory = append(o.RefundHistory, domain.RefundRecord{
			ID: r.ID, Items: r.Items, Amount: r.Amount, Points: r.Points,
			Reason: r.Reason, ActorID: r.ActorID, RefundedAt: r.RefundedAt.UTC(),
		})
	}
	for _, s := range d.StatusHistory {
		o.StatusHistory = append(o.StatusHistory, domain.StatusChange{
			From: domain.OrderStatus(s.From), To: domain.OrderStatus(s.To), Reason: s.Reason, ActorID: s.ActorID, At: s.At.UTC(),
		})
	}
	return o
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
