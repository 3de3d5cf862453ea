package repositories

import (
	"fmt"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/pagination"
)

const (
	// DefaultOrderPageSize applies when a listing omits the page size.
	DefaultOrderPageSize = 20
	// MaxOrderPageSize caps order listings.
	MaxOrderPageSize = 100
)

// OrderCursor is the position after which an order listing resumes. Listings are ordered by
// CreatedAt then ID, both descending.
type OrderCursor struct {
	CreatedAt time.Time
	ID        string
}

// EncodeOrderCursor renders the cursor pointing after order.
func EncodeOrderCursor(order domain.Order) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{order.CreatedAt.UTC().Format(time.RFC3339Nano), order.ID},
	})
}

// DecodeOrderCursor parses a page token. An empty token yields ok == false.
func DecodeOrderCursor(token string) (cursor OrderCursor, ok bool, err error) {
	raw, err := pagination.DecodeToken(token)
	if err != nil {
		return OrderCursor{}, false, err
	}
	if len(raw.StartAfter) == 0 {
		return OrderCursor{}, false, nil
	}
	if len(raw.StartAfter) != 2 {
		return OrderCursor{}, false, fmt.Errorf("%w: unexpected cursor length", pagination.ErrInvalidPageToken)
	}
	ts, okTS := raw.StartAfter[0].(string)
	id, okID := raw.StartAfter[1].(string)
	if !okTS || !okID {
		return OrderCursor{}, false, fmt.Errorf("%w: unexpected cursor values", pagination.ErrInvalidPageToken)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return OrderCursor{}, false, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	return OrderCursor{CreatedAt: createdAt, ID: id}, true, nil
}

// After reports whether order sorts strictly after the cursor position.
func (c OrderCursor) After(order domain.Order) bool {
	if order.CreatedAt.Equal(c.CreatedAt) {
		return order.ID < c.ID
	}
	return order.CreatedAt.Before(c.CreatedAt)
}

// NormalizePageSize clamps size into [1, MaxOrderPageSize].
func NormalizePageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultOrderPageSize
	case size > MaxOrderPageSize:
		return MaxOrderPageSize
	default:
		return size
	}
}
