package services

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// EligiblePromotions keeps the active promotions whose minimum purchase is met by subtotal and
// that have not expired at now. A zero ExpiresAt never expires.
func EligiblePromotions(subtotal int64, all []Promotion, now time.Time) []Promotion {
	out := make([]Promotion, 0, len(all))
	for _, promo := range all {
		if promotionRejection(promo, subtotal, now) == "" {
			out = append(out, promo)
		}
	}
	return out
}

// ApplyDiscount sums the discount of every applied promotion. Codes are counted once however
// often they appear. The sum is not capped; callers clamp the order total at zero.
func ApplyDiscount(subtotal int64, applied []Promotion) int64 {
	var total int64
	seen := make(map[string]struct{}, len(applied))
	for _, promo := range applied {
		key := strings.ToUpper(strings.TrimSpace(promo.Code))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		total += promotionAmount(subtotal, promo)
	}
	return total
}

// OrderTotal clamps subtotal minus discount at zero.
func OrderTotal(subtotal, discount int64) int64 {
	if total := subtotal - discount; total > 0 {
		return total
	}
	return 0
}

// promotionAmount is floor(subtotal * value / 100) for percentage promotions and the whole-unit
// value for fixed ones.
func promotionAmount(subtotal int64, promo Promotion) int64 {
	value := decimal.NewFromFloat(promo.Value)
	if value.IsNegative() {
		return 0
	}
	switch promo.Type {
	case domain.PromotionTypePercentage:
		return decimal.NewFromInt(subtotal).Mul(value).Div(hundred).Floor().IntPart()
	case domain.PromotionTypeFixed:
		return value.Floor().IntPart()
	default:
		return 0
	}
}

func snapshotPromotion(subtotal int64, promo Promotion) PromotionSnapshot {
	return PromotionSnapshot{
		Code:   promo.Code,
		Type:   promo.Type,
		Value:  promo.Value,
		Amount: promotionAmount(subtotal, promo),
	}
}

// promotionRejection returns the reason promo cannot apply, or "" when it can. Ownership is
// checked by the caller.
func promotionRejection(promo Promotion, subtotal int64, now time.Time) string {
	switch {
	case !promo.Active:
		return PromotionRejectedInactive
	case !promo.ExpiresAt.IsZero() && !promo.ExpiresAt.After(now):
		return PromotionRejectedExpired
	case subtotal < promo.MinimumPurchase:
		return PromotionRejectedMinimumNotMet
	default:
		return ""
	}
}
