package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	pfirestore "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/platform/firestore"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

const promotionsCollection = "promotions"

// PromotionRepository stores promotions keyed by their normalised code.
type PromotionRepository struct {
	promotions *pfirestore.Collection[promotionDocument]
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{promotions: pfirestore.NewCollection[promotionDocument](provider, promotionsCollection)}, nil
}

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	doc, err := r.promotions.Get(ctx, code)
	if err != nil {
		return domain.Promotion{}, err
	}
	d := doc.Data
	promo := domain.Promotion{
		Code:            doc.ID,
		Type:            domain.PromotionType(d.Type),
		Value:           d.Value,
		MinimumPurchase: d.MinimumPurchase,
		OwnerID:         d.OwnerID,
		Active:          d.Active,
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	if d.ExpiresAt != nil {
		promo.ExpiresAt = d.ExpiresAt.UTC()
	}
	return promo, nil
}

func (r *PromotionRepository) Upsert(ctx context.Context, promotion domain.Promotion) error {
	if strings.TrimSpace(promotion.Code) == "" {
		return errors.New("promotion repository: code is required")
	}
	doc := promotionDocument{
		Type:            string(promotion.Type),
		Value:           promotion.Value,
		MinimumPurchase: promotion.MinimumPurchase,
		OwnerID:         promotion.OwnerID,
		Active:          promotion.Active,
		UpdatedAt:       promotion.UpdatedAt.UTC(),
	}
	if !promotion.ExpiresAt.IsZero() {
		expires := promotion.ExpiresAt.UTC()
		doc.ExpiresAt = &expires
	}
	return r.promotions.Set(ctx, promotion.Code, doc)
}

type promotionDocument struct {
	Type            string     `firestore:"type"`
	Value           float64    `firestore:"value"`
	MinimumPurchase int64      `firestore:"minimumPurchase"`
	ExpiresAt       *time.Time `firestore:"expiresAt,omitempty"`
	OwnerID         string     `firestore:"ownerId,omitempty"`
	Active          bool       `firestore:"active"`
	UpdatedAt       time.Time  `firestore:"updatedAt"`
}
