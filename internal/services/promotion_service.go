package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

const maxPromotionCodeLength = 64

// PromotionServiceDeps bundles dependencies required to construct a PromotionService implementation.
type PromotionServiceDeps struct {
	Promotions repositories.PromotionRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type promotionService struct {
	repo   repositories.PromotionRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewPromotionService wires a PromotionService backed by the provided repositories.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, ErrPromotionRepositoryMissing
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionService{
		repo:   deps.Promotions,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// NormalizePromotionCode applies NFKC, trims and upper-cases a code so full-width and
// compatibility characters typed on mobile keyboards match the stored code.
func NormalizePromotionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(code)))
}

// Resolve looks up every code. Codes that cannot apply are reported, never returned as errors, so
// a bad code never blocks checkout.
func (s *promotionService) Resolve(ctx context.Context, cmd ResolvePromotionsCommand) (PromotionResolution, error) {
	var (
		result  PromotionResolution
		applied []Promotion
	)
	now := s.clock()
	seen := make(map[string]struct{}, len(cmd.Codes))

	for _, raw := range cmd.Codes {
		code := NormalizePromotionCode(raw)
		if code == "" || len(code) > maxPromotionCodeLength {
			result.Rejected = append(result.Rejected, PromotionRejection{Code: strings.TrimSpace(raw), Reason: PromotionRejectedInvalidCode})
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		promo, err := s.repo.FindByCode(ctx, code)
		if err != nil {
			reason := PromotionRejectedUnavailable
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				reason = PromotionRejectedNotFound
			} else {
				s.logger(ctx, "promotion.lookup.failed", map[string]any{
					"code":  code,
					"error": err.Error(),
				})
			}
			result.Rejected = append(result.Rejected, PromotionRejection{Code: code, Reason: reason})
			continue
		}

		if owner := strings.TrimSpace(promo.OwnerID); owner != "" && owner != strings.TrimSpace(cmd.BuyerID) {
			result.Rejected = append(result.Rejected, PromotionRejection{Code: code, Reason: PromotionRejectedNotOwner})
			continue
		}
		if reason := promotionRejection(promo, cmd.Subtotal, now); reason != "" {
			result.Rejected = append(result.Rejected, PromotionRejection{Code: code, Reason: reason})
			continue
		}

		promo.Code = code
		applied = append(applied, promo)
		result.Applied = append(result.Applied, snapshotPromotion(cmd.Subtotal, promo))
	}

	result.Discount = ApplyDiscount(cmd.Subtotal, applied)
	return result, nil
}

func (s *promotionService) Upsert(ctx context.Context, cmd UpsertPromotionCommand) (Promotion, error) {
	promo := cmd.Promotion
	promo.Code = NormalizePromotionCode(promo.Code)
	if promo.Code == "" || len(promo.Code) > maxPromotionCodeLength {
		return Promotion{}, ErrPromotionInvalidCode
	}
	switch promo.Type {
	case domain.PromotionTypePercentage:
		if promo.Value <= 0 || promo.Value > 100 {
			return Promotion{}, fmt.Errorf("%w: percentage must be in (0, 100]", ErrPromotionInvalidInput)
		}
	case domain.PromotionTypeFixed:
		if promo.Value <= 0 {
			return Promotion{}, fmt.Errorf("%w: fixed value must be positive", ErrPromotionInvalidInput)
		}
	default:
		return Promotion{}, fmt.Errorf("%w: unknown type %q", ErrPromotionInvalidInput, promo.Type)
	}
	if promo.MinimumPurchase < 0 {
		return Promotion{}, fmt.Errorf("%w: minimum purchase must not be negative", ErrPromotionInvalidInput)
	}
	promo.OwnerID = strings.TrimSpace(promo.OwnerID)
	if !promo.ExpiresAt.IsZero() {
		promo.ExpiresAt = promo.ExpiresAt.UTC()
	}
	promo.UpdatedAt = s.clock()

	if err := s.repo.Upsert(ctx, promo); err != nil {
		return Promotion{}, mapRepositoryError(err)
	}
	s.logger(ctx, "promotion.upserted", map[string]any{
		"code":  promo.Code,
		"actor": cmd.ActorID,
	})
	return promo, nil
}
