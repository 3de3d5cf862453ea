package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

type stubPromotionRepository struct {
	promotions map[string]domain.Promotion
	err        error
	lookups    []string
	upserted   []domain.Promotion
}

func (s *stubPromotionRepository) FindByCode(_ context.Context, code string) (domain.Promotion, error) {
	s.lookups = append(s.lookups, code)
	if s.err != nil {
		return domain.Promotion{}, s.err
	}
	promo, ok := s.promotions[code]
	if !ok {
		return domain.Promotion{}, &stubRepoError{notFound: true}
	}
	return promo, nil
}

func (s *stubPromotionRepository) Upsert(_ context.Context, promo domain.Promotion) error {
	s.upserted = append(s.upserted, promo)
	return s.err
}

func newTestPromotionService(t *testing.T, repo *stubPromotionRepository, logger func(context.Context, string, map[string]any)) PromotionService {
	t.Helper()
	svc, err := NewPromotionService(PromotionServiceDeps{
		Promotions: repo,
		Clock:      func() time.Time { return testNow },
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewPromotionService: %v", err)
	}
	return svc
}

func TestPromotionServiceResolve(t *testing.T) {
	repo := &stubPromotionRepository{promotions: map[string]domain.Promotion{
		"FRESH10":  {Code: "FRESH10", Type: domain.PromotionTypePercentage, Value: 10, Active: true},
		"SHIP15K":  {Code: "SHIP15K", Type: domain.PromotionTypeFixed, Value: 15000, Active: true, ExpiresAt: testNow.Add(time.Hour)},
		"OLD":      {Code: "OLD", Type: domain.PromotionTypeFixed, Value: 1000, Active: true, ExpiresAt: testNow},
		"BIG":      {Code: "BIG", Type: domain.PromotionTypeFixed, Value: 1000, Active: true, MinimumPurchase: 500000},
		"VIP":      {Code: "VIP", Type: domain.PromotionTypeFixed, Value: 1000, Active: true, OwnerID: "buyer-9"},
		"DISABLED": {Code: "DISABLED", Type: domain.PromotionTypeFixed, Value: 1000},
	}}
	svc := newTestPromotionService(t, repo, nil)

	result, err := svc.Resolve(context.Background(), ResolvePromotionsCommand{
		Codes:    []string{" fresh10 ", "ＳＨＩＰ１５Ｋ", "FRESH10", "OLD", "BIG", "VIP", "DISABLED", "MISSING", ""},
		BuyerID:  "buyer-1",
		Subtotal: 200000,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Discount != 35000 {
		t.Fatalf("expected discount 35000, got %d", result.Discount)
	}
	if len(result.Applied) != 2 || result.Applied[0].Amount != 20000 || result.Applied[1].Code != "SHIP15K" {
		t.Fatalf("unexpected applied %+v", result.Applied)
	}
	want := map[string]string{
		"OLD":      PromotionRejectedExpired,
		"BIG":      PromotionRejectedMinimumNotMet,
		"VIP":      PromotionRejectedNotOwner,
		"DISABLED": PromotionRejectedInactive,
		"MISSING":  PromotionRejectedNotFound,
		"":         PromotionRejectedInvalidCode,
	}
	if len(result.Rejected) != len(want) {
		t.Fatalf("unexpected rejections %+v", result.Rejected)
	}
	for _, r := range result.Rejected {
		if want[r.Code] != r.Reason {
			t.Fatalf("code %q: expected %q got %q", r.Code, want[r.Code], r.Reason)
		}
		if !errors.Is(r, ErrInvalidPromotion) {
			t.Fatalf("rejection should match ErrInvalidPromotion")
		}
	}
	if len(repo.lookups) != 7 || repo.lookups[0] != "FRESH10" || repo.lookups[1] != "SHIP15K" {
		t.Fatalf("expected normalised lookups once per code, got %v", repo.lookups)
	}
}

func TestPromotionServiceResolveSurvivesLookupFailures(t *testing.T) {
	logger := &captureLogger{}
	repo := &stubPromotionRepository{err: &stubRepoError{unavailable: true}}
	svc := newTestPromotionService(t, repo, logger.log)

	result, err := svc.Resolve(context.Background(), ResolvePromotionsCommand{Codes: []string{"FRESH10"}, Subtotal: 100000})
	if err != nil {
		t.Fatalf("Resolve must not fail checkout: %v", err)
	}
	if result.Discount != 0 || len(result.Rejected) != 1 || result.Rejected[0].Reason != PromotionRejectedUnavailable {
		t.Fatalf("unexpected result %+v", result)
	}
	if !logger.has("promotion.lookup.failed") {
		t.Fatalf("expected lookup failure to be logged")
	}
}

func TestPromotionServiceUpsert(t *testing.T) {
	repo := &stubPromotionRepository{}
	svc := newTestPromotionService(t, repo, nil)
	ctx := context.Background()

	promo, err := svc.Upsert(ctx, UpsertPromotionCommand{
		Promotion: domain.Promotion{Code: " summer5 ", Type: domain.PromotionTypePercentage, Value: 5, Active: true},
		ActorID:   "ops",
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if promo.Code != "SUMMER5" || !promo.UpdatedAt.Equal(testNow) {
		t.Fatalf("unexpected promotion %+v", promo)
	}
	if len(repo.upserted) != 1 || repo.upserted[0].Code != "SUMMER5" {
		t.Fatalf("unexpected repository writes %+v", repo.upserted)
	}

	invalid := []domain.Promotion{
		{Code: "", Type: domain.PromotionTypeFixed, Value: 1},
		{Code: "P1", Type: domain.PromotionTypePercentage, Value: 120},
		{Code: "P2", Type: domain.PromotionTypeFixed, Value: 0},
		{Code: "P3", Type: "bogus", Value: 1},
		{Code: "P4", Type: domain.PromotionTypeFixed, Value: 1, MinimumPurchase: -1},
	}
	for _, p := range invalid {
		if _, err := svc.Upsert(ctx, UpsertPromotionCommand{Promotion: p}); err == nil {
			t.Fatalf("expected %+v to be rejected", p)
		}
	}
}

func TestNormalizePromotionCode(t *testing.T) {
	cases := map[string]string{
		" fresh10 ": "FRESH10",
		"ＦＲＥＳＨ１０": "FRESH10",
		"":          "",
	}
	for in, want := range cases {
		if got := NormalizePromotionCode(in); got != want {
			t.Fatalf("NormalizePromotionCode(%q) = %q, want %q", in, got, want)
		}
	}
}
