package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

const (
	defaultPointsPerCurrencyUnit = 1000
	defaultLoyaltyEntryLimit     = 20
)

// ErrLoyaltyInvalidInput signals the caller provided invalid arguments.
var ErrLoyaltyInvalidInput = errors.New("loyalty: invalid input")

// LoyaltyServiceDeps bundles the collaborators required to construct a loyalty service.
type LoyaltyServiceDeps struct {
	Loyalty               repositories.LoyaltyRepository
	PointsPerCurrencyUnit int64
	Clock                 func() time.Time
	IDGenerator           func() string
	Logger                func(ctx context.Context, event string, fields map[string]any)
}

type loyaltyService struct {
	repo   repositories.LoyaltyRepository
	rate   int64
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewLoyaltyService wires a LoyaltyService backed by the provided repository.
func NewLoyaltyService(deps LoyaltyServiceDeps) (LoyaltyService, error) {
	if deps.Loyalty == nil {
		return nil, errors.New("loyalty service: loyalty repository is required")
	}
	rate := deps.PointsPerCurrencyUnit
	if rate <= 0 {
		rate = defaultPointsPerCurrencyUnit
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &loyaltyService{
		repo:   deps.Loyalty,
		rate:   rate,
		clock:  func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// PointsFor is floor(total / rate). Negative totals earn nothing.
func (s *loyaltyService) PointsFor(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / s.rate
}

func (s *loyaltyService) Accrue(ctx context.Context, userID, orderID string, points int64) error {
	return s.record(ctx, userID, orderID, points, domain.LoyaltyReasonOrderCompleted)
}

// Reverse appends a negative entry. Reason distinguishes cancellation from refund.
func (s *loyaltyService) Reverse(ctx context.Context, userID, orderID string, points int64, reason domain.LoyaltyReason) error {
	if reason == "" {
		reason = domain.LoyaltyReasonOrderCancelled
	}
	return s.record(ctx, userID, orderID, -points, reason)
}

func (s *loyaltyService) Summary(ctx context.Context, userID string, limit int) (LoyaltySummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return LoyaltySummary{}, fmt.Errorf("%w: user id is required", ErrLoyaltyInvalidInput)
	}
	if limit <= 0 {
		limit = defaultLoyaltyEntryLimit
	}
	account, err := s.repo.Account(ctx, userID)
	if err != nil {
		return LoyaltySummary{}, mapRepositoryError(err)
	}
	entries, err := s.repo.ListEntries(ctx, userID, limit)
	if err != nil {
		return LoyaltySummary{}, mapRepositoryError(err)
	}
	return LoyaltySummary{Account: account, Entries: entries}, nil
}

func (s *loyaltyService) record(ctx context.Context, userID, orderID string, delta int64, reason domain.LoyaltyReason) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrLoyaltyInvalidInput)
	}
	if delta == 0 {
		return nil
	}
	entry := domain.LoyaltyEntry{
		ID:        s.newID(),
		UserID:    userID,
		OrderID:   strings.TrimSpace(orderID),
		Delta:     delta,
		Reason:    reason,
		CreatedAt: s.clock(),
	}
	if err := s.repo.Record(ctx, entry); err != nil {
		return mapRepositoryError(err)
	}
	s.logger(ctx, "loyalty.recorded", map[string]any{
		"userId":  entry.UserID,
		"orderId": entry.OrderID,
		"delta":   entry.Delta,
		"reason":  string(entry.Reason),
	})
	return nil
}
