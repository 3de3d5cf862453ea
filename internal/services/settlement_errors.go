package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

var (
	// ErrInsufficientStock indicates one or more lines cannot be taken from stock. The error
	// chain carries an *InsufficientStockError listing every short line.
	ErrInsufficientStock = errors.New("settlement: insufficient stock")
	// ErrInvalidPromotion indicates a promotion code was rejected. Checkout continues without it.
	ErrInvalidPromotion = errors.New("settlement: invalid promotion")
	// ErrSignatureMismatch indicates a gateway callback failed integrity verification.
	ErrSignatureMismatch = errors.New("settlement: signature mismatch")
	// ErrInvalidTransition indicates the requested status is not reachable from the current one.
	ErrInvalidTransition = errors.New("settlement: invalid status transition")
	// ErrProviderConfirmationFailed indicates a synchronous payment confirmation was rejected.
	ErrProviderConfirmationFailed = errors.New("settlement: provider confirmation failed")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("settlement: order not found")
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("settlement: invalid input")
	// ErrOrderConflict indicates a write conflict that survived the transaction retries.
	ErrOrderConflict = errors.New("settlement: conflict")
	// ErrOrderUnavailable indicates the store or a provider could not be reached.
	ErrOrderUnavailable = errors.New("settlement: unavailable")
	// ErrRefundExceedsQuantity indicates a refund asked for more units than remain on a line.
	ErrRefundExceedsQuantity = errors.New("settlement: refund exceeds purchased quantity")
)

// StockShortage describes one line that could not be served.
type StockShortage struct {
	VariantID string
	Name      string
	Requested int
	Available int64
}

// InsufficientStockError lists every short line of a failed decrement.
type InsufficientStockError struct {
	BranchID  string
	Shortages []StockShortage
}

func (e *InsufficientStockError) Error() string {
	names := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		name := s.Name
		if name == "" {
			name = s.VariantID
		}
		names = append(names, fmt.Sprintf("%s (requested %d, available %d)", name, s.Requested, s.Available))
	}
	return "insufficient stock for " + strings.Join(names, ", ")
}

// Is lets errors.Is match the sentinel.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// LineNames returns the display names of the short lines.
func (e *InsufficientStockError) LineNames() []string {
	names := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		if s.Name != "" {
			names = append(names, s.Name)
		} else {
			names = append(names, s.VariantID)
		}
	}
	return names
}

// Promotion rejection reasons.
const (
	PromotionRejectedNotFound      = "not_found"
	PromotionRejectedExpired       = "expired"
	PromotionRejectedMinimumNotMet = "minimum_not_met"
	PromotionRejectedNotOwner      = "not_owner"
	PromotionRejectedInactive      = "inactive"
	PromotionRejectedUnavailable   = "unavailable"
	PromotionRejectedInvalidCode   = "invalid_code"
)

// PromotionRejection explains why a code was not applied.
type PromotionRejection struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (r PromotionRejection) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrInvalidPromotion, r.Code, r.Reason)
}

// Is lets errors.Is match the sentinel.
func (r PromotionRejection) Is(target error) bool {
	return target == ErrInvalidPromotion
}

// insufficientStockFrom converts the repository shortage error, or returns nil when err is not one.
func insufficientStockFrom(branchID string, err error) *InsufficientStockError {
	var invErr *repositories.InventoryError
	if !errors.As(err, &invErr) || invErr.Code != repositories.InventoryErrorInsufficientStock {
		return nil
	}
	out := &InsufficientStockError{BranchID: branchID}
	for _, s := range invErr.Shortages {
		out.Shortages = append(out.Shortages, StockShortage(s))
	}
	return out
}

// mapRepositoryError classifies repository failures. The original error stays in the chain so
// transaction retries can still recognise backend conflict codes.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
		}
	}
	return err
}
