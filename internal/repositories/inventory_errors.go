package repositories

import (
	"fmt"
	"strings"
)

// InventoryErrorCode enumerates repository error causes for inventory operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates at least one line exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorInvalidLine indicates a line with an empty variant or non-positive quantity.
	InventoryErrorInvalidLine InventoryErrorCode = "inventory_invalid_line"
)

// InventoryShortage describes one line that cannot be served.
type InventoryShortage struct {
	VariantID string
	Name      string
	Requested int
	Available int64
}

// InventoryError wraps inventory-specific failures with machine readable codes.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	Message   string
	Shortages []InventoryShortage
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInsufficientStockError reports every short line at once.
func NewInsufficientStockError(op string, shortages []InventoryShortage) *InventoryError {
	parts := make([]string, 0, len(shortages))
	for _, s := range shortages {
		parts = append(parts, fmt.Sprintf("%s requested %d available %d", s.VariantID, s.Requested, s.Available))
	}
	return &InventoryError{
		Op:        op,
		Code:      InventoryErrorInsufficientStock,
		Message:   "insufficient stock: " + strings.Join(parts, "; "),
		Shortages: shortages,
	}
}

// StockKey identifies an inventory record.
func StockKey(branchID, variantID string) string {
	return branchID + "_" + variantID
}
