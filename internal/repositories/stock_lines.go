package repositories

import (
	"strings"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

// AggregateStockLines merges lines of the same variant, keeping first-seen order.
func AggregateStockLines(lines []domain.StockLine) []domain.StockLine {
	index := make(map[string]int, len(lines))
	out := make([]domain.StockLine, 0, len(lines))
	for _, line := range lines {
		if i, ok := index[line.VariantID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.VariantID] = len(out)
		out = append(out, line)
	}
	return out
}

// ValidateStockLines rejects an empty branch and lines without a variant or a positive quantity.
func ValidateStockLines(branchID string, lines []domain.StockLine) error {
	if strings.TrimSpace(branchID) == "" {
		return NewInventoryError(InventoryErrorInvalidLine, "branch id is required", nil)
	}
	for _, line := range lines {
		if strings.TrimSpace(line.VariantID) == "" || line.Quantity <= 0 {
			return NewInventoryError(InventoryErrorInvalidLine, "every line needs a variant and a positive quantity", nil)
		}
	}
	return nil
}
