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

const inventoryCollection = "inventory"

// InventoryRepository stores one document per (branch, variant) keyed "<branch>_<variant>".
type InventoryRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.Collection[stockDocument]
	now      func() time.Time
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

func NewInventoryRepository(provider *pfirestore.Provider, clock func() time.Time) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &InventoryRepository{
		provider: provider,
		stocks:   pfirestore.NewCollection[stockDocument](provider, inventoryCollection),
		now:      clock,
	}, nil
}

// DecrementAll reads every record with one GetAll before writing any of them, so it may be
// followed by other writes in the same transaction but must come after all reads.
func (r *InventoryRepository) DecrementAll(ctx context.Context, branchID string, lines []domain.StockLine) ([]domain.InventoryRecord, error) {
	required := repositories.AggregateStockLines(lines)
	if err := repositories.ValidateStockLines(branchID, required); err != nil {
		return nil, err
	}

	var updated []domain.InventoryRecord
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		updated = updated[:0]
		ids := make([]string, 0, len(required))
		for _, line := range required {
			ids = append(ids, repositories.StockKey(branchID, line.VariantID))
		}
		docs, err := r.stocks.GetAll(ctx, ids)
		if err != nil {
			return err
		}

		var shortages []repositories.InventoryShortage
		for i, line := range required {
			var available int64
			if docs[i].Exists {
				available = docs[i].Data.Stock
			}
			if available < int64(line.Quantity) {
				shortages = append(shortages, repositories.InventoryShortage{
					VariantID: line.VariantID,
					Name:      line.Name,
					Requested: line.Quantity,
					Available: available,
				})
			}
		}
		if len(shortages) > 0 {
			return repositories.NewInsufficientStockError("inventory.decrement", shortages)
		}

		now := r.now().UTC()
		for i, line := range required {
			doc := stockDocument{
				BranchID:  branchID,
				VariantID: line.VariantID,
				Stock:     docs[i].Data.Stock - int64(line.Quantity),
				UpdatedAt: now,
			}
			if err := r.stocks.Set(ctx, ids[i], doc); err != nil {
				return err
			}
			updated = append(updated, doc.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RestoreAll increments stock without reading it, so it is safe after other writes.
func (r *InventoryRepository) RestoreAll(ctx context.Context, branchID string, lines []domain.StockLine) error {
	required := repositories.AggregateStockLines(lines)
	if err := repositories.ValidateStockLines(branchID, required); err != nil {
		return err
	}
	now := r.now().UTC()
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		for _, line := range required {
			err := r.stocks.Set(ctx, repositories.StockKey(branchID, line.VariantID), map[string]any{
				"branchId":  branchID,
				"variantId": line.VariantID,
				"stock":     firestore.Increment(line.Quantity),
				"updatedAt": now,
			}, firestore.MergeAll)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *InventoryRepository) Get(ctx context.Context, branchID, variantID string) (domain.InventoryRecord, error) {
	doc, err := r.stocks.Get(ctx, repositories.StockKey(branchID, variantID))
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return doc.Data.toDomain(), nil
}

func (r *InventoryRepository) Set(ctx context.Context, record domain.InventoryRecord) error {
	if strings.TrimSpace(record.BranchID) == "" || strings.TrimSpace(record.VariantID) == "" {
		return repositories.NewInventoryError(repositories.InventoryErrorInvalidLine, "branch and variant are required", nil)
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = r.now()
	}
	return r.stocks.Set(ctx, repositories.StockKey(record.BranchID, record.VariantID), stockDocument{
		BranchID:  record.BranchID,
		VariantID: record.VariantID,
		Stock:     record.Stock,
		UpdatedAt: record.UpdatedAt.UTC(),
	})
}

type stockDocument struct {
	BranchID  string    `firestore:"branchId"`
	VariantID string    `firestore:"variantId"`
	Stock     int64     `firestore:"stock"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d stockDocument) toDomain() domain.InventoryRecord {
	return domain.InventoryRecord{
		VariantID: d.VariantID,
		BranchID:  d.BranchID,
		Stock:     d.Stock,
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}
