package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

const (
	collectionOrders          = "orders"
	collectionInventory       = "inventory"
	collectionLoyaltyAccounts = "loyalty_accounts"
	collectionLoyaltyEntries  = "loyalty_entries"
	collectionPromotions      = "promotions"
	collectionVariants        = "variants"
)

// OrderRepository stores orders in the memory store.
type OrderRepository struct{ store *Store }

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.store.run(ctx, func(tx *txn) error {
		var existing domain.Order
		found, err := tx.get(collectionOrders, order.ID, &existing)
		if err != nil {
			return err
		}
		if found {
			return conflict("orders.insert", fmt.Sprintf("order %s already exists", order.ID))
		}
		return tx.put(collectionOrders, order.ID, order)
	})
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.store.run(ctx, func(tx *txn) error {
		var existing domain.Order
		found, err := tx.get(collectionOrders, order.ID, &existing)
		if err != nil {
			return err
		}
		if !found {
			return notFound("orders.update", fmt.Sprintf("order %s not found", order.ID))
		}
		return tx.put(collectionOrders, order.ID, order)
	})
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := r.store.run(ctx, func(tx *txn) error {
		found, err := tx.get(collectionOrders, orderID, &order)
		if err != nil {
			return err
		}
		if !found {
			return notFound("orders.get", fmt.Sprintf("order %s not found", orderID))
		}
		return nil
	})
	return order, err
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, hasCursor, err := repositories.DecodeOrderCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	all, err := scan[domain.Order](r.store, collectionOrders)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	matched := make([]domain.Order, 0, len(all))
	for _, order := range all {
		if filter.BuyerID != "" && order.BuyerID != filter.BuyerID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
			continue
		}
		if filter.CreatedBefore != nil && !order.CreatedAt.Before(*filter.CreatedBefore) {
			continue
		}
		if hasCursor && !cursor.After(order) {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	size := repositories.NormalizePageSize(filter.Pagination.PageSize)
	page := domain.CursorPage[domain.Order]{}
	if len(matched) > size {
		matched = matched[:size]
		token, err := repositories.EncodeOrderCursor(matched[size-1])
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	page.Items = matched
	return page, nil
}

// InventoryRepository stores per-branch stock.
type InventoryRepository struct {
	store *Store
	now   func() time.Time
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

func (r *InventoryRepository) DecrementAll(ctx context.Context, branchID string, lines []domain.StockLine) ([]domain.InventoryRecord, error) {
	required := repositories.AggregateStockLines(lines)
	if err := repositories.ValidateStockLines(branchID, required); err != nil {
		return nil, err
	}
	var updated []domain.InventoryRecord
	err := r.store.run(ctx, func(tx *txn) error {
		updated = updated[:0]
		records := make(map[string]domain.InventoryRecord, len(required))
		var shortages []repositories.InventoryShortage
		for _, line := range required {
			var record domain.InventoryRecord
			if _, err := tx.get(collectionInventory, repositories.StockKey(branchID, line.VariantID), &record); err != nil {
				return err
			}
			record.BranchID, record.VariantID = branchID, line.VariantID
			records[line.VariantID] = record
			if record.Stock < int64(line.Quantity) {
				shortages = append(shortages, repositories.InventoryShortage{
					VariantID: line.VariantID,
					Name:      line.Name,
					Requested: line.Quantity,
					Available: record.Stock,
				})
			}
		}
		if len(shortages) > 0 {
			return repositories.NewInsufficientStockError("inventory.decrement", shortages)
		}
		now := r.now().UTC()
		for _, line := range required {
			record := records[line.VariantID]
			record.Stock -= int64(line.Quantity)
			record.UpdatedAt = now
			if err := tx.put(collectionInventory, repositories.StockKey(branchID, line.VariantID), record); err != nil {
				return err
			}
			updated = append(updated, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *InventoryRepository) RestoreAll(ctx context.Context, branchID string, lines []domain.StockLine) error {
	required := repositories.AggregateStockLines(lines)
	if err := repositories.ValidateStockLines(branchID, required); err != nil {
		return err
	}
	return r.store.run(ctx, func(tx *txn) error {
		now := r.now().UTC()
		for _, line := range required {
			key := repositories.StockKey(branchID, line.VariantID)
			var record domain.InventoryRecord
			if _, err := tx.get(collectionInventory, key, &record); err != nil {
				return err
			}
			record.BranchID, record.VariantID = branchID, line.VariantID
			record.Stock += int64(line.Quantity)
			record.UpdatedAt = now
			if err := tx.put(collectionInventory, key, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *InventoryRepository) Get(ctx context.Context, branchID, variantID string) (domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	err := r.store.run(ctx, func(tx *txn) error {
		found, err := tx.get(collectionInventory, repositories.StockKey(branchID, variantID), &record)
		if err != nil {
			return err
		}
		if !found {
			return notFound("inventory.get", fmt.Sprintf("no stock record for %s at %s", variantID, branchID))
		}
		return nil
	})
	return record, err
}

func (r *InventoryRepository) Set(ctx context.Context, record domain.InventoryRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = r.now().UTC()
	}
	return r.store.run(ctx, func(tx *txn) error {
		return tx.put(collectionInventory, repositories.StockKey(record.BranchID, record.VariantID), record)
	})
}

// LoyaltyRepository keeps ledger entries and balances.
type LoyaltyRepository struct {
	store *Store
}

var _ repositories.LoyaltyRepository = (*LoyaltyRepository)(nil)

func (r *LoyaltyRepository) Record(ctx context.Context, entry domain.LoyaltyEntry) error {
	return r.store.run(ctx, func(tx *txn) error {
		var existing domain.LoyaltyEntry
		found, err := tx.get(collectionLoyaltyEntries, entry.ID, &existing)
		if err != nil {
			return err
		}
		if found {
			return conflict("loyalty.record", fmt.Sprintf("entry %s already exists", entry.ID))
		}
		var account domain.LoyaltyAccount
		if _, err := tx.get(collectionLoyaltyAccounts, entry.UserID, &account); err != nil {
			return err
		}
		account.UserID = entry.UserID
		account.Balance += entry.Delta
		account.UpdatedAt = entry.CreatedAt
		if err := tx.put(collectionLoyaltyEntries, entry.ID, entry); err != nil {
			return err
		}
		return tx.put(collectionLoyaltyAccounts, entry.UserID, account)
	})
}

func (r *LoyaltyRepository) Account(ctx context.Context, userID string) (domain.LoyaltyAccount, error) {
	account := domain.LoyaltyAccount{UserID: userID}
	err := r.store.run(ctx, func(tx *txn) error {
		_, err := tx.get(collectionLoyaltyAccounts, userID, &account)
		return err
	})
	return account, err
}

func (r *LoyaltyRepository) ListEntries(_ context.Context, userID string, limit int) ([]domain.LoyaltyEntry, error) {
	all, err := scan[domain.LoyaltyEntry](r.store, collectionLoyaltyEntries)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LoyaltyEntry, 0)
	for _, entry := range all {
		if entry.UserID == userID {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// PromotionRepository stores promotions keyed by code.
type PromotionRepository struct{ store *Store }

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	var promo domain.Promotion
	err := r.store.run(ctx, func(tx *txn) error {
		found, err := tx.get(collectionPromotions, code, &promo)
		if err != nil {
			return err
		}
		if !found {
			return notFound("promotions.get", fmt.Sprintf("promotion %s not found", code))
		}
		return nil
	})
	return promo, err
}

func (r *PromotionRepository) Upsert(ctx context.Context, promotion domain.Promotion) error {
	return r.store.run(ctx, func(tx *txn) error {
		return tx.put(collectionPromotions, promotion.Code, promotion)
	})
}

// CatalogRepository serves variants seeded with PutVariant.
type CatalogRepository struct{ store *Store }

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

func (r *CatalogRepository) FindVariants(ctx context.Context, variantIDs []string) (map[string]domain.CatalogVariant, error) {
	out := make(map[string]domain.CatalogVariant, len(variantIDs))
	err := r.store.run(ctx, func(tx *txn) error {
		for _, id := range variantIDs {
			var variant domain.CatalogVariant
			found, err := tx.get(collectionVariants, id, &variant)
			if err != nil {
				return err
			}
			if found {
				out[id] = variant
			}
		}
		return nil
	})
	return out, err
}

// PutVariant seeds a catalog variant.
func (r *CatalogRepository) PutVariant(ctx context.Context, variant domain.CatalogVariant) error {
	if strings.TrimSpace(variant.VariantID) == "" {
		return fmt.Errorf("memory: variant id is required")
	}
	return r.store.run(ctx, func(tx *txn) error {
		return tx.put(collectionVariants, variant.VariantID, variant)
	})
}
