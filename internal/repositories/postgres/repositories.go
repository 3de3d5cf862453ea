package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

type base struct {
	pool *pgxpool.Pool
}

func (b base) db(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return b.pool
}

// OrderRepository stores orders as JSONB documents with indexed columns for listing.
type OrderRepository struct{ base }

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO orders (id, buyer_id, status, created_at, updated_at, document)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		order.ID, order.BuyerID, string(order.Status), order.CreatedAt.UTC(), order.UpdatedAt.UTC(), order)
	return wrapError("orders.insert", err)
}

func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	tag, err := r.db(ctx).Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = $3, document = $4 WHERE id = $1`,
		order.ID, string(order.Status), order.UpdatedAt.UTC(), order)
	if err != nil {
		return wrapError("orders.update", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("orders.update", fmt.Sprintf("order %s not found", order.ID))
	}
	return nil
}

// FindByID locks the row when called inside a transaction so a concurrent transition waits.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	query := `SELECT document FROM orders WHERE id = $1`
	if _, ok := txFromContext(ctx); ok {
		query += ` FOR UPDATE`
	}
	var order domain.Order
	if err := r.db(ctx).QueryRow(ctx, query, orderID).Scan(&order); err != nil {
		return domain.Order{}, wrapError("orders.get", err)
	}
	return order, nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, hasCursor, err := repositories.DecodeOrderCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := repositories.NormalizePageSize(filter.Pagination.PageSize)

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.BuyerID != "" {
		conds = append(conds, "buyer_id = "+arg(filter.BuyerID))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		conds = append(conds, "status = ANY("+arg(statuses)+")")
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at < "+arg(filter.CreatedBefore.UTC()))
	}
	if hasCursor {
		conds = append(conds, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(cursor.CreatedAt.UTC()), arg(cursor.ID)))
	}

	query := "SELECT document FROM orders"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(size+1)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}
	defer rows.Close()

	page := domain.CursorPage[domain.Order]{}
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order); err != nil {
			return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
		}
		page.Items = append(page.Items, order)
	}
	if err := rows.Err(); err != nil {
		return domain.CursorPage[domain.Order]{}, wrapError("orders.list", err)
	}
	if len(page.Items) > size {
		page.Items = page.Items[:size]
		token, err := repositories.EncodeOrderCursor(page.Items[size-1])
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// InventoryRepository locks stock rows with SELECT ... FOR UPDATE before decrementing.
type InventoryRepository struct {
	base
	uow *unitOfWork
	now func() time.Time
}

var _ repositories.InventoryRepository = (*InventoryRepository)(nil)

func (r *InventoryRepository) DecrementAll(ctx context.Context, branchID string, lines []domain.StockLine) ([]domain.InventoryRecord, error) {
	required := repositories.AggregateStockLines(lines)
	if err := repositories.ValidateStockLines(branchID, required); err != nil {
		return nil, err
	}
	variantIDs := make([]string, 0, len(required))
	for _, line := range required {
		variantIDs = append(variantIDs, line.VariantID)
	}

	var updated []domain.InventoryRecord
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		updated = updated[:0]
		// rows are locked in variant order so concurrent checkouts cannot deadlock each other
		rows, err := r.db(ctx).Query(ctx, `
			SELECT variant_id, stock FROM inventory
			WHERE branch_id = $1 AND variant_id = ANY($2)
			ORDER BY variant_id
			FOR UPDATE`, branchID, variantIDs)
		if err != nil {
			return wrapError("inventory.lock", err)
		}
		available := make(map[string]int64, len(required))
		for rows.Next() {
			var (
				id    string
				stock int64
			)
			if err := rows.Scan(&id, &stock); err != nil {
				rows.Close()
				return wrapError("inventory.lock", err)
			}
			available[id] = stock
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrapError("inventory.lock", err)
		}

		var shortages []repositories.InventoryShortage
		for _, line := range required {
			if available[line.VariantID] < int64(line.Quantity) {
				shortages = append(shortages, repositories.InventoryShortage{
					VariantID: line.VariantID,
					Name:      line.Name,
					Requested: line.Quantity,
					Available: available[line.VariantID],
				})
			}
		}
		if len(shortages) > 0 {
			return repositories.NewInsufficientStockError("inventory.decrement", shortages)
		}

		now := r.now().UTC()
		for _, line := range required {
			var record domain.InventoryRecord
			err := r.db(ctx).QueryRow(ctx, `
				UPDATE inventory SET stock = stock - $3, updated_at = $4
				WHERE branch_id = $1 AND variant_id = $2
				RETURNING branch_id, variant_id, stock, updated_at`,
				branchID, line.VariantID, line.Quantity, now,
			).Scan(&record.BranchID, &record.VariantID, &record.Stock, &record.UpdatedAt)
			if err != nil {
				return wrapError("inventory.decrement", err)
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
	now := r.now().UTC()
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		for _, line := range required {
			_, err := r.db(ctx).Exec(ctx, `
				INSERT INTO inventory (branch_id, variant_id, stock, updated_at) VALUES ($1, $2, $3, $4)
				ON CONFLICT (branch_id, variant_id)
				DO UPDATE SET stock = inventory.stock + EXCLUDED.stock, updated_at = EXCLUDED.updated_at`,
				branchID, line.VariantID, line.Quantity, now)
			if err != nil {
				return wrapError("inventory.restore", err)
			}
		}
		return nil
	})
}

func (r *InventoryRepository) Get(ctx context.Context, branchID, variantID string) (domain.InventoryRecord, error) {
	var record domain.InventoryRecord
	err := r.db(ctx).QueryRow(ctx, `
		SELECT branch_id, variant_id, stock, updated_at FROM inventory
		WHERE branch_id = $1 AND variant_id = $2`, branchID, variantID,
	).Scan(&record.BranchID, &record.VariantID, &record.Stock, &record.UpdatedAt)
	if err != nil {
		return domain.InventoryRecord{}, wrapError("inventory.get", err)
	}
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func (r *InventoryRepository) Set(ctx context.Context, record domain.InventoryRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = r.now()
	}
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO inventory (branch_id, variant_id, stock, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (branch_id, variant_id)
		DO UPDATE SET stock = EXCLUDED.stock, updated_at = EXCLUDED.updated_at`,
		record.BranchID, record.VariantID, record.Stock, record.UpdatedAt.UTC())
	return wrapError("inventory.set", err)
}

// LoyaltyRepository appends entries and upserts balances.
type LoyaltyRepository struct {
	base
	uow *unitOfWork
}

var _ repositories.LoyaltyRepository = (*LoyaltyRepository)(nil)

func (r *LoyaltyRepository) Record(ctx context.Context, entry domain.LoyaltyEntry) error {
	return r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := r.db(ctx).Exec(ctx, `
			INSERT INTO loyalty_entries (id, user_id, order_id, delta, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			entry.ID, entry.UserID, entry.OrderID, entry.Delta, string(entry.Reason), entry.CreatedAt.UTC()); err != nil {
			return wrapError("loyalty.entry", err)
		}
		_, err := r.db(ctx).Exec(ctx, `
			INSERT INTO loyalty_accounts (user_id, balance, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (user_id)
			DO UPDATE SET balance = loyalty_accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
			entry.UserID, entry.Delta, entry.CreatedAt.UTC())
		return wrapError("loyalty.balance", err)
	})
}

func (r *LoyaltyRepository) Account(ctx context.Context, userID string) (domain.LoyaltyAccount, error) {
	account := domain.LoyaltyAccount{UserID: userID}
	err := r.db(ctx).QueryRow(ctx, `SELECT balance, updated_at FROM loyalty_accounts WHERE user_id = $1`, userID).
		Scan(&account.Balance, &account.UpdatedAt)
	if err != nil {
		wrapped := wrapError("loyalty.account", err)
		if repoErr, ok := wrapped.(*Error); ok && repoErr.IsNotFound() {
			return account, nil
		}
		return domain.LoyaltyAccount{}, wrapped
	}
	account.UpdatedAt = account.UpdatedAt.UTC()
	return account, nil
}

func (r *LoyaltyRepository) ListEntries(ctx context.Context, userID string, limit int) ([]domain.LoyaltyEntry, error) {
	if limit <= 0 {
		limit = repositories.MaxOrderPageSize
	}
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, user_id, order_id, delta, reason, created_at FROM loyalty_entries
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, wrapError("loyalty.entries", err)
	}
	defer rows.Close()
	var entries []domain.LoyaltyEntry
	for rows.Next() {
		var (
			e      domain.LoyaltyEntry
			reason string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.OrderID, &e.Delta, &reason, &e.CreatedAt); err != nil {
			return nil, wrapError("loyalty.entries", err)
		}
		e.Reason = domain.LoyaltyReason(reason)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, wrapError("loyalty.entries", rows.Err())
}

// PromotionRepository stores promotion definitions.
type PromotionRepository struct{ base }

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	var (
		promo     domain.Promotion
		promoType string
		expiresAt *time.Time
	)
	err := r.db(ctx).QueryRow(ctx, `
		SELECT code, type, value, minimum_purchase, expires_at, owner_id, active, updated_at
		FROM promotions WHERE code = $1`, code,
	).Scan(&promo.Code, &promoType, &promo.Value, &promo.MinimumPurchase, &expiresAt, &promo.OwnerID, &promo.Active, &promo.UpdatedAt)
	if err != nil {
		return domain.Promotion{}, wrapError("promotions.get", err)
	}
	promo.Type = domain.PromotionType(promoType)
	if expiresAt != nil {
		promo.ExpiresAt = expiresAt.UTC()
	}
	return promo, nil
}

func (r *PromotionRepository) Upsert(ctx context.Context, p domain.Promotion) error {
	var expiresAt *time.Time
	if !p.ExpiresAt.IsZero() {
		v := p.ExpiresAt.UTC()
		expiresAt = &v
	}
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO promotions (code, type, value, minimum_purchase, expires_at, owner_id, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			type = EXCLUDED.type, value = EXCLUDED.value, minimum_purchase = EXCLUDED.minimum_purchase,
			expires_at = EXCLUDED.expires_at, owner_id = EXCLUDED.owner_id, active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		p.Code, string(p.Type), p.Value, p.MinimumPurchase, expiresAt, p.OwnerID, p.Active, p.UpdatedAt.UTC())
	return wrapError("promotions.upsert", err)
}

// CatalogRepository reads the variants table.
type CatalogRepository struct{ base }

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

func (r *CatalogRepository) FindVariants(ctx context.Context, ids []string) (map[string]domain.CatalogVariant, error) {
	out := make(map[string]domain.CatalogVariant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db(ctx).Query(ctx, `
		SELECT id, product_id, name, image_url, price, active FROM variants WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrapError("variants.find", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.CatalogVariant
		if err := rows.Scan(&v.VariantID, &v.ProductID, &v.Name, &v.ImageURL, &v.Price, &v.Active); err != nil {
			return nil, wrapError("variants.find", err)
		}
		out[v.VariantID] = v
	}
	return out, wrapError("variants.find", rows.Err())
}

// PutVariant upserts a variant. Used by seeding tools.
func (r *CatalogRepository) PutVariant(ctx context.Context, v domain.CatalogVariant) error {
	_, err := r.db(ctx).Exec(ctx, `
		INSERT INTO variants (id, product_id, name, image_url, price, active) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET product_id = EXCLUDED.product_id, name = EXCLUDED.name,
			image_url = EXCLUDED.image_url, price = EXCLUDED.price, active = EXCLUDED.active`,
		v.VariantID, v.ProductID, v.Name, v.ImageURL, v.Price, v.Active)
	return wrapError("variants.put", err)
}
