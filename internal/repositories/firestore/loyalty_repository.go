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

const (
	loyaltyAccountsCollection = "loyaltyAccounts"
	loyaltyEntriesCollection  = "loyaltyEntries"
)

// LoyaltyRepository keeps the append-only ledger and the per-user balance document.
type LoyaltyRepository struct {
	provider *pfirestore.Provider
	accounts *pfirestore.Collection[loyaltyAccountDocument]
	entries  *pfirestore.Collection[loyaltyEntryDocument]
}

var _ repositories.LoyaltyRepository = (*LoyaltyRepository)(nil)

func NewLoyaltyRepository(provider *pfirestore.Provider) (*LoyaltyRepository, error) {
	if provider == nil {
		return nil, errors.New("loyalty repository requires firestore provider")
	}
	return &LoyaltyRepository{
		provider: provider,
		accounts: pfirestore.NewCollection[loyaltyAccountDocument](provider, loyaltyAccountsCollection),
		entries:  pfirestore.NewCollection[loyaltyEntryDocument](provider, loyaltyEntriesCollection),
	}, nil
}

// Record creates the entry and increments the balance with a field transform. Neither write
// reads, so Record may follow other writes in the same transaction.
func (r *LoyaltyRepository) Record(ctx context.Context, entry domain.LoyaltyEntry) error {
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.UserID) == "" {
		return errors.New("loyalty repository: entry id and user id are required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if err := r.entries.Create(ctx, entry.ID, loyaltyEntryDocument{
			UserID:    entry.UserID,
			OrderID:   entry.OrderID,
			Delta:     entry.Delta,
			Reason:    string(entry.Reason),
			CreatedAt: entry.CreatedAt.UTC(),
		}); err != nil {
			return err
		}
		return r.accounts.Set(ctx, entry.UserID, map[string]any{
			"userId":    entry.UserID,
			"balance":   firestore.Increment(entry.Delta),
			"updatedAt": entry.CreatedAt.UTC(),
		}, firestore.MergeAll)
	})
}

func (r *LoyaltyRepository) Account(ctx context.Context, userID string) (domain.LoyaltyAccount, error) {
	doc, err := r.accounts.Get(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.LoyaltyAccount{UserID: userID}, nil
		}
		return domain.LoyaltyAccount{}, err
	}
	return domain.LoyaltyAccount{UserID: userID, Balance: doc.Data.Balance, UpdatedAt: doc.Data.UpdatedAt.UTC()}, nil
}

func (r *LoyaltyRepository) ListEntries(ctx context.Context, userID string, limit int) ([]domain.LoyaltyEntry, error) {
	docs, err := r.entries.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LoyaltyEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, domain.LoyaltyEntry{
			ID:        doc.ID,
			UserID:    doc.Data.UserID,
			OrderID:   doc.Data.OrderID,
			Delta:     doc.Data.Delta,
			Reason:    domain.LoyaltyReason(doc.Data.Reason),
			CreatedAt: doc.Data.CreatedAt.UTC(),
		})
	}
	return entries, nil
}

type loyaltyAccountDocument struct {
	UserID    string    `firestore:"userId"`
	Balance   int64     `firestore:"balance"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type loyaltyEntryDocument struct {
	UserID    string    `firestore:"userId"`
	OrderID   string    `firestore:"orderId"`
	Delta     int64     `firestore:"delta"`
	Reason    string    `firestore:"reason"`
	CreatedAt time.Time `firestore:"createdAt"`
}
