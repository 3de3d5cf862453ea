package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
)

type stubLoyaltyRepo struct {
	recorded  []domain.LoyaltyEntry
	recordErr error
	account   domain.LoyaltyAccount
	entries   []domain.LoyaltyEntry
	lastLimit int
}

func (s *stubLoyaltyRepo) Record(_ context.Context, entry domain.LoyaltyEntry) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, entry)
	return nil
}

func (s *stubLoyaltyRepo) Account(_ context.Context, userID string) (domain.LoyaltyAccount, error) {
	account := s.account
	account.UserID = userID
	return account, nil
}

func (s *stubLoyaltyRepo) ListEntries(_ context.Context, _ string, limit int) ([]domain.LoyaltyEntry, error) {
	s.lastLimit = limit
	return s.entries, nil
}

func newTestLoyaltyService(t *testing.T, repo *stubLoyaltyRepo, rate int64) LoyaltyService {
	t.Helper()
	svc, err := NewLoyaltyService(LoyaltyServiceDeps{
		Loyalty:               repo,
		PointsPerCurrencyUnit: rate,
		Clock:                 func() time.Time { return testNow },
		IDGenerator:           func() string { return "entry-1" },
	})
	if err != nil {
		t.Fatalf("NewLoyaltyService: %v", err)
	}
	return svc
}

func TestLoyaltyServicePointsFor(t *testing.T) {
	svc := newTestLoyaltyService(t, &stubLoyaltyRepo{}, 0)
	cases := map[int64]int64{
		0:       0,
		-5000:   0,
		999:     0,
		1000:    1,
		234999:  234,
		1000000: 1000,
	}
	for total, want := range cases {
		if got := svc.PointsFor(total); got != want {
			t.Fatalf("PointsFor(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestLoyaltyServiceAccrueAndReverseWriteSignedEntries(t *testing.T) {
	repo := &stubLoyaltyRepo{}
	svc := newTestLoyaltyService(t, repo, 1000)
	ctx := context.Background()

	if err := svc.Accrue(ctx, "buyer-1", "ord-1", 120); err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	if err := svc.Reverse(ctx, "buyer-1", "ord-1", 40, domain.LoyaltyReasonOrderRefunded); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if err := svc.Reverse(ctx, "buyer-1", "ord-1", 80, ""); err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if len(repo.recorded) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(repo.recorded))
	}
	want := []struct {
		delta  int64
		reason domain.LoyaltyReason
	}{
		{120, domain.LoyaltyReasonOrderCompleted},
		{-40, domain.LoyaltyReasonOrderRefunded},
		{-80, domain.LoyaltyReasonOrderCancelled},
	}
	var sum int64
	for i, entry := range repo.recorded {
		if entry.Delta != want[i].delta || entry.Reason != want[i].reason {
			t.Fatalf("entry %d: got %+v", i, entry)
		}
		if entry.ID != "entry-1" || !entry.CreatedAt.Equal(testNow) || entry.OrderID != "ord-1" {
			t.Fatalf("entry %d metadata: %+v", i, entry)
		}
		sum += entry.Delta
	}
	if sum != 0 {
		t.Fatalf("expected entries to net to zero, got %d", sum)
	}
}

func TestLoyaltyServiceSkipsZeroAndRejectsMissingUser(t *testing.T) {
	repo := &stubLoyaltyRepo{}
	svc := newTestLoyaltyService(t, repo, 1000)
	ctx := context.Background()

	if err := svc.Accrue(ctx, "buyer-1", "ord-1", 0); err != nil {
		t.Fatalf("Accrue zero: %v", err)
	}
	if len(repo.recorded) != 0 {
		t.Fatalf("expected zero accrual to write nothing")
	}
	if err := svc.Accrue(ctx, " ", "ord-1", 10); !errors.Is(err, ErrLoyaltyInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestLoyaltyServiceMapsRepositoryErrors(t *testing.T) {
	repo := &stubLoyaltyRepo{recordErr: &stubRepoError{conflict: true}}
	svc := newTestLoyaltyService(t, repo, 1000)
	err := svc.Accrue(context.Background(), "buyer-1", "ord-1", 10)
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var repoErr *stubRepoError
	if !errors.As(err, &repoErr) {
		t.Fatalf("expected repository error to stay in the chain")
	}
}

func TestLoyaltyServiceSummary(t *testing.T) {
	repo := &stubLoyaltyRepo{
		account: domain.LoyaltyAccount{Balance: 320},
		entries: []domain.LoyaltyEntry{{ID: "e1", Delta: 320}},
	}
	svc := newTestLoyaltyService(t, repo, 1000)

	summary, err := svc.Summary(context.Background(), "buyer-1", 0)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Account.Balance != 320 || summary.Account.UserID != "buyer-1" || len(summary.Entries) != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if repo.lastLimit != defaultLoyaltyEntryLimit {
		t.Fatalf("expected default limit, got %d", repo.lastLimit)
	}
}
