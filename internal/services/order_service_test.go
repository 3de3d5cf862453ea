package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/payments"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories/memory"
)

var testNow = time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

type fakeProvider struct {
	method     domain.PaymentMethod
	timing     payments.Timing
	initiateFn func(context.Context, payments.InitiateRequest) (domain.PaymentAttempt, error)
	confirmFn  func(context.Context, payments.ConfirmRequest) (domain.PaymentAttempt, error)

	mu      sync.Mutex
	refunds []payments.RefundRequest
}

func (p *fakeProvider) Method() domain.PaymentMethod { return p.method }
func (p *fakeProvider) Timing() payments.Timing      { return p.timing }

func (p *fakeProvider) Initiate(ctx context.Context, req payments.InitiateRequest) (domain.PaymentAttempt, error) {
	if p.initiateFn != nil {
		return p.initiateFn(ctx, req)
	}
	return domain.PaymentAttempt{
		Method:      p.method,
		ProviderRef: "ref-" + req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      domain.PaymentAttemptInitiated,
	}, nil
}

func (p *fakeProvider) Confirm(ctx context.Context, req payments.ConfirmRequest) (domain.PaymentAttempt, error) {
	if p.confirmFn != nil {
		return p.confirmFn(ctx, req)
	}
	return domain.PaymentAttempt{
		Method:      p.method,
		ProviderRef: "cap-" + req.Token,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Status:      domain.PaymentAttemptConfirmed,
	}, nil
}

func (p *fakeProvider) Refund(_ context.Context, req payments.RefundRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, req)
	return nil
}

func (p *fakeProvider) refundCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refunds)
}

type captureOrderEvents struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureOrderEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type captureLogger struct {
	mu     sync.Mutex
	events []string
	fields []map[string]any
}

func (l *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.fields = append(l.fields, fields)
}

func (l *captureLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

type stubCatalog struct {
	findFn func(context.Context, []string) (map[string]CatalogVariant, error)
}

func (s *stubCatalog) FindVariants(ctx context.Context, ids []string) (map[string]CatalogVariant, error) {
	if s.findFn != nil {
		return s.findFn(ctx, ids)
	}
	return nil, nil
}

type settlementHarness struct {
	registry  *memory.Registry
	orders    *orderService
	inventory InventoryService
	loyalty   LoyaltyService
	providers map[domain.PaymentMethod]*fakeProvider
	events    *captureOrderEvents
	invEvents *captureInventoryEvents
	logger    *captureLogger
	meter     *recordingMeter
	ids       int
}

type harnessOption func(*OrderServiceDeps)

func newSettlementHarness(t *testing.T, opts ...harnessOption) *settlementHarness {
	t.Helper()
	h := &settlementHarness{
		registry:  memory.NewRegistry(memory.NewStore(), func() time.Time { return testNow }),
		events:    &captureOrderEvents{},
		invEvents: &captureInventoryEvents{},
		logger:    &captureLogger{},
		meter:     newRecordingMeter(),
		providers: map[domain.PaymentMethod]*fakeProvider{
			domain.PaymentMethodCOD:          {method: domain.PaymentMethodCOD, timing: payments.TimingImmediate},
			domain.PaymentMethodBankTransfer: {method: domain.PaymentMethodBankTransfer, timing: payments.TimingDeferred},
			domain.PaymentMethodCard:         {method: domain.PaymentMethodCard, timing: payments.TimingClientConfirmed},
		},
	}
	var idMu sync.Mutex
	nextID := func() string {
		idMu.Lock()
		defer idMu.Unlock()
		h.ids++
		return fmt.Sprintf("id-%03d", h.ids)
	}
	clock := func() time.Time { return testNow }

	inventory, err := NewInventoryService(InventoryServiceDeps{
		Inventory:         h.registry.Inventory(),
		Events:            h.invEvents,
		LowStockThreshold: 2,
		Clock:             clock,
		IDGenerator:       nextID,
		Logger:            h.logger.log,
	})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}
	loyalty, err := NewLoyaltyService(LoyaltyServiceDeps{
		Loyalty:               h.registry.Loyalty(),
		PointsPerCurrencyUnit: 1000,
		Clock:                 clock,
		IDGenerator:           nextID,
	})
	if err != nil {
		t.Fatalf("NewLoyaltyService: %v", err)
	}
	promotions, err := NewPromotionService(PromotionServiceDeps{
		Promotions: h.registry.Promotions(),
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("NewPromotionService: %v", err)
	}
	list := make([]payments.Provider, 0, len(h.providers))
	for _, p := range h.providers {
		list = append(list, p)
	}
	registry, err := payments.NewRegistry(list...)
	if err != nil {
		t.Fatalf("payments.NewRegistry: %v", err)
	}

	deps := OrderServiceDeps{
		Orders:      h.registry.Orders(),
		Inventory:   inventory,
		Loyalty:     loyalty,
		Promotions:  promotions,
		Payments:    registry,
		UnitOfWork:  h.registry,
		Config:      SettlementConfig{Currency: "vnd", PointsPerCurrencyUnit: 1000, PendingTTL: time.Hour},
		Clock:       clock,
		IDGenerator: nextID,
		Events:      h.events,
		Logger:      h.logger.log,
		Meter:       h.meter,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := newOrderService(deps)
	if err != nil {
		t.Fatalf("newOrderService: %v", err)
	}
	h.orders, h.inventory, h.loyalty = svc, inventory, loyalty
	return h
}

func (h *settlementHarness) setStock(t *testing.T, variantID string, stock int64) {
	t.Helper()
	err := h.registry.Inventory().Set(context.Background(), domain.InventoryRecord{BranchID: "hcm-1", VariantID: variantID, Stock: stock})
	if err != nil {
		t.Fatalf("set stock: %v", err)
	}
}

func (h *settlementHarness) stock(t *testing.T, variantID string) int64 {
	t.Helper()
	record, err := h.registry.Inventory().Get(context.Background(), "hcm-1", variantID)
	if err != nil {
		t.Fatalf("get stock %s: %v", variantID, err)
	}
	return record.Stock
}

func (h *settlementHarness) balance(t *testing.T, userID string) int64 {
	t.Helper()
	account, err := h.registry.Loyalty().Account(context.Background(), userID)
	if err != nil {
		t.Fatalf("loyalty account: %v", err)
	}
	return account.Balance
}

func (h *settlementHarness) load(t *testing.T, orderID string) Order {
	t.Helper()
	order, err := h.registry.Orders().FindByID(context.Background(), orderID)
	if err != nil {
		t.Fatalf("find order %s: %v", orderID, err)
	}
	return order
}

func testCheckout(method domain.PaymentMethod, lines ...CartLine) CheckoutCommand {
	return CheckoutCommand{
		BuyerID:  "buyer-1",
		Lines:    lines,
		BranchID: "hcm-1",
		Shipping: ShippingSnapshot{
			Recipient:   "Nguyen Van A",
			Phone:       "0900000000",
			AddressLine: "1 Le Loi",
			City:        "HCMC",
		},
		PaymentMethod: method,
	}
}

func apples(qty int) CartLine {
	return CartLine{VariantID: "apple-1kg", Name: "Apples 1kg", UnitPrice: 50000, Quantity: qty}
}

func milk(qty int) CartLine {
	return CartLine{VariantID: "milk-1l", Name: "Milk 1L", UnitPrice: 30000, Quantity: qty}
}

func TestOrderServiceCheckoutEagerDecrementsAndInserts(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)
	h.setStock(t, "milk-1l", 3)

	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(2), milk(1), apples(1)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	order := result.Order
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", order.Status)
	}
	if !order.StockDecremented {
		t.Fatalf("expected stock decremented flag")
	}
	if len(order.Lines) != 2 || order.Lines[0].Quantity != 3 {
		t.Fatalf("expected merged lines, got %+v", order.Lines)
	}
	if order.Subtotal != 180000 || order.Total != 180000 || order.Currency != "VND" {
		t.Fatalf("unexpected totals %+v", order)
	}
	if got := h.stock(t, "apple-1kg"); got != 7 {
		t.Fatalf("expected apple stock 7, got %d", got)
	}
	if got := h.stock(t, "milk-1l"); got != 2 {
		t.Fatalf("expected milk stock 2, got %d", got)
	}
	if stored := h.load(t, order.ID); stored.Status != domain.OrderStatusProcessing {
		t.Fatalf("stored order status %s", stored.Status)
	}
	if types := h.events.types(); len(types) != 1 || types[0] != orderEventCreated {
		t.Fatalf("expected order.created event, got %v", types)
	}
	if len(h.invEvents.events) != 1 || h.invEvents.events[0].VariantID != "milk-1l" {
		t.Fatalf("expected low stock event for milk, got %+v", h.invEvents.events)
	}
}

func TestOrderServiceCheckoutConcurrentNeverOversells(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		shortages int
	)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(3)))
			mu.Lock()
			defer mu.Unlock()
			var shortage *InsufficientStockError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &shortage):
				shortages++
				if names := shortage.LineNames(); len(names) != 1 || names[0] != "Apples 1kg" {
					t.Errorf("unexpected shortage lines %v", names)
				}
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || shortages != 1 {
		t.Fatalf("expected one success and one shortage, got %d/%d", successes, shortages)
	}
	if got := h.stock(t, "apple-1kg"); got != 2 {
		t.Fatalf("expected final stock 2, got %d", got)
	}
	page, err := h.registry.Orders().List(ctx, repositories.OrderListFilter{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected exactly one order, got %d", len(page.Items))
	}
}

func TestOrderServiceCheckoutShortageLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)
	h.setStock(t, "milk-1l", 1)

	_, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(2), milk(2)))
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := h.stock(t, "apple-1kg"); got != 10 {
		t.Fatalf("expected apple stock untouched, got %d", got)
	}
	if len(h.events.events) != 0 {
		t.Fatalf("expected no events, got %v", h.events.types())
	}
}

func TestOrderServiceCheckoutDeferredStaysPending(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 4)

	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodBankTransfer, apples(2)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.Order.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("expected pending, got %s", result.Order.Status)
	}
	if result.Order.StockDecremented {
		t.Fatalf("deferred orders must not decrement at checkout")
	}
	if result.Order.PaymentRef != "ref-"+result.Order.ID {
		t.Fatalf("unexpected payment ref %q", result.Order.PaymentRef)
	}
	if got := h.stock(t, "apple-1kg"); got != 4 {
		t.Fatalf("expected stock untouched, got %d", got)
	}

	order, err := h.orders.Transition(ctx, TransitionCommand{OrderID: result.Order.ID, TargetStatus: domain.OrderStatusProcessing, ActorID: "ops"})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if !order.StockDecremented || order.PaidAt == nil {
		t.Fatalf("expected decrement on confirmation, got %+v", order)
	}
	if got := h.stock(t, "apple-1kg"); got != 2 {
		t.Fatalf("expected stock 2 after confirmation, got %d", got)
	}
}

func TestOrderServiceCheckoutClientConfirmed(t *testing.T) {
	ctx := context.Background()

	t.Run("rejected confirmation leaves no order", func(t *testing.T) {
		h := newSettlementHarness(t)
		h.setStock(t, "apple-1kg", 5)
		h.providers[domain.PaymentMethodCard].confirmFn = func(context.Context, payments.ConfirmRequest) (domain.PaymentAttempt, error) {
			return domain.PaymentAttempt{Status: domain.PaymentAttemptFailed}, payments.ErrPaymentDeclined
		}

		cmd := testCheckout(domain.PaymentMethodCard, apples(1))
		cmd.PaymentToken = "pi_1"
		_, err := h.orders.Checkout(ctx, cmd)
		if !errors.Is(err, ErrProviderConfirmationFailed) || !errors.Is(err, payments.ErrPaymentDeclined) {
			t.Fatalf("expected provider confirmation failure, got %v", err)
		}
		if got := h.stock(t, "apple-1kg"); got != 5 {
			t.Fatalf("expected stock untouched, got %d", got)
		}
		page, _ := h.registry.Orders().List(ctx, repositories.OrderListFilter{})
		if len(page.Items) != 0 {
			t.Fatalf("expected no order, got %d", len(page.Items))
		}
	})

	t.Run("confirmed payment is compensated when stock runs out", func(t *testing.T) {
		h := newSettlementHarness(t)
		h.setStock(t, "apple-1kg", 1)

		cmd := testCheckout(domain.PaymentMethodCard, apples(2))
		cmd.PaymentToken = "pi_2"
		_, err := h.orders.Checkout(ctx, cmd)
		if !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
		card := h.providers[domain.PaymentMethodCard]
		if card.refundCount() != 1 || card.refunds[0].Reference != "cap-pi_2" {
			t.Fatalf("expected compensating refund, got %+v", card.refunds)
		}
	})

	t.Run("token is required", func(t *testing.T) {
		h := newSettlementHarness(t)
		_, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCard, apples(1)))
		if !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})

	t.Run("confirmed checkout is paid and processing", func(t *testing.T) {
		h := newSettlementHarness(t)
		h.setStock(t, "apple-1kg", 5)
		var confirmed payments.ConfirmRequest
		h.providers[domain.PaymentMethodCard].confirmFn = func(_ context.Context, req payments.ConfirmRequest) (domain.PaymentAttempt, error) {
			confirmed = req
			return domain.PaymentAttempt{ProviderRef: "pi_3", Status: domain.PaymentAttemptConfirmed}, nil
		}
		cmd := testCheckout(domain.PaymentMethodCard, apples(2))
		cmd.PaymentToken = "pi_3"
		result, err := h.orders.Checkout(ctx, cmd)
		if err != nil {
			t.Fatalf("Checkout: %v", err)
		}
		if confirmed.Amount != 100000 || confirmed.Currency != "VND" {
			t.Fatalf("unexpected confirm request %+v", confirmed)
		}
		if result.Order.Status != domain.OrderStatusProcessing || result.Order.PaidAt == nil || result.Order.PaymentRef != "pi_3" {
			t.Fatalf("unexpected order %+v", result.Order)
		}
	})
}

func TestOrderServiceCheckoutAppliesPromotionsAndReportsRejections(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)
	promos := h.registry.Promotions()
	for _, promo := range []domain.Promotion{
		{Code: "FRESH10", Type: domain.PromotionTypePercentage, Value: 10, Active: true},
		{Code: "SHIP20K", Type: domain.PromotionTypeFixed, Value: 20000, Active: true},
		{Code: "BIGSPEND", Type: domain.PromotionTypeFixed, Value: 50000, MinimumPurchase: 1000000, Active: true},
	} {
		if err := promos.Upsert(ctx, promo); err != nil {
			t.Fatalf("seed promotion: %v", err)
		}
	}

	cmd := testCheckout(domain.PaymentMethodCOD, apples(3))
	cmd.PromotionCodes = []string{"fresh10", "SHIP20K", "BIGSPEND", "NOPE"}
	result, err := h.orders.Checkout(ctx, cmd)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	order := result.Order
	if order.Subtotal != 150000 || order.Discount != 35000 || order.Total != 115000 {
		t.Fatalf("unexpected totals subtotal=%d discount=%d total=%d", order.Subtotal, order.Discount, order.Total)
	}
	if len(order.Promotions) != 2 {
		t.Fatalf("expected two applied promotions, got %+v", order.Promotions)
	}
	reasons := map[string]string{}
	for _, r := range result.RejectedPromotions {
		reasons[r.Code] = r.Reason
	}
	if reasons["BIGSPEND"] != PromotionRejectedMinimumNotMet || reasons["NOPE"] != PromotionRejectedNotFound {
		t.Fatalf("unexpected rejections %v", reasons)
	}
}

func withOfflineProviders(t *testing.T) harnessOption {
	t.Helper()
	bank, err := payments.NewBankTransferProvider(payments.BankTransferConfig{BankName: "VCB", AccountNumber: "0071000"})
	if err != nil {
		t.Fatalf("NewBankTransferProvider: %v", err)
	}
	registry, err := payments.NewRegistry(payments.CashOnDeliveryProvider{}, bank)
	if err != nil {
		t.Fatalf("payments.NewRegistry: %v", err)
	}
	return func(deps *OrderServiceDeps) {
		deps.Payments = registry
	}
}

func seedBigPromotion(t *testing.T, h *settlementHarness) {
	t.Helper()
	promo := domain.Promotion{Code: "BIG", Type: domain.PromotionTypeFixed, Value: 1000000, Active: true}
	if err := h.registry.Promotions().Upsert(context.Background(), promo); err != nil {
		t.Fatalf("seed promotion: %v", err)
	}
}

func TestOrderServiceCheckoutFullyDiscountedSettlesImmediately(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t, withOfflineProviders(t))
	h.setStock(t, "apple-1kg", 5)
	seedBigPromotion(t, h)

	for i, method := range []domain.PaymentMethod{domain.PaymentMethodCOD, domain.PaymentMethodBankTransfer} {
		cmd := testCheckout(method, apples(1))
		cmd.PromotionCodes = []string{"BIG"}
		result, err := h.orders.Checkout(ctx, cmd)
		if err != nil {
			t.Fatalf("%s checkout: %v", method, err)
		}
		order := result.Order
		if order.Subtotal != 50000 || order.Total != 0 {
			t.Fatalf("%s: expected fully discounted order, got subtotal=%d total=%d", method, order.Subtotal, order.Total)
		}
		if order.Status != domain.OrderStatusProcessing || !order.StockDecremented || order.PaidAt == nil {
			t.Fatalf("%s: expected settled order, got %+v", method, order)
		}
		if result.Payment.Status != domain.PaymentAttemptConfirmed || result.Payment.Amount != 0 {
			t.Fatalf("%s: unexpected payment attempt %+v", method, result.Payment)
		}
		if got := h.stock(t, "apple-1kg"); got != int64(4-i) {
			t.Fatalf("%s: expected stock %d, got %d", method, 4-i, got)
		}
		if stored := h.load(t, order.ID); stored.Status != domain.OrderStatusProcessing {
			t.Fatalf("%s: stored status %s", method, stored.Status)
		}
	}
}

func TestOrderServiceCheckoutFullyDiscountedSkipsProvider(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 5)
	seedBigPromotion(t, h)
	card := h.providers[domain.PaymentMethodCard]
	card.confirmFn = func(context.Context, payments.ConfirmRequest) (domain.PaymentAttempt, error) {
		t.Fatal("provider must not confirm a zero total")
		return domain.PaymentAttempt{}, nil
	}
	card.initiateFn = func(context.Context, payments.InitiateRequest) (domain.PaymentAttempt, error) {
		t.Fatal("provider must not initiate a zero total")
		return domain.PaymentAttempt{}, nil
	}

	cmd := testCheckout(domain.PaymentMethodCard, apples(2))
	cmd.PromotionCodes = []string{"BIG"}
	result, err := h.orders.Checkout(ctx, cmd)
	if err != nil {
		t.Fatalf("Checkout without token: %v", err)
	}
	if result.Order.Status != domain.OrderStatusProcessing || result.Order.PaymentRef != "" {
		t.Fatalf("unexpected order %+v", result.Order)
	}
	if got := h.stock(t, "apple-1kg"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}

	// Paid orders still need the widget token.
	if _, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCard, apples(1))); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected missing token rejection, got %v", err)
	}
	if got := h.stock(t, "apple-1kg"); got != 3 {
		t.Fatalf("rejected checkout changed stock to %d", got)
	}
}

func TestOrderServiceCheckoutFreezesCatalogData(t *testing.T) {
	ctx := context.Background()

	t.Run("catalog price wins over cart", func(t *testing.T) {
		catalog := &stubCatalog{findFn: func(context.Context, []string) (map[string]CatalogVariant, error) {
			return map[string]CatalogVariant{
				"apple-1kg": {VariantID: "apple-1kg", ProductID: "apple", Name: "Fuji Apples 1kg", Price: 45000, Active: true},
			}, nil
		}}
		h := newSettlementHarness(t, func(d *OrderServiceDeps) { d.Catalog = catalog })
		h.setStock(t, "apple-1kg", 10)

		result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(2)))
		if err != nil {
			t.Fatalf("Checkout: %v", err)
		}
		line := result.Order.Lines[0]
		if line.UnitPrice != 45000 || line.Name != "Fuji Apples 1kg" || line.ProductID != "apple" {
			t.Fatalf("expected catalog snapshot, got %+v", line)
		}
	})

	t.Run("catalog failure falls back to cart", func(t *testing.T) {
		catalog := &stubCatalog{findFn: func(context.Context, []string) (map[string]CatalogVariant, error) {
			return nil, errors.New("catalog down")
		}}
		h := newSettlementHarness(t, func(d *OrderServiceDeps) { d.Catalog = catalog })
		h.setStock(t, "apple-1kg", 10)

		result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(2)))
		if err != nil {
			t.Fatalf("Checkout: %v", err)
		}
		if result.Order.Lines[0].UnitPrice != 50000 {
			t.Fatalf("expected cart price, got %d", result.Order.Lines[0].UnitPrice)
		}
		if !h.logger.has("order.catalog.lookup.failed") {
			t.Fatalf("expected catalog failure to be logged")
		}
	})

	t.Run("inactive variant is rejected", func(t *testing.T) {
		catalog := &stubCatalog{findFn: func(context.Context, []string) (map[string]CatalogVariant, error) {
			return map[string]CatalogVariant{"apple-1kg": {VariantID: "apple-1kg", Price: 1, Active: false}}, nil
		}}
		h := newSettlementHarness(t, func(d *OrderServiceDeps) { d.Catalog = catalog })
		_, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(1)))
		if !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input, got %v", err)
		}
	})
}

func TestOrderServiceCheckoutSanitizesShipping(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)

	cmd := testCheckout(domain.PaymentMethodCOD, apples(1))
	cmd.Shipping.Note = `<script>alert(1)</script>Ring <b>twice</b> & wait`
	cmd.Shipping.Recipient = "  Tran Thi B  "
	result, err := h.orders.Checkout(ctx, cmd)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.Order.Shipping.Note != "Ring twice & wait" {
		t.Fatalf("unexpected note %q", result.Order.Shipping.Note)
	}
	if result.Order.Shipping.Recipient != "Tran Thi B" {
		t.Fatalf("unexpected recipient %q", result.Order.Shipping.Recipient)
	}

	cmd.Shipping.AddressLine = "<i></i>"
	if _, err := h.orders.Checkout(ctx, cmd); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for empty address, got %v", err)
	}
}

func TestOrderServiceCheckoutValidatesInput(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)

	cases := map[string]func(*CheckoutCommand){
		"missing buyer":    func(c *CheckoutCommand) { c.BuyerID = " " },
		"missing branch":   func(c *CheckoutCommand) { c.BranchID = "" },
		"empty cart":       func(c *CheckoutCommand) { c.Lines = nil },
		"zero quantity":    func(c *CheckoutCommand) { c.Lines = []CartLine{apples(0)} },
		"unknown method":   func(c *CheckoutCommand) { c.PaymentMethod = "barter" },
		"negative price":   func(c *CheckoutCommand) { c.Lines = []CartLine{{VariantID: "x", Quantity: 1, UnitPrice: -1}} },
		"missing shipping": func(c *CheckoutCommand) { c.Shipping = ShippingSnapshot{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := testCheckout(domain.PaymentMethodCOD, apples(1))
			mutate(&cmd)
			if _, err := h.orders.Checkout(ctx, cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestOrderServiceConfirmPaymentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 5)

	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodBankTransfer, apples(2)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	h.providers[domain.PaymentMethodBankTransfer].confirmFn = func(_ context.Context, req payments.ConfirmRequest) (domain.PaymentAttempt, error) {
		return domain.PaymentAttempt{ProviderRef: "txn-" + req.Params["txn"], Status: domain.PaymentAttemptConfirmed}, nil
	}

	first, err := h.orders.ConfirmPayment(ctx, ConfirmPaymentCommand{OrderID: result.Order.ID, Params: map[string]string{"txn": "9"}})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if first.AlreadySettled || first.Order.Status != domain.OrderStatusProcessing || first.Order.PaymentRef != "txn-9" {
		t.Fatalf("unexpected first confirmation %+v", first)
	}

	second, err := h.orders.ConfirmPayment(ctx, ConfirmPaymentCommand{OrderID: result.Order.ID, Params: map[string]string{"txn": "9"}})
	if err != nil {
		t.Fatalf("ConfirmPayment replay: %v", err)
	}
	if !second.AlreadySettled {
		t.Fatalf("expected replay to report already settled")
	}
	if got := h.stock(t, "apple-1kg"); got != 3 {
		t.Fatalf("expected a single decrement, stock %d", got)
	}
}

func TestOrderServiceConfirmPaymentDeclinedStaysPending(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 5)
	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodBankTransfer, apples(2)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	h.providers[domain.PaymentMethodBankTransfer].confirmFn = func(context.Context, payments.ConfirmRequest) (domain.PaymentAttempt, error) {
		return domain.PaymentAttempt{}, payments.ErrPaymentDeclined
	}

	_, err = h.orders.ConfirmPayment(ctx, ConfirmPaymentCommand{OrderID: result.Order.ID})
	if !errors.Is(err, ErrProviderConfirmationFailed) {
		t.Fatalf("expected confirmation failure, got %v", err)
	}
	if order := h.load(t, result.Order.ID); order.Status != domain.OrderStatusPendingPayment {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if got := h.stock(t, "apple-1kg"); got != 5 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestOrderServiceTransitionRejectsUnknownEdges(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 5)
	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodBankTransfer, apples(1)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	for _, target := range []domain.OrderStatus{
		domain.OrderStatusPendingPayment,
		domain.OrderStatusShipping,
		domain.OrderStatusCompleted,
		domain.OrderStatusPartiallyRefunded,
	} {
		_, err := h.orders.Transition(ctx, TransitionCommand{OrderID: result.Order.ID, TargetStatus: target})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("pending -> %s: expected invalid transition, got %v", target, err)
		}
	}
	if order := h.load(t, result.Order.ID); order.Status != domain.OrderStatusPendingPayment || len(order.StatusHistory) != 1 {
		t.Fatalf("expected untouched order, got %+v", order)
	}

	if _, err := h.orders.Transition(ctx, TransitionCommand{OrderID: result.Order.ID, TargetStatus: "teleported"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	_, err = h.orders.Transition(ctx, TransitionCommand{
		OrderID:        result.Order.ID,
		TargetStatus:   domain.OrderStatusCancelled,
		ExpectedStatus: domain.OrderStatusProcessing,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict on stale expected status, got %v", err)
	}

	cod, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(1)))
	if err != nil {
		t.Fatalf("Checkout cod: %v", err)
	}
	_, err = h.orders.Transition(ctx, TransitionCommand{OrderID: cod.Order.ID, TargetStatus: domain.OrderStatusProcessing})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("processing -> processing: expected invalid transition, got %v", err)
	}
	if order := h.load(t, cod.Order.ID); len(order.StatusHistory) != 1 {
		t.Fatalf("self edge must not append history, got %+v", order.StatusHistory)
	}
	if got := h.stock(t, "apple-1kg"); got != 4 {
		t.Fatalf("expected stock 4 after one cod unit, got %d", got)
	}
}

func TestOrderServiceCompletedCancellationRestoresLedgers(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)
	h.setStock(t, "milk-1l", 10)

	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(3), milk(2)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	id := result.Order.ID
	if _, err := h.orders.Transition(ctx, TransitionCommand{OrderID: id, TargetStatus: domain.OrderStatusShipping}); err != nil {
		t.Fatalf("ship: %v", err)
	}
	completed, err := h.orders.Transition(ctx, TransitionCommand{OrderID: id, TargetStatus: domain.OrderStatusCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.LoyaltyPoints != 210 || !completed.LoyaltyAccrued || completed.CompletedAt == nil {
		t.Fatalf("unexpected loyalty state %+v", completed)
	}
	if got := h.balance(t, "buyer-1"); got != 210 {
		t.Fatalf("expected balance 210, got %d", got)
	}

	cancelled, err := h.orders.Transition(ctx, TransitionCommand{OrderID: id, TargetStatus: domain.OrderStatusCancelled, Reason: "damaged"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.StockDecremented || cancelled.LoyaltyPoints != 0 || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}
	if got := h.stock(t, "apple-1kg"); got != 10 {
		t.Fatalf("expected apple stock restored to 10, got %d", got)
	}
	if got := h.stock(t, "milk-1l"); got != 10 {
		t.Fatalf("expected milk stock restored to 10, got %d", got)
	}
	if got := h.balance(t, "buyer-1"); got != 0 {
		t.Fatalf("expected loyalty net zero, got %d", got)
	}
	entries, err := h.registry.Loyalty().ListEntries(ctx, "buyer-1", 10)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected accrue and reverse entries, got %+v", entries)
	}

	// Cancelled is terminal, including for a second cancellation.
	_, err = h.orders.Transition(ctx, TransitionCommand{OrderID: id, TargetStatus: domain.OrderStatusCancelled})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("repeat cancel: expected invalid transition, got %v", err)
	}
	if got := h.stock(t, "apple-1kg"); got != 10 {
		t.Fatalf("repeat cancel changed stock to %d", got)
	}
}

func TestOrderServiceProcessingCancellationRestoresStock(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 6)

	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(4)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if _, err := h.orders.Transition(ctx, TransitionCommand{OrderID: result.Order.ID, TargetStatus: domain.OrderStatusCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := h.stock(t, "apple-1kg"); got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}

	pending, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodBankTransfer, apples(4)))
	if err != nil {
		t.Fatalf("Checkout pending: %v", err)
	}
	if _, err := h.orders.Transition(ctx, TransitionCommand{OrderID: pending.Order.ID, TargetStatus: domain.OrderStatusCancelled}); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if got := h.stock(t, "apple-1kg"); got != 6 {
		t.Fatalf("pending cancellation must not restore, stock %d", got)
	}
}

func TestOrderServiceRefund(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)
	h.setStock(t, "milk-1l", 10)
	if err := h.registry.Promotions().Upsert(ctx, domain.Promotion{Code: "FRESH10", Type: domain.PromotionTypePercentage, Value: 10, Active: true}); err != nil {
		t.Fatalf("seed promotion: %v", err)
	}

	cmd := testCheckout(domain.PaymentMethodCOD, apples(4), milk(2))
	cmd.PromotionCodes = []string{"FRESH10"}
	result, err := h.orders.Checkout(ctx, cmd)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	id := result.Order.ID
	// subtotal 260000, discount 26000, total 234000, 234 points
	if _, err := h.orders.Transition(ctx, TransitionCommand{OrderID: id, TargetStatus: domain.OrderStatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := h.orders.Refund(ctx, RefundCommand{OrderID: id, Items: map[string]int{"apple-1kg": 5}}); !errors.Is(err, ErrRefundExceedsQuantity) {
		t.Fatalf("expected over-refund rejection, got %v", err)
	}
	if _, err := h.orders.Refund(ctx, RefundCommand{OrderID: id, Items: map[string]int{"kiwi": 1}}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected unknown variant rejection, got %v", err)
	}
	if got := h.stock(t, "apple-1kg"); got != 6 {
		t.Fatalf("rejected refunds must not restore stock, got %d", got)
	}

	refunded, err := h.orders.Refund(ctx, RefundCommand{OrderID: id, Items: map[string]int{"apple-1kg": 2}, Reason: "bruised", ActorID: "ops"})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refunded.Status != domain.OrderStatusPartiallyRefunded {
		t.Fatalf("expected partially_refunded, got %s", refunded.Status)
	}
	if refunded.Subtotal != 160000 || refunded.Discount != 16000 || refunded.Total != 144000 {
		t.Fatalf("unexpected totals subtotal=%d discount=%d total=%d", refunded.Subtotal, refunded.Discount, refunded.Total)
	}
	if refunded.Lines[0].RefundedQuantity != 2 {
		t.Fatalf("expected refunded quantity 2, got %+v", refunded.Lines[0])
	}
	if len(refunded.RefundHistory) != 1 {
		t.Fatalf("expected a refund record")
	}
	record := refunded.RefundHistory[0]
	if record.Amount != 90000 || record.Points != 90 || record.ActorID != "ops" {
		t.Fatalf("unexpected refund record %+v", record)
	}
	if refunded.LoyaltyPoints != 144 {
		t.Fatalf("expected 144 points left, got %d", refunded.LoyaltyPoints)
	}
	if got := h.balance(t, "buyer-1"); got != 144 {
		t.Fatalf("expected balance 144, got %d", got)
	}
	if got := h.stock(t, "apple-1kg"); got != 8 {
		t.Fatalf("expected apple stock 8, got %d", got)
	}
	if types := h.events.types(); types[len(types)-1] != orderEventRefunded {
		t.Fatalf("expected refund event, got %v", types)
	}

	if _, err := h.orders.Refund(ctx, RefundCommand{OrderID: id, Items: map[string]int{"milk-1l": 1}}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected second refund to be rejected, got %v", err)
	}
}

func TestOrderServiceRefundWithoutPromotionsDropsLineAmount(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)
	h.setStock(t, "milk-1l", 10)

	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(4), milk(1)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	completed, err := h.orders.Transition(ctx, TransitionCommand{OrderID: result.Order.ID, TargetStatus: domain.OrderStatusCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	refunded, err := h.orders.Refund(ctx, RefundCommand{OrderID: completed.ID, Items: map[string]int{"apple-1kg": 2}})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if drop := completed.Total - refunded.Total; drop != 2*50000 {
		t.Fatalf("expected total to drop by 100000, dropped %d", drop)
	}
	if refunded.Discount != 0 || refunded.RefundHistory[0].Amount != 100000 {
		t.Fatalf("unexpected refund %+v", refunded.RefundHistory[0])
	}
	if got := h.stock(t, "apple-1kg"); got != 8 {
		t.Fatalf("expected apple stock 8, got %d", got)
	}
}

func TestOrderServiceRefundRequiresCompletedOrder(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)
	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(2)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	_, err = h.orders.Refund(ctx, RefundCommand{OrderID: result.Order.ID, Items: map[string]int{"apple-1kg": 1}})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestOrderServiceGetOrderHidesOtherBuyers(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)
	result, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(1)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if _, err := h.orders.GetOrder(ctx, result.Order.ID, OrderReadOptions{BuyerID: "buyer-1"}); err != nil {
		t.Fatalf("GetOrder own: %v", err)
	}
	if _, err := h.orders.GetOrder(ctx, result.Order.ID, OrderReadOptions{BuyerID: "buyer-2"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for other buyer, got %v", err)
	}
	if _, err := h.orders.GetOrder(ctx, "missing", OrderReadOptions{}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.orders.ListOrders(ctx, OrderListFilter{Statuses: []domain.OrderStatus{"bogus"}}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid status filter, got %v", err)
	}
}

func TestOrderServiceExpireStalePending(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.setStock(t, "apple-1kg", 10)

	stale, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodBankTransfer, apples(1)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	paid, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(1)))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	result, err := h.orders.ExpireStalePending(ctx, ExpirePendingCommand{Cutoff: testNow.Add(time.Minute)})
	if err != nil {
		t.Fatalf("ExpireStalePending: %v", err)
	}
	if len(result.Cancelled) != 1 || result.Cancelled[0] != stale.Order.ID {
		t.Fatalf("unexpected sweep result %+v", result)
	}
	order := h.load(t, stale.Order.ID)
	if order.Status != domain.OrderStatusCancelled || order.StatusReason != expiryReason {
		t.Fatalf("unexpected expired order %+v", order)
	}
	if other := h.load(t, paid.Order.ID); other.Status != domain.OrderStatusProcessing {
		t.Fatalf("sweep touched a settled order: %s", other.Status)
	}

	// With a zero cutoff the TTL decides; nothing is older than an hour.
	again, err := h.orders.ExpireStalePending(ctx, ExpirePendingCommand{})
	if err != nil {
		t.Fatalf("ExpireStalePending: %v", err)
	}
	if len(again.Cancelled) != 0 {
		t.Fatalf("expected nothing to expire, got %+v", again)
	}
}

func TestOrderServicePublishFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	h.events.err = errors.New("broker down")
	h.setStock(t, "apple-1kg", 10)

	if _, err := h.orders.Checkout(ctx, testCheckout(domain.PaymentMethodCOD, apples(1))); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !h.logger.has("order.event.publish.failed") {
		t.Fatalf("expected publish failure to be logged")
	}
}

func TestOrderServicePreparePayment(t *testing.T) {
	ctx := context.Background()
	h := newSettlementHarness(t)
	var got payments.InitiateRequest
	h.providers[domain.PaymentMethodCard].initiateFn = func(_ context.Context, req payments.InitiateRequest) (domain.PaymentAttempt, error) {
		got = req
		return domain.PaymentAttempt{ProviderRef: "pi_9", ClientSecret: "pi_9_secret", Amount: req.Amount}, nil
	}

	attempt, err := h.orders.PreparePayment(ctx, PreparePaymentCommand{
		BuyerID:       "buyer-1",
		Lines:         []CartLine{apples(2), milk(1)},
		PaymentMethod: domain.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("PreparePayment: %v", err)
	}
	if attempt.ClientSecret != "pi_9_secret" || got.Amount != 130000 || got.Currency != "VND" {
		t.Fatalf("unexpected attempt %+v request %+v", attempt, got)
	}
	if !strings.Contains(got.Description, "Apples 1kg") {
		t.Fatalf("unexpected description %q", got.Description)
	}

	_, err = h.orders.PreparePayment(ctx, PreparePaymentCommand{
		BuyerID:       "buyer-1",
		Lines:         []CartLine{apples(1)},
		PaymentMethod: domain.PaymentMethodCOD,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for cod preparation, got %v", err)
	}

	seedBigPromotion(t, h)
	got = payments.InitiateRequest{}
	attempt, err = h.orders.PreparePayment(ctx, PreparePaymentCommand{
		BuyerID:        "buyer-1",
		Lines:          []CartLine{apples(1)},
		PaymentMethod:  domain.PaymentMethodCard,
		PromotionCodes: []string{"BIG"},
	})
	if err != nil {
		t.Fatalf("PreparePayment fully discounted: %v", err)
	}
	if attempt.Status != domain.PaymentAttemptConfirmed || attempt.Amount != 0 || attempt.ClientSecret != "" || got.Amount != 0 {
		t.Fatalf("expected a settled zero attempt without a provider call, got %+v request %+v", attempt, got)
	}
}

func TestNewOrderServiceRequiresDependencies(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatalf("expected error when dependencies missing")
	}
}
