package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/domain"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/payments"
	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventRefunded      = "order.refunded"

	defaultSettlementCurrency = "VND"
	maxCheckoutLines          = 100
	maxShippingFieldLength    = 512
	expirySweepActor          = "system:pending-expiry"
	expiryReason              = "payment_timeout"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPendingPayment: {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing:     {domain.OrderStatusShipping, domain.OrderStatusCompleted, domain.OrderStatusCancelled},
	domain.OrderStatusShipping:       {domain.OrderStatusCompleted},
	domain.OrderStatusCompleted:      {domain.OrderStatusCancelled, domain.OrderStatusPartiallyRefunded},
}

// Shipping text is stored as plain text; markup pasted into address fields is dropped.
var shippingPolicy = bluemonday.StrictPolicy()

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Inventory   InventoryService
	Loyalty     LoyaltyService
	Promotions  PromotionService
	Catalog     CatalogReader
	Payments    PaymentProviders
	UnitOfWork  repositories.UnitOfWork
	Config      SettlementConfig
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Meter       metric.Meter
}

type orderService struct {
	orders     repositories.OrderRepository
	inventory  InventoryService
	loyalty    LoyaltyService
	promotions PromotionService
	catalog    CatalogReader
	payments   PaymentProviders
	unitOfWork repositories.UnitOfWork
	cfg        SettlementConfig
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
	metrics    settlementMetrics
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	return newOrderService(deps)
}

func newOrderService(deps OrderServiceDeps) (*orderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.Loyalty == nil {
		return nil, errors.New("order service: loyalty service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment providers are required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	cfg := deps.Config
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if cfg.Currency == "" {
		cfg.Currency = defaultSettlementCurrency
	}

	return &orderService{
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		loyalty:    deps.Loyalty,
		promotions: deps.Promotions,
		catalog:    deps.Catalog,
		payments:   deps.Payments,
		unitOfWork: unit,
		cfg:        cfg,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		events:  deps.Events,
		logger:  logger,
		metrics: newSettlementMetrics(deps.Meter, logger),
	}, nil
}

// PreparePayment prices the cart and starts a client-confirmed payment for the total. The buyer
// completes it in the provider widget and hands the resulting token to Checkout.
func (s *orderService) PreparePayment(ctx context.Context, cmd PreparePaymentCommand) (PaymentAttempt, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return PaymentAttempt{}, fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}
	if err := validateCartLines(cmd.Lines); err != nil {
		return PaymentAttempt{}, err
	}
	provider, err := s.provider(cmd.PaymentMethod)
	if err != nil {
		return PaymentAttempt{}, err
	}
	if provider.Timing() != payments.TimingClientConfirmed {
		return PaymentAttempt{}, fmt.Errorf("%w: payment method %s does not need preparation", ErrOrderInvalidInput, provider.Method())
	}

	lines := s.freezeLines(ctx, cmd.Lines)
	if err := ensureActiveLines(lines); err != nil {
		return PaymentAttempt{}, err
	}
	subtotal := linesSubtotal(lines)
	resolution := s.resolvePromotions(ctx, cmd.PromotionCodes, buyerID, subtotal)
	total := OrderTotal(subtotal, resolution.Discount)
	if total == 0 {
		// Checkout settles a zero total without a token.
		return PaymentAttempt{Method: provider.Method(), Currency: s.cfg.Currency, Status: domain.PaymentAttemptConfirmed}, nil
	}

	attempt, err := provider.Initiate(ctx, payments.InitiateRequest{
		BuyerID:        buyerID,
		Amount:         total,
		Currency:       s.cfg.Currency,
		Description:    orderDescription(lines),
		Locale:         cmd.Locale,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		return PaymentAttempt{}, mapProviderError(err)
	}
	return attempt, nil
}

// Checkout prices the cart, settles or starts the payment, and records the order. For eager
// methods the stock decrement and the order insert commit together.
func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: buyer id is required", ErrOrderInvalidInput)
	}
	branchID := strings.TrimSpace(cmd.BranchID)
	if branchID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: branch id is required", ErrOrderInvalidInput)
	}
	if err := validateCartLines(cmd.Lines); err != nil {
		return CheckoutResult{}, err
	}
	shipping, err := sanitizeShipping(cmd.Shipping)
	if err != nil {
		return CheckoutResult{}, err
	}
	provider, err := s.provider(cmd.PaymentMethod)
	if err != nil {
		return CheckoutResult{}, err
	}
	timing := provider.Timing()
	token := strings.TrimSpace(cmd.PaymentToken)

	lines := s.freezeLines(ctx, cmd.Lines)
	if err := ensureActiveLines(lines); err != nil {
		return CheckoutResult{}, err
	}
	subtotal := linesSubtotal(lines)
	resolution := s.resolvePromotions(ctx, cmd.PromotionCodes, buyerID, subtotal)

	now := s.now()
	order := Order{
		ID:            s.newID(),
		BuyerID:       buyerID,
		Lines:         lines,
		Shipping:      shipping,
		PaymentMethod: provider.Method(),
		BranchID:      branchID,
		Currency:      s.cfg.Currency,
		Subtotal:      subtotal,
		Discount:      resolution.Discount,
		Total:         OrderTotal(subtotal, resolution.Discount),
		Promotions:    resolution.Applied,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if order.Total > 0 && timing == payments.TimingClientConfirmed && token == "" {
		return CheckoutResult{}, fmt.Errorf("%w: payment token is required for %s", ErrOrderInvalidInput, provider.Method())
	}
	collects := order.Total > 0

	var attempt PaymentAttempt
	switch {
	case !collects:
		// Nothing left to charge once promotions cover the subtotal.
		attempt = PaymentAttempt{
			Method:   order.PaymentMethod,
			Currency: order.Currency,
			Status:   domain.PaymentAttemptConfirmed,
		}
		order.PaidAt = &now
	case timing == payments.TimingClientConfirmed:
		attempt, err = provider.Confirm(ctx, payments.ConfirmRequest{
			OrderID:        order.ID,
			Token:          token,
			Amount:         order.Total,
			Currency:       order.Currency,
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			if attempt.ProviderRef != "" {
				s.compensatePayment(ctx, provider, order, attempt.ProviderRef, "confirmation_rejected")
			}
			s.logger(ctx, "order.checkout.confirmation.failed", map[string]any{
				"buyerId": buyerID,
				"method":  string(order.PaymentMethod),
				"error":   err.Error(),
			})
			s.metrics.recordCheckout(ctx, string(order.PaymentMethod), checkoutOutcomeConfirmationFailed)
			return CheckoutResult{}, fmt.Errorf("%w: %w", ErrProviderConfirmationFailed, err)
		}
		order.PaidAt = &now
	default:
		attempt, err = provider.Initiate(ctx, payments.InitiateRequest{
			OrderID:        order.ID,
			BuyerID:        buyerID,
			Amount:         order.Total,
			Currency:       order.Currency,
			Description:    orderDescription(lines),
			Locale:         cmd.Locale,
			ClientIP:       cmd.ClientIP,
			BankCode:       cmd.BankCode,
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			s.metrics.recordCheckout(ctx, string(order.PaymentMethod), checkoutOutcomeProviderRejected)
			return CheckoutResult{}, mapProviderError(err)
		}
	}
	order.PaymentRef = attempt.ProviderRef

	status := domain.OrderStatusPendingPayment
	if !collects || timing.DecrementsEagerly() {
		status = domain.OrderStatusProcessing
		order.StockDecremented = true
	}
	order.Status = status
	order.StatusHistory = []domain.StatusChange{{To: status, ActorID: buyerID, At: now}}

	var records []InventoryRecord
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		records = nil
		if order.StockDecremented {
			decremented, err := s.inventory.ReserveAndDecrement(txCtx, order.BranchID, orderStockLines(order, false))
			if err != nil {
				return err
			}
			records = decremented
		}
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		if collects && timing == payments.TimingClientConfirmed {
			s.compensatePayment(ctx, provider, order, order.PaymentRef, "settlement_failed")
		}
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.recordShortage(ctx, shortageStageCheckout)
			s.metrics.recordCheckout(ctx, string(order.PaymentMethod), checkoutOutcomeInsufficientStock)
		} else {
			s.metrics.recordCheckout(ctx, string(order.PaymentMethod), checkoutOutcomeSettlementFailed)
		}
		return CheckoutResult{}, err
	}
	s.metrics.recordCheckout(ctx, string(order.PaymentMethod), checkoutOutcomeCreated)

	s.inventory.PublishLowStock(ctx, records)
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		CurrentStatus: string(order.Status),
		ActorID:       buyerID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentMethod": string(order.PaymentMethod),
			"total":         order.Total,
			"branchId":      order.BranchID,
		},
	})

	return CheckoutResult{
		Order:              order,
		Payment:            attempt,
		RejectedPromotions: resolution.Rejected,
	}, nil
}

// ConfirmPayment settles a pending order with the provider proof in cmd. An order that already
// left pending_payment is reported as AlreadySettled and never decremented twice.
func (s *orderService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (ConfirmPaymentResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return ConfirmPaymentResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	actor := strings.TrimSpace(cmd.ActorID)

	var (
		result  ConfirmPaymentResult
		records []InventoryRecord
		now     time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		result, records = ConfirmPaymentResult{}, nil
		now = s.now()

		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err)
		}
		if order.Status != domain.OrderStatusPendingPayment {
			result = ConfirmPaymentResult{Order: order, AlreadySettled: true}
			return nil
		}

		provider, err := s.provider(order.PaymentMethod)
		if err != nil {
			return err
		}
		attempt, err := provider.Confirm(txCtx, payments.ConfirmRequest{
			OrderID:  order.ID,
			Token:    cmd.Token,
			Amount:   order.Total,
			Currency: order.Currency,
			Params:   cmd.Params,
		})
		if err != nil {
			if errors.Is(err, payments.ErrConfirmUnsupported) {
				return fmt.Errorf("%w: %s orders are confirmed by an operator transition", ErrOrderInvalidInput, order.PaymentMethod)
			}
			return fmt.Errorf("%w: %w", ErrProviderConfirmationFailed, err)
		}
		if ref := strings.TrimSpace(attempt.ProviderRef); ref != "" {
			order.PaymentRef = ref
		}

		decremented, err := s.settlePending(txCtx, &order, now)
		if err != nil {
			return err
		}
		applyStatus(&order, domain.OrderStatusProcessing, "payment_confirmed", actor, now)
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err)
		}
		records = decremented
		result = ConfirmPaymentResult{Order: order}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.recordShortage(ctx, shortageStageConfirmation)
		}
		return ConfirmPaymentResult{}, err
	}
	if result.AlreadySettled {
		return result, nil
	}

	s.inventory.PublishLowStock(ctx, records)
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        result.Order.ID,
		BuyerID:        result.Order.BuyerID,
		PreviousStatus: string(domain.OrderStatusPendingPayment),
		CurrentStatus:  string(result.Order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": "payment_confirmed"},
	})
	return result, nil
}

// Transition applies an operator status change together with its ledger side effects.
func (s *orderService) Transition(ctx context.Context, cmd TransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.TargetStatus))))
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}
	if target == domain.OrderStatusPartiallyRefunded {
		return Order{}, fmt.Errorf("%w: partial refunds go through the refund operation", ErrInvalidTransition)
	}
	actor := strings.TrimSpace(cmd.ActorID)
	reason := strings.TrimSpace(cmd.Reason)

	var (
		order   Order
		prev    domain.OrderStatus
		records []InventoryRecord
		now     time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		records = nil
		now = s.now()

		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err)
		}
		order, prev = current, current.Status
		if cmd.ExpectedStatus != "" && prev != cmd.ExpectedStatus {
			return fmt.Errorf("%w: expected status %s but was %s", ErrOrderConflict, cmd.ExpectedStatus, prev)
		}
		if !canTransition(prev, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, target)
		}

		switch {
		case prev == domain.OrderStatusPendingPayment && target == domain.OrderStatusProcessing:
			if records, err = s.settlePending(txCtx, &order, now); err != nil {
				return err
			}
		case target == domain.OrderStatusCompleted:
			if err := s.accrueLoyalty(txCtx, &order); err != nil {
				return err
			}
		case target == domain.OrderStatusCancelled:
			if err := s.reverseLedgers(txCtx, &order); err != nil {
				return err
			}
		}

		applyStatus(&order, target, reason, actor, now)
		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.metrics.recordShortage(ctx, shortageStageTransition)
		}
		return Order{}, err
	}

	s.inventory.PublishLowStock(ctx, records)
	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		PreviousStatus: string(prev),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata:       metadata,
	})
	return order, nil
}

// Refund returns units of a completed order. Stock for the units is restored, the totals shrink,
// and loyalty points earned on the removed amount are reversed.
func (s *orderService) Refund(ctx context.Context, cmd RefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	items := make(map[string]int, len(cmd.Items))
	for variantID, qty := range cmd.Items {
		variantID = strings.TrimSpace(variantID)
		if variantID == "" || qty <= 0 {
			return Order{}, fmt.Errorf("%w: every item needs a variant and a positive quantity", ErrOrderInvalidInput)
		}
		items[variantID] += qty
	}
	actor := strings.TrimSpace(cmd.ActorID)
	reason := strings.TrimSpace(cmd.Reason)

	var (
		order  Order
		refund domain.RefundRecord
		now    time.Time
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		now = s.now()
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return mapRepositoryError(err)
		}
		order = current
		if order.Status != domain.OrderStatusCompleted {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, domain.OrderStatusPartiallyRefunded)
		}

		restore := make([]StockLine, 0, len(items))
		var amount int64
		for i := range order.Lines {
			line := &order.Lines[i]
			qty, ok := items[line.VariantID]
			if !ok {
				continue
			}
			if qty > line.Remaining() {
				return fmt.Errorf("%w: %s has %d refundable units, %d requested", ErrRefundExceedsQuantity, line.VariantID, line.Remaining(), qty)
			}
			line.RefundedQuantity += qty
			amount += line.UnitPrice * int64(qty)
			restore = append(restore, StockLine{VariantID: line.VariantID, Name: line.Name, Quantity: qty})
		}
		if len(restore) != len(items) {
			return fmt.Errorf("%w: refund references a variant that is not on the order", ErrOrderInvalidInput)
		}

		if order.StockDecremented {
			if err := s.inventory.Restore(txCtx, order.BranchID, restore); err != nil {
				return err
			}
		}

		previousTotal := order.Total
		order.Subtotal -= amount
		order.Discount = recomputeDiscount(order.Subtotal, order.Promotions)
		order.Total = OrderTotal(order.Subtotal, order.Discount)

		var reversed int64
		if order.LoyaltyAccrued {
			if excess := order.LoyaltyPoints - s.loyalty.PointsFor(order.Total); excess > 0 {
				if err := s.loyalty.Reverse(txCtx, order.BuyerID, order.ID, excess, domain.LoyaltyReasonOrderRefunded); err != nil {
					return err
				}
				order.LoyaltyPoints -= excess
				reversed = excess
			}
		}

		refund = domain.RefundRecord{
			ID:         s.newID(),
			Items:      maps.Clone(items),
			Amount:     previousTotal - order.Total,
			Points:     reversed,
			Reason:     reason,
			ActorID:    actor,
			RefundedAt: now,
		}
		order.RefundHistory = append(slices.Clone(order.RefundHistory), refund)
		applyStatus(&order, domain.OrderStatusPartiallyRefunded, reason, actor, now)

		if err := s.orders.Update(txCtx, order); err != nil {
			return mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventRefunded,
		OrderID:        order.ID,
		BuyerID:        order.BuyerID,
		PreviousStatus: string(domain.OrderStatusCompleted),
		CurrentStatus:  string(order.Status),
		ActorID:        actor,
		OccurredAt:     now,
		Metadata: map[string]any{
			"refundId": refund.ID,
			"amount":   refund.Amount,
			"points":   refund.Points,
		},
	})
	return order, nil
}

// GetOrder reads an order. A buyer id in opts hides orders of other buyers as not found.
func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err)
	}
	if buyer := strings.TrimSpace(opts.BuyerID); buyer != "" && order.BuyerID != buyer {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	filter.BuyerID = strings.TrimSpace(filter.BuyerID)
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapRepositoryError(err)
	}
	return page, nil
}

// ExpireStalePending cancels pending orders created before the cutoff through the regular
// cancellation transition. Orders settled concurrently are skipped.
func (s *orderService) ExpireStalePending(ctx context.Context, cmd ExpirePendingCommand) (ExpirePendingResult, error) {
	cutoff := cmd.Cutoff
	if cutoff.IsZero() {
		if s.cfg.PendingTTL <= 0 {
			return ExpirePendingResult{}, nil
		}
		cutoff = s.now().Add(-s.cfg.PendingTTL)
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = repositories.MaxOrderPageSize
	}
	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		actor = expirySweepActor
	}

	var result ExpirePendingResult
	token := ""
	for len(result.Cancelled)+result.Skipped < limit {
		page, err := s.orders.List(ctx, OrderListFilter{
			Statuses:      []domain.OrderStatus{domain.OrderStatusPendingPayment},
			CreatedBefore: &cutoff,
			Pagination: Pagination{
				PageSize:  min(limit-len(result.Cancelled)-result.Skipped, repositories.MaxOrderPageSize),
				PageToken: token,
			},
		})
		if err != nil {
			return result, mapRepositoryError(err)
		}
		for _, order := range page.Items {
			_, err := s.Transition(ctx, TransitionCommand{
				OrderID:        order.ID,
				TargetStatus:   domain.OrderStatusCancelled,
				ExpectedStatus: domain.OrderStatusPendingPayment,
				Reason:         expiryReason,
				ActorID:        actor,
			})
			if err != nil {
				result.Skipped++
				s.logger(ctx, "order.expiry.skipped", map[string]any{
					"orderId": order.ID,
					"error":   err.Error(),
				})
				continue
			}
			result.Cancelled = append(result.Cancelled, order.ID)
		}
		if page.NextPageToken == "" || len(page.Items) == 0 {
			break
		}
		token = page.NextPageToken
	}

	s.logger(ctx, "order.expiry.completed", map[string]any{
		"cutoff":    cutoff,
		"cancelled": len(result.Cancelled),
		"skipped":   result.Skipped,
	})
	return result, nil
}

// settlePending takes the order's stock. Shortages abort the surrounding transaction.
func (s *orderService) settlePending(ctx context.Context, order *Order, now time.Time) ([]InventoryRecord, error) {
	records, err := s.inventory.ReserveAndDecrement(ctx, order.BranchID, orderStockLines(*order, false))
	if err != nil {
		return nil, err
	}
	order.StockDecremented = true
	order.PaidAt = &now
	return records, nil
}

func (s *orderService) accrueLoyalty(ctx context.Context, order *Order) error {
	if order.LoyaltyAccrued {
		return nil
	}
	points := s.loyalty.PointsFor(order.Total)
	if err := s.loyalty.Accrue(ctx, order.BuyerID, order.ID, points); err != nil {
		return err
	}
	order.LoyaltyPoints = points
	order.LoyaltyAccrued = true
	return nil
}

// reverseLedgers undoes the stock and loyalty effects of an order being cancelled.
func (s *orderService) reverseLedgers(ctx context.Context, order *Order) error {
	if order.StockDecremented {
		if lines := orderStockLines(*order, true); len(lines) > 0 {
			if err := s.inventory.Restore(ctx, order.BranchID, lines); err != nil {
				return err
			}
		}
		order.StockDecremented = false
	}
	if order.LoyaltyPoints > 0 {
		if err := s.loyalty.Reverse(ctx, order.BuyerID, order.ID, order.LoyaltyPoints, domain.LoyaltyReasonOrderCancelled); err != nil {
			return err
		}
		order.LoyaltyPoints = 0
	}
	return nil
}

// compensatePayment refunds a captured payment whose order could not be recorded.
func (s *orderService) compensatePayment(ctx context.Context, provider payments.Provider, order Order, reference, cause string) {
	fields := map[string]any{
		"orderId":   order.ID,
		"buyerId":   order.BuyerID,
		"method":    string(provider.Method()),
		"reference": reference,
		"cause":     cause,
	}
	refunder, ok := provider.(payments.Refunder)
	if !ok || strings.TrimSpace(reference) == "" {
		s.logger(ctx, "order.payment.compensation.skipped", fields)
		return
	}
	err := refunder.Refund(ctx, payments.RefundRequest{
		Reference:      reference,
		Currency:       order.Currency,
		Reason:         cause,
		IdempotencyKey: "compensate-" + order.ID,
	})
	if err != nil {
		fields["error"] = err.Error()
		s.logger(ctx, "order.payment.compensation.failed", fields)
		return
	}
	s.logger(ctx, "order.payment.compensated", fields)
}

func (s *orderService) provider(method PaymentMethod) (payments.Provider, error) {
	if strings.TrimSpace(string(method)) == "" {
		return nil, fmt.Errorf("%w: payment method is required", ErrOrderInvalidInput)
	}
	provider, err := s.payments.Provider(method)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
	}
	return provider, nil
}

// freezeLines copies current catalog data into the lines. When the catalog cannot be read the
// cart snapshot is used as sent.
func (s *orderService) freezeLines(ctx context.Context, cart []CartLine) []OrderLine {
	merged := mergeCartLines(cart)
	lines := make([]OrderLine, 0, len(merged))
	for _, item := range merged {
		lines = append(lines, OrderLine{
			VariantID: item.VariantID,
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			ImageURL:  strings.TrimSpace(item.ImageURL),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	if s.catalog == nil {
		return lines
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariantID)
	}
	variants, err := s.catalog.FindVariants(ctx, ids)
	if err != nil {
		s.logger(ctx, "order.catalog.lookup.failed", map[string]any{
			"variants": len(ids),
			"error":    err.Error(),
		})
		return lines
	}
	for i := range lines {
		variant, ok := variants[lines[i].VariantID]
		if !ok {
			continue
		}
		if !variant.Active {
			lines[i].UnitPrice = -1
			continue
		}
		lines[i].UnitPrice = variant.Price
		lines[i].ProductID = chooseFirstNonEmpty(variant.ProductID, lines[i].ProductID)
		lines[i].Name = chooseFirstNonEmpty(variant.Name, lines[i].Name)
		lines[i].ImageURL = chooseFirstNonEmpty(variant.ImageURL, lines[i].ImageURL)
	}
	return lines
}

func (s *orderService) resolvePromotions(ctx context.Context, codes []string, buyerID string, subtotal int64) PromotionResolution {
	if len(codes) == 0 {
		return PromotionResolution{}
	}
	if s.promotions == nil {
		rejected := make([]PromotionRejection, 0, len(codes))
		for _, code := range codes {
			rejected = append(rejected, PromotionRejection{Code: NormalizePromotionCode(code), Reason: PromotionRejectedUnavailable})
		}
		return PromotionResolution{Rejected: rejected}
	}
	resolution, err := s.promotions.Resolve(ctx, ResolvePromotionsCommand{
		Codes:    codes,
		BuyerID:  buyerID,
		Subtotal: subtotal,
	})
	if err != nil {
		s.logger(ctx, "order.promotions.resolve.failed", map[string]any{
			"buyerId": buyerID,
			"error":   err.Error(),
		})
		return PromotionResolution{}
	}
	return resolution
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.ID == "" {
		event.ID = s.newID()
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// applyStatus moves order to target and records the change in its history.
func applyStatus(order *Order, target domain.OrderStatus, reason, actor string, now time.Time) {
	order.StatusHistory = append(slices.Clone(order.StatusHistory), domain.StatusChange{
		From:    order.Status,
		To:      target,
		Reason:  reason,
		ActorID: actor,
		At:      now,
	})
	order.Status = target
	order.StatusReason = reason
	order.UpdatedAt = now

	switch target {
	case domain.OrderStatusCompleted:
		order.CompletedAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

// orderStockLines lists the order's units. With remainingOnly, refunded units are left out.
func orderStockLines(order Order, remainingOnly bool) []StockLine {
	out := make([]StockLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		qty := line.Quantity
		if remainingOnly {
			qty = line.Remaining()
		}
		if qty <= 0 {
			continue
		}
		out = append(out, StockLine{VariantID: line.VariantID, Name: line.Name, Quantity: qty})
	}
	return out
}

// recomputeDiscount prices the stored promotion snapshots against a new subtotal.
func recomputeDiscount(subtotal int64, snapshots []PromotionSnapshot) int64 {
	applied := make([]Promotion, 0, len(snapshots))
	for _, snap := range snapshots {
		applied = append(applied, Promotion{Code: snap.Code, Type: snap.Type, Value: snap.Value})
	}
	return ApplyDiscount(subtotal, applied)
}

func linesSubtotal(lines []OrderLine) int64 {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}
	return subtotal
}

func validateCartLines(lines []CartLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: cart must contain at least one line", ErrOrderInvalidInput)
	}
	if len(lines) > maxCheckoutLines {
		return fmt.Errorf("%w: cart exceeds %d lines", ErrOrderInvalidInput, maxCheckoutLines)
	}
	for _, line := range lines {
		if strings.TrimSpace(line.VariantID) == "" {
			return fmt.Errorf("%w: every line needs a variant id", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, line.VariantID)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: price for %s must not be negative", ErrOrderInvalidInput, line.VariantID)
		}
	}
	return nil
}

func ensureActiveLines(lines []OrderLine) error {
	for _, line := range lines {
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: %s is no longer sold", ErrOrderInvalidInput, chooseFirstNonEmpty(line.Name, line.VariantID))
		}
	}
	return nil
}

// mergeCartLines folds repeated variants into one line so refunds address a single line.
func mergeCartLines(cart []CartLine) []CartLine {
	index := make(map[string]int, len(cart))
	out := make([]CartLine, 0, len(cart))
	for _, line := range cart {
		line.VariantID = strings.TrimSpace(line.VariantID)
		if i, ok := index[line.VariantID]; ok {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.VariantID] = len(out)
		out = append(out, line)
	}
	return out
}

func sanitizeShipping(in ShippingSnapshot) (ShippingSnapshot, error) {
	out := ShippingSnapshot{
		Recipient:   sanitizeText(in.Recipient),
		Phone:       sanitizeText(in.Phone),
		AddressLine: sanitizeText(in.AddressLine),
		Ward:        sanitizeText(in.Ward),
		District:    sanitizeText(in.District),
		City:        sanitizeText(in.City),
		Note:        sanitizeText(in.Note),
	}
	if out.Recipient == "" || out.Phone == "" || out.AddressLine == "" {
		return ShippingSnapshot{}, fmt.Errorf("%w: shipping recipient, phone and address are required", ErrOrderInvalidInput)
	}
	return out, nil
}

func sanitizeText(value string) string {
	cleaned := strings.TrimSpace(html.UnescapeString(shippingPolicy.Sanitize(value)))
	if len(cleaned) > maxShippingFieldLength {
		cleaned = strings.ToValidUTF8(cleaned[:maxShippingFieldLength], "")
	}
	return cleaned
}

func orderDescription(lines []OrderLine) string {
	if len(lines) == 0 {
		return ""
	}
	name := chooseFirstNonEmpty(lines[0].Name, lines[0].VariantID)
	if len(lines) == 1 {
		return name
	}
	return fmt.Sprintf("%s and %d more", name, len(lines)-1)
}

// mapProviderError classifies failures from starting a payment.
func mapProviderError(err error) error {
	if errors.Is(err, payments.ErrInvalidRequest) {
		return fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
	}
	return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
}
