package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/KhangNguyen-1412/freshfood-ecommerce-sub000/internal/repositories"
)

const eventInventoryLowStock = "inventory.low_stock"

// ErrInventoryInvalidInput signals the caller provided invalid arguments.
var ErrInventoryInvalidInput = errors.New("inventory: invalid input")

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory         repositories.InventoryRepository
	Events            InventoryEventPublisher
	LowStockThreshold int64
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	repo      repositories.InventoryRepository
	events    InventoryEventPublisher
	threshold int64
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
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

	return &inventoryService{
		repo:      deps.Inventory,
		events:    deps.Events,
		threshold: deps.LowStockThreshold,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// ReserveAndDecrement takes every line from stock at branchID or none of them. It joins the
// transaction carried by ctx, so the decrement commits or aborts with the caller's writes.
func (s *inventoryService) ReserveAndDecrement(ctx context.Context, branchID string, lines []StockLine) ([]InventoryRecord, error) {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return nil, fmt.Errorf("%w: branch id is required", ErrInventoryInvalidInput)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	records, err := s.repo.DecrementAll(ctx, branchID, lines)
	if err != nil {
		return nil, s.mapRepositoryError(branchID, err)
	}
	return records, nil
}

// Restore returns units to stock unconditionally.
func (s *inventoryService) Restore(ctx context.Context, branchID string, lines []StockLine) error {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return fmt.Errorf("%w: branch id is required", ErrInventoryInvalidInput)
	}
	if len(lines) == 0 {
		return nil
	}
	if err := s.repo.RestoreAll(ctx, branchID, lines); err != nil {
		return s.mapRepositoryError(branchID, err)
	}
	return nil
}

func (s *inventoryService) SetStock(ctx context.Context, cmd SetStockCommand) (InventoryRecord, error) {
	record := InventoryRecord{
		BranchID:  strings.TrimSpace(cmd.BranchID),
		VariantID: strings.TrimSpace(cmd.VariantID),
		Stock:     cmd.Stock,
		UpdatedAt: s.clock(),
	}
	if record.BranchID == "" || record.VariantID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: branch and variant ids are required", ErrInventoryInvalidInput)
	}
	if record.Stock < 0 {
		return InventoryRecord{}, fmt.Errorf("%w: stock must not be negative", ErrInventoryInvalidInput)
	}
	if err := s.repo.Set(ctx, record); err != nil {
		return InventoryRecord{}, s.mapRepositoryError(record.BranchID, err)
	}
	s.logger(ctx, "inventory.stock.set", map[string]any{
		"branchId":  record.BranchID,
		"variantId": record.VariantID,
		"stock":     record.Stock,
		"actor":     cmd.ActorID,
	})
	s.PublishLowStock(ctx, []InventoryRecord{record})
	return record, nil
}

func (s *inventoryService) GetStock(ctx context.Context, branchID, variantID string) (InventoryRecord, error) {
	branchID = strings.TrimSpace(branchID)
	variantID = strings.TrimSpace(variantID)
	if branchID == "" || variantID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: branch and variant ids are required", ErrInventoryInvalidInput)
	}
	record, err := s.repo.Get(ctx, branchID, variantID)
	if err != nil {
		return InventoryRecord{}, s.mapRepositoryError(branchID, err)
	}
	return record, nil
}

// PublishLowStock emits a low-stock event for every record at or below the threshold. Call it
// only after the transaction that wrote the records committed. Failures are logged.
func (s *inventoryService) PublishLowStock(ctx context.Context, records []InventoryRecord) {
	if s.events == nil || s.threshold <= 0 {
		return
	}
	for _, record := range records {
		if record.Stock > s.threshold {
			continue
		}
		event := InventoryEvent{
			ID:         s.newID(),
			Type:       eventInventoryLowStock,
			BranchID:   record.BranchID,
			VariantID:  record.VariantID,
			Stock:      record.Stock,
			Threshold:  s.threshold,
			OccurredAt: s.clock(),
		}
		if err := s.events.PublishInventoryEvent(ctx, event); err != nil {
			s.logger(ctx, "inventory.event.publish.failed", map[string]any{
				"type":      event.Type,
				"branchId":  event.BranchID,
				"variantId": event.VariantID,
				"error":     err.Error(),
			})
		}
	}
}

func (s *inventoryService) mapRepositoryError(branchID string, err error) error {
	if shortage := insufficientStockFrom(branchID, err); shortage != nil {
		return shortage
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorInvalidLine {
		return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, invErr.Message)
	}
	return mapRepositoryError(err)
}

var _ InventoryService = (*inventoryService)(nil)
