package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kleankuts/api/internal/domain"
	"github.com/kleankuts/api/internal/repositories"
)

// maxDecrementAttempts bounds the reload-and-retry loop when a guarded write
// loses against a concurrent decrement on the same slot.
const maxDecrementAttempts = 3

const (
	adhocTransactionPrefix = "adhoc_"
	orderTransactionPrefix = "ord_"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrProductNotFound indicates the product document does not exist.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrOrderNotFound indicates the order document does not exist.
	ErrOrderNotFound = errors.New("inventory: order not found")
	// ErrEmptyOrder indicates the order has no line items to apply.
	ErrEmptyOrder = errors.New("inventory: order has no line items")
	// ErrVariantNotFound indicates no stock slot matched the size/colour in
	// any populated structure.
	ErrVariantNotFound = errors.New("inventory: variant not found")
	// ErrStockContended indicates a guarded write kept losing to concurrent
	// decrements on the same slot. Transient: nothing is written to the
	// ledger, so a retry under the same transaction id can still succeed.
	ErrStockContended = errors.New("inventory: stock write contended")
	// ErrInvalidIdentifier indicates a malformed document id.
	ErrInvalidIdentifier = errors.New("inventory: invalid identifier")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Audits      repositories.AuditRepository
	Events      StockEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	products repositories.ProductRepository
	orders   repositories.OrderRepository
	audits   repositories.AuditRepository
	events   StockEventPublisher
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("inventory service: order repository is required")
	}
	if deps.Audits == nil {
		return nil, errors.New("inventory service: audit repository is required")
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
		products: deps.Products,
		orders:   deps.Orders,
		audits:   deps.Audits,
		events:   deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Reduce decrements exactly one (size, colour) slot by at most the available
// quantity. Both stock structures are charged when both hold the slot, by the
// same amount, so a document with consistent shapes stays consistent. The
// outcome, success or failure, is appended to the ledger keyed by the
// transaction id; a repeated call replays the stored outcome untouched.
func (s *inventoryService) Reduce(ctx context.Context, cmd ReduceCommand) (ReduceResult, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return ReduceResult{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return ReduceResult{}, fmt.Errorf("%w: quantity must be positive", ErrInventoryInvalidInput)
	}

	size := domain.NormalizeSize(cmd.Size)
	color := domain.NormalizeColor(cmd.Color)
	txnID := strings.TrimSpace(cmd.TransactionID)
	if txnID == "" {
		txnID = adhocTransactionPrefix + s.newID()
	}

	if result, found, err := s.replayLedger(ctx, txnID, cmd.Quantity); found || err != nil {
		return result, err
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		mapped := s.mapRepositoryError(err)
		return s.recordFailure(ctx, txnID, productID, size, color, mapped)
	}

	result := ReduceResult{
		TransactionID: txnID,
		ProductID:     productID,
		Size:          size,
		Color:         color,
		Requested:     cmd.Quantity,
	}
	now := s.clock()

	primary, primaryFound, err := s.applySizedPath(ctx, product, size, color, cmd.Quantity, now)
	if err != nil {
		return result, err
	}

	// The aggregate is charged by the amount the primary path applied so the
	// two shapes move in lockstep; when only the aggregate is populated it
	// clamps against its own quantity instead.
	aggregateBase := cmd.Quantity
	if primaryFound {
		aggregateBase = primary.applied
	}
	secondary, secondaryFound, err := s.applyAggregatePath(ctx, product, size, color, aggregateBase, primaryFound, now)
	if err != nil {
		return result, err
	}

	if !primaryFound && !secondaryFound {
		mapped := fmt.Errorf("%w: no %s/%s slot on product %s", ErrVariantNotFound, size, color, productID)
		return s.recordFailure(ctx, txnID, productID, size, color, mapped)
	}

	outcome := primary
	if !primaryFound {
		outcome = secondary
	}
	result.Applied = outcome.applied
	result.PreviousQuantity = outcome.previous
	result.NewQuantity = outcome.current

	record := domain.AuditRecord{
		TransactionID:    txnID,
		ProductID:        productID,
		Size:             size,
		Color:            color,
		PreviousQuantity: result.PreviousQuantity,
		NewQuantity:      result.NewQuantity,
		Success:          true,
		Timestamp:        now,
	}
	if err := s.audits.Append(ctx, record); err != nil {
		if repositories.InventoryErrorCodeOf(err) == repositories.InventoryErrorDuplicateTransaction {
			// Another call with the same transaction id won the insert; its
			// stored outcome is authoritative.
			if replayResult, found, replayErr := s.replayLedger(ctx, txnID, cmd.Quantity); found {
				return replayResult, replayErr
			}
		}
		s.logger(ctx, "inventory_audit_append_failed", map[string]any{
			"transactionId": txnID,
			"error":         err.Error(),
		})
	}

	if result.Applied > 0 {
		s.emitStockMovement(ctx, StockMovementEvent{
			TransactionID:    txnID,
			ProductID:        productID,
			Size:             size,
			Color:            color,
			Delta:            -result.Applied,
			PreviousQuantity: result.PreviousQuantity,
			NewQuantity:      result.NewQuantity,
			OccurredAt:       now,
		})
	}

	return result, nil
}

// ApplyOrder charges stock for every eligible line item and flips the
// per-line idempotency flags of the lines that succeeded. Line failures do
// not abort the batch.
func (s *inventoryService) ApplyOrder(ctx context.Context, cmd ApplyOrderCommand) (OrderInventoryResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderInventoryResult{}, fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return OrderInventoryResult{}, s.mapRepositoryError(err)
	}
	if len(order.Products) == 0 {
		return OrderInventoryResult{}, fmt.Errorf("%w: order %s", ErrEmptyOrder, orderID)
	}

	batchTxn := orderTransactionPrefix + orderID
	result := OrderInventoryResult{
		OrderID:       orderID,
		TransactionID: batchTxn,
	}

	var applied []repositories.LineApplied
	for i, line := range order.Products {
		if line.InventoryUpdated && !cmd.Force {
			result.Skipped++
			continue
		}

		size := domain.NormalizeSize(line.Size)
		color := line.Color
		if strings.TrimSpace(color) == "" {
			color = line.Variant
		}
		color = domain.NormalizeColor(color)
		quantity := line.Quantity
		if quantity <= 0 {
			quantity = 1
		}

		// Duplicate (product, size, colour) lines in one order share a
		// transaction id: only the first is charged, the rest replay it.
		lineTxn := fmt.Sprintf("%s_%s_%s_%s", batchTxn, line.ProductID, size, color)
		lineResult, err := s.Reduce(ctx, ReduceCommand{
			ProductID:     line.ProductID,
			Size:          size,
			Color:         color,
			Quantity:      quantity,
			TransactionID: lineTxn,
		})
		if err != nil {
			result.Errors = append(result.Errors, OrderLineError{
				Index:     i,
				ProductID: line.ProductID,
				Code:      failureCode(err),
				Message:   err.Error(),
			})
			continue
		}

		result.Results = append(result.Results, OrderLineResult{
			Index:            i,
			ProductID:        line.ProductID,
			Size:             size,
			Color:            color,
			Requested:        quantity,
			Applied:          lineResult.Applied,
			PreviousQuantity: lineResult.PreviousQuantity,
			NewQuantity:      lineResult.NewQuantity,
			Replayed:         lineResult.Replayed,
		})
		applied = append(applied, repositories.LineApplied{Index: i})
	}

	if len(applied) > 0 {
		if err := s.orders.MarkLinesApplied(ctx, orderID, applied, s.clock()); err != nil {
			mapped := s.mapRepositoryError(err)
			result.Errors = append(result.Errors, OrderLineError{
				Index:   -1,
				Code:    failureCode(mapped),
				Message: fmt.Sprintf("mark line items applied: %v", mapped),
			})
		}
	}

	result.Success = len(result.Errors) == 0
	return result, nil
}

// GetStock returns the merged view over every stock shape of one product.
func (s *inventoryService) GetStock(ctx context.Context, productID string) (StockSnapshot, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockSnapshot{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return StockSnapshot{}, s.mapRepositoryError(err)
	}

	view := domain.NewStockView(product)
	return StockSnapshot{
		ProductID:      product.ID,
		Title:          product.Title,
		SizeVariants:   product.SizeVariants,
		LegacyVariants: product.Variants,
		Inventory:      product.Inventory,
		SizedTotal:     view.SizedTotal(),
		AggregateTotal: view.AggregateTotal(),
		Divergences:    view.Divergences(),
		UpdatedAt:      product.UpdatedAt,
	}, nil
}

// pathOutcome is the before/after of one stock structure.
type pathOutcome struct {
	previous int
	current  int
	applied  int
}

// applySizedPath charges the nested structure. A guarded write that loses a
// race reloads the product and retries with a re-clamped amount; the clamp
// keeps every retry non-negative. Exhausting the retries on a slot that does
// exist surfaces as ErrStockContended, never as a missing variant.
func (s *inventoryService) applySizedPath(ctx context.Context, product domain.Product, size, color string, requested int, now time.Time) (pathOutcome, bool, error) {
	for attempt := 0; attempt < maxDecrementAttempts; attempt++ {
		view := domain.NewStockView(product)
		slot, ok := view.FindSized(size, color)
		if !ok {
			return pathOutcome{}, false, nil
		}

		amount := min(requested, slot.Quantity)
		if amount <= 0 {
			return pathOutcome{previous: slot.Quantity, current: slot.Quantity}, true, nil
		}

		// Array filters match the stored document values, not the
		// normalised ones, so pull them back off the loaded product.
		storedSize := product.SizeVariants[slot.SizedIndex[0]].Size
		storedColor := product.SizeVariants[slot.SizedIndex[0]].ColorVariants[slot.SizedIndex[1]].Color
		res, err := s.products.DecrementSizedStock(ctx, repositories.SizedDecrementRequest{
			ProductID: product.ID,
			Size:      storedSize,
			Color:     storedColor,
			Amount:    amount,
			Now:       now,
		})
		if err != nil {
			return pathOutcome{}, false, s.mapRepositoryError(err)
		}
		if res.Matched {
			return pathOutcome{previous: slot.Quantity, current: slot.Quantity - amount, applied: amount}, true, nil
		}

		reloaded, err := s.products.Get(ctx, product.ID)
		if err != nil {
			return pathOutcome{}, false, s.mapRepositoryError(err)
		}
		product = reloaded
	}

	s.logger(ctx, "inventory_sized_decrement_contended", map[string]any{
		"productId": product.ID,
		"size":      size,
		"color":     color,
	})
	return pathOutcome{}, false, fmt.Errorf("%w: %s/%s on product %s", ErrStockContended, size, color, product.ID)
}

// applyAggregatePath charges inventory.variants. When the primary path found
// a slot the amount is fixed (lockstep); otherwise it clamps against the
// aggregate's own quantity.
func (s *inventoryService) applyAggregatePath(ctx context.Context, product domain.Product, size, color string, base int, lockstep bool, now time.Time) (pathOutcome, bool, error) {
	for attempt := 0; attempt < maxDecrementAttempts; attempt++ {
		view := domain.NewStockView(product)
		slot, ok := view.FindAggregate(size, color)
		if !ok {
			return pathOutcome{}, false, nil
		}

		amount := base
		if !lockstep {
			amount = min(base, slot.Quantity)
		}
		if amount <= 0 || amount > slot.Quantity {
			// Lockstep amount exceeding the aggregate's quantity means the
			// shapes already diverged; leave the aggregate for the sync
			// scan rather than drive it negative.
			return pathOutcome{previous: slot.Quantity, current: slot.Quantity}, true, nil
		}

		stored := product.Inventory.Variants[slot.AggIndex]
		res, err := s.products.DecrementAggregateStock(ctx, repositories.AggregateDecrementRequest{
			ProductID:     product.ID,
			Size:          stored.Size,
			Color:         stored.Color,
			ColorUntagged: strings.TrimSpace(stored.Color) == "",
			Amount:        amount,
			Now:           now,
		})
		if err != nil {
			return pathOutcome{}, false, s.mapRepositoryError(err)
		}
		if res.Matched {
			return pathOutcome{previous: slot.Quantity, current: slot.Quantity - amount, applied: amount}, true, nil
		}

		reloaded, err := s.products.Get(ctx, product.ID)
		if err != nil {
			return pathOutcome{}, false, s.mapRepositoryError(err)
		}
		product = reloaded
	}

	s.logger(ctx, "inventory_aggregate_decrement_contended", map[string]any{
		"productId": product.ID,
		"size":      size,
		"color":     color,
	})
	return pathOutcome{}, false, fmt.Errorf("%w: %s/%s on product %s", ErrStockContended, size, color, product.ID)
}

// replayLedger returns the stored outcome for txnID when one exists. Stored
// failures replay as the same failure; a retry under the same transaction id
// never re-attempts the mutation.
func (s *inventoryService) replayLedger(ctx context.Context, txnID string, requested int) (ReduceResult, bool, error) {
	record, err := s.audits.Find(ctx, txnID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return ReduceResult{}, false, nil
		}
		return ReduceResult{}, false, s.mapRepositoryError(err)
	}

	result := ReduceResult{
		TransactionID:    record.TransactionID,
		ProductID:        record.ProductID,
		Size:             record.Size,
		Color:            record.Color,
		Requested:        requested,
		PreviousQuantity: record.PreviousQuantity,
		NewQuantity:      record.NewQuantity,
		Replayed:         true,
	}
	if !record.Success {
		return result, true, replayFailure(record.Error)
	}
	return result, true, nil
}

// recordFailure appends a failed outcome to the ledger and returns the
// failure. Repeated failing calls under the same transaction id become
// no-ops once the first attempt records the failure.
func (s *inventoryService) recordFailure(ctx context.Context, txnID, productID, size, color string, cause error) (ReduceResult, error) {
	record := domain.AuditRecord{
		TransactionID: txnID,
		ProductID:     productID,
		Size:          size,
		Color:         color,
		Success:       false,
		Error:         failureCode(cause) + ": " + cause.Error(),
		Timestamp:     s.clock(),
	}
	if err := s.audits.Append(ctx, record); err != nil &&
		repositories.InventoryErrorCodeOf(err) != repositories.InventoryErrorDuplicateTransaction {
		s.logger(ctx, "inventory_audit_append_failed", map[string]any{
			"transactionId": txnID,
			"error":         err.Error(),
		})
	}
	return ReduceResult{
		TransactionID: txnID,
		ProductID:     productID,
		Size:          size,
		Color:         color,
	}, cause
}

func (s *inventoryService) emitStockMovement(ctx context.Context, event StockMovementEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishStockMovement(ctx, event); err != nil {
		s.logger(ctx, "stock_event_publish_failed", map[string]any{
			"transactionId": event.TransactionID,
			"error":         err.Error(),
		})
	}
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrProductNotFound, invErr.Message)
		case repositories.InventoryErrorOrderNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, invErr.Message)
		case repositories.InventoryErrorVariantNotFound:
			return fmt.Errorf("%w: %s", ErrVariantNotFound, invErr.Message)
		case repositories.InventoryErrorInvalidIdentifier:
			return fmt.Errorf("%w: %s", ErrInvalidIdentifier, invErr.Message)
		}
	}

	return err
}

// failureCode maps a service error onto the machine readable code stored in
// ledger entries and returned in batch error details.
func failureCode(err error) string {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return string(repositories.InventoryErrorProductNotFound)
	case errors.Is(err, ErrOrderNotFound):
		return string(repositories.InventoryErrorOrderNotFound)
	case errors.Is(err, ErrVariantNotFound):
		return string(repositories.InventoryErrorVariantNotFound)
	case errors.Is(err, ErrInvalidIdentifier):
		return string(repositories.InventoryErrorInvalidIdentifier)
	case errors.Is(err, ErrStockContended):
		return "stock_contended"
	case errors.Is(err, ErrEmptyOrder):
		return "empty_order"
	case errors.Is(err, ErrInventoryInvalidInput):
		return "invalid_input"
	default:
		return string(repositories.InventoryErrorUnknown)
	}
}

// replayFailure reconstructs the sentinel for a ledger entry recorded as a
// failure; the code prefix written by recordFailure carries the cause.
func replayFailure(stored string) error {
	code, message, found := strings.Cut(stored, ": ")
	if !found {
		message = stored
	}
	switch repositories.InventoryErrorCode(code) {
	case repositories.InventoryErrorProductNotFound:
		return fmt.Errorf("%w: %s", ErrProductNotFound, message)
	case repositories.InventoryErrorVariantNotFound:
		return fmt.Errorf("%w: %s", ErrVariantNotFound, message)
	case repositories.InventoryErrorInvalidIdentifier:
		return fmt.Errorf("%w: %s", ErrInvalidIdentifier, message)
	default:
		return fmt.Errorf("inventory: recorded failure: %s", stored)
	}
}
