package services

import (
	"context"
	"time"

	domain "github.com/kleankuts/api/internal/domain"
)

// ReduceCommand requests a single-variant stock decrement. TransactionID is
// optional; when empty an ad-hoc id is minted, which weakens idempotency for
// manual invocations.
type ReduceCommand struct {
	ProductID     string
	Size          string
	Color         string
	Quantity      int
	TransactionID string
}

// ReduceResult reports the outcome of one variant decrement. Replayed is true
// when the transaction id was already in the ledger and the stored outcome was
// returned without touching stock.
type ReduceResult struct {
	TransactionID    string
	ProductID        string
	Size             string
	Color            string
	Requested        int
	Applied          int
	PreviousQuantity int
	NewQuantity      int
	Replayed         bool
}

// ApplyOrderCommand requests inventory application for every eligible line
// item of an order. Force re-applies line items already flagged as charged;
// it exists for manual recovery only.
type ApplyOrderCommand struct {
	OrderID string
	Force   bool
}

// OrderLineResult is the outcome of one charged line item.
type OrderLineResult struct {
	Index            int
	ProductID        string
	Size             string
	Color            string
	Requested        int
	Applied          int
	PreviousQuantity int
	NewQuantity      int
	Replayed         bool
}

// OrderLineError tags a per-line failure with enough context for the caller
// to retry or escalate. Code carries the machine readable cause.
type OrderLineError struct {
	Index     int
	ProductID string
	Code      string
	Message   string
}

// OrderInventoryResult aggregates per-line outcomes. Success is true only
// when no line item failed; partial application still reports the succeeded
// lines in Results.
type OrderInventoryResult struct {
	OrderID       string
	TransactionID string
	Success       bool
	Skipped       int
	Results       []OrderLineResult
	Errors        []OrderLineError
}

// StockSnapshot is the merged read model over every stock shape of a product.
type StockSnapshot struct {
	ProductID      string
	Title          string
	SizeVariants   []domain.SizeVariant
	LegacyVariants []domain.LegacyVariant
	Inventory      *domain.Inventory
	SizedTotal     int
	AggregateTotal int
	Divergences    []domain.StockDivergence
	UpdatedAt      time.Time
}

// InventoryService exposes the stock mutation operations consumed by order
// processing and the internal admin surface.
type InventoryService interface {
	Reduce(ctx context.Context, cmd ReduceCommand) (ReduceResult, error)
	ApplyOrder(ctx context.Context, cmd ApplyOrderCommand) (OrderInventoryResult, error)
	GetStock(ctx context.Context, productID string) (StockSnapshot, error)
}

// ReconciliationDetail records one repaired product during a scan.
type ReconciliationDetail struct {
	ProductID string
	Action    string
	Note      string
}

// ReconciliationReport summarises one batch scan.
type ReconciliationReport struct {
	Processed int
	Updated   int
	Details   []ReconciliationDetail
}

// ReconciliationService runs the out-of-band repair scans over the catalog.
type ReconciliationService interface {
	RunBackfill(ctx context.Context) (ReconciliationReport, error)
	RunSync(ctx context.Context) (ReconciliationReport, error)
}

// StockMovementEvent describes one applied decrement for downstream
// consumers. Delta is negative for decrements.
type StockMovementEvent struct {
	TransactionID    string
	ProductID        string
	Size             string
	Color            string
	Delta            int
	PreviousQuantity int
	NewQuantity      int
	OccurredAt       time.Time
}

// StockEventPublisher is the optional outbound port for stock movements.
// Publishing is best-effort; failures are logged, never surfaced to callers.
type StockEventPublisher interface {
	PublishStockMovement(ctx context.Context, event StockMovementEvent) error
}
