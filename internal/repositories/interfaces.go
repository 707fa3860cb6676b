package repositories

import (
	"context"
	"time"

	domain "github.com/kleankuts/api/internal/domain"
)

// RepositoryError is the classification surface implemented by storage errors.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductScanQuery drives the id-ordered batch scan used by reconciliation.
type ProductScanQuery struct {
	PageSize  int
	PageToken string
}

// SizedDecrementRequest addresses one colour slot of the nested structure.
// Size and Color carry the stored document values so the array filters match
// exactly what is on disk.
type SizedDecrementRequest struct {
	ProductID string
	Size      string
	Color     string
	Amount    int
	Now       time.Time
}

// AggregateDecrementRequest addresses one entry of inventory.variants.
// ColorUntagged marks entries whose colour field is empty or absent on disk;
// those act as the default colour slot. Amount is also applied to
// inventory.total in the same update command.
type AggregateDecrementRequest struct {
	ProductID     string
	Size          string
	Color         string
	ColorUntagged bool
	Amount        int
	Now           time.Time
}

// StockWriteResult reports whether a guarded decrement matched a slot.
type StockWriteResult struct {
	Matched bool
}

// ProductRepository exposes catalog documents and the guarded stock writes
// used by inventory operations.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, query ProductScanQuery) (domain.CursorPage[domain.Product], error)
	DecrementSizedStock(ctx context.Context, req SizedDecrementRequest) (StockWriteResult, error)
	DecrementAggregateStock(ctx context.Context, req AggregateDecrementRequest) (StockWriteResult, error)
	SetAggregate(ctx context.Context, productID string, inventory domain.Inventory, now time.Time) error
	SetSizeVariants(ctx context.Context, productID string, variants []domain.SizeVariant, now time.Time) error
}

// LineApplied marks a single order line item as charged against stock.
type LineApplied struct {
	Index int
}

// OrderRepository exposes order documents and the targeted line item
// write-back. MarkLinesApplied must touch only the addressed line items,
// never replace the whole products array.
type OrderRepository interface {
	Get(ctx context.Context, orderID string) (domain.Order, error)
	MarkLinesApplied(ctx context.Context, orderID string, lines []LineApplied, now time.Time) error
}

// AuditRepository is the append-only idempotency ledger. Append relies on a
// unique index over the transaction id; a duplicate insert surfaces as a
// conflict so callers treat it as "already processed".
type AuditRepository interface {
	Find(ctx context.Context, transactionID string) (domain.AuditRecord, error)
	Append(ctx context.Context, record domain.AuditRecord) error
	EnsureIndexes(ctx context.Context) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
