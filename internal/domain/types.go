package domain

import (
	"strings"
	"time"
)

// CursorPage wraps a page of results together with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// ColorVariant is a single colour slot inside a size bucket of the nested
// catalog structure.
type ColorVariant struct {
	Color string
	Stock int
}

// SizeVariant groups colour slots under one size. This is the canonical shape
// for catalog editing.
type SizeVariant struct {
	Size          string
	ColorVariants []ColorVariant
}

// LegacyVariant is the flat, oldest stock representation. Colour may be empty
// on documents written before colours existed.
type LegacyVariant struct {
	Size     string
	Color    string
	Quantity int
}

// InventoryVariant is one entry of the derived inventory aggregate.
type InventoryVariant struct {
	Size     string
	Color    string
	Quantity int
}

// Inventory is the derived aggregate consumed by storefront lookups. Total is
// a cache of the sum of all variant quantities.
type Inventory struct {
	Total    int
	Variants []InventoryVariant
}

// Product is a catalog entry. Stock is represented redundantly in up to three
// co-existing shapes on the same document; the shapes may disagree after
// partial updates and every consumer must tolerate that.
type Product struct {
	ID           string
	Title        string
	Variants     []LegacyVariant
	SizeVariants []SizeVariant
	Inventory    *Inventory
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderLineItem is a single product/size/colour request inside an order.
// InventoryUpdated is the idempotency flag: once true the line must not be
// charged against stock again unless the caller forces a re-apply.
type OrderLineItem struct {
	ProductID        string
	Size             string
	Color            string
	Variant          string
	Quantity         int
	InventoryUpdated bool
}

// Order is immutable once placed apart from inventory bookkeeping fields.
type Order struct {
	ID                 string
	Products           []OrderLineItem
	InventoryUpdatedAt *time.Time
	CreatedAt          time.Time
}

// AuditRecord is one append-only ledger entry. TransactionID is the
// idempotency key; a record exists for failures as well as successes so a
// replay of a failed transaction is also a no-op.
type AuditRecord struct {
	TransactionID    string
	ProductID        string
	Size             string
	Color            string
	PreviousQuantity int
	NewQuantity      int
	Success          bool
	Error            string
	Timestamp        time.Time
}

// StockAdjustment reports the outcome of a single variant decrement.
type StockAdjustment struct {
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

// NormalizeColor maps absent or blank colours onto the default slot used by
// legacy documents.
func NormalizeColor(color string) string {
	trimmed := strings.TrimSpace(color)
	if trimmed == "" {
		return DefaultColor
	}
	return trimmed
}

// NormalizeSize maps absent sizes onto the default size bucket.
func NormalizeSize(size string) string {
	trimmed := strings.TrimSpace(size)
	if trimmed == "" {
		return DefaultSize
	}
	return trimmed
}

// ColorsEquivalent reports whether a stored colour satisfies a requested one.
// Untagged legacy entries act as the default colour.
func ColorsEquivalent(stored, requested string) bool {
	return strings.EqualFold(NormalizeColor(stored), NormalizeColor(requested))
}
