package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for inventory operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorProductNotFound indicates the product document is missing.
	InventoryErrorProductNotFound InventoryErrorCode = "product_not_found"
	// InventoryErrorOrderNotFound indicates the order document is missing.
	InventoryErrorOrderNotFound InventoryErrorCode = "order_not_found"
	// InventoryErrorVariantNotFound indicates no stock slot matched the
	// requested size/colour in either structure.
	InventoryErrorVariantNotFound InventoryErrorCode = "variant_not_found"
	// InventoryErrorInvalidIdentifier indicates a malformed document id.
	InventoryErrorInvalidIdentifier InventoryErrorCode = "invalid_identifier"
	// InventoryErrorDuplicateTransaction indicates the transaction id already
	// holds a ledger entry. Not a true failure; callers replay the stored result.
	InventoryErrorDuplicateTransaction InventoryErrorCode = "duplicate_transaction"
)

// InventoryError wraps inventory-specific failures with machine readable codes.
type InventoryError struct {
	Op      string
	Code    InventoryErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
