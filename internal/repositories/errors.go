package repositories

import "errors"

// IsNotFound reports whether err carries not-found repository semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries conflicting-write repository semantics.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err represents a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// InventoryErrorCodeOf extracts the machine readable code from err, or
// InventoryErrorUnknown when err is not an inventory error.
func InventoryErrorCodeOf(err error) InventoryErrorCode {
	var invErr *InventoryError
	if errors.As(err, &invErr) {
		return invErr.Code
	}
	return InventoryErrorUnknown
}
