/*
errors.go - Error types for the inventory ledger

ERROR CATEGORIES:
  1. Schema errors - storage is missing something the evolver cannot fix.
     Fatal: the operation aborts.
  2. Validation errors - negative stock, min above max, unknown change type.
     Rejected before any write.
  3. Not found - an ingredient missing from the catalog. Updates and
     reconciliation treat this as "nothing to do"; only lookups report it.
  4. Storage I/O - surfaced verbatim (wrapped), never retried.

USAGE:
  if ledger.IsValidation(err) {
      // show the message to the user, storage is untouched
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchema is returned when the evolver could not bring storage up to date.
	ErrSchema = errors.New("ledger schema error")

	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidChangeType is returned for change types outside the enumeration.
	ErrInvalidChangeType = errors.New("invalid change type")

	// ErrNegativeStock is returned when a stock figure would go below zero.
	ErrNegativeStock = errors.New("stock cannot be negative")

	// ErrThresholdOrder is returned when the minimum exceeds the maximum.
	ErrThresholdOrder = errors.New("minimum stock exceeds maximum stock")

	// ErrIngredientNotFound is returned by lookups for unknown ingredients.
	ErrIngredientNotFound = errors.New("ingredient not found")

	// ErrSnapshotNotFound is returned when a snapshot id does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrEmptyBatch is returned when a batch has no lines.
	ErrEmptyBatch = errors.New("batch has no lines")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// SchemaError tells which table/column could not be evolved.
type SchemaError struct {
	Table  string
	Column string
	Err    error
}

func (e *SchemaError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("schema: %s.%s: %v", e.Table, e.Column, e.Err)
	case e.Table != "":
		return fmt.Sprintf("schema: %s: %v", e.Table, e.Err)
	default:
		return fmt.Sprintf("schema: %v", e.Err)
	}
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }
func (e *SchemaError) Unwrap() error        { return e.Err }

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error // specific sentinel, may be nil
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *ValidationError) Unwrap() error        { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error is due to invalid caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsSchema returns true if storage could not be trusted.
func IsSchema(err error) bool {
	return errors.Is(err, ErrSchema)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIngredientNotFound) || errors.Is(err, ErrSnapshotNotFound)
}
