/*
Package ledger provides the inventory ledger for recipe costing.

PURPOSE:
  Tracks how much stock of each ingredient exists, records every change as an
  immutable movement entry, keeps the materialized "current stock" view in
  sync with that history, and produces point-in-time valuation snapshots and
  variance reports.

KEY CONCEPTS IN THIS FILE (types.go):
  - Ingredient:    Read-only view of the external ingredient catalog
  - StockLevel:    Materialized current state, one row per ingredient
  - MovementEntry: Append-only history of every stock change
  - ChangeType:    Closed enumeration of why stock changed
  - Snapshot:      Frozen copy of all stock levels and their valuation

DESIGN PRINCIPLES:
  1. Immutability: Movement entries and snapshot items are never modified
  2. Precision: Uses decimal.Decimal for every quantity and cost
  3. Raw values: The ledger never formats currency or numbers for display
  4. Sticky cost: A stock level's unit cost, once set, survives stock updates

SEE ALSO:
  - ledger.go: The Ledger service (levels, updates, history)
  - batch.go: Multi-line submissions (purchases, usage, quick adjust)
  - snapshot.go: Snapshot engine
  - valuation.go: Classification and reports
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type IngredientID int64
type MovementID int64
type SnapshotID int64

// RecipeID tags a movement caused by recipe consumption. Zero means none.
// The ledger stores it without validating it.
type RecipeID int64

// =============================================================================
// INGREDIENT - External catalog entry (read-only here)
// =============================================================================

// Ingredient is what the ledger needs from the ingredient catalog.
type Ingredient struct {
	ID        IngredientID
	Name      string
	Unit      string
	UnitPrice decimal.Decimal
}

// =============================================================================
// CHANGE TYPE - Why stock changed
// =============================================================================

type ChangeType string

const (
	ChangeAddition   ChangeType = "addition"    // Stock received outside a purchase
	ChangeRemoval    ChangeType = "removal"     // Stock taken out for a non-recipe reason
	ChangeWaste      ChangeType = "waste"       // Spoiled or discarded
	ChangeCorrection ChangeType = "correction"  // Count correction after a stock take
	ChangeAdjustment ChangeType = "adjustment"  // Quick +/- adjustment
	ChangePurchase   ChangeType = "purchase"    // Purchase invoice line
	ChangeUsage      ChangeType = "usage"       // Recipe consumption
	ChangeManualEdit ChangeType = "manual_edit" // Direct edit of the stock figure
)

// AllChangeTypes lists every valid change type in display order.
var AllChangeTypes = []ChangeType{
	ChangeAddition,
	ChangeRemoval,
	ChangeWaste,
	ChangeCorrection,
	ChangeAdjustment,
	ChangePurchase,
	ChangeUsage,
	ChangeManualEdit,
}

// TypeFilterAll selects every change type in history queries.
const TypeFilterAll = "All"

// Valid reports whether ct is one of the known change types.
func (ct ChangeType) Valid() bool {
	for _, known := range AllChangeTypes {
		if ct == known {
			return true
		}
	}
	return false
}

// ParseChangeType converts free text from the boundary into a ChangeType.
func ParseChangeType(s string) (ChangeType, error) {
	ct := ChangeType(s)
	if !ct.Valid() {
		return "", &ValidationError{Field: "change_type", Reason: "unknown change type " + s, Err: ErrInvalidChangeType}
	}
	return ct, nil
}

// =============================================================================
// STOCK LEVEL - Materialized current state
// =============================================================================

// StockLevel is the current stock of one ingredient.
//
// INVARIANTS:
//   - Exactly one row per catalog ingredient whenever levels are read
//     (enforced lazily by reconciliation).
//   - UnitCost is sticky: once non-zero it is never overwritten by a stock update.
type StockLevel struct {
	IngredientID IngredientID
	Name         string // from the catalog
	Unit         string // from the catalog
	CurrentStock decimal.Decimal
	MinimumStock decimal.NullDecimal // absent: no low-stock alerting
	MaximumStock decimal.NullDecimal // absent: no overstock alerting
	UnitCost     decimal.Decimal
	LastUpdated  time.Time
}

// TotalValue is CurrentStock * UnitCost.
func (s StockLevel) TotalValue() decimal.Decimal {
	return s.CurrentStock.Mul(s.UnitCost)
}

// IsLowStock is true when a minimum is set and stock is at or below it.
func (s StockLevel) IsLowStock() bool {
	return s.MinimumStock.Valid && s.CurrentStock.LessThanOrEqual(s.MinimumStock.Decimal)
}

// IsOverstocked is true when a maximum is set and stock is at or above it.
func (s StockLevel) IsOverstocked() bool {
	return s.MaximumStock.Valid && s.CurrentStock.GreaterThanOrEqual(s.MaximumStock.Decimal)
}

// Status classifies the level. Low stock wins over overstock.
func (s StockLevel) Status() Status {
	switch {
	case s.IsLowStock():
		return StatusLowStock
	case s.IsOverstocked():
		return StatusOverstocked
	default:
		return StatusNormal
	}
}

type Status string

const (
	StatusNormal      Status = "normal"
	StatusLowStock    Status = "low_stock"
	StatusOverstocked Status = "overstocked"
)

// =============================================================================
// MOVEMENT ENTRY - Append-only history
// =============================================================================

// MovementEntry records one stock change. Immutable once written.
type MovementEntry struct {
	ID            MovementID
	IngredientID  IngredientID
	PreviousStock decimal.Decimal
	NewStock      decimal.Decimal
	ChangeAmount  decimal.Decimal // NewStock - PreviousStock
	ChangeType    ChangeType
	ChangeDate    time.Time
	Reason        string
	RecipeID      RecipeID
	UnitCost      decimal.Decimal // cost in effect at the moment of the change
	BatchID       string          // set when written by a multi-line submission
}

// ValueChange is ChangeAmount * UnitCost.
func (m MovementEntry) ValueChange() decimal.Decimal {
	return m.ChangeAmount.Mul(m.UnitCost)
}

// MovementFilter selects movement entries from the store.
// Zero values mean "no restriction". Until is exclusive.
type MovementFilter struct {
	IngredientID IngredientID
	ChangeType   ChangeType
	From         time.Time
	Until        time.Time
}

// =============================================================================
// SNAPSHOT - Frozen copy of all levels
// =============================================================================

type Snapshot struct {
	ID           SnapshotID
	SnapshotDate time.Time
}

// SnapshotItem is one stock level as it was at capture time.
type SnapshotItem struct {
	SnapshotID   SnapshotID
	IngredientID IngredientID
	Stock        decimal.Decimal
	UnitCost     decimal.Decimal
	TotalValue   decimal.Decimal // Stock * UnitCost, computed at capture
}

// SnapshotSummary answers "what did the most recent snapshot look like".
type SnapshotSummary struct {
	SnapshotID      SnapshotID
	SnapshotDate    time.Time
	TotalValue      decimal.Decimal
	IngredientCount int
}
