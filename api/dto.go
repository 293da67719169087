/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

NUMBERS:
  Quantities, costs and values are decimal strings ("12.5"), never floats.
  Requests accept either strings or JSON numbers. Formatting for display is
  the client's job.

VALIDATION:
  Struct tags are checked by the package validator (validate.go) before a
  request reaches the ledger. The ledger re-checks everything that matters
  for consistency (negative stock, threshold order).

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// STOCK LEVELS
// =============================================================================

// StockLevelDTO represents one stock level in API responses.
type StockLevelDTO struct {
	IngredientID int64               `json:"ingredient_id"`
	Name         string              `json:"name"`
	Unit         string              `json:"unit"`
	CurrentStock decimal.Decimal     `json:"current_stock"`
	MinimumStock decimal.NullDecimal `json:"minimum_stock"`
	MaximumStock decimal.NullDecimal `json:"maximum_stock"`
	UnitCost     decimal.Decimal     `json:"unit_cost"`
	TotalValue   decimal.Decimal     `json:"total_value"`
	Status       string              `json:"status"`
	LastUpdated  string              `json:"last_updated"`
}

func toStockLevelDTO(level ledger.StockLevel) StockLevelDTO {
	return StockLevelDTO{
		IngredientID: int64(level.IngredientID),
		Name:         level.Name,
		Unit:         level.Unit,
		CurrentStock: level.CurrentStock,
		MinimumStock: level.MinimumStock,
		MaximumStock: level.MaximumStock,
		UnitCost:     level.UnitCost,
		TotalValue:   level.TotalValue(),
		Status:       string(level.Status()),
		LastUpdated:  level.LastUpdated.UTC().Format(time.RFC3339),
	}
}

func toStockLevelDTOs(levels []ledger.StockLevel) []StockLevelDTO {
	dtos := make([]StockLevelDTO, len(levels))
	for i, level := range levels {
		dtos[i] = toStockLevelDTO(level)
	}
	return dtos
}

// LowStockDTO is a low level with how much is missing to reach the minimum.
type LowStockDTO struct {
	StockLevelDTO
	Shortfall decimal.Decimal `json:"shortfall"`
}

// TotalValueDTO is the aggregate value of all stock.
type TotalValueDTO struct {
	TotalValue decimal.Decimal `json:"total_value"`
}

// UpdateLevelRequest is the body of PUT /api/levels/{ingredientID}.
// NewStock is mandatory; omitted or null thresholds leave the stored ones
// unchanged.
type UpdateLevelRequest struct {
	NewStock     decimal.NullDecimal `json:"new_stock"`
	MinimumStock decimal.NullDecimal `json:"minimum_stock"`
	MaximumStock decimal.NullDecimal `json:"maximum_stock"`
	ChangeType   string              `json:"change_type" validate:"required"`
	Reason       string              `json:"reason" validate:"max=500"`
	RecipeID     int64               `json:"recipe_id" validate:"gte=0"`
}

// =============================================================================
// MOVEMENTS
// =============================================================================

// MovementDTO represents one movement history entry.
type MovementDTO struct {
	ID            int64           `json:"id"`
	IngredientID  int64           `json:"ingredient_id"`
	PreviousStock decimal.Decimal `json:"previous_stock"`
	NewStock      decimal.Decimal `json:"new_stock"`
	ChangeAmount  decimal.Decimal `json:"change_amount"`
	ChangeType    string          `json:"change_type"`
	ChangeDate    string          `json:"change_date"`
	Reason        string          `json:"reason,omitempty"`
	RecipeID      int64           `json:"recipe_id,omitempty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	ValueChange   decimal.Decimal `json:"value_change"`
	BatchID       string          `json:"batch_id,omitempty"`
}

func toMovementDTO(e ledger.MovementEntry) MovementDTO {
	return MovementDTO{
		ID:            int64(e.ID),
		IngredientID:  int64(e.IngredientID),
		PreviousStock: e.PreviousStock,
		NewStock:      e.NewStock,
		ChangeAmount:  e.ChangeAmount,
		ChangeType:    string(e.ChangeType),
		ChangeDate:    e.ChangeDate.UTC().Format(time.RFC3339Nano),
		Reason:        e.Reason,
		RecipeID:      int64(e.RecipeID),
		UnitCost:      e.UnitCost,
		ValueChange:   e.ValueChange(),
		BatchID:       e.BatchID,
	}
}

func toMovementDTOs(entries []ledger.MovementEntry) []MovementDTO {
	dtos := make([]MovementDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toMovementDTO(e)
	}
	return dtos
}

// ReplayDTO is the result of a history replay check.
type ReplayDTO struct {
	IngredientID  int64           `json:"ingredient_id"`
	Entries       int             `json:"entries"`
	Replayed      decimal.Decimal `json:"replayed"`
	CurrentStock  decimal.Decimal `json:"current_stock"`
	Consistent    bool            `json:"consistent"`
	FirstMismatch int64           `json:"first_mismatch,omitempty"`
}

// =============================================================================
// BATCHES
// =============================================================================

// PurchaseRequest is an invoice with one or more lines.
type PurchaseRequest struct {
	Lines []PurchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type PurchaseLineRequest struct {
	IngredientID int64           `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
	Reason       string          `json:"reason" validate:"max=500"`
}

// AdjustmentRequest is a quick +/- change on one ingredient.
type AdjustmentRequest struct {
	IngredientID int64           `json:"ingredient_id" validate:"required,gt=0"`
	Delta        decimal.Decimal `json:"delta"`
	ChangeType   string          `json:"change_type"`
	Reason       string          `json:"reason" validate:"max=500"`
}

// UsageRequest deducts a recipe's ingredients.
type UsageRequest struct {
	RecipeID int64              `json:"recipe_id" validate:"required,gt=0"`
	Reason   string             `json:"reason" validate:"max=500"`
	Lines    []UsageLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type UsageLineRequest struct {
	IngredientID int64           `json:"ingredient_id" validate:"required,gt=0"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// BatchDTO is what a committed batch wrote.
type BatchDTO struct {
	BatchID string        `json:"batch_id"`
	Entries []MovementDTO `json:"entries"`
}

func toBatchDTO(result *ledger.BatchResult) BatchDTO {
	return BatchDTO{
		BatchID: result.BatchID,
		Entries: toMovementDTOs(result.Entries),
	}
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// SnapshotSummaryDTO summarizes one snapshot.
type SnapshotSummaryDTO struct {
	SnapshotID      int64           `json:"snapshot_id"`
	SnapshotDate    string          `json:"snapshot_date"`
	TotalValue      decimal.Decimal `json:"total_value"`
	IngredientCount int             `json:"ingredient_count"`
}

func toSnapshotSummaryDTO(s ledger.SnapshotSummary) SnapshotSummaryDTO {
	return SnapshotSummaryDTO{
		SnapshotID:      int64(s.SnapshotID),
		SnapshotDate:    s.SnapshotDate.UTC().Format(time.RFC3339),
		TotalValue:      s.TotalValue,
		IngredientCount: s.IngredientCount,
	}
}

// SnapshotItemDTO is one frozen stock level.
type SnapshotItemDTO struct {
	IngredientID int64           `json:"ingredient_id"`
	Stock        decimal.Decimal `json:"stock"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// =============================================================================
// REPORTS
// =============================================================================

// InventoryReportDTO is the current inventory with totals.
type InventoryReportDTO struct {
	GeneratedAt      string          `json:"generated_at"`
	Levels           []StockLevelDTO `json:"levels"`
	TotalValue       decimal.Decimal `json:"total_value"`
	LowStockCount    int             `json:"low_stock_count"`
	OverstockedCount int             `json:"overstocked_count"`
}

// VarianceLineDTO is the value change of one ingredient between two windows.
type VarianceLineDTO struct {
	IngredientID  int64           `json:"ingredient_id"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	PreviousValue decimal.Decimal `json:"previous_value"`
	Delta         decimal.Decimal `json:"delta"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// ComparisonDTO compares the current window with the one before it.
type ComparisonDTO struct {
	CurrentStart  string            `json:"current_start"`
	CurrentEnd    string            `json:"current_end"`
	PreviousStart string            `json:"previous_start"`
	PreviousEnd   string            `json:"previous_end"`
	Lines         []VarianceLineDTO `json:"lines"`
	CurrentValue  decimal.Decimal   `json:"current_value"`
	PreviousValue decimal.Decimal   `json:"previous_value"`
	Delta         decimal.Decimal   `json:"delta"`
	ChangePercent decimal.Decimal   `json:"change_percent"`
}

func toComparisonDTO(c *ledger.PeriodComparison) ComparisonDTO {
	dto := ComparisonDTO{
		CurrentStart:  c.Current.Start.UTC().Format(time.RFC3339),
		CurrentEnd:    c.Current.End.UTC().Format(time.RFC3339),
		PreviousStart: c.Previous.Start.UTC().Format(time.RFC3339),
		PreviousEnd:   c.Previous.End.UTC().Format(time.RFC3339),
		Lines:         make([]VarianceLineDTO, len(c.Lines)),
		CurrentValue:  c.CurrentValue,
		PreviousValue: c.PreviousValue,
		Delta:         c.Delta,
		ChangePercent: c.ChangePercent,
	}
	for i, line := range c.Lines {
		dto.Lines[i] = VarianceLineDTO{
			IngredientID:  int64(line.IngredientID),
			Name:          line.Name,
			Unit:          line.Unit,
			CurrentValue:  line.CurrentValue,
			PreviousValue: line.PreviousValue,
			Delta:         line.Delta,
			ChangePercent: line.ChangePercent,
		}
	}
	return dto
}

// =============================================================================
// CATALOG
// =============================================================================

// IngredientDTO is a catalog entry.
type IngredientDTO struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CreateIngredientRequest adds an ingredient to the catalog.
type CreateIngredientRequest struct {
	Name      string          `json:"name" validate:"required,max=200"`
	Unit      string          `json:"unit" validate:"max=50"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo kitchen.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo kitchen to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
