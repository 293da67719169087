/*
batch.go - Multi-line stock submissions

PURPOSE:
  A purchase invoice, a recipe's usage or a quick adjustment may touch the
  same ingredient more than once in a single user action. Each line must add
  to the result of the previous line, not overwrite it.

ALGORITHM (read-accumulate-write):
  1. Read every current stock level once, into running[ingredient] = stock
  2. For each line, in submission order:
       newStock := running[id] + delta
       applyUpdate(newStock)
       running[id] = newStock
  3. Never re-read storage for a value already tracked in running

  Without step 3, two lines for the same ingredient would both be computed
  against the pre-batch stock and the second write would discard the first.

ATOMICITY:
  The whole batch runs in one transaction. A line that would drive stock
  below zero rejects the batch and nothing is written.

EXAMPLE:
  Start: flour = 10
  Lines: flour +5, flour +3
  Result: flour = 18; two movements with ChangeAmount 5 and 3
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

var batchValidate *validator.Validate

func init() {
	batchValidate = validator.New()
	if err := batchValidate.RegisterValidation("changetype", func(fl validator.FieldLevel) bool {
		return ChangeType(fl.Field().String()).Valid()
	}); err != nil {
		panic(fmt.Sprintf("register changetype validation: %v", err))
	}
}

// =============================================================================
// BATCH
// =============================================================================

// BatchLine is one stock change inside a batch. Delta may be negative.
type BatchLine struct {
	IngredientID IngredientID `validate:"gt=0"`
	Delta        decimal.Decimal
	ChangeType   ChangeType `validate:"changetype"`
	Reason       string     `validate:"max=500"`
	RecipeID     RecipeID   `validate:"gte=0"`
}

// BatchResult is what a committed batch wrote.
type BatchResult struct {
	BatchID    string
	Entries    []MovementEntry
	FinalStock map[IngredientID]decimal.Decimal
}

func validateLines(lines []BatchLine) error {
	if len(lines) == 0 {
		return &ValidationError{Field: "lines", Reason: "at least one line is required", Err: ErrEmptyBatch}
	}
	for i, line := range lines {
		err := batchValidate.Struct(line)
		if err == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && fieldErrs[0].Tag() == "changetype" {
			return &ValidationError{
				Field:  fmt.Sprintf("lines[%d].change_type", i),
				Reason: fmt.Sprintf("unknown change type %q", line.ChangeType),
				Err:    ErrInvalidChangeType,
			}
		}
		return &ValidationError{Field: fmt.Sprintf("lines[%d]", i), Reason: err.Error()}
	}
	return nil
}

// ApplyBatch applies lines in order, accumulating per ingredient.
// Lines for ingredients missing from the catalog are skipped.
func (l *Ledger) ApplyBatch(ctx context.Context, lines []BatchLine) (result *BatchResult, err error) {
	started := time.Now()
	defer func() { observe("apply_batch", started, err) }()

	if err := validateLines(lines); err != nil {
		return nil, err
	}
	if err := l.prepare(ctx); err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	var written []*MovementEntry

	err = l.store.WithTx(ctx, func(s Store) error {
		levels, err := s.ListLevels(ctx)
		if err != nil {
			return fmt.Errorf("read stock levels: %w", err)
		}
		running := make(map[IngredientID]decimal.Decimal, len(levels))
		for _, level := range levels {
			running[level.IngredientID] = level.CurrentStock
		}

		written = written[:0]
		for i, line := range lines {
			current, known := running[line.IngredientID]
			if !known {
				l.log.Warn().Int64("ingredient_id", int64(line.IngredientID)).Int("line", i).Msg("skipping batch line for ingredient not in catalog")
				continue
			}
			newStock := current.Add(line.Delta)
			if newStock.IsNegative() {
				return &ValidationError{
					Field:  fmt.Sprintf("lines[%d]", i),
					Reason: fmt.Sprintf("ingredient %d would drop to %s", line.IngredientID, newStock),
					Err:    ErrNegativeStock,
				}
			}
			entry, err := l.applyUpdate(ctx, s, LevelUpdate{
				IngredientID: line.IngredientID,
				NewStock:     newStock,
				ChangeType:   line.ChangeType,
				Reason:       line.Reason,
				RecipeID:     line.RecipeID,
				batchID:      batchID,
			})
			if err != nil {
				return err
			}
			if entry == nil {
				continue
			}
			written = append(written, entry)
			running[line.IngredientID] = newStock
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.committed(written...)
	result = &BatchResult{
		BatchID:    batchID,
		Entries:    make([]MovementEntry, 0, len(written)),
		FinalStock: make(map[IngredientID]decimal.Decimal),
	}
	for _, e := range written {
		result.Entries = append(result.Entries, *e)
		result.FinalStock[e.IngredientID] = e.NewStock
	}
	l.log.Info().Str("batch_id", batchID).Int("lines", len(lines)).Int("written", len(written)).Msg("batch applied")
	return result, nil
}

// =============================================================================
// ENTRY POINTS
// =============================================================================

// PurchaseLine is one invoice line. Quantity must be positive.
type PurchaseLine struct {
	IngredientID IngredientID
	Quantity     decimal.Decimal
	Reason       string
}

// RecordPurchase adds every invoice line to stock as one batch.
func (l *Ledger) RecordPurchase(ctx context.Context, lines []PurchaseLine) (*BatchResult, error) {
	batch := make([]BatchLine, len(lines))
	for i, line := range lines {
		if !line.Quantity.IsPositive() {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Reason: "must be positive"}
		}
		batch[i] = BatchLine{
			IngredientID: line.IngredientID,
			Delta:        line.Quantity,
			ChangeType:   ChangePurchase,
			Reason:       line.Reason,
		}
	}
	return l.ApplyBatch(ctx, batch)
}

// QuickAdjust applies a single +/- delta.
func (l *Ledger) QuickAdjust(ctx context.Context, id IngredientID, delta decimal.Decimal, ct ChangeType, reason string) (*MovementEntry, error) {
	if delta.IsZero() {
		return nil, &ValidationError{Field: "delta", Reason: "must not be zero"}
	}
	result, err := l.ApplyBatch(ctx, []BatchLine{{
		IngredientID: id,
		Delta:        delta,
		ChangeType:   ct,
		Reason:       reason,
	}})
	if err != nil {
		return nil, err
	}
	if len(result.Entries) == 0 {
		return nil, nil
	}
	return &result.Entries[0], nil
}

// UsageLine is one ingredient consumed by a recipe. Quantity must be positive.
type UsageLine struct {
	IngredientID IngredientID
	Quantity     decimal.Decimal
}

// RecordUsage deducts a recipe's ingredients and tags every entry with recipeID.
func (l *Ledger) RecordUsage(ctx context.Context, recipeID RecipeID, lines []UsageLine, reason string) (*BatchResult, error) {
	if recipeID <= 0 {
		return nil, &ValidationError{Field: "recipe_id", Reason: "must be positive"}
	}
	batch := make([]BatchLine, len(lines))
	for i, line := range lines {
		if !line.Quantity.IsPositive() {
			return nil, &ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Reason: "must be positive"}
		}
		batch[i] = BatchLine{
			IngredientID: line.IngredientID,
			Delta:        line.Quantity.Neg(),
			ChangeType:   ChangeUsage,
			Reason:       reason,
			RecipeID:     recipeID,
		}
	}
	return l.ApplyBatch(ctx, batch)
}
