package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// MOVEMENT HISTORY (append-only)
// =============================================================================

func (s *Store) AppendMovement(ctx context.Context, entry ledger.MovementEntry) (ledger.MovementID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendMovement(ctx, s.db, entry)
}

func (s *Store) LoadMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.MovementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadMovements(ctx, s.db, filter)
}

func appendMovement(ctx context.Context, q querier, e ledger.MovementEntry) (ledger.MovementID, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO movement_history
		(ingredient_id, previous_stock, new_stock, change_amount, change_type,
		 change_date, reason, recipe_id, unit_cost, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		int64(e.IngredientID),
		e.PreviousStock.String(),
		e.NewStock.String(),
		e.ChangeAmount.String(),
		string(e.ChangeType),
		formatTime(e.ChangeDate),
		nullString(e.Reason),
		nullRecipe(e.RecipeID),
		e.UnitCost.String(),
		nullString(e.BatchID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append movement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read movement id: %w", err)
	}
	return ledger.MovementID(id), nil
}

// loadMovements returns matching entries newest first. Ties on change_date
// fall back to insertion order.
func loadMovements(ctx context.Context, q querier, f ledger.MovementFilter) ([]ledger.MovementEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.IngredientID != 0 {
		where = append(where, "ingredient_id = ?")
		args = append(args, int64(f.IngredientID))
	}
	if f.ChangeType != "" {
		where = append(where, "change_type = ?")
		args = append(args, string(f.ChangeType))
	}
	if !f.From.IsZero() {
		where = append(where, "change_date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.Until.IsZero() {
		where = append(where, "change_date < ?")
		args = append(args, formatTime(f.Until))
	}

	query := `
		SELECT id, ingredient_id, previous_stock, new_stock, change_amount, change_type,
		       change_date, reason, recipe_id, unit_cost, batch_id
		FROM movement_history`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY change_date DESC, id DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	entries := make([]ledger.MovementEntry, 0)
	for rows.Next() {
		e, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanMovement(rows *sql.Rows) (ledger.MovementEntry, error) {
	var (
		e            ledger.MovementEntry
		id           int64
		ingredientID int64
		changeType   string
		changeDate   string
		reason       sql.NullString
		recipeID     sql.NullInt64
		unitCost     decimal.NullDecimal
		batchID      sql.NullString
	)
	err := rows.Scan(&id, &ingredientID, &e.PreviousStock, &e.NewStock, &e.ChangeAmount,
		&changeType, &changeDate, &reason, &recipeID, &unitCost, &batchID)
	if err != nil {
		return e, fmt.Errorf("failed to scan movement: %w", err)
	}

	e.ID = ledger.MovementID(id)
	e.IngredientID = ledger.IngredientID(ingredientID)
	e.ChangeType = ledger.ChangeType(changeType)
	if e.ChangeDate, err = parseTime(changeDate); err != nil {
		return e, err
	}
	e.Reason = reason.String
	e.RecipeID = ledger.RecipeID(recipeID.Int64)
	e.UnitCost = unitCost.Decimal
	e.BatchID = batchID.String
	return e, nil
}
