package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// STOCK LEVELS
// =============================================================================

func (s *Store) ReconcileLevels(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return reconcileLevels(ctx, s.db, now)
}

func (s *Store) ListLevels(ctx context.Context) ([]ledger.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLevels(ctx, s.db)
}

func (s *Store) GetLevel(ctx context.Context, id ledger.IngredientID) (*ledger.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLevel(ctx, s.db, id)
}

func (s *Store) InsertLevel(ctx context.Context, level ledger.StockLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertLevel(ctx, s.db, level)
}

func (s *Store) UpdateLevel(ctx context.Context, level ledger.StockLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateLevel(ctx, s.db, level)
}

// reconcileLevels inserts a zero level for every catalog ingredient without
// one. The anti-join makes repeated runs insert nothing.
func reconcileLevels(ctx context.Context, q querier, now time.Time) (int, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO stock_levels (ingredient_id, current_stock, minimum_stock, maximum_stock, unit_cost, last_updated)
		SELECT i.id, '0', NULL, NULL, i.unit_price, ?
		FROM ingredients i
		LEFT JOIN stock_levels s ON s.ingredient_id = i.id
		WHERE s.ingredient_id IS NULL
	`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stock levels: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile stock levels: %w", err)
	}
	return int(n), nil
}

// listLevels joins the catalog and resolves unit cost as stored cost, then
// catalog price, then zero.
func listLevels(ctx context.Context, q querier) ([]ledger.StockLevel, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.ingredient_id, i.name, i.unit, s.current_stock, s.minimum_stock,
		       s.maximum_stock, s.unit_cost, i.unit_price, s.last_updated
		FROM stock_levels s
		JOIN ingredients i ON i.id = s.ingredient_id
		ORDER BY i.name COLLATE NOCASE, s.ingredient_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock levels: %w", err)
	}
	defer rows.Close()

	levels := make([]ledger.StockLevel, 0)
	seen := make(map[ledger.IngredientID]bool)
	for rows.Next() {
		var (
			level       ledger.StockLevel
			id          int64
			storedCost  decimal.NullDecimal
			catalogCost decimal.NullDecimal
			updated     string
		)
		err := rows.Scan(&id, &level.Name, &level.Unit, &level.CurrentStock,
			&level.MinimumStock, &level.MaximumStock, &storedCost, &catalogCost, &updated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock level: %w", err)
		}
		level.IngredientID = ledger.IngredientID(id)
		// Only the first row per ingredient counts.
		if seen[level.IngredientID] {
			continue
		}
		seen[level.IngredientID] = true

		switch {
		case storedCost.Valid && !storedCost.Decimal.IsZero():
			level.UnitCost = storedCost.Decimal
		case catalogCost.Valid:
			level.UnitCost = catalogCost.Decimal
		default:
			level.UnitCost = decimal.Zero
		}
		if level.LastUpdated, err = parseTime(updated); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// getLevel returns the stored row with its raw unit cost (null reads as 0).
func getLevel(ctx context.Context, q querier, id ledger.IngredientID) (*ledger.StockLevel, error) {
	var (
		level      ledger.StockLevel
		name, unit sql.NullString
		storedCost decimal.NullDecimal
		updated    string
	)
	err := q.QueryRowContext(ctx, `
		SELECT i.name, i.unit, s.current_stock, s.minimum_stock, s.maximum_stock, s.unit_cost, s.last_updated
		FROM stock_levels s
		LEFT JOIN ingredients i ON i.id = s.ingredient_id
		WHERE s.ingredient_id = ?
		ORDER BY s.id
		LIMIT 1
	`, int64(id)).Scan(&name, &unit, &level.CurrentStock, &level.MinimumStock,
		&level.MaximumStock, &storedCost, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock level: %w", err)
	}

	level.IngredientID = id
	level.Name = name.String
	level.Unit = unit.String
	level.UnitCost = storedCost.Decimal
	if level.LastUpdated, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &level, nil
}

func insertLevel(ctx context.Context, q querier, level ledger.StockLevel) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO stock_levels (ingredient_id, current_stock, minimum_stock, maximum_stock, unit_cost, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		int64(level.IngredientID),
		level.CurrentStock.String(),
		nullDecimal(level.MinimumStock),
		nullDecimal(level.MaximumStock),
		level.UnitCost.String(),
		formatTime(level.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stock level: %w", err)
	}
	return nil
}

func updateLevel(ctx context.Context, q querier, level ledger.StockLevel) error {
	_, err := q.ExecContext(ctx, `
		UPDATE stock_levels
		SET current_stock = ?, minimum_stock = ?, maximum_stock = ?, unit_cost = ?, last_updated = ?
		WHERE ingredient_id = ?
	`,
		level.CurrentStock.String(),
		nullDecimal(level.MinimumStock),
		nullDecimal(level.MaximumStock),
		level.UnitCost.String(),
		formatTime(level.LastUpdated),
		int64(level.IngredientID),
	)
	if err != nil {
		return fmt.Errorf("failed to update stock level: %w", err)
	}
	return nil
}
