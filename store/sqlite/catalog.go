package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// INGREDIENT CATALOG (ledger.Catalog interface)
// =============================================================================

// SaveIngredient inserts the ingredient when ID is zero, otherwise updates
// the row with that ID. Returns the stored ID.
//
// Changing UnitPrice here does not touch existing stock levels: their unit
// cost is sticky.
func (s *Store) SaveIngredient(ctx context.Context, ing ledger.Ingredient) (ledger.IngredientID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ing.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO ingredients (name, unit, unit_price) VALUES (?, ?, ?)`,
			ing.Name, ing.Unit, ing.UnitPrice.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert ingredient: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read ingredient id: %w", err)
		}
		return ledger.IngredientID(id), nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, unit_price) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			unit_price = excluded.unit_price
	`, int64(ing.ID), ing.Name, ing.Unit, ing.UnitPrice.String())
	if err != nil {
		return 0, fmt.Errorf("failed to save ingredient: %w", err)
	}
	return ing.ID, nil
}

// ListIngredients returns the catalog ordered by name.
func (s *Store) ListIngredients(ctx context.Context) ([]ledger.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listIngredients(ctx, s.db)
}

// GetIngredient returns nil, nil when the ingredient does not exist.
func (s *Store) GetIngredient(ctx context.Context, id ledger.IngredientID) (*ledger.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getIngredient(ctx, s.db, id)
}

func listIngredients(ctx context.Context, q querier) ([]ledger.Ingredient, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, unit, unit_price
		FROM ingredients
		ORDER BY name COLLATE NOCASE, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingredients: %w", err)
	}
	defer rows.Close()

	ingredients := make([]ledger.Ingredient, 0)
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, ing)
	}
	return ingredients, rows.Err()
}

func getIngredient(ctx context.Context, q querier, id ledger.IngredientID) (*ledger.Ingredient, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, unit, unit_price FROM ingredients WHERE id = ?`, int64(id))
	ing, err := scanIngredient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ing, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIngredient(row scanner) (ledger.Ingredient, error) {
	var (
		ing   ledger.Ingredient
		id    int64
		price decimal.NullDecimal
	)
	if err := row.Scan(&id, &ing.Name, &ing.Unit, &price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ing, err
		}
		return ing, fmt.Errorf("failed to scan ingredient: %w", err)
	}
	ing.ID = ledger.IngredientID(id)
	ing.UnitPrice = price.Decimal
	return ing, nil
}
