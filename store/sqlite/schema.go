/*
schema.go - Schema evolver for the ledger tables

PURPOSE:
  EnsureSchema runs on every ledger access path. It must be cheap to repeat
  and must bring any older database file forward without losing data.

STEPS (one transaction):
  1. CREATE TABLE IF NOT EXISTS for every ledger table
  2. For each additive column: introspect with PRAGMA table_info, and if
     the column is missing, ALTER TABLE ADD COLUMN with its default
  3. For a freshly added cost column, backfill rows whose cost is null or
     zero from the catalog price
  4. CREATE INDEX / CREATE TRIGGER IF NOT EXISTS (the history update guard
     is dropped and recreated)

  Columns are never dropped or renamed. Any failure is returned as a
  *ledger.SchemaError and aborts the caller's operation.

LEGACY LAYOUT:
  The first released layout had stock_levels without unit_cost and
  movement_history without unit_cost, recipe_id or batch_id. Databases in
  that layout are upgraded in place by step 2.
*/
package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/stock-ledger/ledger"
)

// baseTables is the oldest supported layout. Columns added later live in
// additiveColumns.
const baseTables = `
	CREATE TABLE IF NOT EXISTS stock_levels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ingredient_id INTEGER NOT NULL,
		current_stock TEXT NOT NULL DEFAULT '0',
		minimum_stock TEXT,
		maximum_stock TEXT,
		last_updated TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS movement_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ingredient_id INTEGER NOT NULL,
		previous_stock TEXT NOT NULL,
		new_stock TEXT NOT NULL,
		change_amount TEXT NOT NULL,
		change_type TEXT NOT NULL,
		change_date TEXT NOT NULL,
		reason TEXT
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_date TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL REFERENCES snapshots(id),
		ingredient_id INTEGER NOT NULL,
		stock TEXT NOT NULL,
		unit_cost TEXT NOT NULL,
		total_value TEXT NOT NULL
	);
`

// column is an additive column and, optionally, the backfill to run after
// adding it.
type column struct {
	table      string
	name       string
	definition string
	backfill   string
}

var additiveColumns = []column{
	{
		table:      "stock_levels",
		name:       "unit_cost",
		definition: "TEXT DEFAULT '0'",
		backfill: `
			UPDATE stock_levels
			SET unit_cost = (SELECT i.unit_price FROM ingredients i WHERE i.id = stock_levels.ingredient_id)
			WHERE (unit_cost IS NULL OR CAST(unit_cost AS REAL) = 0)
			  AND EXISTS (SELECT 1 FROM ingredients i WHERE i.id = stock_levels.ingredient_id)`,
	},
	{
		table:      "movement_history",
		name:       "unit_cost",
		definition: "TEXT DEFAULT '0'",
		backfill: `
			UPDATE movement_history
			SET unit_cost = (SELECT i.unit_price FROM ingredients i WHERE i.id = movement_history.ingredient_id)
			WHERE (unit_cost IS NULL OR CAST(unit_cost AS REAL) = 0)
			  AND EXISTS (SELECT 1 FROM ingredients i WHERE i.id = movement_history.ingredient_id)`,
	},
	{table: "movement_history", name: "recipe_id", definition: "INTEGER"},
	{table: "movement_history", name: "batch_id", definition: "TEXT"},
}

// postColumns runs once every column exists.
const postColumns = `
	CREATE INDEX IF NOT EXISTS idx_stock_levels_ingredient
		ON stock_levels(ingredient_id);

	-- History queries filter by ingredient and order by date (hot path)
	CREATE INDEX IF NOT EXISTS idx_movement_history_ingredient_date
		ON movement_history(ingredient_id, change_date DESC);
	CREATE INDEX IF NOT EXISTS idx_movement_history_date
		ON movement_history(change_date);

	CREATE INDEX IF NOT EXISTS idx_snapshot_items_snapshot
		ON snapshot_items(snapshot_id);

	-- Append-only history. Recreated so older column-list versions are
	-- replaced; backfills above have already run.
	DROP TRIGGER IF EXISTS trg_movement_history_no_update;
	CREATE TRIGGER trg_movement_history_no_update
		BEFORE UPDATE ON movement_history
		BEGIN SELECT RAISE(ABORT, 'movement_history is append-only'); END;
	CREATE TRIGGER IF NOT EXISTS trg_movement_history_no_delete
		BEFORE DELETE ON movement_history
		BEGIN SELECT RAISE(ABORT, 'movement_history is append-only'); END;

	-- Immutable snapshots
	CREATE TRIGGER IF NOT EXISTS trg_snapshot_items_no_update
		BEFORE UPDATE ON snapshot_items
		BEGIN SELECT RAISE(ABORT, 'snapshot_items are immutable'); END;
	CREATE TRIGGER IF NOT EXISTS trg_snapshot_items_no_delete
		BEFORE DELETE ON snapshot_items
		BEGIN SELECT RAISE(ABORT, 'snapshot_items are immutable'); END;
`

// migrateCatalog creates the ingredient catalog table.
func (s *Store) migrateCatalog() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS ingredients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL DEFAULT '0'
	);
	CREATE INDEX IF NOT EXISTS idx_ingredients_name ON ingredients(name COLLATE NOCASE);
	`)
	return err
}

// EnsureSchema creates missing ledger tables and columns.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ledger.SchemaError{Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback()

	if err := ensureSchema(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &ledger.SchemaError{Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

func ensureSchema(ctx context.Context, q querier) error {
	if _, err := q.ExecContext(ctx, baseTables); err != nil {
		return &ledger.SchemaError{Err: fmt.Errorf("create tables: %w", err)}
	}

	for _, col := range additiveColumns {
		added, err := addColumnIfMissing(ctx, q, col)
		if err != nil {
			return err
		}
		if added && col.backfill != "" {
			if _, err := q.ExecContext(ctx, col.backfill); err != nil {
				return &ledger.SchemaError{Table: col.table, Column: col.name, Err: fmt.Errorf("backfill: %w", err)}
			}
		}
	}

	if _, err := q.ExecContext(ctx, postColumns); err != nil {
		return &ledger.SchemaError{Err: fmt.Errorf("create indexes: %w", err)}
	}
	return nil
}

// addColumnIfMissing reports whether the column was added by this call.
func addColumnIfMissing(ctx context.Context, q querier, col column) (bool, error) {
	exists, err := hasColumn(ctx, q, col.table, col.name)
	if err != nil {
		return false, &ledger.SchemaError{Table: col.table, Column: col.name, Err: err}
	}
	if exists {
		return false, nil
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", col.table, col.name, col.definition)
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		if isDuplicateColumnError(err) {
			return false, nil
		}
		return false, &ledger.SchemaError{Table: col.table, Column: col.name, Err: err}
	}
	return true, nil
}

func hasColumn(ctx context.Context, q querier, table, name string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("introspect %s: %w", table, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var (
			cid       int
			colName   string
			colType   string
			notNull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("introspect %s: %w", table, err)
		}
		if colName == name {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("introspect %s: %w", table, err)
	}
	return found, nil
}
