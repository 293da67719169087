package sqlite

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
)

func newLegacyStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// The first released layout, with catalog and data already in it.
	_, err = store.db.Exec(baseTables)
	require.NoError(t, err)
	_, err = store.db.Exec(`
		INSERT INTO ingredients (id, name, unit, unit_price) VALUES
			(1, 'Flour', 'kg', '1.20'),
			(2, 'Butter', 'kg', '8.00');
		INSERT INTO stock_levels (ingredient_id, current_stock, minimum_stock, maximum_stock, last_updated) VALUES
			(1, '12', '5', NULL, '2024-11-02T10:00:00.000000000Z');
		INSERT INTO movement_history (ingredient_id, previous_stock, new_stock, change_amount, change_type, change_date, reason) VALUES
			(1, '0', '12', '12', 'purchase', '2024-11-02T10:00:00.000000000Z', 'opening');
	`)
	require.NoError(t, err)
	return store
}

func columnsOf(t *testing.T, s *Store, table string) map[string]bool {
	t.Helper()
	cols := make(map[string]bool)
	for _, col := range []string{"unit_cost", "recipe_id", "batch_id"} {
		ok, err := hasColumn(context.Background(), s.db, table, col)
		require.NoError(t, err)
		cols[col] = ok
	}
	return cols
}

func TestEnsureSchema_UpgradesLegacyLayout(t *testing.T) {
	// GIVEN: A database in the legacy layout with one stock level and one movement
	// WHEN: Running the evolver
	// THEN: Missing columns exist and legacy costs are backfilled from the catalog

	store := newLegacyStore(t)
	ctx := context.Background()

	require.False(t, columnsOf(t, store, "stock_levels")["unit_cost"])
	require.NoError(t, store.EnsureSchema(ctx))

	assert.True(t, columnsOf(t, store, "stock_levels")["unit_cost"])
	history := columnsOf(t, store, "movement_history")
	assert.True(t, history["unit_cost"])
	assert.True(t, history["recipe_id"])
	assert.True(t, history["batch_id"])

	level, err := store.GetLevel(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, level)
	assert.True(t, decimal.RequireFromString("1.20").Equal(level.UnitCost), "got %s", level.UnitCost)
	assert.True(t, decimal.RequireFromString("12").Equal(level.CurrentStock))
	assert.True(t, level.MinimumStock.Valid)

	entries, err := store.LoadMovements(ctx, ledger.MovementFilter{IngredientID: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, decimal.RequireFromString("1.20").Equal(entries[0].UnitCost))
	assert.Equal(t, ledger.RecipeID(0), entries[0].RecipeID)
	assert.Empty(t, entries[0].BatchID)
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	store := newLegacyStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.EnsureSchema(ctx))
	}

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM stock_levels`).Scan(&count))
	assert.Equal(t, 1, count)
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM movement_history`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestEnsureSchema_BackfillKeepsExistingCost(t *testing.T) {
	store := newLegacyStore(t)
	ctx := context.Background()

	// Column added by hand with a known cost before the evolver ever ran.
	_, err := store.db.Exec(`ALTER TABLE stock_levels ADD COLUMN unit_cost TEXT DEFAULT '0'`)
	require.NoError(t, err)
	_, err = store.db.Exec(`UPDATE stock_levels SET unit_cost = '0.95' WHERE ingredient_id = 1`)
	require.NoError(t, err)

	require.NoError(t, store.EnsureSchema(ctx))

	level, err := store.GetLevel(ctx, 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.95").Equal(level.UnitCost))
}

func TestEnsureSchema_LegacyDataWorksWithLedger(t *testing.T) {
	store := newLegacyStore(t)
	ctx := context.Background()
	l := ledger.New(store)

	levels, err := l.GetLevels(ctx)
	require.NoError(t, err)
	require.Len(t, levels, 2, "butter is reconciled")
	assert.Equal(t, "Butter", levels[0].Name)
	assert.True(t, levels[0].CurrentStock.IsZero())

	result, err := l.QuickAdjust(ctx, 1, decimal.NewFromInt(-2), ledger.ChangeWaste, "")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10").Equal(result.NewStock))

	replay, err := l.VerifyIngredient(ctx, 1)
	require.NoError(t, err)
	assert.True(t, replay.Consistent)
}

func TestEnsureSchema_FailureIsSchemaError(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	// A view with a ledger table name cannot be altered.
	_, err = store.db.Exec(`CREATE VIEW stock_levels AS SELECT 1 AS ingredient_id`)
	require.NoError(t, err)
	defer store.Close()

	err = store.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.True(t, ledger.IsSchema(err))
}
