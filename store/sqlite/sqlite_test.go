package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestLedger(t *testing.T) (*ledger.Ledger, *sqlite.Store) {
	t.Helper()
	store := newTestStore(t)
	return ledger.New(store), store
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func addIngredient(t *testing.T, store *sqlite.Store, name, unit, price string) ledger.IngredientID {
	t.Helper()
	id, err := store.SaveIngredient(context.Background(), ledger.Ingredient{Name: name, Unit: unit, UnitPrice: d(price)})
	require.NoError(t, err)
	return id
}

func setStock(t *testing.T, l *ledger.Ledger, id ledger.IngredientID, stock string) {
	t.Helper()
	require.NoError(t, l.UpdateLevel(context.Background(), ledger.LevelUpdate{
		IngredientID: id,
		NewStock:     d(stock),
		ChangeType:   ledger.ChangeManualEdit,
	}))
}

// =============================================================================
// CATALOG TESTS
// =============================================================================

func TestCatalog_SaveAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	flour := addIngredient(t, store, "Flour", "kg", "1.20")
	addIngredient(t, store, "basil", "bunch", "1.50")

	list, err := store.ListIngredients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "basil", list[0].Name)
	assert.Equal(t, "Flour", list[1].Name)

	_, err = store.SaveIngredient(ctx, ledger.Ingredient{ID: flour, Name: "Flour T55", Unit: "kg", UnitPrice: d("1.35")})
	require.NoError(t, err)

	got, err := store.GetIngredient(ctx, flour)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Flour T55", got.Name)
	assert.True(t, d("1.35").Equal(got.UnitPrice))

	missing, err := store.GetIngredient(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// LEDGER PROPERTY TESTS (SQLite)
// =============================================================================

func TestSQLite_ReconciliationIsIdempotent(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	addIngredient(t, store, "Flour", "kg", "1.20")
	addIngredient(t, store, "Butter", "kg", "8.00")

	for i := 0; i < 3; i++ {
		levels, err := l.GetLevels(ctx)
		require.NoError(t, err)
		require.Len(t, levels, 2)
		assert.Equal(t, "Butter", levels[0].Name)
		assert.True(t, d("8.00").Equal(levels[0].UnitCost))
	}

	var rows int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM stock_levels`).Scan(&rows))
	assert.Equal(t, 2, rows)
}

func TestSQLite_StickyCostAndThresholds(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	cream := addIngredient(t, store, "Cream", "l", "2.50")

	require.NoError(t, l.UpdateLevel(ctx, ledger.LevelUpdate{
		IngredientID: cream,
		NewStock:     d("20"),
		MinStock:     decimal.NewNullDecimal(d("2")),
		MaxStock:     decimal.NewNullDecimal(d("50")),
		ChangeType:   ledger.ChangeManualEdit,
	}))

	_, err := store.SaveIngredient(ctx, ledger.Ingredient{ID: cream, Name: "Cream", Unit: "l", UnitPrice: d("4.00")})
	require.NoError(t, err)
	setStock(t, l, cream, "10")

	level, err := l.GetLevel(ctx, cream)
	require.NoError(t, err)
	assert.True(t, d("2.50").Equal(level.UnitCost), "got %s", level.UnitCost)
	assert.True(t, d("10").Equal(level.CurrentStock))
	require.True(t, level.MinimumStock.Valid)
	require.True(t, level.MaximumStock.Valid)
	assert.True(t, d("2").Equal(level.MinimumStock.Decimal))
	assert.True(t, d("50").Equal(level.MaximumStock.Decimal))
}

func TestSQLite_BatchAccumulatesAndConserves(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	flour := addIngredient(t, store, "Flour", "kg", "1.20")
	setStock(t, l, flour, "10")

	result, err := l.RecordPurchase(ctx, []ledger.PurchaseLine{
		{IngredientID: flour, Quantity: d("5")},
		{IngredientID: flour, Quantity: d("3")},
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)

	level, err := l.GetLevel(ctx, flour)
	require.NoError(t, err)
	assert.True(t, d("18").Equal(level.CurrentStock))

	history, err := l.GetHistory(ctx, flour, ledger.TypeFilterAll, nil, nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, result.BatchID, history[0].BatchID)
	assert.Equal(t, result.BatchID, history[1].BatchID)
	assert.Empty(t, history[2].BatchID)

	replay, err := l.VerifyIngredient(ctx, flour)
	require.NoError(t, err)
	assert.True(t, replay.Consistent)
}

func TestSQLite_BatchIsAtomic(t *testing.T) {
	// GIVEN: A trigger that makes the second line's insert fail
	// WHEN: Applying a two-line batch
	// THEN: The first line is rolled back too

	l, store := newTestLedger(t)
	ctx := context.Background()
	flour := addIngredient(t, store, "Flour", "kg", "1.20")
	sugar := addIngredient(t, store, "Sugar", "kg", "0.90")
	require.NoError(t, store.EnsureSchema(ctx))

	_, err := store.DB().Exec(`
		CREATE TRIGGER fail_on_boom BEFORE INSERT ON movement_history
		WHEN NEW.reason = 'boom'
		BEGIN SELECT RAISE(ABORT, 'boom'); END;
	`)
	require.NoError(t, err)

	_, err = l.ApplyBatch(ctx, []ledger.BatchLine{
		{IngredientID: flour, Delta: d("5"), ChangeType: ledger.ChangePurchase},
		{IngredientID: sugar, Delta: d("2"), ChangeType: ledger.ChangePurchase, Reason: "boom"},
	})
	require.Error(t, err)

	levels, err := l.GetLevels(ctx)
	require.NoError(t, err)
	for _, level := range levels {
		assert.True(t, level.CurrentStock.IsZero(), "%s = %s", level.Name, level.CurrentStock)
	}

	var movements int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM movement_history`).Scan(&movements))
	assert.Equal(t, 0, movements)
}

func TestSQLite_HistoryIsAppendOnly(t *testing.T) {
	l, store := newTestLedger(t)
	flour := addIngredient(t, store, "Flour", "kg", "1.20")
	setStock(t, l, flour, "4")

	_, err := store.DB().Exec(`UPDATE movement_history SET new_stock = '400'`)
	assert.Error(t, err)

	for _, stmt := range []string{
		`UPDATE movement_history SET unit_cost = '99'`,
		`UPDATE movement_history SET recipe_id = 7`,
		`UPDATE movement_history SET batch_id = 'forged'`,
	} {
		_, err = store.DB().Exec(stmt)
		assert.Error(t, err, stmt)
	}

	// Schema upgrades run again without loosening the guard.
	require.NoError(t, store.EnsureSchema(context.Background()))
	_, err = store.DB().Exec(`UPDATE movement_history SET unit_cost = '99'`)
	assert.Error(t, err)

	_, err = store.DB().Exec(`DELETE FROM movement_history`)
	assert.Error(t, err)

	_, err = l.TakeSnapshot(context.Background())
	require.NoError(t, err)
	_, err = store.DB().Exec(`UPDATE snapshot_items SET stock = '0'`)
	assert.Error(t, err)
}

func TestSQLite_Snapshots(t *testing.T) {
	l, store := newTestLedger(t)
	ctx := context.Background()
	a := addIngredient(t, store, "A", "kg", "2.0")
	b := addIngredient(t, store, "B", "kg", "10.0")
	setStock(t, l, a, "4")
	setStock(t, l, b, "1")

	none, err := l.LatestSnapshotSummary(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	id, err := l.TakeSnapshot(ctx)
	require.NoError(t, err)

	summary, err := l.LatestSnapshotSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, id, summary.SnapshotID)
	assert.True(t, d("18.0").Equal(summary.TotalValue), "got %s", summary.TotalValue)
	assert.Equal(t, 2, summary.IngredientCount)

	items, err := l.SnapshotItems(ctx, id)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, a, items[0].IngredientID)
}

func TestSQLite_HistoryDateFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clockTime := time.Date(2025, time.March, 5, 22, 15, 0, 0, time.UTC)
	l := ledger.New(store, ledger.WithClock(func() time.Time { return clockTime }))
	flour := addIngredient(t, store, "Flour", "kg", "1.20")
	setStock(t, l, flour, "4")

	day := time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC)
	history, err := l.GetHistory(ctx, flour, "", &day, &day)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].ChangeDate.Equal(clockTime))

	next := day.AddDate(0, 0, 1)
	history, err = l.GetHistory(ctx, flour, "", &next, nil)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/ledger.db"
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	l := ledger.New(store)
	flour := addIngredient(t, store, "Flour", "kg", "1.20")
	setStock(t, l, flour, "7.5")
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	level, err := ledger.New(reopened).GetLevel(ctx, flour)
	require.NoError(t, err)
	assert.True(t, d("7.5").Equal(level.CurrentStock))
}
