package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// BATCH RECONCILIATION TESTS
// =============================================================================

func TestApplyBatch_SameIngredientAccumulates(t *testing.T) {
	// GIVEN: Flour at 10
	// WHEN: One batch with flour +5 and flour +3
	// THEN: Flour is 18 and the two new entries sum to 8

	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	flour := mem.AddIngredient("Flour", "kg", d("1.20"))
	setStock(t, l, flour, "10")

	result, err := l.RecordPurchase(ctx, []ledger.PurchaseLine{
		{IngredientID: flour, Quantity: d("5"), Reason: "invoice 118"},
		{IngredientID: flour, Quantity: d("3"), Reason: "invoice 118"},
	})
	require.NoError(t, err)

	level, err := l.GetLevel(ctx, flour)
	require.NoError(t, err)
	assertDecimal(t, "18", level.CurrentStock)

	require.Len(t, result.Entries, 2)
	assertDecimal(t, "5", result.Entries[0].ChangeAmount)
	assertDecimal(t, "3", result.Entries[1].ChangeAmount)
	assertDecimal(t, "10", result.Entries[0].PreviousStock)
	assertDecimal(t, "15", result.Entries[1].PreviousStock)
	assertDecimal(t, "18", result.FinalStock[flour])

	sum := result.Entries[0].ChangeAmount.Add(result.Entries[1].ChangeAmount)
	assertDecimal(t, "8", sum)

	assert.NotEmpty(t, result.BatchID)
	for _, e := range result.Entries {
		assert.Equal(t, result.BatchID, e.BatchID)
		assert.Equal(t, ledger.ChangePurchase, e.ChangeType)
	}
}

func TestApplyBatch_MixedIngredients(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	flour := mem.AddIngredient("Flour", "kg", d("1.20"))
	sugar := mem.AddIngredient("Sugar", "kg", d("0.90"))
	setStock(t, l, sugar, "2")

	result, err := l.ApplyBatch(ctx, []ledger.BatchLine{
		{IngredientID: flour, Delta: d("4"), ChangeType: ledger.ChangeAddition},
		{IngredientID: sugar, Delta: d("-1.5"), ChangeType: ledger.ChangeWaste},
		{IngredientID: flour, Delta: d("-1"), ChangeType: ledger.ChangeRemoval},
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	assertDecimal(t, "3", result.FinalStock[flour])
	assertDecimal(t, "0.5", result.FinalStock[sugar])

	levels, err := l.GetLevels(ctx)
	require.NoError(t, err)
	assertDecimal(t, "3", levels[0].CurrentStock)
	assertDecimal(t, "0.5", levels[1].CurrentStock)
}

func TestApplyBatch_NegativeResultRejectsWholeBatch(t *testing.T) {
	// GIVEN: Flour at 10
	// WHEN: A batch of +5 then -20
	// THEN: Rejected, flour stays 10, no entries written

	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	flour := mem.AddIngredient("Flour", "kg", d("1.20"))
	setStock(t, l, flour, "10")
	before := mem.MovementCount()

	_, err := l.ApplyBatch(ctx, []ledger.BatchLine{
		{IngredientID: flour, Delta: d("5"), ChangeType: ledger.ChangeAddition},
		{IngredientID: flour, Delta: d("-20"), ChangeType: ledger.ChangeRemoval},
	})
	assert.ErrorIs(t, err, ledger.ErrNegativeStock)
	assert.True(t, ledger.IsValidation(err))

	level, err := l.GetLevel(ctx, flour)
	require.NoError(t, err)
	assertDecimal(t, "10", level.CurrentStock)
	assert.Equal(t, before, mem.MovementCount())
}

func TestApplyBatch_StorageFailureRollsBack(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	flour := mem.AddIngredient("Flour", "kg", d("1.20"))
	sugar := mem.AddIngredient("Sugar", "kg", d("0.90"))

	mem.FailNext("AppendMovement", errors.New("io error"))
	_, err := l.ApplyBatch(ctx, []ledger.BatchLine{
		{IngredientID: flour, Delta: d("5"), ChangeType: ledger.ChangePurchase},
		{IngredientID: sugar, Delta: d("2"), ChangeType: ledger.ChangePurchase},
	})
	require.Error(t, err)

	levels, err := l.GetLevels(ctx)
	require.NoError(t, err)
	for _, level := range levels {
		assert.True(t, level.CurrentStock.IsZero(), "%s must be untouched", level.Name)
	}
	assert.Equal(t, 0, mem.MovementCount())
}

func TestApplyBatch_UnknownIngredientLineIsSkipped(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	flour := mem.AddIngredient("Flour", "kg", d("1.20"))

	result, err := l.ApplyBatch(ctx, []ledger.BatchLine{
		{IngredientID: 404, Delta: d("1"), ChangeType: ledger.ChangeAddition},
		{IngredientID: flour, Delta: d("2"), ChangeType: ledger.ChangeAddition},
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, flour, result.Entries[0].IngredientID)
	_, tracked := result.FinalStock[404]
	assert.False(t, tracked)
}

func TestApplyBatch_UnknownIngredientNegativeLineIsSkipped(t *testing.T) {
	// GIVEN: Flour at 10
	// WHEN: A batch removes 3 of an ingredient that is not in the catalog and 4 flour
	// THEN: The unknown line is skipped and flour drops to 6

	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	flour := mem.AddIngredient("Flour", "kg", d("1.20"))
	setStock(t, l, flour, "10")

	result, err := l.ApplyBatch(ctx, []ledger.BatchLine{
		{IngredientID: 404, Delta: d("-3"), ChangeType: ledger.ChangeRemoval},
		{IngredientID: flour, Delta: d("-4"), ChangeType: ledger.ChangeRemoval},
	})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.True(t, d("6").Equal(result.FinalStock[flour]))
	assert.Equal(t, 2, mem.MovementCount())
}

func TestApplyBatch_Validation(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	flour := mem.AddIngredient("Flour", "kg", d("1.20"))

	_, err := l.ApplyBatch(ctx, nil)
	assert.ErrorIs(t, err, ledger.ErrEmptyBatch)

	_, err = l.ApplyBatch(ctx, []ledger.BatchLine{{IngredientID: flour, Delta: d("1"), ChangeType: "gift"}})
	assert.ErrorIs(t, err, ledger.ErrInvalidChangeType)

	_, err = l.ApplyBatch(ctx, []ledger.BatchLine{{IngredientID: 0, Delta: d("1"), ChangeType: ledger.ChangeAddition}})
	assert.True(t, ledger.IsValidation(err))

	_, err = l.RecordPurchase(ctx, []ledger.PurchaseLine{{IngredientID: flour, Quantity: d("0")}})
	assert.True(t, ledger.IsValidation(err))

	_, err = l.QuickAdjust(ctx, flour, decimal.Zero, ledger.ChangeAdjustment, "")
	assert.True(t, ledger.IsValidation(err))

	_, err = l.RecordUsage(ctx, 0, []ledger.UsageLine{{IngredientID: flour, Quantity: d("1")}}, "")
	assert.True(t, ledger.IsValidation(err))

	assert.Equal(t, 0, mem.MovementCount())
}

// =============================================================================
// ENTRY POINT TESTS
// =============================================================================

func TestQuickAdjust(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	milk := mem.AddIngredient("Milk", "l", d("0.80"))
	setStock(t, l, milk, "6")

	entry, err := l.QuickAdjust(ctx, milk, d("-2"), ledger.ChangeAdjustment, "spilled")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assertDecimal(t, "6", entry.PreviousStock)
	assertDecimal(t, "4", entry.NewStock)
	assert.Equal(t, "spilled", entry.Reason)

	entry, err = l.QuickAdjust(ctx, 999, d("1"), ledger.ChangeAdjustment, "")
	require.NoError(t, err)
	assert.Nil(t, entry, "unknown ingredient writes nothing")
}

func TestRecordUsage_TagsRecipe(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	flour := mem.AddIngredient("Flour", "kg", d("1.20"))
	eggs := mem.AddIngredient("Eggs", "unit", d("0.25"))
	setStock(t, l, flour, "5")
	setStock(t, l, eggs, "12")

	result, err := l.RecordUsage(ctx, 31, []ledger.UsageLine{
		{IngredientID: flour, Quantity: d("0.5")},
		{IngredientID: eggs, Quantity: d("3")},
	}, "pasta dough")
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)

	for _, e := range result.Entries {
		assert.Equal(t, ledger.RecipeID(31), e.RecipeID)
		assert.Equal(t, ledger.ChangeUsage, e.ChangeType)
		assert.True(t, e.ChangeAmount.IsNegative())
	}
	assertDecimal(t, "4.5", result.FinalStock[flour])
	assertDecimal(t, "9", result.FinalStock[eggs])

	_, err = l.RecordUsage(ctx, 31, []ledger.UsageLine{{IngredientID: eggs, Quantity: d("10")}}, "")
	assert.ErrorIs(t, err, ledger.ErrNegativeStock)
}
