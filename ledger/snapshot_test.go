package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// SNAPSHOT TESTS
// =============================================================================

func TestLatestSnapshotSummary_NoneYet(t *testing.T) {
	l, _, _ := newTestLedger(t)

	summary, err := l.LatestSnapshotSummary(context.Background())
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestTakeSnapshot_Valuation(t *testing.T) {
	// GIVEN: A at 4 x 2.0 and B at 1 x 10.0
	// WHEN: Taking a snapshot
	// THEN: The latest summary is worth 18.0 over 2 ingredients

	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	a := mem.AddIngredient("A", "kg", d("2.0"))
	b := mem.AddIngredient("B", "kg", d("10.0"))
	setStock(t, l, a, "4")
	setStock(t, l, b, "1")

	id, err := l.TakeSnapshot(ctx)
	require.NoError(t, err)
	assert.NotZero(t, id)

	summary, err := l.LatestSnapshotSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, id, summary.SnapshotID)
	assertDecimal(t, "18.0", summary.TotalValue)
	assert.Equal(t, 2, summary.IngredientCount)

	items, err := l.SnapshotItems(ctx, id)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assertDecimal(t, "8", items[0].TotalValue)
	assertDecimal(t, "10", items[1].TotalValue)
}

func TestTakeSnapshot_IsFrozen(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	a := mem.AddIngredient("A", "kg", d("2.0"))
	setStock(t, l, a, "4")

	first, err := l.TakeSnapshot(ctx)
	require.NoError(t, err)

	setStock(t, l, a, "40")
	second, err := l.TakeSnapshot(ctx)
	require.NoError(t, err)

	items, err := l.SnapshotItems(ctx, first)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assertDecimal(t, "4", items[0].Stock, "later updates must not change an earlier snapshot")

	latest, err := l.LatestSnapshotSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, latest.SnapshotID)
	assertDecimal(t, "80", latest.TotalValue)

	all, err := l.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].SnapshotID, "newest first")
	assert.Equal(t, first, all[1].SnapshotID)
}

func TestTakeSnapshot_IncludesReconciledIngredients(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	mem.AddIngredient("A", "kg", d("2.0"))
	mem.AddIngredient("B", "kg", d("3.0"))

	_, err := l.TakeSnapshot(ctx)
	require.NoError(t, err)

	summary, err := l.LatestSnapshotSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.IngredientCount)
	assertDecimal(t, "0", summary.TotalValue)
}

func TestTakeSnapshot_FailureLeavesNoSnapshot(t *testing.T) {
	l, mem, _ := newTestLedger(t)
	ctx := context.Background()
	mem.AddIngredient("A", "kg", d("2.0"))

	mem.FailNext("InsertSnapshot", errors.New("disk full"))
	_, err := l.TakeSnapshot(ctx)
	require.Error(t, err)

	summary, err := l.LatestSnapshotSummary(ctx)
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestSnapshotItems_UnknownSnapshot(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.SnapshotItems(context.Background(), 7)
	assert.ErrorIs(t, err, ledger.ErrSnapshotNotFound)
	assert.True(t, ledger.IsNotFound(err))
}

func TestLatestSnapshotSummary_OrderedByDate(t *testing.T) {
	l, mem, clock := newTestLedger(t)
	ctx := context.Background()
	mem.AddIngredient("A", "kg", d("2.0"))

	clock.Set(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	june, err := l.TakeSnapshot(ctx)
	require.NoError(t, err)

	// A snapshot recorded later but dated earlier does not become the latest.
	clock.Set(time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))
	_, err = l.TakeSnapshot(ctx)
	require.NoError(t, err)

	latest, err := l.LatestSnapshotSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, june, latest.SnapshotID)
}
