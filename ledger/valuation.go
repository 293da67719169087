/*
valuation.go - Classification and read-side reports

PURPOSE:
  Pure aggregations over stock levels and the movement history. Nothing in
  this file writes to storage, and every figure is a raw decimal. Currency
  and number formatting belong to the presentation layer.

REPORTS:
  CurrentInventory: every level with status and value, plus totals
  LowStockReport:   levels at or below minimum, with the shortfall
  HighValueItems:   top-N levels by total value
  ComparePeriods:   per-ingredient value change, current window vs the
                    equal-length window immediately before it
  MonthlyComparison: ComparePeriods over the configured report window
                    ending at a given instant

VARIANCE:
  valueChange = changeAmount * unitCost, summed per window.
  changePercent = delta / |previous| * 100, or 0 when previous is 0.
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// CURRENT INVENTORY
// =============================================================================

type InventoryLine struct {
	Level      StockLevel
	TotalValue decimal.Decimal
	Status     Status
}

type InventoryReport struct {
	GeneratedAt      time.Time
	Lines            []InventoryLine
	TotalValue       decimal.Decimal
	LowStockCount    int
	OverstockedCount int
}

func (l *Ledger) CurrentInventory(ctx context.Context) (*InventoryReport, error) {
	levels, err := l.GetLevels(ctx)
	if err != nil {
		return nil, err
	}
	report := &InventoryReport{
		GeneratedAt: l.now(),
		Lines:       make([]InventoryLine, 0, len(levels)),
		TotalValue:  sumValue(levels),
	}
	for _, level := range levels {
		status := level.Status()
		switch status {
		case StatusLowStock:
			report.LowStockCount++
		case StatusOverstocked:
			report.OverstockedCount++
		}
		report.Lines = append(report.Lines, InventoryLine{
			Level:      level,
			TotalValue: level.TotalValue(),
			Status:     status,
		})
	}
	return report, nil
}

// =============================================================================
// LOW STOCK
// =============================================================================

type LowStockLine struct {
	Level     StockLevel
	Shortfall decimal.Decimal // MinimumStock - CurrentStock, never negative
}

func (l *Ledger) LowStockReport(ctx context.Context) ([]LowStockLine, error) {
	low, err := l.GetLowStockItems(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]LowStockLine, len(low))
	for i, level := range low {
		lines[i] = LowStockLine{
			Level:     level,
			Shortfall: level.MinimumStock.Decimal.Sub(level.CurrentStock),
		}
	}
	return lines, nil
}

// =============================================================================
// HIGH VALUE
// =============================================================================

// HighValueItems returns the n levels with the largest total value.
// Ties keep name order.
func (l *Ledger) HighValueItems(ctx context.Context, n int) ([]StockLevel, error) {
	if n <= 0 {
		return nil, &ValidationError{Field: "n", Reason: "must be positive"}
	}
	levels, err := l.GetLevels(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].TotalValue().GreaterThan(levels[j].TotalValue())
	})
	if len(levels) > n {
		levels = levels[:n]
	}
	return levels, nil
}

// =============================================================================
// PERIOD COMPARISON
// =============================================================================

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Previous returns the equal-length window ending where w starts.
func (w Window) Previous() Window {
	return Window{Start: w.Start.Add(-w.End.Sub(w.Start)), End: w.Start}
}

type VarianceLine struct {
	IngredientID  IngredientID
	Name          string
	Unit          string
	CurrentValue  decimal.Decimal
	PreviousValue decimal.Decimal
	Delta         decimal.Decimal
	ChangePercent decimal.Decimal
}

type PeriodComparison struct {
	Current  Window
	Previous Window
	Lines    []VarianceLine
	// Totals over all ingredients
	CurrentValue  decimal.Decimal
	PreviousValue decimal.Decimal
	Delta         decimal.Decimal
	ChangePercent decimal.Decimal
}

// changePercent returns delta / |previous| * 100 rounded to 2 places, or 0
// when previous is 0.
func changePercent(delta, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return delta.Div(previous.Abs()).Mul(hundred).Round(2)
}

// ComparePeriods compares movement value change in [start, end) with the
// equal-length window before it. One line per ingredient, ordered by name.
func (l *Ledger) ComparePeriods(ctx context.Context, start, end time.Time) (*PeriodComparison, error) {
	if !end.After(start) {
		return nil, &ValidationError{Field: "end", Reason: "must be after start"}
	}
	current := Window{Start: start, End: end}
	previous := current.Previous()

	levels, err := l.GetLevels(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := l.store.LoadMovements(ctx, MovementFilter{From: previous.Start, Until: current.End})
	if err != nil {
		return nil, fmt.Errorf("load movements for comparison: %w", err)
	}

	type sums struct{ cur, prev decimal.Decimal }
	byIngredient := make(map[IngredientID]*sums, len(levels))
	for _, level := range levels {
		byIngredient[level.IngredientID] = &sums{cur: decimal.Zero, prev: decimal.Zero}
	}
	for _, e := range entries {
		s, ok := byIngredient[e.IngredientID]
		if !ok {
			continue
		}
		switch {
		case current.Contains(e.ChangeDate):
			s.cur = s.cur.Add(e.ValueChange())
		case previous.Contains(e.ChangeDate):
			s.prev = s.prev.Add(e.ValueChange())
		}
	}

	cmp := &PeriodComparison{
		Current:       current,
		Previous:      previous,
		Lines:         make([]VarianceLine, 0, len(levels)),
		CurrentValue:  decimal.Zero,
		PreviousValue: decimal.Zero,
	}
	for _, level := range levels {
		s := byIngredient[level.IngredientID]
		delta := s.cur.Sub(s.prev)
		cmp.Lines = append(cmp.Lines, VarianceLine{
			IngredientID:  level.IngredientID,
			Name:          level.Name,
			Unit:          level.Unit,
			CurrentValue:  s.cur,
			PreviousValue: s.prev,
			Delta:         delta,
			ChangePercent: changePercent(delta, s.prev),
		})
		cmp.CurrentValue = cmp.CurrentValue.Add(s.cur)
		cmp.PreviousValue = cmp.PreviousValue.Add(s.prev)
	}
	cmp.Delta = cmp.CurrentValue.Sub(cmp.PreviousValue)
	cmp.ChangePercent = changePercent(cmp.Delta, cmp.PreviousValue)
	return cmp, nil
}

// MonthlyComparison compares the report window ending at asOf (default 30
// days) with the window before it.
func (l *Ledger) MonthlyComparison(ctx context.Context, asOf time.Time) (*PeriodComparison, error) {
	start := asOf.AddDate(0, 0, -l.reportWindow)
	return l.ComparePeriods(ctx, start, asOf)
}
