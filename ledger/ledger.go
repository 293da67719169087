/*
ledger.go - The inventory ledger service

PURPOSE:
  Ledger is the single entry point for everything that reads or changes
  stock. It keeps the materialized stock_levels view and the append-only
  movement history consistent: every stock change goes through UpdateLevel
  (directly or via a batch), which reads, writes the level and appends a
  movement entry inside one storage transaction.

ACCESS PATH:
  Every operation first runs the schema evolver. Operations that read levels
  also run reconciliation so that each catalog ingredient has a level row.

    GetLevels:   EnsureSchema -> ReconcileLevels -> ListLevels
    UpdateLevel: validate -> EnsureSchema -> WithTx(read, write level, append)

CRITICAL INVARIANTS:
  1. One movement entry per UpdateLevel call that touches a known ingredient
  2. Replaying ChangeAmount from 0 reproduces every live CurrentStock
  3. Unit cost is sticky once non-zero
  4. A threshold can be set through UpdateLevel but never cleared

SEE ALSO:
  - batch.go: Read-accumulate-write for multi-line submissions
  - snapshot.go: Snapshot engine
  - valuation.go: Reports
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store        TxStore
	log          zerolog.Logger
	now          func() time.Time
	reportWindow int // days, used by MonthlyComparison
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithReportWindow sets the window length in days for MonthlyComparison.
func WithReportWindow(days int) Option {
	return func(l *Ledger) {
		if days > 0 {
			l.reportWindow = days
		}
	}
}

func New(store TxStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		log:          zerolog.Nop(),
		now:          time.Now,
		reportWindow: 30,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ensureSchema runs the evolver. Any failure is a schema error.
func (l *Ledger) ensureSchema(ctx context.Context) error {
	if err := l.store.EnsureSchema(ctx); err != nil {
		if IsSchema(err) {
			return err
		}
		return &SchemaError{Err: err}
	}
	return nil
}

// prepare runs the evolver and then reconciliation.
func (l *Ledger) prepare(ctx context.Context) error {
	if err := l.ensureSchema(ctx); err != nil {
		return err
	}
	n, err := l.store.ReconcileLevels(ctx, l.now())
	if err != nil {
		return fmt.Errorf("reconcile stock levels: %w", err)
	}
	if n > 0 {
		reconciledLevelsTotal.Add(float64(n))
		l.log.Info().Int("created", n).Msg("reconciled missing stock levels")
	}
	return nil
}

// =============================================================================
// LEVELS
// =============================================================================

// GetLevels returns every stock level ordered by ingredient name.
func (l *Ledger) GetLevels(ctx context.Context) (levels []StockLevel, err error) {
	started := time.Now()
	defer func() { observe("get_levels", started, err) }()

	if err := l.prepare(ctx); err != nil {
		return nil, err
	}
	levels, err = l.store.ListLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stock levels: %w", err)
	}
	return levels, nil
}

// GetLevel returns the level for one ingredient.
func (l *Ledger) GetLevel(ctx context.Context, id IngredientID) (*StockLevel, error) {
	levels, err := l.GetLevels(ctx)
	if err != nil {
		return nil, err
	}
	for i := range levels {
		if levels[i].IngredientID == id {
			return &levels[i], nil
		}
	}
	return nil, fmt.Errorf("ingredient %d: %w", id, ErrIngredientNotFound)
}

// GetLowStockItems returns levels at or below their minimum, ordered by name.
func (l *Ledger) GetLowStockItems(ctx context.Context) ([]StockLevel, error) {
	levels, err := l.GetLevels(ctx)
	if err != nil {
		return nil, err
	}
	low := make([]StockLevel, 0)
	for _, level := range levels {
		if level.IsLowStock() {
			low = append(low, level)
		}
	}
	return low, nil
}

// GetTotalValue is the sum of CurrentStock * UnitCost over all levels.
func (l *Ledger) GetTotalValue(ctx context.Context) (decimal.Decimal, error) {
	levels, err := l.GetLevels(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return sumValue(levels), nil
}

func sumValue(levels []StockLevel) decimal.Decimal {
	total := decimal.Zero
	for _, level := range levels {
		total = total.Add(level.TotalValue())
	}
	return total
}

// =============================================================================
// UPDATE - The single state transition
// =============================================================================

// LevelUpdate is the input to UpdateLevel.
// MinStock/MaxStock are only applied when Valid; absent values leave the
// stored threshold untouched.
type LevelUpdate struct {
	IngredientID IngredientID
	NewStock     decimal.Decimal
	MinStock     decimal.NullDecimal
	MaxStock     decimal.NullDecimal
	ChangeType   ChangeType
	Reason       string
	RecipeID     RecipeID

	batchID string
}

func (u LevelUpdate) validate() error {
	if u.IngredientID <= 0 {
		return &ValidationError{Field: "ingredient_id", Reason: "must be positive"}
	}
	if !u.ChangeType.Valid() {
		return &ValidationError{Field: "change_type", Reason: fmt.Sprintf("unknown change type %q", u.ChangeType), Err: ErrInvalidChangeType}
	}
	if u.NewStock.IsNegative() {
		return &ValidationError{Field: "new_stock", Reason: u.NewStock.String() + " is below zero", Err: ErrNegativeStock}
	}
	if u.MinStock.Valid && u.MinStock.Decimal.IsNegative() {
		return &ValidationError{Field: "minimum_stock", Reason: "must not be negative", Err: ErrNegativeStock}
	}
	if u.MaxStock.Valid && u.MaxStock.Decimal.IsNegative() {
		return &ValidationError{Field: "maximum_stock", Reason: "must not be negative", Err: ErrNegativeStock}
	}
	return checkThresholds(u.MinStock, u.MaxStock)
}

func checkThresholds(lo, hi decimal.NullDecimal) error {
	if lo.Valid && hi.Valid && lo.Decimal.GreaterThan(hi.Decimal) {
		return &ValidationError{
			Field:  "minimum_stock",
			Reason: fmt.Sprintf("%s exceeds maximum %s", lo.Decimal, hi.Decimal),
			Err:    ErrThresholdOrder,
		}
	}
	return nil
}

// UpdateLevel sets an ingredient's stock and appends one movement entry.
// Read, level write and append happen in one transaction. An ingredient
// missing from the catalog is a no-op.
func (l *Ledger) UpdateLevel(ctx context.Context, u LevelUpdate) (err error) {
	started := time.Now()
	defer func() { observe("update_level", started, err) }()

	if err := u.validate(); err != nil {
		return err
	}
	if err := l.ensureSchema(ctx); err != nil {
		return err
	}

	var entry *MovementEntry
	err = l.store.WithTx(ctx, func(s Store) error {
		var err error
		entry, err = l.applyUpdate(ctx, s, u)
		return err
	})
	if err != nil {
		return err
	}
	l.committed(entry)
	return nil
}

// applyUpdate runs steps 1-4 of the state transition against s.
// Returns nil entry when the ingredient is not in the catalog.
func (l *Ledger) applyUpdate(ctx context.Context, s Store, u LevelUpdate) (*MovementEntry, error) {
	ingredient, err := s.GetIngredient(ctx, u.IngredientID)
	if err != nil {
		return nil, fmt.Errorf("get ingredient %d: %w", u.IngredientID, err)
	}
	if ingredient == nil {
		l.log.Warn().Int64("ingredient_id", int64(u.IngredientID)).Msg("ignoring stock update for ingredient not in catalog")
		return nil, nil
	}

	current, err := s.GetLevel(ctx, u.IngredientID)
	if err != nil {
		return nil, fmt.Errorf("get stock level %d: %w", u.IngredientID, err)
	}

	now := l.now()
	previous := decimal.Zero
	unitCost := ingredient.UnitPrice

	if current == nil {
		level := StockLevel{
			IngredientID: u.IngredientID,
			CurrentStock: u.NewStock,
			MinimumStock: u.MinStock,
			MaximumStock: u.MaxStock,
			UnitCost:     unitCost,
			LastUpdated:  now,
		}
		if err := s.InsertLevel(ctx, level); err != nil {
			return nil, fmt.Errorf("insert stock level %d: %w", u.IngredientID, err)
		}
	} else {
		previous = current.CurrentStock
		level := *current
		level.CurrentStock = u.NewStock
		if u.MinStock.Valid {
			level.MinimumStock = u.MinStock
		}
		if u.MaxStock.Valid {
			level.MaximumStock = u.MaxStock
		}
		if err := checkThresholds(level.MinimumStock, level.MaximumStock); err != nil {
			return nil, err
		}
		if level.UnitCost.IsZero() {
			level.UnitCost = unitCost
		} else {
			unitCost = level.UnitCost
		}
		level.LastUpdated = now
		if err := s.UpdateLevel(ctx, level); err != nil {
			return nil, fmt.Errorf("update stock level %d: %w", u.IngredientID, err)
		}
	}

	entry := MovementEntry{
		IngredientID:  u.IngredientID,
		PreviousStock: previous,
		NewStock:      u.NewStock,
		ChangeAmount:  u.NewStock.Sub(previous),
		ChangeType:    u.ChangeType,
		ChangeDate:    now,
		Reason:        u.Reason,
		RecipeID:      u.RecipeID,
		UnitCost:      unitCost,
		BatchID:       u.batchID,
	}
	id, err := s.AppendMovement(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("append movement %d: %w", u.IngredientID, err)
	}
	entry.ID = id
	return &entry, nil
}

// committed is called once the transaction holding entries has committed.
func (l *Ledger) committed(entries ...*MovementEntry) {
	for _, e := range entries {
		if e == nil {
			continue
		}
		movementsTotal.WithLabelValues(string(e.ChangeType)).Inc()
		l.log.Debug().
			Int64("ingredient_id", int64(e.IngredientID)).
			Str("change_type", string(e.ChangeType)).
			Str("previous", e.PreviousStock.String()).
			Str("new", e.NewStock.String()).
			Str("batch_id", e.BatchID).
			Msg("stock updated")
	}
}

// =============================================================================
// HISTORY
// =============================================================================

// GetHistory returns movements for one ingredient, newest first.
// typeFilter is a change type or "All" (empty also means all). start and end
// are inclusive dates; end covers the whole day.
func (l *Ledger) GetHistory(ctx context.Context, id IngredientID, typeFilter string, start, end *time.Time) ([]MovementEntry, error) {
	filter := MovementFilter{IngredientID: id}
	if typeFilter != "" && typeFilter != TypeFilterAll {
		ct, err := ParseChangeType(typeFilter)
		if err != nil {
			return nil, err
		}
		filter.ChangeType = ct
	}
	if start != nil {
		filter.From = startOfDay(*start)
	}
	if end != nil {
		filter.Until = startOfDay(*end).AddDate(0, 0, 1)
	}
	if start != nil && end != nil && filter.Until.Before(filter.From) {
		return nil, &ValidationError{Field: "end_date", Reason: "before start date"}
	}

	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}
	entries, err := l.store.LoadMovements(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load movement history %d: %w", id, err)
	}
	return entries, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// =============================================================================
// REPLAY CHECK
// =============================================================================

// ReplayResult reports whether an ingredient's history reproduces its stock.
type ReplayResult struct {
	IngredientID  IngredientID
	Entries       int
	Replayed      decimal.Decimal
	CurrentStock  decimal.Decimal
	Consistent    bool
	FirstMismatch MovementID // zero when consistent
}

// VerifyIngredient replays the movement history from zero and compares each
// entry's previous stock and the final sum with the live level.
func (l *Ledger) VerifyIngredient(ctx context.Context, id IngredientID) (*ReplayResult, error) {
	level, err := l.GetLevel(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := l.store.LoadMovements(ctx, MovementFilter{IngredientID: id})
	if err != nil {
		return nil, fmt.Errorf("load movement history %d: %w", id, err)
	}

	result := &ReplayResult{
		IngredientID: id,
		Entries:      len(entries),
		Replayed:     decimal.Zero,
		CurrentStock: level.CurrentStock,
		Consistent:   true,
	}
	// entries are newest first
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if result.Consistent && !e.PreviousStock.Equal(result.Replayed) {
			result.Consistent = false
			result.FirstMismatch = e.ID
		}
		result.Replayed = result.Replayed.Add(e.ChangeAmount)
	}
	if !result.Replayed.Equal(level.CurrentStock) {
		result.Consistent = false
	}
	return result, nil
}
