// Package store provides in-memory ledger.TxStore implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps all ledger state in maps. WithTx works on a copy of the state
// and swaps it in only when the callback succeeds.
type Memory struct {
	mu    sync.Mutex
	state *state

	// failures injects an error the next time the named method is called.
	failures map[string]error
}

type state struct {
	ingredients map[ledger.IngredientID]ledger.Ingredient
	levels      map[ledger.IngredientID]ledger.StockLevel
	movements   []ledger.MovementEntry
	snapshots   []ledger.Snapshot
	items       map[ledger.SnapshotID][]ledger.SnapshotItem

	nextIngredient ledger.IngredientID
	nextMovement   ledger.MovementID
	nextSnapshot   ledger.SnapshotID
}

func newState() *state {
	return &state{
		ingredients: make(map[ledger.IngredientID]ledger.Ingredient),
		levels:      make(map[ledger.IngredientID]ledger.StockLevel),
		items:       make(map[ledger.SnapshotID][]ledger.SnapshotItem),
	}
}

func (s *state) clone() *state {
	c := &state{
		ingredients:    make(map[ledger.IngredientID]ledger.Ingredient, len(s.ingredients)),
		levels:         make(map[ledger.IngredientID]ledger.StockLevel, len(s.levels)),
		movements:      append([]ledger.MovementEntry(nil), s.movements...),
		snapshots:      append([]ledger.Snapshot(nil), s.snapshots...),
		items:          make(map[ledger.SnapshotID][]ledger.SnapshotItem, len(s.items)),
		nextIngredient: s.nextIngredient,
		nextMovement:   s.nextMovement,
		nextSnapshot:   s.nextSnapshot,
	}
	for k, v := range s.ingredients {
		c.ingredients[k] = v
	}
	for k, v := range s.levels {
		c.levels[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]ledger.SnapshotItem(nil), v...)
	}
	return c
}

func NewMemory() *Memory {
	return &Memory{
		state:    newState(),
		failures: make(map[string]error),
	}
}

// FailNext makes the next call to method return err.
// Method names match the ledger.Store interface, e.g. "AppendMovement".
func (m *Memory) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

func (m *Memory) fail(method string) error {
	if err, ok := m.failures[method]; ok {
		delete(m.failures, method)
		return err
	}
	return nil
}

// AddIngredient registers a catalog ingredient and returns its id.
func (m *Memory) AddIngredient(name, unit string, unitPrice decimal.Decimal) ledger.IngredientID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextIngredient++
	id := m.state.nextIngredient
	m.state.ingredients[id] = ledger.Ingredient{ID: id, Name: name, Unit: unit, UnitPrice: unitPrice}
	return id
}

// SaveIngredient inserts when ID is zero, otherwise replaces the entry.
func (m *Memory) SaveIngredient(ctx context.Context, ing ledger.Ingredient) (ledger.IngredientID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ing.ID == 0 {
		m.state.nextIngredient++
		ing.ID = m.state.nextIngredient
	} else if ing.ID > m.state.nextIngredient {
		m.state.nextIngredient = ing.ID
	}
	m.state.ingredients[ing.ID] = ing
	return ing.ID, nil
}

// SetUnitPrice changes a catalog price.
func (m *Memory) SetUnitPrice(id ledger.IngredientID, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ing, ok := m.state.ingredients[id]; ok {
		ing.UnitPrice = price
		m.state.ingredients[id] = ing
	}
}

// StoredLevel returns the raw stored row, bypassing reconciliation.
func (m *Memory) StoredLevel(id ledger.IngredientID) (ledger.StockLevel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	level, ok := m.state.levels[id]
	return level, ok
}

// LevelCount returns the number of stored level rows.
func (m *Memory) LevelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.levels)
}

// MovementCount returns the number of movement entries.
func (m *Memory) MovementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.movements)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{state: m.state.clone(), parent: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

// memTx is the ledger.Store handed to WithTx callbacks. It runs under the
// parent's lock.
type memTx struct {
	state  *state
	parent *Memory
}

// =============================================================================
// STORE (ledger.Store interface)
// =============================================================================

func (m *Memory) EnsureSchema(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail("EnsureSchema")
}

func (m *Memory) ListIngredients(ctx context.Context) ([]ledger.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listIngredients(), nil
}

func (m *Memory) GetIngredient(ctx context.Context, id ledger.IngredientID) (*ledger.Ingredient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getIngredient(id), nil
}

func (m *Memory) ReconcileLevels(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ReconcileLevels"); err != nil {
		return 0, err
	}
	return m.state.reconcile(now), nil
}

func (m *Memory) ListLevels(ctx context.Context) ([]ledger.StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListLevels"); err != nil {
		return nil, err
	}
	return m.state.listLevels(), nil
}

func (m *Memory) GetLevel(ctx context.Context, id ledger.IngredientID) (*ledger.StockLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getLevel(id), nil
}

func (m *Memory) InsertLevel(ctx context.Context, level ledger.StockLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.insertLevel(level)
}

func (m *Memory) UpdateLevel(ctx context.Context, level ledger.StockLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.levels[level.IngredientID] = level
	return nil
}

func (m *Memory) AppendMovement(ctx context.Context, entry ledger.MovementEntry) (ledger.MovementID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AppendMovement"); err != nil {
		return 0, err
	}
	return m.state.appendMovement(entry), nil
}

func (m *Memory) LoadMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.MovementEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.loadMovements(filter), nil
}

func (m *Memory) InsertSnapshot(ctx context.Context, takenAt time.Time, items []ledger.SnapshotItem) (ledger.SnapshotID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.insertSnapshot(takenAt, items), nil
}

func (m *Memory) LatestSnapshot(ctx context.Context) (*ledger.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.latestSnapshot(), nil
}

func (m *Memory) ListSnapshots(ctx context.Context) ([]ledger.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.listSnapshots(), nil
}

func (m *Memory) LoadSnapshotItems(ctx context.Context, id ledger.SnapshotID) ([]ledger.SnapshotItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ledger.SnapshotItem(nil), m.state.items[id]...), nil
}

// memTx methods mirror Memory's without taking the lock.

func (t *memTx) EnsureSchema(ctx context.Context) error { return t.parent.fail("EnsureSchema") }

func (t *memTx) ListIngredients(ctx context.Context) ([]ledger.Ingredient, error) {
	return t.state.listIngredients(), nil
}

func (t *memTx) GetIngredient(ctx context.Context, id ledger.IngredientID) (*ledger.Ingredient, error) {
	return t.state.getIngredient(id), nil
}

func (t *memTx) ReconcileLevels(ctx context.Context, now time.Time) (int, error) {
	if err := t.parent.fail("ReconcileLevels"); err != nil {
		return 0, err
	}
	return t.state.reconcile(now), nil
}

func (t *memTx) ListLevels(ctx context.Context) ([]ledger.StockLevel, error) {
	if err := t.parent.fail("ListLevels"); err != nil {
		return nil, err
	}
	return t.state.listLevels(), nil
}

func (t *memTx) GetLevel(ctx context.Context, id ledger.IngredientID) (*ledger.StockLevel, error) {
	return t.state.getLevel(id), nil
}

func (t *memTx) InsertLevel(ctx context.Context, level ledger.StockLevel) error {
	return t.state.insertLevel(level)
}

func (t *memTx) UpdateLevel(ctx context.Context, level ledger.StockLevel) error {
	t.state.levels[level.IngredientID] = level
	return nil
}

func (t *memTx) AppendMovement(ctx context.Context, entry ledger.MovementEntry) (ledger.MovementID, error) {
	if err := t.parent.fail("AppendMovement"); err != nil {
		return 0, err
	}
	return t.state.appendMovement(entry), nil
}

func (t *memTx) LoadMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.MovementEntry, error) {
	return t.state.loadMovements(filter), nil
}

func (t *memTx) InsertSnapshot(ctx context.Context, takenAt time.Time, items []ledger.SnapshotItem) (ledger.SnapshotID, error) {
	if err := t.parent.fail("InsertSnapshot"); err != nil {
		return 0, err
	}
	return t.state.insertSnapshot(takenAt, items), nil
}

func (t *memTx) LatestSnapshot(ctx context.Context) (*ledger.Snapshot, error) {
	return t.state.latestSnapshot(), nil
}

func (t *memTx) ListSnapshots(ctx context.Context) ([]ledger.Snapshot, error) {
	return t.state.listSnapshots(), nil
}

func (t *memTx) LoadSnapshotItems(ctx context.Context, id ledger.SnapshotID) ([]ledger.SnapshotItem, error) {
	return append([]ledger.SnapshotItem(nil), t.state.items[id]...), nil
}

// =============================================================================
// STATE OPERATIONS
// =============================================================================

func (s *state) listIngredients() []ledger.Ingredient {
	out := make([]ledger.Ingredient, 0, len(s.ingredients))
	for _, ing := range s.ingredients {
		out = append(out, ing)
	}
	sort.Slice(out, func(i, j int) bool { return lessByName(out[i].Name, out[j].Name, out[i].ID, out[j].ID) })
	return out
}

func (s *state) getIngredient(id ledger.IngredientID) *ledger.Ingredient {
	ing, ok := s.ingredients[id]
	if !ok {
		return nil
	}
	return &ing
}

// reconcile is the in-memory anti-join: catalog ingredients without a level.
func (s *state) reconcile(now time.Time) int {
	created := 0
	for id, ing := range s.ingredients {
		if _, ok := s.levels[id]; ok {
			continue
		}
		s.levels[id] = ledger.StockLevel{
			IngredientID: id,
			CurrentStock: decimal.Zero,
			UnitCost:     ing.UnitPrice,
			LastUpdated:  now,
		}
		created++
	}
	return created
}

func (s *state) listLevels() []ledger.StockLevel {
	out := make([]ledger.StockLevel, 0, len(s.levels))
	for id, level := range s.levels {
		ing, ok := s.ingredients[id]
		if !ok {
			continue
		}
		level.Name = ing.Name
		level.Unit = ing.Unit
		if level.UnitCost.IsZero() {
			level.UnitCost = ing.UnitPrice
		}
		out = append(out, level)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessByName(out[i].Name, out[j].Name, out[i].IngredientID, out[j].IngredientID)
	})
	return out
}

func (s *state) getLevel(id ledger.IngredientID) *ledger.StockLevel {
	level, ok := s.levels[id]
	if !ok {
		return nil
	}
	if ing, ok := s.ingredients[id]; ok {
		level.Name = ing.Name
		level.Unit = ing.Unit
	}
	return &level
}

func (s *state) insertLevel(level ledger.StockLevel) error {
	s.levels[level.IngredientID] = level
	return nil
}

func (s *state) appendMovement(entry ledger.MovementEntry) ledger.MovementID {
	s.nextMovement++
	entry.ID = s.nextMovement
	s.movements = append(s.movements, entry)
	return entry.ID
}

func (s *state) loadMovements(f ledger.MovementFilter) []ledger.MovementEntry {
	out := make([]ledger.MovementEntry, 0)
	for _, e := range s.movements {
		if f.IngredientID != 0 && e.IngredientID != f.IngredientID {
			continue
		}
		if f.ChangeType != "" && e.ChangeType != f.ChangeType {
			continue
		}
		if !f.From.IsZero() && e.ChangeDate.Before(f.From) {
			continue
		}
		if !f.Until.IsZero() && !e.ChangeDate.Before(f.Until) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ChangeDate.Equal(out[j].ChangeDate) {
			return out[i].ChangeDate.After(out[j].ChangeDate)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *state) insertSnapshot(takenAt time.Time, items []ledger.SnapshotItem) ledger.SnapshotID {
	s.nextSnapshot++
	id := s.nextSnapshot
	s.snapshots = append(s.snapshots, ledger.Snapshot{ID: id, SnapshotDate: takenAt})
	stored := make([]ledger.SnapshotItem, len(items))
	for i, item := range items {
		item.SnapshotID = id
		stored[i] = item
	}
	s.items[id] = stored
	return id
}

func (s *state) listSnapshots() []ledger.Snapshot {
	out := append([]ledger.Snapshot(nil), s.snapshots...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SnapshotDate.Equal(out[j].SnapshotDate) {
			return out[i].SnapshotDate.After(out[j].SnapshotDate)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *state) latestSnapshot() *ledger.Snapshot {
	snaps := s.listSnapshots()
	if len(snaps) == 0 {
		return nil
	}
	return &snaps[0]
}

func lessByName[ID ~int64](a, b string, ida, idb ID) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return ida < idb
}
