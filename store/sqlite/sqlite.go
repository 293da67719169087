/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Persists stock levels, the movement history and snapshots in a single
  local SQLite file, next to the ingredient catalog they reference.

INTERFACES IMPLEMENTED:
  ledger.Catalog: Ingredient lookups (ingredients table)
  ledger.Store:   Levels, movements, snapshots
  ledger.TxStore: WithTx

APPEND-ONLY ENFORCEMENT:
  movement_history and snapshot_items carry BEFORE UPDATE / BEFORE DELETE
  triggers that abort the statement. Corrections are new movement entries.

KEY TABLES:
  ingredients:      Catalog (id, name, unit, unit_price)
  stock_levels:     Materialized current stock, one row per ingredient
  movement_history: Immutable log of every stock change
  snapshots:        Snapshot headers
  snapshot_items:   Frozen per-ingredient rows of a snapshot

STORAGE FORMATS:
  Decimals are TEXT (decimal.Decimal.String) so no precision is lost.
  Timestamps are fixed-width UTC TEXT (timeLayout) so that lexical
  comparison in SQL equals chronological comparison.

CONCURRENCY:
  Single writer. The pool is capped at one connection, which also keeps a
  ":memory:" database alive across calls. sync.RWMutex serializes Go-side
  access; inside WithTx every statement goes through the *sql.Tx.

USAGE:
  store, err := sqlite.New("./data/stockledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store)

SEE ALSO:
  - schema.go: Schema evolver (EnsureSchema)
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-ledger/ledger"
)

// timeLayout is RFC3339 with fixed nanoseconds, always in UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at dbPath and creates the catalog table.
// Use ":memory:" for an in-memory database. Ledger tables are created by
// EnsureSchema on first use.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := NewFromDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewFromDB wraps an already opened database.
func NewFromDB(db *sql.DB) (*Store, error) {
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrateCatalog(); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle, for tooling and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The transaction commits
// only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the ledger.Store handed to WithTx callbacks.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, ts.tx)
}

func (ts *txStore) ListIngredients(ctx context.Context) ([]ledger.Ingredient, error) {
	return listIngredients(ctx, ts.tx)
}

func (ts *txStore) GetIngredient(ctx context.Context, id ledger.IngredientID) (*ledger.Ingredient, error) {
	return getIngredient(ctx, ts.tx, id)
}

func (ts *txStore) ReconcileLevels(ctx context.Context, now time.Time) (int, error) {
	return reconcileLevels(ctx, ts.tx, now)
}

func (ts *txStore) ListLevels(ctx context.Context) ([]ledger.StockLevel, error) {
	return listLevels(ctx, ts.tx)
}

func (ts *txStore) GetLevel(ctx context.Context, id ledger.IngredientID) (*ledger.StockLevel, error) {
	return getLevel(ctx, ts.tx, id)
}

func (ts *txStore) InsertLevel(ctx context.Context, level ledger.StockLevel) error {
	return insertLevel(ctx, ts.tx, level)
}

func (ts *txStore) UpdateLevel(ctx context.Context, level ledger.StockLevel) error {
	return updateLevel(ctx, ts.tx, level)
}

func (ts *txStore) AppendMovement(ctx context.Context, entry ledger.MovementEntry) (ledger.MovementID, error) {
	return appendMovement(ctx, ts.tx, entry)
}

func (ts *txStore) LoadMovements(ctx context.Context, filter ledger.MovementFilter) ([]ledger.MovementEntry, error) {
	return loadMovements(ctx, ts.tx, filter)
}

func (ts *txStore) InsertSnapshot(ctx context.Context, takenAt time.Time, items []ledger.SnapshotItem) (ledger.SnapshotID, error) {
	return insertSnapshot(ctx, ts.tx, takenAt, items)
}

func (ts *txStore) LatestSnapshot(ctx context.Context) (*ledger.Snapshot, error) {
	return latestSnapshot(ctx, ts.tx)
}

func (ts *txStore) ListSnapshots(ctx context.Context) ([]ledger.Snapshot, error) {
	return listSnapshots(ctx, ts.tx)
}

func (ts *txStore) LoadSnapshotItems(ctx context.Context, id ledger.SnapshotID) ([]ledger.SnapshotItem, error) {
	return loadSnapshotItems(ctx, ts.tx, id)
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullRecipe(id ledger.RecipeID) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}

func isDuplicateColumnError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
