/*
store.go - Persistence interfaces for the inventory ledger

PURPOSE:
  Defines the boundary between ledger logic and durable storage.
  The Store owns four logical tables (stock_levels, movement_history,
  snapshots, snapshot_items) and reads the external ingredient catalog.

KEY INTERFACES:
  Catalog: Read-only access to ingredients (external collaborator)
  Store:   Schema evolution, levels, movements and snapshots
  TxStore: Store plus WithTx for atomic read-modify-append sequences

APPEND-ONLY CONTRACT:
  Movement entries and snapshot items have insert methods only.
  There is no Update or Delete for either of them.

ATOMICITY:
  UpdateLevel, ApplyBatch and TakeSnapshot each run inside WithTx. If the
  callback returns an error nothing it wrote is visible afterwards.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite, the production store
  - ledger/store/memory.go: In-memory, for tests
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// CATALOG - External ingredient catalog
// =============================================================================

// Catalog is the read side of the ingredient catalog.
type Catalog interface {
	// ListIngredients returns every ingredient ordered by name.
	ListIngredients(ctx context.Context) ([]Ingredient, error)

	// GetIngredient returns nil, nil when the ingredient does not exist.
	GetIngredient(ctx context.Context, id IngredientID) (*Ingredient, error)
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	Catalog

	// EnsureSchema creates missing tables and additive columns and backfills
	// legacy rows. Safe to call on every access path.
	EnsureSchema(ctx context.Context) error

	// ReconcileLevels inserts a zero-stock level for every catalog ingredient
	// that lacks one, seeding unit cost from the catalog price.
	// Returns the number of rows inserted.
	ReconcileLevels(ctx context.Context, now time.Time) (int, error)

	// ListLevels returns all levels joined with the catalog, ordered by name,
	// with UnitCost resolved as stored cost, else catalog price, else zero.
	ListLevels(ctx context.Context) ([]StockLevel, error)

	// GetLevel returns the stored row (UnitCost as stored, null read as zero)
	// or nil, nil when the ingredient has no level yet.
	GetLevel(ctx context.Context, id IngredientID) (*StockLevel, error)

	InsertLevel(ctx context.Context, level StockLevel) error
	UpdateLevel(ctx context.Context, level StockLevel) error

	// AppendMovement writes one immutable entry and returns its id.
	AppendMovement(ctx context.Context, entry MovementEntry) (MovementID, error)

	// LoadMovements returns entries matching the filter, newest first.
	LoadMovements(ctx context.Context, filter MovementFilter) ([]MovementEntry, error)

	// InsertSnapshot writes the snapshot header and all of its items.
	InsertSnapshot(ctx context.Context, takenAt time.Time, items []SnapshotItem) (SnapshotID, error)

	// LatestSnapshot returns nil, nil when no snapshot exists.
	LatestSnapshot(ctx context.Context) (*Snapshot, error)

	// ListSnapshots returns all snapshots, newest first.
	ListSnapshots(ctx context.Context) ([]Snapshot, error)

	LoadSnapshotItems(ctx context.Context, id SnapshotID) ([]SnapshotItem, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
