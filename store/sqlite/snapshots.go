package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (s *Store) InsertSnapshot(ctx context.Context, takenAt time.Time, items []ledger.SnapshotItem) (ledger.SnapshotID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertSnapshot(ctx, tx, takenAt, items)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return id, nil
}

func (s *Store) LatestSnapshot(ctx context.Context) (*ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestSnapshot(ctx, s.db)
}

func (s *Store) ListSnapshots(ctx context.Context) ([]ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listSnapshots(ctx, s.db)
}

func (s *Store) LoadSnapshotItems(ctx context.Context, id ledger.SnapshotID) ([]ledger.SnapshotItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadSnapshotItems(ctx, s.db, id)
}

func insertSnapshot(ctx context.Context, q querier, takenAt time.Time, items []ledger.SnapshotItem) (ledger.SnapshotID, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO snapshots (snapshot_date) VALUES (?)`, formatTime(takenAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	raw, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}
	id := ledger.SnapshotID(raw)

	for _, item := range items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO snapshot_items (snapshot_id, ingredient_id, stock, unit_cost, total_value)
			VALUES (?, ?, ?, ?, ?)
		`, int64(id), int64(item.IngredientID), item.Stock.String(), item.UnitCost.String(), item.TotalValue.String())
		if err != nil {
			return 0, fmt.Errorf("failed to insert snapshot item: %w", err)
		}
	}
	return id, nil
}

func latestSnapshot(ctx context.Context, q querier) (*ledger.Snapshot, error) {
	var (
		id   int64
		date string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, snapshot_date FROM snapshots
		ORDER BY snapshot_date DESC, id DESC
		LIMIT 1
	`).Scan(&id, &date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	taken, err := parseTime(date)
	if err != nil {
		return nil, err
	}
	return &ledger.Snapshot{ID: ledger.SnapshotID(id), SnapshotDate: taken}, nil
}

func listSnapshots(ctx context.Context, q querier) ([]ledger.Snapshot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, snapshot_date FROM snapshots
		ORDER BY snapshot_date DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]ledger.Snapshot, 0)
	for rows.Next() {
		var (
			id   int64
			date string
		)
		if err := rows.Scan(&id, &date); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		taken, err := parseTime(date)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, ledger.Snapshot{ID: ledger.SnapshotID(id), SnapshotDate: taken})
	}
	return snapshots, rows.Err()
}

func loadSnapshotItems(ctx context.Context, q querier, id ledger.SnapshotID) ([]ledger.SnapshotItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ingredient_id, stock, unit_cost, total_value
		FROM snapshot_items
		WHERE snapshot_id = ?
		ORDER BY id
	`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot items: %w", err)
	}
	defer rows.Close()

	items := make([]ledger.SnapshotItem, 0)
	for rows.Next() {
		var (
			item         ledger.SnapshotItem
			ingredientID int64
		)
		if err := rows.Scan(&ingredientID, &item.Stock, &item.UnitCost, &item.TotalValue); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot item: %w", err)
		}
		item.SnapshotID = id
		item.IngredientID = ledger.IngredientID(ingredientID)
		items = append(items, item)
	}
	return items, rows.Err()
}
