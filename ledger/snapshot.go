package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SNAPSHOT ENGINE - Frozen copy of all stock levels
// =============================================================================

// TakeSnapshot copies every current stock level into a new snapshot and
// returns its id. Header and items are written in one transaction.
func (l *Ledger) TakeSnapshot(ctx context.Context) (id SnapshotID, err error) {
	started := time.Now()
	defer func() { observe("take_snapshot", started, err) }()

	if err := l.prepare(ctx); err != nil {
		return 0, err
	}

	takenAt := l.now()
	var count int
	err = l.store.WithTx(ctx, func(s Store) error {
		levels, err := s.ListLevels(ctx)
		if err != nil {
			return fmt.Errorf("read stock levels: %w", err)
		}
		items := make([]SnapshotItem, len(levels))
		for i, level := range levels {
			items[i] = SnapshotItem{
				IngredientID: level.IngredientID,
				Stock:        level.CurrentStock,
				UnitCost:     level.UnitCost,
				TotalValue:   level.TotalValue(),
			}
		}
		count = len(items)
		id, err = s.InsertSnapshot(ctx, takenAt, items)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	snapshotsTotal.Inc()
	l.log.Info().Int64("snapshot_id", int64(id)).Int("items", count).Msg("snapshot taken")
	return id, nil
}

// LatestSnapshotSummary returns nil, nil when no snapshot has been taken.
func (l *Ledger) LatestSnapshotSummary(ctx context.Context) (*SnapshotSummary, error) {
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}
	snap, err := l.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	if snap == nil {
		return nil, nil
	}
	items, err := l.store.LoadSnapshotItems(ctx, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d items: %w", snap.ID, err)
	}
	return summarize(*snap, items), nil
}

func summarize(snap Snapshot, items []SnapshotItem) *SnapshotSummary {
	summary := &SnapshotSummary{
		SnapshotID:   snap.ID,
		SnapshotDate: snap.SnapshotDate,
		TotalValue:   decimal.Zero,
	}
	seen := make(map[IngredientID]struct{}, len(items))
	for _, item := range items {
		summary.TotalValue = summary.TotalValue.Add(item.TotalValue)
		seen[item.IngredientID] = struct{}{}
	}
	summary.IngredientCount = len(seen)
	return summary
}

// ListSnapshots returns summaries of every snapshot, newest first.
func (l *Ledger) ListSnapshots(ctx context.Context) ([]SnapshotSummary, error) {
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}
	snaps, err := l.store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	summaries := make([]SnapshotSummary, 0, len(snaps))
	for _, snap := range snaps {
		items, err := l.store.LoadSnapshotItems(ctx, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d items: %w", snap.ID, err)
		}
		summaries = append(summaries, *summarize(snap, items))
	}
	return summaries, nil
}

// SnapshotItems returns the frozen items of one snapshot.
func (l *Ledger) SnapshotItems(ctx context.Context, id SnapshotID) ([]SnapshotItem, error) {
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}
	snaps, err := l.store.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	found := false
	for _, snap := range snaps {
		if snap.ID == id {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("snapshot %d: %w", id, ErrSnapshotNotFound)
	}
	items, err := l.store.LoadSnapshotItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d items: %w", id, err)
	}
	return items, nil
}
