// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"fmt"
	"time"
)

// SnapshotRow is one row of a full external listing used for batch
// reconciliation. The spreadsheet edit trigger cannot signal row deletions,
// so snapshot diffing is the entry point that covers them.
type SnapshotRow struct {
	RowID  int64          `json:"rowId"`
	Fields map[string]any `json:"fields"`
}

// ResyncSummary reports what a snapshot reconciliation changed.
type ResyncSummary struct {
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// ReconcileSnapshot batch-diffs a full external snapshot against the record
// store. Rows missing from the store are inserted, diverged rows are updated
// through the engine (so conflicts are still detected and logged), and rows
// absent from the snapshot are deleted when deleteMissing is set. All
// generated events carry the MANUAL source so they bypass the loopback check
// as explicit administrative overrides.
func (s *Service) ReconcileSnapshot(ctx context.Context, tableID string, rows []SnapshotRow, deleteMissing bool) (*ResyncSummary, error) {
	summary := &ResyncSummary{}
	seen := make(map[int64]bool, len(rows))
	now := time.Now()

	for _, row := range rows {
		if row.RowID <= 0 {
			return nil, fmt.Errorf("%w: snapshot rowId must be a positive integer", ErrInvalidPayload)
		}
		seen[row.RowID] = true

		fields := s.normalizer.FilterRecognized(tableID, row.Fields)

		record, err := s.store.Get(ctx, tableID, row.RowID)
		if err != nil {
			return nil, fmt.Errorf("read record for resync: %w", err)
		}

		if record == nil {
			event := &SyncEvent{
				Source:    SourceManual,
				TableID:   tableID,
				RowID:     row.RowID,
				Operation: OpInsert,
				Changes:   fields,
				Timestamp: now,
			}
			if _, err := s.engine.Apply(ctx, event); err != nil {
				return nil, err
			}
			summary.Inserted++
			continue
		}

		changes := make(map[string]any, len(fields))
		for name, value := range fields {
			if current, ok := record.Fields[name]; ok && valuesEqual(current, value) {
				continue
			}
			changes[name] = value
		}
		if len(changes) == 0 {
			summary.Unchanged++
			continue
		}

		event := &SyncEvent{
			Source:    SourceManual,
			TableID:   tableID,
			RowID:     row.RowID,
			Operation: OpUpdate,
			Changes:   changes,
			Timestamp: now,
		}
		if _, err := s.engine.Apply(ctx, event); err != nil {
			return nil, err
		}
		summary.Updated++
	}

	if deleteMissing {
		stored, err := s.store.ListAll(ctx, tableID)
		if err != nil {
			return nil, fmt.Errorf("list records for resync: %w", err)
		}
		for _, record := range stored {
			if seen[record.RowID] {
				continue
			}
			event := &SyncEvent{
				Source:    SourceManual,
				TableID:   tableID,
				RowID:     record.RowID,
				Operation: OpDelete,
				Timestamp: now,
			}
			if _, err := s.engine.Apply(ctx, event); err != nil {
				return nil, err
			}
			summary.Deleted++
		}
	}

	s.logger.Info("Snapshot reconciliation complete",
		"table", tableID, "snapshot_rows", len(rows),
		"inserted", summary.Inserted, "updated", summary.Updated,
		"deleted", summary.Deleted, "unchanged", summary.Unchanged)
	return summary, nil
}
