// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *memStore, *memAudit) {
	t.Helper()
	store := newMemStore()
	audit := newMemAudit()
	svc := NewService(store, audit, &ServiceConfig{
		Mappings: []*SheetMapping{testMapping()},
		Schema:   testSchema(),
	}, nil)
	return svc, store, audit
}

func TestReconcileSnapshot_DiffsAgainstStore(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	store.seed(&Record{
		TableID: "employees", RowID: 1,
		Fields: map[string]any{"name": "Bob", "email": "bob@example.com"},
		Source: SourceDB, Version: 2, UpdatedAt: time.Now().Add(-time.Hour),
	})
	store.seed(&Record{
		TableID: "employees", RowID: 2,
		Fields: map[string]any{"name": "Carol"},
		Source: SourceDB, Version: 1, UpdatedAt: time.Now().Add(-time.Hour),
	})

	snapshot := []SnapshotRow{
		{RowID: 1, Fields: map[string]any{"name": "Bob", "email": "bob@example.com"}}, // unchanged
		{RowID: 3, Fields: map[string]any{"name": "Dave"}},                            // new row
	}

	summary, err := svc.ReconcileSnapshot(ctx, "employees", snapshot, true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Deleted, "row 2 is absent from the snapshot")
	assert.Equal(t, 1, summary.Unchanged)

	records, err := store.ListAll(ctx, "employees")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].RowID)
	assert.Equal(t, int64(3), records[1].RowID)
	assert.Equal(t, SourceManual, records[1].Source)
}

func TestReconcileSnapshot_UpdatesDivergedRows(t *testing.T) {
	svc, store, audit := newTestService(t)
	ctx := context.Background()

	store.seed(&Record{
		TableID: "employees", RowID: 1,
		Fields: map[string]any{"name": "Bob"},
		Source: SourceSheet, Version: 1, UpdatedAt: time.Now().Add(-time.Hour),
	})

	summary, err := svc.ReconcileSnapshot(ctx, "employees",
		[]SnapshotRow{{RowID: 1, Fields: map[string]any{"name": "Robert"}}}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	rec, err := store.Get(ctx, "employees", 1)
	require.NoError(t, err)
	assert.Equal(t, "Robert", rec.Fields["name"], "snapshot carries the later timestamp and wins")
	assert.Equal(t, int64(2), rec.Version)

	// The divergence is still logged as a conflict.
	require.Len(t, audit.conflicts, 1)
	assert.Equal(t, "Robert", audit.conflicts[0].ResolvedValue)
}

func TestReconcileSnapshot_KeepsMissingRowsWithoutDeleteFlag(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	store.seed(&Record{
		TableID: "employees", RowID: 5,
		Fields: map[string]any{"name": "Eve"},
		Source: SourceDB, Version: 1, UpdatedAt: time.Now(),
	})

	summary, err := svc.ReconcileSnapshot(ctx, "employees", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Deleted)

	rec, err := store.Get(ctx, "employees", 5)
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestReconcileSnapshot_RejectsBadRowID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ReconcileSnapshot(context.Background(), "employees",
		[]SnapshotRow{{RowID: 0}}, false)
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestReconcileSnapshot_DropsUnrecognizedSnapshotFields(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ReconcileSnapshot(ctx, "employees",
		[]SnapshotRow{{RowID: 1, Fields: map[string]any{"name": "Ann", "salary": 1}}}, false)
	require.NoError(t, err)

	rec, err := store.Get(ctx, "employees", 1)
	require.NoError(t, err)
	assert.Equal(t, "Ann", rec.Fields["name"])
	assert.NotContains(t, rec.Fields, "salary")
}
