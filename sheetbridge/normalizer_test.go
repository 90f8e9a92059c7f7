// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	return NewNormalizer([]*SheetMapping{testMapping()}, testSchema(), nil)
}

func TestNormalizeSheetEvent_ValidEdit(t *testing.T) {
	n := newTestNormalizer(t)

	event, err := n.NormalizeSheetEvent(&SheetWebhook{
		Row: 3, Column: 2, OldValue: "Bob", NewValue: "Alice", SheetName: "Employees",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceSheet, event.Source)
	assert.Equal(t, "employees", event.TableID)
	assert.Equal(t, int64(2), event.RowID, "data rows are offset by the header row")
	assert.Equal(t, OpUpdate, event.Operation)
	assert.Equal(t, map[string]any{"name": "Alice"}, event.Changes)
	assert.Nil(t, event.Version, "sheet edits carry no version")
	assert.Equal(t, "Bob", event.Metadata["old_value"])
}

func TestNormalizeSheetEvent_Rejections(t *testing.T) {
	n := newTestNormalizer(t)

	cases := []struct {
		name    string
		webhook SheetWebhook
		wantErr error
	}{
		{"header row", SheetWebhook{Row: 1, Column: 2, SheetName: "Employees"}, ErrInvalidPayload},
		{"zero row", SheetWebhook{Row: 0, Column: 2, SheetName: "Employees"}, ErrInvalidPayload},
		{"identity column", SheetWebhook{Row: 2, Column: 1, SheetName: "Employees"}, ErrUnmappedColumn},
		{"unmapped column", SheetWebhook{Row: 2, Column: 9, SheetName: "Employees"}, ErrUnmappedColumn},
		{"unrecognized sheet", SheetWebhook{Row: 2, Column: 2, SheetName: "Payroll"}, ErrInvalidPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := n.NormalizeSheetEvent(&tc.webhook)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, event)
		})
	}
}

// A reordered sheet with an intact header row still resolves by header name.
func TestNormalizeSheetEvent_HeaderSnapshotBeatsPosition(t *testing.T) {
	mapping := testMapping()
	// The sheet was reordered: column 2 now holds the email header.
	mapping.Headers = []string{"", "id", "email", "name", "department"}
	n := NewNormalizer([]*SheetMapping{mapping}, testSchema(), nil)

	event, err := n.NormalizeSheetEvent(&SheetWebhook{
		Row: 2, Column: 2, NewValue: "alice@example.com", SheetName: "Employees",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"email": "alice@example.com"}, event.Changes)
}

func TestNormalizeDBEvent_Defaults(t *testing.T) {
	n := newTestNormalizer(t)

	event, err := n.NormalizeDBEvent(&DBWebhook{
		TableID: "employees", RowID: 7, Operation: "update",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceDB, event.Source)
	assert.Equal(t, OpUpdate, event.Operation, "operation is case-normalized")
	assert.NotNil(t, event.Changes)
	assert.Empty(t, event.Changes)
	assert.NotNil(t, event.Metadata)
	require.NotNil(t, event.Version)
	assert.Equal(t, int64(1), *event.Version, "version defaults to 1 when absent")
}

func TestNormalizeDBEvent_Rejections(t *testing.T) {
	n := newTestNormalizer(t)

	cases := []struct {
		name    string
		webhook DBWebhook
	}{
		{"missing tableId", DBWebhook{RowID: 1, Operation: OpUpdate}},
		{"missing rowId", DBWebhook{TableID: "employees", Operation: OpUpdate}},
		{"bad operation", DBWebhook{TableID: "employees", RowID: 1, Operation: "UPSERT"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := n.NormalizeDBEvent(&tc.webhook)
			require.ErrorIs(t, err, ErrInvalidPayload)
			assert.Nil(t, event)
		})
	}
}

func TestNormalizeDBEvent_DropsUnrecognizedFields(t *testing.T) {
	n := newTestNormalizer(t)

	event, err := n.NormalizeDBEvent(&DBWebhook{
		TableID: "employees", RowID: 1, Operation: OpUpdate,
		Changes: map[string]any{"name": "Alice", "salary": 100000},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alice"}, event.Changes,
		"unrecognized fields are dropped, never silently applied")
}

func TestFieldForColumn(t *testing.T) {
	m := testMapping()

	field, ok := m.FieldForColumn(3)
	require.True(t, ok)
	assert.Equal(t, "email", field)

	_, ok = m.FieldForColumn(m.IDColumn)
	assert.False(t, ok, "identity column is never translatable")

	_, ok = m.FieldForColumn(42)
	assert.False(t, ok)
}
