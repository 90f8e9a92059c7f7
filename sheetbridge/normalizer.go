// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Validation error sentinels for webhook normalization
var (
	ErrInvalidPayload = errors.New("invalid_payload")
	ErrUnmappedColumn = errors.New("unmapped_column")
)

// headerRow is the spreadsheet row holding column headers. Edits to it carry
// no row data and are never translatable into changes.
const headerRow = 1

// SheetMapping translates spreadsheet coordinates into business fields for one
// recognized sheet. Columns are resolved through the header snapshot first so
// a reordered sheet with an intact header row still maps correctly; the
// position map is the fallback for sheets without captured headers.
type SheetMapping struct {
	SheetName string         // Recognized sheet name
	TableID   string         // Entity table this sheet mirrors
	IDColumn  int            // Identity column, never translatable into changes
	Headers   []string       // Header snapshot captured at configuration time, 1-based (index 0 unused)
	Columns   map[int]string // Position fallback: column number -> field name
}

// FieldForColumn resolves a column position to a business field name.
// The identity column and unmapped columns resolve to ok=false.
func (m *SheetMapping) FieldForColumn(column int) (string, bool) {
	if column == m.IDColumn || column < 1 {
		return "", false
	}
	if column < len(m.Headers) {
		if header := strings.TrimSpace(m.Headers[column]); header != "" && m.isKnownField(header) {
			return header, true
		}
	}
	field, ok := m.Columns[column]
	return field, ok
}

func (m *SheetMapping) isKnownField(name string) bool {
	for _, field := range m.Columns {
		if field == name {
			return true
		}
	}
	return false
}

// Normalizer converts source-specific webhook payloads into SyncEvents.
// Validation failures are returned as errors wrapping ErrInvalidPayload or
// ErrUnmappedColumn; nothing panics past this boundary.
type Normalizer struct {
	mappings map[string]*SheetMapping // keyed by sheet name
	schema   map[string][]string      // tableID -> recognized business fields
	logger   *slog.Logger
	now      func() time.Time
}

// NewNormalizer creates a normalizer for the given sheet mappings and entity
// schema.
func NewNormalizer(mappings []*SheetMapping, schema map[string][]string, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]*SheetMapping, len(mappings))
	for _, m := range mappings {
		byName[m.SheetName] = m
	}
	return &Normalizer{
		mappings: byName,
		schema:   schema,
		logger:   logger,
		now:      time.Now,
	}
}

// NormalizeSheetEvent converts a spreadsheet edit notification into a SyncEvent.
// Header-row edits, identity-column edits and unmapped columns never produce
// an event.
func (n *Normalizer) NormalizeSheetEvent(w *SheetWebhook) (*SyncEvent, error) {
	mapping, ok := n.mappings[w.SheetName]
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized sheet %q", ErrInvalidPayload, w.SheetName)
	}
	if w.Row <= headerRow {
		return nil, fmt.Errorf("%w: row %d is not a data row", ErrInvalidPayload, w.Row)
	}
	field, ok := mapping.FieldForColumn(w.Column)
	if !ok {
		n.logger.Warn("Ignoring edit to unmapped sheet column",
			"sheet", w.SheetName, "row", w.Row, "column", w.Column)
		return nil, fmt.Errorf("%w: column %d of sheet %q", ErrUnmappedColumn, w.Column, w.SheetName)
	}

	return &SyncEvent{
		Source:    SourceSheet,
		TableID:   mapping.TableID,
		RowID:     int64(w.Row - headerRow), // data rows start below the header
		Operation: OpUpdate,
		Changes:   map[string]any{field: w.NewValue},
		Timestamp: n.now(),
		Metadata: map[string]any{
			"sheet":     w.SheetName,
			"column":    w.Column,
			"old_value": w.OldValue,
		},
	}, nil
}

// NormalizeDBEvent converts an external database change notification into a
// SyncEvent. Changes and metadata default to empty maps; version defaults to 1
// when the origin did not send one.
func (n *Normalizer) NormalizeDBEvent(w *DBWebhook) (*SyncEvent, error) {
	if strings.TrimSpace(w.TableID) == "" {
		return nil, fmt.Errorf("%w: tableId is required", ErrInvalidPayload)
	}
	if w.RowID <= 0 {
		return nil, fmt.Errorf("%w: rowId must be a positive integer", ErrInvalidPayload)
	}
	op := strings.ToUpper(strings.TrimSpace(w.Operation))
	switch op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return nil, fmt.Errorf("%w: invalid operation %q", ErrInvalidPayload, w.Operation)
	}

	changes := w.Changes
	if changes == nil {
		changes = map[string]any{}
	}
	changes = n.filterRecognized(w.TableID, changes)

	metadata := w.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	version := w.Version
	if version == nil {
		one := int64(1)
		version = &one
	}

	return &SyncEvent{
		Source:    SourceDB,
		TableID:   strings.ToLower(strings.TrimSpace(w.TableID)),
		RowID:     w.RowID,
		Operation: op,
		Changes:   changes,
		Version:   version,
		Timestamp: n.now(),
		Metadata:  metadata,
	}, nil
}

// FilterRecognized drops change fields the entity schema does not recognize.
// Dropped fields are logged, never silently applied.
func (n *Normalizer) FilterRecognized(tableID string, changes map[string]any) map[string]any {
	return n.filterRecognized(tableID, changes)
}

func (n *Normalizer) filterRecognized(tableID string, changes map[string]any) map[string]any {
	fields, ok := n.schema[tableID]
	if !ok {
		return changes
	}
	recognized := make(map[string]bool, len(fields))
	for _, f := range fields {
		recognized[f] = true
	}
	out := make(map[string]any, len(changes))
	for name, value := range changes {
		if !recognized[name] {
			n.logger.Warn("Dropping unrecognized field from change set",
				"table", tableID, "field", name)
			continue
		}
		out[name] = value
	}
	return out
}
