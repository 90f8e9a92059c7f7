// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Core entity models backed by the durable store.
// These models carry db struct tags for the PostgreSQL tables they map to.

// Record is a versioned row of the tracked entity table.
// Version starts at 1 and strictly increases on every applied mutation;
// it is never lowered outside an explicit administrative resync.
type Record struct {
	TableID   string         `json:"table" db:"table_name"`
	RowID     int64          `json:"row_id" db:"row_id"`
	Fields    map[string]any `json:"fields" db:"fields"`
	Source    string         `json:"source" db:"source"`   // SHEET, DB or MANUAL
	Version   int64          `json:"version" db:"version"` // Monotonic per-row version
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// SyncEvent is a normalized, transient instruction describing a single change
// to one entity row. It is constructed once per inbound webhook, consumed
// synchronously by the engine, then discarded; only its audit projection
// survives.
type SyncEvent struct {
	Source    string         `json:"source"`
	TableID   string         `json:"table"`
	RowID     int64          `json:"row_id"`
	Operation string         `json:"operation"` // INSERT, UPDATE, DELETE
	Changes   map[string]any `json:"changes"`
	Version   *int64         `json:"version,omitempty"` // Origin's view of the row version, when it has one
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ConflictRecord is durable evidence of a field-level disagreement and its
// resolution. Append-only; never mutated or deleted by normal operation.
type ConflictRecord struct {
	ID            int64     `json:"id" db:"id"`
	TableID       string    `json:"table" db:"table_name"`
	RowID         int64     `json:"row_id" db:"row_id"`
	Field         string    `json:"field" db:"field_name"`
	IncomingValue any       `json:"incoming_value" db:"incoming_value"`
	CurrentValue  any       `json:"current_value" db:"current_value"`
	ResolvedValue any       `json:"resolved_value" db:"resolved_value"`
	Strategy      string    `json:"strategy" db:"strategy"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// WebhookAuditEntry records one inbound webhook observation. Append-only.
type WebhookAuditEntry struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Payload      json.RawMessage `json:"payload" db:"payload"`
	Status       string          `json:"status" db:"status"` // RECEIVED, PROCESSED, ERROR
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
