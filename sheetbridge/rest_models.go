// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import "time"

// REST/JSON models for HTTP API requests and responses

// SheetWebhook is the payload delivered by the spreadsheet edit trigger.
type SheetWebhook struct {
	Row       int    `json:"row"`
	Column    int    `json:"column"`
	OldValue  any    `json:"oldValue"`
	NewValue  any    `json:"newValue"`
	SheetName string `json:"sheetName"`
}

// DBWebhook is the payload delivered by the relational-side change capture.
type DBWebhook struct {
	TableID   string         `json:"tableId"`
	RowID     int64          `json:"rowId"`
	Operation string         `json:"operation"` // INSERT, UPDATE, DELETE
	Changes   map[string]any `json:"changes,omitempty"`
	Version   *int64         `json:"version,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SuccessResponse is the envelope returned for processed webhooks.
type SuccessResponse struct {
	Status    string    `json:"status"` // always "success"
	Result    any       `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusSummary is the aggregate view consumed by the dashboard.
type StatusSummary struct {
	Records           int64 `json:"records"`
	Conflicts         int64 `json:"conflicts"`
	WebhooksProcessed int64 `json:"webhooks_processed"`
}

// ResyncRequest asks for a batch diff between an external full snapshot and
// the record store.
type ResyncRequest struct {
	TableID       string        `json:"tableId"`
	Rows          []SnapshotRow `json:"rows"`
	DeleteMissing bool          `json:"deleteMissing"`
}
