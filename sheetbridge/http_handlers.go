// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// maxWebhookBodyBytes bounds inbound webhook bodies.
const maxWebhookBodyBytes = 1 << 20

// HTTPHandlers provides the HTTP surface for the sync core: the two webhook
// intake endpoints, the dashboard's read-only query endpoints, and the admin
// resync entry point.
type HTTPHandlers struct {
	service *Service
	logger  *slog.Logger
}

// NewHTTPHandlers creates a new instance of sync handlers
func NewHTTPHandlers(service *Service, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{service: service, logger: logger}
}

// HandleSheetWebhook processes spreadsheet-origin edit notifications
func (h *HTTPHandlers) HandleSheetWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, h.service.ProcessSheetWebhook)
}

// HandleDBWebhook processes database-origin change notifications
func (h *HTTPHandlers) HandleDBWebhook(w http.ResponseWriter, r *http.Request) {
	h.handleWebhook(w, r, h.service.ProcessDBWebhook)
}

func (h *HTTPHandlers) handleWebhook(w http.ResponseWriter, r *http.Request, process func(ctx context.Context, payload []byte) (*Result, error)) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.service.RecordRejected(r.Context(), payload, "failed to read request body: "+err.Error())
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	result, err := process(r.Context(), payload)
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnmappedColumn) {
			h.writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
			return
		}
		// Infrastructure failure: log detail, return a generic message only.
		h.logger.Error("Failed to process webhook", "error", err, "path", r.URL.Path)
		h.writeError(w, http.StatusInternalServerError, "processing_failed", "Failed to process webhook")
		return
	}

	h.writeSuccess(w, result)
}

// HandleListRecords lists all records of a table, ordered by row id
func (h *HTTPHandlers) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	tableID := r.URL.Query().Get("table")
	if tableID == "" {
		if tables := h.service.Tables(); len(tables) > 0 {
			tableID = tables[0]
		}
	}
	records, err := h.service.Records(r.Context(), tableID)
	if err != nil {
		h.logger.Error("Failed to list records", "error", err, "table", tableID)
		h.writeError(w, http.StatusInternalServerError, "list_records_failed", "Failed to list records")
		return
	}
	if records == nil {
		records = []Record{}
	}
	h.writeJSON(w, records)
}

// HandleListConflicts lists recent conflict records, newest first
func (h *HTTPHandlers) HandleListConflicts(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	conflicts, err := h.service.Conflicts(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list conflicts", "error", err)
		h.writeError(w, http.StatusInternalServerError, "list_conflicts_failed", "Failed to list conflicts")
		return
	}
	if conflicts == nil {
		conflicts = []ConflictRecord{}
	}
	h.writeJSON(w, conflicts)
}

// HandleListWebhooks lists recent webhook audit entries, newest first
func (h *HTTPHandlers) HandleListWebhooks(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	entries, err := h.service.Webhooks(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list webhook audit entries", "error", err)
		h.writeError(w, http.StatusInternalServerError, "list_webhooks_failed", "Failed to list webhook audit entries")
		return
	}
	if entries == nil {
		entries = []WebhookAuditEntry{}
	}
	h.writeJSON(w, entries)
}

// HandleStatus returns the aggregate counts the dashboard polls
func (h *HTTPHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Status(r.Context())
	if err != nil {
		h.logger.Error("Failed to aggregate status", "error", err)
		h.writeError(w, http.StatusInternalServerError, "status_failed", "Failed to aggregate status")
		return
	}
	h.writeJSON(w, summary)
}

// HandleResync runs a batch diff between an external full snapshot and the
// record store
func (h *HTTPHandlers) HandleResync(w http.ResponseWriter, r *http.Request) {
	var req ResyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes*8)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse resync request")
		return
	}
	if req.TableID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "tableId is required")
		return
	}
	summary, err := h.service.ReconcileSnapshot(r.Context(), req.TableID, req.Rows, req.DeleteMissing)
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			h.writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
			return
		}
		h.logger.Error("Failed to reconcile snapshot", "error", err, "table", req.TableID)
		h.writeError(w, http.StatusInternalServerError, "resync_failed", "Failed to reconcile snapshot")
		return
	}
	h.writeSuccess(w, summary)
}

func (h *HTTPHandlers) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return 0, false
		}
		if parsed < 1 || parsed > 1000 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 1000")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func (h *HTTPHandlers) writeSuccess(w http.ResponseWriter, result any) {
	h.writeJSON(w, SuccessResponse{
		Status:    "success",
		Result:    result,
		Timestamp: time.Now().UTC(),
	})
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

// writeError writes a standardized error response
func (h *HTTPHandlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := ErrorResponse{
		Error:   errorCode,
		Message: message,
	}
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Debug("HTTP error response",
		"status_code", statusCode,
		"error_code", errorCode,
		"message", message)
}
