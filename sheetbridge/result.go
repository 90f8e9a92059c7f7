// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

// Result is the terminal outcome of reconciling one sync event. Expected
// outcomes (stale, loopback, not-found, conflict) are ordinary results with a
// status tag, never errors.
type Result struct {
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	TableID   string `json:"table"`
	RowID     int64  `json:"row_id"`
	Version   int64  `json:"version,omitempty"`
	Conflicts int    `json:"conflicts,omitempty"`
}

// resultInserted builds the result for a freshly created record.
func resultInserted(e *SyncEvent) *Result {
	return &Result{Status: StInserted, TableID: e.TableID, RowID: e.RowID, Version: 1}
}

// resultUpdated builds the result for a merged update, noting how many fields
// needed conflict resolution.
func resultUpdated(e *SyncEvent, newVersion int64, conflicts int) *Result {
	return &Result{Status: StUpdated, TableID: e.TableID, RowID: e.RowID, Version: newVersion, Conflicts: conflicts}
}

func resultDeleted(e *SyncEvent) *Result {
	return &Result{Status: StDeleted, TableID: e.TableID, RowID: e.RowID}
}

// resultIgnored builds the benign no-op result, echoing the record's current
// version so callers can see what the event lost to.
func resultIgnored(e *SyncEvent, record *Record, reason string) *Result {
	return &Result{Status: StIgnored, Reason: reason, TableID: e.TableID, RowID: e.RowID, Version: record.Version}
}

func resultNotFound(e *SyncEvent) *Result {
	return &Result{Status: StNotFound, TableID: e.TableID, RowID: e.RowID}
}

// resultQueued builds the result for an event accepted into the batch buffer.
func resultQueued(e *SyncEvent) *Result {
	return &Result{Status: StQueued, TableID: e.TableID, RowID: e.RowID}
}
