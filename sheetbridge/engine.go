// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"
)

// Engine is the reconciliation core. For every normalized sync event it runs
// the decision state machine against the current record: idempotency check,
// loopback check, conflict detection, last-write-wins resolution, then the
// apply. Read-decide-write is serialized per (table, row) and the store write
// is additionally conditioned on the version read, so concurrent requests for
// the same row cannot clobber each other's version increments.
type Engine struct {
	store  Store
	audit  Auditor
	logger *slog.Logger

	// Striped row locks: bounded memory regardless of row cardinality.
	// Distinct rows may share a stripe; the store's conditional write still
	// guards correctness, the stripe only orders the read-decide-write.
	locks [rowLockStripes]sync.Mutex
}

const rowLockStripes = 128

// NewEngine creates a reconciliation engine over the given store and auditor.
func NewEngine(store Store, audit Auditor, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

func (e *Engine) rowLock(tableID string, rowID int64) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(tableID))
	h.Write([]byte{'/'})
	h.Write([]byte(strconv.FormatInt(rowID, 10)))
	return &e.locks[h.Sum32()%rowLockStripes]
}

// Apply runs the reconciliation state machine for a single event. Expected
// outcomes come back as Results; only store failures come back as errors, and
// they are not retried here.
func (e *Engine) Apply(ctx context.Context, event *SyncEvent) (*Result, error) {
	lock := e.rowLock(event.TableID, event.RowID)
	lock.Lock()
	defer lock.Unlock()

	record, err := e.store.Get(ctx, event.TableID, event.RowID)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	if record == nil {
		if event.Operation != OpInsert {
			e.logger.Info("Event targets a nonexistent row",
				"table", event.TableID, "row_id", event.RowID, "operation", event.Operation)
			return resultNotFound(event), nil
		}
		if _, err := e.store.Insert(ctx, event.TableID, event.RowID, event.Changes, event.Source); err != nil {
			return nil, fmt.Errorf("apply insert: %w", err)
		}
		e.logger.Info("Record created",
			"table", event.TableID, "row_id", event.RowID, "source", event.Source)
		return resultInserted(event), nil
	}

	// Idempotency by version comparison: reprocessing the identical or an
	// outdated event is a no-op.
	if event.Version != nil && *event.Version <= record.Version {
		e.logger.Info("Ignoring stale event",
			"table", event.TableID, "row_id", event.RowID,
			"event_version", *event.Version, "record_version", record.Version)
		return resultIgnored(event, record, ReasonStaleVersion), nil
	}

	// Anti-ping-pong: a change just written by source X must not re-apply when
	// X's own downstream echo arrives. Only a different origin or an explicit
	// manual override proceeds. Evaluated strictly after the stale check.
	if record.Source == event.Source && event.Source != SourceManual {
		e.logger.Info("Ignoring loopback event",
			"table", event.TableID, "row_id", event.RowID, "source", event.Source)
		return resultIgnored(event, record, ReasonLoopback), nil
	}

	if event.Operation == OpDelete {
		if err := e.store.Delete(ctx, event.TableID, event.RowID); err != nil {
			return nil, fmt.Errorf("apply delete: %w", err)
		}
		e.logger.Info("Record deleted",
			"table", event.TableID, "row_id", event.RowID, "source", event.Source)
		return resultDeleted(event), nil
	}

	// INSERT on an existing row falls through to the update path.
	resolved, conflicts := e.resolveConflicts(record, event)
	if len(conflicts) > 0 {
		if err := e.audit.RecordConflicts(ctx, conflicts); err != nil {
			return nil, fmt.Errorf("record conflicts: %w", err)
		}
		e.logger.Warn("Resolved field conflicts",
			"table", event.TableID, "row_id", event.RowID,
			"fields", len(conflicts), "strategy", StrategyLastWriteWins)
	}

	fields := make(map[string]any, len(record.Fields)+len(resolved))
	for name, value := range record.Fields {
		fields[name] = value
	}
	for name, value := range resolved {
		fields[name] = value
	}

	newVersion := record.Version + 1
	if err := e.store.ApplyFields(ctx, event.TableID, event.RowID, fields, event.Source, newVersion); err != nil {
		return nil, fmt.Errorf("apply update: %w", err)
	}
	e.logger.Info("Record updated",
		"table", event.TableID, "row_id", event.RowID,
		"source", event.Source, "version", newVersion, "conflicts", len(conflicts))
	return resultUpdated(event, newVersion, len(conflicts)), nil
}

// resolveConflicts compares incoming changes against the record's current
// values and resolves each disagreement independently with last-write-wins:
// the value with the later timestamp wins, field by field, so a single update
// can end up partially accepted. On equal timestamps the current value wins
// (strict greater-than, not greater-or-equal).
func (e *Engine) resolveConflicts(record *Record, event *SyncEvent) (map[string]any, []ConflictRecord) {
	resolved := make(map[string]any, len(event.Changes))
	var conflicts []ConflictRecord
	for field, incoming := range event.Changes {
		current, exists := record.Fields[field]
		if !exists || valuesEqual(current, incoming) {
			resolved[field] = incoming
			continue
		}
		winner := current
		if event.Timestamp.After(record.UpdatedAt) {
			winner = incoming
		}
		resolved[field] = winner
		conflicts = append(conflicts, ConflictRecord{
			TableID:       event.TableID,
			RowID:         event.RowID,
			Field:         field,
			IncomingValue: incoming,
			CurrentValue:  current,
			ResolvedValue: winner,
			Strategy:      StrategyLastWriteWins,
		})
	}
	return resolved, conflicts
}

// valuesEqual compares two field values after JSON normalization, so an int64
// written locally and the float64 a decoded payload carries compare equal.
func valuesEqual(a, b any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(rawA, rawB)
}
