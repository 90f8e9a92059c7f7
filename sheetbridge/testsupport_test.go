// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// In-memory Store and Auditor fakes used by the engine, resync, buffer and
// handler tests.

var errStoreDown = errors.New("store unreachable")

type memStore struct {
	mu   sync.Mutex
	rows map[string]*Record

	failing bool // every call fails with errStoreDown when set
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*Record)}
}

func memKey(tableID string, rowID int64) string {
	return fmt.Sprintf("%s/%d", tableID, rowID)
}

// seed places a record directly into the store, bypassing version handling.
func (s *memStore) seed(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[memKey(rec.TableID, rec.RowID)] = rec
}

func (s *memStore) Get(ctx context.Context, tableID string, rowID int64) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	rec, ok := s.rows[memKey(tableID, rowID)]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (s *memStore) Insert(ctx context.Context, tableID string, rowID int64, fields map[string]any, source string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	rec := &Record{
		TableID:   tableID,
		RowID:     rowID,
		Fields:    copyFields(fields),
		Source:    source,
		Version:   1,
		UpdatedAt: time.Now(),
	}
	s.rows[memKey(tableID, rowID)] = rec
	return copyRecord(rec), nil
}

func (s *memStore) ApplyFields(ctx context.Context, tableID string, rowID int64, fields map[string]any, source string, newVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	rec, ok := s.rows[memKey(tableID, rowID)]
	if !ok || rec.Version != newVersion-1 {
		return fmt.Errorf("%w: record %s/%d is no longer at version %d", ErrVersionConflict, tableID, rowID, newVersion-1)
	}
	rec.Fields = copyFields(fields)
	rec.Source = source
	rec.Version = newVersion
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) Delete(ctx context.Context, tableID string, rowID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	delete(s.rows, memKey(tableID, rowID))
	return nil
}

func (s *memStore) ListAll(ctx context.Context, tableID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	var out []Record
	for _, rec := range s.rows {
		if rec.TableID == tableID {
			out = append(out, *copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out, nil
}

func (s *memStore) Count(ctx context.Context, tableID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return 0, errStoreDown
	}
	var count int64
	for _, rec := range s.rows {
		if rec.TableID == tableID {
			count++
		}
	}
	return count, nil
}

func copyRecord(rec *Record) *Record {
	cp := *rec
	cp.Fields = copyFields(rec.Fields)
	return &cp
}

func copyFields(fields map[string]any) map[string]any {
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return cp
}

type memAudit struct {
	mu        sync.Mutex
	webhooks  []WebhookAuditEntry
	conflicts []ConflictRecord

	failing bool
}

func newMemAudit() *memAudit {
	return &memAudit{}
}

func (a *memAudit) RecordWebhook(ctx context.Context, payload []byte, status, errMsg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return errStoreDown
	}
	a.webhooks = append(a.webhooks, WebhookAuditEntry{
		ID:           uuid.New(),
		Payload:      json.RawMessage(payload),
		Status:       status,
		ErrorMessage: errMsg,
		CreatedAt:    time.Now(),
	})
	return nil
}

func (a *memAudit) RecordConflicts(ctx context.Context, conflicts []ConflictRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return errStoreDown
	}
	for _, c := range conflicts {
		c.ID = int64(len(a.conflicts) + 1)
		c.CreatedAt = time.Now()
		a.conflicts = append(a.conflicts, c)
	}
	return nil
}

func (a *memAudit) RecentConflicts(ctx context.Context, limit int) ([]ConflictRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return nil, errStoreDown
	}
	out := make([]ConflictRecord, 0, limit)
	for i := len(a.conflicts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.conflicts[i])
	}
	return out, nil
}

func (a *memAudit) RecentWebhooks(ctx context.Context, limit int) ([]WebhookAuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return nil, errStoreDown
	}
	out := make([]WebhookAuditEntry, 0, limit)
	for i := len(a.webhooks) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.webhooks[i])
	}
	return out, nil
}

func (a *memAudit) CountWebhooks(ctx context.Context, status string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return 0, errStoreDown
	}
	var count int64
	for _, e := range a.webhooks {
		if status == "" || e.Status == status {
			count++
		}
	}
	return count, nil
}

func (a *memAudit) CountConflicts(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failing {
		return 0, errStoreDown
	}
	return int64(len(a.conflicts)), nil
}

// webhookStatuses returns the statuses of recorded webhook entries in
// insertion order.
func (a *memAudit) webhookStatuses() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.webhooks))
	for i, e := range a.webhooks {
		out[i] = e.Status
	}
	return out
}

// testMapping returns the employees sheet mapping used across tests.
func testMapping() *SheetMapping {
	return &SheetMapping{
		SheetName: "Employees",
		TableID:   "employees",
		IDColumn:  1,
		Headers:   []string{"", "id", "name", "email", "department"},
		Columns:   map[int]string{2: "name", 3: "email", 4: "department"},
	}
}

func testSchema() map[string][]string {
	return map[string][]string{
		"employees": {"name", "email", "department"},
	}
}

func int64ptr(v int64) *int64 {
	return &v
}
