// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ServiceConfig holds configuration for the sync service
type ServiceConfig struct {
	Mappings []*SheetMapping     // Sheet name -> entity mappings
	Schema   map[string][]string // Entity table -> recognized business fields

	// Batch buffering of normalized events. Off by default; the webhook path
	// is synchronous unless enabled.
	BufferEnabled bool
	BufferSize    int
	FlushInterval time.Duration
}

// Service bundles the sync core: normalizer, reconciliation engine, record
// store and audit logger. It is the component HTTP handlers and the CLI talk
// to.
type Service struct {
	store      Store
	audit      Auditor
	normalizer *Normalizer
	engine     *Engine
	buffer     *Buffer // nil when batch buffering is disabled
	logger     *slog.Logger
	tables     []string
}

// NewService creates a service over explicit store and auditor
// implementations. Used directly in tests; production wiring goes through
// NewPGService.
func NewService(store Store, audit Auditor, config *ServiceConfig, logger *slog.Logger) *Service {
	if config == nil {
		config = &ServiceConfig{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	engine := NewEngine(store, audit, logger)

	tables := make([]string, 0, len(config.Schema))
	for table := range config.Schema {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	svc := &Service{
		store:      store,
		audit:      audit,
		normalizer: NewNormalizer(config.Mappings, config.Schema, logger),
		engine:     engine,
		logger:     logger,
		tables:     tables,
	}
	if config.BufferEnabled {
		svc.buffer = NewBuffer(engine, config.BufferSize, config.FlushInterval, logger)
	}
	return svc
}

// NewPGService initializes the database schema and wires the service on top
// of a PostgreSQL pool.
func NewPGService(ctx context.Context, pool *pgxpool.Pool, config *ServiceConfig, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := InitSchema(ctx, pool, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize sync service: %w", err)
	}
	return NewService(NewPGStore(pool, logger), NewPGAuditLogger(pool, logger), config, logger), nil
}

// Buffer returns the batch buffer, or nil when buffering is disabled.
func (s *Service) Buffer() *Buffer {
	return s.buffer
}

// Tables returns the registered entity tables in ascending order.
func (s *Service) Tables() []string {
	return s.tables
}

// ProcessSheetWebhook audits and reconciles one spreadsheet-origin webhook.
// The RECEIVED audit row is written before any processing; the terminal
// PROCESSED/ERROR row on the way out.
func (s *Service) ProcessSheetWebhook(ctx context.Context, payload []byte) (*Result, error) {
	if err := s.audit.RecordWebhook(ctx, payload, WebhookReceived, ""); err != nil {
		return nil, fmt.Errorf("record webhook receipt: %w", err)
	}
	result, err := s.processSheet(ctx, payload)
	return s.finishWebhook(ctx, payload, result, err)
}

// ProcessDBWebhook audits and reconciles one database-origin webhook.
func (s *Service) ProcessDBWebhook(ctx context.Context, payload []byte) (*Result, error) {
	if err := s.audit.RecordWebhook(ctx, payload, WebhookReceived, ""); err != nil {
		return nil, fmt.Errorf("record webhook receipt: %w", err)
	}
	result, err := s.processDB(ctx, payload)
	return s.finishWebhook(ctx, payload, result, err)
}

// rejectedPayloadCap bounds how much of an unreadable request body the audit
// log keeps.
const rejectedPayloadCap = 4096

// RecordRejected audits an inbound call whose body could not be read, so the
// webhook log still carries one entry per call even when processing never
// started. The partial payload is truncated before it is stored.
func (s *Service) RecordRejected(ctx context.Context, payload []byte, reason string) {
	if len(payload) > rejectedPayloadCap {
		payload = payload[:rejectedPayloadCap]
	}
	if err := s.audit.RecordWebhook(ctx, payload, WebhookError, reason); err != nil {
		s.logger.Warn("Failed to record rejected webhook", "error", err)
	}
}

func (s *Service) finishWebhook(ctx context.Context, payload []byte, result *Result, err error) (*Result, error) {
	if err != nil {
		if auditErr := s.audit.RecordWebhook(ctx, payload, WebhookError, err.Error()); auditErr != nil {
			s.logger.Warn("Failed to record webhook error", "error", auditErr)
		}
		return nil, err
	}
	if auditErr := s.audit.RecordWebhook(ctx, payload, WebhookProcessed, ""); auditErr != nil {
		s.logger.Warn("Failed to record webhook completion", "error", auditErr)
	}
	return result, nil
}

func (s *Service) processSheet(ctx context.Context, payload []byte) (*Result, error) {
	var webhook SheetWebhook
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	event, err := s.normalizer.NormalizeSheetEvent(&webhook)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, event)
}

func (s *Service) processDB(ctx context.Context, payload []byte) (*Result, error) {
	var webhook DBWebhook
	if err := json.Unmarshal(payload, &webhook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	event, err := s.normalizer.NormalizeDBEvent(&webhook)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, event)
}

func (s *Service) dispatch(ctx context.Context, event *SyncEvent) (*Result, error) {
	if s.buffer != nil {
		if err := s.buffer.Enqueue(event); err != nil {
			return nil, err
		}
		return resultQueued(event), nil
	}
	return s.engine.Apply(ctx, event)
}

// Records lists all records of a table, ordered by row id ascending.
func (s *Service) Records(ctx context.Context, tableID string) ([]Record, error) {
	return s.store.ListAll(ctx, tableID)
}

// Conflicts lists recent conflict records, newest first.
func (s *Service) Conflicts(ctx context.Context, limit int) ([]ConflictRecord, error) {
	return s.audit.RecentConflicts(ctx, limit)
}

// Webhooks lists recent webhook audit entries, newest first.
func (s *Service) Webhooks(ctx context.Context, limit int) ([]WebhookAuditEntry, error) {
	return s.audit.RecentWebhooks(ctx, limit)
}

// Status aggregates counts for the dashboard.
func (s *Service) Status(ctx context.Context) (*StatusSummary, error) {
	var records int64
	for _, table := range s.tables {
		count, err := s.store.Count(ctx, table)
		if err != nil {
			return nil, err
		}
		records += count
	}
	conflicts, err := s.audit.CountConflicts(ctx)
	if err != nil {
		return nil, err
	}
	processed, err := s.audit.CountWebhooks(ctx, WebhookProcessed)
	if err != nil {
		return nil, err
	}
	return &StatusSummary{
		Records:           records,
		Conflicts:         conflicts,
		WebhooksProcessed: processed,
	}, nil
}
