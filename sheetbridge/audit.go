// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Auditor records every inbound webhook and every detected conflict.
// The contract is append + read-only query; no update or delete is exposed.
type Auditor interface {
	// RecordWebhook appends one audit row. Handlers call it at least twice per
	// request: RECEIVED on entry, then PROCESSED or ERROR on exit.
	RecordWebhook(ctx context.Context, payload []byte, status, errMsg string) error

	// RecordConflicts appends one row per conflicting field.
	RecordConflicts(ctx context.Context, conflicts []ConflictRecord) error

	RecentConflicts(ctx context.Context, limit int) ([]ConflictRecord, error)
	RecentWebhooks(ctx context.Context, limit int) ([]WebhookAuditEntry, error)

	// CountWebhooks counts audit entries, optionally filtered by status.
	CountWebhooks(ctx context.Context, status string) (int64, error)
	CountConflicts(ctx context.Context) (int64, error)
}

// PGAuditLogger is the PostgreSQL-backed audit/conflict logger.
type PGAuditLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGAuditLogger creates an audit logger on top of an existing pool.
func NewPGAuditLogger(pool *pgxpool.Pool, logger *slog.Logger) *PGAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGAuditLogger{pool: pool, logger: logger}
}

func (a *PGAuditLogger) RecordWebhook(ctx context.Context, payload []byte, status, errMsg string) error {
	if !json.Valid(payload) {
		// Unparseable bodies are still auditable; store them as a JSON string.
		quoted, err := json.Marshal(string(payload))
		if err != nil {
			return fmt.Errorf("encode raw payload: %w", err)
		}
		payload = quoted
	}
	_, err := a.pool.Exec(ctx, `
		INSERT INTO sync.webhook_log (id, payload, status, error_message)
		VALUES (@id, @payload::jsonb, @status, @error_message)`,
		pgx.NamedArgs{
			"id":            uuid.New(),
			"payload":       payload,
			"status":        status,
			"error_message": nullableText(errMsg),
		},
	)
	if err != nil {
		return fmt.Errorf("record webhook audit: %w", err)
	}
	return nil
}

func (a *PGAuditLogger) RecordConflicts(ctx context.Context, conflicts []ConflictRecord) error {
	if len(conflicts) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, a.pool, func(tx pgx.Tx) error {
		for _, c := range conflicts {
			incoming, err := json.Marshal(c.IncomingValue)
			if err != nil {
				return fmt.Errorf("encode incoming value: %w", err)
			}
			current, err := json.Marshal(c.CurrentValue)
			if err != nil {
				return fmt.Errorf("encode current value: %w", err)
			}
			resolved, err := json.Marshal(c.ResolvedValue)
			if err != nil {
				return fmt.Errorf("encode resolved value: %w", err)
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO sync.conflict_log
					(table_name, row_id, field_name, incoming_value, current_value, resolved_value, strategy)
				VALUES (@table_name, @row_id, @field_name, @incoming::jsonb, @current::jsonb, @resolved::jsonb, @strategy)`,
				pgx.NamedArgs{
					"table_name": c.TableID,
					"row_id":     c.RowID,
					"field_name": c.Field,
					"incoming":   incoming,
					"current":    current,
					"resolved":   resolved,
					"strategy":   c.Strategy,
				},
			)
			if err != nil {
				return fmt.Errorf("record conflict %s/%d field %s: %w", c.TableID, c.RowID, c.Field, err)
			}
		}
		return nil
	})
}

func (a *PGAuditLogger) RecentConflicts(ctx context.Context, limit int) ([]ConflictRecord, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, table_name, row_id, field_name, incoming_value, current_value, resolved_value, strategy, created_at
		FROM sync.conflict_log
		ORDER BY created_at DESC, id DESC
		LIMIT @limit`,
		pgx.NamedArgs{"limit": clampLimit(limit)},
	)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var out []ConflictRecord
	for rows.Next() {
		var (
			c                           ConflictRecord
			incoming, current, resolved []byte
		)
		if err := rows.Scan(&c.ID, &c.TableID, &c.RowID, &c.Field, &incoming, &current, &resolved, &c.Strategy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conflict row: %w", err)
		}
		if err := json.Unmarshal(incoming, &c.IncomingValue); err != nil {
			return nil, fmt.Errorf("decode incoming value: %w", err)
		}
		if err := json.Unmarshal(current, &c.CurrentValue); err != nil {
			return nil, fmt.Errorf("decode current value: %w", err)
		}
		if err := json.Unmarshal(resolved, &c.ResolvedValue); err != nil {
			return nil, fmt.Errorf("decode resolved value: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (a *PGAuditLogger) RecentWebhooks(ctx context.Context, limit int) ([]WebhookAuditEntry, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, payload, status, COALESCE(error_message, ''), created_at
		FROM sync.webhook_log
		ORDER BY created_at DESC
		LIMIT @limit`,
		pgx.NamedArgs{"limit": clampLimit(limit)},
	)
	if err != nil {
		return nil, fmt.Errorf("list webhook audit entries: %w", err)
	}
	defer rows.Close()

	var out []WebhookAuditEntry
	for rows.Next() {
		var e WebhookAuditEntry
		if err := rows.Scan(&e.ID, &e.Payload, &e.Status, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook audit row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (a *PGAuditLogger) CountWebhooks(ctx context.Context, status string) (int64, error) {
	args := pgx.NamedArgs{}
	query := `SELECT count(*) FROM sync.webhook_log`
	if status != "" {
		query += ` WHERE status = @status`
		args["status"] = status
	}
	var count int64
	if err := a.pool.QueryRow(ctx, query, args).Scan(&count); err != nil {
		return 0, fmt.Errorf("count webhook audit entries: %w", err)
	}
	return count, nil
}

func (a *PGAuditLogger) CountConflicts(ctx context.Context) (int64, error) {
	var count int64
	if err := a.pool.QueryRow(ctx, `SELECT count(*) FROM sync.conflict_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count conflicts: %w", err)
	}
	return count, nil
}

func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
