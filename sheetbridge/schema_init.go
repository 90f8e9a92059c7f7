// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InitSchema creates the sync tables if they don't exist. All migrations run
// in a single transaction.
func InitSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	migrations := []string{
		// Dedicated sync schema
		/*language=postgresql*/ `CREATE SCHEMA IF NOT EXISTS sync`,

		// 1) Versioned entity rows. Version is the per-row monotonic counter
		// the engine's conditional writes are keyed on.
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS sync.records (
			table_name TEXT        NOT NULL,
			row_id     BIGINT      NOT NULL,
			fields     JSONB       NOT NULL DEFAULT '{}'::jsonb,
			source     TEXT        NOT NULL CHECK (source IN ('SHEET','DB','MANUAL')),
			version    BIGINT      NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (table_name, row_id)
		)`,

		// 2) Append-only conflict evidence, one row per conflicting field
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS sync.conflict_log (
			id             BIGSERIAL   PRIMARY KEY,
			table_name     TEXT        NOT NULL,
			row_id         BIGINT      NOT NULL,
			field_name     TEXT        NOT NULL,
			incoming_value JSONB,
			current_value  JSONB,
			resolved_value JSONB,
			strategy       TEXT        NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS conflict_log_row_idx ON sync.conflict_log(table_name, row_id, created_at)`,

		// 3) Append-only webhook audit trail
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS sync.webhook_log (
			id            UUID        PRIMARY KEY,
			payload       JSONB,
			status        TEXT        NOT NULL CHECK (status IN ('RECEIVED','PROCESSED','ERROR')),
			error_message TEXT,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_log_created_idx ON sync.webhook_log(created_at DESC)`,
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for i, migration := range migrations {
			logger.Debug("Running sync migration", "step", i+1, "total", len(migrations))
			if _, err := tx.Exec(ctx, migration); err != nil {
				return fmt.Errorf("sync migration %d failed: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("Sync schema initialized", "migrations", len(migrations))
	return nil
}
