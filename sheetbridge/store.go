// Copyright 2025 The sheetbridge Authors
// SPDX-License-Identifier: Apache-2.0

package sheetbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned by ApplyFields when the stored version no
// longer equals the version the caller read. Together with the engine's
// per-row serialization it keeps version monotonicity under concurrent
// requests.
var ErrVersionConflict = errors.New("version_conflict")

// Store is the versioned row access contract consumed by the engine.
// The engine is the only caller permitted to mutate records; store failures
// propagate as errors and are never retried here.
type Store interface {
	// Get returns the record, or nil when the row is absent.
	Get(ctx context.Context, tableID string, rowID int64) (*Record, error)

	// Insert creates a row with version 1.
	Insert(ctx context.Context, tableID string, rowID int64, fields map[string]any, source string) (*Record, error)

	// ApplyFields replaces the row's fields, source and version. The write is
	// conditional: it succeeds only if the stored version equals newVersion-1.
	ApplyFields(ctx context.Context, tableID string, rowID int64, fields map[string]any, source string, newVersion int64) error

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, tableID string, rowID int64) error

	// ListAll returns every row of the table ordered by row id ascending.
	ListAll(ctx context.Context, tableID string) ([]Record, error)

	// Count returns the number of rows in the table.
	Count(ctx context.Context, tableID string) (int64, error)
}

// PGStore is the PostgreSQL-backed record store.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGStore creates a record store on top of an existing connection pool.
func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{pool: pool, logger: logger}
}

func (s *PGStore) Get(ctx context.Context, tableID string, rowID int64) (*Record, error) {
	var (
		rec       Record
		rawFields []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT table_name, row_id, fields, source, version, updated_at
		FROM sync.records
		WHERE table_name = @table_name AND row_id = @row_id`,
		pgx.NamedArgs{"table_name": tableID, "row_id": rowID},
	).Scan(&rec.TableID, &rec.RowID, &rawFields, &rec.Source, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get record %s/%d: %w", tableID, rowID, err)
	}
	if err := json.Unmarshal(rawFields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("decode fields for %s/%d: %w", tableID, rowID, err)
	}
	return &rec, nil
}

func (s *PGStore) Insert(ctx context.Context, tableID string, rowID int64, fields map[string]any, source string) (*Record, error) {
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields for %s/%d: %w", tableID, rowID, err)
	}
	var rec Record
	err = s.pool.QueryRow(ctx, `
		INSERT INTO sync.records (table_name, row_id, fields, source, version, updated_at)
		VALUES (@table_name, @row_id, @fields::jsonb, @source, 1, now())
		RETURNING table_name, row_id, source, version, updated_at`,
		pgx.NamedArgs{
			"table_name": tableID,
			"row_id":     rowID,
			"fields":     rawFields,
			"source":     source,
		},
	).Scan(&rec.TableID, &rec.RowID, &rec.Source, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert record %s/%d: %w", tableID, rowID, err)
	}
	rec.Fields = fields
	return &rec, nil
}

func (s *PGStore) ApplyFields(ctx context.Context, tableID string, rowID int64, fields map[string]any, source string, newVersion int64) error {
	rawFields, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode fields for %s/%d: %w", tableID, rowID, err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync.records
		SET fields = @fields::jsonb, source = @source, version = @version, updated_at = now()
		WHERE table_name = @table_name AND row_id = @row_id AND version = @version - 1`,
		pgx.NamedArgs{
			"table_name": tableID,
			"row_id":     rowID,
			"fields":     rawFields,
			"source":     source,
			"version":    newVersion,
		},
	)
	if err != nil {
		return fmt.Errorf("update record %s/%d: %w", tableID, rowID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: record %s/%d is no longer at version %d", ErrVersionConflict, tableID, rowID, newVersion-1)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, tableID string, rowID int64) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM sync.records
		WHERE table_name = @table_name AND row_id = @row_id`,
		pgx.NamedArgs{"table_name": tableID, "row_id": rowID},
	)
	if err != nil {
		return fmt.Errorf("delete record %s/%d: %w", tableID, rowID, err)
	}
	return nil
}

func (s *PGStore) ListAll(ctx context.Context, tableID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_name, row_id, fields, source, version, updated_at
		FROM sync.records
		WHERE table_name = @table_name
		ORDER BY row_id ASC`,
		pgx.NamedArgs{"table_name": tableID},
	)
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", tableID, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			rawFields []byte
		)
		if err := rows.Scan(&rec.TableID, &rec.RowID, &rawFields, &rec.Source, &rec.Version, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		if err := json.Unmarshal(rawFields, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode fields for %s/%d: %w", rec.TableID, rec.RowID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) Count(ctx context.Context, tableID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM sync.records WHERE table_name = @table_name`,
		pgx.NamedArgs{"table_name": tableID},
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records %s: %w", tableID, err)
	}
	return count, nil
}
