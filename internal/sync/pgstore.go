/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Postgres driver via pgx stdlib adapter
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aledro/docreaderd/internal/domain"
)

// PgStore is the Postgres-backed operation log shared by all nodes.
type PgStore struct {
	db *sql.DB
}

// OpenPg connects, pings, and ensures the sync schema.
func OpenPg(ctx context.Context, dsn string) (*PgStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &PgStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPgStore wraps an existing connection pool (tests, shared pools).
func NewPgStore(db *sql.DB) *PgStore { return &PgStore{db: db} }

// Close closes the pool.
func (s *PgStore) Close() error { return s.db.Close() }

func (s *PgStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS sync_versions (
			book_id TEXT PRIMARY KEY,
			current_version BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS sync_operations (
			id          TEXT PRIMARY KEY,
			book_id     TEXT NOT NULL,
			op_type     TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			payload     JSONB,
			version     BIGINT NOT NULL,
			device_id   TEXT NOT NULL,
			ts          TIMESTAMPTZ NOT NULL,
			applied     SMALLINT NOT NULL DEFAULT 1
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_operations_book_version ON sync_operations(book_id, version);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_operations_ts ON sync_operations(ts);`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure sync schema: %w", err)
		}
	}
	return nil
}

func (s *PgStore) CurrentVersion(ctx context.Context, bookID string) (uint64, error) {
	var v uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT current_version FROM sync_versions WHERE book_id = $1`, bookID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return v, nil
}

func (s *PgStore) OperationsSince(ctx context.Context, bookID string, since uint64, limit int) ([]domain.SyncOperation, bool, error) {
	q := `SELECT id, op_type, entity_type, entity_id, payload, version, device_id, ts
		FROM sync_operations WHERE book_id = $1 AND version > $2 ORDER BY version ASC`
	args := []any{bookID, since}
	if limit > 0 {
		// fetch one extra row to learn whether more remain
		q += ` LIMIT $3`
		args = append(args, limit+1)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, false, fmt.Errorf("load operations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ops []domain.SyncOperation
	for rows.Next() {
		var op domain.SyncOperation
		var payload sql.NullString
		if err := rows.Scan(&op.ID, (*string)(&op.Type), (*string)(&op.EntityType), &op.EntityID,
			&payload, &op.BaseVersion, &op.DeviceID, &op.Timestamp); err != nil {
			return nil, false, fmt.Errorf("scan operation: %w", err)
		}
		if payload.Valid {
			op.Payload = []byte(payload.String)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasMore := false
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
		hasMore = true
	}
	return ops, hasMore, nil
}

// AppendOperation bumps the document version and inserts the stamped
// operation in one transaction; the row lock on sync_versions serializes
// concurrent pushes for the same document.
func (s *PgStore) AppendOperation(ctx context.Context, bookID string, op domain.SyncOperation) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version uint64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sync_versions (book_id, current_version, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (book_id) DO UPDATE
			SET current_version = sync_versions.current_version + 1, updated_at = now()
		RETURNING current_version`, bookID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("bump version: %w", err)
	}

	var payload any
	if len(op.Payload) > 0 {
		payload = string(op.Payload)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_operations (id, book_id, op_type, entity_type, entity_id, payload, version, device_id, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		op.ID, bookID, string(op.Type), string(op.EntityType), op.EntityID, payload,
		version, op.DeviceID, op.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert operation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return version, nil
}

func (s *PgStore) DeleteAppliedBefore(ctx context.Context, horizon time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_operations WHERE applied = 1 AND ts < $1`, horizon.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete applied: %w", err)
	}
	return res.RowsAffected()
}
