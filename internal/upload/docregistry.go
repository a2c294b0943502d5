/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package upload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/aledro/docreaderd/internal/domain"
)

// SQLiteDocumentRegistry is the embedded documents table behind hash dedup
// and finalization. It shares the database file with the annotation store.
type SQLiteDocumentRegistry struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteDocumentRegistry ensures the documents schema on an existing
// handle.
func NewSQLiteDocumentRegistry(ctx context.Context, db *sql.DB) (*SQLiteDocumentRegistry, error) {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id          TEXT PRIMARY KEY,
			file_name   TEXT NOT NULL,
			mime_type   TEXT,
			file_hash   TEXT NOT NULL UNIQUE,
			storage_key TEXT NOT NULL,
			size        INTEGER NOT NULL,
			user_id     TEXT,
			created_at  TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return nil, fmt.Errorf("ensure documents schema: %w", err)
		}
	}
	return &SQLiteDocumentRegistry{db: db, now: time.Now}, nil
}

// FindByHash answers the handshake's dedup query.
func (r *SQLiteDocumentRegistry) FindByHash(ctx context.Context, fileHash string) (string, bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE file_hash = ?`, fileHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find document by hash: %w", err)
	}
	return id, true, nil
}

// Create registers a finalized document and returns its id.
func (r *SQLiteDocumentRegistry) Create(ctx context.Context, rec DocumentRecord) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("document id: %w", err)
	}
	var userID any
	if rec.UserID != "" {
		userID = rec.UserID
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (id, file_name, mime_type, file_hash, storage_key, size, user_id, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		id.String(), rec.FileName, rec.MimeType, rec.FileHash, rec.StorageKey, rec.Size,
		userID, r.now().UTC().Format(sortableTimeLayout))
	if err != nil {
		return "", fmt.Errorf("create document: %w", err)
	}
	return id.String(), nil
}

// Get returns one registered document, or ResourceNotFound.
func (r *SQLiteDocumentRegistry) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	var (
		rec      DocumentRecord
		mimeType sql.NullString
		userID   sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT file_name, mime_type, file_hash, storage_key, size, user_id FROM documents WHERE id = ?`, id).
		Scan(&rec.FileName, &mimeType, &rec.FileHash, &rec.StorageKey, &rec.Size, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ResourceNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	rec.MimeType = mimeType.String
	rec.UserID = userID.String
	return &rec, nil
}

// Delete removes a document record; unknown ids are a no-op.
func (r *SQLiteDocumentRegistry) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
