/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package annostore persists annotations with multi-selector targets in an
// embedded SQLite database. The full selector array is stored as JSON and
// is authoritative; the cfi / text_quote / progression columns mirror the
// first selector of each kind purely to speed up range queries.
package annostore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/aledro/docreaderd/internal/domain"
	applog "github.com/aledro/docreaderd/internal/log"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// schemaVersion tracks the annotation schema. Bump on breaking changes and
// add a migration step.
const schemaVersion = 1

// Store wraps the annotations database. Safe for concurrent use; SQLite
// serializes writers via the single connection.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open ensures the database file exists, enables WAL, and creates the
// schema. Callers own Close.
func Open(path string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("annostore"), "open").With(slog.String("path", path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	s := &Store{db: db, log: applog.WithComponent("annostore")}
	if err := s.ensureProgressSchema(ctx); err != nil {
		_ = db.Close()
		l.Error("ensure progress schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Info("annotation store ready")
	return s, nil
}

// OpenDB wraps an existing database handle (tests, shared files).
func OpenDB(db *sql.DB) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ensureSchema(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{db: db, log: applog.WithComponent("annostore")}
	if err := s.ensureProgressSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle so sibling stores (upload sessions) can share the
// same database file.
func (s *Store) DB() *sql.DB { return s.db }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS annotations (
			id              TEXT PRIMARY KEY,
			book_id         TEXT NOT NULL,
			user_id         TEXT,
			annotation_type TEXT NOT NULL,
			source          TEXT NOT NULL,
			cfi             TEXT,
			text_quote      TEXT,
			progression     REAL,
			selectors_json  TEXT NOT NULL,
			body_json       TEXT,
			style_json      TEXT,
			sync_json       TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_book ON annotations(book_id);`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_user ON annotations(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_type ON annotations(annotation_type);`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_source ON annotations(source);`,

		// PDF-shaped highlights with region/rect geometry.
		`CREATE TABLE IF NOT EXISTS highlights (
			id              TEXT PRIMARY KEY,
			book_id         TEXT NOT NULL,
			user_id         TEXT,
			document_format TEXT NOT NULL CHECK(document_format IN ('epub','pdf')),
			cfi             TEXT NOT NULL,
			page            INTEGER,
			text            TEXT NOT NULL,
			chapter         TEXT,
			page_percent    REAL,
			color           TEXT NOT NULL,
			annotation      TEXT,
			text_prefix     TEXT,
			text_suffix     TEXT,
			region_x        REAL,
			region_y        REAL,
			region_width    REAL,
			region_height   REAL,
			rects_json      TEXT,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_highlights_book ON highlights(book_id);`,
		`CREATE INDEX IF NOT EXISTS idx_highlights_page ON highlights(book_id, page);`,

		// Contentless FTS over annotation quote/body text, kept in sync by
		// triggers the way the rest of this codebase feeds its indexes.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_annotations USING fts5(
			text,
			content='',
			tokenize = 'unicode61'
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure annotation schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS annotations_ai AFTER INSERT ON annotations BEGIN
			INSERT INTO fts_annotations(rowid, text) VALUES (new.rowid, coalesce(new.text_quote,'') || ' ' || coalesce(new.body_json,''));
		END;`,
		`CREATE TRIGGER IF NOT EXISTS annotations_ad AFTER DELETE ON annotations BEGIN
			INSERT INTO fts_annotations(fts_annotations, rowid, text) VALUES ('delete', old.rowid, coalesce(old.text_quote,'') || ' ' || coalesce(old.body_json,''));
		END;`,
		`CREATE TRIGGER IF NOT EXISTS annotations_au AFTER UPDATE ON annotations BEGIN
			INSERT INTO fts_annotations(fts_annotations, rowid, text) VALUES ('delete', old.rowid, coalesce(old.text_quote,'') || ' ' || coalesce(old.body_json,''));
			INSERT INTO fts_annotations(rowid, text) VALUES (new.rowid, coalesce(new.text_quote,'') || ' ' || coalesce(new.body_json,''));
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('schema', ?) ON CONFLICT(key) DO NOTHING`,
		fmt.Sprintf("%d", schemaVersion)); err != nil {
		return fmt.Errorf("seed schema version: %w", err)
	}
	return nil
}

// selectorSchema validates the persisted selector array before storage.
const selectorSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["kind"],
    "properties": {
      "kind": {
        "enum": ["fragment", "textQuote", "textPosition", "progression", "domRange", "pdfPage", "pdfTextQuote", "pdfRegion"]
      },
      "value": {"type": "number", "minimum": 0, "maximum": 1}
    }
  }
}`

var selectorSchemaLoader = gojsonschema.NewStringLoader(selectorSchema)

// Save inserts or updates an annotation by id.
func (s *Store) Save(ctx context.Context, a domain.Annotation) error {
	if err := a.Validate(); err != nil {
		return err
	}
	selectors, err := json.Marshal(a.Target.Selectors)
	if err != nil {
		return fmt.Errorf("marshal selectors: %w", err)
	}
	res, err := gojsonschema.Validate(selectorSchemaLoader, gojsonschema.NewBytesLoader(selectors))
	if err != nil {
		return fmt.Errorf("validate selectors: %w", err)
	}
	if !res.Valid() {
		return domain.NewError(domain.KindInvalidSelector, fmt.Sprintf("selector shape invalid: %v", res.Errors()))
	}

	cfi, quote, progression := mirrorColumns(a.Target.Selectors)
	body, err := marshalOpt(a.Body)
	if err != nil {
		return err
	}
	style, err := marshalOpt(a.Style)
	if err != nil {
		return err
	}
	syncMeta, err := marshalOpt(a.Sync)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO annotations (id, book_id, user_id, annotation_type, source, cfi, text_quote, progression,
			selectors_json, body_json, style_json, sync_json, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			book_id=excluded.book_id, user_id=excluded.user_id, annotation_type=excluded.annotation_type,
			source=excluded.source, cfi=excluded.cfi, text_quote=excluded.text_quote,
			progression=excluded.progression, selectors_json=excluded.selectors_json,
			body_json=excluded.body_json, style_json=excluded.style_json, sync_json=excluded.sync_json,
			updated_at=excluded.updated_at`,
		a.ID, a.BookID, nullStr(a.UserID), string(a.Type), a.Target.Source,
		cfi, quote, progression, string(selectors), body, style, syncMeta,
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save annotation: %w", err)
	}
	return nil
}

// mirrorColumns picks the first fragment/text-quote/progression selector
// for the indexed scalar columns.
func mirrorColumns(selectors []domain.Selector) (cfi, quote sql.NullString, progression sql.NullFloat64) {
	for _, sel := range selectors {
		switch sel.Kind {
		case domain.SelectorFragment:
			if !cfi.Valid {
				cfi = sql.NullString{String: sel.CFI, Valid: true}
			}
		case domain.SelectorTextQuote, domain.SelectorPdfTextQuote:
			if !quote.Valid {
				quote = sql.NullString{String: sel.Exact, Valid: true}
			}
		case domain.SelectorProgression:
			if !progression.Valid {
				progression = sql.NullFloat64{Float64: sel.Value, Valid: true}
			}
		}
	}
	return cfi, quote, progression
}

// Get returns one annotation by id, or ResourceNotFound.
func (s *Store) Get(ctx context.Context, id string) (*domain.Annotation, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` FROM annotations WHERE id = ?`, id)
	a, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ResourceNotFound(id)
	}
	return a, err
}

// List returns annotations matching the query, newest first.
func (s *Store) List(ctx context.Context, q domain.AnnotationQuery) ([]domain.Annotation, error) {
	where := " WHERE 1=1"
	var args []any
	if q.BookID != "" {
		where += " AND book_id = ?"
		args = append(args, q.BookID)
	}
	if q.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, q.UserID)
	}
	if q.AnnotationType != "" {
		where += " AND annotation_type = ?"
		args = append(args, string(q.AnnotationType))
	}
	if q.ChapterHref != "" {
		where += " AND source = ?"
		args = append(args, q.ChapterHref)
	}
	query := selectCols + ` FROM annotations` + where + ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
		if q.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, q.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Delete removes one annotation. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete annotation: %w", err)
	}
	return nil
}

// DeleteForBook removes every annotation of a document and returns the count.
func (s *Store) DeleteForBook(ctx context.Context, bookID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE book_id = ?`, bookID)
	if err != nil {
		return 0, fmt.Errorf("delete annotations for book: %w", err)
	}
	return res.RowsAffected()
}

// CountForBook returns how many annotations a document has.
func (s *Store) CountForBook(ctx context.Context, bookID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations WHERE book_id = ?`, bookID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count annotations: %w", err)
	}
	return n, nil
}

// ModifiedSince returns annotations of a document updated at or after since,
// oldest first, for incremental sync.
func (s *Store) ModifiedSince(ctx context.Context, bookID string, since time.Time) ([]domain.Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCols+` FROM annotations WHERE book_id = ? AND updated_at >= ? ORDER BY updated_at ASC`,
		bookID, fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("modified since: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const selectCols = `SELECT id, book_id, user_id, annotation_type, source, selectors_json, body_json, style_json, sync_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnnotation(row rowScanner) (*domain.Annotation, error) {
	var (
		a                      domain.Annotation
		userID                 sql.NullString
		selectors              string
		body, style, syncMeta  sql.NullString
		createdAt, updatedAt   string
	)
	err := row.Scan(&a.ID, &a.BookID, &userID, (*string)(&a.Type), &a.Target.Source,
		&selectors, &body, &style, &syncMeta, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.UserID = userID.String
	if err := json.Unmarshal([]byte(selectors), &a.Target.Selectors); err != nil {
		return nil, fmt.Errorf("unmarshal selectors: %w", err)
	}
	if err := unmarshalOpt(body, &a.Body); err != nil {
		return nil, err
	}
	if err := unmarshalOpt(style, &a.Style); err != nil {
		return nil, err
	}
	if err := unmarshalOpt(syncMeta, &a.Sync); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &a, nil
}

func marshalOpt(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case *domain.AnnotationBody:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *domain.AnnotationStyle:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *domain.SyncMetadata:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal json column: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalOpt[T any](col sql.NullString, dst **T) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(col.String), &v); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	*dst = &v
	return nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// sortableTimeLayout is RFC 3339 with the fractional seconds zero-padded to
// a fixed 9 digits. RFC3339Nano strips trailing zeros, which breaks the
// lexicographic ordering the timestamp columns are compared and sorted on;
// the fixed-width form keeps lexical and chronological order in agreement.
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(sortableTimeLayout)
}
