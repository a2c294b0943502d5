/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annostore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aledro/docreaderd/internal/domain"
)

// ReadingProgress is the per-user, per-document resume position: a CFI for
// EPUBs, a page for PDFs, plus the overall progression in [0,1].
type ReadingProgress struct {
	BookID      string    `json:"bookId"`
	UserID      string    `json:"userId,omitempty"`
	CFI         string    `json:"cfi,omitempty"`
	Page        *int      `json:"page,omitempty"`
	Progression float64   `json:"progression"`
	DeviceID    string    `json:"deviceId,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReadingSession is one continuous reading span, used for statistics.
type ReadingSession struct {
	ID        string     `json:"id"`
	BookID    string     `json:"bookId"`
	UserID    string     `json:"userId,omitempty"`
	DeviceID  string     `json:"deviceId,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	Pages     int        `json:"pages"`
}

func (s *Store) ensureProgressSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS reading_progress (
			book_id     TEXT NOT NULL,
			user_id     TEXT NOT NULL DEFAULT '',
			cfi         TEXT,
			page        INTEGER,
			progression REAL NOT NULL DEFAULT 0,
			device_id   TEXT,
			updated_at  TEXT NOT NULL,
			PRIMARY KEY (book_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS reading_sessions (
			id         TEXT PRIMARY KEY,
			book_id    TEXT NOT NULL,
			user_id    TEXT,
			device_id  TEXT,
			started_at TEXT NOT NULL,
			ended_at   TEXT,
			pages      INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reading_sessions_book ON reading_sessions(book_id);`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure progress schema: %w", err)
		}
	}
	return nil
}

// SaveProgress upserts the resume position for (bookId, userId). The newest
// update wins; concurrent devices converge through the sync engine, this
// table just holds the local view.
func (s *Store) SaveProgress(ctx context.Context, p ReadingProgress) error {
	if p.BookID == "" {
		return domain.NewError(domain.KindInvalidSelector, "progress bookId is required")
	}
	if p.Progression < 0 || p.Progression > 1 {
		return domain.NewError(domain.KindInvalidSelector, "progression must be in [0,1]")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_progress (book_id, user_id, cfi, page, progression, device_id, updated_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(book_id, user_id) DO UPDATE SET
			cfi=excluded.cfi, page=excluded.page, progression=excluded.progression,
			device_id=excluded.device_id, updated_at=excluded.updated_at`,
		p.BookID, p.UserID, nullStr(p.CFI), nullInt(p.Page), p.Progression,
		nullStr(p.DeviceID), fmtTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// GetProgress returns the resume position, or ResourceNotFound when the
// user has never opened the document.
func (s *Store) GetProgress(ctx context.Context, bookID, userID string) (*ReadingProgress, error) {
	var (
		p         ReadingProgress
		cfi       sql.NullString
		page      sql.NullInt64
		deviceID  sql.NullString
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT book_id, user_id, cfi, page, progression, device_id, updated_at
		FROM reading_progress WHERE book_id = ? AND user_id = ?`, bookID, userID).
		Scan(&p.BookID, &p.UserID, &cfi, &page, &p.Progression, &deviceID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ResourceNotFound(bookID)
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	p.CFI = cfi.String
	p.DeviceID = deviceID.String
	if page.Valid {
		n := int(page.Int64)
		p.Page = &n
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}

// StartSession opens a reading session row.
func (s *Store) StartSession(ctx context.Context, sess ReadingSession) error {
	if sess.ID == "" || sess.BookID == "" {
		return domain.NewError(domain.KindInvalidSelector, "session id and bookId are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reading_sessions (id, book_id, user_id, device_id, started_at, ended_at, pages)
		VALUES (?,?,?,?,?,NULL,?)`,
		sess.ID, sess.BookID, nullStr(sess.UserID), nullStr(sess.DeviceID),
		fmtTime(sess.StartedAt), sess.Pages)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// EndSession closes a session and records how many pages were read.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time, pages int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reading_sessions SET ended_at = ?, pages = ? WHERE id = ? AND ended_at IS NULL`,
		fmtTime(endedAt), pages, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ResourceNotFound(id)
	}
	return nil
}

// SessionsForBook returns a document's sessions, newest first.
func (s *Store) SessionsForBook(ctx context.Context, bookID string, limit int) ([]ReadingSession, error) {
	q := `SELECT id, book_id, user_id, device_id, started_at, ended_at, pages
		FROM reading_sessions WHERE book_id = ? ORDER BY started_at DESC`
	args := []any{bookID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []ReadingSession
	for rows.Next() {
		var (
			sess              ReadingSession
			userID, deviceID  sql.NullString
			startedAt         string
			endedAt           sql.NullString
		)
		if err := rows.Scan(&sess.ID, &sess.BookID, &userID, &deviceID, &startedAt, &endedAt, &sess.Pages); err != nil {
			return nil, err
		}
		sess.UserID = userID.String
		sess.DeviceID = deviceID.String
		if sess.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if endedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			sess.EndedAt = &t
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
