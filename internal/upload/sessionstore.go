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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aledro/docreaderd/internal/domain"
)

// SessionStore persists upload sessions.
type SessionStore interface {
	Get(ctx context.Context, id string) (*domain.UploadSession, error)
	Put(ctx context.Context, s *domain.UploadSession) error

	// FindResumableByHash returns a pending/active session with the given
	// file hash, or nil.
	FindResumableByHash(ctx context.Context, fileHash string) (*domain.UploadSession, error)

	// ListOverdue returns pending/active sessions whose expiry has passed.
	ListOverdue(ctx context.Context, now time.Time) ([]*domain.UploadSession, error)

	// ChunkReferencedElsewhere reports whether another pending/active
	// session declares the chunk hash.
	ChunkReferencedElsewhere(ctx context.Context, chunkHash, excludeSessionID string) (bool, error)
}

// MemSessionStore is the in-memory store used by tests.
type MemSessionStore struct {
	mu sync.Mutex
	m  map[string]*domain.UploadSession
}

// NewMemSessionStore returns an empty store.
func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{m: make(map[string]*domain.UploadSession)}
}

func (s *MemSessionStore) Get(_ context.Context, id string) (*domain.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return nil, nil
	}
	cp := cloneSession(sess)
	return cp, nil
}

func (s *MemSessionStore) Put(_ context.Context, sess *domain.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.ID] = cloneSession(sess)
	return nil
}

func (s *MemSessionStore) FindResumableByHash(_ context.Context, fileHash string) (*domain.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.m {
		if sess.FileHash == fileHash && isLive(sess.Status) {
			return cloneSession(sess), nil
		}
	}
	return nil, nil
}

func (s *MemSessionStore) ListOverdue(_ context.Context, now time.Time) ([]*domain.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.UploadSession
	for _, sess := range s.m {
		if isLive(sess.Status) && now.After(sess.ExpiresAt) {
			out = append(out, cloneSession(sess))
		}
	}
	return out, nil
}

func (s *MemSessionStore) ChunkReferencedElsewhere(_ context.Context, chunkHash, excludeSessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.m {
		if sess.ID == excludeSessionID || !isLive(sess.Status) {
			continue
		}
		for _, h := range sess.ChunkHashes {
			if h == chunkHash {
				return true, nil
			}
		}
	}
	return false, nil
}

func isLive(st domain.UploadStatus) bool {
	return st == domain.UploadPending || st == domain.UploadActive
}

func cloneSession(s *domain.UploadSession) *domain.UploadSession {
	cp := *s
	cp.ChunkHashes = append([]string(nil), s.ChunkHashes...)
	cp.ReceivedChunks = make(map[int]bool, len(s.ReceivedChunks))
	for k, v := range s.ReceivedChunks {
		cp.ReceivedChunks[k] = v
	}
	return &cp
}

// sortableTimeLayout is RFC 3339 with fixed 9-digit fractional seconds, so
// the lexical comparison ListOverdue runs on expires_at agrees with
// chronological order (RFC3339Nano strips trailing zeros and does not).
const sortableTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteSessionStore persists sessions in the shared embedded database.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore ensures the sessions schema on an existing handle.
func NewSQLiteSessionStore(ctx context.Context, db *sql.DB) (*SQLiteSessionStore, error) {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS upload_sessions (
			id           TEXT PRIMARY KEY,
			file_name    TEXT NOT NULL,
			file_size    INTEGER NOT NULL,
			file_hash    TEXT NOT NULL,
			mime_type    TEXT,
			chunk_hashes TEXT NOT NULL,
			chunk_size   INTEGER NOT NULL,
			received     TEXT NOT NULL,
			status       TEXT NOT NULL,
			expires_at   TEXT NOT NULL,
			user_id      TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_upload_sessions_hash ON upload_sessions(file_hash);`,
		`CREATE INDEX IF NOT EXISTS idx_upload_sessions_status ON upload_sessions(status);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return nil, fmt.Errorf("ensure upload schema: %w", err)
		}
	}
	return &SQLiteSessionStore{db: db}, nil
}

func (s *SQLiteSessionStore) Get(ctx context.Context, id string) (*domain.UploadSession, error) {
	row := s.db.QueryRowContext(ctx, sessionCols+` FROM upload_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *SQLiteSessionStore) Put(ctx context.Context, sess *domain.UploadSession) error {
	hashes, err := json.Marshal(sess.ChunkHashes)
	if err != nil {
		return fmt.Errorf("marshal chunk hashes: %w", err)
	}
	received := make([]int, 0, len(sess.ReceivedChunks))
	for i, ok := range sess.ReceivedChunks {
		if ok {
			received = append(received, i)
		}
	}
	receivedJSON, err := json.Marshal(received)
	if err != nil {
		return fmt.Errorf("marshal received set: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO upload_sessions (id, file_name, file_size, file_hash, mime_type, chunk_hashes,
			chunk_size, received, status, expires_at, user_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			received=excluded.received, status=excluded.status, expires_at=excluded.expires_at`,
		sess.ID, sess.FileName, sess.FileSize, sess.FileHash, sess.MimeType, string(hashes),
		sess.ChunkSize, string(receivedJSON), string(sess.Status),
		sess.ExpiresAt.UTC().Format(sortableTimeLayout), sess.UserID)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLiteSessionStore) FindResumableByHash(ctx context.Context, fileHash string) (*domain.UploadSession, error) {
	row := s.db.QueryRowContext(ctx,
		sessionCols+` FROM upload_sessions WHERE file_hash = ? AND status IN ('pending','active') LIMIT 1`,
		fileHash)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *SQLiteSessionStore) ListOverdue(ctx context.Context, now time.Time) ([]*domain.UploadSession, error) {
	rows, err := s.db.QueryContext(ctx,
		sessionCols+` FROM upload_sessions WHERE status IN ('pending','active') AND expires_at < ?`,
		now.UTC().Format(sortableTimeLayout))
	if err != nil {
		return nil, fmt.Errorf("list overdue: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.UploadSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteSessionStore) ChunkReferencedElsewhere(ctx context.Context, chunkHash, excludeSessionID string) (bool, error) {
	var n int
	// chunk_hashes is a JSON array of hex strings; a quoted LIKE match is
	// exact because hashes are fixed-alphabet
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM upload_sessions
		WHERE id != ? AND status IN ('pending','active') AND chunk_hashes LIKE ?`,
		excludeSessionID, `%"`+chunkHash+`"%`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("chunk ref check: %w", err)
	}
	return n > 0, nil
}

const sessionCols = `SELECT id, file_name, file_size, file_hash, mime_type, chunk_hashes, chunk_size, received, status, expires_at, user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.UploadSession, error) {
	var (
		sess               domain.UploadSession
		mimeType, userID   sql.NullString
		hashes, received   string
		status, expiresAt  string
	)
	err := row.Scan(&sess.ID, &sess.FileName, &sess.FileSize, &sess.FileHash, &mimeType,
		&hashes, &sess.ChunkSize, &received, &status, &expiresAt, &userID)
	if err != nil {
		return nil, err
	}
	sess.MimeType = mimeType.String
	sess.UserID = userID.String
	sess.Status = domain.UploadStatus(status)
	if err := json.Unmarshal([]byte(hashes), &sess.ChunkHashes); err != nil {
		return nil, fmt.Errorf("unmarshal chunk hashes: %w", err)
	}
	var indices []int
	if err := json.Unmarshal([]byte(received), &indices); err != nil {
		return nil, fmt.Errorf("unmarshal received set: %w", err)
	}
	sess.ReceivedChunks = make(map[int]bool, len(indices))
	for _, i := range indices {
		sess.ReceivedChunks[i] = true
	}
	if sess.ExpiresAt, err = time.Parse(time.RFC3339Nano, expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &sess, nil
}
