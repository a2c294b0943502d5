/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package upload implements resumable chunked uploads with per-chunk hash
// validation, content-addressed chunk storage, whole-file deduplication,
// and finalization into an object store. The session is a small state
// machine {Pending, Active, Complete, Failed, Expired}; transitions are
// enforced centrally and nothing ever leaves Complete.
package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/gofrs/uuid"

	"github.com/aledro/docreaderd/internal/domain"
	applog "github.com/aledro/docreaderd/internal/log"
)

// DefaultMaxFileSize bounds a single upload.
const DefaultMaxFileSize = 2 << 30 // 2 GiB

// DefaultSessionTTL is how long an idle session survives.
const DefaultSessionTTL = 24 * time.Hour

// ObjectStore is the byte-blob backend finalized documents land in. The
// concrete client (S3, MinIO, filesystem) lives outside this module.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// DocumentRecord is what finalization registers.
type DocumentRecord struct {
	FileName   string
	MimeType   string
	FileHash   string
	StorageKey string
	Size       int64
	UserID     string
}

// DocumentRegistrar creates document records and answers hash-dedup
// queries.
type DocumentRegistrar interface {
	FindByHash(ctx context.Context, fileHash string) (documentID string, ok bool, err error)
	Create(ctx context.Context, rec DocumentRecord) (documentID string, err error)
}

// HandshakeRequest opens or resumes a session.
type HandshakeRequest struct {
	FileName    string   `json:"fileName"`
	FileSize    int64    `json:"fileSize"`
	FileHash    string   `json:"fileHash"`
	MimeType    string   `json:"mimeType"`
	ChunkHashes []string `json:"chunkHashes"`
	ChunkSize   int64    `json:"chunkSize"`
	UserID      string   `json:"userId,omitempty"`
}

// HandshakeResponse either short-circuits a duplicate or returns the
// session to upload against (possibly with chunks already received).
type HandshakeResponse struct {
	Duplicate          bool                  `json:"duplicate"`
	ExistingDocumentID string                `json:"existingDocumentId,omitempty"`
	Session            *domain.UploadSession `json:"session,omitempty"`
}

// ChunkResponse acknowledges one chunk.
type ChunkResponse struct {
	Received      bool `json:"received"`
	ReceivedCount int  `json:"receivedCount"`
	TotalChunks   int  `json:"totalChunks"`
}

// FinalizeResponse names the created document.
type FinalizeResponse struct {
	DocumentID string `json:"documentId"`
	StorageKey string `json:"storageKey"`
}

// Options tunes an Engine.
type Options struct {
	MaxFileSize int64
	SessionTTL  time.Duration
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// Engine coordinates sessions, chunk storage, and finalization.
type Engine struct {
	sessions SessionStore
	chunks   ChunkStore
	objects  ObjectStore
	docs     DocumentRegistrar
	log      *slog.Logger

	maxFileSize int64
	sessionTTL  time.Duration
	now         func() time.Time
}

// NewEngine wires the collaborators together.
func NewEngine(sessions SessionStore, chunks ChunkStore, objects ObjectStore, docs DocumentRegistrar, opts Options) *Engine {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		sessions:    sessions,
		chunks:      chunks,
		objects:     objects,
		docs:        docs,
		log:         applog.WithComponent("upload"),
		maxFileSize: opts.MaxFileSize,
		sessionTTL:  opts.SessionTTL,
		now:         opts.Now,
	}
}

// Handshake validates the declared shape, short-circuits duplicates by
// file hash, resumes a matching pending session, or creates a new one.
func (e *Engine) Handshake(ctx context.Context, req HandshakeRequest) (*HandshakeResponse, error) {
	if req.FileSize <= 0 {
		return nil, domain.NewError(domain.KindOversizeFile, "fileSize must be positive")
	}
	if req.FileSize > e.maxFileSize {
		return nil, domain.NewError(domain.KindOversizeFile, fmt.Sprintf("fileSize %d exceeds limit %d", req.FileSize, e.maxFileSize))
	}
	if req.ChunkSize <= 0 {
		return nil, domain.NewError(domain.KindOversizeFile, "chunkSize must be positive")
	}
	wantChunks := int((req.FileSize + req.ChunkSize - 1) / req.ChunkSize)
	if len(req.ChunkHashes) != wantChunks {
		return nil, domain.NewError(domain.KindOversizeFile,
			fmt.Sprintf("declared %d chunk hashes, need %d", len(req.ChunkHashes), wantChunks))
	}

	if docID, ok, err := e.docs.FindByHash(ctx, req.FileHash); err != nil {
		return nil, err
	} else if ok {
		e.log.Info("duplicate upload short-circuited",
			slog.String("file_hash", req.FileHash), slog.String("document_id", docID))
		return &HandshakeResponse{Duplicate: true, ExistingDocumentID: docID}, nil
	}

	if s, err := e.sessions.FindResumableByHash(ctx, req.FileHash); err != nil {
		return nil, err
	} else if s != nil && e.now().Before(s.ExpiresAt) {
		return &HandshakeResponse{Session: s}, nil
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}
	s := &domain.UploadSession{
		ID:             id.String(),
		FileName:       req.FileName,
		FileSize:       req.FileSize,
		FileHash:       req.FileHash,
		MimeType:       req.MimeType,
		ChunkHashes:    req.ChunkHashes,
		ChunkSize:      req.ChunkSize,
		ReceivedChunks: make(map[int]bool),
		Status:         domain.UploadPending,
		ExpiresAt:      e.now().Add(e.sessionTTL),
		UserID:         req.UserID,
	}
	if err := e.sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	e.log.Info("upload session created",
		slog.String("session_id", s.ID), slog.String("file_name", s.FileName),
		slog.Int("chunks", s.TotalChunks()))
	return &HandshakeResponse{Session: s}, nil
}

// UploadChunk validates and stores one chunk. Repeating an already
// received index is a no-op success.
func (e *Engine) UploadChunk(ctx context.Context, sessionID string, index int, body []byte) (*ChunkResponse, error) {
	s, err := e.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= s.TotalChunks() {
		return nil, domain.NewError(domain.KindChunkHashMismatch, fmt.Sprintf("chunk index %d out of range", index))
	}
	if s.ReceivedChunks[index] {
		return &ChunkResponse{Received: true, ReceivedCount: s.ReceivedCount(), TotalChunks: s.TotalChunks()}, nil
	}
	if got := hashBytes(body); got != s.ChunkHashes[index] {
		return nil, domain.ChunkHashMismatch(index)
	}
	if err := e.chunks.Put(s.ChunkHashes[index], body); err != nil {
		return nil, domain.Wrap(domain.KindIoError, err, "store chunk")
	}
	s.ReceivedChunks[index] = true
	if s.Status == domain.UploadPending {
		s.Status = domain.UploadActive
	}
	if err := e.sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	return &ChunkResponse{Received: true, ReceivedCount: s.ReceivedCount(), TotalChunks: s.TotalChunks()}, nil
}

// Finalize verifies the reassembled file hash, streams the chunks into the
// object store, registers the document, and completes the session. A hash
// mismatch fails before anything is stored or created.
func (e *Engine) Finalize(ctx context.Context, sessionID string) (*FinalizeResponse, error) {
	s, err := e.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsComplete() {
		return nil, domain.NewError(domain.KindIncompleteSession,
			fmt.Sprintf("received %d of %d chunks", s.ReceivedCount(), s.TotalChunks()))
	}

	hasher := sha256.New()
	for i, h := range s.ChunkHashes {
		data, err := e.chunks.Get(h)
		if err != nil {
			return nil, domain.Wrap(domain.KindIoError, err, fmt.Sprintf("read chunk %d", i))
		}
		hasher.Write(data)
	}
	if got := hex.EncodeToString(hasher.Sum(nil)); got != s.FileHash {
		return nil, domain.NewError(domain.KindFileHashMismatch,
			fmt.Sprintf("reassembled hash %s != declared %s", got, s.FileHash))
	}

	storageKey := deriveStorageKey(s.FileHash, s.FileName)
	if err := e.objects.Put(ctx, storageKey, e.chunkReader(s), s.FileSize); err != nil {
		return nil, domain.Wrap(domain.KindIoError, err, "store object")
	}

	docID, err := e.docs.Create(ctx, DocumentRecord{
		FileName:   s.FileName,
		MimeType:   s.MimeType,
		FileHash:   s.FileHash,
		StorageKey: storageKey,
		Size:       s.FileSize,
		UserID:     s.UserID,
	})
	if err != nil {
		return nil, err
	}

	s.Status = domain.UploadComplete
	if err := e.sessions.Put(ctx, s); err != nil {
		return nil, err
	}
	e.releaseChunks(ctx, s)
	e.log.Info("upload finalized",
		slog.String("session_id", s.ID), slog.String("document_id", docID),
		slog.String("storage_key", storageKey))
	return &FinalizeResponse{DocumentID: docID, StorageKey: storageKey}, nil
}

// Cancel fails the session and releases its chunks. Cancelling a terminal
// session is rejected by the state machine.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	s, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return domain.NewError(domain.KindUnknownSession, sessionID)
	}
	if !s.Status.CanTransitionTo(domain.UploadFailed) {
		return domain.NewError(domain.KindUnknownSession, fmt.Sprintf("session %s is %s", s.ID, s.Status))
	}
	s.Status = domain.UploadFailed
	if err := e.sessions.Put(ctx, s); err != nil {
		return err
	}
	e.releaseChunks(ctx, s)
	return nil
}

// SweepExpired transitions overdue pending/active sessions to Expired and
// releases their chunks. Callers schedule it; returns how many sessions
// expired.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	overdue, err := e.sessions.ListOverdue(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, s := range overdue {
		if !s.Status.CanTransitionTo(domain.UploadExpired) {
			continue
		}
		s.Status = domain.UploadExpired
		if err := e.sessions.Put(ctx, s); err != nil {
			return expired, err
		}
		e.releaseChunks(ctx, s)
		expired++
	}
	if expired > 0 {
		e.log.Info("expired upload sessions swept", slog.Int("count", expired))
	}
	return expired, nil
}

// liveSession loads a session and maps missing/overdue states onto the
// upload error kinds.
func (e *Engine) liveSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	s, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.NewError(domain.KindUnknownSession, id)
	}
	switch s.Status {
	case domain.UploadExpired:
		return nil, domain.NewError(domain.KindExpiredSession, id)
	case domain.UploadPending, domain.UploadActive:
		if e.now().After(s.ExpiresAt) {
			return nil, domain.NewError(domain.KindExpiredSession, id)
		}
		return s, nil
	default:
		return nil, domain.NewError(domain.KindUnknownSession, fmt.Sprintf("session %s is %s", id, s.Status))
	}
}

// releaseChunks deletes the session's chunks unless another live session
// still references the same content. Best-effort: a chunk whose reference
// check fails is kept, and no later sweep removes it.
func (e *Engine) releaseChunks(ctx context.Context, s *domain.UploadSession) {
	for _, h := range s.ChunkHashes {
		shared, err := e.sessions.ChunkReferencedElsewhere(ctx, h, s.ID)
		if err != nil || shared {
			continue
		}
		_ = e.chunks.Delete(h)
	}
}

// chunkReader streams the session's chunks in order.
func (e *Engine) chunkReader(s *domain.UploadSession) io.Reader {
	readers := make([]io.Reader, 0, len(s.ChunkHashes))
	for _, h := range s.ChunkHashes {
		data, err := e.chunks.Get(h)
		if err != nil {
			// Get succeeded moments ago during verification; an empty
			// reader keeps MultiReader shape and the size check upstream
			// will catch real loss.
			data = nil
		}
		readers = append(readers, bytes.NewReader(data))
	}
	return io.MultiReader(readers...)
}

// deriveStorageKey addresses the object by content hash, keeping the
// original extension for content-type inference downstream.
func deriveStorageKey(fileHash, fileName string) string {
	return "documents/" + fileHash + path.Ext(fileName)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
