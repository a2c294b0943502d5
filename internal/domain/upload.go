/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "time"

// UploadStatus is the state-machine status of an UploadSession. Transitions
// out of Complete are never allowed.
type UploadStatus string

const (
	UploadPending  UploadStatus = "pending"
	UploadActive   UploadStatus = "active"
	UploadComplete UploadStatus = "complete"
	UploadFailed   UploadStatus = "failed"
	UploadExpired  UploadStatus = "expired"
)

// UploadSession tracks one resumable, chunked upload.
type UploadSession struct {
	ID              string          `json:"id"`
	FileName        string          `json:"fileName"`
	FileSize        int64           `json:"fileSize"`
	FileHash        string          `json:"fileHash"`
	MimeType        string          `json:"mimeType"`
	ChunkHashes     []string        `json:"chunkHashes"`
	ChunkSize       int64           `json:"chunkSize"`
	ReceivedChunks  map[int]bool    `json:"receivedChunks"`
	Status          UploadStatus    `json:"status"`
	ExpiresAt       time.Time       `json:"expiresAt"`
	UserID          string          `json:"userId,omitempty"`
}

// ReceivedCount returns how many distinct chunk indices have been received.
func (s *UploadSession) ReceivedCount() int { return len(s.ReceivedChunks) }

// TotalChunks returns the declared chunk count.
func (s *UploadSession) TotalChunks() int { return len(s.ChunkHashes) }

// IsComplete reports whether every declared chunk index has been received.
func (s *UploadSession) IsComplete() bool {
	return len(s.ReceivedChunks) == len(s.ChunkHashes)
}

// CanTransitionTo enforces the session state machine centrally: Pending and
// Active may move to any terminal state or to each other; Complete, Failed,
// and Expired are terminal. In particular no server-initiated transition may
// leave Complete.
func (s UploadStatus) CanTransitionTo(next UploadStatus) bool {
	switch s {
	case UploadPending, UploadActive:
		return true
	default:
		return false
	}
}
