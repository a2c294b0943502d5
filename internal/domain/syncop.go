/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"time"
)

// OperationType is the kind of change a SyncOperation records.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// EntityType names which kind of row a SyncOperation targets.
type EntityType string

const (
	EntityAnnotation EntityType = "annotation"
	EntityProgress   EntityType = "progress"
	EntityBookmark   EntityType = "bookmark"
)

// SyncOperation is one entry in a document's operation log.
type SyncOperation struct {
	ID           string          `json:"id"`
	Type         OperationType   `json:"type"`
	EntityType   EntityType      `json:"entityType"`
	EntityID     string          `json:"entityId"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	BaseVersion  uint64          `json:"baseVersion"`
	DeviceID     string          `json:"deviceId"`
	Timestamp    time.Time       `json:"timestamp"`
}

// ConflictResolution names the strategy applied to a detected conflict.
type ConflictResolution string

const (
	ResolveUseServer    ConflictResolution = "useServer"
	ResolveUseLocal     ConflictResolution = "useLocal"
	ResolveUseMostRecent ConflictResolution = "useMostRecent"
	ResolveMerge        ConflictResolution = "merge"
	ResolveManual       ConflictResolution = "manual"
)

// Conflict describes one detected collision between a local operation and a
// conflicting server operation on the same entity.
type Conflict struct {
	EntityType    EntityType         `json:"entityType"`
	EntityID      string             `json:"entityId"`
	LocalVersion  uint64             `json:"localVersion"`
	ServerVersion uint64             `json:"serverVersion"`
	LocalData     json.RawMessage    `json:"localData"`
	ServerData    json.RawMessage    `json:"serverData"`
	Resolution    ConflictResolution `json:"resolution"`
}

// ConflictWinner records which side's data a resolved conflict kept.
type ConflictWinner string

const (
	WinnerLocal      ConflictWinner = "local"
	WinnerServer     ConflictWinner = "server"
	WinnerMerged     ConflictWinner = "merged"
	WinnerUnresolved ConflictWinner = "unresolved"
)

// ResolvedConflict is the outcome of applying a Conflict's Resolution.
type ResolvedConflict struct {
	Winner  ConflictWinner  `json:"winner"`
	Data    json.RawMessage `json:"data"`
	Version uint64          `json:"version"`
}

// PushRequest is the payload of SyncEngine.Push.
type PushRequest struct {
	DeviceID         string          `json:"deviceId"`
	BookID           string          `json:"bookId"`
	Operations       []SyncOperation `json:"operations"`
	LastKnownVersion uint64          `json:"lastKnownVersion"`
}

// PushResponse is the result of SyncEngine.Push.
type PushResponse struct {
	Success       bool       `json:"success"`
	Version       uint64     `json:"version"`
	Conflicts     []Conflict `json:"conflicts"`
	AcceptedCount int        `json:"acceptedCount"`
}

// PullRequest is the payload of SyncEngine.Pull.
type PullRequest struct {
	DeviceID     string `json:"deviceId"`
	BookID       string `json:"bookId"`
	SinceVersion uint64 `json:"sinceVersion"`
}

// PullResponse is the result of SyncEngine.Pull.
type PullResponse struct {
	Operations     []SyncOperation `json:"operations"`
	ServerVersion  uint64          `json:"serverVersion"`
	HasMore        bool            `json:"hasMore"`
}
