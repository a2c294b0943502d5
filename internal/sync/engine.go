/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package sync converges multiple devices on a shared view of annotations
// and reading progress per document: a monotonic per-document version, an
// operation log, conflict detection between concurrent edits, and a set of
// resolution strategies applied as values, not subclasses.
package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aledro/docreaderd/internal/domain"
	applog "github.com/aledro/docreaderd/internal/log"
)

// DefaultPullPageSize caps one pull response.
const DefaultPullPageSize = 100

// Engine runs the push/pull protocol against a Store.
type Engine struct {
	store           Store
	log             *slog.Logger
	pullPageSize    int
	defaultResolve  domain.ConflictResolution
	retentionPeriod time.Duration
}

// Options tunes an Engine.
type Options struct {
	PullPageSize    int
	DefaultResolve  domain.ConflictResolution
	RetentionPeriod time.Duration
}

// NewEngine builds an engine over the given store.
func NewEngine(store Store, opts Options) *Engine {
	if opts.PullPageSize <= 0 {
		opts.PullPageSize = DefaultPullPageSize
	}
	if opts.DefaultResolve == "" {
		opts.DefaultResolve = domain.ResolveUseMostRecent
	}
	if opts.RetentionPeriod <= 0 {
		opts.RetentionPeriod = 30 * 24 * time.Hour
	}
	return &Engine{
		store:           store,
		log:             applog.WithComponent("sync"),
		pullPageSize:    opts.PullPageSize,
		defaultResolve:  opts.DefaultResolve,
		retentionPeriod: opts.RetentionPeriod,
	}
}

// Push applies a device's operations. Conflicting operations are reported
// with a suggested resolution and not applied; every accepted operation is
// assigned the next version and appended to the log.
func (e *Engine) Push(ctx context.Context, req domain.PushRequest) (*domain.PushResponse, error) {
	serverOps, _, err := e.store.OperationsSince(ctx, req.BookID, req.LastKnownVersion, 0)
	if err != nil {
		return nil, err
	}

	resp := &domain.PushResponse{Success: true}
	for _, op := range req.Operations {
		conflictsWith := findConflict(op, serverOps)
		if conflictsWith != nil {
			resp.Conflicts = append(resp.Conflicts, domain.Conflict{
				EntityType:    op.EntityType,
				EntityID:      op.EntityID,
				LocalVersion:  op.BaseVersion,
				ServerVersion: conflictsWith.BaseVersion,
				LocalData:     op.Payload,
				ServerData:    conflictsWith.Payload,
				Resolution:    e.suggestResolution(op, *conflictsWith),
			})
			continue
		}
		version, err := e.store.AppendOperation(ctx, req.BookID, op)
		if err != nil {
			return nil, err
		}
		resp.AcceptedCount++
		resp.Version = version
	}
	if resp.Version == 0 {
		if resp.Version, err = e.store.CurrentVersion(ctx, req.BookID); err != nil {
			return nil, err
		}
	}
	e.log.Debug("push applied",
		slog.String("book_id", req.BookID), slog.String("device_id", req.DeviceID),
		slog.Int("accepted", resp.AcceptedCount), slog.Int("conflicts", len(resp.Conflicts)))
	return resp, nil
}

// Pull returns operations after sinceVersion in ascending version order,
// capped at the page size, with the current server version and a hasMore
// flag.
func (e *Engine) Pull(ctx context.Context, req domain.PullRequest) (*domain.PullResponse, error) {
	ops, hasMore, err := e.store.OperationsSince(ctx, req.BookID, req.SinceVersion, e.pullPageSize)
	if err != nil {
		return nil, err
	}
	version, err := e.store.CurrentVersion(ctx, req.BookID)
	if err != nil {
		return nil, err
	}
	return &domain.PullResponse{Operations: ops, ServerVersion: version, HasMore: hasMore}, nil
}

// findConflict returns the first server operation that collides with op.
// No conflict when the entity id differs, the entity type differs, the
// same device produced both, or both payloads are JSON objects touching
// disjoint field sets.
func findConflict(op domain.SyncOperation, serverOps []domain.SyncOperation) *domain.SyncOperation {
	for i := range serverOps {
		so := &serverOps[i]
		if so.EntityID != op.EntityID || so.EntityType != op.EntityType {
			continue
		}
		if so.DeviceID == op.DeviceID {
			continue
		}
		if disjointFields(op.Payload, so.Payload) {
			continue
		}
		return so
	}
	return nil
}

// disjointFields reports whether both payloads are JSON objects whose sets
// of modified field names do not intersect.
func disjointFields(a, b json.RawMessage) bool {
	var ma, mb map[string]json.RawMessage
	if json.Unmarshal(a, &ma) != nil || json.Unmarshal(b, &mb) != nil {
		return false
	}
	if ma == nil || mb == nil {
		return false
	}
	for k := range ma {
		if _, ok := mb[k]; ok {
			return false
		}
	}
	return true
}

// suggestResolution picks the rule-based strategy for a conflict pair.
func (e *Engine) suggestResolution(local, server domain.SyncOperation) domain.ConflictResolution {
	switch {
	case local.Type == domain.OpDelete:
		return domain.ResolveUseLocal
	case server.Type == domain.OpDelete:
		return domain.ResolveUseServer
	case local.Type == domain.OpUpdate && server.Type == domain.OpUpdate:
		return domain.ResolveUseMostRecent
	case local.Type == domain.OpCreate && server.Type == domain.OpCreate:
		return domain.ResolveUseServer
	default:
		return e.defaultResolve
	}
}

// Resolve applies a resolution strategy to a conflict and returns the
// winning side's data and version.
func Resolve(c domain.Conflict, strategy domain.ConflictResolution) domain.ResolvedConflict {
	switch strategy {
	case domain.ResolveUseServer:
		return domain.ResolvedConflict{Winner: domain.WinnerServer, Data: c.ServerData, Version: c.ServerVersion}
	case domain.ResolveUseLocal:
		return domain.ResolvedConflict{Winner: domain.WinnerLocal, Data: c.LocalData, Version: c.LocalVersion}
	case domain.ResolveUseMostRecent:
		return resolveMostRecent(c)
	case domain.ResolveMerge:
		return resolveMerge(c)
	default: // Manual
		return domain.ResolvedConflict{Winner: domain.WinnerUnresolved, Data: nil, Version: 0}
	}
}

// resolveMostRecent compares the conventional timestamp fields; the local
// side wins only when strictly more recent, ties go to the server.
func resolveMostRecent(c domain.Conflict) domain.ResolvedConflict {
	localT := payloadTimestamp(c.LocalData)
	serverT := payloadTimestamp(c.ServerData)
	if localT.After(serverT) {
		return domain.ResolvedConflict{Winner: domain.WinnerLocal, Data: c.LocalData, Version: maxVersion(c)}
	}
	return domain.ResolvedConflict{Winner: domain.WinnerServer, Data: c.ServerData, Version: maxVersion(c)}
}

// payloadTimestamp reads the conventional updatedAt/updated_at/timestamp
// field of a JSON payload; zero time when none parses.
func payloadTimestamp(data json.RawMessage) time.Time {
	var m map[string]json.RawMessage
	if json.Unmarshal(data, &m) != nil {
		return time.Time{}
	}
	for _, key := range []string{"updatedAt", "updated_at", "timestamp"} {
		raw, ok := m[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) != nil {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// resolveMerge deep-merges two JSON objects with local keys overwriting
// server keys. Non-object payloads fall back to prefer-local.
func resolveMerge(c domain.Conflict) domain.ResolvedConflict {
	merged := deepMerge(c.ServerData, c.LocalData)
	if merged == nil {
		return domain.ResolvedConflict{Winner: domain.WinnerLocal, Data: c.LocalData, Version: maxVersion(c)}
	}
	return domain.ResolvedConflict{Winner: domain.WinnerMerged, Data: merged, Version: maxVersion(c)}
}

// deepMerge overlays b onto a, recursing into objects present in both.
// Returns nil when either side is not a JSON object.
func deepMerge(a, b json.RawMessage) json.RawMessage {
	var ma, mb map[string]json.RawMessage
	if json.Unmarshal(a, &ma) != nil || json.Unmarshal(b, &mb) != nil || ma == nil || mb == nil {
		return nil
	}
	for k, vb := range mb {
		if va, ok := ma[k]; ok {
			if sub := deepMerge(va, vb); sub != nil {
				ma[k] = sub
				continue
			}
		}
		ma[k] = vb
	}
	out, err := json.Marshal(ma)
	if err != nil {
		return nil
	}
	return out
}

func maxVersion(c domain.Conflict) uint64 {
	if c.LocalVersion > c.ServerVersion {
		return c.LocalVersion
	}
	return c.ServerVersion
}

// GC deletes applied operations older than the retention horizon. Callers
// schedule it; no goroutine is started implicitly.
func (e *Engine) GC(ctx context.Context, now time.Time) (int64, error) {
	horizon := now.Add(-e.retentionPeriod)
	n, err := e.store.DeleteAppliedBefore(ctx, horizon)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info("sync log compacted", slog.Int64("deleted", n), slog.Time("horizon", horizon))
	}
	return n, nil
}
