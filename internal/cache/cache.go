/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cache is the process-wide bounded document cache: parsed
// metadata, backend handles, rendered pages, and structured text, with LRU
// eviction on every bounded tier, per-operation wall-clock timeouts, and a
// semaphore limiting concurrent renders.
package cache

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/semaphore"

	"github.com/aledro/docreaderd/internal/domain"
	applog "github.com/aledro/docreaderd/internal/log"
)

// Parser is the text-side capability set a backend provides.
type Parser interface {
	Parse() (*domain.ParsedDocument, error)
	ExtractText(itemIndex int) (string, error)
	StructuredText(itemIndex int) (*domain.StructuredText, error)
	Search(query string, opts domain.SearchOptions) ([]domain.SearchMatch, error)
}

// Renderer is the raster-side capability set a backend provides.
type Renderer interface {
	RenderItem(req domain.RenderRequest) ([]byte, error)
	RenderThumbnail(itemIndex, maxSize int) ([]byte, error)
}

// RenderKey identifies one rendered page variant. Thumbnails reuse the key
// with Scale100 = maxSize, Rotation = 0, Format = JPEG.
type RenderKey struct {
	DocumentID string
	ItemIndex  int
	Scale100   int
	Rotation   int
	Format     domain.RenderFormat
}

// KeyForRender quantizes a render request into its cache key.
func KeyForRender(id string, req domain.RenderRequest) RenderKey {
	return RenderKey{
		DocumentID: id,
		ItemIndex:  req.ItemIndex,
		Scale100:   int(req.Scale * 100),
		Rotation:   req.Rotation,
		Format:     req.Format,
	}
}

// KeyForThumbnail builds the thumbnail variant of a render key.
func KeyForThumbnail(id string, itemIndex, maxSize int) RenderKey {
	return RenderKey{DocumentID: id, ItemIndex: itemIndex, Scale100: maxSize, Format: domain.RenderJPEG}
}

type stextKey struct {
	DocumentID string
	ItemIndex  int
}

// Timeouts are the per-operation wall-clock budgets.
type Timeouts struct {
	Parse          time.Duration
	ExtractText    time.Duration
	StructuredText time.Duration
	Search         time.Duration
	Render         time.Duration
}

// DefaultTimeouts matches the component design budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Parse:          30 * time.Second,
		ExtractText:    15 * time.Second,
		StructuredText: 15 * time.Second,
		Search:         30 * time.Second,
		Render:         30 * time.Second,
	}
}

// Options configures capacities, concurrency, and the optional reopen hook.
type Options struct {
	ParserCapacity    int
	RendererCapacity  int
	RenderCapacity    int
	StextCapacity     int
	RenderConcurrency int
	Timeouts          Timeouts

	// Reopen, when set, is called to rebuild backend handles for a
	// document whose handle tier entry was evicted. Without it an evicted
	// handle is an error the caller must resolve by re-storing.
	Reopen func(id string) (Parser, Renderer, error)
}

// DefaultOptions returns the documented default capacities.
func DefaultOptions() Options {
	return Options{
		ParserCapacity:    50,
		RendererCapacity:  50,
		RenderCapacity:    500,
		StextCapacity:     1000,
		RenderConcurrency: 4,
		Timeouts:          DefaultTimeouts(),
	}
}

// TierStats is the (used, capacity) pair for one tier.
type TierStats struct {
	Used     int `json:"used"`
	Capacity int `json:"capacity"`
}

// Stats reports per-tier usage. Documents is unbounded, so its capacity is
// reported as -1.
type Stats struct {
	Documents TierStats `json:"documents"`
	Parsers   TierStats `json:"parsers"`
	Renderers TierStats `json:"renderers"`
	Renders   TierStats `json:"renders"`
	Stexts    TierStats `json:"stexts"`
}

// Cache is the five-tier document cache. Safe for concurrent use.
type Cache struct {
	opts Options
	log  *slog.Logger

	documents *docTier
	parsers   *lru.Cache
	renderers *lru.Cache
	renders   *lru.Cache
	stexts    *lru.Cache

	renderSem *semaphore.Weighted
}

// New builds a cache with the given options; zero capacities fall back to
// the defaults.
func New(opts Options) (*Cache, error) {
	def := DefaultOptions()
	if opts.ParserCapacity <= 0 {
		opts.ParserCapacity = def.ParserCapacity
	}
	if opts.RendererCapacity <= 0 {
		opts.RendererCapacity = def.RendererCapacity
	}
	if opts.RenderCapacity <= 0 {
		opts.RenderCapacity = def.RenderCapacity
	}
	if opts.StextCapacity <= 0 {
		opts.StextCapacity = def.StextCapacity
	}
	if opts.RenderConcurrency <= 0 {
		opts.RenderConcurrency = def.RenderConcurrency
	}
	if opts.Timeouts == (Timeouts{}) {
		opts.Timeouts = def.Timeouts
	}

	c := &Cache{
		opts:      opts,
		log:       applog.WithComponent("cache"),
		documents: newDocTier(),
		renderSem: semaphore.NewWeighted(int64(opts.RenderConcurrency)),
	}
	var err error
	if c.parsers, err = lru.New(opts.ParserCapacity); err != nil {
		return nil, err
	}
	if c.renderers, err = lru.New(opts.RendererCapacity); err != nil {
		return nil, err
	}
	if c.renders, err = lru.New(opts.RenderCapacity); err != nil {
		return nil, err
	}
	if c.stexts, err = lru.New(opts.StextCapacity); err != nil {
		return nil, err
	}
	return c, nil
}

// StoreDocument inserts the parsed metadata and backend handles for a
// document. renderer may be nil when the backend cannot render.
func (c *Cache) StoreDocument(id string, parsed *domain.ParsedDocument, parser Parser, renderer Renderer) {
	c.documents.put(id, parsed)
	c.parsers.Add(id, parser)
	if renderer != nil {
		c.renderers.Add(id, renderer)
	}
	c.log.Debug("document stored", slog.String("document_id", id), slog.Int("item_count", parsed.ItemCount))
}

// Document returns the cached parse result.
func (c *Cache) Document(id string) (*domain.ParsedDocument, bool) {
	return c.documents.get(id)
}

// ExtractText returns the plain text of one item under the extract-text
// timeout. Results are not cached.
func (c *Cache) ExtractText(ctx context.Context, id string, itemIndex int) (string, error) {
	p, err := c.parser(id)
	if err != nil {
		return "", err
	}
	return runWithTimeout(ctx, c.opts.Timeouts.ExtractText, func() (string, error) {
		return p.ExtractText(itemIndex)
	})
}

// StructuredText returns per-character geometry for one item, cached.
func (c *Cache) StructuredText(ctx context.Context, id string, itemIndex int) (*domain.StructuredText, error) {
	key := stextKey{DocumentID: id, ItemIndex: itemIndex}
	if v, ok := c.stexts.Get(key); ok {
		return v.(*domain.StructuredText), nil
	}
	p, err := c.parser(id)
	if err != nil {
		return nil, err
	}
	st, err := runWithTimeout(ctx, c.opts.Timeouts.StructuredText, func() (*domain.StructuredText, error) {
		return p.StructuredText(itemIndex)
	})
	if err != nil {
		return nil, err
	}
	c.stexts.Add(key, st)
	return st, nil
}

// Search runs a backend search under the search timeout. Results are not
// cached; queries rarely repeat verbatim.
func (c *Cache) Search(ctx context.Context, id, query string, opts domain.SearchOptions) ([]domain.SearchMatch, error) {
	p, err := c.parser(id)
	if err != nil {
		return nil, err
	}
	return runWithTimeout(ctx, c.opts.Timeouts.Search, func() ([]domain.SearchMatch, error) {
		return p.Search(query, opts)
	})
}

// Render returns the encoded raster for a render request, going to the
// backend only on cache miss and only while holding a render permit.
func (c *Cache) Render(ctx context.Context, id string, req domain.RenderRequest) ([]byte, error) {
	key := KeyForRender(id, req)
	if v, ok := c.renders.Get(key); ok {
		return v.([]byte), nil
	}
	r, err := c.renderer(id)
	if err != nil {
		return nil, err
	}
	data, err := c.renderGated(ctx, func() ([]byte, error) { return r.RenderItem(req) })
	if err != nil {
		return nil, err
	}
	c.renders.Add(key, data)
	return data, nil
}

// RenderThumbnail is Render for the thumbnail variant.
func (c *Cache) RenderThumbnail(ctx context.Context, id string, itemIndex, maxSize int) ([]byte, error) {
	key := KeyForThumbnail(id, itemIndex, maxSize)
	if v, ok := c.renders.Get(key); ok {
		return v.([]byte), nil
	}
	r, err := c.renderer(id)
	if err != nil {
		return nil, err
	}
	data, err := c.renderGated(ctx, func() ([]byte, error) { return r.RenderThumbnail(itemIndex, maxSize) })
	if err != nil {
		return nil, err
	}
	c.renders.Add(key, data)
	return data, nil
}

// renderGated acquires a render permit, then runs op under the render
// timeout. The permit wait counts against the same deadline.
func (c *Cache) renderGated(ctx context.Context, op func() ([]byte, error)) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeouts.Render)
	defer cancel()
	if err := c.renderSem.Acquire(ctx, 1); err != nil {
		return nil, domain.Timeout(int(c.opts.Timeouts.Render.Seconds()))
	}
	defer c.renderSem.Release(1)
	return runWithTimeout(ctx, c.opts.Timeouts.Render, op)
}

// Remove purges every tier of entries that mention the document.
func (c *Cache) Remove(id string) {
	c.documents.remove(id)
	c.parsers.Remove(id)
	c.renderers.Remove(id)
	for _, k := range c.renders.Keys() {
		if rk, ok := k.(RenderKey); ok && rk.DocumentID == id {
			c.renders.Remove(k)
		}
	}
	for _, k := range c.stexts.Keys() {
		if sk, ok := k.(stextKey); ok && sk.DocumentID == id {
			c.stexts.Remove(k)
		}
	}
	c.log.Debug("document removed", slog.String("document_id", id))
}

// Stats reports (used, capacity) per tier.
func (c *Cache) Stats() Stats {
	return Stats{
		Documents: TierStats{Used: c.documents.len(), Capacity: -1},
		Parsers:   TierStats{Used: c.parsers.Len(), Capacity: c.opts.ParserCapacity},
		Renderers: TierStats{Used: c.renderers.Len(), Capacity: c.opts.RendererCapacity},
		Renders:   TierStats{Used: c.renders.Len(), Capacity: c.opts.RenderCapacity},
		Stexts:    TierStats{Used: c.stexts.Len(), Capacity: c.opts.StextCapacity},
	}
}

// parser resolves the parser handle, reopening on eviction when a Reopen
// hook is configured.
func (c *Cache) parser(id string) (Parser, error) {
	if v, ok := c.parsers.Get(id); ok {
		return v.(Parser), nil
	}
	if c.opts.Reopen != nil {
		p, r, err := c.opts.Reopen(id)
		if err != nil {
			return nil, err
		}
		c.parsers.Add(id, p)
		if r != nil {
			c.renderers.Add(id, r)
		}
		return p, nil
	}
	return nil, domain.NewError(domain.KindParseError, "document is not open: "+id)
}

func (c *Cache) renderer(id string) (Renderer, error) {
	if v, ok := c.renderers.Get(id); ok {
		return v.(Renderer), nil
	}
	if c.opts.Reopen != nil {
		p, r, err := c.opts.Reopen(id)
		if err != nil {
			return nil, err
		}
		c.parsers.Add(id, p)
		if r == nil {
			return nil, domain.NewError(domain.KindRenderError, "document has no renderer: "+id)
		}
		c.renderers.Add(id, r)
		return r, nil
	}
	return nil, domain.NewError(domain.KindRenderError, "document is not open: "+id)
}

// runWithTimeout executes op on its own goroutine and converts a fired
// deadline into the Timeout error kind. op keeps running to completion on
// timeout; its result is dropped. Cancellation mid-operation is safe
// because no cross-call native state exists.
func runWithTimeout[T any](ctx context.Context, d time.Duration, op func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		v, err := op()
		ch <- result{v: v, err: err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, domain.Timeout(int(d.Seconds()))
	case res := <-ch:
		return res.v, res.err
	}
}
