/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package epubbackend implements the parser/renderer capability set for
// EPUB. The package container (OPF, spine, TOC, resources) is read straight
// from the ZIP; rasterization goes through the shared document handle. Page
// count and text geometry come from the backend's own layout, re-derived
// from the stored LayoutConfig because the native document is reopened per
// operation and holds no layout state across calls.
package epubbackend

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	xdraw "golang.org/x/image/draw"

	// register decoders for cover extraction
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/aledro/docreaderd/internal/dochandle"
	"github.com/aledro/docreaderd/internal/domain"
	"github.com/aledro/docreaderd/internal/opf"
	"github.com/aledro/docreaderd/internal/render"
	"github.com/aledro/docreaderd/internal/stext"
)

// Backend serves EPUB operations for one document handle.
type Backend struct {
	h   *dochandle.Handle
	pkg *opf.Package

	entries []string
	files   map[string]*zip.File

	mu         sync.Mutex
	layout     LayoutConfig
	pages      []layoutPage // nil until first pagination
	spineTexts []string
}

// New reads the container, parses the package, and prepares the backend
// with the default layout. Pagination itself is deferred to first use.
func New(h *dochandle.Handle) (*Backend, error) {
	if h.Format() != domain.FormatEPUB {
		return nil, domain.NewError(domain.KindUnsupportedFormat, "handle does not hold an EPUB")
	}
	raw, err := h.Bytes()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, domain.Wrap(domain.KindParseError, err, "open EPUB container")
	}
	b := &Backend{
		h:      h,
		files:  make(map[string]*zip.File, len(zr.File)),
		layout: DefaultLayout,
	}
	for _, f := range zr.File {
		b.entries = append(b.entries, f.Name)
		b.files[f.Name] = f
	}

	containerXML, err := b.readEntry("META-INF/container.xml")
	if err != nil {
		return nil, domain.Wrap(domain.KindParseError, err, "read container.xml")
	}
	opfPath, err := opf.ParseContainer(containerXML)
	if err != nil {
		return nil, err
	}
	opfData, err := b.readEntry(opfPath)
	if err != nil {
		return nil, domain.Wrap(domain.KindParseError, err, fmt.Sprintf("read package %s", opfPath))
	}
	b.pkg, err = opf.ParsePackage(opfData, opfPath)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Handle exposes the underlying document handle.
func (b *Backend) Handle() *dochandle.Handle { return b.h }

// Package exposes the parsed OPF package.
func (b *Backend) Package() *opf.Package { return b.pkg }

// Parse produces the cacheable ParsedDocument: package metadata, TOC, and
// the laid-out page count under the current layout.
func (b *Backend) Parse() (*domain.ParsedDocument, error) {
	count, err := b.ItemCount()
	if err != nil {
		return nil, err
	}
	return &domain.ParsedDocument{
		ID:           b.h.ID(),
		Format:       domain.FormatEPUB,
		Metadata:     b.pkg.Metadata,
		Toc:          b.Toc(),
		ItemCount:    count,
		HasTextLayer: true, // reflowable documents are text by construction
	}, nil
}

// Toc prefers the NAV document, then the NCX, then the library outline with
// synthetic position:N hrefs. Entries whose href names a spine item get an
// itemIndex under the current layout where one is known.
func (b *Backend) Toc() []domain.TocEntry {
	if b.pkg.NavHref != "" {
		if data, err := b.readEntry(b.pkg.NavHref); err == nil {
			if entries, err := opf.ParseNav(data, dirOf(b.pkg.NavHref)); err == nil && len(entries) > 0 {
				return b.annotateToc(entries)
			}
		}
	}
	if b.pkg.NcxHref != "" {
		if data, err := b.readEntry(b.pkg.NcxHref); err == nil {
			if entries, err := opf.ParseNCX(data, dirOf(b.pkg.NcxHref)); err == nil && len(entries) > 0 {
				return b.annotateToc(entries)
			}
		}
	}
	return b.outlineToc()
}

// outlineToc falls back to the rendering library's outline. Entries without
// a page get a synthetic position:N href and no itemIndex, so clients must
// route by href.
func (b *Backend) outlineToc() []domain.TocEntry {
	var toc []domain.TocEntry
	_ = b.h.WithDoc(func(doc *fitz.Document) error {
		outline, err := doc.ToC()
		if err != nil {
			return nil
		}
		for i, o := range outline {
			e := domain.TocEntry{Label: strings.TrimSpace(o.Title)}
			if o.Page >= 0 {
				e.Href = fmt.Sprintf("page:%d", o.Page+1)
			} else {
				e.Href = fmt.Sprintf("position:%d", i)
			}
			toc = append(toc, e)
		}
		return nil
	})
	return toc
}

// annotateToc attaches the first-page itemIndex for entries whose href
// resolves to a spine item.
func (b *Backend) annotateToc(entries []domain.TocEntry) []domain.TocEntry {
	pages, _, err := b.pagination()
	if err != nil {
		return entries
	}
	firstPage := make(map[int]int) // spine index -> first laid-out page
	for pi, pg := range pages {
		if _, ok := firstPage[pg.spineIndex]; !ok {
			firstPage[pg.spineIndex] = pi
		}
	}
	var walk func([]domain.TocEntry) []domain.TocEntry
	walk = func(es []domain.TocEntry) []domain.TocEntry {
		for i := range es {
			href := NormalizeHref(es[i].Href)
			if si, ok := b.pkg.SpineIndexOf(href); ok {
				if pi, ok := firstPage[si]; ok {
					idx := pi
					es[i].ItemIndex = &idx
				}
			}
			es[i].Children = walk(es[i].Children)
		}
		return es
	}
	return walk(entries)
}

// Relayout replaces the stored layout config and re-derives the pagination
// and item count.
func (b *Backend) Relayout(cfg LayoutConfig) error {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Em <= 0 {
		return domain.NewError(domain.KindParseError, "layout dimensions must be positive")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.layout = cfg
	b.pages = nil // force repagination on next use
	return nil
}

// Layout returns the currently applied layout config.
func (b *Backend) Layout() LayoutConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.layout
}

// ItemCount returns the laid-out page count under the current layout.
func (b *Backend) ItemCount() (int, error) {
	pages, _, err := b.pagination()
	if err != nil {
		return 0, err
	}
	return len(pages), nil
}

// pagination lazily extracts the spine texts and wraps them under the
// current layout.
func (b *Backend) pagination() ([]layoutPage, LayoutConfig, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pages != nil {
		return b.pages, b.layout, nil
	}
	if b.spineTexts == nil {
		texts := make([]string, 0, len(b.pkg.Spine))
		for _, href := range b.pkg.Spine {
			data, err := b.readEntry(href)
			if err != nil {
				// a missing spine entry contributes an empty page rather
				// than failing the whole document
				texts = append(texts, "")
				continue
			}
			texts = append(texts, chapterText(data))
		}
		b.spineTexts = texts
	}
	b.pages = paginate(b.spineTexts, b.layout)
	return b.pages, b.layout, nil
}

// ExtractText returns the plain text of one laid-out page.
func (b *Backend) ExtractText(pageIndex int) (string, error) {
	pages, _, err := b.pagination()
	if err != nil {
		return "", err
	}
	if pageIndex < 0 || pageIndex >= len(pages) {
		return "", domain.ItemNotFound(pageIndex)
	}
	return strings.Join(pages[pageIndex].lines, "\n"), nil
}

// StructuredText returns the block/line/char geometry of one laid-out
// page. Coordinates are already top-down; they pass through unchanged.
func (b *Backend) StructuredText(pageIndex int) (*domain.StructuredText, error) {
	pages, cfg, err := b.pagination()
	if err != nil {
		return nil, err
	}
	if pageIndex < 0 || pageIndex >= len(pages) {
		return nil, domain.ItemNotFound(pageIndex)
	}
	return pageStructuredText(pages[pageIndex], pageIndex, cfg), nil
}

// Search scans every laid-out page for the query.
func (b *Backend) Search(query string, opts domain.SearchOptions) ([]domain.SearchMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewError(domain.KindSearchError, "empty query")
	}
	pages, cfg, err := b.pagination()
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = stext.DefaultSearchLimit
	}
	var matches []domain.SearchMatch
	for i := range pages {
		if len(matches) >= limit {
			break
		}
		pageOpts := opts
		pageOpts.Limit = limit - len(matches)
		st := pageStructuredText(pages[i], i, cfg)
		matches = append(matches, stext.Search(st, query, pageOpts)...)
	}
	return matches, nil
}

// RenderItem rasterizes one page through the rendering library. The
// library applies its own default layout when opening the document, so the
// renderable index range is its page count, not the laid-out one.
func (b *Backend) RenderItem(req domain.RenderRequest) ([]byte, error) {
	if req.ItemIndex < 0 || req.ItemIndex >= b.h.ItemCount() {
		return nil, domain.ItemNotFound(req.ItemIndex)
	}
	var data []byte
	err := b.h.WithDocMut(func(doc *fitz.Document) error {
		img, err := doc.ImageDPI(req.ItemIndex, render.DPIForScale(req.Scale))
		if err != nil {
			return domain.Wrap(domain.KindRenderError, err, fmt.Sprintf("render page %d", req.ItemIndex))
		}
		data, err = render.Encode(render.Rotate(img, req.Rotation), req.Format)
		return err
	})
	return data, err
}

// RenderThumbnail scales the page so its longest edge is maxSize pixels;
// always JPEG.
func (b *Backend) RenderThumbnail(pageIndex, maxSize int) ([]byte, error) {
	if pageIndex < 0 || pageIndex >= b.h.ItemCount() {
		return nil, domain.ItemNotFound(pageIndex)
	}
	var data []byte
	err := b.h.WithDocMut(func(doc *fitz.Document) error {
		bounds, err := doc.Bound(pageIndex)
		if err != nil {
			return domain.Wrap(domain.KindRenderError, err, fmt.Sprintf("bound page %d", pageIndex))
		}
		dpi := render.ThumbnailDPI(float64(bounds.Dx()), float64(bounds.Dy()), maxSize)
		img, err := doc.ImageDPI(pageIndex, dpi)
		if err != nil {
			return domain.Wrap(domain.KindRenderError, err, fmt.Sprintf("render thumbnail page %d", pageIndex))
		}
		data, err = render.Encode(img, domain.RenderJPEG)
		return err
	})
	return data, err
}

// GetResource resolves an href fuzzily against the archive and returns the
// entry bytes plus the MIME type guessed from the resolved name.
func (b *Backend) GetResource(href string) ([]byte, string, error) {
	resolved := ResolveHref(b.entries, href)
	if resolved == "" {
		return nil, "", domain.ResourceNotFound(href)
	}
	data, err := b.readEntry(resolved)
	if err != nil {
		return nil, "", domain.Wrap(domain.KindIoError, err, fmt.Sprintf("read %s", resolved))
	}
	return data, MimeTypeFor(resolved), nil
}

// Cover decodes the declared cover image and re-encodes it as a JPEG whose
// longest edge is at most maxSize pixels. Returns ResourceNotFound when the
// package declares no cover.
func (b *Backend) Cover(maxSize int) ([]byte, error) {
	if b.pkg.Metadata.CoverHref == "" {
		return nil, domain.ResourceNotFound("cover")
	}
	data, _, err := b.GetResource(b.pkg.Metadata.CoverHref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.Wrap(domain.KindImageError, err, "decode cover")
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		longest := w
		if h > longest {
			longest = h
		}
		scale := float64(maxSize) / float64(longest)
		dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
		img = dst
	}
	return render.Encode(img, domain.RenderJPEG)
}

func (b *Backend) readEntry(name string) ([]byte, error) {
	f, ok := b.files[name]
	if !ok {
		// container paths are occasionally authored with different casing
		resolved := ResolveHref(b.entries, name)
		if resolved == "" {
			return nil, fmt.Errorf("no archive entry %q", name)
		}
		f = b.files[resolved]
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %q: %w", name, err)
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

func dirOf(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return ""
}
