/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pdfbackend implements the parser/renderer capability set for PDF
// documents on top of a serialized document handle. Everything it returns
// uses screen-space coordinates (origin top-left); the inversion from the
// PDF-native bottom-up system happens inside this package and nowhere else.
package pdfbackend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/aledro/docreaderd/internal/dochandle"
	"github.com/aledro/docreaderd/internal/domain"
	"github.com/aledro/docreaderd/internal/render"
	"github.com/aledro/docreaderd/internal/stext"
)

// textLayerProbePages bounds the quick text-layer probe during parse.
const textLayerProbePages = 3

// Backend serves PDF operations for one document handle.
type Backend struct {
	h *dochandle.Handle
}

// New wraps a handle; the handle must hold a PDF.
func New(h *dochandle.Handle) (*Backend, error) {
	if h.Format() != domain.FormatPDF {
		return nil, domain.NewError(domain.KindUnsupportedFormat, "handle does not hold a PDF")
	}
	return &Backend{h: h}, nil
}

// Handle exposes the underlying document handle.
func (b *Backend) Handle() *dochandle.Handle { return b.h }

// ItemCount returns the page count.
func (b *Backend) ItemCount() int { return b.h.ItemCount() }

// Parse reads info-dictionary metadata, the outline, and runs the quick
// text-layer probe, producing the cacheable ParsedDocument.
func (b *Backend) Parse() (*domain.ParsedDocument, error) {
	parsed := &domain.ParsedDocument{
		ID:     b.h.ID(),
		Format: domain.FormatPDF,
	}
	err := b.h.WithDoc(func(doc *fitz.Document) error {
		parsed.ItemCount = doc.NumPage()
		parsed.Metadata = metadataFromMap(doc.Metadata())
		if toc, err := doc.ToC(); err == nil {
			parsed.Toc = buildToc(toc)
		}
		parsed.HasTextLayer = probeTextLayer(doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	parsed.ItemLabels = numericLabels(parsed.ItemCount)
	return parsed, nil
}

// probeTextLayer extracts text from the first few pages and declares a text
// layer on the first non-empty result.
func probeTextLayer(doc *fitz.Document) bool {
	n := doc.NumPage()
	if n > textLayerProbePages {
		n = textLayerProbePages
	}
	for i := 0; i < n; i++ {
		txt, err := doc.Text(i)
		if err == nil && strings.TrimSpace(txt) != "" {
			return true
		}
	}
	return false
}

// numericLabels produces the default 1-based page labels. The library does
// not surface PDF page-label metadata, so custom label trees fall back to
// the numeric form.
func numericLabels(n int) []string {
	if n <= 0 {
		return nil
	}
	labels := make([]string, n)
	for i := range labels {
		labels[i] = strconv.Itoa(i + 1)
	}
	return labels
}

// metadataFromMap maps the library's info-dictionary keys onto
// DocumentMetadata. Values come back NUL-padded from the native lookup.
func metadataFromMap(m map[string]string) domain.DocumentMetadata {
	get := func(key string) string {
		return strings.TrimSpace(strings.TrimRight(m[key], "\x00"))
	}
	md := domain.DocumentMetadata{
		Title:       get("title"),
		Description: get("subject"),
		Date:        get("creationDate"),
	}
	if author := get("author"); author != "" {
		md.Creators = []domain.Creator{{Name: author, Role: "aut"}}
	}
	if kw := get("keywords"); kw != "" {
		for _, s := range strings.FieldsFunc(kw, func(r rune) bool { return r == ',' || r == ';' }) {
			if s = strings.TrimSpace(s); s != "" {
				md.Subjects = append(md.Subjects, s)
			}
		}
	}
	return md
}

// buildToc folds the library's flat, level-tagged outline into a tree.
// Entries that resolve to a page get both an itemIndex and a page:N href.
func buildToc(outline []fitz.Outline) []domain.TocEntry {
	var root []domain.TocEntry
	// stack[i] points at the children slice for level i+1
	type frame struct {
		level   int
		entries *[]domain.TocEntry
	}
	stack := []frame{{level: 0, entries: &root}}

	for _, o := range outline {
		e := domain.TocEntry{Label: strings.TrimSpace(o.Title)}
		if o.Page >= 0 {
			idx := o.Page
			e.ItemIndex = &idx
			e.Href = fmt.Sprintf("page:%d", o.Page+1)
		} else {
			e.Href = o.URI
		}
		for len(stack) > 1 && stack[len(stack)-1].level >= o.Level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].entries
		*parent = append(*parent, e)
		stack = append(stack, frame{level: o.Level, entries: &(*parent)[len(*parent)-1].Children})
	}
	return root
}

// ExtractText returns the plain concatenated text of one page.
func (b *Backend) ExtractText(pageIndex int) (string, error) {
	if err := b.checkIndex(pageIndex); err != nil {
		return "", err
	}
	var out string
	err := b.h.WithDoc(func(doc *fitz.Document) error {
		txt, err := doc.Text(pageIndex)
		if err != nil {
			return domain.Wrap(domain.KindTextExtractionError, err, fmt.Sprintf("extract text page %d", pageIndex))
		}
		out = txt
		return nil
	})
	return out, err
}

// StructuredText walks the page's block/line/char hierarchy. The positioned
// HTML the library emits is already top-down, so no further inversion is
// needed here; see forms.go for the one place raw bottom-up coordinates
// enter the system.
func (b *Backend) StructuredText(pageIndex int) (*domain.StructuredText, error) {
	if err := b.checkIndex(pageIndex); err != nil {
		return nil, err
	}
	var st *domain.StructuredText
	err := b.h.WithDoc(func(doc *fitz.Document) error {
		pageHTML, err := doc.HTML(pageIndex, false)
		if err != nil {
			return domain.Wrap(domain.KindTextExtractionError, err, fmt.Sprintf("structured text page %d", pageIndex))
		}
		st, err = stext.ParsePage(pageHTML, pageIndex)
		if err != nil {
			return err
		}
		if st.Width == 0 || st.Height == 0 {
			if bounds, err := doc.Bound(pageIndex); err == nil {
				st.Width = float64(bounds.Dx())
				st.Height = float64(bounds.Dy())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Search scans every page for the query, converting each hit to a bounding
// box in normalized [0,1] page coordinates.
func (b *Backend) Search(query string, opts domain.SearchOptions) ([]domain.SearchMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewError(domain.KindSearchError, "empty query")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = stext.DefaultSearchLimit
	}
	var matches []domain.SearchMatch
	for i := 0; i < b.h.ItemCount() && len(matches) < limit; i++ {
		st, err := b.StructuredText(i)
		if err != nil {
			return nil, domain.Wrap(domain.KindSearchError, err, fmt.Sprintf("search page %d", i))
		}
		pageOpts := opts
		pageOpts.Limit = limit - len(matches)
		matches = append(matches, stext.Search(st, query, pageOpts)...)
	}
	return matches, nil
}

// RenderItem rasterizes one page and encodes it per the request. Scale is
// clamped to [0.1, 4.0]; rotation is applied after rasterization.
func (b *Backend) RenderItem(req domain.RenderRequest) ([]byte, error) {
	if err := b.checkIndex(req.ItemIndex); err != nil {
		return nil, err
	}
	var data []byte
	err := b.h.WithDoc(func(doc *fitz.Document) error {
		img, err := doc.ImageDPI(req.ItemIndex, render.DPIForScale(req.Scale))
		if err != nil {
			return domain.Wrap(domain.KindRenderError, err, fmt.Sprintf("render page %d", req.ItemIndex))
		}
		data, err = render.Encode(render.Rotate(img, req.Rotation), req.Format)
		return err
	})
	return data, err
}

// RenderThumbnail scales the page so its longest edge is maxSize pixels and
// encodes to JPEG.
func (b *Backend) RenderThumbnail(pageIndex, maxSize int) ([]byte, error) {
	if err := b.checkIndex(pageIndex); err != nil {
		return nil, err
	}
	var data []byte
	err := b.h.WithDoc(func(doc *fitz.Document) error {
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

func (b *Backend) checkIndex(i int) error {
	if i < 0 || i >= b.h.ItemCount() {
		return domain.ItemNotFound(i)
	}
	return nil
}
