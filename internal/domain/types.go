/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "time"

// Format identifies the concrete document backend a documentId routes to.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatEPUB
)

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatEPUB:
		return "epub"
	default:
		return "unknown"
	}
}

// Creator is one contributor entry in DocumentMetadata.
type Creator struct {
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	FileAs string `json:"fileAs,omitempty"`
}

// DocumentMetadata is the bibliographic information surfaced for a parsed document.
type DocumentMetadata struct {
	Title       string    `json:"title"`
	Creators    []Creator `json:"creators,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	Language    string    `json:"language,omitempty"`
	Identifier  string    `json:"identifier,omitempty"`
	Description string    `json:"description,omitempty"`
	CoverHref   string    `json:"coverHref,omitempty"`
	Date        string    `json:"date,omitempty"`
	Rights      string    `json:"rights,omitempty"`
	Subjects    []string  `json:"subjects,omitempty"`
}

// TocEntry is one node of a document's table of contents. If ItemIndex is
// nil, Href must still uniquely identify the target (spine href, "page:N",
// or "position:N").
type TocEntry struct {
	Label     string     `json:"label"`
	Href      string     `json:"href"`
	ItemIndex *int       `json:"itemIndex,omitempty"`
	Children  []TocEntry `json:"children,omitempty"`
	PlayOrder *int       `json:"playOrder,omitempty"`
}

// ParsedDocument is the immutable, cacheable result of a first parse. Once
// built it is owned by the cache and never mutated in place.
type ParsedDocument struct {
	ID           string           `json:"id"`
	Format       Format           `json:"format"`
	Metadata     DocumentMetadata `json:"metadata"`
	Toc          []TocEntry       `json:"toc"`
	ItemCount    int              `json:"itemCount"`
	ItemLabels   []string         `json:"itemLabels,omitempty"`
	HasTextLayer bool             `json:"hasTextLayer"`
}

// WritingDirection is the reading direction of a TextLine.
type WritingDirection int

const (
	DirLTR WritingDirection = iota
	DirRTL
	DirTTB
	DirBTT
)

func (d WritingDirection) String() string {
	switch d {
	case DirRTL:
		return "rtl"
	case DirTTB:
		return "ttb"
	case DirBTT:
		return "btt"
	default:
		return "ltr"
	}
}

// BoundingBox is an axis-aligned rectangle in screen space (origin top-left).
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CharPosition is one Unicode scalar with its rendered geometry.
type CharPosition struct {
	Char     rune    `json:"char"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	FontSize float64 `json:"fontSize,omitempty"`
	FontName string  `json:"fontName,omitempty"`
	FontFlags int    `json:"fontFlags,omitempty"`
	Color    string  `json:"color,omitempty"`
}

// TextLine is an ordered run of characters sharing a writing direction.
type TextLine struct {
	BBox      BoundingBox      `json:"bbox"`
	Direction WritingDirection `json:"direction"`
	Chars     []CharPosition   `json:"chars"`
	Text      string           `json:"text,omitempty"`
}

// TextBlock groups TextLines that belong to the same paragraph/region.
type TextBlock struct {
	BBox  BoundingBox `json:"bbox"`
	Lines []TextLine  `json:"lines"`
}

// StructuredText is the full per-character layout of one item (page for
// PDF, laid-out page for EPUB).
type StructuredText struct {
	ItemIndex int         `json:"itemIndex"`
	Width     float64     `json:"width"`
	Height    float64     `json:"height"`
	Blocks    []TextBlock `json:"blocks"`
}

// SearchOptions tunes PdfBackend/EpubBackend.Search.
type SearchOptions struct {
	Limit           int  `json:"limit,omitempty"`
	CaseInsensitive bool `json:"caseInsensitive,omitempty"`
	WholeWord       bool `json:"wholeWord,omitempty"`
	IncludeContext  bool `json:"includeContext,omitempty"`
	ContextLength   int  `json:"contextLength,omitempty"`
}

// SearchMatch is one hit returned by a backend search.
type SearchMatch struct {
	ItemIndex int         `json:"itemIndex"`
	BBox      BoundingBox `json:"bbox"`
	Context   string      `json:"context,omitempty"`
}

// RenderFormat is the raster encoding requested for a rendered page.
type RenderFormat int

const (
	RenderPNG RenderFormat = iota
	RenderJPEG
	RenderWebP
)

// RenderRequest parameterizes PdfBackend/EpubBackend.RenderItem.
type RenderRequest struct {
	ItemIndex int          `json:"itemIndex"`
	Scale     float64      `json:"scale"`
	Rotation  int          `json:"rotation"`
	Format    RenderFormat `json:"format"`
}

// FormField describes one interactive form field surfaced by GetFormInfo.
// Rect, when present, is normalized [0,1] screen space (origin top-left).
type FormField struct {
	Name      string       `json:"name"`
	Type      string       `json:"type"` // text, checkbox, radio, dropdown, listbox, signature, button
	ReadOnly  bool         `json:"readOnly,omitempty"`
	Required  bool         `json:"required,omitempty"`
	Multiline bool         `json:"multiline,omitempty"`
	Password  bool         `json:"password,omitempty"`
	MaxLength int          `json:"maxLength,omitempty"`
	Options   []string     `json:"options,omitempty"`
	Value     string       `json:"value,omitempty"`
	Rect      *BoundingBox `json:"rect,omitempty"`
}

// ValidationStatus is reserved for future cryptographic signature validation;
// today every signature reports NotVerified.
type ValidationStatus int

const (
	ValidationNotVerified ValidationStatus = iota
	ValidationValid
	ValidationInvalid
	ValidationUnknown
)

// SignatureInfo describes one PDF signature field without performing
// cryptographic verification (a stated non-goal).
type SignatureInfo struct {
	FieldName string           `json:"fieldName"`
	Status    ValidationStatus `json:"status"`
	SignedAt  *time.Time       `json:"signedAt,omitempty"`
}
