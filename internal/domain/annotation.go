/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"time"
)

// AnnotationType enumerates the kinds of user marks persisted against a document.
type AnnotationType string

const (
	AnnotationHighlight AnnotationType = "highlight"
	AnnotationBookmark  AnnotationType = "bookmark"
	AnnotationNote      AnnotationType = "note"
	AnnotationUnderline AnnotationType = "underline"
)

// SelectorKind tags which concrete shape a Selector value holds.
type SelectorKind string

const (
	SelectorFragment      SelectorKind = "fragment"       // CFI
	SelectorTextQuote     SelectorKind = "textQuote"
	SelectorTextPosition  SelectorKind = "textPosition"
	SelectorProgression   SelectorKind = "progression"
	SelectorDomRange      SelectorKind = "domRange"
	SelectorPdfPage       SelectorKind = "pdfPage"
	SelectorPdfTextQuote  SelectorKind = "pdfTextQuote"
	SelectorPdfRegion     SelectorKind = "pdfRegion"
)

// Selector is a tagged-variant target descriptor. Exactly the fields for
// Kind are meaningful; the others are left at their zero value. This mirrors
// the "authoritative JSON, duplicate the hot fields into scalar columns"
// strategy used by AnnotationStore.
type Selector struct {
	Kind SelectorKind `json:"kind"`

	// SelectorFragment
	CFI string `json:"cfi,omitempty"`

	// SelectorTextQuote / SelectorPdfTextQuote
	Exact  string `json:"exact,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`

	// SelectorTextPosition
	Start int `json:"start,omitempty"`
	End   int `json:"end,omitempty"`

	// SelectorProgression
	Value float64 `json:"value,omitempty"`

	// SelectorDomRange
	StartPath   string `json:"startPath,omitempty"`
	StartOffset int    `json:"startOffset,omitempty"`
	EndPath     string `json:"endPath,omitempty"`
	EndOffset   int    `json:"endOffset,omitempty"`

	// SelectorPdfPage / SelectorPdfTextQuote / SelectorPdfRegion
	Page     int          `json:"page,omitempty"`
	Position *BoundingBox `json:"position,omitempty"`
	Rect     *BoundingBox `json:"rect,omitempty"`
}

// AnnotationTarget names the source document/resource an annotation is
// anchored to, plus an ordered list of selectors a client may resolve
// against. The server never resolves selectors itself; it persists and
// returns them verbatim.
type AnnotationTarget struct {
	Source    string     `json:"source"`
	Selectors []Selector `json:"selectors"`
}

// AnnotationBody carries free-form note content.
type AnnotationBody struct {
	Value  string `json:"value"`
	Format string `json:"format,omitempty"` // e.g. "text/plain", "text/markdown"
}

// AnnotationStyle carries optional presentation hints for highlight rendering.
type AnnotationStyle struct {
	Color   string  `json:"color,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
}

// SyncMetadata tells a client whether its local copy of an annotation has
// been acknowledged by the server, and at what version/device.
type SyncMetadata struct {
	Version  uint64 `json:"version"`
	DeviceID string `json:"deviceId"`
	Synced   bool   `json:"synced"`
	Checksum string `json:"checksum,omitempty"`
}

// Annotation is the full persisted record for a highlight, bookmark, note,
// or underline.
type Annotation struct {
	ID        string           `json:"id"`
	BookID    string           `json:"bookId"`
	UserID    string           `json:"userId,omitempty"`
	Type      AnnotationType   `json:"type"`
	Target    AnnotationTarget `json:"target"`
	Body      *AnnotationBody  `json:"body,omitempty"`
	Style     *AnnotationStyle `json:"style,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Sync      *SyncMetadata    `json:"sync,omitempty"`
}

// AnnotationQuery filters AnnotationStore.List.
type AnnotationQuery struct {
	BookID        string
	UserID        string
	AnnotationType AnnotationType
	ChapterHref   string
	Limit         int
	Offset        int
}

// Validate enforces the "at least one selector" invariant and rejects empty
// required fields before persistence.
func (a Annotation) Validate() error {
	if a.ID == "" {
		return NewError(KindInvalidSelector, "annotation id is required")
	}
	if a.BookID == "" {
		return NewError(KindInvalidSelector, "annotation bookId is required")
	}
	if len(a.Target.Selectors) == 0 {
		return NewError(KindMissingSelector, "annotation target must carry at least one selector")
	}
	return nil
}
