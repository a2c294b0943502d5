/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package annostore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/aledro/docreaderd/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "annotations.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleAnnotation(id, bookID string) domain.Annotation {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Annotation{
		ID:     id,
		BookID: bookID,
		UserID: "u1",
		Type:   domain.AnnotationHighlight,
		Target: domain.AnnotationTarget{
			Source: "OEBPS/Text/chapter1.xhtml",
			Selectors: []domain.Selector{
				{Kind: domain.SelectorFragment, CFI: "epubcfi(/6/4!/4/2/1:42)"},
				{Kind: domain.SelectorTextQuote, Exact: "quoted words", Prefix: "some ", Suffix: " after"},
				{Kind: domain.SelectorProgression, Value: 0.25},
			},
		},
		Body:      &domain.AnnotationBody{Value: "a note", Format: "text/plain"},
		Style:     &domain.AnnotationStyle{Color: "#ffcc00", Opacity: 0.4},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := sampleAnnotation("a1", "book-1")

	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(*got, a) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *got, a)
	}
}

func TestSaveIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := sampleAnnotation("a1", "book-1")
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("save: %v", err)
	}
	a.Body.Value = "edited"
	a.UpdatedAt = a.UpdatedAt.Add(time.Hour)
	if err := s.Save(ctx, a); err != nil {
		t.Fatalf("re-save: %v", err)
	}
	got, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Body.Value != "edited" {
		t.Fatalf("body = %q", got.Body.Value)
	}
	if n, _ := s.CountForBook(ctx, "book-1"); n != 1 {
		t.Fatalf("count = %d", n)
	}
}

func TestSaveRejectsMissingSelector(t *testing.T) {
	s := openTestStore(t)
	a := sampleAnnotation("a1", "book-1")
	a.Target.Selectors = nil
	err := s.Save(context.Background(), a)
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindMissingSelector {
		t.Fatalf("expected MissingSelector, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := sampleAnnotation("a1", "book-1")
	b := sampleAnnotation("a2", "book-1")
	b.Type = domain.AnnotationBookmark
	b.CreatedAt = b.CreatedAt.Add(time.Minute)
	c := sampleAnnotation("a3", "book-2")
	for _, x := range []domain.Annotation{a, b, c} {
		if err := s.Save(ctx, x); err != nil {
			t.Fatalf("save %s: %v", x.ID, err)
		}
	}

	got, err := s.List(ctx, domain.AnnotationQuery{BookID: "book-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("book-1 annotations = %d", len(got))
	}
	// newest first
	if got[0].ID != "a2" {
		t.Fatalf("ordering: first = %s", got[0].ID)
	}

	got, err = s.List(ctx, domain.AnnotationQuery{BookID: "book-1", AnnotationType: domain.AnnotationBookmark})
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("type filter = %+v", got)
	}

	got, err = s.List(ctx, domain.AnnotationQuery{ChapterHref: "OEBPS/Text/chapter1.xhtml", Limit: 2})
	if err != nil {
		t.Fatalf("list by chapter: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("chapter filter = %d", len(got))
	}
}

func TestDeleteForBook(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.Save(ctx, sampleAnnotation("a1", "book-1"))
	_ = s.Save(ctx, sampleAnnotation("a2", "book-1"))
	_ = s.Save(ctx, sampleAnnotation("a3", "book-2"))

	n, err := s.DeleteForBook(ctx, "book-1")
	if err != nil {
		t.Fatalf("delete for book: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d", n)
	}
	if cnt, _ := s.CountForBook(ctx, "book-2"); cnt != 1 {
		t.Fatalf("book-2 count = %d", cnt)
	}
}

func TestModifiedSince(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a := sampleAnnotation("a1", "book-1")
	b := sampleAnnotation("a2", "book-1")
	b.UpdatedAt = b.UpdatedAt.Add(2 * time.Hour)
	_ = s.Save(ctx, a)
	_ = s.Save(ctx, b)

	got, err := s.ModifiedSince(ctx, "book-1", a.UpdatedAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("modified since: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("modified since = %+v", got)
	}
}

func TestModifiedSinceFractionalSecondBoundary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)

	// 100 ms and 110 ms: RFC3339Nano would render these ".1" and ".11",
	// which sort lexically in the wrong order; the fixed-width form must
	// keep them chronological.
	a := sampleAnnotation("a1", "book-1")
	a.UpdatedAt = base.Add(100 * time.Millisecond)
	b := sampleAnnotation("a2", "book-1")
	b.UpdatedAt = base.Add(110 * time.Millisecond)
	_ = s.Save(ctx, a)
	_ = s.Save(ctx, b)

	got, err := s.ModifiedSince(ctx, "book-1", base.Add(105*time.Millisecond))
	if err != nil {
		t.Fatalf("modified since: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a2" {
		t.Fatalf("boundary query = %+v", got)
	}

	got, err = s.ModifiedSince(ctx, "book-1", base.Add(100*time.Millisecond))
	if err != nil {
		t.Fatalf("modified since: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a2" {
		t.Fatalf("ascending order = %+v", got)
	}
}

func TestAnnotationJSONRoundTrip(t *testing.T) {
	a := sampleAnnotation("a1", "book-1")
	a.Sync = &domain.SyncMetadata{Version: 7, DeviceID: "dev-1", Synced: true}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back domain.Annotation
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(a, back) {
		t.Fatalf("json round trip mismatch:\n got %+v\nwant %+v", back, a)
	}
}

func TestHighlightPageOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	page := 4
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mk := func(id string, y, x float64) Highlight {
		return Highlight{
			ID: id, BookID: "book-1", DocumentFormat: "pdf", CFI: "page:" + id,
			Page: &page, Text: "t", Color: "#ff0",
			Region:    &domain.BoundingBox{X: x, Y: y, Width: 0.1, Height: 0.05},
			CreatedAt: now, UpdatedAt: now,
		}
	}
	// Inserted out of visual order.
	for _, h := range []Highlight{mk("h-low", 0.8, 0.1), mk("h-top-right", 0.1, 0.6), mk("h-top-left", 0.1, 0.2)} {
		if err := s.SaveHighlight(ctx, h); err != nil {
			t.Fatalf("save highlight: %v", err)
		}
	}
	got, err := s.ListHighlights(ctx, HighlightQuery{BookID: "book-1", Page: &page})
	if err != nil {
		t.Fatalf("list highlights: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("highlights = %d", len(got))
	}
	order := []string{got[0].ID, got[1].ID, got[2].ID}
	want := []string{"h-top-left", "h-top-right", "h-low"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("visual order = %v, want %v", order, want)
	}
}

func TestHighlightRoundTripRects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	h := Highlight{
		ID: "h1", BookID: "book-1", DocumentFormat: "pdf", CFI: "page:3", Text: "multi line",
		Color: "#00ff00",
		Rects: []domain.BoundingBox{
			{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.02},
			{X: 0.1, Y: 0.23, Width: 0.3, Height: 0.02},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.SaveHighlight(ctx, h); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.GetHighlight(ctx, "h1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(*got, h) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", *got, h)
	}
}
