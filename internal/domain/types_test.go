/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestFormatString(t *testing.T) {
	cases := map[Format]string{
		FormatPDF:     "pdf",
		FormatEPUB:    "epub",
		FormatUnknown: "unknown",
	}
	for f, want := range cases {
		if got := f.String(); got != want {
			t.Errorf("Format(%d).String() = %q, want %q", f, got, want)
		}
	}
}

func TestParsedDocumentJSONRoundTrip(t *testing.T) {
	idx := 3
	p := ParsedDocument{
		ID:     "doc-1",
		Format: FormatEPUB,
		Metadata: DocumentMetadata{
			Title:    "Book",
			Creators: []Creator{{Name: "Jane Roe", Role: "aut"}},
			Language: "en",
			Subjects: []string{"Fiction"},
		},
		Toc: []TocEntry{
			{Label: "Chapter 1", Href: "Text/chapter1.xhtml", ItemIndex: &idx,
				Children: []TocEntry{{Label: "Section", Href: "Text/chapter1.xhtml#s1"}}},
			{Label: "Appendix", Href: "position:9"},
		},
		ItemCount:    42,
		ItemLabels:   []string{"i", "ii", "1"},
		HasTextLayer: true,
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ParsedDocument
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != p.ID || got.ItemCount != 42 || !got.HasTextLayer {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Toc[0].ItemIndex == nil || *got.Toc[0].ItemIndex != 3 {
		t.Fatalf("toc itemIndex lost: %+v", got.Toc[0])
	}
	if got.Toc[1].ItemIndex != nil {
		t.Fatalf("absent itemIndex materialized: %+v", got.Toc[1])
	}
}

func TestStructuredTextJSONFieldNames(t *testing.T) {
	st := StructuredText{
		ItemIndex: 1, Width: 600, Height: 800,
		Blocks: []TextBlock{{
			BBox: BoundingBox{X: 1, Y: 2, Width: 3, Height: 4},
			Lines: []TextLine{{
				Direction: DirRTL,
				Chars:     []CharPosition{{Char: 'a', X: 1, Y: 2, Width: 3, Height: 4, FontSize: 12}},
			}},
		}},
	}
	b, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// wire naming is camelCase
	for _, key := range []string{`"itemIndex"`, `"bbox"`, `"chars"`, `"fontSize"`} {
		if !bytes.Contains(b, []byte(key)) {
			t.Errorf("wire JSON missing %s: %s", key, b)
		}
	}
}

func TestUploadStatusTransitions(t *testing.T) {
	if !UploadPending.CanTransitionTo(UploadActive) {
		t.Error("pending -> active must be allowed")
	}
	if !UploadActive.CanTransitionTo(UploadComplete) {
		t.Error("active -> complete must be allowed")
	}
	for _, terminal := range []UploadStatus{UploadComplete, UploadFailed, UploadExpired} {
		if terminal.CanTransitionTo(UploadActive) {
			t.Errorf("%s must be terminal", terminal)
		}
	}
}

func TestUploadSessionCompleteness(t *testing.T) {
	s := UploadSession{
		ChunkHashes:    []string{"a", "b", "c"},
		ReceivedChunks: map[int]bool{0: true, 2: true},
	}
	if s.IsComplete() {
		t.Fatal("2 of 3 chunks must not be complete")
	}
	s.ReceivedChunks[1] = true
	if !s.IsComplete() {
		t.Fatal("all chunks received must be complete")
	}
	if s.TotalChunks() != 3 || s.ReceivedCount() != 3 {
		t.Fatalf("counts = %d/%d", s.ReceivedCount(), s.TotalChunks())
	}
}
