/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package epubbackend

import (
	"strings"
	"testing"

	"github.com/aledro/docreaderd/internal/domain"
)

func TestWrapTextBreaksOnSpaces(t *testing.T) {
	lines := wrapText("the quick brown fox jumps over the lazy dog", 10)
	for _, l := range lines {
		if len(l) > 10 {
			t.Fatalf("line %q exceeds 10 columns", l)
		}
	}
	if strings.Join(lines, " ") != "the quick brown fox jumps over the lazy dog" {
		t.Fatalf("content changed: %v", lines)
	}
}

func TestWrapTextForceBreaksLongWords(t *testing.T) {
	lines := wrapText("supercalifragilistic", 5)
	if len(lines) != 4 {
		t.Fatalf("lines = %v", lines)
	}
	if lines[0] != "super" {
		t.Fatalf("first line = %q", lines[0])
	}
}

func TestPaginateNewSpineItemStartsNewPage(t *testing.T) {
	cfg := LayoutConfig{Width: 100, Height: 48, Em: 10}
	// 20 columns, 4 lines per page
	pages := paginate([]string{"one two three", "four"}, cfg)
	if len(pages) != 2 {
		t.Fatalf("pages = %d", len(pages))
	}
	if pages[0].spineIndex != 0 || pages[1].spineIndex != 1 {
		t.Fatalf("spine assignment = %+v", pages)
	}
}

func TestPaginateCountChangesWithLayout(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit ", 200)
	wide := paginate([]string{text}, DefaultLayout)
	narrow := paginate([]string{text}, LayoutConfig{Width: 400, Height: 600, Em: 10})
	if len(wide) == len(narrow) {
		t.Fatalf("page count did not change with layout: %d", len(wide))
	}
}

func TestPageStructuredTextGeometry(t *testing.T) {
	cfg := LayoutConfig{Width: 200, Height: 120, Em: 10}
	pg := layoutPage{spineIndex: 0, lines: []string{"ab", "cd"}}
	st := pageStructuredText(pg, 7, cfg)
	if st.ItemIndex != 7 || st.Width != 200 || st.Height != 120 {
		t.Fatalf("page frame = %+v", st)
	}
	if len(st.Blocks) != 1 || len(st.Blocks[0].Lines) != 2 {
		t.Fatalf("structure = %+v", st.Blocks)
	}
	l2 := st.Blocks[0].Lines[1]
	if l2.BBox.Y != 12 { // one line height down: 10 * 1.2
		t.Fatalf("second line y = %v", l2.BBox.Y)
	}
	if l2.Chars[1].X != 5 { // one char advance: 10 * 0.5
		t.Fatalf("second char x = %v", l2.Chars[1].X)
	}
	if l2.Direction != domain.DirLTR {
		t.Fatalf("direction = %v", l2.Direction)
	}
}

func TestChapterTextStripsMarkup(t *testing.T) {
	xhtml := `<?xml version="1.0"?>
<html><head><style>p { color: red }</style><script>alert(1)</script></head>
<body><h1>Title</h1><p>First   paragraph.</p><p>Second <b>bold</b> paragraph.</p></body></html>`
	got := chapterText([]byte(xhtml))
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Fatalf("script/style leaked: %q", got)
	}
	want := "Title\nFirst paragraph.\nSecond bold paragraph."
	if got != want {
		t.Fatalf("chapter text = %q, want %q", got, want)
	}
}
