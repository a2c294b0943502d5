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
	"unicode"

	"golang.org/x/net/html"

	"github.com/aledro/docreaderd/internal/domain"
)

// LayoutConfig is the viewport and typography a reflowable document is laid
// out against. EPUB pages do not exist until a layout has been applied;
// the backend re-derives its pagination whenever the config changes.
type LayoutConfig struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Em     float64 `json:"em"`
}

// DefaultLayout is applied until Relayout is called.
var DefaultLayout = LayoutConfig{Width: 800, Height: 600, Em: 12}

const (
	// charAdvanceFactor approximates one character advance as a fraction
	// of the em size, matching the interpolation the structured-text
	// parser uses for fixed-layout pages.
	charAdvanceFactor = 0.5
	// lineHeightFactor scales em into a line box.
	lineHeightFactor = 1.2
)

// maxColumns returns how many characters fit on one laid-out line.
func (c LayoutConfig) maxColumns() int {
	n := int(c.Width / (c.Em * charAdvanceFactor))
	if n < 1 {
		return 1
	}
	return n
}

// linesPerPage returns how many lines fit on one laid-out page.
func (c LayoutConfig) linesPerPage() int {
	n := int(c.Height / (c.Em * lineHeightFactor))
	if n < 1 {
		return 1
	}
	return n
}

// layoutPage is one laid-out page: the spine item it came from and its
// wrapped lines.
type layoutPage struct {
	spineIndex int
	lines      []string
}

// paginate word-wraps the plain text of every spine item into pages. A new
// spine item always starts a new page.
func paginate(spineTexts []string, cfg LayoutConfig) []layoutPage {
	cols := cfg.maxColumns()
	rows := cfg.linesPerPage()

	var pages []layoutPage
	for si, text := range spineTexts {
		lines := wrapText(text, cols)
		if len(lines) == 0 {
			lines = []string{""}
		}
		for start := 0; start < len(lines); start += rows {
			end := start + rows
			if end > len(lines) {
				end = len(lines)
			}
			pages = append(pages, layoutPage{spineIndex: si, lines: lines[start:end]})
		}
	}
	return pages
}

// wrapText breaks text into lines of at most cols characters, breaking on
// spaces where possible and force-breaking words longer than a line.
func wrapText(text string, cols int) []string {
	var lines []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, string(cur))
			cur = cur[:0]
		}
	}

	for _, para := range strings.Split(text, "\n") {
		for _, word := range strings.Fields(para) {
			w := []rune(word)
			for len(w) > cols {
				flush()
				lines = append(lines, string(w[:cols]))
				w = w[cols:]
			}
			if len(cur) > 0 && len(cur)+1+len(w) > cols {
				flush()
			}
			if len(cur) > 0 {
				cur = append(cur, ' ')
			}
			cur = append(cur, w...)
		}
		flush()
	}
	return lines
}

// pageStructuredText converts one laid-out page into the block/line/char
// model. EPUB coordinates are already screen space; nothing is inverted.
func pageStructuredText(pg layoutPage, pageIndex int, cfg LayoutConfig) *domain.StructuredText {
	lineH := cfg.Em * lineHeightFactor
	charW := cfg.Em * charAdvanceFactor

	st := &domain.StructuredText{
		ItemIndex: pageIndex,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}
	block := domain.TextBlock{}
	for li, text := range pg.lines {
		y := float64(li) * lineH
		line := domain.TextLine{
			BBox:      domain.BoundingBox{X: 0, Y: y, Height: lineH},
			Direction: lineDirection(text),
			Text:      text,
		}
		x := 0.0
		for _, r := range text {
			line.Chars = append(line.Chars, domain.CharPosition{
				Char: r, X: x, Y: y, Width: charW, Height: lineH, FontSize: cfg.Em,
			})
			x += charW
		}
		line.BBox.Width = x
		if line.BBox.Width > block.BBox.Width {
			block.BBox.Width = line.BBox.Width
		}
		block.Lines = append(block.Lines, line)
	}
	if n := len(block.Lines); n > 0 {
		block.BBox.Height = float64(n) * lineH
		st.Blocks = []domain.TextBlock{block}
	}
	return st
}

func lineDirection(s string) domain.WritingDirection {
	for _, r := range s {
		if unicode.In(r, unicode.Hebrew, unicode.Arabic) {
			return domain.DirRTL
		}
		if unicode.IsLetter(r) {
			break
		}
	}
	return domain.DirLTR
}

// chapterText strips an XHTML chapter down to its plain text, with newlines
// at block element boundaries.
func chapterText(data []byte) string {
	var sb strings.Builder
	tz := html.NewTokenizer(strings.NewReader(string(data)))
	skip := 0
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := tz.TagName()
			switch string(name) {
			case "script", "style":
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6", "li", "tr", "section", "blockquote":
				sb.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(tz.Text())
			}
		}
	}
	// collapse runs of whitespace inside lines, keep paragraph breaks
	var out []string
	for _, line := range strings.Split(sb.String(), "\n") {
		if s := strings.Join(strings.Fields(line), " "); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}
