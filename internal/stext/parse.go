/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package stext builds the block/line/char structured-text model from the
// positioned HTML the rendering library emits per page, and implements
// geometry-carrying search over it. Both document backends share it; the
// coordinates that come out are always screen space (origin top-left).
package stext

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/aledro/docreaderd/internal/domain"
)

// charWidthFactor approximates a character advance as a fraction of the font
// size. The library's HTML output positions lines, not single glyphs, so
// per-char geometry is interpolated along the line.
const charWidthFactor = 0.5

// blockGapFactor: a vertical gap larger than this many line heights starts a
// new text block.
const blockGapFactor = 1.8

// ParsePage converts one page of library HTML output into StructuredText.
// The input is the absolutely-positioned form produced for a single page:
// a page div carrying width/height, with one <p> per text line carrying
// top/left, and <span> runs carrying font-family/font-size/color.
func ParsePage(pageHTML string, itemIndex int) (*domain.StructuredText, error) {
	st := &domain.StructuredText{ItemIndex: itemIndex}

	type spanStyle struct {
		fontName string
		fontSize float64
		color    string
	}

	var (
		lines      []domain.TextLine
		cur        *domain.TextLine
		curStyle   spanStyle
		lineHeight float64
		penX       float64
	)

	flushLine := func() {
		if cur == nil {
			return
		}
		if len(cur.Chars) > 0 {
			var sb strings.Builder
			for _, c := range cur.Chars {
				sb.WriteRune(c.Char)
			}
			cur.Text = sb.String()
			cur.BBox.Width = penX - cur.BBox.X
			if cur.BBox.Height == 0 {
				cur.BBox.Height = lineHeight
			}
			cur.Direction = detectDirection(cur.Text)
			lines = append(lines, *cur)
		}
		cur = nil
	}

	tz := html.NewTokenizer(strings.NewReader(pageHTML))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tz.Token()
			style := attrValue(tok, "style")
			switch tok.Data {
			case "div":
				if w, ok := styleLength(style, "width"); ok {
					st.Width = w
				}
				if h, ok := styleLength(style, "height"); ok {
					st.Height = h
				}
			case "p":
				flushLine()
				top, _ := styleLength(style, "top")
				left, _ := styleLength(style, "left")
				lineHeight, _ = styleLength(style, "line-height")
				cur = &domain.TextLine{BBox: domain.BoundingBox{X: left, Y: top, Height: lineHeight}}
				penX = left
			case "span":
				curStyle = spanStyle{
					fontName: styleValue(style, "font-family"),
					color:    styleValue(style, "color"),
				}
				curStyle.fontSize, _ = styleLength(style, "font-size")
			}
		case html.EndTagToken:
			tok := tz.Token()
			if tok.Data == "p" {
				flushLine()
			}
		case html.TextToken:
			if cur == nil {
				continue
			}
			fs := curStyle.fontSize
			if fs == 0 {
				fs = lineHeight
			}
			h := cur.BBox.Height
			if h == 0 {
				h = fs
			}
			for _, r := range tz.Token().Data {
				if r == '\n' {
					continue
				}
				w := fs * charWidthFactor
				cur.Chars = append(cur.Chars, domain.CharPosition{
					Char:     r,
					X:        penX,
					Y:        cur.BBox.Y,
					Width:    w,
					Height:   h,
					FontSize: fs,
					FontName: curStyle.fontName,
					Color:    curStyle.color,
				})
				penX += w
			}
		}
	}
	flushLine()

	st.Blocks = groupBlocks(lines)
	return st, nil
}

// groupBlocks folds consecutive lines into blocks, starting a new block when
// the vertical gap exceeds blockGapFactor line heights.
func groupBlocks(lines []domain.TextLine) []domain.TextBlock {
	var blocks []domain.TextBlock
	var cur *domain.TextBlock
	var prevBottom float64

	for _, ln := range lines {
		gapLimit := ln.BBox.Height * blockGapFactor
		if gapLimit == 0 {
			gapLimit = 20
		}
		if cur == nil || ln.BBox.Y-prevBottom > gapLimit {
			blocks = append(blocks, domain.TextBlock{})
			cur = &blocks[len(blocks)-1]
		}
		cur.Lines = append(cur.Lines, ln)
		prevBottom = ln.BBox.Y + ln.BBox.Height
		expandBBox(&cur.BBox, ln.BBox)
	}
	return blocks
}

func expandBBox(dst *domain.BoundingBox, src domain.BoundingBox) {
	if dst.Width == 0 && dst.Height == 0 {
		*dst = src
		return
	}
	x1 := minF(dst.X, src.X)
	y1 := minF(dst.Y, src.Y)
	x2 := maxF(dst.X+dst.Width, src.X+src.Width)
	y2 := maxF(dst.Y+dst.Height, src.Y+src.Height)
	*dst = domain.BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// detectDirection inspects the first strong character. Vertical modes are
// not derivable from the HTML output; those come through only when the
// library reports them upstream.
func detectDirection(s string) domain.WritingDirection {
	for _, r := range s {
		if unicode.In(r, unicode.Hebrew, unicode.Arabic) {
			return domain.DirRTL
		}
		if unicode.IsLetter(r) {
			return domain.DirLTR
		}
	}
	return domain.DirLTR
}

// PlainText joins all characters of a page in reading order, with newlines
// between lines and blank lines between blocks.
func PlainText(st *domain.StructuredText) string {
	var sb strings.Builder
	for bi, b := range st.Blocks {
		if bi > 0 {
			sb.WriteString("\n")
		}
		for _, ln := range b.Lines {
			sb.WriteString(ln.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// attrValue returns the value of the named attribute, or "".
func attrValue(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// styleValue extracts one property value from an inline CSS style string.
func styleValue(style, prop string) string {
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(k) == prop {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// styleLength extracts a numeric CSS length (pt/px suffix stripped).
func styleLength(style, prop string) (float64, bool) {
	v := styleValue(style, prop)
	if v == "" {
		return 0, false
	}
	v = strings.TrimSuffix(strings.TrimSuffix(v, "pt"), "px")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
