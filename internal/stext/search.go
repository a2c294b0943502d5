/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package stext

import (
	"unicode"

	"github.com/aledro/docreaderd/internal/domain"
)

// DefaultSearchLimit caps the number of matches when SearchOptions.Limit is 0.
const DefaultSearchLimit = 100

// DefaultContextLength is the number of characters sliced on each side of a
// match when context is requested without an explicit length.
const DefaultContextLength = 50

// Search finds query within one page's structured text and returns one match
// per occurrence with its bounding box normalized to [0,1] page coordinates.
// Matching is per line; case sensitivity is the default, whole-word requires
// the match to be bounded by non-identifier characters.
func Search(st *domain.StructuredText, query string, opts domain.SearchOptions) []domain.SearchMatch {
	if query == "" {
		return nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryRunes := []rune(query)
	if opts.CaseInsensitive {
		queryRunes = foldRunes(queryRunes)
	}

	// plain text and per-line offsets into it, so each match's context is
	// sliced around that match rather than the page's first occurrence
	var plain []rune
	var lineStarts [][]int
	if opts.IncludeContext {
		plain, lineStarts = pageRunes(st)
	}

	var matches []domain.SearchMatch
	for bi, block := range st.Blocks {
		for li, line := range block.Lines {
			lineRunes := make([]rune, len(line.Chars))
			for i, c := range line.Chars {
				lineRunes[i] = c.Char
			}
			hay := lineRunes
			if opts.CaseInsensitive {
				hay = foldRunes(lineRunes)
			}
			for start := 0; start+len(queryRunes) <= len(hay); start++ {
				if !runesEqual(hay[start:start+len(queryRunes)], queryRunes) {
					continue
				}
				if opts.WholeWord && !wholeWordAt(hay, start, len(queryRunes)) {
					continue
				}
				end := start + len(queryRunes)
				m := domain.SearchMatch{
					ItemIndex: st.ItemIndex,
					BBox:      normalize(charUnion(line.Chars[start:end]), st.Width, st.Height),
				}
				if opts.IncludeContext {
					m.Context = sliceContext(plain, lineStarts[bi][li]+start, len(queryRunes), opts.ContextLength)
				}
				matches = append(matches, m)
				if len(matches) >= limit {
					return matches
				}
				start = end - 1
			}
		}
	}
	return matches
}

// pageRunes renders the page plain text as runes, in the same shape
// PlainText produces, along with each line's start offset into it.
func pageRunes(st *domain.StructuredText) ([]rune, [][]int) {
	var rs []rune
	starts := make([][]int, len(st.Blocks))
	for bi, b := range st.Blocks {
		if bi > 0 {
			rs = append(rs, '\n')
		}
		starts[bi] = make([]int, len(b.Lines))
		for li, ln := range b.Lines {
			starts[bi][li] = len(rs)
			rs = append(rs, []rune(ln.Text)...)
			rs = append(rs, '\n')
		}
	}
	return rs, starts
}

// sliceContext cuts the window of contextLength runes on each side of the
// match at rune offset at (n runes long) out of the page plain text.
func sliceContext(plain []rune, at, n, contextLength int) string {
	if contextLength <= 0 {
		contextLength = DefaultContextLength
	}
	lo := at - contextLength
	if lo < 0 {
		lo = 0
	}
	hi := at + n + contextLength
	if hi > len(plain) {
		hi = len(plain)
	}
	if lo >= hi {
		return ""
	}
	return string(plain[lo:hi])
}

// wholeWordAt reports whether hay[start:start+n] is bounded by
// non-identifier characters (identifier: letter, digit, underscore).
func wholeWordAt(hay []rune, start, n int) bool {
	if start > 0 && isIdent(hay[start-1]) {
		return false
	}
	if end := start + n; end < len(hay) && isIdent(hay[end]) {
		return false
	}
	return true
}

func isIdent(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func foldRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// charUnion unions the boxes of a char run.
func charUnion(chars []domain.CharPosition) domain.BoundingBox {
	var box domain.BoundingBox
	for i, c := range chars {
		cb := domain.BoundingBox{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
		if i == 0 {
			box = cb
			continue
		}
		expandBBox(&box, cb)
	}
	return box
}

// normalize converts a page-space box into [0,1] coordinates.
func normalize(b domain.BoundingBox, pageWidth, pageHeight float64) domain.BoundingBox {
	if pageWidth <= 0 || pageHeight <= 0 {
		return b
	}
	return domain.BoundingBox{
		X:      b.X / pageWidth,
		Y:      b.Y / pageHeight,
		Width:  b.Width / pageWidth,
		Height: b.Height / pageHeight,
	}
}
