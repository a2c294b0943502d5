/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pdfbackend

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/aledro/docreaderd/internal/domain"
)

// AcroForm field flag bits (PDF 32000-1, table 221/226/228).
const (
	ffReadOnly   = 1 << 0
	ffRequired   = 1 << 1
	ffMultiline  = 1 << 12
	ffPassword   = 1 << 13
	ffRadio      = 1 << 15
	ffPushbutton = 1 << 16
	ffCombo      = 1 << 17
)

// GetFormInfo enumerates interactive form fields by scanning the raw PDF
// object stream for field dictionaries (/FT entries). Fields packed into
// compressed object streams are not visible to the scan; the rendering
// library offers no form API, so uncompressed dictionaries are what we get.
func (b *Backend) GetFormInfo() ([]domain.FormField, error) {
	raw, err := b.h.Bytes()
	if err != nil {
		return nil, err
	}
	pageH, pageW := mediaBoxSize(raw)
	var fields []domain.FormField
	for _, dict := range fieldDicts(raw) {
		f := parseField(dict, pageW, pageH)
		if f != nil {
			fields = append(fields, *f)
		}
	}
	return fields, nil
}

// GetSignatures reports every signature field. Validation status is always
// NotVerified; cryptographic verification is a stated non-goal.
func (b *Backend) GetSignatures() ([]domain.SignatureInfo, error) {
	fields, err := b.GetFormInfo()
	if err != nil {
		return nil, err
	}
	var sigs []domain.SignatureInfo
	for _, f := range fields {
		if f.Type == "signature" {
			sigs = append(sigs, domain.SignatureInfo{FieldName: f.Name, Status: domain.ValidationNotVerified})
		}
	}
	return sigs, nil
}

// ScreenRect converts a PDF-space /Rect [x0 y0 x1 y1] (origin bottom-left)
// into a screen-space box normalized to [0,1] with origin top-left:
// screenY = pageHeight - pdfTopY. This is the single place the coordinate
// inversion happens.
func ScreenRect(x0, y0, x1, y1, pageWidth, pageHeight float64) domain.BoundingBox {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	box := domain.BoundingBox{
		X:      x0,
		Y:      pageHeight - y1,
		Width:  x1 - x0,
		Height: y1 - y0,
	}
	if pageWidth > 0 && pageHeight > 0 {
		box.X /= pageWidth
		box.Y /= pageHeight
		box.Width /= pageWidth
		box.Height /= pageHeight
	}
	return box
}

// mediaBoxSize finds the first /MediaBox in the raw bytes. Defaults to US
// Letter when absent.
func mediaBoxSize(raw []byte) (height, width float64) {
	width, height = 612, 792
	idx := bytes.Index(raw, []byte("/MediaBox"))
	if idx < 0 {
		return height, width
	}
	nums := parseNumberArray(raw[idx:])
	if len(nums) == 4 {
		width = nums[2] - nums[0]
		height = nums[3] - nums[1]
	}
	return height, width
}

// fieldDicts returns the enclosing << ... >> dictionary around each /FT
// occurrence.
func fieldDicts(raw []byte) [][]byte {
	var dicts [][]byte
	search := raw
	offset := 0
	for {
		idx := bytes.Index(search, []byte("/FT"))
		if idx < 0 {
			break
		}
		abs := offset + idx
		if d := enclosingDict(raw, abs); d != nil {
			dicts = append(dicts, d)
		}
		offset = abs + 3
		search = raw[offset:]
	}
	return dicts
}

// enclosingDict walks back to the nearest unbalanced "<<" before pos and
// forward to its matching ">>".
func enclosingDict(raw []byte, pos int) []byte {
	depth := 0
	start := -1
	for i := pos; i > 0; i-- {
		if raw[i-1] == '>' && raw[i] == '>' {
			depth++
			i--
			continue
		}
		if raw[i-1] == '<' && raw[i] == '<' {
			if depth == 0 {
				start = i - 1
				break
			}
			depth--
			i--
		}
	}
	if start < 0 {
		return nil
	}
	depth = 0
	for i := start; i < len(raw)-1; i++ {
		if raw[i] == '<' && raw[i+1] == '<' {
			depth++
			i++
			continue
		}
		if raw[i] == '>' && raw[i+1] == '>' {
			depth--
			i++
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return nil
}

// parseField interprets one field dictionary.
func parseField(dict []byte, pageW, pageH float64) *domain.FormField {
	ft := nameAfter(dict, "/FT")
	if ft == "" {
		return nil
	}
	flags := intAfter(dict, "/Ff")
	f := &domain.FormField{
		Name:      stringAfter(dict, "/T"),
		ReadOnly:  flags&ffReadOnly != 0,
		Required:  flags&ffRequired != 0,
		Multiline: flags&ffMultiline != 0,
		Password:  flags&ffPassword != 0,
		MaxLength: intAfter(dict, "/MaxLen"),
		Value:     stringAfter(dict, "/V"),
	}
	switch ft {
	case "Tx":
		f.Type = "text"
	case "Btn":
		switch {
		case flags&ffPushbutton != 0:
			f.Type = "button"
		case flags&ffRadio != 0:
			f.Type = "radio"
		default:
			f.Type = "checkbox"
		}
	case "Ch":
		if flags&ffCombo != 0 {
			f.Type = "dropdown"
		} else {
			f.Type = "listbox"
		}
		f.Options = stringArrayAfter(dict, "/Opt")
	case "Sig":
		f.Type = "signature"
	default:
		return nil
	}
	if idx := bytes.Index(dict, []byte("/Rect")); idx >= 0 {
		if nums := parseNumberArray(dict[idx:]); len(nums) == 4 {
			rect := ScreenRect(nums[0], nums[1], nums[2], nums[3], pageW, pageH)
			f.Rect = &rect
		}
	}
	return f
}

// nameAfter reads the /Name token that follows key.
func nameAfter(dict []byte, key string) string {
	idx := bytes.Index(dict, []byte(key))
	if idx < 0 {
		return ""
	}
	rest := dict[idx+len(key):]
	rest = bytes.TrimLeft(rest, " \t\r\n")
	if len(rest) == 0 || rest[0] != '/' {
		return ""
	}
	rest = rest[1:]
	end := 0
	for end < len(rest) && !isDelim(rest[end]) {
		end++
	}
	return string(rest[:end])
}

// stringAfter reads the (literal string) that follows key.
func stringAfter(dict []byte, key string) string {
	// skip occurrences where key is only the prefix of a longer name
	// ("/T" inside "/Tx")
	off := 0
	for {
		idx := bytes.Index(dict[off:], []byte(key))
		if idx < 0 {
			return ""
		}
		off += idx + len(key)
		if off >= len(dict) || isDelim(dict[off]) {
			break
		}
	}
	rest := bytes.TrimLeft(dict[off:], " \t\r\n")
	if len(rest) == 0 || rest[0] != '(' {
		return ""
	}
	return readLiteralString(rest)
}

// readLiteralString decodes one ( ... ) literal, honoring \ escapes and
// balanced parentheses.
func readLiteralString(b []byte) string {
	var sb strings.Builder
	depth := 0
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch c {
		case '\\':
			if i+1 < len(b) {
				i++
				sb.WriteByte(b[i])
			}
		case '(':
			depth++
			if depth > 1 {
				sb.WriteByte(c)
			}
		case ')':
			depth--
			if depth == 0 {
				return sb.String()
			}
			sb.WriteByte(c)
		default:
			if depth > 0 {
				sb.WriteByte(c)
			}
		}
	}
	return sb.String()
}

// intAfter reads the integer that follows key.
func intAfter(dict []byte, key string) int {
	idx := bytes.Index(dict, []byte(key))
	if idx < 0 {
		return 0
	}
	rest := bytes.TrimLeft(dict[idx+len(key):], " \t\r\n")
	end := 0
	for end < len(rest) && (rest[end] == '-' || rest[end] >= '0' && rest[end] <= '9') {
		end++
	}
	n, _ := strconv.Atoi(string(rest[:end]))
	return n
}

// stringArrayAfter reads [ (a) (b) ... ] after key.
func stringArrayAfter(dict []byte, key string) []string {
	idx := bytes.Index(dict, []byte(key))
	if idx < 0 {
		return nil
	}
	rest := bytes.TrimLeft(dict[idx+len(key):], " \t\r\n")
	if len(rest) == 0 || rest[0] != '[' {
		return nil
	}
	var out []string
	for i := 1; i < len(rest); i++ {
		switch rest[i] {
		case ']':
			return out
		case '(':
			s := readLiteralString(rest[i:])
			out = append(out, s)
			// skip past the closing paren
			depth := 0
			for ; i < len(rest); i++ {
				if rest[i] == '\\' {
					i++
					continue
				}
				if rest[i] == '(' {
					depth++
				}
				if rest[i] == ')' {
					depth--
					if depth == 0 {
						break
					}
				}
			}
		}
	}
	return out
}

// parseNumberArray reads the first [ n n n n ] after the start of b.
func parseNumberArray(b []byte) []float64 {
	open := bytes.IndexByte(b, '[')
	if open < 0 {
		return nil
	}
	close_ := bytes.IndexByte(b[open:], ']')
	if close_ < 0 {
		return nil
	}
	var nums []float64
	for _, tok := range strings.Fields(string(b[open+1 : open+close_])) {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil
		}
		nums = append(nums, f)
	}
	return nums
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '/', '(', ')', '<', '>', '[', ']':
		return true
	}
	return false
}
