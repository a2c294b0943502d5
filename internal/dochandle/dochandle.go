/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package dochandle wraps the non-thread-safe MuPDF document (via go-fitz)
// behind a handle that is safe to share across goroutines. The native
// document is never retained between calls: every WithDoc opens a fresh
// document from the owned byte source (or file path) under the handle's
// lock and closes it before returning. The only long-lived cross-goroutine
// state is the immutable byte buffer and the lock itself.
package dochandle

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/gen2brain/go-fitz"

	"github.com/aledro/docreaderd/internal/domain"
)

// epubSniffLen bounds how far into a ZIP buffer the "epub" marker is looked
// for: local file header (30 bytes) + "mimetype" (8) + "application/epub+zip"
// (20) ends at byte 58 in a conforming container.
const epubSniffLen = 58

// DetectFormat inspects magic bytes and returns the document format, or
// FormatUnknown when the buffer is neither a PDF nor an EPUB container.
func DetectFormat(b []byte) domain.Format {
	if bytes.HasPrefix(b, []byte("%PDF")) {
		return domain.FormatPDF
	}
	if bytes.HasPrefix(b, []byte{0x50, 0x4B, 0x03, 0x04}) {
		n := len(b)
		if n > epubSniffLen {
			n = epubSniffLen
		}
		if bytes.Contains(b[:n], []byte("epub")) {
			return domain.FormatEPUB
		}
	}
	return domain.FormatUnknown
}

// Handle is the serialized access point to one document. Safe for
// concurrent use; operations on the same handle run one at a time.
type Handle struct {
	id     string
	format domain.Format

	// exactly one of data/path is set
	data []byte
	path string

	itemCount int

	mu sync.Mutex
}

// FromBytes validates that the buffer opens as a PDF or EPUB and returns a
// handle owning the buffer. The item count observed at open time is cached.
func FromBytes(b []byte, id string) (*Handle, error) {
	format := DetectFormat(b)
	if format == domain.FormatUnknown {
		return nil, domain.NewError(domain.KindUnsupportedFormat, "not a PDF or EPUB document")
	}
	h := &Handle{id: id, format: format, data: b}
	if err := h.probe(); err != nil {
		return nil, err
	}
	return h, nil
}

// FromPath is FromBytes for a file-backed source. The file is read per
// operation rather than held open.
func FromPath(path string, id string) (*Handle, error) {
	head := make([]byte, 128)
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.Wrap(domain.KindIoError, err, fmt.Sprintf("open %s", path))
	}
	n, _ := f.Read(head)
	_ = f.Close()
	format := DetectFormat(head[:n])
	if format == domain.FormatUnknown {
		return nil, domain.NewError(domain.KindUnsupportedFormat, "not a PDF or EPUB document")
	}
	h := &Handle{id: id, format: format, path: path}
	if err := h.probe(); err != nil {
		return nil, err
	}
	return h, nil
}

// probe opens the document once to verify it parses and to cache the item
// count.
func (h *Handle) probe() error {
	return h.WithDoc(func(doc *fitz.Document) error {
		h.itemCount = doc.NumPage()
		return nil
	})
}

// ID returns the document identifier the handle was created with.
func (h *Handle) ID() string { return h.id }

// Format returns the detected document format.
func (h *Handle) Format() domain.Format { return h.format }

// ItemCount returns the page count observed when the handle was opened. For
// reflowable EPUBs the backend layered above may report a different count
// after applying its own layout.
func (h *Handle) ItemCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.itemCount
}

// Bytes returns the owned byte buffer, reading the file when the handle is
// path-backed. Callers must not mutate the returned slice.
func (h *Handle) Bytes() ([]byte, error) {
	if h.data != nil {
		return h.data, nil
	}
	b, err := os.ReadFile(h.path)
	if err != nil {
		return nil, domain.Wrap(domain.KindIoError, err, fmt.Sprintf("read %s", h.path))
	}
	return b, nil
}

// WithDoc acquires the handle lock, opens a fresh native document, invokes
// f, and closes the document before releasing the lock. Library errors from
// f are surfaced verbatim; open failures map to ParseError.
func (h *Handle) WithDoc(f func(doc *fitz.Document) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var doc *fitz.Document
	var err error
	if h.data != nil {
		doc, err = fitz.NewFromMemory(h.data)
	} else {
		doc, err = fitz.New(h.path)
	}
	if err != nil {
		return domain.Wrap(domain.KindParseError, err, "open document")
	}
	defer func() { _ = doc.Close() }()
	return f(doc)
}

// WithDocMut is WithDoc for operations that mutate native document state
// (the EPUB layout step). Because the document is opened fresh each call
// the mutation never outlives f; it exists as a separate name so call
// sites document their intent.
func (h *Handle) WithDocMut(f func(doc *fitz.Document) error) error {
	return h.WithDoc(f)
}
