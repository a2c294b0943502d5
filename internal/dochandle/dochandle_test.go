/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package dochandle

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/aledro/docreaderd/internal/domain"
)

func epubContainerBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	// The mimetype entry must be first and stored so the marker lands inside
	// the sniff window.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("create mimetype: %v", err)
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		t.Fatalf("write mimetype: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func plainZipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "a.txt", Method: zip.Store})
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestDetectFormatPDF(t *testing.T) {
	if got := DetectFormat([]byte("%PDF-1.7\n...")); got != domain.FormatPDF {
		t.Fatalf("expected FormatPDF, got %v", got)
	}
}

func TestDetectFormatEpub(t *testing.T) {
	if got := DetectFormat(epubContainerBytes(t)); got != domain.FormatEPUB {
		t.Fatalf("expected FormatEPUB, got %v", got)
	}
}

func TestDetectFormatPlainZipIsUnknown(t *testing.T) {
	if got := DetectFormat(plainZipBytes(t)); got != domain.FormatUnknown {
		t.Fatalf("expected FormatUnknown for non-epub zip, got %v", got)
	}
}

func TestDetectFormatEmpty(t *testing.T) {
	if got := DetectFormat(nil); got != domain.FormatUnknown {
		t.Fatalf("expected FormatUnknown for empty buffer, got %v", got)
	}
}

func TestFromBytesRejectsUnknownFormat(t *testing.T) {
	_, err := FromBytes([]byte("plain text"), "doc-1")
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindUnsupportedFormat {
		t.Fatalf("expected UnsupportedFormat, got %v", err)
	}
}
