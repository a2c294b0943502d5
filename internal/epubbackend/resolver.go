/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package epubbackend

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// ResolveHref matches a requested chapter-relative href against the archive
// entry list. Authoring tools disagree about the container prefix (OEBPS/,
// OPS/, EPUB/) and about URL encoding, so resolution is fuzzy, in strict
// precedence order:
//
//  1. exact case-insensitive match
//  2. suffix match preceded by a path separator (entry ends with "/"+href)
//  3. basename-only match
//
// A bare suffix match is deliberately not offered: "OEBPSstyle.css" must
// never satisfy a request for "style.css". Returns "" when nothing matches.
func ResolveHref(entries []string, href string) string {
	href = NormalizeHref(href)
	if href == "" {
		return ""
	}
	lower := strings.ToLower(href)

	for _, e := range entries {
		if strings.ToLower(e) == lower {
			return e
		}
	}
	for _, e := range entries {
		le := strings.ToLower(e)
		if strings.HasSuffix(le, "/"+lower) {
			return e
		}
	}
	base := path.Base(lower)
	for _, e := range entries {
		if path.Base(strings.ToLower(e)) == base {
			return e
		}
	}
	return ""
}

// NormalizeHref URL-decodes, flips backslashes, strips a leading "./" or
// "/", and drops any #fragment.
func NormalizeHref(href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if dec, err := url.PathUnescape(href); err == nil {
		href = dec
	}
	href = strings.ReplaceAll(href, "\\", "/")
	href = strings.TrimPrefix(href, "./")
	href = strings.TrimPrefix(href, "/")
	return href
}

// epubMimeTypes covers the container formats the stdlib table misses or
// resolves differently across platforms.
var epubMimeTypes = map[string]string{
	".xhtml": "application/xhtml+xml",
	".html":  "text/html",
	".htm":   "text/html",
	".ncx":   "application/x-dtbncx+xml",
	".opf":   "application/oebps-package+xml",
	".css":   "text/css",
	".js":    "text/javascript",
	".svg":   "image/svg+xml",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
}

// MimeTypeFor guesses the MIME type from the resolved entry name.
func MimeTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if mt, ok := epubMimeTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}
