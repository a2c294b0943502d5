/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package highlight produces server-rendered EPUB chapter HTML with inline
// highlight markers: a streaming sanitizer pass (scripts, styles, event
// handlers, javascript: URLs) followed by text-quote injection of highlight
// spans, plus URL rewriting so the browser resolves chapter resources
// through the server.
package highlight

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/aledro/docreaderd/internal/domain"
)

// eventAttrs are stripped from every element. Any attribute with an "on"
// prefix is handler-shaped and goes too.
var eventAttrs = map[string]bool{
	"onclick":     true,
	"onload":      true,
	"onerror":     true,
	"onmouseover": true,
}

// Sanitize removes script and style elements entirely, strips event
// handler attributes, and drops href/src values with a javascript: scheme.
func Sanitize(chapterHTML string) string {
	var sb strings.Builder
	tz := html.NewTokenizer(strings.NewReader(chapterHTML))
	skipDepth := 0

	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tz.Token()
			if tok.Data == "script" || tok.Data == "style" {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			writeTag(&sb, tok, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			tok := tz.Token()
			if tok.Data == "script" || tok.Data == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 {
				continue
			}
			sb.WriteString("</")
			sb.WriteString(tok.Data)
			sb.WriteString(">")
		default:
			if skipDepth > 0 {
				continue
			}
			sb.Write(tz.Raw())
		}
	}
	return sb.String()
}

// writeTag re-emits a start tag with unsafe attributes removed.
func writeTag(sb *strings.Builder, tok html.Token, selfClosing bool) {
	sb.WriteString("<")
	sb.WriteString(tok.Data)
	for _, a := range tok.Attr {
		key := strings.ToLower(a.Key)
		if eventAttrs[key] || strings.HasPrefix(key, "on") {
			continue
		}
		if (key == "href" || key == "src") && isJavascriptURL(a.Val) {
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(a.Key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.Val))
		sb.WriteString(`"`)
	}
	if selfClosing {
		sb.WriteString("/")
	}
	sb.WriteString(">")
}

func isJavascriptURL(v string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "javascript:")
}

// Result is the outcome of an injection pass.
type Result struct {
	HTML string
	// FailedAnnotations lists ids whose quote could not be located (or
	// that carry no text-quote selector at all; server-side CFI
	// resolution is out of scope).
	FailedAnnotations []string
}

// Inject wraps each annotation's text quote in a highlight span. The input
// should already be sanitized; injection is plain substring replacement
// over the chapter HTML.
func Inject(chapterHTML string, annotations []domain.Annotation) Result {
	res := Result{HTML: chapterHTML}
	for _, a := range annotations {
		quote := textQuote(a)
		if quote == "" {
			res.FailedAnnotations = append(res.FailedAnnotations, a.ID)
			continue
		}
		idx := strings.Index(res.HTML, quote)
		if idx < 0 {
			res.FailedAnnotations = append(res.FailedAnnotations, a.ID)
			continue
		}
		span := buildSpan(a, quote)
		res.HTML = res.HTML[:idx] + span + res.HTML[idx+len(quote):]
	}
	return res
}

// textQuote returns the exact text of the first text-quote selector.
func textQuote(a domain.Annotation) string {
	for _, sel := range a.Target.Selectors {
		if sel.Kind == domain.SelectorTextQuote || sel.Kind == domain.SelectorPdfTextQuote {
			return sel.Exact
		}
	}
	return ""
}

func buildSpan(a domain.Annotation, quote string) string {
	var sb strings.Builder
	sb.WriteString(`<span class="highlight highlight-`)
	sb.WriteString(string(a.Type))
	sb.WriteString(`" data-annotation-id="`)
	sb.WriteString(html.EscapeString(a.ID))
	sb.WriteString(`" data-annotation-type="`)
	sb.WriteString(string(a.Type))
	sb.WriteString(`"`)
	if style := inlineStyle(a.Style); style != "" {
		sb.WriteString(` style="`)
		sb.WriteString(style)
		sb.WriteString(`"`)
	}
	sb.WriteString(">")
	sb.WriteString(quote)
	sb.WriteString("</span>")
	return sb.String()
}

func inlineStyle(s *domain.AnnotationStyle) string {
	if s == nil {
		return ""
	}
	var parts []string
	if s.Color != "" {
		parts = append(parts, "background-color: "+s.Color)
	}
	if s.Opacity > 0 {
		parts = append(parts, fmt.Sprintf("opacity: %.2f", s.Opacity))
	}
	return strings.Join(parts, "; ")
}

// RewriteURLs prefixes relative img src and link href values with baseURL
// so the browser fetches chapter resources through the server.
func RewriteURLs(chapterHTML, baseURL string) string {
	baseURL = strings.TrimRight(baseURL, "/")
	var sb strings.Builder
	tz := html.NewTokenizer(strings.NewReader(chapterHTML))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := tz.Token()
			rewritten := false
			for i, a := range tok.Attr {
				key := strings.ToLower(a.Key)
				if tok.Data == "img" && key == "src" && isRelativeURL(a.Val) {
					tok.Attr[i].Val = baseURL + "/" + strings.TrimPrefix(a.Val, "./")
					rewritten = true
				}
				if tok.Data == "link" && key == "href" && isRelativeURL(a.Val) {
					tok.Attr[i].Val = baseURL + "/" + strings.TrimPrefix(a.Val, "./")
					rewritten = true
				}
			}
			if rewritten {
				writeTag(&sb, tok, tt == html.SelfClosingTagToken)
			} else {
				sb.Write(tz.Raw())
			}
		default:
			sb.Write(tz.Raw())
		}
	}
	return sb.String()
}

// isRelativeURL reports whether a URL has no scheme, no authority, and is
// not a pure fragment or data blob.
func isRelativeURL(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "//") {
		return false
	}
	if i := strings.Index(v, ":"); i >= 0 {
		// scheme-shaped prefix (http:, data:, javascript:, mailto:)
		if !strings.ContainsAny(v[:i], "/?#") {
			return false
		}
	}
	return true
}
