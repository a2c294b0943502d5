/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package highlight

import (
	"strings"
	"testing"

	"github.com/aledro/docreaderd/internal/domain"
)

func TestSanitizeRemovesScriptAndStyle(t *testing.T) {
	in := `<html><head><style>body { color: red }</style><script src="evil.js"></script></head>
<body><p>keep me</p><script>alert("xss")</script></body></html>`
	out := Sanitize(in)
	if strings.Contains(out, "script") || strings.Contains(out, "alert") || strings.Contains(out, "color: red") {
		t.Fatalf("script/style leaked: %q", out)
	}
	if !strings.Contains(out, "<p>keep me</p>") {
		t.Fatalf("content lost: %q", out)
	}
}

func TestSanitizeStripsEventHandlers(t *testing.T) {
	in := `<div onclick="steal()" onmouseover="track()" data-keep="yes" class="a">x</div><img src="ok.png" onerror="p0wn()">`
	out := Sanitize(in)
	if strings.Contains(strings.ToLower(out), "on") && (strings.Contains(out, "onclick") || strings.Contains(out, "onerror") || strings.Contains(out, "onmouseover")) {
		t.Fatalf("handler attribute leaked: %q", out)
	}
	if !strings.Contains(out, `data-keep="yes"`) || !strings.Contains(out, `class="a"`) {
		t.Fatalf("benign attributes lost: %q", out)
	}
	if !strings.Contains(out, `src="ok.png"`) {
		t.Fatalf("benign src lost: %q", out)
	}
}

func TestSanitizeDropsJavascriptURLs(t *testing.T) {
	in := `<a href=" JavaScript:alert(1)">link</a><img src="javascript:bad()"><a href="real.xhtml">ok</a>`
	out := Sanitize(in)
	if strings.Contains(strings.ToLower(out), "javascript:") {
		t.Fatalf("javascript url leaked: %q", out)
	}
	if !strings.Contains(out, `href="real.xhtml"`) {
		t.Fatalf("benign href lost: %q", out)
	}
}

func annotationWithQuote(id, quote string) domain.Annotation {
	return domain.Annotation{
		ID:     id,
		BookID: "b",
		Type:   domain.AnnotationHighlight,
		Target: domain.AnnotationTarget{
			Source:    "ch1.xhtml",
			Selectors: []domain.Selector{{Kind: domain.SelectorTextQuote, Exact: quote}},
		},
		Style: &domain.AnnotationStyle{Color: "#ffeb3b", Opacity: 0.35},
	}
}

func TestInjectWrapsQuote(t *testing.T) {
	in := `<p>It was the best of times, it was the worst of times.</p>`
	res := Inject(in, []domain.Annotation{annotationWithQuote("a1", "best of times")})
	if len(res.FailedAnnotations) != 0 {
		t.Fatalf("failed = %v", res.FailedAnnotations)
	}
	if !strings.Contains(res.HTML, `class="highlight highlight-highlight"`) {
		t.Fatalf("span class missing: %q", res.HTML)
	}
	if !strings.Contains(res.HTML, `data-annotation-id="a1"`) {
		t.Fatalf("annotation id missing: %q", res.HTML)
	}
	if !strings.Contains(res.HTML, `background-color: #ffeb3b`) || !strings.Contains(res.HTML, `opacity: 0.35`) {
		t.Fatalf("style missing: %q", res.HTML)
	}
	if !strings.Contains(res.HTML, `>best of times</span>`) {
		t.Fatalf("quote not wrapped: %q", res.HTML)
	}
}

func TestInjectReportsFailures(t *testing.T) {
	in := `<p>some text</p>`
	noQuote := domain.Annotation{
		ID: "a-progress", BookID: "b", Type: domain.AnnotationBookmark,
		Target: domain.AnnotationTarget{
			Source:    "ch1.xhtml",
			Selectors: []domain.Selector{{Kind: domain.SelectorProgression, Value: 0.5}},
		},
	}
	missing := annotationWithQuote("a-missing", "not present anywhere")
	res := Inject(in, []domain.Annotation{noQuote, missing})
	if len(res.FailedAnnotations) != 2 {
		t.Fatalf("failed = %v", res.FailedAnnotations)
	}
	if res.HTML != in {
		t.Fatalf("html changed: %q", res.HTML)
	}
}

func TestInjectUnderlineTypeClass(t *testing.T) {
	a := annotationWithQuote("a2", "words")
	a.Type = domain.AnnotationUnderline
	res := Inject(`<p>some words here</p>`, []domain.Annotation{a})
	if !strings.Contains(res.HTML, `highlight-underline`) {
		t.Fatalf("type class missing: %q", res.HTML)
	}
}

func TestRewriteURLs(t *testing.T) {
	in := `<img src="Images/fig1.png"><link rel="stylesheet" href="../Styles/main.css"><img src="https://cdn.example.com/x.png"><a href="ch2.xhtml">next</a>`
	out := RewriteURLs(in, "/books/b1/resources/")
	if !strings.Contains(out, `src="/books/b1/resources/Images/fig1.png"`) {
		t.Fatalf("img src not rewritten: %q", out)
	}
	if !strings.Contains(out, `href="/books/b1/resources/../Styles/main.css"`) {
		t.Fatalf("link href not rewritten: %q", out)
	}
	if !strings.Contains(out, `src="https://cdn.example.com/x.png"`) {
		t.Fatalf("absolute url touched: %q", out)
	}
	if !strings.Contains(out, `href="ch2.xhtml"`) {
		t.Fatalf("anchor href must not be rewritten: %q", out)
	}
}

func TestSanitizeThenInjectPipeline(t *testing.T) {
	in := `<p onclick="x()">quote me</p><script>bad()</script>`
	clean := Sanitize(in)
	res := Inject(clean, []domain.Annotation{annotationWithQuote("a1", "quote me")})
	if strings.Contains(res.HTML, "script") || strings.Contains(res.HTML, "onclick") {
		t.Fatalf("unsafe content survived: %q", res.HTML)
	}
	if !strings.Contains(res.HTML, `data-annotation-id="a1"`) {
		t.Fatalf("injection failed: %q", res.HTML)
	}
}
