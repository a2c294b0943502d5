/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package opf parses the EPUB package machinery: META-INF/container.xml,
// the OPF package file (Dublin Core metadata, manifest, spine), and both
// table-of-contents flavors (EPUB 2 NCX and EPUB 3 NAV). It operates on raw
// XML/XHTML bytes so it can be exercised without the rendering library and
// shared with non-server builds.
package opf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/language"

	"github.com/aledro/docreaderd/internal/domain"
)

// media types that matter for TOC discovery
const (
	MediaTypeNCX   = "application/x-dtbncx+xml"
	MediaTypeXHTML = "application/xhtml+xml"
)

// ManifestItem is one entry of the OPF manifest.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// Package is the parsed OPF package file, resolved into flat fields.
type Package struct {
	Version  string
	Metadata domain.DocumentMetadata

	Manifest []ManifestItem
	// Spine lists manifest hrefs in reading order, already resolved against
	// the package base directory.
	Spine []string

	// NcxHref / NavHref are the package-relative locations of the TOC
	// documents when declared; empty otherwise.
	NcxHref string
	NavHref string

	// BaseDir is the directory of the OPF file inside the container, used
	// to resolve manifest hrefs.
	BaseDir string
}

// ParseContainer extracts the OPF package path from META-INF/container.xml.
func ParseContainer(data []byte) (string, error) {
	var c struct {
		Rootfiles struct {
			Rootfile []struct {
				FullPath  string `xml:"full-path,attr"`
				MediaType string `xml:"media-type,attr"`
			} `xml:"rootfile"`
		} `xml:"rootfiles"`
	}
	if err := decodeXML(data, &c); err != nil {
		return "", domain.Wrap(domain.KindParseError, err, "parse container.xml")
	}
	for _, rf := range c.Rootfiles.Rootfile {
		if rf.MediaType == "" || rf.MediaType == "application/oebps-package+xml" {
			if rf.FullPath != "" {
				return rf.FullPath, nil
			}
		}
	}
	return "", domain.NewError(domain.KindParseError, "container.xml names no package file")
}

// packageXML mirrors the OPF structure without binding namespaces strictly;
// real-world EPUBs are frequently sloppy about them.
type packageXML struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Titles      []string `xml:"title"`
		Languages   []string `xml:"language"`
		Identifiers []string `xml:"identifier"`
		Publishers  []string `xml:"publisher"`
		Description []string `xml:"description"`
		Dates       []string `xml:"date"`
		Rights      []string `xml:"rights"`
		Subjects    []string `xml:"subject"`
		Creators    []struct {
			Value  string `xml:",chardata"`
			Role   string `xml:"role,attr"`
			FileAs string `xml:"file-as,attr"`
		} `xml:"creator"`
		Meta []struct {
			Name     string `xml:"name,attr"`
			Content  string `xml:"content,attr"`
			Property string `xml:"property,attr"`
			Value    string `xml:",chardata"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// ParsePackage parses OPF bytes. opfPath is the container path of the OPF
// file itself and provides the base directory for href resolution.
func ParsePackage(data []byte, opfPath string) (*Package, error) {
	var px packageXML
	if err := decodeXML(data, &px); err != nil {
		return nil, domain.Wrap(domain.KindParseError, err, "parse OPF package")
	}

	p := &Package{
		Version: px.Version,
		BaseDir: path.Dir(opfPath),
	}
	if p.BaseDir == "." {
		p.BaseDir = ""
	}

	md := &p.Metadata
	md.Title = first(px.Metadata.Titles)
	md.Language = normalizeLanguage(first(px.Metadata.Languages))
	md.Identifier = first(px.Metadata.Identifiers)
	md.Publisher = first(px.Metadata.Publishers)
	md.Description = first(px.Metadata.Description)
	md.Date = first(px.Metadata.Dates)
	md.Rights = first(px.Metadata.Rights)
	for _, s := range px.Metadata.Subjects {
		if s = strings.TrimSpace(s); s != "" {
			md.Subjects = append(md.Subjects, s)
		}
	}
	for _, c := range px.Metadata.Creators {
		name := strings.TrimSpace(c.Value)
		if name == "" {
			continue
		}
		md.Creators = append(md.Creators, domain.Creator{Name: name, Role: c.Role, FileAs: c.FileAs})
	}

	byID := make(map[string]ManifestItem, len(px.Manifest.Items))
	var coverID string
	for _, m := range px.Metadata.Meta {
		if m.Name == "cover" {
			coverID = m.Content
		}
	}
	for _, it := range px.Manifest.Items {
		item := ManifestItem{ID: it.ID, Href: it.Href, MediaType: it.MediaType, Properties: it.Properties}
		p.Manifest = append(p.Manifest, item)
		byID[it.ID] = item
		switch {
		case it.MediaType == MediaTypeNCX:
			p.NcxHref = p.resolve(it.Href)
		case strings.Contains(it.Properties, "nav"):
			p.NavHref = p.resolve(it.Href)
		case it.ID == coverID || strings.Contains(it.Properties, "cover-image"):
			md.CoverHref = p.resolve(it.Href)
		}
	}
	// An EPUB 2 spine may name the NCX via the toc attribute instead.
	if p.NcxHref == "" && px.Spine.Toc != "" {
		if it, ok := byID[px.Spine.Toc]; ok {
			p.NcxHref = p.resolve(it.Href)
		}
	}

	for _, ref := range px.Spine.ItemRefs {
		it, ok := byID[ref.IDRef]
		if !ok {
			continue
		}
		p.Spine = append(p.Spine, p.resolve(it.Href))
	}
	if len(p.Spine) == 0 {
		return nil, domain.NewError(domain.KindParseError, "OPF spine is empty")
	}
	return p, nil
}

// SpineIndexOf returns the 0-based spine position of a resolved href.
func (p *Package) SpineIndexOf(href string) (int, bool) {
	for i, s := range p.Spine {
		if s == href {
			return i, true
		}
	}
	return 0, false
}

func (p *Package) resolve(href string) string {
	href = strings.TrimPrefix(href, "./")
	if p.BaseDir == "" {
		return href
	}
	return p.BaseDir + "/" + href
}

// ncxNavPoint is the recursive NCX entry shape.
type ncxNavPoint struct {
	PlayOrder string `xml:"playOrder,attr"`
	NavLabel  struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// ParseNCX converts an EPUB 2 NCX document into TOC entries. baseDir is the
// container directory of the NCX file, used to resolve content srcs.
func ParseNCX(data []byte, baseDir string) ([]domain.TocEntry, error) {
	var ncx struct {
		NavMap struct {
			NavPoints []ncxNavPoint `xml:"navPoint"`
		} `xml:"navMap"`
	}
	if err := decodeXML(data, &ncx); err != nil {
		return nil, domain.Wrap(domain.KindParseError, err, "parse NCX")
	}
	return ncxEntries(ncx.NavMap.NavPoints, baseDir), nil
}

func ncxEntries(points []ncxNavPoint, baseDir string) []domain.TocEntry {
	var out []domain.TocEntry
	for _, pt := range points {
		label := strings.TrimSpace(pt.NavLabel.Text)
		href := resolveRelative(baseDir, pt.Content.Src)
		if label == "" && href == "" {
			continue
		}
		e := domain.TocEntry{Label: label, Href: href}
		if po, err := strconv.Atoi(strings.TrimSpace(pt.PlayOrder)); err == nil {
			e.PlayOrder = &po
		}
		e.Children = ncxEntries(pt.Children, baseDir)
		out = append(out, e)
	}
	return out
}

// ParseNav extracts TOC entries from an EPUB 3 NAV document: the first
// <nav epub:type="toc"> (or the first <nav> at all) is walked for its
// nested list structure.
func ParseNav(data []byte, baseDir string) ([]domain.TocEntry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, domain.Wrap(domain.KindParseError, err, "parse NAV document")
	}
	nav := findNav(doc)
	if nav == nil {
		return nil, domain.NewError(domain.KindParseError, "NAV document has no nav element")
	}
	list := findChild(nav, "ol")
	if list == nil {
		return nil, nil
	}
	return navEntries(list, baseDir), nil
}

// findNav prefers a nav with epub:type="toc"; falls back to the first nav.
func findNav(n *html.Node) *html.Node {
	var first, toc *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if toc != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "nav" {
			if first == nil {
				first = n
			}
			for _, a := range n.Attr {
				if (a.Key == "epub:type" || a.Key == "type") && strings.Contains(a.Val, "toc") {
					toc = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	if toc != nil {
		return toc
	}
	return first
}

func navEntries(ol *html.Node, baseDir string) []domain.TocEntry {
	var out []domain.TocEntry
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		var e domain.TocEntry
		if a := findChild(li, "a"); a != nil {
			e.Label = strings.TrimSpace(nodeText(a))
			for _, attr := range a.Attr {
				if attr.Key == "href" {
					e.Href = resolveRelative(baseDir, attr.Val)
				}
			}
		} else if span := findChild(li, "span"); span != nil {
			e.Label = strings.TrimSpace(nodeText(span))
		}
		if sub := findChild(li, "ol"); sub != nil {
			e.Children = navEntries(sub, baseDir)
		}
		if e.Label == "" && e.Href == "" && len(e.Children) == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

func findChild(n *html.Node, name string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == name {
			return c
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// resolveRelative joins a TOC src against its document's directory and drops
// any fragment for path purposes only when the src is empty.
func resolveRelative(baseDir, src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	src = strings.TrimPrefix(src, "./")
	if baseDir == "" || baseDir == "." {
		return src
	}
	return path.Clean(baseDir + "/" + src)
}

// decodeXML unmarshals with a charset-aware reader so non-UTF-8 packages
// (declared via <?xml encoding?>) still parse.
func decodeXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		r, err := charset.NewReaderLabel(label, input)
		if err != nil {
			return nil, fmt.Errorf("charset %q: %w", label, err)
		}
		return r, nil
	}
	return dec.Decode(v)
}

// normalizeLanguage canonicalizes a dc:language value ("EN-us" -> "en-US").
// Unparseable tags pass through unchanged; authors write anything.
func normalizeLanguage(s string) string {
	if s == "" {
		return ""
	}
	tag, err := language.Parse(s)
	if err != nil {
		return s
	}
	return tag.String()
}

func first(ss []string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
