/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package opf

import (
	"testing"
)

const containerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const packageOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>The Test Book</dc:title>
    <dc:creator opf:role="aut" opf:file-as="Author, Test" xmlns:opf="http://www.idpf.org/2007/opf">Test Author</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid">urn:uuid:1234</dc:identifier>
    <dc:publisher>Test House</dc:publisher>
    <dc:subject>Fiction</dc:subject>
    <dc:subject>Testing</dc:subject>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="ch1" href="Text/chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="Text/chapter2.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover-img" href="Images/cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const ncxXML = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1" playOrder="1">
      <navLabel><text>Chapter 1</text></navLabel>
      <content src="Text/chapter1.xhtml"/>
      <navPoint id="n1a" playOrder="2">
        <navLabel><text>Section 1.1</text></navLabel>
        <content src="Text/chapter1.xhtml#s1"/>
      </navPoint>
    </navPoint>
    <navPoint id="n2" playOrder="3">
      <navLabel><text>Chapter 2</text></navLabel>
      <content src="Text/chapter2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

const navXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<body>
  <nav epub:type="toc">
    <ol>
      <li><a href="Text/chapter1.xhtml">Chapter 1</a>
        <ol><li><a href="Text/chapter1.xhtml#s1">Section 1.1</a></li></ol>
      </li>
      <li><a href="Text/chapter2.xhtml">Chapter 2</a></li>
    </ol>
  </nav>
</body>
</html>`

func TestParseContainer(t *testing.T) {
	got, err := ParseContainer([]byte(containerXML))
	if err != nil {
		t.Fatalf("parse container: %v", err)
	}
	if got != "OEBPS/content.opf" {
		t.Fatalf("opf path = %q", got)
	}
}

func TestParsePackage(t *testing.T) {
	p, err := ParsePackage([]byte(packageOPF), "OEBPS/content.opf")
	if err != nil {
		t.Fatalf("parse package: %v", err)
	}
	if p.Version != "3.0" {
		t.Fatalf("version = %q", p.Version)
	}
	md := p.Metadata
	if md.Title != "The Test Book" || md.Language != "en" || md.Identifier != "urn:uuid:1234" {
		t.Fatalf("metadata = %+v", md)
	}
	if len(md.Creators) != 1 || md.Creators[0].Name != "Test Author" || md.Creators[0].Role != "aut" || md.Creators[0].FileAs != "Author, Test" {
		t.Fatalf("creators = %+v", md.Creators)
	}
	if len(md.Subjects) != 2 {
		t.Fatalf("subjects = %v", md.Subjects)
	}
	if md.CoverHref != "OEBPS/Images/cover.jpg" {
		t.Fatalf("cover = %q", md.CoverHref)
	}
	if len(p.Spine) != 2 || p.Spine[0] != "OEBPS/Text/chapter1.xhtml" || p.Spine[1] != "OEBPS/Text/chapter2.xhtml" {
		t.Fatalf("spine = %v", p.Spine)
	}
	if p.NcxHref != "OEBPS/toc.ncx" {
		t.Fatalf("ncx = %q", p.NcxHref)
	}
	if p.NavHref != "OEBPS/nav.xhtml" {
		t.Fatalf("nav = %q", p.NavHref)
	}
	if i, ok := p.SpineIndexOf("OEBPS/Text/chapter2.xhtml"); !ok || i != 1 {
		t.Fatalf("spine index = %d, %v", i, ok)
	}
}

func TestParseNCX(t *testing.T) {
	entries, err := ParseNCX([]byte(ncxXML), "OEBPS")
	if err != nil {
		t.Fatalf("parse ncx: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Label != "Chapter 1" || entries[0].Href != "OEBPS/Text/chapter1.xhtml" {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if entries[0].PlayOrder == nil || *entries[0].PlayOrder != 1 {
		t.Fatalf("play order = %v", entries[0].PlayOrder)
	}
	if len(entries[0].Children) != 1 || entries[0].Children[0].Label != "Section 1.1" {
		t.Fatalf("children = %+v", entries[0].Children)
	}
}

func TestParseNav(t *testing.T) {
	entries, err := ParseNav([]byte(navXHTML), "OEBPS")
	if err != nil {
		t.Fatalf("parse nav: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Label != "Chapter 1" || entries[0].Href != "OEBPS/Text/chapter1.xhtml" {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if len(entries[0].Children) != 1 || entries[0].Children[0].Href != "OEBPS/Text/chapter1.xhtml#s1" {
		t.Fatalf("children = %+v", entries[0].Children)
	}
}

func TestParsePackageEmptySpineFails(t *testing.T) {
	opf := `<package version="2.0"><metadata/><manifest/><spine/></package>`
	if _, err := ParsePackage([]byte(opf), "content.opf"); err == nil {
		t.Fatal("expected error for empty spine")
	}
}
