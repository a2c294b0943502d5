/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cfi

import (
	"sort"
	"testing"
)

func TestParseSimpleCfi(t *testing.T) {
	c, err := Parse("epubcfi(/6/4!/4/2)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(c.Path.Steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(c.Path.Steps))
	}
	if c.IsRange() {
		t.Fatal("did not expect a range")
	}
}

func TestParseCfiWithCharacterOffsetAndSpineIndex(t *testing.T) {
	// Seed scenario 1.
	c, err := Parse("epubcfi(/6/4!/4/2/1:42)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Step{
		{Type: StepElement, Index: 6},
		{Type: StepElement, Index: 4},
		{Type: StepIndirection},
		{Type: StepElement, Index: 4},
		{Type: StepElement, Index: 2},
		{Type: StepElement, Index: 1}, // the text node is a step of its own
	}
	if len(c.Path.Steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(c.Path.Steps))
	}
	for i, s := range want {
		if c.Path.Steps[i].Type != s.Type || (s.Type == StepElement && c.Path.Steps[i].Index != s.Index) {
			t.Fatalf("step %d = %+v, want %+v", i, c.Path.Steps[i], s)
		}
	}
	if c.Path.CharacterOffset == nil || c.Path.CharacterOffset.Offset != 42 {
		t.Fatalf("expected character offset 42, got %+v", c.Path.CharacterOffset)
	}
	if c.IsRange() {
		t.Fatal("did not expect a range")
	}
	idx, ok := c.SpineIndex()
	if !ok || idx != 1 {
		t.Fatalf("SpineIndex() = %d, %v; want 1, true", idx, ok)
	}
}

func TestParseCfiWithIDAssertion(t *testing.T) {
	c, err := Parse("epubcfi(/6/4[chapter1]!/4/2)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Path.Steps[1].IDAssertion != "chapter1" {
		t.Fatalf("id assertion = %q", c.Path.Steps[1].IDAssertion)
	}
}

func TestParseCfiWithTextAssertion(t *testing.T) {
	c, err := Parse("epubcfi(/6/4!/4/2/1:42[hello,world])")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ta := c.Path.CharacterOffset.Assertion
	if ta == nil || ta.Prefix != "hello" || ta.Suffix != "world" {
		t.Fatalf("text assertion = %+v", ta)
	}
}

func TestParseCfiRange(t *testing.T) {
	c, err := Parse("epubcfi(/6/4!/4/2,/1:0,/1:10)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !c.IsRange() {
		t.Fatal("expected a range")
	}
	if c.Range.Start.CharacterOffset.Offset != 0 || c.Range.End.CharacterOffset.Offset != 10 {
		t.Fatalf("range offsets = %+v", c.Range)
	}
}

func TestParseCfiTemporalAndSpatialOffset(t *testing.T) {
	c, err := Parse("epubcfi(/6/4!/4~12.5)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Path.TemporalOffset == nil || *c.Path.TemporalOffset != 12.5 {
		t.Fatalf("temporal offset = %v", c.Path.TemporalOffset)
	}

	c2, err := Parse("epubcfi(/6/4!/4@50.5:25.0)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c2.Path.SpatialOffset == nil || c2.Path.SpatialOffset.X != 50.5 || c2.Path.SpatialOffset.Y != 25 {
		t.Fatalf("spatial offset = %+v", c2.Path.SpatialOffset)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{
		"epubcfi(/6/4[chapter1]!/4/2/1:42)",
		"epubcfi(/6/4!/4/2,/1:0,/1:10)",
		"epubcfi(/6/4!/4~12.5)",
	} {
		c, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := c.String(); got != s {
			t.Fatalf("round trip: Parse(%q).String() = %q", s, got)
		}
		c2, err := Parse(c.String())
		if err != nil {
			t.Fatalf("re-parse: %v", err)
		}
		if Compare(c, c2) != 0 {
			t.Fatalf("parse(render(cfi)) != cfi for %q", s)
		}
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
	if _, err := Parse("/6/4"); err == nil {
		t.Fatal("expected error for missing prefix")
	}
	if _, err := Parse("epubcfi(/6/4"); err == nil {
		t.Fatal("expected error for missing closing paren")
	}
}

func TestEscapedBracket(t *testing.T) {
	c, err := Parse("epubcfi(/6/4[test^]value]!/4)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Path.Steps[1].IDAssertion != "test]value" {
		t.Fatalf("id assertion = %q", c.Path.Steps[1].IDAssertion)
	}
}

func TestOrderingSameChapter(t *testing.T) {
	a, _ := Parse("epubcfi(/6/4!/4/2/1:10)")
	b, _ := Parse("epubcfi(/6/4!/4/2/1:20)")
	if !Less(a, b) {
		t.Fatal("expected a < b")
	}
}

func TestOrderingDifferentSpineItems(t *testing.T) {
	a, _ := Parse("epubcfi(/6/4!/4/2)")
	b, _ := Parse("epubcfi(/6/6!/4/2)")
	if !Less(a, b) {
		t.Fatal("expected a < b")
	}
	ai, _ := a.SpineIndex()
	bi, _ := b.SpineIndex()
	if !(ai < bi) {
		t.Fatalf("expected spine index %d < %d", ai, bi)
	}
}

func TestOrderingShorterPathFirst(t *testing.T) {
	a, _ := Parse("epubcfi(/6/4!/4/2)")
	b, _ := Parse("epubcfi(/6/4!/4/2/1)")
	if !Less(a, b) {
		t.Fatal("expected shorter path to sort first")
	}
}

func TestIndirectionSortsBeforeElement(t *testing.T) {
	indirection := Step{Type: StepIndirection}
	element := Step{Type: StepElement, Index: 0}
	if compareStep(indirection, element) >= 0 {
		t.Fatal("expected indirection < element at the same depth")
	}
}

func TestSortCfis(t *testing.T) {
	raw := []string{
		"epubcfi(/6/8!/4/2/1:50)",
		"epubcfi(/6/4!/4/2/1:10)",
		"epubcfi(/6/6!/4/2/1:30)",
		"epubcfi(/6/4!/4/2/1:5)",
	}
	cfis := make([]Cfi, len(raw))
	for i, s := range raw {
		c, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		cfis[i] = c
	}
	sort.Slice(cfis, func(i, j int) bool { return Less(cfis[i], cfis[j]) })

	want := []string{
		"epubcfi(/6/4!/4/2/1:5)",
		"epubcfi(/6/4!/4/2/1:10)",
		"epubcfi(/6/6!/4/2/1:30)",
		"epubcfi(/6/8!/4/2/1:50)",
	}
	for i, w := range want {
		if got := cfis[i].String(); got != w {
			t.Fatalf("sorted[%d] = %q, want %q", i, got, w)
		}
	}
}

func TestInRange(t *testing.T) {
	start, _ := Parse("epubcfi(/6/4!/4/2/1:0)")
	end, _ := Parse("epubcfi(/6/4!/4/2/1:100)")
	middle, _ := Parse("epubcfi(/6/4!/4/2/1:50)")
	outside, _ := Parse("epubcfi(/6/4!/4/2/1:150)")

	if !InRange(middle, start, end) {
		t.Fatal("expected middle to be in range")
	}
	if InRange(outside, start, end) {
		t.Fatal("expected outside to be out of range")
	}
}

func TestBuilderSpineIndexConversion(t *testing.T) {
	if got, want := NewBuilder().PackageStep().SpineItem(0).Build().String(), "epubcfi(/6/2)"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := NewBuilder().PackageStep().SpineItem(1).Build().String(), "epubcfi(/6/4)"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := NewBuilder().PackageStep().SpineItem(4).Build().String(), "epubcfi(/6/10)"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuilderSimple(t *testing.T) {
	c := NewBuilder().
		PackageStep().
		SpineItem(1).
		Indirection().
		Element(0).
		Element(0).
		TextNode(0).
		CharacterOffset(42).
		Build()
	if got, want := c.String(), "epubcfi(/6/4!/2/2/1:42)"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuilderWithID(t *testing.T) {
	c := NewBuilder().
		PackageStep().
		SpineItemWithID(0, "chapter1").
		Indirection().
		Element(0).
		Build()
	if got, want := c.String(), "epubcfi(/6/2[chapter1]!/2)"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGenerateCfi(t *testing.T) {
	c := GenerateCfi(0, []int{0, 1}, 0, 100)
	if got, want := c.String(), "epubcfi(/6/2!/2/2/4/1:100)"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGenerateCfiRange(t *testing.T) {
	// Seed scenario 2.
	c := GenerateCfiRange(0, []int{0, 0}, 0, 10, []int{0, 1}, 0, 20)
	if !c.IsRange() {
		t.Fatal("expected a range")
	}
	want := "epubcfi(/6/2!/2/2,/2/1:10,/4/1:20)"
	if got := c.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCompareStringsInvalid(t *testing.T) {
	if _, ok := CompareStrings("invalid", "epubcfi(/6/4!/4/2)"); ok {
		t.Fatal("expected CompareStrings to fail for an invalid input")
	}
	if cmp, ok := CompareStrings("epubcfi(/6/4!/4/2/1:10)", "epubcfi(/6/4!/4/2/1:20)"); !ok || cmp >= 0 {
		t.Fatalf("CompareStrings = %d, %v; want <0, true", cmp, ok)
	}
}
