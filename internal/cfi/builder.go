/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cfi

// Builder constructs a Cfi programmatically from logical spine/DOM
// positions, rather than parsing text.
type Builder struct {
	path Path
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// PackageStep appends the package-document step (/6, the spine in EPUB 3).
func (b *Builder) PackageStep() *Builder {
	b.path.Steps = append(b.path.Steps, Step{Type: StepElement, Index: 6})
	return b
}

// SpineItem appends a spine-item step, converting the 0-based index to the
// CFI's 1-based even numbering: index 0 -> /2, index 1 -> /4, ...
func (b *Builder) SpineItem(index int) *Builder {
	b.path.Steps = append(b.path.Steps, Step{Type: StepElement, Index: spineCfiIndex(index)})
	return b
}

// SpineItemWithID is SpineItem plus an ID assertion.
func (b *Builder) SpineItemWithID(index int, id string) *Builder {
	b.path.Steps = append(b.path.Steps, Step{Type: StepElement, Index: spineCfiIndex(index), IDAssertion: id})
	return b
}

// Indirection appends a "!" step (entering a content document).
func (b *Builder) Indirection() *Builder {
	b.path.Steps = append(b.path.Steps, Step{Type: StepIndirection})
	return b
}

// Element appends an element step within the content document, using
// 1-based even numbering: index 0 -> /2, index 1 -> /4, ...
func (b *Builder) Element(index int) *Builder {
	b.path.Steps = append(b.path.Steps, Step{Type: StepElement, Index: spineCfiIndex(index)})
	return b
}

// ElementRaw appends an element step with an already-CFI-encoded index.
func (b *Builder) ElementRaw(cfiIndex uint32) *Builder {
	b.path.Steps = append(b.path.Steps, Step{Type: StepElement, Index: cfiIndex})
	return b
}

// ElementWithID is Element plus an ID assertion.
func (b *Builder) ElementWithID(index int, id string) *Builder {
	b.path.Steps = append(b.path.Steps, Step{Type: StepElement, Index: spineCfiIndex(index), IDAssertion: id})
	return b
}

// TextNode appends a text-node step, using 1-based odd numbering: index 0
// -> /1, index 1 -> /3, ...
func (b *Builder) TextNode(index int) *Builder {
	cfiIndex := uint32(index*2 + 1)
	b.path.Steps = append(b.path.Steps, Step{Type: StepElement, Index: cfiIndex})
	return b
}

// CharacterOffset sets the trailing ":N" character offset.
func (b *Builder) CharacterOffset(offset uint32) *Builder {
	b.path.CharacterOffset = &CharacterOffset{Offset: offset}
	return b
}

// CharacterOffsetWithAssertion is CharacterOffset plus a validating
// TextAssertion built from prefix/suffix.
func (b *Builder) CharacterOffsetWithAssertion(offset uint32, prefix, suffix string) *Builder {
	ta := &TextAssertion{}
	if prefix != "" {
		ta.Prefix, ta.HasPrefix = prefix, true
	}
	if suffix != "" {
		ta.Suffix, ta.HasSuffix = suffix, true
	}
	b.path.CharacterOffset = &CharacterOffset{Offset: offset, Assertion: ta}
	return b
}

// TemporalOffset sets the trailing "~secs" offset, for audio/video media.
func (b *Builder) TemporalOffset(seconds float64) *Builder {
	b.path.TemporalOffset = &seconds
	return b
}

// SpatialOffset sets the trailing "@x:y" offset, for images.
func (b *Builder) SpatialOffset(x, y float64) *Builder {
	b.path.SpatialOffset = &SpatialOffset{X: x, Y: y}
	return b
}

// Path exposes the path accumulated so far, e.g. to splice it as the common
// ancestor of a range.
func (b *Builder) Path() Path { return b.path }

// Build finalizes the Cfi.
func (b *Builder) Build() Cfi { return Cfi{Path: b.path} }

func spineCfiIndex(index int) uint32 { return uint32((index + 1) * 2) }

// GenerateCfi builds a CFI for a position in a spine item: package step,
// spine item, indirection, body, the given element path, a text node, and a
// character offset.
func GenerateCfi(spineIndex int, elementPath []int, textNodeIndex int, charOffset uint32) Cfi {
	b := NewBuilder().PackageStep().SpineItem(spineIndex).Indirection().Element(0)
	for _, idx := range elementPath {
		b = b.Element(idx)
	}
	b = b.TextNode(textNodeIndex).CharacterOffset(charOffset)
	return b.Build()
}

// GenerateCfiRange builds a range CFI for a text selection spanning
// start/end element paths within the same spine item, relative to their
// common ancestor.
func GenerateCfiRange(spineIndex int, startPath []int, startTextIndex int, startOffset uint32, endPath []int, endTextIndex int, endOffset uint32) Cfi {
	commonLen := 0
	for commonLen < len(startPath) && commonLen < len(endPath) && startPath[commonLen] == endPath[commonLen] {
		commonLen++
	}

	common := NewBuilder().PackageStep().SpineItem(spineIndex).Indirection().Element(0)
	for _, idx := range startPath[:commonLen] {
		common = common.Element(idx)
	}

	startRel := NewBuilder()
	for _, idx := range startPath[commonLen:] {
		startRel = startRel.Element(idx)
	}
	startRel = startRel.TextNode(startTextIndex).CharacterOffset(startOffset)

	endRel := NewBuilder()
	for _, idx := range endPath[commonLen:] {
		endRel = endRel.Element(idx)
	}
	endRel = endRel.TextNode(endTextIndex).CharacterOffset(endOffset)

	return Cfi{
		Path:  common.Path(),
		Range: &Range{Start: startRel.Path(), End: endRel.Path()},
	}
}

// GenerateProgressionCfi builds a simplified, approximate CFI for a
// percentage-through-spine-item position. The progression value itself is
// not encoded in the CFI grammar; precise position tracking should use
// GenerateCfi once a concrete DOM location is known.
func GenerateProgressionCfi(spineIndex int, _ float64) Cfi {
	return NewBuilder().PackageStep().SpineItem(spineIndex).Indirection().Element(0).Build()
}
