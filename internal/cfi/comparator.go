/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cfi

// Compare returns -1, 0, or 1 ordering a before b, following the reading
// sequence: element steps are compared index by index, with Indirection
// sorting before any Element at the same depth; if all compared steps are
// equal, the shorter step sequence sorts first; then character offset
// (present > absent).
func Compare(a, b Cfi) int {
	return comparePath(a.Path, b.Path)
}

func comparePath(a, b Path) int {
	if c := compareSteps(a.Steps, b.Steps); c != 0 {
		return c
	}
	switch {
	case a.CharacterOffset != nil && b.CharacterOffset != nil:
		if c := compareUint32(a.CharacterOffset.Offset, b.CharacterOffset.Offset); c != 0 {
			return c
		}
	case a.CharacterOffset != nil:
		return 1
	case b.CharacterOffset != nil:
		return -1
	}
	// temporal then spatial offsets break remaining ties; they coexist with
	// character offsets only in media documents
	if c := compareFloatPtr(a.TemporalOffset, b.TemporalOffset); c != 0 {
		return c
	}
	switch {
	case a.SpatialOffset != nil && b.SpatialOffset != nil:
		if c := compareFloat(a.SpatialOffset.X, b.SpatialOffset.X); c != 0 {
			return c
		}
		return compareFloat(a.SpatialOffset.Y, b.SpatialOffset.Y)
	case a.SpatialOffset != nil:
		return 1
	case b.SpatialOffset != nil:
		return -1
	}
	return 0
}

func compareFloatPtr(a, b *float64) int {
	switch {
	case a != nil && b != nil:
		return compareFloat(*a, *b)
	case a != nil:
		return 1
	case b != nil:
		return -1
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareSteps(a, b []Step) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareStep(a[i], b[i]); c != 0 {
			return c
		}
	}
	return compareInt(len(a), len(b))
}

func compareStep(a, b Step) int {
	switch {
	case a.Type == StepIndirection && b.Type == StepIndirection:
		return 0
	case a.Type == StepElement && b.Type == StepElement:
		return compareUint32(a.Index, b.Index)
	case a.Type == StepIndirection:
		return -1
	default:
		return 1
	}
}

func compareUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether a comes strictly before b in reading order.
func Less(a, b Cfi) bool { return Compare(a, b) < 0 }

// InRange reports whether cfi falls within [start, end] inclusive.
func InRange(c, start, end Cfi) bool {
	return Compare(c, start) >= 0 && Compare(c, end) <= 0
}

// CompareStrings parses both inputs and compares them, returning ok=false if
// either fails to parse.
func CompareStrings(a, b string) (cmp int, ok bool) {
	ca, err := Parse(a)
	if err != nil {
		return 0, false
	}
	cb, err := Parse(b)
	if err != nil {
		return 0, false
	}
	return Compare(ca, cb), true
}
