/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/aledro/docreaderd/internal/domain"
)

func TestClampScale(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0, 1.0},
		{-2, 1.0},
		{0.05, 0.1},
		{0.1, 0.1},
		{1.5, 1.5},
		{4.0, 4.0},
		{9.0, 4.0},
	}
	for _, c := range cases {
		if got := ClampScale(c.in); got != c.want {
			t.Errorf("ClampScale(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestThumbnailDPI(t *testing.T) {
	// 612x792pt page, 256px target: 256/792*72
	dpi := ThumbnailDPI(612, 792, 256)
	want := 256.0 / 792.0 * 72.0
	if dpi != want {
		t.Fatalf("ThumbnailDPI = %v, want %v", dpi, want)
	}
}

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(2, 1, color.RGBA{B: 255, A: 255})
	return img
}

func TestRotateDimensions(t *testing.T) {
	img := testImage()
	if got := Rotate(img, 90).Bounds(); got.Dx() != 2 || got.Dy() != 3 {
		t.Fatalf("rotate 90 bounds = %v", got)
	}
	if got := Rotate(img, 180).Bounds(); got.Dx() != 3 || got.Dy() != 2 {
		t.Fatalf("rotate 180 bounds = %v", got)
	}
	if got := Rotate(img, 270).Bounds(); got.Dx() != 2 || got.Dy() != 3 {
		t.Fatalf("rotate 270 bounds = %v", got)
	}
	if got := Rotate(img, 0); got != image.Image(img) {
		t.Fatal("rotate 0 should return the input unchanged")
	}
}

func TestRotate90MovesPixels(t *testing.T) {
	img := testImage()
	out := Rotate(img, 90).(*image.RGBA)
	// (0,0) moves to (h-1, 0) = (1, 0) for a 3x2 source.
	c := out.RGBAAt(1, 0)
	if c.R != 255 {
		t.Fatalf("expected red pixel at (1,0), got %+v", c)
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	data, err := Encode(testImage(), domain.RenderPNG)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds().Dx() != 3 || decoded.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", decoded.Bounds())
	}
}

func TestEncodeJPEG(t *testing.T) {
	data, err := Encode(testImage(), domain.RenderJPEG)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) == 0 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatal("expected JPEG SOI marker")
	}
}
