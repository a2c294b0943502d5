/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render holds the raster post-processing shared by the document
// backends: scale clamping, pixmap rotation, and encoding to the wire
// formats (PNG, JPEG, WebP).
package render

import (
	"bytes"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"

	"github.com/aledro/docreaderd/internal/domain"
)

const (
	// MinScale and MaxScale bound RenderRequest.Scale.
	MinScale = 0.1
	MaxScale = 4.0

	// BaseDPI is the document-space resolution a scale of 1.0 maps to.
	BaseDPI = 72.0

	jpegQuality = 85
	webpQuality = 85
)

// ClampScale bounds a requested scale factor to [MinScale, MaxScale]. A
// non-positive scale falls back to 1.0.
func ClampScale(s float64) float64 {
	if s <= 0 {
		return 1.0
	}
	if s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}

// DPIForScale converts a clamped scale factor into the DPI go-fitz expects.
func DPIForScale(scale float64) float64 {
	return ClampScale(scale) * BaseDPI
}

// ThumbnailDPI returns the DPI that makes max(width, height) of a page with
// the given bounds come out at maxSize pixels.
func ThumbnailDPI(pageWidth, pageHeight float64, maxSize int) float64 {
	longest := pageWidth
	if pageHeight > longest {
		longest = pageHeight
	}
	if longest <= 0 || maxSize <= 0 {
		return BaseDPI
	}
	return float64(maxSize) / longest * BaseDPI
}

// Rotate returns img rotated clockwise by the given angle. Only the right
// angles 0, 90, 180, 270 are meaningful; other values normalize modulo 360
// and anything that is not a multiple of 90 is treated as 0.
func Rotate(img image.Image, degrees int) image.Image {
	degrees = ((degrees % 360) + 360) % 360
	if degrees == 0 || degrees%90 != 0 {
		return img
	}
	src := toRGBA(img)
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	switch degrees {
	case 90, 270:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	default:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.RGBAAt(b.Min.X+x, b.Min.Y+y)
			switch degrees {
			case 90:
				dst.SetRGBA(h-1-y, x, c)
			case 180:
				dst.SetRGBA(w-1-x, h-1-y, c)
			case 270:
				dst.SetRGBA(y, w-1-x, c)
			}
		}
	}
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

// Encode serializes img to the requested raster format.
func Encode(img image.Image, format domain.RenderFormat) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case domain.RenderJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case domain.RenderWebP:
		err = webp.Encode(&buf, img, webp.Options{Quality: webpQuality})
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindImageError, err, "encode rendered page")
	}
	return buf.Bytes(), nil
}
