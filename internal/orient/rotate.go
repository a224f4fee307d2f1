// Package orient brings frames upright and to working resolution.
package orient

import (
	"image"
	"math"

	"grape-calib/pkg/geometry"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// NormalizeAngle maps any angle into [0, 360). NaN and infinities become 0.
func NormalizeAngle(degrees float64) float64 {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return 0
	}
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	if d == 360 {
		d = 0
	}
	return d
}

// IsAxisAligned reports whether the angle is a multiple of 90 degrees.
func IsAxisAligned(degrees float64) bool {
	switch NormalizeAngle(degrees) {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// Rotate returns img turned clockwise by degrees.
//
// Quarter turns are exact index permutations. Any other angle is resampled
// bilinearly onto a canvas large enough to hold the whole rotated frame;
// uncovered canvas pixels are opaque black.
func Rotate(img *image.RGBA, degrees float64) *image.RGBA {
	switch NormalizeAngle(degrees) {
	case 0:
		return img
	case 90:
		return quarterTurn(img, true)
	case 180:
		return halfTurn(img)
	case 270:
		return quarterTurn(img, false)
	}
	return rotateInterpolated(img, NormalizeAngle(degrees))
}

// RotatedSize returns the size of Rotate's output for an input of size s.
func RotatedSize(s geometry.Size, degrees float64) geometry.Size {
	switch NormalizeAngle(degrees) {
	case 0, 180:
		return s
	case 90, 270:
		return geometry.Size{Width: s.Height, Height: s.Width}
	}
	w, h := canvasSize(float64(s.Width), float64(s.Height), NormalizeAngle(degrees))
	return geometry.Size{Width: w, Height: h}
}

// quarterTurn transposes and flips. Clockwise: out(r, c) = in(H-1-c, r).
// Counter-clockwise: out(r, c) = in(c, W-1-r).
func quarterTurn(img *image.RGBA, clockwise bool) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for r := 0; r < w; r++ {
		drow := dst.Pix[r*dst.Stride:]
		for c := 0; c < h; c++ {
			var sx, sy int
			if clockwise {
				sx, sy = r, h-1-c
			} else {
				sx, sy = w-1-r, c
			}
			so := img.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			copy(drow[c*4:c*4+4], img.Pix[so:so+4])
		}
	}
	return dst
}

func halfTurn(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for r := 0; r < h; r++ {
		drow := dst.Pix[r*dst.Stride:]
		for c := 0; c < w; c++ {
			so := img.PixOffset(b.Max.X-1-c, b.Max.Y-1-r)
			copy(drow[c*4:c*4+4], img.Pix[so:so+4])
		}
	}
	return dst
}

func canvasSize(w, h, degrees float64) (int, int) {
	theta := degrees * math.Pi / 180
	cos, sin := math.Abs(math.Cos(theta)), math.Abs(math.Sin(theta))
	nw := int(math.Ceil(w*cos + h*sin - 1e-9))
	nh := int(math.Ceil(w*sin + h*cos - 1e-9))
	return max(nw, 1), max(nh, 1)
}

func rotateInterpolated(img *image.RGBA, degrees float64) *image.RGBA {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	nw, nh := canvasSize(w, h, degrees)

	// source centre -> origin -> rotate -> canvas centre
	t := geometry.Translation(float64(nw)/2, float64(nh)/2).
		Compose(geometry.Rotation(degrees * math.Pi / 180)).
		Compose(geometry.Translation(-float64(b.Min.X)-w/2, -float64(b.Min.Y)-h/2))
	m := t.ToMatrix()

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.BiLinear.Transform(dst, f64.Aff3(m), img, b, draw.Src, nil)

	// Edge pixels come back with partial alpha; blend them onto black so the
	// result stays a plain 8-bit opaque raster.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 255
	}
	return dst
}
