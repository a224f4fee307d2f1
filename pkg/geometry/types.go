// Package geometry provides the small geometric types shared by the calibration packages.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point2D represents a 2D point with floating-point coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to another point.
func (p Point2D) Distance(other Point2D) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Size is a raster size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SizeOf returns the size of a rectangle.
func SizeOf(r image.Rectangle) Size {
	return Size{Width: r.Dx(), Height: r.Dy()}
}

// Empty reports whether the size covers no pixels.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Div integer-divides both dimensions by factor.
func (s Size) Div(factor int) Size {
	if factor <= 1 {
		return s
	}
	return Size{Width: s.Width / factor, Height: s.Height / factor}
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// CropBox is a pixel rectangle given as top, left, bottom, right edges.
// Bottom and Right are exclusive.
type CropBox struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Bottom int `json:"bottom"`
	Right  int `json:"right"`
}

// Height returns the number of rows inside the box.
func (b CropBox) Height() int { return b.Bottom - b.Top }

// Width returns the number of columns inside the box.
func (b CropBox) Width() int { return b.Right - b.Left }

// Validate checks the box ordering and, when bounds is not empty, that the
// box lies inside a raster of that size.
func (b CropBox) Validate(bounds Size) error {
	if b.Top < 0 || b.Left < 0 {
		return fmt.Errorf("crop box %v: negative origin", b)
	}
	if b.Top >= b.Bottom || b.Left >= b.Right {
		return fmt.Errorf("crop box %v: empty or inverted", b)
	}
	if !bounds.Empty() && (b.Bottom > bounds.Height || b.Right > bounds.Width) {
		return fmt.Errorf("crop box %v exceeds frame %s", b, bounds)
	}
	return nil
}

// Scale returns the box with every edge integer-divided by factor, which is
// how a native-resolution box maps onto a downscaled raster.
func (b CropBox) Scale(factor int) CropBox {
	if factor <= 1 {
		return b
	}
	return CropBox{
		Top:    b.Top / factor,
		Left:   b.Left / factor,
		Bottom: b.Bottom / factor,
		Right:  b.Right / factor,
	}
}

// Clip returns the box restricted to a raster of the given size.
func (b CropBox) Clip(bounds Size) CropBox {
	return CropBox{
		Top:    clamp(b.Top, 0, bounds.Height),
		Left:   clamp(b.Left, 0, bounds.Width),
		Bottom: clamp(b.Bottom, 0, bounds.Height),
		Right:  clamp(b.Right, 0, bounds.Width),
	}
}

// Rect converts the box to an image.Rectangle (x = column, y = row).
func (b CropBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

func (b CropBox) String() string {
	return fmt.Sprintf("[top=%d left=%d bottom=%d right=%d]", b.Top, b.Left, b.Bottom, b.Right)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AffineTransform represents a 2x3 affine transformation matrix.
// [a b tx]
// [c d ty]
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Rotation returns a rotation transform around the origin. In image
// coordinates (y pointing down) a positive angle turns clockwise.
func Rotation(radians float64) AffineTransform {
	cos := math.Cos(radians)
	sin := math.Sin(radians)
	return AffineTransform{A: cos, B: -sin, C: sin, D: cos}
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns this transform composed with another (this * other).
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// ToMatrix returns the transform as a [6]float64 in row-major order.
func (t AffineTransform) ToMatrix() [6]float64 {
	return [6]float64{t.A, t.B, t.TX, t.C, t.D, t.TY}
}
