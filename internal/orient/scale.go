package orient

import (
	"image"

	"golang.org/x/image/draw"
)

// areaKernel is a box filter. x/image/draw widens the support by the shrink
// factor, so an integer shrink averages exactly factor×factor source pixels.
var areaKernel = &draw.Kernel{Support: 0.5, At: func(float64) float64 { return 1 }}

// Downscale shrinks img by an integer factor with area averaging. Trailing
// rows and columns that do not fill a whole block are dropped, matching
// integer division of the frame size.
func Downscale(img *image.RGBA, factor int) *image.RGBA {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dw, dh := b.Dx()/factor, b.Dy()/factor
	if dw < 1 || dh < 1 {
		dw, dh = max(dw, 1), max(dh, 1)
	}
	sr := image.Rect(b.Min.X, b.Min.Y, b.Min.X+min(dw*factor, b.Dx()), b.Min.Y+min(dh*factor, b.Dy()))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	areaKernel.Scale(dst, dst.Bounds(), img, sr, draw.Src, nil)
	return dst
}
