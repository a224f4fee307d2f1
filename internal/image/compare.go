package image

import (
	"image"
	"image/color"
	"image/draw"
)

// CompareMode selects how a before/after pair is rendered.
type CompareMode int

const (
	CompareSideBySide CompareMode = iota
	CompareDifference
)

func (m CompareMode) String() string {
	switch m {
	case CompareSideBySide:
		return "side-by-side"
	case CompareDifference:
		return "difference"
	default:
		return "unknown"
	}
}

// ParseCompareMode maps a flag value to a mode.
func ParseCompareMode(s string) (CompareMode, bool) {
	switch s {
	case "side-by-side", "sbs":
		return CompareSideBySide, true
	case "difference", "diff":
		return CompareDifference, true
	}
	return 0, false
}

// Gap is the spacing between panels of a side-by-side comparison.
const Gap = 8

// Background fills the area not covered by either panel.
var Background = color.RGBA{40, 40, 40, 255}

// Compare renders before and after into a single image.
func Compare(before, after *image.RGBA, mode CompareMode) *image.RGBA {
	if mode == CompareDifference {
		return difference(before, after)
	}

	bb, ab := before.Bounds(), after.Bounds()
	w := bb.Dx() + Gap + ab.Dx()
	h := max(bb.Dy(), ab.Dy())
	result := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(result, result.Bounds(), &image.Uniform{Background}, image.Point{}, draw.Src)
	draw.Draw(result, image.Rect(0, 0, bb.Dx(), bb.Dy()), before, bb.Min, draw.Src)
	draw.Draw(result, image.Rect(bb.Dx()+Gap, 0, w, ab.Dy()), after, ab.Min, draw.Src)
	return result
}

// difference returns |before - after| per channel over the common area.
func difference(before, after *image.RGBA) *image.RGBA {
	bb, ab := before.Bounds(), after.Bounds()
	w, h := min(bb.Dx(), ab.Dx()), min(bb.Dy(), ab.Dy())
	result := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		s := before.Pix[before.PixOffset(bb.Min.X, bb.Min.Y+y):]
		d := after.Pix[after.PixOffset(ab.Min.X, ab.Min.Y+y):]
		o := result.Pix[y*result.Stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				i := x*4 + c
				if s[i] > d[i] {
					o[i] = s[i] - d[i]
				} else {
					o[i] = d[i] - s[i]
				}
			}
			o[x*4+3] = 255
		}
	}
	return result
}
