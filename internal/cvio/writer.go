package cvio

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// ImageWriter encodes images with OpenCV's codecs. JPEGQuality applies to
// .jpg/.jpeg outputs; other extensions use OpenCV defaults.
type ImageWriter struct {
	JPEGQuality int
}

// WriteImage writes an RGBA or Gray image to path.
func (w ImageWriter) WriteImage(path string, img image.Image) error {
	m, err := toMat(img)
	if err != nil {
		return err
	}
	defer m.Close()

	var params []int
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		if w.JPEGQuality > 0 {
			params = []int{int(gocv.IMWriteJpegQuality), w.JPEGQuality}
		}
	}
	if !gocv.IMWriteWithParams(path, m, params) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}

// toMat converts to a BGR or single channel Mat.
func toMat(img image.Image) (gocv.Mat, error) {
	switch src := img.(type) {
	case *image.Gray:
		b := src.Bounds()
		data := src.Pix
		if src.Stride != b.Dx() || b.Min != (image.Point{}) {
			data = make([]byte, 0, b.Dx()*b.Dy())
			for y := b.Min.Y; y < b.Max.Y; y++ {
				off := src.PixOffset(b.Min.X, y)
				data = append(data, src.Pix[off:off+b.Dx()]...)
			}
		}
		return gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, data)
	case *image.RGBA:
		b := src.Bounds()
		data := src.Pix
		if src.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
			data = make([]byte, 0, 4*b.Dx()*b.Dy())
			for y := b.Min.Y; y < b.Max.Y; y++ {
				off := src.PixOffset(b.Min.X, y)
				data = append(data, src.Pix[off:off+4*b.Dx()]...)
			}
		}
		rgba, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, data)
		if err != nil {
			return gocv.Mat{}, err
		}
		defer rgba.Close()
		bgr := gocv.NewMat()
		gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
		return bgr, nil
	}
	return gocv.Mat{}, fmt.Errorf("unsupported image type %T", img)
}
