// Package image loads and saves still frames and renders before/after
// comparisons of rectified output.
package image

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"grape-calib/pkg/geometry"

	_ "golang.org/x/image/tiff"
)

// Still is a single image loaded from disk.
type Still struct {
	Path  string
	Image *image.RGBA
	// Camera is the 0-based camera index guessed from the file name, or -1.
	Camera int
}

// Size returns the image size in pixels.
func (s *Still) Size() geometry.Size {
	return geometry.SizeOf(s.Image.Bounds())
}

// Load decodes a PNG, JPEG or TIFF file into an RGBA still.
func Load(path string) (*Still, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return &Still{
		Path:   path,
		Image:  ToRGBA(img),
		Camera: guessCameraFromFilename(path),
	}, nil
}

// ToRGBA returns img as an RGBA image anchored at the origin, copying only
// when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

var cameraPattern = regexp.MustCompile(`cam(?:era)?[_-]?([12])`)

// guessCameraFromFilename looks for "camera1", "cam2" and similar in the base
// name.
func guessCameraFromFilename(path string) int {
	base := strings.ToLower(filepath.Base(path))
	m := cameraPattern.FindStringSubmatch(base)
	if m == nil {
		return -1
	}
	n, _ := strconv.Atoi(m[1])
	return n - 1
}

// Save encodes img by the path's extension: .png, or .jpg/.jpeg at quality.
func Save(path string, img image.Image, quality int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(file, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
	default:
		err = fmt.Errorf("unsupported output format %q", filepath.Ext(path))
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// SupportedFormats returns the list of readable image formats.
func SupportedFormats() []string {
	return []string{".tiff", ".tif", ".png", ".jpg", ".jpeg"}
}

// IsSupportedFormat checks if the given path has a readable image format.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range SupportedFormats() {
		if ext == format {
			return true
		}
	}
	return false
}

// FileWriter writes images with Save at a fixed JPEG quality.
type FileWriter struct {
	Quality int
}

// WriteImage implements the pipeline's image writer.
func (w FileWriter) WriteImage(path string, img image.Image) error {
	return Save(path, img, w.Quality)
}
