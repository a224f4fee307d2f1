package calibration

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// Output file names inside a calibration directory, per camera index (0-based)
// or camera key.
func SurfaceFile(i int) string         { return fmt.Sprintf("camera%d_white_frame_par.mat", i+1) }
func ParametricImageFile(i int) string { return fmt.Sprintf("camera%d_white_frame_par.png", i+1) }
func AverageImageFile(i int) string {
	return fmt.Sprintf("camera%d_average_cropped_scaled_white_frame.png", i+1)
}
func PreviewFile(camera string, frame int) string {
	return fmt.Sprintf("%s_white_%05d.jpg", camera, frame)
}
func FrameFile(camera string, frame int) string {
	return fmt.Sprintf("%s_frame_%05d.jpg", camera, frame)
}

// SaveSurface writes a dense surface in gonum's binary matrix format.
func SaveSurface(path string, surface *mat.Dense) error {
	data, err := surface.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode surface: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadSurface reads a surface written by SaveSurface.
func LoadSurface(path string) (*mat.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m mat.Dense
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode surface %s: %w", path, err)
	}
	return &m, nil
}

// Surface loads camera i's dense surface from the calibration directory and
// checks it against the recorded native size.
func (r *Record) Surface(dir string, i int) (*mat.Dense, error) {
	c := r.Camera(i)
	if c == nil {
		return nil, fmt.Errorf("%s not calibrated", Key(i))
	}
	path := c.Matrix
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	m, err := LoadSurface(path)
	if err != nil {
		return nil, err
	}
	rows, cols := m.Dims()
	if c.NativeHeight > 0 && (rows != c.NativeHeight || cols != c.NativeWidth) {
		return nil, fmt.Errorf("%s surface is %dx%d, record says %dx%d",
			Key(i), cols, rows, c.NativeWidth, c.NativeHeight)
	}
	return m, nil
}
