// Package calibration provides the persisted calibration record and its
// illumination surface files.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"grape-calib/internal/illum"
	"grape-calib/pkg/colorutil"
	"grape-calib/pkg/geometry"
)

// FileName is the record's name inside a calibration directory.
const FileName = "calibration.json"

// Record is the calibration document written once per calibration run.
type Record struct {
	Version    string    `json:"version"`
	Created    time.Time `json:"created"`
	NumCameras int       `json:"ncam"`
	Camera1    *Camera   `json:"camera1,omitempty"`
	Camera2    *Camera   `json:"camera2,omitempty"`
}

// Camera is the calibration of a single camera.
type Camera struct {
	Name      string  `json:"name"`
	InputFile string  `json:"input_fname,omitempty"`
	FPS       float64 `json:"fps"`
	Rotation  float64 `json:"rotation"`
	Offset    int     `json:"offset"`

	WhiteBalance colorutil.Balance `json:"white_balance"`

	// Illumination model
	Order           illum.Order `json:"white_frame_order"`
	Parameters      []float64   `json:"white_frame_parameters"`
	Matrix          string      `json:"white_frame_matrix"`
	ParametricImage string      `json:"white_frame_parametric_image,omitempty"`
	AverageImage    string      `json:"white_frame_average,omitempty"`

	// Geometry
	CropRescaled  *geometry.CropBox `json:"cropbox_rescaled"`
	CropOrig      *geometry.CropBox `json:"cropbox_orig"`
	RescaleFactor int               `json:"rescale_factor"`
	NativeWidth   int               `json:"native_width"`
	NativeHeight  int               `json:"native_height"`

	// Diagnostics
	FramesUsed  int     `json:"frames_used"`
	SamplesUsed int     `json:"samples_used"`
	RSS         float64 `json:"rss"`
}

// New creates an empty record.
func New(version string) *Record {
	return &Record{Version: version, Created: time.Now().UTC()}
}

// Key returns the JSON key of camera index i (0-based).
func Key(i int) string { return fmt.Sprintf("camera%d", i+1) }

// Camera returns camera i (0-based) or nil.
func (r *Record) Camera(i int) *Camera {
	switch i {
	case 0:
		return r.Camera1
	case 1:
		return r.Camera2
	}
	return nil
}

// SetCamera stores camera i (0-based) and updates the camera count.
func (r *Record) SetCamera(i int, c *Camera) {
	switch i {
	case 0:
		r.Camera1 = c
	case 1:
		r.Camera2 = c
	default:
		return
	}
	r.NumCameras = 0
	for _, cam := range []*Camera{r.Camera1, r.Camera2} {
		if cam != nil {
			r.NumCameras++
		}
	}
}

// Native returns the upright native frame size the surface was evaluated at.
func (c *Camera) Native() geometry.Size {
	return geometry.Size{Width: c.NativeWidth, Height: c.NativeHeight}
}

// Model rebuilds the polynomial from the stored coefficients.
func (c *Camera) Model() (*illum.Model, error) {
	m, err := illum.NewModel(c.Parameters)
	if err != nil {
		return nil, err
	}
	if c.Order != 0 && m.Order != c.Order {
		return nil, fmt.Errorf("order %d stored with %d coefficients", c.Order, len(c.Parameters))
	}
	return m, nil
}

// Validate checks the internal consistency of a camera entry.
func (c *Camera) Validate() error {
	var errs []error
	if _, err := c.Model(); err != nil {
		errs = append(errs, err)
	}
	if !c.WhiteBalance.Valid() {
		errs = append(errs, fmt.Errorf("white balance %+v must be positive", c.WhiteBalance))
	}
	if c.Offset < 0 {
		errs = append(errs, fmt.Errorf("negative offset %d", c.Offset))
	}
	if c.RescaleFactor < 1 {
		errs = append(errs, fmt.Errorf("rescale factor %d < 1", c.RescaleFactor))
	}
	if c.Matrix == "" {
		errs = append(errs, errors.New("missing white_frame_matrix"))
	}
	if c.CropOrig != nil {
		if err := c.CropOrig.Validate(c.Native()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks every camera present in the record.
func (r *Record) Validate() error {
	var errs []error
	for i := 0; i < 2; i++ {
		if c := r.Camera(i); c != nil {
			if err := c.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", Key(i), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Load reads a record from a calibration directory or a calibration.json path.
func Load(path string) (*Record, error) {
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		path = filepath.Join(path, FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration %s: %w", path, err)
	}
	return &rec, nil
}

// Save writes the record as calibration.json inside dir.
func (r *Record) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0644)
}
