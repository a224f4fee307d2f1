// Package annotation reads the frame annotations produced by the marking
// tool: camera names, rotations, crop box and the frame windows used for
// calibration.
package annotation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"grape-calib/internal/offset"
	"grape-calib/pkg/geometry"
)

// Window is an inclusive-exclusive frame range in camera-a frame numbers.
// Either end at -1 means unset.
type Window struct {
	Start int
	End   int
}

// Set reports whether both ends were annotated.
func (w Window) Set() bool { return w.Start >= 0 && w.End >= 0 && w.End >= w.Start }

// Len returns the number of frames in the window, 0 if unset.
func (w Window) Len() int {
	if !w.Set() {
		return 0
	}
	return w.End - w.Start
}

// Annotations is the parsed annotation document.
type Annotations struct {
	CameraA string
	CameraB string // empty for a single camera
	Take    int
	// Rotation per camera in degrees, 0 when absent.
	Rotation [2]float64
	// Crop is the region of valid data in upright native pixels, nil when absent.
	Crop        *geometry.CropBox
	White       Window
	Calib       Window
	SyncMarkers [2]int
}

// wire mirrors the JSON document.
type wire struct {
	CameraA       string   `json:"camera_a"`
	CameraB       *string  `json:"camera_b"`
	Take          *int     `json:"take"`
	Rot1          *float64 `json:"rot1"`
	Rot2          *float64 `json:"rot2"`
	CropBox       []int    `json:"crop_box"`
	IniWhiteFrame *int     `json:"ini_white_frame"`
	FinWhiteFrame *int     `json:"fin_white_frame"`
	Sync1Frame    *int     `json:"sync_1_frame"`
	Sync2Frame    *int     `json:"sync_2_frame"`
	IniCalibFrame *int     `json:"ini_calib_frame"`
	FinCalibFrame *int     `json:"fin_calib_frame"`
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// Parse decodes an annotation document.
func Parse(data []byte) (*Annotations, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.CameraA == "" {
		return nil, fmt.Errorf("camera_a is required")
	}

	a := &Annotations{
		CameraA: w.CameraA,
		Take:    intOr(w.Take, 1),
		White:   Window{Start: intOr(w.IniWhiteFrame, -1), End: intOr(w.FinWhiteFrame, -1)},
		Calib:   Window{Start: intOr(w.IniCalibFrame, -1), End: intOr(w.FinCalibFrame, -1)},
		SyncMarkers: [2]int{
			intOr(w.Sync1Frame, offset.Unset),
			intOr(w.Sync2Frame, offset.Unset),
		},
	}
	if w.CameraB != nil {
		a.CameraB = *w.CameraB
	}
	if w.Rot1 != nil {
		a.Rotation[0] = *w.Rot1
	}
	if w.Rot2 != nil {
		a.Rotation[1] = *w.Rot2
	}

	switch {
	case len(w.CropBox) == 0:
	case len(w.CropBox) == 4 && w.CropBox[0] < 0:
		// [-1,...] is the marking tool's "no crop"
	case len(w.CropBox) == 4:
		// wire order is top, bottom, left, right
		box := geometry.CropBox{Top: w.CropBox[0], Bottom: w.CropBox[1], Left: w.CropBox[2], Right: w.CropBox[3]}
		if err := box.Validate(geometry.Size{}); err != nil {
			return nil, err
		}
		a.Crop = &box
	default:
		return nil, fmt.Errorf("crop_box must have 4 entries, got %d", len(w.CropBox))
	}
	return a, nil
}

// Load reads an annotation file.
func Load(path string) (*Annotations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("annotation %s: %w", path, err)
	}
	return a, nil
}

// NumCameras returns 1 or 2.
func (a *Annotations) NumCameras() int {
	if a.CameraB != "" {
		return 2
	}
	return 1
}

// Camera returns the name of camera i (0-based).
func (a *Annotations) Camera(i int) string {
	if i == 1 {
		return a.CameraB
	}
	return a.CameraA
}

// Offsets resolves the sync markers. A single camera never needs an offset.
func (a *Annotations) Offsets() (offset.Offsets, offset.Diagnostics) {
	if a.NumCameras() == 1 {
		return offset.Offsets{}, offset.Diagnostics{}
	}
	return offset.Resolve(a.SyncMarkers[0], a.SyncMarkers[1])
}

// CalibrationDir returns the conventional calibration directory for an
// annotation file: the file name with its extension replaced by ".calib".
func CalibrationDir(annotationPath string) string {
	return strings.TrimSuffix(annotationPath, filepath.Ext(annotationPath)) + ".calib"
}

// VideoPath returns the conventional path of camera i's footage for a take
// below an acquisition directory.
func (a *Annotations) VideoPath(acqDir string, i int) string {
	name := a.Camera(i)
	return filepath.Join(acqDir, name, fmt.Sprintf("%s_toma%d_parte1.mp4", name, a.Take))
}
