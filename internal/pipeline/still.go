package pipeline

import (
	"fmt"
	"image"

	"grape-calib/internal/calibration"
	"grape-calib/internal/orient"
	"grape-calib/internal/rectify"
)

// StillRectifier corrects single images with the cameras of a calibration
// record. It is safe for concurrent use.
type StillRectifier struct {
	rec   *calibration.Record
	rects [2]*rectify.Rectifier
	// Rotate applies the camera's rotation first, for raw frame grabs that
	// are not upright yet.
	Rotate bool
}

// NewStillRectifier loads the surfaces of every camera in rec.
func NewStillRectifier(rec *calibration.Record, calibDir string, cfg rectify.Config) (*StillRectifier, error) {
	s := &StillRectifier{rec: rec}
	for i := range s.rects {
		cam := rec.Camera(i)
		if cam == nil {
			continue
		}
		surface, err := rec.Surface(calibDir, i)
		if err != nil {
			return nil, stageErr(calibration.Key(i), StageOpen, err)
		}
		r, err := rectify.New(surface, cam.WhiteBalance, cfg)
		if err != nil {
			return nil, stageErr(calibration.Key(i), StageRectification, err)
		}
		s.rects[i] = r
	}
	return s, nil
}

// Rectify corrects img as seen by camera i (0-based).
func (s *StillRectifier) Rectify(img *image.RGBA, i int) (*image.RGBA, rectify.Report, error) {
	if i < 0 || i >= len(s.rects) || s.rects[i] == nil {
		return nil, rectify.Report{}, fmt.Errorf("%s not calibrated", calibration.Key(i))
	}
	out, rep, err := s.rects[i].Rectify(s.Upright(img, i))
	if err != nil {
		return nil, rep, stageErr(calibration.Key(i), StageRectification, err)
	}
	return out, rep, nil
}

// Upright returns img as Rectify sees it before correction: rotated when
// Rotate is set, unchanged otherwise.
func (s *StillRectifier) Upright(img *image.RGBA, i int) *image.RGBA {
	cam := s.rec.Camera(i)
	if !s.Rotate || cam == nil {
		return img
	}
	return orient.Rotate(img, cam.Rotation)
}
