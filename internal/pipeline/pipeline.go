// Package pipeline drives whole calibration and extraction runs over the
// cameras of an annotated take.
package pipeline

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"grape-calib/internal/calibration"
	"grape-calib/internal/video"
	"grape-calib/pkg/geometry"
)

// Stage names the step of a camera's run that failed.
type Stage string

const (
	StageOpen          Stage = "open"
	StageAccumulation  Stage = "accumulation"
	StageFitting       Stage = "fitting"
	StageRectification Stage = "rectification"
	StageOutput        Stage = "output"
)

// StageError reports a failure of one camera at one stage. It unwraps to the
// underlying cause, so errors.Is works with the package sentinels
// (video.ErrSourceUnavailable, illum.ErrInsufficientSamples,
// rectify.ErrShapeMismatch).
type StageError struct {
	Camera string
	Stage  Stage
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Camera, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(camera string, stage Stage, err error) *StageError {
	return &StageError{Camera: camera, Stage: stage, Err: err}
}

// ErrNoWhiteWindow is returned when the annotations carry no white frame range.
var ErrNoWhiteWindow = errors.New("no white frame window annotated")

// Opener opens the frame source of a video file.
type Opener func(path string) (video.Source, error)

// ImageWriter persists diagnostic and output rasters. The format follows the
// path's extension.
type ImageWriter interface {
	WriteImage(path string, img image.Image) error
}

// QRDecoder finds an integer QR payload and its four corners in a frame.
type QRDecoder interface {
	Decode(img *image.RGBA) (payload int, corners [4]geometry.Point2D, ok bool)
}

// previewSink stores accumulation previews next to the calibration record.
type previewSink struct {
	dir    string
	writer ImageWriter
}

func (p previewSink) Preview(camera string, frame int, img *image.RGBA) error {
	return p.writer.WriteImage(filepath.Join(p.dir, calibration.PreviewFile(camera, frame)), img)
}

func closeAll(sources []video.Source) {
	for _, s := range sources {
		if s != nil {
			s.Close()
		}
	}
}

func joinFailures(failures []*StageError) error {
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
