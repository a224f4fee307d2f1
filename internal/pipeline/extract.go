package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"grape-calib/internal/annotation"
	"grape-calib/internal/calibration"
	"grape-calib/internal/config"
	"grape-calib/internal/logging"
	"grape-calib/internal/orient"
	"grape-calib/internal/rectify"
	"grape-calib/internal/video"

	"github.com/sirupsen/logrus"
)

// DefaultExtractFrames is the number of kept frames extracted when the data
// window has no end.
const DefaultExtractFrames = 100

// ExtractOptions configures an extraction run.
type ExtractOptions struct {
	Config config.ExtractionConfig
	// Window is the data range in camera-a frame numbers. An unset start
	// means 0; an unset end extracts DefaultExtractFrames kept frames.
	Window annotation.Window
	Writer ImageWriter
	// QR, when set, is run on every rectified frame and hits are written to
	// cameraN_qr.csv.
	QR     QRDecoder
	Logger logrus.FieldLogger
}

// CameraSummary describes what was extracted for one camera.
type CameraSummary struct {
	Camera    string
	Read      int
	Written   int
	QRCodes   int
	Clamping  rectify.Report
	EndOfData bool
}

// ExtractResult is the outcome of an extraction run.
type ExtractResult struct {
	Cameras  []CameraSummary
	Failures []*StageError
}

// Extract rectifies every skip-th frame of each camera's data window with
// the camera's calibration and writes them as JPEG files to outDir. Cameras
// are isolated like in Calibrate; an error is returned only when every camera
// failed.
func Extract(rec *calibration.Record, calibDir string, sources []video.Source, outDir string, opts ExtractOptions) (*ExtractResult, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Writer == nil {
		return nil, errors.New("extraction needs an image writer")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	skip := max(opts.Config.Skip, 1)
	start := max(opts.Window.Start, 0)
	end := opts.Window.End
	if end < start {
		end = start + skip*DefaultExtractFrames
	}

	res := &ExtractResult{}
	for i, src := range sources {
		key := calibration.Key(i)
		ex := &extraction{
			key:    key,
			outDir: outDir,
			opts:   &opts,
			skip:   skip,
			log:    log.WithField("camera", key),
		}
		sum, err := ex.run(rec, calibDir, i, src, start, end-start)
		if err != nil {
			log.WithError(err.Err).WithFields(logrus.Fields{
				"camera": err.Camera,
				"stage":  err.Stage,
			}).Error("camera extraction failed")
			res.Failures = append(res.Failures, err)
			continue
		}
		res.Cameras = append(res.Cameras, sum)
	}
	if len(res.Cameras) == 0 && len(res.Failures) > 0 {
		return res, fmt.Errorf("no camera extracted: %w", joinFailures(res.Failures))
	}
	return res, nil
}

type extraction struct {
	key    string
	outDir string
	opts   *ExtractOptions
	skip   int
	log    logrus.FieldLogger
}

func (e *extraction) run(rec *calibration.Record, calibDir string, i int, src video.Source, start, count int) (CameraSummary, *StageError) {
	sum := CameraSummary{Camera: e.key}
	cam := rec.Camera(i)
	if cam == nil {
		return sum, stageErr(e.key, StageOpen, fmt.Errorf("camera not present in calibration"))
	}
	surface, err := rec.Surface(calibDir, i)
	if err != nil {
		return sum, stageErr(e.key, StageOpen, err)
	}
	rect, err := rectify.New(surface, cam.WhiteBalance, rectify.Config{Exposure: e.opts.Config.Exposure})
	if err != nil {
		return sum, stageErr(e.key, StageRectification, err)
	}

	var qr *QRTable
	if e.opts.QR != nil {
		qr, err = NewQRTable(filepath.Join(e.outDir, fmt.Sprintf("%s_qr.csv", e.key)))
		if err != nil {
			return sum, stageErr(e.key, StageOutput, err)
		}
		defer qr.Close()
	}

	if err := src.Seek(cam.Offset + start); err != nil {
		return sum, stageErr(e.key, StageOpen, err)
	}
	e.log.WithFields(logrus.Fields{
		"start":  start,
		"offset": cam.Offset,
		"count":  count,
		"skip":   e.skip,
	}).Info("extracting frames")

	progress := logging.NewProgress(e.log, 50*e.skip, count)
	factor := max(e.opts.Config.RescaleFactor, 1)
	for n := 0; n < count; n++ {
		f, err := src.Read()
		if errors.Is(err, io.EOF) {
			e.log.WithField("frame", start+n).Warn("reached end of stream")
			sum.EndOfData = true
			break
		}
		if err != nil {
			return sum, stageErr(e.key, StageOpen, fmt.Errorf("read frame %d: %w", start+n, err))
		}
		sum.Read++
		if n%e.skip != 0 {
			continue
		}

		frame := orient.Rotate(orient.Downscale(f.RGBA(), factor), cam.Rotation)
		out, report, err := rect.Rectify(frame)
		if err != nil {
			return sum, stageErr(e.key, StageRectification, fmt.Errorf("frame %d: %w", start+n, err))
		}
		sum.Clamping.Add(report)

		name := calibration.FrameFile(e.key, start+n)
		if err := e.opts.Writer.WriteImage(filepath.Join(e.outDir, name), out); err != nil {
			return sum, stageErr(e.key, StageOutput, err)
		}
		sum.Written++

		if qr != nil {
			if payload, corners, ok := e.opts.QR.Decode(out); ok {
				if err := qr.Add(start+n, payload, corners); err != nil {
					return sum, stageErr(e.key, StageOutput, err)
				}
				sum.QRCodes++
				e.log.WithFields(logrus.Fields{"frame": start + n, "qr": payload}).Info("QR code detected")
			}
		}
		progress.Tick(n, start+n)
	}

	fields := logrus.Fields{
		"written": sum.Written,
		"clamped": sum.Clamping.Clamped(),
	}
	if sum.Clamping.Values > 0 {
		fields["clamped_fraction"] = float64(sum.Clamping.Clamped()) / float64(sum.Clamping.Values)
	}
	e.log.WithFields(fields).Info("camera extracted")
	return sum, nil
}
