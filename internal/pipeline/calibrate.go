package pipeline

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"grape-calib/internal/annotation"
	"grape-calib/internal/calibration"
	"grape-calib/internal/config"
	"grape-calib/internal/illum"
	"grape-calib/internal/video"
	"grape-calib/internal/whiteframe"
	"grape-calib/pkg/geometry"

	"github.com/sirupsen/logrus"
)

// CalibrateOptions configures a calibration run.
type CalibrateOptions struct {
	Config config.CalibrationConfig
	// Parallel processes the cameras concurrently.
	Parallel bool
	Open     Opener
	Writer   ImageWriter
	Logger   logrus.FieldLogger
	Version  string
}

// CalibrateResult is the outcome of a run. Record holds every camera that
// calibrated successfully; Failures the ones that did not.
type CalibrateResult struct {
	Record   *calibration.Record
	Failures []*StageError
}

// Calibrate computes the white balance and illumination surface of every
// annotated camera and writes the calibration directory outDir.
//
// All sources are opened before any work starts and an open failure aborts
// the run. After that, cameras are isolated: a camera that fails is logged,
// left out of the record and reported in Failures. An error is returned only
// when no camera could be calibrated or the record could not be saved.
func Calibrate(ann *annotation.Annotations, videos []string, outDir string, opts CalibrateOptions) (*CalibrateResult, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := ann.NumCameras()
	if len(videos) != n {
		return nil, fmt.Errorf("annotations name %d cameras, got %d videos", n, len(videos))
	}
	if !ann.White.Set() {
		return nil, ErrNoWhiteWindow
	}
	count := ann.White.Len()
	if opts.Config.MaxFrames > 0 && count > opts.Config.MaxFrames {
		count = opts.Config.MaxFrames
	}

	offsets, diag := ann.Offsets()
	diag.Log(log)
	log.WithFields(logrus.Fields{
		"offset1": offsets[0],
		"offset2": offsets[1],
		"frames":  count,
	}).Info("frame offsets resolved")

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	sources := make([]video.Source, n)
	defer closeAll(sources)
	for i, path := range videos {
		src, err := opts.Open(path)
		if err != nil {
			return nil, stageErr(calibration.Key(i), StageOpen, err)
		}
		sources[i] = src
	}

	cameras := make([]*calibration.Camera, n)
	failures := make([]*StageError, n)
	run := func(i int) {
		job := cameraJob{
			index:  i,
			name:   ann.Camera(i),
			input:  videos[i],
			start:  ann.White.Start + offsets[i],
			count:  count,
			offset: offsets[i],
			rot:    ann.Rotation[i],
			crop:   ann.Crop,
			outDir: outDir,
			opts:   &opts,
			log:    log.WithField("camera", calibration.Key(i)),
		}
		cameras[i], failures[i] = job.run(sources[i])
	}

	if opts.Parallel && n > 1 {
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := 0; i < n; i++ {
			run(i)
		}
	}

	res := &CalibrateResult{Record: calibration.New(opts.Version)}
	for i := 0; i < n; i++ {
		if failures[i] != nil {
			log.WithError(failures[i].Err).WithFields(logrus.Fields{
				"camera": failures[i].Camera,
				"stage":  failures[i].Stage,
			}).Error("camera calibration failed")
			res.Failures = append(res.Failures, failures[i])
			continue
		}
		res.Record.SetCamera(i, cameras[i])
	}
	if res.Record.NumCameras == 0 {
		return res, fmt.Errorf("no camera calibrated: %w", joinFailures(res.Failures))
	}
	if err := res.Record.Save(outDir); err != nil {
		return res, fmt.Errorf("save calibration: %w", err)
	}
	log.WithFields(logrus.Fields{
		"dir":     outDir,
		"cameras": res.Record.NumCameras,
	}).Info("calibration written")
	return res, nil
}

type cameraJob struct {
	index  int
	name   string
	input  string
	start  int
	count  int
	offset int
	rot    float64
	crop   *geometry.CropBox
	outDir string
	opts   *CalibrateOptions
	log    logrus.FieldLogger
}

func (j *cameraJob) run(src video.Source) (*calibration.Camera, *StageError) {
	key := calibration.Key(j.index)
	cfg := j.opts.Config

	wcfg := whiteframe.Config{
		Camera:    key,
		Downscale: cfg.RescaleFactor,
		Rotation:  j.rot,
		Logger:    j.log,
	}
	if j.opts.Writer != nil {
		wcfg.PreviewEvery = cfg.PreviewEvery
		wcfg.Preview = previewSink{dir: j.outDir, writer: j.opts.Writer}
	}
	acc := whiteframe.New(wcfg)
	j.log.WithFields(logrus.Fields{
		"input": j.input,
		"start": j.start,
		"count": j.count,
	}).Info("accumulating white frame")
	stats, err := acc.Accumulate(src, j.start, j.count)
	if err != nil {
		return nil, stageErr(key, StageAccumulation, err)
	}
	wb, err := stats.Means.WhiteBalance()
	if err != nil {
		return nil, stageErr(key, StageAccumulation, fmt.Errorf("%d frames read: %w", stats.FramesRead, err))
	}

	var cropOrig, cropRescaled *geometry.CropBox
	if j.crop != nil {
		if err := j.crop.Validate(stats.Native); err != nil {
			return nil, stageErr(key, StageFitting, err)
		}
		orig := *j.crop
		scaled := orig.Scale(stats.Downscale).Clip(stats.Size())
		if err := scaled.Validate(stats.Size()); err != nil {
			return nil, stageErr(key, StageFitting, fmt.Errorf("rescaled %w", err))
		}
		cropOrig, cropRescaled = &orig, &scaled
	}

	model, err := illum.Fit(stats.Max, cropRescaled, illum.Order(cfg.Order), stats.Native)
	if err != nil {
		return nil, stageErr(key, StageFitting, err)
	}
	j.log.WithFields(logrus.Fields{
		"order":   model.Order,
		"samples": model.Samples,
		"rank":    model.Rank,
		"rss":     model.RSS,
	}).Info("illumination surface fitted")

	cam := &calibration.Camera{
		Name:            j.name,
		InputFile:       j.input,
		FPS:             src.Metadata().FPS,
		Rotation:        j.rot,
		Offset:          j.offset,
		WhiteBalance:    wb,
		Order:           model.Order,
		Parameters:      model.Coefficients,
		Matrix:          calibration.SurfaceFile(j.index),
		ParametricImage: calibration.ParametricImageFile(j.index),
		AverageImage:    calibration.AverageImageFile(j.index),
		CropRescaled:    cropRescaled,
		CropOrig:        cropOrig,
		RescaleFactor:   stats.Downscale,
		NativeWidth:     stats.Native.Width,
		NativeHeight:    stats.Native.Height,
		FramesUsed:      stats.FramesRead,
		SamplesUsed:     model.Samples,
		RSS:             model.RSS,
	}
	if err := j.writeOutputs(cam, model, stats.Max, cropRescaled); err != nil {
		return nil, stageErr(key, StageOutput, err)
	}
	return cam, nil
}

// writeOutputs writes the preview images and then the surface. On failure the
// files already written are removed, so a camera left out of the record
// leaves nothing behind.
func (j *cameraJob) writeOutputs(cam *calibration.Camera, model *illum.Model, maxMap *image.Gray, crop *geometry.CropBox) (err error) {
	var written []string
	defer func() {
		if err != nil {
			for _, path := range written {
				os.Remove(path)
			}
		}
	}()

	if j.opts.Writer != nil {
		path := filepath.Join(j.outDir, cam.ParametricImage)
		if err := j.opts.Writer.WriteImage(path, illum.Preview(model.Surface)); err != nil {
			return err
		}
		written = append(written, path)

		var average image.Image = maxMap
		if crop != nil {
			average = maxMap.SubImage(crop.Rect())
		}
		path = filepath.Join(j.outDir, cam.AverageImage)
		if err := j.opts.Writer.WriteImage(path, average); err != nil {
			return err
		}
		written = append(written, path)
	} else {
		cam.ParametricImage, cam.AverageImage = "", ""
	}

	path := filepath.Join(j.outDir, cam.Matrix)
	if err := calibration.SaveSurface(path, model.Surface); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
