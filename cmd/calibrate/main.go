// Command calibrate computes the white balance and illumination surface of
// the cameras of an annotated take and writes a calibration directory.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"grape-calib/internal/annotation"
	"grape-calib/internal/config"
	"grape-calib/internal/cvio"
	"grape-calib/internal/logging"
	"grape-calib/internal/orient"
	"grape-calib/internal/pipeline"
	"grape-calib/internal/video"
	"grape-calib/internal/version"

	"github.com/sirupsen/logrus"
)

func openCapture(log logrus.FieldLogger) pipeline.Opener {
	return func(path string) (video.Source, error) {
		c, err := cvio.OpenCapture(path)
		if err != nil {
			return nil, err
		}
		c.Logger = log
		return c, nil
	}
}

func main() {
	annPath := flag.String("a", "", "Annotation JSON file")
	acqDir := flag.String("D", "", "Acquisition directory holding <camera>/<camera>_toma<take>_parte1.mp4 (default: annotation directory)")
	outDir := flag.String("o", "", "Output calibration directory (default: annotation name with .calib)")
	cfgPath := flag.String("config", "", "YAML configuration file")
	rescale := flag.Int("r", 0, "Rescale factor before accumulation (overrides config)")
	order := flag.Int("order", 0, "Polynomial order, 2 or 3 (overrides config)")
	maxFrames := flag.Int("max-frames", -1, "Cap on white frames per camera, 0 = whole window (overrides config)")
	parallel := flag.Bool("parallel", false, "Calibrate cameras concurrently")
	guess := flag.Bool("guess-rotation", false, "Guess rotation for cameras annotated with 0")
	logLevel := flag.String("log-level", "", "Log level (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("calibrate", version.String())
		return
	}
	if *annPath == "" {
		fmt.Println("Usage: calibrate -a <annotation.json> [-D <acqdir>] [-o <calibdir>] [-config <file>]")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *rescale > 0 {
		cfg.Calibration.RescaleFactor = *rescale
	}
	if *order > 0 {
		cfg.Calibration.Order = *order
	}
	if *maxFrames >= 0 {
		cfg.Calibration.MaxFrames = *maxFrames
	}
	if *parallel {
		cfg.Parallel = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewLogger("calibrate", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Directory)

	ann, err := annotation.Load(*annPath)
	if err != nil {
		log.WithError(err).Fatal("failed to read annotations")
	}
	if *acqDir == "" {
		*acqDir = filepath.Dir(*annPath)
	}
	if *outDir == "" {
		*outDir = annotation.CalibrationDir(*annPath)
	}

	videos := make([]string, ann.NumCameras())
	for i := range videos {
		videos[i] = ann.VideoPath(*acqDir, i)
	}
	if *guess {
		guessRotations(ann, videos, log)
	}

	log.WithFields(logrus.Fields{
		"annotation": *annPath,
		"cameras":    ann.NumCameras(),
		"output":     *outDir,
		"rescale":    cfg.Calibration.RescaleFactor,
		"order":      cfg.Calibration.Order,
		"version":    version.Version,
	}).Info("starting calibration")

	res, err := pipeline.Calibrate(ann, videos, *outDir, pipeline.CalibrateOptions{
		Config:   cfg.Calibration,
		Parallel: cfg.Parallel,
		Open:     openCapture(log),
		Writer:   cvio.ImageWriter{JPEGQuality: cfg.Extraction.JPEGQuality},
		Logger:   log,
		Version:  version.Version,
	})
	if err != nil {
		log.WithError(err).Fatal("calibration failed")
	}
	if len(res.Failures) > 0 {
		log.WithField("failed", len(res.Failures)).Error("calibration incomplete")
		os.Exit(1)
	}
}

// guessRotations fills in the rotation of cameras annotated upright.
func guessRotations(ann *annotation.Annotations, videos []string, log *logging.Logger) {
	for i, path := range videos {
		if ann.Rotation[i] != 0 {
			continue
		}
		src, err := cvio.OpenCapture(path)
		if err != nil {
			log.WithError(err).WithField("input", path).Warn("cannot guess rotation")
			continue
		}
		src.Logger = log
		angle, err := orient.GuessOrientation(src, orient.DefaultProbeFrames)
		src.Close()
		if err != nil {
			log.WithError(err).WithField("input", path).Warn("cannot guess rotation")
			continue
		}
		ann.Rotation[i] = angle
		log.WithFields(logrus.Fields{"input": path, "rotation": angle}).Info("rotation guessed")
	}
}
