// Command rectify corrects still images (PNG, JPEG, TIFF) with an existing
// calibration. Inputs may be files or directories; with -watch, images
// appearing in the directories later are corrected as they arrive.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"grape-calib/internal/calibration"
	"grape-calib/internal/config"
	calimage "grape-calib/internal/image"
	"grape-calib/internal/logging"
	"grape-calib/internal/pipeline"
	"grape-calib/internal/rectify"
	"grape-calib/internal/version"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

type job struct {
	still   *pipeline.StillRectifier
	camera  int
	outDir  string
	quality int
	compare string
	log     *logging.Logger
}

func main() {
	calibDir := flag.String("k", "", "Calibration directory")
	outDir := flag.String("o", ".", "Output directory")
	camera := flag.Int("camera", 0, "Camera number 1 or 2 (default: from file name, else 1)")
	rotate := flag.Bool("rotate", false, "Apply the camera rotation first (raw frame grabs)")
	exposure := flag.Float64("e", 0, "Exposure gain (overrides config)")
	compare := flag.String("compare", "", "Also write a comparison: side-by-side or difference")
	watch := flag.Bool("watch", false, "Keep watching input directories for new images")
	cfgPath := flag.String("config", "", "YAML configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("rectify", version.String())
		return
	}
	if *calibDir == "" || flag.NArg() == 0 {
		fmt.Println("Usage: rectify -k <calibdir> [-o <outdir>] [-camera 1|2] [-rotate] [-watch] <image|dir>...")
		os.Exit(1)
	}
	if *compare != "" {
		if _, ok := calimage.ParseCompareMode(*compare); !ok {
			fmt.Fprintf(os.Stderr, "Unknown comparison %q\n", *compare)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *exposure > 0 {
		cfg.Extraction.Exposure = *exposure
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.NewLogger("rectify", cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Directory)

	rec, err := calibration.Load(*calibDir)
	if err != nil {
		log.WithError(err).Fatal("failed to read calibration")
	}
	still, err := pipeline.NewStillRectifier(rec, *calibDir, rectify.Config{Exposure: cfg.Extraction.Exposure})
	if err != nil {
		log.WithError(err).Fatal("failed to load illumination surfaces")
	}
	still.Rotate = *rotate
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.WithError(err).Fatal("failed to create output directory")
	}

	j := &job{
		still:   still,
		camera:  *camera - 1,
		outDir:  *outDir,
		quality: cfg.Extraction.JPEGQuality,
		compare: *compare,
		log:     log,
	}

	failed := 0
	var dirs []string
	for _, arg := range flag.Args() {
		st, err := os.Stat(arg)
		if err != nil {
			log.WithError(err).Error("skipping input")
			failed++
			continue
		}
		if !st.IsDir() {
			if err := j.process(arg); err != nil {
				failed++
			}
			continue
		}
		dirs = append(dirs, arg)
		entries, err := os.ReadDir(arg)
		if err != nil {
			log.WithError(err).Error("skipping directory")
			failed++
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !calimage.IsSupportedFormat(e.Name()) {
				continue
			}
			if err := j.process(filepath.Join(arg, e.Name())); err != nil {
				failed++
			}
		}
	}

	if *watch && len(dirs) > 0 {
		if err := j.watch(dirs); err != nil {
			log.WithError(err).Fatal("watch failed")
		}
		return
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// process corrects one image and writes <name>_rect.jpg (and the optional
// comparison PNG) to the output directory.
func (j *job) process(path string) error {
	log := j.log.WithField("input", path)
	st, err := calimage.Load(path)
	if err != nil {
		log.WithError(err).Error("failed to read image")
		return err
	}
	cam := j.camera
	if cam < 0 {
		cam = max(st.Camera, 0)
	}

	out, rep, err := j.still.Rectify(st.Image, cam)
	if err != nil {
		log.WithError(err).Error("rectification failed")
		return err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dst := filepath.Join(j.outDir, base+"_rect.jpg")
	if err := calimage.Save(dst, out, j.quality); err != nil {
		log.WithError(err).Error("failed to write image")
		return err
	}
	if mode, ok := calimage.ParseCompareMode(j.compare); ok {
		before := j.still.Upright(st.Image, cam)
		cmp := filepath.Join(j.outDir, base+"_"+mode.String()+".png")
		if err := calimage.Save(cmp, calimage.Compare(before, out, mode), j.quality); err != nil {
			log.WithError(err).Error("failed to write comparison")
			return err
		}
	}
	log.WithFields(logrus.Fields{
		"output":  dst,
		"camera":  calibration.Key(cam),
		"clamped": rep.Clamped(),
	}).Info("rectified")
	return nil
}

// watch processes images created in dirs until the process is stopped.
// Writes are settled for a short delay so partially written files are not
// decoded.
func (j *job) watch(dirs []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	j.log.WithField("dirs", dirs).Info("watching for new images")

	const settle = 500 * time.Millisecond
	pending := map[string]time.Time{}
	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !calimage.IsSupportedFormat(ev.Name) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
				j.log.InfoThrottled("watch-skip", 10*time.Second, "ignoring non-image file",
					logrus.Fields{"file": ev.Name})
				continue
			}
			pending[ev.Name] = time.Now()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			j.log.WithError(err).Warn("watcher error")
		case now := <-ticker.C:
			for path, seen := range pending {
				if now.Sub(seen) < settle {
					continue
				}
				delete(pending, path)
				j.process(path)
			}
		}
	}
}
