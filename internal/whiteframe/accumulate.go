// Package whiteframe accumulates the statistics of a white calibration target
// filmed over a window of frames: a saturation-aware brightness maximum map
// and the per-channel sums used for white balance.
package whiteframe

import (
	"errors"
	"fmt"
	"image"
	"io"

	"grape-calib/internal/logging"
	"grape-calib/internal/orient"
	"grape-calib/internal/video"
	"grape-calib/pkg/colorutil"
	"grape-calib/pkg/geometry"

	"github.com/sirupsen/logrus"
)

// PreviewSink receives diagnostic rasters during accumulation.
type PreviewSink interface {
	Preview(camera string, frame int, img *image.RGBA) error
}

// Config controls a single camera's accumulation run.
type Config struct {
	// Camera names the stream in logs and previews (e.g. "camera1").
	Camera string
	// Downscale is the integer shrink factor applied before any numeric work.
	// Values below 1 mean 1.
	Downscale int
	// Rotation brings frames upright; see orient.Rotate.
	Rotation float64
	// PreviewEvery emits a preview every N processed frames; 0 disables.
	PreviewEvery int
	Preview      PreviewSink
	Logger       logrus.FieldLogger
}

func (c Config) downscale() int {
	if c.Downscale < 1 {
		return 1
	}
	return c.Downscale
}

// ChannelMeans holds channel sums over non-saturated pixels and the number of
// pixels summed.
type ChannelMeans struct {
	Red, Green, Blue uint64
	Valid            uint64
}

// WhiteBalance returns the mean channel intensities. It fails when no valid
// pixel was ever seen.
func (m ChannelMeans) WhiteBalance() (colorutil.Balance, error) {
	if m.Valid == 0 {
		return colorutil.Balance{}, errors.New("no unsaturated pixels to derive white balance")
	}
	n := float64(m.Valid)
	return colorutil.Balance{
		Red:   float64(m.Red) / n,
		Green: float64(m.Green) / n,
		Blue:  float64(m.Blue) / n,
	}, nil
}

// Maps is the working state of an accumulation. It is sized once and only
// accepts frames of that size.
type Maps struct {
	Max   *image.Gray
	Means ChannelMeans
}

// NewMaps allocates maps for upright working frames of the given size.
func NewMaps(size geometry.Size) *Maps {
	return &Maps{Max: image.NewGray(image.Rect(0, 0, size.Width, size.Height))}
}

// Size returns the working raster size.
func (m *Maps) Size() geometry.Size {
	return geometry.SizeOf(m.Max.Bounds())
}

// Fold adds one upright RGB frame: the map takes the pointwise maximum with
// the frame's luma, and unsaturated pixels contribute to the channel sums.
func (m *Maps) Fold(img *image.RGBA) error {
	b := img.Bounds()
	if got := geometry.SizeOf(b); got != m.Size() {
		return fmt.Errorf("frame size %s does not match accumulator size %s", got, m.Size())
	}
	var r, g, bl, valid uint64
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := m.Max.Pix[y*m.Max.Stride:]
		for x := 0; x < b.Dx(); x++ {
			p := src[x*4 : x*4+3 : x*4+3]
			l := colorutil.Luma(p[0], p[1], p[2])
			if l > dst[x] {
				dst[x] = l
			}
			if l < colorutil.Saturated {
				r += uint64(p[0])
				g += uint64(p[1])
				bl += uint64(p[2])
				valid++
			}
		}
	}
	m.Means.Red += r
	m.Means.Green += g
	m.Means.Blue += bl
	m.Means.Valid += valid
	return nil
}

// Stats is the result of an accumulation run.
type Stats struct {
	*Maps
	// Native is the upright frame size before downscaling.
	Native geometry.Size
	// Downscale is the factor the maps were computed at.
	Downscale   int
	FramesRead  int
	EndOfStream bool
}

// Accumulator runs the calibration window of one camera.
type Accumulator struct {
	cfg Config
	log logrus.FieldLogger
}

// New returns an accumulator for cfg.
func New(cfg Config) *Accumulator {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Accumulator{cfg: cfg, log: log.WithField("camera", cfg.Camera)}
}

// Prepare converts a native frame into the upright RGB working raster.
func (a *Accumulator) Prepare(f *video.Frame) *image.RGBA {
	img := orient.Downscale(f.RGBA(), a.cfg.downscale())
	return orient.Rotate(img, a.cfg.Rotation)
}

// Accumulate reads up to count frames starting at camera-relative frame
// start. A stream that ends early is not an error: the result covers the
// frames actually read and has EndOfStream set.
func (a *Accumulator) Accumulate(src video.Source, start, count int) (*Stats, error) {
	meta := src.Metadata()
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, fmt.Errorf("%s: %w: no frame size reported", a.cfg.Camera, video.ErrSourceUnavailable)
	}
	native := orient.RotatedSize(meta.Size(), a.cfg.Rotation)
	stats := &Stats{
		Native:    native,
		Downscale: a.cfg.downscale(),
	}
	if count <= 0 {
		stats.Maps = NewMaps(orient.RotatedSize(meta.Size().Div(stats.Downscale), a.cfg.Rotation))
		return stats, nil
	}
	if err := src.Seek(start); err != nil {
		return nil, fmt.Errorf("seek to frame %d: %w", start, err)
	}

	first, err := src.Read()
	if errors.Is(err, io.EOF) {
		a.log.WithField("frame", start).Warn("reached end of stream before the calibration window")
		stats.Maps = NewMaps(orient.RotatedSize(meta.Size().Div(stats.Downscale), a.cfg.Rotation))
		stats.EndOfStream = true
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read frame %d: %w", start, err)
	}
	stats.Native = orient.RotatedSize(geometry.Size{Width: first.Width, Height: first.Height}, a.cfg.Rotation)

	working := a.Prepare(first)
	stats.Maps = NewMaps(geometry.SizeOf(working.Bounds()))
	progress := logging.NewProgress(a.log, max(a.cfg.PreviewEvery, 10), count)

	for n := 0; ; {
		if err := stats.Fold(working); err != nil {
			return nil, fmt.Errorf("frame %d: %w", start+n, err)
		}
		a.preview(start+n, n, working)
		progress.Tick(n, start+n)
		n++
		stats.FramesRead = n
		if n >= count {
			break
		}

		f, err := src.Read()
		if errors.Is(err, io.EOF) {
			a.log.WithFields(logrus.Fields{"frame": start + n, "read": n, "requested": count}).
				Warn("reached end of stream")
			stats.EndOfStream = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame %d: %w", start+n, err)
		}
		working = a.Prepare(f)
	}

	a.log.WithFields(logrus.Fields{
		"frames":  stats.FramesRead,
		"valid":   stats.Means.Valid,
		"working": stats.Size().String(),
	}).Info("white frame accumulated")
	return stats, nil
}

func (a *Accumulator) preview(frame, n int, img *image.RGBA) {
	if a.cfg.Preview == nil || a.cfg.PreviewEvery <= 0 || n%a.cfg.PreviewEvery != 0 {
		return
	}
	if err := a.cfg.Preview.Preview(a.cfg.Camera, frame, img); err != nil {
		a.log.WithError(err).WithField("frame", frame).Warn("preview not written")
	}
}
