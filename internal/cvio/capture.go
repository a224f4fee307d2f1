// Package cvio adapts OpenCV (through gocv) to the pipeline's frame source,
// QR decoder and image writer interfaces. It is the only package that links
// against OpenCV.
package cvio

import (
	"fmt"
	"io"

	"grape-calib/internal/video"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Capture is a video.Source backed by an OpenCV VideoCapture. Frames come out
// in OpenCV's BGR order.
type Capture struct {
	path string
	cap  *gocv.VideoCapture
	buf  gocv.Mat
	meta video.Metadata
	pos  int
	// Logger receives inexact seek warnings. Nil means the logrus standard
	// logger.
	Logger logrus.FieldLogger
}

// OpenCapture opens a video file. Failures wrap video.ErrSourceUnavailable.
func OpenCapture(path string) (*Capture, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, video.ErrSourceUnavailable, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%s: %w", path, video.ErrSourceUnavailable)
	}

	c := &Capture{
		path: path,
		cap:  vc,
		buf:  gocv.NewMat(),
		meta: video.Metadata{
			FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
			FPS:        vc.Get(gocv.VideoCaptureFPS),
			Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
			Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
			Order:      video.OrderBGR,
		},
	}
	return c, nil
}

// Path returns the file the capture reads.
func (c *Capture) Path() string { return c.path }

// Metadata implements video.Source.
func (c *Capture) Metadata() video.Metadata { return c.meta }

// Seek implements video.Source using the container's frame index.
func (c *Capture) Seek(n int) error {
	if n < 0 {
		return fmt.Errorf("seek to negative frame %d", n)
	}
	if n == c.pos {
		return nil
	}
	c.cap.Set(gocv.VideoCapturePosFrames, float64(n))
	log := c.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	got, err := video.SeekLanding(log, c.path, n, int(c.cap.Get(gocv.VideoCapturePosFrames)))
	if err != nil {
		return err
	}
	c.pos = got
	return nil
}

// Read implements video.Source. It returns io.EOF once the decoder yields no
// more frames.
func (c *Capture) Read() (*video.Frame, error) {
	if ok := c.cap.Read(&c.buf); !ok || c.buf.Empty() {
		return nil, io.EOF
	}
	if c.buf.Channels() != 3 || c.buf.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("%s: unexpected frame type %v", c.path, c.buf.Type())
	}
	f := &video.Frame{
		Index:  c.pos,
		Width:  c.buf.Cols(),
		Height: c.buf.Rows(),
		Order:  video.OrderBGR,
		Pix:    c.buf.ToBytes(),
	}
	c.pos++
	return f, nil
}

// Close implements video.Source.
func (c *Capture) Close() error {
	c.buf.Close()
	return c.cap.Close()
}
