// Package video defines the frame source consumed by the calibration and
// extraction pipelines. Decoding lives behind the Source interface so the
// numeric code never depends on a particular seek strategy or codec.
package video

import (
	"errors"
	"fmt"
	"image"
	"io"

	"grape-calib/pkg/geometry"

	"github.com/sirupsen/logrus"
)

// ErrSourceUnavailable is returned when a frame source cannot be opened.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// ChannelOrder is the byte order of the three color channels in a Frame.
type ChannelOrder int

const (
	OrderBGR ChannelOrder = iota // OpenCV native order
	OrderRGB
)

func (o ChannelOrder) String() string {
	if o == OrderRGB {
		return "RGB"
	}
	return "BGR"
}

// Metadata describes a frame source.
type Metadata struct {
	FrameCount int
	FPS        float64
	Width      int
	Height     int
	Order      ChannelOrder
}

// Size returns the native frame size.
func (m Metadata) Size() geometry.Size {
	return geometry.Size{Width: m.Width, Height: m.Height}
}

// Frame is one decoded raster in the source's native channel order, packed
// as 3 bytes per pixel, row-major.
type Frame struct {
	Index  int
	Width  int
	Height int
	Order  ChannelOrder
	Pix    []uint8
}

// RGBA converts the frame into an opaque RGBA image, reordering channels
// according to the frame's declared order.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	ri, bi := 0, 2
	if f.Order == OrderBGR {
		ri, bi = 2, 0
	}
	n := f.Width * f.Height
	for i := 0; i < n; i++ {
		s := f.Pix[i*3 : i*3+3 : i*3+3]
		d := img.Pix[i*4 : i*4+4 : i*4+4]
		d[0] = s[ri]
		d[1] = s[1]
		d[2] = s[bi]
		d[3] = 255
	}
	return img
}

// Source is an ordered, seekable sequence of frames. Read returns io.EOF at
// the end of the stream.
type Source interface {
	Metadata() Metadata
	// Seek positions the source so the next Read returns frame n.
	Seek(n int) error
	Read() (*Frame, error)
	Close() error
}

// SeekLanding reconciles where a seek to frame want actually landed. Container
// seeks can stop a few frames off the request; that is logged and the reached
// frame is returned. A negative position means the seek failed.
func SeekLanding(log logrus.FieldLogger, name string, want, got int) (int, error) {
	if got < 0 {
		return 0, fmt.Errorf("%s: seek to frame %d failed", name, want)
	}
	if got != want && log != nil {
		log.WithFields(logrus.Fields{
			"input":     name,
			"requested": want,
			"reached":   got,
			"drift":     got - want,
		}).Warn("inexact seek")
	}
	return got, nil
}

// FrameFromImage packs an image into a Frame with the given channel order.
func FrameFromImage(img image.Image, index int, order ChannelOrder) *Frame {
	b := img.Bounds()
	f := &Frame{
		Index:  index,
		Width:  b.Dx(),
		Height: b.Dy(),
		Order:  order,
		Pix:    make([]uint8, b.Dx()*b.Dy()*3),
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			if order == OrderBGR {
				f.Pix[i], f.Pix[i+1], f.Pix[i+2] = uint8(bl>>8), uint8(g>>8), uint8(r>>8)
			} else {
				f.Pix[i], f.Pix[i+1], f.Pix[i+2] = uint8(r>>8), uint8(g>>8), uint8(bl>>8)
			}
			i += 3
		}
	}
	return f
}

// SliceSource serves frames from memory. It is used for still images and
// synthetic sequences.
type SliceSource struct {
	frames []*Frame
	fps    float64
	pos    int
}

// NewSliceSource builds a source over images, stored in the given channel order.
func NewSliceSource(images []image.Image, fps float64, order ChannelOrder) *SliceSource {
	s := &SliceSource{fps: fps}
	for i, img := range images {
		s.frames = append(s.frames, FrameFromImage(img, i, order))
	}
	return s
}

// Metadata implements Source.
func (s *SliceSource) Metadata() Metadata {
	m := Metadata{FrameCount: len(s.frames), FPS: s.fps}
	if len(s.frames) > 0 {
		m.Width = s.frames[0].Width
		m.Height = s.frames[0].Height
		m.Order = s.frames[0].Order
	}
	return m
}

// Seek implements Source.
func (s *SliceSource) Seek(n int) error {
	if n < 0 {
		return fmt.Errorf("seek to negative frame %d", n)
	}
	s.pos = n
	return nil
}

// Read implements Source.
func (s *SliceSource) Read() (*Frame, error) {
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Close implements Source.
func (s *SliceSource) Close() error { return nil }
