package orient

import (
	"errors"
	"fmt"
	"io"

	"grape-calib/internal/video"
)

// DefaultProbeFrames is the number of frames GuessOrientation inspects.
const DefaultProbeFrames = 100

// GuessOrientation estimates the rotation that brings footage upright.
//
// Frames are expected in portrait with the blue backdrop in the lower half.
// Landscape footage gets a quarter turn. If the blue mass then sits in the top
// half, a half turn is added: landscape footage gets 270 and portrait footage
// gets 180. Sampling starts a quarter into the
// stream to skip the setup part of the take.
func GuessOrientation(src video.Source, probeFrames int) (float64, error) {
	if probeFrames <= 0 {
		probeFrames = DefaultProbeFrames
	}
	meta := src.Metadata()
	if err := src.Seek(meta.FrameCount / 4); err != nil {
		return 0, fmt.Errorf("seek for orientation probe: %w", err)
	}

	angle := 0.0
	if meta.Height < meta.Width {
		angle = 90
	}

	var top, bottom uint64
	n := 0
	for n < probeFrames {
		f, err := src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		upright := Rotate(f.RGBA(), angle)
		b := upright.Bounds()
		half := b.Dy() / 2
		for y := 0; y < b.Dy(); y++ {
			row := upright.Pix[y*upright.Stride : y*upright.Stride+b.Dx()*4]
			var sum uint64
			for i := 2; i < len(row); i += 4 {
				sum += uint64(row[i])
			}
			if y < half {
				top += sum
			} else if y >= b.Dy()-half {
				bottom += sum
			}
		}
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("orientation probe: %w", io.ErrUnexpectedEOF)
	}
	if top > bottom {
		angle = NormalizeAngle(angle + 180)
	}
	return angle, nil
}
