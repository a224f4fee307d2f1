// Package rectify removes vignetting and color cast from frames using a
// fitted illumination surface and white balance.
package rectify

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"grape-calib/pkg/colorutil"
	"grape-calib/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when the illumination surface cannot be
// resampled onto a frame without distorting it.
var ErrShapeMismatch = errors.New("illumination surface does not match frame shape")

// Config holds the optional correction parameters.
type Config struct {
	// Exposure is a global gain applied after correction. 0 means 1.
	Exposure float64
	// Epsilon floors the illumination before division. 0 means DefaultEpsilon.
	Epsilon float64
}

// DefaultEpsilon is the smallest illumination value divided by.
const DefaultEpsilon = 1e-3

// Report counts channel values that fell outside 0-255 and were clamped.
type Report struct {
	Under  int
	Over   int
	Values int
}

// Clamped returns the number of clamped channel values.
func (r Report) Clamped() int { return r.Under + r.Over }

// Add accumulates another report.
func (r *Report) Add(o Report) {
	r.Under += o.Under
	r.Over += o.Over
	r.Values += o.Values
}

// Rectifier applies one camera's correction. The surface it is built from is
// shared read-only; resampled copies are owned by the rectifier.
type Rectifier struct {
	surface  *mat.Dense
	gain     [3]float64
	exposure float64
	eps      float64

	mu     sync.Mutex
	cached *mat.Dense
}

// New builds a rectifier. surface is on the 0-255 luma scale it was fitted
// on; balance holds the white target's mean channel values on the same scale.
func New(surface *mat.Dense, balance colorutil.Balance, cfg Config) (*Rectifier, error) {
	if surface == nil {
		return nil, errors.New("rectifier needs an illumination surface")
	}
	if !balance.Valid() {
		return nil, fmt.Errorf("invalid white balance %+v", balance)
	}
	r := &Rectifier{
		surface:  surface,
		exposure: cfg.Exposure,
		eps:      cfg.Epsilon,
	}
	if r.exposure == 0 {
		r.exposure = 1
	}
	if r.eps <= 0 {
		r.eps = DefaultEpsilon
	}
	for i, wb := range balance.Channels() {
		r.gain[i] = 255 / wb
	}
	return r, nil
}

// Rectify returns the corrected frame:
//
//	out[X] = clamp(in[X] / (illum/255) * 255/wb[X] * exposure)
//
// resampling the surface when its size differs from the frame.
func (r *Rectifier) Rectify(frame *image.RGBA) (*image.RGBA, Report, error) {
	b := frame.Bounds()
	illum, err := r.surfaceFor(geometry.SizeOf(b))
	if err != nil {
		return nil, Report{}, err
	}

	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	raw := illum.RawMatrix()
	var rep Report
	for y := 0; y < b.Dy(); y++ {
		src := frame.Pix[frame.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := out.Pix[y*out.Stride:]
		lrow := raw.Data[y*raw.Stride:]
		for x := 0; x < b.Dx(); x++ {
			k := 255 / math.Max(lrow[x], r.eps) * r.exposure
			for c := 0; c < 3; c++ {
				v, dir := colorutil.ClampByte(float64(src[x*4+c]) * k * r.gain[c])
				dst[x*4+c] = v
				switch dir {
				case -1:
					rep.Under++
				case 1:
					rep.Over++
				}
			}
			dst[x*4+3] = 255
		}
	}
	rep.Values = b.Dx() * b.Dy() * 3
	return out, rep, nil
}

func (r *Rectifier) surfaceFor(size geometry.Size) (*mat.Dense, error) {
	rows, cols := r.surface.Dims()
	if rows == size.Height && cols == size.Width {
		return r.surface, nil
	}
	if err := CheckAspect(geometry.Size{Width: cols, Height: rows}, size); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != nil {
		if cr, cc := r.cached.Dims(); cr == size.Height && cc == size.Width {
			return r.cached, nil
		}
	}
	r.cached = Resample(r.surface, size.Height, size.Width)
	return r.cached, nil
}

// CheckAspect verifies that a surface of size from can be scaled onto a frame
// of size to. Integer downscaling truncates, so one source pixel per frame
// pixel of slack is allowed.
func CheckAspect(from, to geometry.Size) error {
	if from.Empty() || to.Empty() {
		return fmt.Errorf("%w: surface %s, frame %s", ErrShapeMismatch, from, to)
	}
	sx := float64(from.Width) / float64(to.Width)
	sy := float64(from.Height) / float64(to.Height)
	expected := float64(to.Height) * sx
	if math.Abs(expected-float64(from.Height)) > math.Max(sx, sy)+1 {
		return fmt.Errorf("%w: surface %s (aspect %.4f) vs frame %s (aspect %.4f)",
			ErrShapeMismatch, from, float64(from.Width)/float64(from.Height),
			to, float64(to.Width)/float64(to.Height))
	}
	return nil
}

// Resample scales a surface to rows×cols with bilinear interpolation on pixel
// centres.
func Resample(src *mat.Dense, rows, cols int) *mat.Dense {
	sr, sc := src.Dims()
	out := mat.NewDense(rows, cols, nil)
	raw := out.RawMatrix()
	fy := float64(sr) / float64(rows)
	fx := float64(sc) / float64(cols)
	for i := 0; i < rows; i++ {
		y0, y1, wy := sampleAxis(i, fy, sr)
		row := raw.Data[i*raw.Stride : i*raw.Stride+cols]
		for j := range row {
			x0, x1, wx := sampleAxis(j, fx, sc)
			top := src.At(y0, x0)*(1-wx) + src.At(y0, x1)*wx
			bottom := src.At(y1, x0)*(1-wx) + src.At(y1, x1)*wx
			row[j] = top*(1-wy) + bottom*wy
		}
	}
	return out
}

func sampleAxis(i int, scale float64, n int) (int, int, float64) {
	p := (float64(i)+0.5)*scale - 0.5
	if p <= 0 {
		return 0, 0, 0
	}
	if p >= float64(n-1) {
		return n - 1, n - 1, 0
	}
	i0 := int(p)
	return i0, i0 + 1, p - float64(i0)
}
