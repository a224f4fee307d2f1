// Package illum fits a smooth polynomial illumination surface to the
// brightness maximum map of a white target and evaluates it at native
// resolution.
package illum

import (
	"fmt"
	"image"

	"grape-calib/pkg/colorutil"

	"gonum.org/v1/gonum/mat"
)

// Order is the total degree of the polynomial surface.
type Order int

const (
	Quadratic Order = 2
	Cubic     Order = 3
)

// Terms returns the basis size for the order, or 0 if unsupported.
func (o Order) Terms() int {
	switch o {
	case Quadratic:
		return 6
	case Cubic:
		return 10
	}
	return 0
}

// Valid reports whether the order is supported.
func (o Order) Valid() bool { return o.Terms() > 0 }

// OrderForTerms maps a coefficient count back to its order.
func OrderForTerms(n int) (Order, error) {
	switch n {
	case 6:
		return Quadratic, nil
	case 10:
		return Cubic, nil
	}
	return 0, fmt.Errorf("no polynomial order has %d terms", n)
}

// basis fills dst with the monomials of (r, c) in coefficient order:
// 1, r, c, r·c, r², c² and for cubic r²c, rc², r³, c³.
func basis(dst []float64, r, c float64) {
	dst[0] = 1
	dst[1] = r
	dst[2] = c
	dst[3] = r * c
	dst[4] = r * r
	dst[5] = c * c
	if len(dst) > 6 {
		dst[6] = r * r * c
		dst[7] = r * c * c
		dst[8] = r * r * r
		dst[9] = c * c * c
	}
}

// Model is a fitted illumination surface.
type Model struct {
	Order        Order
	Coefficients []float64
	// Surface is the polynomial evaluated at every native pixel, on the same
	// 0-255 luma scale as the map it was fitted to.
	Surface *mat.Dense

	// Fit diagnostics.
	Samples int
	Rank    int
	RSS     float64
}

// NewModel rebuilds a model from stored coefficients.
func NewModel(coefficients []float64) (*Model, error) {
	order, err := OrderForTerms(len(coefficients))
	if err != nil {
		return nil, err
	}
	return &Model{Order: order, Coefficients: append([]float64(nil), coefficients...)}, nil
}

// At evaluates the polynomial at normalized coordinates (r, c).
func (m *Model) At(r, c float64) float64 {
	var terms [10]float64
	t := terms[:len(m.Coefficients)]
	basis(t, r, c)
	var v float64
	for i, a := range m.Coefficients {
		v += a * t[i]
	}
	return v
}

// Evaluate returns the surface over a rows×cols grid using row/rows and
// col/cols as normalized coordinates.
func (m *Model) Evaluate(rows, cols int) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	raw := out.RawMatrix()
	for i := 0; i < rows; i++ {
		r := float64(i) / float64(rows)
		row := raw.Data[i*raw.Stride : i*raw.Stride+cols]
		for j := range row {
			row[j] = m.At(r, float64(j)/float64(cols))
		}
	}
	return out
}

// Preview renders a surface for display, scaled so its maximum maps to 255.
// The rendering is never used for correction.
func Preview(surface *mat.Dense) *image.Gray {
	rows, cols := surface.Dims()
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	peak := mat.Max(surface)
	if peak <= 0 {
		return img
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			img.Pix[i*img.Stride+j], _ = colorutil.ClampByte(surface.At(i, j) * 255 / peak)
		}
	}
	return img
}
