package illum

import (
	"errors"
	"fmt"
	"image"
	"math"

	"grape-calib/pkg/colorutil"
	"grape-calib/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientSamples is returned when fewer unsaturated cells than basis
// terms are available.
var ErrInsufficientSamples = errors.New("insufficient unsaturated samples")

// Fit fits a polynomial surface of the given order to the unsaturated cells of
// maxMap and evaluates it over a native-size grid.
//
// crop, when set, is in map coordinates and restricts which cells are used.
// Coordinates are always normalized by the full map size so the surface stays
// in the frame of the whole image and extrapolates outside the crop.
func Fit(maxMap *image.Gray, crop *geometry.CropBox, order Order, native geometry.Size) (*Model, error) {
	if !order.Valid() {
		return nil, fmt.Errorf("unsupported polynomial order %d", order)
	}
	b := maxMap.Bounds()
	size := geometry.SizeOf(b)
	if size.Empty() {
		return nil, fmt.Errorf("%w: empty brightness map", ErrInsufficientSamples)
	}
	region := geometry.CropBox{Bottom: size.Height, Right: size.Width}
	if crop != nil {
		if err := crop.Validate(size); err != nil {
			return nil, fmt.Errorf("fit region: %w", err)
		}
		region = *crop
	}

	k := order.Terms()
	var rows [][]float64
	var values []float64
	for i := region.Top; i < region.Bottom; i++ {
		r := float64(i) / float64(size.Height)
		for j := region.Left; j < region.Right; j++ {
			v := maxMap.GrayAt(b.Min.X+j, b.Min.Y+i).Y
			if v >= colorutil.Saturated {
				continue
			}
			t := make([]float64, k)
			basis(t, r, float64(j)/float64(size.Width))
			rows = append(rows, t)
			values = append(values, float64(v))
		}
	}
	n := len(values)
	if n < k {
		return nil, fmt.Errorf("%w: order %d needs %d, have %d", ErrInsufficientSamples, order, k, n)
	}

	x := mat.NewDense(n, k, nil)
	for i, t := range rows {
		x.SetRow(i, t)
	}
	y := mat.NewVecDense(n, values)

	coef, rank, err := leastSquares(x, y)
	if err != nil {
		return nil, err
	}

	var fitted mat.VecDense
	fitted.MulVec(x, coef)
	var resid mat.VecDense
	resid.SubVec(y, &fitted)
	rss := mat.Dot(&resid, &resid)

	m := &Model{
		Order:        order,
		Coefficients: append([]float64(nil), coef.RawVector().Data...),
		Samples:      n,
		Rank:         rank,
		RSS:          rss,
	}
	if !native.Empty() {
		m.Surface = m.Evaluate(native.Height, native.Width)
	}
	return m, nil
}

// leastSquares returns the minimum-norm solution of min |x·a - y|², so
// rank-deficient designs still produce coefficients.
func leastSquares(x *mat.Dense, y *mat.VecDense) (*mat.VecDense, int, error) {
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, 0, errors.New("least squares: SVD factorization failed")
	}
	n, k := x.Dims()
	rcond := math.Nextafter(1, 2) - 1
	rank := svd.Rank(rcond * float64(max(n, k)))
	if rank == 0 {
		// all-zero design: the minimum-norm solution is zero
		return mat.NewVecDense(k, nil), 0, nil
	}
	coef := mat.NewVecDense(k, nil)
	svd.SolveVecTo(coef, y, rank)
	return coef, rank, nil
}
