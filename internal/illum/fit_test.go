package illum

import (
	"image"
	"math"
	"testing"

	"grape-calib/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func grayFrom(w, h int, f func(r, c float64) float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			img.Pix[i*img.Stride+j] = uint8(math.Round(f(float64(i)/float64(h), float64(j)/float64(w))))
		}
	}
	return img
}

func TestFitRecoversPlane(t *testing.T) {
	// integral at every cell of a 20x10 map, so rounding adds no noise
	plane := func(r, c float64) float64 { return 100 + 50*r + 20*c }
	img := grayFrom(20, 10, plane)

	m, err := Fit(img, nil, Quadratic, geometry.Size{})
	require.NoError(t, err)
	want := []float64{100, 50, 20, 0, 0, 0}
	for i, a := range want {
		assert.InDelta(t, a, m.Coefficients[i], 1e-6, "coefficient %d", i)
	}
	assert.InDelta(t, 0, m.RSS, 1e-9)
	assert.Equal(t, 200, m.Samples)
	assert.Equal(t, 6, m.Rank)
	assert.Nil(t, m.Surface)
}

func TestFitSkipsSaturatedCells(t *testing.T) {
	img := grayFrom(16, 16, func(r, c float64) float64 { return 120 + 64*r })
	for j := 0; j < 16; j++ {
		img.Pix[3*img.Stride+j] = 255
	}

	m, err := Fit(img, nil, Quadratic, geometry.Size{})
	require.NoError(t, err)
	assert.Equal(t, 16*15, m.Samples)
	assert.InDelta(t, 120, m.Coefficients[0], 1e-6)
	assert.InDelta(t, 64, m.Coefficients[1], 1e-6)
}

func TestFitInsufficientSamples(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.Pix[0], img.Pix[4], img.Pix[8] = 10, 20, 30

	_, err := Fit(img, nil, Cubic, geometry.Size{})
	assert.ErrorIs(t, err, ErrInsufficientSamples)
	assert.ErrorContains(t, err, "needs 10, have 3")

	_, err = Fit(img, nil, Quadratic, geometry.Size{})
	assert.ErrorIs(t, err, ErrInsufficientSamples)
}

func TestFitRejectsUnknownOrder(t *testing.T) {
	img := grayFrom(4, 4, func(r, c float64) float64 { return 1 })
	_, err := Fit(img, nil, Order(5), geometry.Size{})
	assert.Error(t, err)
}

func TestFitCropKeepsFullFrameCoordinates(t *testing.T) {
	bowl := func(r, c float64) float64 { return 200 - 100*(r-0.5)*(r-0.5) - 100*(c-0.5)*(c-0.5) }
	img := grayFrom(40, 40, bowl)
	// noise outside the crop must be ignored
	for i := 0; i < 40; i++ {
		img.Pix[i*img.Stride] = 3
		img.Pix[i] = 3
	}
	crop := &geometry.CropBox{Top: 5, Left: 5, Bottom: 35, Right: 35}

	m, err := Fit(img, crop, Quadratic, geometry.Size{Width: 80, Height: 80})
	require.NoError(t, err)
	assert.Equal(t, 30*30, m.Samples)
	// the surface extrapolates to the map edges on the same coordinates
	assert.InDelta(t, bowl(0, 0), m.At(0, 0), 2.0)
	assert.InDelta(t, 200, m.At(0.5, 0.5), 1.0)

	rows, cols := m.Surface.Dims()
	assert.Equal(t, 80, rows)
	assert.Equal(t, 80, cols)
	assert.InDelta(t, m.At(0.5, 0.25), m.Surface.At(40, 20), 1e-9)
}

func TestFitRejectsCropOutsideMap(t *testing.T) {
	img := grayFrom(10, 10, func(r, c float64) float64 { return 50 })
	_, err := Fit(img, &geometry.CropBox{Top: 0, Left: 0, Bottom: 11, Right: 5}, Quadratic, geometry.Size{})
	assert.Error(t, err)
}

func TestFitRankDeficientDesign(t *testing.T) {
	// a single column makes c constant, so several terms are collinear
	img := grayFrom(1, 30, func(r, c float64) float64 { return 90 + 30*r })

	m, err := Fit(img, nil, Quadratic, geometry.Size{})
	require.NoError(t, err)
	assert.Less(t, m.Rank, 6)
	assert.InDelta(t, 0, m.RSS, 1e-6)
	for i := 0; i < 30; i++ {
		r := float64(i) / 30
		assert.InDelta(t, 90+30*r, m.At(r, 0), 0.5)
	}
}

func TestModelRoundTripFromCoefficients(t *testing.T) {
	coefs := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	m, err := NewModel(coefs)
	require.NoError(t, err)
	assert.Equal(t, Cubic, m.Order)
	// 1 + 2r + 3c + 4rc + 5r² + 6c² + 7r²c + 8rc² + 9r³ + 10c³ at (1, 1)
	assert.InDelta(t, 55, m.At(1, 1), 1e-12)
	assert.InDelta(t, 1, m.At(0, 0), 1e-12)

	_, err = NewModel([]float64{1, 2, 3})
	assert.Error(t, err)
}

func TestEvaluateUsesRowAndColumnFractions(t *testing.T) {
	m, err := NewModel([]float64{10, 100, 1, 0, 0, 0})
	require.NoError(t, err)
	s := m.Evaluate(4, 5)
	assert.InDelta(t, 10, s.At(0, 0), 1e-12)
	assert.InDelta(t, 10+75+0.8, s.At(3, 4), 1e-12)
}

func TestPreviewScalesToPeak(t *testing.T) {
	s := mat.NewDense(2, 2, []float64{50, 100, -5, 25})
	img := Preview(s)
	assert.Equal(t, uint8(255), img.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(128), img.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(0), img.GrayAt(0, 1).Y)
	assert.Equal(t, uint8(64), img.GrayAt(1, 1).Y)

	// the peak renders as full white whatever its value
	for _, peak := range []float64{1, 3, 100, 200, 230.7, 255, 1e-3} {
		one := Preview(mat.NewDense(1, 1, []float64{peak}))
		assert.Equal(t, uint8(255), one.GrayAt(0, 0).Y, "peak %v", peak)
	}
}
