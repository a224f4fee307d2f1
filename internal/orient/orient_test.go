package orient

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"grape-calib/internal/video"
	"grape-calib/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, 270.0, NormalizeAngle(-90))
	assert.Equal(t, 0.0, NormalizeAngle(720))
	assert.Equal(t, 90.0, NormalizeAngle(450))
	assert.Equal(t, 0.0, NormalizeAngle(nanValue()))
	assert.True(t, IsAxisAligned(-270))
	assert.False(t, IsAxisAligned(45))
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}

func TestQuarterTurnIsClockwise(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	marker := color.RGBA{R: 255, A: 255}
	img.SetRGBA(0, 0, marker) // top-left

	out := Rotate(img, 90)
	require.Equal(t, image.Rect(0, 0, 2, 3), out.Bounds())
	// top-left ends up top-right after a clockwise quarter turn
	assert.Equal(t, marker, out.RGBAAt(1, 0))

	out = Rotate(img, 270)
	assert.Equal(t, marker, out.RGBAAt(0, 2))

	out = Rotate(img, 180)
	assert.Equal(t, marker, out.RGBAAt(2, 1))
}

func TestAxisRotationsRoundTrip(t *testing.T) {
	img := randomImage(7, 5, 1)

	assert.Equal(t, img.Pix, Rotate(Rotate(img, 90), 270).Pix)
	assert.Equal(t, img.Pix, Rotate(Rotate(img, 270), 90).Pix)
	assert.Equal(t, img.Pix, Rotate(Rotate(img, 180), 180).Pix)
	assert.Equal(t, img.Pix, Rotate(Rotate(Rotate(Rotate(img, 90), 90), 90), 90).Pix)
}

func TestRotateHandlesOffsetBounds(t *testing.T) {
	img := randomImage(9, 6, 2)
	sub := img.SubImage(image.Rect(2, 1, 6, 4)).(*image.RGBA)

	out := Rotate(Rotate(sub, 90), 270)
	require.Equal(t, image.Rect(0, 0, 4, 3), out.Bounds())
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, sub.RGBAAt(x+2, y+1), out.RGBAAt(x, y))
		}
	}
}

func TestInterpolatedRotationContainsSource(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	out := Rotate(img, 45)
	want := RotatedSize(geometry.Size{Width: 40, Height: 20}, 45)
	assert.Equal(t, want, geometry.SizeOf(out.Bounds()))
	assert.Equal(t, 43, want.Width)
	assert.Equal(t, 43, want.Height)

	// centre keeps the source value, corners are outside the rotated frame
	c := out.RGBAAt(21, 21)
	assert.InDelta(t, 200, float64(c.R), 1)
	assert.Equal(t, color.RGBA{A: 255}, out.RGBAAt(0, 0))
	for i := 3; i < len(out.Pix); i += 4 {
		require.Equal(t, uint8(255), out.Pix[i])
	}
}

func TestDownscaleAveragesBlocks(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 5, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 200
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	out := Downscale(img, 2)
	require.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.InDelta(t, 100, float64(out.RGBAAt(x, y).G), 1)
		}
	}
	assert.Same(t, img, Downscale(img, 1))
}

func TestGuessOrientation(t *testing.T) {
	// landscape, blue on the left: a clockwise turn puts it on top
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			c := color.RGBA{R: 50, G: 50, B: 10, A: 255}
			if x < 4 {
				c.B = 250
			}
			img.SetRGBA(x, y, c)
		}
	}
	src := video.NewSliceSource([]image.Image{img, img, img, img}, 30, video.OrderBGR)
	angle, err := GuessOrientation(src, 10)
	require.NoError(t, err)
	assert.Equal(t, 270.0, angle)

	// portrait with blue at the bottom is already upright
	portrait := Rotate(img, 270)
	src = video.NewSliceSource([]image.Image{portrait}, 30, video.OrderRGB)
	angle, err = GuessOrientation(src, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, angle)

	// portrait with blue on top is upside down
	flipped := Rotate(img, 90)
	src = video.NewSliceSource([]image.Image{flipped, flipped}, 30, video.OrderRGB)
	angle, err = GuessOrientation(src, 10)
	require.NoError(t, err)
	assert.Equal(t, 180.0, angle)
	assert.Equal(t, portrait.Pix, Rotate(flipped, angle).Pix)
}
