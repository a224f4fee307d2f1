package whiteframe

import (
	"image"
	"image/color"
	"testing"

	"grape-calib/internal/video"
	"grape-calib/pkg/geometry"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func quietConfig(camera string) Config {
	logger, _ := test.NewNullLogger()
	return Config{Camera: camera, Downscale: 1, Logger: logger}
}

type recordedPreview struct {
	frames []int
	sizes  []geometry.Size
}

func (r *recordedPreview) Preview(_ string, frame int, img *image.RGBA) error {
	r.frames = append(r.frames, frame)
	r.sizes = append(r.sizes, geometry.SizeOf(img.Bounds()))
	return nil
}

func TestFoldKeepsPointwiseMaximum(t *testing.T) {
	m := NewMaps(geometry.Size{Width: 4, Height: 3})

	require.NoError(t, m.Fold(solid(4, 3, color.RGBA{100, 100, 100, 255})))
	darker := solid(4, 3, color.RGBA{50, 50, 50, 255})
	darker.SetRGBA(2, 1, color.RGBA{210, 180, 150, 255})
	require.NoError(t, m.Fold(darker))

	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			want := uint8(100)
			if x == 2 && y == 1 {
				want = 180
			}
			assert.Equal(t, want, m.Max.GrayAt(x, y).Y, "pixel %d,%d", x, y)
		}
	}

	// a later darker frame never lowers the map
	require.NoError(t, m.Fold(solid(4, 3, color.RGBA{0, 0, 0, 255})))
	assert.Equal(t, uint8(180), m.Max.GrayAt(2, 1).Y)
	assert.Equal(t, uint8(100), m.Max.GrayAt(0, 0).Y)
}

func TestFoldExcludesSaturatedPixelsFromMeans(t *testing.T) {
	img := solid(5, 4, color.RGBA{200, 100, 50, 255})
	img.SetRGBA(0, 0, color.RGBA{255, 255, 255, 255})
	img.SetRGBA(4, 3, color.RGBA{255, 255, 255, 255})
	m := NewMaps(geometry.Size{Width: 5, Height: 4})
	require.NoError(t, m.Fold(img))

	assert.Equal(t, uint64(18), m.Means.Valid)
	wb, err := m.Means.WhiteBalance()
	require.NoError(t, err)
	assert.Equal(t, 200.0, wb.Red)
	assert.Equal(t, 100.0, wb.Green)
	assert.Equal(t, 50.0, wb.Blue)
	assert.Equal(t, uint8(255), m.Max.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(116), m.Max.GrayAt(1, 0).Y)
}

func TestWhiteBalanceWithoutValidPixels(t *testing.T) {
	m := NewMaps(geometry.Size{Width: 2, Height: 2})
	require.NoError(t, m.Fold(solid(2, 2, color.RGBA{255, 255, 255, 255})))
	_, err := m.Means.WhiteBalance()
	assert.Error(t, err)
}

func TestFoldRejectsSizeMismatch(t *testing.T) {
	m := NewMaps(geometry.Size{Width: 4, Height: 4})
	err := m.Fold(solid(4, 5, color.RGBA{1, 2, 3, 255}))
	assert.ErrorContains(t, err, "does not match")
}

func TestAccumulateWindow(t *testing.T) {
	var frames []image.Image
	for i := 0; i < 6; i++ {
		v := uint8(20 * (i + 1))
		frames = append(frames, solid(6, 4, color.RGBA{v, v, v, 255}))
	}
	src := video.NewSliceSource(frames, 30, video.OrderBGR)

	stats, err := New(quietConfig("camera1")).Accumulate(src, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FramesRead)
	assert.False(t, stats.EndOfStream)
	// frames 1..3 have values 40, 60, 80
	assert.Equal(t, uint8(80), stats.Max.GrayAt(3, 2).Y)
	wb, err := stats.Means.WhiteBalance()
	require.NoError(t, err)
	assert.Equal(t, 60.0, wb.Green)
	assert.Equal(t, geometry.Size{Width: 6, Height: 4}, stats.Native)
}

func TestAccumulateStopsAtEndOfStream(t *testing.T) {
	frames := []image.Image{
		solid(4, 4, color.RGBA{10, 10, 10, 255}),
		solid(4, 4, color.RGBA{20, 20, 20, 255}),
		solid(4, 4, color.RGBA{30, 30, 30, 255}),
	}
	src := video.NewSliceSource(frames, 25, video.OrderRGB)

	stats, err := New(quietConfig("camera2")).Accumulate(src, 1, 10)
	require.NoError(t, err)
	assert.True(t, stats.EndOfStream)
	assert.Equal(t, 2, stats.FramesRead)
	assert.Equal(t, uint8(30), stats.Max.GrayAt(0, 0).Y)
}

func TestAccumulateStartPastEnd(t *testing.T) {
	src := video.NewSliceSource([]image.Image{solid(4, 2, color.RGBA{9, 9, 9, 255})}, 25, video.OrderRGB)

	stats, err := New(quietConfig("camera1")).Accumulate(src, 5, 3)
	require.NoError(t, err)
	assert.True(t, stats.EndOfStream)
	assert.Zero(t, stats.FramesRead)
	assert.Equal(t, geometry.Size{Width: 4, Height: 2}, stats.Size())
}

func TestAccumulateZeroCount(t *testing.T) {
	src := video.NewSliceSource([]image.Image{solid(8, 4, color.RGBA{9, 9, 9, 255})}, 25, video.OrderRGB)
	cfg := quietConfig("camera1")
	cfg.Downscale = 2
	cfg.Rotation = 90

	stats, err := New(cfg).Accumulate(src, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.FramesRead)
	assert.Equal(t, geometry.Size{Width: 2, Height: 4}, stats.Size())
	assert.Equal(t, geometry.Size{Width: 4, Height: 8}, stats.Native)
	_, err = stats.Means.WhiteBalance()
	assert.Error(t, err)
}

func TestAccumulateUnavailableSource(t *testing.T) {
	src := video.NewSliceSource(nil, 0, video.OrderBGR)
	_, err := New(quietConfig("camera1")).Accumulate(src, 0, 5)
	assert.ErrorIs(t, err, video.ErrSourceUnavailable)
}

func TestAccumulateDownscaleAndRotate(t *testing.T) {
	img := solid(8, 4, color.RGBA{0, 0, 200, 255})
	src := video.NewSliceSource([]image.Image{img}, 25, video.OrderBGR)
	cfg := quietConfig("camera1")
	cfg.Downscale = 2
	cfg.Rotation = 270

	stats, err := New(cfg).Accumulate(src, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, geometry.Size{Width: 2, Height: 4}, stats.Size())
	assert.Equal(t, geometry.Size{Width: 4, Height: 8}, stats.Native)
	assert.Equal(t, 2, stats.Downscale)
	wb, err := stats.Means.WhiteBalance()
	require.NoError(t, err)
	assert.Equal(t, 200.0, wb.Blue)
	assert.Zero(t, wb.Red)
}

func TestAccumulatePreviews(t *testing.T) {
	var frames []image.Image
	for i := 0; i < 8; i++ {
		frames = append(frames, solid(4, 4, color.RGBA{50, 50, 50, 255}))
	}
	src := video.NewSliceSource(frames, 25, video.OrderRGB)
	sink := &recordedPreview{}
	cfg := quietConfig("camera1")
	cfg.PreviewEvery = 2
	cfg.Preview = sink

	_, err := New(cfg).Accumulate(src, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, sink.frames)
	assert.Equal(t, geometry.Size{Width: 4, Height: 4}, sink.sizes[0])
}
