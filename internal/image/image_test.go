package image

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	img.SetRGBA(2, 3, color.RGBA{10, 20, 30, 255})
	path := filepath.Join(t.TempDir(), "row3_camera2.png")
	require.NoError(t, Save(path, img, 95))

	still, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, still.Camera)
	assert.Equal(t, 6, still.Size().Width)
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, still.Image.RGBAAt(2, 3))
}

func TestSaveRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bmp")
	assert.Error(t, Save(path, image.NewRGBA(image.Rect(0, 0, 1, 1)), 95))
	assert.NoFileExists(t, path)
}

func TestGuessCameraFromFilename(t *testing.T) {
	assert.Equal(t, 0, guessCameraFromFilename("/x/cam1_frame_00010.jpg"))
	assert.Equal(t, 1, guessCameraFromFilename("Camera-2.png"))
	assert.Equal(t, -1, guessCameraFromFilename("vineyard.png"))
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("a.TIF"))
	assert.True(t, IsSupportedFormat("a.jpeg"))
	assert.False(t, IsSupportedFormat("a.mp4"))
}

func TestToRGBAReanchors(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 8, 7))
	src.SetRGBA(5, 5, color.RGBA{1, 2, 3, 255})
	out := ToRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 3, 2), out.Bounds())
	assert.Equal(t, color.RGBA{1, 2, 3, 255}, out.RGBAAt(0, 0))
	assert.Same(t, out, ToRGBA(out))
}

func TestCompare(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 4, 3))
	b := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := range a.Pix {
		a.Pix[i] = 100
	}
	for i := range b.Pix {
		b.Pix[i] = 160
	}

	sbs := Compare(a, b, CompareSideBySide)
	assert.Equal(t, image.Rect(0, 0, 4+Gap+4, 3), sbs.Bounds())
	assert.Equal(t, uint8(160), sbs.RGBAAt(4+Gap, 0).R)
	assert.Equal(t, Background, sbs.RGBAAt(4+Gap, 2))

	diff := Compare(a, b, CompareDifference)
	assert.Equal(t, image.Rect(0, 0, 4, 2), diff.Bounds())
	assert.Equal(t, color.RGBA{60, 60, 60, 255}, diff.RGBAAt(1, 1))

	mode, ok := ParseCompareMode("diff")
	assert.True(t, ok)
	assert.Equal(t, CompareDifference, mode)
}
