package cvio

import (
	"image"
	"math"
	"strconv"
	"strings"

	"grape-calib/pkg/colorutil"
	"grape-calib/pkg/geometry"

	"gocv.io/x/gocv"
)

// QRDecoder decodes the numeric QR labels placed next to the vines. A
// decoder is not safe for concurrent use.
type QRDecoder struct {
	det gocv.QRCodeDetector
}

// NewQRDecoder allocates an OpenCV QR detector. Call Close when done.
func NewQRDecoder() *QRDecoder {
	return &QRDecoder{det: gocv.NewQRCodeDetector()}
}

// Decode looks for one QR code in img. The detector runs on the unweighted
// luma of the frame. ok is false when nothing was found or the payload is not
// an integer.
func (d *QRDecoder) Decode(img *image.RGBA) (payload int, corners [4]geometry.Point2D, ok bool) {
	gray, err := grayMat(img)
	if err != nil {
		return 0, corners, false
	}
	defer gray.Close()

	points := gocv.NewMat()
	defer points.Close()
	straight := gocv.NewMat()
	defer straight.Close()

	text := strings.TrimSpace(d.det.DetectAndDecode(gray, &points, &straight))
	if text == "" {
		return 0, corners, false
	}
	payload, err = strconv.Atoi(text)
	if err != nil {
		return 0, corners, false
	}

	if !points.Empty() {
		if xy, err := points.DataPtrFloat32(); err == nil && len(xy) >= 8 {
			for i := range corners {
				corners[i] = geometry.Point2D{
					X: math.Round(float64(xy[2*i])),
					Y: math.Round(float64(xy[2*i+1])),
				}
			}
		}
	}
	return payload, corners, true
}

// Close releases the detector.
func (d *QRDecoder) Close() error {
	return d.det.Close()
}

func grayMat(img *image.RGBA) (gocv.Mat, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	buf := make([]byte, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < w; x++ {
			buf[y*w+x] = colorutil.Luma(row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, buf)
}
