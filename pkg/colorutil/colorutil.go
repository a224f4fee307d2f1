// Package colorutil provides shared pixel helpers for the calibration pipeline.
package colorutil

import "math"

// Saturated is the luma value at which a pixel is treated as clipped.
const Saturated = 255

// Luma returns the unweighted brightness (R+G+B)/3 with integer truncation.
// It is the only luma formula used by the pipeline: saturation masks, the
// brightness maximum map and the QR gray input all go through it.
func Luma(r, g, b uint8) uint8 {
	return uint8((uint16(r) + uint16(g) + uint16(b)) / 3)
}

// IsSaturated reports whether a pixel's luma reached the top of the range.
func IsSaturated(r, g, b uint8) bool {
	return Luma(r, g, b) >= Saturated
}

// ClampByte rounds v to the nearest integer and clamps it to 0-255. The
// second result is -1 when v was below range, +1 when above, 0 otherwise.
func ClampByte(v float64) (uint8, int) {
	switch {
	case math.IsNaN(v):
		return 0, -1
	case v < 0:
		return 0, -1
	case v > 255:
		return 255, 1
	}
	return uint8(math.Round(v)), 0
}

// Balance holds per-channel mean intensities on the 0-255 scale. Dividing a
// channel by its balance value and multiplying by 255 neutralizes the color
// cast measured on a white target.
type Balance struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
}

// Channels returns the balance as an R, G, B array.
func (b Balance) Channels() [3]float64 {
	return [3]float64{b.Red, b.Green, b.Blue}
}

// Valid reports whether every channel is strictly positive.
func (b Balance) Valid() bool {
	return b.Red > 0 && b.Green > 0 && b.Blue > 0
}
