// Package offset aligns the frame numbering of two unsynchronized cameras
// from the frame index at which each one saw the same sync event.
package offset

import "github.com/sirupsen/logrus"

// Unset marks a sync marker that was never annotated.
const Unset = -1

// Offsets holds the number of frames to skip on each camera so that equal
// camera-relative frame numbers refer to the same instant. At most one entry
// is nonzero and both are non-negative.
type Offsets [2]int

// Diagnostics records the assumptions Resolve had to make.
type Diagnostics struct {
	// Assumed[i] is set when camera i's marker was unset and taken as 0.
	Assumed [2]bool
	// Uncalibrated is set when both markers ended up at 0.
	Uncalibrated bool
}

// Resolve computes per-camera frame offsets from two sync markers.
//
// A marker that appears earlier in camera 1 than in camera 2 means camera 1
// started recording later, so camera 2 has to be advanced by the difference.
func Resolve(sync1, sync2 int) (Offsets, Diagnostics) {
	var diag Diagnostics
	if sync1 < 0 {
		sync1 = 0
		diag.Assumed[0] = true
	}
	if sync2 < 0 {
		sync2 = 0
		diag.Assumed[1] = true
	}
	if sync1 == 0 && sync2 == 0 {
		diag.Uncalibrated = true
	}

	if sync1 < sync2 {
		return Offsets{0, sync2 - sync1}, diag
	}
	return Offsets{sync1 - sync2, 0}, diag
}

// Log reports every assumption as a warning.
func (d Diagnostics) Log(logger logrus.FieldLogger) {
	for i, assumed := range d.Assumed {
		if assumed {
			logger.WithField("camera", i+1).Warn("sync marker unset, assuming frame 0")
		}
	}
	if d.Uncalibrated {
		logger.Warn("both sync markers are 0, cameras are treated as already in sync")
	}
}

// Any reports whether any assumption was made.
func (d Diagnostics) Any() bool {
	return d.Assumed[0] || d.Assumed[1] || d.Uncalibrated
}
