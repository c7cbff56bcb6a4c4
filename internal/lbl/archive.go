package lbl

import (
	"math"

	"github.com/banshee-data/lbl/internal/spectral"
)

// RunningArchive keeps the barycentric systemic velocity adopted for each
// processed exposure of an object, keyed by mid-exposure MJD. It is not
// safe for concurrent use; the runner writes it after each exposure and
// reads it before the next.
type RunningArchive struct {
	mjd      []float64
	velocity []float64
}

// NewRunningArchive returns an empty archive.
func NewRunningArchive() *RunningArchive {
	return &RunningArchive{}
}

// Record stores an adopted velocity (systemic minus BERV) at mjd.
func (a *RunningArchive) Record(mjd, velocity float64) {
	a.mjd = append(a.mjd, mjd)
	a.velocity = append(a.velocity, velocity)
}

// Len returns the number of recorded exposures. A nil archive is empty.
func (a *RunningArchive) Len() int {
	if a == nil {
		return 0
	}
	return len(a.mjd)
}

// Nearest returns the finite velocity recorded closest in time to mjd.
// ok is false when no usable entry exists.
func (a *RunningArchive) Nearest(mjd float64) (velocity float64, ok bool) {
	if a == nil {
		return 0, false
	}
	best := -1
	bestDist := math.Inf(1)
	for i := range a.mjd {
		if !spectral.IsFinite(a.velocity[i]) || !spectral.IsFinite(a.mjd[i]) {
			continue
		}
		if d := math.Abs(a.mjd[i] - mjd); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return 0, false
	}
	return a.velocity[best], true
}
