package spectral

import (
	"math"

	"github.com/banshee-data/lbl/internal/units"
)

// VeloScale converts a velocity width (m/s) into an odd pixel width for
// the given wavelength grid. The per-pixel velocity step is
// 1/median(wave/dwave/c); the result is truncated, then bumped to the
// next odd integer, and is never below 1.
func VeloScale(wave []float64, hpWidth float64) int {
	dwave := Gradient(wave)
	ratio := make([]float64, len(wave))
	for i := range wave {
		ratio[i] = wave[i] / dwave[i] / units.SpeedOfLight
	}
	dvelo := 1 / NanMedian(ratio)
	if !IsFinite(dvelo) || dvelo <= 0 {
		return 1
	}
	width := int(hpWidth / dvelo)
	if width < 1 {
		width = 1
	}
	if width%2 == 0 {
		width++
	}
	return width
}

// LowPassFilter returns a running-median low-pass version of values.
// Medians are taken in boxes of width pixels stepped by width/4 and
// linearly interpolated back onto every pixel (constant past the ends).
// If fewer than three boxes hold finite data the result is all NaN.
func LowPassFilter(values []float64, width int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if width < 1 {
		width = 1
	}
	step := width / 4
	if step < 1 {
		step = 1
	}

	var xmed, ymed []float64
	for i := -((width + 1) / 2); i < n+width/2; i += step {
		lo := i
		hi := i + width
		if lo < 0 {
			lo = 0
		}
		if lo > n-1 {
			lo = n - 1
		}
		if hi > n-1 {
			hi = n - 1
		}
		if hi-lo < 3 {
			continue
		}
		med := NanMedian(values[lo:hi])
		if math.IsNaN(med) {
			continue
		}
		x := 0.5 * float64(lo+hi-1)
		// clamped boxes at the ends can repeat a centre
		if len(xmed) > 0 && x <= xmed[len(xmed)-1] {
			continue
		}
		xmed = append(xmed, x)
		ymed = append(ymed, med)
	}

	if len(xmed) < 3 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}

	lin, err := NewLinear(xmed, ymed, ExtrapolateConstant)
	if err != nil {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for i := range out {
		out[i] = lin.Predict(float64(i))
	}
	return out
}

// HighPass subtracts the running-median low pass of the given pixel width
// from values and returns the result as a new slice.
func HighPass(values []float64, width int) []float64 {
	low := LowPassFilter(values, width)
	out := make([]float64, len(values))
	for i := range values {
		out[i] = values[i] - low[i]
	}
	return out
}
