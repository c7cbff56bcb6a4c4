package spectral

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// Extrapolation selects what an interpolant returns outside its domain.
type Extrapolation int

const (
	// ExtrapolateNaN returns NaN outside the fitted range.
	ExtrapolateNaN Extrapolation = iota
	// ExtrapolateZero returns 0 outside the fitted range.
	ExtrapolateZero
	// ExtrapolateConstant returns the nearest end value.
	ExtrapolateConstant
)

// Linear is a piecewise-linear interpolant over strictly increasing
// abscissae.
type Linear struct {
	pl     interp.PiecewiseLinear
	xMin   float64
	xMax   float64
	yFirst float64
	yLast  float64
	ext    Extrapolation
}

// NewLinear fits a degree-1 interpolant through (xs, ys). Pairs with a
// non-finite coordinate are dropped first.
func NewLinear(xs, ys []float64, ext Extrapolation) (*Linear, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("linear interpolant: len(xs)=%d != len(ys)=%d", len(xs), len(ys))
	}
	fx := make([]float64, 0, len(xs))
	fy := make([]float64, 0, len(ys))
	for i := range xs {
		if IsFinite(xs[i]) && IsFinite(ys[i]) {
			fx = append(fx, xs[i])
			fy = append(fy, ys[i])
		}
	}
	if len(fx) < 2 {
		return nil, &InsufficientDataError{What: "linear interpolant", Have: len(fx), Need: 2}
	}

	l := &Linear{ext: ext}
	if err := l.pl.Fit(fx, fy); err != nil {
		return nil, fmt.Errorf("fit linear interpolant: %w", err)
	}
	l.xMin, l.xMax = fx[0], fx[len(fx)-1]
	l.yFirst, l.yLast = fy[0], fy[len(fy)-1]
	return l, nil
}

// Predict returns the interpolated value at x.
func (l *Linear) Predict(x float64) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	if x < l.xMin || x > l.xMax {
		switch l.ext {
		case ExtrapolateZero:
			return 0
		case ExtrapolateConstant:
			if x < l.xMin {
				return l.yFirst
			}
			return l.yLast
		default:
			return math.NaN()
		}
	}
	return l.pl.Predict(x)
}

// PixelMap maps wavelength to fractional pixel position within one order.
// Inside the grid it is a monotone cubic (Fritsch–Butland); outside it
// extends linearly from the end pixels so that out-of-order wavelengths
// land on negative or past-the-end pixel positions.
type PixelMap struct {
	fb         interp.FritschButland
	wave       []float64
	firstSlope float64
	lastSlope  float64
}

// NewPixelMap builds the wavelength -> pixel mapping of a strictly
// increasing wavelength grid. Non-finite wavelengths are skipped.
func NewPixelMap(wave []float64) (*PixelMap, error) {
	xs := make([]float64, 0, len(wave))
	ys := make([]float64, 0, len(wave))
	for i, w := range wave {
		if IsFinite(w) {
			xs = append(xs, w)
			ys = append(ys, float64(i))
		}
	}
	if len(xs) < 3 {
		return nil, &InsufficientDataError{What: "pixel map", Have: len(xs), Need: 3}
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return nil, fmt.Errorf("pixel map: wavelengths not strictly increasing at pixel %v", ys[i])
		}
	}

	pm := &PixelMap{wave: xs}
	if err := pm.fb.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fit pixel map: %w", err)
	}
	n := len(xs)
	pm.firstSlope = (ys[1] - ys[0]) / (xs[1] - xs[0])
	pm.lastSlope = (ys[n-1] - ys[n-2]) / (xs[n-1] - xs[n-2])
	return pm, nil
}

// Pixel returns the fractional pixel position of wavelength w.
func (pm *PixelMap) Pixel(w float64) float64 {
	n := len(pm.wave)
	switch {
	case math.IsNaN(w):
		return math.NaN()
	case w < pm.wave[0]:
		return pm.fb.Predict(pm.wave[0]) + (w-pm.wave[0])*pm.firstSlope
	case w > pm.wave[n-1]:
		return pm.fb.Predict(pm.wave[n-1]) + (w-pm.wave[n-1])*pm.lastSlope
	}
	return pm.fb.Predict(w)
}
