package lbl

import (
	"math"

	"github.com/banshee-data/lbl/internal/spectral"
)

// EstimateNoiseModel returns a per-pixel RMS for each order from the
// science-minus-model residuals.
//
// Window centres sit every npoints pixels; each window spans npoints on
// either side of its centre (clipped to the order) and contributes the
// robust sigma of its residuals. Zero-sigma windows count as missing. The
// valid window sigmas are linearly interpolated onto every pixel, held
// constant past the outermost centres. An order with fewer than three
// valid windows is entirely NaN so that its lines carry no weight.
//
// If no order yields a model an *InsufficientDataError is returned
// together with the all-NaN result.
func EstimateNoiseModel(science, model [][]float64, npoints int) ([][]float64, error) {
	if npoints < 1 {
		npoints = 1
	}
	rms := make([][]float64, len(science))
	bestWindows := 0
	for o := range science {
		n := len(science[o])
		residuals := make([]float64, n)
		for i := range residuals {
			residuals[i] = math.NaN()
			if o < len(model) && i < len(model[o]) {
				residuals[i] = science[o][i] - model[o][i]
			}
		}

		var centres, sigmas []float64
		for c := 0; c < n; c += npoints {
			lo, hi := c-npoints, c+npoints
			if lo < 0 {
				lo = 0
			}
			if hi > n {
				hi = n
			}
			sigma := spectral.EstimateSigma(residuals[lo:hi])
			if sigma == 0 || !spectral.IsFinite(sigma) {
				continue
			}
			centres = append(centres, float64(c))
			sigmas = append(sigmas, sigma)
		}
		if len(centres) > bestWindows {
			bestWindows = len(centres)
		}

		rms[o] = make([]float64, n)
		if len(centres) < 3 {
			for i := range rms[o] {
				rms[o][i] = math.NaN()
			}
			continue
		}
		lin, err := spectral.NewLinear(centres, sigmas, spectral.ExtrapolateConstant)
		if err != nil {
			return nil, err
		}
		for i := range rms[o] {
			rms[o][i] = lin.Predict(float64(i))
		}
	}
	if len(science) > 0 && bestWindows < 3 {
		return rms, &InsufficientDataError{What: "noise model windows", Have: bestWindows, Need: 3}
	}
	return rms, nil
}
