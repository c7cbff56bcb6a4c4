package lbl

import (
	"math"

	"github.com/banshee-data/lbl/internal/spectral"
)

const (
	scalingPreClipSigma = 5
	scalingClipSigma    = 3
	scalingPasses       = 5
	// Mostly-flat high-passed spectra have a vanishing robust sigma, so
	// clipping scales are floored at this fraction of the 99th percentile
	// of the absolute signal.
	scalingFloorFraction = 0.25
	scalingFloorQuantile = 0.99
)

// BouchyLine applies the Bouchy (2001) estimator to one line. deriv is the
// model derivative over the line's pixels, diff the weighted
// science-minus-model residual and meanRMS the line's mean per-pixel RMS.
// It returns the projected shift sum(diff*deriv)/sum(deriv^2) and its
// uncertainty 1/sqrt(sum((deriv/meanRMS)^2)). Non-finite pixels are
// ignored; a line with no usable pixels yields NaN.
func BouchyLine(deriv, diff []float64, meanRMS float64) (value, rms float64) {
	var sumInv, sumDD, sumDiffD float64
	var n int
	for i, d := range deriv {
		if !spectral.IsFinite(d) {
			continue
		}
		sumInv += (d / meanRMS) * (d / meanRMS)
		if i < len(diff) && spectral.IsFinite(diff[i]) {
			sumDD += d * d
			sumDiffD += diff[i] * d
			n++
		}
	}
	rms = 1 / math.Sqrt(sumInv)
	if n == 0 || sumDD == 0 {
		return math.NaN(), rms
	}
	return sumDiffD / sumDD, rms
}

// ScalingRatio returns the amplitude that scales model onto spectrum in a
// least-squares sense, robust to outlying pixels.
//
// Algorithm:
//  1. Seed amp = sqrt(sum(s^2)/sum(m^2)) over pixels within 5 sigma.
//  2. Five passes: clip residuals s - amp*m beyond 3 sigma and apply the
//     least-squares correction amp /= (1 - sum(r*m)/sum(s*m)).
//
// A pass that has nothing left to fit stops the iteration and keeps the
// current amplitude. If the model has no finite overlap with the spectrum
// the result is NaN.
func ScalingRatio(spectrum, model []float64) float64 {
	n := len(spectrum)
	if len(model) < n {
		n = len(model)
	}
	s, m := spectrum[:n], model[:n]

	floorS := scalingFloorFraction * spectral.NanQuantile(scalingFloorQuantile, absAll(s))
	floorM := scalingFloorFraction * spectral.NanQuantile(scalingFloorQuantile, absAll(m))
	sigS := flooredSigma(s, floorS)
	sigM := flooredSigma(m, floorM)

	var sumSS, sumMM float64
	for i := range s {
		if !spectral.IsFinite(s[i]) || !spectral.IsFinite(m[i]) {
			continue
		}
		if sigS > 0 && math.Abs(s[i]) >= scalingPreClipSigma*sigS {
			continue
		}
		if sigM > 0 && math.Abs(m[i]) >= scalingPreClipSigma*sigM {
			continue
		}
		sumSS += s[i] * s[i]
		sumMM += m[i] * m[i]
	}
	if sumMM == 0 {
		// clipping left nothing; fall back to every finite pair
		sumSS, sumMM = 0, 0
		for i := range s {
			if spectral.IsFinite(s[i]) && spectral.IsFinite(m[i]) {
				sumSS += s[i] * s[i]
				sumMM += m[i] * m[i]
			}
		}
	}
	if sumMM == 0 {
		return math.NaN()
	}
	amp := math.Sqrt(sumSS / sumMM)

	residuals := make([]float64, n)
	for pass := 0; pass < scalingPasses; pass++ {
		for i := range s {
			residuals[i] = s[i] - amp*m[i]
		}
		sigR := flooredSigma(residuals, floorS)

		var sumRM, sumSM float64
		for i := range s {
			if !spectral.IsFinite(residuals[i]) {
				continue
			}
			if sigR > 0 && math.Abs(residuals[i]) >= scalingClipSigma*sigR {
				continue
			}
			sumRM += residuals[i] * m[i]
			sumSM += s[i] * m[i]
		}
		if sumSM == 0 {
			break
		}
		corr := sumRM / sumSM
		next := amp / (1 - corr)
		if !(corr < 1) || !spectral.IsFinite(next) {
			break
		}
		amp = next
	}
	return amp
}

func absAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Abs(v)
	}
	return out
}

// flooredSigma is the robust sigma of values, never below floor. NaN
// inputs collapse to floor.
func flooredSigma(values []float64, floor float64) float64 {
	sigma := spectral.EstimateSigma(values)
	if !(sigma > floor) {
		return floor
	}
	return sigma
}
