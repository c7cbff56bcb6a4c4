package lbl

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"

	"github.com/banshee-data/lbl/internal/monitoring"
	"github.com/banshee-data/lbl/internal/spectral"
	"github.com/banshee-data/lbl/internal/units"
)

const (
	ccfFitMaxIterations = 20000
	ccfFitRestarts      = 2
)

// CCFResult is the outcome of the coarse cross-correlation bootstrap.
type CCFResult struct {
	Velocity  float64 // fitted Gaussian centre, m/s
	EWidth    float64 // fitted Gaussian sigma, m/s
	Amplitude float64
	Offset    float64
	Slope     float64

	Grid []float64 // trial velocities
	CCF  []float64
}

// GaussianSlope evaluates amp*exp(-0.5((x-x0)/sigma)^2) + zp + (x-x0)*slope.
func GaussianSlope(x, x0, sigma, amp, zp, slope float64) float64 {
	u := (x - x0) / sigma
	return amp*math.Exp(-0.5*u*u) + zp + (x-x0)*slope
}

// RoughCCF estimates a systemic velocity and line width by brute-force
// cross-correlation of the spectrum against weighted line centres.
//
// Algorithm:
//  1. Flatten the orders into one sequence, dropping each order's share of
//     the overlap with its neighbours and any non-finite samples.
//  2. Build a degree-1 interpolant of flux against wavelength, zero outside.
//  3. For each trial velocity in [CCFMinRV, CCFMaxRV) by CCFStepRV, shift
//     the centres and sum weight*flux.
//  4. Fit a Gaussian on a linear baseline, seeded at the CCF sample
//     furthest from the median.
func RoughCCF(wave, flux [][]float64, centers, weights []float64, cfg Config, logf monitoring.Logf) (*CCFResult, error) {
	logf = logf.With("CCF")
	if len(centers) != len(weights) {
		return nil, fmt.Errorf("ccf: %d centres but %d weights", len(centers), len(weights))
	}
	xs, ys, err := flattenOrders(wave, flux)
	if err != nil {
		return nil, err
	}
	sp, err := spectral.NewLinear(xs, ys, spectral.ExtrapolateZero)
	if err != nil {
		return nil, fmt.Errorf("ccf spectrum interpolant: %w", err)
	}

	var grid []float64
	for v := cfg.CCFMinRV; v < cfg.CCFMaxRV; v += cfg.CCFStepRV {
		grid = append(grid, v)
	}
	ccf := make([]float64, len(grid))
	terms := make([]float64, len(centers))
	for i, v := range grid {
		factor := units.DopplerFactor(v)
		for j, c := range centers {
			terms[j] = weights[j] * sp.Predict(c*factor)
		}
		ccf[i] = spectral.NanSum(terms)
	}
	logf("computed %d-point CCF over %d lines", len(grid), len(centers))

	res, err := fitCCF(grid, ccf, cfg.CCFEWidthGuess)
	if err != nil {
		return nil, err
	}
	res.Grid, res.CCF = grid, ccf
	logf("systemic velocity %.2f m/s, e-width %.2f m/s", res.Velocity, res.EWidth)
	return res, nil
}

// flattenOrders merges orders into one wavelength-sorted sequence. Where
// two neighbouring orders overlap each keeps the pixels on its own side of
// the point where its grid crosses the neighbour's reversed grid.
func flattenOrders(wave, flux [][]float64) (xs, ys []float64, err error) {
	if len(wave) != len(flux) {
		return nil, nil, fmt.Errorf("ccf: %d wavelength orders but %d flux orders", len(wave), len(flux))
	}
	type sample struct{ w, f float64 }
	var samples []sample
	for o := range wave {
		if len(wave[o]) != len(flux[o]) {
			return nil, nil, fmt.Errorf("ccf: order %d has %d wavelengths but %d fluxes", o, len(wave[o]), len(flux[o]))
		}
		for i, w := range wave[o] {
			if !spectral.IsFinite(w) || !spectral.IsFinite(flux[o][i]) {
				continue
			}
			if o > 0 {
				prev := wave[o-1]
				if j := len(prev) - 1 - i; j >= 0 && j < len(prev) && !(w > prev[j]) {
					continue
				}
			}
			if o+1 < len(wave) {
				next := wave[o+1]
				if j := len(next) - 1 - i; j >= 0 && j < len(next) && !(w < next[j]) {
					continue
				}
			}
			samples = append(samples, sample{w, flux[o][i]})
		}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].w < samples[j].w })
	for _, s := range samples {
		if n := len(xs); n > 0 && s.w <= xs[n-1] {
			continue
		}
		xs = append(xs, s.w)
		ys = append(ys, s.f)
	}
	return xs, ys, nil
}

// fitCCF fits GaussianSlope to the CCF by Nelder-Mead least squares. The
// search runs in coordinates scaled by the seed width and amplitude so
// that every parameter moves on a comparable scale.
func fitCCF(grid, ccf []float64, ewidthGuess float64) (*CCFResult, error) {
	if len(grid) < 5 {
		return nil, &FitConvergenceError{Reason: fmt.Sprintf("only %d CCF samples", len(grid))}
	}
	dc := spectral.NanMedian(ccf)
	peak := -1
	for i, v := range ccf {
		if !spectral.IsFinite(v) {
			continue
		}
		// absorption masks give a CCF trough, so take the largest excursion
		if peak < 0 || math.Abs(v-dc) > math.Abs(ccf[peak]-dc) {
			peak = i
		}
	}
	if peak < 0 {
		return nil, &FitConvergenceError{Reason: "no finite CCF samples"}
	}
	amp := ccf[peak] - dc
	if amp == 0 {
		return nil, &FitConvergenceError{Reason: "flat CCF"}
	}

	guess := []float64{grid[peak], ewidthGuess, amp, dc, 0}
	scale := []float64{ewidthGuess, ewidthGuess, math.Abs(amp), math.Abs(amp), math.Abs(amp) / ewidthGuess}
	params := func(x []float64) []float64 {
		p := make([]float64, len(x))
		for i := range x {
			p[i] = guess[i] + x[i]*scale[i]
		}
		return p
	}
	norm := 1 / (amp * amp)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			p := params(x)
			var chi2 float64
			for i, v := range grid {
				if !spectral.IsFinite(ccf[i]) {
					continue
				}
				r := ccf[i] - GaussianSlope(v, p[0], p[1], p[2], p[3], p[4])
				chi2 += r * r
			}
			if !spectral.IsFinite(chi2) {
				return math.Inf(1)
			}
			return chi2 * norm
		},
	}

	x := make([]float64, len(guess))
	for attempt := 0; attempt < ccfFitRestarts; attempt++ {
		settings := &optimize.Settings{
			MajorIterations: ccfFitMaxIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-14,
				Relative:   1e-12,
				Iterations: 200,
			},
		}
		result, err := optimize.Minimize(problem, x, settings, &optimize.NelderMead{SimplexSize: 0.5})
		if err != nil {
			return nil, &FitConvergenceError{Reason: err.Error()}
		}
		switch result.Status {
		case optimize.IterationLimit, optimize.FunctionEvaluationLimit:
			return nil, &FitConvergenceError{Reason: fmt.Sprintf("stopped with status %v", result.Status)}
		}
		x = result.X
	}

	p := params(x)
	for _, v := range p {
		if !spectral.IsFinite(v) {
			return nil, &FitConvergenceError{Reason: "non-finite fit parameters"}
		}
	}
	// the model only depends on sigma^2
	width := math.Abs(p[1])
	if width == 0 {
		return nil, &FitConvergenceError{Reason: "zero fitted width"}
	}
	if p[0] < grid[0] || p[0] > grid[len(grid)-1] {
		return nil, &FitConvergenceError{Reason: fmt.Sprintf("fitted velocity %.1f m/s outside the CCF range", p[0])}
	}
	return &CCFResult{Velocity: p[0], EWidth: width, Amplitude: p[2], Offset: p[3], Slope: p[4]}, nil
}
