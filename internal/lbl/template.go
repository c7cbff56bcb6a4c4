package lbl

import (
	"fmt"
	"math"

	"github.com/banshee-data/lbl/internal/monitoring"
	"github.com/banshee-data/lbl/internal/spectral"
	"github.com/banshee-data/lbl/internal/units"
)

// splineMaskThreshold is the validity-mask value below which a model
// pixel is treated as falling in a template gap.
const splineMaskThreshold = 0.99

// TemplateSplines are the template interpolants in a frame where the
// template's systemic velocity is zero. Every spline returns NaN outside
// the sampled range. The derivative splines are with respect to
// log-wavelength and divided by c, so they are in flux per m/s.
type TemplateSplines struct {
	Spline0   *spectral.BSpline // raw flux
	Spline    *spectral.BSpline // high-passed flux
	DSpline   *spectral.BSpline
	DDSpline  *spectral.BSpline
	DDDSpline *spectral.BSpline
	// Mask is 1 where the template had usable flux and 0 in gaps.
	Mask *spectral.BSpline

	HPWidthPixels int
}

// BuildTemplateSplines builds the template interpolants from a sampled
// template. systemicVelocity is removed from the template grid so that
// the models can later be shifted to any trial velocity.
//
// Algorithm:
// 1. Convert cfg.HPWidth into an odd pixel width on the template grid.
// 2. Subtract the running-median low pass of that width from the flux.
// 3. Take 1st, 2nd and 3rd derivatives against ln(wavelength), each
//    divided by c.
// 4. Drop samples where the flux or any derivative is non-finite.
// 5. Shift the grid by -systemicVelocity and fit degree-k splines to the
//    fluxes and derivatives, plus a degree-1 spline to the validity mask.
func BuildTemplateSplines(tmpl *Spectrum, systemicVelocity float64, cfg Config, logf monitoring.Logf) (*TemplateSplines, error) {
	logf = logf.With("Template")
	if tmpl == nil {
		return nil, fmt.Errorf("nil template")
	}
	wave, flux := tmpl.Wave, tmpl.Flux
	if len(wave) != len(flux) {
		return nil, fmt.Errorf("template wavelength (%d) and flux (%d) lengths differ", len(wave), len(flux))
	}
	for i, w := range wave {
		if !spectral.IsFinite(w) || w <= 0 {
			return nil, fmt.Errorf("template wavelength at sample %d is invalid: %v", i, w)
		}
		if i > 0 && w <= wave[i-1] {
			return nil, fmt.Errorf("template wavelength grid not strictly increasing at sample %d", i)
		}
	}
	k := cfg.SplineOrder
	if len(wave) < k+1 {
		return nil, &InsufficientDataError{What: "template spline", Have: len(wave), Need: k + 1}
	}

	width := spectral.VeloScale(wave, cfg.HPWidth)
	hp := spectral.HighPass(flux, width)

	logWave := make([]float64, len(wave))
	for i, w := range wave {
		logWave[i] = math.Log(w)
	}
	gradLogWave := spectral.Gradient(logWave)
	dflux := logDerivative(hp, gradLogWave)
	ddflux := logDerivative(dflux, gradLogWave)
	dddflux := logDerivative(ddflux, gradLogWave)

	var vWave, vFlux0, vFlux, vD, vDD, vDDD []float64
	valid := make([]float64, len(wave))
	for i := range wave {
		if !spectral.IsFinite(flux[i]) || !spectral.IsFinite(hp[i]) || !spectral.IsFinite(dflux[i]) ||
			!spectral.IsFinite(ddflux[i]) || !spectral.IsFinite(dddflux[i]) {
			continue
		}
		valid[i] = 1
		vWave = append(vWave, wave[i])
		vFlux0 = append(vFlux0, flux[i])
		vFlux = append(vFlux, hp[i])
		vD = append(vD, dflux[i])
		vDD = append(vDD, ddflux[i])
		vDDD = append(vDDD, dddflux[i])
	}
	if len(vWave) < k+1 {
		return nil, &InsufficientDataError{What: "template spline", Have: len(vWave), Need: k + 1}
	}

	shifted := units.DopplerShift(vWave, -systemicVelocity)
	ts := &TemplateSplines{HPWidthPixels: width}
	fits := []struct {
		name string
		ys   []float64
		dst  **spectral.BSpline
	}{
		{"flux", vFlux0, &ts.Spline0},
		{"high-passed flux", vFlux, &ts.Spline},
		{"1st derivative", vD, &ts.DSpline},
		{"2nd derivative", vDD, &ts.DDSpline},
		{"3rd derivative", vDDD, &ts.DDDSpline},
	}
	for _, f := range fits {
		s, err := spectral.NewBSpline(shifted, f.ys, k)
		if err != nil {
			return nil, fmt.Errorf("template %s spline: %w", f.name, err)
		}
		*f.dst = s
	}

	mask, err := spectral.NewBSpline(units.DopplerShift(wave, -systemicVelocity), valid, 1)
	if err != nil {
		return nil, fmt.Errorf("template mask spline: %w", err)
	}
	ts.Mask = mask

	logf("built degree-%d splines from %d of %d samples, high-pass width %d px",
		k, len(vWave), len(wave), width)
	return ts, nil
}

// logDerivative returns gradient(values)/gradLogWave/c.
func logDerivative(values, gradLogWave []float64) []float64 {
	grad := spectral.Gradient(values)
	out := make([]float64, len(values))
	for i := range grad {
		out[i] = grad[i] / gradLogWave[i] / units.SpeedOfLight
	}
	return out
}

// Valid reports whether the template mask marks wavelength w as usable.
// Wavelengths outside the template range are not valid.
func (ts *TemplateSplines) Valid(w float64) bool {
	return ts.Mask.Predict(w) >= splineMaskThreshold
}
