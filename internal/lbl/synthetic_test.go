package lbl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/lbl/internal/units"
)

const (
	lineCentre = 5000.0
	lineSigma  = 0.1
	lineDepth  = 0.5
)

// absorption is a flat unit continuum with one Gaussian absorption line.
func absorption(w float64) float64 {
	u := (w - lineCentre) / lineSigma
	return 1 - lineDepth*math.Exp(-0.5*u*u)
}

func grid(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// syntheticTemplate samples absorption on 4990-5010 A at 0.01 A.
func syntheticTemplate() *Spectrum {
	wave := grid(4990, 0.01, 2001)
	flux := make([]float64, len(wave))
	for i, w := range wave {
		flux[i] = absorption(w)
	}
	return &Spectrum{Wave: wave, Flux: flux}
}

// syntheticScience returns one order on 4995-5005 A at 0.02 A holding the
// template scaled by amp and Doppler shifted so that the fitted systemic
// velocity is -shift.
func syntheticScience(shift, amp float64) (wave, flux [][]float64) {
	w := grid(4995, 0.02, 501)
	f := make([]float64, len(w))
	for i, x := range w {
		f[i] = amp * absorption(units.DopplerShiftValue(x, shift))
	}
	return [][]float64{w}, [][]float64{f}
}

func constant(shape [][]float64, v float64) [][]float64 {
	out := make([][]float64, len(shape))
	for o := range shape {
		out[o] = make([]float64, len(shape[o]))
		for i := range out[o] {
			out[o][i] = v
		}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.UseNoiseModel = true
	return cfg
}

// newTestEngine builds splines and a reference table from mask centres
// over the synthetic science grid.
func newTestEngine(t *testing.T, cfg Config, centres ...float64) (*Engine, *ReferenceTable) {
	t.Helper()
	splines, err := BuildTemplateSplines(syntheticTemplate(), 0, cfg, nil)
	require.NoError(t, err)

	wave, _ := syntheticScience(0, 1)
	mask := make([]MaskLine, len(centres))
	for i, c := range centres {
		mask[i] = MaskLine{Center: c, Weight: 1}
	}
	table, err := BuildReferenceTable(mask, wave)
	require.NoError(t, err)

	engine, err := NewEngine(cfg, splines, table, nil)
	require.NoError(t, err)
	return engine, table
}

func scienceInput(shift float64) ExposureInput {
	wave, flux := syntheticScience(shift, 1.2)
	return ExposureInput{
		Name:  "synthetic",
		Flux:  flux,
		Wave:  wave,
		RMS:   constant(flux, 3e-3),
		Reset: true,
	}
}
