package lbl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBouchyLine(t *testing.T) {
	t.Parallel()
	deriv := []float64{0.1, -0.4, 0.9, 2.5, -1.3, 0.05}

	t.Run("recovers the scale of a pure derivative residual", func(t *testing.T) {
		for _, k := range []float64{-250, 0, 3.5, 1e4} {
			diff := make([]float64, len(deriv))
			for i, d := range deriv {
				diff[i] = k * d
			}
			value, _ := BouchyLine(deriv, diff, 1)
			assert.InDelta(t, k, value, 1e-9*math.Max(1, math.Abs(k)))
		}
	})

	t.Run("uncertainty", func(t *testing.T) {
		var sum float64
		for _, d := range deriv {
			sum += (d / 0.2) * (d / 0.2)
		}
		_, rms := BouchyLine(deriv, make([]float64, len(deriv)), 0.2)
		assert.InDelta(t, 1/math.Sqrt(sum), rms, 1e-12)
	})

	t.Run("non-finite pixels are skipped", func(t *testing.T) {
		d := []float64{1, math.NaN(), 2}
		diff := []float64{3, 5, math.Inf(1)}
		value, rms := BouchyLine(d, diff, 1)
		assert.InDelta(t, 3, value, 1e-12)
		assert.InDelta(t, 1/math.Sqrt(5), rms, 1e-12)
	})

	t.Run("nothing usable", func(t *testing.T) {
		value, _ := BouchyLine([]float64{1, 2}, []float64{math.NaN(), math.NaN()}, 1)
		assert.True(t, math.IsNaN(value))
	})
}

func TestScalingRatio(t *testing.T) {
	t.Parallel()
	n := 400
	model := make([]float64, n)
	for i := range model {
		u := (float64(i) - 200) / 15
		model[i] = -0.5 * math.Exp(-0.5*u*u)
	}

	t.Run("exact scale", func(t *testing.T) {
		spectrum := make([]float64, n)
		for i := range spectrum {
			spectrum[i] = 1.7 * model[i]
		}
		assert.InDelta(t, 1.7, ScalingRatio(spectrum, model), 1e-6)
	})

	t.Run("robust to outliers and gaps", func(t *testing.T) {
		spectrum := make([]float64, n)
		for i := range spectrum {
			spectrum[i] = 1.7 * model[i]
		}
		spectrum[195] = 40
		spectrum[10] = math.NaN()
		m := append([]float64(nil), model...)
		m[300] = math.NaN()
		assert.InDelta(t, 1.7, ScalingRatio(spectrum, m), 0.01)
	})

	t.Run("no overlap", func(t *testing.T) {
		nan := []float64{math.NaN(), math.NaN()}
		assert.True(t, math.IsNaN(ScalingRatio([]float64{1, 2}, nan)))
	})
}
