package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear_Extrapolation(t *testing.T) {
	t.Parallel()
	xs := []float64{0, 1, 2}
	ys := []float64{10, 20, 40}

	tests := []struct {
		name string
		ext  Extrapolation
		x    float64
		want float64
	}{
		{"inside", ExtrapolateNaN, 1.5, 30},
		{"nan below", ExtrapolateNaN, -1, math.NaN()},
		{"zero above", ExtrapolateZero, 3, 0},
		{"constant below", ExtrapolateConstant, -1, 10},
		{"constant above", ExtrapolateConstant, 5, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLinear(xs, ys, tt.ext)
			require.NoError(t, err)
			got := l.Predict(tt.x)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestLinear_DropsNonFinite(t *testing.T) {
	t.Parallel()
	l, err := NewLinear([]float64{0, 1, math.NaN(), 3}, []float64{0, 1, 5, math.Inf(1)}, ExtrapolateNaN)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, l.Predict(0.5), 1e-12)
	assert.True(t, math.IsNaN(l.Predict(2)))

	_, err = NewLinear([]float64{0, math.NaN()}, []float64{0, 1}, ExtrapolateNaN)
	assert.Error(t, err)
}

func TestPixelMap(t *testing.T) {
	t.Parallel()
	wave := linearGrid(5000, 0.02, 500)
	pm, err := NewPixelMap(wave)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, pm.Pixel(5000), 1e-9)
	assert.InDelta(t, 250.5, pm.Pixel(5000+0.02*250.5), 1e-6)
	// out-of-range wavelengths extend linearly
	assert.InDelta(t, -10.0, pm.Pixel(5000-0.2), 1e-6)
	assert.InDelta(t, 509.0, pm.Pixel(5000+0.02*509), 1e-6)

	_, err = NewPixelMap([]float64{1, 2})
	assert.Error(t, err)
	_, err = NewPixelMap([]float64{3, 2, 1, 0})
	assert.Error(t, err)
}
