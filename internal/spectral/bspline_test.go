package spectral

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBSpline_InterpolatesSamples(t *testing.T) {
	t.Parallel()
	for _, k := range []int{1, 2, 3, 5} {
		xs := linearGrid(0, 0.37, 40)
		ys := make([]float64, len(xs))
		for i, x := range xs {
			ys[i] = math.Sin(x) + 0.1*x
		}
		s, err := NewBSpline(xs, ys, k)
		require.NoError(t, err, "degree %d", k)
		assert.Equal(t, k, s.Degree())

		for i, x := range xs {
			assert.InDelta(t, ys[i], s.Predict(x), 1e-9, "degree %d sample %d", k, i)
		}
	}
}

func TestBSpline_ReproducesPolynomials(t *testing.T) {
	t.Parallel()
	poly := func(x float64) float64 { return 0.5 - 2*x + 0.3*x*x - 0.01*x*x*x }

	xs := linearGrid(-5, 0.25, 41)
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = poly(x)
	}
	s, err := NewBSpline(xs, ys, 5)
	require.NoError(t, err)

	for x := -4.9; x < 4.9; x += 0.113 {
		assert.InDelta(t, poly(x), s.Predict(x), 1e-8, "x=%v", x)
	}
}

func TestBSpline_NaNOutsideDomain(t *testing.T) {
	t.Parallel()
	xs := linearGrid(1, 1, 10)
	s, err := NewBSpline(xs, xs, 3)
	require.NoError(t, err)

	lo, hi := s.Domain()
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 10.0, hi)
	assert.True(t, math.IsNaN(s.Predict(0.999)))
	assert.True(t, math.IsNaN(s.Predict(10.001)))
	assert.True(t, math.IsNaN(s.Predict(math.NaN())))
	assert.InDelta(t, 10.0, s.Predict(10), 1e-12)

	all := s.PredictAll([]float64{0, 5.5})
	assert.True(t, math.IsNaN(all[0]))
	assert.InDelta(t, 5.5, all[1], 1e-12)
}

func TestBSpline_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewBSpline([]float64{1, 2, 3}, []float64{1, 2, 3}, 5)
	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 3, insufficient.Have)
	assert.Equal(t, 6, insufficient.Need)

	_, err = NewBSpline([]float64{1, 1, 2, 3}, []float64{1, 2, 3, 4}, 1)
	assert.Error(t, err)

	_, err = NewBSpline([]float64{1, 2}, []float64{1}, 1)
	assert.Error(t, err)

	_, err = NewBSpline([]float64{1, 2, 3}, []float64{1, math.NaN(), 3}, 1)
	assert.Error(t, err)

	_, err = NewBSpline([]float64{1, 2, 3}, []float64{1, 2, 3}, 0)
	assert.Error(t, err)
}
