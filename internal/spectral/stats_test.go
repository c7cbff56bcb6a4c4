package spectral

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanAggregates(t *testing.T) {
	t.Parallel()
	nan := math.NaN()
	values := []float64{1, nan, 3, math.Inf(1), 2}

	assert.Equal(t, 6.0, NanSum(values))
	assert.InDelta(t, 2.0, NanMean(values), 1e-12)
	assert.Equal(t, 2.0, NanMedian(values))
	assert.InDelta(t, math.Sqrt(2.0/3.0), NanStd(values), 1e-12)

	t.Run("even count median averages", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 2.5, NanMedian([]float64{4, 1, 3, 2}))
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		empty := []float64{nan, nan}
		assert.Equal(t, 0.0, NanSum(empty))
		assert.True(t, math.IsNaN(NanMean(empty)))
		assert.True(t, math.IsNaN(NanMedian(empty)))
		assert.True(t, math.IsNaN(NanStd(empty)))
		assert.True(t, math.IsNaN(EstimateSigma(empty)))
		assert.True(t, math.IsNaN(NanQuantile(0.5, nil)))
	})
}

func TestEstimateSigma_Gaussian(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	values := make([]float64, 20000)
	for i := range values {
		values[i] = 3 + 2.5*rng.NormFloat64()
	}
	// One wild outlier must not matter.
	values[0] = 1e9

	assert.InDelta(t, 2.5, EstimateSigma(values), 0.1)
}

func TestGradient(t *testing.T) {
	t.Parallel()
	got := Gradient([]float64{1, 2, 4, 7, 11})
	assert.Equal(t, []float64{1, 1.5, 2.5, 3.5, 4}, got)

	assert.Empty(t, Gradient(nil))
	assert.True(t, math.IsNaN(Gradient([]float64{5})[0]))
}

func TestOddRatioMean(t *testing.T) {
	t.Parallel()

	t.Run("uniform errors reduce to mean", func(t *testing.T) {
		t.Parallel()
		mean, bulk := OddRatioMean([]float64{1, 2, 3}, []float64{1, 1, 1}, 1e-4, 10)
		assert.InDelta(t, 2.0, mean, 1e-3)
		assert.InDelta(t, 1/math.Sqrt(3), bulk, 1e-2)
	})

	t.Run("outlier is rejected", func(t *testing.T) {
		t.Parallel()
		rng := rand.New(rand.NewSource(11))
		n := 200
		values := make([]float64, n)
		errs := make([]float64, n)
		for i := range values {
			values[i] = 10 + rng.NormFloat64()
			errs[i] = 1
		}
		clean, bulk := OddRatioMean(values, errs, 1e-4, 10)

		values = append(values, 1e4)
		errs = append(errs, 1)
		dirty, _ := OddRatioMean(values, errs, 1e-4, 10)

		assert.Less(t, math.Abs(dirty-clean), 0.05*bulk)
	})

	t.Run("skips non-finite pairs", func(t *testing.T) {
		t.Parallel()
		mean, _ := OddRatioMean(
			[]float64{5, math.NaN(), 5, 5},
			[]float64{1, 1, math.Inf(1), 1},
			1e-4, 10)
		assert.InDelta(t, 5.0, mean, 1e-12)
	})

	t.Run("nothing valid", func(t *testing.T) {
		t.Parallel()
		mean, bulk := OddRatioMean([]float64{math.NaN()}, []float64{1}, 1e-4, 10)
		require.True(t, math.IsNaN(mean))
		require.True(t, math.IsNaN(bulk))
	})
}
