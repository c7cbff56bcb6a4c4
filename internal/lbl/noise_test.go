package lbl

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateNoiseModel(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	const n, sigma = 2000, 0.05

	science := make([]float64, n)
	model := make([]float64, n)
	for i := range science {
		model[i] = 1 + 0.1*math.Sin(float64(i)/50)
		science[i] = model[i] + sigma*rng.NormFloat64()
	}
	short := []float64{1, 2, 3}

	rms, err := EstimateNoiseModel([][]float64{science, short}, [][]float64{model, short}, 100)
	require.NoError(t, err)
	require.Len(t, rms, 2)
	require.Len(t, rms[0], n)

	for _, i := range []int{0, 150, 999, n - 1} {
		assert.InDelta(t, sigma, rms[0][i], 0.015, "pixel %d", i)
	}
	// too few windows: the order carries no weight rather than zero noise
	for _, v := range rms[1] {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEstimateNoiseModel_NoValidWindows(t *testing.T) {
	t.Parallel()
	flat := make([]float64, 500)
	rms, err := EstimateNoiseModel([][]float64{flat}, [][]float64{flat}, 100)

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.Need)
	assert.Zero(t, insufficient.Have)
	require.Len(t, rms, 1)
	assert.True(t, math.IsNaN(rms[0][250]))
}

func TestEstimateNoiseModel_GapIgnored(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(5))
	science := make([]float64, 1000)
	model := make([]float64, 1000)
	for i := range science {
		science[i] = 0.02 * rng.NormFloat64()
	}
	for i := 400; i < 450; i++ {
		science[i] = math.NaN()
	}
	rms, err := EstimateNoiseModel([][]float64{science}, [][]float64{model}, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.02, rms[0][420], 0.006)
}
