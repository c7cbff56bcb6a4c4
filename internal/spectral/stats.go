package spectral

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Percentiles bracketing +/-1 sigma of a normal distribution.
const (
	sigmaLowQuantile  = 0.1586553
	sigmaHighQuantile = 0.8413447
)

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Finite returns a copy of values with non-finite entries removed.
func Finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if IsFinite(v) {
			out = append(out, v)
		}
	}
	return out
}

// NanSum sums the finite entries of values. An input without finite
// entries sums to zero, matching the usual nansum convention.
func NanSum(values []float64) float64 {
	return floats.Sum(Finite(values))
}

// NanMean returns the mean of the finite entries, NaN if there are none.
func NanMean(values []float64) float64 {
	f := Finite(values)
	if len(f) == 0 {
		return math.NaN()
	}
	return stat.Mean(f, nil)
}

// NanStd returns the population standard deviation of the finite entries.
func NanStd(values []float64) float64 {
	f := Finite(values)
	if len(f) == 0 {
		return math.NaN()
	}
	return math.Sqrt(stat.PopVariance(f, nil))
}

// NanMedian returns the median of the finite entries, NaN if there are none.
func NanMedian(values []float64) float64 {
	f := Finite(values)
	if len(f) == 0 {
		return math.NaN()
	}
	sort.Float64s(f)
	mid := len(f) / 2
	if len(f)%2 == 1 {
		return f[mid]
	}
	return 0.5 * (f[mid-1] + f[mid])
}

// NanQuantile returns the p-quantile of the finite entries using linear
// interpolation between order statistics.
func NanQuantile(p float64, values []float64) float64 {
	f := Finite(values)
	if len(f) == 0 {
		return math.NaN()
	}
	sort.Float64s(f)
	return stat.Quantile(p, stat.LinInterp, f, nil)
}

// EstimateSigma is a robust standard deviation: half the distance between
// the 15.9th and 84.1st percentiles of the finite entries.
func EstimateSigma(values []float64) float64 {
	f := Finite(values)
	if len(f) == 0 {
		return math.NaN()
	}
	sort.Float64s(f)
	lo := stat.Quantile(sigmaLowQuantile, stat.LinInterp, f, nil)
	hi := stat.Quantile(sigmaHighQuantile, stat.LinInterp, f, nil)
	return (hi - lo) / 2
}

// Gradient returns the centred finite difference of values with unit
// spacing; the two ends use one-sided differences.
func Gradient(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	switch n {
	case 0:
		return out
	case 1:
		out[0] = math.NaN()
		return out
	}
	out[0] = values[1] - values[0]
	out[n-1] = values[n-1] - values[n-2]
	for i := 1; i < n-1; i++ {
		out[i] = (values[i+1] - values[i-1]) / 2
	}
	return out
}

// OddRatioMean is a weighted mean that down-weights outliers by the odds
// that each value is drawn from the bulk Gaussian rather than from a flat
// outlier population of relative amplitude oddRatio. Pairs with a
// non-finite value or error are ignored. It returns the mean and its
// bulk uncertainty, both NaN when nothing valid remains.
//
// Algorithm:
// 1. Start from the median of the valid values.
// 2. For nIter passes, weight each value by p_good/err^2 where
//    p_good = 1 - oddRatio/(exp(-nsig^2/2) + oddRatio).
// 3. The bulk error is sqrt(1/sum(p_good/err^2)) from the last pass.
func OddRatioMean(values, errs []float64, oddRatio float64, nIter int) (mean, bulkErr float64) {
	var v, e []float64
	for i := range values {
		if i < len(errs) && IsFinite(values[i]) && IsFinite(errs[i]) && errs[i] > 0 {
			v = append(v, values[i])
			e = append(e, errs[i])
		}
	}
	if len(v) == 0 {
		return math.NaN(), math.NaN()
	}
	if nIter < 1 {
		nIter = 1
	}

	guess := NanMedian(v)
	oddGood := make([]float64, len(v))
	for iter := 0; iter < nIter; iter++ {
		var sumW, sumWV float64
		for i := range v {
			nsig := (v[i] - guess) / e[i]
			gg := math.Exp(-0.5 * nsig * nsig)
			oddGood[i] = 1 - oddRatio/(gg+oddRatio)
			w := oddGood[i] / (e[i] * e[i])
			sumW += w
			sumWV += w * v[i]
		}
		if sumW <= 0 {
			break
		}
		guess = sumWV / sumW
	}

	var sumGood float64
	for i := range v {
		sumGood += oddGood[i] / (e[i] * e[i])
	}
	return guess, math.Sqrt(1 / sumGood)
}
