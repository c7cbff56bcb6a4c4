package spectral

import (
	"fmt"
	"math"
	"sort"
)

// BSpline is an interpolating B-spline of degree k through a set of
// samples (a smoothing factor of zero). It passes exactly through every
// sample and returns NaN for queries outside [x0, xN-1].
//
// gonum's interp package stops at cubic piecewise polynomials; the
// derivative models need degree 5, so the collocation system is solved
// here directly.
type BSpline struct {
	k     int
	knots []float64
	coefs []float64
	xMin  float64
	xMax  float64
}

// NewBSpline fits a degree-k interpolating spline through (xs, ys). xs
// must be strictly increasing and every sample finite; at least k+1
// samples are required.
//
// Algorithm:
// 1. Place k+1 coincident knots at each end and interior knots at the
//    data points (odd k) or mid-points (even k), giving n coefficients.
// 2. Build the banded collocation matrix B[i][j] = N_j(x_i).
// 3. Solve B c = y by banded elimination without pivoting, which is
//    stable for B-spline collocation (the matrix is totally positive).
func NewBSpline(xs, ys []float64, k int) (*BSpline, error) {
	if k < 1 {
		return nil, fmt.Errorf("bspline: degree must be >= 1, got %d", k)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("bspline: len(xs)=%d != len(ys)=%d", len(xs), len(ys))
	}
	n := len(xs)
	if n < k+1 {
		return nil, &InsufficientDataError{What: fmt.Sprintf("degree-%d spline", k), Have: n, Need: k + 1}
	}
	for i := range xs {
		if !IsFinite(xs[i]) || !IsFinite(ys[i]) {
			return nil, fmt.Errorf("bspline: non-finite sample at index %d", i)
		}
		if i > 0 && xs[i] <= xs[i-1] {
			return nil, fmt.Errorf("bspline: abscissae not strictly increasing at index %d", i)
		}
	}

	s := &BSpline{
		k:     k,
		knots: interpolationKnots(xs, k),
		xMin:  xs[0],
		xMax:  xs[n-1],
	}

	// band storage: row i holds columns i-k .. i+k
	width := 2*k + 1
	band := make([]float64, n*width)
	basis := make([]float64, k+1)
	for i, x := range xs {
		span := s.findSpan(x)
		s.basisFuncs(span, x, basis)
		for r := 0; r <= k; r++ {
			col := span - k + r
			band[i*width+col-i+k] = basis[r]
		}
	}

	coefs := make([]float64, n)
	copy(coefs, ys)
	if err := solveBanded(band, coefs, n, k); err != nil {
		return nil, err
	}
	s.coefs = coefs
	return s, nil
}

// interpolationKnots returns the n+k+1 knot vector for interpolation.
func interpolationKnots(xs []float64, k int) []float64 {
	n := len(xs)
	knots := make([]float64, 0, n+k+1)
	for i := 0; i <= k; i++ {
		knots = append(knots, xs[0])
	}
	if k%2 == 1 {
		half := (k + 1) / 2
		knots = append(knots, xs[half:n-half]...)
	} else {
		for i := k / 2; i <= n-2-k/2; i++ {
			knots = append(knots, 0.5*(xs[i]+xs[i+1]))
		}
	}
	for i := 0; i <= k; i++ {
		knots = append(knots, xs[n-1])
	}
	return knots
}

// findSpan returns the knot span index j with knots[j] <= x < knots[j+1],
// clamped to [k, n-1] so that the right end point belongs to the last span.
func (s *BSpline) findSpan(x float64) int {
	n := len(s.knots) - s.k - 1
	if x >= s.knots[n] {
		return n - 1
	}
	// first knot strictly greater than x, minus one
	j := sort.Search(len(s.knots), func(i int) bool { return s.knots[i] > x }) - 1
	if j < s.k {
		j = s.k
	}
	if j > n-1 {
		j = n - 1
	}
	return j
}

// basisFuncs fills out with the k+1 non-zero basis functions on span.
func (s *BSpline) basisFuncs(span int, x float64, out []float64) {
	k := s.k
	left := make([]float64, k+1)
	right := make([]float64, k+1)
	out[0] = 1
	for j := 1; j <= k; j++ {
		left[j] = x - s.knots[span+1-j]
		right[j] = s.knots[span+j] - x
		saved := 0.0
		for r := 0; r < j; r++ {
			temp := out[r] / (right[r+1] + left[j-r])
			out[r] = saved + right[r+1]*temp
			saved = left[j-r] * temp
		}
		out[j] = saved
	}
}

// Degree returns the spline degree.
func (s *BSpline) Degree() int { return s.k }

// Domain returns the fitted abscissa range.
func (s *BSpline) Domain() (lo, hi float64) { return s.xMin, s.xMax }

// Predict evaluates the spline at x. Queries outside the fitted range
// return NaN.
func (s *BSpline) Predict(x float64) float64 {
	if math.IsNaN(x) || x < s.xMin || x > s.xMax {
		return math.NaN()
	}
	span := s.findSpan(x)
	basis := make([]float64, s.k+1)
	s.basisFuncs(span, x, basis)
	var v float64
	for r := 0; r <= s.k; r++ {
		v += s.coefs[span-s.k+r] * basis[r]
	}
	return v
}

// PredictAll evaluates the spline at every x.
func (s *BSpline) PredictAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = s.Predict(x)
	}
	return out
}

// solveBanded solves A x = b in place for a band matrix with k sub- and
// super-diagonals stored row-wise (row i, column j at i*(2k+1)+j-i+k).
func solveBanded(band, b []float64, n, k int) error {
	width := 2*k + 1
	at := func(r, c int) *float64 { return &band[r*width+c-r+k] }

	for i := 0; i < n; i++ {
		pivot := *at(i, i)
		if pivot == 0 || !IsFinite(pivot) {
			return fmt.Errorf("bspline: singular collocation matrix at row %d", i)
		}
		last := i + k
		if last > n-1 {
			last = n - 1
		}
		for r := i + 1; r <= last; r++ {
			factor := *at(r, i) / pivot
			if factor == 0 {
				continue
			}
			for c := i; c <= last; c++ {
				*at(r, c) -= factor * *at(i, c)
			}
			b[r] -= factor * b[i]
		}
	}

	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		last := i + k
		if last > n-1 {
			last = n - 1
		}
		for c := i + 1; c <= last; c++ {
			sum -= *at(i, c) * b[c]
		}
		b[i] = sum / *at(i, i)
	}
	return nil
}
