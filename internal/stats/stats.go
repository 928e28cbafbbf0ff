// Package stats implements the descriptive statistics and confidence estimates used by the
// schedule analysis. Every function is total: degenerate input yields a documented sentinel
// (0, 1, a zero-width interval) and never NaN. Means and deviations of finite input are
// finite whenever the exact result fits in a float64; interval bounds can overflow only
// when the sample itself is within an order of magnitude of math.MaxFloat64.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// rescaleAbove is the magnitude past which sums of values or of their squares may
// overflow float64.
const rescaleAbove = 1e150

// rescale divides values by their largest magnitude when it exceeds rescaleAbove and
// returns the factor that restores the original scale.
func rescale(values []float64) ([]float64, float64) {
	peak := 0.0
	for _, v := range values {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak <= rescaleAbove || math.IsInf(peak, 0) {
		return values, 1
	}
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v / peak
	}
	return scaled, peak
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	scaled, k := rescale(values)
	return stat.Mean(scaled, nil) * k
}

// StandardDeviation returns the sample standard deviation (Bessel's correction, n-1).
// Returns 0 for fewer than 2 values.
func StandardDeviation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	scaled, k := rescale(values)
	return stat.StdDev(scaled, nil) * k
}

// StandardError returns SD / sqrt(n), or 0 for fewer than 2 values.
func StandardError(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return StandardDeviation(values) / math.Sqrt(float64(len(values)))
}

// CoefficientOfVariation returns SD / |mean|. It returns 1 (maximum uncertainty) when there
// are fewer than 2 values or the mean is zero.
func CoefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 1
	}
	avg := Mean(values)
	if avg == 0 {
		return 1
	}
	return StandardDeviation(values) / math.Abs(avg)
}

// PearsonCorrelation returns the correlation coefficient of x and y in [-1, 1].
//
// Only the first min(len(x), len(y)) pairs are used. Returns 0 when fewer than 2 pairs
// remain or either series has no variance.
func PearsonCorrelation(x, y []float64) float64 {
	n := min(len(x), len(y))
	if n < 2 {
		return 0
	}
	// r is invariant under positive scaling of either series.
	x, _ = rescale(x[:n])
	y, _ = rescale(y[:n])

	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	// Rounding can push a perfect correlation a hair past the bounds.
	return math.Max(-1, math.Min(1, r))
}

// Significance runs a two-sided one-sample t-test of the mean of values against reference
// and returns 1-p, so values close to 1 mean the sample is unlikely to share the reference
// mean. Returns 0 when there are fewer than 2 values or the standard error is zero.
func Significance(values []float64, reference float64) float64 {
	if len(values) < 2 {
		return 0
	}
	se := StandardError(values)
	if se == 0 {
		return 0
	}

	t := (Mean(values) - reference) / se
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(len(values) - 1)}
	p := 2 * dist.Survival(math.Abs(t))

	return math.Max(0, math.Min(1, 1-p))
}
