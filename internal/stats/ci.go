package stats

import (
	"maps"
	"math"
	"slices"
)

// tCritical95 maps degrees of freedom to two-tailed t-critical values for a 95% CI.
var tCritical95 = map[int]float64{
	1:   12.706,
	2:   4.303,
	3:   3.182,
	4:   2.776,
	5:   2.571,
	6:   2.447,
	7:   2.365,
	8:   2.306,
	9:   2.262,
	10:  2.228,
	15:  2.131,
	20:  2.086,
	25:  2.060,
	30:  2.042,
	40:  2.021,
	60:  2.000,
	120: 1.980,
}

// tCritical95Keys holds the table keys in ascending order.
var tCritical95Keys = slices.Sorted(maps.Keys(tCritical95))

// zCritical95 is the normal approximation used past the end of the table.
const zCritical95 = 1.96

// Interval is a [lower, upper] pair. It encodes to JSON as a two element array.
type Interval [2]float64

func (iv Interval) Lower() float64 { return iv[0] }
func (iv Interval) Upper() float64 { return iv[1] }

// Width returns upper - lower.
func (iv Interval) Width() float64 { return iv[1] - iv[0] }

// Overlaps reports whether the two intervals share at least one point.
func (iv Interval) Overlaps(other Interval) bool {
	return iv[0] <= other[1] && other[0] <= iv[1]
}

// TCritical95 returns the two-tailed 95% t-critical value for the given degrees of freedom.
// Values between table entries are linearly interpolated. df below 1 gets the df=1 value,
// df above the largest entry gets the normal approximation.
func TCritical95(df int) float64 {
	if df < 1 {
		return tCritical95[1]
	}
	if v, ok := tCritical95[df]; ok {
		return v
	}

	last := tCritical95Keys[len(tCritical95Keys)-1]
	if df > last {
		return zCritical95
	}

	for i := 0; i < len(tCritical95Keys)-1; i++ {
		lower, upper := tCritical95Keys[i], tCritical95Keys[i+1]
		if df > lower && df < upper {
			ratio := float64(df-lower) / float64(upper-lower)
			return tCritical95[lower] + ratio*(tCritical95[upper]-tCritical95[lower])
		}
	}

	return zCritical95
}

// ConfidenceInterval95 computes a 95% confidence interval for the mean of values.
//
// An empty sample yields [0, 0] and a single value v yields [v, v]. Otherwise the margin is
// t(n-1) * SE and the lower bound is clamped at zero, since the quantities analysed here
// (engagement rates, impressions) cannot be negative.
func ConfidenceInterval95(values []float64) Interval {
	switch len(values) {
	case 0:
		return Interval{0, 0}
	case 1:
		return Interval{values[0], values[0]}
	}

	avg := Mean(values)
	margin := TCritical95(len(values)-1) * StandardError(values)

	return Interval{math.Max(0, avg-margin), avg + margin}
}
