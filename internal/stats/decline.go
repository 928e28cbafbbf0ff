package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DeclineStatus is the outcome of a decline check.
type DeclineStatus string

const (
	DeclineOK           DeclineStatus = "ok"
	DeclineDetected     DeclineStatus = "declined"
	DeclineInsufficient DeclineStatus = "insufficient"
)

// DeclineResult describes how a recent sample compares to a baseline sample.
type DeclineResult struct {
	Status           DeclineStatus `json:"status"`
	RecentMean       float64       `json:"recent_mean"`
	BaselineMean     float64       `json:"baseline_mean"`
	RecentCount      int           `json:"recent_count"`
	BaselineCount    int           `json:"baseline_count"`
	ChangePercent    float64       `json:"change_percent"`
	MinEffectPercent float64       `json:"min_effect_percent"`
	PValue           *float64      `json:"p_value,omitempty"` // nil if not computed
}

// DefaultDeclineAlpha is the significance level used by the analysis summary.
const DefaultDeclineAlpha = 0.01

// minDeclineEffectPercent is the smallest drop that is ever reported.
const minDeclineEffectPercent = 5.0

// tCriticalOneSided99 maps degrees of freedom to t-critical values for a 99% one-sided test.
var tCriticalOneSided99 = []float64{
	0,
	31.821, // df=1
	6.965,  // df=2
	4.541,  // df=3
	3.747,  // df=4
	3.365,  // df=5
	3.143,  // df=6
	2.998,  // df=7
	2.896,  // df=8
	2.821,  // df=9
	2.764,  // df=10
	2.718,  // df=11
	2.681,  // df=12
	2.650,  // df=13
	2.624,  // df=14
	2.602,  // df=15
	2.583,  // df=16
	2.567,  // df=17
	2.552,  // df=18
	2.539,  // df=19
	2.528,  // df=20
	2.518,  // df=21
	2.508,  // df=22
	2.500,  // df=23
	2.492,  // df=24
	2.485,  // df=25
	2.479,  // df=26
	2.473,  // df=27
	2.467,  // df=28
	2.462,  // df=29
	2.457,  // df=30
}

// TCriticalOneSided returns the t-critical value for a one-sided test at alpha.
// The table covers alpha = 0.01; any other alpha uses the quantile of the t distribution.
func TCriticalOneSided(df int, alpha float64) float64 {
	if df < 1 {
		df = 1
	}
	if alpha != DefaultDeclineAlpha {
		return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}.Quantile(1 - alpha)
	}
	if df < len(tCriticalOneSided99) {
		return tCriticalOneSided99[df]
	}
	return 2.326 // asymptotic z for 99% one-sided
}

// DetectDecline tests whether the mean of recent is statistically and practically lower
// than the mean of baseline.
//
// The drop must exceed the one-sided t-critical value for the recent sample's degrees of
// freedom, and be at least max(5%, 2*CV(baseline)) of the baseline mean, so noisy accounts
// need a larger drop to be flagged.
func DetectDecline(recent, baseline []float64, alpha float64) DeclineResult {
	result := DeclineResult{
		Status:        DeclineInsufficient,
		RecentMean:    Mean(recent),
		BaselineMean:  Mean(baseline),
		RecentCount:   len(recent),
		BaselineCount: len(baseline),
	}

	seRecent := StandardError(recent)
	seBaseline := StandardError(baseline)
	if len(recent) < 2 || len(baseline) < 2 || (seRecent == 0 && seBaseline == 0) {
		return result
	}

	result.MinEffectPercent = math.Max(minDeclineEffectPercent, 2.0*CoefficientOfVariation(baseline)*100.0)

	drop := result.BaselineMean - result.RecentMean
	if result.BaselineMean > 0 {
		result.ChangePercent = -drop / result.BaselineMean * 100.0
	}

	seDiff := math.Sqrt(seRecent*seRecent + seBaseline*seBaseline)
	t := drop / seDiff

	// Conservative df: the smaller side drives the test.
	df := min(len(recent), len(baseline)) - 1

	pValue := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}.Survival(t)
	result.PValue = &pValue

	if t > TCriticalOneSided(df, alpha) && -result.ChangePercent >= result.MinEffectPercent {
		result.Status = DeclineDetected
	} else {
		result.Status = DeclineOK
	}

	return result
}
