package stats

// ConfidenceLevel is a UX bucket for how far a recommendation can be trusted.
// It is a threshold heuristic, not a probability.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ConfidenceLevelFor classifies a sample by its size and coefficient of variation.
func ConfidenceLevelFor(sampleSize int, cv float64) ConfidenceLevel {
	if sampleSize >= 10 && cv < 0.5 {
		return ConfidenceHigh
	}
	if sampleSize >= 5 && cv < 0.8 {
		return ConfidenceMedium
	}
	return ConfidenceLow
}
