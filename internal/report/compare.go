package report

import (
	"socialchef-insights/internal/analysis"
	"socialchef-insights/internal/stats"
)

// DayDelta compares one weekday across two snapshots.
type DayDelta struct {
	DayLabel   string         `json:"day_label"`
	BaseRate   float64        `json:"base_rate"`
	TargetRate float64        `json:"target_rate"`
	BaseCI     stats.Interval `json:"base_ci"`
	TargetCI   stats.Interval `json:"target_ci"`
	// Overlapping intervals mean the change is within noise.
	Overlap bool `json:"overlap"`
}

// Comparison describes how engagement moved from a base snapshot to a target snapshot.
type Comparison struct {
	BaseID        int64               `json:"base_id"`
	TargetID      int64               `json:"target_id"`
	BaseRate      float64             `json:"base_rate"`
	TargetRate    float64             `json:"target_rate"`
	ChangePercent float64             `json:"change_percent"`
	Trend         stats.DeclineResult `json:"trend"`
	Days          []DayDelta          `json:"days"`
}

// Compare tests whether the target snapshot's engagement declined against the base.
func Compare(baseID int64, base *analysis.Analyzer, targetID int64, target *analysis.Analyzer) Comparison {
	baseRates := rates(base.Posts())
	targetRates := rates(target.Posts())

	c := Comparison{
		BaseID:     baseID,
		TargetID:   targetID,
		BaseRate:   stats.Mean(baseRates),
		TargetRate: stats.Mean(targetRates),
		Trend:      stats.DetectDecline(targetRates, baseRates, stats.DefaultDeclineAlpha),
	}
	if c.BaseRate != 0 {
		c.ChangePercent = (c.TargetRate - c.BaseRate) / c.BaseRate * 100
	}

	baseDays := base.DayPerformance()
	targetDays := target.DayPerformance()
	for i := range baseDays {
		b, t := baseDays[i], targetDays[i]
		c.Days = append(c.Days, DayDelta{
			DayLabel:   b.DayLabel,
			BaseRate:   b.AvgEngagementRate,
			TargetRate: t.AvgEngagementRate,
			BaseCI:     b.ConfidenceInterval,
			TargetCI:   t.ConfidenceInterval,
			Overlap:    b.ConfidenceInterval.Overlaps(t.ConfidenceInterval),
		})
	}
	return c
}

func rates(posts []analysis.Post) []float64 {
	out := make([]float64, len(posts))
	for i, p := range posts {
		out[i] = p.EngagementRate
	}
	return out
}
