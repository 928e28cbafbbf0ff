package analysis

import (
	"time"

	"socialchef-insights/internal/stats"
)

// DayPerformance aggregates posts published on one weekday.
type DayPerformance struct {
	DayOfWeek          int            `json:"day_of_week"`
	DayLabel           string         `json:"day_label"`
	AvgEngagementRate  float64        `json:"avg_engagement_rate"`
	AvgImpressions     float64        `json:"avg_impressions"`
	PostCount          int            `json:"post_count"`
	ConfidenceInterval stats.Interval `json:"confidence_interval"`
}

// HourPerformance aggregates posts published in one hour of the day.
type HourPerformance struct {
	Hour               int            `json:"hour"`
	HourLabel          string         `json:"hour_label"`
	AvgEngagementRate  float64        `json:"avg_engagement_rate"`
	AvgImpressions     float64        `json:"avg_impressions"`
	PostCount          int            `json:"post_count"`
	ConfidenceInterval stats.Interval `json:"confidence_interval"`
}

// ContentTypePerformance aggregates posts published to one platform.
type ContentTypePerformance struct {
	ContentType        string         `json:"content_type"`
	Label              string         `json:"label"`
	AvgEngagementRate  float64        `json:"avg_engagement_rate"`
	AvgImpressions     float64        `json:"avg_impressions"`
	PostCount          int            `json:"post_count"`
	ConfidenceInterval stats.Interval `json:"confidence_interval"`
}

// ContentLengthPerformance aggregates posts whose caption falls in one length bucket.
type ContentLengthPerformance struct {
	Bucket             string         `json:"bucket"`
	MinLength          int            `json:"min_length"`
	MaxLength          *int           `json:"max_length"` // nil for the open-ended bucket
	AvgEngagementRate  float64        `json:"avg_engagement_rate"`
	AvgImpressions     float64        `json:"avg_impressions"`
	PostCount          int            `json:"post_count"`
	ConfidenceInterval stats.Interval `json:"confidence_interval"`
}

// TimeSlotPerformance aggregates posts in one day-by-hour cell.
type TimeSlotPerformance struct {
	Hour               int            `json:"hour"`
	DayOfWeek          int            `json:"day_of_week"`
	AvgEngagementRate  float64        `json:"avg_engagement_rate"`
	AvgImpressions     float64        `json:"avg_impressions"`
	AvgReach           float64        `json:"avg_reach"`
	AvgLikes           float64        `json:"avg_likes"`
	SampleSize         int            `json:"sample_size"`
	ConfidenceInterval stats.Interval `json:"confidence_interval"`
	// Significance is 1-p of a t-test of the slot mean against the overall mean.
	Significance float64 `json:"significance"`
}

// LengthRange is a recommended caption length.
type LengthRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ScheduleSlot is the recommendation for one weekday.
type ScheduleSlot struct {
	DayOfWeek              int                   `json:"day_of_week"`
	DayLabel               string                `json:"day_label"`
	Hour                   int                   `json:"hour"`
	TimeLabel              string                `json:"time_label"`
	ExpectedEngagementRate float64               `json:"expected_engagement_rate"`
	ConfidenceInterval     stats.Interval        `json:"confidence_interval"`
	ConfidenceLevel        stats.ConfidenceLevel `json:"confidence_level"`
	RecommendedContentType *string               `json:"recommended_content_type"`
	RecommendedLength      *LengthRange          `json:"recommended_length"`
	BasedOnPosts           int                   `json:"based_on_posts"`
}

// WeeklySchedule is one recommended slot per weekday plus data quality notes.
type WeeklySchedule struct {
	GeneratedAt        time.Time      `json:"generated_at"`
	AnalysisPeriod     int            `json:"analysis_period"`
	TotalPostsAnalyzed int            `json:"total_posts_analyzed"`
	Slots              []ScheduleSlot `json:"slots"`
	DataQualityScore   int            `json:"data_quality_score"`
	Warnings           []string       `json:"warnings"`
}

// HeatmapCell is one day-by-hour cell, normalised against the best cell.
type HeatmapCell struct {
	Day            int     `json:"day"`
	Hour           int     `json:"hour"`
	Value          float64 `json:"value"` // 0-1
	EngagementRate float64 `json:"engagement_rate"`
	PostCount      int     `json:"post_count"`
}

// DateRange bounds the analysed posts. Both ends are empty when there are no posts.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Summary is the headline view of an analysis.
type Summary struct {
	TotalPostsAnalyzed int                       `json:"total_posts_analyzed"`
	DateRange          DateRange                 `json:"date_range"`
	BestDay            *DayPerformance           `json:"best_day"`
	BestHour           *HourPerformance          `json:"best_hour"`
	BestContentType    *ContentTypePerformance   `json:"best_content_type"`
	OptimalLength      *ContentLengthPerformance `json:"optimal_length"`
	AvgEngagementRate  float64                   `json:"avg_engagement_rate"`
	AvgImpressions     float64                   `json:"avg_impressions"`
	DataQualityScore   int                       `json:"data_quality_score"`
	EngagementTrend    stats.DeclineResult       `json:"engagement_trend"`
	// LengthCorrelation is Pearson's r between caption length and engagement rate.
	LengthCorrelation float64 `json:"length_correlation"`
}

// Report bundles every analysis of one set of posts.
type Report struct {
	GeneratedAt              time.Time                  `json:"generated_at"`
	AnalysisPeriod           int                        `json:"analysis_period"`
	Summary                  Summary                    `json:"summary"`
	Schedule                 WeeklySchedule             `json:"schedule"`
	DayPerformance           []DayPerformance           `json:"day_performance"`
	HourPerformance          []HourPerformance          `json:"hour_performance"`
	ContentTypePerformance   []ContentTypePerformance   `json:"content_type_performance"`
	ContentLengthPerformance []ContentLengthPerformance `json:"content_length_performance"`
	TimeSlots                []TimeSlotPerformance      `json:"time_slots"`
	Heatmap                  []HeatmapCell              `json:"heatmap"`
}
