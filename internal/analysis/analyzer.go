package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"socialchef-insights/internal/stats"
)

// DefaultWindowDays is the look-back period of the schedule analysis.
const DefaultWindowDays = 90

const (
	recentWindow       = 30 * 24 * time.Hour
	defaultBestHour    = 12
	minDayPostsForMix  = 3
	fewPostsThreshold  = 10
	lowQualityScore    = 30
	engagementCoverage = 0.5
)

// Analyzer runs every schedule analysis over a fixed set of posts.
// now anchors the recency measures; for a stored snapshot it is the sync time.
type Analyzer struct {
	posts      []Post
	now        time.Time
	windowDays int
}

// NewAnalyzer creates an Analyzer. windowDays <= 0 uses DefaultWindowDays.
func NewAnalyzer(posts []Post, now time.Time, windowDays int) *Analyzer {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Analyzer{posts: posts, now: now, windowDays: windowDays}
}

// Posts returns the analysed posts.
func (a *Analyzer) Posts() []Post {
	return a.posts
}

type measure struct {
	avgRate        float64
	avgImpressions float64
	count          int
	ci             stats.Interval
}

func measurePosts(posts []Post) measure {
	rates := engagementRates(posts)
	impressions := make([]float64, len(posts))
	for i, p := range posts {
		impressions[i] = float64(p.Impressions)
	}
	return measure{
		avgRate:        stats.Mean(rates),
		avgImpressions: stats.Mean(impressions),
		count:          len(posts),
		ci:             stats.ConfidenceInterval95(rates),
	}
}

func engagementRates(posts []Post) []float64 {
	rates := make([]float64, len(posts))
	for i, p := range posts {
		rates[i] = p.EngagementRate
	}
	return rates
}

func filterPosts(posts []Post, keep func(Post) bool) []Post {
	var out []Post
	for _, p := range posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// DayPerformance returns one row per weekday, Sunday first.
func (a *Analyzer) DayPerformance() []DayPerformance {
	days := make([]DayPerformance, 0, 7)
	for d := 0; d < 7; d++ {
		m := measurePosts(filterPosts(a.posts, func(p Post) bool { return p.DayOfWeek == d }))
		days = append(days, DayPerformance{
			DayOfWeek:          d,
			DayLabel:           DayLabels[d],
			AvgEngagementRate:  m.avgRate,
			AvgImpressions:     m.avgImpressions,
			PostCount:          m.count,
			ConfidenceInterval: m.ci,
		})
	}
	return days
}

// HourPerformance returns one row per hour of the day.
func (a *Analyzer) HourPerformance() []HourPerformance {
	hours := make([]HourPerformance, 0, 24)
	for h := 0; h < 24; h++ {
		m := measurePosts(filterPosts(a.posts, func(p Post) bool { return p.Hour == h }))
		hours = append(hours, HourPerformance{
			Hour:               h,
			HourLabel:          FormatHour(h),
			AvgEngagementRate:  m.avgRate,
			AvgImpressions:     m.avgImpressions,
			PostCount:          m.count,
			ConfidenceInterval: m.ci,
		})
	}
	return hours
}

// groupByPlatform groups posts by platform in first-seen order. A post published to
// several platforms lands in each group.
func groupByPlatform(posts []Post) ([]string, map[string][]Post) {
	var order []string
	groups := make(map[string][]Post)
	for _, p := range posts {
		for _, platform := range p.Platforms {
			if _, ok := groups[platform]; !ok {
				order = append(order, platform)
			}
			groups[platform] = append(groups[platform], p)
		}
	}
	return order, groups
}

// ContentTypePerformance returns one row per platform, best engagement first.
func (a *Analyzer) ContentTypePerformance() []ContentTypePerformance {
	order, groups := groupByPlatform(a.posts)

	results := make([]ContentTypePerformance, 0, len(order))
	for _, platform := range order {
		m := measurePosts(groups[platform])
		results = append(results, ContentTypePerformance{
			ContentType:        platform,
			Label:              platformLabel(platform),
			AvgEngagementRate:  m.avgRate,
			AvgImpressions:     m.avgImpressions,
			PostCount:          m.count,
			ConfidenceInterval: m.ci,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AvgEngagementRate > results[j].AvgEngagementRate
	})
	return results
}

// ContentLengthPerformance returns one row per caption length bucket.
func (a *Analyzer) ContentLengthPerformance() []ContentLengthPerformance {
	results := make([]ContentLengthPerformance, 0, len(LengthBuckets))
	for _, bucket := range LengthBuckets {
		m := measurePosts(filterPosts(a.posts, func(p Post) bool { return bucket.Contains(p.TextLength) }))

		var maxLength *int
		if !bucket.Unbounded() {
			maxLength = &bucket.Max
		}

		results = append(results, ContentLengthPerformance{
			Bucket:             bucket.Label,
			MinLength:          bucket.Min,
			MaxLength:          maxLength,
			AvgEngagementRate:  m.avgRate,
			AvgImpressions:     m.avgImpressions,
			PostCount:          m.count,
			ConfidenceInterval: m.ci,
		})
	}
	return results
}

// TimeSlotPerformance returns one row per day-by-hour cell that has posts, ordered by day
// then hour. Significance is measured against the mean engagement of all posts.
func (a *Analyzer) TimeSlotPerformance() []TimeSlotPerformance {
	overall := stats.Mean(engagementRates(a.posts))

	var slots []TimeSlotPerformance
	for d := 0; d < 7; d++ {
		for h := 0; h < 24; h++ {
			cell := filterPosts(a.posts, func(p Post) bool { return p.DayOfWeek == d && p.Hour == h })
			if len(cell) == 0 {
				continue
			}

			rates := engagementRates(cell)
			var impressions, reach, likes []float64
			for _, p := range cell {
				impressions = append(impressions, float64(p.Impressions))
				reach = append(reach, float64(p.Reach))
				likes = append(likes, float64(p.Likes))
			}

			slots = append(slots, TimeSlotPerformance{
				Hour:               h,
				DayOfWeek:          d,
				AvgEngagementRate:  stats.Mean(rates),
				AvgImpressions:     stats.Mean(impressions),
				AvgReach:           stats.Mean(reach),
				AvgLikes:           stats.Mean(likes),
				SampleSize:         len(cell),
				ConfidenceInterval: stats.ConfidenceInterval95(rates),
				Significance:       stats.Significance(rates, overall),
			})
		}
	}
	return slots
}

// Heatmap returns 7*24 cells, day-major, each normalised against the best cell.
func (a *Analyzer) Heatmap() []HeatmapCell {
	cells := make([]HeatmapCell, 0, 7*24)
	maxRate := 0.0

	for d := 0; d < 7; d++ {
		for h := 0; h < 24; h++ {
			cell := filterPosts(a.posts, func(p Post) bool { return p.DayOfWeek == d && p.Hour == h })
			rate := stats.Mean(engagementRates(cell))
			if rate > maxRate {
				maxRate = rate
			}
			cells = append(cells, HeatmapCell{Day: d, Hour: h, EngagementRate: rate, PostCount: len(cell)})
		}
	}

	if maxRate > 0 {
		for i := range cells {
			cells[i].Value = cells[i].EngagementRate / maxRate
		}
	}
	return cells
}

// WeeklySchedule recommends one posting slot per weekday.
func (a *Analyzer) WeeklySchedule() WeeklySchedule {
	schedule := WeeklySchedule{
		GeneratedAt:        a.now,
		AnalysisPeriod:     a.windowDays,
		TotalPostsAnalyzed: len(a.posts),
		Slots:              []ScheduleSlot{},
		Warnings:           []string{},
	}

	if len(a.posts) == 0 {
		schedule.Warnings = append(schedule.Warnings,
			fmt.Sprintf("No published posts with engagement data found in the last %d days.", a.windowDays))
		return schedule
	}

	if len(a.posts) < fewPostsThreshold {
		schedule.Warnings = append(schedule.Warnings, fmt.Sprintf(
			"Only %d posts analyzed. Recommendations have wider confidence intervals. 20+ posts recommended for reliable scheduling.",
			len(a.posts)))
	}

	for d := 0; d < 7; d++ {
		schedule.Slots = append(schedule.Slots, a.slotForDay(d))
	}

	schedule.DataQualityScore = a.DataQuality()
	if schedule.DataQualityScore < lowQualityScore {
		schedule.Warnings = append(schedule.Warnings,
			"Low data quality. Consider posting more consistently to improve recommendations.")
	}

	withData := len(filterPosts(a.posts, Post.HasEngagementData))
	if float64(withData) < float64(len(a.posts))*engagementCoverage {
		schedule.Warnings = append(schedule.Warnings, fmt.Sprintf(
			"Only %d of %d posts have engagement data. Sync your platforms for better analysis.",
			withData, len(a.posts)))
	}

	return schedule
}

func (a *Analyzer) slotForDay(d int) ScheduleSlot {
	dayPosts := filterPosts(a.posts, func(p Post) bool { return p.DayOfWeek == d })

	if len(dayPosts) == 0 {
		// No history for this day: fall back to the overall picture.
		rates := engagementRates(a.posts)
		hour := bestHour(a.posts)
		return ScheduleSlot{
			DayOfWeek:              d,
			DayLabel:               DayLabels[d],
			Hour:                   hour,
			TimeLabel:              FormatHour(hour),
			ExpectedEngagementRate: stats.Mean(rates),
			ConfidenceInterval:     stats.ConfidenceInterval95(rates),
			ConfidenceLevel:        stats.ConfidenceLow,
			RecommendedContentType: bestContentType(a.posts),
			RecommendedLength:      bestLengthRange(a.posts),
			BasedOnPosts:           len(a.posts),
		}
	}

	rates := engagementRates(dayPosts)
	hour := bestHour(dayPosts)

	mix := a.posts
	if len(dayPosts) >= minDayPostsForMix {
		mix = dayPosts
	}

	return ScheduleSlot{
		DayOfWeek:              d,
		DayLabel:               DayLabels[d],
		Hour:                   hour,
		TimeLabel:              FormatHour(hour),
		ExpectedEngagementRate: stats.Mean(rates),
		ConfidenceInterval:     stats.ConfidenceInterval95(rates),
		ConfidenceLevel:        stats.ConfidenceLevelFor(len(dayPosts), stats.CoefficientOfVariation(rates)),
		RecommendedContentType: bestContentType(mix),
		RecommendedLength:      bestLengthRange(mix),
		BasedOnPosts:           len(dayPosts),
	}
}

// bestHour returns the hour with the highest mean engagement. Ties keep the hour seen first.
func bestHour(posts []Post) int {
	var order []int
	byHour := make(map[int][]float64)
	for _, p := range posts {
		if _, ok := byHour[p.Hour]; !ok {
			order = append(order, p.Hour)
		}
		byHour[p.Hour] = append(byHour[p.Hour], p.EngagementRate)
	}

	best, bestRate := defaultBestHour, -1.0
	for _, h := range order {
		if avg := stats.Mean(byHour[h]); avg > bestRate {
			best, bestRate = h, avg
		}
	}
	return best
}

// bestContentType returns the platform with the highest mean engagement, or nil.
func bestContentType(posts []Post) *string {
	order, groups := groupByPlatform(posts)

	var best *string
	bestRate := -1.0
	for _, platform := range order {
		if avg := stats.Mean(engagementRates(groups[platform])); avg > bestRate {
			best, bestRate = &platform, avg
		}
	}
	return best
}

// bestLengthRange returns the length bucket with the highest mean engagement, or nil.
func bestLengthRange(posts []Post) *LengthRange {
	var best *LengthRange
	bestRate := -1.0
	for _, bucket := range LengthBuckets {
		inBucket := filterPosts(posts, func(p Post) bool { return bucket.Contains(p.TextLength) })
		if len(inBucket) == 0 {
			continue
		}
		if avg := stats.Mean(engagementRates(inBucket)); avg > bestRate {
			upper := bucket.Max
			if bucket.Unbounded() {
				upper = recommendedOpenMax
			}
			best, bestRate = &LengthRange{Min: bucket.Min, Max: upper}, avg
		}
	}
	return best
}

// DataQuality scores the analysed set from 0 to 100 on volume, weekday coverage, hour
// diversity, engagement availability and recency.
func (a *Analyzer) DataQuality() int {
	n := len(a.posts)
	if n == 0 {
		return 0
	}

	days := make(map[int]struct{})
	hours := make(map[int]struct{})
	withData, recent := 0, 0
	for _, p := range a.posts {
		days[p.DayOfWeek] = struct{}{}
		hours[p.Hour] = struct{}{}
		if p.HasEngagementData() {
			withData++
		}
		if a.now.Sub(p.PublishedAt) < recentWindow {
			recent++
		}
	}

	score := math.Min(30, float64(n)/30*30)
	score += float64(len(days)) / 7 * 20
	score += math.Min(15, float64(len(hours))/12*15)
	score += float64(withData) / float64(n) * 20
	score += math.Min(15, float64(recent)/float64(n)*15)

	return int(math.Round(math.Min(100, score)))
}

// Summary returns the headline numbers and the best performer of each dimension.
func (a *Analyzer) Summary() Summary {
	rates := engagementRates(a.posts)
	impressions := make([]float64, len(a.posts))
	lengths := make([]float64, len(a.posts))
	for i, p := range a.posts {
		impressions[i] = float64(p.Impressions)
		lengths[i] = float64(p.TextLength)
	}

	summary := Summary{
		TotalPostsAnalyzed: len(a.posts),
		DateRange:          a.dateRange(),
		AvgEngagementRate:  stats.Mean(rates),
		AvgImpressions:     stats.Mean(impressions),
		DataQualityScore:   a.DataQuality(),
		EngagementTrend:    a.EngagementTrend(),
		LengthCorrelation:  stats.PearsonCorrelation(lengths, rates),
	}

	for _, d := range a.DayPerformance() {
		if d.PostCount > 0 && (summary.BestDay == nil || d.AvgEngagementRate > summary.BestDay.AvgEngagementRate) {
			summary.BestDay = &d
		}
	}
	for _, h := range a.HourPerformance() {
		if h.PostCount > 0 && (summary.BestHour == nil || h.AvgEngagementRate > summary.BestHour.AvgEngagementRate) {
			summary.BestHour = &h
		}
	}
	if types := a.ContentTypePerformance(); len(types) > 0 {
		summary.BestContentType = &types[0]
	}
	for _, l := range a.ContentLengthPerformance() {
		if l.PostCount > 0 && (summary.OptimalLength == nil || l.AvgEngagementRate > summary.OptimalLength.AvgEngagementRate) {
			summary.OptimalLength = &l
		}
	}

	return summary
}

// EngagementTrend compares the last 30 days against the rest of the window.
func (a *Analyzer) EngagementTrend() stats.DeclineResult {
	var recent, baseline []float64
	for _, p := range a.posts {
		if a.now.Sub(p.PublishedAt) < recentWindow {
			recent = append(recent, p.EngagementRate)
		} else {
			baseline = append(baseline, p.EngagementRate)
		}
	}
	return stats.DetectDecline(recent, baseline, stats.DefaultDeclineAlpha)
}

func (a *Analyzer) dateRange() DateRange {
	if len(a.posts) == 0 {
		return DateRange{}
	}
	first, last := a.posts[0].PublishedAt, a.posts[0].PublishedAt
	for _, p := range a.posts[1:] {
		if p.PublishedAt.Before(first) {
			first = p.PublishedAt
		}
		if p.PublishedAt.After(last) {
			last = p.PublishedAt
		}
	}
	return DateRange{
		Start: first.UTC().Format(time.RFC3339),
		End:   last.UTC().Format(time.RFC3339),
	}
}

// Report runs every analysis.
func (a *Analyzer) Report() Report {
	return Report{
		GeneratedAt:              a.now,
		AnalysisPeriod:           a.windowDays,
		Summary:                  a.Summary(),
		Schedule:                 a.WeeklySchedule(),
		DayPerformance:           a.DayPerformance(),
		HourPerformance:          a.HourPerformance(),
		ContentTypePerformance:   a.ContentTypePerformance(),
		ContentLengthPerformance: a.ContentLengthPerformance(),
		TimeSlots:                a.TimeSlotPerformance(),
		Heatmap:                  a.Heatmap(),
	}
}
