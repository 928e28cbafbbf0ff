// Package analysis turns a set of published posts into posting-schedule recommendations:
// performance by day, hour, platform and caption length, a day-by-hour heatmap, a weekly
// schedule and a summary, each carrying 95% confidence intervals.
package analysis

import (
	"time"
	"unicode/utf8"
)

// Metrics are the engagement counters reported by one platform for one post.
type Metrics struct {
	Likes       int64
	Comments    int64
	Shares      int64
	Reach       int64
	Impressions int64
}

// RawPost is a published post as stored in a snapshot, before enrichment.
type RawPost struct {
	ID         string
	Date       time.Time
	Platforms  []string
	Text       string
	Engagement map[string]Metrics // keyed by platform, nil when never synced
}

// Post is a RawPost with its engagement totals and local posting time resolved.
type Post struct {
	ID             string
	PublishedAt    time.Time
	Hour           int // 0-23 in the analysis location
	DayOfWeek      int // 0=Sunday
	Platforms      []string
	TextLength     int
	PostType       string
	EngagementRate float64 // percent of reach
	Impressions    int64
	Reach          int64
	Likes          int64
	Comments       int64
	Shares         int64
}

// HasEngagementData reports whether any platform returned reach or impressions.
func (p Post) HasEngagementData() bool {
	return p.Reach > 0 || p.Impressions > 0
}

// Enrich totals the per-platform metrics of raw and resolves its posting hour and weekday
// in loc. A nil loc means UTC.
func Enrich(raw RawPost, loc *time.Location) Post {
	if loc == nil {
		loc = time.UTC
	}
	local := raw.Date.In(loc)

	var total Metrics
	for _, m := range raw.Engagement {
		total.Likes += m.Likes
		total.Comments += m.Comments
		total.Shares += m.Shares
		total.Reach += m.Reach
		total.Impressions += m.Impressions
	}

	rate := 0.0
	if total.Reach > 0 {
		rate = float64(total.Likes+total.Comments+total.Shares) / float64(total.Reach) * 100
	}

	postType := "unknown"
	if len(raw.Platforms) > 0 {
		postType = raw.Platforms[0]
	}

	return Post{
		ID:             raw.ID,
		PublishedAt:    local,
		Hour:           local.Hour(),
		DayOfWeek:      int(local.Weekday()),
		Platforms:      raw.Platforms,
		TextLength:     utf8.RuneCountInString(raw.Text),
		PostType:       postType,
		EngagementRate: rate,
		Impressions:    total.Impressions,
		Reach:          total.Reach,
		Likes:          total.Likes,
		Comments:       total.Comments,
		Shares:         total.Shares,
	}
}

// EnrichAll enriches every post, skipping those without a date.
func EnrichAll(raws []RawPost, loc *time.Location) []Post {
	posts := make([]Post, 0, len(raws))
	for _, raw := range raws {
		if raw.Date.IsZero() {
			continue
		}
		posts = append(posts, Enrich(raw, loc))
	}
	return posts
}
