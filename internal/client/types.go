package client

import (
	"time"

	"github.com/goccy/go-json"
)

// ScheduledPost is a post as returned by the scheduler endpoint. Only the fields the
// analysis reads are decoded.
type ScheduledPost struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	PublishedAt   string    `json:"published_at,omitempty"`
	ScheduledDate string    `json:"scheduled_date,omitempty"`
	BrandID       string    `json:"brand_id,omitempty"`
	Brands        *BrandRef `json:"brands,omitempty"`
	Posts         *PostRef  `json:"posts,omitempty"`
	PostText      string    `json:"post_text,omitempty"`
	Caption       string    `json:"caption,omitempty"`
	Text          string    `json:"text,omitempty"`
	Platforms     []string  `json:"platforms"`
}

// BrandRef is the embedded brand of a scheduled post.
type BrandRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// PostRef is the embedded content post of a scheduled post.
type PostRef struct {
	BrandID string `json:"brand_id,omitempty"`
	Caption string `json:"caption,omitempty"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Date returns published_at, falling back to scheduled_date. It reports false when neither is
// set or parseable. Timestamps without an offset are read as UTC.
func (p ScheduledPost) Date() (time.Time, bool) {
	for _, raw := range []string{p.PublishedAt, p.ScheduledDate} {
		if raw == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Body returns the first non-empty caption field.
func (p ScheduledPost) Body() string {
	for _, s := range []string{p.PostText, p.Caption, p.Text} {
		if s != "" {
			return s
		}
	}
	if p.Posts != nil {
		return p.Posts.Caption
	}
	return ""
}

// EffectiveBrandID returns the first brand id found on the post or its embedded records.
func (p ScheduledPost) EffectiveBrandID() string {
	switch {
	case p.BrandID != "":
		return p.BrandID
	case p.Brands != nil && p.Brands.ID != "":
		return p.Brands.ID
	case p.Posts != nil:
		return p.Posts.BrandID
	}
	return ""
}

// BelongsTo reports whether any of the post's brand references equals brandID.
func (p ScheduledPost) BelongsTo(brandID string) bool {
	return p.BrandID == brandID ||
		(p.Brands != nil && p.Brands.ID == brandID) ||
		(p.Posts != nil && p.Posts.BrandID == brandID)
}

// EngagementMetrics are the counters one platform reported for a post.
type EngagementMetrics struct {
	Likes          int64   `json:"likes"`
	Comments       int64   `json:"comments"`
	Shares         int64   `json:"shares"`
	Reach          int64   `json:"reach"`
	Impressions    int64   `json:"impressions"`
	EngagementRate float64 `json:"engagement_rate"`
	LastSyncedAt   *string `json:"last_synced_at"`
	SyncStatus     string  `json:"sync_status,omitempty"`
	SyncError      string  `json:"sync_error,omitempty"`
}

// PostEngagement is the per-platform engagement of one scheduled post.
type PostEngagement struct {
	ScheduledPostID string                       `json:"scheduled_post_id"`
	Platforms       map[string]EngagementMetrics `json:"platforms"`
}

// envelope is the response wrapper every backend endpoint uses.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type scheduledPostsData struct {
	ScheduledPosts []ScheduledPost `json:"scheduled_posts"`
}

type bulkEngagementRequest struct {
	ScheduledPostIDs []string `json:"scheduled_post_ids"`
}

type bulkEngagementData struct {
	Posts []PostEngagement `json:"posts"`
}
