package record

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"socialchef-insights/internal/client"
	"socialchef-insights/internal/db"
)

const DefaultWindowDays = 90

// ImportLine is one line of a JSON-lines import: a scheduled post as the scheduler endpoint
// returns it, optionally carrying its engagement keyed by platform.
type ImportLine struct {
	client.ScheduledPost
	Engagement map[string]client.EngagementMetrics `json:"engagement,omitempty"`
}

// SnapshotMetadata describes the snapshot a sync or import creates.
type SnapshotMetadata struct {
	BrandID    string
	WindowDays int
	Timezone   string
	Source     string
	Notes      string
	SyncedAt   time.Time // zero means now
}

func (m SnapshotMetadata) normalize() SnapshotMetadata {
	if m.WindowDays <= 0 {
		m.WindowDays = DefaultWindowDays
	}
	if m.SyncedAt.IsZero() {
		m.SyncedAt = time.Now()
	}
	m.SyncedAt = m.SyncedAt.UTC().Truncate(time.Second)
	return m
}

// validate rejects metadata a report could not be built from later.
func (m SnapshotMetadata) validate() error {
	if _, err := time.LoadLocation(m.Timezone); err != nil {
		return fmt.Errorf("load timezone %q: %w", m.Timezone, err)
	}
	return nil
}

// Cutoff is the oldest publication time a snapshot keeps.
func (m SnapshotMetadata) Cutoff() time.Time {
	m = m.normalize()
	return m.SyncedAt.AddDate(0, 0, -m.WindowDays)
}

// SelectPublished keeps published posts dated at or after cutoff and, when brandID is
// set, belonging to that brand.
func SelectPublished(posts []client.ScheduledPost, brandID string, cutoff time.Time) []client.ScheduledPost {
	var out []client.ScheduledPost
	for _, p := range posts {
		if p.Status != "published" {
			continue
		}
		date, ok := p.Date()
		if !ok || date.Before(cutoff) {
			continue
		}
		if brandID != "" && !p.BelongsTo(brandID) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Record reads a JSON-lines export and stores its published posts as a new snapshot. Blank
// lines and lines that do not start with '{' are skipped. Nothing is kept on failure.
func Record(database *db.DB, reader io.Reader, meta SnapshotMetadata) (int64, int, error) {
	meta = meta.normalize()
	if meta.Source == "" {
		meta.Source = "import"
	}
	if err := meta.validate(); err != nil {
		return 0, 0, err
	}

	snapshotID, err := insertSnapshot(database, meta)
	if err != nil {
		return 0, 0, err
	}
	cleanup := func() {
		_ = database.DeleteSnapshot(snapshotID)
	}

	var posts []client.ScheduledPost
	engagement := make(map[string]map[string]client.EngagementMetrics)

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		trimmed := strings.TrimSpace(scanner.Text())
		if trimmed == "" || trimmed[0] != '{' {
			continue
		}

		var line ImportLine
		if err := json.Unmarshal([]byte(trimmed), &line); err != nil {
			cleanup()
			return 0, 0, fmt.Errorf("parse post JSON on line %d: %w", lineNum, err)
		}
		posts = append(posts, line.ScheduledPost)
		if len(line.Engagement) > 0 {
			engagement[line.ID] = line.Engagement
		}
	}

	if err := scanner.Err(); err != nil {
		cleanup()
		return 0, 0, fmt.Errorf("scan input: %w", err)
	}

	selected := SelectPublished(posts, meta.BrandID, meta.Cutoff())
	rows := buildRows(selected, engagement)
	if err := database.InsertPosts(snapshotID, rows); err != nil {
		cleanup()
		return 0, 0, fmt.Errorf("insert posts: %w", err)
	}

	return snapshotID, len(rows), nil
}

// Store writes posts that were already selected, with their fetched engagement, into a new
// snapshot.
func Store(database *db.DB, posts []client.ScheduledPost, engagement []client.PostEngagement, meta SnapshotMetadata) (int64, int, error) {
	meta = meta.normalize()
	if meta.Source == "" {
		meta.Source = "api"
	}
	if err := meta.validate(); err != nil {
		return 0, 0, err
	}

	byPost := make(map[string]map[string]client.EngagementMetrics, len(engagement))
	for _, e := range engagement {
		byPost[e.ScheduledPostID] = e.Platforms
	}

	snapshotID, err := insertSnapshot(database, meta)
	if err != nil {
		return 0, 0, err
	}

	rows := buildRows(posts, byPost)
	if err := database.InsertPosts(snapshotID, rows); err != nil {
		_ = database.DeleteSnapshot(snapshotID)
		return 0, 0, fmt.Errorf("insert posts: %w", err)
	}
	return snapshotID, len(rows), nil
}

func insertSnapshot(database *db.DB, meta SnapshotMetadata) (int64, error) {
	id, err := database.InsertSnapshot(&db.Snapshot{
		BrandID:    meta.BrandID,
		SyncedAt:   meta.SyncedAt,
		WindowDays: meta.WindowDays,
		Timezone:   meta.Timezone,
		Source:     meta.Source,
		Notes:      meta.Notes,
	})
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// buildRows converts posts to storage rows. Undated posts are dropped.
func buildRows(posts []client.ScheduledPost, engagement map[string]map[string]client.EngagementMetrics) []db.Post {
	rows := make([]db.Post, 0, len(posts))
	for _, p := range posts {
		date, ok := p.Date()
		if !ok {
			continue
		}

		row := db.Post{
			PostID:      p.ID,
			Status:      p.Status,
			BrandID:     p.EffectiveBrandID(),
			PublishedAt: date,
			Platforms:   p.Platforms,
			Text:        p.Body(),
		}

		metrics := engagement[p.ID]
		platforms := make([]string, 0, len(metrics))
		for platform := range metrics {
			platforms = append(platforms, platform)
		}
		sort.Strings(platforms)
		for _, platform := range platforms {
			m := metrics[platform]
			var lastSynced string
			if m.LastSyncedAt != nil {
				lastSynced = *m.LastSyncedAt
			}
			row.Engagement = append(row.Engagement, db.Engagement{
				Platform:       platform,
				Likes:          m.Likes,
				Comments:       m.Comments,
				Shares:         m.Shares,
				Reach:          m.Reach,
				Impressions:    m.Impressions,
				EngagementRate: m.EngagementRate,
				LastSyncedAt:   lastSynced,
				SyncStatus:     m.SyncStatus,
			})
		}
		rows = append(rows, row)
	}
	return rows
}
