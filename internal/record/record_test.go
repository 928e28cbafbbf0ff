package record

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialchef-insights/internal/client"
	"socialchef-insights/internal/db"
)

var syncedAt = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "insights.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSelectPublished(t *testing.T) {
	cutoff := syncedAt.AddDate(0, 0, -90)
	posts := []client.ScheduledPost{
		{ID: "ok", Status: "published", PublishedAt: "2026-10-01T09:00:00Z", BrandID: "b1"},
		{ID: "draft", Status: "scheduled", PublishedAt: "2026-10-01T09:00:00Z", BrandID: "b1"},
		{ID: "old", Status: "published", PublishedAt: "2026-01-01T09:00:00Z", BrandID: "b1"},
		{ID: "undated", Status: "published", BrandID: "b1"},
		{ID: "nested", Status: "published", ScheduledDate: "2026-10-02", Brands: &client.BrandRef{ID: "b1"}},
		{ID: "other", Status: "published", PublishedAt: "2026-10-01T09:00:00Z", BrandID: "b2"},
	}

	ids := func(ps []client.ScheduledPost) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	assert.Equal(t, []string{"ok", "nested"}, ids(SelectPublished(posts, "b1", cutoff)))
	assert.Equal(t, []string{"ok", "nested", "other"}, ids(SelectPublished(posts, "", cutoff)))
	assert.Empty(t, SelectPublished(nil, "", cutoff))
}

func TestRecord(t *testing.T) {
	t.Run("imports published posts", func(t *testing.T) {
		database := openTestDB(t)
		input := strings.Join([]string{
			`# exported 2026-10-18`,
			``,
			`{"id":"p1","status":"published","published_at":"2026-10-10T18:00:00Z","platforms":["instagram"],"caption":"Soup","engagement":{"instagram":{"likes":12,"comments":3,"shares":1,"reach":200,"impressions":300,"engagement_rate":8,"last_synced_at":"2026-10-11T00:00:00Z","sync_status":"success"}}}`,
			`{"id":"p2","status":"failed","published_at":"2026-10-10T18:00:00Z","platforms":["facebook"]}`,
			`{"id":"p3","status":"published","scheduled_date":"2026-09-30T07:00:00Z","platforms":["facebook"]}`,
		}, "\n")

		id, n, err := Record(database, strings.NewReader(input), SnapshotMetadata{SyncedAt: syncedAt, Notes: "backfill"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		s, err := database.GetSnapshot(id)
		require.NoError(t, err)
		assert.Equal(t, "import", s.Source)
		assert.Equal(t, "backfill", s.Notes)
		assert.Equal(t, DefaultWindowDays, s.WindowDays)
		assert.True(t, s.SyncedAt.Equal(syncedAt))

		posts, err := database.GetPostsForSnapshot(id)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, "p3", posts[0].PostID)
		assert.Empty(t, posts[0].Engagement)

		p1 := posts[1]
		assert.Equal(t, "Soup", p1.Text)
		require.Len(t, p1.Engagement, 1)
		assert.Equal(t, int64(200), p1.Engagement[0].Reach)
		assert.Equal(t, "2026-10-11T00:00:00Z", p1.Engagement[0].LastSyncedAt)
	})

	t.Run("parse error removes the snapshot", func(t *testing.T) {
		database := openTestDB(t)
		input := "{\"id\":\"p1\",\"status\":\"published\"}\n{not json\n"

		_, _, err := Record(database, strings.NewReader(input), SnapshotMetadata{SyncedAt: syncedAt})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")

		snapshots, err := database.ListSnapshots(0, "", time.Time{})
		require.NoError(t, err)
		assert.Empty(t, snapshots)
	})
}

func TestStore(t *testing.T) {
	database := openTestDB(t)
	posts := []client.ScheduledPost{
		{ID: "p1", Status: "published", PublishedAt: "2026-10-10T18:00:00Z", Platforms: []string{"instagram", "tiktok"}, PostText: "Tacos", BrandID: "b1"},
		{ID: "p2", Status: "published", Platforms: []string{"facebook"}},
	}
	engagement := []client.PostEngagement{{
		ScheduledPostID: "p1",
		Platforms: map[string]client.EngagementMetrics{
			"tiktok":    {Likes: 40, Reach: 1000},
			"instagram": {Likes: 10, Reach: 100},
		},
	}}

	id, n, err := Store(database, posts, engagement, SnapshotMetadata{BrandID: "b1", SyncedAt: syncedAt, Timezone: "Europe/Oslo"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "undated posts are dropped")

	s, err := database.GetSnapshot(id)
	require.NoError(t, err)
	assert.Equal(t, "api", s.Source)
	assert.Equal(t, "Europe/Oslo", s.Timezone)
	assert.Equal(t, "b1", s.BrandID)

	stored, err := database.GetPostsForSnapshot(id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Tacos", stored[0].Text)
	assert.Equal(t, "b1", stored[0].BrandID)
	require.Len(t, stored[0].Engagement, 2)
	assert.Equal(t, "instagram", stored[0].Engagement[0].Platform)
	assert.Equal(t, int64(40), stored[0].Engagement[1].Likes)
}

func TestCutoff(t *testing.T) {
	meta := SnapshotMetadata{SyncedAt: syncedAt, WindowDays: 30}
	assert.Equal(t, time.Date(2026, 9, 18, 12, 0, 0, 0, time.UTC), meta.Cutoff())
}

func TestUnknownTimezoneIsRejected(t *testing.T) {
	database := openTestDB(t)
	meta := SnapshotMetadata{SyncedAt: syncedAt, Timezone: "Mars/Olympus"}

	_, _, err := Record(database, strings.NewReader(`{"id":"p1","status":"published","published_at":"2026-10-10T18:00:00Z"}`), meta)
	assert.ErrorContains(t, err, "Mars/Olympus")

	posts := []client.ScheduledPost{{ID: "p1", Status: "published", PublishedAt: "2026-10-10T18:00:00Z"}}
	_, _, err = Store(database, posts, nil, meta)
	assert.ErrorContains(t, err, "Mars/Olympus")

	snapshots, err := database.ListSnapshots(0, "", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}
