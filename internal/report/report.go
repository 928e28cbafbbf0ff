// Package report builds analyses from stored snapshots.
package report

import (
	"errors"
	"fmt"
	"slices"
	"time"
	_ "time/tzdata" // snapshots name IANA zones; hosts may lack a zoneinfo database

	"github.com/goccy/go-json"

	"socialchef-insights/internal/analysis"
	"socialchef-insights/internal/cache"
	"socialchef-insights/internal/db"
)

// ErrUnknownReport is returned for a report name Render does not know.
var ErrUnknownReport = errors.New("unknown report")

// Names lists the reports Render accepts.
var Names = []string{"report", "schedule", "heatmap", "summary", "days", "hours", "content-types", "lengths", "slots"}

type Builder struct {
	db    *db.DB
	cache *cache.ReportCache
}

// NewBuilder creates a Builder. c may be nil to disable caching.
func NewBuilder(database *db.DB, c *cache.ReportCache) *Builder {
	return &Builder{db: database, cache: c}
}

// RawPosts converts stored posts to analysis input.
func RawPosts(posts []db.Post) []analysis.RawPost {
	raws := make([]analysis.RawPost, 0, len(posts))
	for _, p := range posts {
		raw := analysis.RawPost{
			ID:        p.PostID,
			Date:      p.PublishedAt,
			Platforms: p.Platforms,
			Text:      p.Text,
		}
		if len(p.Engagement) > 0 {
			raw.Engagement = make(map[string]analysis.Metrics, len(p.Engagement))
			for _, e := range p.Engagement {
				raw.Engagement[e.Platform] = analysis.Metrics{
					Likes:       e.Likes,
					Comments:    e.Comments,
					Shares:      e.Shares,
					Reach:       e.Reach,
					Impressions: e.Impressions,
				}
			}
		}
		raws = append(raws, raw)
	}
	return raws
}

// Analyzer loads a snapshot's posts and prepares an analysis anchored at its sync time, in
// its time zone.
func (b *Builder) Analyzer(snapshot *db.Snapshot) (*analysis.Analyzer, error) {
	loc, err := time.LoadLocation(snapshot.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone of snapshot %d: %w", snapshot.ID, err)
	}

	posts, err := b.db.GetPostsForSnapshot(snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("load posts of snapshot %d: %w", snapshot.ID, err)
	}

	enriched := analysis.EnrichAll(RawPosts(posts), loc)
	return analysis.NewAnalyzer(enriched, snapshot.SyncedAt.In(loc), snapshot.WindowDays), nil
}

// AnalyzerFor looks up a snapshot by id and prepares its analysis.
func (b *Builder) AnalyzerFor(snapshotID int64) (*analysis.Analyzer, *db.Snapshot, error) {
	snapshot, err := b.db.GetSnapshot(snapshotID)
	if err != nil {
		return nil, nil, fmt.Errorf("get snapshot %d: %w", snapshotID, err)
	}
	a, err := b.Analyzer(snapshot)
	if err != nil {
		return nil, nil, err
	}
	return a, snapshot, nil
}

// Build returns the named view of an analysis.
func Build(a *analysis.Analyzer, name string) (any, error) {
	switch name {
	case "report":
		return a.Report(), nil
	case "schedule":
		return a.WeeklySchedule(), nil
	case "heatmap":
		return a.Heatmap(), nil
	case "summary":
		return a.Summary(), nil
	case "days":
		return a.DayPerformance(), nil
	case "hours":
		return a.HourPerformance(), nil
	case "content-types":
		return a.ContentTypePerformance(), nil
	case "lengths":
		return a.ContentLengthPerformance(), nil
	case "slots":
		return a.TimeSlotPerformance(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
}

// Render returns the named report of a snapshot as JSON, from the cache when possible.
// Cache entries are keyed by the snapshot's UUID.
func (b *Builder) Render(snapshotID int64, name string) ([]byte, error) {
	if !slices.Contains(Names, name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReport, name)
	}

	snapshot, err := b.db.GetSnapshot(snapshotID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", snapshotID, err)
	}

	build := func() (any, error) {
		a, err := b.Analyzer(snapshot)
		if err != nil {
			return nil, err
		}
		return Build(a, name)
	}

	if b.cache == nil {
		v, err := build()
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	return b.cache.GetOrBuild(snapshot.UUID, name, build)
}

// Forget drops cached reports of a deleted snapshot.
func (b *Builder) Forget(snapshotUUID string) error {
	if b.cache == nil {
		return nil
	}
	return b.cache.Drop(snapshotUUID)
}

// Prune drops cached reports of all but the newest snapshots.
func (b *Builder) Prune(keep int) error {
	if b.cache == nil {
		return nil
	}
	uuids, err := b.db.RecentSnapshotUUIDs(keep)
	if err != nil {
		return fmt.Errorf("list recent snapshots: %w", err)
	}
	return b.cache.Retain(uuids)
}
