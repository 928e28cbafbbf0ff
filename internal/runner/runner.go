package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"socialchef-insights/internal/client"
	"socialchef-insights/internal/db"
	"socialchef-insights/internal/record"
)

// Source abstracts the backend to allow for testing. *client.Client implements it.
type Source interface {
	ScheduledPosts(ctx context.Context, filter client.PostFilter) ([]client.ScheduledPost, error)
	BulkEngagement(ctx context.Context, ids []string) ([]client.PostEngagement, error)
}

type SyncConfig struct {
	BrandID    string
	WindowDays int
	Timezone   string
	Notes      string
	Now        func() time.Time // nil means time.Now
	Logger     *zap.Logger
}

// SyncResult reports what one sync fetched and stored.
type SyncResult struct {
	SnapshotID       int64
	Fetched          int
	Selected         int
	Stored           int
	WithEngagement   int
	EngagementFailed bool
}

// Run fetches the brand's posts, keeps those published inside the window, attaches their
// engagement and stores them as a new snapshot. A failed engagement fetch is logged and the
// snapshot is stored without engagement.
func Run(ctx context.Context, database *db.DB, source Source, cfg SyncConfig) (*SyncResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	timezone := cfg.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	meta := record.SnapshotMetadata{
		BrandID:    cfg.BrandID,
		WindowDays: cfg.WindowDays,
		Timezone:   timezone,
		Source:     "api",
		Notes:      cfg.Notes,
		SyncedAt:   now(),
	}

	// The brand is matched locally: a post can carry it only in the nested brands object,
	// which the backend's brand_id filter does not see.
	filter := client.PostFilter{Status: "published"}

	posts, err := source.ScheduledPosts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	selected := record.SelectPublished(posts, cfg.BrandID, meta.Cutoff())
	logger.Info("fetched posts",
		zap.String("brand_id", cfg.BrandID),
		zap.Int("fetched", len(posts)),
		zap.Int("selected", len(selected)))

	result := &SyncResult{Fetched: len(posts), Selected: len(selected)}

	var engagement []client.PostEngagement
	if len(selected) > 0 {
		ids := make([]string, len(selected))
		for i, p := range selected {
			ids[i] = p.ID
		}

		engagement, err = source.BulkEngagement(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch engagement: %w", err)
			}
			logger.Warn("engagement fetch failed, storing posts without engagement", zap.Error(err))
			engagement = nil
			result.EngagementFailed = true
		}
	}

	for _, e := range engagement {
		if len(e.Platforms) > 0 {
			result.WithEngagement++
		}
	}

	snapshotID, stored, err := record.Store(database, selected, engagement, meta)
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	result.SnapshotID = snapshotID
	result.Stored = stored

	logger.Info("stored snapshot",
		zap.Int64("snapshot_id", snapshotID),
		zap.Int("posts", stored),
		zap.Int("with_engagement", result.WithEngagement))

	return result, nil
}
