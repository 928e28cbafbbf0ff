package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"socialchef-insights/internal/db"
)

func listCmd() *cobra.Command {
	var limit int
	var brand, since string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			var sinceTime time.Time
			if since != "" {
				sinceTime, err = parseDate(since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
			}

			snapshots, err := e.db.ListSnapshots(limit, brand, sinceTime)
			if err != nil {
				return err
			}

			if len(snapshots) == 0 {
				fmt.Println("No snapshots found")
				return nil
			}

			cyan := color.New(color.FgCyan)
			dim := color.New(color.Faint)

			_, _ = cyan.Printf("%-6s %-20s %-16s %-8s %-6s %s\n", "ID", "Synced", "Brand", "Source", "Posts", "Notes")
			_, _ = dim.Println(strings.Repeat("-", 80))

			for _, s := range snapshots {
				fmt.Printf("%-6d %-20s %-16s %-8s %-6d %s\n",
					s.ID, s.SyncedAt.Format("2006-01-02 15:04"), truncate(orDash(s.BrandID), 16), s.Source, s.PostCount, truncate(s.Notes, 30))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "max snapshots to show")
	cmd.Flags().StringVar(&brand, "brand", "", "filter by brand")
	cmd.Flags().StringVar(&since, "since", "", "filter snapshots since date (YYYY-MM-DD)")

	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [snapshot_id or uuid]",
		Short: "Show a snapshot and its posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			snapshot, err := lookupSnapshot(e.db, args[0])
			if err != nil {
				return err
			}

			cyan := color.New(color.FgCyan)
			dim := color.New(color.Faint)

			_, _ = cyan.Printf("Snapshot #%d\n", snapshot.ID)
			_, _ = dim.Println(strings.Repeat("-", 50))
			fmt.Printf("UUID:     %s\n", snapshot.UUID)
			fmt.Printf("Brand:    %s\n", orDash(snapshot.BrandID))
			fmt.Printf("Synced:   %s\n", snapshot.SyncedAt.Format(time.RFC3339))
			fmt.Printf("Window:   %d days\n", snapshot.WindowDays)
			fmt.Printf("Timezone: %s\n", snapshot.Timezone)
			fmt.Printf("Source:   %s\n", snapshot.Source)
			if snapshot.Notes != "" {
				fmt.Printf("Notes:    %s\n", snapshot.Notes)
			}
			fmt.Println()

			posts, err := e.db.GetPostsForSnapshot(snapshot.ID)
			if err != nil {
				return err
			}
			printPosts(posts)
			return nil
		},
	}

	return cmd
}

func deleteCmd() *cobra.Command {
	var before string

	cmd := &cobra.Command{
		Use:   "delete [snapshot_id]",
		Short: "Delete snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			builder := e.reports()

			if before != "" {
				t, err := parseDate(before)
				if err != nil {
					return fmt.Errorf("invalid --before: %w", err)
				}
				count, err := e.db.DeleteSnapshotsBefore(t)
				if err != nil {
					return err
				}
				e.prune(builder)
				color.Green("Deleted %d snapshots before %s", count, before)
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("specify snapshot_id or --before date")
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid snapshot ID: %w", err)
			}

			snapshot, err := e.db.GetSnapshot(id)
			if err != nil {
				return fmt.Errorf("snapshot #%d not found: %w", id, err)
			}
			if err := e.db.DeleteSnapshot(id); err != nil {
				return fmt.Errorf("delete snapshot #%d: %w", id, err)
			}
			if err := builder.Forget(snapshot.UUID); err != nil {
				e.logger.Warn("drop cached reports", zap.Int64("snapshot_id", id), zap.Error(err))
			}

			color.Green("Deleted snapshot #%d", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&before, "before", "", "delete snapshots synced before date (YYYY-MM-DD)")

	return cmd
}

// lookupSnapshot resolves an id, a uuid or "latest".
func lookupSnapshot(database *db.DB, ref string) (*db.Snapshot, error) {
	if ref == "" || ref == "latest" {
		s, err := database.LatestSnapshot("")
		if err != nil {
			return nil, fmt.Errorf("no snapshots found: %w", err)
		}
		return s, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		s, err := database.GetSnapshot(id)
		if err != nil {
			return nil, fmt.Errorf("snapshot not found: %w", err)
		}
		return s, nil
	}
	s, err := database.GetSnapshotByUUID(ref)
	if err != nil {
		return nil, fmt.Errorf("snapshot not found for uuid: %w", err)
	}
	return s, nil
}

func printPosts(posts []db.Post) {
	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)

	if len(posts) == 0 {
		_, _ = dim.Println("No posts in snapshot")
		return
	}

	_, _ = cyan.Printf("%-20s %-17s %-20s %8s %10s\n", "Post", "Published", "Platforms", "Rate", "Reach")
	_, _ = dim.Println(strings.Repeat("-", 80))

	for _, p := range posts {
		var interactions, reach int64
		for _, e := range p.Engagement {
			interactions += e.Likes + e.Comments + e.Shares
			reach += e.Reach
		}

		rate := "-"
		if reach > 0 {
			rate = fmt.Sprintf("%.2f%%", float64(interactions)/float64(reach)*100)
		}

		fmt.Printf("%-20s %-17s %-20s %8s %10d\n",
			truncate(p.PostID, 20),
			p.PublishedAt.Format("2006-01-02 15:04"),
			truncate(strings.Join(p.Platforms, ","), 20),
			rate,
			reach)
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// truncate shortens s to width characters, counting runes rather than bytes.
func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width-3]) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// reportRef is the positional snapshot argument shared by the report commands.
func reportRef(args []string) string {
	if len(args) == 0 {
		return "latest"
	}
	return args[0]
}

func renderNamed(e *env, ref, name string) error {
	snapshot, err := lookupSnapshot(e.db, ref)
	if err != nil {
		return err
	}
	data, err := e.reports().Render(snapshot.ID, name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("format %s report: %w", name, err)
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(os.Stdout)
	return err
}
