package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"socialchef-insights/internal/cache"
	"socialchef-insights/internal/client"
	"socialchef-insights/internal/config"
	"socialchef-insights/internal/db"
	"socialchef-insights/internal/logging"
	"socialchef-insights/internal/record"
	"socialchef-insights/internal/report"
	"socialchef-insights/internal/runner"
	"socialchef-insights/internal/web"
)

var (
	configPath string
	dbPath     string
	verbose    bool
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "insights.yaml"
	}
	return filepath.Join(home, ".config", "socialchef-insights", "config.yaml")
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "insights",
		Short:         "SocialChef posting-schedule analytics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(scheduleCmd())
	rootCmd.AddCommand(heatmapCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		stop()
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and an open database.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *db.DB
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	return cfg, nil
}

func openEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, verbose)
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.Storage.DBPath)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, db: database}, nil
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing database: %v\n", err)
	}
	_ = e.logger.Sync()
}

// reports returns a report builder backed by the on-disk cache. A cache that cannot be
// created is logged and skipped.
func (e *env) reports() *report.Builder {
	c, err := cache.NewReportCache(e.cfg.Storage.CacheDir, e.cfg.Storage.CacheMaxSnapshots)
	if err != nil {
		e.logger.Warn("report cache disabled", zap.String("dir", e.cfg.Storage.CacheDir), zap.Error(err))
		return report.NewBuilder(e.db, nil)
	}
	return report.NewBuilder(e.db, c)
}

func (e *env) prune(builder *report.Builder) {
	if err := builder.Prune(e.cfg.Storage.CacheMaxSnapshots); err != nil {
		e.logger.Warn("prune report cache", zap.Error(err))
	}
}

func syncCmd() *cobra.Command {
	var brandID, timezone, notes string
	var windowDays int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch published posts and engagement into a new snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			retry := client.DefaultRetryConfig()
			retry.MaxRetries = e.cfg.API.Retries

			api, err := client.New(client.Options{
				BaseURL:     e.cfg.API.BaseURL,
				Token:       e.cfg.API.Token,
				Timeout:     e.cfg.APITimeout(),
				Retry:       &retry,
				ChunkSize:   e.cfg.API.BulkChunkSize,
				Concurrency: e.cfg.API.Concurrency,
				Logger:      e.logger,
			})
			if err != nil {
				return err
			}

			syncCfg := runner.SyncConfig{
				BrandID:    firstNonEmpty(brandID, e.cfg.Analysis.BrandID),
				WindowDays: e.cfg.Analysis.WindowDays,
				Timezone:   firstNonEmpty(timezone, e.cfg.Analysis.Timezone),
				Notes:      notes,
				Logger:     e.logger,
			}
			if windowDays > 0 {
				syncCfg.WindowDays = windowDays
			}

			result, err := runner.Run(cmd.Context(), e.db, api, syncCfg)
			if err != nil {
				return err
			}
			e.prune(e.reports())

			color.Green("Stored snapshot #%d", result.SnapshotID)
			fmt.Printf("Fetched %d posts, %d published in window, %d with engagement\n",
				result.Fetched, result.Selected, result.WithEngagement)
			if result.EngagementFailed {
				color.Yellow("Engagement could not be fetched; posts were stored without metrics")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&brandID, "brand", "", "brand id (overrides config)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA time zone for hour and weekday bucketing (overrides config)")
	cmd.Flags().IntVar(&windowDays, "days", 0, "analysis window in days (overrides config)")
	cmd.Flags().StringVar(&notes, "notes", "", "optional notes")

	return cmd
}

func importCmd() *cobra.Command {
	var brandID, timezone, notes, syncedAt string
	var windowDays int

	cmd := &cobra.Command{
		Use:   "import [file.jsonl]",
		Short: "Import posts from a JSON-lines export (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			in := os.Stdin
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				in = f
			}

			meta := record.SnapshotMetadata{
				BrandID:    firstNonEmpty(brandID, e.cfg.Analysis.BrandID),
				WindowDays: e.cfg.Analysis.WindowDays,
				Timezone:   firstNonEmpty(timezone, e.cfg.Analysis.Timezone),
				Notes:      notes,
			}
			if windowDays > 0 {
				meta.WindowDays = windowDays
			}
			if syncedAt != "" {
				t, err := parseDate(syncedAt)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				meta.SyncedAt = t
			}

			id, count, err := record.Record(e.db, in, meta)
			if err != nil {
				return err
			}
			e.prune(e.reports())

			color.Green("Imported %d posts into snapshot #%d", count, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&brandID, "brand", "", "keep only this brand's posts")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA time zone (overrides config)")
	cmd.Flags().IntVar(&windowDays, "days", 0, "analysis window in days (overrides config)")
	cmd.Flags().StringVar(&notes, "notes", "", "optional notes")
	cmd.Flags().StringVar(&syncedAt, "at", "", "snapshot time, RFC 3339 or YYYY-MM-DD (default now)")

	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if addr == "" {
				addr = e.cfg.Server.Addr
			}
			server := web.NewServer(e.db, addr, e.reports(), e.logger)
			return server.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to --config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config already exists at %s", configPath)
			}
			if err := config.DefaultConfig().Save(configPath); err != nil {
				return err
			}
			color.Green("Wrote %s", configPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.API.Token != "" {
				cfg.API.Token = "********"
			}
			cyan := color.New(color.FgCyan)
			_, _ = cyan.Printf("# %s\n", configPath)
			return printYAML(cfg)
		},
	})

	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
