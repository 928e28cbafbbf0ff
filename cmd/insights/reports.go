package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"socialchef-insights/internal/analysis"
	"socialchef-insights/internal/report"
	"socialchef-insights/internal/stats"
)

func loadAnalyzer(e *env, ref string) (*analysis.Analyzer, error) {
	snapshot, err := lookupSnapshot(e.db, ref)
	if err != nil {
		return nil, err
	}
	return e.reports().Analyzer(snapshot)
}

func scheduleCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "schedule [snapshot]",
		Short: "Recommend a posting slot for each weekday",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if asJSON {
				return renderNamed(e, reportRef(args), "schedule")
			}

			a, err := loadAnalyzer(e, reportRef(args))
			if err != nil {
				return err
			}
			printSchedule(a.WeeklySchedule())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func printSchedule(s analysis.WeeklySchedule) {
	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)
	yellow := color.New(color.FgYellow)

	_, _ = cyan.Printf("Weekly schedule (%d posts over %d days, data quality %d/100)\n",
		s.TotalPostsAnalyzed, s.AnalysisPeriod, s.DataQualityScore)
	_, _ = dim.Println(strings.Repeat("-", 90))

	if len(s.Slots) > 0 {
		_, _ = cyan.Printf("%-10s %-6s %10s %-18s %-8s %-12s %-12s %s\n",
			"Day", "Time", "Expected", "95% CI", "Conf", "Type", "Length", "Posts")
	}
	for _, slot := range s.Slots {
		contentType := "-"
		if slot.RecommendedContentType != nil {
			contentType = *slot.RecommendedContentType
		}
		length := "-"
		if slot.RecommendedLength != nil {
			length = fmt.Sprintf("%d-%d", slot.RecommendedLength.Min, slot.RecommendedLength.Max)
		}

		fmt.Printf("%-10s %-6s %9.2f%% %-18s ", slot.DayLabel, slot.TimeLabel, slot.ExpectedEngagementRate, formatInterval(slot.ConfidenceInterval))
		_, _ = levelColor(slot.ConfidenceLevel).Printf("%-8s ", slot.ConfidenceLevel)
		fmt.Printf("%-12s %-12s %d\n", contentType, length, slot.BasedOnPosts)
	}

	if len(s.Warnings) > 0 {
		fmt.Println()
		for _, w := range s.Warnings {
			_, _ = yellow.Printf("! %s\n", w)
		}
	}
}

func heatmapCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "heatmap [snapshot]",
		Short: "Show engagement by weekday and hour",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if asJSON {
				return renderNamed(e, reportRef(args), "heatmap")
			}

			a, err := loadAnalyzer(e, reportRef(args))
			if err != nil {
				return err
			}
			printHeatmap(a.Heatmap())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

var heatShades = []string{" ", "░", "▒", "▓", "█"}

func printHeatmap(cells []analysis.HeatmapCell) {
	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)

	var grid [7][24]float64
	for _, c := range cells {
		grid[c.Day][c.Hour] = c.Value
	}

	_, _ = cyan.Print("     ")
	for h := 0; h < 24; h += 3 {
		_, _ = cyan.Printf("%-6d", h)
	}
	fmt.Println()

	for d := 0; d < 7; d++ {
		_, _ = cyan.Printf("%-4s ", analysis.DayLabels[d][:3])
		for h := 0; h < 24; h++ {
			shade := int(grid[d][h] * float64(len(heatShades)-1))
			fmt.Print(strings.Repeat(heatShades[shade], 2))
		}
		fmt.Println()
	}

	if len(cells) == 0 {
		_, _ = dim.Println("\nNo posts with engagement data")
	}
}

func summaryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary [snapshot]",
		Short: "Show the headline numbers of a snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if asJSON {
				return renderNamed(e, reportRef(args), "summary")
			}

			a, err := loadAnalyzer(e, reportRef(args))
			if err != nil {
				return err
			}
			printSummary(a.Summary())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func printSummary(s analysis.Summary) {
	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)

	_, _ = cyan.Println("Summary")
	_, _ = dim.Println(strings.Repeat("-", 50))
	fmt.Printf("Posts analyzed:   %d\n", s.TotalPostsAnalyzed)
	if s.DateRange.Start != "" {
		fmt.Printf("Date range:       %s to %s\n", s.DateRange.Start[:10], s.DateRange.End[:10])
	}
	fmt.Printf("Avg engagement:   %.2f%%\n", s.AvgEngagementRate)
	fmt.Printf("Avg impressions:  %.0f\n", s.AvgImpressions)
	fmt.Printf("Data quality:     %d/100\n", s.DataQualityScore)
	fmt.Printf("Length vs rate:   r = %+.2f\n", s.LengthCorrelation)

	if s.BestDay != nil {
		fmt.Printf("Best day:         %s (%.2f%%, %d posts)\n", s.BestDay.DayLabel, s.BestDay.AvgEngagementRate, s.BestDay.PostCount)
	}
	if s.BestHour != nil {
		fmt.Printf("Best hour:        %s (%.2f%%, %d posts)\n", s.BestHour.HourLabel, s.BestHour.AvgEngagementRate, s.BestHour.PostCount)
	}
	if s.BestContentType != nil {
		fmt.Printf("Best platform:    %s (%.2f%%)\n", s.BestContentType.Label, s.BestContentType.AvgEngagementRate)
	}
	if s.OptimalLength != nil {
		fmt.Printf("Optimal length:   %s (%.2f%%)\n", s.OptimalLength.Bucket, s.OptimalLength.AvgEngagementRate)
	}

	fmt.Println()
	printTrend("Engagement trend", s.EngagementTrend)
}

func printTrend(title string, t stats.DeclineResult) {
	dim := color.New(color.Faint)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Printf("%s: ", title)
	switch t.Status {
	case stats.DeclineDetected:
		_, _ = red.Printf("declined %.1f%%", t.ChangePercent)
	case stats.DeclineOK:
		_, _ = green.Printf("ok (%+.1f%%)", t.ChangePercent)
	default:
		_, _ = yellow.Print("insufficient data")
	}
	_, _ = dim.Printf(" recent %.2f%% (n=%d) vs baseline %.2f%% (n=%d)",
		t.RecentMean, t.RecentCount, t.BaselineMean, t.BaselineCount)
	if t.PValue != nil {
		_, _ = dim.Printf(", p=%.4f", *t.PValue)
	}
	fmt.Println()
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [name] [snapshot]",
		Short: "Print a named report as JSON (" + strings.Join(report.Names, ", ") + ")",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(report.Names, args[0]) {
				return fmt.Errorf("unknown report %q, expected one of: %s", args[0], strings.Join(report.Names, ", "))
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			return renderNamed(e, reportRef(args[1:]), args[0])
		},
	}

	return cmd
}

func compareCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "compare [base_snapshot] [target_snapshot]",
		Short: "Test whether engagement declined between two snapshots",
		Long:  "Compare two snapshots. With one argument the target is the latest snapshot.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			base, err := lookupSnapshot(e.db, args[0])
			if err != nil {
				return fmt.Errorf("base: %w", err)
			}
			targetRef := "latest"
			if len(args) == 2 {
				targetRef = args[1]
			}
			target, err := lookupSnapshot(e.db, targetRef)
			if err != nil {
				return fmt.Errorf("target: %w", err)
			}

			builder := e.reports()
			baseAnalyzer, err := builder.Analyzer(base)
			if err != nil {
				return err
			}
			targetAnalyzer, err := builder.Analyzer(target)
			if err != nil {
				return err
			}

			c := report.Compare(base.ID, baseAnalyzer, target.ID, targetAnalyzer)
			if asJSON {
				return writeJSON(c)
			}

			printComparison(c)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func printComparison(c report.Comparison) {
	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	_, _ = cyan.Printf("Comparing snapshot #%d vs #%d\n", c.BaseID, c.TargetID)
	_, _ = dim.Println(strings.Repeat("-", 80))
	_, _ = cyan.Printf("%-10s %10s %10s %-18s %-18s %s\n", "Day", "Base", "Target", "Base CI", "Target CI", "Change")

	for _, d := range c.Days {
		fmt.Printf("%-10s %9.2f%% %9.2f%% %-18s %-18s ",
			d.DayLabel, d.BaseRate, d.TargetRate, formatInterval(d.BaseCI), formatInterval(d.TargetCI))
		switch {
		case d.Overlap:
			_, _ = dim.Println("within noise")
		case d.TargetRate < d.BaseRate:
			_, _ = red.Println("lower")
		default:
			_, _ = green.Println("higher")
		}
	}

	_, _ = dim.Println(strings.Repeat("-", 80))
	fmt.Printf("Overall: %.2f%% -> %.2f%% (%+.1f%%)\n", c.BaseRate, c.TargetRate, c.ChangePercent)
	printTrend("Decline test", c.Trend)
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Run the statistics helpers on ad-hoc numbers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "interval [values...]",
		Short: "Mean, deviation and 95% confidence interval of a sample",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseNumbers(args)
			if err != nil {
				return err
			}

			cv := stats.CoefficientOfVariation(values)
			ci := stats.ConfidenceInterval95(values)

			fmt.Printf("n:       %d\n", len(values))
			fmt.Printf("mean:    %.4f\n", stats.Mean(values))
			fmt.Printf("sd:      %.4f\n", stats.StandardDeviation(values))
			fmt.Printf("se:      %.4f\n", stats.StandardError(values))
			fmt.Printf("95%% CI:  %s\n", formatMargin(ci))
			fmt.Printf("cv:      %.4f\n", cv)
			fmt.Print("level:   ")
			level := stats.ConfidenceLevelFor(len(values), cv)
			_, _ = levelColor(level).Println(level)
			return nil
		},
	})

	var ys string
	corr := &cobra.Command{
		Use:   "correlation [x values...] --y [y values]",
		Short: "Pearson correlation of two series",
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := parseNumbers(args)
			if err != nil {
				return err
			}
			y, err := parseNumbers(strings.Split(ys, ","))
			if err != nil {
				return err
			}
			fmt.Printf("r = %.4f (n=%d)\n", stats.PearsonCorrelation(x, y), min(len(x), len(y)))
			return nil
		},
	}
	corr.Flags().StringVar(&ys, "y", "", "comma separated y values")
	cmd.AddCommand(corr)

	return cmd
}

// parseNumbers accepts numbers as separate arguments, comma separated, or both.
func parseNumbers(args []string) ([]float64, error) {
	var values []float64
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", field)
			}
			values = append(values, v)
		}
	}
	return values, nil
}

func formatInterval(iv stats.Interval) string {
	return fmt.Sprintf("[%.2f, %.2f]", iv.Lower(), iv.Upper())
}

// formatMargin prints the interval followed by its half width.
func formatMargin(iv stats.Interval) string {
	return fmt.Sprintf("%s ±%.4f", formatInterval(iv), iv.Width()/2)
}

func levelColor(level stats.ConfidenceLevel) *color.Color {
	switch level {
	case stats.ConfidenceHigh:
		return color.New(color.FgGreen)
	case stats.ConfidenceMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
