package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrina-search/vitrina/internal/analytics"
	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/ui"
)

type statsOptions struct {
	project    string
	days       int
	jsonOutput bool
}

func newStatsCmd() *cobra.Command {
	opts := &statsOptions{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show search analytics for a project",
		Long: `Displays query and click volumes, popular queries and average
response time, aggregated from the per-day counters the API keeps.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project ID (required)")
	cmd.Flags().IntVar(&opts.days, "days", 7, "Number of days to include")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, opts *statsOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cleanup := setupCLILogging(cfg.Logging.Level)
	defer cleanup()

	kvStore := kv.NewRedis(kv.RedisOptions{
		Addr:     cfg.KV.Addr(),
		Password: cfg.KV.Password,
		DB:       cfg.KV.DB,
		PoolSize: cfg.KV.PoolSize,
	})
	defer kvStore.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = kvStore.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", cfg.KV.Addr(), err)
	}

	tracker, err := analytics.NewTracker(kvStore)
	if err != nil {
		return err
	}

	summary, err := tracker.Summary(ctx, opts.project, opts.days)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	return printStatsFormatted(cmd, opts.project, opts.days, summary)
}

func printStatsFormatted(cmd *cobra.Command, projectID string, days int, summary *analytics.Summary) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Search Analytics: %s (last %d days)\n", projectID, days)
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total Queries: %d\n", summary.TotalQueries)
	fmt.Fprintf(w, "Total Clicks:  %d\n", summary.TotalClicks)
	if summary.TotalQueries > 0 {
		ctr := float64(summary.TotalClicks) / float64(summary.TotalQueries) * 100
		fmt.Fprintf(w, "CTR:           %.1f%%\n", ctr)
	}
	if summary.AvgResponseTimeMS > 0 {
		fmt.Fprintf(w, "Avg Response:  %.1fms\n", summary.AvgResponseTimeMS)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Queries by Day: %s\n", daySparkline(summary.QueriesByDay, days))
	fmt.Fprintf(w, "Clicks by Day:  %s\n", daySparkline(summary.ClicksByDay, days))
	fmt.Fprintln(w)

	if len(summary.PopularQueries) > 0 {
		fmt.Fprintln(w, "Popular Queries:")
		for i, pq := range summary.PopularQueries {
			fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, pq.Query, pq.Count)
		}
	} else {
		fmt.Fprintln(w, "Popular Queries: (none recorded yet)")
	}

	return nil
}

// daySparkline renders the per-day counters oldest to newest.
func daySparkline(byDay map[string]int, days int) string {
	spark := ui.NewSparkline()
	now := time.Now().UTC()
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format("2006-01-02")
		spark.Add(float64(byDay[day]))
	}
	return spark.Render()
}
