package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrina-search/vitrina/internal/config"
	"github.com/vitrina-search/vitrina/internal/feed"
	"github.com/vitrina-search/vitrina/internal/index"
	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/output"
	"github.com/vitrina-search/vitrina/internal/scheduler"
	"github.com/vitrina-search/vitrina/internal/store"
	"github.com/vitrina-search/vitrina/internal/text"
	"github.com/vitrina-search/vitrina/internal/ui"
)

// statusPollInterval is how often --watch re-reads the feed status
// hash while a load is running.
const statusPollInterval = 200 * time.Millisecond

func newFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Load and inspect product feeds",
	}

	cmd.AddCommand(newFeedLoadCmd())
	cmd.AddCommand(newFeedStockCmd())
	cmd.AddCommand(newFeedStatusCmd())
	cmd.AddCommand(newFeedRefreshCmd())

	return cmd
}

// feedPipeline bundles the services the feed subcommands share.
type feedPipeline struct {
	cfg      *config.Config
	kv       kv.Store
	registry *store.Store
	indexer  *index.Indexer
	manager  *feed.Manager
	cleanup  func()
}

// Close waits for background backups before releasing connections.
func (p *feedPipeline) Close() {
	p.indexer.Wait()
	p.registry.Close()
	_ = p.kv.Close()
	p.cleanup()
}

// openFeedPipeline wires the ingestion stack for one-off CLI use.
// Redis must be reachable; PostgreSQL connects lazily and only
// degrades backups and feed URL lookups when absent.
func openFeedPipeline(ctx context.Context) (*feedPipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	cleanup := setupCLILogging(cfg.Logging.Level)
	logger := slog.Default()

	kvStore := kv.NewRedis(kv.RedisOptions{
		Addr:     cfg.KV.Addr(),
		Password: cfg.KV.Password,
		DB:       cfg.KV.DB,
		PoolSize: cfg.KV.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = kvStore.Ping(pingCtx)
	cancel()
	if err != nil {
		_ = kvStore.Close()
		cleanup()
		return nil, fmt.Errorf("redis unreachable at %s: %w", cfg.KV.Addr(), err)
	}

	registry, err := store.New(ctx, cfg.DB.URL(),
		store.WithLogger(logger),
		store.WithPoolSize(cfg.DB.PoolSize))
	if err != nil {
		_ = kvStore.Close()
		cleanup()
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	proc := text.NewProcessor(cfg.Search.StopWords)

	indexer, err := index.NewIndexer(kvStore, proc,
		index.WithBackup(registry),
		index.WithNGramSize(cfg.Search.NGramSize),
		index.WithLogger(logger))
	if err != nil {
		registry.Close()
		_ = kvStore.Close()
		cleanup()
		return nil, err
	}

	manager, err := feed.NewManager(kvStore, indexer,
		feed.WithDownloader(feed.NewDownloader(logger, cfg.Feed.TimeoutDuration(), cfg.Feed.MaxSizeBytes())),
		feed.WithParser(feed.NewParser(logger, cfg.Feed.MaxProducts)),
		feed.WithRetry(cfg.Feed.RetryCount, cfg.Feed.RetryDelayDuration()),
		feed.WithLogger(logger))
	if err != nil {
		registry.Close()
		_ = kvStore.Close()
		cleanup()
		return nil, err
	}

	return &feedPipeline{
		cfg:      cfg,
		kv:       kvStore,
		registry: registry,
		indexer:  indexer,
		manager:  manager,
		cleanup:  cleanup,
	}, nil
}

// resolveFeedURL prefers the explicit URL argument and falls back to
// the feed URL stored on the project.
func (p *feedPipeline) resolveFeedURL(ctx context.Context, projectID, arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}

	project, err := p.registry.ProjectByID(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("no feed URL given and project lookup failed: %w", err)
	}
	if project.FeedURL == "" {
		return "", fmt.Errorf("project %s has no feed URL configured", projectID)
	}
	return project.FeedURL, nil
}

// recordProductsCount mirrors the catalog size into the registry for
// the dashboard. The index is already live, so failures only log.
func (p *feedPipeline) recordProductsCount(ctx context.Context, projectID string, count int) {
	if err := p.registry.UpdateProductsCount(ctx, projectID, count); err != nil {
		slog.Warn("failed to record products count", "project_id", projectID, "error", err)
	}
}

type feedLoadOptions struct {
	project string
	watch   bool
}

func newFeedLoadCmd() *cobra.Command {
	opts := &feedLoadOptions{}

	cmd := &cobra.Command{
		Use:   "load [url]",
		Short: "Download, parse and index a product feed",
		Long: `Downloads a YML/XML product feed, indexes it into Redis and backs
the catalog up to PostgreSQL. Without a URL argument the project's
stored feed URL is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var feedURL string
			if len(args) > 0 {
				feedURL = args[0]
			}
			return runFeedLoad(cmd.Context(), cmd, feedURL, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project ID (required)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Show live progress while the feed loads")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runFeedLoad(ctx context.Context, cmd *cobra.Command, feedURL string, opts *feedLoadOptions) error {
	pipe, err := openFeedPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipe.Close()

	feedURL, err = pipe.resolveFeedURL(ctx, opts.project, feedURL)
	if err != nil {
		return err
	}

	if opts.watch {
		return loadWithWatch(ctx, cmd, pipe, opts.project, feedURL)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📦", "Loading feed for project %s...", opts.project)

	report, err := pipe.manager.LoadFeed(ctx, opts.project, feedURL)
	if err != nil {
		return err
	}
	pipe.recordProductsCount(ctx, opts.project, report.ProductsCount)

	out.Successf("Loaded %d products, %d categories in %s",
		report.ProductsCount, report.CategoriesCount, report.Took.Round(10*time.Millisecond))
	if report.ShopName != "" {
		out.Field("Shop", report.ShopName)
	}

	return nil
}

// loadWithWatch runs the load in the foreground while a poller feeds
// the renderer from the status hash the manager writes.
func loadWithWatch(ctx context.Context, cmd *cobra.Command, pipe *feedPipeline, projectID, feedURL string) error {
	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithProject(projectID)))
	if err := renderer.Start(ctx); err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(statusPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				st, err := pipe.manager.Status(watchCtx, projectID)
				if err != nil {
					continue
				}
				renderer.Update(ui.ProgressEvent{
					Stage:    ui.StageFromStatus(st.Status),
					Percent:  st.Progress,
					Message:  st.Message,
					Products: st.ProductsCount,
				})
			}
		}
	}()

	report, err := pipe.manager.LoadFeed(ctx, projectID, feedURL)
	stopWatch()
	wg.Wait()

	summary := ui.LoadSummary{Err: err}
	if report != nil {
		summary.ShopName = report.ShopName
		summary.Products = report.ProductsCount
		summary.Categories = report.CategoriesCount
		summary.Updated = report.UpdatedCount
		summary.Duration = report.Took
	}
	renderer.Complete(summary)
	if stopErr := renderer.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}

	if err == nil && report != nil {
		pipe.recordProductsCount(ctx, projectID, report.ProductsCount)
	}
	return err
}

type feedStockOptions struct {
	project string
}

func newFeedStockCmd() *cobra.Command {
	opts := &feedStockOptions{}

	cmd := &cobra.Command{
		Use:   "stock [url]",
		Short: "Apply a stock feed to update prices and availability",
		Long: `Applies a stock feed on top of the existing index. Only price, old
price and availability change; products missing from the index are
skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var feedURL string
			if len(args) > 0 {
				feedURL = args[0]
			}
			return runFeedStock(cmd.Context(), cmd, feedURL, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project ID (required)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runFeedStock(ctx context.Context, cmd *cobra.Command, feedURL string, opts *feedStockOptions) error {
	pipe, err := openFeedPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipe.Close()

	feedURL, err = pipe.resolveFeedURL(ctx, opts.project, feedURL)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("📦", "Applying stock feed for project %s...", opts.project)

	report, err := pipe.manager.LoadStockFeed(ctx, opts.project, feedURL)
	if err != nil {
		return err
	}

	out.Successf("Updated %d of %d products in %s",
		report.UpdatedCount, report.ProductsCount, report.Took.Round(10*time.Millisecond))

	return nil
}

type feedStatusOptions struct {
	project string
	format  string
}

func newFeedStatusCmd() *cobra.Command {
	opts := &feedStatusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last feed load status for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedStatus(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project ID (required)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func runFeedStatus(ctx context.Context, cmd *cobra.Command, opts *feedStatusOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", opts.format)
	}

	pipe, err := openFeedPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipe.Close()

	st, err := pipe.manager.Status(ctx, opts.project)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if opts.format == "json" {
		return renderer.RenderJSON(*st)
	}
	return renderer.Render(opts.project, *st)
}

type feedRefreshOptions struct {
	project string
	all     bool
}

func newFeedRefreshCmd() *cobra.Command {
	opts := &feedRefreshOptions{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-download and re-index stored feeds",
		Long: `Refreshes a project from its stored feed URL with the same retry
behavior the scheduler uses. With --all, every auto-update project
whose index has gone stale is refreshed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedRefresh(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project ID")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Refresh every stale auto-update project")

	return cmd
}

func runFeedRefresh(ctx context.Context, cmd *cobra.Command, opts *feedRefreshOptions) error {
	if !opts.all && opts.project == "" {
		return fmt.Errorf("either --project or --all is required")
	}

	pipe, err := openFeedPipeline(ctx)
	if err != nil {
		return err
	}
	defer pipe.Close()

	out := output.New(cmd.OutOrStdout())

	if opts.all {
		sched, err := scheduler.NewScheduler(registryTargets{pipe.registry}, pipe.manager,
			scheduler.WithStaleness(pipe.cfg.Scheduler.StalenessDuration()),
			scheduler.WithConcurrency(pipe.cfg.Scheduler.Concurrency),
			scheduler.WithLogger(slog.Default()))
		if err != nil {
			return err
		}

		out.Status("🔄", "Checking projects for stale indexes...")
		refreshed, err := sched.CheckOnce(ctx)
		if err != nil {
			return err
		}
		out.Successf("Refreshed %d projects", refreshed)
		return nil
	}

	feedURL, err := pipe.resolveFeedURL(ctx, opts.project, "")
	if err != nil {
		return err
	}

	out.Statusf("🔄", "Refreshing project %s...", opts.project)
	report, err := pipe.manager.Refresh(ctx, opts.project, feedURL)
	if err != nil {
		return err
	}
	pipe.recordProductsCount(ctx, opts.project, report.ProductsCount)

	out.Successf("Refreshed %d products, %d categories in %s",
		report.ProductsCount, report.CategoriesCount, report.Took.Round(10*time.Millisecond))

	return nil
}
