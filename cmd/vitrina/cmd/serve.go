package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vitrina-search/vitrina/internal/analytics"
	"github.com/vitrina-search/vitrina/internal/auth"
	"github.com/vitrina-search/vitrina/internal/config"
	"github.com/vitrina-search/vitrina/internal/feed"
	"github.com/vitrina-search/vitrina/internal/index"
	"github.com/vitrina-search/vitrina/internal/kv"
	"github.com/vitrina-search/vitrina/internal/logging"
	"github.com/vitrina-search/vitrina/internal/scheduler"
	"github.com/vitrina-search/vitrina/internal/search"
	"github.com/vitrina-search/vitrina/internal/server"
	"github.com/vitrina-search/vitrina/internal/store"
	"github.com/vitrina-search/vitrina/internal/text"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	addr        string
	noScheduler bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search API server",
		Long: `Starts the HTTP API and, unless disabled, the background feed
refresher. Requires a reachable Redis instance; PostgreSQL is optional
and only degrades account and backup features when absent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.noScheduler, "no-scheduler", false, "Disable the background feed refresher")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanup, err := setupServerLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	slog.SetDefault(logger)

	// One server per host. A second scheduler would double-refresh
	// every feed.
	releaseLock, err := acquireRunLock(runLockPath())
	if err != nil {
		return err
	}
	defer releaseLock()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	kvStore := kv.NewRedis(kv.RedisOptions{
		Addr:     cfg.KV.Addr(),
		Password: cfg.KV.Password,
		DB:       cfg.KV.DB,
		PoolSize: cfg.KV.PoolSize,
	})
	defer kvStore.Close()

	// Redis holds every index, so refuse to start without it.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = kvStore.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("redis unreachable at %s: %w", cfg.KV.Addr(), err)
	}

	registry, err := store.New(ctx, cfg.DB.URL(),
		store.WithLogger(logger),
		store.WithPoolSize(cfg.DB.PoolSize))
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer registry.Close()

	// The pool connects lazily. Warn instead of failing so search
	// keeps serving from Redis when PostgreSQL is down.
	pingCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
	err = registry.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Warn("postgres unreachable, account and backup features degraded", "error", err)
	} else if err := registry.Migrate(ctx); err != nil {
		logger.Warn("schema migration failed", "error", err)
	}

	proc := text.NewProcessor(cfg.Search.StopWords)

	engine, err := search.NewEngine(kvStore, proc,
		search.WithSettings(registry),
		search.WithNGramSize(cfg.Search.NGramSize),
		search.WithLogger(logger))
	if err != nil {
		return err
	}

	indexer, err := index.NewIndexer(kvStore, proc,
		index.WithBackup(registry),
		index.WithNGramSize(cfg.Search.NGramSize),
		index.WithLogger(logger))
	if err != nil {
		return err
	}

	feeds, err := feed.NewManager(kvStore, indexer,
		feed.WithDownloader(feed.NewDownloader(logger, cfg.Feed.TimeoutDuration(), cfg.Feed.MaxSizeBytes())),
		feed.WithParser(feed.NewParser(logger, cfg.Feed.MaxProducts)),
		feed.WithRetry(cfg.Feed.RetryCount, cfg.Feed.RetryDelayDuration()),
		feed.WithLogger(logger))
	if err != nil {
		return err
	}

	tracker, err := analytics.NewTracker(kvStore, analytics.WithLogger(logger))
	if err != nil {
		return err
	}

	var authn *auth.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authn, err = auth.NewAuthenticator(cfg.Auth.JWTSecret)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("jwt secret not configured, account endpoints disabled")
	}

	srv, err := server.New(server.Deps{
		KV:       kvStore,
		Registry: registry,
		Engine:   engine,
		Indexer:  indexer,
		Feeds:    feeds,
		Tracker:  tracker,
		Auth:     authn,
	},
		server.WithLogger(logger),
		server.WithSuggestCap(cfg.Search.SuggestCap),
		server.WithKeyPrefix(cfg.Auth.APIKeyPrefix),
		server.WithCORSOrigins(cfg.Server.CORSOrigins))
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled && !opts.noScheduler {
		sched, err = scheduler.NewScheduler(registryTargets{registry}, feeds,
			scheduler.WithInitialDelay(cfg.Scheduler.InitialDelayDuration()),
			scheduler.WithCheckInterval(cfg.Scheduler.CheckIntervalDuration()),
			scheduler.WithStaleness(cfg.Scheduler.StalenessDuration()),
			scheduler.WithConcurrency(cfg.Scheduler.Concurrency),
			scheduler.WithLogger(logger))
		if err != nil {
			return err
		}
	}

	addr := cfg.Server.Addr()
	if opts.addr != "" {
		addr = opts.addr
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(addr)
	})

	if sched != nil {
		sched.Start(gctx)
	}

	g.Go(func() error {
		<-gctx.Done()
		if sched != nil {
			sched.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("vitrina started",
		"addr", addr,
		"scheduler", sched != nil,
		"auth", authn != nil)

	return g.Wait()
}

// setupServerLogging builds the file logger from config. --debug has
// already lowered cfg.Logging.Level by the time we get here.
func setupServerLogging(cfg *config.Config) (*slog.Logger, func(), error) {
	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.Stderr,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	return logging.Setup(logCfg)
}

// runLockPath returns the file guarding a single serve per host.
func runLockPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "vitrina-serve.lock")
	}
	return filepath.Join(home, ".vitrina", "serve.lock")
}

// acquireRunLock takes an exclusive advisory lock, failing fast when
// another vitrina serve already holds it.
func acquireRunLock(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(path)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire serve lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("another vitrina serve is already running (lock held on %s)", path)
	}

	return func() { _ = lock.Unlock() }, nil
}

// registryTargets adapts the project registry to the scheduler's
// target source.
type registryTargets struct {
	registry *store.Store
}

func (r registryTargets) RefreshTargets(ctx context.Context) ([]scheduler.Target, error) {
	projects, err := r.registry.AllProjects(ctx)
	if err != nil {
		return nil, err
	}

	targets := make([]scheduler.Target, 0, len(projects))
	for _, p := range projects {
		targets = append(targets, scheduler.Target{
			ProjectID:  p.ID,
			FeedURL:    p.FeedURL,
			AutoUpdate: p.AutoUpdate,
		})
	}
	return targets, nil
}
