// Package scheduler keeps project feeds fresh. A single background
// loop wakes up on a fixed interval, finds projects whose feed is
// older than the staleness threshold, and refreshes them through the
// feed manager with bounded concurrency. Per-project locking and
// retries live in the manager, so a manual load and a scheduled one
// never interleave.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vitrina-search/vitrina/internal/catalog"
	"github.com/vitrina-search/vitrina/internal/feed"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

// Defaults for the refresh loop.
const (
	DefaultInitialDelay  = 60 * time.Second
	DefaultCheckInterval = 15 * time.Minute
	DefaultStaleness     = 4 * time.Hour
	DefaultConcurrency   = 5
)

// ErrNilDependency is returned when a required constructor argument is nil.
var ErrNilDependency = errors.New("nil dependency")

// Target is one project considered for automatic refresh.
type Target struct {
	ProjectID  string
	FeedURL    string
	AutoUpdate bool
}

// ProjectSource enumerates refresh candidates at the start of each cycle.
type ProjectSource interface {
	RefreshTargets(ctx context.Context) ([]Target, error)
}

// Refresher loads a project's feed and reports its stored status.
// *feed.Manager satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, projectID, feedURL string) (*feed.LoadReport, error)
	Status(ctx context.Context, projectID string) (*catalog.FeedStatus, error)
}

// Scheduler runs the auto-update loop in a background goroutine.
type Scheduler struct {
	projects ProjectSource
	feeds    Refresher
	logger   *slog.Logger

	initialDelay  time.Duration
	checkInterval time.Duration
	staleness     time.Duration
	concurrency   int
	now           func() time.Time

	// Lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
	stopped bool
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInitialDelay sets the pause before the first cycle.
func WithInitialDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.initialDelay = d
		}
	}
}

// WithCheckInterval sets the pause between cycles.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.checkInterval = d
		}
	}
}

// WithStaleness sets the feed age that triggers a refresh.
func WithStaleness(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.staleness = d
		}
	}
}

// WithConcurrency bounds how many projects refresh in flight at once.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock overrides the time source for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a stopped scheduler. Call Start to begin the loop.
func NewScheduler(projects ProjectSource, feeds Refresher, opts ...Option) (*Scheduler, error) {
	if projects == nil {
		return nil, fmt.Errorf("%w: project source is required", ErrNilDependency)
	}
	if feeds == nil {
		return nil, fmt.Errorf("%w: refresher is required", ErrNilDependency)
	}

	s := &Scheduler{
		projects:      projects,
		feeds:         feeds,
		logger:        slog.Default(),
		initialDelay:  DefaultInitialDelay,
		checkInterval: DefaultCheckInterval,
		staleness:     DefaultStaleness,
		concurrency:   DefaultConcurrency,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IsRunning reports whether the loop is currently active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the loop in a background goroutine. It is non-blocking
// and a second call while running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("feed scheduler started",
		"check_interval", s.checkInterval.String(),
		"staleness", s.staleness.String(),
		"concurrency", s.concurrency)

	go s.run(ctx)
}

// run executes the loop until the parent context is cancelled or Stop
// is called.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	// Merged context that respects both the parent and the stop channel.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Let the server finish starting up before the first pass.
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.initialDelay):
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		if n, err := s.CheckOnce(ctx); err != nil {
			s.logger.Error("scheduler cycle failed", "err", err)
		} else if n > 0 {
			s.logger.Info("scheduler cycle completed", "refreshed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop signals the loop to stop and waits for it to finish. Safe to
// call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	already := s.stopped
	if !already {
		s.stopped = true
		close(s.stopCh)
	}
	running := s.running
	s.mu.Unlock()

	if running {
		<-s.doneCh
	}
	if !already {
		s.logger.Info("feed scheduler stopped")
	}
}

// CheckOnce runs a single cycle: list projects, pick the stale ones,
// and refresh them with bounded concurrency. It returns how many
// refreshes succeeded. Individual refresh failures are logged and
// retried on a later cycle rather than surfaced.
func (s *Scheduler) CheckOnce(ctx context.Context) (int, error) {
	targets, err := s.projects.RefreshTargets(ctx)
	if err != nil {
		return 0, err
	}

	var (
		mu        sync.Mutex
		refreshed int
	)

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, target := range targets {
		if !s.shouldRefresh(ctx, target) {
			continue
		}

		g.Go(func() error {
			report, err := s.feeds.Refresh(ctx, target.ProjectID, target.FeedURL)
			if err != nil {
				if verrors.GetCode(err) == verrors.ErrCodeFeedLocked {
					s.logger.Debug("refresh already in progress",
						"project_id", target.ProjectID)
					return nil
				}
				s.logger.Warn("scheduled refresh failed",
					"project_id", target.ProjectID,
					"err", err)
				return nil
			}

			mu.Lock()
			refreshed++
			mu.Unlock()

			s.logger.Info("feed auto-updated",
				"project_id", target.ProjectID,
				"products", report.ProductsCount,
				"took_ms", report.Took.Milliseconds())
			return nil
		})
	}

	_ = g.Wait()
	return refreshed, ctx.Err()
}

// shouldRefresh decides whether one project is due. Projects without a
// feed URL or with auto-update disabled are skipped; a missing or
// unreadable last_update counts as stale.
func (s *Scheduler) shouldRefresh(ctx context.Context, target Target) bool {
	if !target.AutoUpdate {
		return false
	}
	if strings.TrimSpace(target.FeedURL) == "" {
		return false
	}

	status, err := s.feeds.Status(ctx, target.ProjectID)
	if err != nil {
		s.logger.Warn("feed status unavailable, skipping",
			"project_id", target.ProjectID,
			"err", err)
		return false
	}
	if status.LastUpdate == "" {
		return true
	}

	last, err := time.Parse(time.RFC3339, status.LastUpdate)
	if err != nil {
		return true
	}
	return s.now().Sub(last) >= s.staleness
}
