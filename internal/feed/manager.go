package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitrina-search/vitrina/internal/catalog"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
	"github.com/vitrina-search/vitrina/internal/kv"
)

// DefaultLockTTL caps how long a crashed refresh can hold a project
// lock before another worker may take over.
const DefaultLockTTL = 300 * time.Second

// Default retry posture for scheduled refreshes.
const (
	DefaultRetryCount = 3
	DefaultRetryDelay = 60 * time.Second
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ProductIndexer is the slice of the indexer the manager drives.
type ProductIndexer interface {
	IndexProducts(ctx context.Context, projectID string, products []catalog.Product) (int, error)
	UpdateStockPrices(ctx context.Context, projectID string, updates []catalog.StockUpdate) (int, error)
}

// LoadReport summarizes a completed ingestion.
type LoadReport struct {
	ShopName        string        `json:"shop_name,omitempty"`
	ProductsCount   int           `json:"products_count"`
	CategoriesCount int           `json:"categories_count"`
	UpdatedCount    int           `json:"updated_count,omitempty"`
	Took            time.Duration `json:"-"`
}

// Manager orchestrates feed ingestion for a project: download, parse,
// index, and every write to the project:{p}:feed status hash. A
// per-project KV lock serializes refreshes so a manual load and a
// scheduled one cannot interleave.
type Manager struct {
	store      kv.Store
	indexer    ProductIndexer
	downloader *Downloader
	parser     *Parser
	logger     *slog.Logger
	lockTTL    time.Duration
	retryCount int
	retryDelay time.Duration
	now        func() time.Time
}

// ManagerOption configures the feed manager.
type ManagerOption func(*Manager)

// WithDownloader replaces the default downloader.
func WithDownloader(d *Downloader) ManagerOption {
	return func(m *Manager) {
		if d != nil {
			m.downloader = d
		}
	}
}

// WithParser replaces the default parser.
func WithParser(p *Parser) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.parser = p
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLockTTL overrides the refresh lock expiry.
func WithLockTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithRetry overrides the Refresh attempt count and the gap between
// attempts.
func WithRetry(count int, delay time.Duration) ManagerOption {
	return func(m *Manager) {
		if count > 0 {
			m.retryCount = count
		}
		if delay > 0 {
			m.retryDelay = delay
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a feed manager. Returns an error if a required
// dependency is nil.
func NewManager(store kv.Store, indexer ProductIndexer, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: kv store is required", ErrNilDependency)
	}
	if indexer == nil {
		return nil, fmt.Errorf("%w: indexer is required", ErrNilDependency)
	}

	m := &Manager{
		store:      store,
		indexer:    indexer,
		logger:     slog.Default(),
		lockTTL:    DefaultLockTTL,
		retryCount: DefaultRetryCount,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.downloader == nil {
		m.downloader = NewDownloader(m.logger, DefaultDownloadTimeout, DefaultMaxFeedSize)
	}
	if m.parser == nil {
		m.parser = NewParser(m.logger, 0)
	}
	return m, nil
}

// LoadFeed runs a full ingestion: download, parse, replace the project
// index. The status hash moves downloading -> indexing -> success, or
// to error with the previous index left untouched.
func (m *Manager) LoadFeed(ctx context.Context, projectID, feedURL string) (*LoadReport, error) {
	if feedURL == "" {
		return nil, verrors.ValidationError("feed url is required", nil)
	}

	unlock, err := m.acquireLock(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := m.now()
	fields := catalog.FeedStatus{
		URL:      feedURL,
		Status:   catalog.StatusDownloading,
		Progress: 0,
		Message:  "Загрузка фида...",
	}.Fields()
	// A fresh run clears the error left by a previous failed one. HSET
	// merges, so the empty value must be written explicitly.
	fields["error"] = ""
	m.writeStatus(ctx, projectID, fields)

	content, err := m.downloader.Download(ctx, feedURL)
	if err != nil {
		m.failStatus(ctx, projectID, err)
		return nil, err
	}

	result, err := m.parser.Parse(content)
	if err != nil {
		m.failStatus(ctx, projectID, err)
		return nil, err
	}

	m.setStatus(ctx, projectID, catalog.FeedStatus{
		Status:   catalog.StatusIndexing,
		Progress: 50,
		Message:  fmt.Sprintf("Индексация %d товаров...", len(result.Products)),
	})

	indexed, err := m.indexer.IndexProducts(ctx, projectID, result.Products)
	if err != nil {
		m.failStatus(ctx, projectID, err)
		return nil, err
	}

	took := m.now().Sub(start)
	m.setStatus(ctx, projectID, catalog.FeedStatus{
		Status:          catalog.StatusSuccess,
		Progress:        100,
		Message:         fmt.Sprintf("Загружено %d товаров", indexed),
		ProductsCount:   indexed,
		CategoriesCount: len(result.Categories),
		ShopName:        result.ShopName,
		LastUpdate:      m.now().UTC().Format(time.RFC3339),
	})

	m.logger.Info("feed loaded",
		"project_id", projectID,
		"products", indexed,
		"categories", len(result.Categories),
		"took_ms", took.Milliseconds())

	return &LoadReport{
		ShopName:        result.ShopName,
		ProductsCount:   indexed,
		CategoriesCount: len(result.Categories),
		Took:            took,
	}, nil
}

// LoadStockFeed applies a delta feed carrying only price and stock
// changes. The main index stays in place; only the touched products
// are rewritten.
func (m *Manager) LoadStockFeed(ctx context.Context, projectID, feedURL string) (*LoadReport, error) {
	if feedURL == "" {
		return nil, verrors.ValidationError("feed url is required", nil)
	}

	unlock, err := m.acquireLock(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	start := m.now()
	content, err := m.downloader.Download(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	updates, err := m.parser.ParseStockUpdates(content)
	if err != nil {
		return nil, err
	}

	updated, err := m.indexer.UpdateStockPrices(ctx, projectID, updates)
	if err != nil {
		return nil, err
	}

	took := m.now().Sub(start)
	m.logger.Info("stock feed applied",
		"project_id", projectID,
		"updates", len(updates),
		"updated", updated,
		"took_ms", took.Milliseconds())

	return &LoadReport{UpdatedCount: updated, Took: took}, nil
}

// Refresh runs LoadFeed with the configured retry posture. A locked
// project means another worker is already refreshing, so that outcome
// is returned immediately instead of retried.
func (m *Manager) Refresh(ctx context.Context, projectID, feedURL string) (*LoadReport, error) {
	cfg := verrors.RetryConfig{
		MaxRetries:   m.retryCount - 1,
		InitialDelay: m.retryDelay,
		MaxDelay:     m.retryDelay,
		Multiplier:   1.0,
	}

	attempt := 0
	return verrors.RetryWithResult(ctx, cfg, func() (*LoadReport, error) {
		attempt++
		report, err := m.LoadFeed(ctx, projectID, feedURL)
		if err == nil {
			return report, nil
		}
		if verrors.GetCode(err) == verrors.ErrCodeFeedLocked {
			return nil, verrors.Permanent(err)
		}
		if attempt < m.retryCount {
			m.logger.Warn("feed refresh attempt failed",
				"project_id", projectID,
				"attempt", attempt,
				"err", err)
		}
		return nil, err
	})
}

// Status reads the feed status hash. A project with no hash reports
// not_loaded.
func (m *Manager) Status(ctx context.Context, projectID string) (*catalog.FeedStatus, error) {
	fields, err := m.store.HGetAll(ctx, kv.FeedStatusKey(projectID))
	if err != nil {
		return nil, verrors.StorageError("failed to read feed status", err)
	}
	st := catalog.FeedStatusFromFields(fields)
	return &st, nil
}

// acquireLock takes the per-project refresh lock. The returned release
// runs on a detached context so a cancelled request still frees the
// lock.
func (m *Manager) acquireLock(ctx context.Context, projectID string) (func(), error) {
	key := kv.FeedLockKey(projectID)
	ok, err := m.store.SetNX(ctx, key, "1", m.lockTTL)
	if err != nil {
		return nil, verrors.StorageError("failed to acquire feed lock", err)
	}
	if !ok {
		return nil, verrors.FeedError(verrors.ErrCodeFeedLocked,
			fmt.Sprintf("feed refresh already in progress for project %s", projectID), nil)
	}
	release := func() {
		if err := m.store.Del(context.WithoutCancel(ctx), key); err != nil {
			m.logger.Warn("failed to release feed lock", "project_id", projectID, "err", err)
		}
	}
	return release, nil
}

// setStatus merges fields into the status hash. Failures are logged,
// never surfaced: a status write must not abort an ingestion.
func (m *Manager) setStatus(ctx context.Context, projectID string, st catalog.FeedStatus) {
	m.writeStatus(ctx, projectID, st.Fields())
}

func (m *Manager) writeStatus(ctx context.Context, projectID string, fields map[string]string) {
	if err := m.store.HSet(ctx, kv.FeedStatusKey(projectID), fields); err != nil {
		m.logger.Warn("failed to write feed status", "project_id", projectID, "err", err)
	}
}

func (m *Manager) failStatus(ctx context.Context, projectID string, cause error) {
	m.setStatus(ctx, projectID, catalog.FeedStatus{
		Status:   catalog.StatusError,
		Progress: 0,
		Message:  cause.Error(),
		Error:    cause.Error(),
	})
}
