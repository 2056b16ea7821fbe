// Package analytics records per-project search and click counters in
// the key-value store and aggregates them into a dashboard summary.
// Counters are write-mostly and never consulted by retrieval.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vitrina-search/vitrina/internal/kv"
	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

// Counter key layouts and retention. Day counters survive a month,
// hourly counters a week; the ranked sets never expire.
const (
	dayLayout  = "2006-01-02"
	hourLayout = "2006-01-02-15"

	dailyTTL  = 30 * 24 * time.Hour
	hourlyTTL = 7 * 24 * time.Hour

	// responseTimesKeep bounds the response-time list to the most
	// recent samples.
	responseTimesKeep = 1000

	// DefaultSummaryDays is the window Summary aggregates over.
	DefaultSummaryDays = 7

	// maxSummaryDays matches the day-counter retention; asking for
	// more would only read expired keys.
	maxSummaryDays = 30

	// topQueriesCount is how many popular queries Summary returns.
	topQueriesCount = 20
)

// ErrNilDependency is returned when a required constructor argument is nil.
var ErrNilDependency = errors.New("nil dependency")

// Tracker writes analytics counters and reads them back as a Summary.
type Tracker struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides the time source used for day and hour bucketing.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a tracker backed by the given store.
func NewTracker(store kv.Store, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrNilDependency)
	}
	t := &Tracker{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// LogSearch records one executed search: the daily and hourly request
// counters, the popular-queries ranking and the response-time ring.
// All writes go through one pipeline.
func (t *Tracker) LogSearch(ctx context.Context, projectID, query string, took time.Duration) error {
	now := t.now().UTC()
	dayKey := kv.QueriesDayKey(projectID, now.Format(dayLayout))
	hourKey := kv.QueriesHourKey(projectID, now.Format(hourLayout))
	tookMS := float64(took.Microseconds()) / 1000

	pipe := t.store.Pipeline()
	pipe.Incr(dayKey)
	pipe.Expire(dayKey, dailyTTL)
	pipe.Incr(hourKey)
	pipe.Expire(hourKey, hourlyTTL)
	pipe.ZIncrBy(kv.PopularQueriesKey(projectID), 1, strings.ToLower(query))
	pipe.LPush(kv.ResponseTimesKey(projectID), strconv.FormatFloat(tookMS, 'f', -1, 64))
	pipe.LTrim(kv.ResponseTimesKey(projectID), 0, responseTimesKeep-1)

	if err := pipe.Exec(ctx); err != nil {
		return verrors.StorageError("failed to record search analytics", err)
	}
	return nil
}

// LogClick records a click on a product and the query that led to it.
// An empty query still counts the click but is kept out of the
// converting-queries ranking.
func (t *Tracker) LogClick(ctx context.Context, projectID, productID, query string) error {
	dayKey := kv.ClicksDayKey(projectID, t.now().UTC().Format(dayLayout))

	pipe := t.store.Pipeline()
	pipe.Incr(dayKey)
	pipe.Expire(dayKey, dailyTTL)
	pipe.ZIncrBy(kv.PopularProductsKey(projectID), 1, productID)
	if query != "" {
		pipe.ZIncrBy(kv.ConvertingQueriesKey(projectID), 1, strings.ToLower(query))
	}

	if err := pipe.Exec(ctx); err != nil {
		return verrors.StorageError("failed to record click analytics", err)
	}
	return nil
}

// PopularQuery is one entry of the popular-queries ranking.
type PopularQuery struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// Summary aggregates a project's counters over a trailing window.
type Summary struct {
	TotalQueries      int            `json:"total_queries"`
	TotalClicks       int            `json:"total_clicks"`
	QueriesByDay      map[string]int `json:"queries_by_day"`
	ClicksByDay       map[string]int `json:"clicks_by_day"`
	PopularQueries    []PopularQuery `json:"popular_queries"`
	AvgResponseTimeMS float64        `json:"avg_response_time_ms"`
}

// Summary reads the trailing window of day counters plus the top
// popular queries and the mean response time. days outside [1,30]
// falls back to the default week.
func (t *Tracker) Summary(ctx context.Context, projectID string, days int) (*Summary, error) {
	if days <= 0 || days > maxSummaryDays {
		days = DefaultSummaryDays
	}
	now := t.now().UTC()

	out := &Summary{
		QueriesByDay:   make(map[string]int, days),
		ClicksByDay:    make(map[string]int, days),
		PopularQueries: []PopularQuery{},
	}

	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -i).Format(dayLayout)

		queries, err := t.readCounter(ctx, kv.QueriesDayKey(projectID, day))
		if err != nil {
			return nil, err
		}
		out.QueriesByDay[day] = queries
		out.TotalQueries += queries

		clicks, err := t.readCounter(ctx, kv.ClicksDayKey(projectID, day))
		if err != nil {
			return nil, err
		}
		out.ClicksByDay[day] = clicks
		out.TotalClicks += clicks
	}

	popular, err := t.store.ZRevRangeWithScores(ctx, kv.PopularQueriesKey(projectID), 0, topQueriesCount-1)
	if err != nil {
		return nil, verrors.StorageError("failed to read popular queries", err)
	}
	for _, m := range popular {
		out.PopularQueries = append(out.PopularQueries, PopularQuery{
			Query: m.Member,
			Count: int(m.Score),
		})
	}

	times, err := t.store.LRange(ctx, kv.ResponseTimesKey(projectID), 0, -1)
	if err != nil {
		return nil, verrors.StorageError("failed to read response times", err)
	}
	if len(times) > 0 {
		var sum float64
		var n int
		for _, raw := range times {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			sum += v
			n++
		}
		if n > 0 {
			out.AvgResponseTimeMS = math.Round(sum/float64(n)*100) / 100
		}
	}

	return out, nil
}

// readCounter fetches an integer counter, treating a missing key as
// zero.
func (t *Tracker) readCounter(ctx context.Context, key string) (int, error) {
	raw, err := t.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, verrors.StorageError("failed to read analytics counter", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		t.logger.Warn("analytics counter is not a number", "key", key, "value", raw)
		return 0, nil
	}
	return n, nil
}
