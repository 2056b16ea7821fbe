package analytics

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitrina-search/vitrina/internal/kv"
)

func newTestTracker(t *testing.T, store kv.Store, now time.Time) *Tracker {
	t.Helper()
	tr, err := NewTracker(store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return tr
}

func TestNewTracker_RequiresStore(t *testing.T) {
	_, err := NewTracker(nil)
	require.ErrorIs(t, err, ErrNilDependency)
}

func TestTracker_LogSearch_WritesCounters(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)

	require.NoError(t, tr.LogSearch(ctx, "p1", "Кроссовки Nike", 12500*time.Microsecond))
	require.NoError(t, tr.LogSearch(ctx, "p1", "кроссовки nike", 7500*time.Microsecond))

	day, err := store.Get(ctx, kv.QueriesDayKey("p1", "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, "2", day)

	hour, err := store.Get(ctx, kv.QueriesHourKey("p1", "2025-06-01-14"))
	require.NoError(t, err)
	assert.Equal(t, "2", hour)

	// Queries rank under their lowercased form.
	score, err := store.ZScore(ctx, kv.PopularQueriesKey("p1"), "кроссовки nike")
	require.NoError(t, err)
	assert.Equal(t, 2.0, score)

	times, err := store.LRange(ctx, kv.ResponseTimesKey("p1"), 0, -1)
	require.NoError(t, err)
	require.Len(t, times, 2)
	// LPUSH ordering: newest first.
	assert.Equal(t, "7.5", times[0])
	assert.Equal(t, "12.5", times[1])
}

func TestTracker_LogSearch_TrimsResponseTimes(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	tr := newTestTracker(t, store, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	for i := 0; i < responseTimesKeep+50; i++ {
		require.NoError(t, tr.LogSearch(ctx, "p1", "q"+strconv.Itoa(i), time.Millisecond))
	}

	times, err := store.LRange(ctx, kv.ResponseTimesKey("p1"), 0, -1)
	require.NoError(t, err)
	assert.Len(t, times, responseTimesKeep)
}

func TestTracker_LogClick_WritesCounters(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	now := time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)

	require.NoError(t, tr.LogClick(ctx, "p1", "sku-1", "Кроссовки"))
	require.NoError(t, tr.LogClick(ctx, "p1", "sku-1", "кроссовки"))
	require.NoError(t, tr.LogClick(ctx, "p1", "sku-2", ""))

	day, err := store.Get(ctx, kv.ClicksDayKey("p1", "2025-06-01"))
	require.NoError(t, err)
	assert.Equal(t, "3", day)

	clicks, err := store.ZScore(ctx, kv.PopularProductsKey("p1"), "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 2.0, clicks)

	conv, err := store.ZScore(ctx, kv.ConvertingQueriesKey("p1"), "кроссовки")
	require.NoError(t, err)
	assert.Equal(t, 2.0, conv)

	// The empty query counts the click but never ranks.
	_, err = store.ZScore(ctx, kv.ConvertingQueriesKey("p1"), "")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestTracker_Summary_AggregatesWindow(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	// Two days of traffic recorded on their own dates.
	trDayOne := newTestTracker(t, store, now.AddDate(0, 0, -1))
	require.NoError(t, trDayOne.LogSearch(ctx, "p1", "ноутбук", 10*time.Millisecond))
	require.NoError(t, trDayOne.LogSearch(ctx, "p1", "ноутбук", 20*time.Millisecond))
	require.NoError(t, trDayOne.LogClick(ctx, "p1", "sku-9", "ноутбук"))

	trToday := newTestTracker(t, store, now)
	require.NoError(t, trToday.LogSearch(ctx, "p1", "телефон", 30*time.Millisecond))

	sum, err := trToday.Summary(ctx, "p1", 7)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.TotalQueries)
	assert.Equal(t, 1, sum.TotalClicks)
	assert.Len(t, sum.QueriesByDay, 7)
	assert.Equal(t, 2, sum.QueriesByDay["2025-06-09"])
	assert.Equal(t, 1, sum.QueriesByDay["2025-06-10"])
	assert.Equal(t, 0, sum.QueriesByDay["2025-06-04"])
	assert.Equal(t, 1, sum.ClicksByDay["2025-06-09"])

	require.Len(t, sum.PopularQueries, 2)
	assert.Equal(t, PopularQuery{Query: "ноутбук", Count: 2}, sum.PopularQueries[0])
	assert.Equal(t, PopularQuery{Query: "телефон", Count: 1}, sum.PopularQueries[1])

	assert.Equal(t, 20.0, sum.AvgResponseTimeMS)
}

func TestTracker_Summary_EmptyProject(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	tr := newTestTracker(t, store, time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))

	sum, err := tr.Summary(ctx, "ghost", 7)
	require.NoError(t, err)

	assert.Zero(t, sum.TotalQueries)
	assert.Zero(t, sum.TotalClicks)
	assert.Empty(t, sum.PopularQueries)
	assert.Zero(t, sum.AvgResponseTimeMS)
	assert.Len(t, sum.QueriesByDay, 7)
}

func TestTracker_Summary_ClampsDays(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	tr := newTestTracker(t, store, time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))

	sum, err := tr.Summary(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, sum.QueriesByDay, DefaultSummaryDays)

	sum, err = tr.Summary(ctx, "p1", 400)
	require.NoError(t, err)
	assert.Len(t, sum.QueriesByDay, DefaultSummaryDays)
}

func TestTracker_Summary_CapsPopularQueries(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)

	for i := 0; i < topQueriesCount+10; i++ {
		q := "запрос " + strconv.Itoa(i)
		// Distinct counts keep the ranking deterministic.
		for j := 0; j <= i; j++ {
			require.NoError(t, tr.LogSearch(ctx, "p1", q, time.Millisecond))
		}
	}

	sum, err := tr.Summary(ctx, "p1", 7)
	require.NoError(t, err)
	require.Len(t, sum.PopularQueries, topQueriesCount)
	assert.Equal(t, "запрос 29", sum.PopularQueries[0].Query)
	assert.Equal(t, 30, sum.PopularQueries[0].Count)
}

func TestTracker_Summary_SkipsMalformedSamples(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, store, now)

	require.NoError(t, store.LPush(ctx, kv.ResponseTimesKey("p1"), "garbage"))
	require.NoError(t, tr.LogSearch(ctx, "p1", "лампа", 10*time.Millisecond))

	sum, err := tr.Summary(ctx, "p1", 7)
	require.NoError(t, err)
	assert.Equal(t, 10.0, sum.AvgResponseTimeMS)
}
