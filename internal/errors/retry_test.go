package errors

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a fetch that fails twice before the feed host recovers
	attempts := 0
	fetch := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("fetch feed: connection refused")
		}
		return nil
	}

	// When: retrying with the default policy at test speed
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 10 * time.Millisecond

	// Then: the third attempt lands
	require.NoError(t, Retry(context.Background(), cfg, fetch))
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	// Given: a feed host that never answers
	attempts := 0
	fetch := func() error {
		attempts++
		return errors.New("fetch feed: 502")
	}

	cfg := RetryConfig{
		MaxRetries:   2,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	// When: the budget runs out
	err := Retry(context.Background(), cfg, fetch)

	// Then: the error names the retry count, the initial attempt included
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts)
}

func TestRetry_PermanentErrorStopsImmediately(t *testing.T) {
	// Given: a function whose failure no retry can fix
	attempts := 0
	sentinel := errors.New("feed is locked")
	fn := func() error {
		attempts++
		return Permanent(sentinel)
	}

	// When: retrying with room for several attempts
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	err := Retry(context.Background(), cfg, fn)

	// Then: gives up after one attempt and returns the original error unchanged
	assert.Equal(t, 1, attempts)
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, "feed is locked", err.Error())
}

func TestPermanent_NilStaysNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestRetry_BackoffDoubles(t *testing.T) {
	// Given: a fetch that records when each attempt starts
	var starts []time.Time
	fetch := func() error {
		starts = append(starts, time.Now())
		if len(starts) < 4 {
			return errors.New("fetch feed: 502")
		}
		return nil
	}

	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	// When: three backoffs happen
	require.NoError(t, Retry(context.Background(), cfg, fetch))
	require.Len(t, starts, 4)

	// Then: gaps grow 20 -> 40 -> 80 ms, within scheduler slack
	assert.InDelta(t, 20, starts[1].Sub(starts[0]).Milliseconds(), 15)
	assert.InDelta(t, 40, starts[2].Sub(starts[1]).Milliseconds(), 20)
	assert.InDelta(t, 80, starts[3].Sub(starts[2]).Milliseconds(), 40)
}

func TestRetry_BackoffCappedAtMaxDelay(t *testing.T) {
	var starts []time.Time
	fetch := func() error {
		starts = append(starts, time.Now())
		if len(starts) < 5 {
			return errors.New("fetch feed: 502")
		}
		return nil
	}

	cfg := RetryConfig{
		MaxRetries:   10,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     30 * time.Millisecond,
		Multiplier:   2.0,
	}

	require.NoError(t, Retry(context.Background(), cfg, fetch))

	// Every gap past the first doubling sits at the 30ms cap.
	for i := 2; i < len(starts); i++ {
		assert.LessOrEqual(t, starts[i].Sub(starts[i-1]).Milliseconds(), int64(50))
	}
}

func TestRetry_ConstantGapWithMultiplierOne(t *testing.T) {
	// Feed refresh retries keep a constant gap between attempts
	var starts []time.Time
	fetch := func() error {
		starts = append(starts, time.Now())
		if len(starts) < 3 {
			return errors.New("fetch feed: 502")
		}
		return nil
	}

	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.0,
	}

	require.NoError(t, Retry(context.Background(), cfg, fetch))
	require.Len(t, starts, 3)

	assert.InDelta(t, 20, starts[1].Sub(starts[0]).Milliseconds(), 15)
	assert.InDelta(t, 20, starts[2].Sub(starts[1]).Milliseconds(), 15)
}

func TestRetry_JitterVariesDelay(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	// When: sampling the first-retry gap across several runs
	var gaps []time.Duration
	for i := 0; i < 3; i++ {
		var starts []time.Time
		fetch := func() error {
			starts = append(starts, time.Now())
			if len(starts) < 3 {
				return errors.New("fetch feed: 502")
			}
			return nil
		}
		_ = Retry(context.Background(), cfg, fetch)
		if len(starts) >= 2 {
			gaps = append(gaps, starts[1].Sub(starts[0]))
		}
	}

	// Then: every gap lands inside the jitter window, half to full delay
	require.GreaterOrEqual(t, len(gaps), 2)
	for _, g := range gaps {
		assert.GreaterOrEqual(t, g.Milliseconds(), int64(25))
		assert.LessOrEqual(t, g.Milliseconds(), int64(100))
	}
}

func TestRetry_NoDelayOnFirstSuccess(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	start := time.Now()
	require.NoError(t, Retry(context.Background(), cfg, func() error { return nil }))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	// Given: a slow fetch and a caller that gives up mid-flight
	fetch := func() error {
		time.Sleep(100 * time.Millisecond)
		return errors.New("fetch feed: timeout")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 200 * time.Millisecond

	// When: the context dies during the first backoff
	start := time.Now()
	err := Retry(ctx, cfg, fetch)

	// Then: the context error comes back without waiting out the delay
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetry_StopsOnDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	cfg := RetryConfig{
		MaxRetries:   10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	err := Retry(ctx, cfg, func() error { return errors.New("fetch feed: 502") })

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	// Given: a download that fails once before coming back cleanly
	attempts := 0
	fetch := func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("fetch feed: reset by peer")
		}
		return 1240, nil
	}

	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 10 * time.Millisecond

	// Then: the product count from the good attempt comes back
	count, err := RetryWithResult(context.Background(), cfg, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1240, count)
}

func TestRetryWithResult_ZeroValueOnFailure(t *testing.T) {
	// Given: a fetch that keeps returning a partial body with its error
	fetch := func() (string, error) {
		return "<yml_catalog", errors.New("fetch feed: truncated")
	}

	cfg := RetryConfig{
		MaxRetries:   1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	// Then: the partial value is discarded along the error path
	body, err := RetryWithResult(context.Background(), cfg, fetch)
	require.Error(t, err)
	assert.Equal(t, "", body)
}

func TestRetry_Concurrent(t *testing.T) {
	// Ten refreshes retrying in parallel, the way the scheduler runs them.
	var succeeded atomic.Int32
	var wg sync.WaitGroup

	cfg := RetryConfig{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempts := 0
			fetch := func() error {
				attempts++
				if attempts < 2 {
					return errors.New("fetch feed: 502")
				}
				return nil
			}
			if Retry(context.Background(), cfg, fetch) == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 16*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.False(t, cfg.Jitter)
}
