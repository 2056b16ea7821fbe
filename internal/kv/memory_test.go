package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetMissingKey(t *testing.T) {
	m := NewMemory()

	_, err := m.Get(context.Background(), "products:proj_1:42")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SetGetRoundtrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "products:proj_1:42", `{"id":"42"}`, 0))

	val, err := m.Get(ctx, "products:proj_1:42")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"42"}`, val)
}

func TestMemory_TTLExpiresLazily(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "lock:feed:proj_1", "1", 300*time.Second))

	// Still present just before the deadline
	now = now.Add(299 * time.Second)
	_, err := m.Get(ctx, "lock:feed:proj_1")
	require.NoError(t, err)

	// Gone once the ttl has passed
	now = now.Add(2 * time.Second)
	_, err = m.Get(ctx, "lock:feed:proj_1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SetNXHoldsLock(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "lock:feed:proj_1", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Second acquire fails while the lock is held
	ok, err = m.SetNX(ctx, "lock:feed:proj_1", "1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Released lock can be taken again
	require.NoError(t, m.Del(ctx, "lock:feed:proj_1"))
	ok, err = m.SetNX(ctx, "lock:feed:proj_1", "1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemory_ScanMatchesGlob(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "products:proj_1:1", "a", 0))
	require.NoError(t, m.Set(ctx, "products:proj_1:2", "b", 0))
	require.NoError(t, m.Set(ctx, "products:proj_2:1", "c", 0))
	require.NoError(t, m.SAdd(ctx, "idx:proj_1:ngram:кро", "кроссовки"))

	keys, err := m.Scan(ctx, "products:proj_1:*")
	require.NoError(t, err)

	assert.Equal(t, []string{"products:proj_1:1", "products:proj_1:2"}, keys)
}

func TestMemory_ZSetOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ZIncrBy(ctx, "idx:p:inv:кроссовки", 3.0, "sku-1"))
	require.NoError(t, m.ZIncrBy(ctx, "idx:p:inv:кроссовки", 5.5, "sku-2"))
	require.NoError(t, m.ZIncrBy(ctx, "idx:p:inv:кроссовки", 1.5, "sku-3"))

	asc, err := m.ZRangeWithScores(ctx, "idx:p:inv:кроссовки")
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, "sku-3", asc[0].Member)
	assert.Equal(t, "sku-2", asc[2].Member)

	top, err := m.ZRevRangeWithScores(ctx, "idx:p:inv:кроссовки", 0, 1)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, ScoredMember{Member: "sku-2", Score: 5.5}, top[0])
}

func TestMemory_ZScore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ZIncrBy(ctx, "idx:p:inv:nike", 3.0, "sku-1"))

	score, err := m.ZScore(ctx, "idx:p:inv:nike", "sku-1")
	require.NoError(t, err)
	assert.Equal(t, 3.0, score)

	_, err = m.ZScore(ctx, "idx:p:inv:nike", "sku-missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.ZScore(ctx, "idx:p:inv:absent", "sku-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ZRevRangeNegativeStop(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.ZIncrBy(ctx, "idx:p:suggest", 2, "чехол"))
	require.NoError(t, m.ZIncrBy(ctx, "idx:p:suggest", 7, "чехол iphone"))

	all, err := m.ZRevRangeWithScores(ctx, "idx:p:suggest", 0, -1)
	require.NoError(t, err)

	require.Len(t, all, 2)
	assert.Equal(t, "чехол iphone", all[0].Member)
}

func TestMemory_IncrAndExpire(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	n, err := m.Incr(ctx, "analytics:p:queries:2026-08-25")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.Incr(ctx, "analytics:p:queries:2026-08-25")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, m.Expire(ctx, "analytics:p:queries:2026-08-25", time.Hour))
}

func TestMemory_HashRoundtrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.HSet(ctx, "project:p:feed", map[string]string{
		"status":   "downloading",
		"progress": "0",
	}))
	require.NoError(t, m.HSet(ctx, "project:p:feed", map[string]string{
		"progress": "50",
	}))

	fields, err := m.HGetAll(ctx, "project:p:feed")
	require.NoError(t, err)

	assert.Equal(t, "downloading", fields["status"])
	assert.Equal(t, "50", fields["progress"])
}

func TestMemory_HGetAllMissingKeyIsEmpty(t *testing.T) {
	m := NewMemory()

	fields, err := m.HGetAll(context.Background(), "project:p:feed")
	require.NoError(t, err)

	assert.Empty(t, fields)
}

func TestMemory_ListPushTrimRange(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, v := range []string{"12.5", "8.1", "20.0"} {
		require.NoError(t, m.LPush(ctx, "analytics:p:response_times", v))
	}
	require.NoError(t, m.LTrim(ctx, "analytics:p:response_times", 0, 1))

	vals, err := m.LRange(ctx, "analytics:p:response_times", 0, -1)
	require.NoError(t, err)

	assert.Equal(t, []string{"20.0", "8.1"}, vals)
}

func TestMemoryPipeline_AppliesQueuedCommandsOnExec(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "products:p:old", "{}", 0))

	pipe := m.Pipeline()
	pipe.Del("products:p:old")
	pipe.Set("products:p:new", `{"id":"new"}`, 0)
	pipe.ZAdd("idx:p:inv:чехол", map[string]float64{"new": 3.0})
	pipe.SAdd("idx:p:ngram:чех", "чехол")

	// Nothing is visible before Exec
	_, err := m.Get(ctx, "products:p:new")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, pipe.Exec(ctx))

	_, err = m.Get(ctx, "products:p:old")
	assert.ErrorIs(t, err, ErrNotFound)

	val, err := m.Get(ctx, "products:p:new")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"new"}`, val)

	members, err := m.SMembers(ctx, "idx:p:ngram:чех")
	require.NoError(t, err)
	assert.Equal(t, []string{"чехол"}, members)
}

func TestMemory_MGetSkipsMissing(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "products:p:1", "a", 0))
	require.NoError(t, m.Set(ctx, "products:p:3", "c", 0))

	vals, err := m.MGet(ctx, "products:p:1", "products:p:2", "products:p:3")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"products:p:1": "a",
		"products:p:3": "c",
	}, vals)
}
