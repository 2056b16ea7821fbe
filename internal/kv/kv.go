// Package kv abstracts the key-value store that holds product records,
// search indexes, feed status and analytics counters. The production
// implementation is Redis; an in-memory implementation backs tests and
// local development.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// ScoredMember is one member of an ordered set together with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the key-value surface the service depends on. Methods map
// one-to-one onto Redis commands so that the in-memory implementation
// can mirror their semantics exactly.
type Store interface {
	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// MGet returns the values for the given keys. Missing keys are
	// absent from the result map.
	MGet(ctx context.Context, keys ...string) (map[string]string, error)

	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value at key only if the key does not exist and
	// reports whether the write happened. Used for feed locks.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes the given keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// Scan returns all keys matching a glob-style pattern.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// Incr increments the integer value at key and returns the result.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a ttl on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// ZIncrBy increments the score of member in the ordered set at key.
	ZIncrBy(ctx context.Context, key string, delta float64, member string) error

	// ZScore returns the score of member in the ordered set at key, or
	// ErrNotFound when the member is absent.
	ZScore(ctx context.Context, key, member string) (float64, error)

	// ZRangeWithScores returns the whole ordered set ascending by score.
	ZRangeWithScores(ctx context.Context, key string) ([]ScoredMember, error)

	// ZRevRangeWithScores returns the range [start, stop] descending by
	// score. Negative stop counts from the end, as in Redis.
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// HSet writes the given fields into the hash at key.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns all fields of the hash at key. A missing key
	// yields an empty map, not an error.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// LPush prepends values to the list at key.
	LPush(ctx context.Context, key string, values ...string) error

	// LTrim trims the list at key to the range [start, stop].
	LTrim(ctx context.Context, key string, start, stop int64) error

	// LRange returns the range [start, stop] of the list at key.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Pipeline returns a buffered command batch. Commands are queued
	// client-side and applied together on Exec.
	Pipeline() Pipeline

	// Ping verifies connectivity to the store.
	Ping(ctx context.Context) error

	// Close releases the underlying client.
	Close() error
}

// Pipeline buffers write commands for a single batched execution.
// Index rebuilds delete the old keys and write the new ones through one
// pipeline so that readers never observe a half-replaced index.
type Pipeline interface {
	Set(key, value string, ttl time.Duration)
	Del(keys ...string)
	ZAdd(key string, members map[string]float64)
	ZIncrBy(key string, delta float64, member string)
	SAdd(key string, members ...string)
	HSet(key string, fields map[string]string)
	Incr(key string)
	Expire(key string, ttl time.Duration)
	LPush(key string, values ...string)
	LTrim(key string, start, stop int64)

	// Exec applies all queued commands and resets the pipeline.
	Exec(ctx context.Context) error
}
