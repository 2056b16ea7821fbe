package kv

import (
	"context"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and by local development
// without a Redis instance. Semantics mirror Redis: lazy expiry,
// glob-style Scan, ordered sets sorted by score then member.
type Memory struct {
	mu      sync.Mutex
	strings map[string]string
	zsets   map[string]map[string]float64
	sets    map[string]map[string]struct{}
	hashes  map[string]map[string]string
	lists   map[string][]string
	expiry  map[string]time.Time

	now func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string]string),
		zsets:   make(map[string]map[string]float64),
		sets:    make(map[string]map[string]struct{}),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		expiry:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// purgeLocked drops the key from every namespace if its ttl has passed.
func (m *Memory) purgeLocked(key string) {
	at, ok := m.expiry[key]
	if !ok || m.now().Before(at) {
		return
	}
	m.deleteLocked(key)
}

func (m *Memory) deleteLocked(key string) {
	delete(m.strings, key)
	delete(m.zsets, key)
	delete(m.sets, key)
	delete(m.hashes, key)
	delete(m.lists, key)
	delete(m.expiry, key)
}

func (m *Memory) existsLocked(key string) bool {
	m.purgeLocked(key)
	if _, ok := m.strings[key]; ok {
		return true
	}
	if _, ok := m.zsets[key]; ok {
		return true
	}
	if _, ok := m.sets[key]; ok {
		return true
	}
	if _, ok := m.hashes[key]; ok {
		return true
	}
	if _, ok := m.lists[key]; ok {
		return true
	}
	return false
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	val, ok := m.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (m *Memory) MGet(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		m.purgeLocked(key)
		if val, ok := m.strings[key]; ok {
			out[key] = val
		}
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	return nil
}

func (m *Memory) setLocked(key, value string, ttl time.Duration) {
	m.strings[key] = value
	if ttl > 0 {
		m.expiry[key] = m.now().Add(ttl)
	} else {
		delete(m.expiry, key)
	}
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsLocked(key) {
		return false, nil
	}
	m.setLocked(key, value, ttl)
	return true, nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.deleteLocked(key)
	}
	return nil
}

func (m *Memory) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, key := range m.allKeysLocked() {
		m.purgeLocked(key)
		if !m.existsLocked(key) {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) allKeysLocked() []string {
	seen := make(map[string]struct{})
	for k := range m.strings {
		seen[k] = struct{}{}
	}
	for k := range m.zsets {
		seen[k] = struct{}{}
	}
	for k := range m.sets {
		seen[k] = struct{}{}
	}
	for k := range m.hashes {
		seen[k] = struct{}{}
	}
	for k := range m.lists {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	return keys
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	n, _ := strconv.ParseInt(m.strings[key], 10, 64)
	n++
	m.strings[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsLocked(key) && ttl > 0 {
		m.expiry[key] = m.now().Add(ttl)
	}
	return nil
}

func (m *Memory) ZIncrBy(_ context.Context, key string, delta float64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zincrByLocked(key, delta, member)
	return nil
}

func (m *Memory) zincrByLocked(key string, delta float64, member string) {
	zs, ok := m.zsets[key]
	if !ok {
		zs = make(map[string]float64)
		m.zsets[key] = zs
	}
	zs[member] += delta
}

func (m *Memory) zaddLocked(key string, members map[string]float64) {
	zs, ok := m.zsets[key]
	if !ok {
		zs = make(map[string]float64)
		m.zsets[key] = zs
	}
	for member, score := range members {
		zs[member] = score
	}
}

func (m *Memory) ZScore(_ context.Context, key, member string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	score, ok := m.zsets[key][member]
	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

func (m *Memory) ZRangeWithScores(_ context.Context, key string) ([]ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	return sortedZSet(m.zsets[key]), nil
}

func (m *Memory) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	asc := sortedZSet(m.zsets[key])
	desc := make([]ScoredMember, len(asc))
	for i, sm := range asc {
		desc[len(asc)-1-i] = sm
	}
	return sliceRange(desc, start, stop), nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saddLocked(key, members)
	return nil
}

func (m *Memory) saddLocked(key string, members []string) {
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, member := range members {
		set[member] = struct{}{}
	}
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *Memory) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hsetLocked(key, fields)
	return nil
}

func (m *Memory) hsetLocked(key string, fields map[string]string) {
	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string)
		m.hashes[key] = hash
	}
	for field, value := range fields {
		hash[field] = value
	}
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	out := make(map[string]string, len(m.hashes[key]))
	for field, value := range m.hashes[key] {
		out[field] = value
	}
	return out, nil
}

func (m *Memory) LPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lpushLocked(key, values)
	return nil
}

func (m *Memory) lpushLocked(key string, values []string) {
	list := m.lists[key]
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	m.lists[key] = list
}

func (m *Memory) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = sliceRange(m.lists[key], start, stop)
	return nil
}

func (m *Memory) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(key)
	out := sliceRange(m.lists[key], start, stop)
	cp := make([]string, len(out))
	copy(cp, out)
	return cp, nil
}

func (m *Memory) Pipeline() Pipeline {
	return &memoryPipeline{store: m}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// memoryPipeline queues closures and applies them under one lock so a
// rebuild appears atomic to concurrent readers.
type memoryPipeline struct {
	store *Memory
	ops   []func(*Memory)
}

var _ Pipeline = (*memoryPipeline)(nil)

func (p *memoryPipeline) Set(key, value string, ttl time.Duration) {
	p.ops = append(p.ops, func(m *Memory) { m.setLocked(key, value, ttl) })
}

func (p *memoryPipeline) Del(keys ...string) {
	p.ops = append(p.ops, func(m *Memory) {
		for _, key := range keys {
			m.deleteLocked(key)
		}
	})
}

func (p *memoryPipeline) ZAdd(key string, members map[string]float64) {
	cp := make(map[string]float64, len(members))
	for member, score := range members {
		cp[member] = score
	}
	p.ops = append(p.ops, func(m *Memory) { m.zaddLocked(key, cp) })
}

func (p *memoryPipeline) ZIncrBy(key string, delta float64, member string) {
	p.ops = append(p.ops, func(m *Memory) { m.zincrByLocked(key, delta, member) })
}

func (p *memoryPipeline) SAdd(key string, members ...string) {
	cp := make([]string, len(members))
	copy(cp, members)
	p.ops = append(p.ops, func(m *Memory) { m.saddLocked(key, cp) })
}

func (p *memoryPipeline) HSet(key string, fields map[string]string) {
	cp := make(map[string]string, len(fields))
	for field, value := range fields {
		cp[field] = value
	}
	p.ops = append(p.ops, func(m *Memory) { m.hsetLocked(key, cp) })
}

func (p *memoryPipeline) Incr(key string) {
	p.ops = append(p.ops, func(m *Memory) {
		n, _ := strconv.ParseInt(m.strings[key], 10, 64)
		m.strings[key] = strconv.FormatInt(n+1, 10)
	})
}

func (p *memoryPipeline) Expire(key string, ttl time.Duration) {
	p.ops = append(p.ops, func(m *Memory) {
		if m.existsLocked(key) && ttl > 0 {
			m.expiry[key] = m.now().Add(ttl)
		}
	})
}

func (p *memoryPipeline) LPush(key string, values ...string) {
	cp := make([]string, len(values))
	copy(cp, values)
	p.ops = append(p.ops, func(m *Memory) { m.lpushLocked(key, cp) })
}

func (p *memoryPipeline) LTrim(key string, start, stop int64) {
	p.ops = append(p.ops, func(m *Memory) {
		m.lists[key] = sliceRange(m.lists[key], start, stop)
	})
}

func (p *memoryPipeline) Exec(context.Context) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	for _, op := range p.ops {
		op(p.store)
	}
	p.ops = nil
	return nil
}

// sortedZSet orders ascending by score, ties broken by member, which is
// how Redis orders equal scores.
func sortedZSet(zs map[string]float64) []ScoredMember {
	out := make([]ScoredMember, 0, len(zs))
	for member, score := range zs {
		out = append(out, ScoredMember{Member: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	return out
}

// sliceRange applies Redis range semantics: inclusive bounds, negative
// offsets count from the end, out-of-range yields an empty slice.
func sliceRange[T any](items []T, start, stop int64) []T {
	n := int64(len(items))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return nil
	}
	return items[start : stop+1]
}
