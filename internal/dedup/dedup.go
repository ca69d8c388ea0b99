// Package dedup provides duplicate suppression for endpoints, requests and
// tokens discovered during a pipeline run.
package dedup

import (
	"container/list"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Engine suppresses duplicates using three layers, checked in order: a
// bounded most-recently-used cache (catches hot repeats), a Bloom filter
// (fast authoritative-negative check), and an exact set (authoritative).
// Safe for concurrent use by multiple probe workers.
type Engine struct {
	mu sync.RWMutex

	filter *bloom.BloomFilter

	exact map[string]struct{}
	order []string // insertion order of exact entries, oldest first

	recent    map[string]*list.Element
	recentLRU *list.List

	maxRecent  int
	maxEntries int
	count      int
}

// Config configures the dedup engine.
type Config struct {
	// EstimatedItems sizes the Bloom filter.
	EstimatedItems int
	// MaxRecent bounds the MRU cache.
	MaxRecent int
	// MaxEntries caps the exact set. When exceeded, the oldest ~10% of
	// entries are evicted and the MRU cache is trimmed to half MaxRecent.
	MaxEntries int
	// DisableFilter skips the probabilistic layer entirely.
	DisableFilter bool
}

// DefaultConfig returns sensible defaults for a single discovery run.
func DefaultConfig() Config {
	return Config{
		EstimatedItems: 10000,
		MaxRecent:      256,
		MaxEntries:     100000,
	}
}

// NewEngine creates a dedup engine. State is scoped to the engine value;
// construct a fresh engine per discovery run for re-runnable pipelines.
func NewEngine(cfg Config) *Engine {
	if cfg.EstimatedItems < 1000 {
		cfg.EstimatedItems = 1000
	}
	if cfg.MaxRecent < 16 {
		cfg.MaxRecent = 16
	}
	if cfg.MaxEntries < 1000 {
		cfg.MaxEntries = 1000
	}

	e := &Engine{
		exact:      make(map[string]struct{}),
		order:      make([]string, 0, 1024),
		recent:     make(map[string]*list.Element),
		recentLRU:  list.New(),
		maxRecent:  cfg.MaxRecent,
		maxEntries: cfg.MaxEntries,
	}
	if !cfg.DisableFilter {
		e.filter = bloom.NewWithEstimates(uint(cfg.EstimatedItems), 0.001)
	}
	return e
}

// New creates a dedup engine with default configuration.
func New() *Engine {
	return NewEngine(DefaultConfig())
}

// IsDuplicate reports whether the key has been remembered before.
func (e *Engine) IsDuplicate(key string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.recent[key]; ok {
		return true
	}
	// Bloom filter never gives false negatives.
	if e.filter != nil && !e.filter.TestString(key) {
		return false
	}
	_, ok := e.exact[key]
	return ok
}

// Remember records the key in all layers.
func (e *Engine) Remember(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remember(key)
}

// Seen atomically checks and remembers a key. Returns true if the key was
// already known.
func (e *Engine) Seen(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if el, ok := e.recent[key]; ok {
		e.recentLRU.MoveToFront(el)
		return true
	}

	known := false
	if e.filter == nil || e.filter.TestString(key) {
		_, known = e.exact[key]
	}
	if !known {
		e.remember(key)
	}
	return known
}

// remember updates all layers. Caller holds the write lock.
func (e *Engine) remember(key string) {
	if _, ok := e.exact[key]; !ok {
		e.exact[key] = struct{}{}
		e.order = append(e.order, key)
		e.count++
		if e.filter != nil {
			e.filter.AddString(key)
		}
		if len(e.exact) > e.maxEntries {
			e.evict()
		}
	}
	e.touchRecent(key)
}

// touchRecent inserts the key into the MRU cache, evicting the LRU entry
// when the cache is full. Caller holds the write lock.
func (e *Engine) touchRecent(key string) {
	if el, ok := e.recent[key]; ok {
		e.recentLRU.MoveToFront(el)
		return
	}
	el := e.recentLRU.PushFront(key)
	e.recent[key] = el
	for e.recentLRU.Len() > e.maxRecent {
		oldest := e.recentLRU.Back()
		e.recentLRU.Remove(oldest)
		delete(e.recent, oldest.Value.(string))
	}
}

// evict drops the oldest ~10% of exact entries and trims the MRU cache to
// half its configured size. The Bloom filter keeps stale bits; it may
// report false positives for evicted keys, which the exact set resolves.
// Caller holds the write lock.
func (e *Engine) evict() {
	n := len(e.order) / 10
	if n < 1 {
		n = 1
	}
	for _, key := range e.order[:n] {
		delete(e.exact, key)
		if el, ok := e.recent[key]; ok {
			e.recentLRU.Remove(el)
			delete(e.recent, key)
		}
	}
	e.order = append(e.order[:0], e.order[n:]...)

	half := e.maxRecent / 2
	for e.recentLRU.Len() > half {
		oldest := e.recentLRU.Back()
		e.recentLRU.Remove(oldest)
		delete(e.recent, oldest.Value.(string))
	}
}

// Count returns the number of unique keys remembered over the engine's
// lifetime, including evicted ones.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.count
}

// Size returns the current number of exact entries held.
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.exact)
}

// Reset clears all state so the engine can back a fresh run.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.filter != nil {
		e.filter.ClearAll()
	}
	e.exact = make(map[string]struct{})
	e.order = e.order[:0]
	e.recent = make(map[string]*list.Element)
	e.recentLRU.Init()
	e.count = 0
}

// Dedupe returns items with later duplicates removed, preserving
// first-occurrence order. The input slice is not modified.
func Dedupe[T any](items []T, keyFn func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		key := keyFn(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// DedupeWith filters items through an engine, remembering each new key.
// Items whose key the engine has already seen are dropped; order is
// preserved.
func DedupeWith[T any](e *Engine, items []T, keyFn func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !e.Seen(keyFn(item)) {
			out = append(out, item)
		}
	}
	return out
}
