// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package termcache caches search results by normalized term set.
//
// Keys are order independent: the terms are lower-cased, trimmed,
// de-duplicated and sorted before joining, so ["A", "b"] and ["b", "a"]
// share an entry. Entries expire after a TTL and are dropped lazily on
// read. Capacity is bounded; when full, the oldest entry by insertion time
// is evicted regardless of how recently it was read.
package termcache

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/metrics"
	"github.com/pdiddy/research-hub/internal/persist"
	"github.com/pdiddy/research-hub/pkg/types"
)

const (
	// DefaultTTL applies when Put receives a non-positive ttl.
	DefaultTTL = 24 * time.Hour

	// DefaultMaxEntries bounds the cache when Options.MaxEntries is unset.
	DefaultMaxEntries = 20

	keySeparator = "|"
)

// Entry is one cached term set.
type Entry struct {
	// Key is the normalized term-set key. Not serialized; the snapshot map key carries it.
	Key string `json:"-"`

	// Query is the space-joined original query text.
	Query string `json:"query"`

	// Terms are the normalized terms, sorted.
	Terms []string `json:"terms"`

	// Results are the cached result sets.
	Results []types.ResultSet `json:"results"`

	// CreatedAt is the insertion time.
	CreatedAt time.Time `json:"timestamp"`

	// ExpiresAt is CreatedAt plus the entry's TTL.
	ExpiresAt time.Time `json:"expiresAt"`

	// Seq orders entries inserted within the same clock tick.
	Seq uint64 `json:"seq"`
}

// Options configures a Cache.
type Options struct {
	DefaultTTL time.Duration
	MaxEntries int
	Backend    persist.Backend
	Logger     *zap.Logger
	Metrics    *metrics.Metrics

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Cache is a TTL and capacity bounded term-set cache. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	seq     uint64

	ttl     time.Duration
	max     int
	snap    *persist.Snapshot[map[string]Entry]
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a cache and restores any snapshot held by opts.Backend.
func New(ctx context.Context, opts Options) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		ttl:     opts.DefaultTTL,
		max:     opts.MaxEntries,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.max <= 0 {
		c.max = DefaultMaxEntries
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.Backend != nil {
		c.snap = persist.NewSnapshot[map[string]Entry](opts.Backend, persist.KindTermCache, c.logger)
		if stored, ok := c.snap.Load(ctx); ok {
			for key, e := range stored {
				e.Key = key
				c.entries[key] = e
				c.seq = max(c.seq, e.Seq)
			}
		}
	}
	return c
}

// Key returns the normalized, order-independent key for terms.
func Key(terms []string) string {
	return strings.Join(normalize(terms), keySeparator)
}

func normalize(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// queryText joins the caller's terms in their original order, dropping blanks.
func queryText(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Get returns the cached results for terms. An expired entry is removed
// and reported as absent.
func (c *Cache) Get(ctx context.Context, terms []string) ([]types.ResultSet, bool) {
	key := Key(terms)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.metrics.RecordLookup(metrics.CacheTerm, metrics.LookupMiss)
		return nil, false
	}
	if c.now().After(e.ExpiresAt) {
		delete(c.entries, key)
		c.metrics.RecordLookup(metrics.CacheTerm, metrics.LookupExpired)
		c.metrics.RecordEvictions(metrics.CacheTerm, 1)
		c.persistLocked(ctx)
		return nil, false
	}
	c.metrics.RecordLookup(metrics.CacheTerm, metrics.LookupHit)
	return slices.Clone(e.Results), true
}

// Put stores results for terms. A non-positive ttl uses the default TTL.
// Re-putting a key replaces its entry and resets its insertion time.
func (c *Cache) Put(ctx context.Context, terms []string, results []types.ResultSet, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	norm := normalize(terms)
	key := strings.Join(norm, keySeparator)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.seq++
	c.entries[key] = Entry{
		Key:       key,
		Query:     queryText(terms),
		Terms:     norm,
		Results:   slices.Clone(results),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Seq:       c.seq,
	}

	evicted := 0
	for len(c.entries) > c.max {
		delete(c.entries, c.oldestLocked())
		evicted++
	}
	if evicted > 0 {
		c.logger.Debug("term cache at capacity", zap.Int("evicted", evicted), zap.Int("max", c.max))
		c.metrics.RecordEvictions(metrics.CacheTerm, evicted)
	}
	c.persistLocked(ctx)
}

// Evict removes every expired entry and returns how many were removed.
func (c *Cache) Evict(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if now.After(e.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.metrics.RecordEvictions(metrics.CacheTerm, removed)
		c.persistLocked(ctx)
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns the stored entries, oldest first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return older(out[i], out[j]) })
	return out
}

// Clear drops every entry and the persisted snapshot.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Entry)
	return c.snap.Clear(ctx)
}

func (c *Cache) oldestLocked() string {
	var oldest Entry
	first := true
	for _, e := range c.entries {
		if first || older(e, oldest) {
			oldest = e
			first = false
		}
	}
	return oldest.Key
}

func older(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

func (c *Cache) persistLocked(ctx context.Context) {
	if err := c.snap.Save(ctx, c.entries); err != nil {
		c.logger.Warn("saving term cache", zap.Error(err))
	}
}
