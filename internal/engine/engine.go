// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine ties the fetch orchestrator to the cache layers.
//
// A query is answered from the term cache when possible; otherwise every
// configured source is fetched concurrently, the scored result sets are
// cached, and the caller gets them along with a count of failed sources.
// Entity research runs a search per derived query and records the outcome
// in the entity research store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/fetch"
	"github.com/pdiddy/research-hub/internal/research"
	"github.com/pdiddy/research-hub/internal/termcache"
	"github.com/pdiddy/research-hub/internal/terms"
	"github.com/pdiddy/research-hub/pkg/types"
)

// ErrEmptyQuery is returned for a query with no searchable terms.
var ErrEmptyQuery = errors.New("empty query")

// FallbackSource names the result set returned when every source failed.
const FallbackSource = "fallback"

// fallbackSearchURL is where the "search directly" pointer sends the user.
var fallbackSearchURL = "https://pubmed.ncbi.nlm.nih.gov/?term="

// Outcome is the answer to one Search.
type Outcome struct {
	Query      types.Query
	ResultSets []types.ResultSet

	// CacheHit is true when ResultSets came from the term cache.
	CacheHit bool

	// Requested is the number of sources fetched; zero on a cache hit.
	Requested int

	// Failed lists sources that produced nothing.
	Failed []fetch.SourceFailure

	// Fallback is true when every source failed and ResultSets holds only
	// the uncached "search directly" pointer.
	Fallback bool
}

// Options configures an Engine.
type Options struct {
	Orchestrator *fetch.Orchestrator
	Sources      []fetch.SourceSpec
	TermCache    *termcache.Cache
	Research     *research.Store

	// Extractor derives queries for entity research. Defaults to a
	// KeywordExtractor.
	Extractor terms.Extractor

	// CacheTTL is passed to TermCache.Put; zero uses the cache default.
	CacheTTL time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// Engine answers queries and researches entities.
type Engine struct {
	orch      *fetch.Orchestrator
	sources   []fetch.SourceSpec
	cache     *termcache.Cache
	research  *research.Store
	extractor terms.Extractor
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an Engine. Orchestrator, TermCache, and Research are required.
func New(opts Options) (*Engine, error) {
	if opts.Orchestrator == nil || opts.TermCache == nil || opts.Research == nil {
		return nil, fmt.Errorf("engine: orchestrator, term cache, and research store are required")
	}
	e := &Engine{
		orch:      opts.Orchestrator,
		sources:   opts.Sources,
		cache:     opts.TermCache,
		research:  opts.Research,
		extractor: opts.Extractor,
		ttl:       opts.CacheTTL,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if e.extractor == nil {
		e.extractor = terms.KeywordExtractor{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Sources returns the configured source specs.
func (e *Engine) Sources() []fetch.SourceSpec { return e.sources }

// Search answers q from the term cache or, on a miss, by fetching every
// source. Non-empty results are cached. When every source fails the
// outcome carries a single fallback pointer record, which is not cached.
// A cancelled ctx yields ctx.Err() and leaves the cache untouched.
func (e *Engine) Search(ctx context.Context, q types.Query, progress fetch.ProgressFunc) (Outcome, error) {
	if q.IsEmpty() {
		return Outcome{}, ErrEmptyQuery
	}
	out := Outcome{Query: q}

	if sets, ok := e.cache.Get(ctx, q.Terms); ok {
		e.logger.Debug("term cache hit", zap.Strings("terms", q.Terms))
		out.ResultSets = sets
		out.CacheHit = true
		return out, nil
	}

	report, err := e.orch.FetchWithProgress(ctx, q, e.sources, progress)
	if err != nil {
		return Outcome{}, err
	}
	out.Requested = report.Requested
	out.Failed = report.Failures

	if len(report.ResultSets) == 0 {
		e.logger.Warn("all sources failed", zap.Strings("terms", q.Terms), zap.Int("requested", report.Requested))
		out.ResultSets = []types.ResultSet{e.fallbackSet(q)}
		out.Fallback = true
		return out, nil
	}

	out.ResultSets = report.ResultSets
	e.cache.Put(ctx, q.Terms, report.ResultSets, e.ttl)
	return out, nil
}

func (e *Engine) fallbackSet(q types.Query) types.ResultSet {
	link := fallbackSearchURL + url.QueryEscape(q.Text())
	return types.ResultSet{
		Source: FallbackSource,
		Query:  q,
		Records: []types.SourceRecord{{
			URL:     link,
			Title:   "Search directly: " + q.Text(),
			Domain:  "pubmed.ncbi.nlm.nih.gov",
			Excerpt: "No source could be reached. Follow the link to search for this topic directly.",
		}},
		CreatedAt: e.now(),
	}
}

// ResearchEntity derives queries from content and searches each one,
// recording the run in the research store. A live completed or pending
// record is returned as is. Research failures are reflected in the
// returned record's status; the error is non-nil only for invalid input
// or cancellation, in which case the run is recorded as failed.
func (e *Engine) ResearchEntity(ctx context.Context, entityID, content string) (types.EntityResearchRecord, error) {
	if entityID == "" {
		return types.EntityResearchRecord{}, research.ErrEmptyID
	}
	if !e.research.NeedsResearch(ctx, entityID) {
		rec, _ := e.research.Get(ctx, entityID)
		return rec, nil
	}

	queries, err := e.extractor.Extract(ctx, content)
	if err != nil {
		if ctx.Err() != nil {
			return e.fail(ctx, entityID, nil, ctx.Err())
		}
		e.logger.Warn("no queries for entity", zap.String("entity", entityID), zap.Error(err))
		return e.fail(ctx, entityID, nil, nil)
	}

	if err := e.research.MarkPending(ctx, entityID, queries); err != nil {
		return types.EntityResearchRecord{}, err
	}

	var sets []types.ResultSet
	for _, q := range queries {
		out, err := e.Search(ctx, q, nil)
		if err != nil {
			if ctx.Err() != nil {
				return e.fail(ctx, entityID, queries, ctx.Err())
			}
			e.logger.Warn("entity query failed", zap.String("entity", entityID), zap.Strings("terms", q.Terms), zap.Error(err))
			continue
		}
		if !out.Fallback {
			sets = append(sets, out.ResultSets...)
		}
	}

	if err := e.research.Complete(ctx, entityID, queries, sets); err != nil {
		return types.EntityResearchRecord{}, err
	}
	rec, _ := e.research.Get(ctx, entityID)
	return rec, nil
}

// fail records a failed run. Persistence ignores ctx cancellation so an
// interrupted run does not stay pending.
func (e *Engine) fail(ctx context.Context, entityID string, queries []types.Query, cause error) (types.EntityResearchRecord, error) {
	ctx = context.WithoutCancel(ctx)
	if err := e.research.MarkFailed(ctx, entityID, queries); err != nil && !errors.Is(err, research.ErrTerminal) {
		return types.EntityResearchRecord{}, err
	}
	rec, _ := e.research.Get(ctx, entityID)
	return rec, cause
}

// EntityContext returns the completed research for ids, one result set
// per source, for building a chat context.
func (e *Engine) EntityContext(ctx context.Context, ids []string) []types.ResultSet {
	return e.research.GetMany(ctx, ids)
}
