// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-hub/internal/metrics"
	"github.com/pdiddy/research-hub/internal/score"
	"github.com/pdiddy/research-hub/pkg/types"
)

// Orchestrator defaults, used when the matching FetchConfig field is zero.
const (
	DefaultConcurrency    = 4
	DefaultTaskTimeout    = 15 * time.Second
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultExcerptLimit   = 4000
	DefaultMaxResults     = 10
)

// QueryPlaceholder in a target is replaced by the URL-escaped query text.
const QueryPlaceholder = "{query}"

const tracerName = "github.com/pdiddy/research-hub/internal/fetch"

// SourceSpec binds a named source to the fetcher that serves it.
type SourceSpec struct {
	// Name labels the ResultSet and the metrics for this source.
	Name string

	// Domain is used for records whose URL carries no host.
	Domain string

	// Targets are URLs or URL templates. Empty means the query text itself.
	Targets []string

	Fetcher Fetcher
}

// SourceFailure records why one source produced no result set.
type SourceFailure struct {
	Source  string
	Err     error
	Timeout bool
}

// Report is the outcome of one orchestrated fetch.
type Report struct {
	// ResultSets holds one set per successful source, in SourceSpec order.
	ResultSets []types.ResultSet

	// Requested is the number of sources attempted.
	Requested int

	// Failures lists the sources that produced nothing, in SourceSpec order.
	Failures []SourceFailure
}

// AllFailed reports whether every requested source failed.
func (r Report) AllFailed() bool {
	return r.Requested > 0 && len(r.ResultSets) == 0
}

// Progress describes one settled source. Exactly one of Result and Err is set.
type Progress struct {
	Source    string
	Result    *types.ResultSet
	Err       error
	Completed int
	Total     int
}

// ProgressFunc observes sources as they settle. Calls are serialized.
type ProgressFunc func(Progress)

// Options configures an Orchestrator.
type Options struct {
	Config  types.FetchConfig
	Scorer  *score.Scorer
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Tracer defaults to the global provider's tracer for this package.
	Tracer trace.Tracer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator fetches many sources concurrently and tolerates partial
// failure: a failed source is reported, never fatal to the others.
type Orchestrator struct {
	cfg     types.FetchConfig
	scorer  *score.Scorer
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewOrchestrator creates an orchestrator, filling zero settings with defaults.
func NewOrchestrator(opts Options) *Orchestrator {
	cfg := opts.Config
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.ExcerptLimit <= 0 {
		cfg.ExcerptLimit = DefaultExcerptLimit
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}

	o := &Orchestrator{
		cfg:     cfg,
		scorer:  opts.Scorer,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		now:     opts.Now,
	}
	if o.scorer == nil {
		o.scorer = score.New(types.ScoringConfig{})
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Fetch runs every source for q and waits for all of them to settle.
func (o *Orchestrator) Fetch(ctx context.Context, q types.Query, specs []SourceSpec) (Report, error) {
	return o.FetchWithProgress(ctx, q, specs, nil)
}

// taskResult is what one source task hands to the collector.
type taskResult struct {
	index   int
	set     *types.ResultSet
	err     error
	timeout bool
}

// FetchWithProgress is Fetch with a callback invoked as each source settles.
//
// If ctx is cancelled before every source settles, FetchWithProgress returns
// ctx.Err() at once; results gathered so far are discarded and in-flight
// tasks are left to observe the cancellation on their own.
func (o *Orchestrator) FetchWithProgress(ctx context.Context, q types.Query, specs []SourceSpec, progress ProgressFunc) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if q.IsEmpty() {
		return Report{}, fmt.Errorf("empty query")
	}

	report := Report{Requested: len(specs)}
	if len(specs) == 0 {
		return report, nil
	}

	// Buffered so finished tasks never block on a collector that has
	// already returned.
	results := make(chan taskResult, len(specs))

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	go func() {
		for i, spec := range specs {
			g.Go(func() error {
				results <- o.runTask(ctx, i, q, spec)
				return nil
			})
		}
	}()

	sets := make([]*types.ResultSet, len(specs))
	failures := make([]*SourceFailure, len(specs))
	for completed := 1; completed <= len(specs); completed++ {
		var r taskResult
		select {
		case <-ctx.Done():
			return Report{}, ctx.Err()
		case r = <-results:
		}

		name := specs[r.index].Name
		if r.err != nil {
			failures[r.index] = &SourceFailure{Source: name, Err: r.err, Timeout: r.timeout}
		} else {
			sets[r.index] = r.set
		}
		if progress != nil {
			progress(Progress{Source: name, Result: r.set, Err: r.err, Completed: completed, Total: len(specs)})
		}
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	for i := range specs {
		if sets[i] != nil {
			report.ResultSets = append(report.ResultSets, *sets[i])
		}
		if failures[i] != nil {
			report.Failures = append(report.Failures, *failures[i])
		}
	}
	return report, nil
}

// runTask fetches one source under its own deadline. On expiry the fetch
// goroutine is abandoned and the source counts as failed.
func (o *Orchestrator) runTask(ctx context.Context, index int, q types.Query, spec SourceSpec) taskResult {
	res := taskResult{index: index}
	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	ctx, span := o.tracer.Start(ctx, "fetch.source",
		trace.WithAttributes(attribute.String("source", spec.Name)))
	defer span.End()

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()

	type fetched struct {
		docs []Document
		err  error
	}
	done := make(chan fetched, 1)
	go func() {
		docs, err := o.fetchWithRetry(tctx, spec, expandTargets(spec.Targets, q))
		done <- fetched{docs, err}
	}()

	var docs []Document
	select {
	case f := <-done:
		docs, res.err = f.docs, f.err
	case <-tctx.Done():
		res.err = tctx.Err()
	}

	outcome := metrics.OutcomeSuccess
	if res.err == nil {
		rs, err := o.buildResultSet(q, spec, docs)
		if err != nil {
			res.err = err
		} else {
			res.set = rs
		}
	}
	if res.err != nil {
		outcome = metrics.OutcomeFailure
		if errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			res.timeout = true
			res.err = fmt.Errorf("timed out after %s: %w", o.cfg.TaskTimeout, res.err)
			outcome = metrics.OutcomeTimeout
		}
		span.RecordError(res.err)
		span.SetStatus(codes.Error, res.err.Error())
		if ctx.Err() == nil {
			o.logger.Warn("source failed", zap.String("source", spec.Name), zap.Error(res.err))
		}
	} else {
		span.SetAttributes(attribute.Int("records", len(res.set.Records)))
		o.logger.Debug("source fetched", zap.String("source", spec.Name),
			zap.Int("records", len(res.set.Records)), zap.Duration("elapsed", time.Since(start)))
	}
	o.metrics.RecordFetch(spec.Name, outcome, time.Since(start))
	return res
}

// fetchWithRetry runs the strategy plan and repeats it with exponential
// backoff while the error is transient.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, spec SourceSpec, targets []string) ([]Document, error) {
	if spec.Fetcher == nil {
		return nil, fmt.Errorf("%w: source %q has no fetcher", ErrUnsupported, spec.Name)
	}

	delay := o.cfg.RetryBaseDelay
	for attempt := 1; ; attempt++ {
		docs, err := o.runPlan(ctx, spec, targets)
		if err == nil {
			return docs, nil
		}
		if attempt >= o.cfg.MaxAttempts || !IsTransient(err) || ctx.Err() != nil {
			return nil, err
		}

		o.metrics.RecordRetry(spec.Name)
		o.logger.Debug("retrying source", zap.String("source", spec.Name),
			zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// runPlan tries each strategy in turn and returns the first success.
func (o *Orchestrator) runPlan(ctx context.Context, spec SourceSpec, targets []string) ([]Document, error) {
	strategies := plan(spec.Fetcher, targets)
	var err error
	for i, s := range strategies {
		var docs []Document
		docs, err = s.Run(ctx, spec.Fetcher, targets)
		if err == nil {
			return docs, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if i < len(strategies)-1 {
			o.metrics.RecordFallback(spec.Name)
			o.logger.Debug("strategy failed, falling back", zap.String("source", spec.Name),
				zap.String("strategy", s.Name()), zap.Error(err))
		}
	}
	return nil, err
}

// buildResultSet converts, deduplicates, and scores docs.
func (o *Orchestrator) buildResultSet(q types.Query, spec SourceSpec, docs []Document) (*types.ResultSet, error) {
	now := o.now()
	rs := &types.ResultSet{Source: spec.Name, Query: q, CreatedAt: now}
	for _, d := range docs {
		if len(rs.Records) >= o.cfg.MaxResults {
			break
		}
		if d.URL == "" {
			continue
		}
		rs.Add(o.scorer.Score(toRecord(d, spec.Domain, o.cfg.ExcerptLimit), q, now))
	}
	if len(rs.Records) == 0 {
		return nil, malformed("%s returned no usable records", spec.Name)
	}
	return rs, nil
}

// expandTargets substitutes the query into each target template. URL
// templates get the query escaped; query-string templates for API sources
// get it verbatim, since those fetchers encode their own parameters.
func expandTargets(targets []string, q types.Query) []string {
	if len(targets) == 0 {
		return []string{q.Text()}
	}
	raw := q.Text()
	escaped := url.QueryEscape(raw)
	out := make([]string, len(targets))
	for i, t := range targets {
		sub := raw
		if isURLTemplate(t) {
			sub = escaped
		}
		out[i] = strings.ReplaceAll(t, QueryPlaceholder, sub)
	}
	return out
}

func isURLTemplate(t string) bool {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://")
}
