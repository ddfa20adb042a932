// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics holds the Prometheus collectors for fetches and caches.
//
// Collectors are registered on an injected Registerer so tests and the CLI
// each get an isolated registry. All recording methods are safe to call on a
// nil *Metrics, which lets components run without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for SourceFetches.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Cache labels.
const (
	CacheTerm   = "term"
	CacheEntity = "entity"
)

// Lookup result labels.
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupExpired = "expired"
)

// Metrics collects fetch and cache instrumentation.
type Metrics struct {
	// SourceFetches counts settled source tasks.
	// Labels: source, outcome (success|failure|timeout)
	SourceFetches *prometheus.CounterVec

	// FetchDuration measures one source task, retries included, in seconds.
	// Labels: source
	FetchDuration *prometheus.HistogramVec

	// FetchRetries counts retry attempts after transient errors.
	// Labels: source
	FetchRetries *prometheus.CounterVec

	// StrategyFallbacks counts batch attempts that fell through to individual fetches.
	// Labels: source
	StrategyFallbacks *prometheus.CounterVec

	// CacheLookups counts cache reads.
	// Labels: cache (term|entity), result (hit|miss|expired)
	CacheLookups *prometheus.CounterVec

	// CacheEvictions counts entries removed by capacity or TTL.
	// Labels: cache
	CacheEvictions *prometheus.CounterVec

	// Conversations tracks the number of stored conversations.
	Conversations prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SourceFetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_hub_source_fetches_total",
				Help: "Settled source fetch tasks by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "research_hub_fetch_duration_seconds",
				Help:    "Duration of source fetch tasks in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
			},
			[]string{"source"},
		),
		FetchRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_hub_fetch_retries_total",
				Help: "Retries of source fetch tasks after transient errors",
			},
			[]string{"source"},
		),
		StrategyFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_hub_strategy_fallbacks_total",
				Help: "Batch fetches that fell back to individual fetches",
			},
			[]string{"source"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_hub_cache_lookups_total",
				Help: "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
		CacheEvictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "research_hub_cache_evictions_total",
				Help: "Cache entries removed by capacity or expiry",
			},
			[]string{"cache"},
		),
		Conversations: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "research_hub_conversations",
				Help: "Stored conversations",
			},
		),
	}
}

// RecordFetch records one settled source task.
func (m *Metrics) RecordFetch(source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceFetches.WithLabelValues(source, outcome).Inc()
	m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordRetry counts one retry for source.
func (m *Metrics) RecordRetry(source string) {
	if m == nil {
		return
	}
	m.FetchRetries.WithLabelValues(source).Inc()
}

// RecordFallback counts one batch-to-individual fallback for source.
func (m *Metrics) RecordFallback(source string) {
	if m == nil {
		return
	}
	m.StrategyFallbacks.WithLabelValues(source).Inc()
}

// RecordLookup counts one cache read.
func (m *Metrics) RecordLookup(cache, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordEvictions counts n removed entries.
func (m *Metrics) RecordEvictions(cache string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CacheEvictions.WithLabelValues(cache).Add(float64(n))
}

// SetConversations sets the conversation gauge.
func (m *Metrics) SetConversations(n int) {
	if m == nil {
		return
	}
	m.Conversations.Set(float64(n))
}
