// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFetch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordFetch("pubmed", OutcomeSuccess, 200*time.Millisecond)
	m.RecordFetch("pubmed", OutcomeSuccess, 300*time.Millisecond)
	m.RecordFetch("arxiv", OutcomeTimeout, 15*time.Second)

	expected := `
		# HELP research_hub_source_fetches_total Settled source fetch tasks by source and outcome
		# TYPE research_hub_source_fetches_total counter
		research_hub_source_fetches_total{outcome="success",source="pubmed"} 2
		research_hub_source_fetches_total{outcome="timeout",source="arxiv"} 1
	`
	if err := testutil.CollectAndCompare(m.SourceFetches, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
	if count := testutil.CollectAndCount(m.FetchDuration); count != 2 {
		t.Errorf("expected 2 histogram series, got %d", count)
	}
}

func TestCacheCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordLookup(CacheTerm, LookupHit)
	m.RecordLookup(CacheTerm, LookupMiss)
	m.RecordLookup(CacheTerm, LookupHit)
	m.RecordEvictions(CacheTerm, 3)
	m.RecordEvictions(CacheTerm, 0)

	if got := testutil.ToFloat64(m.CacheLookups.WithLabelValues(CacheTerm, LookupHit)); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CacheEvictions.WithLabelValues(CacheTerm)); got != 3 {
		t.Errorf("evictions = %v, want 3", got)
	}
}

func TestRetriesAndFallbacks(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordRetry("openalex")
	m.RecordRetry("openalex")
	m.RecordFallback("browser")
	m.SetConversations(4)

	if got := testutil.ToFloat64(m.FetchRetries.WithLabelValues("openalex")); got != 2 {
		t.Errorf("retries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StrategyFallbacks.WithLabelValues("browser")); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Conversations); got != 4 {
		t.Errorf("conversations = %v, want 4", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordFetch("x", OutcomeFailure, time.Second)
	m.RecordRetry("x")
	m.RecordFallback("x")
	m.RecordLookup(CacheEntity, LookupMiss)
	m.RecordEvictions(CacheEntity, 1)
	m.SetConversations(1)
}
