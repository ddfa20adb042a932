// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/engine"
	"github.com/pdiddy/research-hub/internal/fetch"
	"github.com/pdiddy/research-hub/internal/memory"
	"github.com/pdiddy/research-hub/internal/metrics"
	"github.com/pdiddy/research-hub/internal/persist"
	"github.com/pdiddy/research-hub/internal/research"
	"github.com/pdiddy/research-hub/internal/score"
	"github.com/pdiddy/research-hub/internal/termcache"
	"github.com/pdiddy/research-hub/internal/terms"
	"github.com/pdiddy/research-hub/pkg/types"
)

// app holds the components one command invocation works with.
type app struct {
	cfg      types.Config
	backend  persist.Backend
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	terms    *termcache.Cache
	research *research.Store
	memory   *memory.Store
	engine   *engine.Engine

	metricsFile string
}

// newApp loads configuration and wires the stores and engine together.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	backend, err := persist.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	a := &app{cfg: cfg, backend: backend, registry: reg, metrics: m}
	a.metricsFile, _ = cmd.Flags().GetString("metrics-textfile")

	a.terms = termcache.New(ctx, termcache.Options{
		DefaultTTL: cfg.Cache.TTL,
		MaxEntries: cfg.Cache.MaxEntries,
		Backend:    backend,
		Logger:     logger.Named("termcache"),
		Metrics:    m,
	})
	a.research = research.New(ctx, research.Options{
		TTL:     cfg.Cache.EntityTTL,
		Backend: backend,
		Logger:  logger.Named("research"),
		Metrics: m,
	})
	a.memory = memory.New(ctx, memory.Options{
		Limits:   cfg.Memory,
		Backend:  backend,
		Logger:   logger.Named("memory"),
		Metrics:  m,
		Research: a.research,
	})

	sources, err := engine.BuildSources(cfg, logger.Named("fetch"))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	orch := fetch.NewOrchestrator(fetch.Options{
		Config:  cfg.Fetch,
		Scorer:  score.New(cfg.Scoring),
		Logger:  logger.Named("fetch"),
		Metrics: m,
	})

	a.engine, err = engine.New(engine.Options{
		Orchestrator: orch,
		Sources:      sources,
		TermCache:    a.terms,
		Research:     a.research,
		Extractor:    newExtractor(cfg),
		CacheTTL:     cfg.Cache.TTL,
		Logger:       logger.Named("engine"),
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return a, nil
}

// newExtractor prefers the model when an API key is configured and falls
// back to keyword extraction.
func newExtractor(cfg types.Config) terms.Extractor {
	keywords := terms.KeywordExtractor{MaxQueries: cfg.AI.MaxQueries}
	if cfg.AI.APIKey == "" {
		return keywords
	}
	return terms.Chain{
		Extractors: []terms.Extractor{terms.NewAnthropicExtractor(cfg.AI), keywords},
		Logger:     logger.Named("terms"),
	}
}

// Close writes the metrics textfile, if requested, and closes the backend.
func (a *app) Close() error {
	if a.metricsFile != "" {
		if err := prometheus.WriteToTextfile(a.metricsFile, a.registry); err != nil {
			logger.Warn("writing metrics textfile", zap.String("path", a.metricsFile), zap.Error(err))
		}
	}
	if err := a.backend.Close(); err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}
	return nil
}
