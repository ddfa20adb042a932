// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package research tracks the research lifecycle of individual entities
// such as uploaded documents.
//
// Each entity moves from pending to exactly one terminal state, completed
// or failed. A terminal record is never mutated; MarkPending starts a new
// run that replaces it. Records expire a fixed TTL after creation and read
// as absent afterwards.
package research

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/metrics"
	"github.com/pdiddy/research-hub/internal/persist"
	"github.com/pdiddy/research-hub/pkg/types"
)

// DefaultTTL is the record lifetime when Options.TTL is unset.
const DefaultTTL = 24 * time.Hour

var (
	// ErrTerminal is returned when Complete or MarkFailed targets a record
	// that already completed or failed.
	ErrTerminal = errors.New("research record is already terminal")

	// ErrEmptyID is returned for operations on an empty entity ID.
	ErrEmptyID = errors.New("entity ID is required")
)

// Options configures a Store.
type Options struct {
	TTL     time.Duration
	Backend persist.Backend
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Store holds one EntityResearchRecord per entity. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[string]types.EntityResearchRecord

	ttl     time.Duration
	snap    *persist.Snapshot[map[string]types.EntityResearchRecord]
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a store and restores any snapshot held by opts.Backend.
func New(ctx context.Context, opts Options) *Store {
	s := &Store{
		records: make(map[string]types.EntityResearchRecord),
		ttl:     opts.TTL,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTTL
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Backend != nil {
		s.snap = persist.NewSnapshot[map[string]types.EntityResearchRecord](opts.Backend, persist.KindEntityResearch, s.logger)
		if stored, ok := s.snap.Load(ctx); ok {
			for id, rec := range stored {
				if id != rec.EntityID {
					s.logger.Warn("dropping mismatched research record", zap.String("key", id), zap.String("entity", rec.EntityID))
					continue
				}
				s.records[id] = rec
			}
		}
	}
	return s
}

// MarkPending starts a research run for id. Any existing record, terminal
// or not, is replaced.
func (s *Store) MarkPending(ctx context.Context, id string, queries []types.Query) error {
	if id == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.records[id] = types.EntityResearchRecord{
		EntityID:  id,
		Queries:   slices.Clone(queries),
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.persistLocked(ctx)
	return nil
}

// Complete records the results of a run. A run with no records at all is
// stored as failed so readers never see an empty completion.
func (s *Store) Complete(ctx context.Context, id string, queries []types.Query, results []types.ResultSet) error {
	status := types.StatusCompleted
	if !hasRecords(results) {
		status = types.StatusFailed
		results = nil
	}
	return s.finish(ctx, id, queries, status, results)
}

// MarkFailed records a failed run. Like Complete it accepts an id with no
// live record, so a run that fails before MarkPending is still recorded.
func (s *Store) MarkFailed(ctx context.Context, id string, queries []types.Query) error {
	return s.finish(ctx, id, queries, types.StatusFailed, nil)
}

func (s *Store) finish(ctx context.Context, id string, queries []types.Query, status types.ResearchStatus, results []types.ResultSet) error {
	if id == "" {
		return ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.liveLocked(id, now)
	if ok && rec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, rec.Status)
	}
	if !ok {
		rec = types.EntityResearchRecord{EntityID: id, CreatedAt: now}
	}
	if queries != nil {
		rec.Queries = slices.Clone(queries)
	}
	rec.Status = status
	rec.Results = slices.Clone(results)
	rec.UpdatedAt = now
	s.records[id] = rec

	if status == types.StatusFailed {
		s.logger.Info("entity research failed", zap.String("entity", id), zap.Int("queries", len(rec.Queries)))
	}
	s.persistLocked(ctx)
	return nil
}

// Get returns the live record for id. Expired records are removed and
// reported as absent.
func (s *Store) Get(ctx context.Context, id string) (types.EntityResearchRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.liveLocked(id, s.now())
	if !ok {
		if _, stale := s.records[id]; stale {
			delete(s.records, id)
			s.metrics.RecordLookup(metrics.CacheEntity, metrics.LookupExpired)
			s.metrics.RecordEvictions(metrics.CacheEntity, 1)
			s.persistLocked(ctx)
		} else {
			s.metrics.RecordLookup(metrics.CacheEntity, metrics.LookupMiss)
		}
		return types.EntityResearchRecord{}, false
	}
	s.metrics.RecordLookup(metrics.CacheEntity, metrics.LookupHit)
	return rec, true
}

// GetMany returns the result sets of every live completed record among ids,
// flattened and de-duplicated by source name. When two entities cite the
// same source, the one listed first in ids wins. Empty sets are skipped and
// never claim a source.
func (s *Store) GetMany(ctx context.Context, ids []string) []types.ResultSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	seen := make(map[string]bool)
	var out []types.ResultSet
	for _, id := range ids {
		rec, ok := s.liveLocked(id, now)
		if !ok || rec.Status != types.StatusCompleted {
			continue
		}
		for _, rs := range rec.Results {
			if len(rs.Records) == 0 || seen[rs.Source] {
				continue
			}
			seen[rs.Source] = true
			out = append(out, rs)
		}
	}
	return out
}

// NeedsResearch reports whether id has no live record or its last run
// failed. Pending and completed records do not need research.
func (s *Store) NeedsResearch(ctx context.Context, id string) bool {
	rec, ok := s.Get(ctx, id)
	return !ok || rec.Status == types.StatusFailed
}

// Evict removes every expired record and returns how many were removed.
func (s *Store) Evict(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id := range s.records {
		if _, ok := s.liveLocked(id, now); !ok {
			delete(s.records, id)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.RecordEvictions(metrics.CacheEntity, removed)
		s.persistLocked(ctx)
	}
	return removed
}

// Clear drops every record and the persisted snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]types.EntityResearchRecord)
	return s.snap.Clear(ctx)
}

// Records returns every stored record ordered by entity ID, expired ones included.
func (s *Store) Records() []types.EntityResearchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.EntityResearchRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

func (s *Store) liveLocked(id string, now time.Time) (types.EntityResearchRecord, bool) {
	rec, ok := s.records[id]
	if !ok || now.After(rec.CreatedAt.Add(s.ttl)) {
		return types.EntityResearchRecord{}, false
	}
	return rec, true
}

func (s *Store) persistLocked(ctx context.Context) {
	if err := s.snap.Save(ctx, s.records); err != nil {
		s.logger.Warn("saving research store", zap.Error(err))
	}
}

func hasRecords(results []types.ResultSet) bool {
	for _, rs := range results {
		if len(rs.Records) > 0 {
			return true
		}
	}
	return false
}
