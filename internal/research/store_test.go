// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-hub/internal/persist"
	"github.com/pdiddy/research-hub/pkg/types"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return New(context.Background(), Options{Now: clock.now}), clock
}

var queries = []types.Query{types.NewQuery("metformin", "dosage")}

func set(source string, urls ...string) types.ResultSet {
	rs := types.ResultSet{Source: source}
	for _, u := range urls {
		rs.Records = append(rs.Records, types.SourceRecord{URL: u, Title: u})
	}
	return rs
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)

	_, ok := s.Get(ctx, "doc-1")
	assert.False(t, ok)

	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
	rec, ok := s.Get(ctx, "doc-1")
	require.True(t, ok)
	assert.Equal(t, types.StatusPending, rec.Status)
	assert.Equal(t, queries, rec.Queries)

	require.NoError(t, s.Complete(ctx, "doc-1", queries, []types.ResultSet{set("pubmed", "u1")}))
	rec, ok = s.Get(ctx, "doc-1")
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Len(t, rec.Results, 1)
}

func TestTerminalRecordsAreImmutable(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)

	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
	require.NoError(t, s.Complete(ctx, "doc-1", queries, []types.ResultSet{set("pubmed", "u1")}))

	assert.ErrorIs(t, s.MarkFailed(ctx, "doc-1", queries), ErrTerminal)
	assert.ErrorIs(t, s.Complete(ctx, "doc-1", queries, []types.ResultSet{set("arxiv", "u2")}), ErrTerminal)

	rec, _ := s.Get(ctx, "doc-1")
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, "pubmed", rec.Results[0].Source)
}

func TestCompleteWithEmptyResultsFails(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)

	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
	require.NoError(t, s.Complete(ctx, "doc-1", queries, nil))

	rec, ok := s.Get(ctx, "doc-1")
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.Empty(t, s.GetMany(ctx, []string{"doc-1"}))

	require.NoError(t, s.MarkPending(ctx, "doc-2", queries))
	require.NoError(t, s.Complete(ctx, "doc-2", queries, []types.ResultSet{{Source: "pubmed"}}))
	rec, _ = s.Get(ctx, "doc-2")
	assert.Equal(t, types.StatusFailed, rec.Status, "result sets without records count as empty")
}

func TestReResearchReplaces(t *testing.T) {
	ctx := context.Background()
	s, clock := testStore(t)

	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
	require.NoError(t, s.MarkFailed(ctx, "doc-1", queries))

	clock.advance(time.Hour)
	second := []types.Query{types.NewQuery("metformin", "side effects")}
	require.NoError(t, s.MarkPending(ctx, "doc-1", second))

	rec, ok := s.Get(ctx, "doc-1")
	require.True(t, ok)
	assert.Equal(t, types.StatusPending, rec.Status)
	assert.Equal(t, second, rec.Queries)
	assert.Equal(t, clock.t, rec.CreatedAt)
}

func TestGetManyDeduplicatesBySource(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)

	require.NoError(t, s.MarkPending(ctx, "a", queries))
	require.NoError(t, s.Complete(ctx, "a", queries, []types.ResultSet{set("pubmed", "a1"), set("openalex", "a2")}))
	require.NoError(t, s.MarkPending(ctx, "b", queries))
	require.NoError(t, s.Complete(ctx, "b", queries, []types.ResultSet{set("pubmed", "b1"), set("arxiv", "b2")}))
	require.NoError(t, s.MarkPending(ctx, "pending", queries))

	got := s.GetMany(ctx, []string{"a", "b", "pending", "missing"})
	require.Len(t, got, 3)

	bySource := map[string]types.ResultSet{}
	for _, rs := range got {
		bySource[rs.Source] = rs
	}
	assert.Equal(t, "a1", bySource["pubmed"].Records[0].URL, "first entity wins")
	assert.Contains(t, bySource, "openalex")
	assert.Contains(t, bySource, "arxiv")

	got = s.GetMany(ctx, []string{"b", "a"})
	require.Len(t, got, 3)
	assert.Equal(t, "b1", got[0].Records[0].URL)
}

func TestGetManySkipsEmptySets(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)

	require.NoError(t, s.MarkPending(ctx, "a", queries))
	require.NoError(t, s.Complete(ctx, "a", queries, []types.ResultSet{{Source: "pubmed"}, set("arxiv", "a1")}))
	require.NoError(t, s.MarkPending(ctx, "b", queries))
	require.NoError(t, s.Complete(ctx, "b", queries, []types.ResultSet{set("pubmed", "b1")}))

	got := s.GetMany(ctx, []string{"a", "b"})
	require.Len(t, got, 2)
	bySource := map[string]types.ResultSet{}
	for _, rs := range got {
		bySource[rs.Source] = rs
	}
	require.Contains(t, bySource, "pubmed")
	assert.Equal(t, "b1", bySource["pubmed"].Records[0].URL)
}

func TestFinishWithoutPendingRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)

	require.NoError(t, s.MarkFailed(ctx, "early", nil))
	rec, ok := s.Get(ctx, "early")
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.True(t, s.NeedsResearch(ctx, "early"))

	require.NoError(t, s.Complete(ctx, "direct", queries, []types.ResultSet{set("pubmed", "u1")}))
	rec, ok = s.Get(ctx, "direct")
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.Equal(t, queries, rec.Queries)
}

func TestTTL(t *testing.T) {
	ctx := context.Background()
	s, clock := testStore(t)

	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
	require.NoError(t, s.Complete(ctx, "doc-1", queries, []types.ResultSet{set("pubmed", "u1")}))

	clock.advance(DefaultTTL - time.Second)
	assert.Len(t, s.GetMany(ctx, []string{"doc-1"}), 1)
	assert.False(t, s.NeedsResearch(ctx, "doc-1"))

	clock.advance(2 * time.Second)
	assert.Empty(t, s.GetMany(ctx, []string{"doc-1"}))
	_, ok := s.Get(ctx, "doc-1")
	assert.False(t, ok)
	assert.True(t, s.NeedsResearch(ctx, "doc-1"))
	assert.Empty(t, s.Records(), "expired record removed on read")
}

func TestCompleteAfterExpiryStartsFresh(t *testing.T) {
	ctx := context.Background()
	s, clock := testStore(t)

	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
	require.NoError(t, s.MarkFailed(ctx, "doc-1", queries))
	clock.advance(DefaultTTL + time.Minute)

	require.NoError(t, s.Complete(ctx, "doc-1", queries, []types.ResultSet{set("pubmed", "u1")}))
	rec, ok := s.Get(ctx, "doc-1")
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, rec.Status)
}

func TestNeedsResearch(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)

	assert.True(t, s.NeedsResearch(ctx, "absent"))

	require.NoError(t, s.MarkPending(ctx, "p", queries))
	assert.False(t, s.NeedsResearch(ctx, "p"))

	require.NoError(t, s.MarkFailed(ctx, "p", queries))
	assert.True(t, s.NeedsResearch(ctx, "p"))
}

func TestEvict(t *testing.T) {
	ctx := context.Background()
	s, clock := testStore(t)

	require.NoError(t, s.MarkPending(ctx, "old", queries))
	clock.advance(DefaultTTL / 2)
	require.NoError(t, s.MarkPending(ctx, "new", queries))
	clock.advance(DefaultTTL/2 + time.Second)

	assert.Equal(t, 1, s.Evict(ctx))
	assert.Equal(t, 0, s.Evict(ctx))
	records := s.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].EntityID)
}

func TestEmptyID(t *testing.T) {
	ctx := context.Background()
	s, _ := testStore(t)
	assert.ErrorIs(t, s.MarkPending(ctx, "", queries), ErrEmptyID)
	assert.ErrorIs(t, s.Complete(ctx, "", queries, nil), ErrEmptyID)
	assert.ErrorIs(t, s.MarkFailed(ctx, "", queries), ErrEmptyID)
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	backend := persist.NewMemoryBackend()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	s := New(ctx, Options{Backend: backend, Now: clock.now})
	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
	require.NoError(t, s.Complete(ctx, "doc-1", queries, []types.ResultSet{set("pubmed", "u1")}))

	restored := New(ctx, Options{Backend: backend, Now: clock.now})
	rec, ok := restored.Get(ctx, "doc-1")
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, rec.Status)
	assert.ErrorIs(t, restored.MarkFailed(ctx, "doc-1", nil), ErrTerminal)
}

func TestCorruptSnapshotLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	backend := persist.NewMemoryBackend()
	require.NoError(t, backend.Save(ctx, string(persist.KindEntityResearch), []byte(`[1,2,3]`)))

	s := New(ctx, Options{Backend: backend})
	assert.Empty(t, s.Records())
	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	backend := persist.NewMemoryBackend()

	s := New(ctx, Options{Backend: backend})
	require.NoError(t, s.MarkPending(ctx, "doc-1", queries))
	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, s.Records())

	restored := New(ctx, Options{Backend: backend})
	assert.Empty(t, restored.Records())
}
