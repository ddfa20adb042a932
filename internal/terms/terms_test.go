// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package terms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-hub/pkg/types"
)

func TestMain(m *testing.M) {
	// Override backoff to avoid real sleeps in retry tests.
	backoffBase = time.Millisecond
	os.Exit(m.Run())
}

// claudeServer answers the Messages API. Each call pops the next reply;
// a reply that is an int is sent as that HTTP status.
func claudeServer(t *testing.T, replies ...any) (*httptest.Server, *atomic.Int32, *string) {
	t.Helper()
	var calls atomic.Int32
	var lastPrompt string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if json.Unmarshal(body, &req) == nil && len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
			lastPrompt = req.Messages[0].Content[0].Text
		}

		reply := replies[min(n, len(replies)-1)]
		if status, ok := reply.(int); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
			return
		}
		text, _ := json.Marshal(reply.(string))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"msg_1","type":"message","role":"assistant","model":"test-model",
			"content":[{"type":"text","text":%s}],"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":10}}`, text)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls, &lastPrompt
}

func testAI(retries int) types.AIConfig {
	return types.AIConfig{Model: "test-model", APIKey: "test-key", MaxRetries: retries, MaxQueries: 2}
}

func TestAnthropicExtractor(t *testing.T) {
	ts, calls, prompt := claudeServer(t,
		`{"queries": [["diabetes", "blood sugar"], ["Blood Sugar", "diabetes"], ["insulin"], ["hba1c"]]}`)

	e := NewAnthropicExtractor(testAI(0), option.WithBaseURL(ts.URL))
	qs, err := e.Extract(context.Background(), "A leaflet on managing diabetes and blood sugar.")
	require.NoError(t, err)

	// Repeats are dropped regardless of order and case, then capped.
	assert.Equal(t, []types.Query{
		types.NewQuery("diabetes", "blood sugar"),
		types.NewQuery("insulin"),
	}, qs)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, *prompt, "managing diabetes and blood sugar")
	assert.Contains(t, *prompt, "up to 2 search queries")
}

func TestAnthropicExtractorCodeFence(t *testing.T) {
	ts, _, _ := claudeServer(t, "```json\n{\"queries\": [[\"glucose\"]]}\n```")

	qs, err := NewAnthropicExtractor(testAI(0), option.WithBaseURL(ts.URL)).Extract(context.Background(), "glucose")
	require.NoError(t, err)
	assert.Equal(t, []types.Query{types.NewQuery("glucose")}, qs)
}

func TestAnthropicExtractorRetries(t *testing.T) {
	ts, calls, _ := claudeServer(t, http.StatusInternalServerError, "not json", `{"queries": [["retinopathy"]]}`)

	qs, err := NewAnthropicExtractor(testAI(3), option.WithBaseURL(ts.URL)).Extract(context.Background(), "eyes")
	require.NoError(t, err)
	assert.Equal(t, []types.Query{types.NewQuery("retinopathy")}, qs)
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnthropicExtractorGivesUp(t *testing.T) {
	ts, calls, _ := claudeServer(t, http.StatusServiceUnavailable)

	_, err := NewAnthropicExtractor(testAI(2), option.WithBaseURL(ts.URL)).Extract(context.Background(), "eyes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, int32(3), calls.Load())
}

func TestAnthropicExtractorEmpty(t *testing.T) {
	ts, calls, _ := claudeServer(t, `{"queries": [[" "], []]}`)
	e := NewAnthropicExtractor(testAI(0), option.WithBaseURL(ts.URL))

	_, err := e.Extract(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoTerms)
	assert.Equal(t, int32(0), calls.Load())

	_, err = e.Extract(context.Background(), "something")
	assert.ErrorIs(t, err, ErrNoTerms)
}

func TestKeywordExtractor(t *testing.T) {
	content := `Diabetes management depends on blood glucose monitoring. Glucose levels
	vary with diet; diabetes patients track glucose daily. Insulin therapy and diet
	changes help. The 2024 guidance on insulin dosing is new.`

	qs, err := KeywordExtractor{MaxQueries: 2}.Extract(context.Background(), content)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, []string{"glucose", "diabetes", "diet"}, qs[0].Terms)
	assert.Equal(t, "insulin", qs[1].Terms[0])

	for _, q := range qs {
		for _, term := range q.Terms {
			assert.False(t, stopWords[term], term)
			assert.NotEqual(t, "2024", term)
		}
	}
}

func TestKeywordExtractorDeterministic(t *testing.T) {
	content := strings.Repeat("alpha beta gamma delta epsilon zeta eta theta ", 3)
	a, err := KeywordExtractor{}.Extract(context.Background(), content)
	require.NoError(t, err)
	b, err := KeywordExtractor{}.Extract(context.Background(), content)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, a[0].Terms)
	assert.Len(t, a, DefaultMaxQueries)
}

func TestKeywordExtractorNothing(t *testing.T) {
	_, err := KeywordExtractor{}.Extract(context.Background(), "the and of 42 a")
	assert.ErrorIs(t, err, ErrNoTerms)
}

type stubExtractor struct {
	qs  []types.Query
	err error
}

func (s stubExtractor) Extract(context.Context, string) ([]types.Query, error) { return s.qs, s.err }

func TestChain(t *testing.T) {
	want := []types.Query{types.NewQuery("fallback")}

	qs, err := Chain{Extractors: []Extractor{
		stubExtractor{err: errors.New("model down")},
		stubExtractor{},
		stubExtractor{qs: want},
	}}.Extract(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, want, qs)

	_, err = Chain{Extractors: []Extractor{stubExtractor{err: errors.New("model down")}}}.Extract(context.Background(), "x")
	assert.ErrorContains(t, err, "model down")

	_, err = Chain{}.Extract(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoTerms)
}
