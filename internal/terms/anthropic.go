// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package terms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pdiddy/research-hub/pkg/types"
)

// maxPromptRunes caps how much of a document is sent to the model.
const maxPromptRunes = 12000

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

var queryPromptTmpl = template.Must(template.New("queries").Parse(`You help a researcher find evidence about a document they uploaded. Read the document below and propose up to {{.MaxQueries}} search queries that would find authoritative sources on its main subjects.

Each query is a short list of search terms (single words or short phrases such as "blood sugar"). Prefer specific domain vocabulary over generic words. Do not repeat a query.

Respond with a JSON object of the form {"queries": [["term", "term"], ["term"]]}. Do not include any text outside the JSON object.

Document:
{{.Content}}
`))

// AnthropicExtractor asks a Claude model for search queries.
type AnthropicExtractor struct {
	client     anthropic.Client
	model      string
	maxRetries int
	maxQueries int
}

// NewAnthropicExtractor creates an extractor from cfg. Extra options are
// appended to the client options, which tests use to point at an
// httptest server.
func NewAnthropicExtractor(cfg types.AIConfig, opts ...option.RequestOption) *AnthropicExtractor {
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are handled by callWithRetry.
		option.WithMaxRetries(0),
	}
	options = append(options, opts...)

	e := &AnthropicExtractor{
		client:     anthropic.NewClient(options...),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		maxQueries: cfg.MaxQueries,
	}
	if e.model == "" {
		e.model = types.DefaultConfig().AI.Model
	}
	if e.maxRetries < 0 {
		e.maxRetries = 0
	}
	if e.maxQueries <= 0 {
		e.maxQueries = DefaultMaxQueries
	}
	return e
}

// Extract implements Extractor.
func (e *AnthropicExtractor) Extract(ctx context.Context, content string) ([]types.Query, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrNoTerms
	}
	if r := []rune(content); len(r) > maxPromptRunes {
		content = string(r[:maxPromptRunes])
	}

	prompt, err := renderPrompt(content, e.maxQueries)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	resp, err := callWithRetry(ctx, func(ctx context.Context) (queryResponse, error) {
		return e.ask(ctx, prompt)
	}, e.maxRetries)
	if err != nil {
		return nil, err
	}

	qs := normalize(resp.Queries, e.maxQueries)
	if len(qs) == 0 {
		return nil, ErrNoTerms
	}
	return qs, nil
}

// queryResponse is the JSON the model is asked to produce.
type queryResponse struct {
	Queries [][]string `json:"queries"`
}

func (e *AnthropicExtractor) ask(ctx context.Context, prompt string) (queryResponse, error) {
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return queryResponse{}, fmt.Errorf("calling Claude API: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		var resp queryResponse
		if err := json.Unmarshal([]byte(stripFences(block.Text)), &resp); err != nil {
			return queryResponse{}, fmt.Errorf("parsing AI response JSON: %w", err)
		}
		return resp, nil
	}
	return queryResponse{}, fmt.Errorf("no text content in Claude API response")
}

// stripFences removes a Markdown code fence around a JSON answer.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// callWithRetry calls fn with exponential backoff.
func callWithRetry(ctx context.Context, fn func(context.Context) (queryResponse, error), maxRetries int) (queryResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return queryResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return queryResponse{}, ctx.Err()
		}
		lastErr = err
	}
	return queryResponse{}, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

func renderPrompt(content string, maxQueries int) (string, error) {
	var buf bytes.Buffer
	err := queryPromptTmpl.Execute(&buf, struct {
		Content    string
		MaxQueries int
	}{content, maxQueries})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
