// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch retrieves evidence from content sources and orchestrates
// concurrent, fault-tolerant fetches across many of them.
//
// A Fetcher turns one target (a URL or a query string, depending on the
// source) into documents. The Orchestrator runs one task per source with
// bounded concurrency, a per-task timeout, batch-to-individual fallback and
// retries for transient errors, then scores the documents into result sets.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/pdiddy/research-hub/internal/httputil"
	"github.com/pdiddy/research-hub/pkg/types"
)

// Document is one piece of fetched content before scoring.
type Document struct {
	URL           string
	Title         string
	Domain        string
	Content       string
	PublishedDate *time.Time
	Authors       []string
	Metadata      map[string]string
}

// Fetcher retrieves documents for a single target.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, target string) ([]Document, error)
}

// BatchFetcher retrieves documents for several targets in one call.
type BatchFetcher interface {
	Fetcher
	FetchBatch(ctx context.Context, targets []string) ([]Document, error)
}

// excerptMarker ends an excerpt that was cut at the limit.
const excerptMarker = " [...]"

func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + excerptMarker
}

// domainOf returns the host of rawURL without a "www." prefix.
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// toRecord converts a document into an unscored SourceRecord.
func toRecord(d Document, fallbackDomain string, limit int) types.SourceRecord {
	domain := d.Domain
	if domain == "" {
		domain = domainOf(d.URL)
	}
	if domain == "" {
		domain = fallbackDomain
	}
	return types.SourceRecord{
		URL:           d.URL,
		Title:         strings.TrimSpace(d.Title),
		Domain:        domain,
		Excerpt:       excerpt(d.Content, limit),
		PublishedDate: d.PublishedDate,
		Authors:       d.Authors,
	}
}

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// apiClient is the HTTP plumbing shared by the API-backed fetchers:
// client-side rate limiting, retry on 429/5xx, and error classification.
type apiClient struct {
	client     *http.Client
	limiter    *rate.Limiter
	userAgent  string
	maxRetries int
}

func newAPIClient(cfg types.HTTPConfig) *apiClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &apiClient{
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
	}
}

// get performs a rate-limited GET and returns the body of a 200 response.
func (c *apiClient) get(ctx context.Context, reqURL string, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := httputil.Do(ctx, c.client, req, httputil.Policy{MaxRetries: c.maxRetries})
	if err != nil {
		if Classify(err) == ErrTransient {
			return nil, fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transient("reading body: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case httputil.Retryable(resp.StatusCode):
		return nil, transient("HTTP %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotImplemented:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnsupported, resp.StatusCode)
	default:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
}

// positionScore reproduces a source's own ranking as metadata: the first
// hit scores 1.0 and the last 0.1.
func positionScore(i, total int) string {
	if total <= 1 {
		return "1.00"
	}
	return fmt.Sprintf("%.2f", 1.0-float64(i)/float64(total-1)*0.9)
}

func parseDay(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006 Jan 2", "2006 Jan", "2006/01/02", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
