// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/research-hub/pkg/types"
)

// semanticAPIBase is the graph paper search endpoint; tests point it at httptest.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const (
	semanticFields    = "title,abstract,authors,externalIds,year,publicationDate,url,tldr,venue"
	semanticPaperBase = "https://www.semanticscholar.org/paper/"
)

// SemanticScholarFetcher searches the Semantic Scholar graph. Targets are
// query strings.
type SemanticScholarFetcher struct {
	api    *apiClient
	apiKey string
	limit  int
}

// NewSemanticScholarFetcher creates a Semantic Scholar fetcher. The API key
// is optional; without one requests share the public rate limit.
func NewSemanticScholarFetcher(cfg types.HTTPConfig, apiKey string, maxResults int) *SemanticScholarFetcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &SemanticScholarFetcher{api: newAPIClient(cfg), apiKey: apiKey, limit: maxResults}
}

// Name returns the source identifier.
func (f *SemanticScholarFetcher) Name() string { return "semantic_scholar" }

// Fetch searches papers matching target.
func (f *SemanticScholarFetcher) Fetch(ctx context.Context, target string) ([]Document, error) {
	q := strings.TrimSpace(target)
	if q == "" {
		return nil, malformed("empty Semantic Scholar query")
	}

	params := url.Values{}
	params.Set("query", q)
	params.Set("limit", strconv.Itoa(f.limit))
	params.Set("fields", semanticFields)

	header := http.Header{}
	if f.apiKey != "" {
		header.Set("x-api-key", f.apiKey)
	}

	body, err := f.api.get(ctx, semanticAPIBase+"?"+params.Encode(), header)
	if err != nil {
		return nil, fmt.Errorf("Semantic Scholar search: %w", err)
	}

	var page struct {
		Data []semanticPaper `json:"data"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, malformed("decoding Semantic Scholar response: %v", err)
	}

	docs := make([]Document, 0, len(page.Data))
	for i, p := range page.Data {
		if d, ok := p.document(i, len(page.Data)); ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

type semanticPaper struct {
	PaperID         string `json:"paperId"`
	URL             string `json:"url"`
	Title           string `json:"title"`
	Abstract        string `json:"abstract"`
	Venue           string `json:"venue"`
	Year            int    `json:"year"`
	PublicationDate string `json:"publicationDate"`
	Authors         []struct {
		Name string `json:"name"`
	} `json:"authors"`
	ExternalIDs map[string]any `json:"externalIds"`
	TLDR        *struct {
		Text string `json:"text"`
	} `json:"tldr"`
}

// externalID reads an identifier that the API may send as a string or a number.
func (p semanticPaper) externalID(key string) string {
	switch v := p.ExternalIDs[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// document converts a paper. Without an abstract the TLDR summary is used.
func (p semanticPaper) document(pos, total int) (Document, bool) {
	link := p.URL
	if link == "" && p.PaperID != "" {
		link = semanticPaperBase + p.PaperID
	}
	if link == "" {
		return Document{}, false
	}

	d := Document{
		URL:      link,
		Title:    p.Title,
		Content:  p.Abstract,
		Metadata: map[string]string{"paper_id": p.PaperID, "position": positionScore(pos, total)},
	}
	if d.Content == "" && p.TLDR != nil {
		d.Content = p.TLDR.Text
	}
	for _, a := range p.Authors {
		d.Authors = append(d.Authors, a.Name)
	}

	d.PublishedDate = parseDay(p.PublicationDate)
	if d.PublishedDate == nil && p.Year > 0 {
		t := time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		d.PublishedDate = &t
	}

	for key, meta := range map[string]string{"DOI": "doi", "PubMed": "pmid", "ArXiv": "arxiv_id"} {
		if v := p.externalID(key); v != "" {
			d.Metadata[meta] = v
		}
	}
	if p.Venue != "" {
		d.Metadata["venue"] = p.Venue
	}
	return d, true
}
