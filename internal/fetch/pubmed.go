// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/research-hub/pkg/types"
)

// NCBI E-utilities endpoints. Declared as vars so tests can substitute an
// httptest server.
var (
	pubmedSearchBase  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"
	pubmedSummaryBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esummary.fcgi"
)

const pubmedArticleBase = "https://pubmed.ncbi.nlm.nih.gov/"

// PubMedFetcher searches PubMed through esearch and resolves hits with
// esummary. Targets are query strings. It also implements BatchFetcher by
// OR-ing several queries into one esearch call.
type PubMedFetcher struct {
	api        *apiClient
	apiKey     string
	maxResults int
}

// NewPubMedFetcher creates a PubMed fetcher. apiKey may be empty.
func NewPubMedFetcher(cfg types.HTTPConfig, apiKey string, maxResults int) *PubMedFetcher {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &PubMedFetcher{api: newAPIClient(cfg), apiKey: apiKey, maxResults: maxResults}
}

// Name returns the source identifier.
func (f *PubMedFetcher) Name() string { return "pubmed" }

// Fetch searches PubMed for one query.
func (f *PubMedFetcher) Fetch(ctx context.Context, target string) ([]Document, error) {
	term := strings.TrimSpace(target)
	if term == "" {
		return nil, fmt.Errorf("empty PubMed query")
	}
	return f.search(ctx, term)
}

// FetchBatch searches PubMed once for any of the given queries.
func (f *PubMedFetcher) FetchBatch(ctx context.Context, targets []string) ([]Document, error) {
	var parts []string
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, "("+t+")")
		}
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty PubMed batch")
	}
	return f.search(ctx, strings.Join(parts, " OR "))
}

func (f *PubMedFetcher) search(ctx context.Context, term string) ([]Document, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {term},
		"retmode": {"json"},
		"retmax":  {strconv.Itoa(f.maxResults)},
		"sort":    {"relevance"},
	}
	if f.apiKey != "" {
		params.Set("api_key", f.apiKey)
	}

	body, err := f.api.get(ctx, pubmedSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("PubMed esearch: %w", err)
	}

	var sr pubmedSearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, malformed("parsing PubMed esearch response: %v", err)
	}
	ids := sr.Result.IDList
	if len(ids) == 0 {
		return nil, nil
	}

	params = url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(ids, ",")},
		"retmode": {"json"},
	}
	if f.apiKey != "" {
		params.Set("api_key", f.apiKey)
	}
	body, err = f.api.get(ctx, pubmedSummaryBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("PubMed esummary: %w", err)
	}

	var sum pubmedSummaryResponse
	if err := json.Unmarshal(body, &sum); err != nil {
		return nil, malformed("parsing PubMed esummary response: %v", err)
	}

	docs := make([]Document, 0, len(ids))
	for i, id := range ids {
		raw, ok := sum.Result[id]
		if !ok {
			continue
		}
		var a pubmedArticle
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, malformed("parsing PubMed article %s: %v", id, err)
		}
		if a.Title == "" {
			continue
		}

		d := Document{
			URL:     pubmedArticleBase + id + "/",
			Title:   a.Title,
			Domain:  "pubmed.ncbi.nlm.nih.gov",
			Content: strings.TrimSpace(a.Title + " " + a.FullJournalName),
			Metadata: map[string]string{
				"pmid":     id,
				"journal":  a.FullJournalName,
				"position": positionScore(i, len(ids)),
			},
		}
		for _, au := range a.Authors {
			if au.Name != "" {
				d.Authors = append(d.Authors, au.Name)
			}
		}
		d.PublishedDate = parseDay(a.PubDate)
		if d.PublishedDate == nil && len(a.SortPubDate) >= 10 {
			d.PublishedDate = parseDay(a.SortPubDate[:10])
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// PubMed E-utilities JSON structures.
type pubmedSearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type pubmedSummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type pubmedArticle struct {
	UID             string         `json:"uid"`
	Title           string         `json:"title"`
	PubDate         string         `json:"pubdate"`
	SortPubDate     string         `json:"sortpubdate"`
	FullJournalName string         `json:"fulljournalname"`
	Authors         []pubmedAuthor `json:"authors"`
}

type pubmedAuthor struct {
	Name string `json:"name"`
}
