// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pdiddy/research-hub/pkg/types"
)

// arxivAPIBase is the arXiv query endpoint; tests point it at httptest.
var arxivAPIBase = "https://export.arxiv.org/api/query"

const arxivAbsBase = "https://arxiv.org/abs/"

// arxivVersion matches the version suffix of an arXiv identifier.
var arxivVersion = regexp.MustCompile(`v\d+$`)

// ArxivFetcher searches arXiv preprints. Targets are query strings.
type ArxivFetcher struct {
	api   *apiClient
	limit int
}

// NewArxivFetcher creates an arXiv fetcher returning at most maxResults
// entries per query.
func NewArxivFetcher(cfg types.HTTPConfig, maxResults int) *ArxivFetcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &ArxivFetcher{api: newAPIClient(cfg), limit: maxResults}
}

// Name returns the source identifier.
func (f *ArxivFetcher) Name() string { return "arxiv" }

// Fetch runs one all-fields query against the Atom API.
func (f *ArxivFetcher) Fetch(ctx context.Context, target string) ([]Document, error) {
	words := strings.Fields(target)
	if len(words) == 0 {
		return nil, malformed("empty arXiv query")
	}
	for i, w := range words {
		words[i] = url.QueryEscape(w)
	}

	// search_query is built by hand: arXiv wants the literal "all:" prefix
	// and "+" between words, which url.Values would escape.
	reqURL := fmt.Sprintf("%s?search_query=all:%s&start=0&max_results=%d&sortBy=relevance",
		arxivAPIBase, strings.Join(words, "+"), f.limit)

	body, err := f.api.get(ctx, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("arXiv query: %w", err)
	}

	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, malformed("decoding arXiv feed: %v", err)
	}

	docs := make([]Document, 0, len(feed.Entries))
	for i, e := range feed.Entries {
		if d, ok := e.document(i, len(feed.Entries)); ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Updated   string `xml:"updated"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	DOI      string `xml:"http://arxiv.org/schemas/atom doi"`
	Category struct {
		Term string `xml:"term,attr"`
	} `xml:"http://arxiv.org/schemas/atom primary_category"`
}

// document converts an entry; entries without a recognisable ID are dropped.
func (e atomEntry) document(pos, total int) (Document, bool) {
	id := extractArxivID(e.ID)
	if id == "" {
		return Document{}, false
	}

	d := Document{
		URL:      arxivAbsBase + id,
		Title:    strings.Join(strings.Fields(e.Title), " "),
		Domain:   "arxiv.org",
		Content:  strings.TrimSpace(e.Summary),
		Metadata: map[string]string{"arxiv_id": id, "position": positionScore(pos, total)},
	}
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			d.Authors = append(d.Authors, name)
		}
	}
	d.PublishedDate = parseDay(e.Published)
	if d.PublishedDate == nil {
		d.PublishedDate = parseDay(e.Updated)
	}
	if e.DOI != "" {
		d.Metadata["doi"] = strings.TrimSpace(e.DOI)
	}
	if e.Category.Term != "" {
		d.Metadata["category"] = e.Category.Term
	}
	return d, true
}

// extractArxivID returns the versionless identifier from an entry ID URL,
// e.g. "http://arxiv.org/abs/2301.07041v1" gives "2301.07041". Old-style
// identifiers keep their archive prefix ("hep-th/9901001").
func extractArxivID(idURL string) string {
	_, id, ok := strings.Cut(idURL, "/abs/")
	if !ok || id == "" {
		return ""
	}
	return arxivVersion.ReplaceAllString(id, "")
}
