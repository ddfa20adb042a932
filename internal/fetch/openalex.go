// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/research-hub/pkg/types"
)

// openAlexSearchBase is the works endpoint; tests point it at httptest.
var openAlexSearchBase = "https://api.openalex.org/works"

// openAlexMaxPerPage is the largest page OpenAlex serves.
const openAlexMaxPerPage = 200

// OpenAlexFetcher searches scholarly works in OpenAlex. Targets are query
// strings.
type OpenAlexFetcher struct {
	api    *apiClient
	mailto string
	limit  int
}

// NewOpenAlexFetcher creates an OpenAlex fetcher. A non-empty email joins
// the polite pool.
func NewOpenAlexFetcher(cfg types.HTTPConfig, email string, maxResults int) *OpenAlexFetcher {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &OpenAlexFetcher{api: newAPIClient(cfg), mailto: email, limit: min(maxResults, openAlexMaxPerPage)}
}

// Name returns the source identifier.
func (f *OpenAlexFetcher) Name() string { return "openalex" }

// Fetch searches works matching target.
func (f *OpenAlexFetcher) Fetch(ctx context.Context, target string) ([]Document, error) {
	q := strings.TrimSpace(target)
	if q == "" {
		return nil, malformed("empty OpenAlex query")
	}

	params := url.Values{}
	params.Set("search", q)
	params.Set("per_page", strconv.Itoa(f.limit))
	if f.mailto != "" {
		params.Set("mailto", f.mailto)
	}

	body, err := f.api.get(ctx, openAlexSearchBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex search: %w", err)
	}

	var page struct {
		Results []openAlexWork `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, malformed("decoding OpenAlex response: %v", err)
	}

	docs := make([]Document, 0, len(page.Results))
	for i, w := range page.Results {
		if d, ok := w.document(i, len(page.Results)); ok {
			docs = append(docs, d)
		}
	}
	return docs, nil
}

type openAlexWork struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	DOI             string `json:"doi"`
	PublicationDate string `json:"publication_date"`
	PublicationYear int    `json:"publication_year"`
	CitedByCount    int    `json:"cited_by_count"`
	Authorships     []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation *struct {
		Source *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	OpenAccess struct {
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// document converts a work. The link is the DOI when there is one, then the
// open-access copy, then the OpenAlex record.
func (w openAlexWork) document(pos, total int) (Document, bool) {
	link := w.ID
	switch {
	case w.DOI != "":
		link = w.DOI
	case w.OpenAccess.OAURL != "":
		link = w.OpenAccess.OAURL
	}
	if link == "" {
		return Document{}, false
	}

	d := Document{
		URL:     link,
		Title:   w.Title,
		Content: reconstructAbstract(w.AbstractInvertedIndex),
		Metadata: map[string]string{
			"openalex_id": w.ID,
			"position":    positionScore(pos, total),
			"cited_by":    strconv.Itoa(w.CitedByCount),
		},
	}
	if d.Content == "" {
		d.Content = w.Title
	}
	if w.DOI != "" {
		d.Metadata["doi"] = strings.TrimPrefix(w.DOI, "https://doi.org/")
	}
	if loc := w.PrimaryLocation; loc != nil && loc.Source != nil && loc.Source.DisplayName != "" {
		d.Metadata["venue"] = loc.Source.DisplayName
	}
	for _, a := range w.Authorships {
		if name := a.Author.DisplayName; name != "" {
			d.Authors = append(d.Authors, name)
		}
	}

	d.PublishedDate = parseDay(w.PublicationDate)
	if d.PublishedDate == nil && w.PublicationYear > 0 {
		t := time.Date(w.PublicationYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		d.PublishedDate = &t
	}
	return d, true
}

// reconstructAbstract rebuilds text from an inverted index, which maps each
// word to the positions it occupies. Positions never filled are skipped.
func reconstructAbstract(index map[string][]int) string {
	size := 0
	for _, positions := range index {
		for _, p := range positions {
			size = max(size, p+1)
		}
	}
	if size == 0 {
		return ""
	}

	slots := make([]string, size)
	for word, positions := range index {
		for _, p := range positions {
			if p >= 0 {
				slots[p] = word
			}
		}
	}
	words := slots[:0]
	for _, w := range slots {
		if w != "" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}
