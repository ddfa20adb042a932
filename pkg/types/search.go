// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for research-hub: queries,
// fetched evidence, the three cache payloads, and configuration.
package types

import (
	"strings"
	"time"
)

// Query is the set of search terms a research run is issued for. Term order
// carries no meaning for caching; see termcache.Key.
type Query struct {
	// Terms are the search terms as entered or derived from a document.
	Terms []string `json:"terms" yaml:"terms"`
}

// NewQuery builds a Query from terms, dropping blank entries.
func NewQuery(terms ...string) Query {
	var q Query
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			q.Terms = append(q.Terms, t)
		}
	}
	return q
}

// Text returns the terms joined by spaces, suitable for a search API.
func (q Query) Text() string {
	return strings.Join(q.Terms, " ")
}

// IsEmpty reports whether the query contains no searchable terms.
func (q Query) IsEmpty() bool {
	for _, t := range q.Terms {
		if strings.TrimSpace(t) != "" {
			return false
		}
	}
	return true
}

// SourceRecord is one fetched unit of evidence with its scores.
type SourceRecord struct {
	// URL identifies the record; records in a ResultSet are unique by URL.
	URL string `json:"url" yaml:"url"`

	// Title is the page or article title.
	Title string `json:"title" yaml:"title"`

	// Domain is the host the record was served from (e.g. "www.nih.gov").
	Domain string `json:"domain" yaml:"domain"`

	// Excerpt is the bounded content excerpt used for scoring and context.
	Excerpt string `json:"content_excerpt" yaml:"content_excerpt"`

	// PublishedDate is the publication date when the source exposes one.
	PublishedDate *time.Time `json:"published_date,omitempty" yaml:"published_date,omitempty"`

	// Authors lists attribution metadata found on the record.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// RelevanceScore is in [0,1]: query-term coverage of the content.
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`

	// FreshnessScore is in [0,1]: a step function of the record's age.
	FreshnessScore float64 `json:"freshness_score" yaml:"freshness_score"`

	// CredibilityScore is in [0,1]: a domain prior plus an attribution bonus.
	CredibilityScore float64 `json:"credibility_score" yaml:"credibility_score"`
}

// ResultSet is one source's deduplicated, scored records for a query.
type ResultSet struct {
	// Source names the source that produced the records (e.g. "pubmed").
	Source string `json:"source" yaml:"source"`

	// Query is the query the records were fetched for.
	Query Query `json:"query" yaml:"query"`

	// Records are in fetch order.
	Records []SourceRecord `json:"records" yaml:"records"`

	// CreatedAt is when the set was assembled.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Add appends r unless a record with the same URL is already present.
// It reports whether the record was added.
func (rs *ResultSet) Add(r SourceRecord) bool {
	for _, existing := range rs.Records {
		if existing.URL == r.URL {
			return false
		}
	}
	rs.Records = append(rs.Records, r)
	return true
}
