// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package score computes relevance, freshness, and credibility scores for
// fetched records and ranks them for presentation.
//
// All functions are pure: given the same record, query, and now they return
// the same scores.
package score

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/research-hub/pkg/types"
)

// Presentation weights for Combined.
const (
	relevanceWeight   = 0.6
	freshnessWeight   = 0.3
	credibilityWeight = 0.1

	titleBoost       = 0.3
	attributionBonus = 0.1
)

// Credibility priors.
const (
	highCredibility    = 0.9
	mediumCredibility  = 0.7
	defaultCredibility = 0.5
	neutralFreshness   = 0.5
)

// defaultHigh lists domains treated as high-credibility evidence.
var defaultHigh = []string{
	"nih.gov",
	"ncbi.nlm.nih.gov",
	"pubmed.ncbi.nlm.nih.gov",
	"cdc.gov",
	"fda.gov",
	"who.int",
	"cochranelibrary.com",
	"nejm.org",
	"thelancet.com",
	"bmj.com",
	"jamanetwork.com",
	"nature.com",
	"science.org",
	"cell.com",
	"mayoclinic.org",
	"openalex.org",
	"semanticscholar.org",
	"arxiv.org",
}

// defaultMedium lists domains treated as medium-credibility evidence.
var defaultMedium = []string{
	"clevelandclinic.org",
	"hopkinsmedicine.org",
	"medlineplus.gov",
	"webmd.com",
	"healthline.com",
	"medicalnewstoday.com",
	"wikipedia.org",
	"sciencedaily.com",
	"frontiersin.org",
	"plos.org",
	"mdpi.com",
}

// Scorer holds the credibility domain lists. The zero value is not usable;
// construct with New.
type Scorer struct {
	high   []string
	medium []string
}

// New returns a Scorer. Empty lists fall back to the built-in defaults.
func New(cfg types.ScoringConfig) *Scorer {
	s := &Scorer{high: defaultHigh, medium: defaultMedium}
	if len(cfg.HighCredibility) > 0 {
		s.high = normalizeDomains(cfg.HighCredibility)
	}
	if len(cfg.MediumCredibility) > 0 {
		s.medium = normalizeDomains(cfg.MediumCredibility)
	}
	return s
}

// Score returns r with its three score fields filled in.
func (s *Scorer) Score(r types.SourceRecord, q types.Query, now time.Time) types.SourceRecord {
	r.RelevanceScore = Relevance(r, q)
	r.FreshnessScore = Freshness(r.PublishedDate, now)
	r.CredibilityScore = s.Credibility(r.Domain, len(r.Authors) > 0)
	return r
}

// Relevance is the fraction of query terms found in the record's content,
// boosted by the fraction found in its title, capped at 1.
func Relevance(r types.SourceRecord, q types.Query) float64 {
	terms := lowerTerms(q)
	if len(terms) == 0 {
		return 0
	}
	title := strings.ToLower(r.Title)
	content := title + " " + strings.ToLower(r.Excerpt)

	var inContent, inTitle int
	for _, t := range terms {
		if strings.Contains(content, t) {
			inContent++
		}
		if strings.Contains(title, t) {
			inTitle++
		}
	}
	n := float64(len(terms))
	return math.Min(1, float64(inContent)/n+float64(inTitle)/n*titleBoost)
}

// Freshness maps the age of a record to a step score. A missing date scores
// a neutral 0.5.
func Freshness(published *time.Time, now time.Time) float64 {
	if published == nil || published.IsZero() {
		return neutralFreshness
	}
	days := now.Sub(*published).Hours() / 24
	switch {
	case days < 1:
		return 1.0
	case days < 7:
		return 0.9
	case days < 30:
		return 0.7
	case days < 90:
		return 0.5
	default:
		return 0.3
	}
}

// Credibility returns the domain prior, plus a bonus when the record carries
// author or attribution metadata.
func (s *Scorer) Credibility(domain string, attributed bool) float64 {
	score := defaultCredibility
	domain = normalizeDomain(domain)
	switch {
	case matchesAny(domain, s.high):
		score = highCredibility
	case matchesAny(domain, s.medium):
		score = mediumCredibility
	}
	if attributed {
		score = math.Min(1, score+attributionBonus)
	}
	return score
}

// Combined is the presentation score.
func Combined(r types.SourceRecord) float64 {
	return relevanceWeight*r.RelevanceScore +
		freshnessWeight*r.FreshnessScore +
		credibilityWeight*r.CredibilityScore
}

// Rank returns a copy of records ordered by Combined, highest first. Ties
// keep their fetch order.
func Rank(records []types.SourceRecord) []types.SourceRecord {
	ranked := make([]types.SourceRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return Combined(ranked[i]) > Combined(ranked[j])
	})
	return ranked
}

// RankResultSets flattens result sets in order and ranks all records together.
func RankResultSets(sets []types.ResultSet) []types.SourceRecord {
	var all []types.SourceRecord
	for _, rs := range sets {
		all = append(all, rs.Records...)
	}
	return Rank(all)
}

func lowerTerms(q types.Query) []string {
	var terms []string
	for _, t := range q.Terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// matchesAny reports whether domain equals an entry or is a subdomain of it.
func matchesAny(domain string, list []string) bool {
	if domain == "" {
		return false
	}
	for _, d := range list {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimSuffix(d, ".")
	return strings.TrimPrefix(d, "www.")
}

func normalizeDomains(list []string) []string {
	out := make([]string, 0, len(list))
	for _, d := range list {
		if d = normalizeDomain(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}
