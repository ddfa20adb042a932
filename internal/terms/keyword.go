// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package terms

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/research-hub/pkg/types"
)

const (
	termsPerQuery = 3
	minTermRunes  = 3
)

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		a about above after again against all also am an and any are as at be because been
		before being below between both but by can could did do does doing down during each
		few for from further had has have having he her here hers herself him himself his how
		however i if in into is it its itself just may me might more most must my myself no nor
		not now of off on once only or other our ours ourselves out over own same she should so
		some such than that the their theirs them themselves then there these they this those
		through to too under until up upon us very was we were what when where which while who
		whom why will with within without would you your yours yourself yourselves
		one two three use used using well many much new also et al fig figure table page
		however therefore thus although shall via per`) {
		stopWords[w] = true
	}
}

// KeywordExtractor derives queries from term frequency. It needs no
// network access and always returns the same queries for the same input.
type KeywordExtractor struct {
	MaxQueries int
}

// Extract implements Extractor. The most frequent non-stop-word terms are
// grouped, highest first, into queries of three terms.
func (k KeywordExtractor) Extract(_ context.Context, content string) ([]types.Query, error) {
	max := k.MaxQueries
	if max <= 0 {
		max = DefaultMaxQueries
	}

	ranked := rankTerms(content)
	if len(ranked) == 0 {
		return nil, ErrNoTerms
	}
	if limit := max * termsPerQuery; len(ranked) > limit {
		ranked = ranked[:limit]
	}

	var groups [][]string
	for i := 0; i < len(ranked); i += termsPerQuery {
		groups = append(groups, ranked[i:min(i+termsPerQuery, len(ranked))])
	}
	return normalize(groups, max), nil
}

// rankTerms returns candidate terms by descending frequency; ties keep
// first-occurrence order.
func rankTerms(content string) []string {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len([]rune(w)) < minTermRunes || stopWords[w] || isNumber(w) {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '-' {
			return false
		}
	}
	return true
}
