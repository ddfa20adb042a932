// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package terms derives search queries from document content.
//
// An Extractor reads an uploaded document and proposes a few term sets to
// research it with. AnthropicExtractor asks a text model; KeywordExtractor
// is a deterministic offline fallback. Chain tries extractors in order.
package terms

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/termcache"
	"github.com/pdiddy/research-hub/pkg/types"
)

// DefaultMaxQueries caps the queries one document yields.
const DefaultMaxQueries = 3

// ErrNoTerms means the content yielded nothing searchable.
var ErrNoTerms = errors.New("no search terms found")

// Extractor derives search queries from document content.
type Extractor interface {
	Extract(ctx context.Context, content string) ([]types.Query, error)
}

// Chain tries each extractor in order and returns the first non-empty
// result. Failures are logged and skipped.
type Chain struct {
	Extractors []Extractor
	Logger     *zap.Logger
}

// Extract implements Extractor.
func (c Chain) Extract(ctx context.Context, content string) ([]types.Query, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var errs []error
	for _, e := range c.Extractors {
		qs, err := e.Extract(ctx, content)
		if err == nil && len(qs) > 0 {
			return qs, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == nil {
			err = ErrNoTerms
		}
		logger.Warn("term extraction failed", zap.String("extractor", fmt.Sprintf("%T", e)), zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNoTerms
	}
	return nil, errors.Join(errs...)
}

// normalize trims terms, drops empty queries and repeats (compared
// case-insensitively and order-independently), and caps the count.
func normalize(raw [][]string, max int) []types.Query {
	if max <= 0 {
		max = DefaultMaxQueries
	}
	seen := make(map[string]bool)
	var out []types.Query
	for _, terms := range raw {
		q := types.NewQuery(terms...)
		if q.IsEmpty() {
			continue
		}
		key := termcache.Key(q.Terms)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}
