// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
)

// Strategy is one way of turning a source's targets into documents.
type Strategy interface {
	Name() string
	Run(ctx context.Context, f Fetcher, targets []string) ([]Document, error)
}

// BatchStrategy hands every target to the fetcher in a single call.
type BatchStrategy struct{}

// Name returns "batch".
func (BatchStrategy) Name() string { return "batch" }

// Run requires f to implement BatchFetcher. An empty result is an error so
// the caller can fall through to the next strategy.
func (BatchStrategy) Run(ctx context.Context, f Fetcher, targets []string) ([]Document, error) {
	bf, ok := f.(BatchFetcher)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no batch mode", ErrUnsupported, f.Name())
	}
	docs, err := bf.FetchBatch(ctx, targets)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, malformed("batch returned no documents")
	}
	return docs, nil
}

// IndividualStrategy fetches the targets one at a time. It succeeds when
// any target yields documents.
type IndividualStrategy struct{}

// Name returns "individual".
func (IndividualStrategy) Name() string { return "individual" }

// Run fetches each target in order.
func (IndividualStrategy) Run(ctx context.Context, f Fetcher, targets []string) ([]Document, error) {
	var (
		docs []Document
		errs []error
	)
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := f.Fetch(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, got...)
	}
	if len(docs) > 0 {
		return docs, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, malformed("no documents")
}

// plan returns the strategies to try in order for f and targets.
func plan(f Fetcher, targets []string) []Strategy {
	if _, ok := f.(BatchFetcher); ok && len(targets) > 1 {
		return []Strategy{BatchStrategy{}, IndividualStrategy{}}
	}
	return []Strategy{IndividualStrategy{}}
}
