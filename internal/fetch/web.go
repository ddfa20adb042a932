// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/research-hub/pkg/types"
)

// HTTPFetcher downloads and parses plain HTML pages. Targets are URLs.
type HTTPFetcher struct {
	name string
	api  *apiClient
}

// NewHTTPFetcher creates a page fetcher reporting itself as name.
func NewHTTPFetcher(name string, cfg types.HTTPConfig) *HTTPFetcher {
	if name == "" {
		name = "web"
	}
	return &HTTPFetcher{name: name, api: newAPIClient(cfg)}
}

// Name returns the source identifier.
func (f *HTTPFetcher) Name() string { return f.name }

// Fetch downloads one page and returns it as a single document.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) ([]Document, error) {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: not an http(s) URL: %q", ErrUnsupported, target)
	}

	body, err := f.api.get(ctx, target, http.Header{"Accept": {"text/html,application/xhtml+xml"}})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}

	d, err := parsePage(string(body), target)
	if err != nil {
		return nil, err
	}
	return []Document{d}, nil
}
