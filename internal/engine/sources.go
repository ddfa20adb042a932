// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/fetch"
	"github.com/pdiddy/research-hub/pkg/types"
)

// BuildSources turns configured sources into fetch specs. Disabled sources
// are skipped; an unknown kind is an error.
func BuildSources(cfg types.Config, logger *zap.Logger) ([]fetch.SourceSpec, error) {
	maxResults := cfg.Fetch.MaxResults
	var specs []fetch.SourceSpec
	for _, sc := range cfg.Sources {
		if sc.Disabled {
			continue
		}
		name := sc.Name
		if name == "" {
			name = string(sc.Kind)
		}

		spec := fetch.SourceSpec{Name: name, Targets: sc.Targets}
		switch sc.Kind {
		case types.SourcePubMed:
			spec.Fetcher = fetch.NewPubMedFetcher(cfg.HTTP, cfg.NCBIAPIKey, maxResults)
			spec.Domain = "pubmed.ncbi.nlm.nih.gov"
		case types.SourceOpenAlex:
			spec.Fetcher = fetch.NewOpenAlexFetcher(cfg.HTTP, cfg.OpenAlexEmail, maxResults)
			spec.Domain = "openalex.org"
		case types.SourceSemanticScholar:
			spec.Fetcher = fetch.NewSemanticScholarFetcher(cfg.HTTP, cfg.SemanticScholarAPIKey, maxResults)
			spec.Domain = "semanticscholar.org"
		case types.SourceArxiv:
			spec.Fetcher = fetch.NewArxivFetcher(cfg.HTTP, maxResults)
			spec.Domain = "arxiv.org"
		case types.SourceWeb:
			if len(sc.Targets) == 0 {
				return nil, fmt.Errorf("source %q: web sources need targets", name)
			}
			spec.Fetcher = fetch.NewHTTPFetcher(name, cfg.HTTP)
		case types.SourceBrowser:
			if len(sc.Targets) == 0 {
				return nil, fmt.Errorf("source %q: browser sources need targets", name)
			}
			spec.Fetcher = fetch.NewBrowserFetcher(name, cfg.Browser, logger)
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", name, sc.Kind)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
