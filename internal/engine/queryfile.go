// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-hub/pkg/types"
)

// QueryFile is the on-disk form of a search and its results. A saved search
// can be reloaded later without re-querying any source.
type QueryFile struct {
	Query   types.Query       `yaml:"query"`
	Results []types.ResultSet `yaml:"results"`
	Summary QuerySummary      `yaml:"summary"`
}

// QuerySummary stores result statistics and a timestamp.
type QuerySummary struct {
	Records        int       `yaml:"records"`
	Sources        int       `yaml:"sources"`
	CacheHit       bool      `yaml:"cache_hit,omitempty"`
	Fallback       bool      `yaml:"fallback,omitempty"`
	SourceFailures []string  `yaml:"source_failures,omitempty"`
	Timestamp      time.Time `yaml:"timestamp"`
}

// WriteQueryFile saves an outcome to a YAML file.
func WriteQueryFile(path string, out Outcome, now time.Time) error {
	qf := QueryFile{
		Query:   out.Query,
		Results: out.ResultSets,
		Summary: QuerySummary{
			Sources:   len(out.ResultSets),
			CacheHit:  out.CacheHit,
			Fallback:  out.Fallback,
			Timestamp: now,
		},
	}
	for _, rs := range out.ResultSets {
		qf.Summary.Records += len(rs.Records)
	}
	for _, f := range out.Failed {
		qf.Summary.SourceFailures = append(qf.Summary.SourceFailures, fmt.Sprintf("%s: %v", f.Source, f.Err))
	}

	data, err := yaml.Marshal(&qf)
	if err != nil {
		return fmt.Errorf("marshaling query file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadQueryFile loads a previously saved query file from disk.
func ReadQueryFile(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query file: %w", err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("parsing query file: %w", err)
	}
	return &qf, nil
}

// Outcome rebuilds the search outcome the file was written from.
func (qf *QueryFile) Outcome() Outcome {
	return Outcome{
		Query:      qf.Query,
		ResultSets: qf.Results,
		CacheHit:   qf.Summary.CacheHit,
		Fallback:   qf.Summary.Fallback,
	}
}
