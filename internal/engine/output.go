// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-hub/internal/score"
	"github.com/pdiddy/research-hub/pkg/types"
)

// FormatTable writes the outcome's records, best first, as a table.
func FormatTable(out Outcome, w io.Writer) {
	records := score.RankResultSets(out.ResultSets)
	if len(records) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-4s  %-5s  %-5s  %-5s  %s\n",
		"Rank", "Title", "Authors", "Year", "Rel", "Fresh", "Cred", "Domain")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for i, r := range records {
		year := ""
		if r.PublishedDate != nil {
			year = fmt.Sprintf("%d", r.PublishedDate.Year())
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-4s  %-5.2f  %-5.2f  %-5.2f  %s\n",
			i+1, truncate(r.Title, 60), formatAuthors(r.Authors), year,
			r.RelevanceScore, r.FreshnessScore, r.CredibilityScore, r.Domain)
	}

	fmt.Fprintf(w, "\n%d results from %d sources", len(records), len(out.ResultSets))
	switch {
	case out.CacheHit:
		fmt.Fprint(w, " (cached)")
	case out.Fallback:
		fmt.Fprint(w, " (all sources failed)")
	case len(out.Failed) > 0:
		fmt.Fprintf(w, " (%d of %d sources failed)", len(out.Failed), out.Requested)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes the outcome's result sets as indented JSON.
func FormatJSON(out Outcome, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out.ResultSets)
}

// CSLItem is a bibliographic entry in CSL (Citation Style Language) form,
// consumable by Pandoc and reference managers.
type CSLItem struct {
	ID       string    `yaml:"id"`
	Type     string    `yaml:"type"`
	Title    string    `yaml:"title"`
	Author   []CSLName `yaml:"author,omitempty"`
	Abstract string    `yaml:"abstract,omitempty"`
	Issued   *CSLDate  `yaml:"issued,omitempty"`
	URL      string    `yaml:"URL,omitempty"`
	DOI      string    `yaml:"DOI,omitempty"`
}

// CSLName is a person's name in CSL form.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL form using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// FormatCSL writes the outcome's records, best first, as a CSL-YAML list.
func FormatCSL(out Outcome, w io.Writer) error {
	records := score.RankResultSets(out.ResultSets)
	items := make([]CSLItem, len(records))
	for i, r := range records {
		items[i] = toCSLItem(r)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}

func toCSLItem(r types.SourceRecord) CSLItem {
	item := CSLItem{
		ID:       r.URL,
		Type:     "article",
		Title:    r.Title,
		Abstract: r.Excerpt,
		URL:      r.URL,
	}
	for _, a := range r.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if r.PublishedDate != nil && !r.PublishedDate.IsZero() {
		d := r.PublishedDate
		item.Issued = &CSLDate{DateParts: [][]int{{d.Year(), int(d.Month()), d.Day()}}}
	}
	if doi, ok := strings.CutPrefix(r.URL, "https://doi.org/"); ok {
		item.DOI = doi
		item.ID = doi
	}
	return item
}

// parseAuthorName splits a full name on its last space into given and
// family parts. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{Given: name[:idx], Family: name[idx+1:]}
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
