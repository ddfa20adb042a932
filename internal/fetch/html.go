// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxDepth bounds recursion on pathological documents.
const maxDepth = 200

// skippedElements never contribute visible text.
var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true, "svg": true,
	"nav": true, "footer": true, "header": true, "template": true, "form": true,
}

// authorMeta and dateMeta name the <meta> keys (name or property) read for
// attribution and publication date, in priority order.
var (
	authorMeta = []string{"citation_author", "author", "article:author", "dc.creator"}
	dateMeta   = []string{"article:published_time", "citation_publication_date", "citation_date", "date", "dc.date", "pubdate"}
)

// parsePage extracts a Document from an HTML page.
func parsePage(raw, pageURL string) (Document, error) {
	root, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return Document{}, malformed("parsing HTML: %v", err)
	}

	p := pageParser{meta: make(map[string][]string)}
	p.walk(root, 0)

	d := Document{
		URL:     pageURL,
		Title:   strings.Join(strings.Fields(p.title), " "),
		Content: strings.Join(strings.Fields(p.text.String()), " "),
	}
	if d.Title == "" {
		d.Title = p.first("og:title")
	}
	if d.Content == "" {
		d.Content = p.first("description", "og:description")
	}

	for _, key := range authorMeta {
		if vals := p.meta[key]; len(vals) > 0 {
			d.Authors = vals
			break
		}
	}
	for _, key := range dateMeta {
		if t := parseMetaDate(p.first(key)); t != nil {
			d.PublishedDate = t
			break
		}
	}
	if d.PublishedDate == nil {
		d.PublishedDate = parseMetaDate(p.timeAttr)
	}

	if d.Title == "" && d.Content == "" {
		return Document{}, malformed("page %s has no title or text", pageURL)
	}
	return d, nil
}

type pageParser struct {
	title    string
	text     strings.Builder
	meta     map[string][]string
	timeAttr string
}

func (p *pageParser) walk(n *html.Node, depth int) {
	if depth > maxDepth {
		return
	}
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			p.text.WriteString(t)
			p.text.WriteString(" ")
		}
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
		switch n.Data {
		case "title":
			if p.title == "" && n.FirstChild != nil {
				p.title = n.FirstChild.Data
			}
			return
		case "meta":
			key := strings.ToLower(attr(n, "name"))
			if key == "" {
				key = strings.ToLower(attr(n, "property"))
			}
			if v := strings.TrimSpace(attr(n, "content")); key != "" && v != "" {
				p.meta[key] = append(p.meta[key], v)
			}
			return
		case "time":
			if p.timeAttr == "" {
				p.timeAttr = attr(n, "datetime")
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, depth+1)
	}
}

func (p *pageParser) first(keys ...string) string {
	for _, k := range keys {
		if vals := p.meta[k]; len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func parseMetaDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05Z0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	if len(s) >= 10 {
		if t := parseDay(s[:10]); t != nil {
			return t
		}
	}
	return parseDay(s)
}
