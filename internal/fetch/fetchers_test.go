// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/research-hub/internal/httputil"
	"github.com/pdiddy/research-hub/pkg/types"
)

func init() {
	// Use a tiny base delay so tests finish quickly.
	httputil.RetryBaseDelay = 1 * time.Millisecond
}

func testHTTP() types.HTTPConfig {
	return types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "test/0.1", MaxRetries: 1}
}

// swap points *target at v for the duration of the test.
func swap(t *testing.T, target *string, v string) {
	t.Helper()
	old := *target
	*target = v
	t.Cleanup(func() { *target = old })
}

// --- helpers ---

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "a b", 10, "a b"},
		{"collapses whitespace", "a \n\t b", 10, "a b"},
		{"truncated", "abcdef", 3, "abc" + excerptMarker},
		{"runes", "ééééé", 2, "éé" + excerptMarker},
		{"no limit", "abcdef", 0, "abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, excerpt(tt.in, tt.limit))
		})
	}
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "nih.gov", domainOf("https://www.NIH.gov/health"))
	assert.Equal(t, "arxiv.org", domainOf("http://arxiv.org:80/abs/1"))
	assert.Equal(t, "", domainOf("not a url"))
}

func TestToRecordDomainFallback(t *testing.T) {
	r := toRecord(Document{URL: "urn:x", Title: " T ", Content: "body"}, "example.org", 100)
	assert.Equal(t, "example.org", r.Domain)
	assert.Equal(t, "T", r.Title)
	assert.Equal(t, "body", r.Excerpt)
}

func TestExpandTargets(t *testing.T) {
	q := types.NewQuery("blood sugar", "diabetes")
	assert.Equal(t, []string{"blood sugar diabetes"}, expandTargets(nil, q))
	assert.Equal(t,
		[]string{"https://x.test/s?q=blood+sugar+diabetes", "https://y.test/"},
		expandTargets([]string{"https://x.test/s?q={query}", "https://y.test/"}, q))
	assert.Equal(t,
		[]string{"blood sugar diabetes AND review", "blood sugar diabetes AND trial"},
		expandTargets([]string{"{query} AND review", "{query} AND trial"}, q))
}

func TestQueryTemplatesReachPubMedUnescaped(t *testing.T) {
	var terms []string
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch", func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("term")
		terms = append(terms, term)
		if strings.Contains(term, " OR ") {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		fmt.Fprint(w, `{"esearchresult":{"idlist":["111"]}}`)
	})
	mux.HandleFunc("/esummary", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"result":{"uids":["111"],"111":{"title":"Blood sugar review","pubdate":"2024"}}}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	swap(t, &pubmedSearchBase, ts.URL+"/esearch")
	swap(t, &pubmedSummaryBase, ts.URL+"/esummary")

	o := NewOrchestrator(Options{Config: types.FetchConfig{RetryBaseDelay: time.Millisecond}})
	rep, err := o.Fetch(context.Background(), types.NewQuery("blood sugar", "diabetes"), []SourceSpec{{
		Name:    "pubmed",
		Targets: []string{"{query} AND review", "{query} AND trial"},
		Fetcher: NewPubMedFetcher(testHTTP(), "", 5),
	}})
	require.NoError(t, err)
	require.Len(t, rep.ResultSets, 1)

	require.Len(t, terms, 3)
	assert.Equal(t, "(blood sugar diabetes AND review) OR (blood sugar diabetes AND trial)", terms[0])
	assert.Equal(t, "blood sugar diabetes AND review", terms[1])
	assert.Equal(t, "blood sugar diabetes AND trial", terms[2])
}

// --- apiClient ---

func TestAPIClientStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"service unavailable is transient", http.StatusServiceUnavailable, IsTransient},
		{"too many requests is transient", http.StatusTooManyRequests, IsTransient},
		{"not implemented is unsupported", http.StatusNotImplemented, func(err error) bool { return errors.Is(err, ErrUnsupported) }},
		{"not found is permanent", http.StatusNotFound, func(err error) bool { return err != nil && Classify(err) == nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			_, err := newAPIClient(testHTTP()).get(context.Background(), ts.URL, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected classification for %v", err)
		})
	}
}

func TestAPIClientSendsHeaders(t *testing.T) {
	var ua, key string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua, key = r.UserAgent(), r.Header.Get("x-api-key")
		fmt.Fprint(w, "ok")
	}))
	defer ts.Close()

	body, err := newAPIClient(testHTTP()).get(context.Background(), ts.URL, http.Header{"x-api-key": {"k"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "test/0.1", ua)
	assert.Equal(t, "k", key)
}

// --- PubMed ---

func TestPubMedFetch(t *testing.T) {
	var terms []string
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch", func(w http.ResponseWriter, r *http.Request) {
		terms = append(terms, r.URL.Query().Get("term"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		fmt.Fprint(w, `{"esearchresult":{"idlist":["111","222"]}}`)
	})
	mux.HandleFunc("/esummary", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "111,222", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"result":{"uids":["111","222"],
			"111":{"title":"Glycemic control in type 2 diabetes","pubdate":"2024 Mar 5","fulljournalname":"Diabetes Care","authors":[{"name":"Smith J"}]},
			"222":{"title":"Blood sugar monitoring","pubdate":"","sortpubdate":"2021/06/01 00:00","fulljournalname":"Lancet"}}}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	swap(t, &pubmedSearchBase, ts.URL+"/esearch")
	swap(t, &pubmedSummaryBase, ts.URL+"/esummary")

	f := NewPubMedFetcher(testHTTP(), "secret", 5)
	docs, err := f.FetchBatch(context.Background(), []string{"diabetes", "blood sugar"})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, []string{"(diabetes) OR (blood sugar)"}, terms)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/111/", docs[0].URL)
	assert.Equal(t, "pubmed.ncbi.nlm.nih.gov", docs[0].Domain)
	assert.Equal(t, []string{"Smith J"}, docs[0].Authors)
	require.NotNil(t, docs[0].PublishedDate)
	assert.Equal(t, 2024, docs[0].PublishedDate.Year())
	require.NotNil(t, docs[1].PublishedDate)
	assert.Equal(t, time.June, docs[1].PublishedDate.Month())
	assert.Equal(t, "1.00", docs[0].Metadata["position"])
}

func TestPubMedNoHits(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"esearchresult":{"idlist":[]}}`)
	}))
	defer ts.Close()
	swap(t, &pubmedSearchBase, ts.URL)

	docs, err := NewPubMedFetcher(testHTTP(), "", 5).Fetch(context.Background(), "zzz")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPubMedMalformed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html>`)
	}))
	defer ts.Close()
	swap(t, &pubmedSearchBase, ts.URL)

	_, err := NewPubMedFetcher(testHTTP(), "", 5).Fetch(context.Background(), "diabetes")
	assert.ErrorIs(t, err, ErrMalformed)
}

// --- OpenAlex ---

func TestOpenAlexFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "insulin resistance", r.URL.Query().Get("search"))
		assert.Equal(t, "me@example.org", r.URL.Query().Get("mailto"))
		fmt.Fprint(w, `{"results":[
			{"id":"https://openalex.org/W1","title":"Insulin resistance","doi":"https://doi.org/10.1/abc",
			 "publication_date":"2023-02-01","authorships":[{"author":{"display_name":"A. Author"}}],
			 "cited_by_count":42,"primary_location":{"source":{"display_name":"Diabetes Care"}},
			 "abstract_inverted_index":{"Insulin":[0],"matters":[1]}},
			{"id":"https://openalex.org/W2","title":"No DOI","publication_year":2019,
			 "open_access":{"oa_url":"https://repo.example.org/w2.pdf"}}]}`)
	}))
	defer ts.Close()
	swap(t, &openAlexSearchBase, ts.URL)

	docs, err := NewOpenAlexFetcher(testHTTP(), "me@example.org", 5).Fetch(context.Background(), "insulin resistance")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "https://doi.org/10.1/abc", docs[0].URL)
	assert.Equal(t, "10.1/abc", docs[0].Metadata["doi"])
	assert.Equal(t, "Insulin matters", docs[0].Content)
	assert.Equal(t, []string{"A. Author"}, docs[0].Authors)
	assert.Equal(t, "42", docs[0].Metadata["cited_by"])
	assert.Equal(t, "Diabetes Care", docs[0].Metadata["venue"])

	assert.Equal(t, "https://repo.example.org/w2.pdf", docs[1].URL)
	assert.Equal(t, "No DOI", docs[1].Content)
	require.NotNil(t, docs[1].PublishedDate)
	assert.Equal(t, 2019, docs[1].PublishedDate.Year())
}

func TestReconstructAbstract(t *testing.T) {
	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{"nil map", nil, ""},
		{"single word", map[string][]int{"hello": {0}}, "hello"},
		{"repeated word", map[string][]int{"the": {0, 4}, "cat": {1}, "sat": {2}, "on": {3}, "mat": {5}}, "the cat sat on the mat"},
		{"gap in positions", map[string][]int{"first": {0}, "last": {3}}, "first last"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reconstructAbstract(tt.index); got != tt.want {
				t.Errorf("reconstructAbstract() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- Semantic Scholar ---

func TestSemanticScholarFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		fmt.Fprint(w, `{"total":2,"data":[
			{"paperId":"p1","url":"https://www.semanticscholar.org/paper/p1","title":"HbA1c targets",
			 "abstract":"","tldr":{"text":"Lower is not always better."},"year":2020,
			 "externalIds":{"DOI":"10.2/x","PubMed":999,"CorpusId":12345},"authors":[{"name":"B. Writer"}]},
			{"paperId":"p2","title":"No URL","abstract":"abstract text","publicationDate":"2022-09-10"}]}`)
	}))
	defer ts.Close()
	swap(t, &semanticAPIBase, ts.URL)

	docs, err := NewSemanticScholarFetcher(testHTTP(), "key", 5).Fetch(context.Background(), "hba1c")
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "Lower is not always better.", docs[0].Content)
	assert.Equal(t, "10.2/x", docs[0].Metadata["doi"])
	assert.Equal(t, "999", docs[0].Metadata["pmid"])
	require.NotNil(t, docs[0].PublishedDate)
	assert.Equal(t, 2020, docs[0].PublishedDate.Year())

	assert.Equal(t, semanticPaperBase+"p2", docs[1].URL)
	assert.Equal(t, time.September, docs[1].PublishedDate.Month())
}

// --- arXiv ---

func TestArxivFetch(t *testing.T) {
	var rawQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		fmt.Fprint(w, `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
			<entry><id>http://arxiv.org/abs/2301.07041v2</id><title>Glucose
			  forecasting</title><summary> Deep models. </summary>
			  <published>2023-01-17T18:00:00Z</published><author><name>C. Coder</name></author>
			  <arxiv:doi>10.1000/glu.1</arxiv:doi><arxiv:primary_category term="cs.LG"/></entry>
			<entry><id>bogus</id><title>skipped</title></entry></feed>`)
	}))
	defer ts.Close()
	swap(t, &arxivAPIBase, ts.URL)

	docs, err := NewArxivFetcher(testHTTP(), 3).Fetch(context.Background(), "glucose forecasting")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Contains(t, rawQuery, "search_query=all:glucose+forecasting")
	assert.Contains(t, rawQuery, "max_results=3")
	assert.Equal(t, "https://arxiv.org/abs/2301.07041", docs[0].URL)
	assert.Equal(t, "Glucose forecasting", docs[0].Title)
	assert.Equal(t, "Deep models.", docs[0].Content)
	assert.Equal(t, []string{"C. Coder"}, docs[0].Authors)
	assert.Equal(t, "10.1000/glu.1", docs[0].Metadata["doi"])
	assert.Equal(t, "cs.LG", docs[0].Metadata["category"])
	require.NotNil(t, docs[0].PublishedDate)
	assert.Equal(t, 2023, docs[0].PublishedDate.Year())
}

func TestArxivEmptyQuery(t *testing.T) {
	_, err := NewArxivFetcher(testHTTP(), 3).Fetch(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestExtractArxivID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://arxiv.org/abs/2301.07041v1", "2301.07041"},
		{"http://arxiv.org/abs/hep-th/9901001v3", "hep-th/9901001"},
		{"http://arxiv.org/abs/2301.07041", "2301.07041"},
		{"nope", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArxivID(tt.in), tt.in)
	}
}

// --- HTML pages ---

const samplePage = `<!doctype html><html><head>
<title>  Managing   Blood Sugar </title>
<meta name="author" content="Dr. Ada">
<meta property="article:published_time" content="2024-05-01T10:00:00Z">
<meta name="description" content="fallback description">
<script>var tracking = "ignore me";</script><style>.x{}</style>
</head><body>
<nav>Home | About</nav><header>Site header</header>
<article><h1>Managing blood sugar</h1><p>Diet and exercise help.</p></article>
<footer>Copyright</footer></body></html>`

func TestParsePage(t *testing.T) {
	d, err := parsePage(samplePage, "https://www.health.example.org/sugar")
	require.NoError(t, err)

	assert.Equal(t, "Managing Blood Sugar", d.Title)
	assert.Equal(t, "Managing blood sugar Diet and exercise help.", d.Content)
	assert.Equal(t, []string{"Dr. Ada"}, d.Authors)
	require.NotNil(t, d.PublishedDate)
	assert.Equal(t, time.May, d.PublishedDate.Month())
	assert.NotContains(t, d.Content, "ignore me")
	assert.NotContains(t, d.Content, "Copyright")
}

func TestParsePageFallbacks(t *testing.T) {
	page := `<html><head><meta property="og:title" content="OG Title">
		<meta name="description" content="Only a description."></head>
		<body><script>x()</script><time datetime="2020-02-03">Feb 3</time></body></html>`
	d, err := parsePage(page, "https://x.test/")
	require.NoError(t, err)
	assert.Equal(t, "OG Title", d.Title)
	assert.Equal(t, "Feb 3", d.Content)
	require.NotNil(t, d.PublishedDate)
	assert.Equal(t, 2020, d.PublishedDate.Year())

	_, err = parsePage(`<html><body><script>x()</script></body></html>`, "https://x.test/")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHTTPFetcher(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	defer ts.Close()

	f := NewHTTPFetcher("health", testHTTP())
	assert.Equal(t, "health", f.Name())

	docs, err := f.Fetch(context.Background(), ts.URL+"/sugar")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Managing Blood Sugar", docs[0].Title)

	_, err = f.Fetch(context.Background(), "blood sugar")
	assert.ErrorIs(t, err, ErrUnsupported)
}

// --- browser ---

type fakeSession struct {
	pages  map[string]string
	closed *atomic.Int32
}

func (s fakeSession) render(_ context.Context, u string) (string, error) {
	if p, ok := s.pages[u]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: navigation failed", ErrTransient)
}

func (s fakeSession) close() error {
	s.closed.Add(1)
	return nil
}

func TestBrowserFetcherBatchSharesSession(t *testing.T) {
	var opened, closed atomic.Int32
	f := NewBrowserFetcher("rendered", types.BrowserConfig{}, nil)
	f.open = func(context.Context) (browserSession, error) {
		opened.Add(1)
		return fakeSession{pages: map[string]string{"https://a.test/": samplePage}, closed: &closed}, nil
	}

	docs, err := f.FetchBatch(context.Background(), []string{"https://a.test/", "https://b.test/"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://a.test/", docs[0].URL)
	assert.Equal(t, int32(1), opened.Load())
	assert.Equal(t, int32(1), closed.Load())

	_, err = f.FetchBatch(context.Background(), []string{"https://b.test/"})
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(2), closed.Load(), "session closed on failure too")
}

func TestBrowserFetcherLaunchFailure(t *testing.T) {
	f := NewBrowserFetcher("", types.BrowserConfig{}, nil)
	assert.Equal(t, "browser", f.Name())
	f.open = func(context.Context) (browserSession, error) {
		return nil, errors.New("no chrome")
	}
	_, err := f.Fetch(context.Background(), "https://a.test/")
	assert.True(t, IsTransient(err))
	assert.True(t, strings.Contains(err.Error(), "no chrome"))
}

func TestReleaseFallsBackWhenCloseFails(t *testing.T) {
	var calls []string
	step := func(name string, err error) func() error {
		return func() error {
			calls = append(calls, name)
			return err
		}
	}

	err := release(step("close", nil), zap.NewNop(), step("pages", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"close"}, calls)

	calls = nil
	err = release(step("close", errors.New("ws gone")), zap.NewNop(),
		step("pages", errors.New("no targets")), step("reconnect", nil), step("never", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"close", "pages", "reconnect"}, calls)

	calls = nil
	err = release(step("close", errors.New("ws gone")), zap.NewNop(),
		step("pages", errors.New("no targets")), step("reconnect", errors.New("refused")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws gone")
	assert.Contains(t, err.Error(), "refused")
	assert.Equal(t, []string{"close", "pages", "reconnect"}, calls)
}
