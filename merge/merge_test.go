package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/fetch"
	"github.com/pevans/onepager/site"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paginationList = `<nav class="go-pagination"><ol class="go-pagination__list">
	<li><a href="neue-gpu-1.html">1</a></li>
	<li><a href="neue-gpu-2.html">2</a></li>
	<li><a href="neue-gpu-3.html">3</a></li>
</ol></nav>`

// Test helper: build an article page with the shared pagination list
func articlePage(n int) string {
	return fmt.Sprintf(`<html><head>
		<meta name="author" content="Jane Doe">
		<meta name="description" content="Summary">
	</head><body><main><article>
		<h1>Neue GPU</h1>
		<p>Page %d text</p>
		<img src="img-%d.jpg">
		%s
	</article></main></body></html>`, n, n, paginationList)
}

// Test helper: a logger that discards output
func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Test helper: parse markup as the already loaded host page
func hostDoc(t *testing.T, markup string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

// fakeFetcher serves canned pages and records which URLs were requested.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string]error
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (*goquery.Document, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, pageURL)
	f.mu.Unlock()

	if err := f.fail[pageURL]; err != nil {
		return nil, err
	}
	markup, ok := f.pages[pageURL]
	if !ok {
		return nil, &fetch.FetchError{URL: pageURL, StatusCode: http.StatusNotFound}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(markup))
}

// Test helper: create a merger over the golem.de profile
func newMerger(t *testing.T, f Fetcher, mutate ...func(*site.Profile)) *Merger {
	profile := site.Golem()
	for _, fn := range mutate {
		fn(&profile)
	}
	m, err := New(Options{Profile: profile, Fetcher: f, Logger: quietLogger()})
	require.NoError(t, err)
	return m
}

// Test helper: the page numbers of a merged document in order
func pageNumbers(doc *article.MergedDocument) []int {
	var numbers []int
	for _, p := range doc.Pages {
		numbers = append(numbers, p.Descriptor.Number)
	}
	return numbers
}

// TestNew_RequiresFetcher verifies a merger cannot be built without a
// fetcher
func TestNew_RequiresFetcher(t *testing.T) {
	_, err := New(Options{Profile: site.Golem()})
	assert.Error(t, err)
}

// TestNew_InvalidProfile verifies profile validation runs
func TestNew_InvalidProfile(t *testing.T) {
	profile := site.Golem()
	profile.MaxPages = 0

	_, err := New(Options{Profile: profile, Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
}

// TestMerge_EndToEnd verifies all pages are merged in order over HTTP
func TestMerge_EndToEnd(t *testing.T) {
	var mu sync.Mutex
	requested := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested[r.URL.Path]++
		mu.Unlock()

		var n int
		if _, err := fmt.Sscanf(r.URL.Path, "/news/neue-gpu-%d.html", &n); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articlePage(n)))
	}))
	defer server.Close()

	start := server.URL + "/news/neue-gpu-1.html"
	m := newMerger(t, fetch.New(fetch.Options{}))

	var delivered *article.MergedDocument
	out := OutputFunc(func(_ context.Context, doc *article.MergedDocument) error {
		delivered = doc
		return nil
	})

	res, err := m.Merge(context.Background(), Host{URL: start, Doc: hostDoc(t, articlePage(1))}, out)
	require.NoError(t, err)

	require.NotNil(t, delivered)
	assert.Same(t, res.Document, delivered)
	assert.Equal(t, []int{1, 2, 3}, pageNumbers(delivered))
	assert.Equal(t, 3, res.Merged)
	assert.Equal(t, "Merged 3 page(s).", res.Summary())
	assert.NotEmpty(t, res.ID)

	assert.Equal(t, "Neue GPU", delivered.Title)
	assert.Equal(t, start, delivered.SourceURL)
	assert.Equal(t, "Jane Doe", delivered.Meta.Author)

	assert.Zero(t, requested["/news/neue-gpu-1.html"], "host page is not fetched again")
	assert.Equal(t, 1, requested["/news/neue-gpu-2.html"])
	assert.Equal(t, 1, requested["/news/neue-gpu-3.html"])

	second := delivered.Pages[1].Fragment.HTML()
	assert.Contains(t, second, "Page 2 text")
	assert.Contains(t, second, `src="`+server.URL+`/news/img-2.jpg"`)
	assert.NotContains(t, second, "go-pagination")
	assert.NotContains(t, second, "<h1>")
}

// TestMerge_PageFailure verifies one failing page does not abort the merge
func TestMerge_PageFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		if _, err := fmt.Sscanf(r.URL.Path, "/news/neue-gpu-%d.html", &n); err != nil {
			http.NotFound(w, r)
			return
		}
		if n == 2 {
			// Drop the connection to simulate a network error
			if conn, _, err := w.(http.Hijacker).Hijack(); err == nil {
				conn.Close()
			}
			return
		}
		w.Write([]byte(articlePage(n)))
	}))
	defer server.Close()

	m := newMerger(t, fetch.New(fetch.Options{}))
	host := Host{URL: server.URL + "/news/neue-gpu-1.html", Doc: hostDoc(t, articlePage(1))}

	res, err := m.Merge(context.Background(), host, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, pageNumbers(res.Document))
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "Merged 2 page(s).", res.Summary())
}

// TestMerge_NoArticle verifies the merge aborts before fetching anything
func TestMerge_NoArticle(t *testing.T) {
	f := &fakeFetcher{}
	m := newMerger(t, f)

	delivered := false
	out := OutputFunc(func(context.Context, *article.MergedDocument) error {
		delivered = true
		return nil
	})

	host := Host{
		URL: "https://www.golem.de/news/neue-gpu-1.html",
		Doc: hostDoc(t, `<div>`+paginationList+`</div>`),
	}
	_, err := m.Merge(context.Background(), host, out)

	assert.ErrorIs(t, err, ErrNoArticleFound)
	assert.Empty(t, f.fetched)
	assert.False(t, delivered)
}

// TestMerge_SkipsEmptyPages verifies pages without content are neither
// merged nor failed
func TestMerge_SkipsEmptyPages(t *testing.T) {
	base := "https://www.golem.de/news/"
	f := &fakeFetcher{pages: map[string]string{
		base + "neue-gpu-2.html": `<main><article><h1>Neue GPU</h1></article></main>`,
		base + "neue-gpu-3.html": `<div>no article</div>`,
	}}
	m := newMerger(t, f)

	res, err := m.Merge(context.Background(), Host{URL: base + "neue-gpu-1.html", Doc: hostDoc(t, articlePage(1))}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, pageNumbers(res.Document))
	assert.Equal(t, 2, res.Skipped)
	assert.Zero(t, res.Failed)
}

// TestMerge_OutputError verifies delivery failures are surfaced and the
// merged count is still reported
func TestMerge_OutputError(t *testing.T) {
	base := "https://www.golem.de/news/"
	logger, hook := test.NewNullLogger()
	m, err := New(Options{
		Profile: site.Golem(),
		Fetcher: &fakeFetcher{pages: map[string]string{
			base + "neue-gpu-2.html": articlePage(2),
			base + "neue-gpu-3.html": articlePage(3),
		}},
		Logger: logger,
	})
	require.NoError(t, err)
	boom := errors.New("boom")

	res, err := m.Merge(context.Background(), Host{URL: base + "neue-gpu-1.html", Doc: hostDoc(t, articlePage(1))},
		OutputFunc(func(context.Context, *article.MergedDocument) error { return boom }))

	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Merged)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "Merged 3 page(s).", last.Message)
	assert.Equal(t, logrus.WarnLevel, last.Level)
	assert.Equal(t, 3, last.Data["merged"])
}

// TestMerge_HostWithQuery verifies a start URL carrying a query string is
// not merged a second time through its bare pagination link
func TestMerge_HostWithQuery(t *testing.T) {
	base := "https://www.golem.de/news/neue-gpu-2501-190000"
	f := &fakeFetcher{pages: map[string]string{
		base + ".html":   hostQueryPage("one"),
		base + "-2.html": hostQueryPage("two"),
	}}
	m := newMerger(t, f)
	host := Host{URL: base + ".html?utm_source=rss", Doc: hostDoc(t, hostQueryPage("one"))}

	res, err := m.Merge(context.Background(), host, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{base + "-2.html"}, f.fetched)
	assert.Equal(t, "Merged 2 page(s).", res.Summary())
	require.Len(t, res.Document.Pages, 2)
	assert.Contains(t, res.Document.Pages[0].Fragment.HTML(), "Page one")
	assert.Contains(t, res.Document.Pages[1].Fragment.HTML(), "Page two")
}

// Test helper: an article page whose pagination links use golem.de's
// article-ID naming
func hostQueryPage(label string) string {
	return fmt.Sprintf(`<html><body><main><article>
		<h1>Neue GPU</h1>
		<p>Page %s</p>
		<ol class="go-pagination__list">
			<li><a href="neue-gpu-2501-190000.html">1</a></li>
			<li><a href="neue-gpu-2501-190000-2.html">2</a></li>
		</ol>
	</article></main></body></html>`, label)
}

// TestMerge_Cancelled verifies a cancelled context fails the run
func TestMerge_Cancelled(t *testing.T) {
	m := newMerger(t, &fakeFetcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Merge(ctx, Host{URL: "https://www.golem.de/news/neue-gpu-1.html", Doc: hostDoc(t, articlePage(1))}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

// TestCandidates_SortedAndUnique verifies ordering, dedup and host inclusion
func TestCandidates_SortedAndUnique(t *testing.T) {
	m := newMerger(t, &fakeFetcher{})
	doc := hostDoc(t, `<article><ol class="go-pagination__list">
		<li><a href="neue-gpu-3.html">3</a></li>
		<li><a href="neue-gpu-2.html">2</a></li>
		<li><a href="/news/neue-gpu-3.html">3 again</a></li>
	</ol></article>`)

	got := m.Candidates(Host{URL: "https://www.golem.de/news/neue-gpu-1.html", Doc: doc})

	assert.Equal(t, []article.PageDescriptor{
		{URL: "https://www.golem.de/news/neue-gpu-1.html", Number: 1},
		{URL: "https://www.golem.de/news/neue-gpu-2.html", Number: 2},
		{URL: "https://www.golem.de/news/neue-gpu-3.html", Number: 3},
	}, got)
}

// TestCandidates_HostWithQuery verifies a link to the start page without
// its query string or fragment collapses into the host descriptor
func TestCandidates_HostWithQuery(t *testing.T) {
	m := newMerger(t, &fakeFetcher{})
	base := "https://www.golem.de/news/neue-gpu-2501-190000"

	tests := []struct {
		name     string
		hostURL  string
		expected []article.PageDescriptor
	}{
		{
			name:    "tracking query",
			hostURL: base + ".html?utm_source=rss",
			expected: []article.PageDescriptor{
				{URL: base + ".html?utm_source=rss", Number: 1},
				{URL: base + "-2.html", Number: 2},
			},
		},
		{
			name:    "fragment",
			hostURL: base + ".html#comments",
			expected: []article.PageDescriptor{
				{URL: base + ".html#comments", Number: 1},
				{URL: base + "-2.html", Number: 2},
			},
		},
		{
			name:    "query on a later page",
			hostURL: base + "-2.html?utm_source=rss",
			expected: []article.PageDescriptor{
				{URL: base + ".html", Number: 1},
				{URL: base + "-2.html?utm_source=rss", Number: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Candidates(Host{URL: tt.hostURL, Doc: hostDoc(t, hostQueryPage("x"))})
			assert.Equal(t, tt.expected, got)
		})
	}
}

// TestCandidates_TiesKeepDiscoveryOrder verifies equal page numbers are not
// reordered
func TestCandidates_TiesKeepDiscoveryOrder(t *testing.T) {
	m := newMerger(t, &fakeFetcher{})
	doc := hostDoc(t, `<article><ol class="go-pagination__list">
		<li><a href="zweite.html">b</a></li>
		<li><a href="dritte.html">c</a></li>
	</ol></article>`)

	got := m.Candidates(Host{URL: "https://www.golem.de/news/erste.html", Doc: doc})

	require.Len(t, got, 3)
	assert.Equal(t, "https://www.golem.de/news/erste.html", got[0].URL)
	assert.Equal(t, "https://www.golem.de/news/zweite.html", got[1].URL)
	assert.Equal(t, "https://www.golem.de/news/dritte.html", got[2].URL)
}

// TestCandidates_Capped verifies the page limit truncates the list
func TestCandidates_Capped(t *testing.T) {
	m := newMerger(t, &fakeFetcher{}, func(p *site.Profile) { p.MaxPages = 2 })

	got := m.Candidates(Host{URL: "https://www.golem.de/news/neue-gpu-1.html", Doc: hostDoc(t, articlePage(1))})

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Number)
	assert.Equal(t, 2, got[1].Number)
}

// TestCandidates_NoPagination verifies a single-page article yields only
// the host page
func TestCandidates_NoPagination(t *testing.T) {
	m := newMerger(t, &fakeFetcher{})

	got := m.Candidates(Host{URL: "https://www.golem.de/news/kurz-123456.html", Doc: hostDoc(t, `<article><p>x</p></article>`)})

	assert.Equal(t, []article.PageDescriptor{{URL: "https://www.golem.de/news/kurz-123456.html", Number: 1}}, got)
}

// TestPages_Lazy verifies pages are fetched only as the sequence is
// consumed
func TestPages_Lazy(t *testing.T) {
	base := "https://www.golem.de/news/"
	f := &fakeFetcher{pages: map[string]string{
		base + "neue-gpu-2.html": articlePage(2),
		base + "neue-gpu-3.html": articlePage(3),
	}}
	m := newMerger(t, f)
	host := Host{URL: base + "neue-gpu-1.html", Doc: hostDoc(t, articlePage(1))}

	for page := range m.Pages(context.Background(), host, m.Candidates(host)) {
		require.NoError(t, page.Err)
		if page.Descriptor.Number == 2 {
			break
		}
	}

	assert.Equal(t, []string{base + "neue-gpu-2.html"}, f.fetched)
}
