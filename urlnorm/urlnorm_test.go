package urlnorm

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = "https://www.golem.de/news/some-article-2501-190000.html"

// TestResolve verifies relative and absolute hrefs resolve against the base
func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{"sibling page", "some-article-2501-190000-2.html", "https://www.golem.de/news/some-article-2501-190000-2.html"},
		{"root relative", "/specials/foo/", "https://www.golem.de/specials/foo/"},
		{"protocol relative", "//scdn.golem.de/img.jpg", "https://scdn.golem.de/img.jpg"},
		{"absolute", "https://example.com/a?b=c", "https://example.com/a?b=c"},
		{"parent directory", "../impressum.html", "https://www.golem.de/impressum.html"},
		{"fragment only", "#comments", "https://www.golem.de/news/some-article-2501-190000.html#comments"},
		{"surrounding space", "  x-2.html ", "https://www.golem.de/news/x-2.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Resolve(tt.href, base)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// TestResolve_Idempotent verifies resolving an absolute URL is a no-op
func TestResolve_Idempotent(t *testing.T) {
	urls := []string{
		"https://www.golem.de/news/x-2.html",
		"https://example.com/",
		"http://example.com/path/file.html?query=1#frag",
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			once, err := Resolve(u, base)
			require.NoError(t, err)
			assert.Equal(t, u, once)

			twice, err := Resolve(once, base)
			require.NoError(t, err)
			assert.Equal(t, once, twice)
		})
	}
}

// TestResolve_Invalid verifies unparseable input reports ErrInvalidURL
func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name string
		href string
		base string
	}{
		{"bad escape", "%zz", base},
		{"bad host", "http://[::1", base},
		{"relative base", "x.html", "/news/"},
		{"bad base", "x.html", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.href, tt.base)
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

// TestCheckOrigin verifies only http(s) URLs on the origin pass
func TestCheckOrigin(t *testing.T) {
	origin := "https://www.golem.de"

	tests := []struct {
		name  string
		raw   string
		valid bool
	}{
		{"article", base, true},
		{"uppercase host", "https://WWW.GOLEM.DE/news/a-1.html", true},
		{"other host", "https://evil.example/news/a-1.html", false},
		{"subdomain", "https://video.golem.de/clip/1", false},
		{"other scheme", "http://www.golem.de/news/a-1.html", false},
		{"other port", "https://www.golem.de:8443/news/a-1.html", false},
		{"file", "file:///etc/passwd", false},
		{"relative", "/news/a-1.html", false},
		{"unparsable", "http://[::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOrigin(tt.raw, origin)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

// TestCheckOrigin_BadOrigin verifies a relative origin rejects everything
func TestCheckOrigin_BadOrigin(t *testing.T) {
	assert.ErrorIs(t, CheckOrigin(base, "www.golem.de"), ErrInvalidURL)
}

// TestPageKey verifies query and fragment are dropped from page URLs
func TestPageKey(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"bare", base, base},
		{"tracking query", base + "?utm_source=rss", base},
		{"fragment", base + "#comments", base},
		{"both", base + "?a=1#top", base},
		{"empty query", base + "?", base},
		{"unparsable", "http://[::1", "http://[::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PageKey(tt.raw))
		})
	}
}

// TestResolveSrcset verifies descriptors survive and candidates are rejoined
func TestResolveSrcset(t *testing.T) {
	result := ResolveSrcset("a.jpg 1x,/b.jpg   2x, https://cdn.example.com/c.jpg 640w", base)

	assert.Equal(t,
		"https://www.golem.de/news/a.jpg 1x, https://www.golem.de/b.jpg 2x, https://cdn.example.com/c.jpg 640w",
		result)
}

// TestResolveSrcset_NoDescriptor verifies bare candidates are resolved
func TestResolveSrcset_NoDescriptor(t *testing.T) {
	assert.Equal(t, "https://www.golem.de/news/a.jpg", ResolveSrcset("a.jpg", base))
}

// TestResolveSrcset_SkipsEmptyCandidates verifies trailing commas are dropped
func TestResolveSrcset_SkipsEmptyCandidates(t *testing.T) {
	assert.Equal(t, "https://www.golem.de/news/a.jpg 1x", ResolveSrcset("a.jpg 1x, ", base))
}

// TestResolveSrcset_KeepsInvalidCandidate verifies bad candidates pass through
func TestResolveSrcset_KeepsInvalidCandidate(t *testing.T) {
	assert.Equal(t, "%zz 2x, https://www.golem.de/news/a.jpg 1x", ResolveSrcset("%zz 2x, a.jpg 1x", base))
}

// TestAbsolutize verifies every URL attribute in a fragment is rewritten
func TestAbsolutize(t *testing.T) {
	markup := `<div id="frag">
		<p><a href="x-2.html">next</a></p>
		<img src="/img/a.jpg" srcset="/img/a.jpg 1x, /img/a@2x.jpg 2x">
		<picture><source src="b.webp" srcset="b.webp 1x"></picture>
		<video poster="poster.jpg"></video>
		<a href="%zz">broken</a>
	</div>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)

	frag := doc.Find("#frag")
	Absolutize(frag, base)

	assert.Equal(t, "https://www.golem.de/news/x-2.html", frag.Find("p a").AttrOr("href", ""))
	assert.Equal(t, "https://www.golem.de/img/a.jpg", frag.Find("img").AttrOr("src", ""))
	assert.Equal(t, "https://www.golem.de/img/a.jpg 1x, https://www.golem.de/img/a@2x.jpg 2x", frag.Find("img").AttrOr("srcset", ""))
	assert.Equal(t, "https://www.golem.de/news/b.webp", frag.Find("source").AttrOr("src", ""))
	assert.Equal(t, "https://www.golem.de/news/b.webp 1x", frag.Find("source").AttrOr("srcset", ""))
	assert.Equal(t, "https://www.golem.de/news/poster.jpg", frag.Find("video").AttrOr("poster", ""))
	assert.Equal(t, "%zz", frag.Find("a").Last().AttrOr("href", ""), "unresolvable href is left alone")
}
