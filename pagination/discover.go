// Package pagination finds the sibling pages of a paginated article and
// orders them.
package pagination

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/onepager/site"
	"github.com/pevans/onepager/urlnorm"
)

// Paginated reports whether doc carries the site's pagination list. Pages
// without it expose no merge action.
func Paginated(doc *goquery.Document, pageURL string, profile site.Profile) bool {
	return len(Links(doc, pageURL, profile)) > 0
}

// Links collects the absolute URLs linked from every pagination list in
// doc. URLs are unique and returned in document order.
func Links(doc *goquery.Document, pageURL string, profile site.Profile) []string {
	if profile.PaginationList == "" {
		return nil
	}

	seen := map[string]bool{}
	var urls []string
	add := func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		abs, err := urlnorm.Resolve(href, pageURL)
		if err != nil || seen[abs] {
			return
		}
		seen[abs] = true
		urls = append(urls, abs)
	}

	doc.Find(profile.PaginationList).Each(func(_ int, list *goquery.Selection) {
		if profile.PaginationLink != "" {
			list.Find(profile.PaginationLink).Each(add)
		}
		list.Find("a").Each(add)
	})

	return urls
}

// FallbackLinks scans every anchor in doc and keeps those on the same origin
// as pageURL whose URL looks like an article page.
func FallbackLinks(doc *goquery.Document, pageURL string, profile site.Profile) []string {
	origin, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	pattern, err := profile.PathPattern()
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	var urls []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		abs, err := urlnorm.Resolve(href, pageURL)
		if err != nil || seen[abs] {
			return
		}
		u, err := url.Parse(abs)
		if err != nil || !sameOrigin(u, origin) || !pattern.MatchString(abs) {
			return
		}
		seen[abs] = true
		urls = append(urls, abs)
	})

	return urls
}

// Discover returns the pagination links of doc, falling back to the
// heuristic anchor scan when the page has no pagination list. An empty
// result means there is nothing to merge.
func Discover(doc *goquery.Document, pageURL string, profile site.Profile) []string {
	if urls := Links(doc, pageURL, profile); len(urls) > 0 {
		return urls
	}
	return FallbackLinks(doc, pageURL, profile)
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}
