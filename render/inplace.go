package render

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/merge"
	"github.com/pevans/onepager/sanitize"
	"github.com/pevans/onepager/site"
	"github.com/pevans/onepager/urlnorm"
)

// InPlace appends merged pages to the main article of the host document
// and strips the page's pagination controls.
type InPlace struct {
	host      merge.Host
	profile   site.Profile
	sanitizer *sanitize.Sanitizer
}

// NewInPlace returns an output that mutates host.Doc.
func NewInPlace(host merge.Host, profile site.Profile) (*InPlace, error) {
	s, err := sanitize.New(profile)
	if err != nil {
		return nil, err
	}
	return &InPlace{host: host, profile: profile, sanitizer: s}, nil
}

// Deliver appends every page except the host page itself, which is already
// on display, each behind a separator. Pages already appended stay in place
// if a later step fails.
func (r *InPlace) Deliver(_ context.Context, doc *article.MergedDocument) error {
	main := r.sanitizer.Article(r.host.Doc)
	if main.Length() == 0 {
		return merge.ErrNoArticleFound
	}

	hostKey := r.host.Key()
	for _, page := range doc.Pages {
		if urlnorm.PageKey(page.Descriptor.URL) == hostKey {
			continue
		}
		main.AppendHtml(Separator(page.Descriptor, r.profile))
		main.AppendSelection(page.Fragment.Selection())
	}

	r.removePaginationUI(main)
	return nil
}

// removePaginationUI deletes pagination blocks and the blocks around
// next/previous links outside the article. Nothing that encloses the main
// article is removed.
func (r *InPlace) removePaginationUI(main *goquery.Selection) {
	for _, sel := range r.profile.PaginationUI {
		r.host.Doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if !encloses(s, main) {
				s.Remove()
			}
		})
	}

	nav := r.profile.NavPattern()
	if nav == nil {
		return
	}
	r.host.Doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if main.Contains(a.Get(0)) || !nav.MatchString(strings.TrimSpace(a.Text())) {
			return
		}
		block := a.Closest("p, div, nav")
		if block.Length() > 0 && !encloses(block, main) {
			block.Remove()
		}
	})
}

func encloses(s, main *goquery.Selection) bool {
	target := main.Get(0)
	return s.Get(0) == target || s.Contains(target)
}
