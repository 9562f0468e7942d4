// Package sanitize extracts the article body from a page and strips
// everything that is not article content.
package sanitize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/site"
)

// ErrNotFound is returned when none of the article selectors match.
var ErrNotFound = errors.New("article container not found")

// Sanitizer holds the compiled selectors of a site profile.
type Sanitizer struct {
	articles        []cascadia.Selector
	clutter         []cascadia.Selector
	adSlot          cascadia.Selector
	sponsoredList   cascadia.Selector
	sponsoredLabel  cascadia.Selector
	sponsoredText   string
	galleryWrapper  cascadia.Selector
	galleryInactive cascadia.Selector
}

// New compiles the selectors in profile.
func New(profile site.Profile) (*Sanitizer, error) {
	s := &Sanitizer{sponsoredText: profile.SponsoredText}

	for _, sel := range profile.ArticleSelectors {
		m, err := compile(sel)
		if err != nil {
			return nil, err
		}
		s.articles = append(s.articles, m)
	}
	for _, sel := range profile.Clutter {
		m, err := compile(sel)
		if err != nil {
			return nil, err
		}
		s.clutter = append(s.clutter, m)
	}

	var err error
	if s.adSlot, err = compile(profile.AdSlot); err != nil {
		return nil, err
	}
	if s.sponsoredList, err = compile(profile.SponsoredList); err != nil {
		return nil, err
	}
	if s.sponsoredLabel, err = compile(profile.SponsoredLabel); err != nil {
		return nil, err
	}
	if s.galleryWrapper, err = compile(profile.GalleryWrapper); err != nil {
		return nil, err
	}
	if s.galleryInactive, err = compile(profile.GalleryInactiveItem); err != nil {
		return nil, err
	}

	return s, nil
}

// compile returns nil for an empty selector so optional rules can be
// skipped.
func compile(sel string) (cascadia.Selector, error) {
	if sel == "" {
		return nil, nil
	}
	m, err := cascadia.Compile(sel)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", sel, err)
	}
	return m, nil
}

// Article returns the main article element of doc: the first match of the
// first article selector that matches anything. The selection is empty
// when nothing matches.
func (s *Sanitizer) Article(doc *goquery.Document) *goquery.Selection {
	for _, m := range s.articles {
		if found := doc.FindMatcher(m); found.Length() > 0 {
			return found.First()
		}
	}
	return doc.FilterNodes()
}

// Extract copies the children of doc's article element, except top-level
// headings, into a detached container and cleans it. The source document is
// not modified.
func (s *Sanitizer) Extract(doc *goquery.Document) (*goquery.Document, error) {
	container := s.Article(doc)
	if container.Length() == 0 {
		return nil, ErrNotFound
	}

	root := article.NewContainer()
	container.Children().Not("h1").Clone().Each(func(_ int, child *goquery.Selection) {
		root.AppendChild(child.Nodes[0])
	})

	frag := goquery.NewDocumentFromNode(root)
	frag.Url = doc.Url
	s.Clean(frag.Selection)

	return frag, nil
}

// Clean strips clutter below frag: fixed structural blocks, ad slots
// together with their wrapper, sponsored link lists and inactive gallery
// items. Cleaning an already clean fragment changes nothing.
func (s *Sanitizer) Clean(frag *goquery.Selection) {
	for _, m := range s.clutter {
		frag.FindMatcher(m).Remove()
	}

	if s.adSlot != nil {
		frag.FindMatcher(s.adSlot).Each(func(_ int, slot *goquery.Selection) {
			parent := slot.Parent()
			// A slot sitting directly in the fragment has no wrapper of its
			// own; the fragment root must survive.
			if parent.Length() == 0 || isRoot(frag, parent) {
				slot.Remove()
				return
			}
			parent.Remove()
		})
	}

	if s.sponsoredList != nil && s.sponsoredLabel != nil {
		frag.FindMatcher(s.sponsoredList).Each(func(_ int, list *goquery.Selection) {
			label := list.FindMatcher(s.sponsoredLabel).First()
			if label.Length() > 0 && strings.TrimSpace(label.Text()) == s.sponsoredText {
				list.Remove()
			}
		})
	}

	if s.galleryWrapper != nil && s.galleryInactive != nil {
		frag.FindMatcher(s.galleryWrapper).Each(func(_ int, wrapper *goquery.Selection) {
			wrapper.FindMatcher(s.galleryInactive).Remove()
		})
	}
}

func isRoot(frag, sel *goquery.Selection) bool {
	for _, n := range frag.Nodes {
		if sel.Nodes[0] == n {
			return true
		}
	}
	return false
}
