// Package merge drives a merge run: it discovers the pages of an article,
// fetches and sanitizes each one in order and folds the results into a
// single MergedDocument that is handed to one output.
package merge

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/pagination"
	"github.com/pevans/onepager/sanitize"
	"github.com/pevans/onepager/site"
	"github.com/pevans/onepager/urlnorm"
	"github.com/sirupsen/logrus"
)

// ErrNoArticleFound is returned when the start page has no main article
// element. Nothing is fetched in that case.
var ErrNoArticleFound = errors.New("no article found on page")

// Fetcher retrieves and parses a single page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*goquery.Document, error)
}

// Output receives the finished document. Exactly one output is used per
// merge.
type Output interface {
	Deliver(ctx context.Context, doc *article.MergedDocument) error
}

// OutputFunc adapts a function to Output.
type OutputFunc func(ctx context.Context, doc *article.MergedDocument) error

// Deliver calls f.
func (f OutputFunc) Deliver(ctx context.Context, doc *article.MergedDocument) error {
	return f(ctx, doc)
}

// Host is the page the merge starts from. Doc is the already loaded
// document; it is read during the merge and never re-fetched.
type Host struct {
	URL string
	Doc *goquery.Document
}

// Key identifies the host page regardless of query string or fragment.
// Descriptors with the same key are the host page itself.
func (h Host) Key() string {
	abs, err := urlnorm.Resolve(h.URL, h.URL)
	if err != nil {
		abs = h.URL
	}
	return urlnorm.PageKey(abs)
}

// Options configures a Merger.
type Options struct {
	Profile site.Profile
	Fetcher Fetcher
	Logger  logrus.FieldLogger
}

// Merger runs merges for one site profile.
type Merger struct {
	profile   site.Profile
	fetcher   Fetcher
	sanitizer *sanitize.Sanitizer
	log       logrus.FieldLogger
}

// New creates a Merger. The profile must be valid and a Fetcher is
// required.
func New(opts Options) (*Merger, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if err := opts.Profile.Validate(); err != nil {
		return nil, err
	}

	s, err := sanitize.New(opts.Profile)
	if err != nil {
		return nil, fmt.Errorf("failed to compile profile: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Merger{
		profile:   opts.Profile,
		fetcher:   opts.Fetcher,
		sanitizer: s,
		log:       log,
	}, nil
}

// PageResult is the outcome of fetching and sanitizing one page. Exactly
// one of Fragment and Err is set.
type PageResult struct {
	Descriptor article.PageDescriptor
	Fragment   *article.Fragment
	Err        error
}

// Result summarizes a merge run.
type Result struct {
	ID       string
	Document *article.MergedDocument
	// Merged counts pages that contributed content. Failed counts pages
	// that could not be fetched or parsed; Skipped counts pages without an
	// article or whose article was empty after cleaning.
	Merged  int
	Failed  int
	Skipped int
}

// Summary is the message shown to the user after a merge.
func (r *Result) Summary() string {
	return fmt.Sprintf("Merged %d page(s).", r.Merged)
}

// Candidates returns the pages to merge for host: every discovered link
// plus the host page itself, unique by page (query and fragment ignored),
// stably sorted by page number and capped at the profile's page limit. A
// link to the host page collapses into the host's own descriptor.
func (m *Merger) Candidates(host Host) []article.PageDescriptor {
	discovered := pagination.Discover(host.Doc, host.URL, m.profile)

	seen := map[string]bool{}
	descriptors := make([]article.PageDescriptor, 0, len(discovered)+1)
	add := func(raw string) {
		abs, err := urlnorm.Resolve(raw, host.URL)
		if err != nil {
			m.log.WithFields(logrus.Fields{
				"url":   raw,
				"error": err,
			}).Debug("Dropping unresolvable page URL")
			return
		}
		key := urlnorm.PageKey(abs)
		if seen[key] {
			return
		}
		seen[key] = true
		descriptors = append(descriptors, article.PageDescriptor{
			URL:    abs,
			Number: pagination.PageNumber(key),
		})
	}

	add(host.URL)
	for _, link := range discovered {
		add(link)
	}

	slices.SortStableFunc(descriptors, func(a, b article.PageDescriptor) int {
		return cmp.Compare(a.Number, b.Number)
	})

	if limit := m.profile.MaxPages; limit > 0 && len(descriptors) > limit {
		m.log.WithFields(logrus.Fields{
			"found": len(descriptors),
			"limit": limit,
		}).Warn("Too many pages, truncating")
		descriptors = descriptors[:limit]
	}

	return descriptors
}

// Pages fetches and sanitizes each descriptor in order, one at a time. The
// host page's own document is reused instead of being fetched. The
// sequence stops early when ctx is done.
func (m *Merger) Pages(ctx context.Context, host Host, descriptors []article.PageDescriptor) iter.Seq[PageResult] {
	hostKey := host.Key()

	return func(yield func(PageResult) bool) {
		for _, d := range descriptors {
			if ctx.Err() != nil {
				return
			}

			doc := host.Doc
			if urlnorm.PageKey(d.URL) != hostKey {
				fetched, err := m.fetcher.Fetch(ctx, d.URL)
				if err != nil {
					if !yield(PageResult{Descriptor: d, Err: err}) {
						return
					}
					continue
				}
				doc = fetched
			}

			frag, err := m.fragment(doc, d.URL)
			if !yield(PageResult{Descriptor: d, Fragment: frag, Err: err}) {
				return
			}
		}
	}
}

// fragment extracts and normalizes the article of one page.
func (m *Merger) fragment(doc *goquery.Document, pageURL string) (*article.Fragment, error) {
	extracted, err := m.sanitizer.Extract(doc)
	if err != nil {
		return nil, err
	}
	urlnorm.Absolutize(extracted.Selection, pageURL)
	return article.NewFragment(extracted.Nodes[0]), nil
}

// Merge runs a full merge from host and hands the document to out. Per-page
// failures only reduce the merged count; the run fails when the host page
// has no article, when ctx is cancelled, or when out fails.
func (m *Merger) Merge(ctx context.Context, host Host, out Output) (*Result, error) {
	if host.Doc == nil {
		return nil, errors.New("host document is required")
	}
	if m.sanitizer.Article(host.Doc).Length() == 0 {
		return nil, ErrNoArticleFound
	}

	res := &Result{ID: uuid.NewString()}
	log := m.log.WithFields(logrus.Fields{
		"merge_id": res.ID,
		"url":      host.URL,
	})

	doc := &article.MergedDocument{
		SourceURL: host.URL,
		Meta:      sanitize.Metadata(host.Doc, host.URL),
	}
	doc.Title, doc.TitleHTML = sanitize.Title(host.Doc, m.profile.TitleSelector)

	candidates := m.Candidates(host)
	log.WithField("pages", len(candidates)).Info("Merging article")

	for page := range m.Pages(ctx, host, candidates) {
		switch {
		case errors.Is(page.Err, sanitize.ErrNotFound):
			res.Skipped++
			log.WithField("url", page.Descriptor.URL).Debug("Page has no article")
		case page.Err != nil:
			res.Failed++
			log.WithFields(logrus.Fields{
				"page":  page.Descriptor.Number,
				"url":   page.Descriptor.URL,
				"error": page.Err,
			}).Warn("Skipping page")
		case page.Fragment.Empty():
			res.Skipped++
			log.WithField("url", page.Descriptor.URL).Debug("Page has no content")
		default:
			res.Merged++
			doc.Pages = append(doc.Pages, article.Page{
				Descriptor: page.Descriptor,
				Fragment:   page.Fragment,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("merge cancelled: %w", err)
	}

	res.Document = doc
	log = log.WithFields(logrus.Fields{
		"merged":  res.Merged,
		"failed":  res.Failed,
		"skipped": res.Skipped,
	})
	if out != nil {
		if err := out.Deliver(ctx, doc); err != nil {
			log.WithField("error", err).Warn(res.Summary())
			return res, fmt.Errorf("failed to deliver merged document: %w", err)
		}
	}

	log.Info(res.Summary())

	return res, nil
}
