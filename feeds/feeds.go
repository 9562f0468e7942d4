// Package feeds turns a site's RSS or Atom feed into a list of articles to
// merge and runs those merges in a bounded batch.
package feeds

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/mmcdole/gofeed"
	"github.com/pevans/onepager/fetch"
	"github.com/pevans/onepager/site"
	"github.com/pevans/onepager/urlnorm"
)

// FetchFeed fetches and parses an RSS or Atom feed from the given URL. The
// gofeed library detects the format.
func FetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = fetch.DefaultUserAgent
	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return feed, nil
}

// ArticleURLs returns the links of feed items that look like article pages
// of profile, in feed order and without duplicates. Query strings and
// fragments are dropped, since feeds tend to add tracking parameters.
func ArticleURLs(ctx context.Context, feedURL string, profile site.Profile) ([]string, error) {
	feed, err := FetchFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return FilterItems(feed.Items, feedURL, profile)
}

// FilterItems keeps the item links on profile's origin that match its
// article path, resolved against feedURL.
func FilterItems(items []*gofeed.Item, feedURL string, profile site.Profile) ([]string, error) {
	pattern, err := profile.PathPattern()
	if err != nil {
		return nil, fmt.Errorf("invalid article path: %w", err)
	}
	base, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url: %w", err)
	}

	seen := map[string]bool{}
	urls := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil || item.Link == "" {
			continue
		}
		link, err := url.Parse(item.Link)
		if err != nil {
			continue
		}
		abs := urlnorm.PageKey(base.ResolveReference(link).String())
		if seen[abs] || !pattern.MatchString(abs) {
			continue
		}
		if profile.Origin != "" && urlnorm.CheckOrigin(abs, profile.Origin) != nil {
			continue
		}
		seen[abs] = true
		urls = append(urls, abs)
	}

	return urls, nil
}

// Job processes one article.
type Job func(ctx context.Context, articleURL string) error

// Outcome is the result of one job.
type Outcome struct {
	URL string
	Err error
}

// RunAll runs job for every URL with at most concurrency jobs in flight.
// Outcomes are returned in the order of urls. Jobs not yet started when
// ctx is done report ctx's error.
func RunAll(ctx context.Context, urls []string, concurrency int, job Job) []Outcome {
	if concurrency < 1 {
		concurrency = 1
	}

	outcomes := make([]Outcome, len(urls))
	semaphore := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, u := range urls {
		outcomes[i].URL = u
		if err := ctx.Err(); err != nil {
			outcomes[i].Err = err
			continue
		}

		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			outcomes[i].Err = ctx.Err()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()
			outcomes[i].Err = job(ctx, u)
		}()
	}

	wg.Wait()
	return outcomes
}
