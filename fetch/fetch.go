// Package fetch retrieves article pages over HTTP and parses them into
// documents.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const (
	// DefaultUserAgent identifies onepager to the origin server.
	DefaultUserAgent = "onepager/1.0 (paginated article merger)"

	maxBodySize = 10 * 1024 * 1024
)

// FetchError reports a page that could not be retrieved, either because the
// request failed or because the server answered with a non-success status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a response body that could not be turned into a
// document.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Options configures a Fetcher. Zero values select the defaults noted on
// each field.
type Options struct {
	// Timeout bounds a single request. Default: 10s.
	Timeout time.Duration
	// MinInterval is the minimum spacing between requests to the origin.
	// Zero disables the limiter.
	MinInterval time.Duration
	// Retries is how many times a network failure or 5xx is retried.
	Retries int
	// UserAgent defaults to DefaultUserAgent.
	UserAgent string
	// Origin and Cookie form the credentials sent with requests. The
	// cookie is only attached to requests whose origin equals Origin.
	Origin string
	Cookie string
	// CacheTTL keeps fetched bodies in memory for reuse. Zero disables
	// the cache.
	CacheTTL time.Duration

	Client *http.Client
	Logger logrus.FieldLogger
}

// Fetcher performs GET requests for article pages.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	cache     *cache.Cache
	retries   int
	userAgent string
	origin    *url.URL
	cookie    string
	log       logrus.FieldLogger
}

// New creates a Fetcher from opts.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	f := &Fetcher{
		client:    client,
		retries:   max(opts.Retries, 0),
		userAgent: opts.UserAgent,
		cookie:    opts.Cookie,
		log:       opts.Logger,
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.log == nil {
		f.log = logrus.StandardLogger()
	}
	if opts.MinInterval > 0 {
		f.limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	if opts.CacheTTL > 0 {
		f.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	if opts.Origin != "" {
		if u, err := url.Parse(opts.Origin); err == nil && u.IsAbs() {
			f.origin = u
		}
	}

	return f
}

// Fetch retrieves pageURL and parses it. Failures are reported as
// *FetchError or *ParseError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil || !u.IsAbs() {
		return nil, &FetchError{URL: pageURL, Err: errors.New("invalid url")}
	}

	body, contentType, err := f.body(ctx, u)
	if err != nil {
		return nil, err
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: fmt.Errorf("failed to decode charset: %w", err)}
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, &ParseError{URL: pageURL, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}
	doc.Url = u

	return doc, nil
}

type cachedBody struct {
	body        []byte
	contentType string
}

// body returns the raw response body for u, from the cache when possible.
func (f *Fetcher) body(ctx context.Context, u *url.URL) ([]byte, string, error) {
	key := u.String()
	if f.cache != nil {
		if v, ok := f.cache.Get(key); ok {
			cb := v.(cachedBody)
			f.log.WithField("url", key).Debug("Page served from cache")
			return cb.body, cb.contentType, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 100ms, 200ms, 400ms
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, "", &FetchError{URL: key, Err: ctx.Err()}
			}
		}

		body, contentType, err := f.do(ctx, u)
		if err == nil {
			if f.cache != nil {
				f.cache.SetDefault(key, cachedBody{body: body, contentType: contentType})
			}
			return body, contentType, nil
		}

		lastErr = err
		if !retryable(err) {
			break
		}
		f.log.WithFields(logrus.Fields{
			"url":     key,
			"attempt": attempt + 1,
			"error":   err,
		}).Debug("Fetch failed, retrying")
	}

	return nil, "", lastErr
}

// do performs a single GET request.
func (f *Fetcher) do(ctx context.Context, u *url.URL) ([]byte, string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, "", &FetchError{URL: u.String(), Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", &FetchError{URL: u.String(), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if f.cookie != "" && f.sameOrigin(u) {
		req.Header.Set("Cookie", f.cookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: u.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &FetchError{URL: u.String(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", &FetchError{URL: u.String(), Err: fmt.Errorf("failed to read body: %w", err)}
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// sameOrigin reports whether u shares scheme and host with the configured
// credential origin.
func (f *Fetcher) sameOrigin(u *url.URL) bool {
	return f.origin != nil && f.origin.Scheme == u.Scheme && f.origin.Host == u.Host
}

// retryable reports whether err is worth another attempt: transport
// failures and server errors are, client errors and cancellation are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		return fe.StatusCode >= 500
	}
	return true
}
