// Package urlnorm resolves relative URLs found in article markup against the
// URL of the page they came from.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrInvalidURL is returned when an href cannot be resolved to an absolute
// URL.
var ErrInvalidURL = errors.New("invalid url")

// Resolve returns href as an absolute URL relative to base. base must itself
// be absolute.
func Resolve(href, base string) (string, error) {
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %v", ErrInvalidURL, base, err)
	}
	if !baseURL.IsAbs() {
		return "", fmt.Errorf("%w: base %q is not absolute", ErrInvalidURL, base)
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, href, err)
	}

	return baseURL.ResolveReference(ref).String(), nil
}

// CheckOrigin returns an error wrapping ErrInvalidURL unless rawURL is an
// absolute http(s) URL on the same scheme and host as origin.
func CheckOrigin(rawURL, origin string) error {
	want, err := url.Parse(origin)
	if err != nil || !want.IsAbs() {
		return fmt.Errorf("%w: origin %q is not absolute", ErrInvalidURL, origin)
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidURL, rawURL)
	}
	if !strings.EqualFold(u.Scheme, want.Scheme) || !strings.EqualFold(u.Host, want.Host) {
		return fmt.Errorf("%w: %q is not on %s", ErrInvalidURL, rawURL, want.Scheme+"://"+want.Host)
	}
	return nil
}

// PageKey returns rawURL without its query and fragment, identifying the
// page it points at. Unparsable input is returned unchanged.
func PageKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// ResolveSrcset resolves every candidate URL in a srcset attribute value,
// keeping each candidate's width or density descriptor. Candidates that
// cannot be resolved are kept verbatim.
func ResolveSrcset(srcset, base string) string {
	var candidates []string
	for part := range strings.SplitSeq(srcset, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}

		candidate := fields[0]
		if abs, err := Resolve(candidate, base); err == nil {
			candidate = abs
		}
		if len(fields) > 1 {
			candidate += " " + fields[1]
		}
		candidates = append(candidates, candidate)
	}
	return strings.Join(candidates, ", ")
}

// urlAttrs lists the single-URL attributes rewritten by Absolutize.
var urlAttrs = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"a[href]", "href"},
	{"source[src]", "src"},
	{"video[poster]", "poster"},
}

// Absolutize rewrites every URL-bearing attribute below sel to absolute
// form. Attributes that cannot be resolved are left untouched.
func Absolutize(sel *goquery.Selection, base string) {
	for _, ua := range urlAttrs {
		sel.Find(ua.selector).Each(func(_ int, s *goquery.Selection) {
			value, _ := s.Attr(ua.attr)
			if abs, err := Resolve(value, base); err == nil {
				s.SetAttr(ua.attr, abs)
			}
		})
	}

	sel.Find("img[srcset], source[srcset]").Each(func(_ int, s *goquery.Selection) {
		value, _ := s.Attr("srcset")
		s.SetAttr("srcset", ResolveSrcset(value, base))
	})
}
