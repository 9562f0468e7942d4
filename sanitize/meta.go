package sanitize

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/pevans/onepager/article"
)

// Metadata reads author, summary, image and publication date from the meta
// tags of doc. When author or summary are missing, readability's byline and
// excerpt fill the gap.
func Metadata(doc *goquery.Document, pageURL string) article.Meta {
	meta := article.Meta{
		Author:        metaContent(doc, `meta[name="author"]`),
		Summary:       metaContent(doc, `meta[name="description"]`),
		ImageURL:      metaContent(doc, `meta[property="og:image"]`),
		PublishedDate: metaContent(doc, `meta[property="article:published_time"]`),
	}

	if meta.Author != "" && meta.Summary != "" {
		return meta
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return meta
	}
	// readability rewrites the tree it is given, so it works on a copy.
	markup, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return meta
	}
	parsed, err := readability.FromReader(strings.NewReader(markup), u)
	if err != nil {
		return meta
	}

	if meta.Author == "" {
		meta.Author = strings.TrimSpace(parsed.Byline)
	}
	if meta.Summary == "" {
		meta.Summary = strings.TrimSpace(parsed.Excerpt)
	}
	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// Title returns the text and outer markup of the first element matching
// selector, usually the page's h1.
func Title(doc *goquery.Document, selector string) (text, markup string) {
	if selector == "" {
		return "", ""
	}
	heading := doc.Find(selector).First()
	if heading.Length() == 0 {
		return "", ""
	}
	markup, err := goquery.OuterHtml(heading)
	if err != nil {
		markup = ""
	}
	return strings.Join(strings.Fields(heading.Text()), " "), markup
}
