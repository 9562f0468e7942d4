// Package render turns a merged document into output: appended to the live
// page, as a standalone HTML or Markdown document, or as the body markup
// used for publishing.
package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/site"
)

// Format selects the serialization of a standalone document.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// ParseFormat parses a format name. The empty string selects HTML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html":
		return FormatHTML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// Extension returns the file extension for documents in f.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return ".md"
	}
	return ".html"
}

// ContentType returns the MIME type for documents in f.
func (f Format) ContentType() string {
	if f == FormatMarkdown {
		return "text/markdown; charset=utf-8"
	}
	return "text/html; charset=utf-8"
}

// Separator returns the divider and label placed before a merged page,
// linking back to the page it came from.
func Separator(d article.PageDescriptor, profile site.Profile) string {
	return fmt.Sprintf(
		`<hr class="gm-merged-sep"><div class="gm-merged-label">— %s %d — <a href="%s" target="_blank" rel="noopener">%s</a></div>`,
		template.HTMLEscapeString(profile.PageLabel),
		d.Number,
		template.HTMLEscapeString(d.URL),
		template.HTMLEscapeString(profile.OriginalLabel),
	)
}

// Body returns the merged article markup: the title followed by every
// page's fragment, each page after the first preceded by a separator.
func Body(doc *article.MergedDocument, profile site.Profile) string {
	var b strings.Builder
	b.WriteString(doc.TitleHTML)
	for i, page := range doc.Pages {
		if i > 0 {
			b.WriteString("\n")
			b.WriteString(Separator(page.Descriptor, profile))
		}
		b.WriteString(page.Fragment.HTML())
	}
	return b.String()
}
