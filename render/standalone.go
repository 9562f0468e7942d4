package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/site"
)

// DefaultTitle is used when the article has no heading.
const DefaultTitle = "Merged Article"

const readingStyle = `
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif; line-height: 1.6; margin: 20px; color: #222; }
article { max-width: 900px; margin: 0 auto; }
h1 { font-size: 2em; margin-bottom: 0.5em; }
img, video { max-width: 100%; height: auto; }
.gm-merged-sep { margin: 28px 0; border: none; border-top: 1px solid #ccc; }
.gm-merged-label { text-align: center; opacity: 0.75; font-size: 0.9em; margin: 10px 0 18px; }
.gm-merged-label a { margin-left: 8px; font-size: 0.8em; opacity: 0.8; }
`

var documentTemplate = template.Must(template.New("document").Parse(`<!doctype html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}}</title>
<style>{{.Style}}</style>
</head>
<body><article>{{.Body}}</article></body>
</html>
`))

var markdown = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Document renders doc as a self-contained document in the given format.
func Document(doc *article.MergedDocument, format Format, profile site.Profile) ([]byte, error) {
	body := Body(doc, profile)

	switch format {
	case FormatMarkdown:
		md, err := markdown.ConvertString(body, converter.WithDomain(doc.SourceURL))
		if err != nil {
			return nil, fmt.Errorf("failed to convert to markdown: %w", err)
		}
		return []byte(strings.TrimSpace(md) + "\n"), nil

	case FormatHTML, "":
		title := doc.Title
		if title == "" {
			title = DefaultTitle
		}
		lang := profile.Language
		if lang == "" {
			lang = "en"
		}

		var buf bytes.Buffer
		err := documentTemplate.Execute(&buf, struct {
			Lang  string
			Title string
			Style template.CSS
			Body  template.HTML
		}{
			Lang:  lang,
			Title: title,
			Style: template.CSS(readingStyle),
			Body:  template.HTML(body),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to render document: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Standalone writes the merged document to w.
type Standalone struct {
	w       io.Writer
	format  Format
	profile site.Profile
}

// NewStandalone returns an output that writes a standalone document to w.
func NewStandalone(w io.Writer, format Format, profile site.Profile) *Standalone {
	return &Standalone{w: w, format: format, profile: profile}
}

// Deliver renders doc and writes it out.
func (s *Standalone) Deliver(_ context.Context, doc *article.MergedDocument) error {
	out, err := Document(doc, s.format, s.profile)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(out); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}
