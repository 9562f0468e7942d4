package article

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PageDescriptor identifies one page of a paginated article. Number 1 is
// the canonical (first) page.
type PageDescriptor struct {
	URL    string `json:"url"`
	Number int    `json:"page_number"`
}

// Fragment is the sanitized content extracted from one page: the child
// elements of the page's article container, minus its heading. A Fragment
// is never modified after NewFragment returns; accessors hand out copies.
type Fragment struct {
	root *html.Node
	html string
}

// NewFragment freezes the children of root into a Fragment. root is
// detached from whatever tree it came from and must not be used by the
// caller afterwards.
func NewFragment(root *html.Node) *Fragment {
	if root == nil {
		root = NewContainer()
	}
	if root.Parent != nil {
		root.Parent.RemoveChild(root)
	}

	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		// Rendering only fails on writer errors; a bytes.Buffer has none.
		_ = html.Render(&buf, c)
	}

	return &Fragment{root: root, html: buf.String()}
}

// NewContainer returns an empty detached <div> suitable as the root passed
// to NewFragment.
func NewContainer() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
}

// ElementCount reports how many element children the fragment holds. A
// fragment with no elements contributes nothing to a merge.
func (f *Fragment) ElementCount() int {
	n := 0
	for c := f.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			n++
		}
	}
	return n
}

// Empty reports whether the fragment has no element content.
func (f *Fragment) Empty() bool {
	return f.ElementCount() == 0
}

// HTML returns the serialized markup of the fragment's children.
func (f *Fragment) HTML() string {
	return f.html
}

// Selection returns a deep copy of the fragment's children, ready to be
// inserted into another document.
func (f *Fragment) Selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(f.root).Contents().Clone()
}

// Page pairs a descriptor with the fragment fetched for it.
type Page struct {
	Descriptor PageDescriptor
	Fragment   *Fragment
}

// Meta holds page-level metadata read from the canonical page.
type Meta struct {
	Author        string `json:"author,omitempty"`
	Summary       string `json:"summary,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
}

// MergedDocument is the result of stitching every page of an article
// together. Pages are sorted ascending by page number and no URL appears
// twice.
type MergedDocument struct {
	Title     string
	TitleHTML string
	SourceURL string
	Meta      Meta
	Pages     []Page
}

// Len returns the number of merged pages.
func (d *MergedDocument) Len() int {
	return len(d.Pages)
}
