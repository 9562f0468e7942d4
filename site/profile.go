package site

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

// Profile describes the markup convention of the one site whose paginated
// articles can be merged: where the article body lives, how pagination is
// linked, and which elements are clutter.
type Profile struct {
	Name     string `yaml:"name" json:"name"`
	Language string `yaml:"language" json:"language"`
	// Origin is the scheme and host articles are served from. Start URLs
	// on any other origin are refused.
	Origin string `yaml:"origin" json:"origin"`

	// ArticleSelectors is a priority chain. Site-specific containers come
	// first; generic ones are only tried when those fail.
	ArticleSelectors []string `yaml:"article_selectors" json:"article_selectors"`
	TitleSelector    string   `yaml:"title_selector" json:"title_selector"`

	PaginationList string `yaml:"pagination_list" json:"pagination_list"`
	PaginationLink string `yaml:"pagination_link" json:"pagination_link"`

	// ArticlePath is matched (case-insensitively) against absolute URLs
	// when no pagination list is present.
	ArticlePath string `yaml:"article_path" json:"article_path"`

	Clutter             []string `yaml:"clutter" json:"clutter"`
	AdSlot              string   `yaml:"ad_slot" json:"ad_slot"`
	SponsoredList       string   `yaml:"sponsored_list" json:"sponsored_list"`
	SponsoredLabel      string   `yaml:"sponsored_label" json:"sponsored_label"`
	SponsoredText       string   `yaml:"sponsored_text" json:"sponsored_text"`
	GalleryWrapper      string   `yaml:"gallery_wrapper" json:"gallery_wrapper"`
	GalleryInactiveItem string   `yaml:"gallery_inactive_item" json:"gallery_inactive_item"`

	// PaginationUI and NavPhrases are removed from the live document after
	// an in-place merge.
	PaginationUI []string `yaml:"pagination_ui" json:"pagination_ui"`
	NavPhrases   []string `yaml:"nav_phrases" json:"nav_phrases"`

	PageLabel     string `yaml:"page_label" json:"page_label"`
	OriginalLabel string `yaml:"original_label" json:"original_label"`
	Tag           string `yaml:"tag" json:"tag"`

	MaxPages int `yaml:"max_pages" json:"max_pages"`
}

// Golem returns the profile for golem.de news articles.
func Golem() Profile {
	return Profile{
		Name:     "golem.de",
		Language: "de",
		Origin:   "https://www.golem.de",
		ArticleSelectors: []string{
			"main article",
			"article.article",
			"article",
			".article__body",
			".article-content",
			".content",
			"#content",
		},
		TitleSelector:  "h1",
		PaginationList: ".go-pagination__list",
		PaginationLink: "a.gsnw-link__article-pagination",
		ArticlePath:    `/news/.+-?\d*\.html$`,
		Clutter: []string{
			".go-button-bar",
			".go-teaser-block",
			".go-pagination",
			".go-gallery__actions",
		},
		AdSlot:              ".go-ad-slot",
		SponsoredList:       ".go-alink-list",
		SponsoredLabel:      ".go-alink__label",
		SponsoredText:       "Reklame",
		GalleryWrapper:      ".go-gallery__wrapper",
		GalleryInactiveItem: `.go-gallery__item[data-active="false"]`,
		PaginationUI: []string{
			".go-pagination__list",
			".pagination",
			".paginator",
			"nav.pagination",
			".page-nav",
			".article-pages",
			".go-pagination",
		},
		NavPhrases:    []string{"Nächste", "Vorherige", "Next", "Previous", "Seite"},
		PageLabel:     "Seite",
		OriginalLabel: "Originalseite",
		Tag:           "golem.de",
		MaxPages:      30,
	}
}

// Validate checks that every selector compiles and the path pattern is a
// valid regular expression.
func (p Profile) Validate() error {
	if len(p.ArticleSelectors) == 0 {
		return fmt.Errorf("profile %q: no article selectors", p.Name)
	}
	if p.MaxPages < 1 {
		return fmt.Errorf("profile %q: max_pages must be at least 1", p.Name)
	}

	selectors := append([]string{}, p.ArticleSelectors...)
	selectors = append(selectors, p.Clutter...)
	selectors = append(selectors, p.PaginationUI...)
	selectors = append(selectors,
		p.TitleSelector,
		p.PaginationList,
		p.PaginationLink,
		p.AdSlot,
		p.SponsoredList,
		p.SponsoredLabel,
		p.GalleryWrapper,
		p.GalleryInactiveItem,
	)
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("profile %q: invalid selector %q: %w", p.Name, sel, err)
		}
	}

	if _, err := p.PathPattern(); err != nil {
		return fmt.Errorf("profile %q: invalid article path: %w", p.Name, err)
	}

	return nil
}

// PathPattern compiles ArticlePath as a case-insensitive expression. An
// empty ArticlePath matches nothing.
func (p Profile) PathPattern() (*regexp.Regexp, error) {
	if p.ArticlePath == "" {
		return regexp.Compile(`[^\s\S]`)
	}
	return regexp.Compile("(?i)" + p.ArticlePath)
}

// NavPattern builds the expression that recognizes pagination links by
// their visible text.
func (p Profile) NavPattern() *regexp.Regexp {
	if len(p.NavPhrases) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(p.NavPhrases))
	for _, phrase := range p.NavPhrases {
		quoted = append(quoted, regexp.QuoteMeta(phrase))
	}
	return regexp.MustCompile(`(?i)^(` + strings.Join(quoted, "|") + `)\b`)
}
