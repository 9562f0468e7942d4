// Package publish saves merged articles to Readwise Reader.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/render"
	"github.com/pevans/onepager/site"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultEndpoint is the Readwise Reader save API.
	DefaultEndpoint = "https://readwise.io/api/v3/save/"
	// DefaultSavedUsing is reported to Readwise as the saving client.
	DefaultSavedUsing = "Golem.de Merge Userscript"
	// TokenPrompt is shown when asking the user for a token.
	TokenPrompt = "Enter your Readwise access token (from readwise.io/access_token):\n\n(Token will be stored for future use)"

	maxErrorBody = 64 * 1024
)

// ErrUnauthorized is returned when no token is stored and none was
// provided at the prompt.
var ErrUnauthorized = errors.New("readwise token required")

// RejectedError is returned when Readwise answers with a non-success
// status.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("readwise API error (%d): %s", e.StatusCode, e.Body)
}

// TokenStore persists the Readwise token. GetToken returns "" when no
// token is stored.
type TokenStore interface {
	GetToken() (string, error)
	SetToken(token string) error
	DeleteToken() error
}

// Prompter asks the user for a token. An empty answer means the user
// cancelled.
type Prompter interface {
	PromptToken(ctx context.Context, message string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, message string) (string, error)

// PromptToken calls f.
func (f PrompterFunc) PromptToken(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// Payload is the JSON body of a save request.
type Payload struct {
	URL             string   `json:"url"`
	HTML            string   `json:"html"`
	ShouldCleanHTML bool     `json:"should_clean_html"`
	Title           string   `json:"title"`
	Author          string   `json:"author,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	PublishedDate   string   `json:"published_date,omitempty"`
	Category        string   `json:"category"`
	SavedUsing      string   `json:"saved_using"`
	Location        string   `json:"location"`
	Tags            []string `json:"tags"`
}

// SaveResult is the response to a successful save.
type SaveResult struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Options configures a Publisher.
type Options struct {
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
	// SavedUsing defaults to DefaultSavedUsing.
	SavedUsing string
	// Tags defaults to the profile's tag.
	Tags    []string
	Profile site.Profile

	// Store is required. Prompter may be nil, in which case a missing
	// token fails immediately.
	Store    TokenStore
	Prompter Prompter

	Client *http.Client
	Logger logrus.FieldLogger
}

// Publisher submits merged documents to Readwise.
type Publisher struct {
	endpoint   string
	savedUsing string
	tags       []string
	profile    site.Profile
	store      TokenStore
	prompter   Prompter
	client     *http.Client
	log        logrus.FieldLogger
}

// New creates a Publisher.
func New(opts Options) (*Publisher, error) {
	if opts.Store == nil {
		return nil, errors.New("token store is required")
	}

	p := &Publisher{
		endpoint:   opts.Endpoint,
		savedUsing: opts.SavedUsing,
		tags:       opts.Tags,
		profile:    opts.Profile,
		store:      opts.Store,
		prompter:   opts.Prompter,
		client:     opts.Client,
		log:        opts.Logger,
	}
	if p.endpoint == "" {
		p.endpoint = DefaultEndpoint
	}
	if p.savedUsing == "" {
		p.savedUsing = DefaultSavedUsing
	}
	if len(p.tags) == 0 && opts.Profile.Tag != "" {
		p.tags = []string{opts.Profile.Tag}
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 30 * time.Second}
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}

	return p, nil
}

// Token returns the stored token, prompting for one and storing it when
// none is stored.
func (p *Publisher) Token(ctx context.Context) (string, error) {
	token, err := p.store.GetToken()
	if err != nil {
		p.log.WithError(err).Warn("Failed to read stored token")
	}
	if token = strings.TrimSpace(token); token != "" {
		return token, nil
	}

	if p.prompter == nil {
		return "", ErrUnauthorized
	}
	answer, err := p.prompter.PromptToken(ctx, TokenPrompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if token = strings.TrimSpace(answer); token == "" {
		return "", ErrUnauthorized
	}
	if err := p.store.SetToken(token); err != nil {
		return "", fmt.Errorf("%w: failed to store token: %v", ErrUnauthorized, err)
	}

	return token, nil
}

// NewPayload builds the save request for doc.
func (p *Publisher) NewPayload(doc *article.MergedDocument) Payload {
	title := doc.Title
	if title == "" {
		title = render.DefaultTitle
	}

	return Payload{
		URL:             doc.SourceURL,
		HTML:            "<article>" + render.Body(doc, p.profile) + "</article>",
		ShouldCleanHTML: true,
		Title:           title,
		Author:          doc.Meta.Author,
		Summary:         doc.Meta.Summary,
		ImageURL:        doc.Meta.ImageURL,
		PublishedDate:   doc.Meta.PublishedDate,
		Category:        "article",
		SavedUsing:      p.savedUsing,
		Location:        "new",
		Tags:            p.tags,
	}
}

// Publish saves doc to Readwise. No request is made without a token.
func (p *Publisher) Publish(ctx context.Context, doc *article.MergedDocument) (*SaveResult, error) {
	token, err := p.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(p.NewPayload(doc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send to readwise: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &RejectedError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	var result SaveResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode readwise response: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"url": doc.SourceURL,
		"id":  result.ID,
	}).Info("Saved to Readwise")

	return &result, nil
}

// Delivery is a merge output that publishes the document and keeps the
// result.
type Delivery struct {
	p      *Publisher
	Result *SaveResult
}

// Output returns a fresh merge output backed by p.
func (p *Publisher) Output() *Delivery {
	return &Delivery{p: p}
}

// Deliver publishes doc.
func (d *Delivery) Deliver(ctx context.Context, doc *article.MergedDocument) error {
	res, err := d.p.Publish(ctx, doc)
	if err != nil {
		return err
	}
	d.Result = res
	return nil
}
