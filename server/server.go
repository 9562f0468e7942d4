// Package server exposes merging over HTTP. Merged documents are kept in
// memory for a limited time and served by ID.
package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/pevans/onepager/article"
	"github.com/pevans/onepager/config"
	"github.com/pevans/onepager/merge"
	"github.com/pevans/onepager/pagination"
	"github.com/pevans/onepager/publish"
	"github.com/pevans/onepager/render"
	"github.com/pevans/onepager/site"
	"github.com/pevans/onepager/urlnorm"
	"github.com/sirupsen/logrus"
)

// Options configures a MergeAPIServer. Publisher and Tokens are optional;
// without them the publish action and the token routes are unavailable.
type Options struct {
	Profile   site.Profile
	Merger    *merge.Merger
	Fetcher   merge.Fetcher
	Publisher *publish.Publisher
	Tokens    *config.TokenStore
	// ArtifactTTL is how long merged documents can be downloaded.
	// Default: 1h.
	ArtifactTTL time.Duration
	Logger      logrus.FieldLogger
}

// MergeAPIServer represents the HTTP API server for merging articles.
type MergeAPIServer struct {
	profile   site.Profile
	merger    *merge.Merger
	fetcher   merge.Fetcher
	publisher *publish.Publisher
	tokens    *config.TokenStore
	artifacts *cache.Cache
	log       logrus.FieldLogger
}

// artifact is a rendered document waiting to be downloaded.
type artifact struct {
	ContentType string
	Body        []byte
}

// New creates a new merge API server.
func New(opts Options) *MergeAPIServer {
	ttl := opts.ArtifactTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &MergeAPIServer{
		profile:   opts.Profile,
		merger:    opts.Merger,
		fetcher:   opts.Fetcher,
		publisher: opts.Publisher,
		tokens:    opts.Tokens,
		artifacts: cache.New(ttl, 2*ttl),
		log:       log,
	}
}

// SetupRouter configures the Gin router with all API routes.
func (s *MergeAPIServer) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))

	// Add CORS middleware. Browsers may only call the API from the site's
	// own pages.
	router.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if !strings.EqualFold(origin, strings.TrimSuffix(s.profile.Origin, "/")) {
				c.AbortWithStatusJSON(http.StatusForbidden, config.ErrorResponse("forbidden_origin", "Origin not allowed"))
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	api := router.Group("/api/v1")
	{
		api.POST("/merge", s.HandleMerge)
		api.GET("/documents/:id", s.HandleGetDocument)
	}

	if s.tokens != nil {
		config.NewTokenAPIServer(s.tokens).RegisterRoutes(api.Group("/meta"))
	}

	return router
}

// requestLogger logs every request through logrus.
func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("Request served")
	}
}

// MergeRequest represents the request for POST /api/v1/merge.
type MergeRequest struct {
	URL    string `json:"url" binding:"required"`
	Action string `json:"action"`
	Format string `json:"format"`
	// Force merges pages without a pagination list.
	Force bool `json:"force"`
}

// MergeResponse represents the response for POST /api/v1/merge.
type MergeResponse struct {
	MergeID    string `json:"merge_id"`
	Action     string `json:"action"`
	Merged     int    `json:"merged"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Message    string `json:"message"`
	DocumentID string `json:"document_id,omitempty"`
	ReadwiseID string `json:"readwise_id,omitempty"`
}

// HandleMerge handles POST /api/v1/merge.
func (s *MergeAPIServer) HandleMerge(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, config.ErrorResponse("bad_request", err.Error()))
		return
	}

	action := article.MergeToDocument
	if req.Action != "" {
		parsed, err := article.ParseAction(req.Action)
		if err != nil || !parsed.IsMerge() {
			c.JSON(http.StatusBadRequest, config.ErrorResponse("validation_error", "action must be one of inplace, document, publish"))
			return
		}
		action = parsed
	}

	format, err := render.ParseFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, config.ErrorResponse("validation_error", err.Error()))
		return
	}

	if action == article.MergePublish && s.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, config.ErrorResponse("publish_unavailable", "Publishing is not configured"))
		return
	}

	if err := urlnorm.CheckOrigin(req.URL, s.profile.Origin); err != nil {
		c.JSON(http.StatusUnprocessableEntity, config.ErrorResponse("invalid_url", err.Error()))
		return
	}

	ctx := c.Request.Context()
	doc, err := s.fetcher.Fetch(ctx, req.URL)
	if err != nil {
		c.JSON(http.StatusBadGateway, config.ErrorResponse("fetch_failed", err.Error()))
		return
	}
	host := merge.Host{URL: req.URL, Doc: doc}

	if !req.Force && !pagination.Paginated(doc, req.URL, s.profile) {
		c.JSON(http.StatusUnprocessableEntity, config.ErrorResponse("not_paginated", "Page has no pagination; nothing to merge"))
		return
	}

	var (
		out      merge.Output
		buf      bytes.Buffer
		delivery *publish.Delivery
	)
	switch action {
	case article.MergeInPlace:
		inPlace, err := render.NewInPlace(host, s.profile)
		if err != nil {
			c.JSON(http.StatusInternalServerError, config.ErrorResponse("internal_error", err.Error()))
			return
		}
		out = inPlace
	case article.MergePublish:
		delivery = s.publisher.Output()
		out = delivery
	default:
		out = render.NewStandalone(&buf, format, s.profile)
	}

	res, err := s.merger.Merge(ctx, host, out)
	if err != nil {
		s.respondMergeError(c, res, err)
		return
	}

	resp := MergeResponse{
		MergeID: res.ID,
		Action:  action.String(),
		Merged:  res.Merged,
		Failed:  res.Failed,
		Skipped: res.Skipped,
		Message: res.Summary(),
	}

	switch action {
	case article.MergeInPlace:
		page, err := doc.Html()
		if err != nil {
			c.JSON(http.StatusInternalServerError, config.ErrorResponse("internal_error", "Failed to render page"))
			return
		}
		resp.DocumentID = s.store(res.ID, render.FormatHTML.ContentType(), []byte(page))
	case article.MergePublish:
		resp.ReadwiseID = delivery.Result.ID
	default:
		resp.DocumentID = s.store(res.ID, format.ContentType(), buf.Bytes())
	}

	c.JSON(http.StatusOK, resp)
}

// store keeps a rendered document for download and returns its ID.
func (s *MergeAPIServer) store(id, contentType string, body []byte) string {
	s.artifacts.SetDefault(id, artifact{ContentType: contentType, Body: body})
	return id
}

// respondMergeError maps merge failures to HTTP errors. When the pages
// were merged before the failure, the count is reported alongside.
func (s *MergeAPIServer) respondMergeError(c *gin.Context, res *merge.Result, err error) {
	var (
		status   int
		body     gin.H
		rejected *publish.RejectedError
	)
	switch {
	case errors.Is(err, merge.ErrNoArticleFound):
		status, body = http.StatusUnprocessableEntity, config.ErrorResponse("no_article", "Could not find the main article element")
	case errors.Is(err, publish.ErrUnauthorized):
		status, body = http.StatusUnauthorized, config.ErrorResponse("unauthorized", "Readwise token required")
	case errors.As(err, &rejected):
		status, body = http.StatusBadGateway, config.ErrorResponse("publish_rejected", rejected.Error())
	default:
		s.log.WithError(err).Error("Merge failed")
		status, body = http.StatusInternalServerError, config.ErrorResponse("internal_error", "Merge failed")
	}

	if res != nil {
		body["merged"] = res.Merged
		body["message"] = res.Summary()
	}
	c.JSON(status, body)
}

// HandleGetDocument handles GET /api/v1/documents/:id.
func (s *MergeAPIServer) HandleGetDocument(c *gin.Context) {
	v, ok := s.artifacts.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, config.ErrorResponse("not_found", "Document not found or expired"))
		return
	}

	a := v.(artifact)
	c.Data(http.StatusOK, a.ContentType, a.Body)
}
