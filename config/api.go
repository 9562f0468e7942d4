package config

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TokenAPIServer serves the token settings endpoints: report whether a
// token is stored, set or change it, and clear it.
type TokenAPIServer struct {
	store *TokenStore
}

// NewTokenAPIServer creates a new token API server.
func NewTokenAPIServer(store *TokenStore) *TokenAPIServer {
	return &TokenAPIServer{
		store: store,
	}
}

// RegisterRoutes adds the token routes to group, usually /api/v1/meta.
func (t *TokenAPIServer) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/token", t.HandleGetToken)
	group.PUT("/token", t.HandleSetToken)
	group.DELETE("/token", t.HandleDeleteToken)
}

// ErrorResponse creates a standardized error response.
func ErrorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// TokenStatus is the body of every token endpoint response. The token
// itself is never returned.
type TokenStatus struct {
	Present bool `json:"present"`
}

type setTokenRequest struct {
	Token string `json:"token"`
}

// HandleGetToken handles GET /api/v1/meta/token.
func (t *TokenAPIServer) HandleGetToken(ctx *gin.Context) {
	present, err := t.store.HasToken()
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse("internal_error", "Failed to read token"))
		return
	}

	ctx.JSON(http.StatusOK, TokenStatus{Present: present})
}

// HandleSetToken handles PUT /api/v1/meta/token.
func (t *TokenAPIServer) HandleSetToken(ctx *gin.Context) {
	var req setTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, ErrorResponse("bad_request", err.Error()))
		return
	}

	if err := t.store.SetToken(req.Token); err != nil {
		if errors.Is(err, ErrEmptyToken) {
			ctx.JSON(http.StatusBadRequest, ErrorResponse("validation_error", err.Error()))
			return
		}
		ctx.JSON(http.StatusInternalServerError, ErrorResponse("internal_error", "Failed to store token"))
		return
	}

	ctx.JSON(http.StatusOK, TokenStatus{Present: true})
}

// HandleDeleteToken handles DELETE /api/v1/meta/token.
func (t *TokenAPIServer) HandleDeleteToken(ctx *gin.Context) {
	if err := t.store.DeleteToken(); err != nil {
		ctx.JSON(http.StatusInternalServerError, ErrorResponse("internal_error", "Failed to delete token"))
		return
	}

	ctx.JSON(http.StatusOK, TokenStatus{Present: false})
}
