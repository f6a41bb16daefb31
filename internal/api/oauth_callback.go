package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/oauth"
)

const retryPath = "/auth/tiktok"

// FailureResponse is shown when an authorization attempt ends in failure.
type FailureResponse struct {
	Status models.OAuthState `json:"status"`
	Error  string            `json:"error"`
	Retry  string            `json:"retry"`
}

func failure(msg string) FailureResponse {
	return FailureResponse{Status: models.OAuthFailed, Error: msg, Retry: retryPath}
}

// handleAuthStart redirects the browser to the TikTok authorization page
func (s *Server) handleAuthStart(c *gin.Context) {
	authURL, err := s.deps.OAuth.BeginAuthorization(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, failure(err.Error()))
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// handleCallback completes the flow and returns to the dashboard
func (s *Server) handleCallback(c *gin.Context) {
	res, err := s.deps.OAuth.HandleCallback(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		msg := err.Error()
		if res != nil && res.Error != "" {
			msg = res.Error
		}
		c.JSON(http.StatusBadRequest, failure(msg))
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// handleConfig publishes the public client key
func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, oauth.ConfigResponse{ClientKey: s.deps.Exchange.ClientKey()})
}

// handleTokenExchange trades an authorization code for tokens. Only POST
// (and CORS preflight) is accepted.
func (s *Server) handleTokenExchange(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusOK)
		return
	case http.MethodPost:
	default:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	var req oauth.ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	event := logging.NewAuditEvent(logging.TokenExchange, "exchange", logging.StatusSuccess).
		WithPlatform(string(models.PlatformTikTok)).
		WithIPAddress(c.ClientIP())

	tok, err := s.deps.Exchange.Exchange(c.Request.Context(), req.Code, req.RedirectURI)
	if err != nil {
		s.logger.Audit(event.WithError(err.Error()))

		var backendErr *errors.ErrBackend
		switch {
		case errors.IsMissingConfig(err):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error: Missing TikTok credentials"})
		case stderrors.As(err, &backendErr) && backendErr.Message != "":
			c.JSON(http.StatusBadRequest, gin.H{"error": backendErr.Message})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	s.logger.Audit(event)

	c.JSON(http.StatusOK, gin.H{
		"access_token":  tok.AccessToken,
		"open_id":       tok.OpenID,
		"expires_in":    tok.ExpiresIn,
		"refresh_token": tok.RefreshToken,
		"scope":         tok.Scope,
	})
}
