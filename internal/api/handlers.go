package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/models"
)

// handleIndex renders the dashboard as plain text
func (s *Server) handleIndex(c *gin.Context) {
	vm := s.latest()
	if s.deps.Renderer == nil {
		c.JSON(http.StatusOK, vm)
		return
	}
	c.String(http.StatusOK, s.deps.Renderer.Render(vm))
}

// handleDashboard returns the last view model
func (s *Server) handleDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, s.latest())
}

// handleRefresh runs a manual refresh and returns its view model
func (s *Server) handleRefresh(c *gin.Context) {
	vm, err := s.deps.Dashboard.Refresh(c.Request.Context())
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "manual refresh failed", "error", err.Error())
		s.metrics.RecordError("refresh", "api")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, vm)
}

func (s *Server) latest() *models.ViewModel {
	if vm := s.deps.Dashboard.Latest(); vm != nil {
		return vm
	}
	vm := models.NewViewModel()
	vm.LastUpdateText = "--"
	return vm
}

// CredentialsRequest updates the stored credentials of one platform.
// Empty fields keep their stored value.
type CredentialsRequest struct {
	Platform     string `json:"platform" binding:"required"`
	APIKey       string `json:"api_key"`
	ChannelID    string `json:"channel_id"`
	AccessToken  string `json:"access_token"`
	OpenID       string `json:"open_id"`
	RefreshToken string `json:"refresh_token"`
}

// handleListCredentials returns redacted credentials and whether each
// platform is configured
func (s *Server) handleListCredentials(c *gin.Context) {
	all := s.deps.Credentials.LoadAll()

	out := make([]gin.H, 0, len(all))
	for _, id := range models.AllPlatforms {
		creds, ok := all[id]
		if !ok {
			continue
		}
		out = append(out, gin.H{
			"platform":    id,
			"configured":  creds.Present(),
			"credentials": creds.Redacted(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"platforms": out})
}

// handleSaveCredentials stores credentials and queues a refresh
func (s *Server) handleSaveCredentials(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	platform, err := models.ParsePlatformID(req.Platform)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds := models.PlatformCredentials{
		Platform:     platform,
		APIKey:       strings.TrimSpace(req.APIKey),
		ChannelID:    strings.TrimSpace(req.ChannelID),
		AccessToken:  strings.TrimSpace(req.AccessToken),
		OpenID:       strings.TrimSpace(req.OpenID),
		RefreshToken: strings.TrimSpace(req.RefreshToken),
	}

	event := logging.NewAuditEvent(logging.CredentialsChange, "save", logging.StatusSuccess).
		WithPlatform(string(platform)).
		WithIPAddress(c.ClientIP())

	if err := s.deps.Credentials.Save(creds); err != nil {
		s.logger.Audit(event.WithError(err.Error()))
		status := http.StatusInternalServerError
		if errors.IsValidation(err) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.logger.Audit(event)

	queued := false
	if s.deps.Poller != nil {
		queued = s.deps.Poller.Trigger()
	}

	saved := s.deps.Credentials.LoadAll()[platform]
	c.JSON(http.StatusOK, gin.H{
		"status":         "saved",
		"configured":     saved.Present(),
		"credentials":    saved.Redacted(),
		"refresh_queued": queued,
	})
}
