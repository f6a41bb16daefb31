// Package tokenexchange trades TikTok authorization codes for access tokens.
// It is the only component that holds the client secret.
package tokenexchange

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
)

// DefaultTokenURL is the TikTok v2 token endpoint.
const DefaultTokenURL = "https://open.tiktokapis.com/v2/oauth/token/"

// Config holds the app credentials.
type Config struct {
	ClientKey    string
	ClientSecret string
	TokenURL     string
}

// Service exchanges authorization codes.
type Service struct {
	cfg        Config
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// NewService creates a token exchange service.
func NewService(cfg Config, httpClient *http.Client, m *metrics.Metrics, logger *logging.Logger) *Service {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logging.NewLogger(logging.WithOutput(io.Discard))
	}
	return &Service{
		cfg:        cfg,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// ClientKey returns the public client key.
func (s *Service) ClientKey() string {
	return s.cfg.ClientKey
}

// Configured reports whether both the client key and secret are set.
func (s *Service) Configured() bool {
	return strings.TrimSpace(s.cfg.ClientKey) != "" && strings.TrimSpace(s.cfg.ClientSecret) != ""
}

// Exchange trades code for a token. A provider rejection is returned as
// ErrBackend carrying the provider's description.
func (s *Service) Exchange(ctx context.Context, code, redirectURI string) (*models.TokenResponse, error) {
	if !s.Configured() {
		s.record("misconfigured")
		return nil, &errors.ErrMissingConfig{Key: "tiktok.client_key/tiktok.client_secret"}
	}

	conf := &oauth2.Config{
		ClientID:     s.cfg.ClientKey,
		ClientSecret: s.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  s.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := conf.Exchange(ctx, code, oauth2.SetAuthURLParam("client_key", s.cfg.ClientKey))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) {
			s.record("rejected")
			msg := retrieveErr.ErrorDescription
			if msg == "" {
				msg = retrieveErr.ErrorCode
			}
			if msg == "" && retrieveErr.Response != nil {
				msg = fmt.Sprintf("token endpoint returned %s", retrieveErr.Response.Status)
			}
			s.logger.WarnWithContext(ctx, "token exchange rejected",
				"error_code", retrieveErr.ErrorCode,
				"error", msg,
			)
			return nil, &errors.ErrBackend{Message: msg, Err: err}
		}

		s.record("error")
		s.logger.ErrorWithContext(ctx, "token exchange failed", "error", err.Error())
		return nil, &errors.ErrTransport{Platform: string(models.PlatformTikTok), Op: "token", Err: err}
	}

	s.record("success")
	return tokenResponse(tok), nil
}

func (s *Service) record(status string) {
	if s.metrics != nil {
		s.metrics.RecordTokenExchange(status)
	}
}

func tokenResponse(tok *oauth2.Token) *models.TokenResponse {
	out := &models.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
	}
	if v, ok := tok.Extra("open_id").(string); ok {
		out.OpenID = v
	}
	if v, ok := tok.Extra("scope").(string); ok {
		out.Scope = v
	}
	if v, ok := tok.Extra("refresh_expires_in").(float64); ok {
		out.RefreshExpiresIn = int64(v)
	}
	if out.ExpiresIn == 0 {
		if v, ok := tok.Extra("expires_in").(float64); ok {
			out.ExpiresIn = int64(v)
		}
	}
	return out
}
