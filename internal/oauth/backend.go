package oauth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/tokenexchange"
)

// Backend is the trusted side of the flow: it publishes the client key and
// performs the secret-bearing code exchange.
type Backend interface {
	ClientKey(ctx context.Context) (string, error)
	Exchange(ctx context.Context, code, redirectURI string) (*models.TokenResponse, error)
}

// ConfigResponse is the body of GET /api/config.
type ConfigResponse struct {
	ClientKey string `json:"clientKey"`
}

// ExchangeRequest is the body of POST /api/tiktok-auth.
type ExchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HTTPBackend talks to a remote token-exchange backend.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBackend creates a backend client for baseURL.
func NewHTTPBackend(baseURL string, httpClient *http.Client) *HTTPBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ClientKey fetches the public client key from the config endpoint.
func (b *HTTPBackend) ClientKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/config", nil)
	if err != nil {
		return "", &errors.ErrBackend{Message: "build config request", Err: err}
	}

	var out ConfigResponse
	if err := b.do(req, &out); err != nil {
		return "", err
	}
	if out.ClientKey == "" {
		return "", &errors.ErrMissingConfig{Key: "clientKey"}
	}
	return out.ClientKey, nil
}

// Exchange posts the authorization code to the backend.
func (b *HTTPBackend) Exchange(ctx context.Context, code, redirectURI string) (*models.TokenResponse, error) {
	body, err := json.Marshal(ExchangeRequest{Code: code, RedirectURI: redirectURI})
	if err != nil {
		return nil, &errors.ErrBackend{Message: "encode exchange request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/tiktok-auth", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ErrBackend{Message: "build exchange request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var out models.TokenResponse
	if err := b.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *HTTPBackend) do(req *http.Request, out any) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return &errors.ErrBackend{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &errors.ErrBackend{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return &errors.ErrBackend{Message: e.Error}
		}
		return &errors.ErrBackend{Message: fmt.Sprintf("backend returned %s", resp.Status)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &errors.ErrBackend{Message: "decode backend response", Err: err}
	}
	return nil
}

// LocalBackend runs the exchange in-process.
type LocalBackend struct {
	svc *tokenexchange.Service
}

// NewLocalBackend wraps a token exchange service.
func NewLocalBackend(svc *tokenexchange.Service) *LocalBackend {
	return &LocalBackend{svc: svc}
}

// ClientKey returns the configured client key.
func (b *LocalBackend) ClientKey(context.Context) (string, error) {
	if key := b.svc.ClientKey(); key != "" {
		return key, nil
	}
	return "", &errors.ErrMissingConfig{Key: "tiktok.client_key"}
}

// Exchange delegates to the token exchange service.
func (b *LocalBackend) Exchange(ctx context.Context, code, redirectURI string) (*models.TokenResponse, error) {
	return b.svc.Exchange(ctx, code, redirectURI)
}
