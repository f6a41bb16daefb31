// Package oauth drives the TikTok authorization-code flow: it issues the CSRF
// state, builds the authorize URL, validates the callback and stores the
// exchanged tokens.
package oauth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/store"
)

const (
	// DefaultAuthURL is the TikTok v2 authorization page.
	DefaultAuthURL = "https://www.tiktok.com/v2/auth/authorize/"
	// DefaultScope is the comma-separated scope list requested.
	DefaultScope = "user.info.basic,video.list"
)

// Config holds the authorize URL parameters.
type Config struct {
	AuthURL     string
	RedirectURI string
	Scope       string
}

// ConnectedHook runs after tokens are stored.
type ConnectedHook func(ctx context.Context, creds models.PlatformCredentials)

// Result describes how a callback ended.
type Result struct {
	State  models.OAuthState `json:"status"`
	OpenID string            `json:"open_id,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Controller is the single authorization flow of the process.
type Controller struct {
	backend  Backend
	settings store.SettingsStore
	creds    *store.CredentialStore
	cfg      Config
	metrics  *metrics.Metrics
	logger   *logging.Logger

	newState func() string
	now      func() time.Time

	// opMu serializes flow operations; mu guards the fields below.
	opMu  sync.Mutex
	mu    sync.RWMutex
	state models.OAuthState
	hooks []ConnectedHook
}

// NewController creates a controller in the idle state.
func NewController(backend Backend, settings store.SettingsStore, cfg Config, m *metrics.Metrics, logger *logging.Logger) *Controller {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if logger == nil {
		logger = logging.NewLogger(logging.WithOutput(io.Discard))
	}
	return &Controller{
		backend:  backend,
		settings: settings,
		creds:    store.NewCredentialStore(settings),
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		newState: uuid.NewString,
		now:      time.Now,
		state:    models.OAuthIdle,
	}
}

// State returns the current flow state.
func (c *Controller) State() models.OAuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// OnConnected registers a hook run after a successful exchange.
func (c *Controller) OnConnected(hook ConnectedHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// RedirectURI returns the callback URL sent to the provider.
func (c *Controller) RedirectURI() string {
	return c.cfg.RedirectURI
}

// Session returns the pending authorization attempt, if any.
func (c *Controller) Session() (*models.OAuthSession, bool) {
	state, ok := c.settings.Get(store.SettingTikTokState)
	if !ok || state == "" {
		return nil, false
	}
	created, _ := c.settings.GetTime(store.SettingTikTokStateCreated)
	return &models.OAuthSession{State: state, CreatedAt: created}, true
}

// BeginAuthorization starts a new attempt and returns the URL the user must
// visit. Any previous pending attempt is replaced.
func (c *Controller) BeginAuthorization(ctx context.Context) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.transition(models.OAuthAuthorizationRequested)

	state := c.newState()
	if err := c.settings.Set(store.SettingTikTokState, state); err != nil {
		return "", c.fail(ctx, &errors.ErrDatabaseQuery{Operation: "save oauth state", Err: err})
	}
	if err := c.settings.SetTime(store.SettingTikTokStateCreated, c.now()); err != nil {
		return "", c.fail(ctx, &errors.ErrDatabaseQuery{Operation: "save oauth state time", Err: err})
	}

	clientKey, err := c.backend.ClientKey(ctx)
	if err != nil {
		return "", c.fail(ctx, err)
	}

	authURL, err := c.authorizeURL(clientKey, state)
	if err != nil {
		return "", c.fail(ctx, err)
	}

	c.transition(models.OAuthCallbackPending)
	c.logger.Audit(logging.NewAuditEvent(logging.OAuthStarted, "authorize", logging.StatusSuccess).
		WithPlatform(string(models.PlatformTikTok)))
	return authURL, nil
}

func (c *Controller) authorizeURL(clientKey, state string) (string, error) {
	u, err := url.Parse(c.cfg.AuthURL)
	if err != nil {
		return "", &errors.ErrConfigValidation{Err: fmt.Errorf("tiktok.auth_url: %w", err)}
	}
	q := url.Values{}
	q.Set("client_key", clientKey)
	q.Set("scope", c.cfg.Scope)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HandleCallback validates the provider redirect and exchanges the code.
// The persisted state token is consumed whatever the outcome, so a failed
// attempt must be restarted with BeginAuthorization.
func (c *Controller) HandleCallback(ctx context.Context, query url.Values) (*Result, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	code := query.Get("code")
	returned := query.Get("state")
	providerErr := query.Get("error")

	expected, _ := c.settings.Get(store.SettingTikTokState)
	c.consumeState(ctx)

	if providerErr != "" {
		msg := query.Get("error_description")
		if msg == "" {
			msg = providerErr
		}
		return c.failResult(ctx, &errors.ErrAuth{Platform: string(models.PlatformTikTok), Code: providerErr, Message: msg})
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(returned)) != 1 {
		return c.failResult(ctx, &errors.ErrValidation{Reason: "security error: state mismatch"})
	}
	if strings.TrimSpace(code) == "" {
		return c.failResult(ctx, &errors.ErrValidation{Reason: "missing authorization code"})
	}

	if err := c.settings.Set(store.SettingTikTokPendingCode, code); err != nil {
		c.logger.WarnWithContext(ctx, "failed to persist pending code", "error", err.Error())
	}
	c.transition(models.OAuthValidated)
	c.transition(models.OAuthExchanging)

	tok, err := c.backend.Exchange(ctx, code, c.cfg.RedirectURI)
	if err != nil {
		if !errors.IsBackend(err) {
			err = &errors.ErrBackend{Err: err}
		}
		return c.failResult(ctx, err)
	}
	if !tok.Valid() {
		msg := tok.ErrorMessage()
		if msg == "" {
			msg = "response missing access_token and open_id"
		}
		return c.failResult(ctx, &errors.ErrBackend{Message: msg})
	}

	creds := models.PlatformCredentials{
		Platform:     models.PlatformTikTok,
		AccessToken:  tok.AccessToken,
		OpenID:       tok.OpenID,
		RefreshToken: tok.RefreshToken,
	}
	if err := c.creds.Replace(creds); err != nil {
		return c.failResult(ctx, err)
	}
	if err := c.settings.Delete(store.SettingTikTokPendingCode); err != nil {
		c.logger.WarnWithContext(ctx, "failed to clear pending code", "error", err.Error())
	}

	c.transition(models.OAuthConnected)
	c.logger.Audit(logging.NewAuditEvent(logging.OAuthConnected, "callback", logging.StatusSuccess).
		WithPlatform(string(models.PlatformTikTok)).
		WithDetails(map[string]interface{}{"open_id": tok.OpenID, "scope": tok.Scope}))

	for _, hook := range c.snapshotHooks() {
		hook(ctx, creds)
	}
	return &Result{State: models.OAuthConnected, OpenID: tok.OpenID}, nil
}

func (c *Controller) consumeState(ctx context.Context) {
	for _, key := range []string{store.SettingTikTokState, store.SettingTikTokStateCreated} {
		if err := c.settings.Delete(key); err != nil {
			c.logger.WarnWithContext(ctx, "failed to clear oauth state", "key", key, "error", err.Error())
		}
	}
}

func (c *Controller) fail(ctx context.Context, err error) error {
	c.transition(models.OAuthFailed)
	c.logger.ErrorWithContext(ctx, "tiktok authorization failed", "platform", "tiktok", "error", err.Error())
	c.logger.Audit(logging.NewAuditEvent(logging.OAuthFailed, "authorize", logging.StatusFailure).
		WithPlatform(string(models.PlatformTikTok)).
		WithError(err.Error()))
	return err
}

func (c *Controller) failResult(ctx context.Context, err error) (*Result, error) {
	return &Result{State: models.OAuthFailed, Error: err.Error()}, c.fail(ctx, err)
}

func (c *Controller) transition(to models.OAuthState) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordOAuthTransition(string(from), string(to))
	}
}

func (c *Controller) snapshotHooks() []ConnectedHook {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ConnectedHook(nil), c.hooks...)
}
