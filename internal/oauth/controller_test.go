package oauth

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/store"
)

type fakeBackend struct {
	clientKey   string
	keyErr      error
	token       *models.TokenResponse
	exchangeErr error

	exchanged   int
	gotCode     string
	gotRedirect string
}

func (f *fakeBackend) ClientKey(context.Context) (string, error) {
	return f.clientKey, f.keyErr
}

func (f *fakeBackend) Exchange(_ context.Context, code, redirectURI string) (*models.TokenResponse, error) {
	f.exchanged++
	f.gotCode = code
	f.gotRedirect = redirectURI
	return f.token, f.exchangeErr
}

const testRedirect = "https://dash.example/callback"

func newTestController(backend *fakeBackend) (*Controller, *store.MemorySettingsStore) {
	settings := store.NewMemorySettingsStore()
	c := NewController(backend, settings, Config{RedirectURI: testRedirect}, metrics.NewMetrics("test"), nil)
	c.newState = func() string { return "state-123" }
	c.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return c, settings
}

func callback(params map[string]string) url.Values {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return q
}

func TestController_BeginAuthorization(t *testing.T) {
	c, settings := newTestController(&fakeBackend{clientKey: "ck-1"})
	assert.Equal(t, models.OAuthIdle, c.State())

	authURL, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.OAuthCallbackPending, c.State())

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "www.tiktok.com", u.Host)
	assert.Equal(t, "/v2/auth/authorize/", u.Path)
	q := u.Query()
	assert.Equal(t, "ck-1", q.Get("client_key"))
	assert.Equal(t, "user.info.basic,video.list", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testRedirect, q.Get("redirect_uri"))
	assert.Equal(t, "state-123", q.Get("state"))

	stored, ok := settings.Get(store.SettingTikTokState)
	require.True(t, ok)
	assert.Equal(t, "state-123", stored)

	session, ok := c.Session()
	require.True(t, ok)
	assert.Equal(t, "state-123", session.State)
	assert.True(t, session.CreatedAt.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestController_BeginAuthorization_StatesAreUnique(t *testing.T) {
	settings := store.NewMemorySettingsStore()
	c := NewController(&fakeBackend{clientKey: "ck"}, settings, Config{}, nil, nil)

	first, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)
	second, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)

	u1, _ := url.Parse(first)
	u2, _ := url.Parse(second)
	assert.NotEqual(t, u1.Query().Get("state"), u2.Query().Get("state"))
}

func TestController_BeginAuthorization_BackendUnavailable(t *testing.T) {
	c, _ := newTestController(&fakeBackend{keyErr: &errors.ErrBackend{Message: "backend returned 503"}})

	_, err := c.BeginAuthorization(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsBackend(err))
	assert.Equal(t, models.OAuthFailed, c.State())
}

func TestController_HandleCallback_Success(t *testing.T) {
	backend := &fakeBackend{
		clientKey: "ck",
		token:     &models.TokenResponse{AccessToken: "act.1", OpenID: "oid-1", RefreshToken: "rft.1"},
	}
	c, settings := newTestController(backend)

	var hooked models.PlatformCredentials
	c.OnConnected(func(_ context.Context, creds models.PlatformCredentials) { hooked = creds })

	_, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)

	res, err := c.HandleCallback(context.Background(), callback(map[string]string{"code": "auth-code", "state": "state-123"}))
	require.NoError(t, err)
	assert.Equal(t, models.OAuthConnected, res.State)
	assert.Equal(t, "oid-1", res.OpenID)
	assert.Equal(t, models.OAuthConnected, c.State())

	assert.Equal(t, "auth-code", backend.gotCode)
	assert.Equal(t, testRedirect, backend.gotRedirect)

	creds := store.NewCredentialStore(settings).Load(models.PlatformTikTok)
	assert.Equal(t, "act.1", creds.AccessToken)
	assert.Equal(t, "oid-1", creds.OpenID)
	assert.Equal(t, "rft.1", creds.RefreshToken)

	_, ok := settings.Get(store.SettingTikTokState)
	assert.False(t, ok, "state is consumed")
	_, ok = settings.Get(store.SettingTikTokPendingCode)
	assert.False(t, ok, "pending code is cleared")

	assert.Equal(t, "act.1", hooked.AccessToken)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.OAuthTransitions.WithLabelValues("exchanging", "connected")))
}

func TestController_HandleCallback_ProviderError(t *testing.T) {
	backend := &fakeBackend{clientKey: "ck"}
	c, settings := newTestController(backend)
	_, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)

	res, err := c.HandleCallback(context.Background(), callback(map[string]string{
		"error":             "access_denied",
		"error_description": "User cancelled",
		"state":             "state-123",
	}))
	require.Error(t, err)
	assert.True(t, errors.IsAuth(err))
	assert.Equal(t, models.OAuthFailed, res.State)
	assert.Contains(t, res.Error, "User cancelled")
	assert.Equal(t, 0, backend.exchanged)

	_, ok := settings.Get(store.SettingTikTokState)
	assert.False(t, ok)
}

func TestController_HandleCallback_StateMismatch(t *testing.T) {
	backend := &fakeBackend{clientKey: "ck"}
	c, settings := newTestController(backend)
	_, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)

	res, err := c.HandleCallback(context.Background(), callback(map[string]string{"code": "auth-code", "state": "forged"}))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, res.Error, "security error")
	assert.Equal(t, 0, backend.exchanged)
	assert.Equal(t, models.OAuthFailed, c.State())

	_, ok := settings.Get(store.SettingTikTokState)
	assert.False(t, ok, "state is consumed on failure too")

	_, err = c.HandleCallback(context.Background(), callback(map[string]string{"code": "auth-code", "state": "state-123"}))
	require.Error(t, err, "a consumed state cannot be replayed")
	assert.True(t, errors.IsValidation(err))
}

func TestController_HandleCallback_NoPendingState(t *testing.T) {
	backend := &fakeBackend{}
	c, _ := newTestController(backend)

	_, err := c.HandleCallback(context.Background(), callback(map[string]string{"code": "c", "state": ""}))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 0, backend.exchanged)
}

func TestController_HandleCallback_MissingCode(t *testing.T) {
	backend := &fakeBackend{clientKey: "ck"}
	c, _ := newTestController(backend)
	_, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)

	_, err = c.HandleCallback(context.Background(), callback(map[string]string{"state": "state-123"}))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 0, backend.exchanged)
}

func TestController_HandleCallback_ExchangeFailure(t *testing.T) {
	tests := []struct {
		name    string
		backend *fakeBackend
		wantMsg string
	}{
		{
			name:    "backend error",
			backend: &fakeBackend{clientKey: "ck", exchangeErr: &errors.ErrBackend{Message: "Authorization code is expired."}},
			wantMsg: "Authorization code is expired.",
		},
		{
			name:    "transport error is wrapped",
			backend: &fakeBackend{clientKey: "ck", exchangeErr: &errors.ErrTransport{Platform: "tiktok", Op: "token", Err: context.DeadlineExceeded}},
			wantMsg: "deadline exceeded",
		},
		{
			name:    "error in body",
			backend: &fakeBackend{clientKey: "ck", token: &models.TokenResponse{AccessToken: "a", Error: "invalid_grant"}},
			wantMsg: "invalid_grant",
		},
		{
			name:    "missing access token and open id",
			backend: &fakeBackend{clientKey: "ck", token: &models.TokenResponse{Scope: "user.info.basic"}},
			wantMsg: "missing access_token and open_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, settings := newTestController(tt.backend)
			_, err := c.BeginAuthorization(context.Background())
			require.NoError(t, err)

			res, err := c.HandleCallback(context.Background(), callback(map[string]string{"code": "auth-code", "state": "state-123"}))
			require.Error(t, err)
			assert.True(t, errors.IsBackend(err))
			assert.Contains(t, res.Error, tt.wantMsg)
			assert.Equal(t, models.OAuthFailed, c.State())

			creds := store.NewCredentialStore(settings).Load(models.PlatformTikTok)
			assert.False(t, creds.Present())

			code, ok := settings.Get(store.SettingTikTokPendingCode)
			assert.True(t, ok)
			assert.Equal(t, "auth-code", code)
		})
	}
}

func TestController_HandleCallback_OpenIDOnlyIsAccepted(t *testing.T) {
	backend := &fakeBackend{clientKey: "ck", token: &models.TokenResponse{OpenID: "oid-1"}}
	c, _ := newTestController(backend)
	_, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)

	res, err := c.HandleCallback(context.Background(), callback(map[string]string{"code": "auth-code", "state": "state-123"}))
	require.NoError(t, err)
	assert.Equal(t, models.OAuthConnected, res.State)
}

func TestController_HandleCallback_ReconnectDropsStaleTokens(t *testing.T) {
	backend := &fakeBackend{clientKey: "ck", token: &models.TokenResponse{AccessToken: "act.2", OpenID: "oid-2"}}
	c, settings := newTestController(backend)

	creds := store.NewCredentialStore(settings)
	require.NoError(t, creds.Save(models.PlatformCredentials{
		Platform:     models.PlatformTikTok,
		AccessToken:  "act.1",
		OpenID:       "oid-1",
		RefreshToken: "rft.1",
	}))

	_, err := c.BeginAuthorization(context.Background())
	require.NoError(t, err)
	_, err = c.HandleCallback(context.Background(), callback(map[string]string{"code": "auth-code", "state": "state-123"}))
	require.NoError(t, err)

	tt := creds.Load(models.PlatformTikTok)
	assert.Equal(t, "act.2", tt.AccessToken)
	assert.Equal(t, "oid-2", tt.OpenID)
	assert.Empty(t, tt.RefreshToken, "refresh token from the previous grant is dropped")
}
