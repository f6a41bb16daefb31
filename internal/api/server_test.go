package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/display"
	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/store"
)

type fakeDashboard struct {
	latest     *models.ViewModel
	refreshErr error
	refreshes  atomic.Int32
}

func (f *fakeDashboard) Latest() *models.ViewModel { return f.latest }

func (f *fakeDashboard) Refresh(ctx context.Context) (*models.ViewModel, error) {
	f.refreshes.Add(1)
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.latest, nil
}

type fakeExchanger struct {
	clientKey string
	token     *models.TokenResponse
	err       error
	gotCode   string
	gotURI    string
}

func (f *fakeExchanger) ClientKey() string { return f.clientKey }

func (f *fakeExchanger) Exchange(ctx context.Context, code, redirectURI string) (*models.TokenResponse, error) {
	f.gotCode, f.gotURI = code, redirectURI
	return f.token, f.err
}

type fakePoller struct {
	triggers atomic.Int32
}

func (f *fakePoller) Trigger() bool   { f.triggers.Add(1); return true }
func (f *fakePoller) IsRunning() bool { return true }

func (f *fakePoller) Interval() time.Duration { return 30 * time.Second }

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func sampleViewModel() *models.ViewModel {
	vm := models.NewViewModel()
	vm.LastUpdate = time.Date(2024, 5, 1, 14, 30, 5, 0, time.UTC)
	vm.LastUpdateText = "14:30:05"
	vm.Platforms[models.PlatformYouTube] = &models.PlatformView{
		Platform:    models.PlatformYouTube,
		DisplayName: "Chan",
		Status:      models.StatusLive,
		Metrics: []models.MetricView{
			{Name: models.MetricSubscribers, Value: 1200, Formatted: "1.2K", DeltaText: "—", DeltaStyle: models.DeltaStyleNone},
		},
	}
	return vm
}

func newTestServer(t *testing.T, apiCfg config.APIConfig, deps Dependencies) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.Logger == nil {
		deps.Logger = logging.NewLogger(logging.WithOutput(io.Discard))
	}
	return NewServer(config.ServerConfig{Host: "localhost", HTTPPort: 8080}, apiCfg, deps)
}

func do(s *Server, method, path string, body []byte, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	dash := &fakeDashboard{latest: sampleViewModel()}
	server := newTestServer(t, config.APIConfig{}, Dependencies{
		Dashboard: dash,
		Storage:   fakePinger{},
		Poller:    &fakePoller{},
	})

	w := do(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["storage"])
	assert.Equal(t, true, body["poller_running"])
	assert.Equal(t, "30s", body["poll_interval"])
	assert.NotEmpty(t, body["last_update"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestHandleHealth_StorageDown(t *testing.T) {
	server := newTestServer(t, config.APIConfig{}, Dependencies{Storage: fakePinger{err: stderrors.New("disk gone")}})

	w := do(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "disk gone")
}

func TestCorrelationIDPropagated(t *testing.T) {
	server := newTestServer(t, config.APIConfig{}, Dependencies{})

	w := do(server, http.MethodGet, "/health", nil, "X-Correlation-ID", "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))
}

func TestHandleDashboard(t *testing.T) {
	server := newTestServer(t, config.APIConfig{}, Dependencies{Dashboard: &fakeDashboard{latest: sampleViewModel()}})

	w := do(server, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var vm models.ViewModel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vm))
	assert.Equal(t, "14:30:05", vm.LastUpdateText)
	require.Contains(t, vm.Platforms, models.PlatformYouTube)
	assert.Equal(t, "1.2K", vm.Platforms[models.PlatformYouTube].Metrics[0].Formatted)
}

func TestHandleDashboard_BeforeFirstRefresh(t *testing.T) {
	server := newTestServer(t, config.APIConfig{}, Dependencies{Dashboard: &fakeDashboard{}})

	w := do(server, http.MethodGet, "/api/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var vm models.ViewModel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vm))
	assert.Equal(t, "--", vm.LastUpdateText)
	assert.Empty(t, vm.Platforms)
}

func TestHandleIndex(t *testing.T) {
	server := newTestServer(t, config.APIConfig{}, Dependencies{
		Dashboard: &fakeDashboard{latest: sampleViewModel()},
		Renderer:  display.NewTerminal(false),
	})

	w := do(server, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, w.Body.String(), "YouTube (Chan)")
	assert.Contains(t, w.Body.String(), "Last update: 14:30:05")
}

func TestHandleRefresh(t *testing.T) {
	dash := &fakeDashboard{latest: sampleViewModel()}
	server := newTestServer(t, config.APIConfig{}, Dependencies{Dashboard: dash})

	w := do(server, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), dash.refreshes.Load())

	w = do(server, http.MethodGet, "/api/refresh", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleRefresh_Error(t *testing.T) {
	dash := &fakeDashboard{refreshErr: context.Canceled}
	server := newTestServer(t, config.APIConfig{}, Dependencies{Dashboard: dash})

	w := do(server, http.MethodPost, "/api/refresh", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoutesDisabledWithoutDependencies(t *testing.T) {
	server := newTestServer(t, config.APIConfig{}, Dependencies{})

	for _, path := range []string{"/", "/api/dashboard", "/api/config", "/auth/tiktok", "/api/credentials"} {
		w := do(server, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewMetrics("pulseboard_test")
	server := newTestServer(t, config.APIConfig{}, Dependencies{Metrics: m})

	do(server, http.MethodGet, "/health", nil)
	w := do(server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pulseboard_test_")
}

func TestHandleConfig(t *testing.T) {
	server := newTestServer(t, config.APIConfig{}, Dependencies{Exchange: &fakeExchanger{clientKey: "ck-1"}})

	w := do(server, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"clientKey":"ck-1"}`, w.Body.String())
}

func TestHandleTokenExchange(t *testing.T) {
	ex := &fakeExchanger{token: &models.TokenResponse{
		AccessToken:  "act.1",
		OpenID:       "oid",
		RefreshToken: "rft.1",
		ExpiresIn:    86400,
		Scope:        "user.info.basic",
	}}
	server := newTestServer(t, config.APIConfig{}, Dependencies{Exchange: ex})

	w := do(server, http.MethodPost, "/api/tiktok-auth", []byte(`{"code":"c1","redirectUri":"https://dash.example/callback"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", ex.gotCode)
	assert.Equal(t, "https://dash.example/callback", ex.gotURI)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "act.1", body["access_token"])
	assert.Equal(t, "oid", body["open_id"])
	assert.Equal(t, float64(86400), body["expires_in"])
}

func TestHandleTokenExchange_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing server credentials",
			err:        &errors.ErrMissingConfig{Key: "tiktok.client_key"},
			body:       `{"code":"c1"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Server configuration error: Missing TikTok credentials",
		},
		{
			name:       "provider rejected code",
			err:        &errors.ErrBackend{Message: "Authorization code is expired."},
			body:       `{"code":"c1"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Authorization code is expired.",
		},
		{
			name:       "transport failure",
			err:        &errors.ErrTransport{Platform: "tiktok", Op: "token", Err: stderrors.New("connection refused")},
			body:       `{"code":"c1"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "connection refused",
		},
		{
			name:       "malformed body",
			body:       `{"code":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "missing code",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "code is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, config.APIConfig{}, Dependencies{Exchange: &fakeExchanger{err: tt.err}})

			w := do(server, http.MethodPost, "/api/tiktok-auth", []byte(tt.body))
			assert.Equal(t, tt.wantStatus, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Contains(t, body["error"], tt.wantError)
		})
	}
}

func TestHandleTokenExchange_Methods(t *testing.T) {
	server := newTestServer(t, config.APIConfig{}, Dependencies{Exchange: &fakeExchanger{}})

	w := do(server, http.MethodOptions, "/api/tiktok-auth", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(server, http.MethodGet, "/api/tiktok-auth", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, w.Body.String())
}

func TestTokenExchangeCORS(t *testing.T) {
	server := newTestServer(t, config.APIConfig{
		CORS: config.CORSConfig{Origins: []string{"https://dash.example"}},
	}, Dependencies{Exchange: &fakeExchanger{}})

	w := do(server, http.MethodOptions, "/api/tiktok-auth", nil,
		"Origin", "https://dash.example",
		"Access-Control-Request-Method", "POST",
	)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://dash.example", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(server, http.MethodOptions, "/api/tiktok-auth", nil,
		"Origin", "https://evil.example",
		"Access-Control-Request-Method", "POST",
	)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func newCredentialServer(t *testing.T, apiCfg config.APIConfig) (*Server, *store.CredentialStore, *fakePoller) {
	t.Helper()
	creds := store.NewCredentialStore(store.NewMemorySettingsStore())
	poller := &fakePoller{}
	return newTestServer(t, apiCfg, Dependencies{Credentials: creds, Poller: poller}), creds, poller
}

func TestSaveCredentials(t *testing.T) {
	server, creds, poller := newCredentialServer(t, config.APIConfig{})

	w := do(server, http.MethodPut, "/api/credentials",
		[]byte(`{"platform":"YouTube","api_key":" AIzaSyExample1234 ","channel_id":"UC123"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Configured  bool                       `json:"configured"`
		Credentials models.PlatformCredentials `json:"credentials"`
		Queued      bool                       `json:"refresh_queued"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Configured)
	assert.True(t, body.Queued)
	assert.Equal(t, "****1234", body.Credentials.APIKey)
	assert.Equal(t, int32(1), poller.triggers.Load())

	saved := creds.Load(models.PlatformYouTube)
	assert.Equal(t, "AIzaSyExample1234", saved.APIKey)
	assert.Equal(t, "UC123", saved.ChannelID)
}

func TestSaveCredentials_Invalid(t *testing.T) {
	server, _, poller := newCredentialServer(t, config.APIConfig{})

	w := do(server, http.MethodPut, "/api/credentials", []byte(`{"platform":"vimeo"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(server, http.MethodPut, "/api/credentials", []byte(`{"api_key":"x"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, poller.triggers.Load())
}

func TestListCredentials(t *testing.T) {
	server, creds, _ := newCredentialServer(t, config.APIConfig{})
	require.NoError(t, creds.Save(models.PlatformCredentials{
		Platform:    models.PlatformTikTok,
		AccessToken: "act.secret-token",
		OpenID:      "oid",
	}))

	w := do(server, http.MethodGet, "/api/credentials", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-token")

	var body struct {
		Platforms []struct {
			Platform   models.PlatformID `json:"platform"`
			Configured bool              `json:"configured"`
		} `json:"platforms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Platforms, 2)
	assert.Equal(t, models.PlatformYouTube, body.Platforms[0].Platform)
	assert.False(t, body.Platforms[0].Configured)
	assert.True(t, body.Platforms[1].Configured)
}

func TestCredentialsRequireAPIKey(t *testing.T) {
	server, _, _ := newCredentialServer(t, config.APIConfig{
		Auth: config.AuthConfig{Enabled: true, APIKeys: []string{"admin-key"}},
	})

	w := do(server, http.MethodGet, "/api/credentials", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(server, http.MethodGet, "/api/credentials", nil, DefaultAPIKeyHeader, "admin-key")
	assert.Equal(t, http.StatusOK, w.Code)

	// health stays open
	w = do(server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	server := newTestServer(t, config.APIConfig{
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 1, Burst: 2},
	}, Dependencies{})

	assert.Equal(t, http.StatusOK, do(server, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, do(server, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(server, http.MethodGet, "/health", nil).Code)
}

func TestIPRateLimiter_Refill(t *testing.T) {
	now := time.Unix(0, 0)
	l := newIPRateLimiter(time.Second, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "buckets are per client")

	now = now.Add(500 * time.Millisecond)
	assert.False(t, l.allow("a"))
	now = now.Add(500 * time.Millisecond)
	assert.True(t, l.allow("a"))
}

func TestIPRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Unix(0, 0)
	l := newIPRateLimiter(time.Second, 5)
	l.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.True(t, l.allow(ip))
	}
	assert.Equal(t, 3, l.size())

	now = now.Add(30 * time.Second)
	assert.True(t, l.allow("10.0.0.1"))
	assert.Equal(t, 3, l.size(), "clients seen within the idle window are kept")

	now = now.Add(45 * time.Second)
	assert.True(t, l.allow("10.0.0.4"))
	assert.Equal(t, 2, l.size())
}

func TestBodyLimit(t *testing.T) {
	server := newTestServer(t, config.APIConfig{MaxBodyBytes: 16}, Dependencies{Exchange: &fakeExchanger{}})

	w := do(server, http.MethodPost, "/api/tiktok-auth", []byte(`{"code":"`+strings.Repeat("x", 64)+`"}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
