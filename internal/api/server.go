package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/oauth"
)

// Dashboard serves and refreshes the view model.
type Dashboard interface {
	Latest() *models.ViewModel
	Refresh(ctx context.Context) (*models.ViewModel, error)
}

// Authorizer runs the TikTok authorization flow.
type Authorizer interface {
	State() models.OAuthState
	Session() (*models.OAuthSession, bool)
	BeginAuthorization(ctx context.Context) (string, error)
	HandleCallback(ctx context.Context, query url.Values) (*oauth.Result, error)
}

// TokenExchanger is the secret-bearing side of the flow.
type TokenExchanger interface {
	ClientKey() string
	Exchange(ctx context.Context, code, redirectURI string) (*models.TokenResponse, error)
}

// CredentialManager persists platform credentials.
type CredentialManager interface {
	LoadAll() map[models.PlatformID]models.PlatformCredentials
	Save(creds models.PlatformCredentials) error
}

// Renderer formats the view model as text.
type Renderer interface {
	Render(vm *models.ViewModel) string
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Triggerer requests an asynchronous refresh.
type Triggerer interface {
	Trigger() bool
	IsRunning() bool
	Interval() time.Duration
}

// Dependencies are the components served over HTTP. Nil components disable
// their routes.
type Dependencies struct {
	Dashboard   Dashboard
	OAuth       Authorizer
	Exchange    TokenExchanger
	Credentials CredentialManager
	Renderer    Renderer
	Storage     Pinger
	Poller      Triggerer
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	deps        Dependencies
	metrics     *metrics.Metrics
	logger      *logging.Logger
	rateLimiter *IPRateLimiter
	startedAt   time.Time

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, deps Dependencies) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.NewMetrics("pulseboard")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	requestsPerMinute := apiCfg.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 600
	}
	burst := apiCfg.RateLimit.Burst
	if burst <= 0 {
		burst = 50
	}
	maxBody := apiCfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 64 << 10
	}

	server := &Server{
		router:      gin.New(),
		config:      cfg,
		apiConfig:   apiCfg,
		deps:        deps,
		metrics:     m,
		logger:      logger,
		rateLimiter: newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst),
		startedAt:   time.Now(),
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(server.rateLimiter))
	server.router.Use(bodyLimitMiddleware(maxBody))
	server.router.Use(metrics.Middleware(m, logger))
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:              []string{http.MethodPost, http.MethodOptions},
		AllowHeaders:              []string{"Content-Type"},
		OptionsResponseStatusCode: http.StatusOK,
		MaxAge:                    12 * time.Hour,
	}
	origins := s.apiConfig.CORS.Origins
	if len(origins) == 0 || contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	if s.deps.Dashboard != nil {
		s.router.GET("/", s.handleIndex)
		s.router.GET("/api/dashboard", s.handleDashboard)
		s.router.POST("/api/refresh", s.handleRefresh)
	}

	// Token exchange backend, called cross-origin by dashboards
	if s.deps.Exchange != nil {
		backend := s.router.Group("/api")
		backend.Use(s.corsMiddleware())
		{
			backend.GET("/config", s.handleConfig)
			backend.Any("/tiktok-auth", s.handleTokenExchange)
		}
	}

	if s.deps.OAuth != nil {
		s.router.GET("/auth/tiktok", s.handleAuthStart)
		s.router.GET("/callback", s.handleCallback)
	}

	// Credential management - requires authentication when enabled
	if s.deps.Credentials != nil {
		credGroup := s.router.Group("/api/credentials")
		if s.apiConfig.Auth.Enabled {
			credGroup.Use(APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger))
		}
		{
			credGroup.GET("", s.handleListCredentials)
			credGroup.PUT("", s.handleSaveCredentials)
		}
	}
}

// Run starts the HTTP or HTTPS server based on TLS configuration
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	var (
		srv *http.Server
		err error
	)
	if s.config.TLS.Enabled {
		srv, err = NewHTTPSServer(addr, s.config.TLS.CertFile, s.config.TLS.KeyFile, s.router)
		if err != nil {
			return &errors.ErrServerStart{Addr: addr, Err: err}
		}
	} else {
		srv = NewHTTPServer(addr, s.router)
	}
	return s.StartWithServer(srv)
}

// StartWithServer starts the server with a pre-configured http.Server
func (s *Server) StartWithServer(srv *http.Server) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "addr", srv.Addr, "tls", srv.TLSConfig != nil)

	var err error
	if srv.TLSConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return &errors.ErrServerStart{Addr: srv.Addr, Err: err}
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.closed = true
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err.Error())
		return &errors.ErrServerShutdown{Err: err}
	}
	return nil
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}

	if s.deps.Storage != nil {
		if err := s.deps.Storage.Ping(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["storage"] = err.Error()
		} else {
			body["storage"] = "ok"
		}
	}
	if s.deps.Poller != nil {
		body["poller_running"] = s.deps.Poller.IsRunning()
		body["poll_interval"] = s.deps.Poller.Interval().String()
	}
	if s.deps.OAuth != nil {
		body["tiktok_oauth"] = s.deps.OAuth.State()
		if session, ok := s.deps.OAuth.Session(); ok {
			body["tiktok_oauth_pending_since"] = session.CreatedAt
		}
	}
	if s.deps.Dashboard != nil {
		if vm := s.deps.Dashboard.Latest(); vm != nil {
			body["last_update"] = vm.LastUpdate
		}
	}

	c.JSON(status, body)
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
