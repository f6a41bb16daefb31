// Package app assembles the dashboard from configuration: stores, platform
// clients, the refresh engine, the OAuth flow, the notifier and the HTTP
// server.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/api"
	"github.com/pulseboard/pulseboard/internal/collector"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/display"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/notify"
	"github.com/pulseboard/pulseboard/internal/oauth"
	"github.com/pulseboard/pulseboard/internal/platform"
	"github.com/pulseboard/pulseboard/internal/platform/tiktok"
	"github.com/pulseboard/pulseboard/internal/platform/youtube"
	"github.com/pulseboard/pulseboard/internal/store"
	"github.com/pulseboard/pulseboard/internal/tokenexchange"
)

// Options adjust how New builds the application.
type Options struct {
	// DBPath overrides storage.db_path.
	DBPath    string
	LogOutput io.Writer
	Verbose   bool
	Color     bool

	// Settings replaces the SQLite database.
	Settings store.SettingsStore
	// HTTPClient replaces the outbound client for platform APIs and the backend.
	HTTPClient *http.Client
}

// App holds every long-lived component of the process.
type App struct {
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	Settings    store.SettingsStore
	Credentials *store.CredentialStore
	Engine      *collector.Engine
	Poller      *collector.Poller
	Exchange    *tokenexchange.Service
	OAuth       *oauth.Controller
	Notifier    *notify.Telegram
	Renderer    *display.Terminal
	Server      *api.Server

	verbose bool
	db      *store.SQLiteStore
	loader  *config.Loader

	mu  sync.RWMutex
	cfg *config.Config
}

// New builds the application. Close releases the database.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	level := logging.ParseLevel(cfg.Server.LogLevel)
	if opts.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(
		logging.WithOutput(out),
		logging.WithLevel(level),
		logging.WithFile(cfg.Server.LogFile, cfg.Server.LogMaxSizeMB, cfg.Server.LogMaxBackups),
	)
	m := metrics.NewMetrics("pulseboard")

	a := &App{
		Logger:  logger,
		Metrics: m,
		verbose: opts.Verbose,
		cfg:     cfg,
	}

	a.Settings = opts.Settings
	if a.Settings == nil {
		dbPath := opts.DBPath
		if dbPath == "" {
			dbPath = cfg.Storage.DBPath
		}
		db, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.Settings = db.Settings()
		logger.Debug("database opened", "path", dbPath)
	}
	a.Credentials = store.NewCredentialStore(a.Settings)

	platformClient := opts.HTTPClient
	if platformClient == nil {
		platformClient = platform.NewHTTPClient(platform.HTTPOptions{
			UserAgent: cfg.HTTP.UserAgent,
			UTLS:      cfg.HTTP.UTLS,
		})
	}
	backendClient := opts.HTTPClient
	if backendClient == nil {
		backendClient = &http.Client{Timeout: cfg.Backend.Timeout}
	}

	ytOpts := []youtube.Option{
		youtube.WithHTTPClient(platformClient),
		youtube.WithMaxResults(cfg.YouTube.MaxResults),
	}
	if cfg.YouTube.BaseURL != "" {
		ytOpts = append(ytOpts, youtube.WithEndpoint(cfg.YouTube.BaseURL))
	}

	a.Engine = collector.NewEngine(collector.EngineConfig{
		Clients: []platform.Client{
			youtube.NewClient(ytOpts...),
			tiktok.NewClient(platformClient, cfg.TikTok.APIBaseURL, cfg.TikTok.MaxCount),
		},
		Credentials:  a.Credentials,
		Store:        store.NewMetricStore(),
		FetchTimeout: cfg.Collector.FetchTimeout,
		Metrics:      m,
		Logger:       logger,
	})
	a.Poller = collector.NewPoller(a.Engine, collector.PollerConfig{
		Interval: cfg.Collector.Interval,
		Logger:   logger,
	})

	a.Exchange = tokenexchange.NewService(tokenexchange.Config{
		ClientKey:    cfg.TikTok.ClientKey,
		ClientSecret: cfg.TikTok.ClientSecret,
		TokenURL:     cfg.TikTok.TokenURL,
	}, backendClient, m, logger)

	var backend oauth.Backend
	if cfg.Backend.BaseURL == "" {
		backend = oauth.NewLocalBackend(a.Exchange)
	} else {
		backend = oauth.NewHTTPBackend(cfg.Backend.BaseURL, backendClient)
		logger.Info("using remote token exchange backend", "base_url", cfg.Backend.BaseURL)
	}
	a.OAuth = oauth.NewController(backend, a.Settings, oauth.Config{
		AuthURL:     cfg.TikTok.AuthURL,
		RedirectURI: cfg.RedirectURI(),
		Scope:       cfg.TikTok.Scope(),
	}, m, logger)

	notifier, err := notify.NewTelegram(cfg.Telegram, &notify.Options{Metrics: m, Logger: logger})
	if err != nil {
		logger.Warn("telegram notifications disabled", "error", err.Error())
		notifier, _ = notify.NewTelegram(config.TelegramConfig{}, &notify.Options{Logger: logger})
	}
	a.Notifier = notifier
	a.Engine.AddListener(notifier)
	a.OAuth.OnConnected(notifier.OAuthConnected)
	a.OAuth.OnConnected(func(ctx context.Context, creds models.PlatformCredentials) {
		// the account may have changed; deltas restart from the next fetch
		a.Engine.Store().Forget(creds.Platform)
		a.Poller.Trigger()
	})

	a.Renderer = display.NewTerminal(opts.Color)

	deps := api.Dependencies{
		Dashboard:   a.Engine,
		OAuth:       a.OAuth,
		Exchange:    a.Exchange,
		Credentials: a.Credentials,
		Renderer:    a.Renderer,
		Poller:      a.Poller,
		Metrics:     m,
		Logger:      logger,
	}
	if a.db != nil {
		deps.Storage = a.db
	}
	a.Server = api.NewServer(cfg.Server, cfg.API, deps)

	return a, nil
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Refresh runs one refresh cycle outside the poller.
func (a *App) Refresh(ctx context.Context) (*models.ViewModel, error) {
	return a.Engine.RefreshWithTrigger(ctx, collector.TriggerManual)
}

// Serve runs the HTTP server, the poller and the notifier until ctx is
// cancelled or the server fails, then shuts everything down.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config()

	a.Notifier.Start()
	if cfg.Collector.IsEnabled() {
		if err := a.Poller.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Server.Run()
	}()
	a.Logger.Info("pulseboard started",
		"addr", cfg.ListenAddr(),
		"poll_interval", a.Poller.Interval().String(),
		"telegram", a.Notifier.Enabled(),
	)

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.Logger.Error("HTTP server failed", "error", serveErr.Error())
		}
	}

	shutdownErr := api.ShutdownAll(cfg.Server.ShutdownTimeout,
		a.Server,
		api.ShutdownFunc(func(context.Context) error { return a.Poller.Stop() }),
		api.ShutdownFunc(a.Notifier.Stop),
		api.ShutdownFunc(func(context.Context) error {
			if a.loader != nil {
				a.loader.StopWatcher()
			}
			return nil
		}),
	)
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// WatchConfig applies edits of the config file while the process runs.
func (a *App) WatchConfig(loader *config.Loader) error {
	a.loader = loader
	loader.SetOnChange(a.ApplyConfig)
	loader.SetOnError(func(err error) {
		a.Logger.Warn("config reload failed, keeping previous configuration", "path", loader.Path(), "error", err.Error())
	})
	if err := loader.StartWatcher(500 * time.Millisecond); err != nil {
		return fmt.Errorf("watch %s: %w", loader.Path(), err)
	}
	a.Logger.Debug("watching config file", "path", loader.Path())
	return nil
}

// ApplyConfig takes over settings that can change at runtime. The log level
// applies immediately; sections bound at startup are reported as needing a
// restart.
func (a *App) ApplyConfig(next *config.Config) {
	if next == nil {
		return
	}

	a.mu.Lock()
	prev := a.cfg
	a.cfg = next
	a.mu.Unlock()

	if !a.verbose {
		a.Logger.SetLevel(logging.ParseLevel(next.Server.LogLevel))
	}

	restart := restartSections(prev, next)
	if len(restart) > 0 {
		a.Logger.Warn("config changes require a restart", "sections", restart)
	}
	a.Logger.Audit(logging.NewAuditEvent(logging.ConfigChange, "reload", logging.StatusSuccess).
		WithDetails(map[string]interface{}{"restart_required": restart}))

	a.Poller.Trigger()
}

func restartSections(prev, next *config.Config) []string {
	var out []string
	if prev.ListenAddr() != next.ListenAddr() || prev.Server.TLS != next.Server.TLS {
		out = append(out, "server")
	}
	if prev.Collector.Interval != next.Collector.Interval || prev.Collector.FetchTimeout != next.Collector.FetchTimeout {
		out = append(out, "collector")
	}
	if prev.YouTube != next.YouTube {
		out = append(out, "youtube")
	}
	if prev.TikTok.APIBaseURL != next.TikTok.APIBaseURL ||
		prev.TikTok.ClientKey != next.TikTok.ClientKey ||
		prev.TikTok.ClientSecret != next.TikTok.ClientSecret ||
		prev.TikTok.RedirectURI != next.TikTok.RedirectURI {
		out = append(out, "tiktok")
	}
	if prev.Backend != next.Backend {
		out = append(out, "backend")
	}
	if prev.Telegram != next.Telegram {
		out = append(out, "telegram")
	}
	return out
}

// Close releases the database.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
