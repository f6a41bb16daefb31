package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Collector CollectorConfig `yaml:"collector"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	TikTok    TikTokConfig    `yaml:"tiktok"`
	Backend   BackendConfig   `yaml:"backend"`
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFile         string        `yaml:"log_file"`
	LogMaxSizeMB    int           `yaml:"log_max_size_mb"`
	LogMaxBackups   int           `yaml:"log_max_backups"`
	TLS             TLSConfig     `yaml:"tls"`
}

// TLSConfig contains TLS configuration.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Auth         AuthConfig      `yaml:"auth"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	CORS         CORSConfig      `yaml:"cors"`
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
}

// AuthConfig protects the credential management endpoints.
type AuthConfig struct {
	Enabled    bool     `yaml:"enabled"`
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// CORSConfig contains CORS configuration for the token exchange endpoints.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// CollectorConfig controls the refresh loop.
type CollectorConfig struct {
	Enabled      *bool         `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// IsEnabled reports whether the background poller should run.
func (c CollectorConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// YouTubeConfig configures the YouTube Data API client.
type YouTubeConfig struct {
	BaseURL    string `yaml:"base_url"`
	MaxResults int64  `yaml:"max_results"`
}

// TikTokConfig configures both the TikTok API client and the OAuth flow.
type TikTokConfig struct {
	APIBaseURL   string   `yaml:"api_base_url"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	RedirectURI  string   `yaml:"redirect_uri"`
	Scopes       []string `yaml:"scopes"`
	ClientKey    string   `yaml:"client_key"`
	ClientSecret string   `yaml:"client_secret"`
	MaxCount     int      `yaml:"max_count"`
}

// BackendConfig locates the token-exchange backend used by the OAuth flow.
// An empty BaseURL means this process serves the backend itself.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig contains persistence configuration.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// HTTPConfig controls the outbound HTTP client used for platform APIs.
type HTTPConfig struct {
	UTLS      bool   `yaml:"utls"`
	UserAgent string `yaml:"user_agent"`
}

// TelegramConfig contains Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: "1"}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if err := c.Collector.Validate(); err != nil {
		return fmt.Errorf("collector: %w", err)
	}

	if err := c.YouTube.Validate(); err != nil {
		return fmt.Errorf("youtube: %w", err)
	}

	if err := c.TikTok.Validate(); err != nil {
		return fmt.Errorf("tiktok: %w", err)
	}

	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend: %w", err)
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./data/pulseboard.db"
	}

	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "pulseboard/1.0"
	}

	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.HTTPPort == 0 {
		s.HTTPPort = 8080
	}
	if s.HTTPPort < 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of: debug, info, warn, error")
	}
	if s.LogMaxSizeMB <= 0 {
		s.LogMaxSizeMB = 50
	}
	if s.LogMaxBackups <= 0 {
		s.LogMaxBackups = 3
	}
	if s.TLS.Enabled {
		if s.TLS.CertFile == "" {
			return fmt.Errorf("tls cert_file is required when TLS is enabled")
		}
		if s.TLS.KeyFile == "" {
			return fmt.Errorf("tls key_file is required when TLS is enabled")
		}
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.Auth.Enabled && len(a.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth: api_keys is required when auth is enabled")
	}
	if a.Auth.HeaderName == "" {
		a.Auth.HeaderName = "X-API-Key"
	}
	if a.RateLimit.RequestsPerMinute <= 0 {
		a.RateLimit.RequestsPerMinute = 600
	}
	if a.RateLimit.Burst <= 0 {
		a.RateLimit.Burst = 50
	}
	if len(a.CORS.Origins) == 0 {
		a.CORS.Origins = []string{"*"}
	}
	if a.MaxBodyBytes <= 0 {
		a.MaxBodyBytes = 64 * 1024
	}
	return nil
}

// Validate validates collector configuration.
func (c *CollectorConfig) Validate() error {
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.Interval < time.Second {
		return fmt.Errorf("interval must be at least 1s")
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout cannot be negative")
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 30 * time.Second
	}
	return nil
}

// Validate validates YouTube configuration.
func (y *YouTubeConfig) Validate() error {
	if y.BaseURL != "" {
		if err := validateURL(y.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
	}
	if y.MaxResults <= 0 {
		y.MaxResults = 10
	}
	if y.MaxResults > 50 {
		return fmt.Errorf("max_results cannot exceed 50")
	}
	return nil
}

// Validate validates TikTok configuration.
func (t *TikTokConfig) Validate() error {
	if t.APIBaseURL == "" {
		t.APIBaseURL = "https://open.tiktokapis.com/v2"
	}
	if t.AuthURL == "" {
		t.AuthURL = "https://www.tiktok.com/v2/auth/authorize/"
	}
	if t.TokenURL == "" {
		t.TokenURL = "https://open.tiktokapis.com/v2/oauth/token/"
	}
	for name, u := range map[string]string{"api_base_url": t.APIBaseURL, "auth_url": t.AuthURL, "token_url": t.TokenURL} {
		if err := validateURL(u); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if t.RedirectURI != "" {
		if err := validateURL(t.RedirectURI); err != nil {
			return fmt.Errorf("redirect_uri: %w", err)
		}
	}
	if len(t.Scopes) == 0 {
		t.Scopes = []string{"user.info.basic", "video.list"}
	}
	if t.MaxCount <= 0 {
		t.MaxCount = 20
	}
	if t.MaxCount > 20 {
		return fmt.Errorf("max_count cannot exceed 20")
	}
	return nil
}

// Scope returns the comma-joined OAuth scope string.
func (t *TikTokConfig) Scope() string {
	return strings.Join(t.Scopes, ",")
}

// Validate validates backend configuration.
func (b *BackendConfig) Validate() error {
	if b.BaseURL != "" {
		if err := validateURL(b.BaseURL); err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		b.BaseURL = strings.TrimRight(b.BaseURL, "/")
	}
	if b.Timeout <= 0 {
		b.Timeout = 15 * time.Second
	}
	return nil
}

// Validate validates telegram configuration.
func (t *TelegramConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required when telegram is enabled")
	}
	if t.ChatID == 0 {
		return fmt.Errorf("chat_id is required when telegram is enabled")
	}
	return nil
}

// ListenAddr returns host:port of the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// BackendBaseURL returns the token-exchange backend, defaulting to this server.
func (c *Config) BackendBaseURL() string {
	if c.Backend.BaseURL != "" {
		return c.Backend.BaseURL
	}
	scheme := "http"
	if c.Server.TLS.Enabled {
		scheme = "https"
	}
	host := c.Server.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, c.Server.HTTPPort)
}

// RedirectURI returns the OAuth callback URL, defaulting to this server's /callback.
func (c *Config) RedirectURI() string {
	if c.TikTok.RedirectURI != "" {
		return c.TikTok.RedirectURI
	}
	return c.BackendBaseURL() + "/callback"
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
