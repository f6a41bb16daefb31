package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pulseboard/pulseboard/internal/errors"
	"gopkg.in/yaml.v3"
)

// Environment variables read when the config file leaves a value empty.
const (
	EnvConfigPath         = "PULSEBOARD_CONFIG_PATH"
	EnvTikTokClientKey    = "TIKTOK_CLIENT_KEY"
	EnvTikTokClientSecret = "TIKTOK_CLIENT_SECRET"
	EnvTelegramBotToken   = "PULSEBOARD_TELEGRAM_TOKEN"
)

// Loader handles configuration loading and hot-reloading
type Loader struct {
	path     string
	mu       sync.RWMutex
	config   *Config
	onChange func(*Config)
	onError  func(error)
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{
		path:     path,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Path returns the watched config file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the configuration from the file
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(l.path); err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		}
		return nil, err
	}

	content, err := os.ReadFile(l.path)
	if err != nil {
		return nil, &errors.ErrFileRead{Path: l.path, Err: err}
	}

	config, err := Parse(substituteEnvVars(content))
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = config
	l.mu.Unlock()

	return config, nil
}

// Reload forces a reload of the configuration and notifies the change callback
func (l *Loader) Reload() (*Config, error) {
	config, err := l.Load()
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	onChange := l.onChange
	l.mu.RUnlock()

	if onChange != nil {
		onChange(config)
	}

	return config, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetOnChange sets a callback to be called when configuration changes
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// SetOnError sets a callback for reload failures
func (l *Loader) SetOnError(fn func(error)) {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

// StartWatcher reloads the configuration whenever the file is written.
// The parent directory is watched so editors that replace the file via
// rename are picked up too. Bursts of events are coalesced by debounce.
func (l *Loader) StartWatcher(debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return err
	}
	l.watcher = watcher

	go l.watchLoop(debounce)
	return nil
}

func (l *Loader) watchLoop(debounce time.Duration) {
	defer close(l.done)
	defer l.watcher.Close()

	target := filepath.Clean(l.path)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-l.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			if _, err := l.Reload(); err != nil {
				l.reportError(err)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.reportError(err)
		}
	}
}

func (l *Loader) reportError(err error) {
	l.mu.RLock()
	onError := l.onError
	l.mu.RUnlock()

	if onError != nil {
		onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "Error reloading config: %v\n", err)
}

// StopWatcher stops the file watcher
func (l *Loader) StopWatcher() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.watcher != nil {
			<-l.done
		}
	})
}

// LoadFromEnv loads configuration from PULSEBOARD_CONFIG_PATH or config.yaml.
// A missing file yields the defaults.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = "config.yaml"
	}
	return LoadOrDefault(path)
}

// LoadOrDefault loads path, falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := NewLoader(path).Load()
	if err == nil {
		return cfg, nil
	}
	if _, ok := err.(*errors.ErrConfigNotFound); ok {
		cfg := Default()
		applyEnv(cfg)
		return cfg, nil
	}
	return nil, err
}

// Parse parses configuration from byte slice
func Parse(data []byte) (*Config, error) {
	var config Config

	config.Version = "1"
	config.Server.HTTPPort = 8080
	config.Server.LogLevel = "info"
	config.Collector.Interval = 60 * time.Second

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}

	applyEnv(&config)

	if err := config.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return &config, nil
}

func applyEnv(c *Config) {
	if c.TikTok.ClientKey == "" {
		c.TikTok.ClientKey = os.Getenv(EnvTikTokClientKey)
	}
	if c.TikTok.ClientSecret == "" {
		c.TikTok.ClientSecret = os.Getenv(EnvTikTokClientSecret)
	}
	if c.Telegram.BotToken == "" {
		c.Telegram.BotToken = os.Getenv(EnvTelegramBotToken)
	}
}

func substituteEnvVars(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
