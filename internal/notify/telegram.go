// Package notify sends Telegram messages when a platform goes down or
// recovers and when a TikTok account is connected.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
)

const defaultQueueSize = 32

// Options override the notifier's collaborators. Zero values get defaults.
type Options struct {
	Sender      Sender
	RateLimiter *RateLimiter
	Dedup       *DedupLimiter
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	QueueSize   int
}

// Telegram is a collector listener that reports status transitions.
type Telegram struct {
	chatID  int64
	enabled bool
	sender  Sender
	limiter *RateLimiter
	dedup   *DedupLimiter
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu     sync.Mutex
	status map[models.PlatformID]models.PlatformStatus

	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTelegram creates a notifier. It is disabled, and every method is a
// no-op, when the config is disabled or lacks a token or chat ID.
func NewTelegram(cfg config.TelegramConfig, opts *Options) (*Telegram, error) {
	if opts == nil {
		opts = &Options{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	t := &Telegram{
		chatID:  cfg.ChatID,
		enabled: cfg.Enabled && strings.TrimSpace(cfg.BotToken) != "" && cfg.ChatID != 0,
		sender:  opts.Sender,
		limiter: opts.RateLimiter,
		dedup:   opts.Dedup,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		status:  make(map[models.PlatformID]models.PlatformStatus),
		ctx:     ctx,
		cancel:  cancel,
	}
	if t.limiter == nil {
		t.limiter = NewRateLimiter(20)
	}
	if t.dedup == nil {
		t.dedup = NewDedupLimiter(5 * time.Minute)
	}
	if t.logger == nil {
		t.logger = logging.NewLogger(logging.WithOutput(io.Discard))
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	t.queue = make(chan string, size)

	if t.enabled && t.sender == nil {
		client, err := NewBotClient(cfg.BotToken)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
		t.sender = client
	}
	return t, nil
}

// Enabled reports whether messages are delivered.
func (t *Telegram) Enabled() bool {
	return t.enabled
}

// Start launches the delivery loop.
func (t *Telegram) Start() {
	if !t.enabled {
		return
	}
	t.wg.Add(2)
	go t.deliver()
	go t.dedupCleanup()
}

// Stop ends the delivery loop. Messages still queued are dropped.
func (t *Telegram) Stop(ctx context.Context) error {
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for telegram notifier to stop")
	}
}

// OnPlatform sends a message when a platform moves between live and error.
// The first status seen for a platform is only recorded.
func (t *Telegram) OnPlatform(view *models.PlatformView) {
	if view == nil {
		return
	}

	t.mu.Lock()
	prev, seen := t.status[view.Platform]
	t.status[view.Platform] = view.Status
	t.mu.Unlock()

	if !seen || prev == view.Status {
		return
	}

	name := view.Platform.DisplayName()
	switch {
	case prev == models.StatusLive && view.Status == models.StatusError:
		t.enqueue(string(view.Platform)+":error", fmt.Sprintf("⚠️ %s is failing: %s", name, view.Error))
	case prev == models.StatusError && view.Status == models.StatusLive:
		t.enqueue(string(view.Platform)+":live", fmt.Sprintf("✅ %s is live again", name))
	}
}

// OnRefresh is part of the collector listener contract.
func (t *Telegram) OnRefresh(vm *models.ViewModel) {}

// OAuthConnected announces a newly connected TikTok account.
func (t *Telegram) OAuthConnected(ctx context.Context, creds models.PlatformCredentials) {
	text := fmt.Sprintf("🔗 %s account connected", creds.Platform.DisplayName())
	if creds.OpenID != "" {
		text += " (open_id " + creds.OpenID + ")"
	}
	t.enqueue("oauth:"+creds.OpenID, text)
}

func (t *Telegram) enqueue(key, text string) {
	if !t.enabled {
		return
	}
	if !t.dedup.CanSend(key) {
		t.logger.Debug("telegram message suppressed as duplicate", "key", key)
		return
	}
	select {
	case t.queue <- text:
	default:
		t.logger.Warn("telegram queue full, dropping message", "key", key)
		t.recordError("queue_full")
	}
}

func (t *Telegram) deliver() {
	defer t.wg.Done()

	for {
		select {
		case <-t.ctx.Done():
			return
		case text := <-t.queue:
			if !t.limiter.Allow() {
				t.logger.Warn("telegram rate limit exceeded, dropping message")
				t.recordError("rate_limited")
				continue
			}
			if err := t.sender.SendMessage(t.chatID, text); err != nil {
				t.logger.Warn("telegram send failed", "error", err.Error())
				t.recordError("send_failed")
			}
		}
	}
}

func (t *Telegram) dedupCleanup() {
	defer t.wg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.dedup.Cleanup()
		}
	}
}

func (t *Telegram) recordError(kind string) {
	if t.metrics != nil {
		t.metrics.RecordError(kind, "notify")
	}
}
