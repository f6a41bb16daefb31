package collector

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pulseboard/pulseboard/internal/errors"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/models"
)

// Refresher runs one refresh cycle.
type Refresher interface {
	RefreshWithTrigger(ctx context.Context, trigger string) (*models.ViewModel, error)
}

// Poller refreshes on startup, on a fixed interval and on demand.
type Poller struct {
	refresher Refresher
	interval  time.Duration
	logger    *logging.Logger

	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	triggerCh chan struct{}
	wg        sync.WaitGroup
}

// PollerConfig holds configuration for the poller
type PollerConfig struct {
	Interval time.Duration
	Logger   *logging.Logger
}

// DefaultPollerConfig returns default configuration
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 60 * time.Second,
	}
}

// NewPoller creates a new poller
func NewPoller(r Refresher, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollerConfig().Interval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.WithOutput(io.Discard))
	}

	return &Poller{
		refresher: r,
		interval:  cfg.Interval,
		logger:    logger,
		triggerCh: make(chan struct{}, 1),
	}
}

// Start begins the polling loop
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return &errors.ErrServerStart{Addr: "poller", Err: fmt.Errorf("poller already running")}
	}

	p.running = true
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.pollLoop(ctx, p.stopCh)

	return nil
}

// Stop ends the polling loop and waits for an in-flight refresh to finish
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh := p.stopCh
	p.mu.Unlock()

	close(stopCh)
	p.wg.Wait()

	return nil
}

// IsRunning returns true if the poller is running
func (p *Poller) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Interval returns the polling interval
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Trigger requests an immediate refresh without waiting for it. It reports
// false when a request is already queued.
func (p *Poller) Trigger() bool {
	select {
	case p.triggerCh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *Poller) pollLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer p.wg.Done()

	p.poll(ctx, TriggerStartup)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			p.poll(ctx, TriggerTimer)
		case <-p.triggerCh:
			p.poll(ctx, TriggerManual)
		}
	}
}

func (p *Poller) poll(ctx context.Context, trigger string) {
	if _, err := p.refresher.RefreshWithTrigger(ctx, trigger); err != nil {
		p.logger.Warn("refresh aborted", "trigger", trigger, "error", err.Error())
	}
}
