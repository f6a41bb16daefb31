package collector

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/pulseboard/pulseboard/internal/format"
	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/internal/metrics"
	"github.com/pulseboard/pulseboard/internal/models"
	"github.com/pulseboard/pulseboard/internal/platform"
	"github.com/pulseboard/pulseboard/internal/store"
)

// Refresh triggers, used as metric labels.
const (
	TriggerTimer   = "timer"
	TriggerManual  = "manual"
	TriggerStartup = "startup"
)

const refreshKey = "refresh"

// CredentialSource provides the credentials of every platform.
type CredentialSource interface {
	LoadAll() map[models.PlatformID]models.PlatformCredentials
}

// Listener receives refresh results. OnPlatform is called as soon as a
// platform branch settles, OnRefresh once the whole cycle is done. Calls are
// serialized by the engine.
type Listener interface {
	OnPlatform(view *models.PlatformView)
	OnRefresh(vm *models.ViewModel)
}

// EngineConfig holds the dependencies of an Engine.
type EngineConfig struct {
	Clients      []platform.Client
	Credentials  CredentialSource
	Store        *store.MetricStore
	FetchTimeout time.Duration
	Metrics      *metrics.Metrics
	Logger       *logging.Logger
}

// Engine runs refresh cycles: it fetches every configured platform in
// parallel, computes deltas against the last observation and builds the
// dashboard view model.
type Engine struct {
	clients      map[models.PlatformID]platform.Client
	credentials  CredentialSource
	store        *store.MetricStore
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *logging.Logger
	now          func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	latest    *models.ViewModel
	listeners []Listener

	notifyMu sync.Mutex
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	clients := make(map[models.PlatformID]platform.Client, len(cfg.Clients))
	for _, c := range cfg.Clients {
		clients[c.Platform()] = c
	}

	ms := cfg.Store
	if ms == nil {
		ms = store.NewMetricStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.WithOutput(io.Discard))
	}

	return &Engine{
		clients:      clients,
		credentials:  cfg.Credentials,
		store:        ms,
		fetchTimeout: cfg.FetchTimeout,
		metrics:      cfg.Metrics,
		logger:       logger,
		now:          time.Now,
	}
}

// AddListener registers a listener for refresh results.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Latest returns the view model of the last completed refresh, or nil.
func (e *Engine) Latest() *models.ViewModel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Store returns the metric store the engine advances.
func (e *Engine) Store() *store.MetricStore {
	return e.store
}

// Refresh runs a manual refresh cycle.
func (e *Engine) Refresh(ctx context.Context) (*models.ViewModel, error) {
	return e.RefreshWithTrigger(ctx, TriggerManual)
}

// RefreshWithTrigger runs a refresh cycle. A call made while another cycle is
// in flight joins it and receives its result. The cycle itself is detached
// from ctx, so a caller that gives up only stops waiting; branches stay bounded
// by the fetch timeout. Platform failures are reported in the view model; the
// returned error is only set when ctx ends first.
func (e *Engine) RefreshWithTrigger(ctx context.Context, trigger string) (*models.ViewModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		leader   bool
		started  time.Time
		finished time.Time
	)
	ch := e.group.DoChan(refreshKey, func() (interface{}, error) {
		leader = true
		started = time.Now()
		vm := e.refresh(context.WithoutCancel(ctx))
		finished = vm.LastUpdate
		return vm, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if e.metrics != nil {
			if leader {
				e.metrics.RecordRefresh(trigger, false, time.Since(started), finished)
			} else {
				e.metrics.RecordRefresh(trigger, true, 0, time.Time{})
			}
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.ViewModel), nil
	}
}

func (e *Engine) refresh(ctx context.Context) *models.ViewModel {
	ctx = logging.WithRefreshID(ctx, uuid.NewString())
	creds := e.credentials.LoadAll()

	vm := models.NewViewModel()
	var vmMu sync.Mutex

	p := pool.New()
	started := 0
	for _, id := range models.AllPlatforms {
		client, ok := e.clients[id]
		if !ok {
			continue
		}
		c := creds[id]
		if !c.Present() {
			e.logger.DebugWithContext(ctx, "platform not configured, skipping", "platform", string(id))
			continue
		}

		started++
		p.Go(func() {
			view := e.runBranch(ctx, client, c)

			vmMu.Lock()
			vm.Platforms[id] = view
			vmMu.Unlock()

			e.notifyPlatform(view)
		})
	}
	p.Wait()

	vm.LastUpdate = e.now()
	vm.LastUpdateText = format.FormatClock(vm.LastUpdate)

	e.mu.Lock()
	e.latest = vm
	e.mu.Unlock()

	e.logger.InfoWithContext(ctx, "refresh completed",
		"platforms", started,
		"last_update", vm.LastUpdateText,
	)
	e.notifyRefresh(vm)
	return vm
}

// runBranch fetches one platform. A panic inside the client is reported as a
// platform error instead of taking the cycle down.
func (e *Engine) runBranch(ctx context.Context, client platform.Client, creds models.PlatformCredentials) (view *models.PlatformView) {
	id := client.Platform()
	start := time.Now()

	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	var pc panics.Catcher
	pc.Try(func() {
		view = e.fetchPlatform(ctx, client, creds)
	})
	if r := pc.Recovered(); r != nil {
		e.logger.ErrorWithContext(ctx, "platform branch panicked",
			"platform", string(id),
			"panic", fmt.Sprint(r.Value),
		)
		if e.metrics != nil {
			e.metrics.RecordError("panic", "collector")
		}
		view = errorView(id, fmt.Errorf("internal error: %v", r.Value), e.now())
	}

	if e.metrics != nil {
		e.metrics.RecordPlatformBranch(string(id), time.Since(start), view.Status == models.StatusLive)
	}
	return view
}

func (e *Engine) fetchPlatform(ctx context.Context, client platform.Client, creds models.PlatformCredentials) *models.PlatformView {
	id := client.Platform()

	snap, err := client.FetchSnapshot(ctx, creds)
	if err != nil {
		e.recordFetch(id, "snapshot", err)
		e.logger.ErrorWithContext(ctx, "platform snapshot failed",
			"platform", string(id),
			"operation", "snapshot",
			"error", err.Error(),
		)
		return errorView(id, err, e.now())
	}
	e.recordFetch(id, "snapshot", nil)

	now := e.now()
	view := &models.PlatformView{
		Platform:    id,
		DisplayName: snap.DisplayName,
		Status:      models.StatusLive,
		Metrics:     e.observeMetrics(id, snap),
		UpdatedAt:   now,
	}
	if id == models.PlatformTikTok {
		view.Following = format.FormatCount(snap.FollowingCount)
	}

	pair, err := client.FetchTopAndLatestVideos(ctx, creds)
	if err != nil {
		e.recordFetch(id, "videos", err)
		e.logger.WarnWithContext(ctx, "platform video list failed",
			"platform", string(id),
			"operation", "videos",
			"error", err.Error(),
		)
		if id.VideosRequired() {
			view.Status = models.StatusError
			view.Error = err.Error()
		}
		return view
	}
	e.recordFetch(id, "videos", nil)

	top := videoView(id, pair.Top, now, false)
	latest := videoView(id, pair.Latest, now, true)
	view.Top = &top
	view.Latest = &latest
	return view
}

// observeMetrics computes deltas for the tracked metrics and advances the
// store to the new values.
func (e *Engine) observeMetrics(id models.PlatformID, snap *models.ChannelSnapshot) []models.MetricView {
	tracked := id.TrackedMetrics()
	out := make([]models.MetricView, 0, len(tracked))

	for _, name := range tracked {
		value, ok := snap.Metric(name)
		if !ok {
			continue
		}
		previous := e.store.Observe(id, name, value)

		mv := models.MetricView{
			Name:       name,
			Value:      value,
			Formatted:  format.FormatCount(value),
			DeltaStyle: models.DeltaStyleNone,
		}
		if delta, ok := models.NewMetricDelta(name, previous, value); ok {
			mv.Delta = &delta
			mv.DeltaText, mv.DeltaStyle = format.FormatDelta(delta)
			mv.Changed = format.FormatCount(previous) != mv.Formatted
		}
		out = append(out, mv)

		if e.metrics != nil {
			e.metrics.SetChannelMetric(string(id), string(name), value)
		}
	}
	return out
}

func (e *Engine) recordFetch(id models.PlatformID, op string, err error) {
	if e.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.RecordPlatformFetch(string(id), op, status)
}

func (e *Engine) notifyPlatform(view *models.PlatformView) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	for _, l := range e.snapshotListeners() {
		l.OnPlatform(view)
	}
}

func (e *Engine) notifyRefresh(vm *models.ViewModel) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	for _, l := range e.snapshotListeners() {
		l.OnRefresh(vm)
	}
}

func (e *Engine) snapshotListeners() []Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Listener(nil), e.listeners...)
}

func errorView(id models.PlatformID, err error, now time.Time) *models.PlatformView {
	return &models.PlatformView{
		Platform:  id,
		Status:    models.StatusError,
		Error:     err.Error(),
		UpdatedAt: now,
	}
}

// videoView formats a video card. Velocity is only shown for the latest
// video; TikTok omits it when the view count is unknown.
func videoView(id models.PlatformID, v models.VideoSnapshot, now time.Time, withVelocity bool) models.VideoView {
	out := models.VideoView{
		ID:           v.ID,
		Title:        v.Title,
		ThumbnailURL: v.ThumbnailURL,
		Views:        format.FormatCount(v.ViewCount),
		PublishedAt:  v.PublishedAt,
		Published:    format.TimeAgo(v.PublishedAt, now),
	}
	if v.LikeCount != nil {
		out.Likes = format.FormatCount(*v.LikeCount)
	}
	if withVelocity && (id != models.PlatformTikTok || v.ViewCount > 0) {
		out.VelocityPerHour = platform.Velocity(v.ViewCount, v.PublishedAt, now)
		out.Velocity = format.FormatVelocity(out.VelocityPerHour)
	}
	return out
}
