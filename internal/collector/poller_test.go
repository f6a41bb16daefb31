package collector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/models"
)

type countingRefresher struct {
	mu       sync.Mutex
	triggers []string
}

func (r *countingRefresher) RefreshWithTrigger(_ context.Context, trigger string) (*models.ViewModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
	return models.NewViewModel(), nil
}

func (r *countingRefresher) count(trigger string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.triggers {
		if t == trigger {
			n++
		}
	}
	return n
}

func TestNewPoller_DefaultInterval(t *testing.T) {
	p := NewPoller(&countingRefresher{}, PollerConfig{})
	assert.Equal(t, 60*time.Second, p.Interval())
	assert.False(t, p.IsRunning())
}

func TestPoller_StartStop(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(r, PollerConfig{Interval: time.Hour})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())

	err := p.Start(context.Background())
	assert.Error(t, err, "second start must fail")

	assert.Eventually(t, func() bool { return r.count(TriggerStartup) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop())
}

func TestPoller_Interval(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(r, PollerConfig{Interval: 20 * time.Millisecond})

	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop() }()

	assert.Eventually(t, func() bool { return r.count(TriggerTimer) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestPoller_Trigger(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(r, PollerConfig{Interval: time.Hour})

	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop() }()

	assert.Eventually(t, func() bool { return r.count(TriggerStartup) == 1 }, time.Second, 5*time.Millisecond)
	p.Trigger()
	assert.Eventually(t, func() bool { return r.count(TriggerManual) == 1 }, time.Second, 5*time.Millisecond)
}

func TestPoller_TriggerDoesNotBlock(t *testing.T) {
	p := NewPoller(&countingRefresher{}, PollerConfig{Interval: time.Hour})

	assert.True(t, p.Trigger())
	assert.False(t, p.Trigger(), "only one request is queued")
}

func TestPoller_ContextCancelEndsLoop(t *testing.T) {
	r := &countingRefresher{}
	p := NewPoller(r, PollerConfig{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, p.Start(ctx))
	assert.Eventually(t, func() bool { return r.count(TriggerStartup) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, p.Stop())
}
