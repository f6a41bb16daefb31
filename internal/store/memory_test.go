package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulseboard/pulseboard/internal/models"
)

func TestMetricStore_AdvanceReplaces(t *testing.T) {
	s := NewMetricStore()

	assert.Equal(t, uint64(0), s.Previous(models.PlatformYouTube, models.MetricSubscribers))

	s.Advance(models.PlatformYouTube, models.MetricSubscribers, 100)
	assert.Equal(t, uint64(100), s.Previous(models.PlatformYouTube, models.MetricSubscribers))

	s.Advance(models.PlatformYouTube, models.MetricSubscribers, 90)
	assert.Equal(t, uint64(90), s.Previous(models.PlatformYouTube, models.MetricSubscribers), "a drop is stored, not the max")

	assert.Equal(t, uint64(0), s.Previous(models.PlatformTikTok, models.MetricSubscribers), "platforms are independent")
}

func TestMetricStore_Observe(t *testing.T) {
	s := NewMetricStore()

	assert.Equal(t, uint64(0), s.Observe(models.PlatformTikTok, models.MetricLikes, 5))
	assert.Equal(t, uint64(5), s.Observe(models.PlatformTikTok, models.MetricLikes, 8))
	assert.Equal(t, uint64(8), s.Previous(models.PlatformTikTok, models.MetricLikes))
}

func TestMetricStore_Forget(t *testing.T) {
	s := NewMetricStore()
	s.Advance(models.PlatformTikTok, models.MetricFollowers, 1)
	s.Advance(models.PlatformTikTok, models.MetricLikes, 2)
	s.Advance(models.PlatformYouTube, models.MetricViews, 3)

	s.Forget(models.PlatformTikTok)
	assert.Equal(t, uint64(0), s.Previous(models.PlatformTikTok, models.MetricFollowers))
	assert.Equal(t, uint64(0), s.Previous(models.PlatformTikTok, models.MetricLikes))
	assert.Equal(t, uint64(3), s.Previous(models.PlatformYouTube, models.MetricViews))
}

func TestMetricStore_Concurrent(t *testing.T) {
	s := NewMetricStore()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			s.Advance(models.PlatformYouTube, models.MetricViews, v)
			_ = s.Previous(models.PlatformYouTube, models.MetricViews)
		}(uint64(i + 1))
	}
	wg.Wait()

	assert.NotZero(t, s.Previous(models.PlatformYouTube, models.MetricViews))
}
