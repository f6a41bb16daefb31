package store

import (
	"sync"

	"github.com/pulseboard/pulseboard/internal/models"
)

type metricKey struct {
	platform models.PlatformID
	metric   models.MetricName
}

// MetricStore keeps the last observed value of every tracked metric.
// It lives for the life of the process and is never persisted. Advance
// replaces the stored value unconditionally, so a drop is recorded as-is.
type MetricStore struct {
	mu     sync.RWMutex
	values map[metricKey]uint64
}

// NewMetricStore creates an empty metric store.
func NewMetricStore() *MetricStore {
	return &MetricStore{
		values: make(map[metricKey]uint64),
	}
}

// Previous returns the last observed value, or 0 when there is none.
func (s *MetricStore) Previous(platform models.PlatformID, metric models.MetricName) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values[metricKey{platform, metric}]
}

// Advance records value as the most recent observation.
func (s *MetricStore) Advance(platform models.PlatformID, metric models.MetricName, value uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[metricKey{platform, metric}] = value
}

// Observe returns the previous value and records the new one atomically.
func (s *MetricStore) Observe(platform models.PlatformID, metric models.MetricName, value uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := metricKey{platform, metric}
	prev := s.values[key]
	s.values[key] = value
	return prev
}

// Forget drops the observations of one platform so its next values are
// treated as first observations.
func (s *MetricStore) Forget(platform models.PlatformID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.values {
		if k.platform == platform {
			delete(s.values, k)
		}
	}
}
