package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// RefreshDuration tracks full refresh cycles
	RefreshDuration *prometheus.HistogramVec
	// RefreshesTotal counts refresh cycles by trigger and whether they were merged
	RefreshesTotal *prometheus.CounterVec
	// LastRefresh is the unix time of the last completed refresh
	LastRefresh prometheus.Gauge
	// PlatformFetches counts per-platform fetch outcomes
	PlatformFetches *prometheus.CounterVec
	// PlatformFetchLatency tracks per-platform branch latency
	PlatformFetchLatency *prometheus.HistogramVec
	// PlatformUp is 1 when a platform's last refresh succeeded
	PlatformUp *prometheus.GaugeVec
	// ChannelMetric mirrors the tracked channel counters
	ChannelMetric *prometheus.GaugeVec
	// OAuthTransitions counts OAuth state machine transitions
	OAuthTransitions *prometheus.CounterVec
	// TokenExchanges counts backend token exchanges by outcome
	TokenExchanges *prometheus.CounterVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "component"},
		),
		RefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of a full dashboard refresh",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"trigger"},
		),
		RefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_total",
				Help:      "Total number of refresh requests",
			},
			[]string{"trigger", "shared"},
		),
		LastRefresh: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_refresh_timestamp_seconds",
				Help:      "Unix time of the last completed refresh",
			},
		),
		PlatformFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "platform_fetches_total",
				Help:      "Total number of platform fetches by outcome",
			},
			[]string{"platform", "operation", "status"},
		),
		PlatformFetchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "platform_fetch_duration_seconds",
				Help:      "Duration of one platform branch of a refresh",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"platform"},
		),
		PlatformUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "platform_up",
				Help:      "Whether the last refresh of a platform succeeded (1) or failed (0)",
			},
			[]string{"platform"},
		),
		ChannelMetric: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "channel_metric",
				Help:      "Latest observed channel counters",
			},
			[]string{"platform", "metric"},
		),
		OAuthTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oauth_transitions_total",
				Help:      "Total number of OAuth flow state transitions",
			},
			[]string{"from", "to"},
		),
		TokenExchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_exchanges_total",
				Help:      "Total number of backend token exchanges",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.RefreshDuration,
		m.RefreshesTotal,
		m.LastRefresh,
		m.PlatformFetches,
		m.PlatformFetchLatency,
		m.PlatformUp,
		m.ChannelMetric,
		m.OAuthTransitions,
		m.TokenExchanges,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorCounter.WithLabelValues(errorType, component).Inc()
}

// RecordRefresh records a completed refresh cycle
func (m *Metrics) RecordRefresh(trigger string, shared bool, duration time.Duration, finishedAt time.Time) {
	sharedLabel := "false"
	if shared {
		sharedLabel = "true"
	}
	m.RefreshesTotal.WithLabelValues(trigger, sharedLabel).Inc()
	if shared {
		return
	}
	m.RefreshDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	m.LastRefresh.Set(float64(finishedAt.Unix()))
}

// RecordPlatformFetch records the outcome of one platform API operation
func (m *Metrics) RecordPlatformFetch(platform, operation, status string) {
	m.PlatformFetches.WithLabelValues(platform, operation, status).Inc()
}

// RecordPlatformBranch records the latency and health of a platform branch
func (m *Metrics) RecordPlatformBranch(platform string, duration time.Duration, ok bool) {
	m.PlatformFetchLatency.WithLabelValues(platform).Observe(duration.Seconds())
	value := 1.0
	if !ok {
		value = 0.0
	}
	m.PlatformUp.WithLabelValues(platform).Set(value)
}

// SetChannelMetric publishes the latest value of a tracked counter
func (m *Metrics) SetChannelMetric(platform, metric string, value uint64) {
	m.ChannelMetric.WithLabelValues(platform, metric).Set(float64(value))
}

// RecordOAuthTransition records an OAuth state machine transition
func (m *Metrics) RecordOAuthTransition(from, to string) {
	m.OAuthTransitions.WithLabelValues(from, to).Inc()
}

// RecordTokenExchange records a backend token exchange outcome
func (m *Metrics) RecordTokenExchange(status string) {
	m.TokenExchanges.WithLabelValues(status).Inc()
}
