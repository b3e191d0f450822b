package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// App lifecycle metrics
	AppsActive prometheus.Gauge
	AppsOpened prometheus.Counter
	AppsClosed prometheus.Counter

	// Sandbox metrics
	ContainedErrors   *prometheus.CounterVec
	ResourcesReleased *prometheus.CounterVec
	GlobalsRepaired   prometheus.Counter

	// Service metrics
	ServiceCalls    *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec

	// Registry metrics
	RegistryApps prometheus.Gauge

	// Bus metrics
	BusConnections prometheus.Gauge
	BusMessages    *prometheus.CounterVec

	Notifications *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveApps        int64   `json:"active_apps"`
	ActiveConnections int64   `json:"active_connections"`
	ContainedErrors   int64   `json:"contained_errors"`
	AvgLatencyMS      float64 `json:"avg_latency_ms"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a collector set on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webos_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webos_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webos_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webos_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		AppsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "webos_apps_active",
			Help: "Number of running apps",
		}),
		AppsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "webos_apps_opened_total",
			Help: "Total number of apps started in the sandbox",
		}),
		AppsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "webos_apps_closed_total",
			Help: "Total number of apps cleaned up",
		}),

		ContainedErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webos_sandbox_contained_errors_total",
				Help: "Script errors contained by the sandbox",
			},
			[]string{"phase"},
		),
		ResourcesReleased: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webos_sandbox_resources_cleared_total",
				Help: "Tracked resources released by app cleanup",
			},
			[]string{"kind"},
		),
		GlobalsRepaired: f.NewCounter(prometheus.CounterOpts{
			Name: "webos_sandbox_globals_restored_total",
			Help: "Realm entry points repaired after tampering",
		}),

		ServiceCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webos_service_calls_total",
				Help: "Total number of provider calls",
			},
			[]string{"service", "method", "status"},
		),
		ServiceDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webos_service_duration_seconds",
				Help:    "Provider call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"service", "method"},
		),

		RegistryApps: f.NewGauge(prometheus.GaugeOpts{
			Name: "webos_registry_apps",
			Help: "Number of packages in the registry",
		}),

		BusConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "webos_bus_connections",
			Help: "Number of connected bus clients",
		}),
		BusMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webos_bus_messages_total",
				Help: "Total number of bus messages",
			},
			[]string{"direction"},
		),

		Notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webos_notifications_total",
				Help: "Notifications raised by apps and the shell",
			},
			[]string{"level"},
		),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "webos_uptime_seconds",
		Help: "Backend uptime in seconds",
	}, func() float64 { return time.Since(m.startTime).Seconds() })

	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordServiceCall records a provider call
func (m *Metrics) RecordServiceCall(service, method, status string, duration time.Duration) {
	m.ServiceCalls.WithLabelValues(service, method, status).Inc()
	m.ServiceDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}

// AppOpened counts a started app
func (m *Metrics) AppOpened() {
	m.AppsOpened.Inc()
	m.AppsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveApps++
	m.mu.Unlock()
}

// AppClosed counts a cleaned up app
func (m *Metrics) AppClosed() {
	m.AppsClosed.Inc()
	m.AppsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveApps--
	m.mu.Unlock()
}

// ContainedError counts a contained script failure
func (m *Metrics) ContainedError(phase string) {
	m.ContainedErrors.WithLabelValues(phase).Inc()
	m.mu.Lock()
	m.snapshot.ContainedErrors++
	m.mu.Unlock()
}

// ResourcesCleared counts released timers, listeners or shortcuts
func (m *Metrics) ResourcesCleared(kind string, n int) {
	if n > 0 {
		m.ResourcesReleased.WithLabelValues(kind).Add(float64(n))
	}
}

// GlobalsRestored counts repaired realm entry points
func (m *Metrics) GlobalsRestored(n int) {
	if n > 0 {
		m.GlobalsRepaired.Add(float64(n))
	}
}

// SetRegistryApps sets the number of packages in the registry
func (m *Metrics) SetRegistryApps(count int) {
	m.RegistryApps.Set(float64(count))
}

// ClientConnected counts a bus client
func (m *Metrics) ClientConnected() {
	m.BusConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// ClientDisconnected uncounts a bus client
func (m *Metrics) ClientDisconnected() {
	m.BusConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// MessageRouted counts a bus message in the given direction
func (m *Metrics) MessageRouted(direction string) {
	m.BusMessages.WithLabelValues(direction).Inc()
}

// NotificationSent counts a notification
func (m *Metrics) NotificationSent(level string) {
	m.Notifications.WithLabelValues(level).Inc()
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.TotalRequests > 0 {
		s.AvgLatencyMS = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
