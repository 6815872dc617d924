package monitoring

import (
	"net/http"
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

	// Endpoint metrics
	EndpointRequests *prometheus.CounterVec
	EndpointDuration prometheus.Histogram

	// Browser metrics
	BrowserConnected prometheus.Gauge
	BrowserLaunches  *prometheus.CounterVec
	LaunchDuration   prometheus.Histogram
	Disconnects      prometheus.Counter

	// Page metrics
	PagesTracked prometheus.Gauge
	PagesReaped  prometheus.Counter
	PageCloseErr prometheus.Counter

	// Relay metrics
	RelaySessions prometheus.Gauge
	RelayTotal    *prometheus.CounterVec
	RelayFrames   *prometheus.CounterVec
	RelayBytes    *prometheus.CounterVec

	// Diagnostics metrics
	DiagEvents *prometheus.CounterVec
	DiagErrors *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates a metrics collector backed by its own registry, so
// several instances can coexist in one process (tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdpgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),

		EndpointRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_endpoint_requests_total",
				Help: "Control endpoint requests by mode and result",
			},
			[]string{"mode", "result"},
		),
		EndpointDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdpgate_endpoint_duration_seconds",
			Help:    "Time to hand out a control endpoint, including any launch",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		}),

		BrowserConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "cdpgate_browser_connected",
			Help: "1 when a supervised browser is connected",
		}),
		BrowserLaunches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_browser_launches_total",
				Help: "Browser launch attempts by result",
			},
			[]string{"result"},
		),
		LaunchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdpgate_browser_launch_duration_seconds",
			Help:    "Time taken to launch and connect to the browser",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		Disconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "cdpgate_browser_disconnects_total",
			Help: "Browser disconnects observed",
		}),

		PagesTracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "cdpgate_pages_tracked",
			Help: "Pages with a pending lifetime timer",
		}),
		PagesReaped: f.NewCounter(prometheus.CounterOpts{
			Name: "cdpgate_pages_reaped_total",
			Help: "Pages closed for exceeding the maximum age",
		}),
		PageCloseErr: f.NewCounter(prometheus.CounterOpts{
			Name: "cdpgate_page_close_errors_total",
			Help: "Best-effort page closes that failed",
		}),

		RelaySessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "cdpgate_relay_sessions",
			Help: "Active relay sessions",
		}),
		RelayTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_relay_sessions_total",
				Help: "Relay sessions by outcome",
			},
			[]string{"outcome"},
		),
		RelayFrames: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_relay_frames_total",
				Help: "Frames forwarded by direction and type",
			},
			[]string{"direction", "type"},
		),
		RelayBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_relay_bytes_total",
				Help: "Payload bytes forwarded by direction",
			},
			[]string{"direction"},
		),

		DiagEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_diagnostics_events_total",
				Help: "CDP lifecycle events observed by the diagnostics tap",
			},
			[]string{"scope", "kind"},
		),
		DiagErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_diagnostics_errors_total",
				Help: "Contained diagnostics failures",
			},
			[]string{"stage"},
		),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cdpgate_uptime_seconds",
		Help: "Gateway uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// Handler returns the Prometheus exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEndpoint records a /cdp request
func (m *Metrics) RecordEndpoint(mode, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.EndpointRequests.WithLabelValues(mode, result).Inc()
	m.EndpointDuration.Observe(duration.Seconds())
}

// RecordLaunch records a browser launch attempt
func (m *Metrics) RecordLaunch(err error, duration time.Duration) {
	if m == nil {
		return
	}
	if err != nil {
		m.BrowserLaunches.WithLabelValues("failure").Inc()
		return
	}
	m.BrowserLaunches.WithLabelValues("success").Inc()
	m.LaunchDuration.Observe(duration.Seconds())
	m.BrowserConnected.Set(1)
}

// RecordDisconnect records loss of the supervised browser
func (m *Metrics) RecordDisconnect() {
	if m == nil {
		return
	}
	m.Disconnects.Inc()
	m.BrowserConnected.Set(0)
}

// SetBrowserConnected sets the connected gauge without counting a disconnect
func (m *Metrics) SetBrowserConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.BrowserConnected.Set(1)
	} else {
		m.BrowserConnected.Set(0)
	}
}

// SetPagesTracked sets the number of pages with a pending timer
func (m *Metrics) SetPagesTracked(count int) {
	if m == nil {
		return
	}
	m.PagesTracked.Set(float64(count))
}

// IncPagesReaped counts a page closed by its lifetime timer
func (m *Metrics) IncPagesReaped() {
	if m == nil {
		return
	}
	m.PagesReaped.Inc()
}

// IncPageCloseErrors counts a failed best-effort page close
func (m *Metrics) IncPageCloseErrors() {
	if m == nil {
		return
	}
	m.PageCloseErr.Inc()
}

// RelayOpened records a new relay session
func (m *Metrics) RelayOpened() {
	if m == nil {
		return
	}
	m.RelaySessions.Inc()
}

// RelayClosed records the end of a relay session
func (m *Metrics) RelayClosed(outcome string) {
	if m == nil {
		return
	}
	m.RelaySessions.Dec()
	m.RelayTotal.WithLabelValues(outcome).Inc()
}

// RelayRejected records an upgrade that never became a session
func (m *Metrics) RelayRejected(reason string) {
	if m == nil {
		return
	}
	m.RelayTotal.WithLabelValues(reason).Inc()
}

// RecordFrame records one forwarded frame
func (m *Metrics) RecordFrame(direction, frameType string, size int64) {
	if m == nil {
		return
	}
	m.RelayFrames.WithLabelValues(direction, frameType).Inc()
	m.RelayBytes.WithLabelValues(direction).Add(float64(size))
}

// RecordDiagEvent records an observed CDP event
func (m *Metrics) RecordDiagEvent(scope, kind string) {
	if m == nil {
		return
	}
	m.DiagEvents.WithLabelValues(scope, kind).Inc()
}

// RecordDiagError records a contained diagnostics failure
func (m *Metrics) RecordDiagError(stage string) {
	if m == nil {
		return
	}
	m.DiagErrors.WithLabelValues(stage).Inc()
}
