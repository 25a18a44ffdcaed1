package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// sessionStates lists every state the session gauge reports
var sessionStates = []string{
	"disconnected",
	"connecting",
	"authenticating",
	"subscribe_attempt_filtered",
	"subscribed_filtered",
	"subscribed_firehose",
	"streaming",
}

// PrometheusCollector implements MetricsCollector using Prometheus metrics.
// Each collector owns its registry so several can coexist in tests.
type PrometheusCollector struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// HTTP Metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Session Metrics
	sessionState  *prometheus.GaugeVec
	subscriptions *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	reconnects    prometheus.Counter

	// Notification Metrics
	notifications    *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	evaluationErrors prometheus.Counter
}

// NewPrometheusCollector creates a new Prometheus metrics collector
func NewPrometheusCollector(config *MetricsConfig) *PrometheusCollector {
	if config == nil {
		config = &MetricsConfig{
			Enabled: true,
			Prefix:  "watch_bridge",
		}
	}

	prefix := config.Prefix
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	collector := &PrometheusCollector{
		config:   config,
		registry: reg,
	}

	// Initialize HTTP metrics
	collector.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	collector.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Initialize session metrics
	collector.sessionState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_session_state",
			Help: "Current Home Assistant session state (1 for the active state)",
		},
		[]string{"state"},
	)

	collector.subscriptions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_subscriptions_total",
			Help: "Total number of established event subscriptions by mode",
		},
		[]string{"mode"},
	)

	collector.transitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_transitions_total",
			Help: "Total number of entity transitions received by subscription mode",
		},
		[]string{"mode"},
	)

	collector.reconnects = factory.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_session_reconnects_total",
			Help: "Total number of Home Assistant session restarts",
		},
	)

	// Initialize notification metrics
	collector.notifications = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_notifications_total",
			Help: "Total number of delivered notifications by match kind",
		},
		[]string{"kind"},
	)

	collector.deliveryFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_delivery_failures_total",
			Help: "Total number of notifications that could not be delivered",
		},
	)

	collector.evaluationErrors = factory.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_evaluation_errors_total",
			Help: "Total number of watcher evaluations that panicked",
		},
	)

	for _, state := range sessionStates {
		collector.sessionState.WithLabelValues(state).Set(0)
	}

	return collector
}

// Handler serves the collector's registry in the Prometheus text format
func (p *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (p *PrometheusCollector) Registry() *prometheus.Registry {
	return p.registry
}

// RecordHTTPRequest records HTTP request metrics
func (p *PrometheusCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetSessionState marks state as the active session state
func (p *PrometheusCollector) SetSessionState(state string) {
	if !p.config.Enabled {
		return
	}

	for _, s := range sessionStates {
		value := 0.0
		if s == state {
			value = 1
		}
		p.sessionState.WithLabelValues(s).Set(value)
	}
}

// IncSubscription records an established subscription
func (p *PrometheusCollector) IncSubscription(mode string) {
	if !p.config.Enabled {
		return
	}

	p.subscriptions.WithLabelValues(mode).Inc()
}

// IncTransition records a decoded transition
func (p *PrometheusCollector) IncTransition(mode string) {
	if !p.config.Enabled {
		return
	}

	p.transitions.WithLabelValues(mode).Inc()
}

// IncReconnect records a session restart
func (p *PrometheusCollector) IncReconnect() {
	if !p.config.Enabled {
		return
	}

	p.reconnects.Inc()
}

// IncNotification records a delivered notification
func (p *PrometheusCollector) IncNotification(kind string) {
	if !p.config.Enabled {
		return
	}

	p.notifications.WithLabelValues(kind).Inc()
}

// IncDeliveryFailure records a failed delivery
func (p *PrometheusCollector) IncDeliveryFailure() {
	if !p.config.Enabled {
		return
	}

	p.deliveryFailures.Inc()
}

// IncEvaluationError records a recovered evaluation panic
func (p *PrometheusCollector) IncEvaluationError() {
	if !p.config.Enabled {
		return
	}

	p.evaluationErrors.Inc()
}
