// Package middleware provides Prometheus instrumentation for the router:
// session lifecycle, dealer call routing, and broker fan-out counters,
// exposed through the router's /metrics endpoint.
package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics collector.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "wampio").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics collector.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) { c.Namespace = namespace }
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) { c.ConstLabels = labels }
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) { c.Registry = registry }
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "wampio", Registry: prometheus.DefaultRegisterer}
}

// Metrics holds the Prometheus collectors for a router instance.
type Metrics struct {
	sessionsOpened  prometheus.Counter
	sessionsClosed  prometheus.Counter
	activeSessions  prometheus.Gauge
	callsTotal      *prometheus.CounterVec
	callErrorsTotal *prometheus.CounterVec
	eventsPublished prometheus.Counter
	handshakeErrors *prometheus.CounterVec
}

var (
	global     *Metrics
	globalOnce sync.Once
	globalMu   sync.Mutex
)

func build(config MetricsConfig) *Metrics {
	factory := promauto.With(config.Registry)
	return &Metrics{
		sessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_opened_total",
			Help:        "Total number of WAMP sessions that reached OPEN.",
			ConstLabels: config.ConstLabels,
		}),
		sessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sessions_closed_total",
			Help:        "Total number of WAMP sessions that reached CLOSED.",
			ConstLabels: config.ConstLabels,
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "active_sessions",
			Help:        "Number of sessions currently OPEN.",
			ConstLabels: config.ConstLabels,
		}),
		callsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "calls_total",
			Help:        "Total number of CALL messages routed by the dealer.",
			ConstLabels: config.ConstLabels,
		}, []string{"realm"}),
		callErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "call_errors_total",
			Help:        "Total number of CALLs that resolved to an ERROR.",
			ConstLabels: config.ConstLabels,
		}, []string{"realm", "error"}),
		eventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "events_published_total",
			Help:        "Total number of EVENT messages fanned out by the broker.",
			ConstLabels: config.ConstLabels,
		}),
		handshakeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "handshake_errors_total",
			Help:        "Total number of failed transport/WAMP handshakes.",
			ConstLabels: config.ConstLabels,
		}, []string{"transport"}),
	}
}

// NewMetrics builds an independent Metrics collector registered against
// opts' registry. Use this (rather than Default) when running more than
// one router in a process, e.g. in tests.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return build(config)
}

// Default returns the process-wide singleton Metrics collector, creating
// it against prometheus.DefaultRegisterer on first use.
func Default() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalOnce.Do(func() {
		global = build(defaultMetricsConfig())
	})
	return global
}

// SessionOpened records a session reaching OPEN.
func (m *Metrics) SessionOpened() {
	m.sessionsOpened.Inc()
	m.activeSessions.Inc()
}

// SessionClosed records a session reaching CLOSED. The closed counter
// always increments; the active-session gauge is decremented only when
// wasOpen is true (SessionOpened was called for it), so it never goes
// negative.
func (m *Metrics) SessionClosed(wasOpen bool) {
	m.sessionsClosed.Inc()
	if wasOpen {
		m.activeSessions.Dec()
	}
}

// CallRouted records one CALL routed to a callee.
func (m *Metrics) CallRouted(realm string) {
	m.callsTotal.WithLabelValues(realm).Inc()
}

// CallFailed records one CALL that resolved to an ERROR.
func (m *Metrics) CallFailed(realm, errorURI string) {
	m.callErrorsTotal.WithLabelValues(realm, errorURI).Inc()
}

// EventPublished records one EVENT delivered to a subscriber.
func (m *Metrics) EventPublished() {
	m.eventsPublished.Inc()
}

// HandshakeFailed records one failed transport/WAMP handshake, labeled by
// transport ("rawsocket" or "websocket").
func (m *Metrics) HandshakeFailed(transport string) {
	m.handshakeErrors.WithLabelValues(transport).Inc()
}
