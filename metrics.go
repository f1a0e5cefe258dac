package redis

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional Prometheus instrumentation bundle for a
// Client. A nil *Metrics disables all instrumentation: every method
// below is a nil-receiver no-op, so the dispatch core and connection
// manager can call them unconditionally without a "metrics enabled"
// branch at every call site.
type Metrics struct {
	commandsTotal       *prometheus.CounterVec
	dispatchLatency     prometheus.Histogram
	reconnectsTotal     prometheus.Counter
	activeSubscriptions prometheus.Gauge
}

// NewMetrics constructs a Metrics bundle and registers its collectors
// with reg. Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose the metrics via the default
// /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_client_commands_total",
			Help: "Total commands issued, labeled by outcome.",
		}, []string{"outcome"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "redis_client_dispatch_latency_seconds",
			Help:    "Time from command write to reply dispatch.",
			Buckets: prometheus.DefBuckets,
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "redis_client_reconnects_total",
			Help: "Total completed dual-transport handshakes after the first.",
		}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_client_active_subscriptions",
			Help: "Current number of distinct channel names and timer periods with attached subscriptions.",
		}),
	}
	reg.MustRegister(m.commandsTotal, m.dispatchLatency, m.reconnectsTotal, m.activeSubscriptions)
	return m
}

func (m *Metrics) commandIssued(outcome string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) dispatched(seconds float64) {
	if m == nil {
		return
	}
	m.dispatchLatency.Observe(seconds)
}

func (m *Metrics) reconnected() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) setActiveSubscriptions(n int) {
	if m == nil {
		return
	}
	m.activeSubscriptions.Set(float64(n))
}
