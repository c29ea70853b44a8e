package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// routerLatencyBuckets is spec.md §6's required histogram bucket set.
var routerLatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Metrics is the Prometheus exposition surface required by spec.md §6.
type Metrics struct {
	registry        *prometheus.Registry
	routerLatency   prometheus.Histogram
	toolInvocations *prometheus.CounterVec
	contextShift    prometheus.Counter
	breakerState    *prometheus.GaugeVec
}

// NewMetrics registers the four required collectors against a fresh
// registry (not the global default, so multiple Stores in tests don't
// collide).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		routerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ucp_router_latency_ms",
			Help:    "Router.route selection latency in milliseconds.",
			Buckets: routerLatencyBuckets,
		}),
		toolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ucp_tool_invocations_total",
			Help: "Count of tools/call invocations by tool and outcome.",
		}, []string{"tool_name", "success"}),
		contextShift: factory.NewCounter(prometheus.CounterOpts{
			Name: "ucp_context_shift_detected_total",
			Help: "Count of detected domain shifts between consecutive routing events.",
		}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ucp_breaker_state",
			Help: "Per-server circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"server_name"}),
	}
}

// ObserveRouterLatency records one Route() call's selection time.
func (m *Metrics) ObserveRouterLatency(ms float64) {
	m.routerLatency.Observe(ms)
}

// IncToolInvocation records one tools/call outcome.
func (m *Metrics) IncToolInvocation(toolName string, success bool) {
	m.toolInvocations.WithLabelValues(toolName, strconv.FormatBool(success)).Inc()
}

// IncContextShift records one detected domain shift.
func (m *Metrics) IncContextShift() {
	m.contextShift.Inc()
}

// SetBreakerState updates the gauge for one server's breaker state.
func (m *Metrics) SetBreakerState(serverName string, state ucp.BreakerState) {
	var v float64
	switch state {
	case ucp.BreakerHalfOpen:
		v = 1
	case ucp.BreakerOpen:
		v = 2
	case ucp.BreakerClosed:
		v = 0
	}
	m.breakerState.WithLabelValues(serverName).Set(v)
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
