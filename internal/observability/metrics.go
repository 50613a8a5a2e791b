// File: internal/observability/metrics.go
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "browsergate"

// Metrics holds every collector the service exports. It is created against an
// explicit registry so tests can use a fresh one per case.
type Metrics struct {
	Registry *prometheus.Registry

	// calls counts tool calls. Labels: tool, outcome (success, rejected, error kind).
	calls *prometheus.CounterVec
	// callDuration measures end-to-end call latency. Labels: tool.
	callDuration *prometheus.HistogramVec
	// attempts counts driver attempts, including retries. Labels: category.
	attempts *prometheus.CounterVec
	// contentStrategies counts budget decisions. Labels: strategy.
	contentStrategies *prometheus.CounterVec
	// breakerState is 0 closed, 1 open, 2 half-open. Labels: category.
	breakerState *prometheus.GaugeVec
	// breakerTransitions counts state changes. Labels: category, to.
	breakerTransitions *prometheus.CounterVec
	// sessions is the number of live sessions.
	sessions prometheus.Gauge
}

// NewMetrics registers all collectors on reg. A nil reg gets a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool calls by tool and outcome",
		}, []string{"tool", "outcome"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "tools",
			Name:      "call_duration_seconds",
			Help:      "End-to-end tool call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "resilience",
			Name:      "attempts_total",
			Help:      "Driver attempts by category, retries included",
		}, []string{"category"}),
		contentStrategies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "content",
			Name:      "strategy_total",
			Help:      "Content budget decisions by strategy",
		}, []string{"strategy"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "resilience",
			Name:      "circuit_state",
			Help:      "Circuit state by category (0 closed, 1 open, 2 half-open)",
		}, []string{"category"}),
		breakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "resilience",
			Name:      "circuit_transitions_total",
			Help:      "Circuit state transitions by category and target state",
		}, []string{"category", "to"}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "engine",
			Name:      "sessions",
			Help:      "Live browser sessions",
		}),
	}
}

// ObserveCall records one finished tool call.
func (m *Metrics) ObserveCall(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(tool, outcome).Inc()
	m.callDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// AddAttempts records driver attempts for a category.
func (m *Metrics) AddAttempts(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.attempts.WithLabelValues(category).Add(float64(n))
}

// ObserveStrategy records a content budget decision.
func (m *Metrics) ObserveStrategy(strategy string) {
	if m == nil {
		return
	}
	m.contentStrategies.WithLabelValues(strategy).Inc()
}

// SetBreakerState records a circuit transition. state is the numeric state value.
func (m *Metrics) SetBreakerState(category, to string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(category).Set(float64(state))
	m.breakerTransitions.WithLabelValues(category, to).Inc()
}

// SetSessions records the number of live sessions.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
