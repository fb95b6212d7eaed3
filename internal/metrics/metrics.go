// Package metrics exposes Prometheus instrumentation for chat turns and the
// live action feed. Every method is safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "legalchat"

// Turn outcomes used as the "outcome" label.
const (
	OutcomeSuccess          = "success"
	OutcomeBudgetExceeded   = "budget_exceeded"
	OutcomeAgentUnavailable = "agent_unavailable"
	OutcomeAgentFailed      = "agent_failed"
	OutcomeError            = "error"
)

// Metrics holds the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal        *prometheus.CounterVec
	TurnDuration      prometheus.Histogram
	ContentWords      prometheus.Histogram
	AgentActions      prometheus.Histogram
	StreamSubscribers prometheus.Gauge
}

// New creates the collectors on a dedicated registry so that tests can build
// as many instances as they need.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by outcome",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a chat turn",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ContentWords: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "content_words",
			Help:      "Words counted against the content budget per turn",
			Buckets:   []float64{0, 25, 50, 100, 200, 300, 400, 500},
		}),
		AgentActions: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "agent_actions",
			Help:      "Agent actions recorded per successful turn",
			Buckets:   prometheus.LinearBuckets(0, 2, 10),
		}),
		StreamSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Connected action feed subscribers",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records the outcome and duration of a finished turn.
func (m *Metrics) ObserveTurn(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(elapsed.Seconds())
}

// ObserveWords records the budgeted word total of a turn.
func (m *Metrics) ObserveWords(total int) {
	if m == nil {
		return
	}
	m.ContentWords.Observe(float64(total))
}

// ObserveActions records how many actions a successful turn produced.
func (m *Metrics) ObserveActions(n int) {
	if m == nil {
		return
	}
	m.AgentActions.Observe(float64(n))
}

// SetSubscribers updates the action feed subscriber gauge.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.StreamSubscribers.Set(float64(n))
}
