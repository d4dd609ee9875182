package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing, so library code never branches on
// whether observability is wired.
type Metrics struct {
	ActiveSessions      prometheus.Gauge
	SessionEvents       *prometheus.CounterVec
	CycleLatency        *prometheus.HistogramVec
	ProviderErrors      *prometheus.CounterVec
	FallbackActivations *prometheus.CounterVec
	RepetitionsDetected prometheus.Counter
	QueueTimeouts       prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live conversation sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		CycleLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_latency_ms",
			Help:      "Pipeline cycle latency per stage in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000},
		}, []string{"stage"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider call failures by kind and provider.",
		}, []string{"kind", "provider"}),
		FallbackActivations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_activations_total",
			Help:      "Calls served by a non-primary provider, by kind.",
		}, []string{"kind"}),
		RepetitionsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repetitions_detected_total",
			Help:      "User utterances classified as repetitions.",
		}),
		QueueTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_timeouts_total",
			Help:      "Cycles rejected because the session lock wait expired.",
		}),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
	m.SessionEvents.WithLabelValues("started").Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionEvents.WithLabelValues("ended").Inc()
}

func (m *Metrics) ObserveCycleStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.CycleLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ProviderError(kind, provider string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(kind, provider).Inc()
}

func (m *Metrics) FallbackActivated(kind string) {
	if m == nil {
		return
	}
	m.FallbackActivations.WithLabelValues(kind).Inc()
}

func (m *Metrics) RepetitionDetected() {
	if m == nil {
		return
	}
	m.RepetitionsDetected.Inc()
}

func (m *Metrics) QueueTimeout() {
	if m == nil {
		return
	}
	m.QueueTimeouts.Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
