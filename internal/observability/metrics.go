package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Turns             *prometheus.CounterVec
	FactsLearned      *prometheus.CounterVec
	FollowupsInjected prometheus.Counter
	UpstreamErrors    *prometheus.CounterVec
	StorageRecoveries *prometheus.CounterVec
	TurnLatency       *prometheus.HistogramVec
}

// NewMetrics registers the instruments with the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the instruments with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by channel and outcome.",
		}, []string{"channel", "outcome"}),
		FactsLearned: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facts_learned_total",
			Help:      "Facts stored by kind (added or corrected).",
		}, []string{"kind"}),
		FollowupsInjected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mood_followups_total",
			Help:      "Mood follow-up hints delivered in a successful turn.",
		}),
		UpstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Collaborator failures by stage (llm, emotion, transcription, synthesis).",
		}, []string{"stage"}),
		StorageRecoveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_recoveries_total",
			Help:      "Unreadable persisted collections treated as empty.",
		}, []string{"collection"}),
		TurnLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_ms",
			Help:      "End-to-end turn latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}, []string{"channel"}),
	}
}

func (m *Metrics) ObserveTurn(channel, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(channel, outcome).Inc()
	m.TurnLatency.WithLabelValues(channel).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncFact(kind string) {
	if m == nil {
		return
	}
	m.FactsLearned.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncFollowup() {
	if m == nil {
		return
	}
	m.FollowupsInjected.Inc()
}

func (m *Metrics) IncUpstreamError(stage string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(stage).Inc()
}

// StorageRecovered matches the recovery hook signature of the memory stores.
func (m *Metrics) StorageRecovered(collection string) {
	if m == nil {
		return
	}
	m.StorageRecoveries.WithLabelValues(collection).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
