// Package metrics exposes Prometheus instrumentation for the gateway:
// provider attempt outcomes, stage latency, and turn totals. It plugs
// into the provider registry as an Observer and into the pipeline as
// its MetricsRecorder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/voicetalk/voicegate/pkg/pipeline"
	"github.com/voicetalk/voicegate/pkg/provider"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	providerOutcomes *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	turnDuration     *prometheus.HistogramVec
	turns            *prometheus.CounterVec
}

// New registers the gateway collectors with reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		providerOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicegate",
			Name:      "provider_outcomes_total",
			Help:      "Provider attempt outcomes by provider and error kind.",
		}, []string{"provider", "outcome"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voicegate",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "result"}),

		turnDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voicegate",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),

		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voicegate",
			Name:      "turns_total",
			Help:      "Turns processed by outcome.",
		}, []string{"outcome"}),
	}
}

// ProviderOutcome implements provider.Observer. An empty kind means the
// attempt succeeded.
func (m *Metrics) ProviderOutcome(providerID string, kind provider.Kind) {
	outcome := "success"
	if kind != "" {
		outcome = string(kind)
	}
	m.providerOutcomes.WithLabelValues(providerID, outcome).Inc()
}

// ObserveStage implements pipeline.MetricsRecorder.
func (m *Metrics) ObserveStage(stage pipeline.Stage, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.stageDuration.WithLabelValues(string(stage), result).Observe(duration.Seconds())
}

// ObserveTurn implements pipeline.MetricsRecorder.
func (m *Metrics) ObserveTurn(duration time.Duration, outcome string) {
	m.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.turns.WithLabelValues(outcome).Inc()
}

// RegisterSessionCount exports a live session gauge backed by fn.
func RegisterSessionCount(reg prometheus.Registerer, fn func() int) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "voicegate",
		Name:      "sessions_live",
		Help:      "Sessions currently held in memory.",
	}, func() float64 { return float64(fn()) })
}

// Verify interface satisfaction at compile time.
var (
	_ provider.Observer        = (*Metrics)(nil)
	_ pipeline.MetricsRecorder = (*Metrics)(nil)
)
