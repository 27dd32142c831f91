// Package metrics holds the Prometheus instruments for the voice pipeline.
// All methods are safe on a nil *Metrics so components can run unmetered.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Utterance outcomes.
const (
	OutcomeAccepted      = "accepted"
	OutcomeDroppedLocked = "dropped_locked"
	OutcomeFiltered      = "filtered"
	OutcomeNoReply       = "no_reply"
	OutcomeReplied       = "replied"
	OutcomeFailed        = "failed"
)

type Metrics struct {
	Utterances     *prometheus.CounterVec
	KeyRotations   *prometheus.CounterVec
	TTSRequests    *prometheus.CounterVec
	QueueLength    prometheus.Gauge
	ActiveSessions prometheus.Gauge
	StageLatency   *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the instruments on a fresh registry, so tests can build as
// many as they like without colliding on the default one.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		Utterances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_utterances_total",
			Help:      "Speaking events by how far they got through the pipeline.",
		}, []string{"outcome"}),
		KeyRotations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_rotations_total",
			Help:      "Credential rotations caused by provider rate limits.",
		}, []string{"provider"}),
		TTSRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tts_requests_total",
			Help:      "Speech synthesis attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		QueueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_queue_length",
			Help:      "Replies waiting for playback in the active session.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_sessions_active",
			Help:      "Live voice sessions (0 or 1).",
		}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Pipeline stage latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 15000},
		}, []string{"stage"}),
		gatherer: reg,
	}
}

func (m *Metrics) Utterance(outcome string) {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues(outcome).Inc()
}

func (m *Metrics) KeyRotated(provider string) {
	if m == nil {
		return
	}
	m.KeyRotations.WithLabelValues(provider).Inc()
}

func (m *Metrics) TTSRequest(provider, outcome string) {
	if m == nil {
		return
	}
	m.TTSRequests.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.QueueLength.Set(float64(n))
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageLatency.WithLabelValues(stage).Observe(float64(d.Milliseconds()))
}

// Handler serves this registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
