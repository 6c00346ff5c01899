// Package metrics holds the Prometheus collectors for the avatar.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a set of collectors bound to one registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Utterances          *prometheus.CounterVec
	Frames              *prometheus.CounterVec
	Fingerspelled       *prometheus.CounterVec
	SafetyEvents        *prometheus.CounterVec
	TranslationDuration prometheus.Histogram
	ActiveSessions      prometheus.Gauge
	Playback            *prometheus.CounterVec
}

// New registers the collectors on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Utterances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signavatar_utterances_total",
				Help: "Utterances processed, by outcome",
			},
			[]string{"outcome"},
		),
		Frames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signavatar_frames_total",
				Help: "Sign frames produced",
			},
			[]string{"lang"},
		),
		Fingerspelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signavatar_fingerspelled_total",
				Help: "Words with no lexicon entry that were fingerspelled",
			},
			[]string{"lang"},
		),
		SafetyEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signavatar_safety_events_total",
				Help: "Safety events raised",
			},
			[]string{"category", "severity"},
		),
		TranslationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signavatar_translation_duration_seconds",
				Help:    "Time to translate one utterance into frames",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "signavatar_active_sessions",
				Help: "Number of sessions currently listening",
			},
		),
		Playback: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signavatar_playback_transitions_total",
				Help: "Playback status transitions",
			},
			[]string{"status"},
		),
	}
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Translation records one translated utterance.
func (m *Metrics) Translation(lang string, frames, fingerspelled int, took time.Duration) {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues("translated").Inc()
	m.Frames.WithLabelValues(lang).Add(float64(frames))
	if fingerspelled > 0 {
		m.Fingerspelled.WithLabelValues(lang).Add(float64(fingerspelled))
	}
	m.TranslationDuration.Observe(took.Seconds())
}

// Blocked records an utterance withheld by the safety gate.
func (m *Metrics) Blocked() {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues("blocked").Inc()
}

// SafetyEvent records one gate event.
func (m *Metrics) SafetyEvent(category, severity string) {
	if m == nil {
		return
	}
	m.SafetyEvents.WithLabelValues(category, severity).Inc()
}

// PlaybackTransition records a scheduler status change.
func (m *Metrics) PlaybackTransition(status string) {
	if m == nil {
		return
	}
	m.Playback.WithLabelValues(status).Inc()
}

// SessionStarted and SessionEnded track listening sessions.
func (m *Metrics) SessionStarted() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionEnded() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}
