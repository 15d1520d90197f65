// Package telemetry holds the Prometheus metrics for the notification
// daemon. One Metrics value is created at startup and shared by the
// dispatcher and the diagnostics API.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics registers and exposes the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	EventsReceived  *prometheus.CounterVec
	SoundsPlayed    *prometheus.CounterVec
	SoundsSkipped   *prometheus.CounterVec
	PlaybackErrors  *prometheus.CounterVec
	SettingsApplied prometheus.Counter
	Reconnects      prometheus.Counter
}

// NewMetrics creates a Metrics with its own registry, including the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beypro_notify_events_received_total",
			Help: "Business events received from the event stream, by event name.",
		}, []string{"event"}),
		SoundsPlayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beypro_notify_sounds_played_total",
			Help: "Sounds started, by event name and asset identifier.",
		}, []string{"event", "asset"}),
		SoundsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beypro_notify_sounds_skipped_total",
			Help: "Events that produced no playback, by reason.",
		}, []string{"reason"}),
		PlaybackErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beypro_notify_playback_errors_total",
			Help: "Playback failures, by stage.",
		}, []string{"stage"}),
		SettingsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beypro_notify_settings_applied_total",
			Help: "Notification sound settings values applied.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "beypro_notify_stream_connects_total",
			Help: "Successful event stream (re)connects.",
		}),
	}

	registry.MustRegister(
		m.EventsReceived,
		m.SoundsPlayed,
		m.SoundsSkipped,
		m.PlaybackErrors,
		m.SettingsApplied,
		m.Reconnects,
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
