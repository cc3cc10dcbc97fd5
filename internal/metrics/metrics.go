package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "novel_sessions_active",
		Help: "Number of live play sessions.",
	})

	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "novel_sessions_created_total",
		Help: "Total number of play sessions created.",
	})

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_transitions_total",
			Help: "Total number of narrative operations by kind and status.",
		},
		[]string{"kind", "status"},
	)

	EnvironmentChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambient_environment_changes_total",
			Help: "Total number of soundscape changes by target environment.",
		},
		[]string{"environment"},
	)

	AudioErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ambient_audio_errors_total",
			Help: "Total number of swallowed audio errors by component.",
		},
		[]string{"component"},
	)

	EndingsReachedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novel_endings_reached_total",
			Help: "Total number of endings reached by ending type.",
		},
		[]string{"ending_type"},
	)

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "novel_websocket_connections",
		Help: "Number of open session websocket connections.",
	})
)
