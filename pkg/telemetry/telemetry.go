// Package telemetry exposes prometheus counters for the event plane and the
// execution dispatcher. The /metrics endpoint serves the default registry.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsRouted counts inbound realtime events by event name.
	EventsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codecollab_events_routed_total",
		Help: "Inbound realtime events dispatched to handlers, by event name.",
	}, []string{"event"})

	// EventsRejected counts events rejected before reaching the state
	// engine, by error kind.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codecollab_events_rejected_total",
		Help: "Realtime events rejected by validation or authorization, by error kind.",
	}, []string{"kind"})

	// Broadcasts counts outbound fan-out messages.
	Broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codecollab_broadcasts_total",
		Help: "Messages fanned out to session peers.",
	})

	// ConnectionsOpen tracks live realtime connections.
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codecollab_connections_open",
		Help: "Currently open realtime connections.",
	})

	// ConnectionsRefused counts handshakes refused by the IP rate limiter.
	ConnectionsRefused = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codecollab_connections_refused_total",
		Help: "Handshakes refused by the per-IP rate limiter.",
	})

	// SessionsLive tracks the number of live sessions.
	SessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codecollab_sessions_live",
		Help: "Currently live sessions.",
	})

	// Executions counts sandbox executions by outcome.
	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codecollab_executions_total",
		Help: "Sandbox execution requests, by outcome.",
	}, []string{"outcome"})
)

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
