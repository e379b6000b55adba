// Package metrics exposes Prometheus collectors for the relay
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tecu23/chess-relay/pkg/events"
)

// Metrics groups the relay collectors so tests can use a private registry.
type Metrics struct {
	ConnectedClients prometheus.Gauge
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionResets    prometheus.Counter
	MovesProcessed   prometheus.Counter
	MovesRejected    prometheus.Counter
	ChatsRelayed     prometheus.Counter
	EngineMoves      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chess_relay_connected_clients",
			Help: "Current number of connected websocket clients",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chess_relay_active_sessions",
			Help: "Current number of game sessions",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_relay_sessions_created_total",
			Help: "Total number of game sessions created",
		}),
		SessionResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_relay_session_resets_total",
			Help: "Total number of sessions reset when an opponent joined",
		}),
		MovesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_relay_moves_processed_total",
			Help: "Total number of moves applied and broadcast",
		}),
		MovesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_relay_moves_rejected_total",
			Help: "Total number of moves rejected by the rules engine",
		}),
		ChatsRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_relay_chats_relayed_total",
			Help: "Total number of chat messages relayed",
		}),
		EngineMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chess_relay_engine_moves_total",
			Help: "Total number of moves suggested by the engine",
		}),
	}

	reg.MustRegister(
		m.ConnectedClients,
		m.ActiveSessions,
		m.SessionsCreated,
		m.SessionResets,
		m.MovesProcessed,
		m.MovesRejected,
		m.ChatsRelayed,
		m.EngineMoves,
	)

	return m
}

// Observe subscribes the collectors to relay lifecycle events.
func (m *Metrics) Observe(p *events.Publisher) {
	p.Subscribe(events.EventConnectionOpened, func(events.Event) { m.ConnectedClients.Inc() })
	p.Subscribe(events.EventConnectionClosed, func(events.Event) { m.ConnectedClients.Dec() })
	p.Subscribe(events.EventSessionCreated, func(events.Event) {
		m.SessionsCreated.Inc()
		m.ActiveSessions.Inc()
	})
	p.Subscribe(events.EventSessionRemoved, func(events.Event) { m.ActiveSessions.Dec() })
	p.Subscribe(events.EventSessionReset, func(events.Event) { m.SessionResets.Inc() })
	p.Subscribe(events.EventMoveProcessed, func(events.Event) { m.MovesProcessed.Inc() })
	p.Subscribe(events.EventMoveRejected, func(events.Event) { m.MovesRejected.Inc() })
	p.Subscribe(events.EventChatRelayed, func(events.Event) { m.ChatsRelayed.Inc() })
	p.Subscribe(events.EventEngineMoved, func(events.Event) { m.EngineMoves.Inc() })
}
