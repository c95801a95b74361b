package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "groupchat",
		Name:      "ws_connections_active",
		Help:      "Live socket connections registered in the presence registry.",
	})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "groupchat",
		Name:      "online_users",
		Help:      "Users with at least one live connection.",
	})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groupchat",
		Name:      "ws_events_received_total",
		Help:      "Inbound socket events by type and outcome.",
	}, []string{"type", "outcome"})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groupchat",
		Name:      "ws_events_emitted_total",
		Help:      "Outbound socket frames by fan-out scope.",
	}, []string{"scope"})

	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "groupchat",
		Name:      "outbox_pending_jobs",
		Help:      "Unread fan-out jobs waiting for delivery.",
	})

	OutboxFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "groupchat",
		Name:      "outbox_apply_failures_total",
		Help:      "Unread fan-out jobs that failed to apply.",
	})
)

// Fan-out scopes for EventsEmitted.
const (
	ScopeUser      = "user"
	ScopeRoom      = "room"
	ScopeConn      = "conn"
	ScopeBroadcast = "broadcast"
)
