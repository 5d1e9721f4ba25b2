// Package metrics holds the prometheus collectors shared by the signaling
// hub, the session lifecycle and the ledger.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_messages_relayed_total",
			Help: "The total number of signaling payloads relayed between channels",
		},
		[]string{"kind"},
	)

	PeerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_peer_events_total",
			Help: "The total number of peer-joined and peer-left events emitted",
		},
		[]string{"event"},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_rooms_active",
			Help: "The number of rooms with at least one member",
		},
	)

	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_settlements_total",
			Help: "The total number of time credit settlements by result",
		},
		[]string{"result"},
	)

	SessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_transitions_total",
			Help: "The total number of session status transitions by target status",
		},
		[]string{"to"},
	)
)

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
