package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_users",
		Help: "Users with at least one live socket",
	})

	connectedSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_sockets",
		Help: "Live sockets held by the connection registry",
	})

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_rooms",
		Help: "Rooms with at least one subscribed user",
	})

	fanoutDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_fanout_deliveries_total",
		Help: "Payloads written to a socket successfully",
	})

	fanoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_fanout_failures_total",
		Help: "Payload writes that failed and were skipped",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_frames_total",
		Help: "Inbound frames by event name",
	}, []string{"event"})
)
