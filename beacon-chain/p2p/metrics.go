package p2p

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	peerConnectEventCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "p2p_peer_connect_event_count",
		Help: "Count of peer connection events",
	})
	peerDisconnectEventCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "p2p_peer_disconnect_event_count",
		Help: "Count of peer disconnection events",
	})
	peerBanEventCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "p2p_peer_ban_event_count",
		Help: "Count of peers banned for dropping below the reputation threshold",
	})
	connectedPeersCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "p2p_connected_peers",
		Help: "Number of currently connected peers",
	})
)
