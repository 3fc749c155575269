package rooms

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_rooms_live",
		Help: "Number of rooms currently held in the registry.",
	})

	peersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_peers_connected",
		Help: "Number of peers currently connected across all rooms.",
	})

	busEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_bus_events_dropped_total",
		Help: "Events dropped from slow subscribers' bus buffers.",
	})

	roomsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_rooms_evicted_total",
		Help: "Rooms removed by the idle lifecycle sweeper.",
	})
)
