// Package metrics defines the relay's Prometheus collectors.
//
// Collectors live on an injected registry rather than the package-global
// default so tests can run multiple servers in one process without
// duplicate-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	connections prometheus.Gauge
	rooms       prometheus.Gauge

	connects     prometheus.Counter
	disconnects  prometheus.Counter
	roomsCreated prometheus.Counter

	routed  *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

// New registers the relay collectors plus the standard Go runtime and process
// collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_ws_connections",
			Help: "Current number of active websocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_rooms",
			Help: "Current number of rooms.",
		}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_ws_connects_total",
			Help: "Total accepted websocket connections.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_ws_disconnects_total",
			Help: "Total closed websocket connections.",
		}),
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_rooms_created_total",
			Help: "Total rooms created.",
		}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_routed_total",
			Help: "Total signaling messages routed to recipients.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_dropped_total",
			Help: "Total signaling messages dropped instead of delivered.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.rooms,
		m.connects,
		m.disconnects,
		m.roomsCreated,
		m.routed,
		m.dropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// All mutators tolerate a nil receiver so components can run without metrics
// wired (as in most unit tests).

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.connects.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
	m.disconnects.Inc()
}

func (m *Metrics) RoomCreated() {
	if m == nil {
		return
	}
	m.rooms.Inc()
	m.roomsCreated.Inc()
}

func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.rooms.Dec()
}

func (m *Metrics) MessageRouted(msgType string) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(msgType).Inc()
}

func (m *Metrics) MessageDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
