// Package metrics holds the prometheus collectors of the board.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector. Each Board registers its own set so tests
// can run side by side.
type Metrics struct {
	Registry *prometheus.Registry

	BedChanges      *prometheus.CounterVec
	RemoteWrites    *prometheus.CounterVec
	RemoteEvents    *prometheus.CounterVec
	Alarms          prometheus.Counter
	VisitCascades   *prometheus.CounterVec
	DirtyBeds       prometheus.Gauge
	ActiveBeds      prometheus.Gauge
	OvertimeBeds    prometheus.Gauge
	CacheSaveErrors prometheus.Counter
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BedChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bedboard",
			Name:      "bed_changes_total",
			Help:      "Applied bed mutations by operation and source.",
		}, []string{"op", "source"}),
		RemoteWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bedboard",
			Name:      "remote_writes_total",
			Help:      "Outbound bed writes by result.",
		}, []string{"result"}),
		RemoteEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bedboard",
			Name:      "remote_events_total",
			Help:      "Inbound bed events by merge decision.",
		}, []string{"decision"}),
		Alarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bedboard",
			Name:      "alarms_total",
			Help:      "Step timer alarms fired.",
		}),
		VisitCascades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bedboard",
			Name:      "visit_cascades_total",
			Help:      "Bed changes cascaded into visit rows by result.",
		}, []string{"result"}),
		DirtyBeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bedboard",
			Name:      "dirty_beds",
			Help:      "Beds whose last outbound write has not succeeded.",
		}),
		ActiveBeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bedboard",
			Name:      "active_beds",
			Help:      "Beds currently running a treatment.",
		}),
		OvertimeBeds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bedboard",
			Name:      "overtime_beds",
			Help:      "Active beds whose timed step has run past zero.",
		}),
		CacheSaveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bedboard",
			Name:      "cache_save_errors_total",
			Help:      "Failed local cache writes.",
		}),
	}
	reg.MustRegister(
		m.BedChanges,
		m.RemoteWrites,
		m.RemoteEvents,
		m.Alarms,
		m.VisitCascades,
		m.DirtyBeds,
		m.ActiveBeds,
		m.OvertimeBeds,
		m.CacheSaveErrors,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
