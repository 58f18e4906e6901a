// Package metrics exposes simulation progress as Prometheus metrics. Every
// recorder method is safe to call on a nil *Registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the simulation metrics.
type Registry struct {
	SimulationTime prometheus.Gauge
	MacroSteps     prometheus.Counter
	Nodes          prometheus.Gauge
	Vessels        prometheus.Gauge
	Tips           prometheus.Gauge
	Branches       *prometheus.CounterVec

	RemodelIterations prometheus.Counter
	RemodelDuration   prometheus.Histogram
	PoreVolumes       prometheus.Counter
	TransportSteps    prometheus.Counter
	ShuntClosures     prometheus.Counter
	InletPressure     prometheus.Gauge
	TransitTime       prometheus.Gauge

	Runs   *prometheus.CounterVec
	Aborts prometheus.Counter

	registry *prometheus.Registry
}

// NewRegistry creates a registry with every metric registered.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	f := promauto.With(r.registry)

	r.SimulationTime = f.NewGauge(prometheus.GaugeOpts{
		Name: "angioflow_simulation_time",
		Help: "Simulated time reached by the current run",
	})
	r.MacroSteps = f.NewCounter(prometheus.CounterOpts{
		Name: "angioflow_macro_steps_total",
		Help: "Macro time steps completed",
	})
	r.Nodes = f.NewGauge(prometheus.GaugeOpts{
		Name: "angioflow_nodes",
		Help: "Open nodes in the vascular graph",
	})
	r.Vessels = f.NewGauge(prometheus.GaugeOpts{
		Name: "angioflow_vessels",
		Help: "Open vessels in the vascular graph",
	})
	r.Tips = f.NewGauge(prometheus.GaugeOpts{
		Name: "angioflow_sprout_tips",
		Help: "Active sprout tips",
	})
	r.Branches = f.NewCounterVec(prometheus.CounterOpts{
		Name: "angioflow_branches_total",
		Help: "Branching events by trigger",
	}, []string{"trigger"})

	r.RemodelIterations = f.NewCounter(prometheus.CounterOpts{
		Name: "angioflow_remodel_iterations_total",
		Help: "Transport and adaptation rounds of the remodeling loop",
	})
	r.RemodelDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "angioflow_remodel_duration_seconds",
		Help:    "Wall time of one remodeling call",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
	r.PoreVolumes = f.NewCounter(prometheus.CounterOpts{
		Name: "angioflow_injected_pore_volumes_total",
		Help: "Pore volumes of blood injected by the transport solver",
	})
	r.TransportSteps = f.NewCounter(prometheus.CounterOpts{
		Name: "angioflow_transport_steps_total",
		Help: "Explicit transport steps",
	})
	r.ShuntClosures = f.NewCounter(prometheus.CounterOpts{
		Name: "angioflow_shunt_closures_total",
		Help: "Vessels shunted closed by phase separation",
	})
	r.InletPressure = f.NewGauge(prometheus.GaugeOpts{
		Name: "angioflow_inlet_pressure_pascals",
		Help: "Calibrated inlet pressure of the last flow solve",
	})
	r.TransitTime = f.NewGauge(prometheus.GaugeOpts{
		Name: "angioflow_max_transit_time_seconds",
		Help: "Longest mean time for blood to reach a node from the inlets after the last remodel",
	})

	r.Runs = f.NewCounterVec(prometheus.CounterOpts{
		Name: "angioflow_runs_total",
		Help: "Finished runs by outcome",
	}, []string{"outcome"})
	r.Aborts = f.NewCounter(prometheus.CounterOpts{
		Name: "angioflow_aborts_total",
		Help: "Runs aborted by a numerical fault",
	})
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }
