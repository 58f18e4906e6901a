package metrics

import "time"

// RecordStep records the state after one macro step.
func (r *Registry) RecordStep(simTime float64, nodes, vessels, tips int) {
	if r == nil {
		return
	}
	r.MacroSteps.Inc()
	r.SimulationTime.Set(simTime)
	r.Nodes.Set(float64(nodes))
	r.Vessels.Set(float64(vessels))
	r.Tips.Set(float64(tips))
}

// RecordBranches adds branching events for a trigger ("tip" or "shear").
func (r *Registry) RecordBranches(trigger string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.Branches.WithLabelValues(trigger).Add(float64(n))
}

// RecordRemodel records one remodeling call.
func (r *Registry) RecordRemodel(iterations, transportSteps, closures int, poreVolumes, inletPressure float64, d time.Duration) {
	if r == nil {
		return
	}
	r.RemodelIterations.Add(float64(iterations))
	r.TransportSteps.Add(float64(transportSteps))
	r.ShuntClosures.Add(float64(closures))
	r.PoreVolumes.Add(poreVolumes)
	r.InletPressure.Set(inletPressure)
	r.RemodelDuration.Observe(d.Seconds())
}

// RecordTransit records the longest inlet-to-node transit time.
func (r *Registry) RecordTransit(seconds float64) {
	if r == nil {
		return
	}
	r.TransitTime.Set(seconds)
}

// RecordRun records how a run ended.
func (r *Registry) RecordRun(outcome string, aborted bool) {
	if r == nil {
		return
	}
	r.Runs.WithLabelValues(outcome).Inc()
	if aborted {
		r.Aborts.Inc()
	}
}
