// Package hemo drives the flow solve of the vascular graph: viscosity and
// conductance refresh, percolation pruning, flow calibration and red-cell
// phase separation at diverging bifurcations.
package hemo

import (
	"errors"
	"math"

	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/percolation"
	"github.com/ritzau/angioflow/pkg/simctx"
	"github.com/ritzau/angioflow/pkg/solver"
)

// Params configures the flow solve.
type Params struct {
	FlowRate          float64 `koanf:"flow-rate"`          // target flow in m^3/s
	PlasmaViscosity   float64 `koanf:"plasma-viscosity"`   // Pa.s
	PhaseSeparation   bool    `koanf:"phase-separation"`   // apply the bifurcation law
	MaxClosurePasses  int     `koanf:"max-closure-passes"` // cap on the closure loop
	PressureTolerance float64 `koanf:"pressure-tolerance"` // Pa, inlet pressure drift that keeps remodeling going
}

// DefaultParams returns physiological defaults.
func DefaultParams() Params {
	return Params{
		FlowRate:          1e-12,
		PlasmaViscosity:   1.2e-3,
		PhaseSeparation:   true,
		MaxClosurePasses:  50,
		PressureTolerance: 0.1,
	}
}

// Result summarises one flow solve.
type Result struct {
	Boundary solver.Boundary
	// PressureMoved is set when the calibrated inlet pressure drifted by more
	// than PressureTolerance since the previous solve.
	PressureMoved bool
	Passes        int
	Pruned        int
	Closed        int
}

// Flow keeps the state carried between successive solves of one run.
type Flow struct {
	params Params
	solver *solver.Solver
	lastIn float64
}

// New returns a flow driver using s for the linear solves.
func New(p Params, s *solver.Solver) *Flow {
	if p.MaxClosurePasses <= 0 {
		p.MaxClosurePasses = 1
	}
	return &Flow{params: p, solver: s}
}

// Params returns the configuration.
func (f *Flow) Params() Params { return f.params }

// Solve runs SolveFlow or SolveWithPhaseSeparation depending on the configuration.
func (f *Flow) Solve(sc *simctx.Context, net *network.Network) (Result, error) {
	if f.params.PhaseSeparation {
		return f.SolveWithPhaseSeparation(sc, net)
	}
	return f.SolveFlow(sc, net)
}

// refresh recomputes the radius-dependent properties and restores every
// open vessel to the conducting set.
func (f *Flow) refresh(net *network.Network) {
	net.AssignViscosities(f.params.PlasmaViscosity)
	net.AssignVolumes()
	net.ResetExistence()
	net.AssignConductances()
}

// SolveFlow prunes non-spanning vessels and calibrates to the target flow.
func (f *Flow) SolveFlow(sc *simctx.Context, net *network.Network) (Result, error) {
	f.refresh(net)
	res := Result{Passes: 1}
	res.Pruned = Prune(net)
	cal, err := f.solver.Calibrate(net, f.params.FlowRate)
	if err != nil {
		return res, err
	}
	res.Boundary = cal.Boundary
	solver.CheckMassConservation(sc, net, f.solver.Params().MassTolerance)
	UpdateNodeInflows(net)
	res.PressureMoved = f.track(cal.Boundary.PIn)
	return res, nil
}

// SolveWithPhaseSeparation repeats prune, calibrate and shunt closure until
// no vessel newly closes, then normalises the red-cell fractions.
func (f *Flow) SolveWithPhaseSeparation(sc *simctx.Context, net *network.Network) (Result, error) {
	f.refresh(net)
	var res Result
	for {
		res.Passes++
		res.Pruned += Prune(net)
		cal, err := f.solver.Calibrate(net, f.params.FlowRate)
		if err != nil {
			return res, err
		}
		res.Boundary = cal.Boundary
		if !solver.CheckMassConservation(sc, net, f.solver.Params().MassTolerance) {
			break
		}
		UpdateNodeInflows(net)

		closed := ApplyPhaseSeparation(net)
		res.Closed += closed
		if closed == 0 {
			break
		}
		if res.Passes >= f.params.MaxClosurePasses {
			logging.Warn("phase separation did not settle", "passes", res.Passes)
			break
		}
		if sc.Stopped() {
			break
		}
	}
	NormalizeFQE(net)
	res.PressureMoved = f.track(res.Boundary.PIn)
	return res, nil
}

func (f *Flow) track(pIn float64) bool {
	moved := math.Abs(pIn-f.lastIn) > f.params.PressureTolerance
	f.lastIn = pIn
	return moved
}

// Prune removes every conducting vessel outside a spanning cluster and
// returns how many were removed.
func Prune(net *network.Network) int {
	res := percolation.Label(net.Existing())
	pruned := 0
	for i, v := range net.Vessels {
		if v.Conducting() && !res.Spanning(i) {
			v.Prune()
			pruned++
		}
	}
	return pruned
}

// UpdateNodeInflows records, per open node, the vessels whose flow enters it.
func UpdateNodeInflows(net *network.Network) {
	for _, node := range net.Nodes {
		if node.Closed {
			continue
		}
		node.FeedingVessels = 0
		node.Inflow = 0
		node.MassInflow = 0
		for _, vid := range node.Vessels {
			v := net.Vessels[vid]
			if v.Closed || !v.Enters(node.ID) {
				continue
			}
			q := math.Abs(v.Flow)
			node.FeedingVessels++
			node.Inflow += q
			node.MassInflow += v.HD * q
		}
	}
}

// IsNoFlow reports whether err means the network has no inlet-outlet path.
func IsNoFlow(err error) bool {
	return errors.Is(err, solver.ErrNoOutletFlow)
}
