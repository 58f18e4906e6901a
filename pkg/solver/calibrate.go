package solver

import (
	"fmt"

	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/simctx"
)

// noFlowSlope bounds the outlet response produced by pinned conductances only.
const noFlowSlope = 1e-100

// Calibration is the linear fit Q = A*pIn + B used to hit a target flow.
type Calibration struct {
	Boundary   Boundary
	A, B       float64
	OutletFlow float64
}

// Calibrate probes the network at pIn=1 and pIn=2 (outlet at 0), fits the
// outlet flow linearly and solves once more at the pressure giving target.
// The conductances do not change between the three solves, so the system
// is assembled and factorised once. Pressures and flows are left at the
// calibrated state.
func (s *Solver) Calibrate(net *network.Network, target float64) (Calibration, error) {
	sys := Build(net, Boundary{})
	if sys.N == 0 {
		return Calibration{}, fmt.Errorf("calibrate to %g: %w", target, ErrNoOutletFlow)
	}
	solve := s.factor(sys)
	at := func(bc Boundary) (float64, error) {
		if err := s.apply(net, solve, sys.rhs(bc)); err != nil {
			return 0, err
		}
		return UpdateFlows(net, bc), nil
	}

	q1, err := at(Boundary{PIn: 1})
	if err != nil {
		return Calibration{}, err
	}
	q2, err := at(Boundary{PIn: 2})
	if err != nil {
		return Calibration{}, err
	}

	c := Calibration{A: q2 - q1, B: 2*q1 - q2}
	if !(c.A > noFlowSlope) {
		return c, fmt.Errorf("calibrate to %g: %w", target, ErrNoOutletFlow)
	}
	c.Boundary = Boundary{PIn: (target - c.B) / c.A}
	q, err := at(c.Boundary)
	if err != nil {
		return c, err
	}
	c.OutletFlow = q
	logging.Trace("calibrated inlet pressure", "pIn", c.Boundary.PIn, "outletFlow", q)
	return c, nil
}

// CheckMassConservation aborts the run when any open node leaks more than
// tol. It reports whether the check passed.
func CheckMassConservation(sc *simctx.Context, net *network.Network, tol float64) bool {
	worst, at := MassImbalance(net)
	if worst <= tol {
		return true
	}
	logging.Error("mass not conserved", "node", at, "imbalance", worst)
	sc.Abort(fmt.Sprintf("mass not conserved at node %d: %g", at, worst))
	return false
}
