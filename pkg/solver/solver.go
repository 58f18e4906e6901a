// Package solver computes nodal pressures and vessel flows of the vascular
// graph and calibrates the inlet pressure to a target flow rate.
package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/network"
)

// Method selects the linear solver.
type Method string

const (
	Direct   Method = "direct"
	BiCGSTAB Method = "bicgstab"
)

// ErrNoOutletFlow is returned when the outlet flow does not respond to the
// inlet pressure, i.e. no spanning path exists.
var ErrNoOutletFlow = errors.New("outlet flow does not depend on inlet pressure")

// ErrUnknownMethod is returned for an unsupported solver name.
var ErrUnknownMethod = errors.New("unknown solver method")

// Params configures the linear solve.
type Params struct {
	Method        string  `koanf:"method"`
	Tolerance     float64 `koanf:"tolerance"`
	MaxIterations int     `koanf:"max-iterations"`
	MassTolerance float64 `koanf:"mass-tolerance"`

	// MaxBandEntries caps the band storage of the direct factorisation
	// (8 bytes each). Larger systems are solved with BiCGSTAB.
	MaxBandEntries int `koanf:"max-band-entries"`
}

// DefaultParams returns the banded direct solver with BiCGSTAB settings
// ready for a switch or a fallback.
func DefaultParams() Params {
	return Params{
		Method:         string(Direct),
		Tolerance:      1e-6,
		MaxIterations:  1000,
		MassTolerance:  1e-13,
		MaxBandEntries: 20_000_000,
	}
}

// Solver solves the pressure system for a network.
type Solver struct {
	params Params

	// Iterations and Residual describe the last iterative solve.
	Iterations int
	Residual   float64
}

// New validates p and returns a solver.
func New(p Params) (*Solver, error) {
	switch Method(p.Method) {
	case Direct, BiCGSTAB:
	default:
		return nil, fmt.Errorf("%q: %w", p.Method, ErrUnknownMethod)
	}
	if p.Tolerance <= 0 {
		p.Tolerance = 1e-6
	}
	if p.MaxIterations <= 0 {
		p.MaxIterations = 1000
	}
	return &Solver{params: p}, nil
}

// Params returns the solver configuration.
func (s *Solver) Params() Params { return s.params }

// linearSolve returns x with A x = rhs for one assembled system.
type linearSolve func(rhs []float64) ([]float64, error)

// factor prepares sys for solving with the configured method. The direct
// method falls back to BiCGSTAB when the band would exceed MaxBandEntries
// or the system is not positive definite.
func (s *Solver) factor(sys *System) linearSolve {
	iterative := func(rhs []float64) ([]float64, error) { return s.bicgstab(sys, rhs) }
	if Method(s.params.Method) == BiCGSTAB {
		return iterative
	}
	f, err := factorBand(sys, s.params.MaxBandEntries)
	if err != nil {
		logging.Warn("direct solve unavailable, using bicgstab", "rows", sys.N, "reason", err.Error())
		return iterative
	}
	logging.Trace("factorised pressure system", "rows", sys.N, "bandwidth", f.bandwidth)
	return f.solve
}

// SolvePressures assembles the system and writes node pressures by rank.
func (s *Solver) SolvePressures(net *network.Network, bc Boundary) error {
	sys := Build(net, bc)
	if sys.N == 0 {
		return nil
	}
	return s.apply(net, s.factor(sys), sys.RHS)
}

func (s *Solver) apply(net *network.Network, solve linearSolve, rhs []float64) error {
	x, err := solve(rhs)
	if err != nil {
		return fmt.Errorf("failed to solve pressures: %w", err)
	}
	for _, node := range net.Nodes {
		if !node.Closed {
			node.Pressure = x[node.Rank]
		}
	}
	return nil
}

// Solve runs SolvePressures followed by UpdateFlows and returns the outlet flow.
func (s *Solver) Solve(net *network.Network, bc Boundary) (float64, error) {
	if err := s.SolvePressures(net, bc); err != nil {
		return 0, err
	}
	return UpdateFlows(net, bc), nil
}

// acceptable treats an ill-conditioning warning as a usable solution.
func acceptable(err error) bool {
	if err == nil {
		return true
	}
	var cond mat.Condition
	if errors.As(err, &cond) {
		logging.Debug("pressure system is ill-conditioned", "condition", float64(cond))
		return !math.IsInf(float64(cond), 1)
	}
	return false
}

// bicgstab runs Jacobi-preconditioned BiCGSTAB from a zero initial guess.
func (s *Solver) bicgstab(sys *System, b []float64) ([]float64, error) {
	n := sys.N
	x := make([]float64, n)
	bnorm := floats.Norm(b, 2)
	s.Iterations, s.Residual = 0, 0
	if bnorm == 0 {
		return x, nil
	}

	inv := make([]float64, n)
	for i, d := range sys.Diag {
		inv[i] = 1 / d
	}

	r := make([]float64, n)
	copy(r, b)
	rhat := make([]float64, n)
	copy(rhat, r)
	p := make([]float64, n)
	v := make([]float64, n)
	y := make([]float64, n)
	z := make([]float64, n)
	sv := make([]float64, n)
	t := make([]float64, n)

	rho, alpha, omega := 1.0, 1.0, 1.0
	tol := s.params.Tolerance
	for it := 1; it <= s.params.MaxIterations; it++ {
		s.Iterations = it
		rhoNew := floats.Dot(rhat, r)
		if rhoNew == 0 {
			return x, fmt.Errorf("bicgstab breakdown at iteration %d", it)
		}
		if it == 1 {
			copy(p, r)
		} else {
			beta := (rhoNew / rho) * (alpha / omega)
			// p = r + beta*(p - omega*v)
			floats.AddScaled(p, -omega, v)
			floats.Scale(beta, p)
			floats.Add(p, r)
		}
		floats.MulTo(y, inv, p)
		sys.MulVec(v, y)
		alpha = rhoNew / floats.Dot(rhat, v)

		floats.AddScaledTo(sv, r, -alpha, v)
		if floats.Norm(sv, 2)/bnorm < tol {
			floats.AddScaled(x, alpha, y)
			s.Residual = floats.Norm(sv, 2) / bnorm
			return x, nil
		}

		floats.MulTo(z, inv, sv)
		sys.MulVec(t, z)
		tt := floats.Dot(t, t)
		if tt == 0 {
			floats.AddScaled(x, alpha, y)
			return x, nil
		}
		omega = floats.Dot(t, sv) / tt

		floats.AddScaled(x, alpha, y)
		floats.AddScaled(x, omega, z)
		floats.AddScaledTo(r, sv, -omega, t)

		s.Residual = floats.Norm(r, 2) / bnorm
		if s.Residual < tol {
			return x, nil
		}
		rho = rhoNew
	}
	logging.Warn("bicgstab did not converge",
		"iterations", s.params.MaxIterations,
		"residual", s.Residual)
	return x, nil
}

// UpdateFlows derives vessel flows and mean pressures from the node
// pressures and returns the total outlet flow.
func UpdateFlows(net *network.Network, bc Boundary) float64 {
	var outlet float64
	for _, v := range net.Vessels {
		if v.Closed {
			v.Flow = 0
			continue
		}
		switch {
		case v.IsInlet():
			p := net.Nodes[v.Out].Pressure
			v.Flow = (bc.PIn - p) * v.Conductance
			v.AveragePressure = (bc.PIn + p) / 2
		case v.IsOutlet():
			p := net.Nodes[v.In].Pressure
			v.Flow = (p - bc.POut) * v.Conductance
			v.AveragePressure = (p + bc.POut) / 2
			outlet += v.Flow
		default:
			pin, pout := net.Nodes[v.In].Pressure, net.Nodes[v.Out].Pressure
			v.Flow = (pin - pout) * v.Conductance
			v.AveragePressure = (pin + pout) / 2
		}
	}
	return outlet
}

// OutletFlow sums the flow leaving through outlet stubs.
func OutletFlow(net *network.Network) float64 {
	var q float64
	for _, v := range net.Vessels {
		if !v.Closed && v.IsOutlet() {
			q += v.Flow
		}
	}
	return q
}

// InletFlow sums the flow entering through inlet stubs.
func InletFlow(net *network.Network) float64 {
	var q float64
	for _, v := range net.Vessels {
		if !v.Closed && v.IsInlet() {
			q += v.Flow
		}
	}
	return q
}

// MassImbalance returns the largest |signed flow sum| over open nodes and the
// node where it occurs.
func MassImbalance(net *network.Network) (float64, int) {
	worst, at := 0.0, network.None
	for _, node := range net.Nodes {
		if node.Closed {
			continue
		}
		var sum float64
		for _, vid := range node.Vessels {
			v := net.Vessels[vid]
			if v.Closed {
				continue
			}
			if v.In == node.ID {
				sum -= v.Flow
			} else {
				sum += v.Flow
			}
		}
		if a := math.Abs(sum); a > worst {
			worst, at = a, node.ID
		}
	}
	return worst, at
}
