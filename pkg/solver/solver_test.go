package solver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/simctx"
)

func emptyNet(t *testing.T, nx, ny int) *network.Network {
	t.Helper()
	p := network.DefaultParams()
	p.Nx, p.Ny, p.Nz = nx, ny, 1
	net, err := network.New(p)
	require.NoError(t, err)
	return net
}

func mustNode(t *testing.T, net *network.Network, i, j int) *network.Node {
	t.Helper()
	n, err := net.AddNodeAt(i, j, 0)
	require.NoError(t, err)
	return n
}

func mustVessel(t *testing.T, net *network.Network, a, b *network.Node, c float64) *network.Vessel {
	t.Helper()
	v, err := net.AddVesselWithRadius(a.ID, b.ID, 5e-6)
	require.NoError(t, err)
	v.Conductance = c
	return v
}

// seriesNet is inlet(2C) -> node -> outlet(2C), equivalent to one vessel of C.
func seriesNet(t *testing.T, c float64) *network.Network {
	net := emptyNet(t, 2, 2)
	a := mustNode(t, net, 0, 0)
	in, err := net.AddBoundaryVessel(a.ID, true, 5e-6, 10e-6)
	require.NoError(t, err)
	out, err := net.AddBoundaryVessel(a.ID, false, 5e-6, 10e-6)
	require.NoError(t, err)
	in.Conductance = 2 * c
	out.Conductance = 2 * c
	return net
}

// diamondNet joins inlet node A to outlet node D through B and C.
func diamondNet(t *testing.T, c float64) (*network.Network, [4]*network.Vessel) {
	net := emptyNet(t, 3, 3)
	a := mustNode(t, net, 0, 1)
	b := mustNode(t, net, 1, 0)
	cn := mustNode(t, net, 1, 2)
	d := mustNode(t, net, 2, 1)
	in, _ := net.AddBoundaryVessel(a.ID, true, 5e-6, 10e-6)
	out, _ := net.AddBoundaryVessel(d.ID, false, 5e-6, 10e-6)
	in.Conductance = c
	out.Conductance = c
	vs := [4]*network.Vessel{
		mustVessel(t, net, a, b, c),
		mustVessel(t, net, a, cn, c),
		mustVessel(t, net, b, d, c),
		mustVessel(t, net, cn, d, c),
	}
	return net, vs
}

// gridNet is a fully connected nx*ny lattice with physical conductances.
func gridNet(t *testing.T, nx, ny int) *network.Network {
	net := emptyNet(t, nx, ny)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			mustNode(t, net, i, j)
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			here := net.NodeAt(i, j, 0)
			if i+1 < nx {
				_, err := net.AddVesselWithRadius(here.ID, net.NodeAt(i+1, j, 0).ID, 3e-6+float64(i+j)*1e-7)
				require.NoError(t, err)
			}
			if j+1 < ny {
				_, err := net.AddVesselWithRadius(here.ID, net.NodeAt(i, j+1, 0).ID, 4e-6)
				require.NoError(t, err)
			}
		}
	}
	_, _ = net.AddBoundaryVessel(net.NodeAt(0, 0, 0).ID, true, 6e-6, 10e-6)
	_, _ = net.AddBoundaryVessel(net.NodeAt(nx-1, ny-1, 0).ID, false, 6e-6, 10e-6)
	net.AssignInitialViscosities()
	net.AssignVolumes()
	net.AssignConductances()
	return net
}

func methods() []Method { return []Method{Direct, BiCGSTAB} }

func newSolver(t *testing.T, m Method) *Solver {
	t.Helper()
	p := DefaultParams()
	p.Method = string(m)
	p.Tolerance = 1e-12
	s, err := New(p)
	require.NoError(t, err)
	return s
}

func TestSeriesVesselCarriesTenC(t *testing.T) {
	const c = 3e-3
	for _, m := range methods() {
		t.Run(string(m), func(t *testing.T) {
			net := seriesNet(t, c)
			q, err := newSolver(t, m).Solve(net, Boundary{PIn: 10, POut: 0})
			require.NoError(t, err)

			assert.InDelta(t, 10*c, q, 1e-12)
			assert.InDelta(t, 5.0, net.Nodes[0].Pressure, 1e-9)
			assert.InDelta(t, 10*c, InletFlow(net), 1e-12)
		})
	}
}

func TestDiamondSplitsEqually(t *testing.T) {
	for _, m := range methods() {
		t.Run(string(m), func(t *testing.T) {
			net, vs := diamondNet(t, 1.0)
			q, err := newSolver(t, m).Solve(net, Boundary{PIn: 4})
			require.NoError(t, err)

			// inlet C, two parallel paths of 2 vessels (C/2 each => C total), outlet C.
			assert.InDelta(t, 4.0/3.0, q, 1e-9)
			assert.InDelta(t, vs[0].Flow, vs[1].Flow, 1e-12)
			assert.InDelta(t, vs[2].Flow, vs[3].Flow, 1e-12)
			assert.InDelta(t, q/2, vs[0].Flow, 1e-9)
		})
	}
}

func TestMassConservationOnGrid(t *testing.T) {
	for _, m := range methods() {
		t.Run(string(m), func(t *testing.T) {
			net := gridNet(t, 5, 4)
			_, err := newSolver(t, m).Solve(net, Boundary{PIn: 2000, POut: 0})
			require.NoError(t, err)

			worst, _ := MassImbalance(net)
			if worst > 1e-13 {
				t.Errorf("Expected imbalance below 1e-13, got %g", worst)
			}
			sc := simctx.Background(1)
			if !CheckMassConservation(sc, net, 1e-13) {
				t.Error("Expected mass conservation check to pass")
			}
			assert.InDelta(t, InletFlow(net), OutletFlow(net), 1e-9*OutletFlow(net))
		})
	}
}

func TestMassViolationAborts(t *testing.T) {
	net := seriesNet(t, 1)
	net.Vessels[0].Flow = 1
	net.Vessels[1].Flow = 0.5

	sc := simctx.Background(1)
	if CheckMassConservation(sc, net, 1e-13) {
		t.Fatal("Expected mass conservation check to fail")
	}
	if !sc.Aborted() {
		t.Error("Expected run to be aborted")
	}
}

func TestTwoProbeLinearity(t *testing.T) {
	for _, m := range methods() {
		t.Run(string(m), func(t *testing.T) {
			net := gridNet(t, 4, 4)
			s := newSolver(t, m)

			q1, _ := s.Solve(net, Boundary{PIn: 1})
			target := 7.5 * q1
			cal, err := s.Calibrate(net, target)
			require.NoError(t, err)
			assert.InDelta(t, target, cal.OutletFlow, 1e-9*target)
			assert.InDelta(t, 7.5, cal.Boundary.PIn, 1e-6)

			direct, _ := s.Solve(net, Boundary{PIn: 3.25})
			assert.InDelta(t, cal.A*3.25+cal.B, direct, 1e-9*direct)
		})
	}
}

func TestCalibrateWithoutPathFails(t *testing.T) {
	net := emptyNet(t, 3, 1)
	a := mustNode(t, net, 0, 0)
	b := mustNode(t, net, 2, 0)
	in, _ := net.AddBoundaryVessel(a.ID, true, 5e-6, 10e-6)
	out, _ := net.AddBoundaryVessel(b.ID, false, 5e-6, 10e-6)
	in.Conductance = 1
	out.Conductance = 1

	s := newSolver(t, Direct)
	_, err := s.Calibrate(net, 1)
	if !errors.Is(err, ErrNoOutletFlow) {
		t.Errorf("Expected ErrNoOutletFlow, got %v", err)
	}
}

func TestIslandGetsIdentityRow(t *testing.T) {
	net, _ := diamondNet(t, 1)
	island := mustNode(t, net, 0, 0)

	sys := Build(net, Boundary{PIn: 1})
	if sys.N != 5 {
		t.Fatalf("Expected 5 rows, got %d", sys.N)
	}
	if got := sys.At(island.Rank, island.Rank); got != -1 {
		t.Errorf("Expected identity row for island, got diagonal %g", got)
	}
	if sys.RHS[island.Rank] != 0 {
		t.Errorf("Expected zero rhs for island, got %g", sys.RHS[island.Rank])
	}

	_, err := newSolver(t, Direct).Solve(net, Boundary{PIn: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, island.Pressure)
}

func TestUnknownMethodRejected(t *testing.T) {
	_, err := New(Params{Method: "gauss-seidel"})
	if !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("Expected ErrUnknownMethod, got %v", err)
	}
}

func TestOrderingNarrowsTheBand(t *testing.T) {
	net := gridNet(t, 30, 4)
	sys := Build(net, Boundary{PIn: 1})

	if got := sys.Bandwidth(nil); got != 30 {
		t.Errorf("Expected natural bandwidth 30, got %d", got)
	}
	perm := reverseCuthillMcKee(sys)
	pos := make([]int, sys.N)
	seen := make(map[int]bool)
	for k, old := range perm {
		pos[old] = k
		seen[old] = true
	}
	if len(seen) != sys.N {
		t.Fatalf("Expected a permutation of %d rows, got %d distinct", sys.N, len(seen))
	}
	if got := sys.Bandwidth(pos); got > 8 {
		t.Errorf("Expected reordered bandwidth at most 8, got %d", got)
	}
}

func TestDirectMatchesIterativeOnLargerGrid(t *testing.T) {
	direct := gridNet(t, 20, 20)
	iterative := gridNet(t, 20, 20)
	bc := Boundary{PIn: 2000}

	qd, err := newSolver(t, Direct).Solve(direct, bc)
	require.NoError(t, err)
	qi, err := newSolver(t, BiCGSTAB).Solve(iterative, bc)
	require.NoError(t, err)

	assert.InDelta(t, qi, qd, 1e-6*qi)
	for i, n := range direct.Nodes {
		assert.InDelta(t, iterative.Nodes[i].Pressure, n.Pressure, 1e-6*bc.PIn)
	}
}

func TestWideBandFallsBackToIterative(t *testing.T) {
	net := gridNet(t, 5, 4)
	sys := Build(net, Boundary{PIn: 1})
	if _, err := factorBand(sys, 10); !errors.Is(err, errBandTooWide) {
		t.Fatalf("Expected errBandTooWide, got %v", err)
	}

	p := DefaultParams()
	p.Tolerance = 1e-12
	p.MaxBandEntries = 10
	s, err := New(p)
	require.NoError(t, err)
	_, err = s.Solve(net, Boundary{PIn: 2000})
	require.NoError(t, err)

	if s.Iterations == 0 {
		t.Error("Expected the solve to run bicgstab iterations")
	}
	worst, _ := MassImbalance(net)
	if worst > 1e-13 {
		t.Errorf("Expected imbalance below 1e-13, got %g", worst)
	}
}

func TestCalibratedPressureAgreesAcrossMethods(t *testing.T) {
	net := gridNet(t, 4, 4)
	p := DefaultParams()
	p.Method = string(BiCGSTAB)
	p.Tolerance = 1e-12
	iterative, err := New(p)
	require.NoError(t, err)
	want, err := iterative.Calibrate(net, 1e-12)
	require.NoError(t, err)

	got, err := newSolver(t, Direct).Calibrate(net, 1e-12)
	require.NoError(t, err)
	assert.InDelta(t, want.Boundary.PIn, got.Boundary.PIn, 1e-6*want.Boundary.PIn)
	assert.InDelta(t, 1e-12, got.OutletFlow, 1e-21)
}
