package angio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/angioflow/pkg/lattice"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/simctx"
)

func tissue(t *testing.T, nx, ny int, taf func(b *network.Block) float64) *network.Network {
	t.Helper()
	np := network.DefaultParams()
	np.Nx, np.Ny, np.Nz = nx, ny, 1
	net, err := network.New(np)
	require.NoError(t, err)
	for _, b := range net.Blocks {
		b.TAF = taf(b)
	}
	return net
}

func uniform(v float64) func(*network.Block) float64 {
	return func(*network.Block) float64 { return v }
}

func tipAt(t *testing.T, net *network.Network, i, j int) *network.Node {
	t.Helper()
	n, err := net.AddNodeAt(i, j, 0)
	require.NoError(t, err)
	n.Tip = true
	return n
}

func TestProbabilitiesAreNormalised(t *testing.T) {
	net := tissue(t, 10, 10, func(b *network.Block) float64 { return float64(b.I) / 10 })
	n := tipAt(t, net, 5, 5)

	pr := Probabilities(net, n, DefaultParams(), 0.005)
	var sum float64
	for d := Stay; d <= PlusZ; d++ {
		if pr[d] < 0 {
			t.Errorf("Expected non-negative probability for direction %d, got %g", d, pr[d])
		}
		sum += pr[d]
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.InDelta(t, 1-pr[Stay], pr[7], 1e-12)
	assert.Equal(t, 0.0, pr[MinusZ])
	assert.Equal(t, 0.0, pr[PlusZ])
	assert.Greater(t, pr[PlusX], pr[MinusX], "chemotaxis biases towards higher TAF")
}

func TestBlockedDirectionsAreZero(t *testing.T) {
	net := tissue(t, 10, 10, uniform(0.5))
	n := tipAt(t, net, 0, 5)
	above, err := net.AddNodeAt(0, 6, 0)
	require.NoError(t, err)
	_, err = net.AddVessel(above.ID, n.ID)
	require.NoError(t, err)

	pr := Probabilities(net, n, DefaultParams(), 0.005)
	assert.Equal(t, 0.0, pr[MinusX], "off lattice")
	assert.Equal(t, 0.0, pr[PlusY], "already connected")
	assert.Greater(t, pr[PlusX], 0.0)
	assert.Greater(t, pr[MinusY], 0.0)
}

func TestNegativeDriftIsReflected(t *testing.T) {
	net := tissue(t, 10, 10, func(b *network.Block) float64 { return float64(b.I) })
	n := tipAt(t, net, 5, 5)

	pr := Probabilities(net, n, DefaultParams(), 0.005)
	assert.Equal(t, 0.0, pr[MinusX])
	assert.Greater(t, pr[PlusX], pr[PlusY])
}

func TestBranchingProbabilityTable(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		age, taf, want float64
	}{
		{0.4, 1, 0},
		{0.6, 1, 1},
		{0.6, 0.8, 0.4},
		{0.6, 0.7, 0.3},
		{0.6, 0.5, 0.2},
		{0.6, 0.3, 0},
	}
	for _, tt := range tests {
		if got := BranchingProbability(tt.age, tt.taf, p); got != tt.want {
			t.Errorf("BranchingProbability(%g, %g) = %g, expected %g", tt.age, tt.taf, got, tt.want)
		}
	}
}

func TestWSSBranchingProbabilityTable(t *testing.T) {
	tests := []struct {
		taf, ratio, want float64
	}{
		{0.4, 0.3, 0.02},
		{0.6, 0.5, 0.06},
		{0.75, 0.7, 0.12},
		{0.9, 1.0, 0.40},
		{0.9, 1.2, 0},
		{0.9, 0.1, 0},
		{0.2, 0.9, 0},
	}
	for _, tt := range tests {
		if got := WSSBranchingProbability(tt.taf, tt.ratio); got != tt.want {
			t.Errorf("WSSBranchingProbability(%g, %g) = %g, expected %g", tt.taf, tt.ratio, got, tt.want)
		}
	}
}

func TestTipExtendsIntoEmptySite(t *testing.T) {
	net := tissue(t, 10, 10, uniform(0.5))
	n := tipAt(t, net, 0, 0)

	// a long step drives the stay probability to zero
	tips, err := MoveTips(simctx.Background(3), net, DefaultParams(), 10)
	require.NoError(t, err)

	require.Len(t, net.Nodes, 2)
	require.Len(t, net.Vessels, 1)
	assert.Equal(t, []int{1}, tips)
	assert.False(t, n.Tip)
	assert.Equal(t, 10.0, net.Nodes[1].Age)
	v := net.Vessels[0]
	assert.Equal(t, 1, v.In, "the node at the larger lattice index is the In end")
	assert.Equal(t, 0, v.Out)
}

func TestTipConnectsToOccupiedSite(t *testing.T) {
	net := tissue(t, 3, 1, uniform(0.5))
	n := tipAt(t, net, 0, 0)
	other, err := net.AddNodeAt(1, 0, 0)
	require.NoError(t, err)

	tips, err := MoveTips(simctx.Background(1), net, DefaultParams(), 100)
	require.NoError(t, err)

	assert.Len(t, net.Nodes, 2)
	require.NotNil(t, net.VesselBetween(n.ID, other.ID))
	assert.Equal(t, []int{other.ID}, tips)
}

func TestOutsideDiscTipRetires(t *testing.T) {
	net := tissue(t, 10, 10, uniform(0.5))
	tipAt(t, net, 0, 0)
	p := DefaultParams()
	p.CircularDomain = true

	tips, err := MoveTips(simctx.Background(1), net, p, 0.005)
	require.NoError(t, err)
	assert.Empty(t, tips)
	assert.Len(t, net.Nodes, 1)
}

func TestOldTipBranchesAtFullTAF(t *testing.T) {
	net := tissue(t, 10, 10, uniform(1))
	n := tipAt(t, net, 5, 5)
	n.Age = 1

	count, err := Branch(simctx.Background(7), net, DefaultParams(), 0.005)
	require.NoError(t, err)

	assert.Equal(t, 1, count)
	require.Len(t, net.Nodes, 2)
	assert.Equal(t, 0.0, n.Age)
	assert.Equal(t, 0.0, net.Nodes[1].Age)
	assert.Equal(t, []int{0, 1}, net.Tips())
}

func TestYoungTipDoesNotBranch(t *testing.T) {
	net := tissue(t, 10, 10, uniform(1))
	tipAt(t, net, 5, 5).Age = 0.1

	count, err := Branch(simctx.Background(7), net, DefaultParams(), 0.005)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Len(t, net.Nodes, 1)
}

func TestSproutingIsReproducible(t *testing.T) {
	run := func(seed int64) *network.Network {
		np := network.DefaultParams()
		np.Nx, np.Ny, np.Nz = 20, 20, 1
		net, err := lattice.Build(np, lattice.DefaultParams())
		require.NoError(t, err)
		sc := simctx.Background(seed)
		p := DefaultParams()
		for step := 0; step < 200; step++ {
			_, err := MoveTips(sc, net, p, 0.005)
			require.NoError(t, err)
			_, err = Branch(sc, net, p, 0.005)
			require.NoError(t, err)
		}
		return net
	}

	a, b := run(42), run(42)
	require.Equal(t, len(a.Nodes), len(b.Nodes))
	require.Equal(t, len(a.Vessels), len(b.Vessels))
	for i := range a.Nodes {
		assert.Equal(t, a.Nodes[i].X, b.Nodes[i].X)
		assert.Equal(t, a.Nodes[i].Y, b.Nodes[i].Y)
		assert.Equal(t, a.Nodes[i].Tip, b.Nodes[i].Tip)
	}
	assert.Equal(t, a.Tips(), b.Tips())
}

func TestChemicalsAtTipSites(t *testing.T) {
	net := tissue(t, 10, 10, uniform(0.8))
	for _, b := range net.Blocks {
		b.FN = 0.5
	}
	n := tipAt(t, net, 4, 4)
	sc := simctx.Background(1)

	UpdateChemicals(sc, net, DefaultParams(), 0.005)
	require.False(t, sc.Aborted(), sc.Reason())

	b := net.BlockOf(n)
	assert.Less(t, b.TAF, 0.8)
	assert.Greater(t, b.MDE, 0.0)
	assert.Equal(t, 0.8, net.BlockAt(0, 0, 0).TAF)
	for _, blk := range net.Blocks {
		if blk.MDE < 0 || blk.MDE > 1 {
			t.Errorf("Expected MDE in [0,1] at block %d, got %g", blk.ID, blk.MDE)
		}
	}
}

func TestMDEOutOfRangeAborts(t *testing.T) {
	net := tissue(t, 4, 4, uniform(0))
	net.BlockAt(1, 1, 0).MDE = 3
	sc := simctx.Background(1)

	UpdateChemicals(sc, net, DefaultParams(), 0.005)
	if !sc.Aborted() {
		t.Error("Expected run to be aborted")
	}
}

func TestMDEAbortKeepsEveryBlock(t *testing.T) {
	net := tissue(t, 4, 4, uniform(0.8))
	for _, b := range net.Blocks {
		b.FN = 0.5
	}
	n := tipAt(t, net, 1, 1)
	// the bad block comes after the tip block in id order
	net.BlockAt(3, 3, 0).MDE = 3
	sc := simctx.Background(1)

	UpdateChemicals(sc, net, DefaultParams(), 0.005)
	require.True(t, sc.Aborted())

	tip := net.BlockOf(n)
	assert.Equal(t, 0.8, tip.TAF)
	assert.Equal(t, 0.5, tip.FN)
	assert.Equal(t, 0.0, tip.MDE)
	assert.Equal(t, 3.0, net.BlockAt(3, 3, 0).MDE)
}
