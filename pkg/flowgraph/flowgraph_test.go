package flowgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/angioflow/pkg/network"
)

// ring is four nodes joined in a square; flows are set by the caller.
func ring(t *testing.T) (*network.Network, []*network.Vessel) {
	t.Helper()
	np := network.DefaultParams()
	np.Nx, np.Ny, np.Nz = 2, 2, 1
	net, err := network.New(np)
	require.NoError(t, err)
	for _, ij := range [][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		_, err := net.AddNodeAt(ij[0], ij[1], 0)
		require.NoError(t, err)
	}
	var vs []*network.Vessel
	for i := 0; i < 4; i++ {
		v, err := net.AddVesselWithRadius(i, (i+1)%4, 5e-6)
		require.NoError(t, err)
		vs = append(vs, v)
	}
	return net, vs
}

// fedRing adds an inlet stub at node 0 and an outlet stub at node 2 and sends
// q1 along 0 -> 1 -> 2 and q3 along 0 -> 3 -> 2. Every vessel has volume 1.
func fedRing(t *testing.T, q1, q3 float64) (*network.Network, []*network.Vessel) {
	t.Helper()
	net, vs := ring(t)
	in, err := net.AddBoundaryVessel(0, true, 5e-6, 10e-6)
	require.NoError(t, err)
	out, err := net.AddBoundaryVessel(2, false, 5e-6, 10e-6)
	require.NoError(t, err)
	vs[0].Flow, vs[1].Flow = q1, q1
	vs[2].Flow, vs[3].Flow = -q3, -q3
	in.Flow, out.Flow = q1+q3, q1+q3
	for _, v := range net.Vessels {
		v.Volume = 1
	}
	return net, append(vs, in, out)
}

func TestOrderPutsUpstreamFirst(t *testing.T) {
	net, vs := ring(t)
	// 0 -> 1 -> 2 and 0 -> 3 -> 2
	vs[0].Flow, vs[1].Flow = 1, 1
	vs[2].Flow, vs[3].Flow = -1, -1

	fg := Build(net)
	assert.Equal(t, 4, fg.Edges())

	order, err := fg.Order()
	require.NoError(t, err)
	require.Len(t, order, 4)
	assert.Equal(t, 0, order[0])
	assert.Equal(t, 2, order[3])
	assert.ElementsMatch(t, []int{1, 3}, order[1:3])
}

func TestCirculatingFlowCannotBeOrdered(t *testing.T) {
	net, vs := ring(t)
	for _, v := range vs {
		v.Flow = 1
	}
	if _, err := Build(net).Order(); err == nil {
		t.Error("Expected ordering to fail on circulating flow")
	}
	if _, err := AssignTransitTimes(net); err == nil {
		t.Error("Expected transit times to fail on circulating flow")
	}
}

func TestTransitTimeAccumulatesAlongFlow(t *testing.T) {
	net, _ := fedRing(t, 1, 1)

	longest, err := AssignTransitTimes(net)
	require.NoError(t, err)

	// inlet stub: 1/2; branches: +1/1; the merge averages equal arms.
	assert.InDelta(t, 0.5, net.Nodes[0].TransitTime, 1e-12)
	assert.InDelta(t, 1.5, net.Nodes[1].TransitTime, 1e-12)
	assert.InDelta(t, 1.5, net.Nodes[3].TransitTime, 1e-12)
	assert.InDelta(t, 2.5, net.Nodes[2].TransitTime, 1e-12)
	assert.InDelta(t, 2.5, longest, 1e-12)
}

func TestMergingArmsAreFlowWeighted(t *testing.T) {
	net, _ := fedRing(t, 3, 1)

	_, err := AssignTransitTimes(net)
	require.NoError(t, err)

	t0 := 1.0 / 4
	t1 := t0 + 1.0/3
	t3 := t0 + 1.0/1
	want := (3*(t1+1.0/3) + 1*(t3+1.0/1)) / 4
	assert.InDelta(t, t1, net.Nodes[1].TransitTime, 1e-12)
	assert.InDelta(t, t3, net.Nodes[3].TransitTime, 1e-12)
	assert.InDelta(t, want, net.Nodes[2].TransitTime, 1e-12)
}

func TestPrunedVesselsCarryNoTime(t *testing.T) {
	net, vs := fedRing(t, 1, 1)
	vs[2].Prune()
	vs[3].Prune()

	fg := Build(net)
	assert.Equal(t, 2, fg.Edges())

	_, err := AssignTransitTimes(net)
	require.NoError(t, err)
	assert.Equal(t, 0.0, net.Nodes[3].TransitTime)
	assert.InDelta(t, 2.5, net.Nodes[2].TransitTime, 1e-12)
}
