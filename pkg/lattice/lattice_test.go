package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/angioflow/pkg/network"
)

func smallParams(nx, ny int) network.Params {
	p := network.DefaultParams()
	p.Nx, p.Ny, p.Nz = nx, ny, 1
	return p
}

func TestParentVessel(t *testing.T) {
	net, err := ParentVessel(smallParams(5, 6), 14e-6, 0)
	require.NoError(t, err)

	if len(net.Nodes) != 6 {
		t.Fatalf("Expected 6 nodes, got %d", len(net.Nodes))
	}
	if len(net.Vessels) != 7 {
		t.Fatalf("Expected 7 vessels, got %d", len(net.Vessels))
	}
	assert.True(t, net.Nodes[0].Inlet)
	assert.True(t, net.Nodes[5].Outlet)
	for _, v := range net.Vessels {
		assert.True(t, v.Parent, "vessel %d", v.ID)
		assert.Equal(t, 1.0, v.HD)
		assert.Equal(t, 14e-6, v.Radius)
	}
}

func TestRegularGridCounts(t *testing.T) {
	net, err := RegularGrid(smallParams(3, 3), 5e-6)
	require.NoError(t, err)

	// 12 inner vessels plus three inlet and three outlet stubs
	if len(net.Vessels) != 18 {
		t.Errorf("Expected 18 vessels, got %d", len(net.Vessels))
	}
	inlets, outlets := 0, 0
	for _, v := range net.Vessels {
		if v.IsInlet() {
			inlets++
		}
		if v.IsOutlet() {
			outlets++
		}
	}
	assert.Equal(t, 3, inlets)
	assert.Equal(t, 3, outlets)
}

func TestLinearTumourRisesTowardsTumour(t *testing.T) {
	net, err := ParentVessel(smallParams(8, 4), 14e-6, 0)
	require.NoError(t, err)
	SeedTumour(net, false)

	prev := -1.0
	for i := 0; i < 8; i++ {
		b := net.BlockAt(i, 2, 0)
		if b.TAF <= prev {
			t.Errorf("Expected TAF to rise along x, got %g after %g at i=%d", b.TAF, prev, i)
		}
		prev = b.TAF
		assert.LessOrEqual(t, b.FN, 0.75)
	}
}

func TestCircularTumourStaysInUnitRange(t *testing.T) {
	net, err := ParentVessel(smallParams(10, 10), 14e-6, 0)
	require.NoError(t, err)
	SeedTumour(net, true)

	for _, b := range net.Blocks {
		if b.TAF < 0 || b.TAF > 1 {
			t.Errorf("Expected TAF in [0,1] at block %d, got %g", b.ID, b.TAF)
		}
	}
	near := net.BlockAt(9, 5, 0).TAF
	far := net.BlockAt(0, 5, 0).TAF
	assert.Greater(t, near, far)
}

func TestSeedTipsSpacing(t *testing.T) {
	net, err := ParentVessel(smallParams(5, 6), 14e-6, 0)
	require.NoError(t, err)
	require.NoError(t, SeedTips(net, 2, 0))

	assert.Equal(t, []int{2, 4}, net.Tips())
}

func TestSeedTipsOffColumnFails(t *testing.T) {
	net, err := ParentVessel(smallParams(5, 6), 14e-6, 0)
	require.NoError(t, err)
	if err := SeedTips(net, 2, 3); err == nil {
		t.Error("Expected error when no parent node lies on the column")
	}
}

func TestBuildAssignsConductances(t *testing.T) {
	for _, kind := range []Kind{Tumour, Retina, Grid} {
		t.Run(string(kind), func(t *testing.T) {
			p := DefaultParams()
			p.Kind = string(kind)
			net, err := Build(smallParams(6, 6), p)
			require.NoError(t, err)
			for _, v := range net.Vessels {
				if !(v.Conductance > 0) || !(v.Viscosity > 0) {
					t.Errorf("Expected positive conductance and viscosity on vessel %d, got %g and %g",
						v.ID, v.Conductance, v.Viscosity)
				}
			}
		})
	}
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	p := DefaultParams()
	p.Kind = "choroid"
	if _, err := Build(smallParams(4, 4), p); err == nil {
		t.Error("Expected error for unknown kind")
	}
}
