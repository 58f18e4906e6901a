package sim

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/angioflow/pkg/angio"
	"github.com/ritzau/angioflow/pkg/hemo"
	"github.com/ritzau/angioflow/pkg/lattice"
	"github.com/ritzau/angioflow/pkg/metrics"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/remodel"
	"github.com/ritzau/angioflow/pkg/solver"
	"github.com/ritzau/angioflow/pkg/transport"
)

func tumour(t *testing.T) *network.Network {
	t.Helper()
	np := network.DefaultParams()
	np.Nx, np.Ny, np.Nz = 12, 12, 1
	net, err := lattice.Build(np, lattice.DefaultParams())
	require.NoError(t, err)
	return net
}

func remodeler(t *testing.T) *remodel.Remodeler {
	t.Helper()
	s, err := solver.New(solver.DefaultParams())
	require.NoError(t, err)
	hp := hemo.DefaultParams()
	hp.PhaseSeparation = false
	tp := transport.DefaultParams()
	tp.CoupleTissue = false
	rp := remodel.DefaultParams()
	rp.MaxPoreVolumes = 10
	return remodel.New(rp, hemo.New(hp, s), tp)
}

// shortRun covers ten macro steps with a remodel after the fifth and tenth.
func shortRun() Params {
	p := DefaultParams()
	p.Duration = 0.0475
	p.RemodelInterval = 0.0225
	return p
}

func TestRunCompletesAndEmitsSnapshots(t *testing.T) {
	net := tumour(t)
	var snaps []*Snapshot
	c := New(net, shortRun(), angio.DefaultParams(), remodeler(t)).
		WithObserver(ObserverFunc(func(s *Snapshot) { snaps = append(snaps, s) }))

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Completed, res.Outcome, res.AbortReason)

	assert.Equal(t, 10, res.Steps)
	assert.Equal(t, 2, res.Remodels)
	assert.InDelta(t, 0.05, res.Time, 1e-12)
	require.Len(t, snaps, 10)
	for i, s := range snaps {
		if s.Step != i+1 {
			t.Errorf("Expected snapshot step %d, got %d", i+1, s.Step)
		}
		if s.RunID != res.RunID {
			t.Errorf("Expected run id %s, got %s", res.RunID, s.RunID)
		}
	}
	assert.Equal(t, res.Tips, len(snaps[9].Tips))
	assert.Equal(t, len(net.Vessels), len(snaps[9].Vessels))

	if res.MaxTransitTime <= 0 {
		t.Errorf("Expected a positive transit time after remodeling, got %g", res.MaxTransitTime)
	}
	var longest float64
	for _, n := range snaps[9].Nodes {
		node := net.Nodes[n.ID]
		if n.X != node.X || n.Y != node.Y || n.Z != node.Z {
			t.Errorf("Expected node %d at (%g,%g,%g), got (%g,%g,%g)", n.ID, node.X, node.Y, node.Z, n.X, n.Y, n.Z)
		}
		longest = max(longest, n.TransitTime)
	}
	assert.InDelta(t, res.MaxTransitTime, longest, 1e-12*res.MaxTransitTime)
}

func TestSnapshotsAreCopies(t *testing.T) {
	net := tumour(t)
	s := Capture("run", 1, 0.005, net)
	before := s.Vessels[0].Radius
	net.Vessels[0].Radius *= 2
	if s.Vessels[0].Radius != before {
		t.Errorf("Expected snapshot radius %g, got %g", before, s.Vessels[0].Radius)
	}
}

func TestSnapshotEvery(t *testing.T) {
	p := shortRun()
	p.SnapshotEvery = 5
	count := 0
	c := New(tumour(t), p, angio.DefaultParams(), nil).
		WithObserver(MultiObserver{nil, ObserverFunc(func(*Snapshot) { count++ })})

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSeedReproducesRun(t *testing.T) {
	run := func() (Result, *network.Network) {
		p := shortRun()
		p.Seed = 42
		p.Duration = 0.2
		p.Remodel = false
		net := tumour(t)
		res, err := New(net, p, angio.DefaultParams(), nil).Run(context.Background())
		require.NoError(t, err)
		return res, net
	}
	a, na := run()
	b, nb := run()

	assert.Equal(t, a.Steps, b.Steps)
	assert.Equal(t, a.Branches, b.Branches)
	assert.Equal(t, na.Tips(), nb.Tips())
	require.Equal(t, len(na.Vessels), len(nb.Vessels))
	for i := range na.Vessels {
		if na.Vessels[i].In != nb.Vessels[i].In || na.Vessels[i].Out != nb.Vessels[i].Out {
			t.Fatalf("Expected vessel %d to match between runs", i)
		}
	}
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestCancelledRunStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(tumour(t), shortRun(), angio.DefaultParams(), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, res.Outcome)
	assert.Equal(t, 0, res.Steps)
}

func TestAbortIsReported(t *testing.T) {
	ap := angio.DefaultParams()
	ap.Alpha = 100 // MDE production overshoots on the first step
	reg := metrics.NewRegistry()

	res, err := New(tumour(t), shortRun(), ap, nil).WithMetrics(reg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Aborted, res.Outcome)
	assert.NotEmpty(t, res.AbortReason)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Aborts))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.MacroSteps))
}

func TestMetricsFollowSteps(t *testing.T) {
	reg := metrics.NewRegistry()
	res, err := New(tumour(t), shortRun(), angio.DefaultParams(), remodeler(t)).
		WithMetrics(reg).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, float64(res.Steps), testutil.ToFloat64(reg.MacroSteps))
	assert.Equal(t, float64(res.Tips), testutil.ToFloat64(reg.Tips))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Runs.WithLabelValues(string(Completed))))
	assert.Greater(t, testutil.ToFloat64(reg.RemodelIterations), 0.0)
	assert.Greater(t, testutil.ToFloat64(reg.InletPressure), 0.0)
	assert.Equal(t, res.MaxTransitTime, testutil.ToFloat64(reg.TransitTime))
}
