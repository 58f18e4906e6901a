package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ritzau/angioflow/pkg/lattice"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/sim"
)

func TestRunReport(t *testing.T) {
	color.NoColor = true
	np := network.DefaultParams()
	np.Nx, np.Ny = 4, 3
	lp := lattice.DefaultParams()
	lp.Kind = string(lattice.Grid)
	net, err := lattice.Build(np, lp)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range net.Vessels {
		v.Flow = 1e-12
	}

	tests := []struct {
		res  sim.Result
		want []string
	}{
		{sim.Result{RunID: "r1", Outcome: sim.Completed, Steps: 20, Remodels: 1, MaxTransitTime: 2.5}, []string{"Run: r1", "Steps: 20", "Perfused: ", "Longest transit: 2.5 s", "✓ Run completed"}},
		{sim.Result{Outcome: sim.Aborted, AbortReason: "MDE 3 out of range"}, []string{"Run aborted: MDE 3 out of range"}},
		{sim.Result{Outcome: sim.Cancelled}, []string{"Run cancelled"}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		PrintRunReport(&buf, tt.res, net)
		for _, want := range tt.want {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("Expected %q in report:\n%s", want, buf.String())
			}
		}
	}
}

func TestProgressFollowsSteps(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, 0.05, 0.005)
	var obs sim.Observer = p
	for step := 1; step <= 10; step++ {
		obs.Observe(&sim.Snapshot{Step: step})
	}
	if got := p.bar.State().CurrentNum; got != 10 {
		t.Errorf("Expected bar at 10, got %d", got)
	}
	p.Finish()
}
