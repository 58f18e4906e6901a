// Package sim runs the macro time loop: tip migration, chemical updates,
// periodic flow remodeling and branching, with a snapshot after each step.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ritzau/angioflow/pkg/angio"
	"github.com/ritzau/angioflow/pkg/flowgraph"
	"github.com/ritzau/angioflow/pkg/hemo"
	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/metrics"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/remodel"
	"github.com/ritzau/angioflow/pkg/simctx"
)

// Params configures the macro loop. Times are in units of the macro time
// scale (1.5 days).
type Params struct {
	TimeStep        float64 `koanf:"time-step"`
	RemodelInterval float64 `koanf:"remodel-interval"`
	Duration        float64 `koanf:"duration"`
	Seed            int64   `koanf:"seed"`
	Remodel         bool    `koanf:"remodel"`        // run flow remodeling at all
	SnapshotEvery   int     `koanf:"snapshot-every"` // emit every n-th step, 1 for all
}

// DefaultParams returns a ten-unit run remodeling once per unit.
func DefaultParams() Params {
	return Params{
		TimeStep:        0.005,
		RemodelInterval: 1.0,
		Duration:        10,
		Seed:            1,
		Remodel:         true,
		SnapshotEvery:   1,
	}
}

// Outcome describes how a run ended.
type Outcome string

const (
	Completed Outcome = "completed"
	Cancelled Outcome = "cancelled"
	Aborted   Outcome = "aborted"
	Failed    Outcome = "failed"
)

// Result summarises a run.
type Result struct {
	RunID       string
	Outcome     Outcome
	Steps       int
	Time        float64
	Tips        int
	Nodes       int
	Vessels     int
	Branches    int
	Remodels    int
	// MaxTransitTime is the longest inlet-to-node transit time in seconds
	// after the last remodel.
	MaxTransitTime float64
	AbortReason    string
	Elapsed        time.Duration
}

// Controller owns one run over a built network.
type Controller struct {
	params    Params
	angio     angio.Params
	net       *network.Network
	remodeler *remodel.Remodeler
	metrics   *metrics.Registry
	observer  Observer
}

// New returns a controller. A nil remodeler disables remodeling.
func New(net *network.Network, p Params, ap angio.Params, r *remodel.Remodeler) *Controller {
	if p.SnapshotEvery <= 0 {
		p.SnapshotEvery = 1
	}
	return &Controller{params: p, angio: ap, net: net, remodeler: r}
}

// WithMetrics records run progress into m.
func (c *Controller) WithMetrics(m *metrics.Registry) *Controller {
	c.metrics = m
	return c
}

// WithObserver sets the snapshot observer.
func (c *Controller) WithObserver(o Observer) *Controller {
	c.observer = o
	return c
}

// Params returns the loop configuration.
func (c *Controller) Params() Params { return c.params }

// Network returns the network being simulated.
func (c *Controller) Network() *network.Network { return c.net }

// Run advances the simulation until Duration is reached, ctx is cancelled or
// a numerical fault aborts it. Go errors are returned only for failed graph
// edits and solver failures other than a missing flow path.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	sc := simctx.New(ctx, c.params.Seed)
	res := Result{RunID: uuid.New().String()}
	ctx = logging.WithRunID(sc.Ctx(), res.RunID)
	logging.InfoContext(ctx, "run started",
		"seed", c.params.Seed,
		"duration", c.params.Duration,
		"tips", len(c.net.Tips()))

	err := c.loop(ctx, sc, &res)

	res.Tips = len(c.net.Tips())
	res.Nodes = c.net.OpenNodes()
	res.Vessels = c.net.OpenVessels()
	res.Elapsed = time.Since(start)
	switch {
	case err != nil:
		res.Outcome = Failed
	case sc.Aborted():
		res.Outcome = Aborted
		res.AbortReason = sc.Reason()
		logging.WarnContext(ctx, "run aborted", "reason", res.AbortReason, "step", res.Steps)
	case sc.Err() != nil:
		res.Outcome = Cancelled
	default:
		res.Outcome = Completed
	}
	c.metrics.RecordRun(string(res.Outcome), res.Outcome == Aborted)
	logging.InfoContext(ctx, "run finished",
		"outcome", res.Outcome,
		"steps", res.Steps,
		"time", res.Time,
		"tips", res.Tips,
		"elapsedMs", res.Elapsed.Milliseconds())
	return res, err
}

func (c *Controller) loop(ctx context.Context, sc *simctx.Context, res *Result) error {
	p := c.params
	dt := p.TimeStep
	sinceRemodel := 0.0

	for res.Time < p.Duration && !sc.Stopped() {
		res.Time += dt
		sinceRemodel += dt
		res.Steps++

		if _, err := angio.MoveTips(sc, c.net, c.angio, dt); err != nil {
			return fmt.Errorf("step %d: move tips: %w", res.Steps, err)
		}
		if c.angio.UpdateChemicals {
			angio.UpdateChemicals(sc, c.net, c.angio, dt)
		}
		if sc.Stopped() {
			break
		}

		if p.Remodel && c.remodeler != nil && sinceRemodel > p.RemodelInterval {
			if err := c.remodel(ctx, sc, res); err != nil {
				return fmt.Errorf("step %d: %w", res.Steps, err)
			}
			res.Remodels++
			sinceRemodel = 0
			if sc.Stopped() {
				break
			}
		}

		n, err := angio.Branch(sc, c.net, c.angio, dt)
		if err != nil {
			return fmt.Errorf("step %d: branch: %w", res.Steps, err)
		}
		res.Branches += n
		c.metrics.RecordBranches("tip", n)

		if c.angio.BranchOnShear {
			n, err := angio.BranchOnShear(sc, c.net, c.angio, dt)
			if err != nil {
				return fmt.Errorf("step %d: branch on shear: %w", res.Steps, err)
			}
			res.Branches += n
			c.metrics.RecordBranches("shear", n)
		}

		c.metrics.RecordStep(res.Time, c.net.OpenNodes(), c.net.OpenVessels(), len(c.net.Tips()))
		if c.observer != nil && res.Steps%p.SnapshotEvery == 0 {
			c.observer.Observe(Capture(res.RunID, res.Steps, res.Time, c.net))
		}
	}
	return nil
}

// remodel adapts the radii and updates the transit times of the new flow.
// A network without an inlet-outlet path is left as is.
func (c *Controller) remodel(ctx context.Context, sc *simctx.Context, res *Result) error {
	start := time.Now()
	rep, err := c.remodeler.Remodel(sc, c.net)
	if hemo.IsNoFlow(err) {
		logging.WarnContext(ctx, "no flow path, remodeling skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("remodel: %w", err)
	}
	c.metrics.RecordRemodel(rep.Iterations, rep.TransportSteps, rep.Closed,
		rep.PoreVolumes, rep.InletPressure, time.Since(start))

	transit, err := flowgraph.AssignTransitTimes(c.net)
	if err != nil {
		return fmt.Errorf("transit times: %w", err)
	}
	res.MaxTransitTime = transit
	c.metrics.RecordTransit(transit)
	logging.DebugContext(ctx, "remodeled",
		"iterations", rep.Iterations,
		"solves", rep.Solves,
		"closed", rep.Closed,
		"inletPressure", rep.InletPressure,
		"maxTransit", transit)
	return nil
}
