// Package transport advances the red-cell concentration carried by the flow
// through the vessels and, optionally, the haematocrit field of the tissue
// around them.
package transport

import (
	"fmt"
	"math"

	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/simctx"
)

// minFlow is the smallest |flow| that constrains the step size.
const minFlow = 1e-40

// Params configures the transport step.
type Params struct {
	CoupleTissue       bool    `koanf:"couple-tissue"`       // exchange with the tissue blocks
	ClosedBoundaries   bool    `koanf:"closed-boundaries"`   // reflect tissue diffusion at the lattice edge
	Sigma              float64 `koanf:"sigma"`               // tissue decay rate
	InletConcentration float64 `koanf:"inlet-concentration"` // normalised haematocrit fed at the inlets
	Epsilon            float64 `koanf:"epsilon"`             // overshoot clamped back to 1

	// UseFQE splits inflow by the phase-separation fractions instead of the
	// flow shares. It follows the flow solve configuration.
	UseFQE bool `koanf:"-"`
}

// DefaultParams returns a tissue-coupled transport with unit inlet concentration.
func DefaultParams() Params {
	return Params{
		CoupleTissue:       true,
		ClosedBoundaries:   true,
		Sigma:              0,
		InletConcentration: 1,
		Epsilon:            1e-3,
	}
}

// Report summarises a series of transport steps.
type Report struct {
	Steps    int
	Injected float64 // injected volume in m^3
}

// Inject steps the transport until poreVolumes times the open vessel volume
// has entered the network, the run stops or no vessel carries flow.
func Inject(sc *simctx.Context, net *network.Network, p Params, poreVolumes float64) Report {
	var rep Report
	total := net.TotalVolume()
	if total <= 0 {
		return rep
	}
	for rep.Injected/total < poreVolumes && !sc.Stopped() {
		in := Step(sc, net, p)
		if in <= 0 {
			break
		}
		rep.Steps++
		rep.Injected += in
	}
	logging.Debug("transport injected", "steps", rep.Steps, "poreVolumes", rep.Injected/total)
	return rep
}

// Step performs one explicit update of every open vessel and, when coupled,
// every tissue block. It returns the volume injected through the inlets, or
// 0 when no vessel carries flow.
func Step(sc *simctx.Context, net *network.Network, p Params) float64 {
	dt := stepSize(net, p)
	if dt == 0 {
		return 0
	}
	updateFeeding(net)

	// every value is checked before any is written, so an abort leaves the
	// previous state intact
	next := make([]float64, len(net.Vessels))
	for _, v := range net.Vessels {
		if v.Closed {
			continue
		}
		c, ok := inRange(vesselUpdate(net, v, p, dt), p.Epsilon)
		if !ok {
			logging.Warn("vessel haematocrit out of range", "vessel", v.ID, "value", c)
			sc.Abort(fmt.Sprintf("haematocrit %g out of range in vessel %d", c, v.ID))
			return 0
		}
		next[v.ID] = c
	}

	var blocks []float64
	if p.CoupleTissue {
		blocks = make([]float64, len(net.Blocks))
		for _, b := range net.Blocks {
			if !exchanges(b) {
				continue
			}
			c := blockUpdate(net, b, p, dt)
			if c < 0 || c > 1 {
				logging.Warn("tissue haematocrit out of range", "block", b.ID, "value", c)
				sc.Abort(fmt.Sprintf("haematocrit %g out of range in block %d", c, b.ID))
				return 0
			}
			blocks[b.ID] = c
		}
	}

	for _, v := range net.Vessels {
		if !v.Closed {
			v.HD = next[v.ID]
		}
	}
	for _, b := range net.Blocks {
		if blocks != nil && exchanges(b) {
			b.HD = blocks[b.ID]
		}
	}
	updateNodes(net)

	var inflow float64
	for _, v := range net.Vessels {
		if !v.Closed && v.IsInlet() {
			inflow += math.Abs(v.Flow)
		}
	}
	return dt * inflow
}

func inRange(c, eps float64) (float64, bool) {
	switch {
	case c < 0 || c > 1+eps:
		return c, false
	case c > 1:
		return 1, true
	}
	return c, true
}

// exchanges reports whether a block takes part in tissue transport.
func exchanges(b *network.Block) bool { return !b.Closed && b.Volume > 0 }

func stepSize(net *network.Network, p Params) float64 {
	dt := math.Inf(1)
	for _, v := range net.Vessels {
		q := math.Abs(v.Flow)
		if v.Closed || !v.Conducting() || q <= minFlow || v.Volume <= 0 {
			continue
		}
		rate := q/v.Volume + vesselExchange(net, v, p)
		dt = math.Min(dt, 1/rate)
	}
	if math.IsInf(dt, 1) {
		return 0
	}
	if !p.CoupleTissue {
		return dt
	}
	for _, b := range net.Blocks {
		if !exchanges(b) {
			continue
		}
		rate := 2*b.Diffusivity*laplaceCoeff(net.Params) + blockExchange(net, b) + p.Sigma
		if rate > 0 {
			dt = math.Min(dt, 1/rate)
		}
	}
	return dt
}

// laplaceCoeff is the sum of 1/h^2 over the active axes.
func laplaceCoeff(np network.Params) float64 {
	h2 := np.Spacing * np.Spacing
	if np.Planar() {
		return 2 / h2
	}
	return 3 / h2
}

func vesselExchange(net *network.Network, v *network.Vessel, p Params) float64 {
	if !p.CoupleTissue || v.Volume <= 0 {
		return 0
	}
	var k float64
	for _, c := range v.Contacts {
		if exchanges(net.Blocks[c.ID]) {
			k += v.Permeability * c.Area / v.Volume
		}
	}
	return k
}

func blockExchange(net *network.Network, b *network.Block) float64 {
	var k float64
	for _, c := range b.Contacts {
		v := net.Vessels[c.ID]
		if !v.Closed {
			k += v.Permeability * c.Area / b.Volume
		}
	}
	return k
}

// updateFeeding records, for every open vessel, the vessels delivering flow
// into its upstream node and its own share of that inflow.
func updateFeeding(net *network.Network) {
	for _, v := range net.Vessels {
		v.Feeding = v.Feeding[:0]
		v.InflowShare = 0
		if v.Closed || !v.HasFlow() {
			continue
		}
		u := v.Upstream()
		if u == network.None {
			continue
		}
		var total float64
		for _, id := range net.Nodes[u].Vessels {
			pp := net.Vessels[id]
			if pp == v || pp.Closed || !pp.Enters(u) {
				continue
			}
			q := math.Abs(pp.Flow)
			v.Feeding = append(v.Feeding, network.Inflow{Vessel: pp.ID, Flow: q})
			total += q
		}
		if total > 0 {
			v.InflowShare = math.Abs(v.Flow) / total
		}
	}
}

func vesselUpdate(net *network.Network, v *network.Vessel, p Params, dt float64) float64 {
	if v.Volume <= 0 {
		return v.HD
	}
	q := math.Abs(v.Flow)
	k := vesselExchange(net, v, p)
	c := v.HD * (1 - dt*(q/v.Volume+k))

	var inflow float64
	switch {
	case !v.HasFlow():
	case v.Upstream() == network.None:
		if v.IsInlet() {
			inflow = p.InletConcentration * q / v.Volume
		}
	default:
		w := v.InflowShare
		if p.UseFQE {
			w = v.FQE
		}
		for _, f := range v.Feeding {
			inflow += net.Vessels[f.Vessel].HD * w * f.Flow / v.Volume
		}
	}
	c += dt * inflow

	if p.CoupleTissue {
		for _, ct := range v.Contacts {
			b := net.Blocks[ct.ID]
			if exchanges(b) {
				c += dt * v.Permeability * ct.Area / v.Volume * b.HD
			}
		}
	}
	return c
}

func blockUpdate(net *network.Network, b *network.Block, p Params, dt float64) float64 {
	np := net.Params
	h2 := np.Spacing * np.Spacing
	coef := b.Diffusivity / h2
	c := b.HD * (1 - dt*(2*b.Diffusivity*laplaceCoeff(np)+blockExchange(net, b)+p.Sigma))

	dirs := [][3]int{{-1, 0, 0}, {1, 0, 0}, {0, -1, 0}, {0, 1, 0}}
	if !np.Planar() {
		dirs = append(dirs, [3]int{0, 0, -1}, [3]int{0, 0, 1})
	}
	for _, d := range dirs {
		nb := net.BlockAt(b.I+d[0], b.J+d[1], b.K+d[2])
		switch {
		case nb != nil && exchanges(nb):
			c += dt * coef * nb.HD
		case p.ClosedBoundaries:
			c += dt * coef * b.HD
		}
	}

	for _, ct := range b.Contacts {
		v := net.Vessels[ct.ID]
		if !v.Closed {
			c += dt * v.Permeability * ct.Area / b.Volume * v.HD
		}
	}
	return c
}

// updateNodes sets each open node's concentration to the mean of its open
// vessels.
func updateNodes(net *network.Network) {
	for _, n := range net.Nodes {
		if n.Closed {
			continue
		}
		var sum float64
		var count int
		for _, id := range n.Vessels {
			v := net.Vessels[id]
			if !v.Closed {
				sum += v.HD
				count++
			}
		}
		if count > 0 {
			n.HD = sum / float64(count)
		}
	}
}
