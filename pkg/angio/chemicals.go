package angio

import (
	"fmt"
	"math"

	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/simctx"
)

// SubStep returns the stable sub-step of the chemical update.
func SubStep(np network.Params, p Params) float64 {
	hh := h2(np)
	s := 1 / (p.Mu + 4*p.Epsilon/hh)
	for _, rate := range []float64{p.Eta, p.Gamma, p.Beta} {
		if rate > 0 {
			s = math.Min(s, 1/rate)
		}
	}
	return s / 2
}

// UpdateChemicals advances TAF, FN and MDE over dt. Tip sites take up TAF,
// produce FN and MDE and degrade FN; MDE diffuses and decays everywhere.
// An MDE value outside [0,1] aborts the run.
func UpdateChemicals(sc *simctx.Context, net *network.Network, p Params, dt float64) {
	np := net.Params
	sub := SubStep(np, p)
	hh := h2(np)
	m := prefactor(np)
	produce := sub * p.Alpha
	keep := 1 - sub*p.Mu - m*sub*p.Epsilon/hh
	spread := sub * p.Epsilon / hh

	dirs := []int{MinusX, PlusX, MinusY, PlusY}
	if !np.Planar() {
		dirs = append(dirs, MinusZ, PlusZ)
	}

	taf := make([]float64, len(net.Blocks))
	fn := make([]float64, len(net.Blocks))
	mde := make([]float64, len(net.Blocks))
	for elapsed := 0.0; elapsed < dt; elapsed += sub {
		if sc.Stopped() {
			return
		}
		// a sub-step is written only once every block passed the range check
		for _, b := range net.Blocks {
			if b.Closed {
				continue
			}
			taf[b.ID], fn[b.ID] = b.TAF, b.FN
			var c float64
			if n := net.NodeAt(b.I, b.J, b.K); n != nil && n.Tip && !n.Closed {
				taf[b.ID] *= 1 - sub*p.Eta
				fn[b.ID] = b.FN*(1-sub*p.Gamma*b.MDE) + sub*p.Beta
				c = produce
			}
			c += b.MDE * keep
			for _, d := range dirs {
				o := offsets[d]
				if nb := net.BlockAt(b.I+o[0], b.J+o[1], b.K+o[2]); nb != nil {
					c += spread * nb.MDE
				} else {
					c += spread * b.MDE
				}
			}
			if c < 0 || c > 1 {
				logging.Warn("MDE out of range", "block", b.ID, "value", c)
				sc.Abort(fmt.Sprintf("MDE %g out of range in block %d", c, b.ID))
				return
			}
			mde[b.ID] = c
		}
		for _, b := range net.Blocks {
			if !b.Closed {
				b.TAF, b.FN, b.MDE = taf[b.ID], fn[b.ID], mde[b.ID]
			}
		}
	}
}
