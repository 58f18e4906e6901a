package hemo

import (
	"math"

	"github.com/ritzau/angioflow/pkg/network"
)

const fqbCeiling = 0.9999

// Partition is the outcome of the bifurcation law for one daughter vessel.
type Partition struct {
	FQE    float64
	Closed bool
}

// Bifurcation holds the inputs of the red-cell partition law at one node.
type Bifurcation struct {
	FQB  float64 // daughter share of the node's inflow
	D    float64 // daughter diameter
	Din  float64 // mean diameter of the feeding vessels, 0 if none
	Dout float64 // mean diameter of the other daughters, 0 if none
	HDin float64 // red-cell flux of the feeders over their count times the node inflow
}

// Partition applies the empirical logistic law. A daughter whose flow share
// does not exceed the plasma-skimming threshold X0 receives no red cells and
// is shunted closed.
func (b Bifurcation) Partition() Partition {
	var x0, a, bb float64
	if b.Din != 0 {
		bb = 1 + 6.98e-6*(1-b.HDin*network.DischargeHaematocrit)/b.Din
		if b.Dout != 0 {
			x0 = 0.4e-6 / b.Din
			a = -6.96e-6 * math.Log(b.D/b.Dout) / b.Din
		}
	}
	fqb := b.FQB
	if fqb <= x0 {
		return Partition{Closed: true}
	}
	if fqb+x0 > fqbCeiling {
		fqb = fqbCeiling - x0
	}
	logit := math.Log((fqb - x0) / (1 - (fqb + x0)))
	return Partition{FQE: 1 / (1 + math.Exp(-(a + bb*logit)))}
}

// BifurcationAt gathers the law inputs for vessel v at its upstream node.
func BifurcationAt(net *network.Network, v *network.Vessel) (Bifurcation, bool) {
	n := v.Upstream()
	if n == network.None {
		return Bifurcation{}, false
	}
	node := net.Nodes[n]
	b := Bifurcation{D: 2 * v.Radius}
	if node.Inflow > network.FlowEpsilon {
		b.FQB = math.Abs(v.Flow) / node.Inflow
	}

	var din, dout, hdq float64
	var nin, nout int
	for _, vid := range node.Vessels {
		pp := net.Vessels[vid]
		if pp == v || pp.Closed {
			continue
		}
		switch {
		case pp.Enters(n):
			din += 2 * pp.Radius
			hdq += pp.HD * math.Abs(pp.Flow)
			nin++
		case pp.Leaves(n):
			dout += 2 * pp.Radius
			nout++
		}
	}
	if nin > 0 && node.Inflow > network.FlowEpsilon {
		b.Din = din / float64(nin)
		b.HDin = hdq / (float64(nin) * node.Inflow)
	}
	if nout > 0 && node.Inflow > network.FlowEpsilon {
		b.Dout = dout / float64(nout)
	}
	return b, true
}

// ApplyPhaseSeparation assigns FQE to every open inner vessel with flow and
// prunes the ones the law shunts closed. Boundary and stagnant vessels get
// FQE = 1. It returns the number of vessels closed in this pass.
func ApplyPhaseSeparation(net *network.Network) int {
	closed := 0
	for _, v := range net.Vessels {
		if v.Closed {
			continue
		}
		if v.IsBoundary() || !v.HasFlow() {
			v.FQE = 1
			continue
		}
		b, ok := BifurcationAt(net, v)
		if !ok {
			v.FQE = 1
			continue
		}
		part := b.Partition()
		v.FQE = part.FQE
		if part.Closed {
			v.Prune()
			closed++
		}
	}
	return closed
}

// NormalizeFQE rescales the fractions leaving each open node to sum to 1.
func NormalizeFQE(net *network.Network) {
	for _, node := range net.Nodes {
		if node.Closed {
			continue
		}
		sum := DownstreamFQESum(net, node.ID)
		if sum == 0 {
			continue
		}
		for _, vid := range node.Vessels {
			v := net.Vessels[vid]
			if !v.Closed && v.Leaves(node.ID) {
				v.FQE /= sum
			}
		}
	}
}

// DownstreamFQESum adds up FQE over the open vessels leaving node n.
func DownstreamFQESum(net *network.Network, n int) float64 {
	var sum float64
	for _, vid := range net.Nodes[n].Vessels {
		v := net.Vessels[vid]
		if !v.Closed && v.Leaves(n) {
			sum += v.FQE
		}
	}
	return sum
}
