package remodel

import (
	"math"

	"github.com/ritzau/angioflow/pkg/network"
)

// propagationThreshold stops a signal once an increment falls to this size.
const propagationThreshold = 0.01

// frame is one pending visit of a node's vessel list.
type frame struct {
	node     int
	stimulus float64
	next     int
}

// walk spreads stimulus from node start through the vessels selected by
// follow, depth first in incident-vessel order. follow returns the increment
// added to a vessel and the node to continue from.
func walk(net *network.Network, start int, stimulus float64,
	follow func(v *network.Vessel, n int, stimulus float64) (float64, int, bool),
	add func(v *network.Vessel, inc float64)) {

	stack := []frame{{node: start, stimulus: stimulus}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		node := net.Nodes[top.node]
		if top.next >= len(node.Vessels) {
			stack = stack[:len(stack)-1]
			continue
		}
		v := net.Vessels[node.Vessels[top.next]]
		top.next++
		if v.Closed || v.Visited {
			continue
		}
		inc, nn, ok := follow(v, node.ID, top.stimulus)
		if !ok {
			continue
		}
		add(v, inc)
		v.Visited = true
		if nn != network.None && inc > propagationThreshold {
			stack = append(stack, frame{node: nn, stimulus: inc})
		}
	}
}

func clearVisited(net *network.Network) {
	for _, v := range net.Vessels {
		if !v.Closed {
			v.Visited = false
		}
	}
}

// CalculateConvectedStimuli seeds every vessel delivering less red-cell flux
// than the reference with a deficit signal proportional to its length and
// carries it downstream, split by flow.
func CalculateConvectedStimuli(net *network.Network, p Params) {
	ref := p.QHDref * network.DischargeHaematocrit
	for _, v := range net.Vessels {
		if !v.Closed {
			v.ConvectedStimulus = 0
		}
	}
	decay := math.Exp(-p.DecayConv)
	follow := func(v *network.Vessel, n int, s float64) (float64, int, bool) {
		if !v.Leaves(n) {
			return 0, network.None, false
		}
		inflow := net.Nodes[n].Inflow
		if inflow <= 0 {
			return 0, network.None, false
		}
		return math.Abs(v.Flow) / inflow * s * decay, v.Downstream(), true
	}
	add := func(v *network.Vessel, inc float64) { v.ConvectedStimulus += inc }

	for _, v := range net.Vessels {
		if v.Closed || !v.HasFlow() {
			continue
		}
		local := math.Abs(v.Flow) * v.HD * network.DischargeHaematocrit
		if local >= ref {
			continue
		}
		clearVisited(net)
		seed := v.Length * 1e6 * (1 - local/ref)
		v.ConvectedStimulus += seed
		v.Visited = true
		if n := v.Downstream(); n != network.None {
			walk(net, n, seed, follow, add)
		}
	}
}

// CalculateConductedStimuli seeds every vessel holding a convected signal and
// carries the result upstream along the wall, split evenly between the
// vessels feeding each node.
func CalculateConductedStimuli(net *network.Network, p Params) {
	for _, v := range net.Vessels {
		if !v.Closed {
			v.ConductedStimulus = 0
		}
	}
	decay := math.Exp(-p.DecayCond)
	follow := func(v *network.Vessel, n int, s float64) (float64, int, bool) {
		if !v.Enters(n) {
			return 0, network.None, false
		}
		feeding := net.Nodes[n].FeedingVessels
		if feeding == 0 {
			return 0, network.None, false
		}
		return s / float64(feeding) * decay, v.Upstream(), true
	}
	add := func(v *network.Vessel, inc float64) { v.ConductedStimulus += inc }

	for _, v := range net.Vessels {
		if v.Closed || !v.HasFlow() || v.ConvectedStimulus <= 0 {
			continue
		}
		clearVisited(net)
		seed := math.Log10(1 + v.ConvectedStimulus/
			(math.Abs(v.Flow*nutrientScale)+p.Qref*nutrientScale))
		v.ConductedStimulus += seed
		v.Visited = true
		if n := v.Upstream(); n != network.None {
			walk(net, n, seed, follow, add)
		}
	}
}
