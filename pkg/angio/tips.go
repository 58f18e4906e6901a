package angio

import (
	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/network"
	"github.com/ritzau/angioflow/pkg/simctx"
)

// stayThreshold is the moving probability below which a tip that stays put
// is retired.
const stayThreshold = 1e-5

// MoveTips draws one move for every tip in ascending id order. A tip may
// stay, extend into an empty site or connect to an occupied one, passing its
// tip status on. Surviving tips age by dt. It returns the new tips.
func MoveTips(sc *simctx.Context, net *network.Network, p Params, dt float64) ([]int, error) {
	tips := net.Tips()
	next := make(map[int]bool, len(tips))

	for _, id := range tips {
		n := net.Nodes[id]
		if p.CircularDomain && outsideDisc(net, n) {
			continue
		}
		pr := Probabilities(net, n, p, dt)
		var sum float64
		for d := Stay; d <= PlusZ; d++ {
			sum += pr[d]
		}
		d := choose(sc.Uniform(), pr, Stay, PlusZ, sum)
		if d == Stay {
			if pr[7] > stayThreshold {
				next[id] = true
			}
			continue
		}
		reached, _, err := extend(sc, net, n, d)
		if err != nil {
			return nil, err
		}
		if reached != nil {
			next[reached.ID] = true
		}
	}

	for _, id := range tips {
		net.Nodes[id].Tip = false
	}
	for id := range next {
		n := net.Nodes[id]
		n.Tip = true
		n.Age += dt
	}
	net.UpdateRanking()
	return net.Tips(), nil
}

// BranchingProbability is the chance that a tip of the given age sprouts a
// new branch at TAF concentration taf.
func BranchingProbability(age, taf float64, p Params) float64 {
	if age <= p.Psi {
		return 0
	}
	switch {
	case taf > 0.8:
		return 1
	case taf > 0.7:
		return 0.4
	case taf > 0.5:
		return 0.3
	case taf > 0.3:
		return 0.2
	}
	return 0
}

var shearTable = [4][4]float64{
	{0.02, 0.04, 0.06, 0.08},
	{0.03, 0.06, 0.09, 0.12},
	{0.04, 0.08, 0.12, 0.16},
	{0.10, 0.20, 0.30, 0.40},
}

// WSSBranchingProbability is the chance that a vessel under normalised wall
// shear ratio sprouts at its downstream node.
func WSSBranchingProbability(taf, ratio float64) float64 {
	row := -1
	switch {
	case taf > 0.8:
		row = 3
	case taf > 0.7:
		row = 2
	case taf > 0.5:
		row = 1
	case taf > 0.3:
		row = 0
	}
	col := -1
	switch {
	case ratio > 1:
	case ratio > 0.8:
		col = 3
	case ratio > 0.6:
		col = 2
	case ratio > 0.4:
		col = 1
	case ratio > 0.2:
		col = 0
	}
	if row < 0 || col < 0 {
		return 0
	}
	return shearTable[row][col]
}

// lastBranchDirection bounds the second draw of a branching event.
func lastBranchDirection(np network.Params) int {
	if np.Planar() {
		return PlusY
	}
	return PlusZ
}

// sprout draws a lattice direction for a new branch at n and grows it. Both
// ends restart their age. It reports whether a vessel was grown or joined.
func sprout(sc *simctx.Context, net *network.Network, n *network.Node, p Params, dt float64) (bool, error) {
	pr := Probabilities(net, n, p, dt)
	var sum float64
	for d := MinusX; d <= PlusZ; d++ {
		sum += pr[d]
	}
	d := choose(sc.Uniform(), pr, MinusX, lastBranchDirection(net.Params), sum)
	if d == Stay {
		return false, nil
	}
	reached, created, err := extend(sc, net, n, d)
	if err != nil || reached == nil {
		return false, err
	}
	if created {
		reached.Tip = true
	}
	n.Age = 0
	reached.Age = 0
	return true, nil
}

// Branch gives every tip older than Psi a TAF-dependent chance to sprout.
// It returns the number of branching events.
func Branch(sc *simctx.Context, net *network.Network, p Params, dt float64) (int, error) {
	count := 0
	for _, id := range net.Tips() {
		n := net.Nodes[id]
		if n.Age <= p.Psi {
			continue
		}
		prob := BranchingProbability(n.Age, net.BlockOf(n).TAF, p)
		if sc.Uniform() >= prob {
			continue
		}
		ok, err := sprout(sc, net, n, p, dt)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	if count > 0 {
		net.UpdateRanking()
		logging.Debug("tips branched", "count", count)
	}
	return count, nil
}

// BranchOnShear lets vessels under high wall shear sprout at their
// downstream node. It returns the number of branching events.
func BranchOnShear(sc *simctx.Context, net *network.Network, p Params, dt float64) (int, error) {
	count := 0
	vessels := len(net.Vessels)
	for i := 0; i < vessels; i++ {
		v := net.Vessels[i]
		if v.Closed || v.Parent || !v.HasFlow() {
			continue
		}
		id := v.Downstream()
		if id == network.None {
			continue
		}
		n := net.Nodes[id]
		prob := WSSBranchingProbability(net.BlockOf(n).TAF, v.WSS/p.TauMax)
		if sc.Uniform() >= prob {
			continue
		}
		ok, err := sprout(sc, net, n, p, dt)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	if count > 0 {
		net.UpdateRanking()
		logging.Debug("shear branching", "count", count)
	}
	return count, nil
}
