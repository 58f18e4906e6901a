// Package angio moves endothelial sprout tips over the tissue lattice,
// branches them and updates the chemical fields they respond to.
package angio

import (
	"math"

	"github.com/ritzau/angioflow/pkg/network"
)

// Params holds the sprouting model constants. Lengths are in units of the
// lattice edge, times in units of the macro time scale.
type Params struct {
	D       float64 `koanf:"d"`       // random motility
	Chi     float64 `koanf:"chi"`     // chemotaxis
	Delta   float64 `koanf:"delta"`   // chemotactic saturation
	Rho     float64 `koanf:"rho"`     // haptotaxis
	Eta     float64 `koanf:"eta"`     // TAF uptake
	Beta    float64 `koanf:"beta"`    // FN production
	Gamma   float64 `koanf:"gamma"`   // FN degradation
	Alpha   float64 `koanf:"alpha"`   // MDE production
	Epsilon float64 `koanf:"epsilon"` // MDE diffusion
	Mu      float64 `koanf:"mu"`      // MDE decay
	Psi     float64 `koanf:"psi"`     // minimum age before a tip branches
	TauMax  float64 `koanf:"tau-max"` // Pa, WSS normalising branching on shear

	UpdateChemicals bool `koanf:"update-chemicals"`
	BranchOnShear   bool `koanf:"branch-on-shear"`
	// CircularDomain stops tips outside the inscribed circle of the x-y plane.
	CircularDomain bool `koanf:"circular-domain"`
}

// DefaultParams returns the tumour-induced angiogenesis constants.
func DefaultParams() Params {
	return Params{
		D:               0.00035,
		Chi:             0.38,
		Delta:           0.6,
		Rho:             0.34,
		Eta:             0.1,
		Beta:            0.05,
		Gamma:           0.1,
		Alpha:           1e-6,
		Epsilon:         0.01,
		Mu:              0,
		Psi:             0.5,
		TauMax:          2,
		UpdateChemicals: true,
	}
}

// Lattice directions; index 0 is "stay".
const (
	Stay = iota
	MinusX
	PlusX
	MinusY
	PlusY
	MinusZ
	PlusZ
)

var offsets = [7][3]int{
	{0, 0, 0},
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// opposite pairs each direction with its reflection.
var opposite = [7]int{Stay, PlusX, MinusX, PlusY, MinusY, PlusZ, MinusZ}

// ChiAt is the saturating chemotactic sensitivity chi/(1 + delta c).
func (p Params) ChiAt(c float64) float64 { return p.Chi / (1 + p.Delta*c) }

// prefactor is the number of lattice neighbours.
func prefactor(np network.Params) float64 {
	if np.Planar() {
		return 4
	}
	return 6
}

// h2 is the squared lattice step in units of the x edge.
func h2(np network.Params) float64 {
	h := 1 / float64(np.Nx)
	return h * h
}

// Probabilities returns P0 (stay), P1..P6 (-x,+x,-y,+y,-z,+z) and P7, the
// total probability of moving, for the tip at node n.
func Probabilities(net *network.Network, n *network.Node, p Params, dt float64) [8]float64 {
	np := net.Params
	m := prefactor(np)
	hh := h2(np)
	b := net.BlockOf(n)

	field := func(d int) (float64, float64) {
		o := offsets[d]
		if nb := net.BlockAt(n.I+o[0], n.J+o[1], n.K+o[2]); nb != nil {
			return nb.TAF, nb.FN
		}
		return b.TAF, b.FN
	}

	var pr [8]float64
	pr[Stay] = 1 - m*dt*p.D/hh
	diffusion := dt * p.D / hh
	drift := dt / (m * hh)
	chi := p.ChiAt(b.TAF)
	for axis := 0; axis < 3; axis++ {
		lo, hi := 1+2*axis, 2+2*axis
		if axis == 2 && np.Planar() {
			break
		}
		cLo, fLo := field(lo)
		cHi, fHi := field(hi)
		g := drift * (chi*(cHi-cLo) + p.Rho*(fHi-fLo))
		pr[lo] = diffusion - g
		pr[hi] = diffusion + g
	}

	for d := MinusX; d <= PlusZ; d++ {
		if blocked(net, n, d) {
			pr[d] = 0
		}
	}

	var add [7]float64
	for d := MinusX; d <= PlusZ; d++ {
		if pr[d] < 0 {
			add[d] = -pr[d]
		}
	}
	for d := MinusX; d <= PlusZ; d++ {
		if pr[d] > 0 {
			pr[d] += add[opposite[d]]
		}
	}
	var sum float64
	for d := Stay; d <= PlusZ; d++ {
		pr[d] = math.Max(0, pr[d])
		sum += pr[d]
	}
	if sum != 0 {
		for d := Stay; d <= PlusZ; d++ {
			pr[d] /= sum
		}
	}
	for d := MinusX; d <= PlusZ; d++ {
		pr[7] += pr[d]
	}
	return pr
}

// blocked reports whether a tip at n cannot move in direction d: the site
// is off the lattice or the tip is already joined to the node there.
func blocked(net *network.Network, n *network.Node, d int) bool {
	o := offsets[d]
	i, j, k := n.I+o[0], n.J+o[1], n.K+o[2]
	if !net.Params.Contains(i, j, k) {
		return true
	}
	nb := net.NodeAt(i, j, k)
	return nb != nil && net.VesselBetween(n.ID, nb.ID) != nil
}

// choose walks the cumulative distribution of pr[from..to] normalised by sum
// and returns the first direction whose bound exceeds u, or Stay.
func choose(u float64, pr [8]float64, from, to int, sum float64) int {
	if sum <= 0 {
		return Stay
	}
	var acc float64
	for d := from; d <= to; d++ {
		acc += pr[d] / sum
		if u < acc {
			return d
		}
	}
	return Stay
}

// extend grows n one site in direction d. An empty site gets a new node and
// vessel; an occupied one is joined unless already connected. It returns the
// node reached, whether it was created, or nil when d leaves the lattice.
func extend(s network.Sampler, net *network.Network, n *network.Node, d int) (*network.Node, bool, error) {
	o := offsets[d]
	i, j, k := n.I+o[0], n.J+o[1], n.K+o[2]
	if !net.Params.Contains(i, j, k) {
		return nil, false, nil
	}
	if nb := net.NodeAt(i, j, k); nb != nil {
		if net.VesselBetween(n.ID, nb.ID) == nil {
			if _, err := join(net, n, nb, d); err != nil {
				return nil, false, err
			}
		}
		return nb, false, nil
	}
	nb, err := net.AddNode(s, n.ID, i, j, k)
	if err != nil {
		return nil, false, err
	}
	if _, err := join(net, n, nb, d); err != nil {
		return nil, false, err
	}
	return nb, true, nil
}

// join adds a vessel whose In end is the node at the larger lattice index.
func join(net *network.Network, from, to *network.Node, d int) (*network.Vessel, error) {
	if d%2 == 0 {
		return net.AddVessel(to.ID, from.ID)
	}
	return net.AddVessel(from.ID, to.ID)
}

// outsideDisc reports whether a node lies outside the inscribed circle of
// the x-y plane.
func outsideDisc(net *network.Network, n *network.Node) bool {
	np := net.Params
	lx := float64(np.Nx) * np.Spacing
	ly := float64(np.Ny) * np.Spacing
	dx, dy := n.X/lx-0.5, n.Y/ly-0.5
	return dx*dx+dy*dy > 0.25
}
