// Package network holds the vascular graph: nodes, vessels and the tissue
// blocks they are embedded in. Elements live in append-only slices and refer
// to each other by integer id, which is also their index.
package network

import (
	"errors"
	"fmt"
	"math"
)

// None marks a missing endpoint or an unranked node.
const None = -1

// ClosedConductance is the conductance a closed or pruned vessel is pinned to.
const ClosedConductance = 1e-200

// FlowEpsilon is the smallest |flow| that still gives a vessel a direction.
const FlowEpsilon = 1e-20

var (
	// ErrDetachedVessel is returned when a vessel would have no endpoint.
	ErrDetachedVessel = errors.New("vessel has no endpoint")
	// ErrSiteOccupied is returned when a node is placed on a taken lattice site.
	ErrSiteOccupied = errors.New("lattice site already occupied")
	// ErrOffLattice is returned for lattice indices outside the grid.
	ErrOffLattice = errors.New("lattice site outside grid")
)

// Params describes the lattice and the material defaults applied to new
// vessels and blocks.
type Params struct {
	Nx           int     `koanf:"nx"`
	Ny           int     `koanf:"ny"`
	Nz           int     `koanf:"nz"`
	Spacing      float64 `koanf:"spacing"`        // lattice step in metres
	Jitter       float64 `koanf:"jitter"`         // degree of distortion of new nodes
	MinRadius    float64 `koanf:"min-radius"`     // fallback radius of an isolated new vessel
	MaxNewRadius float64 `koanf:"max-new-radius"` // cap on a derived radius
	Permeability float64 `koanf:"permeability"`   // vessel wall permeability (PVT)
	Diffusivity  float64 `koanf:"diffusivity"`    // tissue diffusivity (DT)
}

// DefaultParams returns a small planar lattice.
func DefaultParams() Params {
	return Params{
		Nx:           40,
		Ny:           40,
		Nz:           1,
		Spacing:      10e-6,
		Jitter:       0.2,
		MinRadius:    2e-6,
		MaxNewRadius: 6e-6,
		Permeability: 1e-7,
		Diffusivity:  1e-12,
	}
}

// Planar reports whether the lattice is a single layer.
func (p Params) Planar() bool { return p.Nz <= 1 }

// Contains reports whether (i,j,k) is a lattice site.
func (p Params) Contains(i, j, k int) bool {
	return i >= 0 && i < p.Nx && j >= 0 && j < p.Ny && k >= 0 && k < p.Nz
}

func (p Params) index(i, j, k int) int {
	return i + p.Nx*(j+p.Ny*k)
}

// Validate checks that the lattice can be built.
func (p Params) Validate() error {
	if p.Nx <= 0 || p.Ny <= 0 || p.Nz <= 0 {
		return fmt.Errorf("invalid lattice size %dx%dx%d", p.Nx, p.Ny, p.Nz)
	}
	if p.Spacing <= 0 {
		return fmt.Errorf("invalid lattice spacing %g", p.Spacing)
	}
	return nil
}

// Contact is an exchange surface between a vessel and a tissue block.
type Contact struct {
	ID   int
	Area float64
}

// Inflow records a vessel feeding another one and its |flow|.
type Inflow struct {
	Vessel int
	Flow   float64
}

// Node is a bifurcation or growth point.
type Node struct {
	ID      int
	I, J, K int
	X, Y, Z float64

	Inlet  bool
	Outlet bool
	Closed bool

	Vessels   []int
	Neighbors []int

	Pressure float64
	HD       float64
	Rank     int

	Tip bool
	Age float64

	// Filled by the flow solve: vessels whose flow enters this node.
	FeedingVessels int
	Inflow         float64
	MassInflow     float64

	// TransitTime is the flow-weighted mean time in seconds blood takes to
	// reach this node from the inlets.
	TransitTime float64
}

// Vessel is a cylindrical segment between two nodes. In or Out may be None
// for boundary stubs; an inlet vessel has In == None, an outlet Out == None.
type Vessel struct {
	ID  int
	In  int
	Out int

	Radius              float64
	Length              float64
	ShapeFactor         float64
	ShapeFactorConstant float64
	Volume              float64
	Viscosity           float64
	Conductance         float64
	Permeability        float64

	Flow            float64
	AveragePressure float64
	HD              float64
	WSS             float64
	FQE             float64
	InflowShare     float64

	ConvectedStimulus float64
	ConductedStimulus float64

	Exists  bool
	Closed  bool
	Parent  bool
	Visited bool

	Feeding   []Inflow
	Contacts  []Contact
	Neighbors []int
}

// IsInlet reports whether the vessel is an inlet stub.
func (v *Vessel) IsInlet() bool { return v.In == None }

// IsOutlet reports whether the vessel is an outlet stub.
func (v *Vessel) IsOutlet() bool { return v.Out == None }

// IsBoundary reports whether one endpoint is missing.
func (v *Vessel) IsBoundary() bool { return v.In == None || v.Out == None }

// Conducting reports whether the vessel takes part in the pressure solve.
func (v *Vessel) Conducting() bool { return !v.Closed && v.Exists }

// HasFlow reports whether |flow| is large enough to give a direction.
func (v *Vessel) HasFlow() bool { return math.Abs(v.Flow) > FlowEpsilon }

// Upstream returns the endpoint flow comes from.
func (v *Vessel) Upstream() int {
	if v.Flow < 0 {
		return v.Out
	}
	return v.In
}

// Downstream returns the endpoint flow goes to.
func (v *Vessel) Downstream() int {
	if v.Flow < 0 {
		return v.In
	}
	return v.Out
}

// Enters reports whether the vessel's flow enters node n.
func (v *Vessel) Enters(n int) bool {
	return (v.Flow > FlowEpsilon && v.Out == n) || (v.Flow < -FlowEpsilon && v.In == n)
}

// Leaves reports whether the vessel's flow leaves node n.
func (v *Vessel) Leaves(n int) bool {
	return (v.Flow > FlowEpsilon && v.In == n) || (v.Flow < -FlowEpsilon && v.Out == n)
}

// OtherEnd returns the endpoint of v that is not n.
func (v *Vessel) OtherEnd(n int) int {
	if v.In == n {
		return v.Out
	}
	return v.In
}

// Block is a tissue voxel centred on a lattice site.
type Block struct {
	ID      int
	I, J, K int
	X, Y, Z float64

	Volume      float64
	Diffusivity float64
	Closed      bool

	HD  float64
	TAF float64
	FN  float64
	MDE float64

	Contacts []Contact
}

// Network is the arena holding every element of a run.
type Network struct {
	Params  Params
	Nodes   []*Node
	Vessels []*Vessel
	Blocks  []*Block

	sites []int // lattice index -> node id
}

// New creates an empty vessel graph over a fully populated tissue lattice.
func New(p Params) (*Network, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := &Network{
		Params: p,
		sites:  make([]int, p.Nx*p.Ny*p.Nz),
		Blocks: make([]*Block, 0, p.Nx*p.Ny*p.Nz),
	}
	for i := range n.sites {
		n.sites[i] = None
	}
	volume := p.Spacing * p.Spacing * p.Spacing
	for k := 0; k < p.Nz; k++ {
		for j := 0; j < p.Ny; j++ {
			for i := 0; i < p.Nx; i++ {
				n.Blocks = append(n.Blocks, &Block{
					ID:          p.index(i, j, k),
					I:           i,
					J:           j,
					K:           k,
					X:           float64(i) * p.Spacing,
					Y:           float64(j) * p.Spacing,
					Z:           float64(k) * p.Spacing,
					Volume:      volume,
					Diffusivity: p.Diffusivity,
				})
			}
		}
	}
	return n, nil
}

// Node returns the node with the given id, or nil.
func (n *Network) Node(id int) *Node {
	if id < 0 || id >= len(n.Nodes) {
		return nil
	}
	return n.Nodes[id]
}

// Vessel returns the vessel with the given id, or nil.
func (n *Network) Vessel(id int) *Vessel {
	if id < 0 || id >= len(n.Vessels) {
		return nil
	}
	return n.Vessels[id]
}

// Block returns the block with the given id, or nil.
func (n *Network) Block(id int) *Block {
	if id < 0 || id >= len(n.Blocks) {
		return nil
	}
	return n.Blocks[id]
}

// NodeAt returns the node occupying a lattice site, or nil.
func (n *Network) NodeAt(i, j, k int) *Node {
	if !n.Params.Contains(i, j, k) {
		return nil
	}
	id := n.sites[n.Params.index(i, j, k)]
	if id == None {
		return nil
	}
	return n.Nodes[id]
}

// BlockAt returns the block at a lattice site, or nil outside the grid.
func (n *Network) BlockAt(i, j, k int) *Block {
	if !n.Params.Contains(i, j, k) {
		return nil
	}
	return n.Blocks[n.Params.index(i, j, k)]
}

// BlockOf returns the block a node sits in.
func (n *Network) BlockOf(node *Node) *Block {
	return n.BlockAt(node.I, node.J, node.K)
}

// VesselBetween returns the open vessel joining two nodes, or nil.
func (n *Network) VesselBetween(a, b int) *Vessel {
	na := n.Node(a)
	if na == nil {
		return nil
	}
	for _, id := range na.Vessels {
		v := n.Vessels[id]
		if !v.Closed && v.OtherEnd(a) == b {
			return v
		}
	}
	return nil
}

// OpenNodes returns the number of non-closed nodes.
func (n *Network) OpenNodes() int {
	count := 0
	for _, node := range n.Nodes {
		if !node.Closed {
			count++
		}
	}
	return count
}

// OpenVessels returns the number of non-closed vessels.
func (n *Network) OpenVessels() int {
	count := 0
	for _, v := range n.Vessels {
		if !v.Closed {
			count++
		}
	}
	return count
}

// UpdateRanking renumbers open nodes 0..n-1 in id order.
func (n *Network) UpdateRanking() int {
	rank := 0
	for _, node := range n.Nodes {
		if node.Closed {
			node.Rank = None
			continue
		}
		node.Rank = rank
		rank++
	}
	return rank
}

// Tips returns the ids of sprout tips in ascending order.
func (n *Network) Tips() []int {
	var tips []int
	for _, node := range n.Nodes {
		if node.Tip && !node.Closed {
			tips = append(tips, node.ID)
		}
	}
	return tips
}
