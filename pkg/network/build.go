package network

import (
	"fmt"
	"math"
)

// Sampler draws uniform numbers from [a,b). *simctx.Context implements it.
type Sampler interface {
	UniformIn(a, b float64) float64
}

// AddNodeAt places a node exactly on a lattice site.
func (n *Network) AddNodeAt(i, j, k int) (*Node, error) {
	if !n.Params.Contains(i, j, k) {
		return nil, fmt.Errorf("node at (%d,%d,%d): %w", i, j, k, ErrOffLattice)
	}
	idx := n.Params.index(i, j, k)
	if n.sites[idx] != None {
		return nil, fmt.Errorf("node at (%d,%d,%d): %w", i, j, k, ErrSiteOccupied)
	}
	h := n.Params.Spacing
	node := &Node{
		ID:   len(n.Nodes),
		I:    i,
		J:    j,
		K:    k,
		X:    float64(i) * h,
		Y:    float64(j) * h,
		Z:    float64(k) * h,
		Rank: None,
	}
	n.Nodes = append(n.Nodes, node)
	n.sites[idx] = node.ID
	return node, nil
}

// AddNode grows a node out of from onto site (i,j,k). Its position is
// jittered by Spacing*Jitter on x, y and, off-plane, z, drawn in that order.
// The new node inherits the age of from.
func (n *Network) AddNode(s Sampler, from int, i, j, k int) (*Node, error) {
	parent := n.Node(from)
	if parent == nil {
		return nil, fmt.Errorf("grow from node %d: no such node", from)
	}
	node, err := n.AddNodeAt(i, j, k)
	if err != nil {
		return nil, err
	}
	d := n.Params.Spacing * n.Params.Jitter
	node.X += d * s.UniformIn(-1, 1)
	node.Y += d * s.UniformIn(-1, 1)
	if !n.Params.Planar() {
		node.Z += d * s.UniformIn(-1, 1)
	}
	node.Age = parent.Age
	node.Neighbors = append(node.Neighbors, from)
	parent.Neighbors = appendUnique(parent.Neighbors, node.ID)
	return node, nil
}

// AddVessel joins two existing nodes. The radius is the mean radius of the
// vessels already touching either endpoint, capped at MaxNewRadius.
func (n *Network) AddVessel(in, out int) (*Vessel, error) {
	return n.addVessel(in, out, 0, 0)
}

// AddVesselWithRadius joins two nodes with a fixed radius.
func (n *Network) AddVesselWithRadius(in, out int, radius float64) (*Vessel, error) {
	return n.addVessel(in, out, radius, 0)
}

// AddBoundaryVessel attaches an inlet or outlet stub of the given size to a node.
func (n *Network) AddBoundaryVessel(node int, inlet bool, radius, length float64) (*Vessel, error) {
	nd := n.Node(node)
	if nd == nil {
		return nil, fmt.Errorf("boundary vessel at node %d: no such node", node)
	}
	var v *Vessel
	var err error
	if inlet {
		v, err = n.addVessel(None, node, radius, length)
		nd.Inlet = true
	} else {
		v, err = n.addVessel(node, None, radius, length)
		nd.Outlet = true
	}
	return v, err
}

func (n *Network) addVessel(in, out int, radius, length float64) (*Vessel, error) {
	if in == None && out == None {
		return nil, ErrDetachedVessel
	}
	for _, id := range []int{in, out} {
		if id != None && n.Node(id) == nil {
			return nil, fmt.Errorf("vessel endpoint %d: no such node", id)
		}
	}

	v := &Vessel{
		ID:                  len(n.Vessels),
		In:                  in,
		Out:                 out,
		ShapeFactor:         CircleShapeFactor,
		ShapeFactorConstant: CircleShapeFactorConstant,
		Permeability:        n.Params.Permeability,
		Exists:              true,
		FQE:                 1,
	}

	var sum float64
	var count int
	for _, id := range []int{in, out} {
		if id == None {
			continue
		}
		for _, vid := range n.Nodes[id].Vessels {
			other := n.Vessels[vid]
			v.Neighbors = append(v.Neighbors, vid)
			other.Neighbors = append(other.Neighbors, v.ID)
			sum += other.Radius
			count++
		}
	}
	switch {
	case radius > 0:
		v.Radius = radius
	case count > 0:
		v.Radius = math.Min(n.Params.MaxNewRadius, sum/float64(count))
	default:
		v.Radius = n.Params.MinRadius
	}

	switch {
	case length > 0:
		v.Length = length
	case in != None && out != None:
		a, b := n.Nodes[in], n.Nodes[out]
		v.Length = math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y) + (a.Z-b.Z)*(a.Z-b.Z))
	default:
		v.Length = n.Params.Spacing
	}
	v.Volume = VesselVolume(v)

	n.Vessels = append(n.Vessels, v)
	if in != None && out != None {
		n.Nodes[in].Neighbors = appendUnique(n.Nodes[in].Neighbors, out)
		n.Nodes[out].Neighbors = appendUnique(n.Nodes[out].Neighbors, in)
	}

	area := math.Pi * v.Radius * v.Length
	for _, id := range []int{in, out} {
		if id == None {
			continue
		}
		node := n.Nodes[id]
		node.Vessels = append(node.Vessels, v.ID)
		b := n.BlockOf(node)
		b.Contacts = append(b.Contacts, Contact{ID: v.ID, Area: area})
		b.Volume -= v.Volume / 2
		v.Contacts = append(v.Contacts, Contact{ID: b.ID, Area: area})
	}
	return v, nil
}

func appendUnique(s []int, x int) []int {
	for _, y := range s {
		if y == x {
			return s
		}
	}
	return append(s, x)
}
