package network

// ExistingVessels views the open, existing vessels of a network as an edge
// set for percolation labelling. Two vessels are neighbours when they share
// an endpoint.
type ExistingVessels struct {
	net *Network
}

// Existing returns the labelling view of n.
func (n *Network) Existing() ExistingVessels {
	return ExistingVessels{net: n}
}

func (e ExistingVessels) Len() int { return len(e.net.Vessels) }

func (e ExistingVessels) Active(i int) bool {
	return e.net.Vessels[i].Conducting()
}

func (e ExistingVessels) Neighbors(i int) []int {
	return e.net.Vessels[i].Neighbors
}

func (e ExistingVessels) Inlet(i int) bool { return e.net.Vessels[i].IsInlet() }

func (e ExistingVessels) Outlet(i int) bool { return e.net.Vessels[i].IsOutlet() }
