// Package flowgraph views the solved vascular network as a directed graph
// of flow directions and walks it upstream first to accumulate the time
// blood takes to reach each node.
package flowgraph

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ritzau/angioflow/pkg/network"
)

// FlowGraph holds an edge upstream -> downstream for every conducting inner
// vessel with flow. Graph ids are node ids.
type FlowGraph struct {
	graph *simple.DirectedGraph
}

// Build creates the flow graph of the open part of net.
func Build(net *network.Network) *FlowGraph {
	fg := &FlowGraph{graph: simple.NewDirectedGraph()}
	for _, n := range net.Nodes {
		if !n.Closed {
			fg.graph.AddNode(simple.Node(n.ID))
		}
	}
	for _, v := range net.Vessels {
		if !carries(v) || v.IsBoundary() || v.In == v.Out {
			continue
		}
		up, down := int64(v.Upstream()), int64(v.Downstream())
		if !fg.graph.HasEdgeFromTo(up, down) {
			fg.graph.SetEdge(fg.graph.NewEdge(simple.Node(up), simple.Node(down)))
		}
	}
	return fg
}

func carries(v *network.Vessel) bool { return v.Conducting() && v.HasFlow() }

// Graph exposes the directed flow graph.
func (fg *FlowGraph) Graph() graph.Directed { return fg.graph }

// Edges returns the number of directed flow edges.
func (fg *FlowGraph) Edges() int { return fg.graph.Edges().Len() }

// Order returns node ids so that every vessel's upstream node comes before
// its downstream node. Ties are broken by id.
func (fg *FlowGraph) Order() ([]int, error) {
	sorted, err := topo.SortStabilized(fg.graph, byID)
	if err != nil {
		return nil, fmt.Errorf("order flow graph: %w", err)
	}
	order := make([]int, len(sorted))
	for i, n := range sorted {
		order[i] = int(n.ID())
	}
	return order, nil
}

// AssignTransitTimes sets Node.TransitTime for every open node. A node's
// time is the mean over the vessels feeding it, weighted by their flow, of
// the upstream node's time plus the vessel's volume over its flow. Inlet
// stubs start from zero and nodes nothing flows into get zero. It returns
// the largest time assigned.
func AssignTransitTimes(net *network.Network) (float64, error) {
	order, err := Build(net).Order()
	if err != nil {
		return 0, err
	}
	var longest float64
	for _, id := range order {
		n := net.Nodes[id]
		var weighted, inflow float64
		for _, vid := range n.Vessels {
			v := net.Vessels[vid]
			if !carries(v) || !v.Enters(id) {
				continue
			}
			q := math.Abs(v.Flow)
			var upstream float64
			if u := v.Upstream(); u != network.None {
				upstream = net.Nodes[u].TransitTime
			}
			weighted += q*upstream + v.Volume
			inflow += q
		}
		n.TransitTime = 0
		if inflow > 0 {
			n.TransitTime = weighted / inflow
		}
		longest = math.Max(longest, n.TransitTime)
	}
	return longest, nil
}

func byID(nodes []graph.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}
