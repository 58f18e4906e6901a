// Package percolation labels the connected components of a filtered edge set
// with a single Hoshen-Kopelman pass and flags the components that join an
// inlet edge to an outlet edge.
package percolation

// Edges is the subgraph being labelled. Edge ids run from 0 to Len()-1.
type Edges interface {
	Len() int
	Active(i int) bool
	Neighbors(i int) []int
	Inlet(i int) bool
	Outlet(i int) bool
}

// Cluster is one connected component of active edges.
type Cluster struct {
	Label    int
	Size     int
	Inlet    bool
	Outlet   bool
	Spanning bool
}

// Result maps every edge to its cluster. Of[i] is None for inactive edges.
type Result struct {
	Clusters []Cluster
	Of       []int
}

// None is the cluster index of an inactive edge.
const None = -1

// Spanning reports whether edge i belongs to a spanning cluster.
func (r *Result) Spanning(i int) bool {
	c := r.Of[i]
	return c != None && r.Clusters[c].Spanning
}

// Members returns the edge ids of cluster c in ascending order.
func (r *Result) Members(c int) []int {
	var out []int
	for i, of := range r.Of {
		if of == c {
			out = append(out, i)
		}
	}
	return out
}

// SpanningCount returns the number of spanning clusters.
func (r *Result) SpanningCount() int {
	count := 0
	for _, c := range r.Clusters {
		if c.Spanning {
			count++
		}
	}
	return count
}

type disjointSet struct {
	parent []int
	rank   []int
}

func (d *disjointSet) makeSet() int {
	id := len(d.parent)
	d.parent = append(d.parent, id)
	d.rank = append(d.rank, 0)
	return id
}

func (d *disjointSet) find(x int) int {
	root := x
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for d.parent[x] != root {
		next := d.parent[x]
		d.parent[x] = root
		x = next
	}
	return root
}

func (d *disjointSet) union(a, b int) int {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return ra
	}
	if d.rank[ra] < d.rank[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	if d.rank[ra] == d.rank[rb] {
		d.rank[ra]++
	}
	return ra
}

// Label runs the clustering pass over e.
func Label(e Edges) *Result {
	n := e.Len()
	raw := make([]int, n)
	ds := &disjointSet{}

	for i := 0; i < n; i++ {
		raw[i] = None
		if !e.Active(i) {
			continue
		}
		label := None
		for _, j := range e.Neighbors(i) {
			if j >= i || raw[j] == None {
				continue
			}
			if label == None {
				label = raw[j]
				continue
			}
			label = ds.union(label, raw[j])
		}
		if label == None {
			label = ds.makeSet()
		}
		raw[i] = label
	}

	res := &Result{Of: make([]int, n)}
	compact := make(map[int]int)
	for i := 0; i < n; i++ {
		if raw[i] == None {
			res.Of[i] = None
			continue
		}
		root := ds.find(raw[i])
		c, ok := compact[root]
		if !ok {
			c = len(res.Clusters)
			compact[root] = c
			res.Clusters = append(res.Clusters, Cluster{Label: c})
		}
		res.Of[i] = c
		res.Clusters[c].Size++
	}

	for i := 0; i < n; i++ {
		c := res.Of[i]
		if c == None {
			continue
		}
		if e.Inlet(i) {
			res.Clusters[c].Inlet = true
		}
		if e.Outlet(i) {
			res.Clusters[c].Outlet = true
		}
	}
	for c := range res.Clusters {
		res.Clusters[c].Spanning = res.Clusters[c].Inlet && res.Clusters[c].Outlet
	}
	return res
}
