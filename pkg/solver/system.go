package solver

import (
	"sort"

	"github.com/ritzau/angioflow/pkg/network"
)

// Boundary holds the pressures imposed on inlet and outlet stubs.
type Boundary struct {
	PIn  float64
	POut float64
}

// System is the nodal conductance balance A p = b in CSR form, one row per
// open node in rank order.
type System struct {
	N      int
	RowPtr []int
	Cols   []int
	Vals   []float64
	RHS    []float64
	Diag   []float64

	// inletG and outletG are the boundary conductances of each row, kept so
	// the right-hand side can be rebuilt for another Boundary.
	inletG  []float64
	outletG []float64
}

type entry struct {
	col int
	val float64
}

// Build assembles the system for the current conductances. Boundary vessels
// move their pressure to the right-hand side. A node with no conducting
// vessel gets the row -p = 0 so pruned islands never make A singular.
func Build(net *network.Network, bc Boundary) *System {
	n := net.UpdateRanking()
	s := &System{
		N:       n,
		RowPtr:  make([]int, 0, n+1),
		RHS:     make([]float64, n),
		Diag:    make([]float64, n),
		inletG:  make([]float64, n),
		outletG: make([]float64, n),
	}
	s.RowPtr = append(s.RowPtr, 0)

	row := make([]entry, 0, 8)
	for _, node := range net.Nodes {
		if node.Closed {
			continue
		}
		r := node.Rank
		row = row[:0]
		var diag float64
		for _, vid := range node.Vessels {
			v := net.Vessels[vid]
			if !v.Conducting() {
				continue
			}
			switch {
			case v.IsInlet():
				s.inletG[r] += v.Conductance
				diag -= v.Conductance
			case v.IsOutlet():
				s.outletG[r] += v.Conductance
				diag -= v.Conductance
			default:
				other := net.Nodes[v.OtherEnd(node.ID)]
				if other.Closed {
					continue
				}
				row = addEntry(row, other.Rank, v.Conductance)
				diag -= v.Conductance
			}
		}
		if diag == 0 {
			diag = -1
			row = row[:0]
		}
		row = addEntry(row, r, diag)
		sort.Slice(row, func(a, b int) bool { return row[a].col < row[b].col })
		for _, e := range row {
			s.Cols = append(s.Cols, e.col)
			s.Vals = append(s.Vals, e.val)
		}
		s.RowPtr = append(s.RowPtr, len(s.Cols))
		s.Diag[r] = diag
	}
	s.RHS = s.rhs(bc)
	return s
}

// rhs returns b for the boundary pressures bc. Only the boundary terms
// depend on bc, so one factorisation serves every probe of a calibration.
func (s *System) rhs(bc Boundary) []float64 {
	b := make([]float64, s.N)
	for i := range b {
		b[i] = -bc.PIn*s.inletG[i] - bc.POut*s.outletG[i]
	}
	return b
}

// Bandwidth returns the largest |i-j| over the stored entries when row i
// is placed at pos[i]. A nil pos means the identity order.
func (s *System) Bandwidth(pos []int) int {
	k := 0
	for i := 0; i < s.N; i++ {
		for e := s.RowPtr[i]; e < s.RowPtr[i+1]; e++ {
			a, b := i, s.Cols[e]
			if pos != nil {
				a, b = pos[a], pos[b]
			}
			if d := a - b; d > k {
				k = d
			} else if -d > k {
				k = -d
			}
		}
	}
	return k
}

// addEntry merges parallel vessels between the same pair of nodes.
func addEntry(row []entry, col int, val float64) []entry {
	for i := range row {
		if row[i].col == col {
			row[i].val += val
			return row
		}
	}
	return append(row, entry{col: col, val: val})
}

// MulVec computes dst = A x.
func (s *System) MulVec(dst, x []float64) {
	for i := 0; i < s.N; i++ {
		var sum float64
		for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
			sum += s.Vals[k] * x[s.Cols[k]]
		}
		dst[i] = sum
	}
}

// At returns A[i][j].
func (s *System) At(i, j int) float64 {
	for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
		if s.Cols[k] == j {
			return s.Vals[k]
		}
	}
	return 0
}
