package solver

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	errBandTooWide = errors.New("band storage exceeds limit")
	errNotSPD      = errors.New("pressure system is not positive definite")
)

// bandCholesky is the Cholesky factor of -A stored as a symmetric band
// matrix, with rows in reverse Cuthill-McKee order.
type bandCholesky struct {
	perm      []int // perm[new] = old
	bandwidth int
	chol      mat.BandCholesky
}

// factorBand orders the rows of s, checks that n*(k+1) band entries fit in
// maxEntries and factorises. On a lattice the ordering keeps k near the
// smallest cross-section, so storage grows with n*k instead of n*n.
func factorBand(s *System, maxEntries int) (*bandCholesky, error) {
	n := s.N
	perm := reverseCuthillMcKee(s)
	pos := make([]int, n)
	for k, old := range perm {
		pos[old] = k
	}
	kb := s.Bandwidth(pos)
	if entries := n * (kb + 1); maxEntries > 0 && entries > maxEntries {
		return nil, fmt.Errorf("%d rows with bandwidth %d need %d entries, limit %d: %w",
			n, kb, entries, maxEntries, errBandTooWide)
	}

	neg := mat.NewSymBandDense(n, kb, nil)
	for i := 0; i < n; i++ {
		for e := s.RowPtr[i]; e < s.RowPtr[i+1]; e++ {
			a, b := pos[i], pos[s.Cols[e]]
			if a <= b {
				neg.SetSymBand(a, b, -s.Vals[e])
			}
		}
	}
	f := &bandCholesky{perm: perm, bandwidth: kb}
	if !f.chol.Factorize(neg) {
		return nil, errNotSPD
	}
	return f, nil
}

// solve returns x with A x = rhs.
func (f *bandCholesky) solve(rhs []float64) ([]float64, error) {
	n := len(f.perm)
	b := make([]float64, n)
	for k, old := range f.perm {
		b[k] = -rhs[old]
	}
	var y mat.VecDense
	if err := f.chol.SolveVecTo(&y, mat.NewVecDense(n, b)); !acceptable(err) {
		return nil, fmt.Errorf("band cholesky solve: %w", err)
	}
	x := make([]float64, n)
	for k, old := range f.perm {
		x[old] = y.AtVec(k)
	}
	return x, nil
}

// reverseCuthillMcKee returns a row order of s as perm[new] = old. Each
// connected block starts from its lowest-degree row and visits neighbours
// by ascending degree.
func reverseCuthillMcKee(s *System) []int {
	n := s.N
	degree := make([]int, n)
	for i := 0; i < n; i++ {
		degree[i] = s.RowPtr[i+1] - s.RowPtr[i]
	}
	byDegree := func(ids []int) {
		sort.SliceStable(ids, func(a, b int) bool { return degree[ids[a]] < degree[ids[b]] })
	}

	roots := make([]int, n)
	for i := range roots {
		roots[i] = i
	}
	byDegree(roots)

	seen := make([]bool, n)
	order := make([]int, 0, n)
	var next []int
	for _, root := range roots {
		if seen[root] {
			continue
		}
		seen[root] = true
		order = append(order, root)
		for head := len(order) - 1; head < len(order); head++ {
			i := order[head]
			next = next[:0]
			for e := s.RowPtr[i]; e < s.RowPtr[i+1]; e++ {
				if j := s.Cols[e]; !seen[j] {
					seen[j] = true
					next = append(next, j)
				}
			}
			byDegree(next)
			order = append(order, next...)
		}
	}
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
