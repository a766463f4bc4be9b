// Package mapelites implements the 2D quality-diversity behavioral archive
// (C11, spec §4.11): a grid indexed by (entropy, peak_concentration) that
// keeps the best-scoring candidate seen in each cell.
package mapelites

import (
	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

const (
	DefaultRows = 12
	DefaultCols = 12

	entropyMin = 2.0
	entropyMax = 6.0
	peakMin    = 1.0
	peakMax    = 20.0

	maxNeighbors = 8
)

// Cell holds the best candidate placed in one grid cell.
type Cell struct {
	Occupied  bool
	Candidate candidate.Candidate
}

// Grid is the MAP-Elites archive.
type Grid struct {
	Rows, Cols int
	cells      [][]Cell
	best       *candidate.Candidate
	occupied   int
}

// New builds an empty grid with the given dimensions.
func New(rows, cols int) *Grid {
	cells := make([][]Cell, rows)
	for i := range cells {
		cells[i] = make([]Cell, cols)
	}
	return &Grid{Rows: rows, Cols: cols, cells: cells}
}

// cellIndex maps (entropy, peak_concentration) onto a grid cell, clamping
// out-of-range values to the edge buckets.
func (g *Grid) cellIndex(entropy, peakConcentration float64) (row, col int) {
	row = bucket(entropy, entropyMin, entropyMax, g.Rows)
	col = bucket(peakConcentration, peakMin, peakMax, g.Cols)
	return
}

func bucket(v, lo, hi float64, n int) int {
	if v <= lo {
		return 0
	}
	if v >= hi {
		return n - 1
	}
	idx := int((v - lo) / (hi - lo) * float64(n))
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// Insert places c in its behavioral cell iff the cell is empty or c's
// score strictly improves the incumbent. Returns true if inserted.
func (g *Grid) Insert(c candidate.Candidate) bool {
	row, col := g.cellIndex(c.Features.Entropy, c.Features.PeakConcentration)
	cell := &g.cells[row][col]
	if !cell.Occupied {
		cell.Occupied = true
		cell.Candidate = c
		g.occupied++
		g.updateBest(c)
		return true
	}
	if c.Score < cell.Candidate.Score {
		cell.Candidate = c
		g.updateBest(c)
		return true
	}
	return false
}

func (g *Grid) updateBest(c candidate.Candidate) {
	if g.best == nil || c.Score < g.best.Score {
		cc := c.Clone()
		g.best = &cc
	}
}

// BestCandidate returns the lowest-score candidate anywhere in the grid.
func (g *Grid) BestCandidate() (candidate.Candidate, bool) {
	if g.best == nil {
		return candidate.Candidate{}, false
	}
	return g.best.Clone(), true
}

// Occupied returns the number of non-empty cells.
func (g *Grid) Occupied() int { return g.occupied }

// Coverage returns occupied / (rows*cols).
func (g *Grid) Coverage() float64 {
	total := g.Rows * g.Cols
	if total == 0 {
		return 0
	}
	return float64(g.occupied) / float64(total)
}

// neighborCount counts occupied cells in the 8-connected neighborhood of
// (row, col).
func (g *Grid) neighborCount(row, col int) int {
	count := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			r, c := row+dr, col+dc
			if r < 0 || r >= g.Rows || c < 0 || c >= g.Cols {
				continue
			}
			if g.cells[r][c].Occupied {
				count++
			}
		}
	}
	return count
}

// SelectParent samples an occupied cell's candidate, weighting
// under-explored cells more heavily: weight = (maxNeighbors -
// neighbor_count + 1).
func (g *Grid) SelectParent(src rng.Source) (candidate.Candidate, bool) {
	type weighted struct {
		c candidate.Candidate
		w float64
	}
	var pool []weighted
	total := 0.0
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			cell := g.cells[r][c]
			if !cell.Occupied {
				continue
			}
			w := float64(maxNeighbors - g.neighborCount(r, c) + 1)
			if w < 1 {
				w = 1
			}
			pool = append(pool, weighted{c: cell.Candidate, w: w})
			total += w
		}
	}
	if len(pool) == 0 {
		return candidate.Candidate{}, false
	}
	r := src.Uniform() * total
	acc := 0.0
	for _, p := range pool {
		acc += p.w
		if r <= acc {
			return p.c, true
		}
	}
	return pool[len(pool)-1].c, true
}
