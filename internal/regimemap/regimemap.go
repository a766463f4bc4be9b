// Package regimemap implements the regime-map sampler (C12, spec §4.12): a
// grid of regime parameter vectors, each evolved independently via the
// evolution step, with inverse-distance k-NN interpolation between grid
// points for off-lattice queries.
package regimemap

import (
	"context"
	"math"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/evolution"
	"github.com/sawpanic/amm-discovery/internal/pricepath"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

// RegimeVector is a point in the regime parameter space.
type RegimeVector struct {
	Volatility        float64 `json:"volatility"`
	JumpIntensity      float64 `json:"jump_intensity"`
	JumpMean          float64 `json:"jump_mean"`
	JumpStd           float64 `json:"jump_std"`
	MeanReversion     float64 `json:"mean_reversion"`
	ArbResponsiveness float64 `json:"arb_responsiveness"`
}

// Bounds declares the inclusive sampling range for each RegimeVector axis.
var Bounds = struct {
	Volatility, JumpIntensity, JumpMean, JumpStd, MeanReversion, ArbResponsiveness [2]float64
}{
	Volatility:        [2]float64{0.2, 1.2},
	JumpIntensity:      [2]float64{0, 8},
	JumpMean:          [2]float64{-0.1, 0.1},
	JumpStd:           [2]float64{0, 0.5},
	MeanReversion:     [2]float64{0, 3},
	ArbResponsiveness: [2]float64{0.05, 1},
}

func (v RegimeVector) toParams() pricepath.Params {
	return pricepath.Params{
		Sigma:             v.Volatility,
		JumpIntensity:     v.JumpIntensity,
		JumpMean:          v.JumpMean,
		JumpStd:           v.JumpStd,
		MeanReversion:     v.MeanReversion,
		ArbResponsiveness: v.ArbResponsiveness,
	}
}

// GridPoint is one evolved champion at a specific RegimeVector.
type GridPoint struct {
	Vector         RegimeVector
	ChampionBins   []float64
	Features       candidate.Features
	ConvergenceDelta float64
	Converged      bool
}

const (
	maxGenerations = 10
	convergeThreshold = 0.002
	patience       = 3
)

// EvolveRegimePoint runs the evolution step (C9, synthetic regime-shift-
// free "custom" regime driven by vector v's own parameters) up to
// maxGenerations, stopping early once the champion's improvement falls
// below convergeThreshold for patience consecutive generations.
func EvolveRegimePoint(src rng.Source, v RegimeVector) GridPoint {
	pathFactory := func(s rng.Source) pricepath.Path {
		return pricepath.NewFastPath(v.toParams())
	}

	pop := candidate.NewPopulationState(candidate.RegimeLowVol)
	prevScore := math.Inf(1)
	plateauCount := 0
	converged := false
	lastDelta := math.Inf(1)

	for gen := 0; gen < maxGenerations; gen++ {
		res := evolution.StepWithPathFactory(src, pop.Regime, pathFactory, pop, nil)
		pop = res.Population
		if pop.Champion == nil {
			continue
		}
		delta := math.Abs(pop.Champion.Score - prevScore)
		lastDelta = delta
		if delta < convergeThreshold {
			plateauCount++
			if plateauCount >= patience {
				converged = true
				break
			}
		} else {
			plateauCount = 0
		}
		prevScore = pop.Champion.Score
	}

	var bins []float64
	var feats candidate.Features
	if pop.Champion != nil {
		bins = append([]float64(nil), pop.Champion.Bins...)
		feats = pop.Champion.Features
	}

	return GridPoint{
		Vector:           v,
		ChampionBins:     bins,
		Features:         feats,
		ConvergenceDelta: lastDelta,
		Converged:        converged,
	}
}

// Grid holds evolved champions over a lattice of RegimeVectors.
type Grid struct {
	Points []GridPoint
}

// BuildGrid evolves one GridPoint per vector in vectors, in order.
func BuildGrid(src rng.Source, vectors []RegimeVector) *Grid {
	points := make([]GridPoint, len(vectors))
	for i, v := range vectors {
		points[i] = EvolveRegimePoint(src, v)
	}
	return &Grid{Points: points}
}

// Source names how an EstimateRegimeGeometry result was produced.
type Source string

const (
	SourceExact         Source = "exact"
	SourceInterpolated  Source = "interpolated"
)

// Estimate is the result of estimate_regime_geometry(target).
type Estimate struct {
	Bins         []float64          `json:"bins"`
	Features     candidate.Features `json:"features"`
	Source       Source             `json:"source"`
	Contributors []RegimeVector     `json:"contributors"`
}

const defaultK = 4

// EstimateRegimeGeometry returns the exact stored champion for target if a
// grid point matches it closely, else an inverse-distance k-NN blend of
// the nearest champions' bins and features, renormalized.
func (g *Grid) EstimateRegimeGeometry(target RegimeVector) Estimate {
	for _, p := range g.Points {
		if distance(p.Vector, target) < 1e-9 {
			return Estimate{Bins: append([]float64(nil), p.ChampionBins...), Features: p.Features, Source: SourceExact, Contributors: []RegimeVector{p.Vector}}
		}
	}

	type neighbor = struct {
		point GridPoint
		dist  float64
	}
	neighbors := make([]neighbor, 0, len(g.Points))
	for _, p := range g.Points {
		if len(p.ChampionBins) == 0 {
			continue
		}
		neighbors = append(neighbors, neighbor{point: p, dist: distance(p.Vector, target)})
	}
	sortByDist(neighbors)

	k := defaultK
	if k > len(neighbors) {
		k = len(neighbors)
	}
	if k == 0 {
		return Estimate{Source: SourceInterpolated}
	}
	top := neighbors[:k]

	weights := make([]float64, k)
	total := 0.0
	for i, nb := range top {
		w := 1.0 / (nb.dist + 1e-9)
		weights[i] = w
		total += w
	}

	bins := make([]float64, candidate.NumBins)
	contributors := make([]RegimeVector, k)
	for i, nb := range top {
		w := weights[i] / total
		for b := range bins {
			bins[b] += w * nb.point.ChampionBins[b]
		}
		contributors[i] = nb.point.Vector
	}
	bins = normalize(bins)

	feats := blendFeatures(top, weights, total)

	return Estimate{Bins: bins, Features: feats, Source: SourceInterpolated, Contributors: contributors}
}

func blendFeatures(top []struct {
	point GridPoint
	dist  float64
}, weights []float64, total float64) candidate.Features {
	var out candidate.Features
	for i, nb := range top {
		w := weights[i] / total
		out.Curvature += w * nb.point.Features.Curvature
		out.CurvatureGradient += w * nb.point.Features.CurvatureGradient
		out.Entropy += w * nb.point.Features.Entropy
		out.Symmetry += w * nb.point.Features.Symmetry
		out.TailDensityRatio += w * nb.point.Features.TailDensityRatio
		out.PeakConcentration += w * nb.point.Features.PeakConcentration
		out.ConcentrationWidth += w * nb.point.Features.ConcentrationWidth
	}
	return out
}

func sortByDist(ns []struct {
	point GridPoint
	dist  float64
}) {
	for i := 1; i < len(ns); i++ {
		j := i
		for j > 0 && ns[j-1].dist > ns[j].dist {
			ns[j-1], ns[j] = ns[j], ns[j-1]
			j--
		}
	}
}

func distance(a, b RegimeVector) float64 {
	d := a.Volatility - b.Volatility
	sum := d * d
	d = a.JumpIntensity - b.JumpIntensity
	sum += d * d
	d = a.JumpMean - b.JumpMean
	sum += d * d
	d = a.JumpStd - b.JumpStd
	sum += d * d
	d = a.MeanReversion - b.MeanReversion
	sum += d * d
	d = a.ArbResponsiveness - b.ArbResponsiveness
	sum += d * d
	return math.Sqrt(sum)
}

func normalize(bins []float64) []float64 {
	sum := 0.0
	for _, b := range bins {
		sum += b
	}
	if sum <= 0 {
		uniform := candidate.TotalLiquidity / float64(len(bins))
		for i := range bins {
			bins[i] = uniform
		}
		return bins
	}
	scale := candidate.TotalLiquidity / sum
	for i := range bins {
		bins[i] *= scale
	}
	return bins
}

const (
	coverageRows = 5
	coverageCols = 5
)

// Coverage returns a 5x5 occupancy grid over (volatility, jump_intensity),
// counting how many of g's points fall in each cell.
func (g *Grid) Coverage() [coverageRows][coverageCols]int {
	var grid [coverageRows][coverageCols]int
	for _, p := range g.Points {
		row := bucket(p.Vector.Volatility, Bounds.Volatility[0], Bounds.Volatility[1], coverageRows)
		col := bucket(p.Vector.JumpIntensity, Bounds.JumpIntensity[0], Bounds.JumpIntensity[1], coverageCols)
		grid[row][col]++
	}
	return grid
}

// EstimateRegimeGeometryCached is EstimateRegimeGeometry fronted by an
// optional Redis cache: a cache miss or a nil cache falls through to the
// direct k-NN blend, and a fresh result is written back before returning.
func (g *Grid) EstimateRegimeGeometryCached(ctx context.Context, cache *EstimateCache, target RegimeVector) Estimate {
	if est, ok := cache.Get(ctx, target); ok {
		return est
	}
	est := g.EstimateRegimeGeometry(target)
	cache.Set(ctx, target, est)
	return est
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
