// Package scoring implements the composite scorer and ML-guided
// recommender (C8, spec §4.8). Style follows the teacher's scoring package
// (application/pipeline/scoring.go): a small struct carrying configuration,
// pure Score/Recommend methods, and zerolog-friendly structured output.
package scoring

import (
	"math"
	"sort"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/features"
)

// Mode selects which scoring formula Score evaluates. ModeSpiderComposite
// is the engine's only code path in the evolution step; ModeWeightedSum is
// selected only by passing it to Score directly, and no config field
// selects it (see DESIGN.md's "scoring mode" open-question resolution).
type Mode string

const (
	ModeSpiderComposite Mode = "spider-composite"
	ModeWeightedSum     Mode = "weighted-sum"
)

// Input bundles everything Score needs beyond the candidate's own metrics.
type Input struct {
	Metrics   candidate.Metrics
	Stability float64
}

// Score computes spec §4.8's composite score (lower is better) in the given
// mode.
func Score(in Input, mode Mode) float64 {
	norm := features.Normalize(in.Metrics, in.Stability)
	values := norm.Values()
	coverage := features.SpiderCoverage(norm)
	weakest := minOf(values)
	mean := meanOf(values)
	strongest := maxOf(values)
	axisImbalance := stdDev(values)
	specialistEdge := math.Max(0, strongest-mean)

	if mode == ModeWeightedSum {
		return weightedSum(in)
	}

	score := -1.6*in.Metrics.TotalFees + 1.0*in.Metrics.TotalSlippage + 1.3*in.Metrics.ArbLeakage -
		2.2*in.Metrics.LiquidityUtilization - 4.2*(in.Metrics.LPValueVsHodl-1) +
		1.9*in.Metrics.MaxDrawdown + 0.9*in.Metrics.VolatilityOfReturns + 1.6*in.Stability -
		6.5*coverage + 5.5*(1-weakest) + 3.0*axisImbalance -
		1.4*specialistEdge
	return score
}

// weightedSum is the simpler legacy form: a direct linear combination of
// normalized axes with equal weight, never used by the evolution step.
func weightedSum(in Input) float64 {
	norm := features.Normalize(in.Metrics, in.Stability)
	values := norm.Values()
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return -sum / float64(len(values))
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	m := meanOf(xs)
	v := 0.0
	for _, x := range xs {
		d := x - m
		v += d * d
	}
	v /= float64(len(xs))
	return math.Sqrt(v)
}

// Recommendation is the output of the recommender: which axes are weakest
// across the pool, how much weight to give each family, and a confidence
// derived from how much of the pool qualified.
type Recommendation struct {
	WeakestAxes        []string
	FamilyWeights      map[candidate.FamilyID]float64
	Confidence         float64
	TargetCoverage     float64
	PrioritizedFamilies []candidate.FamilyID
}

// minPoolSize is the spec §4.8 floor below which no recommendation is
// produced.
const minPoolSize = 12

// topFraction is the spec's "top 20% by spider coverage" retention window.
const topFraction = 0.20

// minSubsetSize is the floor on the retained top-coverage subset.
const minSubsetSize = 4

// Recommend implements spec §4.8's recommender. It returns a zero
// Recommendation and false when the pool is too small or the top-coverage subset is too thin.
func Recommend(pool []candidate.Candidate) (Recommendation, bool) {
	if len(pool) < minPoolSize {
		return Recommendation{}, false
	}

	type scored = struct {
		c        candidate.Candidate
		coverage float64
		norm     features.NormalizedMetrics
	}
	scoredPool := make([]scored, len(pool))
	for i, c := range pool {
		norm := features.Normalize(c.Metrics, c.Stability)
		scoredPool[i] = scored{c: c, coverage: features.SpiderCoverage(norm), norm: norm}
	}
	sort.Slice(scoredPool, func(i, j int) bool { return scoredPool[i].coverage > scoredPool[j].coverage })

	topN := int(float64(len(scoredPool)) * topFraction)
	if topN < minSubsetSize {
		topN = minSubsetSize
	}
	if topN > len(scoredPool) {
		topN = len(scoredPool)
	}
	subset := scoredPool[:topN]
	if len(subset) < minSubsetSize {
		return Recommendation{}, false
	}

	axisNames := features.Names()
	axisMeans := make([]float64, len(axisNames))
	for _, s := range subset {
		vals := s.norm.Values()
		for i, v := range vals {
			axisMeans[i] += v
		}
	}
	for i := range axisMeans {
		axisMeans[i] /= float64(len(subset))
	}

	type axisMean struct {
		name string
		mean float64
	}
	axisRank := make([]axisMean, len(axisNames))
	for i, name := range axisNames {
		axisRank[i] = axisMean{name: name, mean: axisMeans[i]}
	}
	sort.Slice(axisRank, func(i, j int) bool { return axisRank[i].mean < axisRank[j].mean })

	weakAxisCount := 3
	if weakAxisCount > len(axisRank) {
		weakAxisCount = len(axisRank)
	}
	weakestAxes := make([]string, weakAxisCount)
	for i := 0; i < weakAxisCount; i++ {
		weakestAxes[i] = axisRank[i].name
	}

	familyWeights, prioritized := computeFamilyWeights(subset, pool, weakestAxes, axisNames)

	return Recommendation{
		WeakestAxes:         weakestAxes,
		FamilyWeights:       familyWeights,
		Confidence:          float64(len(subset)) / float64(len(pool)),
		TargetCoverage:      meanOf(coverages(subset)),
		PrioritizedFamilies: prioritized,
	}, true
}

func coverages(subset []struct {
	c        candidate.Candidate
	coverage float64
	norm     features.NormalizedMetrics
}) []float64 {
	out := make([]float64, len(subset))
	for i, s := range subset {
		out[i] = s.coverage
	}
	return out
}

// computeFamilyWeights implements the per-family
// 0.52*weak_axis_lift + 0.33*avg_coverage + 0.15*(1-presence) formula,
// normalized across the families present in the top-coverage subset.
func computeFamilyWeights(subset []struct {
	c        candidate.Candidate
	coverage float64
	norm     features.NormalizedMetrics
}, fullPool []candidate.Candidate, weakestAxes []string, axisNames []string) (map[candidate.FamilyID]float64, []candidate.FamilyID) {
	weakIdx := make(map[int]bool, len(weakestAxes))
	for _, name := range weakestAxes {
		for i, n := range axisNames {
			if n == name {
				weakIdx[i] = true
			}
		}
	}

	type agg struct {
		weakLiftSum float64
		coverageSum float64
		count       int
	}
	byFamily := make(map[candidate.FamilyID]*agg)
	for _, s := range subset {
		a, ok := byFamily[s.c.FamilyID]
		if !ok {
			a = &agg{}
			byFamily[s.c.FamilyID] = a
		}
		vals := s.norm.Values()
		lift := 0.0
		for idx := range weakIdx {
			lift += vals[idx]
		}
		if len(weakIdx) > 0 {
			lift /= float64(len(weakIdx))
		}
		a.weakLiftSum += lift
		a.coverageSum += s.coverage
		a.count++
	}

	presenceByFamily := make(map[candidate.FamilyID]int)
	for _, c := range fullPool {
		presenceByFamily[c.FamilyID]++
	}

	weights := make(map[candidate.FamilyID]float64, len(byFamily))
	total := 0.0
	for fam, a := range byFamily {
		avgLift := a.weakLiftSum / float64(a.count)
		avgCoverage := a.coverageSum / float64(a.count)
		presence := float64(presenceByFamily[fam]) / float64(len(fullPool))
		w := 0.52*avgLift + 0.33*avgCoverage + 0.15*(1-presence)
		weights[fam] = w
		total += w
	}
	if total > 0 {
		for fam := range weights {
			weights[fam] /= total
		}
	}

	type famScore struct {
		id    candidate.FamilyID
		score float64
	}
	ranked := make([]famScore, 0, len(weights))
	for fam, w := range weights {
		ranked = append(ranked, famScore{id: fam, score: w})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	top := 2
	if top > len(ranked) {
		top = len(ranked)
	}
	prioritized := make([]candidate.FamilyID, top)
	for i := 0; i < top; i++ {
		prioritized[i] = ranked[i].id
	}
	return weights, prioritized
}
