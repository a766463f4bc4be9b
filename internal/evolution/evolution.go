// Package evolution implements the per-regime evolutionary generation step
// (C9, spec §4.9): bootstrap, elitism, adaptive exploration, mutation,
// crossover, ML-guided remediation, and champion bookkeeping.
package evolution

import (
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/cmaes"
	"github.com/sawpanic/amm-discovery/internal/density"
	"github.com/sawpanic/amm-discovery/internal/evaluator"
	"github.com/sawpanic/amm-discovery/internal/families"
	"github.com/sawpanic/amm-discovery/internal/features"
	"github.com/sawpanic/amm-discovery/internal/mapelites"
	"github.com/sawpanic/amm-discovery/internal/pricepath"
	"github.com/sawpanic/amm-discovery/internal/rng"
	"github.com/sawpanic/amm-discovery/internal/scoring"
)

// cmaesSampleProb is the per-child probability of drawing a CMA-ES sample
// instead of mutating the parent, when a CMAES optimizer is wired in.
const cmaesSampleProb = 0.2

// crossoverProb is the per-child probability of blending bins with a second
// elite parent via one of the three crossover operators.
const crossoverProb = 0.3

// RegimeBounds caps the elite fraction and the adaptive exploration rate
// generation() clips into for one regime. Defaults match the spec's
// fixed EliteFraction/ExplorationRate constants and the [0.14, 0.42] clip;
// internal/config.TuningConfig lets an operator widen or narrow these per
// regime via SetRegimeBounds.
type RegimeBounds struct {
	EliteFraction    float64
	ExplorationFloor float64
	ExplorationCeil  float64
}

var defaultBounds = RegimeBounds{
	EliteFraction:    candidate.EliteFraction,
	ExplorationFloor: 0.14,
	ExplorationCeil:  0.42,
}

var (
	boundsMu     sync.RWMutex
	regimeBounds = map[candidate.Regime]RegimeBounds{}
)

// SetRegimeBounds installs the tuning bounds generation() uses for regime.
// Passing a zero-value RegimeBounds is rejected; callers that want the
// built-in defaults back should call ResetRegimeBounds instead.
func SetRegimeBounds(regime candidate.Regime, bounds RegimeBounds) {
	if bounds == (RegimeBounds{}) {
		return
	}
	boundsMu.Lock()
	defer boundsMu.Unlock()
	regimeBounds[regime] = bounds
}

// ResetRegimeBounds clears any override, restoring the built-in defaults
// for every regime.
func ResetRegimeBounds() {
	boundsMu.Lock()
	defer boundsMu.Unlock()
	regimeBounds = map[candidate.Regime]RegimeBounds{}
}

func boundsFor(regime candidate.Regime) RegimeBounds {
	boundsMu.RLock()
	defer boundsMu.RUnlock()
	if b, ok := regimeBounds[regime]; ok {
		return b
	}
	return defaultBounds
}

// PathFactory builds a fresh stochastic price path for one simulation run.
// The default (used by Step) dispatches on the engine's four named regimes;
// the regime mapper (C12) supplies a factory bound to an arbitrary
// off-lattice RegimeVector instead.
type PathFactory func(rng.Source) pricepath.Path

func defaultPathFactory(regime candidate.Regime) PathFactory {
	return func(src rng.Source) pricepath.Path {
		return pricepath.NewPathForRegime(src, regime)
	}
}

// StepResult bundles the new population state and what happened during the
// step, for the engine loop (C13) to fold into EngineState.
type StepResult struct {
	Population *candidate.PopulationState
	Promoted   []candidate.Candidate
	Events     []candidate.Event
}

// StepOptions supplies optional C10/C11 collaborators for one Step call. A
// nil field degrades to the call's plain spec §4.9 behavior: Grid omitted
// means plain elite round-robin parent selection and no quality-diversity
// bookkeeping; CMAES omitted means children come from mutation/crossover
// alone.
type StepOptions struct {
	Grid  *mapelites.Grid
	CMAES *cmaes.State
}

// Step runs one evolutionary generation for regime, following spec §4.9's
// eleven-step procedure (archive promotion, step 11, is the engine loop's
// responsibility and is not performed here).
func Step(src rng.Source, regime candidate.Regime, pop *candidate.PopulationState, rec *scoring.Recommendation) StepResult {
	return StepWithOptions(src, regime, defaultPathFactory(regime), pop, rec, StepOptions{})
}

// StepRegimeWithOptions is Step generalized over StepOptions for the
// engine's own named regimes, sparing the engine loop (C13) from having to
// know about PathFactory at all.
func StepRegimeWithOptions(src rng.Source, regime candidate.Regime, pop *candidate.PopulationState, rec *scoring.Recommendation, opts StepOptions) StepResult {
	return StepWithOptions(src, regime, defaultPathFactory(regime), pop, rec, opts)
}

// StepWithPathFactory is Step generalized to an arbitrary path source,
// letting the regime mapper (C12) evolve a population under a RegimeVector
// that doesn't correspond to one of the four named engine regimes.
func StepWithPathFactory(src rng.Source, regime candidate.Regime, pathFactory PathFactory, pop *candidate.PopulationState, rec *scoring.Recommendation) StepResult {
	return StepWithOptions(src, regime, pathFactory, pop, rec, StepOptions{})
}

// StepWithOptions is Step generalized over both the path source and the
// optional C10 (CMA-ES) / C11 (MAP-Elites) collaborators. The engine loop
// (C13) is the only caller that wires both in, since it is the only
// component that owns per-regime, cross-tick CMA-ES/MAP-Elites state.
func StepWithOptions(src rng.Source, regime candidate.Regime, pathFactory PathFactory, pop *candidate.PopulationState, rec *scoring.Recommendation, opts StepOptions) StepResult {
	var events []candidate.Event
	prevBest := math.Inf(1)
	if pop.Champion != nil {
		prevBest = pop.Champion.Score
	}

	var survivors []candidate.Candidate
	if len(pop.Candidates) == 0 {
		survivors = bootstrap(src, regime, pathFactory, rec)
	} else {
		survivors = generation(src, regime, pathFactory, pop.Candidates, rec, opts)
	}

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Score < survivors[j].Score })
	if len(survivors) > candidate.PopulationSize {
		survivors = survivors[:candidate.PopulationSize]
	}

	newPop := &candidate.PopulationState{
		Regime:          regime,
		Candidates:      survivors,
		MetricChampions: cloneChampions(pop.MetricChampions),
		Generation:      pop.Generation + 1,
		EvaluationTotal: pop.EvaluationTotal + int64(len(survivors)),
		ArchiveBuffer:   append([]candidate.Candidate(nil), pop.ArchiveBuffer...),
	}

	if len(survivors) > 0 {
		best := survivors[0]
		if pop.Champion == nil || best.Score < pop.Champion.Score {
			champ := best.Clone()
			newPop.Champion = &champ
			events = append(events, newEvent(candidate.EventChampionReplaced, regime, map[string]interface{}{
				"candidate_id": champ.ID,
				"score":        champ.Score,
			}))
		} else {
			champ := pop.Champion.Clone()
			newPop.Champion = &champ
		}
		updateMetricChampions(newPop, survivors)
		if isFrontierEntry(newPop, best) {
			events = append(events, newEvent(candidate.EventFamilyFrontierEntry, regime, map[string]interface{}{
				"candidate_id": best.ID,
				"family_id":    best.FamilyID,
			}))
		}

		// Spec §5 ordering: update champions, then update MAP-Elites.
		if opts.Grid != nil {
			for _, c := range survivors {
				opts.Grid.Insert(c)
			}
			newPop.GridOccupied = opts.Grid.Occupied()
			newPop.GridCoverage = opts.Grid.Coverage()
		}
	}

	if newPop.Champion != nil && math.Abs(newPop.Champion.Score-prevBest) < 0.001 {
		events = append(events, newEvent(candidate.EventConvergencePlateau, regime, nil))
	}
	events = append(events, newEvent(candidate.EventGenerationComplete, regime, map[string]interface{}{
		"generation": newPop.Generation,
	}))
	events = append(events, newEvent(candidate.EventFamilyRegimeDominance, regime, map[string]interface{}{
		"family_counts": familyCounts(survivors),
	}))

	return StepResult{Population: newPop, Events: events}
}

func newEvent(kind candidate.EventKind, regime candidate.Regime, detail map[string]interface{}) candidate.Event {
	return candidate.Event{Kind: kind, Regime: regime, Detail: detail}
}

// bootstrap implements spec §4.9 step 1: sample POPULATION_SIZE random
// candidates, evaluate, validate, keep the valid ones.
func bootstrap(src rng.Source, regime candidate.Regime, pathFactory PathFactory, rec *scoring.Recommendation) []candidate.Candidate {
	out := make([]candidate.Candidate, 0, candidate.PopulationSize)
	for i := 0; i < candidate.PopulationSize; i++ {
		fam := pickFamily(src, rec)
		c, ok := buildCandidate(src, regime, pathFactory, fam, fam.SampleParams(src), 0, candidate.SourceGlobal)
		if ok {
			out = append(out, c)
		}
	}
	return out
}

// generation implements spec §4.9 steps 2-7.
func generation(src rng.Source, regime candidate.Regime, pathFactory PathFactory, current []candidate.Candidate, rec *scoring.Recommendation, opts StepOptions) []candidate.Candidate {
	sorted := append([]candidate.Candidate(nil), current...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	bounds := boundsFor(regime)
	eliteCount := maxInt(2, int(float64(candidate.PopulationSize)*bounds.EliteFraction))
	if eliteCount > len(sorted) {
		eliteCount = len(sorted)
	}
	elites := sorted[:eliteCount]

	championCoverage := 0.0
	if len(sorted) > 0 {
		norm := features.Normalize(sorted[0].Metrics, sorted[0].Stability)
		championCoverage = features.SpiderCoverage(norm)
	}
	rate := clip(candidate.ExplorationRate+(0.58-championCoverage)*0.35, bounds.ExplorationFloor, bounds.ExplorationCeil)
	numChildren := candidate.PopulationSize - int(float64(candidate.PopulationSize)*rate)

	mlActive := rec != nil && rec.Confidence >= 0.2 && len(rec.WeakestAxes) > 0

	children := make([]candidate.Candidate, 0, numChildren)
	for i := 0; i < numChildren; i++ {
		parent := selectParent(src, elites, i, opts.Grid)
		mate := elites[(i+1)%len(elites)]
		child := spawnChild(src, regime, pathFactory, parent, mate, rec, mlActive, opts.CMAES)
		children = append(children, child)
	}

	survivors := append([]candidate.Candidate(nil), elites...)
	survivors = append(survivors, children...)

	// Step 6: fill remaining slots with fresh random candidates.
	for len(survivors) < candidate.PopulationSize {
		fam := pickFamily(src, rec)
		c, ok := buildCandidate(src, regime, pathFactory, fam, fam.SampleParams(src), elites[0].Generation+1, candidate.SourceGlobal)
		if ok {
			survivors = append(survivors, c)
		} else {
			break
		}
	}

	valid := survivors[:0]
	for _, c := range survivors {
		if candidate.ValidateBins(c.Bins) {
			valid = append(valid, c)
		}
	}

	if opts.CMAES != nil {
		updateCMAES(opts.CMAES, valid)
	}
	return valid
}

// selectParent implements spec §4.11's MAP-Elites-weighted parent sampling
// when a grid is wired in and occupied, falling back to plain elite
// round-robin otherwise (an empty grid, or no grid at all).
func selectParent(src rng.Source, elites []candidate.Candidate, i int, grid *mapelites.Grid) candidate.Candidate {
	if grid != nil {
		if c, ok := grid.SelectParent(src); ok {
			return c
		}
	}
	return elites[i%len(elites)]
}

// updateCMAES folds one generation's survivors back into cm, compressing
// each candidate's bins to cm's reduced dimensionality and ranking by score
// (lower is better, matching cm's own fitness convention).
func updateCMAES(cm *cmaes.State, survivors []candidate.Candidate) {
	if len(survivors) < cm.Mu {
		return
	}
	ranked := make([]cmaes.RankedSolution, len(survivors))
	for i, c := range survivors {
		ranked[i] = cmaes.RankedSolution{X: cmaes.Compress(c.Bins, cm.N), Fitness: c.Score}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Fitness < ranked[j].Fitness })
	cm.Update(ranked)
}

// spawnChild implements spec §4.9 steps 4-5 for a single child: CMA-ES may
// supply the sample outright (C10); otherwise a family switch, parameter
// mutation/crossover with mate, and bin-level mutation/crossover with mate
// produce the child, with ML-guided remediation applied last.
func spawnChild(src rng.Source, regime candidate.Regime, pathFactory PathFactory, parent, mate candidate.Candidate, rec *scoring.Recommendation, mlActive bool, cm *cmaes.State) candidate.Candidate {
	if cm != nil && src.Uniform() < cmaesSampleProb {
		sample := cm.Sample(src)[0]
		bins := cmaes.Expand(sample)
		if c, ok := buildCandidateFromBins(src, regime, pathFactory, parent.FamilyID, parent.FamilyParams, bins, parent.Generation+1, candidate.SourceGlobal); ok {
			return c
		}
	}

	fam := families.Get(parent.FamilyID)
	if fam == nil {
		fam = families.All()[0]
	}
	params := parent.FamilyParams
	switched := false

	if mlActive && src.Uniform() < 0.35 {
		newFam := pickWeightedFamily(src, rec.FamilyWeights)
		if newFam != nil && newFam.ID() != fam.ID() {
			fam = newFam
			params = fam.SampleParams(src)
			switched = true
		}
	}
	if !switched {
		if mate.FamilyID == fam.ID() && len(mate.FamilyParams) > 0 && src.Uniform() < 0.4 {
			params = CrossoverParams(src, params, mate.FamilyParams, fam.ParamRanges(), 0.5)
		} else {
			params = fam.MutateParams(src, params)
		}
	}

	bins := fam.GenerateBins(params)
	if switched {
		bins = blend(bins, parent.Bins, 0.3)
	} else {
		bins = MutateBins(src, bins, 0.12)
		if len(mate.Bins) == len(bins) && src.Uniform() < crossoverProb {
			bins = crossBins(src, bins, mate.Bins)
		}
	}

	if mlActive && src.Uniform() < 0.65 {
		bins = blend(bins, parent.Bins, 0.35)
		intensity := 0.08 + 0.14*rec.Confidence
		ampIntensity := 0.03 + 0.05*rec.Confidence
		bins = remediateWeaknesses(src, bins, rec.WeakestAxes, intensity)
		bins = amplifyStrengths(src, bins, rec.WeakestAxes, ampIntensity)
	}

	c, ok := buildCandidateFromBins(src, regime, pathFactory, fam.ID(), params, bins, parent.Generation+1, candidate.SourceGlobal)
	if !ok {
		return parent
	}
	return c
}

// crossBins picks one of the three bin-level crossover operators uniformly.
func crossBins(src rng.Source, a, b []float64) []float64 {
	switch int(src.Uniform() * 3) {
	case 0:
		return CrossoverUniform(src, a, b)
	case 1:
		return CrossoverSegment(src, a, b)
	default:
		return CrossoverArithmetic(a, b, 0.3)
	}
}

func pickFamily(src rng.Source, rec *scoring.Recommendation) families.Family {
	all := families.All()
	if rec == nil || len(rec.FamilyWeights) == 0 {
		return all[int(src.Uniform()*float64(len(all)))%len(all)]
	}
	f := pickWeightedFamily(src, rec.FamilyWeights)
	if f == nil {
		return all[0]
	}
	return f
}

func pickWeightedFamily(src rng.Source, weights map[candidate.FamilyID]float64) families.Family {
	if len(weights) == 0 {
		return nil
	}
	type wf struct {
		id candidate.FamilyID
		w  float64
	}
	ordered := make([]wf, 0, len(weights))
	total := 0.0
	for id, w := range weights {
		if w <= 0 {
			continue
		}
		ordered = append(ordered, wf{id: id, w: w})
		total += w
	}
	if total <= 0 {
		return nil
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })
	r := src.Uniform() * total
	acc := 0.0
	for _, o := range ordered {
		acc += o.w
		if r <= acc {
			return families.Get(o.id)
		}
	}
	return families.Get(ordered[len(ordered)-1].id)
}

func buildCandidate(src rng.Source, regime candidate.Regime, pathFactory PathFactory, fam families.Family, params map[string]float64, generation int, source candidate.Source) (candidate.Candidate, bool) {
	bins := fam.GenerateBins(params)
	return buildCandidateFromBins(src, regime, pathFactory, fam.ID(), params, bins, generation, source)
}

func buildCandidateFromBins(src rng.Source, regime candidate.Regime, pathFactory PathFactory, famID candidate.FamilyID, params map[string]float64, bins []float64, generation int, source candidate.Source) (candidate.Candidate, bool) {
	if !candidate.ValidateBins(bins) {
		return candidate.Candidate{}, false
	}
	res := evaluator.EvaluateWithParams(src, bins, pathFactory, evaluator.DefaultOptions())
	feats := features.Compute(bins)
	sc := scoring.Score(scoring.Input{Metrics: res.Metrics, Stability: res.Stability}, scoring.ModeSpiderComposite)

	c := candidate.Candidate{
		ID:           uuid.NewString(),
		Generation:   generation,
		Regime:       regime,
		Bins:         bins,
		FamilyID:     famID,
		FamilyParams: params,
		Metrics:      res.Metrics,
		Features:     feats,
		Stability:    res.Stability,
		Score:        sc,
		PoolType:     candidate.PoolTwoAsset,
		AssetCount:   2,
		Source:       source,
	}
	return c, true
}

func updateMetricChampions(pop *candidate.PopulationState, survivors []candidate.Candidate) {
	for _, c := range survivors {
		norm := features.Normalize(c.Metrics, c.Stability)
		consider := map[candidate.MetricChampionKey]float64{
			candidate.ChampionFees:        norm.Fees,
			candidate.ChampionUtilization: norm.Utilization,
			candidate.ChampionLPValue:     norm.LPValue,
			candidate.ChampionLowSlippage: norm.LowSlippage,
			candidate.ChampionLowArbLeak:  norm.LowArbLeak,
			candidate.ChampionLowDrawdown: norm.LowDrawdown,
			candidate.ChampionStability:   norm.Stability,
		}
		for key, val := range consider {
			cur, ok := pop.MetricChampions[key]
			if !ok || cur == nil {
				cc := c.Clone()
				pop.MetricChampions[key] = &cc
				continue
			}
			curNorm := features.Normalize(cur.Metrics, cur.Stability)
			curVal := axisValue(curNorm, key)
			if val > curVal {
				cc := c.Clone()
				pop.MetricChampions[key] = &cc
			}
		}
	}
}

func axisValue(n features.NormalizedMetrics, key candidate.MetricChampionKey) float64 {
	switch key {
	case candidate.ChampionFees:
		return n.Fees
	case candidate.ChampionUtilization:
		return n.Utilization
	case candidate.ChampionLPValue:
		return n.LPValue
	case candidate.ChampionLowSlippage:
		return n.LowSlippage
	case candidate.ChampionLowArbLeak:
		return n.LowArbLeak
	case candidate.ChampionLowDrawdown:
		return n.LowDrawdown
	case candidate.ChampionStability:
		return n.Stability
	default:
		return 0
	}
}

func cloneChampions(m map[candidate.MetricChampionKey]*candidate.Candidate) map[candidate.MetricChampionKey]*candidate.Candidate {
	out := make(map[candidate.MetricChampionKey]*candidate.Candidate, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		cc := v.Clone()
		out[k] = &cc
	}
	return out
}

func isFrontierEntry(pop *candidate.PopulationState, best candidate.Candidate) bool {
	for _, champ := range pop.MetricChampions {
		if champ != nil && champ.ID == best.ID {
			return true
		}
	}
	return false
}

func familyCounts(cs []candidate.Candidate) map[string]int {
	out := map[string]int{}
	for _, c := range cs {
		out[string(c.FamilyID)]++
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func blend(a, b []float64, ratio float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i]*(1-ratio) + b[i]*ratio
	}
	return clampAndNormalize(out)
}

func clampAndNormalize(bins []float64) []float64 {
	out := make([]float64, len(bins))
	for i, b := range bins {
		if b < 0 {
			b = 0
		}
		out[i] = b
	}
	return density.Normalize(out)
}
