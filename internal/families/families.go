// Package families implements the invariant liquidity-curve families (C3,
// spec §4.3): pluggable generators that sample parameters, mutate them, and
// turn them into a normalized bin density. The dispatch-by-tag pattern
// mirrors the teacher's regime-weight lookup in regime/weights.go.
package families

import (
	"math"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/density"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

// Family is an invariant liquidity-curve generator. Implementations must be
// pure except for drawing from the supplied rng.Source.
type Family interface {
	ID() candidate.FamilyID
	ParamRanges() map[string]candidate.ParamRange
	SampleParams(src rng.Source) map[string]float64
	MutateParams(src rng.Source, p map[string]float64) map[string]float64
	GenerateBins(p map[string]float64) []float64
}

// registry holds the three built-in families, keyed by ID.
var registry = map[candidate.FamilyID]Family{}

func register(f Family) {
	registry[f.ID()] = f
}

func init() {
	register(piecewiseBands{})
	register(amplifiedHybrid{})
	register(tailShielded{})
}

// Get returns the built-in family for id, or nil if id is unknown (e.g.
// candidate.FamilyCustom, which has no built-in generator — callers must
// supply a Family themselves via a CustomFamily wrapper).
func Get(id candidate.FamilyID) Family {
	return registry[id]
}

// All returns the three built-in families in a stable order. The bootstrap
// step draws each new candidate's family from this list uniformly at random
// (or by recommender weights when a recommendation is available).
func All() []Family {
	return []Family{registry[candidate.FamilyPiecewiseBands], registry[candidate.FamilyAmplifiedHybrid], registry[candidate.FamilyTailShielded]}
}

// Validate runs spec §4.3's validate(candidate): params in range, bin sum
// positive, and the two halves not differing by more than 90% of the total.
func Validate(f Family, params map[string]float64, bins []float64) bool {
	if !candidate.ValidateFamilyParams(params, f.ParamRanges()) {
		return false
	}
	return candidate.ValidateBins(bins)
}

// CustomFamily wraps a user-supplied bin generator as a Family so the
// "custom" family ID (spec §3's family_id enum) is a first-class citizen
// alongside the three built-ins, for experiment/user-designed candidates.
type CustomFamily struct {
	Name      string
	Ranges    map[string]candidate.ParamRange
	Generate  func(p map[string]float64) []float64
}

func (c CustomFamily) ID() candidate.FamilyID { return candidate.FamilyCustom }

func (c CustomFamily) ParamRanges() map[string]candidate.ParamRange { return c.Ranges }

func (c CustomFamily) SampleParams(src rng.Source) map[string]float64 {
	return sampleUniform(src, c.Ranges)
}

func (c CustomFamily) MutateParams(src rng.Source, p map[string]float64) map[string]float64 {
	return mutateGaussian(src, c.Ranges, p)
}

func (c CustomFamily) GenerateBins(p map[string]float64) []float64 {
	if c.Generate == nil {
		return density.Normalize(make([]float64, candidate.NumBins))
	}
	return density.Normalize(c.Generate(p))
}

// sampleUniform draws each parameter uniformly within its declared range.
func sampleUniform(src rng.Source, ranges map[string]candidate.ParamRange) map[string]float64 {
	out := make(map[string]float64, len(ranges))
	for name, r := range ranges {
		out[name] = r.Min + src.Uniform()*(r.Max-r.Min)
	}
	return out
}

// mutationStdFraction is the fraction of a parameter's range used as the
// Gaussian perturbation standard deviation (spec §4.3 "Gaussian perturbation
// per parameter, reflected/clamped to range").
const mutationStdFraction = 0.12

// mutateGaussian perturbs every parameter by a Gaussian draw scaled to its
// range, reflecting back into range at the boundaries rather than clamping
// flat (reflection preserves more of the perturbation's magnitude).
func mutateGaussian(src rng.Source, ranges map[string]candidate.ParamRange, p map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(p))
	for name, v := range p {
		r, ok := ranges[name]
		if !ok {
			out[name] = v
			continue
		}
		std := (r.Max - r.Min) * mutationStdFraction
		nv := v + src.Gaussian()*std
		out[name] = reflectClamp(nv, r.Min, r.Max)
	}
	return out
}

// reflectClamp reflects v back into [lo, hi] if it overshoots, then clamps
// as a final guard against pathological multi-bounce overshoot.
func reflectClamp(v, lo, hi float64) float64 {
	width := hi - lo
	if width <= 0 {
		return lo
	}
	for v < lo || v > hi {
		if v < lo {
			v = lo + (lo - v)
		}
		if v > hi {
			v = hi - (v - hi)
		}
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}

const nBins = candidate.NumBins

// piecewiseBands implements spec §4.3's "piecewise-bands" contract: center
// mass around a skewed center with an exponential shoulder term and a small
// multiplicative noise factor.
type piecewiseBands struct{}

func (piecewiseBands) ID() candidate.FamilyID { return candidate.FamilyPiecewiseBands }

func (piecewiseBands) ParamRanges() map[string]candidate.ParamRange {
	return map[string]candidate.ParamRange{
		"skew":     {Min: -1, Max: 1},
		"shoulder": {Min: 0, Max: 1},
	}
}

func (f piecewiseBands) SampleParams(src rng.Source) map[string]float64 {
	return sampleUniform(src, f.ParamRanges())
}

func (f piecewiseBands) MutateParams(src rng.Source, p map[string]float64) map[string]float64 {
	return mutateGaussian(src, f.ParamRanges(), p)
}

func (f piecewiseBands) GenerateBins(p map[string]float64) []float64 {
	skew := p["skew"]
	shoulder := p["shoulder"]
	center := float64(nBins/2) + skew*float64(nBins)*0.22
	bins := make([]float64, nBins)
	for i := range bins {
		dist := math.Abs(float64(i) - center)
		noise := 0.8 + 0.4*pseudoNoise(i)
		bins[i] = (1.0 + shoulder*math.Exp(-12*dist/float64(nBins))) * noise
	}
	return density.Normalize(bins)
}

// amplifiedHybrid implements spec §4.3's "amplified-hybrid" contract: a
// generalized-bell curve whose decay and amplification exponent are both
// free parameters.
type amplifiedHybrid struct{}

func (amplifiedHybrid) ID() candidate.FamilyID { return candidate.FamilyAmplifiedHybrid }

func (amplifiedHybrid) ParamRanges() map[string]candidate.ParamRange {
	return map[string]candidate.ParamRange{
		"decay":         {Min: 0.1, Max: 20},
		"amplification": {Min: 0.5, Max: 9},
	}
}

func (f amplifiedHybrid) SampleParams(src rng.Source) map[string]float64 {
	return sampleUniform(src, f.ParamRanges())
}

func (f amplifiedHybrid) MutateParams(src rng.Source, p map[string]float64) map[string]float64 {
	return mutateGaussian(src, f.ParamRanges(), p)
}

func (f amplifiedHybrid) GenerateBins(p map[string]float64) []float64 {
	decay := p["decay"]
	amplification := p["amplification"]
	center := float64(nBins) / 2
	bins := make([]float64, nBins)
	for i := range bins {
		x := math.Abs(float64(i)-center) / (float64(nBins) / 2)
		bins[i] = math.Pow(1/(1+decay*x*x), amplification/3)
	}
	return density.Normalize(bins)
}

// tailShielded implements spec §4.3's "tail-shielded" contract: center mass
// plus a heavy-tail term and a narrow "moat" penalty that pushes liquidity
// away from a specific band.
type tailShielded struct{}

func (tailShielded) ID() candidate.FamilyID { return candidate.FamilyTailShielded }

func (tailShielded) ParamRanges() map[string]candidate.ParamRange {
	return map[string]candidate.ParamRange{
		"tail_weight": {Min: 0, Max: 1},
		"moat_width":  {Min: 0, Max: 1},
	}
}

func (f tailShielded) SampleParams(src rng.Source) map[string]float64 {
	return sampleUniform(src, f.ParamRanges())
}

func (f tailShielded) MutateParams(src rng.Source, p map[string]float64) map[string]float64 {
	return mutateGaussian(src, f.ParamRanges(), p)
}

func (f tailShielded) GenerateBins(p map[string]float64) []float64 {
	tailWeight := p["tail_weight"]
	moatWidth := p["moat_width"]
	center := float64(nBins) / 2
	bins := make([]float64, nBins)
	for i := range bins {
		x := math.Abs(float64(i)-center) / (float64(nBins) / 2)
		base := math.Exp(-3 * x * x)
		tail := tailWeight * math.Pow(x, 1.4)
		moat := 0.15 * math.Exp(-math.Pow((x-moatWidth)*6, 2))
		v := base + tail - moat
		if v < 0 {
			v = 0
		}
		bins[i] = v
	}
	return density.Normalize(bins)
}

// pseudoNoise is a deterministic, index-derived multiplicative factor in
// [0,1] used only as a fixed textured perturbation for bin generation when
// no RNG source is threaded through GenerateBins (spec keeps generate_bins
// pure in its inputs: params only). Candidates get their stochastic variety
// from sample_params and mutate_params instead.
func pseudoNoise(i int) float64 {
	frac, _ := math.Modf(math.Sin(float64(i)*12.9898) * 43758.5453)
	if frac < 0 {
		frac += 1
	}
	return frac
}
