// Package features implements the behavioral-shape feature extraction and
// metric normalization layer (C7, spec §4.7): curvature, entropy, symmetry,
// tail ratio, peak concentration, concentration width, and the mapping from
// raw metrics to normalized [0,1] axes used by the scorer.
package features

import (
	"math"

	"github.com/sawpanic/amm-discovery/internal/candidate"
)

// toProbability normalizes bins to a probability vector (sum to 1).
func toProbability(bins []float64) []float64 {
	sum := 0.0
	for _, b := range bins {
		sum += b
	}
	p := make([]float64, len(bins))
	if sum <= 0 {
		uniform := 1.0 / float64(len(bins))
		for i := range p {
			p[i] = uniform
		}
		return p
	}
	for i, b := range bins {
		p[i] = b / sum
	}
	return p
}

// Compute derives the full Features tuple from a candidate's bins.
func Compute(bins []float64) candidate.Features {
	p := toProbability(bins)
	n := len(p)

	curvature, curvatureGradient := curvatureFeatures(p)
	entropy := entropyFeature(p)
	symmetry := symmetryFeature(p)
	tailRatio := tailDensityRatio(p)
	peakConcentration := float64(n) * maxOf(p)
	concentrationWidth := concentrationWidthFeature(p, n)

	return candidate.Features{
		Curvature:          curvature,
		CurvatureGradient:  curvatureGradient,
		Entropy:            entropy,
		Symmetry:           symmetry,
		TailDensityRatio:   tailRatio,
		PeakConcentration:  peakConcentration,
		ConcentrationWidth: concentrationWidth,
	}
}

// curvatureFeatures returns curvature = sum of squared discrete second
// differences, and curvature_gradient = sum of |delta| of that profile.
func curvatureFeatures(p []float64) (curvature, gradient float64) {
	n := len(p)
	profile := make([]float64, n)
	for i := 1; i < n-1; i++ {
		d := p[i-1] - 2*p[i] + p[i+1]
		profile[i] = d * d
		curvature += profile[i]
	}
	for i := 1; i < n; i++ {
		gradient += math.Abs(profile[i] - profile[i-1])
	}
	return
}

func entropyFeature(p []float64) float64 {
	h := 0.0
	for _, v := range p {
		if v <= 0 {
			continue
		}
		h -= v * math.Log2(v)
	}
	return h
}

// symmetryFeature is the Pearson correlation between the left half and the
// reversed right half of p.
func symmetryFeature(p []float64) float64 {
	n := len(p)
	half := n / 2
	left := p[:half]
	right := make([]float64, half)
	for i := 0; i < half; i++ {
		right[i] = p[n-1-i]
	}
	return pearson(left, right)
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 {
		return 0
	}
	meanA, meanB := mean(a), mean(b)
	var num, denomA, denomB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		denomA += da * da
		denomB += db * db
	}
	denom := math.Sqrt(denomA * denomB)
	if denom == 0 {
		return 0
	}
	return num / denom
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// tailDensityRatio is mass(outer 25%) / mass(inner 50%).
func tailDensityRatio(p []float64) float64 {
	n := len(p)
	outerWidth := int(float64(n) * 0.125) // 12.5% on each side = 25% total
	innerStart := n/2 - int(float64(n)*0.25)
	innerEnd := n/2 + int(float64(n)*0.25)

	outerMass, innerMass := 0.0, 0.0
	for i, v := range p {
		if i < outerWidth || i >= n-outerWidth {
			outerMass += v
		}
		if i >= innerStart && i < innerEnd {
			innerMass += v
		}
	}
	if innerMass <= 0 {
		return 0
	}
	return outerMass / innerMass
}

func concentrationWidthFeature(p []float64, n int) float64 {
	mid := float64(n-1) / 2
	sum := 0.0
	for i, v := range p {
		d := float64(i) - mid
		sum += v * d * d
	}
	return math.Sqrt(sum) / float64(n)
}

func maxOf(p []float64) float64 {
	m := 0.0
	for _, v := range p {
		if v > m {
			m = v
		}
	}
	return m
}

// NormalizedMetrics holds the seven [0,1] axes, higher = better, used by
// the scorer and the spider-coverage composite (spec §4.7/§4.8).
type NormalizedMetrics struct {
	Fees         float64
	Utilization  float64
	LPValue      float64
	LowSlippage  float64
	LowArbLeak   float64
	Stability    float64
	LowDrawdown  float64
}

// Normalize maps a candidate's raw metrics (and stability) onto the seven
// normalized axes.
func Normalize(m candidate.Metrics, stability float64) NormalizedMetrics {
	return NormalizedMetrics{
		Fees:        clamp01(m.TotalFees / 50),
		Utilization: clamp01(m.LiquidityUtilization),
		LPValue:     clamp01(math.Min(m.LPValueVsHodl, 1.2) / 1.2),
		LowSlippage: clampLower(1 - 10*m.TotalSlippage),
		LowArbLeak:  clampLower(1 - m.ArbLeakage/50),
		Stability:   clampLower(1 - 5*stability),
		LowDrawdown: clampLower(1 - 5*m.MaxDrawdown),
	}
}

func (n NormalizedMetrics) Values() []float64 {
	return []float64{n.Fees, n.Utilization, n.LPValue, n.LowSlippage, n.LowArbLeak, n.Stability, n.LowDrawdown}
}

// Names returns the axis names in the same order as Values, used for
// weakest-axis reporting in the recommender (C8).
func Names() []string {
	return []string{"fees", "utilization", "lp_value", "low_slippage", "low_arb_leak", "stability", "low_drawdown"}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampLower(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// SpiderCoverage computes spec §4.7's composite coverage score:
// 0.7*geomean(max(v,0.01)) + 0.3*min(v).
func SpiderCoverage(n NormalizedMetrics) float64 {
	values := n.Values()
	geomean := 1.0
	minV := math.Inf(1)
	for _, v := range values {
		floored := math.Max(v, 0.01)
		geomean *= floored
		if v < minV {
			minV = v
		}
	}
	geomean = math.Pow(geomean, 1.0/float64(len(values)))
	return 0.7*geomean + 0.3*minV
}
