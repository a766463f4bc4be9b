package features

import (
	"math"
	"testing"

	"github.com/sawpanic/amm-discovery/internal/candidate"
)

func uniformBins() []float64 {
	bins := make([]float64, candidate.NumBins)
	for i := range bins {
		bins[i] = candidate.TotalLiquidity / float64(candidate.NumBins)
	}
	return bins
}

func TestCompute_UniformBinsHasMaxEntropy(t *testing.T) {
	f := Compute(uniformBins())
	want := math.Log2(float64(candidate.NumBins))
	if math.Abs(f.Entropy-want) > 1e-9 {
		t.Fatalf("entropy = %f, want %f", f.Entropy, want)
	}
}

func TestCompute_UniformBinsHasMinCurvature(t *testing.T) {
	f := Compute(uniformBins())
	if math.Abs(f.Curvature) > 1e-9 {
		t.Fatalf("curvature = %f, want ~0", f.Curvature)
	}
}

func TestCompute_SymmetricBinsHaveHighSymmetry(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	center := float64(candidate.NumBins-1) / 2
	for i := range bins {
		d := math.Abs(float64(i) - center)
		bins[i] = math.Exp(-d * d / 100)
	}
	f := Compute(bins)
	if f.Symmetry < 0.99 {
		t.Fatalf("symmetry = %f, want close to 1", f.Symmetry)
	}
}

func TestCompute_AllFeaturesFinite(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	bins[0] = candidate.TotalLiquidity
	f := Compute(bins)
	vals := []float64{f.Curvature, f.CurvatureGradient, f.Entropy, f.Symmetry, f.TailDensityRatio, f.PeakConcentration, f.ConcentrationWidth}
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("feature %d not finite: %f", i, v)
		}
	}
}

func TestNormalize_AllAxesInUnitRange(t *testing.T) {
	m := candidate.Metrics{
		TotalFees:            25,
		TotalSlippage:        0.02,
		ArbLeakage:           10,
		LiquidityUtilization: 0.8,
		LPValueVsHodl:        1.05,
		MaxDrawdown:          0.1,
		VolatilityOfReturns:  0.01,
	}
	n := Normalize(m, 0.05)
	for _, v := range n.Values() {
		if v < 0 || v > 1 {
			t.Fatalf("axis out of [0,1]: %f", v)
		}
	}
}

func TestNormalize_ExtremeMetricsClamp(t *testing.T) {
	m := candidate.Metrics{
		TotalFees:            10000,
		TotalSlippage:        10,
		ArbLeakage:           10000,
		LiquidityUtilization: 5,
		LPValueVsHodl:        100,
		MaxDrawdown:          5,
		VolatilityOfReturns:  5,
	}
	n := Normalize(m, 5)
	if n.Fees != 1 {
		t.Fatalf("fees = %f, want 1", n.Fees)
	}
	if n.LowSlippage != 0 {
		t.Fatalf("low_slippage = %f, want 0", n.LowSlippage)
	}
	if n.LowArbLeak != 0 {
		t.Fatalf("low_arb_leak = %f, want 0", n.LowArbLeak)
	}
}

func TestSpiderCoverage_PerfectScoresGiveOne(t *testing.T) {
	n := NormalizedMetrics{Fees: 1, Utilization: 1, LPValue: 1, LowSlippage: 1, LowArbLeak: 1, Stability: 1, LowDrawdown: 1}
	cov := SpiderCoverage(n)
	if math.Abs(cov-1) > 1e-9 {
		t.Fatalf("coverage = %f, want 1", cov)
	}
}

func TestSpiderCoverage_ZeroScoresGiveLowCoverage(t *testing.T) {
	n := NormalizedMetrics{}
	cov := SpiderCoverage(n)
	if cov > 0.1 {
		t.Fatalf("coverage = %f, want close to 0", cov)
	}
}

func TestNames_MatchesValuesLength(t *testing.T) {
	n := NormalizedMetrics{}
	if len(Names()) != len(n.Values()) {
		t.Fatalf("Names length %d != Values length %d", len(Names()), len(n.Values()))
	}
}
