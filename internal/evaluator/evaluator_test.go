package evaluator

import (
	"math"
	"testing"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

func uniformBins() []float64 {
	bins := make([]float64, candidate.NumBins)
	for i := range bins {
		bins[i] = candidate.TotalLiquidity / float64(candidate.NumBins)
	}
	return bins
}

func TestEvaluate_FiniteAggregates(t *testing.T) {
	src := rng.New(5)
	res := Evaluate(src, uniformBins(), candidate.RegimeLowVol, DefaultOptions())
	if math.IsNaN(res.Stability) || math.IsInf(res.Stability, 0) {
		t.Fatalf("stability not finite: %f", res.Stability)
	}
	if res.Stability < 0 {
		t.Fatalf("stability negative: %f", res.Stability)
	}
}

func TestEvaluate_BudgetClampedToMax(t *testing.T) {
	src := rng.New(6)
	opts := Options{TrainPaths: 999, EvalPaths: 999, ArbResponsiveness: 0.5}
	// Should not panic or run unboundedly; just verify it returns sane output.
	res := Evaluate(src, uniformBins(), candidate.RegimeHighVol, opts)
	if res.Metrics.TotalFees < 0 {
		t.Fatalf("unexpected negative fees: %f", res.Metrics.TotalFees)
	}
}

func TestEvaluate_EquityCurveOptional(t *testing.T) {
	src := rng.New(9)
	opts := DefaultOptions()
	opts.WithEquityCurve = true
	res := Evaluate(src, uniformBins(), candidate.RegimeJumpDiffusion, opts)
	if len(res.EquityCurve) == 0 {
		t.Fatalf("expected non-empty equity curve when requested")
	}
	for i, v := range res.EquityCurve {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("equity curve point %d not finite: %f", i, v)
		}
	}
}

func TestEvaluate_NoEquityCurveByDefault(t *testing.T) {
	src := rng.New(10)
	res := Evaluate(src, uniformBins(), candidate.RegimeLowVol, DefaultOptions())
	if res.EquityCurve != nil {
		t.Fatalf("expected nil equity curve when not requested")
	}
}
