package simulator

import (
	"math"
	"testing"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/density"
	"github.com/sawpanic/amm-discovery/internal/pricepath"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

func uniformBins() []float64 {
	bins := make([]float64, candidate.NumBins)
	for i := range bins {
		bins[i] = candidate.TotalLiquidity / float64(candidate.NumBins)
	}
	return bins
}

func TestRun_ProducesFiniteMetrics(t *testing.T) {
	src := rng.New(7)
	bins := uniformBins()
	path := pricepath.NewFastPath(pricepath.LowVolParams()).Generate(src)
	res := Run(src, bins, path, 0.5)

	m := res.Metrics
	vals := []float64{m.TotalFees, m.TotalSlippage, m.ArbLeakage, m.LiquidityUtilization, m.LPValueVsHodl, m.MaxDrawdown, m.VolatilityOfReturns}
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("metric %d not finite: %f", i, v)
		}
	}
	if m.TotalFees < 0 {
		t.Fatalf("total fees negative: %f", m.TotalFees)
	}
	if m.LiquidityUtilization < 0 || m.LiquidityUtilization > 1 {
		t.Fatalf("utilization out of [0,1]: %f", m.LiquidityUtilization)
	}
	if m.MaxDrawdown < 0 || m.MaxDrawdown > 1 {
		t.Fatalf("drawdown out of [0,1]: %f", m.MaxDrawdown)
	}
}

func TestRun_ReturnsSeriesMatchesPathLength(t *testing.T) {
	src := rng.New(8)
	bins := uniformBins()
	path := pricepath.NewFastPath(pricepath.HighVolParams()).Generate(src)
	res := Run(src, bins, path, 0.5)
	if len(res.Returns) != len(path) {
		t.Fatalf("got %d returns, want %d", len(res.Returns), len(path))
	}
	if len(res.LPValueSeries) != len(path) {
		t.Fatalf("got %d lp-value points, want %d", len(res.LPValueSeries), len(path))
	}
}

func TestRun_DeterministicReplay(t *testing.T) {
	bins := uniformBins()
	path := pricepath.NewFastPath(pricepath.JumpDiffusionParams()).Generate(rng.New(99))

	a := Run(rng.New(11), bins, path, 0.4)
	b := Run(rng.New(11), bins, path, 0.4)
	if a.Metrics != b.Metrics {
		t.Fatalf("non-deterministic replay: %+v vs %+v", a.Metrics, b.Metrics)
	}
}

func TestConsumeTrade_NeverNegative(t *testing.T) {
	bins := uniformBins()
	consumeTrade(bins, 0, 100000, density.Buy)
	for i, b := range bins {
		if b < 0 {
			t.Fatalf("bin %d went negative: %f", i, b)
		}
	}
}

func TestComputeUtilization_FullRangeIsOne(t *testing.T) {
	bins := uniformBins()
	u := computeUtilization(bins, candidate.LogPriceMin, candidate.LogPriceMax)
	if math.Abs(u-1) > 1e-9 {
		t.Fatalf("got %f, want 1", u)
	}
}

func TestComputeUtilization_EmptyBinsIsZero(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	u := computeUtilization(bins, candidate.LogPriceMin, candidate.LogPriceMax)
	if u != 0 {
		t.Fatalf("got %f, want 0", u)
	}
}
