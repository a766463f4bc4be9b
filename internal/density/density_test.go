package density

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

func sum(bins []float64) float64 {
	s := 0.0
	for _, b := range bins {
		s += b
	}
	return s
}

func TestNormalize_RescalesToTotal(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	for i := range bins {
		bins[i] = float64(i + 1)
	}
	out := Normalize(bins)
	if math.Abs(sum(out)-candidate.TotalLiquidity) > 1e-9 {
		t.Fatalf("sum = %f, want %f", sum(out), candidate.TotalLiquidity)
	}
	for _, b := range out {
		if b < 0 {
			t.Fatalf("negative bin after normalize: %f", b)
		}
	}
}

func TestNormalize_DegenerateSumFallsBackToUniform(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	out := Normalize(bins)
	want := candidate.TotalLiquidity / float64(candidate.NumBins)
	for i, b := range out {
		if math.Abs(b-want) > 1e-12 {
			t.Fatalf("bin %d = %f, want %f", i, b, want)
		}
	}
}

func TestNormalize_NegativeSumFallsBackToUniform(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	for i := range bins {
		bins[i] = -1
	}
	out := Normalize(bins)
	want := candidate.TotalLiquidity / float64(candidate.NumBins)
	if math.Abs(out[0]-want) > 1e-12 {
		t.Fatalf("bin 0 = %f, want %f", out[0], want)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	for i := range bins {
		bins[i] = float64((i*7)%13 + 1)
	}
	once := Normalize(bins)
	twice := Normalize(once)
	for i := range once {
		if math.Abs(once[i]-twice[i]) > 1e-9 {
			t.Fatalf("bin %d: normalize not idempotent: %f vs %f", i, once[i], twice[i])
		}
	}
}

func TestDeriveReserves_SumsToTotal(t *testing.T) {
	bins := uniformBins()
	for _, ref := range []float64{-1.9, -0.5, 0, 0.5, 1.9} {
		x, y := DeriveReserves(bins, ref)
		if math.Abs((x+y)-candidate.TotalLiquidity) > 1e-6 {
			t.Fatalf("ref=%f: x+y = %f, want %f", ref, x+y, candidate.TotalLiquidity)
		}
	}
}

func TestDeriveReserves_ClampsToFloor(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	bins[0] = candidate.TotalLiquidity
	x, _ := DeriveReserves(bins, candidate.LogPriceMax-0.001)
	if x < 1e-12 {
		t.Fatalf("reserveX not clamped: %g", x)
	}
}

func TestPriceImpact_FiniteAndBounded(t *testing.T) {
	bins := uniformBins()
	for _, dir := range []Direction{Buy, Sell} {
		output, slippage, newPrice := PriceImpact(bins, 0, 50, dir)
		if math.IsNaN(output) || math.IsInf(output, 0) {
			t.Fatalf("dir=%v output not finite: %f", dir, output)
		}
		if slippage < 0 || slippage > 1 {
			t.Fatalf("dir=%v slippage out of bounds: %f", dir, slippage)
		}
		if newPrice < candidate.LogPriceMin-1e-9 || newPrice > candidate.LogPriceMax+1e-9 {
			t.Fatalf("dir=%v newPrice out of range: %f", dir, newPrice)
		}
	}
}

func TestPriceImpact_BuyPushesPriceUp(t *testing.T) {
	bins := uniformBins()
	_, _, newPrice := PriceImpact(bins, 0, 400, Buy)
	if newPrice <= 0 {
		t.Fatalf("buy should push price up from 0, got %f", newPrice)
	}
}

func TestPriceImpact_SellPushesPriceDown(t *testing.T) {
	bins := uniformBins()
	_, _, newPrice := PriceImpact(bins, 0, 400, Sell)
	if newPrice >= 0 {
		t.Fatalf("sell should push price down from 0, got %f", newPrice)
	}
}

func TestPriceImpact_TinySizeLowSlippage(t *testing.T) {
	bins := uniformBins()
	_, slippage, _ := PriceImpact(bins, 0, 0.001, Buy)
	if slippage > 0.1 {
		t.Fatalf("tiny trade should have low slippage, got %f", slippage)
	}
}

func TestPriceImpact_EmptyBinsClampsSlippage(t *testing.T) {
	bins := make([]float64, candidate.NumBins)
	_, slippage, _ := PriceImpact(bins, 0, 10, Buy)
	if slippage != 1 {
		t.Fatalf("empty-liquidity trade should be fully slipped, got %f", slippage)
	}
}
