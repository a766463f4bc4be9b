package regimemap

import (
	"context"
	"math"
	"testing"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

func TestEvolveRegimePoint_ProducesChampion(t *testing.T) {
	src := rng.New(1)
	v := RegimeVector{Volatility: 0.5, JumpIntensity: 1, ArbResponsiveness: 0.5}
	p := EvolveRegimePoint(src, v)
	if len(p.ChampionBins) != candidate.NumBins {
		t.Fatalf("got %d champion bins, want %d", len(p.ChampionBins), candidate.NumBins)
	}
}

func TestEvolveRegimePoint_ExtremeParamsStayFinite(t *testing.T) {
	src := rng.New(2)
	v := RegimeVector{Volatility: 1.2, JumpIntensity: 8, JumpStd: 0.5, ArbResponsiveness: 1}
	p := EvolveRegimePoint(src, v)
	for i, b := range p.ChampionBins {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			t.Fatalf("bin %d not finite: %f", i, b)
		}
	}
}

func TestEstimateRegimeGeometry_ExactMatch(t *testing.T) {
	src := rng.New(3)
	v := RegimeVector{Volatility: 0.4, JumpIntensity: 2, ArbResponsiveness: 0.5}
	grid := BuildGrid(src, []RegimeVector{v})
	est := grid.EstimateRegimeGeometry(v)
	if est.Source != SourceExact {
		t.Fatalf("got source %s, want exact", est.Source)
	}
}

func TestEstimateRegimeGeometry_InterpolatesOffLattice(t *testing.T) {
	src := rng.New(4)
	vectors := []RegimeVector{
		{Volatility: 0.3, JumpIntensity: 1, ArbResponsiveness: 0.5},
		{Volatility: 0.9, JumpIntensity: 5, ArbResponsiveness: 0.5},
		{Volatility: 0.6, JumpIntensity: 3, ArbResponsiveness: 0.5},
		{Volatility: 0.7, JumpIntensity: 2, ArbResponsiveness: 1},
		{Volatility: 1.0, JumpIntensity: 6, ArbResponsiveness: 0.2},
	}
	grid := BuildGrid(src, vectors)
	target := RegimeVector{Volatility: 0.7, JumpIntensity: 2, MeanReversion: 0, ArbResponsiveness: 1, JumpMean: -0.04, JumpStd: 0.1}
	est := grid.EstimateRegimeGeometry(target)
	if est.Source != SourceInterpolated {
		t.Fatalf("got source %s, want interpolated", est.Source)
	}
	sum := 0.0
	for _, b := range est.Bins {
		sum += b
	}
	if math.Abs(sum-candidate.TotalLiquidity) > 1e-6 {
		t.Fatalf("bins sum = %f, want %f", sum, candidate.TotalLiquidity)
	}
	if len(est.Contributors) < 2 {
		t.Fatalf("expected at least two contributors, got %d", len(est.Contributors))
	}
}

func TestEstimateRegimeGeometryCached_NilCacheFallsThrough(t *testing.T) {
	src := rng.New(6)
	v := RegimeVector{Volatility: 0.4, JumpIntensity: 2, ArbResponsiveness: 0.5}
	grid := BuildGrid(src, []RegimeVector{v})

	var cache *EstimateCache
	est := grid.EstimateRegimeGeometryCached(context.Background(), cache, v)
	if est.Source != SourceExact {
		t.Fatalf("got source %s, want exact", est.Source)
	}
}

func TestCoverage_CountsPointsInBuckets(t *testing.T) {
	src := rng.New(5)
	grid := BuildGrid(src, []RegimeVector{
		{Volatility: 0.3, JumpIntensity: 1},
		{Volatility: 1.1, JumpIntensity: 7},
	})
	cov := grid.Coverage()
	total := 0
	for _, row := range cov {
		for _, v := range row {
			total += v
		}
	}
	if total != 2 {
		t.Fatalf("coverage total = %d, want 2", total)
	}
}
