package evolution

import (
	"testing"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

func TestStep_BootstrapsEmptyPopulation(t *testing.T) {
	src := rng.New(1)
	pop := candidate.NewPopulationState(candidate.RegimeLowVol)
	res := Step(src, candidate.RegimeLowVol, pop, nil)
	if len(res.Population.Candidates) == 0 {
		t.Fatalf("expected bootstrap to produce candidates")
	}
	if len(res.Population.Candidates) > candidate.PopulationSize {
		t.Fatalf("got %d candidates, want <= %d", len(res.Population.Candidates), candidate.PopulationSize)
	}
	for _, c := range res.Population.Candidates {
		if !candidate.ValidateBins(c.Bins) {
			t.Fatalf("invalid bins in bootstrap candidate %s", c.ID)
		}
	}
	if res.Population.Champion == nil {
		t.Fatalf("expected a champion after bootstrap")
	}
}

func TestStep_SecondGenerationImprovesOrHolds(t *testing.T) {
	src := rng.New(2)
	pop := candidate.NewPopulationState(candidate.RegimeLowVol)
	first := Step(src, candidate.RegimeLowVol, pop, nil)
	second := Step(src, candidate.RegimeLowVol, first.Population, nil)

	if second.Population.Champion == nil {
		t.Fatalf("expected champion in second generation")
	}
	if second.Population.Champion.Score > first.Population.Champion.Score+1e-9 {
		t.Fatalf("champion regressed: %f -> %f", first.Population.Champion.Score, second.Population.Champion.Score)
	}
}

func TestStep_EmitsGenerationCompleteEvent(t *testing.T) {
	src := rng.New(3)
	pop := candidate.NewPopulationState(candidate.RegimeHighVol)
	res := Step(src, candidate.RegimeHighVol, pop, nil)
	found := false
	for _, e := range res.Events {
		if e.Kind == candidate.EventGenerationComplete {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a generation-complete event")
	}
}

func TestMutateBins_AlwaysValidDensity(t *testing.T) {
	src := rng.New(4)
	bins := make([]float64, candidate.NumBins)
	for i := range bins {
		bins[i] = candidate.TotalLiquidity / float64(candidate.NumBins)
	}
	for i := 0; i < 20; i++ {
		bins = MutateBins(src, bins, 0.1)
		if !candidate.ValidateBins(bins) {
			t.Fatalf("iteration %d produced invalid bins", i)
		}
	}
}

func TestCrossoverUniform_ProducesValidDensity(t *testing.T) {
	src := rng.New(5)
	a := make([]float64, candidate.NumBins)
	b := make([]float64, candidate.NumBins)
	for i := range a {
		a[i] = candidate.TotalLiquidity / float64(candidate.NumBins)
		b[i] = candidate.TotalLiquidity / float64(candidate.NumBins)
	}
	out := CrossoverUniform(src, a, b)
	if !candidate.ValidateBins(out) {
		t.Fatalf("crossover produced invalid bins")
	}
}

func TestCrossoverParams_StaysInRange(t *testing.T) {
	src := rng.New(6)
	ranges := map[string]candidate.ParamRange{"x": {Min: 0, Max: 1}}
	a := map[string]float64{"x": 0.2}
	b := map[string]float64{"x": 0.8}
	for i := 0; i < 50; i++ {
		out := CrossoverParams(src, a, b, ranges, 0.5)
		if out["x"] < 0 || out["x"] > 1 {
			t.Fatalf("crossover param out of range: %f", out["x"])
		}
	}
}

func TestSetRegimeBounds_OverridesEliteFractionAndExplorationRange(t *testing.T) {
	t.Cleanup(ResetRegimeBounds)

	SetRegimeBounds(candidate.RegimeLowVol, RegimeBounds{
		EliteFraction:    0.1,
		ExplorationFloor: 0.3,
		ExplorationCeil:  0.35,
	})

	src := rng.New(9)
	pop := candidate.NewPopulationState(candidate.RegimeLowVol)
	res := Step(src, candidate.RegimeLowVol, pop, nil)
	res2 := Step(src, candidate.RegimeLowVol, res.Population, nil)
	if len(res2.Population.Candidates) == 0 {
		t.Fatalf("expected a populated generation under overridden bounds")
	}
}

func TestResetRegimeBounds_RestoresDefaults(t *testing.T) {
	SetRegimeBounds(candidate.RegimeHighVol, RegimeBounds{EliteFraction: 0.05, ExplorationFloor: 0.1, ExplorationCeil: 0.11})
	ResetRegimeBounds()
	got := boundsFor(candidate.RegimeHighVol)
	if got != defaultBounds {
		t.Fatalf("got %+v, want defaults %+v", got, defaultBounds)
	}
}
