package engine

import (
	"context"
	"testing"
	"time"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/config"
	"github.com/sawpanic/amm-discovery/internal/evolution"
)

func TestTick_BootstrapsPopulationSize(t *testing.T) {
	e := New(42, Cycle, 0)
	state := e.Tick()
	pop := state.Populations[candidate.RegimeLowVol]
	if pop == nil || len(pop.Candidates) == 0 {
		t.Fatalf("expected a non-empty low-vol population after first tick")
	}
	if len(pop.Candidates) > candidate.PopulationSize {
		t.Fatalf("population size = %d, want <= %d", len(pop.Candidates), candidate.PopulationSize)
	}
}

func TestTick_EmitsGenerationCompleteEvent(t *testing.T) {
	e := New(1, Cycle, 0)
	state := e.Tick()
	found := false
	for _, ev := range state.ActivityLog {
		if ev.Kind == candidate.EventGenerationComplete {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a generation-complete event in the activity log")
	}
}

func TestTick_RotatesRegimesByCycle(t *testing.T) {
	e := New(2, Cycle, 0)
	for i := 0; i < len(Cycle); i++ {
		e.Tick()
	}
	state := e.State()
	if state.TotalGenerations != int64(len(Cycle)) {
		t.Fatalf("total_generations = %d, want %d", state.TotalGenerations, len(Cycle))
	}
	for _, r := range Cycle {
		if state.Populations[r] == nil || len(state.Populations[r].Candidates) == 0 {
			t.Fatalf("expected regime %s to have been visited", r)
		}
	}
}

func TestTick_ArchivePromotionAfterRoundInterval(t *testing.T) {
	e := New(7, Cycle, 0)
	for i := 0; i < candidate.ArchiveRoundInterval*len(Cycle)+1; i++ {
		e.Tick()
	}
	state := e.State()
	if state.TotalGenerations == 0 {
		t.Fatalf("expected ticks to have advanced total_generations")
	}
	// Not every run is guaranteed to produce a qualifying candidate, but the
	// archive must never exceed the persistent cap regardless.
	if len(state.Archive) > candidate.PersistentArchiveCap {
		t.Fatalf("archive size = %d, exceeds cap %d", len(state.Archive), candidate.PersistentArchiveCap)
	}
}

func TestRunAndStop_HaltsAfterCurrentTick(t *testing.T) {
	e := New(3, Cycle, 50)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	e.Stop()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("Run did not stop in time")
	}
	if e.Running() {
		t.Fatalf("expected engine to report not running after Stop")
	}
}

func TestSetStateAndState_RoundTrips(t *testing.T) {
	e := New(4, Cycle, 0)
	e.Tick()
	snap := e.State()

	e2 := New(99, Cycle, 0)
	e2.SetState(snap)
	got := e2.State()
	if got.TotalGenerations != snap.TotalGenerations {
		t.Fatalf("total_generations = %d, want %d", got.TotalGenerations, snap.TotalGenerations)
	}
}

func TestPassesArchiveThreshold_SpecWorkedExample(t *testing.T) {
	m := candidate.Metrics{
		TotalFees:            10,
		TotalSlippage:        0.03,
		ArbLeakage:           20,
		LiquidityUtilization: 0.5,
		LPValueVsHodl:        1.02,
		MaxDrawdown:          0.2,
		VolatilityOfReturns:  0.05,
	}
	if !passesArchiveThreshold(m, 0.12) {
		t.Fatalf("expected spec §8 worked example to pass the archive threshold")
	}
}

func TestSelectPromotions_DedupesByFamilyComboAndRespectsIncumbent(t *testing.T) {
	e := New(5, Cycle, 0)
	buf := []candidate.Candidate{
		{ID: "a", Regime: candidate.RegimeLowVol, FamilyID: candidate.FamilyPiecewiseBands, Score: -1.0},
		{ID: "b", Regime: candidate.RegimeLowVol, FamilyID: candidate.FamilyPiecewiseBands, Score: -1.5},
		{ID: "c", Regime: candidate.RegimeLowVol, FamilyID: candidate.FamilyTailShielded, Score: -0.5},
	}
	promoted := e.selectPromotions(buf)
	if len(promoted) != 2 {
		t.Fatalf("expected one promotion per family combo, got %d", len(promoted))
	}
	for _, c := range promoted {
		if c.ID == "a" {
			t.Fatalf("weaker candidate in its combo should not have been promoted")
		}
	}

	// Second round with no improvement over the recorded incumbents should
	// promote nothing.
	second := e.selectPromotions(buf)
	if len(second) != 0 {
		t.Fatalf("expected no re-promotion without score improvement, got %d", len(second))
	}
}

func TestSelectPromotions_CapsAtBatchLimit(t *testing.T) {
	e := New(6, Cycle, 0)
	buf := make([]candidate.Candidate, 0, candidate.ArchiveBatchLimit+10)
	for i := 0; i < candidate.ArchiveBatchLimit+10; i++ {
		buf = append(buf, candidate.Candidate{
			ID:       string(rune('a' + i)),
			Regime:   candidate.RegimeLowVol,
			FamilyID: candidate.FamilyID(string(rune('A' + i))),
			Score:    -float64(i),
		})
	}
	promoted := e.selectPromotions(buf)
	if len(promoted) > candidate.ArchiveBatchLimit {
		t.Fatalf("promoted %d candidates, want <= %d", len(promoted), candidate.ArchiveBatchLimit)
	}
}

func TestApplyTuning_TickRunsUnderInstalledBounds(t *testing.T) {
	t.Cleanup(evolution.ResetRegimeBounds)

	profile := config.TuningProfile{
		Name: "test",
		Regimes: map[string]config.RegimeTuning{
			"low-vol": {EliteFraction: 0.1, ExplorationFloor: 0.2, ExplorationCeil: 0.3},
		},
	}
	ApplyTuning(profile)

	e := New(7, Cycle, 0)
	state := e.Tick()
	pop := state.Populations[candidate.RegimeLowVol]
	if pop == nil {
		t.Fatal("expected low-vol population after tick")
	}
}
