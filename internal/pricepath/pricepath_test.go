package pricepath

import (
	"math"
	"testing"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

func TestGenerate_StartsAtZeroAndCorrectLength(t *testing.T) {
	src := rng.New(1)
	p := NewFastPath(LowVolParams())
	path := p.Generate(src)
	if len(path) != candidate.FastPathSteps+1 {
		t.Fatalf("got %d points, want %d", len(path), candidate.FastPathSteps+1)
	}
	if path[0] != 0 {
		t.Fatalf("path[0] = %f, want 0", path[0])
	}
}

func TestGenerate_AlwaysFinite(t *testing.T) {
	src := rng.New(2)
	for _, regime := range []candidate.Regime{candidate.RegimeLowVol, candidate.RegimeHighVol, candidate.RegimeJumpDiffusion, candidate.RegimeShift} {
		p := NewPathForRegime(src, regime)
		path := p.Generate(src)
		for i, v := range path {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("regime=%s: path[%d] not finite: %f", regime, i, v)
			}
		}
	}
}

func TestGenerate_DeterministicReplay(t *testing.T) {
	p := NewFastPath(JumpDiffusionParams())
	a := p.Generate(rng.New(42))
	b := p.Generate(rng.New(42))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("index %d: %f != %f, replay not deterministic", i, a[i], b[i])
		}
	}
}

func TestRegimeShift_SwitchesWithinBounds(t *testing.T) {
	src := rng.New(3)
	p := NewRegimeShiftPath(src, LowVolParams(), HighVolParams())
	steps := candidate.FastPathSteps
	lo := int(0.3 * float64(steps))
	hi := int(0.7 * float64(steps))
	if p.Shift.SwitchStep < lo || p.Shift.SwitchStep > hi {
		t.Fatalf("switch step %d outside [%d,%d]", p.Shift.SwitchStep, lo, hi)
	}
}

func TestMeanReversion_PullsTowardAnchor(t *testing.T) {
	src := rng.New(4)
	params := Params{Mu: 0, Sigma: 0.001, MeanReversion: 5, Anchor: 1.5}
	p := Path{Steps: 500, Dt: 1.0 / 365.0, Params: params}
	path := p.Generate(src)
	last := path[len(path)-1]
	if math.Abs(last-params.Anchor) > 0.5 {
		t.Fatalf("expected convergence toward anchor %f, got %f", params.Anchor, last)
	}
}
