// Package pricepath generates the stochastic log-price sequences (C4, spec
// §4.4) that drive the single-path simulator: geometric Brownian motion
// with an optional Poisson jump component and mean reversion toward an
// anchor, with a regime-shift variant that switches parameters mid-path.
package pricepath

import (
	"math"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

// Params configures one path's stochastic process.
type Params struct {
	Mu               float64 // drift
	Sigma            float64 // volatility
	JumpIntensity    float64 // lambda, expected jumps per unit time
	JumpMean         float64
	JumpStd          float64
	MeanReversion    float64 // kappa, 0 disables
	Anchor           float64 // reversion target in log-price space
	ArbResponsiveness float64 // how fast arbitrage corrects toward external price, [0.05, 1]
}

// RegimeShift, when set on a Path, switches Params at a uniformly chosen
// step in [0.3*steps, 0.7*steps] from a low-vol/no-jump configuration to a
// high-vol/jump configuration.
type RegimeShift struct {
	Before, After Params
	SwitchStep    int
}

// Path is a finite, restartable log-price sequence of steps+1 points,
// starting at log-price 0.
type Path struct {
	Steps  int
	Dt     float64
	Params Params
	Shift  *RegimeShift // nil for non-shifting regimes
}

// NewFastPath builds a path using the engine's fast-path step count and
// time increment (spec §4.6: FAST_PATH_STEPS=96, dt=1/365).
func NewFastPath(p Params) Path {
	return Path{Steps: candidate.FastPathSteps, Dt: candidate.FastPathDt, Params: p}
}

// NewRegimeShiftPath builds a fast path that switches parameters mid-run.
// The switch step is drawn uniformly from [0.3*steps, 0.7*steps] using src,
// so callers control determinism by supplying the engine's RNG.
func NewRegimeShiftPath(src rng.Source, before, after Params) Path {
	steps := candidate.FastPathSteps
	lo := int(0.3 * float64(steps))
	hi := int(0.7 * float64(steps))
	if hi <= lo {
		hi = lo + 1
	}
	switchStep := lo + int(src.Uniform()*float64(hi-lo))
	return Path{
		Steps:  steps,
		Dt:     candidate.FastPathDt,
		Params: before,
		Shift:  &RegimeShift{Before: before, After: after, SwitchStep: switchStep},
	}
}

// Generate draws one realization of the path's log-price sequence using
// src. The returned slice has Steps+1 entries, logPrices[0] == 0.
func (p Path) Generate(src rng.Source) []float64 {
	out := make([]float64, p.Steps+1)
	logS := 0.0
	out[0] = logS
	for step := 1; step <= p.Steps; step++ {
		params := p.Params
		if p.Shift != nil {
			if step-1 < p.Shift.SwitchStep {
				params = p.Shift.Before
			} else {
				params = p.Shift.After
			}
		}
		logS = stepLogPrice(src, logS, params, p.Dt)
		out[step] = logS
	}
	return out
}

// stepLogPrice advances one Euler-Maruyama step of:
//
//	d log S = (mu - sigma^2/2)*dt + sigma*sqrt(dt)*Z + J + kappa*(anchor - log S)*dt
//
// where J is nonzero with probability lambda*dt and equals jumpMean +
// jumpStd*Z' when it fires.
func stepLogPrice(src rng.Source, logS float64, p Params, dt float64) float64 {
	drift := (p.Mu - 0.5*p.Sigma*p.Sigma) * dt
	diffusion := p.Sigma * math.Sqrt(dt) * src.Gaussian()
	jump := 0.0
	if src.PoissonEvent(p.JumpIntensity * dt) {
		jump = p.JumpMean + p.JumpStd*src.Gaussian()
	}
	reversion := 0.0
	if p.MeanReversion > 0 {
		reversion = p.MeanReversion * (p.Anchor - logS) * dt
	}
	next := logS + drift + diffusion + jump + reversion
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return logS
	}
	return next
}

// Preset parameter sets for the four engine regimes (spec §3's Regime
// enum). Values are chosen to be clearly distinguishable in volatility and
// jump behavior while remaining inside the bounds the regime mapper (C12)
// declares for RegimeVector.
func LowVolParams() Params {
	return Params{Mu: 0, Sigma: 0.25, ArbResponsiveness: 0.5}
}

func HighVolParams() Params {
	return Params{Mu: 0, Sigma: 0.75, ArbResponsiveness: 0.5}
}

func JumpDiffusionParams() Params {
	return Params{Mu: 0, Sigma: 0.4, JumpIntensity: 2.0, JumpMean: 0, JumpStd: 0.3, ArbResponsiveness: 0.5}
}

// RegimeShiftPair returns the before/after parameter pair for the
// regime-shift regime: low-volatility/no-jump, switching to
// high-volatility/jump mid-path (spec §4.4).
func RegimeShiftPair() (before, after Params) {
	before = Params{Mu: 0, Sigma: 0.2, ArbResponsiveness: 0.4}
	after = Params{Mu: 0, Sigma: 0.8, JumpIntensity: 3.0, JumpStd: 0.35, ArbResponsiveness: 0.6}
	return
}

// ParamsForRegime returns the default stochastic parameters for a named
// engine regime. regime-shift and any unknown regime get LowVolParams; the
// switching path itself is built by NewRegimeShiftPath.
func ParamsForRegime(regime candidate.Regime) Params {
	switch regime {
	case candidate.RegimeLowVol:
		return LowVolParams()
	case candidate.RegimeHighVol:
		return HighVolParams()
	case candidate.RegimeJumpDiffusion:
		return JumpDiffusionParams()
	default:
		return LowVolParams()
	}
}

// NewPathForRegime builds a fresh fast path appropriate for regime,
// handling the regime-shift special case which needs the RNG to pick its
// switch point.
func NewPathForRegime(src rng.Source, regime candidate.Regime) Path {
	if regime == candidate.RegimeShift {
		before, after := RegimeShiftPair()
		return NewRegimeShiftPath(src, before, after)
	}
	return NewFastPath(ParamsForRegime(regime))
}
