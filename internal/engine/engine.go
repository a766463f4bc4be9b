// Package engine implements the top-level engine loop (C13, spec §4.13):
// round-robin regime rotation, per-tick archive promotion, and the bounded
// activity log, wrapping the evolution step the way the teacher's scheduler
// wraps its scan jobs.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/cmaes"
	"github.com/sawpanic/amm-discovery/internal/config"
	"github.com/sawpanic/amm-discovery/internal/evolution"
	"github.com/sawpanic/amm-discovery/internal/mapelites"
	"github.com/sawpanic/amm-discovery/internal/rng"
	"github.com/sawpanic/amm-discovery/internal/scoring"
)

// mlGuidanceEnabled gates whether Tick asks the C8 recommender for guidance
// at all (internal/config.EngineConfig.MLGuidance). Defaults on, matching
// the spec's always-on recommender; ApplyFeatureFlags can turn it off.
var mlGuidanceEnabled = true

// cmaesInitSigma is the starting step size for a freshly created per-regime
// CMA-ES instance (spec §4.10 leaves this to the implementation; 0.3 keeps
// the first few generations' samples close to the seeding population).
const cmaesInitSigma = 0.3

// ApplyFeatureFlags installs the process-wide C8 toggle (MLGuidance) and the
// population size from internal/config.EngineConfig. Call once at startup,
// before any Engine ticks; like ApplyTuning, it affects every Engine in the
// process. CMA-ES sampling (C10) is not set here: it is per engine, via
// SetCMAESEnabled.
func ApplyFeatureFlags(cfg config.EngineConfig) {
	mlGuidanceEnabled = cfg.MLGuidance
	if cfg.PopulationSize > 0 {
		candidate.SetPopulationSize(cfg.PopulationSize)
	} else {
		candidate.SetPopulationSize(0)
	}
}

// ApplyTuning installs profile's per-regime elite-fraction/exploration
// bounds into internal/evolution, so every subsequent Tick on every Engine
// in the process picks them up. Regimes the profile doesn't mention keep
// whatever bounds they already had.
func ApplyTuning(profile config.TuningProfile) {
	for regime, tuning := range profile.Regimes {
		evolution.SetRegimeBounds(candidate.Regime(regime), evolution.RegimeBounds{
			EliteFraction:    tuning.EliteFraction,
			ExplorationFloor: tuning.ExplorationFloor,
			ExplorationCeil:  tuning.ExplorationCeil,
		})
	}
}

// Cycle is the fixed regime rotation the engine loop advances through
// (spec §4.13). CycleWithShift additionally visits the regime-shift regime.
var Cycle = []candidate.Regime{
	candidate.RegimeLowVol,
	candidate.RegimeHighVol,
	candidate.RegimeJumpDiffusion,
}

var CycleWithShift = []candidate.Regime{
	candidate.RegimeLowVol,
	candidate.RegimeHighVol,
	candidate.RegimeJumpDiffusion,
	candidate.RegimeShift,
}

// Engine drives one EngineState forward tick by tick. It owns its RNG and
// its EngineState; nothing is shared between engine instances (spec's
// scheduling model requires each engine to be independently seedable).
type Engine struct {
	mu      sync.RWMutex
	state   *candidate.EngineState
	src     rng.Source
	cycle   []candidate.Regime
	limiter *rate.Limiter
	stopCh  chan struct{}

	incumbent map[string]float64

	// grids and cmaesStates are the per-regime C11/C10 collaborators this
	// engine owns across ticks. Neither is part of EngineState: a grid's
	// cells and a CMA-ES instance's covariance matrix aren't meaningful to
	// serialize through get_state/set_state, so a restored engine rebuilds
	// them from scratch rather than round-tripping them.
	grids        map[candidate.Regime]*mapelites.Grid
	cmaesStates  map[candidate.Regime]*cmaes.State
	cmaesEnabled bool
}

// New builds an engine seeded deterministically, rotating through cycle.
// ticksPerSecond bounds how fast Run drives ticks; pass 0 for unlimited.
func New(seed int64, cycle []candidate.Regime, ticksPerSecond float64) *Engine {
	if len(cycle) == 0 {
		cycle = Cycle
	}
	var limiter *rate.Limiter
	if ticksPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ticksPerSecond), 1)
	}
	return &Engine{
		state:       candidate.NewEngineState(cycle),
		src:         rng.New(seed),
		cycle:       cycle,
		limiter:     limiter,
		incumbent:   make(map[string]float64),
		grids:       make(map[candidate.Regime]*mapelites.Grid),
		cmaesStates: make(map[candidate.Regime]*cmaes.State),
	}
}

// SetCMAESEnabled turns C10 sampling on or off for this engine instance
// (internal/config.EngineConfig.CMAESSampling). Off by default: CMA-ES
// converges the population toward a single mean/covariance, which trades
// away some of the diversity the MAP-Elites grid is trying to preserve, so
// an operator opts in deliberately rather than getting it for free.
func (e *Engine) SetCMAESEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmaesEnabled = enabled
}

// State returns a deep copy of the current engine state, safe for an
// observer (HTTP handler, websocket broadcaster) to retain.
func (e *Engine) State() *candidate.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Clone()
}

// SetState replaces the engine's state with a deep copy of s (spec §6
// set_state contract).
func (e *Engine) SetState(s *candidate.EngineState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s.Clone()
}

// Running reports whether Run's loop is currently active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Running
}

// Run advances the engine one tick at a time until ctx is cancelled or Stop
// is called. The loop finishes its current tick before honoring a stop
// request — a tick is never observed half-applied.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.state.Running {
		e.mu.Unlock()
		return nil
	}
	e.state.Running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.state.Running = false
		e.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		default:
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		e.Tick()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		default:
		}
	}
}

// Stop requests the running loop to halt after its current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Running && e.stopCh != nil {
		select {
		case <-e.stopCh:
		default:
			close(e.stopCh)
		}
	}
}

// Tick performs exactly one engine-loop iteration (spec §4.13 steps 1-4)
// and returns a snapshot of the resulting state. Safe to call directly
// (e.g. from a CLI "generate" command) without Run's loop.
func (e *Engine) Tick() *candidate.EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()

	cycleLen := int64(len(e.cycle))
	regime := e.cycle[e.state.TotalGenerations%cycleLen]

	pop := e.state.Populations[regime]
	if pop == nil {
		pop = candidate.NewPopulationState(regime)
	}

	grid, ok := e.grids[regime]
	if !ok {
		grid = mapelites.New(mapelites.DefaultRows, mapelites.DefaultCols)
		e.grids[regime] = grid
	}

	var cm *cmaes.State
	if e.cmaesEnabled {
		cm, ok = e.cmaesStates[regime]
		if !ok {
			cm = cmaes.New(cmaes.DefaultDim, nil, cmaesInitSigma)
			e.cmaesStates[regime] = cm
		}
	}

	rec := buildRecommendation(pop)
	result := evolution.StepRegimeWithOptions(e.src, regime, pop, rec, evolution.StepOptions{Grid: grid, CMAES: cm})
	newPop := result.Population

	qualifying := filterQualifying(newPop.Candidates)
	newPop.ArchiveBuffer = appendDeduped(newPop.ArchiveBuffer, qualifying)

	if newPop.Generation > 0 && newPop.Generation%candidate.ArchiveRoundInterval == 0 && len(newPop.ArchiveBuffer) > 0 {
		promoted := e.selectPromotions(newPop.ArchiveBuffer)
		if len(promoted) > 0 {
			e.state.AppendArchive(candidate.PersistentArchiveCap, promoted...)
		}
		newPop.ArchiveBuffer = nil
	}

	e.state.Populations[regime] = newPop
	for _, ev := range result.Events {
		ev.Timestamp = time.Now()
		e.state.AppendEvent(ev)
	}
	e.state.TotalGenerations++

	return e.state.Clone()
}

// buildRecommendation asks the ML recommender (C8) for guidance from the
// population's current pool, falling back to no guidance on a thin pool or
// when mlGuidanceEnabled has been turned off.
func buildRecommendation(pop *candidate.PopulationState) *scoring.Recommendation {
	if !mlGuidanceEnabled || pop == nil || len(pop.Candidates) == 0 {
		return nil
	}
	rec, ok := scoring.Recommend(pop.Candidates)
	if !ok {
		return nil
	}
	return &rec
}

// passesArchiveThreshold decides whether a candidate is healthy enough to
// enter the archive buffer. Spec §8's worked example (fees=10, slippage=
// 0.03, arb_leakage=20, utilization=0.5, lp_vs_hodl=1.02, drawdown=0.2,
// vol_of_returns=0.05, stability=0.12) must pass; this resolves the open
// question of the exact cutoffs (see DESIGN.md).
func passesArchiveThreshold(m candidate.Metrics, stability float64) bool {
	if m.LPValueVsHodl < 0.8 {
		return false
	}
	if m.TotalSlippage > 0.1 {
		return false
	}
	if m.MaxDrawdown > 0.5 {
		return false
	}
	if stability > 0.5 {
		return false
	}
	if m.ArbLeakage/candidate.TotalLiquidity > 0.1 {
		return false
	}
	return true
}

func filterQualifying(pool []candidate.Candidate) []candidate.Candidate {
	out := make([]candidate.Candidate, 0, len(pool))
	for _, c := range pool {
		if passesArchiveThreshold(c.Metrics, c.Stability) {
			out = append(out, c.Clone())
		}
	}
	return out
}

func appendDeduped(buffer, fresh []candidate.Candidate) []candidate.Candidate {
	seen := make(map[string]bool, len(buffer))
	for _, c := range buffer {
		seen[c.ID] = true
	}
	for _, c := range fresh {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		buffer = append(buffer, c)
	}
	return buffer
}

// familyComboKey groups candidates for dedup-by-family-combo promotion
// (spec §4.13 step 3): the (regime, family) pair a candidate was evolved
// under.
func familyComboKey(c candidate.Candidate) string {
	return string(c.Regime) + "|" + string(c.FamilyID)
}

// selectPromotions implements spec §4.13 step 3's promotion rule: within
// the buffer, keep the best-scoring candidate per family-combo, then admit
// only those that beat their combo's all-time incumbent by at least
// ARCHIVE_MIN_SCORE_IMPROVE, capped at ARCHIVE_BATCH_LIMIT best-first.
func (e *Engine) selectPromotions(buffer []candidate.Candidate) []candidate.Candidate {
	bestByCombo := make(map[string]candidate.Candidate, len(buffer))
	for _, c := range buffer {
		key := familyComboKey(c)
		if cur, ok := bestByCombo[key]; !ok || c.Score < cur.Score {
			bestByCombo[key] = c
		}
	}

	candidates := make([]candidate.Candidate, 0, len(bestByCombo))
	for key, c := range bestByCombo {
		incumbent, ok := e.incumbent[key]
		if ok && incumbent-c.Score < candidate.ArchiveMinScoreImprove {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score < candidates[j].Score })
	if len(candidates) > candidate.ArchiveBatchLimit {
		candidates = candidates[:candidate.ArchiveBatchLimit]
	}

	for _, c := range candidates {
		e.incumbent[familyComboKey(c)] = c.Score
	}
	return candidates
}
