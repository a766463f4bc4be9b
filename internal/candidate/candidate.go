// Package candidate defines the core data model shared by every component
// of the discovery engine: the bin-density candidate, its metrics and
// behavioral features, and the per-regime population/engine state that
// wraps it. Values in this package are treated as immutable after
// construction — every mutation produces a new Candidate.
package candidate

import "time"

// Engine-wide numeric constants from spec §3/§4.
const (
	NumBins           = 64
	TotalLiquidity    = 1000.0
	LogPriceMin       = -2.0
	LogPriceMax       = 2.0
	BinWidth          = (LogPriceMax - LogPriceMin) / NumBins
	DefaultPopulationSize = 40
	FeeRate           = 0.003
	ArbThreshold      = 0.005
	FastPathSteps     = 96
	FastPathDt        = 1.0 / 365.0
	MaxPathsPerEval   = 4
	EliteFraction     = 0.25
	ExplorationRate   = 0.28

	WorkerArchiveCap       = 2000
	PersistentArchiveCap   = 50000
	ArchiveRoundInterval   = 5
	ArchiveBatchLimit      = 24
	ArchiveMinScoreImprove = 0.005

	ActivityLogCap = 200
)

// PopulationSize is the per-regime target population width. Defaults to
// DefaultPopulationSize; internal/config.EngineConfig.PopulationSize lets an
// operator resize it at startup via SetPopulationSize.
var PopulationSize = DefaultPopulationSize

// SetPopulationSize overrides PopulationSize for the life of the process.
// Passing n <= 0 restores DefaultPopulationSize.
func SetPopulationSize(n int) {
	if n <= 0 {
		n = DefaultPopulationSize
	}
	PopulationSize = n
}

// Regime names the stochastic price-process configuration a candidate was
// evaluated under.
type Regime string

const (
	RegimeLowVol       Regime = "low-vol"
	RegimeHighVol      Regime = "high-vol"
	RegimeJumpDiffusion Regime = "jump-diffusion"
	RegimeShift        Regime = "regime-shift"
)

// FamilyID names an invariant family (C3).
type FamilyID string

const (
	FamilyPiecewiseBands  FamilyID = "piecewise-bands"
	FamilyAmplifiedHybrid FamilyID = "amplified-hybrid"
	FamilyTailShielded    FamilyID = "tail-shielded"
	FamilyCustom          FamilyID = "custom"
)

// PoolType distinguishes two-asset pools from multi-asset ones; multi-asset
// pools are carried as a label on the candidate — the simulator always
// operates on a single X/Y pair internally (see internal/simulator).
type PoolType string

const (
	PoolTwoAsset    PoolType = "two-asset"
	PoolMultiAsset  PoolType = "multi-asset"
)

// Source names where a candidate originated.
type Source string

const (
	SourceGlobal       Source = "global"
	SourceExperiment   Source = "experiment"
	SourceUserDesigned Source = "user-designed"
)

// Metrics is the tuple of per-evaluation performance metrics (spec §3).
type Metrics struct {
	TotalFees            float64 `json:"total_fees"`
	TotalSlippage        float64 `json:"total_slippage"`
	ArbLeakage           float64 `json:"arb_leakage"`
	LiquidityUtilization float64 `json:"liquidity_utilization"`
	LPValueVsHodl        float64 `json:"lp_value_vs_hodl"`
	MaxDrawdown          float64 `json:"max_drawdown"`
	VolatilityOfReturns  float64 `json:"volatility_of_returns"`
}

// Features is the tuple of behavioral/shape features (spec §3/§4.7).
type Features struct {
	Curvature           float64 `json:"curvature"`
	CurvatureGradient   float64 `json:"curvature_gradient"`
	Entropy             float64 `json:"entropy"`
	Symmetry            float64 `json:"symmetry"`
	TailDensityRatio    float64 `json:"tail_density_ratio"`
	PeakConcentration   float64 `json:"peak_concentration"`
	ConcentrationWidth  float64 `json:"concentration_width"`
}

// Candidate is an immutable liquidity-density curve plus its family tag,
// evaluation outputs, and provenance. Build a new value instead of editing
// an existing one; never mutate a Candidate's Bins slice in place — copy it
// first.
type Candidate struct {
	ID           string             `json:"id"`
	Generation   int                `json:"generation"`
	Regime       Regime             `json:"regime"`
	Bins         []float64          `json:"bins"`
	FamilyID     FamilyID           `json:"family_id"`
	FamilyParams map[string]float64 `json:"family_params"`
	Metrics      Metrics            `json:"metrics"`
	Features     Features           `json:"features"`
	Stability    float64            `json:"stability"`
	Score        float64            `json:"score"`
	PoolType     PoolType           `json:"pool_type"`
	AssetCount   int                `json:"asset_count"`
	AdaptiveProfile string          `json:"adaptive_profile,omitempty"`
	Source       Source             `json:"source"`
	CreatedAt    time.Time          `json:"-"`
}

// BinCenter returns the log-price at the center of bin i.
func BinCenter(i int) float64 {
	return LogPriceMin + (float64(i)+0.5)*BinWidth
}

// Clone returns a deep copy safe for a caller to mutate; Candidate values
// themselves are never mutated in place once constructed.
func (c Candidate) Clone() Candidate {
	out := c
	out.Bins = append([]float64(nil), c.Bins...)
	out.FamilyParams = make(map[string]float64, len(c.FamilyParams))
	for k, v := range c.FamilyParams {
		out.FamilyParams[k] = v
	}
	return out
}
