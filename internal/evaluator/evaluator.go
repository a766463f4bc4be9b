// Package evaluator implements the multi-path evaluator (C6, spec §4.6):
// it runs a candidate's bins through several independent C5 simulations
// drawn from C4 and aggregates them into the candidate's metrics and
// stability score.
package evaluator

import (
	"math"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/pricepath"
	"github.com/sawpanic/amm-discovery/internal/rng"
	"github.com/sawpanic/amm-discovery/internal/simulator"
)

// Result is the aggregated evaluation output: the metrics to attach to a
// candidate, its stability, and an optional display-only equity curve.
type Result struct {
	Metrics     candidate.Metrics
	Stability   float64
	EquityCurve []float64 // nil unless WithEquityCurve is requested
}

// Options controls how many paths to spend on an evaluation.
type Options struct {
	TrainPaths      int
	EvalPaths       int
	ArbResponsiveness float64
	WithEquityCurve bool
}

// DefaultOptions budgets MAX_PATHS_PER_EVAL paths for both train and eval
// (spec §4.6).
func DefaultOptions() Options {
	return Options{
		TrainPaths:        candidate.MaxPathsPerEval,
		EvalPaths:         candidate.MaxPathsPerEval,
		ArbResponsiveness: 0.5,
	}
}

// Evaluate runs train and eval paths for bins under regime, returning the
// averaged eval metrics and the stability computed over all paths.
func Evaluate(src rng.Source, bins []float64, regime candidate.Regime, opts Options) Result {
	return EvaluateWithParams(src, bins, pathFactoryForRegime(regime), opts)
}

// EvaluateWithParams is like Evaluate but draws paths from an arbitrary
// factory instead of one of the four fixed engine regimes — used by the
// regime mapper (C12) to evolve champions at off-lattice RegimeVectors.
func EvaluateWithParams(src rng.Source, bins []float64, newPath func(rng.Source) pricepath.Path, opts Options) Result {
	train := clampBudget(opts.TrainPaths)
	evalN := clampBudget(opts.EvalPaths)

	allLPVsHodl := make([]float64, 0, train+evalN)
	var evalResults []simulator.Result

	for i := 0; i < train; i++ {
		path := newPath(src).Generate(src)
		res := simulator.Run(src, bins, path, opts.ArbResponsiveness)
		allLPVsHodl = append(allLPVsHodl, res.Metrics.LPValueVsHodl)
	}
	for i := 0; i < evalN; i++ {
		path := newPath(src).Generate(src)
		res := simulator.Run(src, bins, path, opts.ArbResponsiveness)
		allLPVsHodl = append(allLPVsHodl, res.Metrics.LPValueVsHodl)
		evalResults = append(evalResults, res)
	}

	metrics := averageMetrics(evalResults)
	stability := stdDev(allLPVsHodl)

	var curve []float64
	if opts.WithEquityCurve {
		path := newPath(src).Generate(src)
		extra := simulator.Run(src, bins, path, opts.ArbResponsiveness)
		curve = extra.LPValueSeries
	}

	return Result{Metrics: metrics, Stability: stability, EquityCurve: curve}
}

func pathFactoryForRegime(regime candidate.Regime) func(rng.Source) pricepath.Path {
	return func(src rng.Source) pricepath.Path {
		return pricepath.NewPathForRegime(src, regime)
	}
}

func clampBudget(requested int) int {
	if requested > candidate.MaxPathsPerEval {
		return candidate.MaxPathsPerEval
	}
	if requested < 1 {
		return 1
	}
	return requested
}

func averageMetrics(results []simulator.Result) candidate.Metrics {
	if len(results) == 0 {
		return candidate.Metrics{}
	}
	var sum candidate.Metrics
	for _, r := range results {
		sum.TotalFees += r.Metrics.TotalFees
		sum.TotalSlippage += r.Metrics.TotalSlippage
		sum.ArbLeakage += r.Metrics.ArbLeakage
		sum.LiquidityUtilization += r.Metrics.LiquidityUtilization
		sum.LPValueVsHodl += r.Metrics.LPValueVsHodl
		sum.MaxDrawdown += r.Metrics.MaxDrawdown
		sum.VolatilityOfReturns += r.Metrics.VolatilityOfReturns
	}
	n := float64(len(results))
	return candidate.Metrics{
		TotalFees:            sum.TotalFees / n,
		TotalSlippage:        sum.TotalSlippage / n,
		ArbLeakage:           sum.ArbLeakage / n,
		LiquidityUtilization: sum.LiquidityUtilization / n,
		LPValueVsHodl:        sum.LPValueVsHodl / n,
		MaxDrawdown:          sum.MaxDrawdown / n,
		VolatilityOfReturns:  sum.VolatilityOfReturns / n,
	}
}

func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}
