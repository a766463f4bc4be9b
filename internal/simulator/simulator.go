// Package simulator implements the single-path AMM simulator (C5, spec
// §4.5): a trading loop over a mutable copy of a candidate's bins that
// accrues fees, slippage, arbitrage leakage, and tracks LP value against a
// HODL baseline.
package simulator

import (
	"math"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/density"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

// Result is the per-path output (spec §4.5's "Output metrics (per path)").
type Result struct {
	Metrics     candidate.Metrics
	PathMin     float64 // minimum log-price visited
	PathMax     float64 // maximum log-price visited
	Returns     []float64
	LPValueSeries []float64 // normalized by TOTAL_LIQUIDITY, used for display equity curves
}

// Run simulates one path of logPrices (the "external" reference price
// sequence from C4) against a starting bin density, returning the
// accumulated metrics.
func Run(src rng.Source, bins []float64, logPrices []float64, arbResponsiveness float64) Result {
	working := append([]float64(nil), bins...)
	currentLogPrice := 0.0

	totalFees := 0.0
	slippageWeighted := 0.0
	arbLeakage := 0.0

	peak := candidate.TotalLiquidity
	maxDrawdown := 0.0
	returns := make([]float64, 0, len(logPrices))
	lpSeries := make([]float64, 0, len(logPrices))

	pathMin, pathMax := logPrices[0], logPrices[0]
	prevLPValue := candidate.TotalLiquidity

	for _, external := range logPrices {
		if external < pathMin {
			pathMin = external
		}
		if external > pathMax {
			pathMax = external
		}

		// 1. Execute 1 + floor(3*U) random trades.
		numTrades := 1 + int(3*src.Uniform())
		for t := 0; t < numTrades; t++ {
			size := candidate.TotalLiquidity * 0.01 * math.Exp(0.5*src.Gaussian()-1)
			dir := density.Buy
			if src.Uniform() < 0.5 {
				dir = density.Sell
			}
			fee := size * candidate.FeeRate
			effectiveSize := size - fee
			startLogPrice := currentLogPrice
			_, slippage, newPrice := density.PriceImpact(working, startLogPrice, effectiveSize, dir)
			totalFees += fee
			slippageWeighted += slippage * effectiveSize
			currentLogPrice = newPrice
			consumeTrade(working, startLogPrice, effectiveSize, dir)
		}

		// 2. Arbitrage correction.
		deviation := external - currentLogPrice
		if math.Abs(deviation) >= candidate.ArbThreshold {
			arbSize := math.Abs(deviation) * candidate.TotalLiquidity * 0.1
			fee := arbSize * candidate.FeeRate
			profit := arbSize*math.Abs(deviation) - fee
			if profit > 0 {
				arbLeakage += profit
				totalFees += fee
				currentLogPrice += (external - currentLogPrice) * arbResponsiveness
			}
		}

		// 3. Set current to external.
		currentLogPrice = external

		// 4. LP value, peak/drawdown, returns.
		reserveX, reserveY := density.DeriveReserves(working, currentLogPrice)
		lpValue := reserveX*math.Exp(external) + reserveY + totalFees
		if lpValue > peak {
			peak = lpValue
		}
		if peak > 0 {
			dd := (peak - lpValue) / peak
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
		if prevLPValue > 0 {
			returns = append(returns, (lpValue-prevLPValue)/prevLPValue)
		} else {
			returns = append(returns, 0)
		}
		prevLPValue = lpValue
		lpSeries = append(lpSeries, lpValue/candidate.TotalLiquidity)
	}

	finalExternal := logPrices[len(logPrices)-1]
	hodl := candidate.TotalLiquidity * 0.5 * (math.Exp(finalExternal) + 1)
	finalReserveX, finalReserveY := density.DeriveReserves(working, currentLogPrice)
	finalLPValue := finalReserveX*math.Exp(finalExternal) + finalReserveY + totalFees

	lpValueVsHodl := 0.0
	if hodl > 0 {
		lpValueVsHodl = finalLPValue / hodl
	}

	utilization := computeUtilization(working, pathMin, pathMax)
	volatility := stdDev(returns)

	metrics := candidate.Metrics{
		TotalFees:            totalFees,
		TotalSlippage:        safeDiv(slippageWeighted, candidate.TotalLiquidity),
		ArbLeakage:           arbLeakage,
		LiquidityUtilization: utilization,
		LPValueVsHodl:        lpValueVsHodl,
		MaxDrawdown:          maxDrawdown,
		VolatilityOfReturns:  volatility,
	}

	return Result{
		Metrics:       metrics,
		PathMin:       pathMin,
		PathMax:       pathMax,
		Returns:       returns,
		LPValueSeries: lpSeries,
	}
}

// consumeTrade removes the traded liquidity from working bins along the
// same walk PriceImpact used, so subsequent trades see depleted liquidity.
func consumeTrade(bins []float64, refLogPrice float64, size float64, dir density.Direction) {
	// Re-walk and subtract mass consumed, mirroring density.PriceImpact's
	// internal walk so the working copy reflects what was actually traded.
	idx := binIndexFor(refLogPrice)
	remaining := size
	step := 1
	if dir == density.Sell {
		step = -1
	}
	for i := idx; i >= 0 && i < len(bins) && remaining > 1e-15; i += step {
		if bins[i] <= 0 {
			continue
		}
		consumed := math.Min(bins[i], remaining)
		bins[i] -= consumed
		remaining -= consumed
	}
}

func binIndexFor(logPrice float64) int {
	i := int(math.Floor((logPrice - candidate.LogPriceMin) / candidate.BinWidth))
	if i < 0 {
		return 0
	}
	if i >= candidate.NumBins {
		return candidate.NumBins - 1
	}
	return i
}

// computeUtilization is the fraction of total mass held in bins whose
// centers lie within [pathMin - BIN_WIDTH, pathMax + BIN_WIDTH].
func computeUtilization(bins []float64, pathMin, pathMax float64) float64 {
	lo := pathMin - candidate.BinWidth
	hi := pathMax + candidate.BinWidth
	inRange, total := 0.0, 0.0
	for i, mass := range bins {
		total += mass
		center := candidate.BinCenter(i)
		if center >= lo && center <= hi {
			inRange += mass
		}
	}
	return safeDiv(inRange, total)
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
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
