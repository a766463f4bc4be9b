package evolution

import (
	"math"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

// MutateBins applies one of spec §4.9's three mutation operators, chosen
// uniformly: local perturbation, smoothing, or redistribution. Every
// mutation ends with clamp >= 0 and normalize.
func MutateBins(src rng.Source, bins []float64, intensity float64) []float64 {
	switch int(src.Uniform() * 3) {
	case 0:
		return localPerturbation(src, bins, intensity)
	case 1:
		return smoothing(src, bins)
	default:
		return redistribution(src, bins)
	}
}

func localPerturbation(src rng.Source, bins []float64, intensity float64) []float64 {
	out := append([]float64(nil), bins...)
	n := len(out)
	subsetSize := 1 + int(src.Uniform()*float64(n/4))
	for i := 0; i < subsetSize; i++ {
		idx := int(src.Uniform() * float64(n))
		out[idx] += src.Gaussian() * intensity * candidate.TotalLiquidity / float64(n)
	}
	return clampAndNormalize(out)
}

func smoothing(src rng.Source, bins []float64) []float64 {
	n := len(bins)
	radius := 1 + int(src.Uniform()*3)
	ratio := 0.2 + src.Uniform()*0.3
	smoothed := make([]float64, n)
	for i := range bins {
		sum, count := 0.0, 0.0
		for d := -radius; d <= radius; d++ {
			j := i + d
			if j < 0 || j >= n {
				continue
			}
			sum += bins[j]
			count++
		}
		smoothed[i] = sum / count
	}
	out := make([]float64, n)
	for i := range bins {
		out[i] = bins[i]*(1-ratio) + smoothed[i]*ratio
	}
	return clampAndNormalize(out)
}

func redistribution(src rng.Source, bins []float64) []float64 {
	n := len(bins)
	out := append([]float64(nil), bins...)
	width := 4 + int(src.Uniform()*8)
	srcStart := int(src.Uniform() * float64(n))
	dstStart := int(src.Uniform() * float64(n))
	amount := src.Uniform() * candidate.TotalLiquidity * 0.1

	perBin := amount / float64(width)
	for w := 0; w < width; w++ {
		si := (srcStart + w) % n
		di := (dstStart + w) % n
		move := math.Min(perBin, out[si]*0.3)
		out[si] -= move
		out[di] += move
	}
	return clampAndNormalize(out)
}

// remediateWeaknesses applies shape edits targeted at the named weak axes
// (spec §4.9 "Targeted mutations").
func remediateWeaknesses(src rng.Source, bins []float64, weakAxes []string, intensity float64) []float64 {
	out := append([]float64(nil), bins...)
	n := len(out)
	for _, axis := range weakAxes {
		switch axis {
		case "utilization":
			center := n / 2
			for i := range out {
				d := float64(i - center)
				out[i] += intensity * candidate.TotalLiquidity / float64(n) * math.Exp(-d*d/float64(n))
			}
		case "low_slippage":
			out = smoothBlend(out, 0.3*intensity*4)
		case "fees":
			floor := 0.3 * candidate.TotalLiquidity / float64(n)
			for i := range out {
				if out[i] < floor {
					out[i] = floor
				}
			}
		case "low_arb_leak":
			center := n / 2
			for i := range out {
				d := math.Abs(float64(i-center)) / float64(n/2)
				out[i] *= 1 - intensity*d
			}
		case "stability", "low_drawdown":
			uniform := candidate.TotalLiquidity / float64(n)
			for i := range out {
				out[i] = out[i]*(1-intensity) + uniform*intensity
			}
		case "lp_value":
			center := int(float64(n)*0.6)
			for i := range out {
				d := float64(i - center)
				out[i] += intensity * candidate.TotalLiquidity / float64(n) * math.Exp(-d*d/float64(n))
			}
		}
	}
	return clampAndNormalize(out)
}

// amplifyStrengths nudges the candidate further along axes it is already
// strong on, applying the complementary edits at a lower intensity.
func amplifyStrengths(src rng.Source, bins []float64, weakAxes []string, intensity float64) []float64 {
	out := append([]float64(nil), bins...)
	weak := make(map[string]bool, len(weakAxes))
	for _, a := range weakAxes {
		weak[a] = true
	}
	if !weak["utilization"] {
		center := len(out) / 2
		for i := range out {
			d := float64(i - center)
			out[i] += intensity * candidate.TotalLiquidity / float64(len(out)) * math.Exp(-d*d/float64(len(out)))
		}
	}
	return clampAndNormalize(out)
}

func smoothBlend(bins []float64, ratio float64) []float64 {
	n := len(bins)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	smoothed := make([]float64, n)
	for i := range bins {
		sum, count := 0.0, 0.0
		for d := -1; d <= 1; d++ {
			j := i + d
			if j < 0 || j >= n {
				continue
			}
			sum += bins[j]
			count++
		}
		smoothed[i] = sum / count
	}
	out := make([]float64, n)
	for i := range bins {
		out[i] = bins[i]*(1-ratio) + smoothed[i]*ratio
	}
	return out
}

// CrossoverUniform swaps each bin between a and b with 50% probability.
func CrossoverUniform(src rng.Source, a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		if src.Uniform() < 0.5 {
			out[i] = a[i]
		} else {
			out[i] = b[i]
		}
	}
	return clampAndNormalize(out)
}

// CrossoverSegment blends a and b across a segment of width 4..9 bins
// starting at a crossover point in [0.3N, 0.7N].
func CrossoverSegment(src rng.Source, a, b []float64) []float64 {
	n := len(a)
	point := int(0.3*float64(n) + src.Uniform()*0.4*float64(n))
	width := 4 + int(src.Uniform()*6)
	out := append([]float64(nil), a...)
	for w := 0; w < width; w++ {
		i := (point + w) % n
		t := float64(w) / float64(width)
		out[i] = a[i]*(1-t) + b[i]*t
	}
	return clampAndNormalize(out)
}

// CrossoverArithmetic blends a and b uniformly at a fixed ratio.
func CrossoverArithmetic(a, b []float64, ratio float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i]*(1-ratio) + b[i]*ratio
	}
	return clampAndNormalize(out)
}

// CrossoverParams interpolates two parameter maps per-key with a bias and a
// small range-scaled Gaussian noise, clamped to each key's declared range.
func CrossoverParams(src rng.Source, a, b map[string]float64, ranges map[string]candidate.ParamRange, bias float64) map[string]float64 {
	out := make(map[string]float64, len(a))
	for k, va := range a {
		vb := b[k]
		v := va*(1-bias) + vb*bias
		if r, ok := ranges[k]; ok {
			noise := src.Gaussian() * 0.02 * (r.Max - r.Min)
			v = reflectClampLocal(v+noise, r.Min, r.Max)
		}
		out[k] = v
	}
	return out
}

func reflectClampLocal(v, lo, hi float64) float64 {
	for v < lo || v > hi {
		if v < lo {
			v = lo + (lo - v)
		}
		if v > hi {
			v = hi - (v - hi)
		}
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
