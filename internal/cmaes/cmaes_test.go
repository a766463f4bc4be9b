package cmaes

import (
	"math"
	"sort"
	"testing"

	"github.com/sawpanic/amm-discovery/internal/rng"
)

func sphere(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return s
}

func TestUpdate_ConvergesOnSphere(t *testing.T) {
	n := 6
	initMean := make([]float64, n)
	for i := range initMean {
		initMean[i] = 1.0
	}
	s := New(n, initMean, 0.5)
	src := rng.New(42)

	for gen := 0; gen < 80; gen++ {
		samples := s.Sample(src)
		ranked := make([]RankedSolution, len(samples))
		for i, x := range samples {
			ranked[i] = RankedSolution{X: x, Fitness: sphere(x)}
		}
		sort.Slice(ranked, func(i, j int) bool { return ranked[i].Fitness < ranked[j].Fitness })
		s.Update(ranked)
	}

	normM := 0.0
	for _, v := range s.Mean {
		normM += v * v
	}
	normM = math.Sqrt(normM)
	if normM > 0.3 {
		t.Fatalf("mean norm after convergence = %f, want small", normM)
	}
}

func TestExpand_Produces64BinsSummingToTotal(t *testing.T) {
	reduced := make([]float64, 16)
	for i := range reduced {
		reduced[i] = float64(i + 1)
	}
	bins := Expand(reduced)
	if len(bins) != 64 {
		t.Fatalf("got %d bins, want 64", len(bins))
	}
	sum := 0.0
	for _, b := range bins {
		if b < 0 {
			t.Fatalf("negative bin: %f", b)
		}
		sum += b
	}
	if math.Abs(sum-1000) > 1e-6 {
		t.Fatalf("sum = %f, want 1000", sum)
	}
}

func TestCompressExpand_RoundTripBoundedError(t *testing.T) {
	reduced := make([]float64, 16)
	for i := range reduced {
		reduced[i] = 10 + float64(i)
	}
	expanded := Expand(reduced)
	compressed := Compress(expanded, 16)

	// Normalize both to compare shape, not absolute scale (Expand rescales
	// to TOTAL_LIQUIDITY while the original reduced vector wasn't
	// normalized).
	normalize := func(xs []float64) []float64 {
		sum := 0.0
		for _, v := range xs {
			sum += v
		}
		out := make([]float64, len(xs))
		for i, v := range xs {
			out[i] = v / sum
		}
		return out
	}
	a := normalize(reduced)
	b := normalize(compressed)
	maxErr := 0.0
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > maxErr {
			maxErr = d
		}
	}
	if maxErr > 0.05 {
		t.Fatalf("round-trip error too large: %f", maxErr)
	}
}

func TestSample_RespectsLambda(t *testing.T) {
	s := New(16, nil, 0.3)
	src := rng.New(1)
	samples := s.Sample(src)
	if len(samples) != s.Lambda {
		t.Fatalf("got %d samples, want %d", len(samples), s.Lambda)
	}
	for _, x := range samples {
		if len(x) != 16 {
			t.Fatalf("sample dim = %d, want 16", len(x))
		}
	}
}

func TestNew_SigmaClamped(t *testing.T) {
	s := New(8, nil, 100)
	if s.Sigma > sigmaMax {
		t.Fatalf("sigma = %f, want <= %f", s.Sigma, sigmaMax)
	}
	s2 := New(8, nil, -5)
	if s2.Sigma < sigmaMin {
		t.Fatalf("sigma = %f, want >= %f", s2.Sigma, sigmaMin)
	}
}
