package rng

import (
	"math"
	"testing"
)

func TestDeterministic_ReplaySameSeed(t *testing.T) {
	a := New(42)
	b := New(42)

	for i := 0; i < 1000; i++ {
		ua, ub := a.Uniform(), b.Uniform()
		if ua != ub {
			t.Fatalf("uniform mismatch at %d: %f != %f", i, ua, ub)
		}
		ga, gb := a.Gaussian(), b.Gaussian()
		if ga != gb {
			t.Fatalf("gaussian mismatch at %d: %f != %f", i, ga, gb)
		}
	}
}

func TestDeterministic_Reset(t *testing.T) {
	a := New(7)
	first := make([]float64, 50)
	for i := range first {
		first[i] = a.Uniform()
	}
	a.Reset()
	for i := range first {
		if got := a.Uniform(); got != first[i] {
			t.Fatalf("reset replay mismatch at %d: %f != %f", i, got, first[i])
		}
	}
}

func TestDeterministic_UniformBounds(t *testing.T) {
	d := New(1)
	for i := 0; i < 100000; i++ {
		u := d.Uniform()
		if u <= 0 || u >= 1 {
			t.Fatalf("uniform out of (0,1): %f", u)
		}
	}
}

func TestDeterministic_GaussianFinite(t *testing.T) {
	d := New(2)
	for i := 0; i < 100000; i++ {
		g := d.Gaussian()
		if math.IsNaN(g) || math.IsInf(g, 0) {
			t.Fatalf("gaussian not finite: %f", g)
		}
	}
}

func TestDeterministic_PoissonEventRateZero(t *testing.T) {
	d := New(3)
	for i := 0; i < 100; i++ {
		if d.PoissonEvent(0) {
			t.Fatal("zero-rate poisson event fired")
		}
	}
}

func TestDeterministic_PoissonEventFrequency(t *testing.T) {
	d := New(4)
	const n = 200000
	const rate = 0.2
	count := 0
	for i := 0; i < n; i++ {
		if d.PoissonEvent(rate) {
			count++
		}
	}
	frac := float64(count) / n
	if math.Abs(frac-rate) > 0.01 {
		t.Fatalf("poisson frequency %.4f far from rate %.4f", frac, rate)
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a := New(1)
	b := New(2)
	same := 0
	for i := 0; i < 20; i++ {
		if a.Uniform() == b.Uniform() {
			same++
		}
	}
	if same == 20 {
		t.Fatal("different seeds produced identical sequences")
	}
}
