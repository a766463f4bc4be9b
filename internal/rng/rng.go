// Package rng provides the single deterministic randomness source the
// discovery engine threads through every stochastic call, so that two
// engines seeded identically reproduce identical runs.
package rng

import "math"

// Source is the capability every stochastic component depends on. Nothing
// in the engine is permitted to reach for math/rand directly — all
// randomness flows through one Source per engine instance.
type Source interface {
	// Uniform returns a value in the open interval (0, 1).
	Uniform() float64
	// Gaussian returns a standard-normal draw via Box-Muller.
	Gaussian() float64
	// PoissonEvent reports whether a Poisson event with the given rate*dt
	// fired during this call.
	PoissonEvent(rateDt float64) bool
}

// pcg32 is a small, fixed, version-stable generator: math/rand's algorithm
// is only guaranteed stable within one Go release, which would break
// cross-version replay of seeded runs.
type pcg32 struct {
	state uint64
	inc   uint64
}

func newPCG32(seed int64) *pcg32 {
	p := &pcg32{}
	p.seed(seed)
	return p
}

func (p *pcg32) seed(seed int64) {
	p.state = 0
	p.inc = (uint64(seed) << 1) | 1
	p.uint32()
	p.state += uint64(seed)
	p.uint32()
}

func (p *pcg32) uint32() uint32 {
	oldstate := p.state
	p.state = oldstate*6364136223846793005 + p.inc
	xorshifted := uint32(((oldstate >> 18) ^ oldstate) >> 27)
	rot := uint32(oldstate >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

func (p *pcg32) uint64() uint64 {
	return (uint64(p.uint32()) << 32) | uint64(p.uint32())
}

// float64 returns a value in [0, 1) with 53 bits of precision.
func (p *pcg32) float64() float64 {
	return float64(p.uint64()>>11) / (1 << 53)
}

// Deterministic is the engine's seeded RNG. Gaussian draws use the basic
// two-uniform Box-Muller form sqrt(-2·ln u1)·cos(2π·u2) (not Marsaglia's
// polar variant), clamping u1 away from zero so log(u1) never diverges.
type Deterministic struct {
	pcg  *pcg32
	seed int64
}

// New creates a seeded deterministic source.
func New(seed int64) *Deterministic {
	return &Deterministic{pcg: newPCG32(seed), seed: seed}
}

// Reset rewinds the generator to replay the same sequence from the start.
func (d *Deterministic) Reset() {
	d.pcg.seed(d.seed)
}

// Uniform returns a value in (0, 1), never exactly 0 or 1.
func (d *Deterministic) Uniform() float64 {
	u := d.pcg.float64()
	if u <= 0 {
		return 1e-15
	}
	if u >= 1 {
		return 1 - 1e-15
	}
	return u
}

const gaussianU1Floor = 1e-15

// Gaussian draws a standard-normal value from two independent uniforms via
// Box-Muller, clamping u1 at gaussianU1Floor so log(u1) stays finite.
func (d *Deterministic) Gaussian() float64 {
	u1 := d.pcg.float64()
	if u1 < gaussianU1Floor {
		u1 = gaussianU1Floor
	}
	u2 := d.pcg.float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// PoissonEvent reports whether a Poisson event with intensity rateDt
// (rate * dt) occurred, via thinning against a single uniform draw.
func (d *Deterministic) PoissonEvent(rateDt float64) bool {
	if rateDt <= 0 {
		return false
	}
	return d.Uniform() < rateDt
}

var _ Source = (*Deterministic)(nil)
