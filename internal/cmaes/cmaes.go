// Package cmaes implements a low-dimensional covariance-matrix-adaptation
// evolution strategy (C10, spec §4.10). Dimensionality is deliberately
// small (n <= 16), so dense row-major storage and a floored Cholesky
// factorization are sufficient, per spec §9's design note — no external
// linear-algebra dependency is warranted at this scale.
package cmaes

import (
	"math"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/rng"
)

// DefaultDim is the reduced-dimensionality default from spec §4.10.
const DefaultDim = 16

const (
	sigmaMin     = 0.01
	sigmaMax     = 2.0
	choleskyFloor = 1e-10
)

// State is one CMA-ES instance's mutable parameters.
type State struct {
	N       int
	Mean    []float64
	Sigma   float64
	C       [][]float64 // covariance, n x n
	Psigma  []float64   // evolution path for sigma
	Pc      []float64   // evolution path for C
	Lambda  int
	Mu      int
	Weights []float64
	MuEff   float64
	Cc, Cs, C1, Cmu, Ds float64
	chiN    float64
	generation int
}

// New constructs a CMA-ES state of dimension n (spec default 16), with an
// initial mean and step size.
func New(n int, initMean []float64, initSigma float64) *State {
	if n <= 0 {
		n = DefaultDim
	}
	mean := make([]float64, n)
	if len(initMean) == n {
		copy(mean, initMean)
	}
	sigma := clip(initSigma, sigmaMin, sigmaMax)

	lambda := maxInt(8, int(4+3*math.Log(float64(n))))
	mu := lambda / 2

	weights := make([]float64, mu)
	sumW, sumW2 := 0.0, 0.0
	for i := 0; i < mu; i++ {
		w := math.Log(float64(mu)+0.5) - math.Log(float64(i+1))
		weights[i] = w
		sumW += w
	}
	for i := range weights {
		weights[i] /= sumW
		sumW2 += weights[i] * weights[i]
	}
	muEff := 1.0 / sumW2

	cc := (4 + muEff/float64(n)) / (float64(n) + 4 + 2*muEff/float64(n))
	cs := (muEff + 2) / (float64(n) + muEff + 5)
	c1 := 2 / (math.Pow(float64(n)+1.3, 2) + muEff)
	cmu := math.Min(1-c1, 2*(muEff-2+1/muEff)/(math.Pow(float64(n)+2, 2)+muEff))
	ds := 1 + 2*math.Max(0, math.Sqrt((muEff-1)/(float64(n)+1))-1) + cs

	C := identity(n)

	chiN := math.Sqrt(float64(n)) * (1 - 1.0/(4*float64(n)) + 1.0/(21*float64(n)*float64(n)))

	return &State{
		N:       n,
		Mean:    mean,
		Sigma:   sigma,
		C:       C,
		Psigma:  make([]float64, n),
		Pc:      make([]float64, n),
		Lambda:  lambda,
		Mu:      mu,
		Weights: weights,
		MuEff:   muEff,
		Cc:      cc,
		Cs:      cs,
		C1:      c1,
		Cmu:     cmu,
		Ds:      ds,
		chiN:    chiN,
	}
}

// Sample draws lambda candidate vectors via Cholesky factor A of C:
// x = max(0, m + sigma*A*z), z ~ N(0, I).
func (s *State) Sample(src rng.Source) [][]float64 {
	A := cholesky(s.C, s.N)
	out := make([][]float64, s.Lambda)
	for k := 0; k < s.Lambda; k++ {
		z := make([]float64, s.N)
		for i := range z {
			z[i] = src.Gaussian()
		}
		x := make([]float64, s.N)
		for i := 0; i < s.N; i++ {
			v := s.Mean[i]
			for j := 0; j <= i; j++ {
				v += s.Sigma * A[i][j] * z[j]
			}
			if v < 0 {
				v = 0
			}
			x[i] = v
		}
		out[k] = x
	}
	return out
}

// RankedSolution pairs a sampled vector with its fitness (lower is better).
type RankedSolution struct {
	X       []float64
	Fitness float64
}

// Update runs the standard rank-one + rank-mu covariance update with the
// Heaviside heuristic on the p_sigma norm, given solutions already sorted
// best-first by fitness.
func (s *State) Update(ranked []RankedSolution) {
	if len(ranked) < s.Mu {
		return
	}
	n := s.N
	oldMean := append([]float64(nil), s.Mean...)

	newMean := make([]float64, n)
	for i := 0; i < s.Mu; i++ {
		for d := 0; d < n; d++ {
			newMean[d] += s.Weights[i] * ranked[i].X[d]
		}
	}
	s.Mean = newMean

	meanDiff := make([]float64, n)
	for d := 0; d < n; d++ {
		meanDiff[d] = (newMean[d] - oldMean[d]) / s.Sigma
	}

	Cinv := choleskyInvApply(s.C, n, meanDiff)
	psNormSq := 0.0
	for d := 0; d < n; d++ {
		s.Psigma[d] = (1-s.Cs)*s.Psigma[d] + math.Sqrt(s.Cs*(2-s.Cs)*s.MuEff)*Cinv[d]
		psNormSq += s.Psigma[d] * s.Psigma[d]
	}
	psNorm := math.Sqrt(psNormSq)

	s.generation++
	hSig := 0.0
	expectedNorm := s.chiN * (1 - math.Pow(1-s.Cs, 2*float64(s.generation)))
	if psNorm/safeOrOne(expectedNorm) < 1.4+2.0/(float64(n)+1) {
		hSig = 1
	}

	for d := 0; d < n; d++ {
		s.Pc[d] = (1-s.Cc)*s.Pc[d] + hSig*math.Sqrt(s.Cc*(2-s.Cc)*s.MuEff)*meanDiff[d]
	}

	rankOne := outer(s.Pc, s.Pc, n)
	rankMu := zeros(n)
	for i := 0; i < s.Mu; i++ {
		diff := make([]float64, n)
		for d := 0; d < n; d++ {
			diff[d] = (ranked[i].X[d] - oldMean[d]) / s.Sigma
		}
		contrib := outer(diff, diff, n)
		for r := 0; r < n; r++ {
			for c := 0; c < n; c++ {
				rankMu[r][c] += s.Weights[i] * contrib[r][c]
			}
		}
	}

	deltaHSig := (1 - hSig) * s.Cc * (2 - s.Cc)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			s.C[r][c] = (1-s.C1-s.Cmu)*s.C[r][c] + s.C1*(rankOne[r][c]+deltaHSig*s.C[r][c]) + s.Cmu*rankMu[r][c]
		}
	}

	s.Sigma *= math.Exp((s.Cs / s.Ds) * (psNorm/s.chiN - 1))
	s.Sigma = clip(s.Sigma, sigmaMin, sigmaMax)
}

func safeOrOne(v float64) float64 {
	if v <= 1e-12 {
		return 1
	}
	return v
}

// Expand turns a reduced-dim vector into a 64-bin density via Catmull-Rom
// interpolation, clamped >= 0 and normalized.
func Expand(reduced []float64) []float64 {
	n := len(reduced)
	out := make([]float64, candidate.NumBins)
	for i := 0; i < candidate.NumBins; i++ {
		t := float64(i) / float64(candidate.NumBins-1) * float64(n-1)
		idx := int(math.Floor(t))
		frac := t - float64(idx)
		p0 := sampleAt(reduced, idx-1)
		p1 := sampleAt(reduced, idx)
		p2 := sampleAt(reduced, idx+1)
		p3 := sampleAt(reduced, idx+2)
		v := catmullRom(p0, p1, p2, p3, frac)
		if v < 0 {
			v = 0
		}
		out[i] = v
	}
	return normalizeLocal(out)
}

func sampleAt(xs []float64, i int) float64 {
	if i < 0 {
		i = 0
	}
	if i >= len(xs) {
		i = len(xs) - 1
	}
	return xs[i]
}

func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

// Compress reduces a 64-bin density to dim entries by averaging contiguous
// segments, the inverse operation of Expand.
func Compress(bins []float64, dim int) []float64 {
	n := len(bins)
	out := make([]float64, dim)
	segSize := float64(n) / float64(dim)
	for i := 0; i < dim; i++ {
		start := int(float64(i) * segSize)
		end := int(float64(i+1) * segSize)
		if end > n {
			end = n
		}
		if end <= start {
			end = start + 1
		}
		sum, count := 0.0, 0.0
		for j := start; j < end && j < n; j++ {
			sum += bins[j]
			count++
		}
		if count > 0 {
			out[i] = sum / count
		}
	}
	return out
}

func normalizeLocal(bins []float64) []float64 {
	sum := 0.0
	for _, b := range bins {
		sum += b
	}
	if sum <= 0 {
		uniform := candidate.TotalLiquidity / float64(len(bins))
		for i := range bins {
			bins[i] = uniform
		}
		return bins
	}
	scale := candidate.TotalLiquidity / sum
	for i := range bins {
		bins[i] *= scale
	}
	return bins
}

func identity(n int) [][]float64 {
	m := zeros(n)
	for i := 0; i < n; i++ {
		m[i][i] = 1
	}
	return m
}

func zeros(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}

func outer(a, b []float64, n int) [][]float64 {
	m := zeros(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m[i][j] = a[i] * b[j]
		}
	}
	return m
}

// cholesky factors a symmetric positive-semi-definite matrix C = A*A^T,
// flooring the diagonal at choleskyFloor when it would otherwise go
// non-positive (spec §7's numeric-degenerate handling for CMA-ES).
func cholesky(C [][]float64, n int) [][]float64 {
	A := zeros(n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := C[i][j]
			for k := 0; k < j; k++ {
				sum -= A[i][k] * A[j][k]
			}
			if i == j {
				if sum < choleskyFloor {
					sum = choleskyFloor
				}
				A[i][j] = math.Sqrt(sum)
			} else if A[j][j] != 0 {
				A[i][j] = sum / A[j][j]
			}
		}
	}
	return A
}

// choleskyInvApply approximates C^(-1/2) * v by solving via the Cholesky
// factor (forward/backward substitution), used for the p_sigma update.
func choleskyInvApply(C [][]float64, n int, v []float64) []float64 {
	A := cholesky(C, n)
	// Solve A*y = v (forward substitution).
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := v[i]
		for k := 0; k < i; k++ {
			sum -= A[i][k] * y[k]
		}
		if A[i][i] == 0 {
			y[i] = 0
		} else {
			y[i] = sum / A[i][i]
		}
	}
	// Solve A^T*x = y (backward substitution).
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := y[i]
		for k := i + 1; k < n; k++ {
			sum -= A[k][i] * x[k]
		}
		if A[i][i] == 0 {
			x[i] = 0
		} else {
			x[i] = sum / A[i][i]
		}
	}
	return x
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
