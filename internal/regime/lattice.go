// Package regime holds fixed presets describing how the regime parameter
// space (internal/regimemap) is seeded and how the engine's round-robin
// cycle (internal/engine) names its phases.
package regime

import "github.com/sawpanic/amm-discovery/internal/regimemap"

// DefaultLattice returns the seed RegimeVectors used to bootstrap the C12
// interpolation grid: a coarse product lattice over volatility and jump
// intensity (three steps each) at a fixed, moderate arb-responsiveness.
// The named regime corners are not included; NamedCorners returns them.
func DefaultLattice() []regimemap.RegimeVector {
	vol := regimemap.Bounds.Volatility
	jump := regimemap.Bounds.JumpIntensity

	volSteps := []float64{vol[0], (vol[0] + vol[1]) / 2, vol[1]}
	jumpSteps := []float64{jump[0], (jump[0] + jump[1]) / 2, jump[1]}

	lattice := make([]regimemap.RegimeVector, 0, len(volSteps)*len(jumpSteps))
	for _, v := range volSteps {
		for _, j := range jumpSteps {
			lattice = append(lattice, regimemap.RegimeVector{
				Volatility:        v,
				JumpIntensity:     j,
				ArbResponsiveness: 0.5,
			})
		}
	}
	return lattice
}

// NamedCorners maps the engine's regime labels to the RegimeVector a
// generate/status report should show as that regime's representative
// point, independent of whatever lattice BuildGrid was seeded with.
func NamedCorners() map[string]regimemap.RegimeVector {
	return map[string]regimemap.RegimeVector{
		"low-vol":        {Volatility: 0.25, ArbResponsiveness: 0.5},
		"high-vol":       {Volatility: 0.75, ArbResponsiveness: 0.5},
		"jump-diffusion": {Volatility: 0.4, JumpIntensity: 2, JumpStd: 0.3, ArbResponsiveness: 0.5},
	}
}
