package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TuningConfig holds the per-regime exploration/elitism bounds the engine
// (internal/evolution) is allowed to clip its adaptive mutation rate into.
// Mirrors the shape of a guard-profile config: named profiles, one of
// which is active, each giving bounds per regime.
type TuningConfig struct {
	RegimeAware bool                     `yaml:"regime_aware"`
	Profiles    map[string]TuningProfile `yaml:"profiles"`
	Active      string                   `yaml:"active_profile"`
}

// TuningProfile is a named set of per-regime tuning bounds.
type TuningProfile struct {
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Regimes     map[string]RegimeTuning `yaml:"regimes"`
}

// RegimeTuning bounds the adaptive parameters internal/evolution.Step
// clips into for a single regime.
type RegimeTuning struct {
	EliteFraction    float64 `yaml:"elite_fraction"`
	ExplorationFloor float64 `yaml:"exploration_floor"`
	ExplorationCeil  float64 `yaml:"exploration_ceil"`
}

// LoadTuningConfig loads a tuning configuration from a YAML file.
func LoadTuningConfig(configPath string) (*TuningConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning config: %w", err)
	}

	var config TuningConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse tuning YAML: %w", err)
	}

	return &config, nil
}

// SaveTuningConfig writes a tuning configuration back out as YAML.
func SaveTuningConfig(config *TuningConfig, configPath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal tuning config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write tuning config: %w", err)
	}
	return nil
}

// GetActiveProfile returns the currently active tuning profile.
func (tc *TuningConfig) GetActiveProfile() (*TuningProfile, error) {
	if tc.Active == "" {
		return nil, fmt.Errorf("no active profile set")
	}
	profile, exists := tc.Profiles[tc.Active]
	if !exists {
		return nil, fmt.Errorf("active profile %q not found", tc.Active)
	}
	return &profile, nil
}

// GetRegimeTuning returns the tuning bounds for a specific regime within a
// profile.
func (tp *TuningProfile) GetRegimeTuning(regime string) (*RegimeTuning, error) {
	tuning, exists := tp.Regimes[regime]
	if !exists {
		return nil, fmt.Errorf("regime %q not found in profile %q", regime, tp.Name)
	}
	return &tuning, nil
}

// ValidateProfile checks a profile's bounds against safe operational
// ranges, returning a human-readable error per violation rather than
// failing fast, so an operator can see every problem in one pass.
func (tp *TuningProfile) ValidateProfile() []string {
	var errors []string

	requiredRegimes := []string{"low-vol", "high-vol", "jump-diffusion"}
	for _, regime := range requiredRegimes {
		tuning, exists := tp.Regimes[regime]
		if !exists {
			errors = append(errors, fmt.Sprintf("missing regime configuration: %s", regime))
			continue
		}

		if tuning.EliteFraction <= 0 || tuning.EliteFraction > 0.5 {
			errors = append(errors, fmt.Sprintf("regime %s: elite_fraction %.2f outside (0, 0.5] range", regime, tuning.EliteFraction))
		}

		if tuning.ExplorationFloor < 0.05 || tuning.ExplorationFloor > 0.5 {
			errors = append(errors, fmt.Sprintf("regime %s: exploration_floor %.2f outside [0.05, 0.5] range", regime, tuning.ExplorationFloor))
		}

		if tuning.ExplorationCeil < 0.05 || tuning.ExplorationCeil > 0.5 {
			errors = append(errors, fmt.Sprintf("regime %s: exploration_ceil %.2f outside [0.05, 0.5] range", regime, tuning.ExplorationCeil))
		}

		if tuning.ExplorationFloor >= tuning.ExplorationCeil {
			errors = append(errors, fmt.Sprintf("regime %s: exploration_floor %.2f must be below exploration_ceil %.2f", regime, tuning.ExplorationFloor, tuning.ExplorationCeil))
		}
	}

	return errors
}

// GetDefaultTuningConfig returns the bounds internal/evolution already
// clips its adaptive exploration rate into ([0.14, 0.42], spec §4.9),
// applied uniformly across regimes until an operator opts into
// regime-aware tuning.
func GetDefaultTuningConfig() *TuningConfig {
	baseline := RegimeTuning{EliteFraction: 0.25, ExplorationFloor: 0.14, ExplorationCeil: 0.42}
	return &TuningConfig{
		RegimeAware: false,
		Active:      "baseline",
		Profiles: map[string]TuningProfile{
			"baseline": {
				Name:        "Baseline",
				Description: "Uniform bounds matching internal/evolution's built-in clip range",
				Regimes: map[string]RegimeTuning{
					"low-vol":        baseline,
					"high-vol":       baseline,
					"jump-diffusion": baseline,
				},
			},
			"aggressive": {
				Name:        "Aggressive",
				Description: "Wider exploration band for regimes that tend to stagnate early",
				Regimes: map[string]RegimeTuning{
					"low-vol":        {EliteFraction: 0.2, ExplorationFloor: 0.18, ExplorationCeil: 0.45},
					"high-vol":       {EliteFraction: 0.25, ExplorationFloor: 0.2, ExplorationCeil: 0.48},
					"jump-diffusion": {EliteFraction: 0.3, ExplorationFloor: 0.16, ExplorationCeil: 0.4},
				},
			},
		},
	}
}
