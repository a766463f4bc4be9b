package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/config"
	"github.com/sawpanic/amm-discovery/internal/engine"
)

var (
	generateRegime         string
	generateTicks          int
	generateSeed           int64
	generateJSON           bool
	generatePopulationSize int
	generateMLGuidance     bool
	generateCMAESSampling  bool
)

// generateCmd runs a fixed number of engine ticks against a fresh,
// unpersisted engine and prints the resulting population champion(s) —
// useful for trying out a regime or a seed without standing up the server.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run a bounded number of evolution ticks and print the result",
	Long: `generate drives a freshly-seeded engine through a fixed number of
ticks (one per call, rotating regimes unless --regime pins one) and prints
the champion found per regime. Nothing is persisted to the archive store.`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&generateRegime, "regime", "", "Pin to a single regime (low-vol|high-vol|jump-diffusion|regime-shift); empty rotates the default cycle")
	generateCmd.Flags().IntVar(&generateTicks, "ticks", 1, "Number of ticks to run")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 1, "Deterministic RNG seed")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "Print the full engine state as JSON instead of a summary")
	generateCmd.Flags().IntVar(&generatePopulationSize, "population-size", 0, "Override the per-regime population size (0 keeps the built-in default)")
	generateCmd.Flags().BoolVar(&generateMLGuidance, "ml-guidance", true, "Let the C8 recommender bias mutation and family resampling")
	generateCmd.Flags().BoolVar(&generateCMAESSampling, "cmaes-sampling", false, "Let a per-regime CMA-ES instance supply a fraction of each generation's children")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if generateTicks <= 0 {
		return fmt.Errorf("--ticks must be positive")
	}

	cycle := engine.Cycle
	if generateRegime != "" {
		r := candidate.Regime(generateRegime)
		if !validRegime(r) {
			return fmt.Errorf("unknown regime %q, want one of low-vol, high-vol, jump-diffusion, regime-shift", generateRegime)
		}
		cycle = []candidate.Regime{r}
	}

	engine.ApplyFeatureFlags(config.EngineConfig{
		MLGuidance:     generateMLGuidance,
		PopulationSize: generatePopulationSize,
	})

	eng := engine.New(generateSeed, cycle, 0)
	eng.SetCMAESEnabled(generateCMAESSampling)
	var state *candidate.EngineState
	for i := 0; i < generateTicks; i++ {
		state = eng.Tick()
	}

	if generateJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(state)
	}

	fmt.Printf("Ran %d tick(s), total generations: %d\n\n", generateTicks, state.TotalGenerations)
	for _, regime := range cycle {
		pop := state.Populations[regime]
		if pop == nil || pop.Champion == nil {
			fmt.Printf("%-16s no champion yet\n", regime)
			continue
		}
		fmt.Printf("%-16s generation=%d champion=%s score=%.4f family=%s\n",
			regime, pop.Generation, pop.Champion.ID, pop.Champion.Score, pop.Champion.FamilyID)
	}
	fmt.Printf("\nArchive size: %d\n", len(state.Archive))
	return nil
}

func validRegime(r candidate.Regime) bool {
	switch r {
	case candidate.RegimeLowVol, candidate.RegimeHighVol, candidate.RegimeJumpDiffusion, candidate.RegimeShift:
		return true
	default:
		return false
	}
}
