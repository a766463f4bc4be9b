package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd is the base command for the AMM discovery engine CLI.
var rootCmd = &cobra.Command{
	Use:   "amm-discovery",
	Short: "Quality-diversity evolutionary search over AMM liquidity curve shapes",
	Long: `amm-discovery evolves populations of automated-market-maker liquidity
curve shapes per market regime, tracking a persistent archive of the best
candidates found across runs.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("amm-discovery - quality-diversity AMM curve search")
		fmt.Println("Use 'amm-discovery serve' to run the engine, or 'amm-discovery generate' for a one-shot tick.")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/amm-discovery.yaml", "Path to the app config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
