package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/amm-discovery/internal/config"
)

// statusCmd reports on the persistent archive's current size and
// progress, without starting the engine loop.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report persistent archive size and progress",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAppConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := openStore(cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Archive.QueryTimeout)
	defer cancel()

	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count archive: %w", err)
	}

	atlas, err := store.GetAtlasState(ctx)
	if err != nil {
		return fmt.Errorf("get atlas state: %w", err)
	}

	fmt.Printf("Archive backend:  %s\n", cfg.Archive.Backend)
	fmt.Printf("Archive rows:     %d / %d\n", count, cfg.Archive.MaxRows)
	if atlas == nil {
		fmt.Println("Atlas state:      no runs recorded yet")
		return nil
	}
	fmt.Printf("Total generations: %d\n", atlas.TotalGenerations)
	fmt.Printf("Last regime:       %s\n", atlas.LastRegime)
	if !atlas.UpdatedAt.IsZero() {
		fmt.Printf("Last updated:      %s\n", atlas.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
