package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/amm-discovery/internal/archive"
	"github.com/sawpanic/amm-discovery/internal/candidate"
	"github.com/sawpanic/amm-discovery/internal/config"
	"github.com/sawpanic/amm-discovery/internal/engine"
	"github.com/sawpanic/amm-discovery/internal/httpapi"
	"github.com/sawpanic/amm-discovery/internal/metricsrv"
	"github.com/sawpanic/amm-discovery/internal/telemetry"
)

var tuningConfigPath string

// serveCmd runs the engine loop and exposes it over the REST+websocket
// API and a Prometheus scrape endpoint, the long-running process entry
// point something has to provide for the engine to be useful outside a
// one-shot CLI call.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine loop and serve its REST/websocket/metrics API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&tuningConfigPath, "tuning-config", "", "Path to a per-regime tuning profile YAML file (optional)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAppConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := telemetry.Init(cfg.Telemetry.Level, cfg.Telemetry.Pretty); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	if tuningConfigPath != "" {
		if err := applyTuningProfile(tuningConfigPath); err != nil {
			return err
		}
	}

	store, err := openStore(cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive store: %w", err)
	}
	syncer := archive.NewSyncer(store)
	defer syncer.Close()

	engine.ApplyFeatureFlags(cfg.Engine)

	cycle := engine.Cycle
	if cfg.Engine.IncludeRegimeShift {
		cycle = engine.CycleWithShift
	}
	eng := engine.New(cfg.Engine.Seed, cycle, cfg.Engine.TicksPerSecond)
	eng.SetCMAESEnabled(cfg.Engine.CMAESSampling)

	registry := metricsrv.NewRegistry(prometheus.NewRegistry())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("engine run loop exited with error")
		}
	}()

	go syncLoop(ctx, eng, syncer, cycle[len(cycle)-1])
	go metricsLoop(ctx, eng, registry)

	server := httpapi.NewServer(httpapi.DefaultServerConfig(cfg.HTTP.ListenAddr), eng)
	server.Mount("/metrics", registry.Handler())

	log.Info().Str("addr", cfg.HTTP.ListenAddr).Str("archive_backend", cfg.Archive.Backend).Msg("amm-discovery serving")

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func applyTuningProfile(path string) error {
	tuning, err := config.LoadTuningConfig(path)
	if err != nil {
		return fmt.Errorf("load tuning config: %w", err)
	}
	profile, err := tuning.GetActiveProfile()
	if err != nil {
		return fmt.Errorf("active tuning profile: %w", err)
	}
	if problems := profile.ValidateProfile(); len(problems) > 0 {
		return fmt.Errorf("invalid tuning profile %q: %v", profile.Name, problems)
	}
	engine.ApplyTuning(*profile)
	log.Info().Str("profile", profile.Name).Msg("applied tuning profile")
	return nil
}

// syncLoop flushes the engine's archive to the persistent store on a fixed
// cadence, independent of tick rate. lastRegime is recorded in the atlas
// row as a rough "what was running" marker, not a precise per-tick value.
func syncLoop(ctx context.Context, eng *engine.Engine, syncer *archive.Syncer, lastRegime candidate.Regime) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncer.Flush(ctx, eng.State(), lastRegime)
		}
	}
}

func metricsLoop(ctx context.Context, eng *engine.Engine, registry *metricsrv.Registry) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := eng.State()
			registry.SetArchiveSize(int64(len(state.Archive)))
			for regime, pop := range state.Populations {
				if pop != nil && pop.Champion != nil {
					registry.SetChampionScore(string(regime), pop.Champion.Score)
				}
			}
		}
	}
}
