package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the discovery engine's full runtime configuration: the
// engine's tick cadence and seed, the archive backend, the optional
// regime-map cache, and the HTTP surface.
type AppConfig struct {
	Engine    EngineConfig    `yaml:"engine"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Cache     CacheConfig     `yaml:"cache"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// EngineConfig controls the generation loop (C13) and the evolutionary step
// (C9) it drives.
type EngineConfig struct {
	Seed               int64   `yaml:"seed"`
	TicksPerSecond     float64 `yaml:"ticks_per_second"`
	IncludeRegimeShift bool    `yaml:"include_regime_shift"`

	// PopulationSize overrides candidate.DefaultPopulationSize when > 0.
	PopulationSize int `yaml:"population_size"`

	// MLGuidance turns the C8 recommender's influence over mutation bias
	// and family resampling on or off; C9 still runs without it.
	MLGuidance bool `yaml:"ml_guidance"`

	// CMAESSampling turns on C10: a regime-scoped CMA-ES instance supplies
	// a fraction of each generation's children and is updated from that
	// generation's ranked fitnesses.
	CMAESSampling bool `yaml:"cmaes_sampling"`
}

// ArchiveConfig selects and tunes the persistent-archive collaborator
// (internal/archive).
type ArchiveConfig struct {
	Backend     string        `yaml:"backend"` // "memory" or "postgres"
	DSN         string        `yaml:"dsn"`
	MaxRows     int64         `yaml:"max_rows"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// CacheConfig configures the optional Redis front for regime-map queries
// (internal/regimemap.EstimateCache); an empty Addr leaves caching off and
// callers fall back to the direct k-NN blend.
type CacheConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// HTTPConfig configures the REST+websocket surface (internal/httpapi).
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// TelemetryConfig configures zerolog (internal/telemetry).
type TelemetryConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// LoadAppConfig loads configuration from a YAML file (if it exists),
// applies environment variable overrides, fills in defaults, and
// validates the result.
func LoadAppConfig(configPath string) (*AppConfig, error) {
	config := DefaultAppConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// applyEnvOverrides lets operators override the archive/cache backends
// without editing the YAML file, matching how the teacher's db.AppConfig
// layers PG_* env vars over its YAML defaults.
func applyEnvOverrides(config *AppConfig) {
	if dsn := os.Getenv("ARCHIVE_DSN"); dsn != "" {
		config.Archive.DSN = dsn
		config.Archive.Backend = "postgres"
	}
	if backend := os.Getenv("ARCHIVE_BACKEND"); backend != "" {
		config.Archive.Backend = backend
	}
	if maxRows := os.Getenv("ARCHIVE_MAX_ROWS"); maxRows != "" {
		if val, err := strconv.ParseInt(maxRows, 10, 64); err == nil {
			config.Archive.MaxRows = val
		}
	}
	if addr := os.Getenv("REGIME_CACHE_ADDR"); addr != "" {
		config.Cache.Addr = addr
	}
	if password := os.Getenv("REGIME_CACHE_PASSWORD"); password != "" {
		config.Cache.Password = password
	}
	if listenAddr := os.Getenv("HTTP_LISTEN_ADDR"); listenAddr != "" {
		config.HTTP.ListenAddr = listenAddr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Telemetry.Level = level
	}
	if seed := os.Getenv("ENGINE_SEED"); seed != "" {
		if val, err := strconv.ParseInt(seed, 10, 64); err == nil {
			config.Engine.Seed = val
		}
	}
	if popSize := os.Getenv("ENGINE_POPULATION_SIZE"); popSize != "" {
		if val, err := strconv.Atoi(popSize); err == nil {
			config.Engine.PopulationSize = val
		}
	}
	if mlGuidance := os.Getenv("ENGINE_ML_GUIDANCE"); mlGuidance != "" {
		if val, err := strconv.ParseBool(mlGuidance); err == nil {
			config.Engine.MLGuidance = val
		}
	}
	if cmaes := os.Getenv("ENGINE_CMAES_SAMPLING"); cmaes != "" {
		if val, err := strconv.ParseBool(cmaes); err == nil {
			config.Engine.CMAESSampling = val
		}
	}
}

// DefaultAppConfig returns a configuration safe to run with no YAML file
// and no environment overrides: an in-memory archive, no Redis cache, and
// the low-vol/high-vol/jump-diffusion cycle without regime-shift.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Engine: EngineConfig{
			Seed:           1,
			TicksPerSecond: 2,
			PopulationSize: 0,
			MLGuidance:     true,
			CMAESSampling:  false,
		},
		Archive: ArchiveConfig{
			Backend:      "memory",
			MaxRows:      50000,
			QueryTimeout: 5 * time.Second,
		},
		Cache: CacheConfig{
			TTL: time.Minute,
		},
		HTTP: HTTPConfig{
			ListenAddr: ":8090",
		},
		Telemetry: TelemetryConfig{
			Level: "info",
		},
	}
}

// SaveAppConfig writes config back out as YAML, mirroring the teacher's
// SaveAppConfig so operators can snapshot a running configuration.
func SaveAppConfig(config *AppConfig, configPath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}
	return nil
}

// Validate rejects configurations the engine can't run with.
func (c *AppConfig) Validate() error {
	if c.Engine.TicksPerSecond <= 0 {
		return fmt.Errorf("engine.ticks_per_second must be positive")
	}
	if c.Engine.PopulationSize < 0 {
		return fmt.Errorf("engine.population_size must be >= 0 (0 keeps the built-in default)")
	}

	switch c.Archive.Backend {
	case "memory":
	case "postgres":
		if c.Archive.DSN == "" {
			return fmt.Errorf("archive.dsn is required when archive.backend is postgres")
		}
	default:
		return fmt.Errorf("archive.backend must be \"memory\" or \"postgres\", got %q", c.Archive.Backend)
	}

	if c.Archive.MaxRows <= 0 {
		return fmt.Errorf("archive.max_rows must be positive")
	}
	if c.Archive.QueryTimeout <= 0 {
		return fmt.Errorf("archive.query_timeout must be positive")
	}

	if c.HTTP.ListenAddr == "" {
		return fmt.Errorf("http.listen_addr cannot be empty")
	}

	return nil
}
