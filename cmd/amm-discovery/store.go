package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/amm-discovery/internal/archive"
	"github.com/sawpanic/amm-discovery/internal/config"
)

// openStore builds the archive.Store the config selects, mirroring the
// teacher's db.NewManager connect-and-ping sequence.
func openStore(cfg config.ArchiveConfig) (archive.Store, error) {
	if cfg.Backend == "memory" {
		return archive.NewMemoryStore(), nil
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return archive.NewPostgresStore(db, cfg.QueryTimeout), nil
}
