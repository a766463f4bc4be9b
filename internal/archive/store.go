// Package archive implements the persistent-archive collaborator the
// engine loop hands promoted candidates to (spec §6): bulk insert, lookup
// by id, and eviction of the oldest rows beyond a cap, plus a small
// atlas_state row tracking engine-wide progress.
package archive

import (
	"context"
	"time"

	"github.com/sawpanic/amm-discovery/internal/candidate"
)

// AtlasState mirrors the `atlas_state` row spec §6 describes: a single
// global record tracking how far the engine has advanced.
type AtlasState struct {
	ID               string    `json:"id" db:"id"`
	TotalGenerations int64     `json:"total_generations" db:"total_generations"`
	LastRegime       string    `json:"last_regime" db:"last_regime"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Store is the persistent-archive collaborator (spec §6/§7): bulk insert
// of promoted candidates, lookup by id, a row count, and best-effort
// eviction of the oldest rows beyond keep (spec's "evicts oldest archived
// rows beyond 50,000" note, treated as a soft bound per DESIGN.md).
type Store interface {
	InsertBatch(ctx context.Context, cs []candidate.Candidate) error
	GetByID(ctx context.Context, id string) (*candidate.Candidate, error)
	Count(ctx context.Context) (int64, error)
	EvictOldest(ctx context.Context, keep int64) error
	UpsertAtlasState(ctx context.Context, state AtlasState) error
	GetAtlasState(ctx context.Context) (*AtlasState, error)
	Close() error
}
