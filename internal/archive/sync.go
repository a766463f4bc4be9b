package archive

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/amm-discovery/internal/candidate"
)

// Syncer periodically flushes an engine's in-memory archive and atlas
// progress out to a persistent Store. It tracks which candidate IDs it has
// already written so a flush only ships new arrivals (spec §7: a flaky
// backend degrades to memory-only rather than failing the tick loop).
type Syncer struct {
	store Store
	seen  map[string]bool
}

// NewSyncer wraps store. A nil store makes every Flush a no-op, so callers
// running with Archive.Backend == "memory" can construct a Syncer
// unconditionally and skip the persistence path entirely.
func NewSyncer(store Store) *Syncer {
	return &Syncer{store: store, seen: make(map[string]bool)}
}

// Flush writes any candidates in state.Archive not yet persisted, evicts
// the oldest stored rows beyond candidate.PersistentArchiveCap after a
// successful insert, then upserts the atlas_state row. Errors are logged and swallowed: a flaky
// Postgres backend must not stop the engine loop from advancing.
func (s *Syncer) Flush(ctx context.Context, state *candidate.EngineState, lastRegime candidate.Regime) {
	if s.store == nil {
		return
	}

	fresh := make([]candidate.Candidate, 0, len(state.Archive))
	for _, c := range state.Archive {
		if s.seen[c.ID] {
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) > 0 {
		if err := s.store.InsertBatch(ctx, fresh); err != nil {
			log.Warn().Err(err).Int("count", len(fresh)).Msg("archive sync: insert batch failed, degrading to memory-only for this flush")
		} else {
			for _, c := range fresh {
				s.seen[c.ID] = true
			}
			if err := s.store.EvictOldest(ctx, candidate.PersistentArchiveCap); err != nil {
				log.Warn().Err(err).Msg("archive sync: evicting oldest rows failed")
			}
		}
	}

	atlas := AtlasState{
		ID:               "global",
		TotalGenerations: state.TotalGenerations,
		LastRegime:       string(lastRegime),
	}
	if err := s.store.UpsertAtlasState(ctx, atlas); err != nil {
		log.Warn().Err(err).Msg("archive sync: atlas state upsert failed")
	}
}

// Close releases the underlying store, if any.
func (s *Syncer) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
