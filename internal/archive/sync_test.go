package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/amm-discovery/internal/candidate"
)

func TestSyncer_FlushInsertsOnlyNewCandidates(t *testing.T) {
	store := NewMemoryStore()
	syncer := NewSyncer(store)
	ctx := context.Background()

	state := &candidate.EngineState{
		Archive: []candidate.Candidate{
			makeCandidate("c1", candidate.RegimeLowVol, 1.0),
			makeCandidate("c2", candidate.RegimeLowVol, 2.0),
		},
		TotalGenerations: 5,
	}
	syncer.Flush(ctx, state, candidate.RegimeLowVol)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	state.Archive = append(state.Archive, makeCandidate("c3", candidate.RegimeLowVol, 3.0))
	syncer.Flush(ctx, state, candidate.RegimeLowVol)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count, "flush should only insert the newly-arrived candidate")

	atlas, err := store.GetAtlasState(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), atlas.TotalGenerations)
}

func TestSyncer_NilStoreIsNoop(t *testing.T) {
	syncer := NewSyncer(nil)
	state := &candidate.EngineState{Archive: []candidate.Candidate{makeCandidate("c1", candidate.RegimeLowVol, 1.0)}}
	syncer.Flush(context.Background(), state, candidate.RegimeLowVol)
	require.NoError(t, syncer.Close())
}
