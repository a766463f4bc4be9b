package archive

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/amm-discovery/internal/candidate"
)

// MemoryStore is an in-memory Store, mirroring the teacher's
// InMemoryCacheManager fallback — used by tests and by single-process
// deployments that don't need a Postgres backend.
type MemoryStore struct {
	mu    sync.Mutex
	order []string
	byID  map[string]candidate.Candidate
	atlas *AtlasState
}

// NewMemoryStore returns an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]candidate.Candidate)}
}

func (m *MemoryStore) InsertBatch(ctx context.Context, cs []candidate.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cs {
		if _, exists := m.byID[c.ID]; exists {
			continue
		}
		m.byID[c.ID] = c.Clone()
		m.order = append(m.order, c.ID)
	}
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id string) (*candidate.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	out := c.Clone()
	return &out, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.order)), nil
}

// EvictOldest drops the oldest insertion-order rows until at most keep
// remain.
func (m *MemoryStore) EvictOldest(ctx context.Context, keep int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keep < 0 || int64(len(m.order)) <= keep {
		return nil
	}
	evict := int64(len(m.order)) - keep
	for i := int64(0); i < evict; i++ {
		delete(m.byID, m.order[i])
	}
	m.order = m.order[evict:]
	return nil
}

func (m *MemoryStore) UpsertAtlasState(ctx context.Context, state AtlasState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.UpdatedAt = time.Now()
	m.atlas = &state
	return nil
}

func (m *MemoryStore) GetAtlasState(ctx context.Context) (*AtlasState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.atlas == nil {
		return nil, nil
	}
	out := *m.atlas
	return &out, nil
}

func (m *MemoryStore) Close() error { return nil }
