package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	cb "github.com/sony/gobreaker"

	"github.com/sawpanic/amm-discovery/internal/candidate"
)

// PostgresStore persists promoted candidates to a `candidates_archive`
// table and the engine's progress to a single `atlas_state` row, following
// the teacher's sqlx repository shape (explicit per-call timeouts, JSONB
// columns for nested data, pq error inspection for conflicts).
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
	breaker *cb.CircuitBreaker
}

// NewPostgresStore wraps db with a circuit breaker tripping after three
// consecutive failures or a >5% failure rate over 20+ calls, matching the
// teacher's infra/breakers.New defaults.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	settings := cb.Settings{Name: "archive-postgres"}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	return &PostgresStore{db: db, timeout: timeout, breaker: cb.NewCircuitBreaker(settings)}
}

func (s *PostgresStore) InsertBatch(ctx context.Context, cs []candidate.Candidate) error {
	if len(cs) == 0 {
		return nil
	}
	_, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(cs)/100+1))
		defer cancel()

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candidates_archive
			(id, generation, regime, bins, family_id, family_params, metrics, features,
			 stability, score, pool_type, asset_count, source, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (id) DO NOTHING`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, c := range cs {
			bins, err := json.Marshal(c.Bins)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal bins: %w", err)
			}
			params, err := json.Marshal(c.FamilyParams)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal family_params: %w", err)
			}
			metrics, err := json.Marshal(c.Metrics)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal metrics: %w", err)
			}
			feats, err := json.Marshal(c.Features)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal features: %w", err)
			}
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now()
			}
			if _, err := stmt.ExecContext(ctx, c.ID, c.Generation, string(c.Regime), bins,
				string(c.FamilyID), params, metrics, feats, c.Stability, c.Score,
				string(c.PoolType), c.AssetCount, string(c.Source), createdAt); err != nil {
				if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
					continue
				}
				return nil, fmt.Errorf("failed to insert candidate %s: %w", c.ID, err)
			}
		}

		return nil, tx.Commit()
	})
	return err
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*candidate.Candidate, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		query := `
			SELECT id, generation, regime, bins, family_id, family_params, metrics,
			       features, stability, score, pool_type, asset_count, source, created_at
			FROM candidates_archive
			WHERE id = $1`

		row := s.db.QueryRowxContext(ctx, query, id)
		return scanCandidate(row)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	c := result.(candidate.Candidate)
	return &c, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var count int64
		err := s.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM candidates_archive`).Scan(&count)
		return count, err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count archive rows: %w", err)
	}
	return result.(int64), nil
}

// EvictOldest deletes rows beyond the keep most-recently-inserted, the
// best-effort eviction spec §6 describes for the persistence collaborator.
func (s *PostgresStore) EvictOldest(ctx context.Context, keep int64) error {
	_, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM candidates_archive
			WHERE id NOT IN (
				SELECT id FROM candidates_archive ORDER BY created_at DESC LIMIT $1
			)`, keep)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to evict oldest archive rows: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertAtlasState(ctx context.Context, state AtlasState) error {
	_, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO atlas_state (id, total_generations, last_regime, updated_at)
			VALUES ('global', $1, $2, now())
			ON CONFLICT (id) DO UPDATE SET
				total_generations = EXCLUDED.total_generations,
				last_regime = EXCLUDED.last_regime,
				updated_at = EXCLUDED.updated_at`,
			state.TotalGenerations, state.LastRegime)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert atlas_state: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAtlasState(ctx context.Context) (*AtlasState, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var st AtlasState
		err := s.db.QueryRowxContext(ctx, `
			SELECT id, total_generations, last_regime, updated_at
			FROM atlas_state WHERE id = 'global'`).
			Scan(&st.ID, &st.TotalGenerations, &st.LastRegime, &st.UpdatedAt)
		return st, err
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load atlas_state: %w", err)
	}
	st := result.(AtlasState)
	return &st, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanCandidate(row *sqlx.Row) (candidate.Candidate, error) {
	var c candidate.Candidate
	var regime, familyID, poolType, source string
	var bins, params, metrics, feats []byte

	err := row.Scan(&c.ID, &c.Generation, &regime, &bins, &familyID, &params, &metrics,
		&feats, &c.Stability, &c.Score, &poolType, &c.AssetCount, &source, &c.CreatedAt)
	if err != nil {
		return candidate.Candidate{}, err
	}
	c.Regime = candidate.Regime(regime)
	c.FamilyID = candidate.FamilyID(familyID)
	c.PoolType = candidate.PoolType(poolType)
	c.Source = candidate.Source(source)

	if err := json.Unmarshal(bins, &c.Bins); err != nil {
		return candidate.Candidate{}, fmt.Errorf("failed to unmarshal bins: %w", err)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &c.FamilyParams); err != nil {
			return candidate.Candidate{}, fmt.Errorf("failed to unmarshal family_params: %w", err)
		}
	}
	if err := json.Unmarshal(metrics, &c.Metrics); err != nil {
		return candidate.Candidate{}, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if err := json.Unmarshal(feats, &c.Features); err != nil {
		return candidate.Candidate{}, fmt.Errorf("failed to unmarshal features: %w", err)
	}
	return c, nil
}
