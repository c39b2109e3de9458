// Package postgres stores learner snapshots in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
}

func NewPool(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return pool, nil
}

// SnapshotStore keeps one snapshot row per learner.
type SnapshotStore struct {
	db *pgxpool.Pool
}

func NewSnapshotStore(db *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Migrate creates the snapshot table if it does not exist.
func (s *SnapshotStore) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS learner_snapshots (
			learner    TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// LoadSnapshot returns the learner's snapshot, or nil if there is none.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, learner string) ([]byte, error) {
	query := `SELECT data FROM learner_snapshots WHERE learner = $1`

	var data []byte
	err := s.db.QueryRow(ctx, query, learner).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return data, nil
}

// SaveSnapshot creates or replaces the learner's snapshot.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, learner string, data []byte) error {
	query := `
		INSERT INTO learner_snapshots (learner, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (learner)
		DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(ctx, query, learner, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ListLearners returns every learner with a snapshot, sorted.
func (s *SnapshotStore) ListLearners(ctx context.Context) ([]string, error) {
	query := `SELECT learner FROM learner_snapshots ORDER BY learner`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}
	learners, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan learners: %w", err)
	}
	return learners, nil
}
