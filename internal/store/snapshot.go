package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LoadSnapshot returns the learner's stored snapshot, or nil if there is none.
func (s *Store) LoadSnapshot(ctx context.Context, learner string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM learner_snapshots WHERE learner = ?`, learner,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return data, err
}

// SaveSnapshot replaces the learner's stored snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, learner string, data []byte) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learner_snapshots (learner, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(learner) DO UPDATE SET data = ?, updated_at = ?`,
		learner, data, now, data, now,
	)
	return err
}

// ListLearners returns the ids of all learners with a stored snapshot, sorted.
func (s *Store) ListLearners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT learner FROM learner_snapshots ORDER BY learner`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var learners []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		learners = append(learners, l)
	}
	return learners, rows.Err()
}
