package postgres

import (
	"context"

	"okx-candle-lab/internal/storage"
)

// CheckpointStore is a PostgreSQL implementation of storage.CheckpointStore.
type CheckpointStore struct {
	pool *Pool
}

// NewCheckpointStore creates a new PostgreSQL checkpoint store.
func NewCheckpointStore(pool *Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

// Get returns the checkpoint for a series. Returns ErrNotFound if none.
func (s *CheckpointStore) Get(ctx context.Context, instrument, interval string) (*storage.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT instrument, interval, cursor_ms, collected, updated_at
		FROM fetch_checkpoints
		WHERE instrument = $1 AND interval = $2
	`, instrument, interval)

	var cp storage.Checkpoint
	err := row.Scan(&cp.Instrument, &cp.Interval, &cp.Cursor, &cp.Collected, &cp.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &cp, nil
}

// Save inserts or replaces the checkpoint for its series.
func (s *CheckpointStore) Save(ctx context.Context, cp *storage.Checkpoint) error {
	if cp == nil || cp.Instrument == "" || cp.Interval == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO fetch_checkpoints (instrument, interval, cursor_ms, collected, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (instrument, interval) DO UPDATE
		SET cursor_ms = EXCLUDED.cursor_ms,
		    collected = EXCLUDED.collected,
		    updated_at = NOW()
	`, cp.Instrument, cp.Interval, cp.Cursor, cp.Collected)

	return err
}

// Delete removes the checkpoint for a series.
func (s *CheckpointStore) Delete(ctx context.Context, instrument, interval string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM fetch_checkpoints
		WHERE instrument = $1 AND interval = $2
	`, instrument, interval)

	return err
}
