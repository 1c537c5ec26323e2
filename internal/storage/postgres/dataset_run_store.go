package postgres

import (
	"context"
	"fmt"

	"okx-candle-lab/internal/storage"
)

// DatasetRunStore is a PostgreSQL implementation of storage.DatasetRunStore.
type DatasetRunStore struct {
	pool *Pool
}

// NewDatasetRunStore creates a new PostgreSQL dataset run store.
func NewDatasetRunStore(pool *Pool) *DatasetRunStore {
	return &DatasetRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DatasetRunStore = (*DatasetRunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if the ID exists.
func (s *DatasetRunStore) Insert(ctx context.Context, run *storage.DatasetRun) error {
	if run == nil || run.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO dataset_runs (
			id, instrument, interval, target, total_rows, train_rows,
			val_rows, test_rows, missing_steps, duplicates_removed,
			output_dir, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, run.ID, run.Instrument, run.Interval, run.Target, run.TotalRows,
		run.TrainRows, run.ValRows, run.TestRows, run.MissingSteps,
		run.DuplicatesRemoved, run.OutputDir, run.CreatedAt)

	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert dataset run: %w", err)
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *DatasetRunStore) GetByID(ctx context.Context, id string) (*storage.DatasetRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, instrument, interval, target, total_rows, train_rows,
		       val_rows, test_rows, missing_steps, duplicates_removed,
		       output_dir, created_at
		FROM dataset_runs
		WHERE id = $1
	`, id)

	var run storage.DatasetRun
	err := row.Scan(&run.ID, &run.Instrument, &run.Interval, &run.Target,
		&run.TotalRows, &run.TrainRows, &run.ValRows, &run.TestRows,
		&run.MissingSteps, &run.DuplicatesRemoved, &run.OutputDir, &run.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRecent returns up to limit runs, newest first.
func (s *DatasetRunStore) ListRecent(ctx context.Context, limit int) ([]*storage.DatasetRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, instrument, interval, target, total_rows, train_rows,
		       val_rows, test_rows, missing_steps, duplicates_removed,
		       output_dir, created_at
		FROM dataset_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var result []*storage.DatasetRun
	for rows.Next() {
		var run storage.DatasetRun
		err := rows.Scan(&run.ID, &run.Instrument, &run.Interval, &run.Target,
			&run.TotalRows, &run.TrainRows, &run.ValRows, &run.TestRows,
			&run.MissingSteps, &run.DuplicatesRemoved, &run.OutputDir, &run.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}
