package storage

import (
	"context"
	"time"

	"okx-candle-lab/internal/normalization"
)

// Checkpoint records the resume position for a series fetch: the oldest
// collected open time and how many candles were gathered so far. Saving
// it between runs lets an interrupted fetch continue instead of
// re-fetching history from the newest page.
type Checkpoint struct {
	Instrument string
	Interval   string
	Cursor     int64 // oldest collected open time, ms
	Collected  int
	UpdatedAt  time.Time
}

// CheckpointStore persists fetch resume positions.
type CheckpointStore interface {
	// Get returns the checkpoint for a series. Returns ErrNotFound if
	// none was saved.
	Get(ctx context.Context, instrument, interval string) (*Checkpoint, error)

	// Save inserts or replaces the checkpoint for its series.
	Save(ctx context.Context, cp *Checkpoint) error

	// Delete removes the checkpoint for a series. Deleting a missing
	// checkpoint is not an error.
	Delete(ctx context.Context, instrument, interval string) error
}

// DatasetRun records one completed dataset build.
type DatasetRun struct {
	ID                string
	Instrument        string
	Interval          string
	Target            int
	TotalRows         int
	TrainRows         int
	ValRows           int
	TestRows          int
	MissingSteps      int64
	DuplicatesRemoved int
	OutputDir         string
	CreatedAt         time.Time
}

// DatasetRunStore persists dataset build records.
type DatasetRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if the ID exists.
	Insert(ctx context.Context, run *DatasetRun) error

	// GetByID retrieves a run. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*DatasetRun, error)

	// ListRecent returns up to limit runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]*DatasetRun, error)
}

// CandleStore persists normalized candle rows per series.
type CandleStore interface {
	// InsertBulk adds rows for a series. Re-inserting the same open time
	// is allowed; backends keep the most recently written row.
	InsertBulk(ctx context.Context, instrument, interval string, rows []normalization.Row) error

	// GetByTimeRange retrieves rows within [start, end] (inclusive),
	// ordered by time ASC.
	GetByTimeRange(ctx context.Context, instrument, interval string, start, end time.Time) ([]normalization.Row, error)

	// Count returns the number of stored rows for a series.
	Count(ctx context.Context, instrument, interval string) (uint64, error)
}
