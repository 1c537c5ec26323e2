package memory

import (
	"context"
	"sync"

	"okx-candle-lab/internal/storage"
)

// CheckpointStore is an in-memory implementation of storage.CheckpointStore.
type CheckpointStore struct {
	mu   sync.RWMutex
	data map[string]*storage.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		data: make(map[string]*storage.Checkpoint),
	}
}

// Compile-time interface check.
var _ storage.CheckpointStore = (*CheckpointStore)(nil)

func seriesKey(instrument, interval string) string {
	return instrument + "|" + interval
}

// Get returns the checkpoint for a series. Returns ErrNotFound if none.
func (s *CheckpointStore) Get(_ context.Context, instrument, interval string) (*storage.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.data[seriesKey(instrument, interval)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *cp
	return &copy, nil
}

// Save inserts or replaces the checkpoint for its series.
func (s *CheckpointStore) Save(_ context.Context, cp *storage.Checkpoint) error {
	if cp == nil || cp.Instrument == "" || cp.Interval == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *cp
	s.data[seriesKey(cp.Instrument, cp.Interval)] = &copy
	return nil
}

// Delete removes the checkpoint for a series.
func (s *CheckpointStore) Delete(_ context.Context, instrument, interval string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, seriesKey(instrument, interval))
	return nil
}
