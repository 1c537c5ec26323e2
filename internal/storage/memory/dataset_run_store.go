package memory

import (
	"context"
	"sort"
	"sync"

	"okx-candle-lab/internal/storage"
)

// DatasetRunStore is an in-memory implementation of storage.DatasetRunStore.
type DatasetRunStore struct {
	mu   sync.RWMutex
	data map[string]*storage.DatasetRun
}

// NewDatasetRunStore creates a new in-memory dataset run store.
func NewDatasetRunStore() *DatasetRunStore {
	return &DatasetRunStore{
		data: make(map[string]*storage.DatasetRun),
	}
}

// Compile-time interface check.
var _ storage.DatasetRunStore = (*DatasetRunStore)(nil)

// Insert adds a new run. Returns ErrDuplicateKey if the ID exists.
func (s *DatasetRunStore) Insert(_ context.Context, run *storage.DatasetRun) error {
	if run == nil || run.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.ID]; exists {
		return storage.ErrDuplicateKey
	}
	copy := *run
	s.data[run.ID] = &copy
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if not exists.
func (s *DatasetRunStore) GetByID(_ context.Context, id string) (*storage.DatasetRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := *run
	return &copy, nil
}

// ListRecent returns up to limit runs, newest first.
func (s *DatasetRunStore) ListRecent(_ context.Context, limit int) ([]*storage.DatasetRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.DatasetRun, 0, len(s.data))
	for _, run := range s.data {
		copy := *run
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
