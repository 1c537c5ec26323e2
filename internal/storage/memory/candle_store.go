package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"okx-candle-lab/internal/normalization"
	"okx-candle-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
// Re-inserted open times overwrite the stored row, mirroring the
// ReplacingMergeTree semantics of the ClickHouse backend.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]normalization.Row // series key -> open time ms -> row
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]map[int64]normalization.Row),
	}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds rows for a series, keeping the last write per open time.
func (s *CandleStore) InsertBulk(_ context.Context, instrument, interval string, rows []normalization.Row) error {
	if instrument == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := seriesKey(instrument, interval)
	series, ok := s.data[key]
	if !ok {
		series = make(map[int64]normalization.Row, len(rows))
		s.data[key] = series
	}
	for _, row := range rows {
		series[row.Time.UnixMilli()] = row
	}
	return nil
}

// GetByTimeRange retrieves rows within [start, end], ordered by time ASC.
func (s *CandleStore) GetByTimeRange(_ context.Context, instrument, interval string, start, end time.Time) ([]normalization.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []normalization.Row
	for _, row := range s.data[seriesKey(instrument, interval)] {
		if row.Time.Before(start) || row.Time.After(end) {
			continue
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Time.Before(result[j].Time)
	})
	return result, nil
}

// Count returns the number of stored rows for a series.
func (s *CandleStore) Count(_ context.Context, instrument, interval string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.data[seriesKey(instrument, interval)])), nil
}
