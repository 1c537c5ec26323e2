package clickhouse

import (
	"context"
	"fmt"
	"time"

	"okx-candle-lab/internal/normalization"
	"okx-candle-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse. The
// candles table is a ReplacingMergeTree keyed by (instrument, interval,
// open_time), so re-inserting an open time keeps the newest version.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds rows for a series in a single batch.
func (s *CandleStore) InsertBulk(ctx context.Context, instrument, interval string, rows []normalization.Row) error {
	if instrument == "" || interval == "" {
		return storage.ErrInvalidInput
	}
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			instrument, interval, open_time, open, high, low, close,
			base_volume, quote_volume, funding_rate
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, row := range rows {
		err = batch.Append(
			instrument, interval, row.Time,
			row.Open, row.High, row.Low, row.Close,
			row.BaseVolume, row.QuoteVolume, row.FundingRate,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves rows within [start, end], ordered by time ASC.
// FINAL collapses duplicate versions left by re-inserts.
func (s *CandleStore) GetByTimeRange(ctx context.Context, instrument, interval string, start, end time.Time) ([]normalization.Row, error) {
	query := `
		SELECT open_time, open, high, low, close, base_volume, quote_volume, funding_rate
		FROM candles FINAL
		WHERE instrument = ? AND interval = ? AND open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC
	`

	chRows, err := s.conn.Query(ctx, query, instrument, interval, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer chRows.Close()

	var result []normalization.Row
	for chRows.Next() {
		var row normalization.Row
		err := chRows.Scan(
			&row.Time, &row.Open, &row.High, &row.Low, &row.Close,
			&row.BaseVolume, &row.QuoteVolume, &row.FundingRate,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row.Time = row.Time.UTC()
		result = append(result, row)
	}
	if err := chRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

// Count returns the number of stored rows for a series.
func (s *CandleStore) Count(ctx context.Context, instrument, interval string) (uint64, error) {
	query := `SELECT count() FROM candles FINAL WHERE instrument = ? AND interval = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, instrument, interval).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}
