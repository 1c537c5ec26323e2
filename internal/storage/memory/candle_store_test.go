package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"okx-candle-lab/internal/normalization"
	"okx-candle-lab/internal/storage"
)

func testRows(start time.Time, step time.Duration, n int) []normalization.Row {
	rows := make([]normalization.Row, n)
	for i := range rows {
		rows[i] = normalization.Row{
			Time:  start.Add(time.Duration(i) * step),
			Open:  100, High: 110, Low: 95, Close: 105,
			BaseVolume: 10, QuoteVolume: 1000,
		}
	}
	return rows
}

func TestCandleStore_InsertAndRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := testRows(start, time.Hour, 10)
	if err := store.InsertBulk(ctx, "BTC-USD-SWAP", "1h", rows); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	got, err := store.GetByTimeRange(ctx, "BTC-USD-SWAP", "1h", start.Add(2*time.Hour), start.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("GetByTimeRange: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 rows in range, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Time.Before(got[i].Time) {
			t.Fatal("rows not in ascending time order")
		}
	}
}

func TestCandleStore_ReinsertKeepsLastWrite(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := testRows(start, time.Hour, 3)
	if err := store.InsertBulk(ctx, "BTC-USD-SWAP", "1h", rows); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	rows[1].Close = 999
	if err := store.InsertBulk(ctx, "BTC-USD-SWAP", "1h", rows[1:2]); err != nil {
		t.Fatalf("re-insert: %v", err)
	}

	count, err := store.Count(ctx, "BTC-USD-SWAP", "1h")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Errorf("re-insert must not grow the series, got %d rows", count)
	}

	got, err := store.GetByTimeRange(ctx, "BTC-USD-SWAP", "1h", start, start.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("GetByTimeRange: %v", err)
	}
	if got[1].Close != 999 {
		t.Errorf("expected last write to win, got close %v", got[1].Close)
	}
}

func TestCandleStore_SeriesAreIsolated(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := store.InsertBulk(ctx, "BTC-USD-SWAP", "1h", testRows(start, time.Hour, 5)); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}
	if err := store.InsertBulk(ctx, "ETH-USD-SWAP", "1h", testRows(start, time.Hour, 2)); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	count, err := store.Count(ctx, "ETH-USD-SWAP", "1h")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows for ETH-USD-SWAP, got %d", count)
	}
}

func TestCandleStore_InvalidInput(t *testing.T) {
	store := NewCandleStore()

	err := store.InsertBulk(context.Background(), "", "1h", nil)
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
