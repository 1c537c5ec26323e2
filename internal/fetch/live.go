package fetch

import (
	"context"
	"fmt"

	"okx-candle-lab/internal/domain"
)

// MaxLiveLimit is the source's page cap for the live endpoint. OKX returns
// at most 300 rows from market/candles.
const MaxLiveLimit = 300

// FetchLiveWindow returns the most recent window of up to limit candles.
// No retries happen at this level; retry policy belongs to the source's
// transport. The window carries no gap guarantee beyond what the source
// itself provides.
func FetchLiveWindow(ctx context.Context, src Source, instrument string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit > MaxLiveLimit {
		limit = MaxLiveLimit
	}
	window, err := src.FetchLive(ctx, instrument, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch live window for %s %s: %w", instrument, interval, err)
	}
	return window, nil
}
