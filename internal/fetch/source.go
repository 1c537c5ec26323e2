package fetch

import (
	"context"

	"okx-candle-lab/internal/domain"
)

// Cursor is an opaque pagination token meaning "fetch candles strictly
// older than this point". The zero value means "newest available".
type Cursor int64

// Source is the candle data capability the pipeline consumes. The remote
// service exposes two partial views: a small recent window and older
// history behind cursor pagination; neither alone can satisfy a request
// for more candles than one page.
//
// Implementations must be idempotent and side-effect free, and must return
// candles in ascending open-time order.
type Source interface {
	// FetchLive returns up to limit of the most recent candles.
	FetchLive(ctx context.Context, instrument string, interval domain.Interval, limit int) ([]domain.Candle, error)

	// FetchHistory returns up to limit candles strictly older than the
	// cursor. A zero cursor starts from the newest available history.
	FetchHistory(ctx context.Context, instrument string, interval domain.Interval, limit int, olderThan Cursor) ([]domain.Candle, error)
}

// FundingSource optionally supplies the current funding rate for an
// instrument. The rate is attached to fetched candles as an auxiliary
// field and never interpreted by the pipeline.
type FundingSource interface {
	FundingRate(ctx context.Context, instrument string) (float64, error)
}
