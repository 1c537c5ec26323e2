package fetch

import (
	"context"
	"log"
	"os"

	"okx-candle-lab/internal/domain"
)

// makeCandles builds n ascending candles starting at start with the given
// millisecond step.
func makeCandles(start, stepMs int64, n int) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		ts := start + int64(i)*stepMs
		out[i] = domain.Candle{
			Timestamp:   ts,
			Open:        100 + float64(i),
			High:        101 + float64(i),
			Low:         99 + float64(i),
			Close:       100.5 + float64(i),
			BaseVolume:  10,
			QuoteVolume: 1000,
			IsClosed:    true,
		}
	}
	return out
}

// stubSource serves candles from a fixed ascending history. The live
// endpoint returns the newest liveWindow candles; the history endpoint
// returns the newest limit candles older than the cursor. errSeq values
// are consumed one per history call before any data is served.
type stubSource struct {
	candles    []domain.Candle
	liveWindow int

	liveErr error
	errSeq  []error

	liveCalls    int
	historyCalls int
}

func (s *stubSource) FetchLive(_ context.Context, _ string, _ domain.Interval, limit int) ([]domain.Candle, error) {
	s.liveCalls++
	if s.liveErr != nil {
		return nil, s.liveErr
	}
	window := s.liveWindow
	if window > len(s.candles) {
		window = len(s.candles)
	}
	if limit < window {
		window = limit
	}
	out := make([]domain.Candle, window)
	copy(out, s.candles[len(s.candles)-window:])
	return out, nil
}

func (s *stubSource) FetchHistory(_ context.Context, _ string, _ domain.Interval, limit int, olderThan Cursor) ([]domain.Candle, error) {
	s.historyCalls++
	if len(s.errSeq) > 0 {
		err := s.errSeq[0]
		s.errSeq = s.errSeq[1:]
		if err != nil {
			return nil, err
		}
	}

	end := len(s.candles)
	if olderThan != 0 {
		end = 0
		for i, c := range s.candles {
			if c.Timestamp >= int64(olderThan) {
				break
			}
			end = i + 1
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]domain.Candle, end-start)
	copy(out, s.candles[start:end])
	return out, nil
}

func testInterval() domain.Interval {
	iv, _ := domain.ParseInterval("4h")
	return iv
}

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}
