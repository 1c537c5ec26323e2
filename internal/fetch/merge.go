package fetch

import (
	"sort"

	"okx-candle-lab/internal/domain"
)

// Merge unions history pages and the live window into one series keyed by
// timestamp, removing duplicates, sorting ascending, and truncating to the
// target-count most recent candles.
//
// When both sources report the same timestamp the live value wins: the
// live window is the presumed freshest read. Deduplication is
// unconditional; the returned series always has strictly increasing,
// unique timestamps. The second return is the number of duplicate
// timestamps removed.
func Merge(instrument string, interval domain.Interval, history, live []domain.Candle, target int) (*domain.CandleSeries, int) {
	byTS := make(map[int64]domain.Candle, len(history)+len(live))
	for _, c := range history {
		byTS[c.Timestamp] = c
	}
	// Live applied last so its values win at overlapping timestamps.
	for _, c := range live {
		byTS[c.Timestamp] = c
	}
	duplicates := len(history) + len(live) - len(byTS)

	merged := make([]domain.Candle, 0, len(byTS))
	for _, c := range byTS {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})

	if target > 0 && len(merged) > target {
		merged = merged[len(merged)-target:]
	}

	return &domain.CandleSeries{
		Instrument: instrument,
		Interval:   interval,
		Candles:    merged,
	}, duplicates
}
