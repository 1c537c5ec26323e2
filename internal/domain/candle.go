package domain

// Candle represents one fixed-interval OHLCV market observation.
// Corresponds to one row of the candles table in ClickHouse.
type Candle struct {
	Timestamp   int64   // candle open time, Unix milliseconds, UTC
	Open        float64 // open price
	High        float64 // high price
	Low         float64 // low price
	Close       float64 // close price
	BaseVolume  float64 // volume in base currency
	QuoteVolume float64 // volume denominated in quote currency
	FundingRate float64 // auxiliary, passed through opaquely by the pipeline
	IsClosed    bool    // false only for the still-forming live candle
}

// CandleSeries is an ordered sequence of candles for one
// (instrument, interval) pair.
//
// A finalized series has strictly increasing timestamps with no duplicates,
// and every candle belongs to the same instrument and interval.
type CandleSeries struct {
	Instrument string
	Interval   Interval
	Candles    []Candle
}

// Len returns the number of candles in the series.
func (s *CandleSeries) Len() int {
	return len(s.Candles)
}

// First returns the oldest candle. The second return is false for an
// empty series.
func (s *CandleSeries) First() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[0], true
}

// Last returns the newest candle. The second return is false for an
// empty series.
func (s *CandleSeries) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Timestamps returns the open times of all candles in series order.
func (s *CandleSeries) Timestamps() []int64 {
	out := make([]int64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Timestamp
	}
	return out
}

// IsStrictlyOrdered reports whether timestamps are strictly increasing
// with no duplicates. It returns the index of the first violation, or -1.
func (s *CandleSeries) IsStrictlyOrdered() (bool, int) {
	for i := 1; i < len(s.Candles); i++ {
		if s.Candles[i].Timestamp <= s.Candles[i-1].Timestamp {
			return false, i
		}
	}
	return true, -1
}
