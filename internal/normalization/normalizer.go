// Package normalization converts fetched candle series into the canonical
// table consumed by dataset packaging and storage. Every row is validated
// field by field; a single bad value fails the whole series with the
// offending field named.
package normalization

import (
	"fmt"
	"math"
	"time"

	"okx-candle-lab/internal/domain"
)

// Row is one canonical candle keyed by its UTC open time.
type Row struct {
	Time        time.Time `json:"time"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	BaseVolume  float64   `json:"base_volume"`
	QuoteVolume float64   `json:"quote_volume"`
	FundingRate float64   `json:"funding_rate"`
}

// Columns lists the canonical column names in output order.
var Columns = []string{"time", "open", "high", "low", "close", "base_volume", "quote_volume", "funding_rate"}

// SchemaMismatchError names the first field that failed validation.
type SchemaMismatchError struct {
	Field     string
	Timestamp int64
	Value     float64
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: field %q at timestamp %d has value %v", e.Field, e.Timestamp, e.Value)
}

// Normalize converts a series into canonical rows. Fields are checked in
// canonical column order, so the error always names the first offender.
func Normalize(series *domain.CandleSeries) ([]Row, error) {
	rows := make([]Row, 0, series.Len())
	for _, c := range series.Candles {
		row, err := normalizeCandle(c)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func normalizeCandle(c domain.Candle) (Row, error) {
	if c.Timestamp <= 0 {
		return Row{}, &SchemaMismatchError{Field: "time", Timestamp: c.Timestamp}
	}

	fields := []struct {
		name  string
		value float64
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
		{"base_volume", c.BaseVolume},
		{"quote_volume", c.QuoteVolume},
		{"funding_rate", c.FundingRate},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return Row{}, &SchemaMismatchError{Field: f.name, Timestamp: c.Timestamp, Value: f.value}
		}
	}
	// Volumes are counts and cannot go below zero. Price relationships
	// (high >= low, non-negative prices) are data quality, not schema:
	// anomalous but numeric prices pass through untouched.
	for _, f := range fields[4:6] {
		if f.value < 0 {
			return Row{}, &SchemaMismatchError{Field: f.name, Timestamp: c.Timestamp, Value: f.value}
		}
	}

	return Row{
		Time:        time.UnixMilli(c.Timestamp).UTC(),
		Open:        c.Open,
		High:        c.High,
		Low:         c.Low,
		Close:       c.Close,
		BaseVolume:  c.BaseVolume,
		QuoteVolume: c.QuoteVolume,
		FundingRate: c.FundingRate,
	}, nil
}
