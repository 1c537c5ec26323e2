package normalization

import (
	"errors"
	"math"
	"testing"
	"time"

	"okx-candle-lab/internal/domain"
)

func makeSeries(t *testing.T, candles ...domain.Candle) *domain.CandleSeries {
	t.Helper()
	iv, err := domain.ParseInterval("1h")
	if err != nil {
		t.Fatalf("parse interval: %v", err)
	}
	return &domain.CandleSeries{Instrument: "BTC-USD-SWAP", Interval: iv, Candles: candles}
}

func validCandle(ts int64) domain.Candle {
	return domain.Candle{
		Timestamp:   ts,
		Open:        100,
		High:        110,
		Low:         95,
		Close:       105,
		BaseVolume:  12.5,
		QuoteVolume: 1300,
		FundingRate: 0.0001,
		IsClosed:    true,
	}
}

func TestNormalize_ValidSeries(t *testing.T) {
	series := makeSeries(t, validCandle(1700000000000), validCandle(1700003600000))

	rows, err := Normalize(series)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	row := rows[0]
	if row.Time.Location() != time.UTC {
		t.Errorf("time key must be UTC, got %v", row.Time.Location())
	}
	if got := row.Time.UnixMilli(); got != 1700000000000 {
		t.Errorf("time key wrong: %d", got)
	}
	if row.Open != 100 || row.High != 110 || row.Low != 95 || row.Close != 105 {
		t.Errorf("OHLC carried wrong: %+v", row)
	}
	if row.BaseVolume != 12.5 || row.QuoteVolume != 1300 {
		t.Errorf("volumes carried wrong: %+v", row)
	}
	if row.FundingRate != 0.0001 {
		t.Errorf("funding rate carried wrong: %v", row.FundingRate)
	}
}

func TestNormalize_NamesFirstBadField(t *testing.T) {
	// Both high and quote_volume are bad; the error must name high, the
	// earlier field in canonical order.
	bad := validCandle(1700000000000)
	bad.High = math.NaN()
	bad.QuoteVolume = math.Inf(1)

	_, err := Normalize(makeSeries(t, bad))
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if mismatch.Field != "high" {
		t.Errorf("expected first bad field %q, got %q", "high", mismatch.Field)
	}
	if mismatch.Timestamp != 1700000000000 {
		t.Errorf("mismatch must carry the candle timestamp, got %d", mismatch.Timestamp)
	}
}

func TestNormalize_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Candle)
		field  string
	}{
		{"zero timestamp", func(c *domain.Candle) { c.Timestamp = 0 }, "time"},
		{"nan open", func(c *domain.Candle) { c.Open = math.NaN() }, "open"},
		{"infinite volume", func(c *domain.Candle) { c.BaseVolume = math.Inf(-1) }, "base_volume"},
		{"negative volume", func(c *domain.Candle) { c.QuoteVolume = -10 }, "quote_volume"},
		{"nan funding rate", func(c *domain.Candle) { c.FundingRate = math.NaN() }, "funding_rate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCandle(1700000000000)
			tc.mutate(&c)

			_, err := Normalize(makeSeries(t, c))
			var mismatch *SchemaMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("expected SchemaMismatchError, got %v", err)
			}
			if mismatch.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, mismatch.Field)
			}
		})
	}
}

func TestNormalize_PassesThroughPriceAnomalies(t *testing.T) {
	// Price relationships are the source's problem, not the schema's:
	// an inverted high/low or a negative price is still a numeric row
	// and must survive normalization untouched.
	inverted := validCandle(1000)
	inverted.Open, inverted.High, inverted.Low, inverted.Close = 10, 9, 11, 10
	negative := validCandle(1000 + 3600000)
	negative.Low = -2

	rows, err := Normalize(makeSeries(t, inverted, negative))
	if err != nil {
		t.Fatalf("anomalous prices must pass through: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].High != 9 || rows[0].Low != 11 {
		t.Errorf("inverted high/low not carried verbatim: %+v", rows[0])
	}
	if rows[1].Low != -2 {
		t.Errorf("negative price not carried verbatim: %+v", rows[1])
	}
}

func TestNormalize_NegativeFundingRateAllowed(t *testing.T) {
	c := validCandle(1700000000000)
	c.FundingRate = -0.0003

	rows, err := Normalize(makeSeries(t, c))
	if err != nil {
		t.Fatalf("negative funding rates are legitimate: %v", err)
	}
	if rows[0].FundingRate != -0.0003 {
		t.Errorf("funding rate carried wrong: %v", rows[0].FundingRate)
	}
}

func TestNormalize_Empty(t *testing.T) {
	rows, err := Normalize(makeSeries(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}
