package fetch

import (
	"context"
	"errors"
	"testing"

	"okx-candle-lab/internal/domain"
)

type stubFunding struct {
	rate  float64
	err   error
	calls int
}

func (s *stubFunding) FundingRate(context.Context, string) (float64, error) {
	s.calls++
	return s.rate, s.err
}

func TestFetchCombined_FullTarget(t *testing.T) {
	iv := testInterval()
	step := iv.StepMillis()
	src := &stubSource{candles: makeCandles(0, step, 2000), liveWindow: 300}
	c := NewCombined(src, WithLogger(testLogger()))

	series, report, err := c.FetchCombined(context.Background(), "BTC-USD-SWAP", iv, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Len() != 512 {
		t.Fatalf("expected exactly 512 candles, got %d", series.Len())
	}
	if ok, idx := series.IsStrictlyOrdered(); !ok {
		t.Fatalf("series unordered at index %d", idx)
	}
	last, _ := series.Last()
	if want := int64(1999) * step; last.Timestamp != want {
		t.Errorf("series must end at the newest candle: got %d, want %d", last.Timestamp, want)
	}
	if report == nil {
		t.Fatal("expected a continuity report")
	}
	if !report.Complete() {
		t.Errorf("expected a complete series, report: %+v", report)
	}
	if report.Ratio != 1.0 {
		t.Errorf("expected continuity ratio 1.0, got %v", report.Ratio)
	}
	if report.MissingSteps != 0 {
		t.Errorf("expected 0 missing steps, got %d", report.MissingSteps)
	}
}

func TestFetchCombined_Idempotent(t *testing.T) {
	iv := testInterval()
	step := iv.StepMillis()

	run := func() *domain.CandleSeries {
		src := &stubSource{candles: makeCandles(0, step, 2000), liveWindow: 300}
		c := NewCombined(src, WithLogger(testLogger()))
		series, _, err := c.FetchCombined(context.Background(), "BTC-USD-SWAP", iv, 512)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return series
	}

	a, b := run(), run()
	if a.Len() != b.Len() {
		t.Fatalf("runs differ in length: %d vs %d", a.Len(), b.Len())
	}
	for i := range a.Candles {
		if a.Candles[i] != b.Candles[i] {
			t.Fatalf("runs differ at index %d: %+v vs %+v", i, a.Candles[i], b.Candles[i])
		}
	}
}

func TestFetchCombined_LiveCoversTarget(t *testing.T) {
	iv := testInterval()
	step := iv.StepMillis()
	src := &stubSource{candles: makeCandles(0, step, 500), liveWindow: 300}
	c := NewCombined(src, WithLogger(testLogger()))

	series, _, err := c.FetchCombined(context.Background(), "BTC-USD-SWAP", iv, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if series.Len() != 200 {
		t.Errorf("expected 200 candles, got %d", series.Len())
	}
	if src.historyCalls != 0 {
		t.Errorf("history must not be paged when the live window covers the target, got %d calls", src.historyCalls)
	}
}

func TestFetchCombined_SourceExhausted(t *testing.T) {
	iv := testInterval()
	step := iv.StepMillis()
	src := &stubSource{candles: makeCandles(0, step, 400), liveWindow: 300}
	c := NewCombined(src, WithLogger(testLogger()))

	series, report, err := c.FetchCombined(context.Background(), "BTC-USD-SWAP", iv, 512)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if series == nil || series.Len() != 400 {
		t.Fatalf("partial series must be preserved: got %v", series)
	}
	if report == nil {
		t.Error("partial result must still carry a continuity report")
	}
}

func TestFetchCombined_ResumeSkipsExhaustedHistory(t *testing.T) {
	iv := testInterval()
	step := iv.StepMillis()
	src := &stubSource{candles: makeCandles(step, step, 400), liveWindow: 300}
	c := NewCombined(src, WithLogger(testLogger()))

	// First run discovers the end of history the hard way.
	series, _, err := c.FetchCombined(context.Background(), "BTC-USD-SWAP", iv, 512)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	first, _ := series.First()
	firstRunCalls := src.historyCalls

	// Second run resumes from the recorded oldest timestamp and must not
	// page past it again.
	resumed, report, err := c.FetchCombinedFrom(context.Background(), "BTC-USD-SWAP", iv, 512, Cursor(first.Timestamp))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted on resume, got %v", err)
	}
	if resumed.Len() != series.Len() {
		t.Errorf("resumed series has %d candles, first run had %d", resumed.Len(), series.Len())
	}
	if report == nil {
		t.Error("resumed partial must still carry a continuity report")
	}
	if got := src.historyCalls - firstRunCalls; got != firstRunCalls-1 {
		t.Errorf("resume made %d history calls, first run needed %d; the empty probe page must be skipped",
			got, firstRunCalls)
	}
}

func TestFetchCombined_LiveWindowError(t *testing.T) {
	iv := testInterval()
	src := &stubSource{liveErr: ErrSourceUnavailable}
	c := NewCombined(src, WithLogger(testLogger()))

	_, _, err := c.FetchCombined(context.Background(), "BTC-USD-SWAP", iv, 100)
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFetchCombined_AttachesFundingRate(t *testing.T) {
	iv := testInterval()
	step := iv.StepMillis()
	src := &stubSource{candles: makeCandles(0, step, 300), liveWindow: 300}
	funding := &stubFunding{rate: 0.0001}
	c := NewCombined(src, WithFundingSource(funding), WithLogger(testLogger()))

	series, _, err := c.FetchCombined(context.Background(), "BTC-USD-SWAP", iv, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if funding.calls != 1 {
		t.Errorf("expected one funding rate call, got %d", funding.calls)
	}
	for i, cd := range series.Candles {
		if cd.FundingRate != 0.0001 {
			t.Fatalf("funding rate missing on candle %d: %v", i, cd.FundingRate)
		}
	}
}

func TestFetchCombined_FundingFailureIsNotFatal(t *testing.T) {
	iv := testInterval()
	step := iv.StepMillis()
	src := &stubSource{candles: makeCandles(0, step, 300), liveWindow: 300}
	funding := &stubFunding{err: ErrSourceUnavailable}
	c := NewCombined(src, WithFundingSource(funding), WithLogger(testLogger()))

	series, _, err := c.FetchCombined(context.Background(), "BTC-USD-SWAP", iv, 100)
	if err != nil {
		t.Fatalf("funding failure must not fail the fetch: %v", err)
	}
	for i, cd := range series.Candles {
		if cd.FundingRate != 0 {
			t.Fatalf("candle %d has a funding rate despite the lookup failing: %v", i, cd.FundingRate)
		}
	}
}

func TestFetchCombined_InvalidParameters(t *testing.T) {
	iv := testInterval()
	src := &stubSource{candles: makeCandles(0, iv.StepMillis(), 10), liveWindow: 10}
	c := NewCombined(src, WithLogger(testLogger()))

	cases := []struct {
		name       string
		instrument string
		target     int
	}{
		{"empty instrument", "", 100},
		{"zero target", "BTC-USD-SWAP", 0},
		{"negative target", "BTC-USD-SWAP", -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := c.FetchCombined(context.Background(), tc.instrument, iv, tc.target)
			if !errors.Is(err, ErrInvalidParameters) {
				t.Fatalf("expected ErrInvalidParameters, got %v", err)
			}
		})
	}
	if src.liveCalls != 0 {
		t.Errorf("invalid parameters must be rejected before any network call, got %d live calls", src.liveCalls)
	}
}
