// Package continuity checks a merged candle series for missing interval
// steps. Continuity failures are diagnostic: the report is surfaced to the
// caller for policy decisions, and the series is never mutated or
// rejected here.
package continuity

import (
	"errors"
	"fmt"

	"okx-candle-lab/internal/domain"
)

// ErrInvariantViolation indicates a step that should be impossible after
// deduplication: zero, negative, or smaller than the interval step. It is
// a defect in the pipeline, not a data-quality finding.
var ErrInvariantViolation = errors.New("continuity invariant violation")

// Gap is a run of missing candles between two present neighbors.
type Gap struct {
	From  int64 `json:"from"`  // first missing open time (ms)
	To    int64 `json:"to"`    // last missing open time (ms)
	Count int64 `json:"count"` // number of missing candles
}

// Report summarizes the coverage of a series relative to its interval's
// expected step.
type Report struct {
	Instrument        string  `json:"instrument"`
	Interval          string  `json:"interval"`
	FirstTimestamp    int64   `json:"first_timestamp"`
	LastTimestamp     int64   `json:"last_timestamp"`
	Expected          int64   `json:"expected"`           // candles the span should contain
	Present           int64   `json:"present"`            // candles actually in the series
	MissingSteps      int64   `json:"missing_steps"`      // Expected - Present
	DuplicatesRemoved int     `json:"duplicates_removed"` // overlaps removed by the merger
	Gaps              []Gap   `json:"gaps,omitempty"`
	Ratio             float64 `json:"ratio"` // Present / Expected, in [0, 1]
}

// Complete reports whether the series has no missing steps.
func (r *Report) Complete() bool {
	return len(r.Gaps) == 0
}

// Check walks consecutive pairs of a sorted, deduplicated series and
// classifies each step against the interval's expected step. Steps larger
// than expected are recorded as gaps. Steps smaller than or equal to zero,
// or smaller than the expected step, should be impossible after dedup and
// surface ErrInvariantViolation together with the report built so far.
func Check(series *domain.CandleSeries, duplicatesRemoved int) (*Report, error) {
	report := &Report{
		Instrument:        series.Instrument,
		Interval:          series.Interval.Key,
		Present:           int64(series.Len()),
		DuplicatesRemoved: duplicatesRemoved,
		Ratio:             1.0,
	}

	if series.Len() == 0 {
		return report, nil
	}

	first, _ := series.First()
	last, _ := series.Last()
	report.FirstTimestamp = first.Timestamp
	report.LastTimestamp = last.Timestamp

	step := series.Interval.StepMillis()
	if step <= 0 {
		return report, fmt.Errorf("interval %q has no step: %w", series.Interval.Key, ErrInvariantViolation)
	}
	report.Expected = series.Interval.ExpectedCount(first.Timestamp, last.Timestamp)

	for i := 1; i < series.Len(); i++ {
		prev := series.Candles[i-1].Timestamp
		curr := series.Candles[i].Timestamp
		delta := curr - prev

		switch {
		case delta == step:
			// continuous
		case delta > step:
			missing := delta/step - 1
			report.Gaps = append(report.Gaps, Gap{
				From:  prev + step,
				To:    curr - step,
				Count: missing,
			})
		default:
			return report, fmt.Errorf("non-monotonic step at index %d (%d -> %d, expected step %dms): %w",
				i, prev, curr, step, ErrInvariantViolation)
		}
	}

	report.MissingSteps = report.Expected - report.Present
	if report.Expected > 0 {
		report.Ratio = float64(report.Present) / float64(report.Expected)
	}
	return report, nil
}
