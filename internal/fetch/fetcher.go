package fetch

import (
	"context"
	"fmt"
	"log"

	"okx-candle-lab/internal/continuity"
	"okx-candle-lab/internal/domain"
)

// Combined stitches the live window and paginated history into one
// canonical series of a requested length.
//
// A combined fetch is a pure function of (instrument, interval, target)
// plus the source's current content: re-running it against an unchanged
// source yields an identical series. The fetcher owns no state between
// invocations.
type Combined struct {
	source    Source
	funding   FundingSource
	paginator *Paginator
	liveLimit int
	logger    *log.Logger
}

// CombinedOption configures a Combined fetcher.
type CombinedOption func(*Combined)

// WithLiveLimit caps the live window request size.
func WithLiveLimit(n int) CombinedOption {
	return func(c *Combined) {
		if n > 0 {
			c.liveLimit = n
		}
	}
}

// WithFundingSource attaches funding rates to fetched series.
func WithFundingSource(fs FundingSource) CombinedOption {
	return func(c *Combined) {
		c.funding = fs
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) CombinedOption {
	return func(c *Combined) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPaginator replaces the default paginator.
func WithPaginator(p *Paginator) CombinedOption {
	return func(c *Combined) {
		if p != nil {
			c.paginator = p
		}
	}
}

// NewCombined creates a combined fetcher over the given source.
func NewCombined(source Source, opts ...CombinedOption) *Combined {
	c := &Combined{
		source:    source,
		liveLimit: MaxLiveLimit,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.paginator == nil {
		c.paginator = NewPaginator(source, WithPaginatorLogger(c.logger))
	}
	return c
}

// FetchCombined assembles a series of up to target candles: the live
// window first, then history pages older than the window's oldest
// timestamp, merged, deduplicated and validated.
//
// On ErrExhausted or ErrCancelled the partial series and its report are
// still returned; the caller decides whether a shorter series is
// acceptable. The continuity report is diagnostic and never blocks.
func (c *Combined) FetchCombined(ctx context.Context, instrument string, interval domain.Interval, target int) (*domain.CandleSeries, *continuity.Report, error) {
	return c.FetchCombinedFrom(ctx, instrument, interval, target, 0)
}

// FetchCombinedFrom is FetchCombined resuming from a checkpoint: resume is
// the cursor a previous run exhausted the source at, and history pagination
// stops there instead of burning its retry budget rediscovering the end of
// history. A zero resume cursor is a plain combined fetch.
func (c *Combined) FetchCombinedFrom(ctx context.Context, instrument string, interval domain.Interval, target int, resume Cursor) (*domain.CandleSeries, *continuity.Report, error) {
	if instrument == "" {
		return nil, nil, fmt.Errorf("instrument is empty: %w", ErrInvalidParameters)
	}
	if target <= 0 {
		return nil, nil, fmt.Errorf("target count %d: %w", target, ErrInvalidParameters)
	}

	liveLimit := c.liveLimit
	if liveLimit > target {
		liveLimit = target
	}
	live, err := FetchLiveWindow(ctx, c.source, instrument, interval, liveLimit)
	if err != nil {
		return nil, nil, err
	}
	c.logger.Printf("live window for %s %s: %d candles", instrument, interval, len(live))

	var history []domain.Candle
	var pageErr error
	if len(live) < target {
		cursor := Cursor(0)
		if len(live) > 0 {
			oldest := live[0].Timestamp
			for _, cd := range live[1:] {
				if cd.Timestamp < oldest {
					oldest = cd.Timestamp
				}
			}
			cursor = Cursor(oldest)
		}

		var pages *PageResult
		pages, pageErr = c.paginator.FetchOlderUntil(ctx, instrument, interval, target-len(live), cursor, resume)
		history = pages.Candles
		c.logger.Printf("history for %s %s: %d candles in %d pages (exhausted=%v)",
			instrument, interval, len(history), pages.Pages, pages.Exhausted)
	}

	series, duplicates := Merge(instrument, interval, history, live, target)
	if ok, idx := series.IsStrictlyOrdered(); !ok {
		// Impossible after Merge; if it happens the merger is broken.
		return series, nil, fmt.Errorf("merged series for %s %s non-monotonic at index %d: %w",
			instrument, interval, idx, ErrInvariantViolation)
	}

	c.attachFundingRate(ctx, instrument, series)

	report, cerr := continuity.Check(series, duplicates)
	if cerr != nil {
		return series, report, fmt.Errorf("continuity check for %s %s: %w", instrument, interval, cerr)
	}

	if pageErr != nil {
		return series, report, fmt.Errorf("history pagination for %s %s: %w", instrument, interval, pageErr)
	}
	if series.Len() < target {
		return series, report, fmt.Errorf("collected %d of %d candles for %s %s: %w",
			series.Len(), target, instrument, interval, ErrExhausted)
	}
	return series, report, nil
}

// attachFundingRate stamps the current funding rate on every candle as an
// opaque auxiliary field. Failures default the rate to zero, matching the
// source's own behavior for instruments without funding.
func (c *Combined) attachFundingRate(ctx context.Context, instrument string, series *domain.CandleSeries) {
	if c.funding == nil || series.Len() == 0 {
		return
	}
	rate, err := c.funding.FundingRate(ctx, instrument)
	if err != nil {
		c.logger.Printf("funding rate for %s unavailable: %v", instrument, err)
		return
	}
	for i := range series.Candles {
		series.Candles[i].FundingRate = rate
	}
}
