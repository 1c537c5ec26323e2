package fetch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"okx-candle-lab/internal/domain"
)

// Default paginator configuration.
const (
	// DefaultBatchSize is the page size for history requests. OKX caps
	// history-candles pages at 100 rows.
	DefaultBatchSize = 100

	// DefaultMaxAttempts is the per-page retry ceiling for retryable
	// transport errors.
	DefaultMaxAttempts = 3

	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
)

// Paginator walks the history endpoint backwards in time, advancing a
// cursor page by page until the requested count is collected or the
// source is exhausted.
//
// Pagination for one series is strictly sequential: each page's cursor
// depends on the previous page's oldest timestamp.
type Paginator struct {
	source      Source
	batchSize   int
	maxAttempts int
	retryDelay  time.Duration
	maxDelay    time.Duration
	logger      *log.Logger
}

// PaginatorOption configures a Paginator.
type PaginatorOption func(*Paginator)

// WithBatchSize sets the history page size.
func WithBatchSize(n int) PaginatorOption {
	return func(p *Paginator) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMaxAttempts sets the per-page retry ceiling.
func WithMaxAttempts(n int) PaginatorOption {
	return func(p *Paginator) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the initial backoff delay between page retries.
func WithRetryDelay(d time.Duration) PaginatorOption {
	return func(p *Paginator) {
		p.retryDelay = d
	}
}

// WithPaginatorLogger sets the logger.
func WithPaginatorLogger(l *log.Logger) PaginatorOption {
	return func(p *Paginator) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPaginator creates a history paginator over the given source.
func NewPaginator(source Source, opts ...PaginatorOption) *Paginator {
	p := &Paginator{
		source:      source,
		batchSize:   DefaultBatchSize,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PageResult accumulates the pagination outcome. Candles are in the order
// the source returned them across pages (ascending within each page,
// pages progressively older); Merge restores global order.
type PageResult struct {
	Candles   []domain.Candle
	Pages     int  // round trips that returned data or an empty page
	Exhausted bool // the source returned an empty page
	Cursor    Cursor
}

// FetchOlder collects up to target candles older than the start cursor.
//
// The loop terminates in at most ceil(target/batchSize)+1 round trips:
// every non-empty page advances the cursor strictly backwards, and an
// empty page stops pagination regardless of whether the target was
// reached. Cancellation is honored between round trips; the partial
// accumulator is preserved on every error path.
func (p *Paginator) FetchOlder(ctx context.Context, instrument string, interval domain.Interval, target int, start Cursor) (*PageResult, error) {
	return p.FetchOlderUntil(ctx, instrument, interval, target, start, 0)
}

// FetchOlderUntil is FetchOlder with a known-exhaustion floor: a previous
// run found no data older than floor, so pagination stops once the cursor
// reaches it instead of probing past it again. A zero floor disables the
// bound.
func (p *Paginator) FetchOlderUntil(ctx context.Context, instrument string, interval domain.Interval, target int, start, floor Cursor) (*PageResult, error) {
	result := &PageResult{Cursor: start}
	if target <= 0 {
		return result, nil
	}

	for len(result.Candles) < target {
		if floor != 0 && result.Cursor != 0 && result.Cursor <= floor {
			result.Exhausted = true
			p.logger.Printf("history for %s %s reached exhaustion floor %d after %d pages (%d collected)",
				instrument, interval, floor, result.Pages, len(result.Candles))
			break
		}
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("page %d (cursor %d, collected %d): %v: %w",
				result.Pages+1, result.Cursor, len(result.Candles), ctx.Err(), ErrCancelled)
		default:
		}

		limit := target - len(result.Candles)
		if limit > p.batchSize {
			limit = p.batchSize
		}

		batch, err := p.fetchPage(ctx, instrument, interval, limit, result.Cursor)
		if err != nil {
			return result, fmt.Errorf("page %d (cursor %d, collected %d): %w",
				result.Pages+1, result.Cursor, len(result.Candles), err)
		}
		result.Pages++

		if len(batch) == 0 {
			result.Exhausted = true
			p.logger.Printf("history exhausted for %s %s after %d pages (%d collected)",
				instrument, interval, result.Pages, len(result.Candles))
			break
		}

		result.Candles = append(result.Candles, batch...)

		oldest := batch[0].Timestamp
		for _, c := range batch[1:] {
			if c.Timestamp < oldest {
				oldest = c.Timestamp
			}
		}
		result.Cursor = Cursor(oldest)
	}

	return result, nil
}

// fetchPage performs one round trip with bounded retries and exponential
// backoff. Rate-limit cooldown hints from the source take precedence over
// the computed backoff.
func (p *Paginator) fetchPage(ctx context.Context, instrument string, interval domain.Interval, limit int, cursor Cursor) ([]domain.Candle, error) {
	delay := p.retryDelay
	var lastErr error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := delay
			var rl *RateLimitError
			if errors.As(lastErr, &rl) && rl.RetryAfter > wait {
				wait = rl.RetryAfter
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%v: %w", ctx.Err(), ErrCancelled)
			case <-time.After(wait):
			}
			delay *= 2
			if delay > p.maxDelay {
				delay = p.maxDelay
			}
		}

		batch, err := p.source.FetchHistory(ctx, instrument, interval, limit, cursor)
		if err == nil {
			return batch, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		p.logger.Printf("history page retry %d/%d for %s %s: %v",
			attempt, p.maxAttempts, instrument, interval, err)
	}

	return nil, fmt.Errorf("%d attempts failed (%v): %w", p.maxAttempts, lastErr, ErrExhausted)
}
