package fetch

import (
	"errors"
	"fmt"
	"time"
)

// Error classes for the fetch pipeline. Transport failures and rate limits
// are retryable; invalid parameters are not. ErrExhausted and ErrCancelled
// are surfaced together with whatever partial series was accumulated, so
// callers can accept a shorter series instead of discarding all progress.
var (
	// ErrSourceUnavailable indicates a transport-level failure talking to
	// the remote source.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRateLimited indicates the source throttled the request.
	ErrRateLimited = errors.New("rate limited by source")

	// ErrInvalidParameters indicates the source rejected the request
	// parameters. Never retried.
	ErrInvalidParameters = errors.New("invalid request parameters")

	// ErrExhausted indicates the source ran out of history, or the retry
	// ceiling was hit, before the target count was reached. The partial
	// series is still returned.
	ErrExhausted = errors.New("source history exhausted before target")

	// ErrCancelled indicates the caller cancelled the fetch between round
	// trips. The partial series is still returned.
	ErrCancelled = errors.New("fetch cancelled")

	// ErrInvariantViolation indicates the merged series broke an internal
	// invariant (non-monotonic timestamps after dedup). This is a defect,
	// surfaced rather than masked.
	ErrInvariantViolation = errors.New("series invariant violation")
)

// RateLimitError carries the cooldown hint supplied by the source.
// It unwraps to ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by source (retry after %s)", e.RetryAfter)
	}
	return "rate limited by source"
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// retryable reports whether a round trip that failed with err may be
// attempted again.
func retryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrRateLimited)
}
