// Package okx implements the OKX v5 REST and WebSocket market data API.
// The REST client satisfies the fetch.Source and fetch.FundingSource
// capabilities consumed by the pipeline.
package okx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"okx-candle-lab/internal/domain"
	"okx-candle-lab/internal/fetch"
	"okx-candle-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL    = "https://www.okx.com"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second

	candlesPath     = "/api/v5/market/candles"
	historyPath     = "/api/v5/market/history-candles"
	fundingRatePath = "/api/v5/public/funding-rate"
	tickerPath      = "/api/v5/market/ticker"
	tickersPath     = "/api/v5/market/tickers"

	// Per-request caps published by OKX.
	MaxCandlesLimit = 300
	MaxHistoryLimit = 100
)

// OKX error codes mapped onto the pipeline's error classes.
const (
	codeOK            = "0"
	codeRateLimited   = "50011"
	codeParamError    = "51000"
	codeUnknownInstID = "51001"
)

// Limiter gates outbound requests. A shared limiter serializes the request
// budget across all clients and series.
type Limiter interface {
	Wait(ctx context.Context) error
}

// CooldownLimiter is a Limiter that can pause the whole bucket. When the
// exchange signals a rate limit, the pause applies to every series sharing
// the limiter, not just the request that tripped it.
type CooldownLimiter interface {
	Limiter
	Cooldown(d time.Duration)
}

// Client is an OKX v5 REST client with bounded retries and exponential
// backoff on transport failures. API-level errors are never retried here.
type Client struct {
	baseURL     string
	client      *http.Client
	creds       Credentials
	limiter     Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	metrics     *observability.Metrics
	logger      *log.Logger
	now         func() time.Time
}

// Compile-time capability checks.
var (
	_ fetch.Source        = (*Client)(nil)
	_ fetch.FundingSource = (*Client)(nil)
)

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// WithCredentials enables request signing.
func WithCredentials(creds Credentials) ClientOption {
	return func(c *Client) {
		c.creds = creds
	}
}

// WithLimiter gates every request on the given limiter.
func WithLimiter(l Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithMaxRetries sets maximum transport retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMetrics enables request instrumentation. Nil disables it.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates an OKX REST client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		logger:     log.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchLive returns the most recent candles, newest window only.
func (c *Client) FetchLive(ctx context.Context, instrument string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit > MaxCandlesLimit {
		limit = MaxCandlesLimit
	}
	q := url.Values{}
	q.Set("instId", instrument)
	q.Set("bar", interval.Bar)
	q.Set("limit", strconv.Itoa(limit))

	var env candleEnvelope
	if err := c.get(ctx, candlesPath, q, &env); err != nil {
		return nil, err
	}
	candles, err := parseKlines(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%s %s candles: %w", instrument, interval, err)
	}
	if c.metrics != nil {
		c.metrics.LiveWindowsFetched.Inc()
		c.metrics.CandlesFetched.WithLabelValues(instrument, interval.Key).Add(float64(len(candles)))
	}
	return candles, nil
}

// FetchHistory returns up to limit candles strictly older than the cursor.
func (c *Client) FetchHistory(ctx context.Context, instrument string, interval domain.Interval, limit int, olderThan fetch.Cursor) ([]domain.Candle, error) {
	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	q := url.Values{}
	q.Set("instId", instrument)
	q.Set("bar", interval.Bar)
	q.Set("limit", strconv.Itoa(limit))
	if olderThan != 0 {
		// after=T returns records with ts < T.
		q.Set("after", strconv.FormatInt(int64(olderThan), 10))
	}

	var env candleEnvelope
	if err := c.get(ctx, historyPath, q, &env); err != nil {
		return nil, err
	}
	candles, err := parseKlines(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%s %s history: %w", instrument, interval, err)
	}
	if c.metrics != nil {
		c.metrics.HistoryPagesFetched.Inc()
		c.metrics.CandlesFetched.WithLabelValues(instrument, interval.Key).Add(float64(len(candles)))
	}
	return candles, nil
}

// FundingRate returns the current funding rate for a swap instrument.
func (c *Client) FundingRate(ctx context.Context, instrument string) (float64, error) {
	q := url.Values{}
	q.Set("instId", instrument)

	var env fundingEnvelope
	if err := c.get(ctx, fundingRatePath, q, &env); err != nil {
		return 0, err
	}
	if len(env.Data) == 0 {
		return 0, nil
	}
	rate, err := strconv.ParseFloat(env.Data[0].FundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("funding rate %q for %s: %w", env.Data[0].FundingRate, instrument, err)
	}
	return rate, nil
}

// Ticker returns the 24-hour market snapshot for one instrument.
func (c *Client) Ticker(ctx context.Context, instrument string) (*Ticker, error) {
	q := url.Values{}
	q.Set("instId", instrument)

	var env tickerEnvelope
	if err := c.get(ctx, tickerPath, q, &env); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("no ticker for %s: %w", instrument, fetch.ErrInvalidParameters)
	}
	t, err := parseTicker(env.Data[0])
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Tickers returns snapshots for every instrument of a type, for example
// "SPOT" or "SWAP".
func (c *Client) Tickers(ctx context.Context, instType string) ([]Ticker, error) {
	q := url.Values{}
	q.Set("instType", instType)

	var env tickerEnvelope
	if err := c.get(ctx, tickersPath, q, &env); err != nil {
		return nil, err
	}
	tickers := make([]Ticker, 0, len(env.Data))
	for _, p := range env.Data {
		t, err := parseTicker(p)
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// get performs a GET with transport-level retries and exponential backoff.
// API-level errors (non-zero envelope code) are classified and returned
// without retrying; the paginator owns retry policy above this layer for
// retryable classes.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Printf("okx: retrying %s (attempt %d/%d): %v", path, attempt, c.maxRetries, lastErr)
			if c.metrics != nil {
				c.metrics.FetchRetries.WithLabelValues(errorClass(lastErr)).Inc()
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("%v: %w", ctx.Err(), fetch.ErrCancelled)
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("limiter: %v: %w", err, fetch.ErrCancelled)
			}
		}

		started := c.now()
		err := c.doOnce(ctx, requestPath, out)
		if c.metrics != nil {
			c.metrics.RequestLatency.WithLabelValues(path).Observe(time.Since(started).Seconds())
		}
		if err == nil {
			return nil
		}
		var rle *fetch.RateLimitError
		switch {
		case errors.As(err, &rle):
			// Rate limits bubble up to the paginator, which honors the
			// cooldown hint in its own backoff. The shared limiter pauses
			// too so concurrent series back off together.
			if cd, ok := c.limiter.(CooldownLimiter); ok && rle.RetryAfter > 0 {
				cd.Cooldown(rle.RetryAfter)
			}
			if c.metrics != nil {
				c.metrics.RateLimitHits.Inc()
			}
			return err
		case errors.Is(err, fetch.ErrSourceUnavailable):
			lastErr = err
			continue
		default:
			if c.metrics != nil {
				c.metrics.FetchErrors.WithLabelValues(errorClass(err)).Inc()
			}
			return err
		}
	}
	if c.metrics != nil {
		c.metrics.FetchErrors.WithLabelValues(errorClass(lastErr)).Inc()
	}
	return fmt.Errorf("%s after %d attempts: %w", path, c.maxRetries+1, lastErr)
}

// errorClass buckets an error for the retry and failure counters.
func errorClass(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, fetch.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, fetch.ErrSourceUnavailable):
		return "unavailable"
	case errors.Is(err, fetch.ErrInvalidParameters):
		return "invalid_params"
	case errors.Is(err, fetch.ErrCancelled):
		return "cancelled"
	default:
		return "other"
	}
}

// doOnce performs a single signed round trip.
func (c *Client) doOnce(ctx context.Context, requestPath string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+requestPath, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.creds.Apply(req, requestPath, "", c.now())

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%v: %w", ctx.Err(), fetch.ErrCancelled)
		}
		return fmt.Errorf("http get %s: %v: %w", requestPath, err, fetch.ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %v: %w", err, fetch.ErrSourceUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &fetch.RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, string(body), fetch.ErrSourceUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, string(body), fetch.ErrInvalidParameters)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	env := envelopeOf(out)
	if env != nil && env.Code != codeOK {
		return classify(env)
	}
	return nil
}

// envelopeOf extracts the shared envelope from a decoded response.
func envelopeOf(out interface{}) *apiEnvelope {
	switch v := out.(type) {
	case *candleEnvelope:
		return &v.apiEnvelope
	case *fundingEnvelope:
		return &v.apiEnvelope
	case *tickerEnvelope:
		return &v.apiEnvelope
	default:
		return nil
	}
}

// classify maps OKX response codes onto the pipeline's error classes.
func classify(env *apiEnvelope) error {
	apiErr := &APIError{Code: env.Code, Msg: env.Msg}
	switch env.Code {
	case codeRateLimited:
		return &fetch.RateLimitError{}
	case codeParamError, codeUnknownInstID:
		return fmt.Errorf("%v: %w", apiErr, fetch.ErrInvalidParameters)
	default:
		return apiErr
	}
}

// retryAfter parses the Retry-After header, if present, as whole seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
