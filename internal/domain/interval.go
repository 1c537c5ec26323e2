package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Interval describes a candle interval: the canonical key, its duration,
// and the bar string the OKX API expects for it.
type Interval struct {
	Key      string
	Duration time.Duration
	Bar      string // OKX bar notation, e.g. "4H"
}

// OKX uses lowercase m for minutes and uppercase H/D/W for larger units.
var supportedIntervals = map[string]Interval{
	"1m":  {Key: "1m", Duration: time.Minute, Bar: "1m"},
	"5m":  {Key: "5m", Duration: 5 * time.Minute, Bar: "5m"},
	"15m": {Key: "15m", Duration: 15 * time.Minute, Bar: "15m"},
	"30m": {Key: "30m", Duration: 30 * time.Minute, Bar: "30m"},
	"1h":  {Key: "1h", Duration: time.Hour, Bar: "1H"},
	"4h":  {Key: "4h", Duration: 4 * time.Hour, Bar: "4H"},
	"1d":  {Key: "1d", Duration: 24 * time.Hour, Bar: "1D"},
	"1w":  {Key: "1w", Duration: 7 * 24 * time.Hour, Bar: "1W"},
}

// ParseInterval returns the normalized interval definition for a key such
// as "4h" or "1D" (case-insensitive).
func ParseInterval(input string) (Interval, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	iv, ok := supportedIntervals[key]
	if !ok {
		return Interval{}, fmt.Errorf("unsupported interval: %q", input)
	}
	return iv, nil
}

// SupportedIntervals returns all supported interval keys, sorted by duration.
func SupportedIntervals() []string {
	keys := make([]string, 0, len(supportedIntervals))
	for k := range supportedIntervals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return supportedIntervals[keys[i]].Duration < supportedIntervals[keys[j]].Duration
	})
	return keys
}

// StepMillis returns the expected step between consecutive candles in
// milliseconds.
func (iv Interval) StepMillis() int64 {
	return iv.Duration.Milliseconds()
}

// AlignDown aligns a millisecond timestamp down to the interval grid.
func (iv Interval) AlignDown(ts int64) int64 {
	step := iv.StepMillis()
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// ExpectedCount returns how many candles should exist in the inclusive
// range [start, end] if the series has no gaps.
func (iv Interval) ExpectedCount(start, end int64) int64 {
	if end < start {
		return 0
	}
	step := iv.StepMillis()
	if step == 0 {
		return 0
	}
	return (end-start)/step + 1
}

func (iv Interval) String() string {
	return iv.Key
}
