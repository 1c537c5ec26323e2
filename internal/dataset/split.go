// Package dataset packages normalized candle rows into train/val/test
// splits and writes them out as CSV files with a JSON summary.
package dataset

import (
	"fmt"
	"math"

	"okx-candle-lab/internal/normalization"
)

// Default split ratios.
const (
	DefaultTrainRatio = 0.70
	DefaultValRatio   = 0.15
	DefaultTestRatio  = 0.15
)

// SplitRatios is a chronological train/val/test partition. Ratios must be
// non-negative and sum to 1.
type SplitRatios struct {
	Train float64
	Val   float64
	Test  float64
}

// DefaultSplitRatios returns the standard 70/15/15 partition.
func DefaultSplitRatios() SplitRatios {
	return SplitRatios{Train: DefaultTrainRatio, Val: DefaultValRatio, Test: DefaultTestRatio}
}

// Validate checks the ratios form a partition.
func (r SplitRatios) Validate() error {
	if r.Train < 0 || r.Val < 0 || r.Test < 0 {
		return fmt.Errorf("split ratios must be non-negative: %+v", r)
	}
	if sum := r.Train + r.Val + r.Test; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("split ratios must sum to 1, got %v", sum)
	}
	return nil
}

// Split is a chronological partition of normalized rows. Train holds the
// oldest rows and Test the newest; no row appears in two parts.
type Split struct {
	Train []normalization.Row
	Val   []normalization.Row
	Test  []normalization.Row
}

// SplitRows partitions rows chronologically. Rows must already be in
// ascending time order; boundaries are computed by truncation so the test
// part absorbs the rounding remainder.
func SplitRows(rows []normalization.Row, ratios SplitRatios) (*Split, error) {
	if err := ratios.Validate(); err != nil {
		return nil, err
	}

	n := len(rows)
	trainEnd := int(float64(n) * ratios.Train)
	valEnd := trainEnd + int(float64(n)*ratios.Val)
	if valEnd > n {
		valEnd = n
	}

	return &Split{
		Train: rows[:trainEnd],
		Val:   rows[trainEnd:valEnd],
		Test:  rows[valEnd:],
	}, nil
}
