package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"okx-candle-lab/internal/continuity"
	"okx-candle-lab/internal/normalization"
)

// Summary describes a written dataset. It is stored next to the CSV files
// as summary.json.
type Summary struct {
	Instrument string    `json:"instrument"`
	Interval   string    `json:"interval"`
	TotalRows  int       `json:"total_rows"`
	TrainRows  int       `json:"train_rows"`
	ValRows    int       `json:"val_rows"`
	TestRows   int       `json:"test_rows"`
	FirstTime  time.Time `json:"first_time,omitempty"`
	LastTime   time.Time `json:"last_time,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Continuity *continuity.Report `json:"continuity,omitempty"`
}

// Writer writes dataset splits to a directory: train.csv, val.csv,
// test.csv and summary.json.
type Writer struct {
	outDir string
	now    func() time.Time // injectable clock for deterministic output
}

// NewWriter creates a writer rooted at outDir. The directory is created
// on the first write.
func NewWriter(outDir string) *Writer {
	return &Writer{
		outDir: outDir,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// Write persists the split and returns the summary it wrote.
func (w *Writer) Write(instrument, interval string, split *Split, report *continuity.Report) (*Summary, error) {
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}

	parts := []struct {
		name string
		rows []normalization.Row
	}{
		{"train.csv", split.Train},
		{"val.csv", split.Val},
		{"test.csv", split.Test},
	}
	for _, part := range parts {
		if err := writeCSV(filepath.Join(w.outDir, part.name), part.rows); err != nil {
			return nil, fmt.Errorf("write %s: %w", part.name, err)
		}
	}

	summary := &Summary{
		Instrument: instrument,
		Interval:   interval,
		TotalRows:  len(split.Train) + len(split.Val) + len(split.Test),
		TrainRows:  len(split.Train),
		ValRows:    len(split.Val),
		TestRows:   len(split.Test),
		CreatedAt:  w.now(),
		Continuity: report,
	}
	if len(split.Train) > 0 {
		summary.FirstTime = split.Train[0].Time
	}
	if len(split.Test) > 0 {
		summary.LastTime = split.Test[len(split.Test)-1].Time
	} else if len(split.Val) > 0 {
		summary.LastTime = split.Val[len(split.Val)-1].Time
	} else if len(split.Train) > 0 {
		summary.LastTime = split.Train[len(split.Train)-1].Time
	}

	if err := writeSummary(filepath.Join(w.outDir, "summary.json"), summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func writeCSV(path string, rows []normalization.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(normalization.Columns); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Time.Format(time.RFC3339),
			formatFloat(row.Open),
			formatFloat(row.High),
			formatFloat(row.Low),
			formatFloat(row.Close),
			formatFloat(row.BaseVolume),
			formatFloat(row.QuoteVolume),
			formatFloat(row.FundingRate),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeSummary(path string, summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
