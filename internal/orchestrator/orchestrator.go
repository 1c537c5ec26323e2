// Package orchestrator coordinates the dataset pipeline end to end:
// fetch → normalize → store → split → package, fanned out across series.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"okx-candle-lab/internal/continuity"
	"okx-candle-lab/internal/dataset"
	"okx-candle-lab/internal/domain"
	"okx-candle-lab/internal/fetch"
	"okx-candle-lab/internal/normalization"
	"okx-candle-lab/internal/observability"
	"okx-candle-lab/internal/storage"
)

// Fetcher assembles a combined candle series for one series request. The
// resume cursor carries a previous run's checkpoint; zero means a fresh
// fetch.
type Fetcher interface {
	FetchCombinedFrom(ctx context.Context, instrument string, interval domain.Interval, target int, resume fetch.Cursor) (*domain.CandleSeries, *continuity.Report, error)
}

// SeriesRequest names one series to build.
type SeriesRequest struct {
	Instrument string
	Interval   domain.Interval
	Target     int
}

// Key identifies the request in logs and output paths.
func (r SeriesRequest) Key() string {
	return r.Instrument + "_" + r.Interval.Key
}

// Options for creating an Orchestrator.
type Options struct {
	// Fetcher is required.
	Fetcher Fetcher

	// Optional stores. A nil store skips that persistence step.
	CandleStore     storage.CandleStore
	CheckpointStore storage.CheckpointStore
	RunStore        storage.DatasetRunStore

	// OutDir is the root directory for dataset output; each series gets
	// its own subdirectory.
	OutDir string

	// Ratios defaults to the standard 70/15/15 partition.
	Ratios dataset.SplitRatios

	// Concurrency bounds parallel series builds. Pagination within one
	// series stays sequential; the fan-out is across series only.
	Concurrency int

	// AcceptPartial keeps series that ran out of history short of the
	// target instead of failing them.
	AcceptPartial bool

	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.Metrics

	Logger *log.Logger
	Clock  func() time.Time
}

// Orchestrator builds datasets for many series concurrently.
type Orchestrator struct {
	fetcher         Fetcher
	candleStore     storage.CandleStore
	checkpointStore storage.CheckpointStore
	runStore        storage.DatasetRunStore
	outDir          string
	ratios          dataset.SplitRatios
	concurrency     int
	acceptPartial   bool
	metrics         *observability.Metrics
	logger          *log.Logger
	now             func() time.Time
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("orchestrator: fetcher is required")
	}
	if opts.Ratios == (dataset.SplitRatios{}) {
		opts.Ratios = dataset.DefaultSplitRatios()
	}
	if err := opts.Ratios.Validate(); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		fetcher:         opts.Fetcher,
		candleStore:     opts.CandleStore,
		checkpointStore: opts.CheckpointStore,
		runStore:        opts.RunStore,
		outDir:          opts.OutDir,
		ratios:          opts.Ratios,
		concurrency:     opts.Concurrency,
		acceptPartial:   opts.AcceptPartial,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		now:             opts.Clock,
	}, nil
}

// RunResult summarizes one orchestrator run.
type RunResult struct {
	Runs   []*storage.DatasetRun
	Errors []string
}

// Run builds every requested series. Series run in parallel up to the
// concurrency bound; a failed series is recorded and does not stop the
// others. The returned error is non-nil only when the run was cancelled
// or every series failed.
func (o *Orchestrator) Run(ctx context.Context, requests []SeriesRequest) (*RunResult, error) {
	result := &RunResult{}
	if len(requests) == 0 {
		return result, nil
	}

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	for _, req := range requests {
		req := req
		g.Go(func() error {
			run, err := o.buildSeries(gctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Cancellation stops the whole run; other failures are
				// collected per series.
				if errors.Is(err, context.Canceled) || errors.Is(err, fetch.ErrCancelled) {
					return err
				}
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", req.Key(), err))
				return nil
			}
			result.Runs = append(result.Runs, run)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	if len(result.Runs) == 0 && len(result.Errors) > 0 {
		return result, fmt.Errorf("all %d series failed: %s", len(result.Errors), strings.Join(result.Errors, "; "))
	}
	return result, nil
}

// buildSeries runs the pipeline for one series.
func (o *Orchestrator) buildSeries(ctx context.Context, req SeriesRequest) (run *storage.DatasetRun, err error) {
	o.logger.Printf("building %s: target %d candles", req.Key(), req.Target)

	started := time.Now()
	defer func() {
		if o.metrics == nil {
			return
		}
		labels := []string{req.Instrument, req.Interval.Key}
		o.metrics.BuildDuration.WithLabelValues(labels...).Observe(time.Since(started).Seconds())
		if err != nil {
			o.metrics.SeriesFailed.WithLabelValues(labels...).Inc()
			return
		}
		o.metrics.SeriesBuilt.WithLabelValues(labels...).Inc()
		o.metrics.DatasetRowCount.WithLabelValues(labels...).Set(float64(run.TotalRows))
		o.metrics.MissingSteps.WithLabelValues(labels...).Set(float64(run.MissingSteps))
		o.metrics.DuplicatesRemoved.Add(float64(run.DuplicatesRemoved))
		o.metrics.LastSuccessfulBuild.SetToCurrentTime()
	}()

	series, report, err := o.fetcher.FetchCombinedFrom(ctx, req.Instrument, req.Interval, req.Target, o.loadCheckpoint(ctx, req))
	if err != nil {
		if errors.Is(err, fetch.ErrExhausted) && o.acceptPartial && series != nil && series.Len() > 0 {
			o.logger.Printf("%s: accepting partial series of %d candles: %v", req.Key(), series.Len(), err)
		} else {
			if errors.Is(err, fetch.ErrExhausted) {
				o.saveCheckpoint(ctx, req, series)
			}
			return nil, err
		}
	}

	rows, err := normalization.Normalize(series)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	if o.metrics != nil && report != nil {
		o.metrics.GapsDetected.Add(float64(len(report.Gaps)))
	}

	if o.candleStore != nil {
		if err := o.candleStore.InsertBulk(ctx, req.Instrument, req.Interval.Key, rows); err != nil {
			return nil, fmt.Errorf("store candles: %w", err)
		}
		if o.metrics != nil {
			o.metrics.CandlesStored.Add(float64(len(rows)))
		}
	}

	split, err := dataset.SplitRows(rows, o.ratios)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(o.outDir, req.Key())
	writer := dataset.NewWriter(outDir).WithClock(o.now)
	summary, err := writer.Write(req.Instrument, req.Interval.Key, split, report)
	if err != nil {
		return nil, fmt.Errorf("write dataset: %w", err)
	}

	run = &storage.DatasetRun{
		ID:         fmt.Sprintf("%s-%d", req.Key(), o.now().UnixMilli()),
		Instrument: req.Instrument,
		Interval:   req.Interval.Key,
		Target:     req.Target,
		TotalRows:  summary.TotalRows,
		TrainRows:  summary.TrainRows,
		ValRows:    summary.ValRows,
		TestRows:   summary.TestRows,
		OutputDir:  outDir,
		CreatedAt:  o.now(),
	}
	if report != nil {
		run.MissingSteps = report.MissingSteps
		run.DuplicatesRemoved = report.DuplicatesRemoved
	}

	if o.runStore != nil {
		if err := o.runStore.Insert(ctx, run); err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}
	o.clearCheckpoint(ctx, req)

	o.logger.Printf("built %s: %d rows (train %d / val %d / test %d)",
		req.Key(), run.TotalRows, run.TrainRows, run.ValRows, run.TestRows)
	return run, nil
}

// loadCheckpoint returns the resume cursor left by a previous exhausted
// run, or zero when there is none.
func (o *Orchestrator) loadCheckpoint(ctx context.Context, req SeriesRequest) fetch.Cursor {
	if o.checkpointStore == nil {
		return 0
	}
	cp, err := o.checkpointStore.Get(ctx, req.Instrument, req.Interval.Key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Printf("%s: load checkpoint: %v", req.Key(), err)
		}
		return 0
	}
	o.logger.Printf("%s: resuming from checkpoint cursor %d (%d collected at %s)",
		req.Key(), cp.Cursor, cp.Collected, cp.UpdatedAt.Format(time.RFC3339))
	return fetch.Cursor(cp.Cursor)
}

// saveCheckpoint records where an exhausted fetch stopped, so a later run
// can resume instead of rediscovering the end of history.
func (o *Orchestrator) saveCheckpoint(ctx context.Context, req SeriesRequest, series *domain.CandleSeries) {
	if o.checkpointStore == nil || series == nil || series.Len() == 0 {
		return
	}
	first, _ := series.First()
	cp := &storage.Checkpoint{
		Instrument: req.Instrument,
		Interval:   req.Interval.Key,
		Cursor:     first.Timestamp,
		Collected:  series.Len(),
		UpdatedAt:  o.now(),
	}
	if err := o.checkpointStore.Save(ctx, cp); err != nil {
		o.logger.Printf("%s: save checkpoint: %v", req.Key(), err)
	}
}

func (o *Orchestrator) clearCheckpoint(ctx context.Context, req SeriesRequest) {
	if o.checkpointStore == nil {
		return
	}
	if err := o.checkpointStore.Delete(ctx, req.Instrument, req.Interval.Key); err != nil {
		o.logger.Printf("%s: clear checkpoint: %v", req.Key(), err)
	}
}
