// Package main fetches OHLCV candle series from OKX and builds
// train/val/test dataset files: live window → history pagination →
// merge → continuity check → normalization → split → CSV output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"okx-candle-lab/internal/domain"
	"okx-candle-lab/internal/fetch"
	"okx-candle-lab/internal/observability"
	"okx-candle-lab/internal/okx"
	"okx-candle-lab/internal/orchestrator"
	"okx-candle-lab/internal/ratelimit"
	"okx-candle-lab/internal/storage"
	chstore "okx-candle-lab/internal/storage/clickhouse"
	"okx-candle-lab/internal/storage/memory"
	"okx-candle-lab/internal/storage/migrations"
	pgstore "okx-candle-lab/internal/storage/postgres"
)

func main() {
	// Parse flags
	instruments := flag.String("instruments", "BTC-USDT", "Comma-separated OKX instrument IDs")
	intervalArg := flag.String("interval", "4H", fmt.Sprintf("Candle interval (%s)", strings.Join(domain.SupportedIntervals(), ", ")))
	target := flag.Int("target", 512, "Number of candles per series")
	outDir := flag.String("out-dir", "datasets", "Output directory for dataset files")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string for checkpoints and run records")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for candle storage")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of external databases")
	acceptPartial := flag.Bool("accept-partial", false, "Keep series that ran out of history short of the target")
	concurrency := flag.Int("concurrency", 4, "Parallel series builds")
	rateLimit := flag.Float64("rate-limit", 10, "Request rate limit (requests per second, shared across series)")
	burst := flag.Float64("burst", 20, "Request burst capacity")
	baseURL := flag.String("base-url", okx.DefaultBaseURL, "OKX REST API base URL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	flag.Parse()

	logger := log.New(os.Stdout, "[fetch] ", log.LstdFlags|log.Lshortfile)

	interval, err := domain.ParseInterval(*intervalArg)
	if err != nil {
		logger.Fatalf("Invalid interval: %v", err)
	}

	requests := buildRequests(*instruments, interval, *target)
	if len(requests) == 0 {
		logger.Fatal("No instruments specified. Use --instruments")
	}

	// Start metrics server if enabled
	metrics := observability.NewMetrics("")
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	// Select stores
	candleStore, checkpointStore, runStore, cleanup, err := buildStores(ctx, logger, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Storage setup failed: %v", err)
	}
	defer cleanup()

	// One limiter shared by every series fetch
	limiter := ratelimit.New(*burst, *rateLimit)

	clientOpts := []okx.ClientOption{
		okx.WithBaseURL(*baseURL),
		okx.WithLimiter(limiter),
		okx.WithMetrics(metrics),
		okx.WithClientLogger(logger),
	}
	creds := okx.CredentialsFromEnv()
	if !creds.Empty() {
		logger.Println("Using API credentials from environment")
		clientOpts = append(clientOpts, okx.WithCredentials(creds))
	}
	client := okx.NewClient(clientOpts...)

	fetcher := fetch.NewCombined(client,
		fetch.WithFundingSource(client),
		fetch.WithLogger(logger),
	)

	orch, err := orchestrator.New(orchestrator.Options{
		Fetcher:         fetcher,
		CandleStore:     candleStore,
		CheckpointStore: checkpointStore,
		RunStore:        runStore,
		OutDir:          *outDir,
		Concurrency:     *concurrency,
		AcceptPartial:   *acceptPartial,
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatalf("Orchestrator setup failed: %v", err)
	}

	logger.Printf("Building %d series (interval %s, target %d)", len(requests), interval, *target)
	start := time.Now()
	result, err := orch.Run(ctx, requests)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Println("Run cancelled")
			os.Exit(1)
		}
		logger.Fatalf("Run failed: %v", err)
	}

	fmt.Printf("Completed in %s:\n", time.Since(start).Round(time.Millisecond))
	for _, run := range result.Runs {
		fmt.Printf("  %s: %d rows (train %d / val %d / test %d), %d missing steps, %d duplicates -> %s\n",
			run.ID, run.TotalRows, run.TrainRows, run.ValRows, run.TestRows,
			run.MissingSteps, run.DuplicatesRemoved, run.OutputDir)
	}
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
		os.Exit(1)
	}
}

// buildRequests expands the comma-separated instrument list.
func buildRequests(instruments string, interval domain.Interval, target int) []orchestrator.SeriesRequest {
	var requests []orchestrator.SeriesRequest
	for _, inst := range strings.Split(instruments, ",") {
		inst = strings.TrimSpace(inst)
		if inst == "" {
			continue
		}
		requests = append(requests, orchestrator.SeriesRequest{
			Instrument: inst,
			Interval:   interval,
			Target:     target,
		})
	}
	return requests
}

// buildStores wires candle, checkpoint and run storage from flags.
// Memory stores are the fallback when no DSN is given.
func buildStores(ctx context.Context, logger *log.Logger, postgresDSN, clickhouseDSN string, useMemory bool) (storage.CandleStore, storage.CheckpointStore, storage.DatasetRunStore, func(), error) {
	cleanup := func() {}
	if useMemory || (postgresDSN == "" && clickhouseDSN == "") {
		logger.Println("Using in-memory storage")
		return memory.NewCandleStore(), memory.NewCheckpointStore(), memory.NewDatasetRunStore(), cleanup, nil
	}

	var (
		candleStore     storage.CandleStore     = memory.NewCandleStore()
		checkpointStore storage.CheckpointStore = memory.NewCheckpointStore()
		runStore        storage.DatasetRunStore = memory.NewDatasetRunStore()
		closers         []func()
	)

	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, nil, cleanup, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, cleanup, fmt.Errorf("postgres migrations: %w", err)
		}
		logger.Println("Using PostgreSQL for checkpoints and run records")
		checkpointStore = pgstore.NewCheckpointStore(pool)
		runStore = pgstore.NewDatasetRunStore(pool)
		closers = append(closers, pool.Close)
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, nil, cleanup, fmt.Errorf("clickhouse setup: %w", err)
		}
		logger.Println("Using ClickHouse for candle storage")
		candleStore = chstore.NewCandleStore(conn)
		closers = append(closers, func() { conn.Close() })
	}

	cleanup = func() {
		for _, c := range closers {
			c()
		}
	}
	return candleStore, checkpointStore, runStore, cleanup, nil
}
