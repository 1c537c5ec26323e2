// Package main streams live candles over the OKX WebSocket feed and keeps
// the candle store's most recent window fresh between batch fetches. Closed
// candles are normalized and persisted; partial updates are logged only.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"okx-candle-lab/internal/domain"
	"okx-candle-lab/internal/normalization"
	"okx-candle-lab/internal/okx"
	"okx-candle-lab/internal/storage"
	chstore "okx-candle-lab/internal/storage/clickhouse"
	"okx-candle-lab/internal/storage/memory"
	"okx-candle-lab/internal/storage/migrations"
)

func main() {
	instruments := flag.String("instruments", "BTC-USDT", "Comma-separated OKX instrument IDs")
	intervalArg := flag.String("interval", "4H", fmt.Sprintf("Candle interval (%s)", strings.Join(domain.SupportedIntervals(), ", ")))
	endpoint := flag.String("ws-endpoint", okx.DefaultWSEndpoint, "OKX WebSocket endpoint")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for candle storage (in-memory when empty)")
	flag.Parse()

	logger := log.New(os.Stdout, "[stream] ", log.LstdFlags|log.Lshortfile)

	interval, err := domain.ParseInterval(*intervalArg)
	if err != nil {
		logger.Fatalf("Invalid interval: %v", err)
	}

	instList := splitInstruments(*instruments)
	if len(instList) == 0 {
		logger.Fatal("No instruments specified. Use --instruments")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	var candleStore storage.CandleStore = memory.NewCandleStore()
	if *clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("ClickHouse setup failed: %v", err)
		}
		defer conn.Close()
		logger.Println("Persisting closed candles to ClickHouse")
		candleStore = chstore.NewCandleStore(conn)
	}

	ws, err := okx.NewWSClient(ctx, *endpoint, nil, logger)
	if err != nil {
		logger.Fatalf("WebSocket connect failed: %v", err)
	}
	defer ws.Close()

	var wg sync.WaitGroup
	for _, inst := range instList {
		updates, err := ws.SubscribeCandles(ctx, inst, interval)
		if err != nil {
			logger.Fatalf("Subscribe %s failed: %v", inst, err)
		}
		logger.Printf("Subscribed to %s %s candles", inst, interval)

		wg.Add(1)
		go func(inst string) {
			defer wg.Done()
			consume(ctx, logger, candleStore, inst, interval, updates)
		}(inst)
	}

	wg.Wait()
	logger.Println("Stream stopped")
}

// consume persists each closed candle from one subscription.
func consume(ctx context.Context, logger *log.Logger, store storage.CandleStore, instrument string, interval domain.Interval, updates <-chan okx.CandleUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !update.Candle.IsClosed {
				continue
			}
			rows, err := normalization.Normalize(&domain.CandleSeries{
				Instrument: instrument,
				Interval:   interval,
				Candles:    []domain.Candle{update.Candle},
			})
			if err != nil {
				logger.Printf("Dropping malformed candle for %s: %v", instrument, err)
				continue
			}
			if err := store.InsertBulk(ctx, instrument, interval.Key, rows); err != nil {
				logger.Printf("Store candle for %s: %v", instrument, err)
				continue
			}
			logger.Printf("Stored %s %s candle @ %d close=%g", instrument, interval, update.Candle.Timestamp, update.Candle.Close)
		}
	}
}

func splitInstruments(arg string) []string {
	var out []string
	for _, inst := range strings.Split(arg, ",") {
		if inst = strings.TrimSpace(inst); inst != "" {
			out = append(out, inst)
		}
	}
	return out
}
