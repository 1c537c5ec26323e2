package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"okx-candle-lab/internal/storage"
)

func testRun(id string, createdAt time.Time) *storage.DatasetRun {
	return &storage.DatasetRun{
		ID:         id,
		Instrument: "BTC-USD-SWAP",
		Interval:   "4h",
		Target:     512,
		TotalRows:  512,
		TrainRows:  358,
		ValRows:    76,
		TestRows:   78,
		OutputDir:  "/tmp/out",
		CreatedAt:  createdAt,
	}
}

func TestDatasetRunStore_InsertAndGet(t *testing.T) {
	store := NewDatasetRunStore()
	ctx := context.Background()

	run := testRun("run-1", time.Now().UTC())
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.TotalRows != 512 || got.TrainRows != 358 {
		t.Errorf("run mismatch: %+v", got)
	}
}

func TestDatasetRunStore_DuplicateID(t *testing.T) {
	store := NewDatasetRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRun("run-1", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := store.Insert(ctx, testRun("run-1", time.Now()))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestDatasetRunStore_GetNotFound(t *testing.T) {
	store := NewDatasetRunStore()

	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDatasetRunStore_ListRecent(t *testing.T) {
	store := NewDatasetRunStore()
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := testRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))
		if err := store.Insert(ctx, run); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	runs, err := store.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-4" || runs[1].ID != "run-3" || runs[2].ID != "run-2" {
		t.Errorf("runs not newest first: %s, %s, %s", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

func TestDatasetRunStore_InvalidInput(t *testing.T) {
	store := NewDatasetRunStore()

	if err := store.Insert(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(context.Background(), &storage.DatasetRun{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty ID, got %v", err)
	}
}
