package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	analytics "machinery-cloud/internal/analytics/domain"
	machines "machinery-cloud/internal/machines/domain"
	machinememory "machinery-cloud/internal/machines/infrastructure/memory"
	readings "machinery-cloud/internal/readings/domain"
	"machinery-cloud/internal/readings/infrastructure/memory"
)

func newTestIngest(t *testing.T) (*IngestService, *memory.ReadingStore, *analytics.Aggregator) {
	t.Helper()
	machineRepo := machinememory.NewMachineRepository()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seed := []machines.Machine{
		{ID: "m-1", Name: "lathe 1", Type: "lathe", Status: machines.StatusOperational, Efficiency: 90, CreatedAt: now, UpdatedAt: now},
		{ID: "m-2", Name: "lathe 2", Type: "lathe", Status: machines.StatusDecommissioned, Efficiency: 0, CreatedAt: now, UpdatedAt: now},
	}
	for _, m := range seed {
		if err := machineRepo.Insert(context.Background(), m); err != nil {
			t.Fatalf("seed machine %s: %v", m.ID, err)
		}
	}
	store := memory.NewReadingStore()
	agg := analytics.NewAggregator()
	service, err := NewIngestService(machineRepo, store, agg, &sync.RWMutex{}, nil)
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	return service, store, agg
}

func reading(machineID string, value float64, at time.Time) readings.Reading {
	return readings.Reading{MachineID: machineID, Parameter: "temperature", Value: value, Timestamp: at}
}

func TestIngestAppendsAndFolds(t *testing.T) {
	service, store, agg := newTestIngest(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := service.Ingest(context.Background(), reading("m-1", 70.5, at)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, err := store.Query(context.Background(), "m-1", "temperature", at.Add(-time.Minute), at.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Value != 70.5 {
		t.Fatalf("expected the stored reading, got %+v", got)
	}

	stat, err := agg.Stat("m-1", "temperature", "24h")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Count != 1 || stat.Mean != 70.5 {
		t.Fatalf("expected count 1 mean 70.5, got count %d mean %v", stat.Count, stat.Mean)
	}
}

func TestIngestRejectsUnknownMachine(t *testing.T) {
	service, _, _ := newTestIngest(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := service.Ingest(context.Background(), reading("m-missing", 70, at))
	if !errors.Is(err, readings.ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading, got %v", err)
	}
}

func TestIngestRejectsDecommissionedMachine(t *testing.T) {
	service, _, _ := newTestIngest(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := service.Ingest(context.Background(), reading("m-2", 70, at))
	if !errors.Is(err, readings.ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading, got %v", err)
	}
}

func TestIngestRejectsOutOfOrder(t *testing.T) {
	service, store, agg := newTestIngest(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := service.Ingest(context.Background(), reading("m-1", 70, at)); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	err := service.Ingest(context.Background(), reading("m-1", 71, at.Add(-time.Minute)))
	if !errors.Is(err, readings.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}

	// The rejected reading must not leak into the store or the aggregates.
	got, err := store.Query(context.Background(), "m-1", "temperature", at.Add(-time.Hour), at.Add(time.Hour), 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one stored reading, got %d", len(got))
	}
	stat, err := agg.Stat("m-1", "temperature", "24h")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Count != 1 {
		t.Fatalf("expected count 1, got %d", stat.Count)
	}
}

func TestIngestAcceptsEqualTimestamp(t *testing.T) {
	service, _, agg := newTestIngest(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := service.Ingest(context.Background(), reading("m-1", 70, at)); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if err := service.Ingest(context.Background(), reading("m-1", 71, at)); err != nil {
		t.Fatalf("equal timestamp ingest: %v", err)
	}
	stat, err := agg.Stat("m-1", "temperature", "24h")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Count != 2 {
		t.Fatalf("expected count 2, got %d", stat.Count)
	}
}

func TestIngestBatchIsolatesErrors(t *testing.T) {
	service, _, _ := newTestIngest(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	batch := []readings.Reading{
		reading("m-1", 70, at),
		reading("m-missing", 70, at.Add(time.Minute)),
		reading("m-1", 70, at.Add(-time.Minute)),
		reading("m-1", 71, at.Add(2*time.Minute)),
	}
	result := service.IngestBatch(context.Background(), batch)
	if len(result) != len(batch) {
		t.Fatalf("expected %d results, got %d", len(batch), len(result))
	}
	if result[0] != nil {
		t.Fatalf("expected first reading accepted, got %v", result[0])
	}
	if !errors.Is(result[1], readings.ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading at index 1, got %v", result[1])
	}
	if !errors.Is(result[2], readings.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder at index 2, got %v", result[2])
	}
	if result[3] != nil {
		t.Fatalf("expected last reading accepted after a rejection, got %v", result[3])
	}
}
