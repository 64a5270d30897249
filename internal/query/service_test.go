package query

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	analytics "machinery-cloud/internal/analytics/domain"
	anomalies "machinery-cloud/internal/anomalies/domain"
	anomalymemory "machinery-cloud/internal/anomalies/infrastructure/memory"
	machines "machinery-cloud/internal/machines/domain"
	machinememory "machinery-cloud/internal/machines/infrastructure/memory"
	maintenance "machinery-cloud/internal/maintenance/domain"
	maintmemory "machinery-cloud/internal/maintenance/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	machineRepo := machinememory.NewMachineRepository()
	seed := []machines.Machine{
		{ID: "m-1", Name: "lathe 1", Type: machines.TypeLathe, Status: machines.StatusOperational, Efficiency: 90, CreatedAt: now, UpdatedAt: now},
		{ID: "m-2", Name: "mill 1", Type: machines.TypeMill, Status: machines.StatusWarning, Efficiency: 70, CreatedAt: now, UpdatedAt: now},
		{ID: "m-3", Name: "old press", Type: machines.TypeInjector, Status: machines.StatusDecommissioned, Efficiency: 10, CreatedAt: now, UpdatedAt: now},
	}
	for _, m := range seed {
		if err := machineRepo.Insert(context.Background(), m); err != nil {
			t.Fatalf("seed machine %s: %v", m.ID, err)
		}
	}

	anomalyRepo := anomalymemory.NewAnomalyRepository()
	records := []anomalies.Record{
		{ID: "an-1", MachineID: "m-2", Parameter: "temperature", Status: anomalies.StatusOpen, CreatedAt: now, UpdatedAt: now},
		{ID: "an-2", MachineID: "m-2", Parameter: "vibration", Status: anomalies.StatusInvestigating, CreatedAt: now, UpdatedAt: now},
		{ID: "an-3", MachineID: "m-1", Parameter: "temperature", Status: anomalies.StatusResolved, CreatedAt: now, UpdatedAt: now, ResolvedAt: now},
	}
	for _, rec := range records {
		if err := anomalyRepo.Insert(context.Background(), rec); err != nil {
			t.Fatalf("seed anomaly %s: %v", rec.ID, err)
		}
	}

	maintenanceRepo := maintmemory.NewScheduleRepository()
	entries := []maintenance.Entry{
		{ID: "mt-1", MachineID: "m-2", Type: maintenance.TypeCorrective, ScheduledAt: now.Add(48 * time.Hour), Priority: maintenance.PriorityCritical, Status: maintenance.StatusScheduled, CreatedAt: now, UpdatedAt: now},
		{ID: "mt-2", MachineID: "m-1", Type: maintenance.TypePreventive, ScheduledAt: now.Add(30 * 24 * time.Hour), Priority: maintenance.PriorityLow, Status: maintenance.StatusScheduled, CreatedAt: now, UpdatedAt: now},
	}
	for _, e := range entries {
		if err := maintenanceRepo.Insert(context.Background(), e); err != nil {
			t.Fatalf("seed entry %s: %v", e.ID, err)
		}
	}

	service, err := NewService(machineRepo, anomalyRepo, maintenanceRepo, analytics.NewAggregator(), &sync.RWMutex{}, WithClock(fixedClock{now: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, now
}

func TestKPISnapshot(t *testing.T) {
	service, now := newTestService(t)

	snap, err := service.KPISnapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.TakenAt.Equal(now) {
		t.Fatalf("expected taken_at %s, got %s", now, snap.TakenAt)
	}
	if snap.MachinesByStatus["operational"] != 1 || snap.MachinesByStatus["warning"] != 1 || snap.MachinesByStatus["decommissioned"] != 1 {
		t.Fatalf("unexpected status counts %+v", snap.MachinesByStatus)
	}
	if snap.OpenAnomalies != 2 {
		t.Fatalf("expected 2 open anomalies, got %d", snap.OpenAnomalies)
	}
	// The decommissioned machine is excluded from the fleet average.
	if math.Abs(snap.AverageEfficiency-80) > 1e-9 {
		t.Fatalf("expected average efficiency 80, got %v", snap.AverageEfficiency)
	}
	// Only the corrective entry falls inside the 7 day horizon.
	if snap.MaintenanceDue != 1 {
		t.Fatalf("expected 1 due entry, got %d", snap.MaintenanceDue)
	}
}

func TestKPISnapshotDeadlineExceeded(t *testing.T) {
	service, _ := newTestService(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if _, err := service.KPISnapshot(ctx); !errors.Is(err, ErrDeadlineExceeded) {
		t.Fatalf("expected ErrDeadlineExceeded, got %v", err)
	}
}

func TestMachineKPIs(t *testing.T) {
	service, _ := newTestService(t)

	rows, err := service.MachineKPIs(context.Background())
	if err != nil {
		t.Fatalf("kpis: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	byID := make(map[string]MachineKPI, len(rows))
	for _, row := range rows {
		byID[row.MachineID] = row
	}
	if byID["m-2"].NumAnomalies != 2 {
		t.Fatalf("expected 2 active anomalies for m-2, got %d", byID["m-2"].NumAnomalies)
	}
	if byID["m-1"].NumAnomalies != 0 {
		t.Fatalf("expected resolved anomalies to be excluded, got %d", byID["m-1"].NumAnomalies)
	}
	if byID["m-2"].Status != "warning" || byID["m-2"].MachineType != "mill" {
		t.Fatalf("unexpected row %+v", byID["m-2"])
	}
}
