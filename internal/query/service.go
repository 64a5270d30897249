package query

import (
	"context"
	"errors"
	"sync"
	"time"

	analytics "machinery-cloud/internal/analytics/domain"
	anomalies "machinery-cloud/internal/anomalies/domain"
	machines "machinery-cloud/internal/machines/domain"
	maintenance "machinery-cloud/internal/maintenance/domain"
)

// ErrDeadlineExceeded is returned when the snapshot cannot be assembled
// inside the caller's deadline.
var ErrDeadlineExceeded = errors.New("query: deadline exceeded")

const defaultMaintenanceHorizon = 7 * 24 * time.Hour

// Snapshot is a point-in-time KPI view. All fields are sourced under a
// single exclusive hold of the snapshot gate, so they describe the same
// instant.
type Snapshot struct {
	TakenAt           time.Time      `json:"taken_at"`
	MachinesByStatus  map[string]int `json:"machines_by_status"`
	OpenAnomalies     int            `json:"open_anomalies"`
	AverageEfficiency float64        `json:"average_efficiency"`
	MaintenanceDue    int            `json:"maintenance_due"`
}

// MachineKPI is the per-machine row of the KPI table.
type MachineKPI struct {
	MachineID    string  `json:"machine_id"`
	MachineType  string  `json:"machine_type"`
	Status       string  `json:"status"`
	Efficiency   float64 `json:"efficiency"`
	NumAnomalies int     `json:"num_anomalies"`
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Service assembles cross-package KPI views.
type Service struct {
	machines    machines.Repository
	anomalies   anomalies.Repository
	maintenance maintenance.Repository
	agg         *analytics.Aggregator
	gate        *sync.RWMutex
	clock       Clock
	horizon     time.Duration
}

// Option customizes the service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMaintenanceHorizon sets the due-soon horizon for the snapshot.
func WithMaintenanceHorizon(horizon time.Duration) Option {
	return func(s *Service) {
		if horizon > 0 {
			s.horizon = horizon
		}
	}
}

// NewService wires the KPI query layer. The gate must be the same RWMutex
// the ingest pipeline holds for read.
func NewService(machineRepo machines.Repository, anomalyRepo anomalies.Repository, maintenanceRepo maintenance.Repository, agg *analytics.Aggregator, gate *sync.RWMutex, opts ...Option) (*Service, error) {
	if machineRepo == nil {
		return nil, errors.New("query: nil machine repository")
	}
	if anomalyRepo == nil {
		return nil, errors.New("query: nil anomaly repository")
	}
	if maintenanceRepo == nil {
		return nil, errors.New("query: nil maintenance repository")
	}
	if agg == nil {
		return nil, errors.New("query: nil aggregator")
	}
	if gate == nil {
		return nil, errors.New("query: nil snapshot gate")
	}
	service := &Service{
		machines:    machineRepo,
		anomalies:   anomalyRepo,
		maintenance: maintenanceRepo,
		agg:         agg,
		gate:        gate,
		clock:       systemClock{},
		horizon:     defaultMaintenanceHorizon,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// KPISnapshot blocks new ingestion for the duration of the read and returns
// a consistent snapshot. It honors the context deadline both before taking
// the gate and after releasing it.
func (s *Service) KPISnapshot(ctx context.Context) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, errors.New("query: nil service")
	}
	if err := checkDeadline(ctx); err != nil {
		return Snapshot{}, err
	}

	s.gate.Lock()
	snap, err := s.assemble(ctx)
	s.gate.Unlock()
	if err != nil {
		return Snapshot{}, err
	}
	if err := checkDeadline(ctx); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) assemble(ctx context.Context) (Snapshot, error) {
	now := s.clock.Now()
	list, err := s.machines.List(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	byStatus := make(map[string]int)
	var effSum float64
	var effCount int
	for _, m := range list {
		byStatus[string(m.Status)]++
		if m.Status != machines.StatusDecommissioned {
			effSum += m.Efficiency
			effCount++
		}
	}
	var avgEff float64
	if effCount > 0 {
		avgEff = effSum / float64(effCount)
	}
	open, err := s.anomalies.CountActive(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	due, err := s.maintenance.CountDueWithin(ctx, now, s.horizon)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		TakenAt:           now,
		MachinesByStatus:  byStatus,
		OpenAnomalies:     open,
		AverageEfficiency: avgEff,
		MaintenanceDue:    due,
	}, nil
}

// MachineKPIs returns the per-machine KPI rows, sorted by the machine
// repository's listing order.
func (s *Service) MachineKPIs(ctx context.Context) ([]MachineKPI, error) {
	if s == nil {
		return nil, errors.New("query: nil service")
	}
	list, err := s.machines.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.anomalies.CountActiveByMachine(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]MachineKPI, 0, len(list))
	for _, m := range list {
		rows = append(rows, MachineKPI{
			MachineID:    m.ID,
			MachineType:  string(m.Type),
			Status:       string(m.Status),
			Efficiency:   m.Efficiency,
			NumAnomalies: counts[m.ID],
		})
	}
	return rows, nil
}

func checkDeadline(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrDeadlineExceeded
		}
		return ctx.Err()
	default:
	}
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return ErrDeadlineExceeded
	}
	return nil
}
