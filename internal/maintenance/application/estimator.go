package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"math"
	"time"

	analytics "machinery-cloud/internal/analytics/domain"
	"machinery-cloud/internal/eventing"
	machines "machinery-cloud/internal/machines/domain"
	maintenance "machinery-cloud/internal/maintenance/domain"
	"machinery-cloud/internal/observability/metrics"
	"machinery-cloud/internal/thresholds"
)

// ErrNoTrend signals that no parameter had enough data for an estimate.
var ErrNoTrend = errors.New("maintenance: no degradation trend")

// EfficiencyParameter is the reading parameter the estimator folds into the
// machine's efficiency figure when present.
const EfficiencyParameter = "efficiency"

const defaultCorrectiveLeadTime = 48 * time.Hour

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Estimator derives remaining useful life from aggregated degradation trends
// and keeps the maintenance schedule consistent with it.
type Estimator struct {
	machines machines.Repository
	agg      *analytics.Aggregator
	registry *thresholds.Registry
	schedule maintenance.Repository
	bus      eventing.Bus
	clock    Clock
	logger   *log.Logger
	leadTime time.Duration
}

// EstimatorOption customizes the estimator.
type EstimatorOption func(*Estimator)

// WithClock assigns a clock.
func WithClock(clock Clock) EstimatorOption {
	return func(e *Estimator) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithBus assigns an event bus.
func WithBus(bus eventing.Bus) EstimatorOption {
	return func(e *Estimator) {
		e.bus = bus
	}
}

// WithCorrectiveLeadTime overrides how far ahead escalated corrective work
// is scheduled.
func WithCorrectiveLeadTime(lead time.Duration) EstimatorOption {
	return func(e *Estimator) {
		if lead > 0 {
			e.leadTime = lead
		}
	}
}

// NewEstimator constructs an estimator.
func NewEstimator(machineRepo machines.Repository, agg *analytics.Aggregator, registry *thresholds.Registry, scheduleRepo maintenance.Repository, logger *log.Logger, opts ...EstimatorOption) (*Estimator, error) {
	if machineRepo == nil || scheduleRepo == nil {
		return nil, errors.New("maintenance: nil repository")
	}
	if agg == nil {
		return nil, errors.New("maintenance: nil aggregator")
	}
	if registry == nil {
		return nil, errors.New("maintenance: nil threshold registry")
	}
	estimator := &Estimator{
		machines: machineRepo,
		agg:      agg,
		registry: registry,
		schedule: scheduleRepo,
		clock:    systemClock{},
		logger:   logger,
		leadTime: defaultCorrectiveLeadTime,
	}
	for _, opt := range opts {
		opt(estimator)
	}
	return estimator, nil
}

// EstimateRUL extrapolates the degradation trend of each parameter with a
// configured failure threshold over the longest window and returns the
// tightest remaining-useful-life figure. A flat or improving trend yields an
// unbounded (healthy) estimate.
func (e *Estimator) EstimateRUL(ctx context.Context, machine machines.Machine) (maintenance.Estimate, error) {
	if e == nil {
		return maintenance.Estimate{}, errors.New("maintenance: nil estimator")
	}
	_ = ctx
	cfg := e.registry.Current().Config
	window := e.agg.LongestWindow().Name

	best := math.Inf(1)
	bestParam := ""
	sawTrend := false
	for _, parameter := range e.agg.Parameters(machine.ID) {
		pt, ok := cfg.Lookup(string(machine.Type), parameter)
		if !ok || pt.FailureThreshold == nil {
			continue
		}
		trend, err := e.agg.Trend(machine.ID, parameter, window)
		if err != nil {
			continue
		}
		sawTrend = true
		hours, bounded := hoursToFailure(trend.Mean, trend.SlopePerHour, *pt.FailureThreshold)
		if !bounded {
			continue
		}
		if hours < best {
			best = hours
			bestParam = parameter
		}
	}
	if !sawTrend {
		return maintenance.Estimate{}, ErrNoTrend
	}

	now := e.clock.Now()
	if math.IsInf(best, 1) {
		return maintenance.Estimate{
			MachineID:  machine.ID,
			Bucket:     maintenance.BucketHealthy,
			Unbounded:  true,
			ComputedAt: now,
		}, nil
	}
	bucket := maintenance.BucketFor(best, cfg.Defaults.RULWarningHours, cfg.Defaults.RULCriticalHours)
	return maintenance.Estimate{
		MachineID:  machine.ID,
		Parameter:  bestParam,
		Hours:      best,
		Bucket:     bucket,
		ComputedAt: now,
	}, nil
}

// Recompute estimates RUL for one machine and applies the consequences:
// machine status, derived schedule priorities, and corrective escalation when
// the machine enters the critical bucket.
func (e *Estimator) Recompute(ctx context.Context, machineID string) (*maintenance.Estimate, error) {
	start := time.Now()
	estimate, err := e.recompute(ctx, machineID)
	if err != nil {
		metrics.ObserveRULRecompute(metrics.ResultError, time.Since(start))
		return nil, err
	}
	metrics.ObserveRULRecompute(metrics.ResultSuccess, time.Since(start))
	return estimate, nil
}

func (e *Estimator) recompute(ctx context.Context, machineID string) (*maintenance.Estimate, error) {
	if e == nil {
		return nil, errors.New("maintenance: nil estimator")
	}
	machine, err := e.machines.Get(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if machine.Status == machines.StatusDecommissioned {
		return nil, machines.ErrDecommissioned
	}
	estimate, err := e.EstimateRUL(ctx, *machine)
	if err != nil {
		return nil, err
	}
	cfg := e.registry.Current().Config
	now := e.clock.Now()

	e.applyMachineState(ctx, machine, estimate, now)
	if err := e.reconcilePriorities(ctx, machineID, estimate, cfg); err != nil {
		return nil, err
	}
	if estimate.Bucket == maintenance.BucketCritical {
		if err := e.escalateCorrective(ctx, machineID, estimate, cfg, now); err != nil {
			return nil, err
		}
	}
	if e.bus != nil {
		_ = e.bus.Publish(ctx, eventing.RULRecomputed{
			MachineID: machineID,
			Hours:     estimate.Hours,
			Bucket:    string(estimate.Bucket),
			Unbounded: estimate.Unbounded,
			At:        now,
		})
	}
	return &estimate, nil
}

// RecomputeAll recomputes every active machine. A failure for one machine
// never blocks the others.
func (e *Estimator) RecomputeAll(ctx context.Context) {
	if e == nil {
		return
	}
	all, err := e.machines.List(ctx)
	if err != nil {
		e.logf("rul recompute list error: %v", err)
		return
	}
	for _, machine := range all {
		if machine.Status == machines.StatusDecommissioned {
			continue
		}
		if _, err := e.Recompute(ctx, machine.ID); err != nil {
			if errors.Is(err, ErrNoTrend) || errors.Is(err, analytics.ErrInsufficientData) {
				continue
			}
			e.logf("rul recompute error: machine=%s err=%v", machine.ID, err)
		}
	}
}

// Schedule creates a maintenance entry. Priority derives from the machine's
// current RUL bucket and cannot be supplied by the caller.
func (e *Estimator) Schedule(ctx context.Context, machineID string, entryType maintenance.EntryType, at time.Time, duration time.Duration, components []string) (*maintenance.Entry, error) {
	if e == nil {
		return nil, errors.New("maintenance: nil estimator")
	}
	if !entryType.Valid() {
		return nil, errors.New("maintenance: invalid entry type")
	}
	if at.IsZero() {
		return nil, errors.New("maintenance: zero scheduled date")
	}
	machine, err := e.machines.Get(ctx, machineID)
	if err != nil {
		return nil, err
	}
	cfg := e.registry.Current().Config
	priority := maintenance.PriorityLow
	if estimate, err := e.EstimateRUL(ctx, *machine); err == nil && !estimate.Unbounded {
		priority = maintenance.PriorityFor(estimate.Bucket, estimate.Hours, cfg.Defaults.RULWarningHours, cfg.Defaults.RULCriticalHours)
	}
	now := e.clock.Now()
	entry := maintenance.Entry{
		ID:          newEntryID(machineID, entryType, at),
		MachineID:   machineID,
		Type:        entryType,
		ScheduledAt: at,
		Duration:    duration,
		Priority:    priority,
		Status:      maintenance.StatusScheduled,
		Components:  components,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.schedule.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Cancel marks an entry cancelled. Entries are never removed.
func (e *Estimator) Cancel(ctx context.Context, entryID string) (*maintenance.Entry, error) {
	if e == nil {
		return nil, errors.New("maintenance: nil estimator")
	}
	entry, err := e.schedule.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == maintenance.StatusCancelled {
		return entry, nil
	}
	entry.Status = maintenance.StatusCancelled
	entry.UpdatedAt = e.clock.Now()
	if err := e.schedule.Update(ctx, *entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Complete marks a scheduled entry done. Cancelled entries cannot complete.
func (e *Estimator) Complete(ctx context.Context, entryID string) (*maintenance.Entry, error) {
	if e == nil {
		return nil, errors.New("maintenance: nil estimator")
	}
	entry, err := e.schedule.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status == maintenance.StatusCompleted {
		return entry, nil
	}
	if entry.Status == maintenance.StatusCancelled {
		return nil, errors.New("maintenance: cancelled entry cannot complete")
	}
	entry.Status = maintenance.StatusCompleted
	entry.UpdatedAt = e.clock.Now()
	if err := e.schedule.Update(ctx, *entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns schedule entries matching the filter.
func (e *Estimator) List(ctx context.Context, filter maintenance.Filter) ([]maintenance.Entry, error) {
	if e == nil {
		return nil, errors.New("maintenance: nil estimator")
	}
	return e.schedule.List(ctx, filter)
}

func (e *Estimator) applyMachineState(ctx context.Context, machine *machines.Machine, estimate maintenance.Estimate, now time.Time) {
	changed := false
	switch {
	case estimate.Bucket == maintenance.BucketCritical && machine.Status == machines.StatusOperational:
		machine.Status = machines.StatusWarning
		changed = true
	case estimate.Bucket == maintenance.BucketHealthy && machine.Status == machines.StatusWarning:
		machine.Status = machines.StatusOperational
		changed = true
	}
	if stats, err := e.agg.Stats(machine.ID, EfficiencyParameter); err == nil {
		if st, ok := stats["24h"]; ok && st.Count > 0 {
			efficiency := math.Max(0, math.Min(100, st.Mean))
			if efficiency != machine.Efficiency {
				machine.Efficiency = efficiency
				changed = true
			}
		}
	}
	if !changed {
		return
	}
	machine.UpdatedAt = now
	if err := e.machines.Update(ctx, *machine); err != nil {
		e.logf("machine state update error: machine=%s err=%v", machine.ID, err)
	}
}

func (e *Estimator) reconcilePriorities(ctx context.Context, machineID string, estimate maintenance.Estimate, cfg thresholds.Config) error {
	priority := maintenance.PriorityFor(estimate.Bucket, estimate.Hours, cfg.Defaults.RULWarningHours, cfg.Defaults.RULCriticalHours)
	entries, err := e.schedule.List(ctx, maintenance.Filter{MachineID: machineID, Status: maintenance.StatusScheduled})
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Priority == priority {
			continue
		}
		entry.Priority = priority
		entry.UpdatedAt = e.clock.Now()
		if err := e.schedule.Update(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (e *Estimator) escalateCorrective(ctx context.Context, machineID string, estimate maintenance.Estimate, cfg thresholds.Config, now time.Time) error {
	existing, err := e.schedule.FindScheduled(ctx, machineID, maintenance.TypeCorrective, now, cfg.AlertHorizon())
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		// Priority escalation already happened in reconcilePriorities.
		return nil
	}
	components := []string{}
	if estimate.Parameter != "" {
		components = append(components, estimate.Parameter)
	}
	entry := maintenance.Entry{
		ID:          newEntryID(machineID, maintenance.TypeCorrective, now),
		MachineID:   machineID,
		Type:        maintenance.TypeCorrective,
		ScheduledAt: now.Add(e.leadTime),
		Duration:    4 * time.Hour,
		Priority:    maintenance.PriorityCritical,
		Status:      maintenance.StatusScheduled,
		Components:  components,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return e.schedule.Insert(ctx, entry)
}

func (e *Estimator) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// hoursToFailure extrapolates the current mean along the slope until it meets
// the failure threshold. The estimate is bounded only when the trend actually
// moves toward the threshold.
func hoursToFailure(mean, slopePerHour, failure float64) (float64, bool) {
	switch {
	case failure > mean:
		if slopePerHour <= 0 {
			return 0, false
		}
		return (failure - mean) / slopePerHour, true
	case failure < mean:
		if slopePerHour >= 0 {
			return 0, false
		}
		return (failure - mean) / slopePerHour, true
	default:
		return 0, true
	}
}

func newEntryID(machineID string, entryType maintenance.EntryType, at time.Time) string {
	sum := sha1.Sum([]byte(machineID + "|" + string(entryType) + "|" + at.UTC().Format(time.RFC3339Nano)))
	return "mt-" + hex.EncodeToString(sum[:])[:16]
}
