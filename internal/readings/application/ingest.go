package application

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	analytics "machinery-cloud/internal/analytics/domain"
	anomalyapp "machinery-cloud/internal/anomalies/application"
	"machinery-cloud/internal/eventing"
	machines "machinery-cloud/internal/machines/domain"
	"machinery-cloud/internal/observability/metrics"
	readings "machinery-cloud/internal/readings/domain"
)

const lockPartitions = 64

// BaselineWindow is the window classification scores against.
const BaselineWindow = "24h"

// IngestService is the single write path for readings. Writes for one
// (machine, parameter) key are serialized on a partitioned lock; the ordering
// is persist reading, fold the aggregate, then classify, so a RollingStat
// update is never observable without its triggering reading.
type IngestService struct {
	machines   machines.Repository
	store      readings.Store
	agg        *analytics.Aggregator
	classifier *anomalyapp.Classifier
	bus        eventing.Bus
	gate       *sync.RWMutex
	logger     *log.Logger

	locks [lockPartitions]sync.Mutex

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// IngestOption customizes the service.
type IngestOption func(*IngestService)

// WithBus assigns an event bus.
func WithBus(bus eventing.Bus) IngestOption {
	return func(s *IngestService) {
		s.bus = bus
	}
}

// WithClassifier assigns the anomaly classifier invoked on each reading.
func WithClassifier(classifier *anomalyapp.Classifier) IngestOption {
	return func(s *IngestService) {
		s.classifier = classifier
	}
}

// NewIngestService constructs the ingest pipeline. The gate is shared with
// the snapshot service: ingestion holds it for read, snapshots briefly for
// write, giving snapshots a single consistent instant.
func NewIngestService(machineRepo machines.Repository, store readings.Store, agg *analytics.Aggregator, gate *sync.RWMutex, logger *log.Logger, opts ...IngestOption) (*IngestService, error) {
	if machineRepo == nil {
		return nil, errors.New("readings: nil machine repository")
	}
	if store == nil {
		return nil, errors.New("readings: nil store")
	}
	if agg == nil {
		return nil, errors.New("readings: nil aggregator")
	}
	if gate == nil {
		return nil, errors.New("readings: nil snapshot gate")
	}
	service := &IngestService{
		machines: machineRepo,
		store:    store,
		agg:      agg,
		gate:     gate,
		logger:   logger,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Ingest validates and appends one reading, folds it into the rolling
// statistics, and classifies it against the pre-update baseline.
// Classification failures are isolated: they are logged, never surfaced as
// ingest errors.
func (s *IngestService) Ingest(ctx context.Context, r readings.Reading) error {
	start := time.Now()
	err := s.ingest(ctx, r)
	switch {
	case err == nil:
		metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))
	case errors.Is(err, readings.ErrOutOfOrder):
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		metrics.IncIngestError("out_of_order")
	case errors.Is(err, readings.ErrInvalidReading):
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		metrics.IncIngestError("invalid")
	default:
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		metrics.IncIngestError("internal")
	}
	return err
}

func (s *IngestService) ingest(ctx context.Context, r readings.Reading) error {
	if s == nil {
		return errors.New("readings: nil service")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	machine, err := s.machines.Get(ctx, r.MachineID)
	if err != nil {
		if errors.Is(err, machines.ErrNotFound) {
			return fmt.Errorf("%w: unknown machine %q", readings.ErrInvalidReading, r.MachineID)
		}
		return err
	}
	if machine.Status == machines.StatusDecommissioned {
		return fmt.Errorf("%w: machine %q is decommissioned", readings.ErrInvalidReading, r.MachineID)
	}

	s.gate.RLock()
	defer s.gate.RUnlock()

	key := r.Key()
	lock := &s.locks[partition(key)]
	lock.Lock()
	defer lock.Unlock()

	last, err := s.lastTimestamp(ctx, key, r)
	if err != nil {
		return err
	}
	if !last.IsZero() && r.Timestamp.Before(last) {
		return readings.ErrOutOfOrder
	}

	// Baseline captured before the fold so the new reading is scored
	// against the statistics it arrived into.
	baseline, baselineErr := s.agg.Baseline(r.MachineID, r.Parameter, BaselineWindow)

	if err := s.store.Append(ctx, r); err != nil {
		return err
	}
	s.agg.Update(r.MachineID, r.Parameter, r.Value, r.Timestamp)
	s.rememberTimestamp(key, r.Timestamp)

	if s.bus != nil {
		_ = s.bus.Publish(ctx, eventing.ReadingIngested{
			MachineID: r.MachineID,
			Parameter: r.Parameter,
			Value:     r.Value,
			At:        r.Timestamp,
		})
	}

	if s.classifier == nil {
		return nil
	}
	if baselineErr != nil {
		// Baseline not yet established; classification is deferred.
		if errors.Is(baselineErr, analytics.ErrInsufficientData) || errors.Is(baselineErr, analytics.ErrNoData) {
			return nil
		}
		s.logf("baseline error: key=%s err=%v", key, baselineErr)
		return nil
	}
	if _, err := s.classifier.Classify(ctx, string(machine.Type), r, baseline); err != nil {
		s.logf("classify error: key=%s err=%v", key, err)
	}
	return nil
}

// IngestBatch ingests readings one by one. Errors are per reading and never
// abort the batch; the returned slice is index-aligned with the input.
func (s *IngestService) IngestBatch(ctx context.Context, batch []readings.Reading) []error {
	result := make([]error, len(batch))
	for i, r := range batch {
		result[i] = s.Ingest(ctx, r)
	}
	return result
}

// Query exposes the store's range query.
func (s *IngestService) Query(ctx context.Context, machineID, parameter string, from, to time.Time, limit int) ([]readings.Reading, error) {
	if s == nil {
		return nil, errors.New("readings: nil service")
	}
	return s.store.Query(ctx, machineID, parameter, from, to, limit)
}

func (s *IngestService) lastTimestamp(ctx context.Context, key string, r readings.Reading) (time.Time, error) {
	s.mu.Lock()
	last, ok := s.lastSeen[key]
	s.mu.Unlock()
	if ok {
		return last, nil
	}
	// Cold cache: hydrate from the store so ordering survives restarts.
	last, err := s.store.LastTimestamp(ctx, r.MachineID, r.Parameter)
	if err != nil {
		return time.Time{}, err
	}
	return last, nil
}

func (s *IngestService) rememberTimestamp(key string, ts time.Time) {
	s.mu.Lock()
	s.lastSeen[key] = ts
	s.mu.Unlock()
}

func (s *IngestService) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func partition(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % lockPartitions
}
