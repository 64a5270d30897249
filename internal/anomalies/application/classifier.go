package application

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	analytics "machinery-cloud/internal/analytics/domain"
	anomalies "machinery-cloud/internal/anomalies/domain"
	"machinery-cloud/internal/eventing"
	"machinery-cloud/internal/observability/metrics"
	readings "machinery-cloud/internal/readings/domain"
	"machinery-cloud/internal/thresholds"
)

// ScoreFunc maps an observation against its baseline to a severity in [0,1].
// External scorers (isolation forest, LSTM) plug in through this type.
type ScoreFunc func(observed, mean, stddev float64) float64

// DefaultScore is the absolute z-score normalized so three standard
// deviations saturate the scale, clipped to [0,1].
func DefaultScore(observed, mean, stddev float64) float64 {
	if stddev == 0 {
		if observed == mean {
			return 0
		}
		return 1
	}
	z := math.Abs(observed-mean) / stddev
	score := z / 3
	if score > 1 {
		return 1
	}
	return score
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Classifier scores readings against their baseline and manages the anomaly
// record lifecycle. Classification itself is pure and non-blocking; only the
// repository calls touch shared state.
type Classifier struct {
	repo     anomalies.Repository
	registry *thresholds.Registry
	bus      eventing.Bus
	clock    Clock
	score    ScoreFunc
}

// ClassifierOption customizes the classifier.
type ClassifierOption func(*Classifier)

// WithClock assigns a clock.
func WithClock(clock Clock) ClassifierOption {
	return func(c *Classifier) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithScoreFunc assigns a scoring function.
func WithScoreFunc(fn ScoreFunc) ClassifierOption {
	return func(c *Classifier) {
		if fn != nil {
			c.score = fn
		}
	}
}

// WithBus assigns an event bus for lifecycle events.
func WithBus(bus eventing.Bus) ClassifierOption {
	return func(c *Classifier) {
		c.bus = bus
	}
}

// NewClassifier constructs a classifier.
func NewClassifier(repo anomalies.Repository, registry *thresholds.Registry, opts ...ClassifierOption) (*Classifier, error) {
	if repo == nil {
		return nil, errors.New("anomalies: nil repository")
	}
	if registry == nil {
		return nil, errors.New("anomalies: nil threshold registry")
	}
	classifier := &Classifier{
		repo:     repo,
		registry: registry,
		clock:    systemClock{},
		score:    DefaultScore,
	}
	for _, opt := range opts {
		opt(classifier)
	}
	return classifier, nil
}

// Classify scores a reading against its baseline. When the score crosses the
// registry cutoff it opens a record, or folds the observation into the
// existing active record for the key; at most one open or investigating
// record exists per (machine, parameter).
func (c *Classifier) Classify(ctx context.Context, machineType string, reading readings.Reading, baseline analytics.Baseline) (*anomalies.Record, error) {
	if c == nil {
		return nil, errors.New("anomalies: nil classifier")
	}
	if baseline.Mean == 0 {
		// Deviation percent is relative to the baseline; a zero baseline
		// has no meaningful relative distance.
		return nil, nil
	}
	cfg := c.registry.Current().Config
	deviation := (reading.Value - baseline.Mean) / baseline.Mean * 100
	score := c.score(reading.Value, baseline.Mean, baseline.StdDev)
	cutoff := cfg.CutoffFor(machineType, reading.Parameter)
	if score < cutoff {
		return nil, nil
	}

	active, err := c.repo.FindActive(ctx, reading.MachineID, reading.Parameter)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	if active != nil {
		escalated := score > active.Score
		active.Observed = reading.Value
		active.Expected = baseline.Mean
		active.DeviationPct = deviation
		active.Score = score
		active.UpdatedAt = now
		if err := c.repo.Update(ctx, *active); err != nil {
			return nil, err
		}
		if escalated {
			metrics.IncAnomalyEvent("escalated")
			c.publish(ctx, eventing.AnomalyEscalated{
				AnomalyID: active.ID,
				MachineID: active.MachineID,
				Parameter: active.Parameter,
				Score:     score,
				At:        now,
			})
		}
		return active, nil
	}

	// Flap suppression: a breach shortly after a resolution does not reopen.
	resolved, err := c.repo.FindLatestResolved(ctx, reading.MachineID, reading.Parameter)
	if err != nil {
		return nil, err
	}
	if resolved != nil && now.Sub(resolved.ResolvedAt) < cfg.DebounceWindow() {
		return nil, nil
	}

	record := anomalies.Record{
		ID:           newAnomalyID(reading.MachineID, reading.Parameter, reading.Timestamp),
		MachineID:    reading.MachineID,
		Parameter:    reading.Parameter,
		Observed:     reading.Value,
		Expected:     baseline.Mean,
		DeviationPct: deviation,
		Score:        score,
		Status:       anomalies.StatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.repo.Insert(ctx, record); err != nil {
		return nil, err
	}
	metrics.IncAnomalyEvent("raised")
	c.publish(ctx, eventing.AnomalyRaised{
		AnomalyID:    record.ID,
		MachineID:    record.MachineID,
		Parameter:    record.Parameter,
		Observed:     record.Observed,
		Expected:     record.Expected,
		DeviationPct: record.DeviationPct,
		Score:        record.Score,
		At:           now,
	})
	return &record, nil
}

// Transition applies a status change, enforcing the record lifecycle.
func (c *Classifier) Transition(ctx context.Context, id string, to anomalies.Status) (*anomalies.Record, error) {
	if c == nil {
		return nil, errors.New("anomalies: nil classifier")
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", anomalies.ErrInvalidTransition, to)
	}
	record, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !anomalies.CanTransition(record.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", anomalies.ErrInvalidTransition, record.Status, to)
	}
	now := c.clock.Now()
	record.Status = to
	record.UpdatedAt = now
	if to == anomalies.StatusResolved {
		record.ResolvedAt = now
	}
	if err := c.repo.Update(ctx, *record); err != nil {
		return nil, err
	}
	metrics.IncAnomalyEvent(string(to))
	return record, nil
}

// List returns anomaly records matching the filter.
func (c *Classifier) List(ctx context.Context, filter anomalies.Filter) ([]anomalies.Record, error) {
	if c == nil {
		return nil, errors.New("anomalies: nil classifier")
	}
	return c.repo.List(ctx, filter)
}

func (c *Classifier) publish(ctx context.Context, event eventing.Event) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(ctx, event)
}

func newAnomalyID(machineID, parameter string, at time.Time) string {
	sum := sha1.Sum([]byte(machineID + "|" + parameter + "|" + at.UTC().Format(time.RFC3339Nano)))
	return "an-" + hex.EncodeToString(sum[:])[:16]
}
