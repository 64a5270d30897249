package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	machines "machinery-cloud/internal/machines/domain"
	optimization "machinery-cloud/internal/optimization/domain"
	"machinery-cloud/internal/thresholds"
)

// ErrDeadlineExceeded is returned when the caller's deadline expires before
// a ranking completes. Ranking is read-only, so the caller may safely retry.
var ErrDeadlineExceeded = errors.New("optimization: deadline exceeded")

// Bucket classifies optimization potential.
type Bucket string

const (
	BucketLow    Bucket = "low"
	BucketMedium Bucket = "medium"
	BucketHigh   Bucket = "high"
)

// RankingEntry is one machine's optimization potential.
type RankingEntry struct {
	MachineID         string  `json:"machine_id"`
	MachineType       string  `json:"machine_type"`
	CurrentEfficiency float64 `json:"current_efficiency"`
	ScenarioID        string  `json:"scenario_id"`
	ScenarioName      string  `json:"scenario_name"`
	PotentialGainPct  float64 `json:"potential_gain_pct"`
	Priority          Bucket  `json:"priority"`
}

// Acceptance records an operator accepting a scenario recommendation.
// Physical application happens in an external operational system.
type Acceptance struct {
	MachineID  string    `json:"machine_id"`
	ScenarioID string    `json:"scenario_id"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Ranker computes optimization potential per machine against the scenario
// catalog. All inputs are already materialized; ranking is pure computation.
type Ranker struct {
	machines machines.Repository
	catalog  *optimization.Catalog
	registry *thresholds.Registry
	clock    Clock

	mu          sync.Mutex
	acceptances []Acceptance
}

// RankerOption customizes the ranker.
type RankerOption func(*Ranker)

// WithClock assigns a clock.
func WithClock(clock Clock) RankerOption {
	return func(r *Ranker) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRanker constructs a ranker.
func NewRanker(machineRepo machines.Repository, catalog *optimization.Catalog, registry *thresholds.Registry, opts ...RankerOption) (*Ranker, error) {
	if machineRepo == nil {
		return nil, errors.New("optimization: nil machine repository")
	}
	if catalog == nil {
		return nil, errors.New("optimization: nil catalog")
	}
	if registry == nil {
		return nil, errors.New("optimization: nil threshold registry")
	}
	ranker := &Ranker{
		machines: machineRepo,
		catalog:  catalog,
		registry: registry,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(ranker)
	}
	return ranker, nil
}

// Rank returns every active machine's best-fit scenario ordered by
// descending potential gain, machine id ascending on ties. An empty machine
// set yields an empty ranking, not an error.
func (r *Ranker) Rank(ctx context.Context) ([]RankingEntry, error) {
	if r == nil {
		return nil, errors.New("optimization: nil ranker")
	}
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	all, err := r.machines.List(ctx)
	if err != nil {
		return nil, err
	}
	cfg := r.registry.Current().Config

	entries := make([]RankingEntry, 0, len(all))
	for _, machine := range all {
		if machine.Status == machines.StatusDecommissioned {
			continue
		}
		scenario := r.catalog.BestFor(string(machine.Type))
		if scenario == nil {
			continue
		}
		gain := scenario.Outcome.Efficiency - machine.Efficiency
		entries = append(entries, RankingEntry{
			MachineID:         machine.ID,
			MachineType:       string(machine.Type),
			CurrentEfficiency: machine.Efficiency,
			ScenarioID:        scenario.ID,
			ScenarioName:      scenario.Name,
			PotentialGainPct:  gain,
			Priority:          bucketFor(gain, cfg.Defaults.GainMediumPct, cfg.Defaults.GainHighPct),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PotentialGainPct == entries[j].PotentialGainPct {
			return entries[i].MachineID < entries[j].MachineID
		}
		return entries[i].PotentialGainPct > entries[j].PotentialGainPct
	})
	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

// ApplyScenario records an accepted recommendation. It never mutates machine
// state; the core is advisory only.
func (r *Ranker) ApplyScenario(ctx context.Context, machineID, scenarioID string) (*Acceptance, error) {
	if r == nil {
		return nil, errors.New("optimization: nil ranker")
	}
	machine, err := r.machines.Get(ctx, machineID)
	if err != nil {
		return nil, err
	}
	scenario, err := r.catalog.Get(scenarioID)
	if err != nil {
		return nil, err
	}
	if !scenario.AppliesTo(string(machine.Type)) {
		return nil, optimization.ErrNotApplicable
	}
	acceptance := Acceptance{
		MachineID:  machineID,
		ScenarioID: scenarioID,
		AcceptedAt: r.clock.Now(),
	}
	r.mu.Lock()
	r.acceptances = append(r.acceptances, acceptance)
	r.mu.Unlock()
	return &acceptance, nil
}

// Acceptances returns the recorded recommendations.
func (r *Ranker) Acceptances() []Acceptance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Acceptance(nil), r.acceptances...)
}

func bucketFor(gain, mediumEdge, highEdge float64) Bucket {
	switch {
	case gain > highEdge:
		return BucketHigh
	case gain > mediumEdge:
		return BucketMedium
	default:
		return BucketLow
	}
}

func checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrDeadlineExceeded
		}
		return err
	}
	return nil
}
