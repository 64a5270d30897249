package application

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	analytics "machinery-cloud/internal/analytics/domain"
	anomalies "machinery-cloud/internal/anomalies/domain"
	"machinery-cloud/internal/anomalies/infrastructure/memory"
	readings "machinery-cloud/internal/readings/domain"
	"machinery-cloud/internal/thresholds"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClassifier(t *testing.T) (*Classifier, *memory.AnomalyRepository, *fakeClock) {
	t.Helper()
	repo := memory.NewAnomalyRepository()
	registry, err := thresholds.NewRegistry(thresholds.DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	classifier, err := NewClassifier(repo, registry, WithClock(clock))
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return classifier, repo, clock
}

func breach(clock *fakeClock, value float64) readings.Reading {
	return readings.Reading{
		MachineID: "m-1",
		Parameter: "temperature",
		Value:     value,
		Timestamp: clock.now,
	}
}

func TestClassifyOpensRecordOnBreach(t *testing.T) {
	classifier, _, clock := newTestClassifier(t)
	baseline := analytics.Baseline{Mean: 70, StdDev: 5, Count: 120}

	record, err := classifier.Classify(context.Background(), "lathe", breach(clock, 85.2), baseline)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if record == nil {
		t.Fatal("expected a record for a breaching reading")
	}
	if record.Status != anomalies.StatusOpen {
		t.Fatalf("expected open status, got %s", record.Status)
	}
	if !strings.HasPrefix(record.ID, "an-") {
		t.Fatalf("unexpected id %q", record.ID)
	}
	// |85.2-70|/5 = 3.04 standard deviations saturates the score.
	if record.Score != 1 {
		t.Fatalf("expected score 1, got %v", record.Score)
	}
	wantDeviation := (85.2 - 70) / 70 * 100
	if math.Abs(record.DeviationPct-wantDeviation) > 1e-9 {
		t.Fatalf("expected deviation %v, got %v", wantDeviation, record.DeviationPct)
	}
	if record.Observed != 85.2 || record.Expected != 70 {
		t.Fatalf("unexpected observed/expected: %v/%v", record.Observed, record.Expected)
	}
}

func TestClassifyBelowCutoffIsSilent(t *testing.T) {
	classifier, repo, clock := newTestClassifier(t)
	baseline := analytics.Baseline{Mean: 70, StdDev: 5, Count: 120}

	// 72 is 0.4 standard deviations away, score 0.133 under the 0.7 cutoff.
	record, err := classifier.Classify(context.Background(), "lathe", breach(clock, 72), baseline)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if record != nil {
		t.Fatalf("expected no record, got %+v", record)
	}
	count, err := repo.CountActive(context.Background())
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no active records, got %d", count)
	}
}

func TestClassifyZeroBaselineSkips(t *testing.T) {
	classifier, _, clock := newTestClassifier(t)

	record, err := classifier.Classify(context.Background(), "lathe", breach(clock, 85), analytics.Baseline{Mean: 0, StdDev: 0})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if record != nil {
		t.Fatalf("expected skip on zero baseline, got %+v", record)
	}
}

func TestClassifyUpdatesActiveRecordInPlace(t *testing.T) {
	classifier, repo, clock := newTestClassifier(t)
	baseline := analytics.Baseline{Mean: 70, StdDev: 5, Count: 120}

	first, err := classifier.Classify(context.Background(), "lathe", breach(clock, 85.2), baseline)
	if err != nil {
		t.Fatalf("first classify: %v", err)
	}
	clock.advance(5 * time.Minute)
	second, err := classifier.Classify(context.Background(), "lathe", breach(clock, 88), baseline)
	if err != nil {
		t.Fatalf("second classify: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the active record to be updated, got new id %s", second.ID)
	}
	if second.Observed != 88 {
		t.Fatalf("expected observed 88, got %v", second.Observed)
	}
	count, err := repo.CountActive(context.Background())
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one active record, got %d", count)
	}
}

func TestClassifyDebouncesAfterResolve(t *testing.T) {
	classifier, _, clock := newTestClassifier(t)
	baseline := analytics.Baseline{Mean: 70, StdDev: 5, Count: 120}

	record, err := classifier.Classify(context.Background(), "lathe", breach(clock, 85.2), baseline)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if _, err := classifier.Transition(context.Background(), record.ID, anomalies.StatusResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// A breach ten minutes after the resolution is flapping, not news.
	clock.advance(10 * time.Minute)
	suppressed, err := classifier.Classify(context.Background(), "lathe", breach(clock, 86), baseline)
	if err != nil {
		t.Fatalf("classify during debounce: %v", err)
	}
	if suppressed != nil {
		t.Fatalf("expected debounce suppression, got %+v", suppressed)
	}

	clock.advance(25 * time.Minute)
	reopened, err := classifier.Classify(context.Background(), "lathe", breach(clock, 86), baseline)
	if err != nil {
		t.Fatalf("classify after debounce: %v", err)
	}
	if reopened == nil {
		t.Fatal("expected a new record once the debounce window passed")
	}
	if reopened.ID == record.ID {
		t.Fatal("expected a fresh record, not the resolved one")
	}
}

func TestTransitionLifecycle(t *testing.T) {
	classifier, _, clock := newTestClassifier(t)
	baseline := analytics.Baseline{Mean: 70, StdDev: 5, Count: 120}

	record, err := classifier.Classify(context.Background(), "lathe", breach(clock, 85.2), baseline)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	investigating, err := classifier.Transition(context.Background(), record.ID, anomalies.StatusInvestigating)
	if err != nil {
		t.Fatalf("open -> investigating: %v", err)
	}
	if investigating.Status != anomalies.StatusInvestigating {
		t.Fatalf("expected investigating, got %s", investigating.Status)
	}

	resolved, err := classifier.Transition(context.Background(), record.ID, anomalies.StatusResolved)
	if err != nil {
		t.Fatalf("investigating -> resolved: %v", err)
	}
	if resolved.ResolvedAt.IsZero() {
		t.Fatal("expected resolved timestamp to be set")
	}

	if _, err := classifier.Transition(context.Background(), record.ID, anomalies.StatusOpen); !errors.Is(err, anomalies.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from resolved, got %v", err)
	}
	if _, err := classifier.Transition(context.Background(), "an-missing", anomalies.StatusResolved); !errors.Is(err, anomalies.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
