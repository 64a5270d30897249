package thresholds

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewRegistryStartsAtVersionOne(t *testing.T) {
	registry, err := NewRegistry(DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	version := registry.Current()
	if version.Number != 1 {
		t.Fatalf("expected version 1, got %d", version.Number)
	}
	if version.Config.Defaults.AnomalyCutoff != 0.7 {
		t.Fatalf("expected default cutoff 0.7, got %v", version.Config.Defaults.AnomalyCutoff)
	}
}

func TestNewRegistryRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defaults.AnomalyCutoff = 1.5
	if _, err := NewRegistry(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestPublishIncrementsVersion(t *testing.T) {
	registry, err := NewRegistry(DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Defaults.AnomalyCutoff = 0.8

	number, err := registry.Publish(cfg, 1)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if number != 2 {
		t.Fatalf("expected version 2, got %d", number)
	}
	if got := registry.Current().Config.Defaults.AnomalyCutoff; got != 0.8 {
		t.Fatalf("expected published cutoff 0.8, got %v", got)
	}
}

func TestPublishStaleBaseWinsWithConflict(t *testing.T) {
	registry, err := NewRegistry(DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	first := DefaultConfig()
	first.Defaults.AnomalyCutoff = 0.8
	if _, err := registry.Publish(first, 1); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	// A second writer publishing against version 1 is stale but still wins.
	second := DefaultConfig()
	second.Defaults.AnomalyCutoff = 0.9
	number, err := registry.Publish(second, 1)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if number != 3 {
		t.Fatalf("expected version 3, got %d", number)
	}
	if got := registry.Current().Config.Defaults.AnomalyCutoff; got != 0.9 {
		t.Fatalf("expected last writer's cutoff 0.9, got %v", got)
	}
}

func TestPublishZeroBaseSkipsConflictCheck(t *testing.T) {
	registry, err := NewRegistry(DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := registry.Publish(DefaultConfig(), 1); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if _, err := registry.Publish(DefaultConfig(), 0); err != nil {
		t.Fatalf("expected unconditional publish to succeed, got %v", err)
	}
}

func TestPublishRejectsInvalidConfig(t *testing.T) {
	registry, err := NewRegistry(DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Defaults.RULWarningHours = 100
	cfg.Defaults.RULCriticalHours = 500
	if _, err := registry.Publish(cfg, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if registry.Current().Number != 1 {
		t.Fatalf("expected rejected publish to leave version 1, got %d", registry.Current().Number)
	}
}

func TestValidateRejectsNegativeDebounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defaults.DebounceMinutes = -1
	if _, err := NewRegistry(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidateRejectsNonPositiveAlertHorizon(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Defaults.AlertHorizonDays = 0
	if _, err := NewRegistry(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConcurrentReadersSeeWholeVersions(t *testing.T) {
	registry, err := NewRegistry(DefaultConfig())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	const readers = 100
	const publishes = 50
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last int64
			for {
				select {
				case <-stop:
					return
				default:
				}
				version := registry.Current()
				if version.Number < last {
					t.Errorf("version went backwards: %d after %d", version.Number, last)
					return
				}
				last = version.Number
				// Published versions pair min_samples n with a
				// debounce of 3n; seeing anything else means a
				// reader caught a half-applied config.
				d := version.Config.Defaults
				if version.Number > 1 && d.DebounceMinutes != d.MinSamples*3 {
					t.Errorf("torn config at version %d: min_samples=%d debounce=%d", version.Number, d.MinSamples, d.DebounceMinutes)
					return
				}
			}
		}()
	}

	for i := 1; i <= publishes; i++ {
		cfg := DefaultConfig()
		cfg.Defaults.MinSamples = i
		cfg.Defaults.DebounceMinutes = i * 3
		if _, err := registry.Publish(cfg, int64(i)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	if got := registry.Current().Number; got != publishes+1 {
		t.Fatalf("expected final version %d, got %d", publishes+1, got)
	}
}

func TestCutoffForFallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.CutoffFor("lathe", "unknown_parameter"); got != cfg.Defaults.AnomalyCutoff {
		t.Fatalf("expected default cutoff, got %v", got)
	}
	cfg.MachineTypes["lathe"]["temperature"] = ParameterThreshold{
		Expected:      70,
		AnomalyCutoff: 0.5,
	}
	if got := cfg.CutoffFor("lathe", "temperature"); got != 0.5 {
		t.Fatalf("expected override cutoff 0.5, got %v", got)
	}
}

func TestDerivedDurations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DebounceWindow() != 30*time.Minute {
		t.Fatalf("expected 30m debounce, got %s", cfg.DebounceWindow())
	}
	if cfg.AlertHorizon() != 7*24*time.Hour {
		t.Fatalf("expected 7d alert horizon, got %s", cfg.AlertHorizon())
	}
}
