package thresholds

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Defaults.AnomalyCutoff != 0.7 {
		t.Fatalf("expected default cutoff, got %v", cfg.Defaults.AnomalyCutoff)
	}
	if _, ok := cfg.Lookup("lathe", "temperature"); !ok {
		t.Fatal("expected compiled-in lathe thresholds")
	}
}

func TestLoadConfigMergesMachineTypesBlockwise(t *testing.T) {
	path := writeConfig(t, `
machine_types:
  lathe:
    temperature:
      expected: 72
      warning_deviation_pct: 10
      critical_deviation_pct: 20
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// The lathe block is replaced wholesale by the file.
	pt, ok := cfg.Lookup("lathe", "temperature")
	if !ok || pt.Expected != 72 {
		t.Fatalf("expected overridden lathe temperature, got %+v ok=%v", pt, ok)
	}
	if _, ok := cfg.Lookup("lathe", "vibration"); ok {
		t.Fatal("expected the file's lathe block to replace the default one")
	}
	// Untouched machine types keep their compiled-in thresholds.
	if _, ok := cfg.Lookup("mill", "temperature"); !ok {
		t.Fatal("expected mill defaults to survive the merge")
	}
	// An absent defaults section keeps the compiled-in defaults.
	if cfg.Defaults.AnomalyCutoff != 0.7 {
		t.Fatalf("expected default cutoff, got %v", cfg.Defaults.AnomalyCutoff)
	}
}

func TestLoadConfigOverridesDefaultsSection(t *testing.T) {
	path := writeConfig(t, `
defaults:
  anomaly_cutoff: 0.8
  min_samples: 10
  rul_warning_hours: 800
  rul_critical_hours: 400
  gain_medium_pct: 8
  gain_high_pct: 16
  debounce_minutes: 45
  alert_horizon_days: 5
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Defaults.AnomalyCutoff != 0.8 || cfg.Defaults.MinSamples != 10 {
		t.Fatalf("expected file defaults, got %+v", cfg.Defaults)
	}
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, `
defaults:
  anomaly_cutoff: 2.0
  min_samples: 5
  rul_warning_hours: 1000
  rul_critical_hours: 500
  gain_medium_pct: 10
  gain_high_pct: 20
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
