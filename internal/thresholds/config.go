package thresholds

import (
	"os"

	"gopkg.in/yaml.v3"
)

func failureAt(v float64) *float64 { return &v }

// DefaultConfig returns the compiled-in registry defaults.
// Cutoffs mirror the plant's historical settings; they are internally
// consistent, not calibrated for any particular machine.
func DefaultConfig() Config {
	return Config{
		Defaults: Defaults{
			AnomalyCutoff:    0.7,
			MinSamples:       5,
			RULWarningHours:  1000,
			RULCriticalHours: 500,
			GainMediumPct:    10,
			GainHighPct:      20,
			DebounceMinutes:  30,
			AlertHorizonDays: 7,
		},
		MachineTypes: map[string]map[string]ParameterThreshold{
			"lathe": {
				"temperature": {Expected: 70, WarningDeviationPct: 15, CriticalDeviationPct: 30, FailureThreshold: failureAt(95)},
				"vibration":   {Expected: 0.8, WarningDeviationPct: 25, CriticalDeviationPct: 50, FailureThreshold: failureAt(2.5)},
				"power":       {Expected: 30, WarningDeviationPct: 20, CriticalDeviationPct: 40},
			},
			"mill": {
				"temperature": {Expected: 65, WarningDeviationPct: 15, CriticalDeviationPct: 30, FailureThreshold: failureAt(90)},
				"vibration":   {Expected: 1.0, WarningDeviationPct: 25, CriticalDeviationPct: 50, FailureThreshold: failureAt(3.0)},
				"power":       {Expected: 40, WarningDeviationPct: 20, CriticalDeviationPct: 40},
			},
			"injector": {
				"temperature": {Expected: 180, WarningDeviationPct: 10, CriticalDeviationPct: 20, FailureThreshold: failureAt(230)},
				"pressure":    {Expected: 110, WarningDeviationPct: 15, CriticalDeviationPct: 30, FailureThreshold: failureAt(160)},
				"cycle_time":  {Expected: 24, WarningDeviationPct: 20, CriticalDeviationPct: 40},
			},
			"robot": {
				"temperature": {Expected: 45, WarningDeviationPct: 20, CriticalDeviationPct: 40, FailureThreshold: failureAt(75)},
				"vibration":   {Expected: 0.4, WarningDeviationPct: 25, CriticalDeviationPct: 50, FailureThreshold: failureAt(1.5)},
				"load":        {Expected: 50, WarningDeviationPct: 30, CriticalDeviationPct: 60},
			},
			"compressor": {
				"pressure":    {Expected: 10, WarningDeviationPct: 15, CriticalDeviationPct: 30, FailureThreshold: failureAt(16)},
				"temperature": {Expected: 60, WarningDeviationPct: 15, CriticalDeviationPct: 30, FailureThreshold: failureAt(90)},
				"flow_rate":   {Expected: 120, WarningDeviationPct: 20, CriticalDeviationPct: 40},
			},
		},
	}
}

// LoadConfig reads a config file when path is non-empty, merged over the
// compiled-in defaults block-wise (defaults section and machine type map).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg, err
	}
	if loaded.Defaults != (Defaults{}) {
		cfg.Defaults = loaded.Defaults
	}
	for machineType, params := range loaded.MachineTypes {
		if cfg.MachineTypes == nil {
			cfg.MachineTypes = make(map[string]map[string]ParameterThreshold)
		}
		cfg.MachineTypes[machineType] = params
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
