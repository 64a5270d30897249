// Package thresholds holds the versioned registry of classification and
// estimation cutoffs. Updates are copy-on-write: a publish swaps in a complete
// new version atomically, so readers see either the old or the new
// configuration, never a mixture.
package thresholds

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidConfig rejects a configuration that fails validation.
var ErrInvalidConfig = errors.New("thresholds: invalid config")

// ErrVersionConflict flags a publish whose base version was stale.
// The publish still wins (last writer wins); the error is a warning.
var ErrVersionConflict = errors.New("thresholds: version conflict")

// ParameterThreshold configures one (machine type, parameter) pair.
type ParameterThreshold struct {
	Expected             float64  `yaml:"expected" json:"expected"`
	WarningDeviationPct  float64  `yaml:"warning_deviation_pct" json:"warning_deviation_pct"`
	CriticalDeviationPct float64  `yaml:"critical_deviation_pct" json:"critical_deviation_pct"`
	AnomalyCutoff        float64  `yaml:"anomaly_cutoff,omitempty" json:"anomaly_cutoff,omitempty"`
	FailureThreshold     *float64 `yaml:"failure_threshold,omitempty" json:"failure_threshold,omitempty"`
}

// Defaults apply when no per-type override exists.
type Defaults struct {
	AnomalyCutoff    float64 `yaml:"anomaly_cutoff" json:"anomaly_cutoff"`
	MinSamples       int     `yaml:"min_samples" json:"min_samples"`
	RULWarningHours  float64 `yaml:"rul_warning_hours" json:"rul_warning_hours"`
	RULCriticalHours float64 `yaml:"rul_critical_hours" json:"rul_critical_hours"`
	GainMediumPct    float64 `yaml:"gain_medium_pct" json:"gain_medium_pct"`
	GainHighPct      float64 `yaml:"gain_high_pct" json:"gain_high_pct"`
	DebounceMinutes  int     `yaml:"debounce_minutes" json:"debounce_minutes"`
	AlertHorizonDays int     `yaml:"alert_horizon_days" json:"alert_horizon_days"`
}

// Config is one complete registry version payload.
type Config struct {
	Defaults     Defaults                                 `yaml:"defaults" json:"defaults"`
	MachineTypes map[string]map[string]ParameterThreshold `yaml:"machine_types" json:"machine_types"`
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.Defaults.AnomalyCutoff <= 0 || c.Defaults.AnomalyCutoff > 1 {
		return ErrInvalidConfig
	}
	if c.Defaults.MinSamples < 1 {
		return ErrInvalidConfig
	}
	if c.Defaults.RULCriticalHours <= 0 || c.Defaults.RULWarningHours <= c.Defaults.RULCriticalHours {
		return ErrInvalidConfig
	}
	if c.Defaults.GainMediumPct <= 0 || c.Defaults.GainHighPct <= c.Defaults.GainMediumPct {
		return ErrInvalidConfig
	}
	if c.Defaults.DebounceMinutes < 0 {
		return ErrInvalidConfig
	}
	if c.Defaults.AlertHorizonDays < 1 {
		return ErrInvalidConfig
	}
	for _, params := range c.MachineTypes {
		for _, pt := range params {
			if pt.AnomalyCutoff < 0 || pt.AnomalyCutoff > 1 {
				return ErrInvalidConfig
			}
			if pt.WarningDeviationPct < 0 || pt.CriticalDeviationPct < 0 {
				return ErrInvalidConfig
			}
		}
	}
	return nil
}

// Lookup resolves the threshold for a (machine type, parameter) pair.
func (c Config) Lookup(machineType, parameter string) (ParameterThreshold, bool) {
	params, ok := c.MachineTypes[machineType]
	if !ok {
		return ParameterThreshold{}, false
	}
	pt, ok := params[parameter]
	return pt, ok
}

// CutoffFor returns the anomaly score cutoff for the pair, falling back to
// the defaults when no per-pair override is set.
func (c Config) CutoffFor(machineType, parameter string) float64 {
	if pt, ok := c.Lookup(machineType, parameter); ok && pt.AnomalyCutoff > 0 {
		return pt.AnomalyCutoff
	}
	return c.Defaults.AnomalyCutoff
}

// DebounceWindow returns the anomaly debounce window.
func (c Config) DebounceWindow() time.Duration {
	return time.Duration(c.Defaults.DebounceMinutes) * time.Minute
}

// AlertHorizon returns the maintenance alert horizon.
func (c Config) AlertHorizon() time.Duration {
	return time.Duration(c.Defaults.AlertHorizonDays) * 24 * time.Hour
}

// Version is one published registry state.
type Version struct {
	Number      int64     `json:"version"`
	Config      Config    `json:"config"`
	PublishedAt time.Time `json:"published_at"`
}

// Registry serves versioned threshold configuration.
type Registry struct {
	publishMu sync.Mutex
	current   atomic.Pointer[Version]
}

// NewRegistry constructs a registry at version 1 with the given config.
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{}
	r.current.Store(&Version{Number: 1, Config: cfg, PublishedAt: time.Now().UTC()})
	return r, nil
}

// Current returns the live version. The returned value is read-only.
func (r *Registry) Current() *Version {
	return r.current.Load()
}

// Publish installs a new complete configuration and returns the new version
// number. When baseVersion is non-zero and stale, the publish still wins and
// ErrVersionConflict is returned alongside the new number as a warning.
func (r *Registry) Publish(cfg Config, baseVersion int64) (int64, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	r.publishMu.Lock()
	defer r.publishMu.Unlock()
	cur := r.current.Load()
	next := &Version{Number: cur.Number + 1, Config: cfg, PublishedAt: time.Now().UTC()}
	r.current.Store(next)
	if baseVersion != 0 && baseVersion != cur.Number {
		return next.Number, ErrVersionConflict
	}
	return next.Number, nil
}
