package optimization

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrScenarioNotFound indicates an unknown scenario id.
var ErrScenarioNotFound = errors.New("optimization: scenario not found")

// ErrNotApplicable rejects applying a scenario to an unsupported machine type.
var ErrNotApplicable = errors.New("optimization: scenario not applicable")

// Outcome is the expected result vector of applying a scenario.
type Outcome struct {
	Efficiency   float64 `yaml:"efficiency" json:"efficiency"`
	Productivity float64 `yaml:"productivity" json:"productivity"`
	Quality      float64 `yaml:"quality" json:"quality"`
	Energy       float64 `yaml:"energy" json:"energy"`
	CycleTime    float64 `yaml:"cycle_time" json:"cycle_time"`
}

// Scenario is one externally curated optimization option. Read-only to the core.
type Scenario struct {
	ID           string             `yaml:"id" json:"id"`
	Name         string             `yaml:"name" json:"name"`
	Targets      map[string]float64 `yaml:"targets" json:"targets"`
	Outcome      Outcome            `yaml:"outcome" json:"outcome"`
	MachineTypes []string           `yaml:"machine_types" json:"machine_types"`
}

// AppliesTo reports whether the scenario covers a machine type.
func (s Scenario) AppliesTo(machineType string) bool {
	for _, t := range s.MachineTypes {
		if t == machineType {
			return true
		}
	}
	return false
}

// Catalog is the static scenario set.
type Catalog struct {
	scenarios []Scenario
}

// NewCatalog constructs a catalog.
func NewCatalog(scenarios []Scenario) (*Catalog, error) {
	seen := make(map[string]struct{}, len(scenarios))
	for _, s := range scenarios {
		if s.ID == "" || s.Name == "" {
			return nil, errors.New("optimization: scenario missing id or name")
		}
		if _, ok := seen[s.ID]; ok {
			return nil, errors.New("optimization: duplicate scenario id " + s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return &Catalog{scenarios: append([]Scenario(nil), scenarios...)}, nil
}

// Get returns a scenario by id.
func (c *Catalog) Get(id string) (*Scenario, error) {
	for i := range c.scenarios {
		if c.scenarios[i].ID == id {
			copied := c.scenarios[i]
			return &copied, nil
		}
	}
	return nil, ErrScenarioNotFound
}

// All returns every scenario.
func (c *Catalog) All() []Scenario {
	return append([]Scenario(nil), c.scenarios...)
}

// BestFor returns the applicable scenario with the highest expected
// efficiency for a machine type, or nil when none applies. Ties break by
// scenario id ascending for determinism.
func (c *Catalog) BestFor(machineType string) *Scenario {
	var best *Scenario
	for i := range c.scenarios {
		s := &c.scenarios[i]
		if !s.AppliesTo(machineType) {
			continue
		}
		if best == nil ||
			s.Outcome.Efficiency > best.Outcome.Efficiency ||
			(s.Outcome.Efficiency == best.Outcome.Efficiency && s.ID < best.ID) {
			best = s
		}
	}
	if best == nil {
		return nil
	}
	copied := *best
	return &copied
}

type catalogFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadCatalog reads a scenario catalog file, or returns the compiled-in
// catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return NewCatalog(file.Scenarios)
}

// DefaultCatalog returns the compiled-in scenario set.
func DefaultCatalog() (*Catalog, error) {
	return NewCatalog([]Scenario{
		{
			ID:   "sc-thermal-tune",
			Name: "Thermal operating point tuning",
			Targets: map[string]float64{
				"temperature": 68,
			},
			Outcome:      Outcome{Efficiency: 92, Productivity: 88, Quality: 95, Energy: 84, CycleTime: 96},
			MachineTypes: []string{"lathe", "mill"},
		},
		{
			ID:   "sc-vibration-damping",
			Name: "Spindle vibration damping",
			Targets: map[string]float64{
				"vibration": 0.5,
			},
			Outcome:      Outcome{Efficiency: 89, Productivity: 90, Quality: 97, Energy: 88, CycleTime: 94},
			MachineTypes: []string{"lathe", "mill", "robot"},
		},
		{
			ID:   "sc-injection-cycle",
			Name: "Injection cycle compression",
			Targets: map[string]float64{
				"cycle_time": 21,
				"pressure":   112,
			},
			Outcome:      Outcome{Efficiency: 94, Productivity: 95, Quality: 91, Energy: 86, CycleTime: 88},
			MachineTypes: []string{"injector"},
		},
		{
			ID:   "sc-compressor-load",
			Name: "Compressor load balancing",
			Targets: map[string]float64{
				"pressure":  9.5,
				"flow_rate": 130,
			},
			Outcome:      Outcome{Efficiency: 91, Productivity: 87, Quality: 90, Energy: 80, CycleTime: 97},
			MachineTypes: []string{"compressor"},
		},
		{
			ID:   "sc-robot-path",
			Name: "Robot path smoothing",
			Targets: map[string]float64{
				"load": 48,
			},
			Outcome:      Outcome{Efficiency: 93, Productivity: 92, Quality: 94, Energy: 89, CycleTime: 90},
			MachineTypes: []string{"robot"},
		},
	})
}
