/*
Package factory provides JSON to Go rating configuration conversion.

PURPOSE:
  Converts JSON rating definitions into engine.RatingConfig and
  engine.ReinsuranceLayer values. This enables rating changes without
  code changes - actuaries can adjust multipliers, base rates and layer
  bands in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can adjust rating constants
  - Version control for rating revisions
  - Database or config-service storage of rating setups

JSON SCHEMA:
  {
    "multipliers": {
      "URBAN": "1.2",
      "HIGHWAY": "1.0",
      "MIXED": "1.1"
    },
    "default_plan": {
      "base_rate": "0.001",
      "reference_fleet_weight": "100"
    },
    "plans": {
      "COMMERCIAL_TRUCKING": {
        "base_rate": "0.0012",
        "reference_fleet_weight": "120",
        "locked_base_rate": "0.001"
      }
    },
    "reinsurance_layers": [
      {"name": "Primary", "lower_bound": "0", "upper_bound": "100000"},
      {"name": "Excess-1", "lower_bound": "100000", "upper_bound": "250000"}
    ]
  }

  All numeric values are decimal strings to avoid float drift in rates.

KEY FEATURES:
  - Validates decimal syntax and multiplier keys
  - Falls back to engine.DefaultRatingConfig() values where omitted
  - Validates the layer stack before handing it to the engine

USAGE:
  factory := NewRatingFactory()

  config, layers, err := factory.ParseConfig(jsonString)
  // or
  config, layers, err := factory.LoadFile("./config/rating.json")

SEE ALSO:
  - engine/config.go: RatingConfig and RatingPlan definitions
  - engine/waterfall.go: Layer stack validation rules
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fleetsure/premium-engine/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigJSON is the JSON representation of the full rating setup.
type ConfigJSON struct {
	Multipliers map[string]string   `json:"multipliers,omitempty"`
	DefaultPlan *PlanJSON           `json:"default_plan,omitempty"`
	Plans       map[string]PlanJSON `json:"plans,omitempty"`
	Layers      []LayerJSON         `json:"reinsurance_layers,omitempty"`
}

// PlanJSON represents one policy class's pricing constants.
type PlanJSON struct {
	BaseRate             string `json:"base_rate"`
	ReferenceFleetWeight string `json:"reference_fleet_weight"`
	LockedBaseRate       string `json:"locked_base_rate,omitempty"`
}

// LayerJSON represents one reinsurance band.
type LayerJSON struct {
	Name       string `json:"name"`
	LowerBound string `json:"lower_bound"`
	UpperBound string `json:"upper_bound"`
}

// =============================================================================
// RATING FACTORY
// =============================================================================

// RatingFactory converts JSON rating setups to Go structs.
type RatingFactory struct{}

// NewRatingFactory creates a new rating factory.
func NewRatingFactory() *RatingFactory {
	return &RatingFactory{}
}

// LoadFile reads and parses a rating config file.
func (f *RatingFactory) LoadFile(path string) (engine.RatingConfig, []engine.ReinsuranceLayer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.RatingConfig{}, nil, fmt.Errorf("failed to read rating config: %w", err)
	}
	return f.ParseConfig(string(data))
}

// ParseConfig parses a JSON string into a RatingConfig and layer stack.
func (f *RatingFactory) ParseConfig(jsonStr string) (engine.RatingConfig, []engine.ReinsuranceLayer, error) {
	var cj ConfigJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return engine.RatingConfig{}, nil, fmt.Errorf("failed to parse rating JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts ConfigJSON to engine.RatingConfig and layers.
// Omitted sections fall back to DefaultRatingConfig values.
func (f *RatingFactory) FromJSON(cj ConfigJSON) (engine.RatingConfig, []engine.ReinsuranceLayer, error) {
	config := engine.DefaultRatingConfig()

	for profile, raw := range cj.Multipliers {
		m, err := parseDecimal(raw, "multiplier "+profile)
		if err != nil {
			return engine.RatingConfig{}, nil, err
		}
		config.Multipliers[engine.UsageProfile(profile)] = m
	}

	if cj.DefaultPlan != nil {
		plan, err := parsePlan(*cj.DefaultPlan, "default_plan")
		if err != nil {
			return engine.RatingConfig{}, nil, err
		}
		config.DefaultPlan = plan
	}

	for class, pj := range cj.Plans {
		plan, err := parsePlan(pj, "plan "+class)
		if err != nil {
			return engine.RatingConfig{}, nil, err
		}
		config.Plans[class] = plan
	}

	var layers []engine.ReinsuranceLayer
	for _, lj := range cj.Layers {
		layer, err := parseLayer(lj)
		if err != nil {
			return engine.RatingConfig{}, nil, err
		}
		layers = append(layers, layer)
	}
	if len(layers) > 0 {
		sort.Slice(layers, func(i, j int) bool {
			return layers[i].LowerBound.LessThan(layers[j].LowerBound)
		})
		if err := engine.ValidateLayers(layers); err != nil {
			return engine.RatingConfig{}, nil, err
		}
	}

	return config, layers, nil
}

// ToJSON converts a RatingConfig and layer stack back to ConfigJSON.
func (f *RatingFactory) ToJSON(config engine.RatingConfig, layers []engine.ReinsuranceLayer) ConfigJSON {
	cj := ConfigJSON{
		Multipliers: make(map[string]string, len(config.Multipliers)),
		Plans:       make(map[string]PlanJSON, len(config.Plans)),
	}

	for profile, m := range config.Multipliers {
		cj.Multipliers[string(profile)] = m.String()
	}

	defaultPlan := planJSON(config.DefaultPlan)
	cj.DefaultPlan = &defaultPlan
	for class, plan := range config.Plans {
		cj.Plans[class] = planJSON(plan)
	}

	for _, l := range layers {
		cj.Layers = append(cj.Layers, LayerJSON{
			Name:       l.Name,
			LowerBound: l.LowerBound.String(),
			UpperBound: l.UpperBound.String(),
		})
	}

	return cj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parsePlan(pj PlanJSON, context string) (engine.RatingPlan, error) {
	baseRate, err := parseDecimal(pj.BaseRate, context+" base_rate")
	if err != nil {
		return engine.RatingPlan{}, err
	}
	refWeight, err := parseDecimal(pj.ReferenceFleetWeight, context+" reference_fleet_weight")
	if err != nil {
		return engine.RatingPlan{}, err
	}
	if refWeight.IsZero() || refWeight.IsNegative() {
		return engine.RatingPlan{}, fmt.Errorf("%s reference_fleet_weight must be positive", context)
	}

	plan := engine.RatingPlan{
		BaseRate:             baseRate,
		ReferenceFleetWeight: refWeight,
	}
	if pj.LockedBaseRate != "" {
		locked, err := parseDecimal(pj.LockedBaseRate, context+" locked_base_rate")
		if err != nil {
			return engine.RatingPlan{}, err
		}
		plan.LockedBaseRate = locked
	}
	return plan, nil
}

func planJSON(plan engine.RatingPlan) PlanJSON {
	pj := PlanJSON{
		BaseRate:             plan.BaseRate.String(),
		ReferenceFleetWeight: plan.ReferenceFleetWeight.String(),
	}
	if !plan.LockedBaseRate.IsZero() {
		pj.LockedBaseRate = plan.LockedBaseRate.String()
	}
	return pj
}

func parseLayer(lj LayerJSON) (engine.ReinsuranceLayer, error) {
	if lj.Name == "" {
		return engine.ReinsuranceLayer{}, fmt.Errorf("reinsurance layer missing name")
	}
	lower, err := parseDecimal(lj.LowerBound, "layer "+lj.Name+" lower_bound")
	if err != nil {
		return engine.ReinsuranceLayer{}, err
	}
	upper, err := parseDecimal(lj.UpperBound, "layer "+lj.Name+" upper_bound")
	if err != nil {
		return engine.ReinsuranceLayer{}, err
	}
	return engine.ReinsuranceLayer{Name: lj.Name, LowerBound: lower, UpperBound: upper}, nil
}

func parseDecimal(raw, context string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("missing %s", context)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", context, raw, err)
	}
	return d, nil
}
