package factory_test

import (
	"strings"
	"testing"

	"github.com/fleetsure/premium-engine/engine"
	"github.com/fleetsure/premium-engine/factory"
)

const sampleConfig = `{
	"multipliers": {
		"URBAN": "1.3",
		"HIGHWAY": "0.95"
	},
	"default_plan": {
		"base_rate": "0.0015",
		"reference_fleet_weight": "150"
	},
	"plans": {
		"COMMERCIAL_TRUCKING": {
			"base_rate": "0.002",
			"reference_fleet_weight": "100",
			"locked_base_rate": "0.001"
		}
	},
	"reinsurance_layers": [
		{"name": "Excess-1", "lower_bound": "100000", "upper_bound": "250000"},
		{"name": "Primary", "lower_bound": "0", "upper_bound": "100000"}
	]
}`

func TestParseConfig_FullSetup(t *testing.T) {
	// GIVEN a complete rating definition with unordered layers
	f := factory.NewRatingFactory()

	// WHEN parsing it
	config, layers, err := f.ParseConfig(sampleConfig)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	// THEN multipliers override the defaults, untouched ones survive
	if got := config.Multiplier(engine.UsageUrban).String(); got != "1.3" {
		t.Errorf("URBAN multiplier = %s, want 1.3", got)
	}
	if got := config.Multiplier(engine.UsageMixed).String(); got != "1.1" {
		t.Errorf("MIXED multiplier = %s, want default 1.1", got)
	}

	// AND the default plan and class plan are both populated
	if got := config.DefaultPlan.BaseRate.String(); got != "0.0015" {
		t.Errorf("default base rate = %s, want 0.0015", got)
	}
	trucking := config.Plan("COMMERCIAL_TRUCKING")
	if got := trucking.LockedBaseRate.String(); got != "0.001" {
		t.Errorf("locked base rate = %s, want 0.001", got)
	}

	// AND layers come back sorted and valid
	if len(layers) != 2 {
		t.Fatalf("got %d layers, want 2", len(layers))
	}
	if layers[0].Name != "Primary" {
		t.Errorf("first layer = %s, want Primary", layers[0].Name)
	}
}

func TestParseConfig_EmptyUsesDefaults(t *testing.T) {
	f := factory.NewRatingFactory()

	config, layers, err := f.ParseConfig(`{}`)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	defaults := engine.DefaultRatingConfig()
	if !config.DefaultPlan.BaseRate.Equal(defaults.DefaultPlan.BaseRate) {
		t.Errorf("base rate = %s, want default %s",
			config.DefaultPlan.BaseRate, defaults.DefaultPlan.BaseRate)
	}
	if layers != nil {
		t.Errorf("expected no layers, got %d", len(layers))
	}
}

func TestParseConfig_RejectsBadDecimal(t *testing.T) {
	f := factory.NewRatingFactory()

	_, _, err := f.ParseConfig(`{"multipliers": {"URBAN": "fast"}}`)
	if err == nil {
		t.Fatal("expected error for non-decimal multiplier")
	}
	if !strings.Contains(err.Error(), "URBAN") {
		t.Errorf("error should name the offending key: %v", err)
	}
}

func TestParseConfig_RejectsZeroReferenceWeight(t *testing.T) {
	f := factory.NewRatingFactory()

	_, _, err := f.ParseConfig(`{"default_plan": {"base_rate": "0.001", "reference_fleet_weight": "0"}}`)
	if err == nil {
		t.Fatal("expected error for zero reference fleet weight")
	}
}

func TestParseConfig_RejectsGappedLayers(t *testing.T) {
	f := factory.NewRatingFactory()

	_, _, err := f.ParseConfig(`{"reinsurance_layers": [
		{"name": "Primary", "lower_bound": "0", "upper_bound": "100000"},
		{"name": "Excess-1", "lower_bound": "150000", "upper_bound": "1000000000"}
	]}`)
	if err == nil {
		t.Fatal("expected error for gap between layers")
	}
}

func TestToJSON_RoundTrips(t *testing.T) {
	f := factory.NewRatingFactory()

	config, layers, err := f.ParseConfig(sampleConfig)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	out := f.ToJSON(config, layers)
	if out.Multipliers["URBAN"] != "1.3" {
		t.Errorf("round-trip URBAN multiplier = %s, want 1.3", out.Multipliers["URBAN"])
	}
	if out.Plans["COMMERCIAL_TRUCKING"].LockedBaseRate != "0.001" {
		t.Errorf("round-trip locked rate = %s, want 0.001", out.Plans["COMMERCIAL_TRUCKING"].LockedBaseRate)
	}
	if len(out.Layers) != 2 || out.Layers[0].Name != "Primary" {
		t.Errorf("round-trip layers wrong: %+v", out.Layers)
	}
}
