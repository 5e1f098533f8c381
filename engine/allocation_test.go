package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fleetsure/premium-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func weight(vehicleID string, riskScore int, w string) engine.VehicleWeight {
	return engine.VehicleWeight{
		VehicleID: engine.VehicleID(vehicleID),
		RiskScore: riskScore,
		Weight:    money(w),
	}
}

func defaultPlan() engine.RatingPlan {
	return engine.RatingPlan{
		BaseRate:             money("0.001"),
		ReferenceFleetWeight: money("100"),
	}
}

// =============================================================================
// ALLOCATION TESTS
// =============================================================================

func TestAllocate_ContributionsSumToTotalExactly(t *testing.T) {
	// GIVEN: Three vehicles with weights 72, 70, 88 (total 230)
	// WHEN: Allocating against $1M coverage at base rate 0.001
	// THEN: Total is 1M * 0.001 * 230/100 = 2300.00 and the contributions
	//       sum to it exactly

	weights := []engine.VehicleWeight{
		weight("v-1", 60, "72"),
		weight("v-2", 70, "70"),
		weight("v-3", 80, "88"),
	}
	plan := defaultPlan()

	result := engine.Allocate(weights, money("1000000"), plan, plan.BaseRate)

	if !result.TotalPremium.Equal(money("2300")) {
		t.Fatalf("total premium %s, want 2300", result.TotalPremium)
	}

	sum := decimal.Zero
	for _, s := range result.Shares {
		sum = sum.Add(s.PremiumContribution)
	}
	if !sum.Equal(result.TotalPremium) {
		t.Errorf("contributions sum to %s, want %s", sum, result.TotalPremium)
	}
}

func TestAllocate_PercentagesSumToOne(t *testing.T) {
	weights := []engine.VehicleWeight{
		weight("v-1", 55, "66"),
		weight("v-2", 70, "70"),
		weight("v-3", 85, "93.5"),
	}
	plan := defaultPlan()

	result := engine.Allocate(weights, money("1000000"), plan, plan.BaseRate)

	sum := decimal.Zero
	for _, s := range result.Shares {
		sum = sum.Add(s.FleetPercentage)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(money("0.000000001")) {
		t.Errorf("percentages sum to %s, want ~1", sum)
	}
}

func TestAllocate_ResidualGoesToLargestWeight(t *testing.T) {
	// GIVEN: Three equal weights where each share rounds to 33.33
	// WHEN: Allocating a total of 100.00
	// THEN: The rounding residual of 0.01 lands on exactly one share and
	//       the sum is exact

	weights := []engine.VehicleWeight{
		weight("v-1", 10, "10"),
		weight("v-2", 10, "10"),
		weight("v-3", 10, "10"),
	}
	plan := engine.RatingPlan{
		BaseRate:             money("0.001"),
		ReferenceFleetWeight: money("3"),
	}

	result := engine.Allocate(weights, money("10000"), plan, plan.BaseRate)

	if !result.TotalPremium.Equal(money("100")) {
		t.Fatalf("total premium %s, want 100", result.TotalPremium)
	}

	sum := decimal.Zero
	bumped := 0
	for _, s := range result.Shares {
		sum = sum.Add(s.PremiumContribution)
		if s.PremiumContribution.Equal(money("33.34")) {
			bumped++
		}
	}
	if !sum.Equal(result.TotalPremium) {
		t.Errorf("contributions sum to %s, want %s", sum, result.TotalPremium)
	}
	if bumped != 1 {
		t.Errorf("expected exactly one share to absorb the residual, got %d", bumped)
	}
}

func TestAllocate_ZeroWeightYieldsZeroPremium(t *testing.T) {
	// GIVEN: An empty fleet
	// WHEN: Allocating
	// THEN: Zero premium, no shares, no error

	plan := defaultPlan()
	result := engine.Allocate(nil, money("1000000"), plan, plan.BaseRate)

	if !result.TotalPremium.IsZero() {
		t.Errorf("total premium %s, want 0", result.TotalPremium)
	}
	if len(result.Shares) != 0 {
		t.Errorf("expected no shares, got %d", len(result.Shares))
	}
}

func TestAllocate_AllZeroRiskScores(t *testing.T) {
	// Risk score 0 is valid but weightless. Same outcome as an empty fleet.
	weights := []engine.VehicleWeight{
		weight("v-1", 0, "0"),
		weight("v-2", 0, "0"),
	}
	plan := defaultPlan()

	result := engine.Allocate(weights, money("1000000"), plan, plan.BaseRate)

	if !result.TotalPremium.IsZero() {
		t.Errorf("total premium %s, want 0", result.TotalPremium)
	}
	if len(result.Shares) != 0 {
		t.Errorf("expected no shares, got %d", len(result.Shares))
	}
}
