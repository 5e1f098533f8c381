/*
allocation.go - Fleet percentage and premium allocation

PURPOSE:
  Turns vehicle weights into fleet percentages and a total premium, then
  splits the premium across vehicles so the contributions sum to the
  total exactly.

FORMULA:
  totalWeight  = sum of weights
  pct_v        = weight_v / totalWeight
  totalPremium = coverageLimit * baseRate * (totalWeight / referenceWeight)
  contribution = pct_v * totalPremium

ROUNDING:
  Contributions are rounded to currency precision (round-half-even) in a
  single pass at the end. The residual cents left by rounding are assigned
  to the largest-weight vehicle, so the contributions always sum to the
  total premium exactly.

EMPTY FLEET:
  A zero total weight (empty fleet, or all-zero risk scores) yields a
  zero premium and no shares. This is a legal state, not an error.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// ShareAllocation is one vehicle's computed slice of the premium.
type ShareAllocation struct {
	VehicleID           VehicleID
	RiskScore           int
	FleetPercentage     decimal.Decimal
	PremiumContribution decimal.Decimal
	ExposureUnits       decimal.Decimal
	Membership          Membership
}

// AllocationResult is the allocation engine's output.
type AllocationResult struct {
	TotalWeight  decimal.Decimal
	TotalPremium decimal.Decimal
	Shares       []ShareAllocation
}

// Allocate computes the total premium and per-vehicle shares.
func Allocate(weights []VehicleWeight, coverageLimit decimal.Decimal, plan RatingPlan, baseRate decimal.Decimal) AllocationResult {
	totalWeight := decimal.Zero
	for _, w := range weights {
		totalWeight = totalWeight.Add(w.Weight)
	}

	if totalWeight.IsZero() {
		return AllocationResult{
			TotalWeight:  decimal.Zero,
			TotalPremium: decimal.Zero,
		}
	}

	totalPremium := RoundCurrency(
		coverageLimit.Mul(baseRate).Mul(totalWeight.Div(plan.ReferenceFleetWeight)))

	shares := make([]ShareAllocation, len(weights))
	rounded := decimal.Zero
	largest := 0
	for i, w := range weights {
		pct := w.Weight.Div(totalWeight)
		contribution := RoundCurrency(pct.Mul(totalPremium))
		shares[i] = ShareAllocation{
			VehicleID:           w.VehicleID,
			RiskScore:           w.RiskScore,
			FleetPercentage:     pct,
			PremiumContribution: contribution,
			ExposureUnits:       w.ExposureUnits,
			Membership:          w.Membership,
		}
		rounded = rounded.Add(contribution)
		if w.Weight.GreaterThan(weights[largest].Weight) {
			largest = i
		}
	}

	// Residual cents from rounding go to the largest-weight vehicle so
	// the contributions sum to the total exactly.
	residual := totalPremium.Sub(rounded)
	if !residual.IsZero() {
		shares[largest].PremiumContribution = shares[largest].PremiumContribution.Add(residual)
	}

	return AllocationResult{
		TotalWeight:  totalWeight,
		TotalPremium: totalPremium,
		Shares:       shares,
	}
}
