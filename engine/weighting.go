/*
weighting.go - Risk weighting and exposure units

PURPOSE:
  Converts each active vehicle's risk attributes into a weight used by the
  allocation engine, and into exposure units for the snapshot's monthly
  exposure map.

FORMULA:
  weight        = riskScore * multiplier(usageProfile)
  exposureUnits = effectiveDays / daysInMonth

VALIDATION:
  Risk scores must lie in [0,100]. A single out-of-range vehicle aborts
  the whole recalculation with InvalidRiskScoreError; no partial snapshot
  is ever produced.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// VehicleWeight is the weighted view of one active vehicle.
type VehicleWeight struct {
	VehicleID     VehicleID
	RiskScore     int
	UsageProfile  UsageProfile
	Weight        decimal.Decimal
	ExposureUnits decimal.Decimal
	Month         string // exposure bucket, "2006-01"
	Membership    Membership
}

// ComputeWeights scores every active member. The input order (vehicle ID
// ascending, from the resolver) is preserved.
func ComputeWeights(members []ActiveMember, cfg RatingConfig, asOf time.Time) ([]VehicleWeight, error) {
	weights := make([]VehicleWeight, 0, len(members))
	for _, m := range members {
		score := m.Vehicle.RiskScore
		if score < 0 || score > 100 {
			return nil, &InvalidRiskScoreError{VehicleID: m.Vehicle.ID, RiskScore: score}
		}

		multiplier := cfg.Multiplier(m.Vehicle.UsageProfile)
		weight := decimal.NewFromInt(int64(score)).Mul(multiplier)

		exposure := decimal.Zero
		if m.DaysInMonth > 0 {
			exposure = decimal.NewFromInt(int64(m.EffectiveDays)).
				Div(decimal.NewFromInt(int64(m.DaysInMonth))).
				Round(4)
		}

		weights = append(weights, VehicleWeight{
			VehicleID:     m.Vehicle.ID,
			RiskScore:     score,
			UsageProfile:  m.Vehicle.UsageProfile,
			Weight:        weight,
			ExposureUnits: exposure,
			Month:         MonthKey(asOf),
			Membership:    m.Membership,
		})
	}
	return weights, nil
}

// ExposureByMonth accumulates exposure units into calendar-month buckets.
func ExposureByMonth(weights []VehicleWeight) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, w := range weights {
		out[w.Month] = out[w.Month].Add(w.ExposureUnits)
	}
	return out
}
