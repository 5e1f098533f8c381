/*
config.go - Injected rating configuration

PURPOSE:
  The premium formula's constants are configuration, not business truth
  hard-coded in the engine: usage-profile multipliers, and a base rate plus
  reference fleet weight per policy class. They arrive here from external
  config (see factory package) and are treated as pluggable.
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatingPlan holds the per-policy-class pricing constants.
type RatingPlan struct {
	BaseRate             decimal.Decimal
	ReferenceFleetWeight decimal.Decimal

	// LockedBaseRate is the rate captured at plan inception. Used instead
	// of BaseRate for snapshots dated on or before the policy's rate-lock
	// date. Zero means no locked rate is defined.
	LockedBaseRate decimal.Decimal
}

// RatingConfig is the full injected rating setup.
type RatingConfig struct {
	// UsageProfile -> weight multiplier.
	Multipliers map[UsageProfile]decimal.Decimal

	// Policy class -> plan constants.
	Plans map[string]RatingPlan

	// Plan used when a policy's class has no entry in Plans.
	DefaultPlan RatingPlan
}

// DefaultRatingConfig returns the reference configuration used when no
// external config is supplied.
func DefaultRatingConfig() RatingConfig {
	return RatingConfig{
		Multipliers: map[UsageProfile]decimal.Decimal{
			UsageUrban:   decimal.NewFromFloat(1.2),
			UsageHighway: decimal.NewFromFloat(1.0),
			UsageMixed:   decimal.NewFromFloat(1.1),
		},
		Plans: map[string]RatingPlan{},
		DefaultPlan: RatingPlan{
			BaseRate:             decimal.NewFromFloat(0.001),
			ReferenceFleetWeight: decimal.NewFromInt(100),
		},
	}
}

// Multiplier returns the weight multiplier for a usage profile.
// Unknown profiles weigh like MIXED.
func (c RatingConfig) Multiplier(p UsageProfile) decimal.Decimal {
	if m, ok := c.Multipliers[p]; ok {
		return m
	}
	if m, ok := c.Multipliers[UsageMixed]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// Plan returns the rating plan for a policy class.
func (c RatingConfig) Plan(class string) RatingPlan {
	if p, ok := c.Plans[class]; ok {
		return p
	}
	return c.DefaultPlan
}

// EffectiveBaseRate picks the plan rate for a snapshot, honoring the
// policy's rate lock when the as-of date falls inside the locked window.
func (p RatingPlan) EffectiveBaseRate(policy *Policy, asOf time.Time) decimal.Decimal {
	if policy.RateLockUntil != nil && !asOf.After(*policy.RateLockUntil) && !p.LockedBaseRate.IsZero() {
		return p.LockedBaseRate
	}
	return p.BaseRate
}
