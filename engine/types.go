/*
Package engine provides the fleet premium recalculation core.

PURPOSE:
  This package contains the domain types and algorithms for deriving a
  fleet insurance premium from a policy's temporally-scoped vehicle set,
  allocating it across vehicles and reinsurance layers, and recording the
  result as an immutable, auditable snapshot.

KEY CONCEPTS IN THIS FILE (types.go):
  - Policy/Vehicle/Membership: The bitemporal-style fleet model
  - PremiumSnapshot/VehicleShare: Immutable computed results
  - ReinsuranceLayer/SnapshotAllocation: Waterfall bands and their fills
  - AuditEntry: Append-only trail of every recalculation attempt

DESIGN PRINCIPLES:
  1. Immutability: Snapshots, shares and allocations are written once
  2. Precision: decimal.Decimal for all monetary and weight math
  3. Arena storage: Entities reference each other by ID, never by pointer
  4. Optimistic concurrency: Policy.Version is the sole write-conflict guard

SEE ALSO:
  - membership.go: Temporal membership resolution
  - weighting.go:  Risk weighting and exposure units
  - allocation.go: Fleet percentage and premium allocation
  - waterfall.go:  Reinsurance layer allocation
  - recalc.go:     The full recalculation pipeline
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PolicyID string
type VehicleID string
type SnapshotID string
type MembershipID string

// =============================================================================
// POLICY - The insured fleet contract
// =============================================================================

// Policy is the shared mutable root of a fleet. Only the snapshot writer
// bumps Version; everything else the engine produces is append-only.
type Policy struct {
	ID            PolicyID
	PolicyNumber  string // unique
	Customer      string
	CoverageLimit decimal.Decimal
	PolicyClass   string // selects the rating plan (base rate, reference weight)

	// Effective window [From, To). A policy is closed by setting To,
	// never deleted.
	EffectiveFrom time.Time
	EffectiveTo   time.Time

	// Optional: premiums for snapshots at or before this date use the
	// rate captured at inception instead of the current plan rate.
	RateLockUntil *time.Time

	// Optimistic concurrency token. Incremented on every snapshot write.
	Version int64
}

// =============================================================================
// VEHICLE - A risk-scored fleet member
// =============================================================================

type UsageProfile string

const (
	UsageUrban   UsageProfile = "URBAN"
	UsageHighway UsageProfile = "HIGHWAY"
	UsageMixed   UsageProfile = "MIXED"
)

type Vehicle struct {
	ID           VehicleID
	VIN          string // unique
	MakeModel    string
	PurchaseDate time.Time
	RiskScore    int // 0-100; the primary recalculation trigger
	UsageProfile UsageProfile
	Version      int64
}

// =============================================================================
// MEMBERSHIP - Temporal join between policy and vehicle
// =============================================================================

// Membership is one interval of a vehicle's association with a fleet.
// A vehicle may join and leave the same policy multiple times; each
// interval is a distinct row. Invariant: intervals for a given
// (policy, vehicle) pair never overlap.
type Membership struct {
	ID            MembershipID
	PolicyID      PolicyID
	VehicleID     VehicleID
	EffectiveFrom time.Time
	EffectiveTo   *time.Time // nil = open interval
}

// ActiveOn reports whether the interval covers asOf: From <= asOf and
// (To is open or To > asOf).
func (m Membership) ActiveOn(asOf time.Time) bool {
	if asOf.Before(m.EffectiveFrom) {
		return false
	}
	return m.EffectiveTo == nil || m.EffectiveTo.After(asOf)
}

// =============================================================================
// SNAPSHOT - Immutable computed result
// =============================================================================

// PremiumSnapshot is one link in a policy's append-only lineage, ordered
// by AsOf. Created exclusively by the snapshot writer; never mutated.
type PremiumSnapshot struct {
	ID           SnapshotID
	PolicyID     PolicyID
	AsOf         time.Time
	CalculatedAt time.Time
	TotalPremium decimal.Decimal
	Trigger      string
	PreviousID   *SnapshotID // nil for the first snapshot of a policy

	// Dirty-check guard: hash of everything that affects the result.
	RiskHash string

	// Month ("2006-01") -> exposure units captured at calculation time.
	ExposureByMonth map[string]decimal.Decimal
}

// VehicleShare is one active vehicle's slice of a snapshot. Owned by its
// snapshot, written once.
type VehicleShare struct {
	SnapshotID          SnapshotID
	VehicleID           VehicleID
	RiskScore           int // at calculation time
	FleetPercentage     decimal.Decimal // in [0,1]
	PremiumContribution decimal.Decimal
	ExposureUnits       decimal.Decimal
	EffectiveFrom       time.Time
	EffectiveTo         *time.Time
}

// =============================================================================
// REINSURANCE - Static bands and their per-snapshot fills
// =============================================================================

// ReinsuranceLayer is a static band [LowerBound, UpperBound) on total
// premium. Configuration data, not derived.
type ReinsuranceLayer struct {
	Name       string // unique
	LowerBound decimal.Decimal
	UpperBound decimal.Decimal
}

// Width returns UpperBound - LowerBound.
func (l ReinsuranceLayer) Width() decimal.Decimal {
	return l.UpperBound.Sub(l.LowerBound)
}

// SnapshotAllocation is one layer's fill for one snapshot.
type SnapshotAllocation struct {
	SnapshotID SnapshotID
	LayerName  string
	Allocated  decimal.Decimal
}

// =============================================================================
// AUDIT - Append-only trail, independent of snapshot writes
// =============================================================================

// AuditEntry records every recalculation attempt: written snapshots,
// dirty-check skips, and terminal failures alike.
type AuditEntry struct {
	ID        string
	PolicyID  PolicyID
	Reason    string
	Trigger   string
	CreatedAt time.Time
}

const (
	AuditRecalculated = "recalculated"
	AuditSkipped      = "no-op: unchanged risk state"
	AuditFailed       = "recalculation failed"
)

// =============================================================================
// CURRENCY HELPERS
// =============================================================================

// RoundCurrency rounds to currency precision using round-half-even.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// MustParseDecimal parses s and panics on failure. Intended for values
// this system wrote itself (stored decimals, test fixtures), where a
// parse failure means corruption, not user input to tolerate.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid decimal %q: %v", s, err))
	}
	return d
}
