/*
errors.go - Centralized error taxonomy for the recalculation engine

PURPOSE:
  All error types in one place. The job coordinator's retry decisions are
  driven entirely by this taxonomy:

  Retried (transient):
    ErrVersionConflict - optimistic concurrency CAS failed
    ErrPersistence     - storage unavailable

  Not retried (deterministic defects):
    ErrPolicyNotFound / ErrVehicleNotFound - unknown identity
    ErrInvalidRiskScore                    - data integrity defect
    ErrLayerConfig                         - static config defect

USAGE:
  if engine.IsRetryable(err) {
      // back off and retry
  }
*/
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	// Distinct from an empty fleet, which is a valid result.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrVehicleNotFound is returned when a referenced vehicle doesn't exist.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// ErrSnapshotNotFound is returned when a policy has no snapshots yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidRiskScore is returned when a vehicle's risk score is outside
	// [0,100]. The whole recalculation aborts; no partial snapshot.
	ErrInvalidRiskScore = errors.New("risk score out of range")

	// ErrLayerConfig is returned when the reinsurance layers have a gap,
	// an overlap, or cannot absorb the total premium. Fatal, never retried.
	ErrLayerConfig = errors.New("invalid reinsurance layer configuration")

	// ErrVersionConflict is returned when the policy version changed between
	// job start and snapshot write. Transient; the caller retries.
	ErrVersionConflict = errors.New("concurrent policy modification detected")

	// ErrPersistence is returned when the store is unavailable. Transient.
	ErrPersistence = errors.New("persistence failure")

	// ErrMembershipOverlap is returned when a new membership interval would
	// overlap an existing one for the same (policy, vehicle) pair.
	ErrMembershipOverlap = errors.New("overlapping membership interval")

	// ErrMembershipNotFound is returned when closing an unknown or
	// already-closed membership interval.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrJobNotFound is returned for unknown job identifiers.
	ErrJobNotFound = errors.New("job not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidRiskScoreError identifies the offending vehicle.
type InvalidRiskScoreError struct {
	VehicleID VehicleID
	RiskScore int
}

func (e *InvalidRiskScoreError) Error() string {
	return fmt.Sprintf("risk score %d for vehicle %s outside [0,100]", e.RiskScore, e.VehicleID)
}

func (e *InvalidRiskScoreError) Unwrap() error { return ErrInvalidRiskScore }

// LayerConfigError describes which part of the layer stack is defective.
type LayerConfigError struct {
	Layer  string
	Detail string
}

func (e *LayerConfigError) Error() string {
	if e.Layer == "" {
		return fmt.Sprintf("layer configuration: %s", e.Detail)
	}
	return fmt.Sprintf("layer configuration at %q: %s", e.Layer, e.Detail)
}

func (e *LayerConfigError) Unwrap() error { return ErrLayerConfig }

// VersionConflictError reports the expected vs. observed policy version.
type VersionConflictError struct {
	PolicyID PolicyID
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("policy %s version changed: expected %d, found %d",
		e.PolicyID, e.Expected, e.Actual)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// MembershipOverlapError identifies the conflicting interval.
type MembershipOverlapError struct {
	PolicyID  PolicyID
	VehicleID VehicleID
	From      time.Time
	To        *time.Time
}

func (e *MembershipOverlapError) Error() string {
	return fmt.Sprintf("vehicle %s already has an overlapping membership on policy %s",
		e.VehicleID, e.PolicyID)
}

func (e *MembershipOverlapError) Unwrap() error { return ErrMembershipOverlap }

// AllocationMismatchError is the waterfall postcondition failure: the sum
// of layer fills did not equal the total premium. Indicates a bug or a
// defective layer stack that slipped past validation.
type AllocationMismatchError struct {
	Total     decimal.Decimal
	Allocated decimal.Decimal
}

func (e *AllocationMismatchError) Error() string {
	return fmt.Sprintf("allocated %s does not equal total premium %s",
		e.Allocated.String(), e.Total.String())
}

func (e *AllocationMismatchError) Unwrap() error { return ErrLayerConfig }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrPersistence)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrVehicleNotFound) ||
		errors.Is(err, ErrSnapshotNotFound) ||
		errors.Is(err, ErrMembershipNotFound) ||
		errors.Is(err, ErrJobNotFound)
}

// IsClientError returns true if the error is due to invalid input data
// rather than system state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRiskScore) ||
		errors.Is(err, ErrMembershipOverlap)
}
