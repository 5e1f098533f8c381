/*
store.go - Persistence interfaces for the recalculation engine

PURPOSE:
  Defines the interface between the engine and the database. The engine
  requires only transactional read-modify-write semantics; it does not
  depend on any storage engine's query language.

KEY INTERFACES:
  FleetStore:    Policies, vehicles, memberships, reinsurance layers
  SnapshotStore: Snapshot lineage reads and the atomic snapshot write
  AuditLog:      Append-only attempt trail
  Store:         All of the above (what the recalculator needs)

APPEND-ONLY CONTRACT:
  Snapshots, shares, allocations and audit entries are written exactly
  once. There are no update or delete methods for them. The only mutation
  the engine performs is the policy version bump inside WriteSnapshot.

OPTIMISTIC CONCURRENCY:
  WriteSnapshot carries the policy version observed at job start. The
  implementation must re-read the version inside its transaction and fail
  with ErrVersionConflict if it moved, rolling back everything.

IMPLEMENTATIONS:
  - store/sqlite:      Production SQLite
  - engine/store:      In-memory for tests/dev
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// FLEET STORE - Policies, vehicles, memberships, layers
// =============================================================================

type FleetStore interface {
	// GetPolicy returns the policy or ErrPolicyNotFound.
	GetPolicy(ctx context.Context, id PolicyID) (*Policy, error)
	SavePolicy(ctx context.Context, p Policy) error

	// GetVehicle returns the vehicle or ErrVehicleNotFound.
	GetVehicle(ctx context.Context, id VehicleID) (*Vehicle, error)
	// GetVehicleByVIN returns the vehicle or ErrVehicleNotFound.
	GetVehicleByVIN(ctx context.Context, vin string) (*Vehicle, error)
	SaveVehicle(ctx context.Context, v Vehicle) error

	// Memberships returns all membership intervals for a policy,
	// ordered by vehicle then effective-from.
	Memberships(ctx context.Context, policyID PolicyID) ([]Membership, error)
	// MembershipsByVehicle returns all intervals a vehicle appears in.
	MembershipsByVehicle(ctx context.Context, vehicleID VehicleID) ([]Membership, error)
	// AddMembership inserts a new interval. Returns ErrMembershipOverlap
	// if it intersects an existing interval for the same pair.
	AddMembership(ctx context.Context, m Membership) error
	// CloseMembership sets EffectiveTo on an open interval.
	CloseMembership(ctx context.Context, id MembershipID, to time.Time) error

	// Layers returns the reinsurance layers ordered by lower bound.
	Layers(ctx context.Context) ([]ReinsuranceLayer, error)
	SaveLayer(ctx context.Context, l ReinsuranceLayer) error
}

// =============================================================================
// SNAPSHOT STORE - Lineage reads and the single atomic write
// =============================================================================

// SnapshotWrite is everything one recalculation persists, all-or-nothing.
type SnapshotWrite struct {
	// ExpectedVersion is the policy version read at job start. The write
	// fails with ErrVersionConflict if the stored version differs.
	ExpectedVersion int64

	Snapshot    PremiumSnapshot
	Shares      []VehicleShare
	Allocations []SnapshotAllocation
	Audit       AuditEntry
}

type SnapshotStore interface {
	// LatestSnapshot returns the most recent snapshot for a policy,
	// ordered by AsOf then creation order, or ErrSnapshotNotFound.
	LatestSnapshot(ctx context.Context, policyID PolicyID) (*PremiumSnapshot, error)

	// SnapshotHistory returns the lineage, oldest first.
	SnapshotHistory(ctx context.Context, policyID PolicyID) ([]PremiumSnapshot, error)

	// Shares returns the vehicle shares owned by a snapshot.
	Shares(ctx context.Context, snapshotID SnapshotID) ([]VehicleShare, error)

	// Allocations returns the reinsurance fills owned by a snapshot.
	Allocations(ctx context.Context, snapshotID SnapshotID) ([]SnapshotAllocation, error)

	// WriteSnapshot atomically persists the snapshot, its shares and
	// allocations, the audit entry, and bumps the policy version.
	// Any failure rolls back the entire set.
	WriteSnapshot(ctx context.Context, w SnapshotWrite) error
}

// =============================================================================
// AUDIT LOG - Append-only, also written for skips and failures
// =============================================================================

type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// AuditTrail returns entries for a policy, oldest first.
	AuditTrail(ctx context.Context, policyID PolicyID) ([]AuditEntry, error)
}

// =============================================================================
// STORE - Everything the recalculator needs
// =============================================================================

type Store interface {
	FleetStore
	SnapshotStore
	AuditLog
}
