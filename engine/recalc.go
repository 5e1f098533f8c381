/*
recalc.go - The full recalculation pipeline

PURPOSE:
  Orchestrates one premium recalculation for a policy:

    1. Resolve the active fleet for the as-of date
    2. Hash the risk state and compare with the latest snapshot
       (dirty-check guard; equal hash = successful skip)
    3. Weight each vehicle and validate risk scores
    4. Allocate the premium across vehicles
    5. Run the reinsurance waterfall
    6. Persist snapshot + shares + allocations + audit atomically,
       under optimistic concurrency on the policy version

  Nothing here suspends mid-transaction: all reads happen before the
  single WriteSnapshot call, which is the only blocking I/O boundary.
  On ErrVersionConflict the caller (job coordinator) retries the whole
  pipeline, which re-reads fresh state.

SEE ALSO:
  - jobs/coordinator.go: retry/backoff and per-policy serialization
  - store.go: WriteSnapshot contract
*/
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Recalculator runs the recalculation pipeline against a Store.
type Recalculator struct {
	Store  Store
	Config RatingConfig

	// Now is overridable for tests. Defaults to time.Now.
	Now func() time.Time
}

func NewRecalculator(store Store, cfg RatingConfig) *Recalculator {
	return &Recalculator{Store: store, Config: cfg, Now: time.Now}
}

// Result is the outcome of one recalculation.
type Result struct {
	// Skipped is true when the dirty-check guard found an unchanged risk
	// state. Snapshot then points at the existing latest snapshot.
	Skipped bool

	Snapshot    *PremiumSnapshot
	Shares      []VehicleShare
	Allocations []SnapshotAllocation
}

// Recalculate runs the pipeline once. It does not retry; transient errors
// surface to the caller with their taxonomy intact.
func (r *Recalculator) Recalculate(ctx context.Context, policyID PolicyID, asOf time.Time, trigger string) (*Result, error) {
	asOf = day(asOf)

	policy, members, err := ResolveActiveMembers(ctx, r.Store, policyID, asOf)
	if err != nil {
		return nil, err
	}
	baseVersion := policy.Version

	riskHash := ComputeRiskHash(policy, asOf, members)

	var previous *PremiumSnapshot
	prev, err := r.Store.LatestSnapshot(ctx, policyID)
	switch {
	case err == nil:
		previous = prev
	case errors.Is(err, ErrSnapshotNotFound):
		// First snapshot for this policy.
	default:
		return nil, err
	}

	if previous != nil && previous.RiskHash == riskHash {
		audit := AuditEntry{
			ID:        uuid.NewString(),
			PolicyID:  policyID,
			Reason:    AuditSkipped,
			Trigger:   trigger,
			CreatedAt: r.Now().UTC(),
		}
		if err := r.Store.AppendAudit(ctx, audit); err != nil {
			return nil, err
		}
		return &Result{Skipped: true, Snapshot: previous}, nil
	}

	weights, err := ComputeWeights(members, r.Config, asOf)
	if err != nil {
		return nil, err
	}

	plan := r.Config.Plan(policy.PolicyClass)
	baseRate := plan.EffectiveBaseRate(policy, asOf)
	allocation := Allocate(weights, policy.CoverageLimit, plan, baseRate)

	layers, err := r.Store.Layers(ctx)
	if err != nil {
		return nil, err
	}
	layerFills, err := Waterfall(allocation.TotalPremium, layers)
	if err != nil {
		return nil, err
	}

	snapshotID := SnapshotID(uuid.NewString())
	snapshot := PremiumSnapshot{
		ID:              snapshotID,
		PolicyID:        policyID,
		AsOf:            asOf,
		CalculatedAt:    r.Now().UTC(),
		TotalPremium:    allocation.TotalPremium,
		Trigger:         trigger,
		RiskHash:        riskHash,
		ExposureByMonth: ExposureByMonth(weights),
	}
	if previous != nil {
		prevID := previous.ID
		snapshot.PreviousID = &prevID
	}

	shares := make([]VehicleShare, len(allocation.Shares))
	for i, s := range allocation.Shares {
		shares[i] = VehicleShare{
			SnapshotID:          snapshotID,
			VehicleID:           s.VehicleID,
			RiskScore:           s.RiskScore,
			FleetPercentage:     s.FleetPercentage,
			PremiumContribution: s.PremiumContribution,
			ExposureUnits:       s.ExposureUnits,
			EffectiveFrom:       s.Membership.EffectiveFrom,
			EffectiveTo:         s.Membership.EffectiveTo,
		}
	}

	allocations := make([]SnapshotAllocation, len(layerFills))
	for i, f := range layerFills {
		allocations[i] = SnapshotAllocation{
			SnapshotID: snapshotID,
			LayerName:  f.Layer.Name,
			Allocated:  f.Allocated,
		}
	}

	write := SnapshotWrite{
		ExpectedVersion: baseVersion,
		Snapshot:        snapshot,
		Shares:          shares,
		Allocations:     allocations,
		Audit: AuditEntry{
			ID:        uuid.NewString(),
			PolicyID:  policyID,
			Reason:    AuditRecalculated,
			Trigger:   trigger,
			CreatedAt: r.Now().UTC(),
		},
	}
	if err := r.Store.WriteSnapshot(ctx, write); err != nil {
		return nil, err
	}

	return &Result{Snapshot: &snapshot, Shares: shares, Allocations: allocations}, nil
}
