package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetsure/premium-engine/engine"
	"github.com/fleetsure/premium-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRecalculator(t *testing.T) (*engine.Recalculator, *store.Memory) {
	t.Helper()
	s := store.NewMemory()

	ctx := context.Background()
	require.NoError(t, s.SaveLayer(ctx, layer("Primary", 0, 100_000)))
	require.NoError(t, s.SaveLayer(ctx, layer("Excess-1", 100_000, 250_000)))

	return engine.NewRecalculator(s, engine.DefaultRatingConfig()), s
}

// =============================================================================
// PIPELINE TESTS
// =============================================================================

func TestRecalculate_WritesSnapshotWithSharesAndAllocations(t *testing.T) {
	// GIVEN: Two trucks, risk 60 URBAN (weight 72) and 50 HIGHWAY (weight 50)
	// WHEN: Recalculating as of March 31
	// THEN: Total = 1M * 0.001 * 122/100 = 1220.00, contributions 720 + 500,
	//       Primary layer absorbs everything

	recalc, s := newTestRecalculator(t)
	ctx := context.Background()

	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	seedVehicle(t, s, "v-2", 50, engine.UsageHighway)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)
	join(t, s, "pol-1", "v-2", policy.EffectiveFrom, nil)

	result, err := recalc.Recalculate(ctx, policy.ID, date(2024, time.March, 31), "MANUAL")
	require.NoError(t, err)
	require.False(t, result.Skipped)

	assert.True(t, result.Snapshot.TotalPremium.Equal(money("1220")),
		"total premium %s, want 1220", result.Snapshot.TotalPremium)

	require.Len(t, result.Shares, 2)
	assert.True(t, result.Shares[0].PremiumContribution.Equal(money("720")),
		"v-1 contribution %s, want 720", result.Shares[0].PremiumContribution)
	assert.True(t, result.Shares[1].PremiumContribution.Equal(money("500")),
		"v-2 contribution %s, want 500", result.Shares[1].PremiumContribution)

	require.Len(t, result.Allocations, 2)
	assert.Equal(t, "Primary", result.Allocations[0].LayerName)
	assert.True(t, result.Allocations[0].Allocated.Equal(money("1220")))
	assert.True(t, result.Allocations[1].Allocated.IsZero())

	// Persisted state
	latest, err := s.LatestSnapshot(ctx, policy.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Snapshot.ID, latest.ID)
	assert.Nil(t, latest.PreviousID)

	stored, err := s.GetPolicy(ctx, policy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version, "snapshot write must bump the version")

	trail, err := s.AuditTrail(ctx, policy.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, engine.AuditRecalculated, trail[0].Reason)
}

func TestRecalculate_UnchangedRiskStateSkips(t *testing.T) {
	// GIVEN: A snapshot already exists for this risk state
	// WHEN: Recalculating again with the same as-of date
	// THEN: Skip - no new snapshot, audit records the no-op

	recalc, s := newTestRecalculator(t)
	ctx := context.Background()

	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)

	asOf := date(2024, time.March, 31)
	first, err := recalc.Recalculate(ctx, policy.ID, asOf, "MANUAL")
	require.NoError(t, err)

	second, err := recalc.Recalculate(ctx, policy.ID, asOf, "MANUAL")
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Snapshot.ID, second.Snapshot.ID)

	history, err := s.SnapshotHistory(ctx, policy.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "skip must not write a snapshot")

	trail, err := s.AuditTrail(ctx, policy.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, engine.AuditSkipped, trail[1].Reason)

	// The skip does not bump the version either.
	stored, err := s.GetPolicy(ctx, policy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestRecalculate_RiskChangeExtendsLineage(t *testing.T) {
	// GIVEN: An existing snapshot
	// WHEN: A risk score changes and the policy recalculates
	// THEN: A new snapshot links back to the previous one

	recalc, s := newTestRecalculator(t)
	ctx := context.Background()

	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)

	asOf := date(2024, time.March, 31)
	first, err := recalc.Recalculate(ctx, policy.ID, asOf, "MANUAL")
	require.NoError(t, err)

	seedVehicle(t, s, "v-1", 90, engine.UsageUrban)
	second, err := recalc.Recalculate(ctx, policy.ID, asOf, "RISK_SCORE_UPDATED vehicle=v-1")
	require.NoError(t, err)
	require.False(t, second.Skipped)

	require.NotNil(t, second.Snapshot.PreviousID)
	assert.Equal(t, first.Snapshot.ID, *second.Snapshot.PreviousID)
	assert.NotEqual(t, first.Snapshot.RiskHash, second.Snapshot.RiskHash)

	stored, err := s.GetPolicy(ctx, policy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func TestRecalculate_UrbanOutweighsHighwayAtEqualRisk(t *testing.T) {
	// GIVEN: Two trucks with identical risk scores, one URBAN one HIGHWAY
	// THEN: The URBAN truck carries the larger contribution

	recalc, s := newTestRecalculator(t)
	ctx := context.Background()

	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 50, engine.UsageUrban)
	seedVehicle(t, s, "v-2", 50, engine.UsageHighway)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)
	join(t, s, "pol-1", "v-2", policy.EffectiveFrom, nil)

	result, err := recalc.Recalculate(ctx, policy.ID, date(2024, time.March, 31), "MANUAL")
	require.NoError(t, err)
	require.Len(t, result.Shares, 2)

	urban, highway := result.Shares[0], result.Shares[1]
	assert.True(t, urban.PremiumContribution.GreaterThan(highway.PremiumContribution),
		"urban %s should exceed highway %s", urban.PremiumContribution, highway.PremiumContribution)
}

func TestRecalculate_InvalidRiskScoreAborts(t *testing.T) {
	// GIVEN: A vehicle with a corrupted risk score
	// WHEN: Recalculating
	// THEN: InvalidRiskScoreError, no snapshot, version untouched

	recalc, s := newTestRecalculator(t)
	ctx := context.Background()

	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 150, engine.UsageUrban)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)

	_, err := recalc.Recalculate(ctx, policy.ID, date(2024, time.March, 31), "MANUAL")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInvalidRiskScore)
	assert.False(t, engine.IsRetryable(err), "data defects must not be retried")

	_, err = s.LatestSnapshot(ctx, policy.ID)
	assert.ErrorIs(t, err, engine.ErrSnapshotNotFound)

	stored, err := s.GetPolicy(ctx, policy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
}

func TestRecalculate_EmptyFleetWritesZeroPremium(t *testing.T) {
	recalc, s := newTestRecalculator(t)
	ctx := context.Background()

	policy := seedPolicy(t, s)

	result, err := recalc.Recalculate(ctx, policy.ID, date(2024, time.March, 31), "MANUAL")
	require.NoError(t, err)
	require.False(t, result.Skipped)

	assert.True(t, result.Snapshot.TotalPremium.IsZero())
	assert.Empty(t, result.Shares)
	for _, alloc := range result.Allocations {
		assert.True(t, alloc.Allocated.IsZero())
	}

	history, err := s.SnapshotHistory(ctx, policy.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "zero premium is a real snapshot, not an error")
}

func TestRecalculate_RateLockUsesInceptionRate(t *testing.T) {
	// GIVEN: A plan whose rate rose from 0.001 to 0.002, and a policy
	//        rate-locked through June 30
	// WHEN: Recalculating inside and outside the lock window
	// THEN: June uses the locked rate, July the current one

	s := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, s.SaveLayer(ctx, layer("Primary", 0, 100_000)))

	config := engine.DefaultRatingConfig()
	config.Plans["COMMERCIAL_TRUCKING"] = engine.RatingPlan{
		BaseRate:             money("0.002"),
		ReferenceFleetWeight: money("100"),
		LockedBaseRate:       money("0.001"),
	}
	recalc := engine.NewRecalculator(s, config)

	lockUntil := date(2024, time.June, 30)
	policy := engine.Policy{
		ID:            "pol-lock",
		PolicyNumber:  "FLT-2024-009",
		Customer:      "Meridian Freight Co",
		CoverageLimit: money("1000000"),
		PolicyClass:   "COMMERCIAL_TRUCKING",
		EffectiveFrom: date(2024, time.January, 1),
		EffectiveTo:   date(2025, time.January, 1),
		RateLockUntil: &lockUntil,
	}
	require.NoError(t, s.SavePolicy(ctx, policy))
	seedVehicle(t, s, "v-1", 50, engine.UsageHighway)
	join(t, s, "pol-lock", "v-1", policy.EffectiveFrom, nil)

	june, err := recalc.Recalculate(ctx, policy.ID, date(2024, time.June, 30), "MANUAL")
	require.NoError(t, err)
	july, err := recalc.Recalculate(ctx, policy.ID, date(2024, time.July, 31), "MANUAL")
	require.NoError(t, err)

	// weight 50 -> locked: 1M * 0.001 * 50/100 = 500; current: 1000
	assert.True(t, june.Snapshot.TotalPremium.Equal(money("500")),
		"june %s, want 500", june.Snapshot.TotalPremium)
	assert.True(t, july.Snapshot.TotalPremium.Equal(money("1000")),
		"july %s, want 1000", july.Snapshot.TotalPremium)
}

func TestRecalculate_ExposureMapAccumulatesProration(t *testing.T) {
	// GIVEN: A full-month truck and a March 15 joiner
	// THEN: March exposure = 31/31 + 17/31 = 1.5484

	recalc, s := newTestRecalculator(t)
	ctx := context.Background()

	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	seedVehicle(t, s, "v-2", 70, engine.UsageHighway)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)
	join(t, s, "pol-1", "v-2", date(2024, time.March, 15), nil)

	result, err := recalc.Recalculate(ctx, policy.ID, date(2024, time.March, 31), "MANUAL")
	require.NoError(t, err)

	exposure, ok := result.Snapshot.ExposureByMonth["2024-03"]
	require.True(t, ok, "exposure map missing 2024-03")
	assert.True(t, exposure.Equal(decimal.NewFromInt(1).Add(money("0.5484"))),
		"march exposure %s, want 1.5484", exposure)
}

func TestRecalculate_VersionConflictSurfacesAsRetryable(t *testing.T) {
	// GIVEN: The policy version moves between job start and snapshot write
	// THEN: ErrVersionConflict surfaces and is classified retryable

	recalc, s := newTestRecalculator(t)
	ctx := context.Background()

	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)

	// Simulate a concurrent writer by bumping the stored version directly.
	conflicted := policy
	conflicted.Version = 7
	require.NoError(t, s.SavePolicy(ctx, conflicted))

	write := engine.SnapshotWrite{
		ExpectedVersion: 0,
		Snapshot: engine.PremiumSnapshot{
			ID:       "snap-x",
			PolicyID: policy.ID,
			AsOf:     date(2024, time.March, 31),
		},
	}
	err := s.WriteSnapshot(ctx, write)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrVersionConflict)
	assert.True(t, engine.IsRetryable(err))

	// A fresh pipeline run reads the new version and succeeds.
	result, err := recalc.Recalculate(ctx, policy.ID, date(2024, time.March, 31), "MANUAL")
	require.NoError(t, err)
	assert.False(t, result.Skipped)
}
