package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/fleetsure/premium-engine/engine"
	"github.com/fleetsure/premium-engine/engine/store"
)

func resolve(t *testing.T, s *store.Memory, policyID engine.PolicyID, asOf time.Time) (*engine.Policy, []engine.ActiveMember) {
	t.Helper()
	policy, members, err := engine.ResolveActiveMembers(context.Background(), s, policyID, asOf)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return policy, members
}

func TestComputeRiskHash_StableAcrossRuns(t *testing.T) {
	s := store.NewMemory()
	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	seedVehicle(t, s, "v-2", 70, engine.UsageHighway)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)
	join(t, s, "pol-1", "v-2", policy.EffectiveFrom, nil)

	asOf := date(2024, time.March, 31)
	p1, m1 := resolve(t, s, policy.ID, asOf)
	p2, m2 := resolve(t, s, policy.ID, asOf)

	if engine.ComputeRiskHash(p1, asOf, m1) != engine.ComputeRiskHash(p2, asOf, m2) {
		t.Error("hash not stable for identical state")
	}
}

func TestComputeRiskHash_ChangesWithRiskScore(t *testing.T) {
	s := store.NewMemory()
	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)

	asOf := date(2024, time.March, 31)
	p, m := resolve(t, s, policy.ID, asOf)
	before := engine.ComputeRiskHash(p, asOf, m)

	seedVehicle(t, s, "v-1", 75, engine.UsageUrban) // upsert with new score
	p, m = resolve(t, s, policy.ID, asOf)
	after := engine.ComputeRiskHash(p, asOf, m)

	if before == after {
		t.Error("hash unchanged after risk score update")
	}
}

func TestComputeRiskHash_ChangesWithAsOf(t *testing.T) {
	s := store.NewMemory()
	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)

	marchP, marchM := resolve(t, s, policy.ID, date(2024, time.March, 31))
	aprilP, aprilM := resolve(t, s, policy.ID, date(2024, time.April, 30))

	march := engine.ComputeRiskHash(marchP, date(2024, time.March, 31), marchM)
	april := engine.ComputeRiskHash(aprilP, date(2024, time.April, 30), aprilM)

	if march == april {
		t.Error("hash should differ across as-of dates")
	}
}

func TestComputeRiskHash_ChangesWithMembershipInterval(t *testing.T) {
	s := store.NewMemory()
	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	m := join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)

	asOf := date(2024, time.March, 31)
	p, members := resolve(t, s, policy.ID, asOf)
	before := engine.ComputeRiskHash(p, asOf, members)

	// Closing the interval after asOf keeps the vehicle active but
	// changes the risk state.
	if err := s.CloseMembership(context.Background(), m.ID, date(2024, time.June, 1)); err != nil {
		t.Fatalf("close membership: %v", err)
	}
	p, members = resolve(t, s, policy.ID, asOf)
	after := engine.ComputeRiskHash(p, asOf, members)

	if before == after {
		t.Error("hash unchanged after membership interval change")
	}
}
