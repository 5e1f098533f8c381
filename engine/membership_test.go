package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/fleetsure/premium-engine/engine"
	"github.com/fleetsure/premium-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func seedPolicy(t *testing.T, s *store.Memory) engine.Policy {
	t.Helper()
	policy := engine.Policy{
		ID:            "pol-1",
		PolicyNumber:  "FLT-2024-001",
		Customer:      "Meridian Freight Co",
		CoverageLimit: money("1000000"),
		EffectiveFrom: date(2024, time.January, 1),
		EffectiveTo:   date(2025, time.January, 1),
	}
	if err := s.SavePolicy(context.Background(), policy); err != nil {
		t.Fatalf("save policy: %v", err)
	}
	return policy
}

func seedVehicle(t *testing.T, s *store.Memory, id string, riskScore int, profile engine.UsageProfile) engine.Vehicle {
	t.Helper()
	vehicle := engine.Vehicle{
		ID:           engine.VehicleID(id),
		VIN:          "VIN-" + id,
		MakeModel:    "Kenworth T680",
		PurchaseDate: date(2022, time.March, 15),
		RiskScore:    riskScore,
		UsageProfile: profile,
	}
	if err := s.SaveVehicle(context.Background(), vehicle); err != nil {
		t.Fatalf("save vehicle: %v", err)
	}
	return vehicle
}

func join(t *testing.T, s *store.Memory, policyID, vehicleID string, from time.Time, to *time.Time) engine.Membership {
	t.Helper()
	m := engine.Membership{
		ID:            engine.MembershipID("m-" + vehicleID + "-" + from.Format("20060102")),
		PolicyID:      engine.PolicyID(policyID),
		VehicleID:     engine.VehicleID(vehicleID),
		EffectiveFrom: from,
		EffectiveTo:   to,
	}
	if err := s.AddMembership(context.Background(), m); err != nil {
		t.Fatalf("add membership: %v", err)
	}
	return m
}

func datePtr(t time.Time) *time.Time { return &t }

// =============================================================================
// MEMBERSHIP RESOLUTION TESTS
// =============================================================================

func TestResolveActiveMembers_ExcludesClosedIntervals(t *testing.T) {
	// GIVEN: One open membership and one closed before the as-of date
	// THEN: Only the open one resolves

	s := store.NewMemory()
	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	seedVehicle(t, s, "v-2", 70, engine.UsageHighway)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)
	join(t, s, "pol-1", "v-2", policy.EffectiveFrom, datePtr(date(2024, time.March, 1)))

	_, members, err := engine.ResolveActiveMembers(context.Background(), s, policy.ID, date(2024, time.March, 31))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(members) != 1 || members[0].Vehicle.ID != "v-1" {
		t.Fatalf("expected only v-1 active, got %+v", members)
	}
}

func TestResolveActiveMembers_ProratesMidMonthJoin(t *testing.T) {
	// GIVEN: One truck since inception, one joining March 15
	// WHEN: Resolving as of March 31
	// THEN: Full-month truck covers 31 days, the joiner 17

	s := store.NewMemory()
	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	seedVehicle(t, s, "v-2", 70, engine.UsageHighway)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, nil)
	join(t, s, "pol-1", "v-2", date(2024, time.March, 15), nil)

	_, members, err := engine.ResolveActiveMembers(context.Background(), s, policy.ID, date(2024, time.March, 31))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	// Sorted by vehicle ID.
	if members[0].EffectiveDays != 31 || members[0].DaysInMonth != 31 {
		t.Errorf("v-1: %d/%d days, want 31/31", members[0].EffectiveDays, members[0].DaysInMonth)
	}
	if members[1].EffectiveDays != 17 {
		t.Errorf("v-2: %d days, want 17", members[1].EffectiveDays)
	}
}

func TestResolveActiveMembers_ClipsToPolicyWindow(t *testing.T) {
	// GIVEN: The policy ends June 15 but the membership stays open
	// WHEN: Resolving as of June 10
	// THEN: The period ends on the policy's last covered day (June 14)

	s := store.NewMemory()
	policy := engine.Policy{
		ID:            "pol-2",
		PolicyNumber:  "FLT-2024-002",
		Customer:      "Meridian Freight Co",
		CoverageLimit: money("1000000"),
		EffectiveFrom: date(2024, time.January, 1),
		EffectiveTo:   date(2024, time.June, 15),
	}
	if err := s.SavePolicy(context.Background(), policy); err != nil {
		t.Fatalf("save policy: %v", err)
	}
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	join(t, s, "pol-2", "v-1", policy.EffectiveFrom, nil)

	_, members, err := engine.ResolveActiveMembers(context.Background(), s, policy.ID, date(2024, time.June, 10))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	// June 1 through June 14 inclusive.
	if members[0].EffectiveDays != 14 {
		t.Errorf("effective days %d, want 14", members[0].EffectiveDays)
	}
}

func TestResolveActiveMembers_RejoinUsesCurrentInterval(t *testing.T) {
	// GIVEN: A vehicle that left in February and rejoined in April
	// WHEN: Resolving as of April 20
	// THEN: The April interval resolves, not the closed one

	s := store.NewMemory()
	policy := seedPolicy(t, s)
	seedVehicle(t, s, "v-1", 60, engine.UsageUrban)
	join(t, s, "pol-1", "v-1", policy.EffectiveFrom, datePtr(date(2024, time.February, 1)))
	join(t, s, "pol-1", "v-1", date(2024, time.April, 10), nil)

	_, members, err := engine.ResolveActiveMembers(context.Background(), s, policy.ID, date(2024, time.April, 20))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	if !members[0].Membership.EffectiveFrom.Equal(date(2024, time.April, 10)) {
		t.Errorf("resolved interval from %s, want 2024-04-10", members[0].Membership.EffectiveFrom)
	}
	// April 10 through April 30 inclusive.
	if members[0].EffectiveDays != 21 {
		t.Errorf("effective days %d, want 21", members[0].EffectiveDays)
	}
}

func TestResolveActiveMembers_UnknownPolicy(t *testing.T) {
	s := store.NewMemory()
	_, _, err := engine.ResolveActiveMembers(context.Background(), s, "nope", date(2024, time.March, 31))
	if !engine.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestResolveActiveMembers_EmptyFleetIsValid(t *testing.T) {
	s := store.NewMemory()
	policy := seedPolicy(t, s)

	_, members, err := engine.ResolveActiveMembers(context.Background(), s, policy.ID, date(2024, time.March, 31))
	if err != nil {
		t.Fatalf("empty fleet should not error: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("expected empty fleet, got %d members", len(members))
	}
}
