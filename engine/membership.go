/*
membership.go - Temporal membership resolution

PURPOSE:
  Given a policy and an as-of date, determine which vehicles are members
  of the fleet on that date and how many days of the snapshot period each
  one covers.

SNAPSHOT PERIOD:
  The snapshot period is the calendar month containing the as-of date,
  clipped to the policy's effective window. A vehicle's effective days are
  the overlap of its membership interval with that period (inclusive day
  count). Exposure units are effectiveDays / daysInMonth, accumulated per
  calendar month by the weighting step.

EMPTY FLEET:
  An empty result is a valid state (zero premium later in the pipeline),
  distinct from an unknown policy, which is ErrPolicyNotFound.
*/
package engine

import (
	"context"
	"sort"
	"time"
)

// ActiveMember is one vehicle active on the as-of date, with its coverage
// of the snapshot period.
type ActiveMember struct {
	Vehicle       Vehicle
	Membership    Membership
	EffectiveDays int
	DaysInMonth   int
}

// ResolveActiveMembers returns the policy and the vehicles whose membership
// interval covers asOf, ordered by vehicle ID. The ordering makes the risk
// hash and the share rows deterministic.
func ResolveActiveMembers(ctx context.Context, store FleetStore, policyID PolicyID, asOf time.Time) (*Policy, []ActiveMember, error) {
	policy, err := store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, nil, err
	}

	memberships, err := store.Memberships(ctx, policyID)
	if err != nil {
		return nil, nil, err
	}

	periodStart, periodEnd := snapshotPeriod(policy, asOf)
	daysInMonth := daysIn(asOf)

	var members []ActiveMember
	for _, m := range memberships {
		if !m.ActiveOn(asOf) {
			continue
		}
		vehicle, err := store.GetVehicle(ctx, m.VehicleID)
		if err != nil {
			return nil, nil, err
		}
		days := overlapDays(m, periodStart, periodEnd)
		if days < 0 {
			days = 0
		}
		members = append(members, ActiveMember{
			Vehicle:       *vehicle,
			Membership:    m,
			EffectiveDays: days,
			DaysInMonth:   daysInMonth,
		})
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].Vehicle.ID < members[j].Vehicle.ID
	})
	return policy, members, nil
}

// snapshotPeriod clips the calendar month of asOf to the policy window.
// Both bounds are inclusive days.
func snapshotPeriod(policy *Policy, asOf time.Time) (time.Time, time.Time) {
	start := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	if policy.EffectiveFrom.After(start) {
		start = day(policy.EffectiveFrom)
	}
	// Policy window is [From, To); the last covered day is To - 1.
	if !policy.EffectiveTo.IsZero() {
		lastDay := day(policy.EffectiveTo).AddDate(0, 0, -1)
		if lastDay.Before(end) {
			end = lastDay
		}
	}
	return start, end
}

// overlapDays counts the inclusive days the membership interval shares
// with [periodStart, periodEnd].
func overlapDays(m Membership, periodStart, periodEnd time.Time) int {
	from := day(m.EffectiveFrom)
	if periodStart.After(from) {
		from = periodStart
	}
	to := periodEnd
	if m.EffectiveTo != nil {
		// Membership interval is [From, To); last covered day is To - 1.
		lastDay := day(*m.EffectiveTo).AddDate(0, 0, -1)
		if lastDay.Before(to) {
			to = lastDay
		}
	}
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysIn(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

// MonthKey formats the month bucket used by the exposure map.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}
