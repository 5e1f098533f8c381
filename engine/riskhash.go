/*
riskhash.go - Dirty-check content hash

PURPOSE:
  Computes a SHA-256 hash over everything that affects a recalculation's
  result: policy identity, as-of date, coverage limit, and the sorted list
  of active vehicles with their risk attributes and membership intervals.
  If the latest snapshot carries the same hash, the recalculation is a
  no-op and is skipped (a successful outcome, logged as such).
*/
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ComputeRiskHash builds the canonical risk vector and hashes it. Members
// must already be sorted by vehicle ID (the resolver guarantees this), so
// the hash is stable across runs.
func ComputeRiskHash(policy *Policy, asOf time.Time, members []ActiveMember) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s|%s|%s|", policy.ID, asOf.Format("2006-01-02"), policy.CoverageLimit.String())
	for _, m := range members {
		to := "open"
		if m.Membership.EffectiveTo != nil {
			to = m.Membership.EffectiveTo.Format("2006-01-02")
		}
		fmt.Fprintf(&sb, "%s:%d:%s:%s:%s;",
			m.Vehicle.ID,
			m.Vehicle.RiskScore,
			m.Vehicle.UsageProfile,
			m.Membership.EffectiveFrom.Format("2006-01-02"),
			to,
		)
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
