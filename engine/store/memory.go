// Package store provides engine.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetsure/premium-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.Store with maps and slices guarded by a mutex.
// WriteSnapshot honors the same optimistic-concurrency contract as the
// SQLite store: the policy version is compared and bumped atomically.
type Memory struct {
	mu          sync.RWMutex
	policies    map[engine.PolicyID]engine.Policy
	vehicles    map[engine.VehicleID]engine.Vehicle
	memberships []engine.Membership
	layers      []engine.ReinsuranceLayer
	snapshots   map[engine.PolicyID][]engine.PremiumSnapshot
	shares      map[engine.SnapshotID][]engine.VehicleShare
	allocations map[engine.SnapshotID][]engine.SnapshotAllocation
	audit       map[engine.PolicyID][]engine.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		policies:    make(map[engine.PolicyID]engine.Policy),
		vehicles:    make(map[engine.VehicleID]engine.Vehicle),
		snapshots:   make(map[engine.PolicyID][]engine.PremiumSnapshot),
		shares:      make(map[engine.SnapshotID][]engine.VehicleShare),
		allocations: make(map[engine.SnapshotID][]engine.SnapshotAllocation),
		audit:       make(map[engine.PolicyID][]engine.AuditEntry),
	}
}

// =============================================================================
// FLEET STORE
// =============================================================================

func (m *Memory) GetPolicy(_ context.Context, id engine.PolicyID) (*engine.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.policies[id]
	if !ok {
		return nil, engine.ErrPolicyNotFound
	}
	return &p, nil
}

func (m *Memory) SavePolicy(_ context.Context, p engine.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.ID] = p
	return nil
}

func (m *Memory) GetVehicle(_ context.Context, id engine.VehicleID) (*engine.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vehicles[id]
	if !ok {
		return nil, engine.ErrVehicleNotFound
	}
	return &v, nil
}

func (m *Memory) GetVehicleByVIN(_ context.Context, vin string) (*engine.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.vehicles {
		if v.VIN == vin {
			vv := v
			return &vv, nil
		}
	}
	return nil, engine.ErrVehicleNotFound
}

func (m *Memory) SaveVehicle(_ context.Context, v engine.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = v
	return nil
}

func (m *Memory) Memberships(_ context.Context, policyID engine.PolicyID) ([]engine.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Membership
	for _, ms := range m.memberships {
		if ms.PolicyID == policyID {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VehicleID != out[j].VehicleID {
			return out[i].VehicleID < out[j].VehicleID
		}
		return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
	})
	return out, nil
}

func (m *Memory) MembershipsByVehicle(_ context.Context, vehicleID engine.VehicleID) ([]engine.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Membership
	for _, ms := range m.memberships {
		if ms.VehicleID == vehicleID {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (m *Memory) AddMembership(_ context.Context, add engine.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ms := range m.memberships {
		if ms.PolicyID != add.PolicyID || ms.VehicleID != add.VehicleID {
			continue
		}
		if intervalsOverlap(ms, add) {
			return &engine.MembershipOverlapError{
				PolicyID:  add.PolicyID,
				VehicleID: add.VehicleID,
				From:      add.EffectiveFrom,
				To:        add.EffectiveTo,
			}
		}
	}
	m.memberships = append(m.memberships, add)
	return nil
}

func (m *Memory) CloseMembership(_ context.Context, id engine.MembershipID, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, ms := range m.memberships {
		if ms.ID == id {
			t := to
			m.memberships[i].EffectiveTo = &t
			return nil
		}
	}
	return engine.ErrMembershipNotFound
}

func (m *Memory) Layers(_ context.Context) ([]engine.ReinsuranceLayer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.ReinsuranceLayer, len(m.layers))
	copy(out, m.layers)
	sort.Slice(out, func(i, j int) bool {
		return out[i].LowerBound.LessThan(out[j].LowerBound)
	})
	return out, nil
}

func (m *Memory) SaveLayer(_ context.Context, l engine.ReinsuranceLayer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.layers {
		if existing.Name == l.Name {
			m.layers[i] = l
			return nil
		}
	}
	m.layers = append(m.layers, l)
	return nil
}

// intervalsOverlap checks two [From, To) intervals for intersection.
func intervalsOverlap(a, b engine.Membership) bool {
	aEndsBeforeB := a.EffectiveTo != nil && !a.EffectiveTo.After(b.EffectiveFrom)
	bEndsBeforeA := b.EffectiveTo != nil && !b.EffectiveTo.After(a.EffectiveFrom)
	return !aEndsBeforeB && !bEndsBeforeA
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

func (m *Memory) LatestSnapshot(_ context.Context, policyID engine.PolicyID) (*engine.PremiumSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLocked(policyID)
}

func (m *Memory) latestLocked(policyID engine.PolicyID) (*engine.PremiumSnapshot, error) {
	snaps := m.snapshots[policyID]
	if len(snaps) == 0 {
		return nil, engine.ErrSnapshotNotFound
	}
	// Latest by AsOf; insertion order breaks ties.
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if !s.AsOf.Before(latest.AsOf) {
			latest = s
		}
	}
	return &latest, nil
}

func (m *Memory) SnapshotHistory(_ context.Context, policyID engine.PolicyID) ([]engine.PremiumSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots[policyID]
	out := make([]engine.PremiumSnapshot, len(snaps))
	copy(out, snaps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AsOf.Before(out[j].AsOf)
	})
	return out, nil
}

func (m *Memory) Shares(_ context.Context, id engine.SnapshotID) ([]engine.VehicleShare, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.VehicleShare, len(m.shares[id]))
	copy(out, m.shares[id])
	return out, nil
}

func (m *Memory) Allocations(_ context.Context, id engine.SnapshotID) ([]engine.SnapshotAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.SnapshotAllocation, len(m.allocations[id]))
	copy(out, m.allocations[id])
	return out, nil
}

// WriteSnapshot applies the whole write under one lock acquisition, which
// gives the same all-or-nothing and compare-and-swap semantics the SQLite
// store gets from a database transaction.
func (m *Memory) WriteSnapshot(_ context.Context, w engine.SnapshotWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	policy, ok := m.policies[w.Snapshot.PolicyID]
	if !ok {
		return engine.ErrPolicyNotFound
	}
	if policy.Version != w.ExpectedVersion {
		return &engine.VersionConflictError{
			PolicyID: policy.ID,
			Expected: w.ExpectedVersion,
			Actual:   policy.Version,
		}
	}

	m.snapshots[w.Snapshot.PolicyID] = append(m.snapshots[w.Snapshot.PolicyID], w.Snapshot)
	m.shares[w.Snapshot.ID] = append([]engine.VehicleShare(nil), w.Shares...)
	m.allocations[w.Snapshot.ID] = append([]engine.SnapshotAllocation(nil), w.Allocations...)
	m.audit[w.Audit.PolicyID] = append(m.audit[w.Audit.PolicyID], w.Audit)

	policy.Version++
	m.policies[policy.ID] = policy
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e engine.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit[e.PolicyID] = append(m.audit[e.PolicyID], e)
	return nil
}

func (m *Memory) AuditTrail(_ context.Context, policyID engine.PolicyID) ([]engine.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]engine.AuditEntry, len(m.audit[policyID]))
	copy(out, m.audit[policyID])
	return out, nil
}
