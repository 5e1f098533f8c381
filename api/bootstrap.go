/*
bootstrap.go - Demo fixture loader for testing and demonstrations

PURPOSE:

	Populates the store with a realistic demo fleet and drives six months
	of historical premium snapshots through the job coordinator, so a
	fresh environment has a full lineage to explore.

WHAT IT LOADS:
 1. Three reinsurance layers: Primary [0, 100k), Excess-1 [100k, 250k),
    Excess-2 [250k, 1e9)
 2. One policy: $1,000,000 coverage, effective calendar year 2024
 3. Ten trucks with risk scores 60-87, alternating URBAN/HIGHWAY usage;
    two of them join mid-year to demonstrate exposure proration
 4. Six monthly snapshots (Jan-Jun 2024), each computed by a
    recalculation job

WHY THROUGH THE COORDINATOR:

	Snapshots must be written one at a time per policy. Running each
	month as a job and waiting for it exercises the same serialization
	path production recalculations use.

NOTE:

	The fixture creates a new policy on every call. Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: Shared response helpers
  - jobs/coordinator.go: Job lifecycle the fixture drives
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetsure/premium-engine/engine"
	"github.com/fleetsure/premium-engine/jobs"
)

// =============================================================================
// FIXTURE DEFINITION
// =============================================================================

var bootstrapLayers = []engine.ReinsuranceLayer{
	{Name: "Primary", LowerBound: decimal.Zero, UpperBound: decimal.NewFromInt(100_000)},
	{Name: "Excess-1", LowerBound: decimal.NewFromInt(100_000), UpperBound: decimal.NewFromInt(250_000)},
	{Name: "Excess-2", LowerBound: decimal.NewFromInt(250_000), UpperBound: decimal.NewFromInt(1_000_000_000)},
}

// Bootstrap loads the demo fixture.
// POST /api/bootstrap
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	for _, layer := range bootstrapLayers {
		if err := h.Store.SaveLayer(ctx, layer); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save layer", err)
			return
		}
	}

	policy := engine.Policy{
		ID:            engine.PolicyID(uuid.NewString()),
		PolicyNumber:  fmt.Sprintf("FLT-2024-%s", uuid.NewString()[:8]),
		Customer:      "Meridian Freight Co",
		CoverageLimit: decimal.NewFromInt(1_000_000),
		EffectiveFrom: date(2024, time.January, 1),
		EffectiveTo:   date(2025, time.January, 1),
	}
	if err := h.Store.SavePolicy(ctx, policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}

	if err := h.seedFleet(ctx, policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed fleet", err)
		return
	}

	// Six monthly snapshots, one job each. Jobs for the same policy
	// coalesce, so each must finish before the next is submitted.
	// Month-end dates so mid-month joiners appear with prorated exposure.
	var snapshots []string
	for month := time.January; month <= time.June; month++ {
		asOf := date(2024, month+1, 1).AddDate(0, 0, -1)
		jobID, err := h.Jobs.Enqueue(ctx, policy.ID, asOf, fmt.Sprintf("BOOTSTRAP month=%s", asOf.Format("2006-01")))
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "Failed to enqueue bootstrap recalculation", err)
			return
		}
		job, err := h.waitForJob(ctx, jobID, 10*time.Second)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Bootstrap recalculation did not finish", err)
			return
		}
		if job.Status != jobs.StatusDone {
			writeError(w, http.StatusInternalServerError,
				fmt.Sprintf("Bootstrap recalculation failed: %s", job.Message), nil)
			return
		}
		snapshots = append(snapshots, asOf.Format(dateFormat))
	}

	writeJSON(w, http.StatusCreated, BootstrapResponse{
		PolicyID:  string(policy.ID),
		Vehicles:  10,
		Snapshots: snapshots,
	})
}

// seedFleet creates ten demo trucks and their memberships. Trucks 9 and
// 10 join mid-year so their first months show prorated exposure.
func (h *Handler) seedFleet(ctx context.Context, policy engine.Policy) error {
	for i := 0; i < 10; i++ {
		profile := engine.UsageUrban
		if i%2 == 1 {
			profile = engine.UsageHighway
		}

		vehicle := engine.Vehicle{
			ID:           engine.VehicleID(uuid.NewString()),
			VIN:          fmt.Sprintf("1FLTDEMO%08d", i+1),
			MakeModel:    fmt.Sprintf("Kenworth T680 #%d", i+1),
			PurchaseDate: date(2022, time.March, 15),
			RiskScore:    60 + i*3,
			UsageProfile: profile,
		}
		if err := h.Store.SaveVehicle(ctx, vehicle); err != nil {
			return err
		}

		joined := policy.EffectiveFrom
		switch i {
		case 8:
			joined = date(2024, time.February, 15)
		case 9:
			joined = date(2024, time.March, 15)
		}

		membership := engine.Membership{
			ID:            engine.MembershipID(uuid.NewString()),
			PolicyID:      policy.ID,
			VehicleID:     vehicle.ID,
			EffectiveFrom: joined,
		}
		if err := h.Store.AddMembership(ctx, membership); err != nil {
			return err
		}
	}
	return nil
}

// waitForJob polls until the job reaches a terminal status.
func (h *Handler) waitForJob(ctx context.Context, id jobs.JobID, timeout time.Duration) (jobs.Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := h.Jobs.GetJob(id)
		if err != nil {
			return jobs.Job{}, err
		}
		if job.Status == jobs.StatusDone || job.Status == jobs.StatusFailed {
			return job, nil
		}
		if time.Now().After(deadline) {
			return job, fmt.Errorf("job %s still %s after %s", id, job.Status, timeout)
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
