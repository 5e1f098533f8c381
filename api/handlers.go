/*
handlers.go - HTTP API handlers for the premium recalculation engine

PURPOSE:
  Exposes the recalculation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Policies:
    POST   /api/policies                       Create policy
    GET    /api/policies/{id}                  Get policy details
    GET    /api/policies/{id}/snapshots        Snapshot lineage, oldest first
    GET    /api/policies/{id}/snapshots/latest Latest snapshot with details
    GET    /api/policies/{id}/audit            Audit trail

  Fleet:
    POST   /api/policies/{id}/vehicles              Enroll a vehicle
    DELETE /api/policies/{id}/vehicles/{vehicleID}  Close an open membership
    GET    /api/vehicles/{id}                       Get vehicle details
    POST   /api/vehicles/{id}/risk                  Update risk score

  Recalculations:
    POST   /api/recalculations       Submit a recalculation job
    GET    /api/recalculations/{id}  Job status
    DELETE /api/recalculations/{id}  Cancel a queued job

  Config:
    GET    /api/layers    Reinsurance layer bands
    POST   /api/bootstrap Load the demo fixture (see bootstrap.go)

SIDE EFFECTS:
  Fleet mutations (enroll, remove, risk update) enqueue recalculation
  jobs rather than recalculating inline, so the HTTP response returns
  immediately and per-policy serialization stays with the coordinator.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (version, overlap, non-cancelable job)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - bootstrap.go: Demo fixture loader
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fleetsure/premium-engine/engine"
	"github.com/fleetsure/premium-engine/jobs"
)

const dateFormat = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store engine.Store
	Jobs  *jobs.Coordinator
}

// NewHandler creates a new handler over the given store and coordinator.
func NewHandler(store engine.Store, coordinator *jobs.Coordinator) *Handler {
	return &Handler{Store: store, Jobs: coordinator}
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// CreatePolicy creates a new policy.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PolicyNumber == "" || req.Customer == "" {
		writeError(w, http.StatusBadRequest, "policy_number and customer are required", nil)
		return
	}

	coverage, err := parseAmount(req.CoverageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid coverage_limit", err)
		return
	}
	from, err := time.Parse(dateFormat, req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.Parse(dateFormat, req.EffectiveTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_to (use YYYY-MM-DD)", err)
		return
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "effective_to must be after effective_from", nil)
		return
	}

	policy := engine.Policy{
		ID:            engine.PolicyID(uuid.NewString()),
		PolicyNumber:  req.PolicyNumber,
		Customer:      req.Customer,
		CoverageLimit: coverage,
		PolicyClass:   req.PolicyClass,
		EffectiveFrom: from,
		EffectiveTo:   to,
	}
	if req.RateLockUntil != "" {
		lock, err := time.Parse(dateFormat, req.RateLockUntil)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid rate_lock_until (use YYYY-MM-DD)", err)
			return
		}
		policy.RateLockUntil = &lock
	}

	if err := h.Store.SavePolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, policyDTO(policy))
}

// GetPolicy returns a single policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Store.GetPolicy(r.Context(), engine.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, policyDTO(*policy))
}

// ListSnapshots returns the policy's snapshot lineage, oldest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	policyID := engine.PolicyID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetPolicy(r.Context(), policyID); err != nil {
		writeDomainError(w, "Failed to get policy", err)
		return
	}

	snaps, err := h.Store.SnapshotHistory(r.Context(), policyID)
	if err != nil {
		writeDomainError(w, "Failed to list snapshots", err)
		return
	}

	dtos := make([]SnapshotDTO, 0, len(snaps))
	for _, snap := range snaps {
		dtos = append(dtos, snapshotDTO(snap))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LatestSnapshot returns the most recent snapshot with its shares and
// reinsurance allocations.
func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := engine.PolicyID(chi.URLParam(r, "id"))

	snap, err := h.Store.LatestSnapshot(ctx, policyID)
	if err != nil {
		writeDomainError(w, "Failed to get latest snapshot", err)
		return
	}

	dto := snapshotDTO(*snap)
	shares, err := h.Store.Shares(ctx, snap.ID)
	if err != nil {
		writeDomainError(w, "Failed to get vehicle shares", err)
		return
	}
	for _, share := range shares {
		dto.Shares = append(dto.Shares, shareDTO(share))
	}

	allocations, err := h.Store.Allocations(ctx, snap.ID)
	if err != nil {
		writeDomainError(w, "Failed to get allocations", err)
		return
	}
	for _, alloc := range allocations {
		dto.Allocations = append(dto.Allocations, AllocationDTO{
			LayerName: alloc.LayerName,
			Allocated: alloc.Allocated.String(),
		})
	}

	writeJSON(w, http.StatusOK, dto)
}

// GetAuditTrail returns the policy's audit entries, oldest first.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	policyID := engine.PolicyID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetPolicy(r.Context(), policyID); err != nil {
		writeDomainError(w, "Failed to get policy", err)
		return
	}

	entries, err := h.Store.AuditTrail(r.Context(), policyID)
	if err != nil {
		writeDomainError(w, "Failed to get audit trail", err)
		return
	}

	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, AuditEntryDTO{
			ID:        e.ID,
			PolicyID:  string(e.PolicyID),
			Reason:    e.Reason,
			Trigger:   e.Trigger,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FLEET HANDLERS
// =============================================================================

// AddVehicle enrolls a vehicle into a policy's fleet and enqueues a
// recalculation. A known VIN reuses the existing vehicle record.
func (h *Handler) AddVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := engine.PolicyID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetPolicy(ctx, policyID); err != nil {
		writeDomainError(w, "Failed to get policy", err)
		return
	}

	var req AddVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.VIN == "" {
		writeError(w, http.StatusBadRequest, "vin is required", nil)
		return
	}
	if req.RiskScore < 0 || req.RiskScore > 100 {
		writeError(w, http.StatusBadRequest, "risk_score must be within [0,100]", nil)
		return
	}
	from, err := time.Parse(dateFormat, req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}
	var to *time.Time
	if req.EffectiveTo != "" {
		t, err := time.Parse(dateFormat, req.EffectiveTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_to (use YYYY-MM-DD)", err)
			return
		}
		to = &t
	}

	vehicle, err := h.Store.GetVehicleByVIN(ctx, req.VIN)
	if errors.Is(err, engine.ErrVehicleNotFound) {
		purchase, perr := time.Parse(dateFormat, req.PurchaseDate)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid purchase_date (use YYYY-MM-DD)", perr)
			return
		}
		vehicle = &engine.Vehicle{
			ID:           engine.VehicleID(uuid.NewString()),
			VIN:          req.VIN,
			MakeModel:    req.MakeModel,
			PurchaseDate: purchase,
			RiskScore:    req.RiskScore,
			UsageProfile: engine.UsageProfile(req.UsageProfile),
		}
		if err := h.Store.SaveVehicle(ctx, *vehicle); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create vehicle", err)
			return
		}
	} else if err != nil {
		writeDomainError(w, "Failed to look up vehicle", err)
		return
	}

	membership := engine.Membership{
		ID:            engine.MembershipID(uuid.NewString()),
		PolicyID:      policyID,
		VehicleID:     vehicle.ID,
		EffectiveFrom: from,
		EffectiveTo:   to,
	}
	if err := h.Store.AddMembership(ctx, membership); err != nil {
		if errors.Is(err, engine.ErrMembershipOverlap) {
			writeError(w, http.StatusConflict, "Vehicle already has an overlapping membership", err)
			return
		}
		writeDomainError(w, "Failed to add membership", err)
		return
	}

	jobID, err := h.Jobs.Enqueue(ctx, policyID, today(),
		fmt.Sprintf("VEHICLE_ADDED vin=%s", vehicle.VIN))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to enqueue recalculation", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"vehicle":       vehicleDTO(*vehicle),
		"membership_id": string(membership.ID),
		"job_id":        string(jobID),
	})
}

// RemoveVehicle closes the vehicle's open membership interval and
// enqueues a recalculation.
func (h *Handler) RemoveVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := engine.PolicyID(chi.URLParam(r, "id"))
	vehicleID := engine.VehicleID(chi.URLParam(r, "vehicleID"))

	var req RemoveVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	to, err := time.Parse(dateFormat, req.EffectiveTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_to (use YYYY-MM-DD)", err)
		return
	}

	memberships, err := h.Store.Memberships(ctx, policyID)
	if err != nil {
		writeDomainError(w, "Failed to list memberships", err)
		return
	}

	var open *engine.Membership
	for i := range memberships {
		m := memberships[i]
		if m.VehicleID == vehicleID && m.EffectiveTo == nil {
			open = &m
			break
		}
	}
	if open == nil {
		writeError(w, http.StatusNotFound, "No open membership for vehicle on policy", nil)
		return
	}

	if err := h.Store.CloseMembership(ctx, open.ID, to); err != nil {
		writeDomainError(w, "Failed to close membership", err)
		return
	}

	jobID, err := h.Jobs.Enqueue(ctx, policyID, today(),
		fmt.Sprintf("VEHICLE_REMOVED vehicle=%s", vehicleID))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to enqueue recalculation", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"membership_id": string(open.ID),
		"effective_to":  to.Format(dateFormat),
		"job_id":        string(jobID),
	})
}

// GetVehicle returns a single vehicle.
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.Store.GetVehicle(r.Context(), engine.VehicleID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get vehicle", err)
		return
	}
	writeJSON(w, http.StatusOK, vehicleDTO(*vehicle))
}

// UpdateRiskScore changes a vehicle's risk score and enqueues a
// recalculation for every policy the vehicle is currently a member of.
func (h *Handler) UpdateRiskScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicleID := engine.VehicleID(chi.URLParam(r, "id"))

	var req UpdateRiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RiskScore < 0 || req.RiskScore > 100 {
		writeError(w, http.StatusBadRequest, "risk_score must be within [0,100]", nil)
		return
	}

	vehicle, err := h.Store.GetVehicle(ctx, vehicleID)
	if err != nil {
		writeDomainError(w, "Failed to get vehicle", err)
		return
	}

	vehicle.RiskScore = req.RiskScore
	if err := h.Store.SaveVehicle(ctx, *vehicle); err != nil {
		writeDomainError(w, "Failed to update vehicle", err)
		return
	}

	memberships, err := h.Store.MembershipsByVehicle(ctx, vehicleID)
	if err != nil {
		writeDomainError(w, "Failed to list memberships", err)
		return
	}

	asOf := today()
	trigger := fmt.Sprintf("RISK_SCORE_UPDATED vehicle=%s", vehicleID)
	jobIDs := make([]string, 0, 1)
	seen := make(map[engine.PolicyID]bool)
	for _, m := range memberships {
		if !m.ActiveOn(asOf) || seen[m.PolicyID] {
			continue
		}
		seen[m.PolicyID] = true
		jobID, err := h.Jobs.Enqueue(ctx, m.PolicyID, asOf, trigger)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "Failed to enqueue recalculation", err)
			return
		}
		jobIDs = append(jobIDs, string(jobID))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"vehicle": vehicleDTO(*vehicle),
		"job_ids": jobIDs,
	})
}

// =============================================================================
// RECALCULATION HANDLERS
// =============================================================================

// EnqueueRecalculation submits an explicit recalculation job.
func (h *Handler) EnqueueRecalculation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req EnqueueRecalcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	policyID := engine.PolicyID(req.PolicyID)
	if _, err := h.Store.GetPolicy(ctx, policyID); err != nil {
		writeDomainError(w, "Failed to get policy", err)
		return
	}

	asOf := today()
	if req.AsOf != "" {
		parsed, err := time.Parse(dateFormat, req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of (use YYYY-MM-DD)", err)
			return
		}
		asOf = parsed
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "MANUAL"
	}

	jobID, err := h.Jobs.Enqueue(ctx, policyID, asOf, trigger)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to enqueue recalculation", err)
		return
	}

	job, err := h.Jobs.GetJob(jobID)
	if err != nil {
		writeDomainError(w, "Failed to get job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobDTO(job))
}

// GetRecalculation returns a job's status.
func (h *Handler) GetRecalculation(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.GetJob(jobs.JobID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get job", err)
		return
	}
	writeJSON(w, http.StatusOK, jobDTO(job))
}

// CancelRecalculation cancels a job that has not started yet.
func (h *Handler) CancelRecalculation(w http.ResponseWriter, r *http.Request) {
	id := jobs.JobID(chi.URLParam(r, "id"))
	if err := h.Jobs.Cancel(id); err != nil {
		if engine.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Job not found", err)
			return
		}
		writeError(w, http.StatusConflict, "Job cannot be canceled", err)
		return
	}

	job, err := h.Jobs.GetJob(id)
	if err != nil {
		writeDomainError(w, "Failed to get job", err)
		return
	}
	writeJSON(w, http.StatusOK, jobDTO(job))
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

// ListLayers returns the reinsurance layer bands, ordered by lower bound.
func (h *Handler) ListLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := h.Store.Layers(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list layers", err)
		return
	}

	dtos := make([]LayerDTO, 0, len(layers))
	for _, l := range layers {
		dtos = append(dtos, LayerDTO{
			Name:       l.Name,
			LowerBound: l.LowerBound.String(),
			UpperBound: l.UpperBound.String(),
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func policyDTO(p engine.Policy) PolicyDTO {
	dto := PolicyDTO{
		ID:            string(p.ID),
		PolicyNumber:  p.PolicyNumber,
		Customer:      p.Customer,
		CoverageLimit: p.CoverageLimit.String(),
		PolicyClass:   p.PolicyClass,
		EffectiveFrom: p.EffectiveFrom.Format(dateFormat),
		EffectiveTo:   p.EffectiveTo.Format(dateFormat),
		Version:       p.Version,
	}
	if p.RateLockUntil != nil {
		dto.RateLockUntil = p.RateLockUntil.Format(dateFormat)
	}
	return dto
}

func vehicleDTO(v engine.Vehicle) VehicleDTO {
	return VehicleDTO{
		ID:           string(v.ID),
		VIN:          v.VIN,
		MakeModel:    v.MakeModel,
		PurchaseDate: v.PurchaseDate.Format(dateFormat),
		RiskScore:    v.RiskScore,
		UsageProfile: string(v.UsageProfile),
	}
}

func snapshotDTO(s engine.PremiumSnapshot) SnapshotDTO {
	dto := SnapshotDTO{
		ID:           string(s.ID),
		PolicyID:     string(s.PolicyID),
		AsOf:         s.AsOf.Format(dateFormat),
		CalculatedAt: s.CalculatedAt.Format(time.RFC3339),
		TotalPremium: s.TotalPremium.String(),
		Trigger:      s.Trigger,
		RiskHash:     s.RiskHash,
	}
	if s.PreviousID != nil {
		dto.PreviousID = string(*s.PreviousID)
	}
	if len(s.ExposureByMonth) > 0 {
		dto.ExposureByMonth = make(map[string]string, len(s.ExposureByMonth))
		for month, units := range s.ExposureByMonth {
			dto.ExposureByMonth[month] = units.String()
		}
	}
	return dto
}

func shareDTO(s engine.VehicleShare) VehicleShareDTO {
	dto := VehicleShareDTO{
		VehicleID:           string(s.VehicleID),
		RiskScore:           s.RiskScore,
		FleetPercentage:     s.FleetPercentage.String(),
		PremiumContribution: s.PremiumContribution.String(),
		ExposureUnits:       s.ExposureUnits.String(),
		EffectiveFrom:       s.EffectiveFrom.Format(dateFormat),
	}
	if s.EffectiveTo != nil {
		dto.EffectiveTo = s.EffectiveTo.Format(dateFormat)
	}
	return dto
}

func jobDTO(j jobs.Job) JobDTO {
	dto := JobDTO{
		ID:        string(j.ID),
		PolicyID:  string(j.PolicyID),
		AsOf:      j.AsOf.Format(dateFormat),
		Trigger:   j.Trigger,
		Status:    string(j.Status),
		Message:   j.Message,
		Attempts:  j.Attempts,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		dto.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.FinishedAt != nil {
		dto.FinishedAt = j.FinishedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the engine error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, engine.ErrVersionConflict):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount must not be negative")
	}
	return d, nil
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
