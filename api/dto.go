/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Monetary amounts and weights are decimal strings, never floats. Dates
  are YYYY-MM-DD; timestamps are RFC 3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: The domain model these project
*/
package api

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	ID            string `json:"id"`
	PolicyNumber  string `json:"policy_number"`
	Customer      string `json:"customer"`
	CoverageLimit string `json:"coverage_limit"`
	PolicyClass   string `json:"policy_class,omitempty"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to"`
	RateLockUntil string `json:"rate_lock_until,omitempty"`
	Version       int64  `json:"version"`
}

// CreatePolicyRequest is the request to create a policy.
type CreatePolicyRequest struct {
	PolicyNumber  string `json:"policy_number"`
	Customer      string `json:"customer"`
	CoverageLimit string `json:"coverage_limit"`
	PolicyClass   string `json:"policy_class,omitempty"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to"`
	RateLockUntil string `json:"rate_lock_until,omitempty"`
}

// AddVehicleRequest enrolls a vehicle into a policy's fleet. If the VIN is
// already known the existing vehicle is reused; otherwise one is created.
type AddVehicleRequest struct {
	VIN           string `json:"vin"`
	MakeModel     string `json:"make_model"`
	PurchaseDate  string `json:"purchase_date"`
	RiskScore     int    `json:"risk_score"`
	UsageProfile  string `json:"usage_profile"`
	EffectiveFrom string `json:"effective_from"`
	EffectiveTo   string `json:"effective_to,omitempty"`
}

// RemoveVehicleRequest closes the vehicle's open membership interval.
type RemoveVehicleRequest struct {
	EffectiveTo string `json:"effective_to"`
}

// UpdateRiskRequest changes a vehicle's risk score.
type UpdateRiskRequest struct {
	RiskScore int `json:"risk_score"`
}

// VehicleDTO represents a vehicle in API responses.
type VehicleDTO struct {
	ID           string `json:"id"`
	VIN          string `json:"vin"`
	MakeModel    string `json:"make_model"`
	PurchaseDate string `json:"purchase_date"`
	RiskScore    int    `json:"risk_score"`
	UsageProfile string `json:"usage_profile"`
}

// SnapshotDTO represents a premium snapshot, including its owned shares
// and reinsurance allocations.
type SnapshotDTO struct {
	ID              string            `json:"id"`
	PolicyID        string            `json:"policy_id"`
	AsOf            string            `json:"as_of"`
	CalculatedAt    string            `json:"calculated_at"`
	TotalPremium    string            `json:"total_premium"`
	Trigger         string            `json:"trigger"`
	PreviousID      string            `json:"previous_id,omitempty"`
	RiskHash        string            `json:"risk_hash"`
	ExposureByMonth map[string]string `json:"exposure_by_month,omitempty"`
	Shares          []VehicleShareDTO `json:"shares,omitempty"`
	Allocations     []AllocationDTO   `json:"allocations,omitempty"`
}

// VehicleShareDTO is one vehicle's slice of a snapshot.
type VehicleShareDTO struct {
	VehicleID           string `json:"vehicle_id"`
	RiskScore           int    `json:"risk_score"`
	FleetPercentage     string `json:"fleet_percentage"`
	PremiumContribution string `json:"premium_contribution"`
	ExposureUnits       string `json:"exposure_units"`
	EffectiveFrom       string `json:"effective_from"`
	EffectiveTo         string `json:"effective_to,omitempty"`
}

// AllocationDTO is one reinsurance layer's fill for a snapshot.
type AllocationDTO struct {
	LayerName string `json:"layer_name"`
	Allocated string `json:"allocated"`
}

// LayerDTO represents a reinsurance layer band.
type LayerDTO struct {
	Name       string `json:"name"`
	LowerBound string `json:"lower_bound"`
	UpperBound string `json:"upper_bound"`
}

// AuditEntryDTO is one recalculation attempt record.
type AuditEntryDTO struct {
	ID        string `json:"id"`
	PolicyID  string `json:"policy_id"`
	Reason    string `json:"reason"`
	Trigger   string `json:"trigger"`
	CreatedAt string `json:"created_at"`
}

// EnqueueRecalcRequest submits a recalculation job.
type EnqueueRecalcRequest struct {
	PolicyID string `json:"policy_id"`
	AsOf     string `json:"as_of"`
	Trigger  string `json:"trigger,omitempty"`
}

// JobDTO represents a recalculation job's state.
type JobDTO struct {
	ID         string `json:"id"`
	PolicyID   string `json:"policy_id"`
	AsOf       string `json:"as_of"`
	Trigger    string `json:"trigger"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Attempts   int    `json:"attempts"`
	CreatedAt  string `json:"created_at"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// BootstrapResponse summarizes the demo fixture that was loaded.
type BootstrapResponse struct {
	PolicyID  string   `json:"policy_id"`
	Vehicles  int      `json:"vehicles"`
	Snapshots []string `json:"snapshots"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
