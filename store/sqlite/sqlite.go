/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Implements the fleet, snapshot and audit persistence interfaces using
  SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  Snapshots, vehicle shares, reinsurance allocations and audit entries
  are insert-only: no UPDATE or DELETE statements exist for those tables.
  The only mutation the engine performs is the policy version bump inside
  WriteSnapshot's transaction.

OPTIMISTIC CONCURRENCY:
  WriteSnapshot re-reads the policy version inside its transaction and
  bumps it with a guarded UPDATE:

    UPDATE policies SET version = version + 1 WHERE id = ? AND version = ?

  Zero affected rows means another writer won the race; the whole write
  rolls back with ErrVersionConflict and the job coordinator retries.

KEY TABLES:
  policies, vehicles:     Mutable fleet entities (versioned)
  memberships:            Temporal policy-vehicle intervals
  reinsurance_layers:     Static waterfall bands
  snapshots:              Immutable premium snapshot lineage
  vehicle_shares:         Per-snapshot vehicle slices
  snapshot_allocations:   Per-snapshot layer fills
  audit_entries:          Append-only attempt trail

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers don't block
  the single writer, plus foreign keys on.

USAGE:
  store, err := sqlite.New("./data/fleet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions and the WriteSnapshot contract
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fleetsure/premium-engine/engine"
)

const dateFormat = "2006-01-02"

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each pool connection to :memory: is a distinct empty database, so the
	// pool must never grow past the connection that ran the migration.
	if strings.Contains(dbPath, ":memory:") || strings.Contains(dbPath, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Policies (shared mutable root; version is the concurrency token)
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		policy_number TEXT NOT NULL UNIQUE,
		customer TEXT NOT NULL,
		coverage_limit TEXT NOT NULL,
		policy_class TEXT NOT NULL DEFAULT '',
		effective_from TEXT NOT NULL,
		effective_to TEXT NOT NULL,
		rate_lock_until TEXT,
		version INTEGER NOT NULL DEFAULT 0
	);

	-- Vehicles
	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		vin TEXT NOT NULL UNIQUE,
		make_model TEXT NOT NULL,
		purchase_date TEXT NOT NULL,
		risk_score INTEGER NOT NULL,
		usage_profile TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0
	);

	-- Temporal memberships; open intervals have NULL effective_to
	CREATE TABLE IF NOT EXISTS memberships (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_policy
		ON memberships(policy_id, vehicle_id, effective_from);
	CREATE INDEX IF NOT EXISTS idx_memberships_vehicle
		ON memberships(vehicle_id);

	-- Static reinsurance bands
	CREATE TABLE IF NOT EXISTS reinsurance_layers (
		name TEXT PRIMARY KEY,
		lower_bound TEXT NOT NULL,
		upper_bound TEXT NOT NULL
	);

	-- Snapshot lineage (append-only)
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		as_of TEXT NOT NULL,
		calculated_at TEXT NOT NULL,
		total_premium TEXT NOT NULL,
		calc_trigger TEXT NOT NULL,
		previous_id TEXT,
		risk_hash TEXT NOT NULL,
		exposure_json TEXT NOT NULL
	);

	-- Hot path: latest snapshot per policy
	CREATE INDEX IF NOT EXISTS idx_snapshots_policy_asof
		ON snapshots(policy_id, as_of DESC, calculated_at DESC);

	-- Per-snapshot vehicle slices (append-only, owned by snapshot)
	CREATE TABLE IF NOT EXISTS vehicle_shares (
		snapshot_id TEXT NOT NULL,
		vehicle_id TEXT NOT NULL,
		risk_score INTEGER NOT NULL,
		fleet_percentage TEXT NOT NULL,
		premium_contribution TEXT NOT NULL,
		exposure_units TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		PRIMARY KEY (snapshot_id, vehicle_id)
	);

	-- Per-snapshot layer fills (append-only, owned by snapshot)
	CREATE TABLE IF NOT EXISTS snapshot_allocations (
		snapshot_id TEXT NOT NULL,
		layer_name TEXT NOT NULL,
		allocated TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, layer_name)
	);

	-- Append-only attempt trail
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		calc_trigger TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_policy
		ON audit_entries(policy_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// FLEET STORE - Policies
// =============================================================================

func (s *Store) GetPolicy(ctx context.Context, id engine.PolicyID) (*engine.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p             engine.Policy
		coverageLimit string
		from, to      string
		rateLock      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, policy_number, customer, coverage_limit, policy_class,
		       effective_from, effective_to, rate_lock_until, version
		FROM policies WHERE id = ?`, id,
	).Scan(&p.ID, &p.PolicyNumber, &p.Customer, &coverageLimit, &p.PolicyClass,
		&from, &to, &rateLock, &p.Version)
	if err == sql.ErrNoRows {
		return nil, engine.ErrPolicyNotFound
	}
	if err != nil {
		return nil, persistErr(err)
	}

	p.CoverageLimit = engine.MustParseDecimal(coverageLimit)
	p.EffectiveFrom, _ = time.Parse(dateFormat, from)
	p.EffectiveTo, _ = time.Parse(dateFormat, to)
	if rateLock.Valid {
		t, _ := time.Parse(dateFormat, rateLock.String)
		p.RateLockUntil = &t
	}
	return &p, nil
}

func (s *Store) SavePolicy(ctx context.Context, p engine.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policies
		(id, policy_number, customer, coverage_limit, policy_class,
		 effective_from, effective_to, rate_lock_until, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			policy_number = excluded.policy_number,
			customer = excluded.customer,
			coverage_limit = excluded.coverage_limit,
			policy_class = excluded.policy_class,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			rate_lock_until = excluded.rate_lock_until`,
		p.ID, p.PolicyNumber, p.Customer, p.CoverageLimit.String(), p.PolicyClass,
		p.EffectiveFrom.Format(dateFormat), p.EffectiveTo.Format(dateFormat),
		nullDate(p.RateLockUntil), p.Version,
	)
	if err != nil {
		return persistErr(err)
	}
	return nil
}

// =============================================================================
// FLEET STORE - Vehicles
// =============================================================================

func (s *Store) GetVehicle(ctx context.Context, id engine.VehicleID) (*engine.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanVehicle(s.db.QueryRowContext(ctx,
		`SELECT id, vin, make_model, purchase_date, risk_score, usage_profile, version
		 FROM vehicles WHERE id = ?`, id))
}

func (s *Store) GetVehicleByVIN(ctx context.Context, vin string) (*engine.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scanVehicle(s.db.QueryRowContext(ctx,
		`SELECT id, vin, make_model, purchase_date, risk_score, usage_profile, version
		 FROM vehicles WHERE vin = ?`, vin))
}

func scanVehicle(row *sql.Row) (*engine.Vehicle, error) {
	var (
		v            engine.Vehicle
		purchaseDate string
	)
	err := row.Scan(&v.ID, &v.VIN, &v.MakeModel, &purchaseDate,
		&v.RiskScore, &v.UsageProfile, &v.Version)
	if err == sql.ErrNoRows {
		return nil, engine.ErrVehicleNotFound
	}
	if err != nil {
		return nil, persistErr(err)
	}
	v.PurchaseDate, _ = time.Parse(dateFormat, purchaseDate)
	return &v, nil
}

func (s *Store) SaveVehicle(ctx context.Context, v engine.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles
		(id, vin, make_model, purchase_date, risk_score, usage_profile, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			make_model = excluded.make_model,
			purchase_date = excluded.purchase_date,
			risk_score = excluded.risk_score,
			usage_profile = excluded.usage_profile,
			version = vehicles.version + 1`,
		v.ID, v.VIN, v.MakeModel, v.PurchaseDate.Format(dateFormat),
		v.RiskScore, v.UsageProfile, v.Version,
	)
	if err != nil {
		return persistErr(err)
	}
	return nil
}

// =============================================================================
// FLEET STORE - Memberships
// =============================================================================

func (s *Store) Memberships(ctx context.Context, policyID engine.PolicyID) ([]engine.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, vehicle_id, effective_from, effective_to
		FROM memberships WHERE policy_id = ?
		ORDER BY vehicle_id, effective_from`, policyID)
	if err != nil {
		return nil, persistErr(err)
	}
	return scanMemberships(rows)
}

func (s *Store) MembershipsByVehicle(ctx context.Context, vehicleID engine.VehicleID) ([]engine.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, vehicle_id, effective_from, effective_to
		FROM memberships WHERE vehicle_id = ?
		ORDER BY policy_id, effective_from`, vehicleID)
	if err != nil {
		return nil, persistErr(err)
	}
	return scanMemberships(rows)
}

func scanMemberships(rows *sql.Rows) ([]engine.Membership, error) {
	defer rows.Close()

	var out []engine.Membership
	for rows.Next() {
		var (
			m    engine.Membership
			from string
			to   sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.PolicyID, &m.VehicleID, &from, &to); err != nil {
			return nil, persistErr(err)
		}
		m.EffectiveFrom, _ = time.Parse(dateFormat, from)
		if to.Valid {
			t, _ := time.Parse(dateFormat, to.String)
			m.EffectiveTo = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddMembership inserts a new interval after checking that it does not
// overlap an existing interval for the same (policy, vehicle) pair.
func (s *Store) AddMembership(ctx context.Context, m engine.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, vehicle_id, effective_from, effective_to
		FROM memberships WHERE policy_id = ? AND vehicle_id = ?`,
		m.PolicyID, m.VehicleID)
	if err != nil {
		return persistErr(err)
	}
	existing, err := scanMemberships(rows)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if intervalsOverlap(e, m) {
			return &engine.MembershipOverlapError{
				PolicyID:  m.PolicyID,
				VehicleID: m.VehicleID,
				From:      m.EffectiveFrom,
				To:        m.EffectiveTo,
			}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memberships (id, policy_id, vehicle_id, effective_from, effective_to)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.PolicyID, m.VehicleID,
		m.EffectiveFrom.Format(dateFormat), nullDate(m.EffectiveTo),
	)
	if err != nil {
		return persistErr(err)
	}
	return nil
}

func (s *Store) CloseMembership(ctx context.Context, id engine.MembershipID, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET effective_to = ? WHERE id = ? AND effective_to IS NULL`,
		to.Format(dateFormat), id)
	if err != nil {
		return persistErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrMembershipNotFound
	}
	return nil
}

func intervalsOverlap(a, b engine.Membership) bool {
	aEndsBeforeB := a.EffectiveTo != nil && !a.EffectiveTo.After(b.EffectiveFrom)
	bEndsBeforeA := b.EffectiveTo != nil && !b.EffectiveTo.After(a.EffectiveFrom)
	return !aEndsBeforeB && !bEndsBeforeA
}

// =============================================================================
// FLEET STORE - Reinsurance layers
// =============================================================================

func (s *Store) Layers(ctx context.Context) ([]engine.ReinsuranceLayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, lower_bound, upper_bound
		FROM reinsurance_layers
		ORDER BY CAST(lower_bound AS REAL)`)
	if err != nil {
		return nil, persistErr(err)
	}
	defer rows.Close()

	var out []engine.ReinsuranceLayer
	for rows.Next() {
		var l engine.ReinsuranceLayer
		var lower, upper string
		if err := rows.Scan(&l.Name, &lower, &upper); err != nil {
			return nil, persistErr(err)
		}
		l.LowerBound = engine.MustParseDecimal(lower)
		l.UpperBound = engine.MustParseDecimal(upper)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) SaveLayer(ctx context.Context, l engine.ReinsuranceLayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reinsurance_layers (name, lower_bound, upper_bound)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			lower_bound = excluded.lower_bound,
			upper_bound = excluded.upper_bound`,
		l.Name, l.LowerBound.String(), l.UpperBound.String(),
	)
	if err != nil {
		return persistErr(err)
	}
	return nil
}

// =============================================================================
// SNAPSHOT STORE
// =============================================================================

const snapshotColumns = `id, policy_id, as_of, calculated_at, total_premium,
	calc_trigger, previous_id, risk_hash, exposure_json`

func (s *Store) LatestSnapshot(ctx context.Context, policyID engine.PolicyID) (*engine.PremiumSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE policy_id = ?
		ORDER BY as_of DESC, rowid DESC
		LIMIT 1`, policyID)
	if err != nil {
		return nil, persistErr(err)
	}
	snaps, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, engine.ErrSnapshotNotFound
	}
	return &snaps[0], nil
}

func (s *Store) SnapshotHistory(ctx context.Context, policyID engine.PolicyID) ([]engine.PremiumSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE policy_id = ?
		ORDER BY as_of ASC, rowid ASC`, policyID)
	if err != nil {
		return nil, persistErr(err)
	}
	return scanSnapshots(rows)
}

func scanSnapshots(rows *sql.Rows) ([]engine.PremiumSnapshot, error) {
	defer rows.Close()

	var out []engine.PremiumSnapshot
	for rows.Next() {
		var (
			snap         engine.PremiumSnapshot
			asOf, calcAt string
			totalPremium string
			previousID   sql.NullString
			exposureJSON string
		)
		err := rows.Scan(&snap.ID, &snap.PolicyID, &asOf, &calcAt, &totalPremium,
			&snap.Trigger, &previousID, &snap.RiskHash, &exposureJSON)
		if err != nil {
			return nil, persistErr(err)
		}
		snap.AsOf, _ = time.Parse(dateFormat, asOf)
		snap.CalculatedAt, _ = time.Parse(time.RFC3339Nano, calcAt)
		snap.TotalPremium = engine.MustParseDecimal(totalPremium)
		if previousID.Valid {
			prev := engine.SnapshotID(previousID.String)
			snap.PreviousID = &prev
		}
		snap.ExposureByMonth = decodeExposure(exposureJSON)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) Shares(ctx context.Context, id engine.SnapshotID) ([]engine.VehicleShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT snapshot_id, vehicle_id, risk_score, fleet_percentage,
		       premium_contribution, exposure_units, effective_from, effective_to
		FROM vehicle_shares WHERE snapshot_id = ?
		ORDER BY vehicle_id`, id)
	if err != nil {
		return nil, persistErr(err)
	}
	defer rows.Close()

	var out []engine.VehicleShare
	for rows.Next() {
		var (
			share        engine.VehicleShare
			pct, contrib string
			exposure     string
			from         string
			to           sql.NullString
		)
		err := rows.Scan(&share.SnapshotID, &share.VehicleID, &share.RiskScore,
			&pct, &contrib, &exposure, &from, &to)
		if err != nil {
			return nil, persistErr(err)
		}
		share.FleetPercentage = engine.MustParseDecimal(pct)
		share.PremiumContribution = engine.MustParseDecimal(contrib)
		share.ExposureUnits = engine.MustParseDecimal(exposure)
		share.EffectiveFrom, _ = time.Parse(dateFormat, from)
		if to.Valid {
			t, _ := time.Parse(dateFormat, to.String)
			share.EffectiveTo = &t
		}
		out = append(out, share)
	}
	return out, rows.Err()
}

func (s *Store) Allocations(ctx context.Context, id engine.SnapshotID) ([]engine.SnapshotAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.snapshot_id, a.layer_name, a.allocated
		FROM snapshot_allocations a
		JOIN reinsurance_layers l ON l.name = a.layer_name
		WHERE a.snapshot_id = ?
		ORDER BY CAST(l.lower_bound AS REAL)`, id)
	if err != nil {
		return nil, persistErr(err)
	}
	defer rows.Close()

	var out []engine.SnapshotAllocation
	for rows.Next() {
		var a engine.SnapshotAllocation
		var allocated string
		if err := rows.Scan(&a.SnapshotID, &a.LayerName, &allocated); err != nil {
			return nil, persistErr(err)
		}
		a.Allocated = engine.MustParseDecimal(allocated)
		out = append(out, a)
	}
	return out, rows.Err()
}

// WriteSnapshot persists the snapshot aggregate in a single transaction.
// The policy version read at job start is compared against the stored
// version; a mismatch rolls everything back with ErrVersionConflict.
func (s *Store) WriteSnapshot(ctx context.Context, w engine.SnapshotWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr(err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM policies WHERE id = ?`, w.Snapshot.PolicyID,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return engine.ErrPolicyNotFound
	}
	if err != nil {
		return persistErr(err)
	}
	if version != w.ExpectedVersion {
		return &engine.VersionConflictError{
			PolicyID: w.Snapshot.PolicyID,
			Expected: w.ExpectedVersion,
			Actual:   version,
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, policy_id, as_of, calculated_at, total_premium, calc_trigger,
		 previous_id, risk_hash, exposure_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.Snapshot.ID, w.Snapshot.PolicyID,
		w.Snapshot.AsOf.Format(dateFormat),
		w.Snapshot.CalculatedAt.Format(time.RFC3339Nano),
		w.Snapshot.TotalPremium.String(),
		w.Snapshot.Trigger,
		nullSnapshotID(w.Snapshot.PreviousID),
		w.Snapshot.RiskHash,
		encodeExposure(w.Snapshot.ExposureByMonth),
	)
	if err != nil {
		return persistErr(err)
	}

	for _, share := range w.Shares {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vehicle_shares
			(snapshot_id, vehicle_id, risk_score, fleet_percentage,
			 premium_contribution, exposure_units, effective_from, effective_to)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			share.SnapshotID, share.VehicleID, share.RiskScore,
			share.FleetPercentage.String(), share.PremiumContribution.String(),
			share.ExposureUnits.String(),
			share.EffectiveFrom.Format(dateFormat), nullDate(share.EffectiveTo),
		)
		if err != nil {
			return persistErr(err)
		}
	}

	for _, alloc := range w.Allocations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_allocations (snapshot_id, layer_name, allocated)
			VALUES (?, ?, ?)`,
			alloc.SnapshotID, alloc.LayerName, alloc.Allocated.String(),
		)
		if err != nil {
			return persistErr(err)
		}
	}

	if err := appendAuditTx(ctx, tx, w.Audit); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE policies SET version = version + 1 WHERE id = ? AND version = ?`,
		w.Snapshot.PolicyID, w.ExpectedVersion,
	)
	if err != nil {
		return persistErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.VersionConflictError{
			PolicyID: w.Snapshot.PolicyID,
			Expected: w.ExpectedVersion,
			Actual:   -1,
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr(err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e engine.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAuditTx(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendAuditTx(ctx context.Context, db execer, e engine.AuditEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, policy_id, reason, calc_trigger, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.PolicyID, e.Reason, e.Trigger,
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return persistErr(err)
	}
	return nil
}

func (s *Store) AuditTrail(ctx context.Context, policyID engine.PolicyID) ([]engine.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, policy_id, reason, calc_trigger, created_at
		FROM audit_entries WHERE policy_id = ?
		ORDER BY rowid ASC`, policyID)
	if err != nil {
		return nil, persistErr(err)
	}
	defer rows.Close()

	var out []engine.AuditEntry
	for rows.Next() {
		var e engine.AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.PolicyID, &e.Reason, &e.Trigger, &createdAt); err != nil {
			return nil, persistErr(err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func persistErr(err error) error {
	return fmt.Errorf("%w: %v", engine.ErrPersistence, err)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateFormat), Valid: true}
}

func nullSnapshotID(id *engine.SnapshotID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func encodeExposure(m map[string]decimal.Decimal) string {
	if len(m) == 0 {
		return "{}"
	}
	plain := make(map[string]string, len(m))
	for k, v := range m {
		plain[k] = v.String()
	}
	b, _ := json.Marshal(plain)
	return string(b)
}

func decodeExposure(s string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	if strings.TrimSpace(s) == "" {
		return out
	}
	var plain map[string]string
	if err := json.Unmarshal([]byte(s), &plain); err != nil {
		return out
	}
	for k, v := range plain {
		out[k] = engine.MustParseDecimal(v)
	}
	return out
}
