package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the persistence contract consumed by the billing engine.
type Repository interface {
	// GetOrganization returns the organization or ErrOrganizationNotFound.
	GetOrganization(ctx context.Context, id int64) (*Organization, error)

	// ListDueForAdvance returns organizations with any time-triggered work on the
	// given day: an expired trial, a due or exhaustion-triggerable pending change,
	// or a lapsed cycle. The filter is pushed to the database; the full tenant set
	// is never loaded.
	ListDueForAdvance(ctx context.Context, today time.Time) ([]*Organization, error)

	// Save persists the organization with an optimistic concurrency check and bumps
	// Version on success. Returns ErrConflict when the stored version differs from
	// org.Version, ErrOrganizationNotFound when the row is gone.
	Save(ctx context.Context, org *Organization) error

	// CreateOrganization inserts a new organization and populates ID, Version and
	// the audit timestamps.
	CreateOrganization(ctx context.Context, org *Organization) error
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const organizationColumns = `
	id, name, market, enabled, monthly_quota, pricing_plan_id,
	trial_expires_at, trial_permanently_expired,
	cycle_start, cycle_end,
	pending_plan_id, pending_plan_change_date,
	pending_ppr_plan_id, pending_ppr_change_date,
	last_ppr_invoice_date, version, created_at, updated_at`

// GetOrganization retrieves an organization by ID
func (r *PostgresRepository) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `SELECT` + organizationColumns + `
		FROM organizations
		WHERE id = $1`
	org, err := scanOrganization(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// ListDueForAdvance returns organizations with pending or lapsed cycle state
func (r *PostgresRepository) ListDueForAdvance(ctx context.Context, today time.Time) ([]*Organization, error) {
	// Pending pay-per-request rows are selected regardless of their change date:
	// quota exhaustion can make them due before the date arrives.
	query := `SELECT` + organizationColumns + `
		FROM organizations
		WHERE trial_expires_at <= $1
		   OR pending_plan_change_date <= $1
		   OR pending_ppr_plan_id IS NOT NULL
		   OR cycle_end < $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations due for advance: %w", err)
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}
	return out, nil
}

// Save persists an organization with an optimistic concurrency check
func (r *PostgresRepository) Save(ctx context.Context, org *Organization) error {
	query := `
		UPDATE organizations
		SET name = $1, market = $2, enabled = $3, monthly_quota = $4, pricing_plan_id = $5,
		    trial_expires_at = $6, trial_permanently_expired = $7,
		    cycle_start = $8, cycle_end = $9,
		    pending_plan_id = $10, pending_plan_change_date = $11,
		    pending_ppr_plan_id = $12, pending_ppr_change_date = $13,
		    last_ppr_invoice_date = $14,
		    version = version + 1, updated_at = NOW()
		WHERE id = $15 AND version = $16
	`
	pendingPlanID, pendingPlanDate := pendingColumns(org.PendingMonthly)
	pendingPPRID, pendingPPRDate := pendingColumns(org.PendingPayPerRequest)

	result, err := r.db.ExecContext(ctx, query,
		org.Name, org.Market, org.Enabled, org.MonthlyQuota, org.PricingPlanID,
		org.TrialExpiresAt, org.TrialPermanentlyExpired,
		org.CycleStart, org.CycleEnd,
		pendingPlanID, pendingPlanDate,
		pendingPPRID, pendingPPRDate,
		org.LastPPRInvoiceDate,
		org.ID, org.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save organization: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or the version moved; distinguish for the caller.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)`, org.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check organization existence: %w", err)
		}
		if !exists {
			return ErrOrganizationNotFound
		}
		return ErrConflict
	}

	org.Version++
	return nil
}

// CreateOrganization inserts a new organization
func (r *PostgresRepository) CreateOrganization(ctx context.Context, org *Organization) error {
	query := `
		INSERT INTO organizations (
			name, market, enabled, monthly_quota, pricing_plan_id,
			trial_expires_at, trial_permanently_expired,
			cycle_start, cycle_end, last_ppr_invoice_date, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)
		RETURNING id, version, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		org.Name, org.Market, org.Enabled, org.MonthlyQuota, org.PricingPlanID,
		org.TrialExpiresAt, org.TrialPermanentlyExpired,
		org.CycleStart, org.CycleEnd, org.LastPPRInvoiceDate,
	).Scan(&org.ID, &org.Version, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row rowScanner) (*Organization, error) {
	org := &Organization{}
	var (
		monthlyQuota    sql.NullInt64
		pricingPlanID   sql.NullInt64
		trialExpiresAt  sql.NullTime
		cycleStart      sql.NullTime
		cycleEnd        sql.NullTime
		pendingPlanID   sql.NullInt64
		pendingPlanDate sql.NullTime
		pendingPPRID    sql.NullInt64
		pendingPPRDate  sql.NullTime
		lastPPRInvoice  sql.NullTime
	)
	err := row.Scan(
		&org.ID, &org.Name, &org.Market, &org.Enabled, &monthlyQuota, &pricingPlanID,
		&trialExpiresAt, &org.TrialPermanentlyExpired,
		&cycleStart, &cycleEnd,
		&pendingPlanID, &pendingPlanDate,
		&pendingPPRID, &pendingPPRDate,
		&lastPPRInvoice, &org.Version, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	org.MonthlyQuota = nullInt64Ptr(monthlyQuota)
	org.PricingPlanID = nullInt64Ptr(pricingPlanID)
	org.TrialExpiresAt = nullTimePtr(trialExpiresAt)
	org.CycleStart = nullTimePtr(cycleStart)
	org.CycleEnd = nullTimePtr(cycleEnd)
	org.LastPPRInvoiceDate = nullTimePtr(lastPPRInvoice)
	org.PendingMonthly = scanPending(pendingPlanID, pendingPlanDate)
	org.PendingPayPerRequest = scanPending(pendingPPRID, pendingPPRDate)
	return org, nil
}

// scanPending preserves half-formed column pairs as a PendingChange that fails
// Validate, so the advancer can surface the corruption instead of silently dropping it.
func scanPending(id sql.NullInt64, date sql.NullTime) *PendingChange {
	if !id.Valid && !date.Valid {
		return nil
	}
	pc := &PendingChange{}
	if id.Valid {
		pc.PlanID = id.Int64
	}
	if date.Valid {
		pc.EffectiveDate = date.Time
	}
	return pc
}

func pendingColumns(c *PendingChange) (any, any) {
	if c == nil {
		return nil, nil
	}
	return c.PlanID, c.EffectiveDate
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}
