package plans

import (
	"context"
	"database/sql"
	"fmt"
)

// Catalog defines read access to the pricing plan set.
type Catalog interface {
	// GetPlan returns the plan or ErrPlanNotFound.
	GetPlan(ctx context.Context, id int64) (*PricingPlan, error)

	// ActivePlans returns the active plans for a market, falling back to the
	// default market when the given one has none.
	ActivePlans(ctx context.Context, market string) ([]*PricingPlan, error)

	// PayPerRequestPlan returns the market's active pay-per-request plan, or
	// ErrPlanNotFound when the market has none.
	PayPerRequestPlan(ctx context.Context, market string) (*PricingPlan, error)

	// DefaultNonTrialPlan returns the plan organizations fall back to when a trial
	// expires, or ErrPlanNotFound when the market has no configured fallback.
	DefaultNonTrialPlan(ctx context.Context, market string) (*PricingPlan, error)
}

// DefaultMarket is the market used when an organization has no market set or its
// market carries no plans of its own.
const DefaultMarket = "DEFAULT"

// PostgresCatalog implements Catalog using PostgreSQL
type PostgresCatalog struct {
	db *sql.DB
}

// NewPostgresCatalog creates a new PostgresCatalog
func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

const planColumns = `
	id, name, market, price_per_month_cents, price_per_request_cents,
	monthly_quota, trial_period_days, cycle_length_days, active, created_at, updated_at`

// GetPlan retrieves a pricing plan by ID
func (c *PostgresCatalog) GetPlan(ctx context.Context, id int64) (*PricingPlan, error) {
	query := `SELECT` + planColumns + `
		FROM pricing_plans
		WHERE id = $1`
	plan, err := scanPlan(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing plan: %w", err)
	}
	return plan, nil
}

// ActivePlans lists the active plans for a market
func (c *PostgresCatalog) ActivePlans(ctx context.Context, market string) ([]*PricingPlan, error) {
	if market == "" {
		market = DefaultMarket
	}
	plans, err := c.activePlansExact(ctx, market)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 && market != DefaultMarket {
		return c.activePlansExact(ctx, DefaultMarket)
	}
	return plans, nil
}

func (c *PostgresCatalog) activePlansExact(ctx context.Context, market string) ([]*PricingPlan, error) {
	query := `SELECT` + planColumns + `
		FROM pricing_plans
		WHERE market = $1 AND active = TRUE
		ORDER BY id`
	rows, err := c.db.QueryContext(ctx, query, market)
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing plans: %w", err)
	}
	defer rows.Close()

	var out []*PricingPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pricing plan: %w", err)
		}
		out = append(out, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pricing plans: %w", err)
	}
	return out, nil
}

// PayPerRequestPlan finds the market's pay-per-request plan
func (c *PostgresCatalog) PayPerRequestPlan(ctx context.Context, market string) (*PricingPlan, error) {
	plans, err := c.ActivePlans(ctx, market)
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.IsPayPerRequest() {
			return p, nil
		}
	}
	return nil, ErrPlanNotFound
}

// DefaultNonTrialPlan finds the plan used as the post-trial fallback
func (c *PostgresCatalog) DefaultNonTrialPlan(ctx context.Context, market string) (*PricingPlan, error) {
	plans, err := c.ActivePlans(ctx, market)
	if err != nil {
		return nil, err
	}
	// Prefer a free plan as the fallback; a paid plan must never be adopted
	// without an explicit subscription.
	for _, p := range plans {
		if p.Kind() == KindFree {
			return p, nil
		}
	}
	return nil, ErrPlanNotFound
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*PricingPlan, error) {
	plan := &PricingPlan{}
	var monthlyQuota sql.NullInt64
	err := row.Scan(
		&plan.ID, &plan.Name, &plan.Market, &plan.PricePerMonthCents, &plan.PricePerRequestCents,
		&monthlyQuota, &plan.TrialPeriodDays, &plan.CycleLengthDays, &plan.Active,
		&plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if monthlyQuota.Valid {
		plan.MonthlyQuota = &monthlyQuota.Int64
	}
	return plan, nil
}
