package invoices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/usage"
)

// PostgresGenerator implements Generator using PostgreSQL
type PostgresGenerator struct {
	db      *sql.DB
	catalog plans.Catalog
	usage   usage.Counter
	logger  *logrus.Logger
}

// NewPostgresGenerator creates a new PostgresGenerator
func NewPostgresGenerator(db *sql.DB, catalog plans.Catalog, usageCounter usage.Counter, logger *logrus.Logger) *PostgresGenerator {
	return &PostgresGenerator{
		db:      db,
		catalog: catalog,
		usage:   usageCounter,
		logger:  logger,
	}
}

// Generate creates and persists one invoice for a billing period
func (g *PostgresGenerator) Generate(ctx context.Context, req Request) (*Invoice, error) {
	plan, err := g.catalog.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up plan %d: %w", req.PlanID, err)
	}

	amount, err := g.amountFor(ctx, req, plan)
	if err != nil {
		return nil, err
	}

	invoice := &Invoice{
		OrgID:       req.OrgID,
		Number:      uuid.NewString(),
		Kind:        req.Kind,
		PlanID:      req.PlanID,
		AmountCents: amount,
		Currency:    "usd",
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Status:      StatusOpen,
		DueDate:     time.Now().UTC().AddDate(0, 0, 30),
	}

	query := `
		INSERT INTO invoices (org_id, number, kind, plan_id, amount_cents, currency, period_start, period_end, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err = g.db.QueryRowContext(ctx, query,
		invoice.OrgID, invoice.Number, invoice.Kind, invoice.PlanID, invoice.AmountCents,
		invoice.Currency, invoice.PeriodStart, invoice.PeriodEnd, invoice.Status, invoice.DueDate,
	).Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"org_id":       invoice.OrgID,
		"kind":         invoice.Kind,
		"amount_cents": invoice.AmountCents,
		"period_start": invoice.PeriodStart.Format("2006-01-02"),
		"period_end":   invoice.PeriodEnd.Format("2006-01-02"),
	}).Info("invoice generated")

	return invoice, nil
}

// amountFor prices the period. Monthly kinds bill the flat monthly price;
// pay-per-request closure bills each logged request in the window.
func (g *PostgresGenerator) amountFor(ctx context.Context, req Request, plan *plans.PricingPlan) (int64, error) {
	switch req.Kind {
	case KindMonthlyCycle, KindMonthlyClosure:
		return plan.PricePerMonthCents, nil
	case KindPayPerRequestClosure:
		count, err := g.usage.CountBillableRequests(ctx, req.OrgID, req.PeriodStart, req.PeriodEnd)
		if err != nil {
			return 0, fmt.Errorf("failed to count pay-per-request usage: %w", err)
		}
		return count * plan.PricePerRequestCents, nil
	default:
		return 0, fmt.Errorf("unknown invoice kind %q", req.Kind)
	}
}

// ListInvoices lists invoices for an organization, newest first
func (g *PostgresGenerator) ListInvoices(ctx context.Context, orgID int64, limit int) ([]*Invoice, error) {
	query := `
		SELECT id, org_id, number, kind, plan_id, amount_cents, currency, period_start, period_end, status, due_date, created_at, updated_at
		FROM invoices
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := g.db.QueryContext(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []*Invoice
	for rows.Next() {
		inv := &Invoice{}
		if err := rows.Scan(
			&inv.ID, &inv.OrgID, &inv.Number, &inv.Kind, &inv.PlanID, &inv.AmountCents,
			&inv.Currency, &inv.PeriodStart, &inv.PeriodEnd, &inv.Status, &inv.DueDate,
			&inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
