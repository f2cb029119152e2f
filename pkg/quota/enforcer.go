// Package quota implements the request-time quota gate.
//
// # Overview
//
// Enforcer.CheckQuota is invoked inline with every billable request. It performs
// exactly one organization read and one aggregate usage count, never blocks on
// payment infrastructure, and never mutates state; recording the request after a
// positive decision is the caller's job.
//
// # Fail-open policy
//
// When the organization cannot be loaded (missing row, repository outage), the
// check degrades to "allowed" by default. This is a deliberate
// availability-over-strictness tradeoff: an unhealthy billing subsystem must not
// take down the product it meters. The behavior sits behind the FailOpen flag so
// deployments that prefer strictness can opt out.
package quota

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/usage"
)

// Result is the outcome of a quota check.
type Result struct {
	// QuotaOK is true when the organization may consume one more unit at its
	// plan's included pricing.
	QuotaOK bool `json:"quota_ok"`

	// CanUsePayPerRequest is true when the quota is exhausted but the request may
	// proceed billed individually.
	CanUsePayPerRequest bool `json:"can_use_pay_per_request"`

	// PayPerRequestPriceCents is the per-request price for the organization's
	// market; set only when CanUsePayPerRequest is true.
	PayPerRequestPriceCents *int64 `json:"pay_per_request_price_cents,omitempty"`

	CurrentUsage int64  `json:"current_usage"`
	MonthlyQuota *int64 `json:"monthly_quota,omitempty"`
}

// Config controls enforcement policy.
type Config struct {
	// FailOpen allows requests when the organization cannot be loaded. Defaults to
	// true via DefaultConfig; see the package documentation before changing it.
	FailOpen bool
}

// DefaultConfig returns the default enforcement policy
func DefaultConfig() Config {
	return Config{FailOpen: true}
}

// Enforcer decides, per request, whether an organization may consume one more unit.
type Enforcer struct {
	repo    orgs.Repository
	catalog plans.Catalog
	usage   usage.Counter
	clock   clockwork.Clock
	cfg     Config
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// NewEnforcer creates a new Enforcer. Metrics may be nil.
func NewEnforcer(repo orgs.Repository, catalog plans.Catalog, usageCounter usage.Counter, clock clockwork.Clock, cfg Config, logger *logrus.Logger, metrics *observability.Metrics) *Enforcer {
	return &Enforcer{
		repo:    repo,
		catalog: catalog,
		usage:   usageCounter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckQuota decides whether the organization may consume one more unit of service
// and at what price. It has no side effects.
func (e *Enforcer) CheckQuota(ctx context.Context, orgID int64) (*Result, error) {
	timer := e.startTimer()
	defer timer()

	org, err := e.repo.GetOrganization(ctx, orgID)
	if err != nil {
		if e.cfg.FailOpen {
			e.logger.WithError(err).WithField("org_id", orgID).
				Warn("quota check failed open: organization unavailable")
			e.countOutcome(observability.OutcomeFailOpen)
			return &Result{QuotaOK: true}, nil
		}
		return nil, err
	}

	if !org.Enabled {
		e.countOutcome(observability.OutcomeDisabled)
		return nil, &orgs.OrganizationDisabledError{OrgID: org.ID}
	}

	plan := e.planOf(ctx, org)

	// Pay-per-request plans have no ceiling; each request is billed individually.
	if plan != nil && plan.IsPayPerRequest() {
		e.countOutcome(observability.OutcomeAllowed)
		return &Result{QuotaOK: true}, nil
	}

	// A nil quota means unlimited regardless of plan.
	if org.MonthlyQuota == nil {
		e.countOutcome(observability.OutcomeAllowed)
		return &Result{QuotaOK: true}, nil
	}

	start, end := e.usageWindow(org, plan)
	current, err := e.usage.CountBillableRequests(ctx, org.ID, start, end)
	if err != nil {
		if e.cfg.FailOpen {
			e.logger.WithError(err).WithField("org_id", orgID).
				Warn("quota check failed open: usage count unavailable")
			e.countOutcome(observability.OutcomeFailOpen)
			return &Result{QuotaOK: true, MonthlyQuota: org.MonthlyQuota}, nil
		}
		return nil, err
	}

	result := &Result{
		CurrentUsage: current,
		MonthlyQuota: org.MonthlyQuota,
	}

	if current < *org.MonthlyQuota {
		result.QuotaOK = true
		e.countOutcome(observability.OutcomeAllowed)
		return result, nil
	}

	// Quota exhausted. Overflow is billable only when the market offers a
	// pay-per-request plan or a fallback to one is already scheduled.
	if price, ok := e.overflowPrice(ctx, org); ok {
		result.CanUsePayPerRequest = true
		result.PayPerRequestPriceCents = &price
		e.countOutcome(observability.OutcomePayPerRequest)
		e.logger.WithFields(logrus.Fields{
			"org_id":      org.ID,
			"usage":       current,
			"quota":       *org.MonthlyQuota,
			"price_cents": price,
		}).Info("quota exhausted, overflow billable at pay-per-request pricing")
		return result, nil
	}

	e.countOutcome(observability.OutcomeDenied)
	return result, nil
}

// planOf resolves the organization's current plan; a lookup failure degrades to
// nil, in which case quota fields on the organization drive the decision alone.
func (e *Enforcer) planOf(ctx context.Context, org *orgs.Organization) *plans.PricingPlan {
	if org.PricingPlanID == nil {
		return nil
	}
	plan, err := e.catalog.GetPlan(ctx, *org.PricingPlanID)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"org_id":  org.ID,
			"plan_id": *org.PricingPlanID,
		}).Warn("failed to resolve organization plan during quota check")
		return nil
	}
	return plan
}

// usageWindow is the current cycle when the organization is on one, otherwise the
// calendar month.
func (e *Enforcer) usageWindow(org *orgs.Organization, plan *plans.PricingPlan) (start, end time.Time) {
	if plan != nil && plan.IsMonthly() && org.OnMonthlyCycle() {
		return *org.CycleStart, *org.CycleEnd
	}
	now := e.clock.Now().UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).AddDate(0, 0, -1)
	return start, end
}

func (e *Enforcer) overflowPrice(ctx context.Context, org *orgs.Organization) (int64, bool) {
	if org.PendingPayPerRequest != nil {
		if plan, err := e.catalog.GetPlan(ctx, org.PendingPayPerRequest.PlanID); err == nil {
			return plan.PricePerRequestCents, true
		}
	}
	plan, err := e.catalog.PayPerRequestPlan(ctx, org.Market)
	if err != nil {
		if err != plans.ErrPlanNotFound {
			e.logger.WithError(err).WithField("org_id", org.ID).
				Warn("failed to look up pay-per-request plan for market")
		}
		return 0, false
	}
	return plan.PricePerRequestCents, true
}

func (e *Enforcer) countOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.QuotaChecksTotal.WithLabelValues(outcome).Inc()
	}
}

func (e *Enforcer) startTimer() func() {
	if e.metrics == nil {
		return func() {}
	}
	start := e.clock.Now()
	return func() {
		e.metrics.QuotaCheckDuration.Observe(e.clock.Since(start).Seconds())
	}
}
