package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/usage"
)

// Outcome reports what one advance pass did to an organization. Org is an
// advanced deep copy; the input aggregate is never mutated.
type Outcome struct {
	Org *orgs.Organization

	TrialExpired            bool
	PlanActivated           bool
	CyclesRolled            int
	FellBackToPayPerRequest bool

	// Invoices owed by the transitions above. The caller issues them after the new
	// state is persisted.
	Invoices []invoices.Request
}

// Changed reports whether any rule fired.
func (o *Outcome) Changed() bool {
	return o.TrialExpired || o.PlanActivated || o.CyclesRolled > 0 || o.FellBackToPayPerRequest
}

// Advancer applies the time-driven transition rules to one organization.
type Advancer struct {
	catalog plans.Catalog
	usage   usage.Counter
	logger  *logrus.Logger
}

// NewAdvancer creates a new Advancer
func NewAdvancer(catalog plans.Catalog, usageCounter usage.Counter, logger *logrus.Logger) *Advancer {
	return &Advancer{
		catalog: catalog,
		usage:   usageCounter,
		logger:  logger,
	}
}

// Advance computes the organization's next state for the given instant. It is
// idempotent: re-applying with the same day produces no further change. Rules are
// evaluated in a fixed order; see the package documentation.
func (a *Advancer) Advance(ctx context.Context, org *orgs.Organization, now time.Time) (*Outcome, error) {
	today := DateOf(now)
	out := &Outcome{Org: org.Clone()}

	// Half-formed pending state is a bug in the scheduling path, not a runtime
	// condition; fail this organization before touching anything.
	if err := a.validatePending(org.ID, out.Org.PendingMonthly); err != nil {
		return nil, err
	}
	if err := a.validatePending(org.ID, out.Org.PendingPayPerRequest); err != nil {
		return nil, err
	}

	if err := a.expireTrial(ctx, out, now, today); err != nil {
		return nil, err
	}
	if err := a.activatePendingMonthly(ctx, out, today); err != nil {
		return nil, err
	}
	if err := a.rolloverCycle(ctx, out, today); err != nil {
		return nil, err
	}
	if err := a.activatePendingPayPerRequest(ctx, out, today); err != nil {
		return nil, err
	}

	return out, nil
}

// expireTrial clears an elapsed trial and falls back to the market's default
// non-trial plan. Trial expiry is monotonic: TrialPermanentlyExpired never resets.
func (a *Advancer) expireTrial(ctx context.Context, out *Outcome, now, today time.Time) error {
	org := out.Org
	if org.TrialExpiresAt == nil || org.TrialExpiresAt.After(now) {
		return nil
	}

	org.TrialExpiresAt = nil
	org.TrialPermanentlyExpired = true
	out.TrialExpired = true

	fallback, err := a.catalog.DefaultNonTrialPlan(ctx, org.Market)
	if err == plans.ErrPlanNotFound {
		// No fallback configured: leave the organization planless with a zero
		// quota. nil would mean unlimited, which an expired trial must not get.
		org.PricingPlanID = nil
		zero := int64(0)
		org.MonthlyQuota = &zero
		org.CycleStart, org.CycleEnd = nil, nil
		a.logger.WithField("org_id", org.ID).Info("trial expired with no fallback plan configured")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve trial fallback plan: %w", err)
	}

	applyPlan(org, fallback, today)
	a.logger.WithFields(logrus.Fields{
		"org_id":  org.ID,
		"plan_id": fallback.ID,
	}).Info("trial expired, fell back to default plan")
	return nil
}

// activatePendingMonthly adopts a due scheduled monthly plan and opens a new cycle
// starting today.
func (a *Advancer) activatePendingMonthly(ctx context.Context, out *Outcome, today time.Time) error {
	org := out.Org
	if !org.PendingMonthly.Due(today) {
		return nil
	}

	newPlan, err := a.catalog.GetPlan(ctx, org.PendingMonthly.PlanID)
	if err == plans.ErrPlanNotFound {
		return &orgs.DataIntegrityError{OrgID: org.ID, Reason: fmt.Sprintf("pending plan %d does not exist", org.PendingMonthly.PlanID)}
	}
	if err != nil {
		return fmt.Errorf("failed to resolve pending plan: %w", err)
	}

	out.Invoices = append(out.Invoices, a.cycleClosureInvoice(ctx, org)...)
	applyPlan(org, newPlan, today)
	out.PlanActivated = true

	a.logger.WithFields(logrus.Fields{
		"org_id":  org.ID,
		"plan_id": newPlan.ID,
	}).Info("pending plan change activated")
	return nil
}

// rolloverCycle renews a lapsed cycle in place. It loops so an organization that
// missed several daily passes converges to a cycle covering today in one advance,
// billing each completed cycle along the way.
func (a *Advancer) rolloverCycle(ctx context.Context, out *Outcome, today time.Time) error {
	org := out.Org
	if org.PendingMonthly != nil || org.PendingPayPerRequest != nil {
		return nil
	}
	if !org.OnMonthlyCycle() || !org.CycleEnd.Before(today) || org.PricingPlanID == nil {
		return nil
	}

	plan, err := a.catalog.GetPlan(ctx, *org.PricingPlanID)
	if err != nil {
		// A missing or unreadable plan blocks renewal but is not this pass's
		// failure; the organization is picked up again tomorrow.
		a.logger.WithError(err).WithFields(logrus.Fields{
			"org_id":  org.ID,
			"plan_id": *org.PricingPlanID,
		}).Warn("cannot resolve plan for cycle rollover")
		return nil
	}
	if !plan.IsMonthly() {
		return nil
	}

	for org.CycleEnd.Before(today) {
		out.Invoices = append(out.Invoices, invoices.Request{
			OrgID:       org.ID,
			PlanID:      plan.ID,
			Kind:        invoices.KindMonthlyCycle,
			PeriodStart: *org.CycleStart,
			PeriodEnd:   *org.CycleEnd,
		})
		start := nextDay(*org.CycleEnd)
		end := plan.CycleEndFor(start)
		org.CycleStart, org.CycleEnd = &start, &end
		out.CyclesRolled++
	}

	a.logger.WithFields(logrus.Fields{
		"org_id":      org.ID,
		"cycles":      out.CyclesRolled,
		"cycle_start": org.CycleStart.Format("2006-01-02"),
		"cycle_end":   org.CycleEnd.Format("2006-01-02"),
	}).Info("billing cycle rolled over")
	return nil
}

// activatePendingPayPerRequest switches to pay-per-request pricing when the
// scheduled date arrives or the quota is already exhausted. Immediate activation
// on exhaustion exists so an exhausted organization is not dead-ended until cycle
// end.
func (a *Advancer) activatePendingPayPerRequest(ctx context.Context, out *Outcome, today time.Time) error {
	org := out.Org
	if org.PendingPayPerRequest == nil {
		return nil
	}

	due := org.PendingPayPerRequest.Due(today)
	if !due {
		exhausted, err := quotaExhausted(ctx, a.usage, org, today)
		if err != nil {
			return err
		}
		due = exhausted
	}
	if !due {
		return nil
	}

	newPlan, err := a.catalog.GetPlan(ctx, org.PendingPayPerRequest.PlanID)
	if err == plans.ErrPlanNotFound {
		return &orgs.DataIntegrityError{OrgID: org.ID, Reason: fmt.Sprintf("pending pay-per-request plan %d does not exist", org.PendingPayPerRequest.PlanID)}
	}
	if err != nil {
		return fmt.Errorf("failed to resolve pending pay-per-request plan: %w", err)
	}

	out.Invoices = append(out.Invoices, a.cycleClosureInvoice(ctx, org)...)
	applyPlan(org, newPlan, today)

	// Usage through yesterday was covered by the closed plan; pay-per-request
	// billing owns everything from today on.
	billedThrough := today.AddDate(0, 0, -1)
	org.LastPPRInvoiceDate = &billedThrough
	out.FellBackToPayPerRequest = true

	a.logger.WithFields(logrus.Fields{
		"org_id":  org.ID,
		"plan_id": newPlan.ID,
	}).Info("fell back to pay-per-request pricing")
	return nil
}

// applyPlan replaces the organization's plan parameters wholesale and clears all
// pending transitions. Monthly plans open a fresh cycle starting today.
func applyPlan(org *orgs.Organization, plan *plans.PricingPlan, today time.Time) {
	org.PricingPlanID = &plan.ID
	org.MonthlyQuota = plan.MonthlyQuota
	if plan.IsMonthly() {
		start := today
		end := plan.CycleEndFor(start)
		org.CycleStart, org.CycleEnd = &start, &end
	} else {
		org.CycleStart, org.CycleEnd = nil, nil
	}
	org.PendingMonthly = nil
	org.PendingPayPerRequest = nil
}

// cycleClosureInvoice bills the final cycle of the monthly plan being left, when
// there is one.
func (a *Advancer) cycleClosureInvoice(ctx context.Context, org *orgs.Organization) []invoices.Request {
	if org.PricingPlanID == nil || !org.OnMonthlyCycle() {
		return nil
	}
	oldPlan, err := a.catalog.GetPlan(ctx, *org.PricingPlanID)
	if err != nil || !oldPlan.IsMonthly() {
		return nil
	}
	return []invoices.Request{{
		OrgID:       org.ID,
		PlanID:      oldPlan.ID,
		Kind:        invoices.KindMonthlyClosure,
		PeriodStart: *org.CycleStart,
		PeriodEnd:   *org.CycleEnd,
	}}
}

func quotaExhausted(ctx context.Context, counter usage.Counter, org *orgs.Organization, today time.Time) (bool, error) {
	if org.MonthlyQuota == nil {
		return false, nil
	}
	var start, end time.Time
	if org.OnMonthlyCycle() {
		start, end = *org.CycleStart, *org.CycleEnd
	} else {
		start, end = calendarMonth(today)
	}
	current, err := counter.CountBillableRequests(ctx, org.ID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to count usage for organization %d: %w", org.ID, err)
	}
	return current >= *org.MonthlyQuota, nil
}

func (a *Advancer) validatePending(orgID int64, c *orgs.PendingChange) error {
	if err := c.Validate(); err != nil {
		if ie, ok := err.(*orgs.DataIntegrityError); ok {
			ie.OrgID = orgID
		}
		return err
	}
	return nil
}
