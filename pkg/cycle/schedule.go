package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/usage"
)

// ErrNoPendingChange is returned by the cancel operations when the organization
// has nothing scheduled to cancel.
var ErrNoPendingChange = errors.New("organization has no pending plan change")

// Scheduler handles operator- and customer-initiated plan changes. Changes that
// would cut a paid cycle short are deferred to the day after the cycle ends; all
// other changes apply immediately.
//
// Every operation is a single read-modify-write against the repository. A
// concurrent modification surfaces as orgs.ErrConflict; retrying is the caller's
// decision because the right plan change may have changed with the organization.
type Scheduler struct {
	repo     orgs.Repository
	catalog  plans.Catalog
	usage    usage.Counter
	invoices invoices.Generator
	clock    clockwork.Clock
	logger   *logrus.Logger
}

// NewScheduler creates a new Scheduler
func NewScheduler(repo orgs.Repository, catalog plans.Catalog, usageCounter usage.Counter, generator invoices.Generator, clock clockwork.Clock, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		repo:     repo,
		catalog:  catalog,
		usage:    usageCounter,
		invoices: generator,
		clock:    clock,
		logger:   logger,
	}
}

// SchedulePlanChange moves the organization to a new pricing plan. Mid-cycle
// changes away from a monthly plan are scheduled for the day after the current
// cycle ends; everything else applies immediately. Returns the updated
// organization.
func (s *Scheduler) SchedulePlanChange(ctx context.Context, orgID, newPlanID int64) (*orgs.Organization, error) {
	today := DateOf(s.clock.Now())

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	newPlan, err := s.catalog.GetPlan(ctx, newPlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve new pricing plan %d: %w", newPlanID, err)
	}

	// Trials are one-shot: an organization that has consumed its trial or is
	// currently on one cannot schedule another. Re-scheduling the trial plan
	// mid-trial would push the expiry forward indefinitely.
	if newPlan.IsTrial() && (org.TrialPermanentlyExpired || org.TrialExpiresAt != nil) {
		return nil, &orgs.TrialAlreadyUsedError{OrgID: org.ID}
	}

	current := s.currentPlan(ctx, org)
	var owed []invoices.Request

	switch {
	case current != nil && current.IsMonthly() && org.OnMonthlyCycle() && newPlan.IsMonthly():
		// The paid cycle runs to its end; the new monthly plan takes over the
		// morning after.
		org.PendingMonthly = &orgs.PendingChange{
			PlanID:        newPlan.ID,
			EffectiveDate: nextDay(*org.CycleEnd),
		}
		org.PendingPayPerRequest = nil

	case current != nil && current.IsMonthly() && org.OnMonthlyCycle() && newPlan.IsPayPerRequest():
		owed, err = s.schedulePayPerRequest(ctx, org, newPlan, today)
		if err != nil {
			return nil, err
		}

	default:
		// Trial, pay-per-request and planless organizations have no cycle to
		// protect; the change applies now.
		owed = applyImmediately(org, current, newPlan, today)
	}

	if err := s.repo.Save(ctx, org); err != nil {
		return nil, err
	}
	s.issueInvoices(ctx, owed)

	s.logger.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"new_plan_id":     newPlan.ID,
		"pending":         org.PendingMonthly != nil || org.PendingPayPerRequest != nil,
	}).Info("Plan change scheduled")
	return org, nil
}

// ScheduleFallbackToPayPerRequest arranges overflow billing for a monthly
// organization. When the quota is already exhausted the fallback becomes
// effective today, so the very next request is billable instead of denied;
// otherwise it is scheduled for the day after the cycle ends.
func (s *Scheduler) ScheduleFallbackToPayPerRequest(ctx context.Context, orgID, pprPlanID int64) (*orgs.Organization, error) {
	today := DateOf(s.clock.Now())

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	plan, err := s.catalog.GetPlan(ctx, pprPlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pay-per-request plan %d: %w", pprPlanID, err)
	}
	if !plan.IsPayPerRequest() {
		return nil, fmt.Errorf("plan %d (%s) is not a pay-per-request plan", plan.ID, plan.Name)
	}

	owed, err := s.schedulePayPerRequest(ctx, org, plan, today)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, org); err != nil {
		return nil, err
	}
	s.issueInvoices(ctx, owed)

	s.logger.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"ppr_plan_id":     plan.ID,
	}).Info("Pay-per-request fallback scheduled")
	return org, nil
}

// CancelPendingPlanChange removes a scheduled monthly plan change. Returns
// ErrNoPendingChange when none is scheduled.
func (s *Scheduler) CancelPendingPlanChange(ctx context.Context, orgID int64) (*orgs.Organization, error) {
	return s.cancel(ctx, orgID, func(org *orgs.Organization) bool {
		if org.PendingMonthly == nil {
			return false
		}
		org.PendingMonthly = nil
		return true
	})
}

// CancelPendingPayPerRequestChange removes a scheduled pay-per-request fallback.
// Returns ErrNoPendingChange when none is scheduled.
func (s *Scheduler) CancelPendingPayPerRequestChange(ctx context.Context, orgID int64) (*orgs.Organization, error) {
	return s.cancel(ctx, orgID, func(org *orgs.Organization) bool {
		if org.PendingPayPerRequest == nil {
			return false
		}
		org.PendingPayPerRequest = nil
		return true
	})
}

func (s *Scheduler) cancel(ctx context.Context, orgID int64, clear func(*orgs.Organization) bool) (*orgs.Organization, error) {
	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !clear(org) {
		return nil, ErrNoPendingChange
	}
	if err := s.repo.Save(ctx, org); err != nil {
		return nil, err
	}
	s.logger.WithField("organization_id", org.ID).Info("Pending plan change cancelled")
	return org, nil
}

// schedulePayPerRequest decides between an immediate fallback (quota already
// exhausted) and one deferred to the day after the current cycle ends. An
// organization with no cycle switches on the spot. It mutates org only.
func (s *Scheduler) schedulePayPerRequest(ctx context.Context, org *orgs.Organization, plan *plans.PricingPlan, today time.Time) ([]invoices.Request, error) {
	if !org.OnMonthlyCycle() {
		return applyImmediately(org, s.currentPlan(ctx, org), plan, today), nil
	}

	exhausted, err := quotaExhausted(ctx, s.usage, org, today)
	if err != nil {
		return nil, err
	}
	effective := nextDay(*org.CycleEnd)
	if exhausted {
		effective = today
	}
	org.PendingPayPerRequest = &orgs.PendingChange{
		PlanID:        plan.ID,
		EffectiveDate: effective,
	}
	org.PendingMonthly = nil
	return nil, nil
}

// applyImmediately switches org to newPlan right now, recording the trial and
// pay-per-request bookkeeping the switch entails. It returns the invoice
// obligations the switch produced; the caller issues them only after the new
// state is saved.
func applyImmediately(org *orgs.Organization, current, newPlan *plans.PricingPlan, today time.Time) []invoices.Request {
	var owed []invoices.Request

	// Leaving a trial early burns it just as running it out would.
	if org.TrialExpiresAt != nil && !newPlan.IsTrial() {
		org.TrialPermanentlyExpired = true
		org.TrialExpiresAt = nil
	}

	// Closing out a pay-per-request period: bill everything since the last
	// invoiced date so the new plan starts with a clean slate.
	if current != nil && current.IsPayPerRequest() && !newPlan.IsPayPerRequest() {
		start := DateOf(org.CreatedAt)
		if org.LastPPRInvoiceDate != nil {
			start = nextDay(*org.LastPPRInvoiceDate)
		}
		if !start.After(today) {
			owed = append(owed, invoices.Request{
				OrgID:       org.ID,
				PlanID:      current.ID,
				Kind:        invoices.KindPayPerRequestClosure,
				PeriodStart: start,
				PeriodEnd:   today,
			})
		}
		invoiced := today
		org.LastPPRInvoiceDate = &invoiced
	}

	applyPlan(org, newPlan, today)

	// A freshly entered pay-per-request plan owns usage from today on; anything
	// earlier was covered by the previous plan.
	if newPlan.IsPayPerRequest() && (current == nil || !current.IsPayPerRequest()) {
		billedThrough := today.AddDate(0, 0, -1)
		org.LastPPRInvoiceDate = &billedThrough
	}

	if newPlan.IsTrial() {
		expires := today.AddDate(0, 0, newPlan.TrialPeriodDays)
		org.TrialExpiresAt = &expires
	}
	return owed
}

// issueInvoices generates the invoices a change produced. The organization's new
// state is already persisted at this point; a generation failure is logged for
// the billing reconciliation job rather than unwinding the plan change.
func (s *Scheduler) issueInvoices(ctx context.Context, owed []invoices.Request) {
	for _, req := range owed {
		if _, err := s.invoices.Generate(ctx, req); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"organization_id": req.OrgID,
				"kind":            req.Kind,
			}).Error("Failed to generate invoice for plan change")
		}
	}
}

func (s *Scheduler) currentPlan(ctx context.Context, org *orgs.Organization) *plans.PricingPlan {
	if org.PricingPlanID == nil {
		return nil
	}
	plan, err := s.catalog.GetPlan(ctx, *org.PricingPlanID)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"organization_id": org.ID,
			"pricing_plan_id": *org.PricingPlanID,
		}).Warn("Organization references an unknown pricing plan")
		return nil
	}
	return plan
}
