package cycle

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/orgs"
)

// DefaultMaxConflictRetries bounds how often one organization is retried within
// a single pass when concurrent writers keep invalidating the optimistic save.
const DefaultMaxConflictRetries = 3

// ItemError records one organization the daily pass could not advance.
type ItemError struct {
	OrgID int64
	Err   error
}

// Report summarizes one daily advance pass.
type Report struct {
	Processed int
	Advanced  int
	Errors    []ItemError
}

// Lifecycle orchestrates the daily advance: it pulls the organizations with due
// work, runs the Advancer over each, saves under optimistic concurrency and
// issues the invoices the transitions produced.
type Lifecycle struct {
	repo       orgs.Repository
	advancer   *Advancer
	invoices   invoices.Generator
	clock      clockwork.Clock
	logger     *logrus.Logger
	metrics    *observability.Metrics
	maxRetries int
}

// NewLifecycle creates a new Lifecycle. Metrics may be nil.
func NewLifecycle(repo orgs.Repository, advancer *Advancer, generator invoices.Generator, clock clockwork.Clock, logger *logrus.Logger, metrics *observability.Metrics, maxConflictRetries int) *Lifecycle {
	if maxConflictRetries <= 0 {
		maxConflictRetries = DefaultMaxConflictRetries
	}
	return &Lifecycle{
		repo:       repo,
		advancer:   advancer,
		invoices:   generator,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
		maxRetries: maxConflictRetries,
	}
}

// RunDailyAdvance advances every organization with due work as of now. One
// failing organization never stops the pass; its error lands in the report and
// the loop moves on. The pass is idempotent: rerunning it on the same day finds
// nothing left to do.
func (l *Lifecycle) RunDailyAdvance(ctx context.Context, now time.Time) (*Report, error) {
	today := DateOf(now)
	if l.metrics != nil {
		l.metrics.AdvanceRunsTotal.Inc()
		timer := prometheus.NewTimer(l.metrics.AdvanceDuration)
		defer timer.ObserveDuration()
	}

	due, err := l.repo.ListDueForAdvance(ctx, today)
	if err != nil {
		return nil, err
	}

	report := &Report{Processed: len(due)}
	for _, org := range due {
		changed, err := l.advanceOne(ctx, org, now)
		switch {
		case err != nil:
			l.countItem(observability.ItemError)
			l.logger.WithError(err).WithField("organization_id", org.ID).Error("Failed to advance organization")
			report.Errors = append(report.Errors, ItemError{OrgID: org.ID, Err: err})
		case changed:
			l.countItem(observability.ItemAdvanced)
			report.Advanced++
		default:
			l.countItem(observability.ItemUnchanged)
		}
	}

	l.logger.WithFields(logrus.Fields{
		"date":      today.Format("2006-01-02"),
		"processed": report.Processed,
		"advanced":  report.Advanced,
		"errors":    len(report.Errors),
	}).Info("Daily advance pass complete")
	return report, nil
}

// advanceOne runs the transition rules for a single organization and persists
// the result. On a version conflict it refetches and retries with fresh state, a
// bounded number of times; transition rules are pure so a retry recomputes
// everything from what the concurrent writer left behind.
func (l *Lifecycle) advanceOne(ctx context.Context, org *orgs.Organization, now time.Time) (bool, error) {
	for attempt := 0; ; attempt++ {
		out, err := l.advancer.Advance(ctx, org, now)
		if err != nil {
			return false, err
		}
		if !out.Changed() {
			return false, nil
		}

		err = l.repo.Save(ctx, out.Org)
		if err == nil {
			l.issueInvoices(ctx, out.Invoices)
			return true, nil
		}
		if !errors.Is(err, orgs.ErrConflict) {
			return false, err
		}

		if l.metrics != nil {
			l.metrics.AdvanceConflictsTotal.Inc()
		}
		if attempt+1 >= l.maxRetries {
			return false, err
		}
		org, err = l.repo.GetOrganization(ctx, org.ID)
		if err != nil {
			return false, err
		}
	}
}

// issueInvoices runs after the advanced state is saved, so a failed save never
// bills. A generation failure is logged for reconciliation; the advance itself
// already happened and must not be unwound.
func (l *Lifecycle) issueInvoices(ctx context.Context, owed []invoices.Request) {
	for _, req := range owed {
		if _, err := l.invoices.Generate(ctx, req); err != nil {
			l.logger.WithError(err).WithFields(logrus.Fields{
				"organization_id": req.OrgID,
				"kind":            req.Kind,
			}).Error("Failed to generate invoice for cycle transition")
			continue
		}
		if l.metrics != nil {
			l.metrics.InvoicesGeneratedTotal.WithLabelValues(string(req.Kind)).Inc()
		}
	}
}

func (l *Lifecycle) countItem(outcome string) {
	if l.metrics != nil {
		l.metrics.AdvanceItemsTotal.WithLabelValues(outcome).Inc()
	}
}
