package cycle

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func i64(v int64) *int64 { return &v }

func datePtr(t time.Time) *time.Time { return &t }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeCatalog implements plans.Catalog over a map
type fakeCatalog struct {
	plans map[int64]*plans.PricingPlan
}

func (f *fakeCatalog) GetPlan(ctx context.Context, id int64) (*plans.PricingPlan, error) {
	plan, ok := f.plans[id]
	if !ok {
		return nil, plans.ErrPlanNotFound
	}
	return plan, nil
}

func (f *fakeCatalog) ActivePlans(ctx context.Context, market string) ([]*plans.PricingPlan, error) {
	var out []*plans.PricingPlan
	for _, p := range f.plans {
		if p.Market == market && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) PayPerRequestPlan(ctx context.Context, market string) (*plans.PricingPlan, error) {
	list, _ := f.ActivePlans(ctx, market)
	for _, p := range list {
		if p.IsPayPerRequest() {
			return p, nil
		}
	}
	return nil, plans.ErrPlanNotFound
}

func (f *fakeCatalog) DefaultNonTrialPlan(ctx context.Context, market string) (*plans.PricingPlan, error) {
	list, _ := f.ActivePlans(ctx, market)
	for _, p := range list {
		if p.Kind() == plans.KindFree {
			return p, nil
		}
	}
	return nil, plans.ErrPlanNotFound
}

// fakeCounter implements usage.Counter with a fixed count
type fakeCounter struct {
	count int64
	err   error
}

func (f *fakeCounter) CountBillableRequests(ctx context.Context, orgID int64, start, end time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

// fakeRepo implements orgs.Repository over a map, with optional forced save
// conflicts to exercise the retry path.
type fakeRepo struct {
	orgs          map[int64]*orgs.Organization
	saveErr       error
	conflictsLeft int
	saves         int
}

func (f *fakeRepo) GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return nil, orgs.ErrOrganizationNotFound
	}
	return org.Clone(), nil
}

func (f *fakeRepo) ListDueForAdvance(ctx context.Context, today time.Time) ([]*orgs.Organization, error) {
	var out []*orgs.Organization
	for _, org := range f.orgs {
		out = append(out, org.Clone())
	}
	return out, nil
}

func (f *fakeRepo) Save(ctx context.Context, org *orgs.Organization) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return orgs.ErrConflict
	}
	stored := org.Clone()
	stored.Version++
	f.orgs[org.ID] = stored
	org.Version++
	return nil
}

func (f *fakeRepo) CreateOrganization(ctx context.Context, org *orgs.Organization) error {
	org.Version = 1
	f.orgs[org.ID] = org.Clone()
	return nil
}

// fakeGenerator records invoice requests instead of persisting them
type fakeGenerator struct {
	requests []invoices.Request
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, req invoices.Request) (*invoices.Invoice, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &invoices.Invoice{OrgID: req.OrgID, PlanID: req.PlanID, Kind: req.Kind}, nil
}
