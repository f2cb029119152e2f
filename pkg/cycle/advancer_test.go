package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
)

func testPlans() map[int64]*plans.PricingPlan {
	return map[int64]*plans.PricingPlan{
		1: {ID: 1, Name: "trial", Market: "US", TrialPeriodDays: 14, MonthlyQuota: i64(50), Active: true},
		2: {ID: 2, Name: "free", Market: "US", MonthlyQuota: i64(100), Active: true},
		3: {ID: 3, Name: "pro", Market: "US", PricePerMonthCents: 2000, MonthlyQuota: i64(100), Active: true},
		4: {ID: 4, Name: "metered", Market: "US", PricePerRequestCents: 5, Active: true},
		5: {ID: 5, Name: "team", Market: "US", PricePerMonthCents: 5000, MonthlyQuota: i64(500), Active: true},
	}
}

func newTestAdvancer(counter *fakeCounter) *Advancer {
	return NewAdvancer(&fakeCatalog{plans: testPlans()}, counter, quietLogger())
}

// monthlyOrg is on the pro plan with a January 2024 calendar cycle.
func monthlyOrg() *orgs.Organization {
	return &orgs.Organization{
		ID:            1,
		Name:          "acme",
		Market:        "US",
		Enabled:       true,
		MonthlyQuota:  i64(100),
		PricingPlanID: i64(3),
		CycleStart:    datePtr(date(2024, 1, 1)),
		CycleEnd:      datePtr(date(2024, 1, 31)),
		Version:       1,
	}
}

func TestAdvance_NothingDue(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	out, err := a.Advance(context.Background(), monthlyOrg(), date(2024, 1, 15))
	require.NoError(t, err)
	assert.False(t, out.Changed())
	assert.Empty(t, out.Invoices)
}

func TestAdvance_DoesNotMutateInput(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	org := monthlyOrg()
	org.PendingMonthly = &orgs.PendingChange{PlanID: 5, EffectiveDate: date(2024, 2, 1)}

	out, err := a.Advance(context.Background(), org, date(2024, 2, 1))
	require.NoError(t, err)
	require.True(t, out.PlanActivated)
	assert.NotNil(t, org.PendingMonthly, "input organization must stay untouched")
	assert.Equal(t, int64(3), *org.PricingPlanID)
}

func TestAdvance_TrialExpiry(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	org := &orgs.Organization{
		ID:             2,
		Market:         "US",
		Enabled:        true,
		MonthlyQuota:   i64(50),
		PricingPlanID:  i64(1),
		TrialExpiresAt: datePtr(date(2024, 1, 10)),
	}

	out, err := a.Advance(context.Background(), org, date(2024, 1, 10))
	require.NoError(t, err)

	assert.True(t, out.TrialExpired)
	assert.True(t, out.Changed())
	advanced := out.Org
	assert.Nil(t, advanced.TrialExpiresAt)
	assert.True(t, advanced.TrialPermanentlyExpired)
	assert.Equal(t, int64(2), *advanced.PricingPlanID, "falls back to the free plan")
	assert.Equal(t, int64(100), *advanced.MonthlyQuota)
	assert.Nil(t, advanced.CycleStart, "free plan has no billing cycle")
	assert.Empty(t, out.Invoices, "trials never bill")
}

func TestAdvance_TrialNotYetExpired(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	org := &orgs.Organization{
		ID:             2,
		Market:         "US",
		Enabled:        true,
		PricingPlanID:  i64(1),
		TrialExpiresAt: datePtr(date(2024, 1, 10)),
	}

	out, err := a.Advance(context.Background(), org, date(2024, 1, 9).Add(23*time.Hour))
	require.NoError(t, err)
	assert.False(t, out.Changed())
}

func TestAdvance_TrialExpiryWithoutFallbackPlan(t *testing.T) {
	catalog := &fakeCatalog{plans: map[int64]*plans.PricingPlan{
		1: {ID: 1, Name: "trial", Market: "US", TrialPeriodDays: 14, Active: true},
	}}
	a := NewAdvancer(catalog, &fakeCounter{}, quietLogger())
	org := &orgs.Organization{
		ID:             2,
		Market:         "US",
		Enabled:        true,
		PricingPlanID:  i64(1),
		TrialExpiresAt: datePtr(date(2024, 1, 10)),
	}

	out, err := a.Advance(context.Background(), org, date(2024, 1, 10))
	require.NoError(t, err)

	advanced := out.Org
	assert.True(t, advanced.TrialPermanentlyExpired)
	assert.Nil(t, advanced.PricingPlanID)
	require.NotNil(t, advanced.MonthlyQuota)
	assert.Equal(t, int64(0), *advanced.MonthlyQuota, "planless organizations get zero quota, not unlimited")
}

func TestAdvance_PendingMonthlyActivation(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	org := monthlyOrg()
	org.PendingMonthly = &orgs.PendingChange{PlanID: 5, EffectiveDate: date(2024, 2, 1)}

	out, err := a.Advance(context.Background(), org, date(2024, 2, 1))
	require.NoError(t, err)

	assert.True(t, out.PlanActivated)
	advanced := out.Org
	assert.Equal(t, int64(5), *advanced.PricingPlanID)
	assert.Equal(t, int64(500), *advanced.MonthlyQuota)
	assert.Nil(t, advanced.PendingMonthly)
	assert.Equal(t, date(2024, 2, 1), *advanced.CycleStart)
	assert.Equal(t, date(2024, 2, 29), *advanced.CycleEnd)

	require.Len(t, out.Invoices, 1)
	inv := out.Invoices[0]
	assert.Equal(t, invoices.KindMonthlyClosure, inv.Kind)
	assert.Equal(t, int64(3), inv.PlanID)
	assert.Equal(t, date(2024, 1, 1), inv.PeriodStart)
	assert.Equal(t, date(2024, 1, 31), inv.PeriodEnd)
}

func TestAdvance_PendingMonthlyNotDue(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	org := monthlyOrg()
	org.PendingMonthly = &orgs.PendingChange{PlanID: 5, EffectiveDate: date(2024, 2, 1)}

	out, err := a.Advance(context.Background(), org, date(2024, 1, 20))
	require.NoError(t, err)
	assert.False(t, out.Changed())
	assert.NotNil(t, out.Org.PendingMonthly)
}

func TestAdvance_PendingMonthlyPlanMissing(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	org := monthlyOrg()
	org.PendingMonthly = &orgs.PendingChange{PlanID: 999, EffectiveDate: date(2024, 2, 1)}

	_, err := a.Advance(context.Background(), org, date(2024, 2, 1))
	require.Error(t, err)
	assert.True(t, orgs.IsDataIntegrity(err))
}

func TestAdvance_CycleRollover(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	out, err := a.Advance(context.Background(), monthlyOrg(), date(2024, 2, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, out.CyclesRolled)
	assert.Equal(t, date(2024, 2, 1), *out.Org.CycleStart)
	assert.Equal(t, date(2024, 2, 29), *out.Org.CycleEnd)

	require.Len(t, out.Invoices, 1)
	assert.Equal(t, invoices.KindMonthlyCycle, out.Invoices[0].Kind)
	assert.Equal(t, date(2024, 1, 1), out.Invoices[0].PeriodStart)
	assert.Equal(t, date(2024, 1, 31), out.Invoices[0].PeriodEnd)
}

func TestAdvance_CycleRolloverCatchesUpMissedDays(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	out, err := a.Advance(context.Background(), monthlyOrg(), date(2024, 3, 15))
	require.NoError(t, err)

	assert.Equal(t, 2, out.CyclesRolled)
	assert.Equal(t, date(2024, 3, 1), *out.Org.CycleStart)
	assert.Equal(t, date(2024, 3, 31), *out.Org.CycleEnd)

	require.Len(t, out.Invoices, 2)
	assert.Equal(t, date(2024, 1, 31), out.Invoices[0].PeriodEnd)
	assert.Equal(t, date(2024, 2, 1), out.Invoices[1].PeriodStart)
	assert.Equal(t, date(2024, 2, 29), out.Invoices[1].PeriodEnd)
}

func TestAdvance_Idempotent(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	first, err := a.Advance(context.Background(), monthlyOrg(), date(2024, 2, 1))
	require.NoError(t, err)
	require.True(t, first.Changed())

	second, err := a.Advance(context.Background(), first.Org, date(2024, 2, 1))
	require.NoError(t, err)
	assert.False(t, second.Changed(), "re-advancing the same day must be a no-op")
	assert.Empty(t, second.Invoices)
}

func TestAdvance_RolloverSkippedWhilePendingChange(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{count: 10})
	org := monthlyOrg()
	org.PendingPayPerRequest = &orgs.PendingChange{PlanID: 4, EffectiveDate: date(2024, 3, 1)}

	out, err := a.Advance(context.Background(), org, date(2024, 2, 5))
	require.NoError(t, err)

	assert.Equal(t, 0, out.CyclesRolled, "a pending change freezes the lapsed cycle")
	assert.False(t, out.Changed())
	assert.Equal(t, date(2024, 1, 31), *out.Org.CycleEnd)
}

func TestAdvance_PayPerRequestFallbackOnDate(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	org := monthlyOrg()
	org.PendingPayPerRequest = &orgs.PendingChange{PlanID: 4, EffectiveDate: date(2024, 2, 1)}

	out, err := a.Advance(context.Background(), org, date(2024, 2, 1))
	require.NoError(t, err)

	assert.True(t, out.FellBackToPayPerRequest)
	advanced := out.Org
	assert.Equal(t, int64(4), *advanced.PricingPlanID)
	assert.Nil(t, advanced.MonthlyQuota)
	assert.Nil(t, advanced.CycleStart)
	assert.Nil(t, advanced.PendingPayPerRequest)
	require.NotNil(t, advanced.LastPPRInvoiceDate)
	assert.Equal(t, date(2024, 1, 31), *advanced.LastPPRInvoiceDate, "metered billing owns usage from today on")

	require.Len(t, out.Invoices, 1)
	assert.Equal(t, invoices.KindMonthlyClosure, out.Invoices[0].Kind)
}

func TestAdvance_PayPerRequestFallbackOnExhaustion(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{count: 100})
	org := monthlyOrg()
	org.PendingPayPerRequest = &orgs.PendingChange{PlanID: 4, EffectiveDate: date(2024, 3, 1)}

	out, err := a.Advance(context.Background(), org, date(2024, 1, 20))
	require.NoError(t, err)

	assert.True(t, out.FellBackToPayPerRequest, "exhausted quota activates the fallback early")
	assert.Equal(t, int64(4), *out.Org.PricingPlanID)
	assert.Equal(t, date(2024, 1, 19), *out.Org.LastPPRInvoiceDate)
}

func TestAdvance_PayPerRequestFallbackNotDueUnderQuota(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{count: 40})
	org := monthlyOrg()
	org.PendingPayPerRequest = &orgs.PendingChange{PlanID: 4, EffectiveDate: date(2024, 3, 1)}

	out, err := a.Advance(context.Background(), org, date(2024, 1, 20))
	require.NoError(t, err)
	assert.False(t, out.Changed())
}

func TestAdvance_CorruptPendingChange(t *testing.T) {
	a := newTestAdvancer(&fakeCounter{})
	org := monthlyOrg()
	org.PendingMonthly = &orgs.PendingChange{EffectiveDate: date(2024, 2, 1)}

	_, err := a.Advance(context.Background(), org, date(2024, 1, 15))
	require.Error(t, err)
	require.True(t, orgs.IsDataIntegrity(err))
	assert.Equal(t, org.ID, err.(*orgs.DataIntegrityError).OrgID)
}
