// Package plans defines pricing plans and the catalog they are read from.
// Plans are priced in integer cents; their billing mode is derived from the
// price fields rather than stored.
package plans

import (
	"errors"
	"time"
)

// ErrPlanNotFound indicates the pricing plan does not exist or is inactive.
var ErrPlanNotFound = errors.New("pricing plan not found")

// Kind classifies a pricing plan by how it bills.
type Kind string

const (
	KindTrial         Kind = "trial"
	KindMonthly       Kind = "monthly"
	KindPayPerRequest Kind = "pay_per_request"
	KindFree          Kind = "free"
)

// PricingPlan describes how an organization is billed. Prices are integer cents.
type PricingPlan struct {
	ID                   int64     `json:"id"`
	Name                 string    `json:"name"`
	Market               string    `json:"market"`
	PricePerMonthCents   int64     `json:"price_per_month_cents"`
	PricePerRequestCents int64     `json:"price_per_request_cents"`
	MonthlyQuota         *int64    `json:"monthly_quota,omitempty"`
	TrialPeriodDays      int       `json:"trial_period_days"`
	// CycleLengthDays is the billing cycle length; 0 means one calendar month
	// (same day next month, end date inclusive).
	CycleLengthDays int       `json:"cycle_length_days"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Kind derives the billing mode from the price fields. A plan with a trial period
// is a trial regardless of prices; a monthly price makes it monthly; a per-request
// price without a monthly price makes it pay-per-request.
func (p *PricingPlan) Kind() Kind {
	switch {
	case p.TrialPeriodDays > 0:
		return KindTrial
	case p.PricePerMonthCents > 0:
		return KindMonthly
	case p.PricePerRequestCents > 0:
		return KindPayPerRequest
	default:
		return KindFree
	}
}

// IsMonthly reports whether the plan bills by billing cycle.
func (p *PricingPlan) IsMonthly() bool { return p.Kind() == KindMonthly }

// IsPayPerRequest reports whether the plan bills each request individually.
func (p *PricingPlan) IsPayPerRequest() bool { return p.Kind() == KindPayPerRequest }

// IsTrial reports whether the plan is a time-boxed trial.
func (p *PricingPlan) IsTrial() bool { return p.Kind() == KindTrial }

// CycleEndFor returns the inclusive end date of a cycle opened on start.
// With the default calendar-month length, a cycle opened January 15 ends
// February 14.
func (p *PricingPlan) CycleEndFor(start time.Time) time.Time {
	if p.CycleLengthDays > 0 {
		return start.AddDate(0, 0, p.CycleLengthDays-1)
	}
	return addMonthClamped(start).AddDate(0, 0, -1)
}

// addMonthClamped adds one calendar month, clamping to the last day of the
// shorter target month instead of letting the date normalize past it
// (January 31 + 1 month = February 29, not March 2).
func addMonthClamped(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	lastOfNext := firstOfNext.AddDate(0, 1, -1)
	day := t.Day()
	if day > lastOfNext.Day() {
		day = lastOfNext.Day()
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, 0, 0, 0, 0, t.Location())
}
