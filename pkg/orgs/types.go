package orgs

import (
	"time"
)

// PendingChange is a scheduled plan transition that has not taken effect yet.
// A nil *PendingChange means no transition is scheduled; a non-nil value always
// carries both the target plan and the date it becomes effective.
type PendingChange struct {
	PlanID        int64     `json:"plan_id"`
	EffectiveDate time.Time `json:"effective_date"`
}

// Validate rejects half-formed pending state. A zero plan or date can only come
// from a corrupted row or a bug in the scheduling path, never from normal operation.
func (c *PendingChange) Validate() error {
	if c == nil {
		return nil
	}
	if c.PlanID == 0 {
		return &DataIntegrityError{Reason: "pending change has no plan id"}
	}
	if c.EffectiveDate.IsZero() {
		return &DataIntegrityError{Reason: "pending change has no effective date"}
	}
	return nil
}

// Due reports whether the change should be applied on the given day.
func (c *PendingChange) Due(today time.Time) bool {
	return c != nil && !c.EffectiveDate.After(today)
}

// Organization is the aggregate root of the billing engine. All date fields
// (CycleStart, CycleEnd, pending effective dates, LastPPRInvoiceDate) are calendar
// dates stored as UTC midnight; comparisons are date-granular.
type Organization struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Market  string `json:"market"`
	Enabled bool   `json:"enabled"`

	// MonthlyQuota is the request ceiling for the current cycle; nil means unlimited.
	MonthlyQuota  *int64 `json:"monthly_quota,omitempty"`
	PricingPlanID *int64 `json:"pricing_plan_id,omitempty"`

	TrialExpiresAt          *time.Time `json:"trial_expires_at,omitempty"`
	TrialPermanentlyExpired bool       `json:"trial_permanently_expired"`

	// CycleStart and CycleEnd bound the current billing cycle, both inclusive.
	// Both are nil when the organization is not on a cycle-based plan.
	CycleStart *time.Time `json:"cycle_start,omitempty"`
	CycleEnd   *time.Time `json:"cycle_end,omitempty"`

	PendingMonthly       *PendingChange `json:"pending_monthly,omitempty"`
	PendingPayPerRequest *PendingChange `json:"pending_pay_per_request,omitempty"`

	// LastPPRInvoiceDate is the last date up to which pay-per-request usage has
	// been invoiced. It prevents double-billing when switching back to a monthly plan.
	LastPPRInvoiceDate *time.Time `json:"last_ppr_invoice_date,omitempty"`

	// Version is the optimistic concurrency token checked by Repository.Save.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OnMonthlyCycle reports whether the organization currently has an open billing cycle.
func (o *Organization) OnMonthlyCycle() bool {
	return o.CycleStart != nil && o.CycleEnd != nil
}

// Clone returns a deep copy. The cycle advancer mutates a clone so a failed save
// never leaves a half-advanced aggregate in the caller's hands.
func (o *Organization) Clone() *Organization {
	cp := *o
	cp.MonthlyQuota = cloneInt64(o.MonthlyQuota)
	cp.PricingPlanID = cloneInt64(o.PricingPlanID)
	cp.TrialExpiresAt = cloneTime(o.TrialExpiresAt)
	cp.CycleStart = cloneTime(o.CycleStart)
	cp.CycleEnd = cloneTime(o.CycleEnd)
	cp.LastPPRInvoiceDate = cloneTime(o.LastPPRInvoiceDate)
	if o.PendingMonthly != nil {
		pc := *o.PendingMonthly
		cp.PendingMonthly = &pc
	}
	if o.PendingPayPerRequest != nil {
		pc := *o.PendingPayPerRequest
		cp.PendingPayPerRequest = &pc
	}
	return &cp
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
