// Package invoices generates closure and cycle invoices for billing-cycle
// transitions.
//
// The cycle advancer reports which invoices a transition owes as Request values;
// the lifecycle orchestrator hands them to a Generator after the organization's new
// state is persisted, so a failed save never produces an invoice for a transition
// that did not happen. PDF rendering, delivery, and payment collection live outside
// this engine.
package invoices

import (
	"context"
	"time"
)

// Kind identifies why an invoice was generated.
type Kind string

const (
	// KindMonthlyCycle bills a completed monthly cycle that rolled over in place.
	KindMonthlyCycle Kind = "monthly_cycle"
	// KindMonthlyClosure bills the final cycle of a monthly plan the organization
	// is leaving.
	KindMonthlyClosure Kind = "monthly_closure"
	// KindPayPerRequestClosure bills accumulated pay-per-request usage up to a
	// switch away from pay-per-request pricing.
	KindPayPerRequestClosure Kind = "ppr_closure"
)

// Status represents the status of an invoice
type Status string

const (
	StatusOpen Status = "open"
	StatusPaid Status = "paid"
	StatusVoid Status = "void"
)

// Invoice represents a generated invoice. Amounts are integer cents.
type Invoice struct {
	ID          int64     `json:"id"`
	OrgID       int64     `json:"org_id"`
	Number      string    `json:"number"`
	Kind        Kind      `json:"kind"`
	PlanID      int64     `json:"plan_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Status      Status    `json:"status"`
	DueDate     time.Time `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Request asks the Generator for one invoice covering [PeriodStart, PeriodEnd].
type Request struct {
	OrgID       int64
	PlanID      int64
	Kind        Kind
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Generator turns transition billing obligations into persisted invoices.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Invoice, error)
}
