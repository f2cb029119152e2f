// Package orgs defines the organization aggregate the billing engine operates on,
// together with its persistence contract.
//
// # Overview
//
// An Organization carries the full billing-cycle state for one tenant: the plan in
// effect, the monthly quota, the current cycle window, trial state, and any pending
// (scheduled, not yet effective) plan changes.
//
// # Pending changes
//
// A scheduled transition is modeled as an optional PendingChange value rather than a
// detached id/date column pair, so an id without a date cannot be represented by
// well-formed code. Rows that were corrupted at the storage layer still surface as a
// PendingChange that fails Validate, which the cycle advancer treats as a
// data-integrity error for that organization only.
//
// # Concurrency
//
// Organizations are independent units of concurrency. Every mutation is a single
// read-modify-write guarded by the Version column; Repository.Save returns
// ErrConflict when the row moved underneath the caller.
//
// # Related Packages
//
//   - pkg/quota: request-time quota enforcement
//   - pkg/cycle: time-driven state advancement and plan-change scheduling
package orgs
