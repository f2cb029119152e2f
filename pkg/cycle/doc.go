// Package cycle advances organization subscription state over time and schedules
// future plan transitions.
//
// # Overview
//
// Three pieces cooperate:
//
//   - Advancer applies the time-driven transition rules to one organization for
//     one day. It reads plans and usage but writes nothing; it returns an Outcome
//     carrying the advanced copy and the invoices the transition owes.
//   - Scheduler implements the user-triggered operations: request a plan change,
//     request a pay-per-request fallback, cancel either. Each is one
//     read-modify-write against the organization's row.
//   - Lifecycle runs Advancer over every organization with due work on a daily
//     trigger, persisting and invoicing per item with failure isolation.
//
// # Rule ordering
//
// Advancer evaluates its rules in a fixed order each pass: trial expiry, pending
// monthly activation, cycle rollover, pending pay-per-request activation. The
// order is load-bearing; later rules assume earlier ones have already resolved
// trial and cycle state for the same day.
//
// # Idempotence
//
// Advancing twice with the same day yields the same state as advancing once, so an
// accidentally re-run daily trigger cannot double-bill a cycle. Rollover loops
// until the cycle covers today for the same reason: an organization untouched for
// several cycles converges in a single pass.
package cycle
