// Package api provides the HTTP REST API server for the tollgate billing engine.
//
// # Overview
//
// This package implements the HTTP layer over the billing-cycle engine: creating
// organizations, inspecting quota state, scheduling and cancelling plan changes,
// consuming metered requests, and listing generated invoices. All business rules
// live below it in pkg/quota and pkg/cycle; handlers translate between HTTP and
// those packages and map their errors to status codes.
//
// # Architecture
//
// The API is built on gorilla/mux and organized into domain-specific handler groups:
//
//   - Organization Management: Create organizations, read state and quota standing
//   - Plan Management: List plans, schedule and cancel plan changes and fallbacks
//   - Metered Requests: The quota-gated endpoint that consumes one billable unit
//   - Invoices: List invoices generated by cycle transitions
//
// # API Endpoints
//
// Organization management:
//
//	POST   /orgs                           - Create organization
//	GET    /orgs/{org_id}                  - Get organization details
//	GET    /orgs/{org_id}/quota            - Check quota standing
//	GET    /orgs/{org_id}/invoices         - List invoices (query: limit)
//
// Plan management:
//
//	GET    /plans                          - List active plans (query: market)
//	PUT    /orgs/{org_id}/plan             - Schedule a plan change
//	DELETE /orgs/{org_id}/plan/pending     - Cancel a pending plan change
//	POST   /orgs/{org_id}/plan/fallback    - Schedule pay-per-request fallback
//	DELETE /orgs/{org_id}/plan/fallback    - Cancel pay-per-request fallback
//
// Metered usage:
//
//	POST   /orgs/{org_id}/requests         - Consume one billable request
//
// The metered endpoint runs behind middleware.QuotaMiddleware: within quota it
// passes, on pay-per-request overflow it passes with an X-Request-Price-Cents
// header, and exhausted-with-no-fallback returns 429.
//
// # Status Code Mapping
//
// Handlers translate engine errors uniformly: unknown organizations and plans are
// 404, disabled organizations are 403, optimistic-concurrency conflicts are 409
// (retryable by the client), trial re-entry is 409, and data-integrity failures
// are logged and surface as 500.
//
// # Usage Example
//
//	server := api.NewServer(repo, catalog, enforcer, scheduler, generator, quotaMW, logger)
//	http.ListenAndServe(":8080", server)
//
// # Related Packages
//
//   - pkg/quota: Request-time quota decisions
//   - pkg/cycle: Plan scheduling and the daily advance
//   - pkg/middleware: Organization context and quota enforcement middleware
//   - pkg/invoices: Invoice generation and listing
package api
