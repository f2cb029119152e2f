// Package middleware provides HTTP middleware for quota enforcement
//
// # CRITICAL: Middleware Ordering Requirements
//
// Quota middleware has strict ordering dependencies. Incorrect order will cause
// quota checks to silently fail (returning 0 for org ID).
//
// REQUIRED ORDERING (outer to inner):
//  1. RequestIDMiddleware - Assigns a request ID for log correlation
//  2. OrgContextMiddleware - Extracts org ID from the route or X-Org-ID header
//  3. QuotaMiddleware.EnforceQuota - Checks quota and records usage
//
// Example (correct):
//
//	router.Use(middleware.RequestIDMiddleware)
//	router.Use(middleware.OrgContextMiddleware)
//	router.Handle("/api/requests", quotaMW.EnforceQuota(handler)).Methods("POST")
//
// Example (WRONG - will not work):
//
//	router.Use(quotaMW.EnforceQuota)          // FAILS: No org ID in context yet
//	router.Use(middleware.OrgContextMiddleware)
//
// WHY THIS MATTERS:
//   - If quota middleware runs before OrgContextMiddleware, OrgIDFromContext()
//     returns 0, and quota checks are silently skipped
//
// Authentication itself is not handled here: tollgate sits behind an auth proxy
// that validates the caller and stamps X-Org-ID on the request.
package middleware
