// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, org)
//	httputil.WriteCreated(w, resource)
//
// Error responses:
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteNotFoundError(w, "Organization not found")
//	httputil.WriteConflict(w, "Concurrent update, retry")
//	httputil.WriteTooManyRequests(w, "Quota exceeded")
//
// # Request Parsing
//
// JSON parsing:
//
//	var req ChangePlanRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	orgID, err := httputil.ParsePathInt64(r, "org_id")
//
// Query parameters:
//
//	limit, err := httputil.ParseQueryInt(r, "limit", 50)
//	market := httputil.ParseQueryString(r, "market", "DEFAULT")
//
// # Validation
//
//	httputil.RequireNonEmpty(w, req.Name, "name")
//	httputil.RequirePositive(w, req.PlanID, "plan_id")
//
// # Middleware
//
//	httputil.RecoveryMiddleware(handler)
//	httputil.LoggingMiddleware(handler)
//	httputil.MaxBytesMiddleware(1024 * 1024)(handler)
//
// # Related Packages
//
//   - pkg/middleware: Organization context and quota enforcement middleware
package httputil
