package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tollgate/pkg/contextkeys"
	"github.com/platinummonkey/tollgate/pkg/httputil"
)

// OrgIDHeader carries the authenticated organization's ID, set by the fronting
// auth proxy. Tollgate trusts it; authentication itself happens upstream.
const OrgIDHeader = "X-Org-ID"

// RequestIDHeader echoes the request ID assigned by RequestIDMiddleware.
const RequestIDHeader = "X-Request-ID"

// OrgContextMiddleware resolves the organization ID for the request and adds it
// to the request context. The ID comes from the {org_id} route variable when the
// route has one, otherwise from the X-Org-ID header.
//
// Requests without either pass through with no org ID in context; downstream
// quota middleware skips enforcement for them.
func OrgContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(OrgIDHeader)
		if v, ok := mux.Vars(r)["org_id"]; ok {
			raw = v
		}
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		orgID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || orgID <= 0 {
			httputil.WriteBadRequest(w, "Invalid organization ID")
			return
		}

		ctx := context.WithValue(r.Context(), contextkeys.OrgIDKey, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware assigns each request a UUID and echoes it in the response
// for log correlation
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OrgIDFromContext retrieves the organization ID set by OrgContextMiddleware,
// or 0 when the request carries none.
func OrgIDFromContext(ctx context.Context) int64 {
	orgID, ok := ctx.Value(contextkeys.OrgIDKey).(int64)
	if !ok {
		return 0
	}
	return orgID
}
