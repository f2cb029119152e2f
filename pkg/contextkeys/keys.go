// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tollgate/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.OrgIDKey, orgID)
//	orgID := ctx.Value(contextkeys.OrgIDKey).(int64)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// OrgIDKey contains the authenticated organization's ID
	// Set by: middleware.OrgContextMiddleware (pkg/middleware/org.go)
	// Required by: quota middleware, org-scoped endpoints
	// Type: int64
	OrgIDKey Key = "org_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestIDMiddleware (pkg/middleware/org.go)
	// Used by: Logger, request tracing
	// Type: string
	RequestIDKey Key = "request_id"
)
