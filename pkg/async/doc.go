// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, and context cancellation.
//
// # Key Functions
//
// SafeGo: Execute function in goroutine with safety features
//
//	async.SafeGo(ctx, 5*time.Second, "usage recording", func(ctx context.Context) error {
//		// Task code with automatic panic recovery and timeout
//		return recorder.RecordRequest(ctx, orgID, now)
//	})
//
// SafeGoNoError: Same, for functions that cannot fail
//
// # Features
//
// Panic Recovery: Captures panics with stack traces
// Timeout Enforcement: Per-task timeouts
// Context Cancellation: Respects context cancellation
//
// # Use Cases
//
// Off-request-path usage recording and cache invalidation; anything where a bare
// `go func()` could leak or crash the process.
//
// # Related Packages
//
//   - pkg/middleware: Uses SafeGo to record billable requests after quota checks
package async
