// Package requestcontext carries request-scoped values from middleware to
// services without an HTTP dependency. Middleware sets the transport
// correlation ID and the request time; handlers and services read them back
// through the typed accessors here.
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// RequestID returns the transport correlation ID of the inbound request, or
// "" when none was set. This is the log-correlation ID, distinct from the
// assessment request ID that drives idempotency.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped time, falling back to the wall clock for
// contexts that never passed through the middleware (workers, tests). A
// single request observes one "now", so an assessment's timestamps agree
// across factors, events, and logs.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request-scoped time. Tests use it to make synthesis
// timestamps deterministic.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
