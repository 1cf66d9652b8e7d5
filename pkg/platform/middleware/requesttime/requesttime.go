// Package requesttime provides middleware and utilities for request-scoped time.
// All operations within a single HTTP request use the same "now" timestamp,
// so every expiry comparison and emitted event in one call agrees on the time.
package requesttime

import (
	"net/http"
	"time"

	"namereg/pkg/requestcontext"
)

// Clock returns the current instant. Replaced in tests.
type Clock func() time.Time

// Middleware captures the current time at the start of the request, truncated
// to whole seconds like a ledger block timestamp.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock is Middleware with an injected clock.
func WithClock(clock Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clock().UTC().Truncate(time.Second)
			ctx := requestcontext.WithTime(r.Context(), now)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
