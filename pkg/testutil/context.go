package testutil

import (
	"net/http"
	"time"

	"namereg/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped clock, as the request time
// middleware would.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
