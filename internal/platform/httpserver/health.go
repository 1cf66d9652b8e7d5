package httpserver

import (
	"context"
	"net/http"
	"sort"
	"time"

	"namereg/pkg/platform/httputil"
)

const healthCheckTimeout = 2 * time.Second

// Check tests one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

type checkResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks"`
}

// Health answers 200 when every check passes and 503 otherwise.
func Health(checks map[string]Check) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]checkResult, len(checks)),
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Status = "fail"
				resp.Checks[name] = checkResult{Status: "fail", Message: err.Error()}
				continue
			}
			resp.Checks[name] = checkResult{Status: "ok"}
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
